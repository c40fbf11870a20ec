// Package grl parses the Gru le Language surface syntax (§4.2, C2) into the
// rule/query intermediate representation the discrimination network (C3)
// builds against.
//
// The lexer and recursive-descent parser follow the shape of
// theRebelliousNerd-codenerd's internal/mangle/grammar.go: a hand-written
// tokenizer feeding a predictive parser over a small DSL, with no
// parser-generator dependency anywhere in the retrieval pack.
package grl

import "github.com/ruleforge/rulenet/pkg/rulenet/value"

// Op is a comparison or arithmetic operator appearing in a field test or
// expression.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpAnd Op = "&&"
	OpOr  Op = "||"
	OpNot Op = "!"
)

// Expr is an arbitrary boolean/arithmetic expression over bound variables,
// used by test conditions and by rvalues in actions.
type Expr interface{ exprNode() }

// LitExpr is a literal constant.
type LitExpr struct{ Value value.Value }

// VarExpr references a bound environment variable ($x).
type VarExpr struct{ Name string }

// FieldExpr references a field of a bound handle (e.g. o.amount).
type FieldExpr struct {
	Binding string
	Field   string
}

// UnaryExpr applies a unary operator (- or !) to an operand.
type UnaryExpr struct {
	Op      Op
	Operand Expr
}

// BinaryExpr applies a binary operator to two operands.
type BinaryExpr struct {
	Op          Op
	Left, Right Expr
}

// CallExpr invokes a registered function by name with evaluated arguments.
type CallExpr struct {
	Name string
	Args []Expr
}

func (LitExpr) exprNode()    {}
func (VarExpr) exprNode()    {}
func (FieldExpr) exprNode()  {}
func (UnaryExpr) exprNode()  {}
func (BinaryExpr) exprNode() {}
func (CallExpr) exprNode()   {}

// FieldTest is one `field OP value-or-$var` clause inside a pattern.
type FieldTest struct {
	Field string
	Op    Op
	// Exactly one of Literal / VarRef is set. A VarRef whose name is not yet
	// bound in the environment *writes* the binding; if already bound, the
	// test compares against the existing value.
	Literal value.Value
	VarRef  string
}

// Condition is one element of a rule's `when` block. Exactly one field is
// populated, tagged by Kind — a closed, small set of condition kinds
// (§9: "avoid an inheritance hierarchy; the set is closed and small").
type ConditionKind int

const (
	CondPattern ConditionKind = iota
	CondExists
	CondNot
	CondForall
	CondTest
	CondAccumulate
)

type Condition struct {
	Kind ConditionKind

	// CondPattern / CondExists / CondNot / the pattern half of CondForall.
	Binding    string // "" if the pattern result is not bound to a name
	Type       string
	FieldTests []FieldTest

	// CondForall only: the embedded test applied to every right-side match.
	ForallTest Expr

	// CondTest only.
	TestExpr Expr

	// CondAccumulate only.
	Accumulate *AccumulateSpec
}

// AccumulateReducer names a supported aggregate reduction.
type AccumulateReducer string

const (
	ReduceCount AccumulateReducer = "count"
	ReduceSum   AccumulateReducer = "sum"
	ReduceAvg   AccumulateReducer = "avg"
	ReduceMin   AccumulateReducer = "min"
	ReduceMax   AccumulateReducer = "max"
)

// AccumulateSpec describes `accumulate over Type(tests) compute reduce(field) bind $name`.
type AccumulateSpec struct {
	Type       string
	FieldTests []FieldTest
	Reducer    AccumulateReducer
	Field      string // field reduced over; ignored by count
	BindAs     string
}

// Action is one statement of a rule's `then` block.
type ActionKind int

const (
	ActAssign ActionKind = iota
	ActCall
	ActRetract
	ActLog
	ActAssert
)

// FieldAssign is one `field = expr` pair inside a `logical Type(...)` assert.
type FieldAssign struct {
	Field string
	RHS   Expr
}

type Action struct {
	Kind ActionKind

	// ActAssign
	Binding string
	Field   string
	RHS     Expr

	// ActCall / ActLog
	FuncName string
	Args     []Expr

	// ActAssert only: asserts a new fact of type FuncName built from Assigns.
	// The assertion is logical — tied to the firing token's support via the
	// Truth Maintenance System (§4.4) — and is automatically retracted when
	// no surviving token justifies it.
	Assigns []FieldAssign

	// ActRetract
	RetractBinding string
}

// RuleIR is the parsed, type-checked-at-parse-time intermediate
// representation of one `rule { ... }` block.
type RuleIR struct {
	Name             string
	Description      string
	Salience         int
	NoLoop           bool
	AgendaGroup      string
	ActivationGroup  string
	Conditions       []Condition
	Actions          []Action
}

// QueryIR is the parsed representation of one `query { ... }` block (§6).
type QueryIR struct {
	Name         string
	Goal         Condition
	Strategy     string // depth-first | breadth-first | iterative-deepening
	MaxDepth     int
	MaxSolutions int
	When         Expr
	OnSuccess    []Action
	OnFailure    []Action
	OnMissing    []Action
}

// Program is the result of parsing one GRL source text: an ordered sequence
// of rule and query declarations.
type Program struct {
	Rules   []*RuleIR
	Queries []*QueryIR
}
