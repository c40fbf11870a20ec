package grl

import (
	"strconv"
	"strings"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Option configures the parser.
type Option func(*parser)

// WithStrictTemplates makes the parser raise a Schema error when a pattern
// references a fact type that has no registered template, instead of
// deferring the check to insert time (§4.2).
func WithStrictTemplates(types map[string]bool) Option {
	return func(p *parser) {
		p.strictTemplates = true
		p.knownTypes = types
	}
}

// Parse parses a GRL source text into a Program. Parsing is a pure function
// (§4.2): no action execution occurs, and a failure rejects the entire
// input atomically — no partial rule set is returned (§7).
func Parse(src string, opts ...Option) (*Program, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	for _, opt := range opts {
		opt(p)
	}
	return p.parseProgram()
}

type parser struct {
	toks            []token
	idx             int
	strictTemplates bool
	knownTypes      map[string]bool
}

func (p *parser) cur() token  { return p.toks[p.idx] }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) advance() token {
	t := p.cur()
	if p.idx < len(p.toks)-1 {
		p.idx++
	}
	return t
}

func (p *parser) pos() rerr.Position {
	t := p.cur()
	return rerr.Position{Line: t.line, Column: t.column}
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return rerr.At(rerr.Syntax, p.pos(), format, args...)
}

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokIdent && t.text == kw
}

// hyphenKeywordLen reports how many tokens starting at the current position
// spell out kw (e.g. "no-loop" as the three tokens `no` `-` `loop`), or 0 if
// they don't. The lexer never merges '-' into an identifier (it also reads
// unary/binary minus), so multi-word attribute keywords have to be matched
// as a token sequence instead of a single isKeyword check.
func (p *parser) hyphenKeywordLen(kw string) int {
	parts := strings.Split(kw, "-")
	i := p.idx
	for pi, part := range parts {
		if pi > 0 {
			if i >= len(p.toks) || p.toks[i].kind != tokPunct || p.toks[i].text != "-" {
				return 0
			}
			i++
		}
		if i >= len(p.toks) || p.toks[i].kind != tokIdent || p.toks[i].text != part {
			return 0
		}
		i++
	}
	return i - p.idx
}

// matchHyphenKeyword is like hyphenKeywordLen but consumes the matched
// tokens on success.
func (p *parser) matchHyphenKeyword(kw string) bool {
	n := p.hyphenKeywordLen(kw)
	if n == 0 {
		return false
	}
	p.idx += n
	return true
}

// atQueryBranchKeyword peeks (without consuming) for one of the three
// query result-branch keywords, returning which one matched or "" if none
// does.
func (p *parser) atQueryBranchKeyword() string {
	for _, kw := range []string{"on-success", "on-failure", "on-missing"} {
		if p.hyphenKeywordLen(kw) > 0 {
			return kw
		}
	}
	return ""
}

func (p *parser) isPunct(s string) bool {
	t := p.cur()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.errorf("expected %q, found %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errorf("expected keyword %q, found %q", kw, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.cur()
	if t.kind != tokIdent {
		return "", p.errorf("expected identifier, found %q", t.text)
	}
	p.advance()
	return t.text, nil
}

func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for !p.atEOF() {
		switch {
		case p.isKeyword("rule"):
			r, err := p.parseRule()
			if err != nil {
				return nil, err
			}
			prog.Rules = append(prog.Rules, r)
		case p.isKeyword("query"):
			q, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			prog.Queries = append(prog.Queries, q)
		default:
			return nil, p.errorf("expected 'rule' or 'query', found %q", p.cur().text)
		}
	}
	return prog, nil
}

// scanForAnchor does a literal lookahead for a keyword directly inside the
// brace block the parser is about to enter (p.idx must be positioned on the
// opening '{'), before descending into a full parse. This implements §4.2's
// "literal scans for anchor tokens before descending" tie-break: a block
// missing a required anchor fails fast with a location instead of
// accumulating confusing cascading errors deeper in the grammar.
func (p *parser) scanForAnchor(kw string) bool {
	depth := 0
	for i := p.idx + 1; i < len(p.toks); i++ {
		t := p.toks[i]
		switch {
		case t.kind == tokPunct && t.text == "{":
			depth++
		case t.kind == tokPunct && t.text == "}":
			if depth == 0 {
				return false
			}
			depth--
		case depth == 0 && t.kind == tokIdent && t.text == kw:
			return true
		}
	}
	return false
}

func (p *parser) parseRule() (*RuleIR, error) {
	if err := p.expectKeyword("rule"); err != nil {
		return nil, err
	}
	name, err := p.expectString()
	if err != nil {
		return nil, err
	}
	rule := &RuleIR{Name: name}

	if p.cur().kind == tokString {
		rule.Description = p.advance().text
	}

	for {
		switch {
		case p.isKeyword("salience"):
			p.advance()
			n, err := p.expectInt()
			if err != nil {
				return nil, err
			}
			rule.Salience = n
		case p.matchHyphenKeyword("no-loop"):
			rule.NoLoop = true
		case p.matchHyphenKeyword("agenda-group"):
			s, err := p.expectString()
			if err != nil {
				return nil, err
			}
			rule.AgendaGroup = s
		case p.matchHyphenKeyword("activation-group"):
			s, err := p.expectString()
			if err != nil {
				return nil, err
			}
			rule.ActivationGroup = s
		default:
			goto attrsDone
		}
	}
attrsDone:

	if !p.isPunct("{") {
		return nil, p.errorf("expected '{' to start rule body, found %q", p.cur().text)
	}
	if !p.scanForAnchor("when") {
		return nil, p.errorf("rule %q is missing required 'when' block", name)
	}
	p.advance() // {

	if err := p.expectKeyword("when"); err != nil {
		return nil, err
	}
	for !p.isKeyword("then") {
		if p.atEOF() {
			return nil, p.errorf("rule %q is missing required 'then' block", name)
		}
		c, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		rule.Conditions = append(rule.Conditions, c)
	}
	p.advance() // then

	for !p.isPunct("}") {
		if p.atEOF() {
			return nil, p.errorf("unterminated rule %q", name)
		}
		a, err := p.parseAction()
		if err != nil {
			return nil, err
		}
		rule.Actions = append(rule.Actions, a)
	}
	p.advance() // }

	return rule, nil
}

func (p *parser) expectString() (string, error) {
	t := p.cur()
	if t.kind != tokString {
		return "", p.errorf("expected string literal, found %q", t.text)
	}
	p.advance()
	return t.text, nil
}

func (p *parser) expectInt() (int, error) {
	neg := false
	if p.isPunct("-") {
		neg = true
		p.advance()
	}
	t := p.cur()
	if t.kind != tokInt {
		return 0, p.errorf("expected integer literal, found %q", t.text)
	}
	p.advance()
	n, _ := strconv.Atoi(t.text)
	if neg {
		n = -n
	}
	return n, nil
}

// --- Conditions ---

func (p *parser) parseCondition() (Condition, error) {
	switch {
	case p.isKeyword("exists"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return Condition{}, err
		}
		pat, err := p.parsePatternBody()
		if err != nil {
			return Condition{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Condition{}, err
		}
		pat.Kind = CondExists
		return pat, nil
	case p.isKeyword("not"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return Condition{}, err
		}
		pat, err := p.parsePatternBody()
		if err != nil {
			return Condition{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Condition{}, err
		}
		pat.Kind = CondNot
		return pat, nil
	case p.isKeyword("forall"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return Condition{}, err
		}
		pat, err := p.parsePatternBody()
		if err != nil {
			return Condition{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Condition{}, err
		}
		pat.Kind = CondForall
		return pat, nil
	case p.isKeyword("test"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return Condition{}, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return Condition{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Condition{}, err
		}
		return Condition{Kind: CondTest, TestExpr: e}, nil
	case p.isKeyword("accumulate"):
		return p.parseAccumulate()
	default:
		return p.parsePattern()
	}
}

func (p *parser) parseAccumulate() (Condition, error) {
	p.advance() // accumulate
	if err := p.expectKeyword("over"); err != nil {
		return Condition{}, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return Condition{}, err
	}
	if err := p.expectKeyword("compute"); err != nil {
		return Condition{}, err
	}
	reducer, err := p.expectIdent()
	if err != nil {
		return Condition{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return Condition{}, err
	}
	field := ""
	if !p.isPunct(")") {
		field, err = p.expectIdent()
		if err != nil {
			return Condition{}, err
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return Condition{}, err
	}
	if err := p.expectKeyword("bind"); err != nil {
		return Condition{}, err
	}
	if p.cur().kind != tokDollarIdent {
		return Condition{}, p.errorf("expected $binding after 'bind', found %q", p.cur().text)
	}
	bindAs := p.advance().text

	return Condition{
		Kind: CondAccumulate,
		Accumulate: &AccumulateSpec{
			Type:       pat.Type,
			FieldTests: pat.FieldTests,
			Reducer:    AccumulateReducer(reducer),
			Field:      field,
			BindAs:     bindAs,
		},
	}, nil
}

// parsePattern parses either `name: Type(tests)` / `Type(tests)` or the
// dot-form shorthand `Type.field OP value`.
func (p *parser) parsePattern() (Condition, error) {
	binding := ""
	// Lookahead for `IDENT ':' `.
	if p.cur().kind == tokIdent && p.toks[p.idx+1].kind == tokPunct && p.toks[p.idx+1].text == ":" {
		binding = p.advance().text
		p.advance() // ':'
	}

	typeName, err := p.expectIdent()
	if err != nil {
		return Condition{}, err
	}

	if err := p.checkKnownType(typeName); err != nil {
		return Condition{}, err
	}

	if p.isPunct(".") {
		p.advance()
		field, err := p.expectIdent()
		if err != nil {
			return Condition{}, err
		}
		op, err := p.parseOp()
		if err != nil {
			return Condition{}, err
		}
		ft, err := p.parseFieldTestValue(field, op)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Kind: CondPattern, Binding: binding, Type: typeName, FieldTests: []FieldTest{ft}}, nil
	}

	if err := p.expectPunct("("); err != nil {
		return Condition{}, err
	}
	cond, err := p.parseFieldTestList(typeName, binding)
	if err != nil {
		return Condition{}, err
	}
	if err := p.expectPunct(")"); err != nil {
		return Condition{}, err
	}
	return cond, nil
}

// checkKnownType enforces WithStrictTemplates: a pattern referencing an
// undeclared fact type fails at parse time rather than at first insert.
func (p *parser) checkKnownType(typeName string) error {
	if !p.strictTemplates {
		return nil
	}
	if p.knownTypes[typeName] {
		return nil
	}
	return rerr.At(rerr.Schema, p.pos(), "unknown fact type %q (strict_templates is enabled)", typeName)
}

// parsePatternBody is like parsePattern but used inside exists/not/forall,
// which wrap a bare pattern in parens one level up (already consumed).
func (p *parser) parsePatternBody() (Condition, error) {
	return p.parsePattern()
}

func (p *parser) parseFieldTestList(typeName, binding string) (Condition, error) {
	cond := Condition{Kind: CondPattern, Binding: binding, Type: typeName}
	if p.isPunct(")") {
		return cond, nil
	}
	for {
		field, err := p.expectIdent()
		if err != nil {
			return Condition{}, err
		}
		op, err := p.parseOp()
		if err != nil {
			return Condition{}, err
		}
		ft, err := p.parseFieldTestValue(field, op)
		if err != nil {
			return Condition{}, err
		}
		cond.FieldTests = append(cond.FieldTests, ft)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return cond, nil
}

func (p *parser) parseFieldTestValue(field string, op Op) (FieldTest, error) {
	if p.cur().kind == tokDollarIdent {
		name := p.advance().text
		return FieldTest{Field: field, Op: op, VarRef: name}, nil
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return FieldTest{}, err
	}
	return FieldTest{Field: field, Op: op, Literal: lit}, nil
}

func (p *parser) parseOp() (Op, error) {
	t := p.cur()
	if t.kind != tokPunct {
		return "", p.errorf("expected operator, found %q", t.text)
	}
	switch t.text {
	case "==", "!=", "<", "<=", ">", ">=", "=":
		p.advance()
		if t.text == "=" {
			return OpEq, nil
		}
		return Op(t.text), nil
	default:
		return "", p.errorf("expected comparison operator, found %q", t.text)
	}
}

func (p *parser) parseLiteral() (value.Value, error) {
	t := p.cur()
	switch t.kind {
	case tokString:
		p.advance()
		return value.NewString(t.text), nil
	case tokInt:
		p.advance()
		n, _ := strconv.ParseInt(t.text, 10, 64)
		return value.NewInt(n), nil
	case tokFloat:
		p.advance()
		f, _ := strconv.ParseFloat(t.text, 64)
		return value.NewFloat(f), nil
	case tokIdent:
		switch t.text {
		case "true":
			p.advance()
			return value.NewBool(true), nil
		case "false":
			p.advance()
			return value.NewBool(false), nil
		case "null":
			p.advance()
			return value.NullVal, nil
		}
	}
	return nil, p.errorf("expected literal value, found %q", t.text)
}

// --- Expressions (precedence climbing per §4.2's operator table) ---

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&&") {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

var comparisonOps = map[string]Op{"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tokPunct {
		if op, ok := comparisonOps[p.cur().text]; ok {
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return BinaryExpr{Op: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := Op(p.advance().text)
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") {
		op := Op(p.advance().text)
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isPunct("!") || p.isKeyword("not") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: OpNot, Operand: operand}, nil
	}
	if p.isPunct("-") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: OpSub, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch {
	case p.isPunct("("):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	case t.kind == tokDollarIdent:
		p.advance()
		return VarExpr{Name: t.text}, nil
	case t.kind == tokString, t.kind == tokInt, t.kind == tokFloat:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return LitExpr{Value: lit}, nil
	case t.kind == tokIdent && (t.text == "true" || t.text == "false" || t.text == "null"):
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return LitExpr{Value: lit}, nil
	case t.kind == tokIdent:
		name := p.advance().text
		if p.isPunct(".") {
			p.advance()
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return FieldExpr{Binding: name, Field: field}, nil
		}
		if p.isPunct("(") {
			p.advance()
			var args []Expr
			if !p.isPunct(")") {
				for {
					a, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.isPunct(",") {
						p.advance()
						continue
					}
					break
				}
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return CallExpr{Name: name, Args: args}, nil
		}
		return VarExpr{Name: name}, nil
	default:
		return nil, p.errorf("unexpected token %q in expression", t.text)
	}
}

// --- Actions ---

func (p *parser) parseAction() (Action, error) {
	if p.isKeyword("retract") {
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return Action{}, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return Action{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Action{}, err
		}
		if err := p.expectPunct(";"); err != nil {
			return Action{}, err
		}
		return Action{Kind: ActRetract, RetractBinding: name}, nil
	}

	if p.isKeyword("logical") {
		p.advance()
		return p.parseAssert()
	}

	if p.isKeyword("log") {
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return Action{}, err
		}
		var args []Expr
		if !p.isPunct(")") {
			for {
				a, err := p.parseExpr()
				if err != nil {
					return Action{}, err
				}
				args = append(args, a)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return Action{}, err
		}
		if err := p.expectPunct(";"); err != nil {
			return Action{}, err
		}
		return Action{Kind: ActLog, Args: args}, nil
	}

	name, err := p.expectIdent()
	if err != nil {
		return Action{}, err
	}

	if p.isPunct(".") {
		p.advance()
		field, err := p.expectIdent()
		if err != nil {
			return Action{}, err
		}
		if err := p.expectPunct("="); err != nil {
			return Action{}, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return Action{}, err
		}
		if err := p.expectPunct(";"); err != nil {
			return Action{}, err
		}
		return Action{Kind: ActAssign, Binding: name, Field: field, RHS: rhs}, nil
	}

	if err := p.expectPunct("("); err != nil {
		return Action{}, err
	}
	var args []Expr
	if !p.isPunct(")") {
		for {
			a, err := p.parseExpr()
			if err != nil {
				return Action{}, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return Action{}, err
	}
	if err := p.expectPunct(";"); err != nil {
		return Action{}, err
	}
	return Action{Kind: ActCall, FuncName: name, Args: args}, nil
}

// parseAssert parses `TypeName(field = expr, ...);` following a consumed
// `logical` keyword, asserting a new fact whose liveness is tied to the
// firing token's support (§4.4).
func (p *parser) parseAssert() (Action, error) {
	typeName, err := p.expectIdent()
	if err != nil {
		return Action{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return Action{}, err
	}
	var assigns []FieldAssign
	if !p.isPunct(")") {
		for {
			field, err := p.expectIdent()
			if err != nil {
				return Action{}, err
			}
			if err := p.expectPunct("="); err != nil {
				return Action{}, err
			}
			rhs, err := p.parseExpr()
			if err != nil {
				return Action{}, err
			}
			assigns = append(assigns, FieldAssign{Field: field, RHS: rhs})
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return Action{}, err
	}
	if err := p.expectPunct(";"); err != nil {
		return Action{}, err
	}
	return Action{Kind: ActAssert, FuncName: typeName, Assigns: assigns}, nil
}

// --- Query ---

func (p *parser) parseQuery() (*QueryIR, error) {
	p.advance() // query
	name, err := p.expectString()
	if err != nil {
		return nil, err
	}
	q := &QueryIR{Name: name, Strategy: "depth-first", MaxSolutions: -1, MaxDepth: -1}

	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("goal"); err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	goal, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	q.Goal = goal

	for !p.isPunct("}") {
		switch {
		case p.isKeyword("strategy"):
			p.advance()
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			s, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			for p.isPunct("-") && p.toks[p.idx+1].kind == tokIdent {
				p.advance()
				s += "-" + p.advance().text
			}
			q.Strategy = s
		case p.matchHyphenKeyword("max-depth"):
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			n, err := p.expectInt()
			if err != nil {
				return nil, err
			}
			q.MaxDepth = n
		case p.matchHyphenKeyword("max-solutions"):
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			n, err := p.expectInt()
			if err != nil {
				return nil, err
			}
			q.MaxSolutions = n
		case p.isKeyword("when"):
			p.advance()
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			q.When = e
		case p.atQueryBranchKeyword() != "":
			kw := p.atQueryBranchKeyword()
			p.matchHyphenKeyword(kw)
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			if err := p.expectPunct("{"); err != nil {
				return nil, err
			}
			var actions []Action
			for !p.isPunct("}") {
				a, err := p.parseAction()
				if err != nil {
					return nil, err
				}
				actions = append(actions, a)
			}
			p.advance() // }
			switch kw {
			case "on-success":
				q.OnSuccess = actions
			case "on-failure":
				q.OnFailure = actions
			case "on-missing":
				q.OnMissing = actions
			}
		default:
			return nil, p.errorf("unexpected token %q in query body", p.cur().text)
		}
	}
	p.advance() // }
	return q, nil
}
