package grl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Format renders a RuleIR back to GRL source text. Format(Parse(Format(r)))
// reproduces r's semantics (§8's round-trip property): re-parsing the
// output yields an IR equal to the input modulo attribute ordering, which
// this function fixes to a canonical order (salience, no-loop,
// agenda-group, activation-group).
func Format(r *RuleIR) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rule %q", r.Name)
	if r.Description != "" {
		fmt.Fprintf(&b, " %q", r.Description)
	}
	if r.Salience != 0 {
		fmt.Fprintf(&b, " salience %d", r.Salience)
	}
	if r.NoLoop {
		b.WriteString(" no-loop")
	}
	if r.AgendaGroup != "" {
		fmt.Fprintf(&b, " agenda-group %q", r.AgendaGroup)
	}
	if r.ActivationGroup != "" {
		fmt.Fprintf(&b, " activation-group %q", r.ActivationGroup)
	}
	b.WriteString(" {\n  when\n")
	for _, c := range r.Conditions {
		b.WriteString("    ")
		formatCondition(&b, c)
		b.WriteString("\n")
	}
	b.WriteString("  then\n")
	for _, a := range r.Actions {
		b.WriteString("    ")
		formatAction(&b, a)
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// FormatCondition renders a single condition to GRL-like text. Used by the
// backward-chaining resolver (C5) to build memoization keys and proof-trace
// labels from a goal, reusing the same renderer forward-chaining rules are
// serialized with.
func FormatCondition(c Condition) string {
	var b strings.Builder
	formatCondition(&b, c)
	return b.String()
}

func formatCondition(b *strings.Builder, c Condition) {
	switch c.Kind {
	case CondExists:
		b.WriteString("exists(")
		formatPatternBody(b, c)
		b.WriteString(")")
	case CondNot:
		b.WriteString("not(")
		formatPatternBody(b, c)
		b.WriteString(")")
	case CondForall:
		b.WriteString("forall(")
		formatPatternBody(b, c)
		b.WriteString(")")
	case CondTest:
		b.WriteString("test(")
		formatExpr(b, c.TestExpr)
		b.WriteString(")")
	case CondAccumulate:
		a := c.Accumulate
		fmt.Fprintf(b, "accumulate over %s(", a.Type)
		formatFieldTests(b, a.FieldTests)
		field := a.Field
		fmt.Fprintf(b, ") compute %s(%s) bind $%s", a.Reducer, field, a.BindAs)
	default:
		formatPatternBody(b, c)
	}
}

func formatPatternBody(b *strings.Builder, c Condition) {
	if c.Binding != "" {
		fmt.Fprintf(b, "%s: ", c.Binding)
	}
	fmt.Fprintf(b, "%s(", c.Type)
	formatFieldTests(b, c.FieldTests)
	b.WriteString(")")
}

func formatFieldTests(b *strings.Builder, tests []FieldTest) {
	for i, ft := range tests {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s %s ", ft.Field, ft.Op)
		if ft.VarRef != "" {
			fmt.Fprintf(b, "$%s", ft.VarRef)
		} else {
			b.WriteString(formatLiteral(ft.Literal))
		}
	}
}

func formatLiteral(v value.Value) string {
	if v == nil {
		return "null"
	}
	switch v.Kind() {
	case value.String:
		return strconv.Quote(v.String())
	case value.Float:
		f, _ := v.(value.FloatValue)
		s := strconv.FormatFloat(float64(f), 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	default:
		return v.String()
	}
}

func formatExpr(b *strings.Builder, e Expr) {
	switch v := e.(type) {
	case LitExpr:
		b.WriteString(formatLiteral(v.Value))
	case VarExpr:
		fmt.Fprintf(b, "$%s", v.Name)
	case FieldExpr:
		fmt.Fprintf(b, "%s.%s", v.Binding, v.Field)
	case UnaryExpr:
		if v.Op == OpNot {
			b.WriteString("!")
		} else {
			b.WriteString(string(v.Op))
		}
		formatExpr(b, v.Operand)
	case BinaryExpr:
		b.WriteString("(")
		formatExpr(b, v.Left)
		fmt.Fprintf(b, " %s ", v.Op)
		formatExpr(b, v.Right)
		b.WriteString(")")
	case CallExpr:
		fmt.Fprintf(b, "%s(", v.Name)
		for i, a := range v.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			formatExpr(b, a)
		}
		b.WriteString(")")
	}
}

func formatAction(b *strings.Builder, a Action) {
	switch a.Kind {
	case ActAssign:
		fmt.Fprintf(b, "%s.%s = ", a.Binding, a.Field)
		formatExpr(b, a.RHS)
		b.WriteString(";")
	case ActCall:
		fmt.Fprintf(b, "%s(", a.FuncName)
		for i, arg := range a.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			formatExpr(b, arg)
		}
		b.WriteString(");")
	case ActAssert:
		fmt.Fprintf(b, "logical %s(", a.FuncName)
		for i, fa := range a.Assigns {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s = ", fa.Field)
			formatExpr(b, fa.RHS)
		}
		b.WriteString(");")
	case ActRetract:
		fmt.Fprintf(b, "retract(%s);", a.RetractBinding)
	case ActLog:
		b.WriteString("log(")
		for i, arg := range a.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			formatExpr(b, arg)
		}
		b.WriteString(");")
	}
}
