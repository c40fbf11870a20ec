package network

import (
	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// FuncRegistry resolves a registered function by name for CallExpr evaluation
// inside test conditions (§4.5/§6's register_function hook).
type FuncRegistry interface {
	Call(name string, args []value.Value) (value.Value, error)
}

// MatchFieldTests is the exported form of matchFieldTests, reused by the
// backward-chaining resolver (C5) so goal-directed fact lookup shares the
// exact same pattern-matching semantics as forward propagation rather than
// a second, divergent implementation.
func MatchFieldTests(tests []FieldTest, f *fact.Fact, env *Env) (*Env, bool, error) {
	return matchFieldTests(tests, f, env)
}

// EvalExpr is the exported form of evalExpr, reused by C5 for test-condition
// and rule-expansion expression evaluation.
func EvalExpr(e grl.Expr, env *Env, wm *fact.WorkingMemory, fns FuncRegistry) (value.Value, error) {
	return evalExpr(e, env, wm, fns)
}

// CompareOp is the exported form of compareOp, reused by C5 when unifying a
// rule-expansion's computed field values against a goal's field tests.
func CompareOp(lhs, rhs value.Value, op grl.Op) (bool, error) {
	return compareOp(lhs, rhs, op)
}

// matchFieldTests evaluates every FieldTest of a pattern against a candidate
// fact, given the token environment seen so far. A VarRef not yet bound in
// env *writes* the binding (first occurrence); already-bound VarRefs compare
// (subsequent occurrence), per ast.go's FieldTest doc. Returns the env to use
// for a successful match (a clone with any new bindings applied) or ok=false.
func matchFieldTests(tests []FieldTest, f *fact.Fact, env *Env) (*Env, bool, error) {
	working := env
	cloned := false
	for _, ft := range tests {
		fv, present := f.Get(ft.Field)
		if !present {
			return nil, false, nil
		}
		if ft.VarRef != "" {
			if bound, ok := working.Vars[ft.VarRef]; ok {
				cmp, err := compareOp(fv, bound, ft.Op)
				if err != nil {
					return nil, false, err
				}
				if !cmp {
					return nil, false, nil
				}
				continue
			}
			if !cloned {
				working = working.clone()
				cloned = true
			}
			working.Vars[ft.VarRef] = fv
			continue
		}
		cmp, err := compareOp(fv, ft.Literal, ft.Op)
		if err != nil {
			return nil, false, err
		}
		if !cmp {
			return nil, false, nil
		}
	}
	return working, true, nil
}

// FieldTest mirrors grl.FieldTest; network keeps its own alias so callers
// compiling a condition don't need to reach into grl for this one type.
type FieldTest = grl.FieldTest

func compareOp(lhs, rhs value.Value, op grl.Op) (bool, error) {
	switch op {
	case grl.OpEq:
		return lhs.Equal(rhs), nil
	case grl.OpNe:
		return !lhs.Equal(rhs), nil
	case grl.OpLt, grl.OpLe, grl.OpGt, grl.OpGe:
		c, err := lhs.Compare(rhs)
		if err != nil {
			return false, err
		}
		switch op {
		case grl.OpLt:
			return c < 0, nil
		case grl.OpLe:
			return c <= 0, nil
		case grl.OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	default:
		return false, rerr.New(rerr.TypeErr, "unsupported field-test operator %q", op)
	}
}

// evalExpr evaluates a grl.Expr against a token's environment, resolving
// field accesses through wm and function calls through fns.
func evalExpr(e grl.Expr, env *Env, wm *fact.WorkingMemory, fns FuncRegistry) (value.Value, error) {
	switch x := e.(type) {
	case grl.LitExpr:
		return x.Value, nil
	case grl.VarExpr:
		v, ok := env.Vars[x.Name]
		if !ok {
			return nil, rerr.New(rerr.Reference, "unbound variable $%s", x.Name)
		}
		return v, nil
	case grl.FieldExpr:
		h, ok := env.Handles[x.Binding]
		if !ok {
			return nil, rerr.New(rerr.Reference, "unbound pattern binding %q", x.Binding)
		}
		f, err := wm.Get(h)
		if err != nil {
			return nil, err
		}
		v, ok := f.Get(x.Field)
		if !ok {
			return nil, rerr.New(rerr.Reference, "%s has no field %q", f.Type, x.Field)
		}
		return v, nil
	case grl.UnaryExpr:
		operand, err := evalExpr(x.Operand, env, wm, fns)
		if err != nil {
			return nil, err
		}
		if x.Op == grl.OpNot {
			return value.Not(operand)
		}
		return value.Neg(operand)
	case grl.BinaryExpr:
		return evalBinary(x, env, wm, fns)
	case grl.CallExpr:
		if fns == nil {
			return nil, rerr.New(rerr.Reference, "unknown function %q", x.Name)
		}
		args := make([]value.Value, len(x.Args))
		for i, a := range x.Args {
			v, err := evalExpr(a, env, wm, fns)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fns.Call(x.Name, args)
	default:
		return nil, rerr.New(rerr.TypeErr, "unsupported expression node %T", e)
	}
}

func evalBinary(x grl.BinaryExpr, env *Env, wm *fact.WorkingMemory, fns FuncRegistry) (value.Value, error) {
	switch x.Op {
	case grl.OpAnd:
		l, err := evalExpr(x.Left, env, wm, fns)
		if err != nil {
			return nil, err
		}
		lb, err := value.Truthy(l)
		if err != nil {
			return nil, err
		}
		if !lb {
			return value.NewBool(false), nil
		}
		r, err := evalExpr(x.Right, env, wm, fns)
		if err != nil {
			return nil, err
		}
		rb, err := value.Truthy(r)
		if err != nil {
			return nil, err
		}
		return value.NewBool(rb), nil
	case grl.OpOr:
		l, err := evalExpr(x.Left, env, wm, fns)
		if err != nil {
			return nil, err
		}
		lb, err := value.Truthy(l)
		if err != nil {
			return nil, err
		}
		if lb {
			return value.NewBool(true), nil
		}
		r, err := evalExpr(x.Right, env, wm, fns)
		if err != nil {
			return nil, err
		}
		rb, err := value.Truthy(r)
		if err != nil {
			return nil, err
		}
		return value.NewBool(rb), nil
	}

	l, err := evalExpr(x.Left, env, wm, fns)
	if err != nil {
		return nil, err
	}
	r, err := evalExpr(x.Right, env, wm, fns)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case grl.OpAdd:
		return value.Add(l, r)
	case grl.OpSub:
		return value.Sub(l, r)
	case grl.OpMul:
		return value.Mul(l, r)
	case grl.OpDiv:
		return value.Div(l, r)
	case grl.OpEq, grl.OpNe, grl.OpLt, grl.OpLe, grl.OpGt, grl.OpGe:
		ok, err := compareOp(l, r, x.Op)
		if err != nil {
			return nil, err
		}
		return value.NewBool(ok), nil
	default:
		return nil, rerr.New(rerr.TypeErr, "unsupported binary operator %q", x.Op)
	}
}
