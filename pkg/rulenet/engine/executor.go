package engine

import (
	"context"
	"strings"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// ruleExecutor implements agenda.Executor, firing one activation's actions
// in order and committing each action's WM effects before the next runs
// (§4.4). An action error aborts the remaining actions of this firing only
// — other activations still proceed — per §7's action-error policy.
type ruleExecutor struct {
	eng *Engine
}

func (x *ruleExecutor) Fire(ctx context.Context, act network.Activation) error {
	if err := ctx.Err(); err != nil {
		return rerr.Wrap(rerr.Cancelled, err, "fire cancelled")
	}

	owner := act.ID()
	var fireErr error
	for _, a := range act.Rule.Actions {
		if err := x.eng.applyAction(a, act.Token.Env, owner); err != nil {
			fireErr = err
			x.eng.log.WithError(err).WithField("rule", act.Rule.Name).Warn("action failed; remaining actions of this firing skipped")
			break
		}
	}
	x.eng.recordFire(act.Rule.Name, fireErr)
	return nil
}

// applyAction executes one RHS statement against working memory, resolving
// bound handles and $variables through env exactly as C3's expression
// evaluator does for test conditions.
func (e *Engine) applyAction(a grl.Action, env *network.Env, owner string) error {
	switch a.Kind {
	case grl.ActAssign:
		return e.applyAssign(a, env)
	case grl.ActCall:
		return e.applyCall(a, env)
	case grl.ActRetract:
		h, ok := env.Handles[a.RetractBinding]
		if !ok {
			return rerr.New(rerr.Reference, "unbound pattern binding %q", a.RetractBinding)
		}
		return e.wm.Retract(h)
	case grl.ActLog:
		return e.applyLog(a, env)
	case grl.ActAssert:
		return e.applyAssert(a, env, owner)
	default:
		return rerr.New(rerr.TypeErr, "unsupported action kind %d", a.Kind)
	}
}

func (e *Engine) applyAssign(a grl.Action, env *network.Env) error {
	h, ok := env.Handles[a.Binding]
	if !ok {
		return rerr.New(rerr.Reference, "unbound pattern binding %q", a.Binding)
	}
	f, err := e.wm.Get(h)
	if err != nil {
		return err
	}
	v, err := network.EvalExpr(a.RHS, env, e.wm, e.registry)
	if err != nil {
		return err
	}
	fields := make(map[string]value.Value, len(f.Fields)+1)
	for k, fv := range f.Fields {
		fields[k] = fv
	}
	fields[a.Field] = v
	return e.wm.Update(h, fields)
}

func (e *Engine) applyCall(a grl.Action, env *network.Env) error {
	args, err := evalArgs(a.Args, env, e.wm, e.registry)
	if err != nil {
		return err
	}
	_, err = e.registry.CallAction(e.wm, a.FuncName, args)
	return err
}

func (e *Engine) applyLog(a grl.Action, env *network.Env) error {
	args, err := evalArgs(a.Args, env, e.wm, e.registry)
	if err != nil {
		return err
	}
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = v.String()
	}
	e.log.Info(strings.Join(parts, " "))
	return nil
}

func (e *Engine) applyAssert(a grl.Action, env *network.Env, owner string) error {
	fields := make(map[string]value.Value, len(a.Assigns))
	for _, fa := range a.Assigns {
		v, err := network.EvalExpr(fa.RHS, env, e.wm, e.registry)
		if err != nil {
			return err
		}
		fields[fa.Field] = v
	}
	_, err := e.tms.Assert(owner, a.FuncName, fields)
	return err
}

func evalArgs(exprs []grl.Expr, env *network.Env, wm *fact.WorkingMemory, fns network.FuncRegistry) ([]value.Value, error) {
	args := make([]value.Value, len(exprs))
	for i, ex := range exprs {
		v, err := network.EvalExpr(ex, env, wm, fns)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
