package engine

import (
	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Function is a pure, value-returning callable usable inside test
// conditions and rvalue expressions (§6's register_function).
type Function func(args []value.Value) (value.Value, error)

// ActionFunc is a statement-level callable with access to working memory,
// used by `then`-block calls that mutate state directly (§6's
// register_action). The plugin subsystem that supplies concrete string/
// math/date/validation/collection actions is out of scope (§1); this
// registry is the interface boundary the engine calls through.
type ActionFunc func(wm *fact.WorkingMemory, args []value.Value) (value.Value, error)

// registry implements network.FuncRegistry for expression evaluation and
// additionally resolves statement-level actions, matching the two distinct
// registration hooks §6 names.
type registry struct {
	functions map[string]Function
	actions   map[string]ActionFunc
}

func newRegistry() *registry {
	return &registry{functions: map[string]Function{}, actions: map[string]ActionFunc{}}
}

func (r *registry) RegisterFunction(name string, fn Function) { r.functions[name] = fn }
func (r *registry) RegisterAction(name string, fn ActionFunc)  { r.actions[name] = fn }

// Call implements network.FuncRegistry and query's matching interface for
// CallExpr nodes inside test conditions and rvalues.
func (r *registry) Call(name string, args []value.Value) (value.Value, error) {
	fn, ok := r.functions[name]
	if !ok {
		return nil, rerr.New(rerr.Reference, "unknown function %q", name)
	}
	return fn(args)
}

// CallAction invokes a registered action by name, giving it mutable access
// to wm for the duration of the call only (§5's "shared resources" rule).
func (r *registry) CallAction(wm *fact.WorkingMemory, name string, args []value.Value) (value.Value, error) {
	fn, ok := r.actions[name]
	if !ok {
		return nil, rerr.New(rerr.Reference, "unknown action %q", name)
	}
	return fn(wm, args)
}
