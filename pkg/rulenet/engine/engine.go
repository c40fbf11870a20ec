// Package engine composes the typed working memory (C1), GRL parser (C2),
// discrimination network (C3), agenda/TMS (C4), and backward-chaining
// resolver (C5) behind one facade, mirroring the teacher's high-level API
// pattern of a single entry-point struct wiring together otherwise
// independent subsystems.
package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/internal/rlog"
	"github.com/ruleforge/rulenet/pkg/rulenet/agenda"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
	"github.com/ruleforge/rulenet/pkg/rulenet/query"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Engine is the single owning handle onto a rule session: one working
// memory, one discrimination network, one agenda, one TMS, and one function
// registry, all created together by New and mutated only from the calling
// goroutine (§5's single-owner rule; the sole sanctioned concurrency is the
// errgroup fan-out the backward-chaining resolver uses for breadth-first
// rule expansion, which never touches wm/net/ag itself).
type Engine struct {
	ID uuid.UUID

	log             logrus.FieldLogger
	tuning          fact.IndexTuning
	defaultStrategy string
	strictTemplates bool

	wm       *fact.WorkingMemory
	net      *network.Network
	ag       *agenda.Agenda
	tms      *agenda.TMS
	registry *registry

	mu        sync.Mutex // guards ruleIR/ruleOrder/queries against concurrent Query/AddRules calls
	ruleIR    map[string]*grl.RuleIR
	ruleOrder []string
	queries   map[string]*grl.QueryIR

	globals map[string]value.Value

	fireCounts map[string]int
	fireErrors map[string]int
}

// New constructs a ready-to-use Engine. Rules and queries are added
// afterward via AddRules; templates via DefineTemplate/LoadTemplates.
func New(opts ...Option) *Engine {
	e := &Engine{
		ID:              uuid.New(),
		log:             rlog.Discard(),
		tuning:          fact.IndexTuning{PromoteAfterQueries: 100, PromoteSelectivity: 0.1, DemoteAfterIdle: 1000},
		defaultStrategy: "lex",
		ruleIR:          map[string]*grl.RuleIR{},
		queries:         map[string]*grl.QueryIR{},
		globals:         map[string]value.Value{},
		fireCounts:      map[string]int{},
		fireErrors:      map[string]int{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wm = fact.NewWithTuning(e.tuning)
	e.registry = newRegistry()
	e.tms = agenda.NewTMS(e.wm)
	e.ag = agenda.New(e.defaultStrategy, &ruleExecutor{eng: e})
	sink := &engineSink{agenda: e.ag, tms: e.tms, log: e.log}
	e.net = network.New(e.wm, e.registry, sink, e.log)
	e.wm.Subscribe(e.net)
	return e
}

func (e *Engine) recordFire(rule string, err error) {
	e.fireCounts[rule]++
	if err != nil {
		e.fireErrors[rule]++
	}
}

// --- rule / query loading (§6 add_rules, remove_rule, clear_rules) ---

// AddRules parses source as a GRL program and installs every rule and query
// it defines. Installation is all-or-nothing: a parse or schema error
// leaves the engine's existing rule set untouched.
func (e *Engine) AddRules(source string) error {
	var popts []grl.Option
	if e.strictTemplates {
		popts = append(popts, grl.WithStrictTemplates(e.wm.TemplateTypes()))
	}
	prog, err := grl.Parse(source, popts...)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range prog.Rules {
		if err := e.net.AddRule(r); err != nil {
			return err
		}
		if _, exists := e.ruleIR[r.Name]; !exists {
			e.ruleOrder = append(e.ruleOrder, r.Name)
		}
		e.ruleIR[r.Name] = r
	}
	for _, q := range prog.Queries {
		e.queries[q.Name] = q
	}
	return nil
}

// RemoveRule retracts rule name from the network and forgets its IR. A
// no-op if the name is unknown.
func (e *Engine) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.net.RemoveRule(name)
	delete(e.ruleIR, name)
	for i, n := range e.ruleOrder {
		if n == name {
			e.ruleOrder = append(e.ruleOrder[:i], e.ruleOrder[i+1:]...)
			break
		}
	}
}

// ClearRules removes every installed rule, leaving queries and working
// memory untouched.
func (e *Engine) ClearRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.net.ClearRules()
	e.ruleIR = map[string]*grl.RuleIR{}
	e.ruleOrder = nil
}

// RuleNames reports installed rule names in the order they were added.
func (e *Engine) RuleNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.ruleOrder))
	copy(out, e.ruleOrder)
	return out
}

func (e *Engine) rulesSnapshot() []*grl.RuleIR {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*grl.RuleIR, 0, len(e.ruleOrder))
	for _, n := range e.ruleOrder {
		out = append(out, e.ruleIR[n])
	}
	return out
}

// --- templates ---

// DefineTemplate registers a fact-shape template directly, as an
// alternative to LoadTemplates' bulk YAML form.
func (e *Engine) DefineTemplate(t *fact.Template) { e.wm.DefineTemplate(t) }

// --- working memory passthroughs (§6) ---

func (e *Engine) Insert(factType string, fields map[string]value.Value) (fact.Handle, error) {
	return e.wm.Insert(factType, fields)
}

func (e *Engine) Update(h fact.Handle, fields map[string]value.Value) error {
	return e.wm.Update(h, fields)
}

func (e *Engine) Retract(h fact.Handle) error { return e.wm.Retract(h) }

func (e *Engine) Get(h fact.Handle) (*fact.Fact, error) { return e.wm.Get(h) }

func (e *Engine) IterType(factType string, fn func(*fact.Fact)) { e.wm.IterType(factType, fn) }

func (e *Engine) Snapshot() []*fact.Fact { return e.wm.Snapshot() }

func (e *Engine) Count(factType string) int { return e.wm.Count(factType) }

// --- globals (§6 define_global / get_global / set_global) ---

func (e *Engine) DefineGlobal(name string, v value.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = v
}

func (e *Engine) Global(name string) (value.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.globals[name]
	return v, ok
}

func (e *Engine) SetGlobal(name string, v value.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = v
}

// IncrementGlobal adds delta to a numeric global, creating it at delta if
// absent. Used by rule actions that tally counters across firings.
func (e *Engine) IncrementGlobal(name string, delta value.Value) (value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.globals[name]
	if !ok {
		e.globals[name] = delta
		return delta, nil
	}
	sum, err := value.Add(cur, delta)
	if err != nil {
		return nil, err
	}
	e.globals[name] = sum
	return sum, nil
}

// --- function / action registry ---

func (e *Engine) RegisterFunction(name string, fn Function) { e.registry.RegisterFunction(name, fn) }
func (e *Engine) RegisterAction(name string, fn ActionFunc)  { e.registry.RegisterAction(name, fn) }

// --- execution (§6 run / run_n / set_focus / pop_focus / set_strategy) ---

// Run drains the agenda to quiescence: recompute, fire the highest-priority
// eligible activation, repeat, until no eligible activation remains or ctx
// is cancelled. It returns the number of rules fired.
func (e *Engine) Run(ctx context.Context) (int, error) {
	return e.ag.Run(ctx, e.net.Recompute)
}

// RunN fires at most n activations, under the same rules as Run.
func (e *Engine) RunN(ctx context.Context, n int) (int, error) {
	return e.ag.RunN(ctx, n, e.net.Recompute)
}

func (e *Engine) SetFocus(group string) { e.ag.SetFocus(group) }
func (e *Engine) PopFocus()             { e.ag.PopFocus() }
func (e *Engine) SetStrategy(name string) { e.ag.SetStrategy(name) }

func (e *Engine) PendingCount() int { return e.ag.PendingCount() }
func (e *Engine) FiredCount() int   { return e.ag.FiredCount() }

// --- backward-chaining queries (§4.5 / §6) ---

// Query runs the named, pre-parsed query against the current state of
// working memory and the currently installed rules, applying its
// on_success/on_failure/on_missing actions once the top-level proof search
// concludes. Only a confirmed, top-level result's side effects become
// visible; intermediate hypothetical rule-body evaluation performed during
// search never touches working memory.
func (e *Engine) Query(ctx context.Context, name string, env *network.Env) (*query.Result, error) {
	e.mu.Lock()
	q, ok := e.queries[name]
	e.mu.Unlock()
	if !ok {
		return nil, rerr.New(rerr.Reference, "unknown query %q", name)
	}
	return e.RunQuery(ctx, q, env)
}

// RunQuery is Query's form for a caller-supplied, unregistered QueryIR
// (e.g. one built directly by an embedding application rather than parsed
// from a `query { ... }` block).
func (e *Engine) RunQuery(ctx context.Context, q *grl.QueryIR, env *network.Env) (*query.Result, error) {
	if env == nil {
		env = network.NewEnv()
	}

	if q.When != nil {
		guard, err := network.EvalExpr(q.When, env, e.wm, e.registry)
		if err != nil {
			return nil, err
		}
		if b, ok := guard.(value.BoolValue); ok && !bool(b) {
			return &query.Result{Success: false}, nil
		}
	}

	strategy := query.DepthFirst
	switch q.Strategy {
	case "breadth-first":
		strategy = query.BreadthFirst
	case "iterative-deepening":
		strategy = query.IterativeDeepening
	}

	ropts := []query.Option{
		query.WithStrategy(strategy),
		query.WithFunctions(e.registry),
		query.WithLogger(e.log),
	}
	if q.MaxDepth > 0 {
		ropts = append(ropts, query.WithMaxDepth(q.MaxDepth))
	}
	if q.MaxSolutions > 0 {
		ropts = append(ropts, query.WithMaxSolutions(q.MaxSolutions))
	}
	r := query.New(e.wm, e.rulesSnapshot(), ropts...)

	result, err := r.Solve(ctx, q.Goal, env)
	if err != nil {
		return nil, err
	}

	actions := q.OnFailure
	switch {
	case result.Success:
		actions = q.OnSuccess
	case len(result.MissingFacts) > 0 && len(q.OnMissing) > 0:
		actions = q.OnMissing
	}
	owner := "query/" + q.Name
	for _, a := range actions {
		var actEnv *network.Env
		if len(result.Bindings) > 0 {
			actEnv = result.Bindings[0]
		} else {
			actEnv = env
		}
		if err := e.applyAction(a, actEnv, owner); err != nil {
			e.log.WithError(err).WithField("query", q.Name).Warn("query action failed")
			break
		}
	}
	return result, nil
}
