// Package query implements the backward-chaining resolver (C5, §4.5): a
// goal-directed proof engine that reuses the same fact lookup and expression
// evaluation C3 (pkg/rulenet/network) uses for forward propagation, and
// consults the same rule IR (pkg/rulenet/grl) a loaded rule base compiled.
//
// Grounded on the teacher's slg_engine.go (tabling -> per-query memoization)
// and dcg.go (goal expansion over a grammar), enriched by
// theRebelliousNerd-codenerd's proof-tree result shape.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Strategy selects the search order over OR-alternatives (§4.5 p.3).
type Strategy string

const (
	DepthFirst         Strategy = "depth-first"
	BreadthFirst       Strategy = "breadth-first"
	IterativeDeepening Strategy = "iterative-deepening"
)

const defaultMaxDepth = 64

// Resolver performs goal-directed proof over a rule base and a read-only
// view of working memory. A Resolver is built fresh per query() call — its
// memoization and cycle-detection state do not outlive one Solve, per §5's
// "consistent snapshot" requirement (no cross-query tabling).
type Resolver struct {
	wm    *fact.WorkingMemory
	rules []*grl.RuleIR
	fns   network.FuncRegistry
	log   logrus.FieldLogger

	strategy     Strategy
	maxDepth     int
	maxSolutions int
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithStrategy(s Strategy) Option     { return func(r *Resolver) { r.strategy = s } }
func WithMaxDepth(n int) Option          { return func(r *Resolver) { r.maxDepth = n } }
func WithMaxSolutions(n int) Option      { return func(r *Resolver) { r.maxSolutions = n } }
func WithFunctions(f network.FuncRegistry) Option { return func(r *Resolver) { r.fns = f } }
func WithLogger(l logrus.FieldLogger) Option { return func(r *Resolver) { r.log = l } }

// New builds a Resolver over wm (read-only for the duration of Solve) and
// rules (the rule base consulted for goal expansion). Defaults to
// depth-first search, a depth cap of 64, and one solution.
func New(wm *fact.WorkingMemory, rules []*grl.RuleIR, opts ...Option) *Resolver {
	r := &Resolver{
		wm:           wm,
		rules:        rules,
		strategy:     DepthFirst,
		maxDepth:     defaultMaxDepth,
		maxSolutions: 1,
		log:          logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// proofState carries the per-Solve cycle stack, memo table, and missing-fact
// accumulator threaded through the whole recursive proof (§4.5 p.3-4).
type proofState struct {
	cycle   map[string]bool
	memo    map[string][]Solution
	missing map[string]bool
}

// Solve attempts to prove goal under env, returning every satisfying
// environment (up to maxSolutions) along with a proof trace. goal is any
// single condition — typically a CondPattern, but Not/Exists/Forall/Test/
// Accumulate are all valid top-level goals, matching §4.5 p.6's negation and
// aggregation extensions.
func (r *Resolver) Solve(ctx context.Context, goal grl.Condition, env *network.Env) (*Result, error) {
	if env == nil {
		env = network.NewEnv()
	}
	st := &proofState{cycle: map[string]bool{}, memo: map[string][]Solution{}, missing: map[string]bool{}}

	var sols []Solution
	var proof *ProofNode
	var err error

	switch r.strategy {
	case IterativeDeepening:
		for depth := 1; depth <= r.maxDepth; depth++ {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, rerr.Wrap(rerr.Cancelled, ctxErr, "query cancelled")
			}
			st = &proofState{cycle: map[string]bool{}, memo: map[string][]Solution{}, missing: map[string]bool{}}
			sols, proof, err = r.prove(ctx, st, goal, env, depth)
			if err != nil {
				return nil, err
			}
			if len(sols) > 0 {
				break
			}
		}
	default:
		sols, proof, err = r.prove(ctx, st, goal, env, r.maxDepth)
	}
	if err != nil {
		return nil, err
	}

	bindings := make([]*network.Env, len(sols))
	for i, s := range sols {
		bindings[i] = s.Env
	}
	missing := make([]string, 0, len(st.missing))
	for m := range st.missing {
		missing = append(missing, m)
	}
	sort.Strings(missing)

	return &Result{Success: len(sols) > 0, Bindings: bindings, MissingFacts: missing, Proof: proof}, nil
}

// prove dispatches a single goal to its condition-kind evaluator, enforcing
// the cycle stack and per-goal memoization (§4.5 p.3-4) around every call.
func (r *Resolver) prove(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, depthBudget int) ([]Solution, *ProofNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, rerr.Wrap(rerr.Cancelled, err, "query cancelled")
	}

	label := goalLabel(goal)
	if depthBudget <= 0 {
		return nil, leaf(label, "depth-exceeded", false), nil
	}

	key := memoKey(goal, env)
	if st.cycle[key] {
		return nil, leaf(label, "cycle", false), nil
	}
	if cached, ok := st.memo[key]; ok {
		return cached, branch(label, "memo", len(cached) > 0), nil
	}

	st.cycle[key] = true
	defer delete(st.cycle, key)

	var sols []Solution
	var proof *ProofNode
	var err error

	switch goal.Kind {
	case grl.CondPattern:
		sols, proof, err = r.proveOr(ctx, st, goal, env, depthBudget)
	case grl.CondNot:
		sols, proof, err = r.proveNot(ctx, st, goal, env, depthBudget)
	case grl.CondExists:
		sols, proof, err = r.proveExists(ctx, st, goal, env, depthBudget)
	case grl.CondForall:
		sols, proof, err = r.proveForall(goal, env)
	case grl.CondTest:
		sols, proof, err = r.proveTest(goal, env)
	case grl.CondAccumulate:
		sols, proof, err = r.proveAccumulate(goal, env)
	default:
		return nil, nil, rerr.New(rerr.TypeErr, "unsupported goal kind %d", goal.Kind)
	}
	if err != nil {
		return nil, nil, err
	}

	if r.maxSolutions > 0 && len(sols) > r.maxSolutions {
		sols = sols[:r.maxSolutions]
	}
	st.memo[key] = sols
	return sols, proof, nil
}

// proveOr is the OR-node of the proof: it unions direct fact matches
// (§4.5 p.1) with every applicable rule expansion (§4.5 p.2), exploring the
// alternatives sequentially (depth-first / iterative-deepening) or
// concurrently (breadth-first, via errgroup — the one place this package
// parallelizes, per SPEC_FULL.md §5: each branch only reads wm, the owner
// merges results).
func (r *Resolver) proveOr(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, depthBudget int) ([]Solution, *ProofNode, error) {
	label := goalLabel(goal)

	factSols, err := r.proveFacts(goal, env)
	if err != nil {
		return nil, nil, err
	}

	providers := providingRules(r.rules, goal.Type)

	var ruleSols []Solution
	var ruleProofs []*ProofNode
	if len(providers) > 0 {
		switch r.strategy {
		case BreadthFirst:
			ruleSols, ruleProofs, err = r.expandRulesConcurrently(ctx, st, goal, env, providers, depthBudget)
		default:
			ruleSols, ruleProofs, err = r.expandRulesSequentially(ctx, st, goal, env, providers, depthBudget)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	all := append(factSols, ruleSols...)
	children := make([]*ProofNode, 0, len(all)+len(ruleProofs))
	for _, s := range factSols {
		children = append(children, s.Proof)
	}
	children = append(children, ruleProofs...)

	if len(all) == 0 {
		st.missing[label] = true
		return nil, branch(label, "missing", false, children...), nil
	}
	return all, branch(label, "pattern", true, children...), nil
}

// proveFacts unifies goal against every live fact of its type, using the
// same indexed Candidates scan C3 uses (§4.5 p.1).
func (r *Resolver) proveFacts(goal grl.Condition, env *network.Env) ([]Solution, error) {
	var sols []Solution
	for _, f := range network.Candidates(r.wm, goal.Type, goal.FieldTests) {
		matched, ok, err := network.MatchFieldTests(goal.FieldTests, f, env)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out := matched
		if goal.Binding != "" {
			out = matched.Clone()
			out.Handles[goal.Binding] = f.Handle
		}
		sols = append(sols, Solution{Env: out, Proof: leaf(fmt.Sprintf("%s%s", goal.Type, f.Handle), "fact", true)})
		if r.maxSolutions > 0 && len(sols) >= r.maxSolutions {
			break
		}
	}
	return sols, nil
}

// expandRulesSequentially tries each providing rule in declaration order,
// stopping once maxSolutions solutions have accumulated.
func (r *Resolver) expandRulesSequentially(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, providers []ruleProvider, depthBudget int) ([]Solution, []*ProofNode, error) {
	var sols []Solution
	var proofs []*ProofNode
	for _, p := range providers {
		s, proof, err := r.expandRule(ctx, st, goal, env, p, depthBudget)
		if err != nil {
			return nil, nil, err
		}
		sols = append(sols, s...)
		proofs = append(proofs, proof)
		if r.maxSolutions > 0 && len(sols) >= r.maxSolutions {
			break
		}
	}
	return sols, proofs, nil
}

// expandRulesConcurrently explores every providing rule's conjunctive body
// in its own goroutine via errgroup, each one only reading wm through this
// Resolver's receiver (no mutation, preserving §5's single-owner
// discipline); the caller merges results once every branch returns.
func (r *Resolver) expandRulesConcurrently(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, providers []ruleProvider, depthBudget int) ([]Solution, []*ProofNode, error) {
	results := make([][]Solution, len(providers))
	proofs := make([]*ProofNode, len(providers))
	locals := make([]*proofState, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		local := &proofState{cycle: map[string]bool{}, memo: map[string][]Solution{}, missing: map[string]bool{}}
		for k := range st.cycle {
			local.cycle[k] = true
		}
		for k, v := range st.memo {
			local.memo[k] = v
		}
		locals[i] = local
		g.Go(func() error {
			s, proof, err := r.expandRule(gctx, local, goal, env.Clone(), p, depthBudget)
			if err != nil {
				return err
			}
			results[i] = s
			proofs[i] = proof
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for _, l := range locals {
		for m := range l.missing {
			st.missing[m] = true
		}
	}

	var sols []Solution
	for _, s := range results {
		sols = append(sols, s...)
	}
	return sols, proofs, nil
}

// ruleProvider pairs a rule with the assert action that would establish the
// goal's fact type, per §4.5 p.2's "action-head unifies with the goal".
type ruleProvider struct {
	rule   *grl.RuleIR
	assert grl.Action
}

func providingRules(rules []*grl.RuleIR, goalType string) []ruleProvider {
	var out []ruleProvider
	for _, rule := range rules {
		for _, a := range rule.Actions {
			if a.Kind == grl.ActAssert && a.FuncName == goalType {
				out = append(out, ruleProvider{rule: rule, assert: a})
			}
		}
	}
	return out
}

// expandRule recurses on every condition of p.rule as a conjunctive set of
// sub-goals, then — for each surviving environment — evaluates the assert
// action's field expressions and unifies the result against goal's own
// field tests, binding any still-free $var in the process.
//
// The resolver never writes these tentative facts into working memory: this
// implementation's proof search is read-only throughout, so no speculative
// WM undo frame (§4.5 p.5) is needed — the "on-success" actions §4.5
// describes as the only visible side effect are applied by the caller
// (engine.Engine.Query) once a top-level proof is already confirmed, per
// "only confirmed, top-level proofs' side effects become visible" (see
// DESIGN.md).
func (r *Resolver) expandRule(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, p ruleProvider, depthBudget int) ([]Solution, *ProofNode, error) {
	bodyEnvs, bodyProofs, err := r.proveConjunction(ctx, st, p.rule.Conditions, env, depthBudget-1)
	if err != nil {
		return nil, nil, err
	}

	var sols []Solution
	for _, be := range bodyEnvs {
		fields := make(map[string]value.Value, len(p.assert.Assigns))
		for _, fa := range p.assert.Assigns {
			v, err := network.EvalExpr(fa.RHS, be, r.wm, r.fns)
			if err != nil {
				return nil, nil, err
			}
			fields[fa.Field] = v
		}

		out, ok, err := unifyFieldTests(goal.FieldTests, fields, be)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		sols = append(sols, Solution{Env: out, Proof: branch(goalLabel(goal), "rule:"+p.rule.Name, true, bodyProofs...)})
		if r.maxSolutions > 0 && len(sols) >= r.maxSolutions {
			break
		}
	}
	ok := len(sols) > 0
	return sols, branch(goalLabel(goal), "rule:"+p.rule.Name, ok, bodyProofs...), nil
}

// proveConjunction proves every condition in order, threading each
// resulting environment into the next (the same left-to-right join shape
// C3's stage pipeline uses for forward chaining), branching across each
// condition's alternative solutions.
func (r *Resolver) proveConjunction(ctx context.Context, st *proofState, conds []grl.Condition, env *network.Env, depthBudget int) ([]*network.Env, []*ProofNode, error) {
	envs := []*network.Env{env}
	var proofs []*ProofNode
	for _, c := range conds {
		var next []*network.Env
		anySucceeded := false
		for _, e := range envs {
			sols, proof, err := r.prove(ctx, st, c, e, depthBudget)
			if err != nil {
				return nil, nil, err
			}
			proofs = append(proofs, proof)
			if len(sols) > 0 {
				anySucceeded = true
			}
			for _, s := range sols {
				next = append(next, s.Env)
			}
		}
		envs = next
		if !anySucceeded {
			return nil, proofs, nil
		}
	}
	return envs, proofs, nil
}

// proveNot succeeds (with the original environment, no new bindings) iff
// the embedded pattern goal has no proof under env — closed-world negation
// (§4.5 p.6).
func (r *Resolver) proveNot(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, depthBudget int) ([]Solution, *ProofNode, error) {
	inner := grl.Condition{Kind: grl.CondPattern, Type: goal.Type, FieldTests: goal.FieldTests}
	sols, innerProof, err := r.prove(ctx, st, inner, env, depthBudget-1)
	if err != nil {
		return nil, nil, err
	}
	ok := len(sols) == 0
	label := goalLabel(goal)
	if !ok {
		return nil, branch(label, "negation", false, innerProof), nil
	}
	return []Solution{{Env: env, Proof: branch(label, "negation", true, innerProof)}}, branch(label, "negation", true, innerProof), nil
}

// proveExists succeeds on the first proof of the embedded pattern, binding
// goal.Binding to the matched handle if one was produced.
func (r *Resolver) proveExists(ctx context.Context, st *proofState, goal grl.Condition, env *network.Env, depthBudget int) ([]Solution, *ProofNode, error) {
	inner := grl.Condition{Kind: grl.CondPattern, Binding: goal.Binding, Type: goal.Type, FieldTests: goal.FieldTests}
	sols, innerProof, err := r.prove(ctx, st, inner, env, depthBudget-1)
	if err != nil {
		return nil, nil, err
	}
	label := goalLabel(goal)
	if len(sols) == 0 {
		return nil, branch(label, "exists", false, innerProof), nil
	}
	return sols[:1], branch(label, "exists", true, innerProof), nil
}

// proveForall succeeds iff every live fact matching goal's type and field
// tests also satisfies the embedded ForallTest, consistent with C3's
// stage.go applyForall (facts only — a forall never recurses into rule
// expansion, per §4.3's node contract it mirrors).
func (r *Resolver) proveForall(goal grl.Condition, env *network.Env) ([]Solution, *ProofNode, error) {
	label := goalLabel(goal)
	for _, f := range network.Candidates(r.wm, goal.Type, goal.FieldTests) {
		matched, ok, err := network.MatchFieldTests(goal.FieldTests, f, env)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if goal.ForallTest == nil {
			continue
		}
		v, err := network.EvalExpr(goal.ForallTest, matched, r.wm, r.fns)
		if err != nil {
			return nil, nil, err
		}
		truthy, err := value.Truthy(v)
		if err != nil {
			return nil, nil, err
		}
		if !truthy {
			return nil, leaf(label, "forall", false), nil
		}
	}
	return []Solution{{Env: env, Proof: leaf(label, "forall", true)}}, leaf(label, "forall", true), nil
}

// proveTest evaluates an arbitrary boolean expression over the current
// bindings (§4.5's test conditions), succeeding without growing env.
func (r *Resolver) proveTest(goal grl.Condition, env *network.Env) ([]Solution, *ProofNode, error) {
	label := goalLabel(goal)
	v, err := network.EvalExpr(goal.TestExpr, env, r.wm, r.fns)
	if err != nil {
		return nil, nil, err
	}
	truthy, err := value.Truthy(v)
	if err != nil {
		return nil, nil, err
	}
	if !truthy {
		return nil, leaf(label, "test", false), nil
	}
	return []Solution{{Env: env, Proof: leaf(label, "test", true)}}, leaf(label, "test", true), nil
}

// proveAccumulate enumerates every fact matching the inner goal and reduces
// it with C3's aggregate reducer, binding the result to BindAs (§4.5 p.6).
func (r *Resolver) proveAccumulate(goal grl.Condition, env *network.Env) ([]Solution, *ProofNode, error) {
	spec := goal.Accumulate
	label := goalLabel(goal)

	var matched []*fact.Fact
	for _, f := range network.Candidates(r.wm, spec.Type, spec.FieldTests) {
		_, ok, err := network.MatchFieldTests(spec.FieldTests, f, env)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			matched = append(matched, f)
		}
	}

	result, err := network.ReduceAccumulate(spec, matched)
	if err != nil {
		return nil, nil, err
	}
	out := env.Clone()
	out.Vars[spec.BindAs] = result
	return []Solution{{Env: out, Proof: leaf(label, "accumulate", true)}}, leaf(label, "accumulate", true), nil
}

// unifyFieldTests checks a rule-expansion's computed field values against
// goal's own field tests, binding any still-free $var as it goes — the
// rule-expansion analogue of network.MatchFieldTests, operating on a plain
// value map instead of a stored *fact.Fact since the derived "fact" here is
// only ever hypothetical.
func unifyFieldTests(tests []grl.FieldTest, fields map[string]value.Value, env *network.Env) (*network.Env, bool, error) {
	out := env
	cloned := false
	for _, ft := range tests {
		fv, ok := fields[ft.Field]
		if !ok {
			return nil, false, nil
		}
		if ft.VarRef != "" {
			if bound, ok := out.Vars[ft.VarRef]; ok {
				cmp, err := network.CompareOp(fv, bound, ft.Op)
				if err != nil {
					return nil, false, err
				}
				if !cmp {
					return nil, false, nil
				}
				continue
			}
			if !cloned {
				out = out.Clone()
				cloned = true
			}
			out.Vars[ft.VarRef] = fv
			continue
		}
		cmp, err := network.CompareOp(fv, ft.Literal, ft.Op)
		if err != nil {
			return nil, false, err
		}
		if !cmp {
			return nil, false, nil
		}
	}
	return out, true, nil
}

// goalLabel renders a goal for proof traces and missing_facts entries.
func goalLabel(c grl.Condition) string { return grl.FormatCondition(c) }

// memoKey renders (normalized goal, binding restricted to its free
// variables) per §4.5 p.4: the goal text plus the current value of every
// $var the goal's own field tests reference, sorted for determinism.
func memoKey(goal grl.Condition, env *network.Env) string {
	var b strings.Builder
	b.WriteString(goalLabel(goal))

	var vars []string
	for _, ft := range fieldTestsOf(goal) {
		if ft.VarRef != "" {
			vars = append(vars, ft.VarRef)
		}
	}
	sort.Strings(vars)
	for _, v := range vars {
		if bound, ok := env.Vars[v]; ok {
			fmt.Fprintf(&b, "|%s=%s", v, bound.String())
		}
	}
	return b.String()
}

func fieldTestsOf(c grl.Condition) []grl.FieldTest {
	if c.Kind == grl.CondAccumulate && c.Accumulate != nil {
		return c.Accumulate.FieldTests
	}
	return c.FieldTests
}
