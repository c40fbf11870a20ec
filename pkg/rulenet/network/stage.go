package network

import (
	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// stage is one compiled condition of a rule's `when` block: a node in the
// discrimination network that consumes the tokens produced by the previous
// stage and produces the (possibly empty) set of tokens that satisfy it.
//
// Each pattern-bearing stage (Pattern/Exists/Not/Forall/Accumulate) is
// wired at build time to a shared *AlphaNode (see alpha.go): the node holds
// the incrementally maintained set of facts passing the stage's constant
// filter, plus a beta-memory hash index on whichever join variable the
// stage consults, so a rule recompute serves its candidates from that
// memory instead of rescanning working memory. Stages compiled from
// different rules but testing the same type with the same constant filter
// share one AlphaNode (structural node sharing, §4.3).
type stage struct {
	kind  grl.ConditionKind
	cond  grl.Condition
	accum *grl.AccumulateSpec
	alpha *AlphaNode
}

func compileStage(c grl.Condition) *stage {
	return &stage{kind: c.Kind, cond: c, accum: c.Accumulate}
}

// bindAlpha resolves this stage's shared alpha memory from the network's
// node table. A no-op for Test conditions, which have no fact type.
func (s *stage) bindAlpha(n *Network) {
	typ := s.cond.Type
	tests := s.cond.FieldTests
	if s.kind == CondAccumulate {
		typ = s.accum.Type
		tests = s.accum.FieldTests
	}
	if typ == "" {
		return
	}
	s.alpha = n.alphaNodeFor(typ, tests)
}

// requestIndexes asks the working memory to index any field this stage
// tests for equality against a literal, per §4.1 policy rule 1.
func (s *stage) requestIndexes(wm *fact.WorkingMemory) {
	typ := s.cond.Type
	if s.kind == CondAccumulate {
		typ = s.accum.Type
	}
	if typ == "" {
		return
	}
	tests := s.cond.FieldTests
	if s.kind == CondAccumulate {
		tests = s.accum.FieldTests
	}
	for _, ft := range tests {
		if ft.VarRef == "" && ft.Op == grl.OpEq {
			wm.RequestIndex(typ, ft.Field)
		}
	}
}

// Candidates is the exported form of candidates, reused by C5's goal lookup
// (§4.5 point 1: "using any available C1 index"). Backward chaining has no
// standing rule/stage of its own, so it consults working memory's own
// auto-tuned field index directly rather than C3's shared alpha memories.
func Candidates(wm *fact.WorkingMemory, typ string, tests []FieldTest) []*fact.Fact {
	return candidates(wm, typ, tests)
}

// ReduceAccumulate is the exported form of reduceAccumulate, reused by C5's
// aggregate goals (count/sum/avg/min/max over an enumerated proof set).
func ReduceAccumulate(spec *grl.AccumulateSpec, facts []*fact.Fact) (value.Value, error) {
	return reduceAccumulate(spec, facts)
}

// candidates returns the type's facts worth scanning, using C1's
// equality-literal index when available to avoid a full linear scan,
// falling back to the type's full extension otherwise. Used only by C5;
// C3's stages serve candidates from their bound AlphaNode instead (see
// alpha.go).
func candidates(wm *fact.WorkingMemory, typ string, tests []FieldTest) []*fact.Fact {
	for _, ft := range tests {
		if ft.VarRef == "" && ft.Op == grl.OpEq {
			handles := wm.Lookup(typ, ft.Field, ft.Literal)
			out := make([]*fact.Fact, 0, len(handles))
			for _, h := range handles {
				if f, err := wm.Get(h); err == nil {
					out = append(out, f)
				}
			}
			return out
		}
	}
	var out []*fact.Fact
	wm.IterType(typ, func(f *fact.Fact) { out = append(out, f) })
	return out
}

// apply expands one input token through this stage, returning every
// resulting token (zero for Not when a match exists, zero-or-more for
// Pattern/Exists/Accumulate, exactly one-or-zero for Test/Forall).
func (s *stage) apply(in *Token, wm *fact.WorkingMemory, fns FuncRegistry) ([]*Token, error) {
	switch s.kind {
	case CondPattern:
		return s.applyPattern(in, wm)
	case CondExists:
		return s.applyExists(in, wm)
	case CondNot:
		return s.applyNot(in, wm)
	case CondForall:
		return s.applyForall(in, wm, fns)
	case CondTest:
		return s.applyTest(in, wm, fns)
	case CondAccumulate:
		return s.applyAccumulate(in, wm)
	default:
		return nil, rerr.New(rerr.TypeErr, "unknown condition kind %d", s.kind)
	}
}

func (s *stage) applyPattern(in *Token, wm *fact.WorkingMemory) ([]*Token, error) {
	var out []*Token
	for _, f := range s.alpha.candidates(s.cond.FieldTests, in.Env) {
		env, ok, err := matchFieldTests(s.cond.FieldTests, f, in.Env)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, in.extend(f, s.cond.Binding, env))
	}
	return out, nil
}

func (s *stage) applyExists(in *Token, wm *fact.WorkingMemory) ([]*Token, error) {
	for _, f := range s.alpha.candidates(s.cond.FieldTests, in.Env) {
		env, ok, err := matchFieldTests(s.cond.FieldTests, f, in.Env)
		if err != nil {
			return nil, err
		}
		if ok {
			return []*Token{in.extend(f, s.cond.Binding, env)}, nil
		}
	}
	return nil, nil
}

func (s *stage) applyNot(in *Token, wm *fact.WorkingMemory) ([]*Token, error) {
	for _, f := range s.alpha.candidates(s.cond.FieldTests, in.Env) {
		_, ok, err := matchFieldTests(s.cond.FieldTests, f, in.Env)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, nil
		}
	}
	return []*Token{{Facts: in.Facts, Env: in.Env}}, nil
}

func (s *stage) applyForall(in *Token, wm *fact.WorkingMemory, fns FuncRegistry) ([]*Token, error) {
	for _, f := range s.alpha.candidates(s.cond.FieldTests, in.Env) {
		env, ok, err := matchFieldTests(s.cond.FieldTests, f, in.Env)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if s.cond.ForallTest == nil {
			continue
		}
		b, err := evalExpr(s.cond.ForallTest, env, wm, fns)
		if err != nil {
			return nil, err
		}
		truthy, err := value.Truthy(b)
		if err != nil {
			return nil, err
		}
		if !truthy {
			return nil, nil
		}
	}
	return []*Token{{Facts: in.Facts, Env: in.Env}}, nil
}

func (s *stage) applyTest(in *Token, wm *fact.WorkingMemory, fns FuncRegistry) ([]*Token, error) {
	v, err := evalExpr(s.cond.TestExpr, in.Env, wm, fns)
	if err != nil {
		return nil, err
	}
	truthy, err := value.Truthy(v)
	if err != nil {
		return nil, err
	}
	if !truthy {
		return nil, nil
	}
	return []*Token{{Facts: in.Facts, Env: in.Env}}, nil
}

func (s *stage) applyAccumulate(in *Token, wm *fact.WorkingMemory) ([]*Token, error) {
	spec := s.accum
	var matched []*fact.Fact
	for _, f := range s.alpha.candidates(spec.FieldTests, in.Env) {
		_, ok, err := matchFieldTests(spec.FieldTests, f, in.Env)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, f)
		}
	}
	result, err := reduceAccumulate(spec, matched)
	if err != nil {
		return nil, err
	}
	env := in.Env.clone()
	env.Vars[spec.BindAs] = result
	return []*Token{{Facts: in.Facts, Env: env}}, nil
}

func reduceAccumulate(spec *grl.AccumulateSpec, facts []*fact.Fact) (value.Value, error) {
	switch spec.Reducer {
	case grl.ReduceCount:
		return value.NewInt(int64(len(facts))), nil
	case grl.ReduceSum, grl.ReduceAvg, grl.ReduceMin, grl.ReduceMax:
		return reduceNumeric(spec, facts)
	default:
		return nil, rerr.New(rerr.TypeErr, "unknown accumulate reducer %q", spec.Reducer)
	}
}

func reduceNumeric(spec *grl.AccumulateSpec, facts []*fact.Fact) (value.Value, error) {
	if len(facts) == 0 {
		switch spec.Reducer {
		case grl.ReduceSum:
			return value.NewInt(0), nil
		case grl.ReduceAvg:
			return value.NewInt(0), nil
		default:
			return value.NullVal, nil
		}
	}
	var sum value.Value = value.NewInt(0)
	var best value.Value
	for _, f := range facts {
		fv, ok := f.Get(spec.Field)
		if !ok {
			return nil, rerr.New(rerr.Schema, "%s has no field %q to accumulate", f.Type, spec.Field)
		}
		var err error
		sum, err = value.Add(sum, fv)
		if err != nil {
			return nil, err
		}
		if best == nil {
			best = fv
			continue
		}
		c, err := fv.Compare(best)
		if err != nil {
			return nil, err
		}
		if (spec.Reducer == grl.ReduceMin && c < 0) || (spec.Reducer == grl.ReduceMax && c > 0) {
			best = fv
		}
	}
	switch spec.Reducer {
	case grl.ReduceSum:
		return sum, nil
	case grl.ReduceAvg:
		return value.Div(sum, value.NewInt(int64(len(facts))))
	default:
		return best, nil
	}
}

const (
	CondPattern    = grl.CondPattern
	CondExists     = grl.CondExists
	CondNot        = grl.CondNot
	CondForall     = grl.CondForall
	CondTest       = grl.CondTest
	CondAccumulate = grl.CondAccumulate
)
