package network

import (
	"sort"
	"strings"

	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
)

// AlphaNode is the constant-filter memory for one (type, constant-test-set)
// combination (§4.3's alpha memory). Every stage across every rule that
// tests the same fact type with the same conjunction of constant field
// tests consults the same AlphaNode instead of re-deriving its own
// candidate set from scratch — the structural node sharing built-time
// construction requires.
type AlphaNode struct {
	typ    string
	consts []FieldTest // the VarRef == "" subset; this node's own filter

	memory map[fact.Handle]*fact.Fact

	// joinIndex holds, per join-variable field a stage has looked up
	// through this node, a hash index from the field's string-rendered
	// value to the handles currently holding it — the beta-memory index:
	// a join on a bound $var becomes a map lookup instead of a linear scan
	// of the node's memory. Built lazily, the first time a stage asks for
	// it, then maintained incrementally alongside memory.
	joinIndex map[string]map[string]map[fact.Handle]struct{}
}

func newAlphaNode(typ string, consts []FieldTest) *AlphaNode {
	return &AlphaNode{
		typ:       typ,
		consts:    consts,
		memory:    map[fact.Handle]*fact.Fact{},
		joinIndex: map[string]map[string]map[fact.Handle]struct{}{},
	}
}

// constTests splits out the literal-equality/comparison subset of tests
// that belongs on the alpha node; VarRef tests are join constraints and
// belong to the beta side.
func constTests(tests []FieldTest) []FieldTest {
	var out []FieldTest
	for _, ft := range tests {
		if ft.VarRef == "" {
			out = append(out, ft)
		}
	}
	return out
}

// alphaKey is the structural-sharing key: fact type plus the field-sorted
// constant-test conjunction. Two stages that key identically are wired to
// the same AlphaNode.
func alphaKey(typ string, consts []FieldTest) string {
	sorted := make([]FieldTest, len(consts))
	copy(sorted, consts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })

	var b strings.Builder
	b.WriteString(typ)
	for _, ft := range sorted {
		b.WriteByte('|')
		b.WriteString(ft.Field)
		b.WriteByte(' ')
		b.WriteString(string(ft.Op))
		b.WriteByte(' ')
		if ft.Literal != nil {
			b.WriteString(ft.Literal.String())
		}
	}
	return b.String()
}

// matches reports whether f passes this node's constant filter.
func (an *AlphaNode) matches(f *fact.Fact) bool {
	if f.Type != an.typ {
		return false
	}
	for _, ft := range an.consts {
		fv, ok := f.Get(ft.Field)
		if !ok {
			return false
		}
		pass, err := compareOp(fv, ft.Literal, ft.Op)
		if err != nil || !pass {
			return false
		}
	}
	return true
}

// observe reacts to an inserted or updated fact, adding or dropping it from
// memory (and every maintained join index) according to whether it
// currently passes the filter.
func (an *AlphaNode) observe(f *fact.Fact) {
	if an.matches(f) {
		an.put(f)
	} else {
		an.drop(f.Handle)
	}
}

func (an *AlphaNode) put(f *fact.Fact) {
	if old, ok := an.memory[f.Handle]; ok {
		an.unindex(old)
	}
	an.memory[f.Handle] = f
	an.reindex(f)
}

func (an *AlphaNode) drop(h fact.Handle) {
	old, ok := an.memory[h]
	if !ok {
		return
	}
	an.unindex(old)
	delete(an.memory, h)
}

func (an *AlphaNode) reindex(f *fact.Fact) {
	for field, byVal := range an.joinIndex {
		fv, ok := f.Get(field)
		if !ok {
			continue
		}
		key := fv.String()
		set, ok := byVal[key]
		if !ok {
			set = map[fact.Handle]struct{}{}
			byVal[key] = set
		}
		set[f.Handle] = struct{}{}
	}
}

func (an *AlphaNode) unindex(f *fact.Fact) {
	for field, byVal := range an.joinIndex {
		fv, ok := f.Get(field)
		if !ok {
			continue
		}
		if set, ok := byVal[fv.String()]; ok {
			delete(set, f.Handle)
			if len(set) == 0 {
				delete(byVal, fv.String())
			}
		}
	}
}

// ensureJoinIndex builds (once) the hash index on field, backfilling from
// the node's current memory, so later lookups are an expected O(1) map
// access instead of a scan.
func (an *AlphaNode) ensureJoinIndex(field string) map[string]map[fact.Handle]struct{} {
	if idx, ok := an.joinIndex[field]; ok {
		return idx
	}
	idx := map[string]map[fact.Handle]struct{}{}
	an.joinIndex[field] = idx
	for _, f := range an.memory {
		fv, ok := f.Get(field)
		if !ok {
			continue
		}
		key := fv.String()
		set, ok := idx[key]
		if !ok {
			set = map[fact.Handle]struct{}{}
			idx[key] = set
		}
		set[f.Handle] = struct{}{}
	}
	return idx
}

// selectivity estimates a join field's discriminating power as its index's
// mean bucket size (lower is more selective). A field with no index yet is
// treated as maximally selective (0), so among several eligible join
// fields with no prior statistics the first one tried wins — §4.3's
// "fall back to declaration order on a tie".
func (an *AlphaNode) selectivity(field string) float64 {
	idx, ok := an.joinIndex[field]
	if !ok || len(an.memory) == 0 || len(idx) == 0 {
		return 0
	}
	return float64(len(an.memory)) / float64(len(idx))
}

// candidates returns the facts this node's memory offers for a join against
// tests under env. Among the pattern's VarRef-equality tests whose variable
// is already bound in env, the most selective indexed field is consulted
// (ties broken by declaration order); with no such test the full memory is
// returned, since the match itself is what will establish the binding.
func (an *AlphaNode) candidates(tests []FieldTest, env *Env) []*fact.Fact {
	type joinCand struct {
		field string
		key   string
	}
	var eligible []joinCand
	for _, ft := range tests {
		if ft.VarRef == "" || ft.Op != grl.OpEq {
			continue
		}
		if bound, ok := env.Vars[ft.VarRef]; ok {
			eligible = append(eligible, joinCand{field: ft.Field, key: bound.String()})
		}
	}

	if len(eligible) > 0 {
		best := eligible[0]
		bestSel := an.selectivity(best.field)
		for _, c := range eligible[1:] {
			if sel := an.selectivity(c.field); sel < bestSel {
				best, bestSel = c, sel
			}
		}
		idx := an.ensureJoinIndex(best.field)
		set := idx[best.key]
		out := make([]*fact.Fact, 0, len(set))
		for h := range set {
			if f, ok := an.memory[h]; ok {
				out = append(out, f)
			}
		}
		return out
	}

	out := make([]*fact.Fact, 0, len(an.memory))
	for _, f := range an.memory {
		out = append(out, f)
	}
	return out
}
