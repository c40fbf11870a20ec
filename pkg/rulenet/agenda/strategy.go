// Package agenda implements the priority agenda and conflict-resolution
// strategies (C4): the ordered conflict set that the discrimination
// network's activations land in, and the rule-firing loop that drains it.
//
// The Strategy interface mirrors the teacher's pluggable-solver shape
// (gitrdm-gokando's Solver / ConstraintManager registry in
// pkg/minikanren/constraint_manager.go): a small interface implemented by
// several interchangeable strategies, selected by name rather than by an
// inheritance hierarchy.
package agenda

import (
	"hash/fnv"
	"sort"

	"github.com/ruleforge/rulenet/pkg/rulenet/network"
)

// entry is one activation sitting in the agenda, with the bookkeeping the
// priority tuple (salience, agenda-group focus, strategy output, creation
// sequence) needs.
type entry struct {
	act network.Activation
	seq uint64
}

// Strategy breaks ties between two activations of equal salience. The
// agenda applies salience and agenda-group focus first; Strategy only
// orders what remains, with creation sequence as the final tie-break.
type Strategy interface {
	Name() string
	// Less reports whether a should fire before b. Called only for entries
	// already known to share salience and focus eligibility.
	Less(a, b *entry) bool
}

// SalienceStrategy adds no further discrimination beyond salience: ties
// resolve to FIFO (oldest activation first).
type SalienceStrategy struct{}

func (SalienceStrategy) Name() string          { return "salience" }
func (SalienceStrategy) Less(a, b *entry) bool { return false }

// recencyKey approximates how recently a fact entered working memory.
// lessRecency compares version first and handle second, but tokenRecency
// leaves version at zero, so the ordering is by handle alone: handles are
// assigned in creation order, and a higher handle counts as more recent.
// An update does not make a fact more recent.
type recencyKey struct {
	version uint64
	handle  uint64
}

func tokenRecency(t *network.Token) []recencyKey {
	handles := t.Handles()
	keys := make([]recencyKey, len(handles))
	// Only the handle is recorded; LEX and MEA therefore rank recency by
	// creation order, and a fact's Version is not consulted.
	for i, h := range handles {
		keys[i] = recencyKey{handle: uint64(h)}
	}
	return keys
}

func lessRecency(a, b []recencyKey) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := n - 1; i >= 0; i-- {
		if a[i].version != b[i].version {
			return a[i].version > b[i].version
		}
		if a[i].handle != b[i].handle {
			return a[i].handle > b[i].handle
		}
	}
	return len(a) > len(b)
}

// LEXStrategy orders by fact recency across the whole matched tuple, most
// recently touched condition first (Drools' default LEX conflict
// resolution strategy).
type LEXStrategy struct{}

func (LEXStrategy) Name() string { return "lex" }
func (LEXStrategy) Less(a, b *entry) bool {
	return lessRecency(tokenRecency(a.act.Token), tokenRecency(b.act.Token))
}

// MEAStrategy ("means-end analysis") orders by specificity first — the
// activation whose rule satisfies more condition elements wins — then
// falls back to LEX (whole-tuple recency) to break a specificity tie.
type MEAStrategy struct{}

func (MEAStrategy) Name() string { return "mea" }
func (MEAStrategy) Less(a, b *entry) bool {
	na, nb := len(a.act.Rule.Conditions), len(b.act.Rule.Conditions)
	if na != nb {
		return na > nb
	}
	return lessRecency(tokenRecency(a.act.Token), tokenRecency(b.act.Token))
}

// ComplexityStrategy prefers rules with more conditions (more specific
// matches fire before more general ones).
type ComplexityStrategy struct{}

func (ComplexityStrategy) Name() string { return "complexity" }
func (ComplexityStrategy) Less(a, b *entry) bool {
	return len(a.act.Rule.Conditions) > len(b.act.Rule.Conditions)
}

// SimplicityStrategy prefers rules with fewer conditions.
type SimplicityStrategy struct{}

func (SimplicityStrategy) Name() string { return "simplicity" }
func (SimplicityStrategy) Less(a, b *entry) bool {
	return len(a.act.Rule.Conditions) < len(b.act.Rule.Conditions)
}

// RandomStrategy breaks ties with a seeded hash of the activation identity,
// so results are reproducible for a fixed Seed rather than relying on
// process-global randomness.
type RandomStrategy struct {
	Seed uint64
}

func (r RandomStrategy) Name() string { return "random" }
func (r RandomStrategy) Less(a, b *entry) bool {
	return r.hash(a.act.ID()) < r.hash(b.act.ID())
}

func (r RandomStrategy) hash(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	seedBytes := []byte{
		byte(r.Seed), byte(r.Seed >> 8), byte(r.Seed >> 16), byte(r.Seed >> 24),
		byte(r.Seed >> 32), byte(r.Seed >> 40), byte(r.Seed >> 48), byte(r.Seed >> 56),
	}
	_, _ = h.Write(seedBytes)
	return h.Sum64()
}

// strategyByName resolves a configured strategy name (engine option /
// config file value) to its implementation.
func strategyByName(name string) Strategy {
	switch name {
	case "lex", "":
		return LEXStrategy{}
	case "mea":
		return MEAStrategy{}
	case "complexity":
		return ComplexityStrategy{}
	case "simplicity":
		return SimplicityStrategy{}
	case "random":
		return RandomStrategy{}
	case "salience":
		return SalienceStrategy{}
	default:
		return LEXStrategy{}
	}
}

// sortEntries orders a slice of entries by the full priority tuple:
// descending salience, then strategy tie-break, then creation sequence.
func sortEntries(entries []*entry, strat Strategy) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.act.Rule.Salience != b.act.Rule.Salience {
			return a.act.Rule.Salience > b.act.Rule.Salience
		}
		if strat.Less(a, b) {
			return true
		}
		if strat.Less(b, a) {
			return false
		}
		return a.seq < b.seq
	})
}
