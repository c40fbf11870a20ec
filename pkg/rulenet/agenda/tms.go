package agenda

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// TMS is the truth maintenance system (§4.4): it ties facts asserted by a
// `logical` action to the activation whose firing produced them, and
// retracts those facts automatically once no surviving activation still
// justifies them.
//
// Two or more rules can logically assert structurally identical facts
// (same type, same fields); rather than inserting a duplicate, TMS merges
// their justifier sets onto one fact.Handle, so the fact only disappears
// once every justifying activation has retracted its support.
type TMS struct {
	wm *fact.WorkingMemory

	justifiers map[fact.Handle]map[string]bool // handle -> set of owning activation IDs
	keyOf      map[fact.Handle]string           // handle -> structural key, for cleanup
	handleOf   map[string]fact.Handle           // structural key -> handle
}

// NewTMS creates a TMS that asserts and retracts logical facts against wm.
func NewTMS(wm *fact.WorkingMemory) *TMS {
	return &TMS{
		wm:         wm,
		justifiers: map[fact.Handle]map[string]bool{},
		keyOf:      map[fact.Handle]string{},
		handleOf:   map[string]fact.Handle{},
	}
}

// Assert records that owner (an activation ID) logically supports a fact of
// factType with the given fields. If an identical logical fact already
// exists, owner is added as an additional justifier and no new fact is
// inserted; otherwise a fresh fact is inserted into working memory.
func (t *TMS) Assert(owner, factType string, fields map[string]value.Value) (fact.Handle, error) {
	key := structuralKey(factType, fields)
	if h, ok := t.handleOf[key]; ok {
		t.justifiers[h][owner] = true
		return h, nil
	}

	h, err := t.wm.Insert(factType, fields)
	if err != nil {
		return fact.Invalid, err
	}
	t.justifiers[h] = map[string]bool{owner: true}
	t.keyOf[h] = key
	t.handleOf[key] = h
	return h, nil
}

// Retract drops owner's support for every logical fact it justifies,
// cascading a real working-memory retraction for any fact left with no
// remaining justifier.
func (t *TMS) Retract(owner string) error {
	var dead []fact.Handle
	for h, owners := range t.justifiers {
		if !owners[owner] {
			continue
		}
		delete(owners, owner)
		if len(owners) == 0 {
			dead = append(dead, h)
		}
	}

	sort.Slice(dead, func(i, j int) bool { return dead[i] < dead[j] })
	for _, h := range dead {
		delete(t.justifiers, h)
		if key, ok := t.keyOf[h]; ok {
			delete(t.handleOf, key)
			delete(t.keyOf, h)
		}
		if err := t.wm.Retract(h); err != nil {
			return err
		}
	}
	return nil
}

// JustifierCount reports how many activations currently support the fact
// held at h, or 0 if h is not a logically-asserted fact TMS tracks.
func (t *TMS) JustifierCount(h fact.Handle) int {
	return len(t.justifiers[h])
}

// structuralKey renders a fact type and field set as a canonical string for
// identifying "the same logical fact" across independent assertions.
func structuralKey(factType string, fields map[string]value.Value) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(factType)
	b.WriteByte('(')
	for i, k := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, fields[k].String())
	}
	b.WriteByte(')')
	return b.String()
}
