package fact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Fact is a named, field-keyed record held in working memory. Facts are
// conceptually immutable once stored; Update replaces the stored Fact for a
// Handle with a new one rather than mutating Fields in place.
//
// Version increments every time Update replaces the fact's fields, with the
// Handle held fixed. The network uses (Handle, Version) pairs — not Handle
// alone — as token identity, so that a modify which leaves a fact still
// matching its rule's conditions is nonetheless treated as a fresh match
// (matching the "modify is retract+assert" convention most production rule
// engines use). no-loop does not suppress that fresh match: it only blocks a
// token identical to the rule's last firing, so a rule that modifies the
// fact it matched refires until its conditions stop matching.
type Fact struct {
	Handle  Handle
	Type    string
	Fields  map[string]value.Value
	Version uint64
}

// Get returns the value of a named field and whether it is present.
func (f *Fact) Get(field string) (value.Value, bool) {
	v, ok := f.Fields[field]
	return v, ok
}

// clone returns a shallow copy of the fact with a copied field map, so
// callers can mutate the returned fields without affecting stored state.
func (f *Fact) clone() *Fact {
	fields := make(map[string]value.Value, len(f.Fields))
	for k, v := range f.Fields {
		fields[k] = v
	}
	return &Fact{Handle: f.Handle, Type: f.Type, Fields: fields}
}

// String renders the fact for trace output and error messages.
func (f *Fact) String() string {
	names := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%s", k, f.Fields[k].String())
	}
	return fmt.Sprintf("%s%s(%s)", f.Type, f.Handle, strings.Join(parts, ", "))
}
