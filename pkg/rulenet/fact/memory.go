package fact

import (
	"sort"
	"sync/atomic"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Observer is notified of every working-memory mutation. The discrimination
// network (C3) is the only production implementation, but the interface
// keeps fact free of any dependency on network, matching the teacher's
// layering (fact_store.go never imports the solver that consumes it).
type Observer interface {
	OnInsert(f *Fact, seq uint64)
	OnModify(old, updated *Fact, seq uint64)
	OnRetract(f *Fact, seq uint64)
}

// WorkingMemory is the set of (handle -> typed fact) pairs, partitioned by
// fact type, per §4.1 (C1). It is not safe for concurrent use from multiple
// goroutines at once: per §5, all mutation happens on the single engine
// thread.
type WorkingMemory struct {
	nextHandle uint64
	seq        uint64

	byType    map[string]*typeIndex
	templates map[string]*Template
	tuning    IndexTuning

	observers []Observer
}

// New creates an empty WorkingMemory using the default index auto-tuning
// parameters.
func New() *WorkingMemory {
	return NewWithTuning(DefaultIndexTuning())
}

// NewWithTuning creates an empty WorkingMemory with explicit auto-tuning
// parameters (for tests and engines that want different N1/S1/N2 values).
func NewWithTuning(tuning IndexTuning) *WorkingMemory {
	return &WorkingMemory{
		byType:    make(map[string]*typeIndex),
		templates: make(map[string]*Template),
		tuning:    tuning,
	}
}

// Subscribe registers an Observer to receive future mutation notifications.
func (wm *WorkingMemory) Subscribe(o Observer) {
	wm.observers = append(wm.observers, o)
}

// DefineTemplate registers (or replaces) a Template for a fact type.
func (wm *WorkingMemory) DefineTemplate(t *Template) {
	wm.templates[t.Type] = t
}

// Template returns the registered template for a type, if any.
func (wm *WorkingMemory) Template(factType string) (*Template, bool) {
	t, ok := wm.templates[factType]
	return t, ok
}

// RequestIndex forces indexing of a field for a type, used by the network
// builder when a condition filter tests that field against a constant
// (spec §4.1 policy, rule 1).
func (wm *WorkingMemory) RequestIndex(factType, field string) {
	wm.typeFor(factType).EnsureIndex(field)
}

func (wm *WorkingMemory) typeFor(factType string) *typeIndex {
	ti, ok := wm.byType[factType]
	if !ok {
		ti = newTypeIndex(wm.tuning)
		wm.byType[factType] = ti
	}
	return ti
}

// Insert validates fields against the type's template (if any), allocates a
// fresh Handle, stores the fact, and notifies observers. Validation failure
// returns a Schema error and performs no mutation.
func (wm *WorkingMemory) Insert(factType string, fields map[string]value.Value) (Handle, error) {
	final := fields
	if tmpl, ok := wm.templates[factType]; ok {
		var err error
		final, err = tmpl.Apply(fields)
		if err != nil {
			return Invalid, err
		}
	}

	h := Handle(atomic.AddUint64(&wm.nextHandle, 1))
	f := &Fact{Handle: h, Type: factType, Fields: final, Version: 1}

	ti := wm.typeFor(factType)
	ti.insert(f)
	ti.Tick(touchedFields(final))

	seq := atomic.AddUint64(&wm.seq, 1)
	for _, o := range wm.observers {
		o.OnInsert(f, seq)
	}
	return h, nil
}

// Update replaces the fields of a live fact, preserving its Handle.
// Semantically retract+insert (the fact's old field values are fully
// replaced), but the Handle and identity are preserved and the network is
// notified with a single Modify event so it can incrementally correct
// memories instead of tearing down and rebuilding tokens.
func (wm *WorkingMemory) Update(h Handle, fields map[string]value.Value) error {
	old, ti, err := wm.find(h)
	if err != nil {
		return err
	}

	final := fields
	if tmpl, ok := wm.templates[old.Type]; ok {
		final, err = tmpl.Apply(fields)
		if err != nil {
			return err
		}
	}

	updated := &Fact{Handle: h, Type: old.Type, Fields: final, Version: old.Version + 1}
	ti.remove(h)
	ti.insert(updated)
	ti.Tick(touchedFields(final))

	seq := atomic.AddUint64(&wm.seq, 1)
	for _, o := range wm.observers {
		o.OnModify(old, updated, seq)
	}
	return nil
}

// Retract removes a fact. Subsequent use of its Handle fails with a
// Reference error.
func (wm *WorkingMemory) Retract(h Handle) error {
	f, ti, err := wm.find(h)
	if err != nil {
		return err
	}
	ti.remove(h)

	seq := atomic.AddUint64(&wm.seq, 1)
	for _, o := range wm.observers {
		o.OnRetract(f, seq)
	}
	return nil
}

// Get returns the live fact for a handle.
func (wm *WorkingMemory) Get(h Handle) (*Fact, error) {
	f, _, err := wm.find(h)
	return f, err
}

func (wm *WorkingMemory) find(h Handle) (*Fact, *typeIndex, error) {
	for _, ti := range wm.byType {
		if f, ok := ti.facts[h]; ok {
			return f, ti, nil
		}
	}
	return nil, nil, rerr.New(rerr.Reference, "fact handle %s is dead", h)
}

// Lookup returns the handles of type factType whose field equals v, using an
// index when one exists and falling back to a linear scan while tracking
// the statistics that drive auto-indexing.
func (wm *WorkingMemory) Lookup(factType, field string, v value.Value) []Handle {
	ti, ok := wm.byType[factType]
	if !ok {
		return nil
	}
	set := ti.Lookup(field, v)
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IterType calls fn for every live fact of the given type, in ascending
// handle order, for a stable iteration order within the call.
func (wm *WorkingMemory) IterType(factType string, fn func(*Fact)) {
	ti, ok := wm.byType[factType]
	if !ok {
		return
	}
	handles := make([]Handle, 0, len(ti.facts))
	for h := range ti.facts {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		fn(ti.facts[h])
	}
}

// Snapshot returns every live fact across all types, as a read-only copy
// stable for the duration of the caller's use (no further mutation aliases
// the returned slice).
func (wm *WorkingMemory) Snapshot() []*Fact {
	var out []*Fact
	types := make([]string, 0, len(wm.byType))
	for t := range wm.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		wm.IterType(t, func(f *Fact) { out = append(out, f) })
	}
	return out
}

// Count returns the number of live facts of the given type.
func (wm *WorkingMemory) Count(factType string) int {
	ti, ok := wm.byType[factType]
	if !ok {
		return 0
	}
	return len(ti.facts)
}

// Types returns every fact type currently tracked — having a registered
// template, or having held at least one fact — sorted, for stats()
// introspection.
func (wm *WorkingMemory) Types() []string {
	seen := map[string]bool{}
	for t := range wm.byType {
		seen[t] = true
	}
	for t := range wm.templates {
		seen[t] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TemplateTypes reports the set of fact types with a registered template,
// for a parser's strict-template check (a pattern referencing an
// unregistered type is rejected as a schema error).
func (wm *WorkingMemory) TemplateTypes() map[string]bool {
	out := make(map[string]bool, len(wm.templates))
	for t := range wm.templates {
		out[t] = true
	}
	return out
}

// IndexedFields reports which fields of factType currently carry an index,
// for introspection (stats()).
func (wm *WorkingMemory) IndexedFields(factType string) []string {
	ti, ok := wm.byType[factType]
	if !ok {
		return nil
	}
	var out []string
	for field := range ti.fields {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func touchedFields(fields map[string]value.Value) map[string]bool {
	out := make(map[string]bool, len(fields))
	for k := range fields {
		out[k] = true
	}
	return out
}
