package fact

import (
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// Default auto-tuning thresholds from the indexing policy (spec §4.1):
// a field queried at least N1 times with observed selectivity at or below S1
// is promoted to an index; an index unused for N2 queries is dropped.
const (
	DefaultPromoteAfterQueries = 100
	DefaultPromoteSelectivity  = 0.1
	DefaultDemoteAfterIdle     = 1000
)

// fieldIndex maps one field's values to the set of fact handles holding
// that value, mirroring the teacher's FactIndex (position -> term -> ids),
// keyed by field name instead of tuple position.
type fieldIndex struct {
	byValue map[string]map[Handle]struct{}
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{byValue: make(map[string]map[Handle]struct{})}
}

func (fi *fieldIndex) add(key string, h Handle) {
	set, ok := fi.byValue[key]
	if !ok {
		set = make(map[Handle]struct{})
		fi.byValue[key] = set
	}
	set[h] = struct{}{}
}

func (fi *fieldIndex) remove(key string, h Handle) {
	set, ok := fi.byValue[key]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(fi.byValue, key)
	}
}

func (fi *fieldIndex) lookup(key string) map[Handle]struct{} {
	return fi.byValue[key]
}

// fieldStats tracks query frequency and observed selectivity for one field,
// feeding the auto-tuning promotion/demotion policy.
type fieldStats struct {
	queries       int
	matchesTotal  int
	scannedTotal  int
	idleSinceUsed int
	indexed       bool
}

func (s *fieldStats) selectivity() float64 {
	if s.scannedTotal == 0 {
		return 1
	}
	return float64(s.matchesTotal) / float64(s.scannedTotal)
}

// typeIndex holds per-field indexes and stats for one fact type.
type typeIndex struct {
	facts  map[Handle]*Fact
	fields map[string]*fieldIndex // only for currently-promoted fields
	stats  map[string]*fieldStats
	tuning IndexTuning
}

// IndexTuning carries the three tunable auto-indexing parameters.
type IndexTuning struct {
	PromoteAfterQueries int
	PromoteSelectivity  float64
	DemoteAfterIdle     int
}

// DefaultIndexTuning returns the spec's default tunables (100, 0.1, 1000).
func DefaultIndexTuning() IndexTuning {
	return IndexTuning{
		PromoteAfterQueries: DefaultPromoteAfterQueries,
		PromoteSelectivity:  DefaultPromoteSelectivity,
		DemoteAfterIdle:     DefaultDemoteAfterIdle,
	}
}

func newTypeIndex(tuning IndexTuning) *typeIndex {
	return &typeIndex{
		facts:  make(map[Handle]*Fact),
		fields: make(map[string]*fieldIndex),
		stats:  make(map[string]*fieldStats),
		tuning: tuning,
	}
}

// EnsureIndex forces a field to be indexed regardless of observed statistics,
// used when a condition filter requests the index at network build time
// (spec §4.1 policy, rule 1).
func (ti *typeIndex) EnsureIndex(field string) {
	st := ti.statFor(field)
	if st.indexed {
		return
	}
	st.indexed = true
	idx := newFieldIndex()
	for h, f := range ti.facts {
		if v, ok := f.Get(field); ok {
			idx.add(v.String(), h)
		}
	}
	ti.fields[field] = idx
}

func (ti *typeIndex) statFor(field string) *fieldStats {
	st, ok := ti.stats[field]
	if !ok {
		st = &fieldStats{}
		ti.stats[field] = st
	}
	return st
}

func (ti *typeIndex) insert(f *Fact) {
	ti.facts[f.Handle] = f
	for field, idx := range ti.fields {
		if v, ok := f.Get(field); ok {
			idx.add(v.String(), f.Handle)
		}
	}
}

func (ti *typeIndex) remove(h Handle) {
	f, ok := ti.facts[h]
	if !ok {
		return
	}
	for field, idx := range ti.fields {
		if v, ok := f.Get(field); ok {
			idx.remove(v.String(), h)
		}
	}
	delete(ti.facts, h)
}

// Lookup returns handles whose field equals v, recording query stats and
// running the promotion check. scanned is the number of facts that would
// have needed a linear scan had no index existed, used to compute
// selectivity.
func (ti *typeIndex) Lookup(field string, v value.Value) map[Handle]struct{} {
	st := ti.statFor(field)
	st.queries++
	st.idleSinceUsed = 0

	if idx, ok := ti.fields[field]; ok {
		matches := idx.lookup(v.String())
		st.matchesTotal += len(matches)
		st.scannedTotal += len(ti.facts)
		return matches
	}

	// Unindexed: linear scan, then decide whether to promote.
	matches := make(map[Handle]struct{})
	for h, f := range ti.facts {
		if fv, ok := f.Get(field); ok && fv.Equal(v) {
			matches[h] = struct{}{}
		}
	}
	st.matchesTotal += len(matches)
	st.scannedTotal += len(ti.facts)

	if st.queries >= ti.tuning.PromoteAfterQueries && st.selectivity() <= ti.tuning.PromoteSelectivity {
		ti.EnsureIndex(field)
	}
	return matches
}

// Tick ages every indexed field's idle counter by one query round that did
// not touch it, demoting indexes that have gone cold. Called on every insert
// and update (not on retract) so demotion reacts to overall activity, not
// just lookups on that exact field.
func (ti *typeIndex) Tick(touched map[string]bool) {
	for field, st := range ti.stats {
		if touched[field] {
			continue
		}
		if !st.indexed {
			continue
		}
		st.idleSinceUsed++
		if st.idleSinceUsed >= ti.tuning.DemoteAfterIdle {
			delete(ti.fields, field)
			st.indexed = false
			st.idleSinceUsed = 0
		}
	}
}
