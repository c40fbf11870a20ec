package engine

import "sort"

// EngineStats summarizes current engine state for monitoring and
// diagnostics (§6's stats()).
type EngineStats struct {
	RuleCount    int
	FactTypes    []string
	FactCount    int
	PendingCount int
	FiredCount   int
	FireCounts   map[string]int
	FireErrors   map[string]int
}

// Stats takes a point-in-time snapshot. Counts accumulate over the
// Engine's lifetime and are never reset by Run/RunN.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	ruleCount := len(e.ruleOrder)
	e.mu.Unlock()

	types := e.wm.Types()
	sort.Strings(types)
	total := 0
	for _, t := range types {
		total += e.wm.Count(t)
	}

	fc := make(map[string]int, len(e.fireCounts))
	for k, v := range e.fireCounts {
		fc[k] = v
	}
	fe := make(map[string]int, len(e.fireErrors))
	for k, v := range e.fireErrors {
		fe[k] = v
	}

	return EngineStats{
		RuleCount:    ruleCount,
		FactTypes:    types,
		FactCount:    total,
		PendingCount: e.ag.PendingCount(),
		FiredCount:   e.ag.FiredCount(),
		FireCounts:   fc,
		FireErrors:   fe,
	}
}
