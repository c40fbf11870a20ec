// Package fact implements the typed working memory (C1): fact handles,
// templates, per-type indexing, and the insert/update/retract surface the
// discrimination network observes.
//
// Grounded on the teacher's fact_store.go (FactStore/FactIndex) and pldb.go
// (Relation, column indexing), adapted from string-keyed PLDB tuples to
// handle-keyed, field-named typed facts.
package fact

import "fmt"

// Handle is a stable, opaque identifier for a fact. Handles are allocated
// monotonically and never reused, even after the fact they named is
// retracted, per the working-memory invariants.
type Handle uint64

func (h Handle) String() string { return fmt.Sprintf("#%d", uint64(h)) }

// Invalid is returned for lookups that fail; handle 0 is never allocated.
const Invalid Handle = 0
