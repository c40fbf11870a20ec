package agenda

import (
	"context"

	"github.com/ruleforge/rulenet/internal/rerr"
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
)

// Executor fires one activation's RHS actions against working memory. The
// agenda calls it once per fired activation and otherwise knows nothing
// about action semantics (assert/modify/retract/call), matching the
// teacher's separation between a solver's search loop and the constraint
// logic a Propagate implementation carries out.
type Executor interface {
	Fire(ctx context.Context, act network.Activation) error
}

// Agenda is the priority conflict set (C4): it implements network.Sink to
// receive activation deltas, orders the resulting conflict set by the
// priority tuple (salience, agenda-group focus, strategy, creation
// sequence), and drains it one firing at a time.
type Agenda struct {
	strategy Strategy
	exec     Executor

	entries map[string]*entry
	seq     uuidSeq

	focus []string // stack; top is current agenda-group focus, "" is the base group

	// lastFiredID is the ID (rule + token identity, including each fact's
	// Version) of the most recently fired activation. A no-loop rule's own
	// firing routinely produces a *new* activation for the same rule over
	// the same handles — the network treats modify as retract+insert, so
	// the token's Version always advances — and that new match must still
	// be allowed to fire (§8 scenario 4: a no-loop counter increments 10
	// times). What no-loop actually suppresses is the narrower case this
	// ID comparison catches: the exact same token identity reappearing for
	// the same rule (§9(a): "no-loop suppresses only reactivation by the
	// *same* rule+token identity").
	lastFiredID string

	firedCount int
}

type uuidSeq struct{ n uint64 }

func (s *uuidSeq) next() uint64 { s.n++; return s.n }

// New creates an empty Agenda using the given conflict-resolution strategy
// and Executor.
func New(strategyName string, exec Executor) *Agenda {
	return &Agenda{
		strategy: strategyByName(strategyName),
		exec:     exec,
		entries:  map[string]*entry{},
		focus:    []string{""},
	}
}

// SetStrategy changes the conflict-resolution strategy for future
// comparisons; it does not re-order activations already fired.
func (a *Agenda) SetStrategy(name string) { a.strategy = strategyByName(name) }

// ActivationInserted implements network.Sink.
func (a *Agenda) ActivationInserted(act network.Activation) {
	id := act.ID()
	if act.Rule.NoLoop && id == a.lastFiredID {
		return
	}
	if _, exists := a.entries[id]; exists {
		return
	}
	a.entries[id] = &entry{act: act, seq: a.seq.next()}
}

// ActivationRetracted implements network.Sink.
func (a *Agenda) ActivationRetracted(act network.Activation) {
	delete(a.entries, act.ID())
}

// Focus reports the agenda-group currently receiving attention.
func (a *Agenda) Focus() string { return a.focus[len(a.focus)-1] }

// SetFocus pushes group onto the focus stack, giving its rules exclusive
// eligibility to fire until the stack is popped or the group's entries are
// exhausted (§4.3 agenda-group semantics).
func (a *Agenda) SetFocus(group string) { a.focus = append(a.focus, group) }

// PopFocus returns focus to the previous agenda-group.
func (a *Agenda) PopFocus() {
	if len(a.focus) > 1 {
		a.focus = a.focus[:len(a.focus)-1]
	}
}

func (a *Agenda) eligible(e *entry) bool {
	return e.act.Rule.AgendaGroup == a.Focus()
}

// next picks the highest-priority eligible entry, or nil if none is ready.
func (a *Agenda) next() *entry {
	var candidates []*entry
	for _, e := range a.entries {
		if a.eligible(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sortEntries(candidates, a.strategy)
	return candidates[0]
}

// FireNext fires the single highest-priority eligible activation, if any.
// It reports whether an activation fired. Activation-group exclusivity
// (§4.3: "one of N fires, siblings are cancelled") is enforced here: firing
// one member of a group removes every other pending member of that group
// from the agenda without executing them.
func (a *Agenda) FireNext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, rerr.Wrap(rerr.Cancelled, err, "agenda cancelled")
	}
	e := a.next()
	if e == nil {
		if f := a.Focus(); f != "" && !a.groupHasEntries(f) {
			a.PopFocus()
		}
		return false, nil
	}

	delete(a.entries, e.act.ID())
	if e.act.Rule.ActivationGroup != "" {
		a.cancelGroup(e.act.Rule.ActivationGroup, e.act.ID())
	}

	if err := a.exec.Fire(ctx, e.act); err != nil {
		return false, err
	}
	a.lastFiredID = e.act.ID()
	a.firedCount++

	if f := a.Focus(); f != "" && !a.groupHasEntries(f) {
		a.PopFocus()
	}
	return true, nil
}

func (a *Agenda) groupHasEntries(group string) bool {
	for _, e := range a.entries {
		if e.act.Rule.AgendaGroup == group {
			return true
		}
	}
	return false
}

func (a *Agenda) cancelGroup(group, exceptID string) {
	for id, e := range a.entries {
		if id != exceptID && e.act.Rule.ActivationGroup == group {
			delete(a.entries, id)
		}
	}
}

// Run drains the agenda until no eligible activation remains or ctx is
// cancelled, calling recompute before each firing attempt so newly produced
// activations are considered. It returns the number of rules fired.
func (a *Agenda) Run(ctx context.Context, recompute func() error) (int, error) {
	fired := 0
	for {
		if recompute != nil {
			if err := recompute(); err != nil {
				return fired, err
			}
		}
		ok, err := a.FireNext(ctx)
		if err != nil {
			return fired, err
		}
		if !ok {
			return fired, nil
		}
		fired++
	}
}

// RunN drains at most n firings, under the same rules as Run.
func (a *Agenda) RunN(ctx context.Context, n int, recompute func() error) (int, error) {
	fired := 0
	for fired < n {
		if recompute != nil {
			if err := recompute(); err != nil {
				return fired, err
			}
		}
		ok, err := a.FireNext(ctx)
		if err != nil {
			return fired, err
		}
		if !ok {
			return fired, nil
		}
		fired++
	}
	return fired, nil
}

// PendingCount reports the number of activations currently in the conflict
// set, regardless of focus eligibility.
func (a *Agenda) PendingCount() int { return len(a.entries) }

// FiredCount reports the cumulative number of rules fired over this
// Agenda's lifetime.
func (a *Agenda) FiredCount() int { return a.firedCount }
