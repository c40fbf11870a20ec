package fact

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

func TestInsertUpdateRetract(t *testing.T) {
	wm := New()
	h, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewFloat(100)})
	require.NoError(t, err)
	require.NotEqual(t, Invalid, h)

	f, err := wm.Get(h)
	require.NoError(t, err)
	require.Equal(t, "Order", f.Type)

	require.NoError(t, wm.Update(h, map[string]value.Value{"amount": value.NewFloat(200)}))
	f, _ = wm.Get(h)
	v, _ := f.Get("amount")
	require.Equal(t, value.NewFloat(200), v)

	require.NoError(t, wm.Retract(h))
	_, err = wm.Get(h)
	require.Error(t, err)
}

func TestRetractDeadHandleFails(t *testing.T) {
	wm := New()
	h, _ := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(1)})
	require.NoError(t, wm.Retract(h))
	require.Error(t, wm.Retract(h))
	require.Error(t, wm.Update(h, map[string]value.Value{"amount": value.NewInt(2)}))
}

func TestHandlesNeverReused(t *testing.T) {
	wm := New()
	seen := make(map[Handle]bool)
	for i := 0; i < 50; i++ {
		h, _ := wm.Insert("T", map[string]value.Value{"x": value.NewInt(int64(i))})
		require.False(t, seen[h])
		seen[h] = true
		require.NoError(t, wm.Retract(h))
	}
}

func TestTemplateValidation(t *testing.T) {
	wm := New()
	wm.DefineTemplate(NewTemplate("Customer",
		FieldSpec{Name: "tier", Kind: value.String, Required: true},
		FieldSpec{Name: "active", Kind: value.Bool, Required: false, Default: value.NewBool(true)},
	))

	_, err := wm.Insert("Customer", map[string]value.Value{})
	require.Error(t, err)

	h, err := wm.Insert("Customer", map[string]value.Value{"tier": value.NewString("gold")})
	require.NoError(t, err)
	f, _ := wm.Get(h)
	active, ok := f.Get("active")
	require.True(t, ok)
	require.Equal(t, value.NewBool(true), active)
}

type countObserver struct {
	inserts, modifies, retracts int
}

func (c *countObserver) OnInsert(f *Fact, seq uint64)         { c.inserts++ }
func (c *countObserver) OnModify(old, n *Fact, seq uint64)    { c.modifies++ }
func (c *countObserver) OnRetract(f *Fact, seq uint64)        { c.retracts++ }

func TestObserverNotifications(t *testing.T) {
	wm := New()
	obs := &countObserver{}
	wm.Subscribe(obs)

	h, _ := wm.Insert("T", map[string]value.Value{"x": value.NewInt(1)})
	_ = wm.Update(h, map[string]value.Value{"x": value.NewInt(2)})
	_ = wm.Retract(h)

	require.Equal(t, 1, obs.inserts)
	require.Equal(t, 1, obs.modifies)
	require.Equal(t, 1, obs.retracts)
}

func TestIndexAutoPromotion(t *testing.T) {
	wm := NewWithTuning(IndexTuning{PromoteAfterQueries: 3, PromoteSelectivity: 0.5, DemoteAfterIdle: 1000})
	for i := 0; i < 10; i++ {
		tier := "silver"
		if i == 0 {
			tier = "gold"
		}
		_, _ = wm.Insert("Customer", map[string]value.Value{"tier": value.NewString(tier)})
	}

	require.Empty(t, wm.IndexedFields("Customer"))
	for i := 0; i < 4; i++ {
		wm.Lookup("Customer", "tier", value.NewString("gold"))
	}
	require.Contains(t, wm.IndexedFields("Customer"), "tier")
}

func TestLookupByField(t *testing.T) {
	wm := New()
	h1, _ := wm.Insert("Order", map[string]value.Value{"status": value.NewString("open")})
	_, _ = wm.Insert("Order", map[string]value.Value{"status": value.NewString("closed")})

	matches := wm.Lookup("Order", "status", value.NewString("open"))
	require.Equal(t, []Handle{h1}, matches)
}

func TestSnapshotStableAndOrdered(t *testing.T) {
	wm := New()
	_, _ = wm.Insert("A", map[string]value.Value{"x": value.NewInt(1)})
	_, _ = wm.Insert("B", map[string]value.Value{"x": value.NewInt(2)})
	snap := wm.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "A", snap[0].Type)
	require.Equal(t, "B", snap[1].Type)
}
