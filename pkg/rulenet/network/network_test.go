package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruleforge/rulenet/internal/rlog"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

type recordingSink struct {
	inserted  []Activation
	retracted []Activation
}

func (r *recordingSink) ActivationInserted(a Activation)  { r.inserted = append(r.inserted, a) }
func (r *recordingSink) ActivationRetracted(a Activation) { r.retracted = append(r.retracted, a) }

func (r *recordingSink) reset() { r.inserted = nil; r.retracted = nil }

func parseRule(t *testing.T, src string) *grl.RuleIR {
	t.Helper()
	prog, err := grl.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Rules, 1)
	return prog.Rules[0]
}

func TestNetworkSingleJoinActivation(t *testing.T) {
	wm := fact.New()
	sink := &recordingSink{}
	n := New(wm, nil, sink, rlog.Discard())

	rule := parseRule(t, `
rule "Discount" {
  when
    c: Customer(code == $c, tier == "gold")
    o: Order(customer == $c, amount > 100)
  then
    log("x");
}
`)
	require.NoError(t, n.AddRule(rule))
	require.NoError(t, n.Recompute())
	require.Empty(t, sink.inserted)

	_, err := wm.Insert("Customer", map[string]value.Value{"code": value.NewString("CUST1"), "tier": value.NewString("gold")})
	require.NoError(t, err)
	require.NoError(t, n.Recompute())
	require.Empty(t, sink.inserted, "no Order yet, rule should not fire")

	_, err = wm.Insert("Order", map[string]value.Value{"customer": value.NewString("CUST1"), "amount": value.NewInt(500)})
	require.NoError(t, err)
	require.NoError(t, n.Recompute())
	require.Len(t, sink.inserted, 1)
	require.Equal(t, "Discount", sink.inserted[0].Rule.Name)
}

func TestNetworkRetractionUnfiresActivation(t *testing.T) {
	wm := fact.New()
	sink := &recordingSink{}
	n := New(wm, nil, sink, rlog.Discard())

	rule := parseRule(t, `
rule "HighValue" {
  when
    o: Order(amount > 1000)
  then
    log("x");
}
`)
	require.NoError(t, n.AddRule(rule))

	h, _ := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(2000)})
	require.NoError(t, n.Recompute())
	require.Len(t, sink.inserted, 1)

	sink.reset()
	require.NoError(t, wm.Retract(h))
	require.NoError(t, n.Recompute())
	require.Len(t, sink.retracted, 1)
	require.Empty(t, sink.inserted)
}

func TestNetworkNotCondition(t *testing.T) {
	wm := fact.New()
	sink := &recordingSink{}
	n := New(wm, nil, sink, rlog.Discard())

	rule := parseRule(t, `
rule "NoOpenRefunds" {
  when
    o: Order(id == $o, status == "shipped")
    not(Refund(order == $o))
  then
    log("x");
}
`)
	require.NoError(t, n.AddRule(rule))

	_, _ = wm.Insert("Order", map[string]value.Value{"id": value.NewString("ORD1"), "status": value.NewString("shipped")})
	require.NoError(t, n.Recompute())
	require.Len(t, sink.inserted, 1)

	sink.reset()
	_, _ = wm.Insert("Refund", map[string]value.Value{"order": value.NewString("ORD1")})
	require.NoError(t, n.Recompute())
	require.Empty(t, sink.inserted)
	require.Len(t, sink.retracted, 1)
}

func TestNetworkAccumulate(t *testing.T) {
	wm := fact.New()
	sink := &recordingSink{}
	n := New(wm, nil, sink, rlog.Discard())

	rule := parseRule(t, `
rule "BigSpender" {
  when
    c: Customer(code == $c)
    accumulate over Order(customer == $c) compute sum(amount) bind $total
    test($total > 1000)
  then
    log("x");
}
`)
	require.NoError(t, n.AddRule(rule))

	_, _ = wm.Insert("Customer", map[string]value.Value{"code": value.NewString("CUST1")})
	_, _ = wm.Insert("Order", map[string]value.Value{"customer": value.NewString("CUST1"), "amount": value.NewInt(600)})
	require.NoError(t, n.Recompute())
	require.Empty(t, sink.inserted)

	_, _ = wm.Insert("Order", map[string]value.Value{"customer": value.NewString("CUST1"), "amount": value.NewInt(600)})
	require.NoError(t, n.Recompute())
	require.Len(t, sink.inserted, 1)
}
