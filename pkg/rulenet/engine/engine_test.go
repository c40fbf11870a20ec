package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruleforge/rulenet/internal/rlog"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(WithLogger(rlog.Discard()))
}

func TestEngineSingleJoinDiscountFires(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRules(`
rule "Discount" {
  when
    c: Customer(code == $code, tier == "gold")
    o: Order(customer == $code, amount > 100)
  then
    o.discount = 10;
}
`))

	_, err := e.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
		"tier": value.NewString("gold"),
	})
	require.NoError(t, err)
	oh, err := e.Insert("Order", map[string]value.Value{
		"customer": value.NewString("CUST1"),
		"amount":   value.NewInt(500),
	})
	require.NoError(t, err)

	n, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	o, err := e.Get(oh)
	require.NoError(t, err)
	require.Equal(t, value.NewInt(10), o.Fields["discount"])
}

func TestEngineTMSCascadesWhenSupportingFactRetracted(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRules(`
rule "GrantEligible" {
  when
    c: Customer(code == $code, tier == "gold")
  then
    logical Eligible(code = $code);
}
`))

	ch, err := e.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
		"tier": value.NewString("gold"),
	})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, e.Count("Eligible"))

	require.NoError(t, e.Retract(ch))
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, e.Count("Eligible"), "losing the only justifying Customer should cascade-retract Eligible")
}

func TestEngineNoLoopCounterFiresTenTimes(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRules(`
rule "Tick" no-loop {
  when
    c: Counter(value < 10)
  then
    c.value = c.value + 1;
}
`))

	h, err := e.Insert("Counter", map[string]value.Value{"value": value.NewInt(0)})
	require.NoError(t, err)

	n, err := e.Run(context.Background())
	require.NoError(t, err)
	// no-loop must not block a rule from refiring on a genuinely new match
	// of its own making; it only suppresses an exact repeat of the same
	// token. The Counter increments every firing, so it fires ten times and
	// stops on its own once value == 10 makes the pattern no longer match.
	require.Equal(t, 10, n)

	c, err := e.Get(h)
	require.NoError(t, err)
	require.Equal(t, value.NewInt(10), c.Fields["value"])
}

func TestEngineQueryReportsMissingFactThenSucceedsAfterInsert(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRules(`
rule "GrantCheckout" {
  when
    c: Customer(code == $code)
    o: Order(customer == $code, paid == true)
  then
    logical CanCheckout(code = $code);
}

query "CanCheckout" {
  goal: r: CanCheckout(code == "CUST1")
}
`))

	_, err := e.Insert("Customer", map[string]value.Value{"code": value.NewString("CUST1")})
	require.NoError(t, err)

	res, err := e.Query(context.Background(), "CanCheckout", nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.NotEmpty(t, res.MissingFacts)

	_, err = e.Insert("Order", map[string]value.Value{
		"customer": value.NewString("CUST1"),
		"paid":     value.NewBool(true),
	})
	require.NoError(t, err)

	res, err = e.Query(context.Background(), "CanCheckout", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestEngineQueryFindsAnyMatchingOrder(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRules(`
query "HasOrders" {
  goal: o: Order(customer == "CUST1")
}
`))
	for _, amt := range []int64{100, 200, 300} {
		_, err := e.Insert("Order", map[string]value.Value{
			"customer": value.NewString("CUST1"),
			"amount":   value.NewInt(amt),
		})
		require.NoError(t, err)
	}

	res, err := e.Query(context.Background(), "HasOrders", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Bindings, 1, "default max-solutions of 1 stops after the first match")
}

func TestEngineStatsReportsFiredCounts(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddRules(`
rule "Flag" {
  when
    o: Order(amount > 100)
  then
    log("flagged");
}
`))
	_, err := e.Insert("Order", map[string]value.Value{"amount": value.NewInt(500)})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	stats := e.Stats()
	require.Equal(t, 1, stats.RuleCount)
	require.Equal(t, 1, stats.FiredCount)
	require.Contains(t, stats.FactTypes, "Order")
}
