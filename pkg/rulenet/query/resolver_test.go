package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// goalFromRuleCondition parses src as a single rule and returns its first
// `when`-block condition, reused as a query goal so tests can exercise goal
// kinds (not/accumulate) a query's top-level `goal:` clause doesn't parse
// directly.
func goalFromRuleCondition(t *testing.T, src string) grl.Condition {
	t.Helper()
	prog, err := grl.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Rules, 1)
	require.NotEmpty(t, prog.Rules[0].Conditions)
	return prog.Rules[0].Conditions[0]
}

func TestResolverProvesDirectFact(t *testing.T) {
	wm := fact.New()
	_, err := wm.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
		"tier": value.NewString("gold"),
	})
	require.NoError(t, err)

	prog, err := grl.Parse(`
query "IsGold" {
  goal: c: Customer(code == "CUST1", tier == "gold")
}
`)
	require.NoError(t, err)

	r := New(wm, prog.Rules)
	res, err := r.Solve(context.Background(), prog.Queries[0].Goal, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Bindings, 1)
	require.Empty(t, res.MissingFacts)
}

func TestResolverExpandsRuleAndReportsMissingFact(t *testing.T) {
	wm := fact.New()
	_, err := wm.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
	})
	require.NoError(t, err)

	prog, err := grl.Parse(`
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
`)
	require.NoError(t, err)
	require.Len(t, prog.Queries, 1)

	r := New(wm, prog.Rules)
	res, err := r.Solve(context.Background(), prog.Queries[0].Goal, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.NotEmpty(t, res.MissingFacts, "proof should fail for lack of a paid Order, surfacing it as missing")
}

func TestResolverProvesRuleExpansionWhenConditionsHold(t *testing.T) {
	wm := fact.New()
	_, err := wm.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
	})
	require.NoError(t, err)
	_, err = wm.Insert("Order", map[string]value.Value{
		"customer": value.NewString("CUST1"),
		"paid":     value.NewBool(true),
	})
	require.NoError(t, err)

	prog, err := grl.Parse(`
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
`)
	require.NoError(t, err)

	r := New(wm, prog.Rules)
	res, err := r.Solve(context.Background(), prog.Queries[0].Goal, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Proof)
}

func TestResolverNegationSucceedsWhenNoMatch(t *testing.T) {
	wm := fact.New()

	goal := goalFromRuleCondition(t, `
rule "NoFraud" {
  when
    not(FraudFlag(customer == "CUST1"))
  then
    log("clear");
}
`)

	r := New(wm, nil)
	res, err := r.Solve(context.Background(), goal, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestResolverNegationFailsWhenMatchExists(t *testing.T) {
	wm := fact.New()
	_, err := wm.Insert("FraudFlag", map[string]value.Value{"customer": value.NewString("CUST1")})
	require.NoError(t, err)

	goal := goalFromRuleCondition(t, `
rule "NoFraud" {
  when
    not(FraudFlag(customer == "CUST1"))
  then
    log("clear");
}
`)

	r := New(wm, nil)
	res, err := r.Solve(context.Background(), goal, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestResolverBreadthFirstExploresAllProviders(t *testing.T) {
	wm := fact.New()
	_, err := wm.Insert("Base", map[string]value.Value{"id": value.NewInt(1)})
	require.NoError(t, err)

	prog, err := grl.Parse(`
rule "ViaA" {
  when
    b: Base(id == $id)
  then
    logical Derived(id = $id, via = "a");
}

rule "ViaB" {
  when
    b: Base(id == $id)
  then
    logical Derived(id = $id, via = "b");
}

query "AnyDerived" {
  goal: d: Derived(id == 1)
}
`)
	require.NoError(t, err)

	r := New(wm, prog.Rules, WithStrategy(BreadthFirst), WithMaxSolutions(10))
	res, err := r.Solve(context.Background(), prog.Queries[0].Goal, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestResolverAccumulateBindsReducedValue(t *testing.T) {
	wm := fact.New()
	for _, amt := range []int64{100, 200, 300} {
		_, err := wm.Insert("Order", map[string]value.Value{
			"customer": value.NewString("CUST1"),
			"amount":   value.NewInt(amt),
		})
		require.NoError(t, err)
	}

	goal := goalFromRuleCondition(t, `
rule "TotalSpend" {
  when
    accumulate over Order(customer == "CUST1") compute sum(amount) bind $total
  then
    log($total);
}
`)

	r := New(wm, nil)
	res, err := r.Solve(context.Background(), goal, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Bindings, 1)
	total, ok := res.Bindings[0].Vars["total"]
	require.True(t, ok)
	require.Equal(t, value.NewInt(600), total)
}
