package grl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleRule(t *testing.T) {
	src := `
rule "Discount" "gold customers get 10% off"
salience 10
{
  when
    c: Customer(tier == "gold")
    o: Order(customer == $c, amount > 100)
  then
    o.discount = 0.1;
    log("applied discount");
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Rules, 1)

	r := prog.Rules[0]
	require.Equal(t, "Discount", r.Name)
	require.Equal(t, "gold customers get 10% off", r.Description)
	require.Equal(t, 10, r.Salience)
	require.Len(t, r.Conditions, 2)
	require.Equal(t, "Customer", r.Conditions[0].Type)
	require.Equal(t, "c", r.Conditions[0].Binding)
	require.Len(t, r.Conditions[1].FieldTests, 2)
	require.Equal(t, "c", r.Conditions[1].FieldTests[0].VarRef)
	require.Len(t, r.Actions, 2)
	require.Equal(t, ActAssign, r.Actions[0].Kind)
	require.Equal(t, ActLog, r.Actions[1].Kind)
}

func TestParseDotFormShorthand(t *testing.T) {
	src := `
rule "DotForm" {
  when
    o: Order.amount > 1000
  then
    flagReview(o);
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Rules[0].Conditions, 1)
	c := prog.Rules[0].Conditions[0]
	require.Equal(t, "Order", c.Type)
	require.Len(t, c.FieldTests, 1)
	require.Equal(t, "amount", c.FieldTests[0].Field)
}

func TestParseConditionalElements(t *testing.T) {
	src := `
rule "NotMatch" no-loop agenda-group "triage" {
  when
    exists(Order(status == "open"))
    not(Refund(status == "pending"))
    test($x > 0)
  then
    escalate();
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	r := prog.Rules[0]
	require.True(t, r.NoLoop)
	require.Equal(t, "triage", r.AgendaGroup)
	require.Equal(t, CondExists, r.Conditions[0].Kind)
	require.Equal(t, CondNot, r.Conditions[1].Kind)
	require.Equal(t, CondTest, r.Conditions[2].Kind)
}

func TestParseAccumulate(t *testing.T) {
	src := `
rule "BigSpender" {
  when
    c: Customer()
    accumulate over Order(customer == $c) compute sum(amount) bind $total
    test($total > 10000)
  then
    logical VIP(customer = $c);
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	r := prog.Rules[0]
	require.Equal(t, CondAccumulate, r.Conditions[1].Kind)
	require.Equal(t, ReduceSum, r.Conditions[1].Accumulate.Reducer)
	require.Equal(t, "total", r.Conditions[1].Accumulate.BindAs)
	require.Equal(t, ActAssert, r.Actions[0].Kind)
	require.Equal(t, "VIP", r.Actions[0].FuncName)
	require.Equal(t, "customer", r.Actions[0].Assigns[0].Field)
}

func TestParseMissingThenFails(t *testing.T) {
	src := `
rule "Broken" {
  when
    Order()
}
`
	_, err := Parse(src)
	require.Error(t, err)
}

func TestParseMissingWhenFails(t *testing.T) {
	src := `
rule "Broken" {
  then
    log("x");
}
`
	_, err := Parse(src)
	require.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	src := `
query "FindAncestor" {
  goal: Ancestor(person == $p, ancestor == $a)
  strategy: depth-first
  max-depth: 50
  on-success: {
    log($a);
  }
  on-missing: {
    log("no ancestor found");
  }
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Queries, 1)
	q := prog.Queries[0]
	require.Equal(t, "FindAncestor", q.Name)
	require.Equal(t, "depth-first", q.Strategy)
	require.Equal(t, 50, q.MaxDepth)
	require.Len(t, q.OnSuccess, 1)
	require.Len(t, q.OnMissing, 1)
}

func TestFormatRoundTrip(t *testing.T) {
	src := `
rule "Simple" salience 5 no-loop {
  when
    o: Order(amount > 100)
  then
    o.flagged = true;
}
`
	prog, err := Parse(src)
	require.NoError(t, err)
	out := Format(prog.Rules[0])

	reparsed, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, reparsed.Rules, 1)
	r2 := reparsed.Rules[0]
	require.Equal(t, "Simple", r2.Name)
	require.Equal(t, 5, r2.Salience)
	require.True(t, r2.NoLoop)
	require.Len(t, r2.Conditions, 1)
	require.Len(t, r2.Actions, 1)
}
