package agenda

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruleforge/rulenet/internal/rlog"
	"github.com/ruleforge/rulenet/pkg/rulenet/fact"
	"github.com/ruleforge/rulenet/pkg/rulenet/grl"
	"github.com/ruleforge/rulenet/pkg/rulenet/network"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

// recordingExecutor fires every activation by recording its rule name,
// optionally running a side effect against working memory (e.g. the
// self-increment a no-loop scenario needs).
type recordingExecutor struct {
	fired  []string
	onFire func(network.Activation) error
}

func (e *recordingExecutor) Fire(ctx context.Context, act network.Activation) error {
	e.fired = append(e.fired, act.Rule.Name)
	if e.onFire != nil {
		return e.onFire(act)
	}
	return nil
}

func parseRule(t *testing.T, src string) *grl.RuleIR {
	t.Helper()
	prog, err := grl.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Rules, 1)
	return prog.Rules[0]
}

func TestAgendaNoLoopAllowsRefireOnGenuinelyNewMatch(t *testing.T) {
	wm := fact.New()
	exec := &recordingExecutor{}
	a := New("lex", exec)
	net := network.New(wm, nil, a, rlog.Discard())

	rule := parseRule(t, `
rule "Counter" no-loop {
  when
    c: Counter(value < 3)
  then
    log("tick");
}
`)
	require.NoError(t, net.AddRule(rule))

	h, err := wm.Insert("Counter", map[string]value.Value{"value": value.NewInt(0)})
	require.NoError(t, err)

	exec.onFire = func(act network.Activation) error {
		c, err := wm.Get(h)
		if err != nil {
			return err
		}
		next, err := value.Add(c.Fields["value"], value.NewInt(1))
		if err != nil {
			return err
		}
		return wm.Update(h, map[string]value.Value{"value": next})
	}

	recompute := func() error { return net.Recompute() }
	fired, err := a.Run(context.Background(), recompute)
	require.NoError(t, err)
	// Each firing bumps Counter's Version, so every re-match is a genuinely
	// new token identity; no-loop must not block this legitimate
	// progression, only an exact repeat of the same token. The rule stops
	// on its own once value reaches 3 and the pattern no longer matches.
	require.Equal(t, 3, fired)
	require.Equal(t, []string{"Counter", "Counter", "Counter"}, exec.fired)

	c, err := wm.Get(h)
	require.NoError(t, err)
	require.Equal(t, value.NewInt(3), c.Fields["value"])
}

func TestAgendaActivationGroupFiresOnlyOneMember(t *testing.T) {
	wm := fact.New()
	exec := &recordingExecutor{}
	a := New("lex", exec)
	net := network.New(wm, nil, a, rlog.Discard())

	ruleA := parseRule(t, `
rule "ApproveSmall" salience 10 activation-group "approval" {
  when
    o: Order(amount < 100)
  then
    log("approve-small");
}
`)
	ruleB := parseRule(t, `
rule "ApproveLarge" salience 5 activation-group "approval" {
  when
    o: Order(amount < 100)
  then
    log("approve-large");
}
`)
	require.NoError(t, net.AddRule(ruleA))
	require.NoError(t, net.AddRule(ruleB))

	_, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(50)})
	require.NoError(t, err)
	require.NoError(t, net.Recompute())
	require.Equal(t, 2, a.PendingCount())

	ok, err := a.FireNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"ApproveSmall"}, exec.fired, "higher salience member should fire first")
	require.Equal(t, 0, a.PendingCount(), "firing one activation-group member cancels the rest")

	ok, err = a.FireNext(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAgendaFocusStackRestrictsEligibility(t *testing.T) {
	wm := fact.New()
	exec := &recordingExecutor{}
	a := New("lex", exec)
	net := network.New(wm, nil, a, rlog.Discard())

	base := parseRule(t, `
rule "BaseRule" {
  when
    o: Order(amount > 0)
  then
    log("base");
}
`)
	validation := parseRule(t, `
rule "ValidateFirst" agenda-group "validation" {
  when
    o: Order(amount > 0)
  then
    log("validate");
}
`)
	require.NoError(t, net.AddRule(base))
	require.NoError(t, net.AddRule(validation))

	_, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(10)})
	require.NoError(t, err)
	require.NoError(t, net.Recompute())
	require.Equal(t, 2, a.PendingCount())

	a.SetFocus("validation")
	ok, err := a.FireNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"ValidateFirst"}, exec.fired)

	// validation's agenda is now empty, so focus auto-pops back to base and
	// BaseRule becomes eligible without an explicit PopFocus call.
	ok, err = a.FireNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"ValidateFirst", "BaseRule"}, exec.fired)
}

func TestAgendaComplexityStrategyPrefersMoreConditions(t *testing.T) {
	wm := fact.New()
	exec := &recordingExecutor{}
	a := New("complexity", exec)
	net := network.New(wm, nil, a, rlog.Discard())

	narrow := parseRule(t, `
rule "Narrow" {
  when
    o: Order(amount > 0)
  then
    log("narrow");
}
`)
	wide := parseRule(t, `
rule "Wide" {
  when
    o: Order(amount > 0, status == "open")
    exists(Order(status == "open"))
  then
    log("wide");
}
`)
	require.NoError(t, net.AddRule(narrow))
	require.NoError(t, net.AddRule(wide))

	_, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(10), "status": value.NewString("open")})
	require.NoError(t, err)
	require.NoError(t, net.Recompute())

	ok, err := a.FireNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Wide"}, exec.fired, "rule with more conditions should be preferred")
}

func TestAgendaMEAStrategyPrefersMoreSpecificMatch(t *testing.T) {
	wm := fact.New()
	exec := &recordingExecutor{}
	a := New("mea", exec)
	net := network.New(wm, nil, a, rlog.Discard())

	narrow := parseRule(t, `
rule "Narrow" {
  when
    o: Order(amount > 0)
  then
    log("narrow");
}
`)
	wide := parseRule(t, `
rule "Wide" {
  when
    o: Order(amount > 0, status == "open")
    exists(Order(status == "open"))
  then
    log("wide");
}
`)
	require.NoError(t, net.AddRule(narrow))
	require.NoError(t, net.AddRule(wide))

	_, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(10), "status": value.NewString("open")})
	require.NoError(t, err)
	require.NoError(t, net.Recompute())

	ok, err := a.FireNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Wide"}, exec.fired, "equal-salience activations break ties by specificity: more satisfied condition elements wins")
}

func TestAgendaMEAStrategyFallsBackToRecencyOnEqualSpecificity(t *testing.T) {
	wm := fact.New()
	exec := &recordingExecutor{}
	a := New("mea", exec)
	net := network.New(wm, nil, a, rlog.Discard())

	var firedHandles []fact.Handle
	exec.onFire = func(act network.Activation) error {
		firedHandles = append(firedHandles, act.Token.Handles()...)
		return nil
	}

	rule := parseRule(t, `
rule "Watch" {
  when
    o: Order(amount > 0)
  then
    log("watch");
}
`)
	require.NoError(t, net.AddRule(rule))

	_, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(10)})
	require.NoError(t, err)
	require.NoError(t, net.Recompute())
	h2, err := wm.Insert("Order", map[string]value.Value{"amount": value.NewInt(20)})
	require.NoError(t, err)
	require.NoError(t, net.Recompute())
	require.Equal(t, 2, a.PendingCount())

	ok, err := a.FireNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []fact.Handle{h2}, firedHandles, "same specificity on both sides should fall back to LEX recency, firing the most recently inserted match first")
}

func TestTMSCascadesRetractionWhenLastJustifierGone(t *testing.T) {
	wm := fact.New()
	tms := NewTMS(wm)

	fields := map[string]value.Value{"customer": value.NewString("CUST1")}
	h1, err := tms.Assert("ruleA/tokenA", "VIP", fields)
	require.NoError(t, err)

	h2, err := tms.Assert("ruleB/tokenB", "VIP", fields)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "structurally identical logical facts should merge onto one handle")
	require.Equal(t, 2, tms.JustifierCount(h1))

	require.NoError(t, tms.Retract("ruleA/tokenA"))
	_, err = wm.Get(h1)
	require.NoError(t, err, "fact should survive while ruleB still justifies it")
	require.Equal(t, 1, tms.JustifierCount(h1))

	require.NoError(t, tms.Retract("ruleB/tokenB"))
	_, err = wm.Get(h1)
	require.Error(t, err, "fact should be retracted once its last justifier is gone")
}
