// Package main demonstrates basic rulenet usage patterns.
package main

import (
	"context"
	"fmt"

	"github.com/ruleforge/rulenet/internal/rlog"
	"github.com/ruleforge/rulenet/pkg/rulenet/engine"
	"github.com/ruleforge/rulenet/pkg/rulenet/value"
)

func main() {
	fmt.Println("=== rulenet examples ===")
	fmt.Println()

	discount()
	tmsCascade()
	backwardQuery()
}

// discount shows the canonical two-pattern join: a gold customer with an
// order over 100 gets a 10% discount.
func discount() {
	fmt.Println("1. Single-join discount:")

	e := engine.New(engine.WithLogger(rlog.Discard()))
	must(e.AddRules(`
rule "GoldDiscount" salience 10 {
  when
    c: Customer(code == $code, tier == "gold")
    o: Order(customer == $code, amount > 100)
  then
    o.discount = 10;
    log("discount applied to", $code);
}
`))

	must1(e.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
		"tier": value.NewString("gold"),
	}))
	orderHandle := must1(e.Insert("Order", map[string]value.Value{
		"customer": value.NewString("CUST1"),
		"amount":   value.NewInt(500),
	}))

	fired, err := e.Run(context.Background())
	must(err)
	fmt.Printf("   fired %d rule(s)\n", fired)

	order, err := e.Get(orderHandle)
	must(err)
	fmt.Printf("   order discount = %s\n", order.Fields["discount"])
	fmt.Println()
}

// tmsCascade shows a logically-asserted fact disappearing once its sole
// justifying fact is retracted.
func tmsCascade() {
	fmt.Println("2. Truth-maintained derived fact:")

	e := engine.New(engine.WithLogger(rlog.Discard()))
	must(e.AddRules(`
rule "GrantEligible" {
  when
    c: Customer(code == $code, tier == "gold")
  then
    logical Eligible(code = $code);
}
`))

	customer := must1(e.Insert("Customer", map[string]value.Value{
		"code": value.NewString("CUST1"),
		"tier": value.NewString("gold"),
	}))
	must(ignoreCount(e.Run(context.Background())))
	fmt.Printf("   Eligible facts after insert: %d\n", e.Count("Eligible"))

	must(e.Retract(customer))
	must(ignoreCount(e.Run(context.Background())))
	fmt.Printf("   Eligible facts after retracting Customer: %d\n", e.Count("Eligible"))
	fmt.Println()
}

// backwardQuery shows a goal query failing for a missing fact, then
// succeeding once that fact is supplied.
func backwardQuery() {
	fmt.Println("3. Backward-chaining query:")

	e := engine.New(engine.WithLogger(rlog.Discard()))
	must(e.AddRules(`
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
	must1(e.Insert("Customer", map[string]value.Value{"code": value.NewString("CUST1")}))

	res, err := e.Query(context.Background(), "CanCheckout", nil)
	must(err)
	fmt.Printf("   before paid order: success=%v missing=%v\n", res.Success, res.MissingFacts)

	must1(e.Insert("Order", map[string]value.Value{
		"customer": value.NewString("CUST1"),
		"paid":     value.NewBool(true),
	}))
	res, err = e.Query(context.Background(), "CanCheckout", nil)
	must(err)
	fmt.Printf("   after paid order: success=%v\n", res.Success)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func must1[T any](v T, err error) T {
	must(err)
	return v
}

func ignoreCount(_ int, err error) error { return err }
