package settlement_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/lane"
	"github.com/noah-isme/checkout-lane/internal/register"
	"github.com/noah-isme/checkout-lane/internal/settlement"
)

type laneTestContext struct {
	catalog   *inventory.Memory
	items     map[string]inventory.Item
	register  *register.Register
	lane      *lane.Lane
	customers map[string]*customer.Customer
	results   map[string]settlement.Result
}

func (c *laneTestContext) reset() {
	c.catalog, _ = inventory.NewMemory()
	c.items = map[string]inventory.Item{}
	c.register = nil
	c.lane = nil
	c.customers = map[string]*customer.Customer{}
	c.results = map[string]settlement.Result{}
}

func (c *laneTestContext) theInventoryHas(name, price, tax, count string) error {
	it := inventory.Item{
		Name:      name,
		UnitPrice: decimal.RequireFromString(price),
		TaxRate:   decimal.RequireFromString(tax),
		Count:     decimal.RequireFromString(count),
	}
	c.items[name] = it
	return c.catalog.Stock(context.Background(), it)
}

func (c *laneTestContext) theRegisterHolds(funds string) error {
	if c.register != nil {
		return c.registerHas(funds)
	}
	reg, err := register.New("r1", decimal.RequireFromString(funds))
	if err != nil {
		return err
	}
	c.register = reg
	c.lane, err = lane.New("l1", reg, c.catalog)
	return err
}

func (c *laneTestContext) registerHas(funds string) error {
	if !c.register.Funds().Equal(decimal.RequireFromString(funds)) {
		return fmt.Errorf("register holds %s, want %s", c.register.Funds(), funds)
	}
	return nil
}

func (c *laneTestContext) aCustomerWants(pref, name, funds, qty, product string) error {
	p, err := customer.ParsePreference(pref)
	if err != nil {
		return err
	}
	cust, err := customer.New(name, decimal.RequireFromString(funds), p)
	if err != nil {
		return err
	}
	it, ok := c.items[product]
	if !ok {
		return fmt.Errorf("unknown product %q", product)
	}
	if err := cust.Cart.AddLine(it, decimal.RequireFromString(qty)); err != nil {
		return err
	}
	c.customers[name] = cust
	return c.lane.Enter(context.Background(), cust)
}

func (c *laneTestContext) theLaneIsDrained() error {
	results, err := settlement.New(nil).Drain(context.Background(), c.lane)
	if err != nil {
		return err
	}
	for _, res := range results {
		c.results[res.Customer.Name] = res
	}
	return nil
}

func (c *laneTestContext) customerLeaves(name string) error {
	return c.lane.Exit(context.Background(), c.customers[name])
}

func (c *laneTestContext) result(name string) (settlement.Result, error) {
	res, ok := c.results[name]
	if !ok {
		return res, fmt.Errorf("%q was not settled", name)
	}
	return res, nil
}

func (c *laneTestContext) theOutcomeIs(name, outcome string) error {
	res, err := c.result(name)
	if err != nil {
		return err
	}
	if res.Outcome.String() != outcome {
		return fmt.Errorf("outcome %s, want %s", res.Outcome, outcome)
	}
	return nil
}

func (c *laneTestContext) theReceiptHasLine(name, line string) error {
	res, err := c.result(name)
	if err != nil {
		return err
	}
	if !slices.Contains(res.Receipt.Lines(), line) {
		return fmt.Errorf("receipt lines %q do not contain %q", res.Receipt.Lines(), line)
	}
	return nil
}

func (c *laneTestContext) theReceiptHasNote(name, note string) error {
	res, err := c.result(name)
	if err != nil {
		return err
	}
	if !slices.Contains(res.Receipt.Notes(), note) {
		return fmt.Errorf("receipt notes %q do not contain %q", res.Receipt.Notes(), note)
	}
	return nil
}

func (c *laneTestContext) customerHasFunds(name, funds string) error {
	got := c.customers[name].Funds()
	if !got.Equal(decimal.RequireFromString(funds)) {
		return fmt.Errorf("%s has %s, want %s", name, got, funds)
	}
	return nil
}

func (c *laneTestContext) customerOwes(name, balance string) error {
	got := c.customers[name].Balance()
	if !got.Equal(decimal.RequireFromString(balance)) {
		return fmt.Errorf("%s owes %s, want %s", name, got, balance)
	}
	return nil
}

func (c *laneTestContext) theInventoryCountIs(name, count string) error {
	got := decimal.Zero
	it, err := c.catalog.Lookup(context.Background(), name)
	switch {
	case err == nil:
		got = it.Count
	case !errors.Is(err, inventory.ErrNotFound):
		return err
	}
	if !got.Equal(decimal.RequireFromString(count)) {
		return fmt.Errorf("%s count %s, want %s", name, got, count)
	}
	return nil
}

func (c *laneTestContext) customerIsAtPosition(name string, pos int) error {
	got, queued := c.customers[name].Position()
	if !queued || got != pos {
		return fmt.Errorf("%s at position %d (queued=%v), want %d", name, got, queued, pos)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &laneTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the inventory has "([^"]*)" priced ([\d.]+) with tax ([\d.]+) and count ([\d.]+)$`, tc.theInventoryHas)
	ctx.Step(`^the register holds ([\d.]+)$`, tc.theRegisterHolds)
	ctx.Step(`^a "([^"]*)" customer "([^"]*)" with funds ([\d.]+) wants ([\d.]+) "([^"]*)"$`, tc.aCustomerWants)

	// When steps
	ctx.Step(`^the lane is drained$`, tc.theLaneIsDrained)
	ctx.Step(`^"([^"]*)" leaves the lane$`, tc.customerLeaves)

	// Then steps
	ctx.Step(`^the outcome for "([^"]*)" is "([^"]*)"$`, tc.theOutcomeIs)
	ctx.Step(`^the receipt for "([^"]*)" has line "([^"]*)"$`, tc.theReceiptHasLine)
	ctx.Step(`^the receipt for "([^"]*)" has note "([^"]*)"$`, tc.theReceiptHasNote)
	ctx.Step(`^"([^"]*)" has funds ([\d.]+)$`, tc.customerHasFunds)
	ctx.Step(`^"([^"]*)" owes ([\d.]+)$`, tc.customerOwes)
	ctx.Step(`^the inventory count of "([^"]*)" is ([\d.]+)$`, tc.theInventoryCountIs)
	ctx.Step(`^"([^"]*)" is at position (\d+)$`, tc.customerIsAtPosition)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
