package settlement_test

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/lane"
	"github.com/noah-isme/checkout-lane/internal/register"
	"github.com/noah-isme/checkout-lane/internal/settlement"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func item(name, price, tax, count string) inventory.Item {
	return inventory.Item{Name: name, UnitPrice: dec(price), TaxRate: dec(tax), Count: dec(count)}
}

func apple(count string) inventory.Item {
	return item("apple", "1.00", "1.10", count)
}

type fixture struct {
	cat *inventory.Memory
	reg *register.Register
	ln  *lane.Lane
}

func newFixture(t *testing.T, registerFunds string, stock ...inventory.Item) *fixture {
	t.Helper()
	cat, err := inventory.NewMemory(stock...)
	require.NoError(t, err)
	reg, err := register.New("r1", dec(registerFunds))
	require.NoError(t, err)
	ln, err := lane.New("l1", reg, cat)
	require.NoError(t, err)
	return &fixture{cat: cat, reg: reg, ln: ln}
}

// queue creates a customer, fills the cart and enters the lane.
func (f *fixture) queue(t *testing.T, name, funds string, pref customer.Preference, lines ...lineSpec) *customer.Customer {
	t.Helper()
	c, err := customer.New(name, dec(funds), pref)
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, c.Cart.AddLine(l.item, dec(l.qty)))
	}
	require.NoError(t, f.ln.Enter(context.Background(), c))
	return c
}

func (f *fixture) count(t *testing.T, name string) decimal.Decimal {
	t.Helper()
	it, err := f.cat.Lookup(context.Background(), name)
	if err != nil {
		require.ErrorIs(t, err, inventory.ErrNotFound)
		return decimal.Zero
	}
	return it.Count
}

type lineSpec struct {
	item inventory.Item
	qty  string
}

func line(it inventory.Item, qty string) lineSpec {
	return lineSpec{item: it, qty: qty}
}

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %s got %s", want, got.String())
}

// dump renders a result for failure messages.
func dump(res settlement.Result) string {
	cfg := spew.ConfigState{Indent: "  ", DisableMethods: false, DisablePointerAddresses: true, MaxDepth: 2}
	return cfg.Sdump(res.Outcome, res.Receipt.Text(), res.Total.String(), res.Charged.String())
}
