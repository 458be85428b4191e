package scenario_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/scenario"
	"github.com/noah-isme/checkout-lane/internal/settlement"
)

func runFile(t *testing.T, runner scenario.Runner, name string) *scenario.Result {
	t.Helper()
	sc, err := scenario.LoadFile(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	return res
}

func TestGoldenReports(t *testing.T) {
	for _, name := range []string{"saturday", "exits"} {
		t.Run(name, func(t *testing.T) {
			res := runFile(t, scenario.Runner{}, name)
			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, name, []byte(res.Report.Text()))
		})
	}
}

func TestGoldenReportsOnRedisCatalog(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	runner := scenario.Runner{Catalog: inventory.NewRedisCatalog(client, "test")}
	res := runFile(t, runner, "saturday")
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "saturday", []byte(res.Report.Text()))
}

func TestRunDeliversEveryReceipt(t *testing.T) {
	sink := receipt.NewMemorySink(16)
	res := runFile(t, scenario.Runner{Sink: sink}, "saturday")

	require.Len(t, sink.Recent(), 4)
	require.Len(t, res.Settlements["l1"], 3)
	require.Len(t, res.Settlements["l2"], 1)
	require.Equal(t, settlement.PaidWithChangeShortfall, res.Settlements["l2"][0].Outcome)

	lanes := res.Store.Lanes()
	require.Len(t, lanes, 2)
	for _, l := range lanes {
		require.Zero(t, l.Len())
	}
}

func TestHeadModeSettlesOneCustomerPerLane(t *testing.T) {
	sc, err := scenario.LoadFile(filepath.Join("testdata", "scenarios", "saturday.yaml"))
	require.NoError(t, err)
	sc.Mode = "head"

	res, err := scenario.Runner{}.Run(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, res.Settlements["l1"], 1)
	require.Equal(t, "alice", res.Settlements["l1"][0].Customer.Name)

	l1 := res.Report.Lanes[0]
	require.Equal(t, "l1", l1.ID)
	require.Equal(t, 2, l1.Waiting)
	require.True(t, strings.Contains(res.Report.Text(), "lane l1 register 104.4 waiting 2"))

	queued := 0
	for _, c := range res.Report.Customers {
		if c.Queued {
			queued++
		}
	}
	require.Equal(t, 2, queued)
}

func TestSkipSettlementLeavesHolds(t *testing.T) {
	res := runFile(t, scenario.Runner{SkipSettlement: true}, "saturday")
	require.Nil(t, res.Settlements)
	require.Len(t, res.Report.Inventory, 1)
	require.Equal(t, "4", res.Report.Inventory[0].Count.String())
	require.Equal(t, 3, res.Report.Lanes[0].Waiting)
}

func TestReportJSON(t *testing.T) {
	res := runFile(t, scenario.Runner{}, "saturday")
	raw, err := json.Marshal(res.Report)
	require.NoError(t, err)

	var decoded struct {
		Name  string `json:"name"`
		Lanes []struct {
			ID       string            `json:"id"`
			Receipts []receipt.Receipt `json:"receipts"`
		} `json:"lanes"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "saturday", decoded.Name)
	require.Len(t, decoded.Lanes, 2)
	require.Len(t, decoded.Lanes[0].Receipts, 3)
	require.Equal(t, "bob", decoded.Lanes[0].Receipts[1].Customer())
	require.Equal(t, "TruncatedPartial", decoded.Lanes[0].Receipts[1].Outcome())
}

func TestLoadParsesDecimalsAndPreferences(t *testing.T) {
	sc, err := scenario.Load(strings.NewReader(`
inventory:
  - {name: tea, unitPrice: 0.10, taxRate: 1.05, count: 3}
lanes:
  - {id: a, registerFunds: 1.5}
customers:
  - name: zed
    lane: a
    funds: 0.3
    preference: cover
    cart:
      - {item: tea, quantity: 2}
`))
	require.NoError(t, err)
	require.Equal(t, "0.1", sc.Inventory[0].UnitPrice.String())
	require.Equal(t, "1.05", sc.Inventory[0].TaxRate.String())
	require.Equal(t, "1.5", sc.Lanes[0].RegisterFunds.String())
	require.Equal(t, customer.Cover, sc.Customers[0].Preference)
	require.Equal(t, "2", sc.Customers[0].Cart[0].Quantity.String())
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"unknown field":   "lanes: [{id: a}]\nshelves: []\n",
		"no lanes":        "inventory: [{name: tea, unitPrice: 1, taxRate: 1, count: 1}]\n",
		"bad mode":        "mode: sideways\nlanes: [{id: a}]\n",
		"duplicate lane":  "lanes: [{id: a}, {id: a}]\n",
		"unknown lane":    "lanes: [{id: a}]\ncustomers: [{name: x, lane: b}]\n",
		"unknown item":    "lanes: [{id: a}]\ncustomers: [{name: x, lane: a, cart: [{item: tea, quantity: 1}]}]\n",
		"zero quantity":   "inventory: [{name: tea, unitPrice: 1, taxRate: 1, count: 1}]\nlanes: [{id: a}]\ncustomers: [{name: x, lane: a, cart: [{item: tea, quantity: 0}]}]\n",
		"negative funds":  "lanes: [{id: a}]\ncustomers: [{name: x, lane: a, funds: -1}]\n",
		"bad preference":  "lanes: [{id: a}]\ncustomers: [{name: x, lane: a, preference: haggle}]\n",
		"discard missing": "inventory: [{name: tea, unitPrice: 1, taxRate: 1, count: 1}]\nlanes: [{id: a}]\ncustomers: [{name: x, lane: a, cart: [{item: tea, quantity: 1}], discard: [jam]}]\n",
		"delist unknown":  "lanes: [{id: a}]\ndelist: [jam]\n",
		"duplicate item":  "inventory: [{name: tea, unitPrice: 1, taxRate: 1, count: 1}, {name: tea, unitPrice: 1, taxRate: 1, count: 1}]\nlanes: [{id: a}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := scenario.Load(strings.NewReader(doc))
			require.ErrorIs(t, err, scenario.ErrInvalid)
		})
	}
}

func TestRunRejectsNil(t *testing.T) {
	_, err := scenario.Runner{}.Run(context.Background(), nil)
	require.Error(t, err)
}
