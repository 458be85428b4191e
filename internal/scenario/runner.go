package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/settlement"
	"github.com/noah-isme/checkout-lane/internal/store"
)

// Runner replays scenarios. Catalog and Sink are shared across runs; every run gets a
// fresh store.
type Runner struct {
	Catalog        inventory.Catalog
	Sink           receipt.Sink
	Logger         zerolog.Logger
	EngineOptions  []settlement.Option
	StoreOptions   []store.Option
	DefaultMode    settlement.Mode
	SkipSettlement bool
}

// Result is the outcome of a run. Store stays usable afterwards, for example to serve
// the ops API.
type Result struct {
	Store       *store.Store
	Settlements map[string][]settlement.Result
	Report      Report
}

// Run stocks the catalog, opens the lanes, queues every customer and drains the store.
func (r Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if sc == nil {
		return nil, errors.New("scenario: nil scenario")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cat := r.Catalog
	if cat == nil {
		mem, err := inventory.NewMemory()
		if err != nil {
			return nil, err
		}
		cat = mem
	}
	mode := r.DefaultMode
	if sc.Mode != "" {
		parsed, err := settlement.ParseMode(sc.Mode)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}

	engineOpts := append([]settlement.Option{settlement.WithLogger(r.Logger)}, r.EngineOptions...)
	if mode != "" {
		engineOpts = append(engineOpts, settlement.WithMode(mode))
	}
	engine := settlement.New(r.Sink, engineOpts...)
	st, err := store.New(cat, engine, append([]store.Option{store.WithLogger(r.Logger)}, r.StoreOptions...)...)
	if err != nil {
		return nil, err
	}

	items := make(map[string]inventory.Item, len(sc.Inventory))
	for _, it := range sc.Inventory {
		if err := st.AddItem(ctx, it); err != nil {
			return nil, fmt.Errorf("stock %s: %w", it.Name, err)
		}
		items[it.Name] = it
	}
	for _, l := range sc.Lanes {
		if _, err := st.OpenLane(l.ID, l.RegisterFunds); err != nil {
			return nil, err
		}
	}

	shoppers := make([]*customer.Customer, len(sc.Customers))
	for i, entry := range sc.Customers {
		c, err := customer.New(entry.Name, entry.Funds, entry.Preference)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", entry.Name, err)
		}
		for _, line := range entry.Cart {
			if err := c.Cart.AddLine(items[line.Item], line.Quantity); err != nil {
				return nil, fmt.Errorf("customer %s: %w", entry.Name, err)
			}
		}
		shoppers[i] = c
	}

	for _, name := range sc.Delist {
		if err := cat.Remove(ctx, name); err != nil && !errors.Is(err, inventory.ErrNotFound) {
			return nil, fmt.Errorf("delist %s: %w", name, err)
		}
	}
	for i, entry := range sc.Customers {
		if err := st.Enter(ctx, entry.Lane, shoppers[i]); err != nil {
			return nil, fmt.Errorf("customer %s: %w", entry.Name, err)
		}
	}
	for i, entry := range sc.Customers {
		for _, name := range entry.Discard {
			shoppers[i].Cart.DiscardLine(name)
		}
	}
	for i, entry := range sc.Customers {
		if !entry.Exit {
			continue
		}
		if err := st.Exit(ctx, entry.Lane, shoppers[i]); err != nil {
			return nil, fmt.Errorf("customer %s: %w", entry.Name, err)
		}
	}
	for _, it := range sc.Restock {
		if err := st.AddItem(ctx, it); err != nil {
			return nil, fmt.Errorf("restock %s: %w", it.Name, err)
		}
	}

	res := &Result{Store: st}
	if !r.SkipSettlement {
		res.Settlements, err = st.DrainAll(ctx)
	}
	report, reportErr := buildReport(ctx, st, sc, shoppers, res.Settlements)
	res.Report = report
	return res, errors.Join(err, reportErr)
}

// Report is a deterministic summary of a run.
type Report struct {
	Name      string           `json:"name"`
	Lanes     []LaneReport     `json:"lanes"`
	Customers []CustomerReport `json:"customers"`
	Inventory []inventory.Item `json:"inventory"`
}

// LaneReport lists a lane's receipts in settlement order.
type LaneReport struct {
	ID            string            `json:"id"`
	RegisterFunds decimal.Decimal   `json:"registerFunds"`
	Receipts      []receipt.Receipt `json:"receipts"`
	Waiting       int               `json:"waiting"`
}

// CustomerReport is a shopper's wallet after the run.
type CustomerReport struct {
	Name    string          `json:"name"`
	Funds   decimal.Decimal `json:"funds"`
	Balance decimal.Decimal `json:"balance"`
	Queued  bool            `json:"queued"`
}

func buildReport(ctx context.Context, st *store.Store, sc *Scenario, shoppers []*customer.Customer, settled map[string][]settlement.Result) (Report, error) {
	report := Report{Name: sc.Name}
	for _, l := range st.Lanes() {
		lr := LaneReport{
			ID:            l.ID,
			RegisterFunds: l.Register().Funds(),
			Waiting:       l.Len(),
		}
		for _, res := range settled[l.ID] {
			lr.Receipts = append(lr.Receipts, res.Receipt)
		}
		report.Lanes = append(report.Lanes, lr)
	}
	for _, c := range shoppers {
		_, queued := c.Position()
		report.Customers = append(report.Customers, CustomerReport{
			Name:    c.Label(),
			Funds:   c.Funds(),
			Balance: c.Balance(),
			Queued:  queued,
		})
	}
	items, err := st.Catalog().Items(ctx)
	if err != nil {
		return report, fmt.Errorf("scenario: list inventory: %w", err)
	}
	report.Inventory = items
	return report, nil
}

// Text renders the report. Output is stable for a given scenario.
func (r Report) Text() string {
	var b strings.Builder
	for _, l := range r.Lanes {
		fmt.Fprintf(&b, "lane %s register %s", l.ID, l.RegisterFunds)
		if l.Waiting > 0 {
			fmt.Fprintf(&b, " waiting %d", l.Waiting)
		}
		b.WriteString("\n")
		for _, rc := range l.Receipts {
			b.WriteString("\n")
			b.WriteString(rc.Text())
		}
		b.WriteString("\n")
	}
	b.WriteString("customers\n")
	for _, c := range r.Customers {
		fmt.Fprintf(&b, "%s: funds %s, balance %s", c.Name, c.Funds, c.Balance)
		if c.Queued {
			b.WriteString(", queued")
		}
		b.WriteString("\n")
	}
	b.WriteString("\ninventory\n")
	for _, it := range r.Inventory {
		fmt.Fprintf(&b, "%s: %s\n", it.Name, it.Count)
	}
	return b.String()
}
