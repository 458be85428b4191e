// Package receipt holds the immutable line-item receipt produced for every settled
// customer, and the sinks receipts are delivered to.
package receipt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt is the record of one customer settlement. It is never mutated after Build.
type Receipt struct {
	id              uuid.UUID
	customerID      string
	customer        string
	laneID          string
	registerID      string
	lines           []string
	notes           []string
	subtotal        decimal.Decimal
	tax             decimal.Decimal
	total           decimal.Decimal
	charged         decimal.Decimal
	changeGiven     decimal.Decimal
	changeShortfall decimal.Decimal
	balance         decimal.Decimal
	outcome         string
	issuedAt        time.Time
}

// ID is unique per receipt and doubles as the delivery task id.
func (r Receipt) ID() uuid.UUID { return r.id }

// CustomerID identifies the settled customer.
func (r Receipt) CustomerID() string { return r.customerID }

// Customer is the customer name printed on the receipt.
func (r Receipt) Customer() string { return r.customer }

// LaneID is the lane that settled the customer.
func (r Receipt) LaneID() string { return r.laneID }

// RegisterID is the register that took the payment.
func (r Receipt) RegisterID() string { return r.registerID }

// Subtotal is the untaxed sum of sold lines.
func (r Receipt) Subtotal() decimal.Decimal { return r.subtotal }

// Tax is Total minus Subtotal.
func (r Receipt) Tax() decimal.Decimal { return r.tax }

// Total is the taxed sum of sold lines.
func (r Receipt) Total() decimal.Decimal { return r.total }

// Charged is what the customer paid toward Total.
func (r Receipt) Charged() decimal.Decimal { return r.charged }

// ChangeGiven is the change the register paid out.
func (r Receipt) ChangeGiven() decimal.Decimal { return r.changeGiven }

// ChangeShortfall is change owed that the register could not pay.
func (r Receipt) ChangeShortfall() decimal.Decimal { return r.changeShortfall }

// Balance is the amount left owing after a Cover settlement.
func (r Receipt) Balance() decimal.Decimal { return r.balance }

// Outcome names the payment outcome.
func (r Receipt) Outcome() string { return r.outcome }

// IssuedAt is when the receipt was built.
func (r Receipt) IssuedAt() time.Time { return r.issuedAt }

// Lines returns a copy of the ordered receipt lines.
func (r Receipt) Lines() []string {
	return append([]string(nil), r.lines...)
}

// Notes returns a copy of the adjustment notes.
func (r Receipt) Notes() []string {
	return append([]string(nil), r.notes...)
}

// Text renders the receipt as plain text. Identifiers and timestamps are left out so
// the same settlement always renders identically.
func (r Receipt) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "customer: %s\n", r.customer)
	fmt.Fprintf(&b, "lane: %s register: %s\n", r.laneID, r.registerID)
	for _, line := range r.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, note := range r.notes {
		fmt.Fprintf(&b, "note: %s\n", note)
	}
	fmt.Fprintf(&b, "subtotal: %s\n", r.subtotal)
	fmt.Fprintf(&b, "tax: %s\n", r.tax)
	fmt.Fprintf(&b, "total: %s\n", r.total)
	fmt.Fprintf(&b, "charged: %s\n", r.charged)
	fmt.Fprintf(&b, "change: %s\n", r.changeGiven)
	if r.changeShortfall.IsPositive() {
		fmt.Fprintf(&b, "change shortfall: %s\n", r.changeShortfall)
	}
	if r.balance.IsPositive() {
		fmt.Fprintf(&b, "balance owed: %s\n", r.balance)
	}
	fmt.Fprintf(&b, "outcome: %s\n", r.outcome)
	return b.String()
}

type wire struct {
	ID              uuid.UUID       `json:"id"`
	CustomerID      string          `json:"customerId"`
	Customer        string          `json:"customer"`
	LaneID          string          `json:"laneId"`
	RegisterID      string          `json:"registerId"`
	Lines           []string        `json:"lines"`
	Notes           []string        `json:"notes,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	Charged         decimal.Decimal `json:"charged"`
	ChangeGiven     decimal.Decimal `json:"changeGiven"`
	ChangeShortfall decimal.Decimal `json:"changeShortfall"`
	Balance         decimal.Decimal `json:"balance"`
	Outcome         string          `json:"outcome"`
	IssuedAt        time.Time       `json:"issuedAt"`
}

// MarshalJSON implements json.Marshaler.
func (r Receipt) MarshalJSON() ([]byte, error) {
	lines := r.lines
	if lines == nil {
		lines = []string{}
	}
	return json.Marshal(wire{
		ID:              r.id,
		CustomerID:      r.customerID,
		Customer:        r.customer,
		LaneID:          r.laneID,
		RegisterID:      r.registerID,
		Lines:           lines,
		Notes:           r.notes,
		Subtotal:        r.subtotal,
		Tax:             r.tax,
		Total:           r.total,
		Charged:         r.charged,
		ChangeGiven:     r.changeGiven,
		ChangeShortfall: r.changeShortfall,
		Balance:         r.balance,
		Outcome:         r.outcome,
		IssuedAt:        r.issuedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Used by queue consumers.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Receipt{
		id:              w.ID,
		customerID:      w.CustomerID,
		customer:        w.Customer,
		laneID:          w.LaneID,
		registerID:      w.RegisterID,
		lines:           w.Lines,
		notes:           w.Notes,
		subtotal:        w.Subtotal,
		tax:             w.Tax,
		total:           w.Total,
		charged:         w.Charged,
		changeGiven:     w.ChangeGiven,
		changeShortfall: w.ChangeShortfall,
		balance:         w.Balance,
		outcome:         w.Outcome,
		issuedAt:        w.IssuedAt,
	}
	return nil
}

// Builder accumulates receipt content during settlement.
type Builder struct {
	r Receipt
}

// NewBuilder starts a receipt for a customer settled at a lane.
func NewBuilder(customerID, customer, laneID, registerID string) *Builder {
	return &Builder{r: Receipt{
		customerID: customerID,
		customer:   customer,
		laneID:     laneID,
		registerID: registerID,
	}}
}

// Line appends a receipt line.
func (b *Builder) Line(line string) *Builder {
	b.r.lines = append(b.r.lines, line)
	return b
}

// Note appends an adjustment note.
func (b *Builder) Note(format string, args ...any) *Builder {
	b.r.notes = append(b.r.notes, fmt.Sprintf(format, args...))
	return b
}

// Totals records the priced amounts.
func (b *Builder) Totals(subtotal, tax, total decimal.Decimal) *Builder {
	b.r.subtotal, b.r.tax, b.r.total = subtotal, tax, total
	return b
}

// Payment records what was collected and paid out.
func (b *Builder) Payment(charged, changeGiven, changeShortfall, balance decimal.Decimal) *Builder {
	b.r.charged = charged
	b.r.changeGiven = changeGiven
	b.r.changeShortfall = changeShortfall
	b.r.balance = balance
	return b
}

// Outcome sets the settlement outcome label.
func (b *Builder) Outcome(outcome string) *Builder {
	b.r.outcome = outcome
	return b
}

// Build freezes the receipt. The builder must not be used afterwards.
func (b *Builder) Build(issuedAt time.Time) Receipt {
	out := b.r
	out.id = uuid.New()
	out.issuedAt = issuedAt.UTC()
	out.lines = append([]string(nil), b.r.lines...)
	out.notes = append([]string(nil), b.r.notes...)
	return out
}
