package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/cart"
	"github.com/noah-isme/checkout-lane/internal/pricing"
)

// pricedLine is a cart line after hold reconciliation. qty is the quantity actually
// sold; zero for discarded or unavailable lines.
type pricedLine struct {
	line  cart.Line
	qty   decimal.Decimal
	total decimal.Decimal
}

func (p pricedLine) sold() bool {
	return !p.line.Discarded && p.qty.IsPositive()
}

// cut records a quantity removed from a line by truncation.
type cut struct {
	name string
	from decimal.Decimal
	to   decimal.Decimal
}

func (c cut) released() decimal.Decimal {
	return c.from.Sub(c.to)
}

// summarize prices the sold lines.
func summarize(lines []pricedLine) pricing.Summary {
	items := make([]pricing.Item, 0, len(lines))
	for _, p := range lines {
		if !p.sold() {
			continue
		}
		items = append(items, pricing.Item{
			Name:      p.line.Name(),
			Qty:       p.qty,
			UnitPrice: p.line.Product.UnitPrice,
			TaxRate:   p.line.Product.TaxRate,
		})
	}
	return pricing.Compute(items)
}

// truncate walks lines in order, accepting whole lines while funds last. The first line
// that does not fit is reduced to the whole units still affordable and every later line
// is dropped. lines is modified in place.
func truncate(lines []pricedLine, funds decimal.Decimal) []cut {
	var (
		cuts      []cut
		remaining = funds
		exhausted bool
	)
	for i := range lines {
		p := &lines[i]
		if !p.sold() {
			continue
		}
		if exhausted {
			cuts = append(cuts, cut{name: p.line.Name(), from: p.qty, to: decimal.Zero})
			p.qty, p.total = decimal.Zero, decimal.Zero
			continue
		}
		if p.total.LessThanOrEqual(remaining) {
			remaining = remaining.Sub(p.total)
			continue
		}
		units := pricing.AffordableUnits(remaining, p.line.Product.UnitPrice, p.line.Product.TaxRate, p.qty)
		cuts = append(cuts, cut{name: p.line.Name(), from: p.qty, to: units})
		p.qty = units
		p.total = pricing.LineTotal(p.line.Product.UnitPrice, units, p.line.Product.TaxRate)
		remaining = remaining.Sub(p.total)
		exhausted = true
	}
	return cuts
}

// receiptLine renders the receipt line for a reconciled cart line, or "" when the line
// sold nothing.
func receiptLine(p pricedLine, places int32) string {
	if p.line.Discarded {
		return p.line.Name() + ": " + p.line.Product.UnitPrice.String() + ", x" + p.line.Quantity.String() + ", discarded"
	}
	if !p.qty.IsPositive() {
		return ""
	}
	return pricing.FormatLinePlaces(p.line.Name(), p.line.Product.UnitPrice, p.qty, p.total, places)
}
