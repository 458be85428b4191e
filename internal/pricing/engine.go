package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value. Amounts are exact decimals.
type Money = decimal.Decimal

// Item describes a line item used for pricing calculation.
type Item struct {
	Name      string
	Qty       decimal.Decimal
	UnitPrice Money
	TaxRate   decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money
	Tax      Money
	Total    Money
}

// LineTotal returns unitPrice * qty * taxRate. Negative inputs price at zero.
func LineTotal(unitPrice Money, qty, taxRate decimal.Decimal) Money {
	if unitPrice.IsNegative() || qty.IsNegative() || taxRate.IsNegative() {
		return decimal.Zero
	}
	return unitPrice.Mul(qty).Mul(taxRate)
}

// UnitCost is the taxed price of one unit.
func UnitCost(unitPrice Money, taxRate decimal.Decimal) Money {
	return LineTotal(unitPrice, decimal.NewFromInt(1), taxRate)
}

// Compute calculates totals for the provided lines.
func Compute(items []Item) Summary {
	subtotal := decimal.Zero
	total := decimal.Zero
	for _, it := range items {
		if !it.Qty.IsPositive() {
			continue
		}
		base := it.UnitPrice.Mul(it.Qty)
		if base.IsNegative() {
			continue
		}
		subtotal = subtotal.Add(base)
		total = total.Add(LineTotal(it.UnitPrice, it.Qty, it.TaxRate))
	}
	return Summary{
		Subtotal: subtotal,
		Tax:      total.Sub(subtotal),
		Total:    total,
	}
}

// AffordableUnits returns the largest whole number of units, capped at qty, whose
// taxed cost fits within budget.
func AffordableUnits(budget Money, unitPrice Money, taxRate, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() || budget.IsNegative() {
		return decimal.Zero
	}
	cost := UnitCost(unitPrice, taxRate)
	if !cost.IsPositive() {
		return qty
	}
	units := budget.Div(cost).Floor()
	if units.GreaterThan(qty) {
		return qty
	}
	// Div rounds at DivisionPrecision; step back if that pushed us over budget.
	for units.IsPositive() && cost.Mul(units).GreaterThan(budget) {
		units = units.Sub(decimal.NewFromInt(1))
	}
	return units
}

// FormatLine renders the canonical receipt line for a purchased item.
func FormatLine(name string, unitPrice Money, qty decimal.Decimal, lineTotal Money) string {
	return FormatLinePlaces(name, unitPrice, qty, lineTotal, -1)
}

// FormatLinePlaces is FormatLine with the unit price and line total rounded half away
// from zero to places decimal places for display. A negative places renders exact
// amounts. Quantities and settled amounts are never rounded.
func FormatLinePlaces(name string, unitPrice Money, qty decimal.Decimal, lineTotal Money, places int32) string {
	return fmt.Sprintf("%s: %s, x%s, item_total: %s", name, display(unitPrice, places), qty.String(), display(lineTotal, places))
}

func display(m Money, places int32) string {
	if places < 0 {
		return m.String()
	}
	return m.Round(places).String()
}
