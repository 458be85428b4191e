package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestLineTotalAppliesTaxFactor(t *testing.T) {
	got := LineTotal(dec("1.00"), dec("4"), dec("1.10"))
	if !got.Equal(dec("4.4")) {
		t.Fatalf("expected 4.4, got %s", got)
	}
}

func TestComputeSummary(t *testing.T) {
	summary := Compute([]Item{
		{Name: "apple", Qty: dec("4"), UnitPrice: dec("1.00"), TaxRate: dec("1.10")},
		{Name: "bread", Qty: dec("1"), UnitPrice: dec("2.50"), TaxRate: dec("1")},
		{Name: "skipped", Qty: dec("0"), UnitPrice: dec("9"), TaxRate: dec("1")},
	})
	if !summary.Subtotal.Equal(dec("6.5")) {
		t.Fatalf("expected subtotal 6.5, got %s", summary.Subtotal)
	}
	if !summary.Tax.Equal(dec("0.4")) {
		t.Fatalf("expected tax 0.4, got %s", summary.Tax)
	}
	if !summary.Total.Equal(dec("6.9")) {
		t.Fatalf("expected total 6.9, got %s", summary.Total)
	}
}

func TestAffordableUnits(t *testing.T) {
	cases := []struct {
		name   string
		budget string
		qty    string
		want   string
	}{
		{name: "clamps to budget", budget: "3", qty: "4", want: "2"},
		{name: "whole line fits", budget: "10", qty: "4", want: "4"},
		{name: "nothing fits", budget: "1", qty: "4", want: "0"},
		{name: "negative budget", budget: "-1", qty: "4", want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AffordableUnits(dec(tc.budget), dec("1.00"), dec("1.10"), dec(tc.qty))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("expected %s units, got %s", tc.want, got)
			}
		})
	}
}

func TestAffordableUnitsFreeItem(t *testing.T) {
	got := AffordableUnits(dec("0"), dec("0"), dec("1.2"), dec("3"))
	if !got.Equal(dec("3")) {
		t.Fatalf("free items are always affordable, got %s", got)
	}
}

func TestFormatLinePlaces(t *testing.T) {
	tests := []struct {
		places int32
		want   string
	}{
		{-1, "gum: 0.333, x3, item_total: 1.0989"},
		{0, "gum: 0, x3, item_total: 1"},
		{2, "gum: 0.33, x3, item_total: 1.1"},
		{3, "gum: 0.333, x3, item_total: 1.099"},
	}
	for _, tt := range tests {
		if got := FormatLinePlaces("gum", dec("0.333"), dec("3"), dec("1.0989"), tt.places); got != tt.want {
			t.Fatalf("places %d: got %q, want %q", tt.places, got, tt.want)
		}
	}
	if got := FormatLinePlaces("apple", dec("3.571425"), dec("1"), dec("3.575"), 2); got != "apple: 3.57, x1, item_total: 3.58" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestFormatLineTrimsTrailingZeros(t *testing.T) {
	line := FormatLine("apple", dec("1.00"), dec("4"), dec("4.40"))
	if line != "apple: 1, x4, item_total: 4.4" {
		t.Fatalf("unexpected line %q", line)
	}
}
