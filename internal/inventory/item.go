package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/common"
)

var (
	// ErrNotFound indicates the item is not (or no longer) in the catalog.
	ErrNotFound = errors.New("inventory item not found")
	// ErrOutOfStock is returned when an all-or-nothing decrement cannot be satisfied.
	ErrOutOfStock = errors.New("inventory out of stock")
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("inventory quantity must be positive")
	// ErrInvalidItem is returned when stocking an item that fails validation.
	ErrInvalidItem = errors.New("invalid inventory item")
)

// Item is a catalog entry. TaxRate is a multiplicative factor (1.08 == 8% tax).
type Item struct {
	Name      string          `json:"name" yaml:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unitPrice" yaml:"unitPrice" validate:"gte=0"`
	TaxRate   decimal.Decimal `json:"taxRate" yaml:"taxRate" validate:"gte=0"`
	Count     decimal.Decimal `json:"count" yaml:"count" validate:"gte=0"`
}

// Validate checks the item invariants.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("name required: %w", ErrInvalidItem)
	}
	if err := common.ValidateStruct(i); err != nil {
		return fmt.Errorf("%s: %v: %w", i.Name, err, ErrInvalidItem)
	}
	// The float comparison above is inexact; negative values must never slip through.
	if i.UnitPrice.IsNegative() || i.TaxRate.IsNegative() || i.Count.IsNegative() {
		return fmt.Errorf("%s: negative field: %w", i.Name, ErrInvalidItem)
	}
	return nil
}

// Catalog is the authoritative store of items shared by every lane. Implementations
// must make each mutation a single critical section so concurrent lanes never oversell.
type Catalog interface {
	// Lookup returns the current item or ErrNotFound.
	Lookup(ctx context.Context, name string) (Item, error)
	// Stock adds item.Count to the existing count (creating the item when absent) and
	// refreshes price and tax.
	Stock(ctx context.Context, item Item) error
	// Decrement removes exactly qty or fails with ErrOutOfStock / ErrNotFound.
	Decrement(ctx context.Context, name string, qty decimal.Decimal) error
	// Take removes min(qty, available) and reports the amount removed.
	Take(ctx context.Context, name string, qty decimal.Decimal) (decimal.Decimal, error)
	// Increment returns qty to the catalog, re-creating the item from the snapshot
	// when it was removed at zero.
	Increment(ctx context.Context, item Item, qty decimal.Decimal) error
	// Remove deletes the item.
	Remove(ctx context.Context, name string) error
	// Items returns every item sorted by name.
	Items(ctx context.Context) ([]Item, error)
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}
