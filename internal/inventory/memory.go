package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process catalog. One mutex guards the whole catalog so every
// read-then-write is atomic across lanes.
type Memory struct {
	mu    sync.Mutex
	items map[string]Item
}

// NewMemory constructs a catalog stocked with the provided items.
func NewMemory(items ...Item) (*Memory, error) {
	m := &Memory{items: make(map[string]Item)}
	for _, it := range items {
		if err := m.Stock(context.Background(), it); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Lookup implements Catalog.
func (m *Memory) Lookup(_ context.Context, name string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[name]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

// Stock implements Catalog.
func (m *Memory) Stock(_ context.Context, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if existing, ok := m.items[item.Name]; ok {
		item.Count = existing.Count.Add(item.Count)
	}
	m.setLocked(item)
	return nil
}

// Decrement implements Catalog.
func (m *Memory) Decrement(_ context.Context, name string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[name]
	if !ok {
		return ErrNotFound
	}
	if it.Count.LessThan(qty) {
		return fmt.Errorf("%s: have %s want %s: %w", name, it.Count, qty, ErrOutOfStock)
	}
	it.Count = it.Count.Sub(qty)
	m.setLocked(it)
	return nil
}

// Take implements Catalog.
func (m *Memory) Take(_ context.Context, name string, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[name]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	taken := decimal.Min(it.Count, qty)
	it.Count = it.Count.Sub(taken)
	m.setLocked(it)
	return taken, nil
}

// Increment implements Catalog.
func (m *Memory) Increment(_ context.Context, item Item, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if existing, ok := m.items[item.Name]; ok {
		existing.Count = existing.Count.Add(qty)
		m.setLocked(existing)
		return nil
	}
	item.Count = qty
	m.setLocked(item)
	return nil
}

// Remove implements Catalog.
func (m *Memory) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[name]; !ok {
		return ErrNotFound
	}
	delete(m.items, name)
	return nil
}

// Items implements Catalog.
func (m *Memory) Items(_ context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sortItems(out)
	return out, nil
}

func (m *Memory) init() {
	if m.items == nil {
		m.items = make(map[string]Item)
	}
}

// setLocked stores the item, dropping it once the count reaches zero.
func (m *Memory) setLocked(it Item) {
	if !it.Count.IsPositive() {
		delete(m.items, it.Name)
		return
	}
	m.items[it.Name] = it
}
