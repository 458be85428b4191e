package cart

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/inventory"
)

// ErrInvalidQuantity is returned when a line is added with a non-positive quantity.
var ErrInvalidQuantity = errors.New("cart: quantity must be positive")

// Line is one product in a cart. Product is the catalog snapshot taken when the line
// was added.
type Line struct {
	Product   inventory.Item
	Quantity  decimal.Decimal
	Discarded bool
}

// Name returns the product name keying the line.
func (l Line) Name() string {
	return l.Product.Name
}

// Cart holds a customer's lines keyed by product name. It is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	lines map[string]Line
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: make(map[string]Line)}
}

// AddLine inserts or replaces the line for item.Name.
func (c *Cart) AddLine(item inventory.Item, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%s x%s: %w", item.Name, quantity, ErrInvalidQuantity)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lines == nil {
		c.lines = make(map[string]Line)
	}
	c.lines[item.Name] = Line{Product: item, Quantity: quantity}
	return nil
}

// RemoveLine deletes the line; absent names are ignored.
func (c *Cart) RemoveLine(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, name)
}

// DiscardLine flags the line as abandoned. It reports whether the line exists.
func (c *Cart) DiscardLine(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, ok := c.lines[name]
	if !ok {
		return false
	}
	line.Discarded = true
	c.lines[name] = line
	return true
}

// Line returns the line for name.
func (c *Cart) Line(name string) (Line, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, ok := c.lines[name]
	return line, ok
}

// Lines returns a copy of every line sorted by product name.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Active returns the non-discarded lines sorted by product name.
func (c *Cart) Active() []Line {
	all := c.Lines()
	out := all[:0]
	for _, line := range all {
		if !line.Discarded {
			out = append(out, line)
		}
	}
	return out
}

// Len returns the number of lines, discarded ones included.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}
