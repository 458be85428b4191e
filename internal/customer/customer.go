package customer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/cart"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the customer's funds.
	ErrInsufficientFunds = errors.New("customer: insufficient funds")
	// ErrInvalidAmount is returned for negative (or zero, where required) amounts.
	ErrInvalidAmount = errors.New("customer: invalid amount")
	// ErrUnknownPreference is returned when parsing an unsupported preference.
	ErrUnknownPreference = errors.New("customer: unknown checkout preference")
)

//go:generate go tool stringer -type=Preference -output=preference_string.go

// Preference governs settlement when funds do not cover the total.
type Preference int

const (
	// Truncate limits the purchase to what the customer can afford.
	Truncate Preference = iota
	// Cover completes the full purchase and records the shortfall as a pending balance.
	Cover
)

// ParsePreference parses "truncate" or "cover" (case-insensitive).
func ParsePreference(value string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "truncate":
		return Truncate, nil
	case "cover":
		return Cover, nil
	default:
		return Truncate, fmt.Errorf("%q: %w", value, ErrUnknownPreference)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Preference) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(p.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Preference) UnmarshalText(text []byte) error {
	parsed, err := ParsePreference(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Customer is a shopper with cash funds and a cart. Position is maintained by the lane
// the customer is queued in; a customer never references the lane itself.
type Customer struct {
	ID         uuid.UUID
	Name       string
	Cart       *cart.Cart
	Preference Preference

	mu       sync.Mutex
	funds    decimal.Decimal
	balance  decimal.Decimal
	position int
	queued   bool
}

// New creates a customer with an empty cart.
func New(name string, funds decimal.Decimal, pref Preference) (*Customer, error) {
	if funds.IsNegative() {
		return nil, fmt.Errorf("funds %s: %w", funds, ErrInvalidAmount)
	}
	return &Customer{
		ID:         uuid.New(),
		Name:       name,
		Cart:       cart.New(),
		Preference: pref,
		funds:      funds,
	}, nil
}

// Funds returns the cash the customer currently holds.
func (c *Customer) Funds() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.funds
}

// Balance returns the amount the customer still owes from Cover settlements.
func (c *Customer) Balance() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}

// Deposit adds cash to the customer's funds.
func (c *Customer) Deposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit %s: %w", amount, ErrInvalidAmount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funds = c.funds.Add(amount)
	return nil
}

// Debit removes exactly amount from funds.
func (c *Customer) Debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: %w", amount, ErrInvalidAmount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.funds.LessThan(amount) {
		return fmt.Errorf("debit %s of %s: %w", amount, c.funds, ErrInsufficientFunds)
	}
	c.funds = c.funds.Sub(amount)
	return nil
}

// DebitAll empties the customer's funds and returns what was taken.
func (c *Customer) DebitAll() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	taken := c.funds
	c.funds = decimal.Zero
	return taken
}

// AddBalance records an amount owed by the customer.
func (c *Customer) AddBalance(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("balance %s: %w", amount, ErrInvalidAmount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = c.balance.Add(amount)
	return nil
}

// PayBalance pays as much of the pending balance as funds allow and returns the amount
// paid.
func (c *Customer) PayBalance() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	paid := decimal.Min(c.funds, c.balance)
	c.funds = c.funds.Sub(paid)
	c.balance = c.balance.Sub(paid)
	return paid
}

// Position returns the customer's index in its lane and whether it is queued.
func (c *Customer) Position() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, c.queued
}

// AssignPosition is called by the owning lane on enter and after removals ahead.
func (c *Customer) AssignPosition(pos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = pos
	c.queued = true
}

// ClearPosition is called by the owning lane when the customer leaves it.
func (c *Customer) ClearPosition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = 0
	c.queued = false
}

// Label returns a short identifier for logs and receipts.
func (c *Customer) Label() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.ID.String()
}
