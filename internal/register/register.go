package register

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientChange is returned when the register cannot pay out the requested
	// amount.
	ErrInsufficientChange = errors.New("register: insufficient change")
	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("register: invalid amount")
)

// Register is a till. Funds never go negative.
type Register struct {
	ID string

	mu    sync.Mutex
	funds decimal.Decimal
}

// New returns a register holding the provided float.
func New(id string, funds decimal.Decimal) (*Register, error) {
	if funds.IsNegative() {
		return nil, fmt.Errorf("register %s float %s: %w", id, funds, ErrInvalidAmount)
	}
	return &Register{ID: id, funds: funds}, nil
}

// Funds returns the cash on hand.
func (r *Register) Funds() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.funds
}

// Credit adds collected cash.
func (r *Register) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit %s: %w", amount, ErrInvalidAmount)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funds = r.funds.Add(amount)
	return nil
}

// TryDebit pays out exactly amount or fails with ErrInsufficientChange leaving funds
// untouched.
func (r *Register) TryDebit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: %w", amount, ErrInvalidAmount)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.funds.LessThan(amount) {
		return fmt.Errorf("debit %s of %s: %w", amount, r.funds, ErrInsufficientChange)
	}
	r.funds = r.funds.Sub(amount)
	return nil
}

// DebitUpTo pays out as much of amount as the register holds, driving funds to zero
// when short, and returns the amount paid.
func (r *Register) DebitUpTo(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	paid := decimal.Min(r.funds, amount)
	r.funds = r.funds.Sub(paid)
	return paid
}
