package settlement

import (
	"errors"
	"fmt"
	"strings"
)

//go:generate go tool stringer -type=Outcome -output=outcome_string.go

// Outcome tags how a customer's payment was resolved.
type Outcome int

const (
	// Paid means funds covered the total and any change was paid in full.
	Paid Outcome = iota
	// PaidWithChangeShortfall means the sale completed but the register could not pay
	// all change owed.
	PaidWithChangeShortfall
	// TruncatedPartial means the purchase was reduced to what funds allowed.
	TruncatedPartial
	// SettledWithBalance means the full sale went through and the customer owes the
	// shortfall as a pending balance.
	SettledWithBalance
)

// Mode selects how much of a lane one settlement pass processes.
type Mode string

const (
	// ModeDrain settles customers in FIFO order until the lane is empty.
	ModeDrain Mode = "drain"
	// ModeHead settles only the customer at the head.
	ModeHead Mode = "head"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("settlement: unknown mode")

// ParseMode parses "drain" (default when empty) or "head".
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeDrain:
		return ModeDrain, nil
	case ModeHead:
		return ModeHead, nil
	default:
		return ModeDrain, fmt.Errorf("%q: %w", value, ErrUnknownMode)
	}
}
