package lane

import (
	"errors"

	"github.com/noah-isme/checkout-lane/internal/customer"
)

// ErrTicketClosed is returned when completing or aborting a ticket twice.
var ErrTicketClosed = errors.New("lane: settlement ticket closed")

// Ticket is the settlement hand-off for the head customer. The holder owns Holds until
// it calls Complete (holds consumed) or Abort (holds returned to the queued customer).
type Ticket struct {
	lane     *Lane
	Customer *customer.Customer
	Holds    map[string]Hold
}

// LaneID returns the lane the ticket was issued by.
func (t *Ticket) LaneID() string {
	return t.lane.ID
}

// Complete removes the settled customer from the lane.
func (t *Ticket) Complete() error {
	l := t.lane
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open != t {
		return ErrTicketClosed
	}
	l.open = nil
	idx, err := l.indexLocked(t.Customer)
	if err != nil {
		return err
	}
	l.removeLocked(idx)
	l.logger.Debug().Str("customer_id", t.Customer.ID.String()).Msg("lane_settled")
	return nil
}

// Abort closes the ticket without settling; the customer stays at the head with the
// ticket's holds.
func (t *Ticket) Abort() error {
	l := t.lane
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open != t {
		return ErrTicketClosed
	}
	l.open = nil
	idx, err := l.indexLocked(t.Customer)
	if err != nil {
		return err
	}
	l.queue[idx].holds = copyHolds(t.Holds)
	return nil
}
