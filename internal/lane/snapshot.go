package lane

import "github.com/shopspring/decimal"

// QueuedCustomer is a read-only view of a queued customer.
type QueuedCustomer struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Position int             `json:"position"`
	Funds    decimal.Decimal `json:"funds"`
	Settling bool            `json:"settling"`
}

// View is a read-only view of a lane.
type View struct {
	ID            string           `json:"id"`
	RegisterID    string           `json:"registerId"`
	RegisterFunds decimal.Decimal  `json:"registerFunds"`
	Customers     []QueuedCustomer `json:"customers"`
}

// Snapshot returns the current lane state.
func (l *Lane) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := View{
		ID:            l.ID,
		RegisterID:    l.register.ID,
		RegisterFunds: l.register.Funds(),
		Customers:     make([]QueuedCustomer, 0, len(l.queue)),
	}
	for i, e := range l.queue {
		v.Customers = append(v.Customers, QueuedCustomer{
			ID:       e.customer.ID.String(),
			Name:     e.customer.Name,
			Position: i,
			Funds:    e.customer.Funds(),
			Settling: l.open != nil && l.open.Customer == e.customer,
		})
	}
	return v
}
