package lane

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/obs"
	"github.com/noah-isme/checkout-lane/internal/register"
)

var (
	// ErrEmpty is returned when settlement is requested on an empty lane.
	ErrEmpty = errors.New("lane: empty")
	// ErrAlreadyQueued is returned when a customer already holds a lane position.
	ErrAlreadyQueued = errors.New("lane: customer already queued")
	// ErrNotQueued is returned when the customer is not in this lane.
	ErrNotQueued = errors.New("lane: customer not queued in this lane")
	// ErrSettlementInProgress is returned when a settlement ticket is already open, or
	// when exiting a customer whose settlement has begun.
	ErrSettlementInProgress = errors.New("lane: settlement in progress")
)

// Hold is stock taken from the catalog on behalf of a queued customer.
type Hold struct {
	Item     inventory.Item
	Quantity decimal.Decimal
}

type entry struct {
	customer *customer.Customer
	holds    map[string]Hold
}

// Lane is a FIFO queue of customers (with removal from any position) paired with the
// register that settles them.
type Lane struct {
	ID string

	register *register.Register
	catalog  inventory.Catalog
	logger   zerolog.Logger

	mu    sync.Mutex
	queue []*entry
	open  *Ticket
}

// Option customises a lane.
type Option func(*Lane)

// WithLogger sets the lane logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Lane) {
		l.logger = logger
	}
}

// New creates an empty lane owning reg and reserving stock from catalog.
func New(id string, reg *register.Register, catalog inventory.Catalog, opts ...Option) (*Lane, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("lane: id required")
	}
	if reg == nil {
		return nil, errors.New("lane: register required")
	}
	if catalog == nil {
		return nil, errors.New("lane: catalog required")
	}
	l := &Lane{ID: id, register: reg, catalog: catalog, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("lane_id", id).Logger()
	l.recordDepthLocked()
	return l, nil
}

// Register returns the register owned by the lane.
func (l *Lane) Register() *register.Register {
	return l.register
}

// Catalog returns the catalog the lane reserves stock from.
func (l *Lane) Catalog() inventory.Catalog {
	return l.catalog
}

// Enter appends c to the tail and places holds for its non-discarded lines. Each hold
// takes min(quantity, available) atomically; products missing from the catalog hold
// nothing.
func (l *Lane) Enter(ctx context.Context, c *customer.Customer) error {
	if c == nil || c.Cart == nil {
		return errors.New("lane: customer with cart required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, queued := c.Position(); queued {
		return ErrAlreadyQueued
	}
	holds := make(map[string]Hold)
	for _, line := range c.Cart.Active() {
		taken, err := l.catalog.Take(ctx, line.Name(), line.Quantity)
		if errors.Is(err, inventory.ErrNotFound) {
			continue
		}
		if err != nil {
			if relErr := l.release(ctx, holds); relErr != nil {
				err = errors.Join(err, relErr)
			}
			return fmt.Errorf("lane %s: hold %s: %w", l.ID, line.Name(), err)
		}
		if taken.IsPositive() {
			holds[line.Name()] = Hold{Item: line.Product, Quantity: taken}
		}
	}
	pos := len(l.queue)
	l.queue = append(l.queue, &entry{customer: c, holds: holds})
	c.AssignPosition(pos)
	l.recordDepthLocked()
	l.logger.Debug().Str("customer_id", c.ID.String()).Int("position", pos).Int("holds", len(holds)).Msg("lane_enter")
	return nil
}

// Exit removes c before settlement and returns every hold to the catalog. Either the
// customer leaves with all holds released or stays queued with the holds that could
// not be released yet.
func (l *Lane) Exit(ctx context.Context, c *customer.Customer) error {
	if c == nil {
		return ErrNotQueued
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := l.indexLocked(c)
	if err != nil {
		return err
	}
	if l.open != nil && l.open.Customer == c {
		return ErrSettlementInProgress
	}
	if err := l.release(ctx, l.queue[idx].holds); err != nil {
		return fmt.Errorf("lane %s: exit %s: %w", l.ID, c.Label(), err)
	}
	l.removeLocked(idx)
	l.logger.Debug().Str("customer_id", c.ID.String()).Int("position", idx).Msg("lane_exit")
	return nil
}

// Len returns the number of queued customers.
func (l *Lane) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Customers returns queued customers in order.
func (l *Lane) Customers() []*customer.Customer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*customer.Customer, len(l.queue))
	for i, e := range l.queue {
		out[i] = e.customer
	}
	return out
}

// Holds returns a copy of the stock currently held for c.
func (l *Lane) Holds(c *customer.Customer) (map[string]Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, err := l.indexLocked(c)
	if err != nil {
		return nil, err
	}
	return copyHolds(l.queue[idx].holds), nil
}

// Begin opens settlement for the head customer. Only one ticket may be open per lane;
// the ticketed customer can no longer exit.
func (l *Lane) Begin() (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open != nil {
		return nil, ErrSettlementInProgress
	}
	if len(l.queue) == 0 {
		return nil, ErrEmpty
	}
	head := l.queue[0]
	t := &Ticket{lane: l, Customer: head.customer, Holds: copyHolds(head.holds)}
	head.holds = map[string]Hold{}
	l.open = t
	return t, nil
}

// release returns holds to the catalog, deleting each one once it is re-credited.
func (l *Lane) release(ctx context.Context, holds map[string]Hold) error {
	for name, h := range holds {
		if h.Quantity.IsPositive() {
			if err := l.catalog.Increment(ctx, h.Item, h.Quantity); err != nil {
				return fmt.Errorf("release %s: %w", name, err)
			}
		}
		delete(holds, name)
	}
	return nil
}

func (l *Lane) indexLocked(c *customer.Customer) (int, error) {
	pos, queued := c.Position()
	if !queued || pos < 0 || pos >= len(l.queue) || l.queue[pos].customer != c {
		return 0, ErrNotQueued
	}
	return pos, nil
}

// removeLocked drops the entry at idx and shifts everyone behind it forward so
// positions stay dense.
func (l *Lane) removeLocked(idx int) {
	gone := l.queue[idx].customer
	copy(l.queue[idx:], l.queue[idx+1:])
	l.queue[len(l.queue)-1] = nil
	l.queue = l.queue[:len(l.queue)-1]
	for i := idx; i < len(l.queue); i++ {
		l.queue[i].customer.AssignPosition(i)
	}
	gone.ClearPosition()
	l.recordDepthLocked()
}

func (l *Lane) recordDepthLocked() {
	if obs.LaneDepth == nil {
		return
	}
	obs.LaneDepth.WithLabelValues(l.ID).Set(float64(len(l.queue)))
}

func copyHolds(in map[string]Hold) map[string]Hold {
	out := make(map[string]Hold, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
