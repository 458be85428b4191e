// Package store ties a shared catalog to the checkout lanes that draw from it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/events"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/lane"
	"github.com/noah-isme/checkout-lane/internal/register"
	"github.com/noah-isme/checkout-lane/internal/settlement"
)

var (
	// ErrLaneExists is returned when opening a lane id twice.
	ErrLaneExists = errors.New("store: lane already open")
	// ErrUnknownLane is returned for lane ids that were never opened.
	ErrUnknownLane = errors.New("store: unknown lane")
)

// Store owns the catalog, the open lanes and the engine that settles them.
type Store struct {
	catalog inventory.Catalog
	engine  *settlement.Engine
	bus     *events.Bus
	logger  zerolog.Logger

	mu    sync.RWMutex
	lanes map[string]*lane.Lane
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the store logger; lanes inherit it.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithEvents publishes lane events to bus.
func WithEvents(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// New returns a store over catalog settled by engine.
func New(catalog inventory.Catalog, engine *settlement.Engine, opts ...Option) (*Store, error) {
	if catalog == nil {
		return nil, errors.New("store: catalog required")
	}
	if engine == nil {
		return nil, errors.New("store: settlement engine required")
	}
	s := &Store{
		catalog: catalog,
		engine:  engine,
		logger:  zerolog.Nop(),
		lanes:   make(map[string]*lane.Lane),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Catalog returns the shared catalog.
func (s *Store) Catalog() inventory.Catalog {
	return s.catalog
}

// AddItem stocks (or restocks) an item.
func (s *Store) AddItem(ctx context.Context, item inventory.Item) error {
	return s.catalog.Stock(ctx, item)
}

// OpenLane creates a lane with its own register holding registerFunds.
func (s *Store) OpenLane(id string, registerFunds decimal.Decimal) (*lane.Lane, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lanes[id]; ok {
		return nil, fmt.Errorf("%s: %w", id, ErrLaneExists)
	}
	reg, err := register.New(id, registerFunds)
	if err != nil {
		return nil, err
	}
	l, err := lane.New(id, reg, s.catalog, lane.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.lanes[id] = l
	s.logger.Info().Str("lane_id", id).Str("register_funds", registerFunds.String()).Msg("lane_opened")
	return l, nil
}

// Lane returns an open lane.
func (s *Store) Lane(id string) (*lane.Lane, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lanes[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownLane)
	}
	return l, nil
}

// Lanes returns open lanes sorted by id.
func (s *Store) Lanes() []*lane.Lane {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*lane.Lane, 0, len(s.lanes))
	for _, l := range s.lanes {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enter queues c at lane laneID.
func (s *Store) Enter(ctx context.Context, laneID string, c *customer.Customer) error {
	l, err := s.Lane(laneID)
	if err != nil {
		return err
	}
	return l.Enter(ctx, c)
}

// Exit removes c from lane laneID and publishes lane.exited.
func (s *Store) Exit(ctx context.Context, laneID string, c *customer.Customer) error {
	l, err := s.Lane(laneID)
	if err != nil {
		return err
	}
	if err := l.Exit(ctx, c); err != nil {
		return err
	}
	if s.bus != nil {
		payload := map[string]string{"laneId": laneID, "customer": c.Label()}
		if _, err := s.bus.Emit(ctx, events.TopicLaneExited, c.ID.String(), payload); err != nil {
			s.logger.Warn().Err(err).Str("lane_id", laneID).Msg("publish lane exit")
		}
	}
	return nil
}

// Settle runs the engine over one lane.
func (s *Store) Settle(ctx context.Context, laneID string) ([]settlement.Result, error) {
	l, err := s.Lane(laneID)
	if err != nil {
		return nil, err
	}
	return s.engine.Run(ctx, l)
}

// DrainAll settles every open lane concurrently, one goroutine per lane, against the
// shared catalog. Results are keyed by lane id; the first lane error is returned after
// every lane has finished.
func (s *Store) DrainAll(ctx context.Context) (map[string][]settlement.Result, error) {
	lanes := s.Lanes()
	results := make([][]settlement.Result, len(lanes))
	var g errgroup.Group
	for i, l := range lanes {
		g.Go(func() error {
			res, err := s.engine.Run(ctx, l)
			results[i] = res
			if err != nil {
				return fmt.Errorf("lane %s: %w", l.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	out := make(map[string][]settlement.Result, len(lanes))
	for i, l := range lanes {
		out[l.ID] = results[i]
	}
	return out, err
}
