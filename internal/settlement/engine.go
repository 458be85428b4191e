// Package settlement drains checkout lanes: it prices each customer's cart against the
// stock held for it, resolves payment, moves cash between customer and register and
// issues a receipt.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/checkout-lane/internal/cart"
	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/events"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/lane"
	"github.com/noah-isme/checkout-lane/internal/lock"
	"github.com/noah-isme/checkout-lane/internal/pricing"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/register"
)

const instrumentationName = "github.com/noah-isme/checkout-lane/internal/settlement"

var (
	// ErrLaneEmpty is returned by SettleNext when nobody is queued.
	ErrLaneEmpty = lane.ErrEmpty
	// ErrReceiptDelivery wraps sink failures. The settlement itself stands.
	ErrReceiptDelivery = errors.New("settlement: receipt delivery failed")
)

// Result describes one settled customer.
type Result struct {
	Receipt  receipt.Receipt
	Customer *customer.Customer
	LaneID   string
	Outcome  Outcome
	// Total is the priced total of what was sold.
	Total decimal.Decimal
	// Charged is what the customer paid towards Total.
	Charged         decimal.Decimal
	ChangeGiven     decimal.Decimal
	ChangeShortfall decimal.Decimal
	// Balance is the pending amount this settlement added to the customer.
	Balance decimal.Decimal
}

// Engine settles lanes. Create it with New; the zero value is not usable.
type Engine struct {
	sink   receipt.Sink
	logger zerolog.Logger
	mode   Mode
	locker lock.Locker
	bus    *events.Bus
	now    func() time.Time
	places int32

	initOnce sync.Once
	tracer   trace.Tracer
	issued   metric.Int64Counter
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMode selects drain or head processing for Run.
func WithMode(mode Mode) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithLocker serialises settlements per register through locker.
func WithLocker(locker lock.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithEvents publishes domain events to bus.
func WithEvents(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDisplayPlaces rounds receipt line prices to places decimals for display.
// Negative keeps exact amounts, which is the default.
func WithDisplayPlaces(places int32) Option {
	return func(e *Engine) { e.places = places }
}

// New returns an engine emitting receipts to sink (nil discards them).
func New(sink receipt.Sink, opts ...Option) *Engine {
	e := &Engine{
		sink:   sink,
		logger: zerolog.Nop(),
		mode:   ModeDrain,
		now:    time.Now,
		places: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "settlement").Logger()
	return e
}

// Mode reports the configured processing mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

func (e *Engine) init() {
	e.initOnce.Do(func() {
		e.tracer = otel.Tracer(instrumentationName)
		counter, err := otel.Meter(instrumentationName).Int64Counter(
			"checkout.receipts.issued",
			metric.WithDescription("Receipts issued by settlement."),
		)
		if err != nil {
			e.logger.Warn().Err(err).Msg("receipt counter unavailable")
		}
		e.issued = counter
	})
}

// Run processes l according to the engine mode.
func (e *Engine) Run(ctx context.Context, l *lane.Lane) ([]Result, error) {
	if e.mode == ModeHead {
		res, err := e.SettleNext(ctx, l)
		if errors.Is(err, ErrLaneEmpty) {
			return nil, nil
		}
		if res.Customer == nil {
			return nil, err
		}
		return []Result{res}, err
	}
	return e.Drain(ctx, l)
}

// Drain settles customers in FIFO order until the lane is empty. Receipt delivery
// failures are collected and do not stop the pass.
func (e *Engine) Drain(ctx context.Context, l *lane.Lane) ([]Result, error) {
	var (
		results []Result
		joined  error
	)
	for {
		if err := ctx.Err(); err != nil {
			return results, errors.Join(joined, err)
		}
		res, err := e.SettleNext(ctx, l)
		switch {
		case err == nil:
			results = append(results, res)
		case errors.Is(err, ErrLaneEmpty):
			return results, joined
		case errors.Is(err, ErrReceiptDelivery):
			results = append(results, res)
			joined = errors.Join(joined, err)
		default:
			return results, errors.Join(joined, err)
		}
	}
}

// SettleNext settles the customer at the head of l. When a Locker is configured the
// settlement runs under the lock "register:<id>".
func (e *Engine) SettleNext(ctx context.Context, l *lane.Lane) (Result, error) {
	if l == nil {
		return Result{}, errors.New("settlement: lane required")
	}
	e.init()
	var res Result
	run := func(ctx context.Context) error {
		t, err := l.Begin()
		if err != nil {
			return err
		}
		res, err = e.settle(ctx, l, t)
		return err
	}
	var err error
	if e.locker == nil {
		err = run(ctx)
	} else {
		err = e.locker.WithLock(ctx, "register:"+l.Register().ID, run)
	}
	return res, err
}

func (e *Engine) settle(ctx context.Context, l *lane.Lane, t *lane.Ticket) (Result, error) {
	c := t.Customer
	reg := l.Register()
	ctx, span := e.tracer.Start(ctx, "settlement.Engine.Settle", trace.WithAttributes(
		attribute.String("lane.id", l.ID),
		attribute.String("register.id", reg.ID),
		attribute.String("customer.id", c.ID.String()),
	))
	defer span.End()

	logger := e.logger.With().Str("lane_id", l.ID).Str("customer_id", c.ID.String()).Logger()
	b := receipt.NewBuilder(c.ID.String(), c.Label(), l.ID, reg.ID)

	fail := func(err error) (Result, error) {
		if abortErr := t.Abort(); abortErr != nil {
			err = errors.Join(err, abortErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("settlement_aborted")
		return Result{}, fmt.Errorf("settlement: lane %s customer %s: %w", l.ID, c.Label(), err)
	}

	lines, err := e.reconcile(ctx, l.Catalog(), t, b)
	if err != nil {
		return fail(err)
	}

	funds := c.Funds()
	summary := summarize(lines)
	truncated := false
	if summary.Total.GreaterThan(funds) && c.Preference == customer.Truncate {
		if err := applyCuts(ctx, l.Catalog(), t, truncate(lines, funds), b); err != nil {
			return fail(err)
		}
		summary = summarize(lines)
		truncated = true
	}

	res, err := pay(c, reg, funds, summary.Total, truncated, b)
	if err != nil {
		return fail(err)
	}
	res.Customer = c
	res.LaneID = l.ID

	if err := t.Complete(); err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("settlement: complete %s: %w", c.Label(), err)
	}

	for _, p := range lines {
		if text := receiptLine(p, e.places); text != "" {
			b.Line(text)
		}
	}
	res.Receipt = b.
		Totals(summary.Subtotal, summary.Tax, summary.Total).
		Payment(res.Charged, res.ChangeGiven, res.ChangeShortfall, res.Balance).
		Outcome(res.Outcome.String()).
		Build(e.now())

	span.SetAttributes(
		attribute.String("settlement.outcome", res.Outcome.String()),
		attribute.String("settlement.total", res.Total.String()),
	)
	e.record(ctx, reg, res)
	logger.Info().
		Str("outcome", res.Outcome.String()).
		Str("total", res.Total.String()).
		Str("charged", res.Charged.String()).
		Str("change", res.ChangeGiven.String()).
		Str("balance", res.Balance.String()).
		Msg("checkout_settled")

	var joined error
	if e.sink != nil {
		if err := e.sink.Emit(ctx, res.Receipt); err != nil {
			logger.Error().Err(err).Str("receipt_id", res.Receipt.ID().String()).Msg("receipt_delivery_failed")
			joined = fmt.Errorf("%w: %w", ErrReceiptDelivery, err)
		}
	}
	if err := e.publish(ctx, res); err != nil {
		logger.Warn().Err(err).Msg("publish settlement events")
	}
	return res, joined
}

// reconcile brings every hold in line with the cart: more stock is taken for lines
// held short, surplus and discarded holds go back to the catalog. Lines come back in
// name order with the quantity actually secured.
func (e *Engine) reconcile(ctx context.Context, cat inventory.Catalog, t *lane.Ticket, b *receipt.Builder) ([]pricedLine, error) {
	lines := t.Customer.Cart.Lines()
	inCart := make(map[string]struct{}, len(lines))
	out := make([]pricedLine, 0, len(lines))
	for _, line := range lines {
		name := line.Name()
		inCart[name] = struct{}{}
		if line.Discarded {
			if err := releaseHold(ctx, cat, t, name, "discarded"); err != nil {
				return nil, err
			}
			out = append(out, pricedLine{line: line, qty: decimal.Zero, total: decimal.Zero})
			continue
		}
		qty, err := secure(ctx, cat, t, line, b)
		if err != nil {
			return nil, err
		}
		out = append(out, pricedLine{
			line:  line,
			qty:   qty,
			total: pricing.LineTotal(line.Product.UnitPrice, qty, line.Product.TaxRate),
		})
	}

	orphans := make([]string, 0)
	for name := range t.Holds {
		if _, ok := inCart[name]; !ok {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		if err := releaseHold(ctx, cat, t, name, "removed"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// secure makes the ticket hold exactly the requested quantity when stock allows and
// returns the quantity held. The catalog is consulted at the moment of taking.
func secure(ctx context.Context, cat inventory.Catalog, t *lane.Ticket, line cart.Line, b *receipt.Builder) (decimal.Decimal, error) {
	name := line.Name()
	want := line.Quantity
	h, held := t.Holds[name]
	if !held {
		h = lane.Hold{Item: line.Product, Quantity: decimal.Zero}
	}

	switch {
	case h.Quantity.LessThan(want):
		taken, err := cat.Take(ctx, name, want.Sub(h.Quantity))
		missing := errors.Is(err, inventory.ErrNotFound)
		if missing {
			taken, err = decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("take %s: %w", name, err)
		}
		if taken.IsPositive() {
			h.Quantity = h.Quantity.Add(taken)
			t.Holds[name] = h
		}
		if h.Quantity.LessThan(want) {
			reason := "out_of_stock"
			if missing && h.Quantity.IsZero() {
				reason = "stale"
			}
			noteShortage(b, name, want, h.Quantity, reason)
			recordAdjustment(reason)
		}
	case h.Quantity.GreaterThan(want):
		if err := cat.Increment(ctx, h.Item, h.Quantity.Sub(want)); err != nil {
			return decimal.Zero, fmt.Errorf("release surplus %s: %w", name, err)
		}
		h.Quantity = want
		t.Holds[name] = h
		recordAdjustment("surplus_released")
	}
	if h.Quantity.IsZero() {
		delete(t.Holds, name)
	}
	return h.Quantity, nil
}

func noteShortage(b *receipt.Builder, name string, want, got decimal.Decimal, reason string) {
	switch {
	case reason == "stale":
		b.Note("%s: no longer stocked, x%s not sold", name, want)
	case got.IsZero():
		b.Note("%s: out of stock, x%s not sold", name, want)
	default:
		b.Note("%s: out of stock, reduced from x%s to x%s", name, want, got)
	}
}

// releaseHold returns the ticket's hold on name, if any, to the catalog.
func releaseHold(ctx context.Context, cat inventory.Catalog, t *lane.Ticket, name, reason string) error {
	h, ok := t.Holds[name]
	if !ok {
		return nil
	}
	if h.Quantity.IsPositive() {
		if err := cat.Increment(ctx, h.Item, h.Quantity); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		recordAdjustment(reason + "_released")
	}
	delete(t.Holds, name)
	return nil
}

// applyCuts returns truncated quantities to the catalog.
func applyCuts(ctx context.Context, cat inventory.Catalog, t *lane.Ticket, cuts []cut, b *receipt.Builder) error {
	for _, c := range cuts {
		h, ok := t.Holds[c.name]
		if !ok {
			continue
		}
		back := c.released()
		if back.IsPositive() {
			if err := cat.Increment(ctx, h.Item, back); err != nil {
				return fmt.Errorf("release truncated %s: %w", c.name, err)
			}
		}
		h.Quantity = c.to
		if h.Quantity.IsZero() {
			delete(t.Holds, c.name)
			b.Note("%s: dropped x%s, insufficient funds", c.name, c.from)
		} else {
			t.Holds[c.name] = h
			b.Note("%s: reduced from x%s to x%s, insufficient funds", c.name, c.from, c.to)
		}
		recordAdjustment("truncated")
	}
	return nil
}

// pay moves cash for a sale of total given the customer's funds before settlement.
// Truncation, when it applies, has already brought total within funds and owes no
// change.
func pay(c *customer.Customer, reg *register.Register, funds, total decimal.Decimal, truncated bool, b *receipt.Builder) (Result, error) {
	res := Result{
		Outcome:         Paid,
		Total:           total,
		Charged:         total,
		ChangeGiven:     decimal.Zero,
		ChangeShortfall: decimal.Zero,
		Balance:         decimal.Zero,
	}

	if total.GreaterThan(funds) {
		// Cover: the full sale goes through and the remainder is owed.
		paid := c.DebitAll()
		if paid.GreaterThan(total) {
			if err := c.Deposit(paid.Sub(total)); err != nil {
				return Result{}, err
			}
			paid = total
		}
		owed := total.Sub(paid)
		if err := c.AddBalance(owed); err != nil {
			return Result{}, err
		}
		if err := reg.Credit(paid); err != nil {
			return Result{}, err
		}
		res.Outcome = SettledWithBalance
		res.Charged = paid
		res.Balance = owed
		return res, nil
	}

	if err := c.Debit(total); err != nil {
		return Result{}, err
	}
	collected := total
	change := funds.Sub(total)
	if truncated {
		res.Outcome = TruncatedPartial
		change = decimal.Zero
	}
	if total.IsPositive() && change.IsPositive() {
		err := reg.TryDebit(change)
		switch {
		case err == nil:
			res.ChangeGiven = change
		case errors.Is(err, register.ErrInsufficientChange):
			res.ChangeGiven = reg.DebitUpTo(change)
			res.ChangeShortfall = change.Sub(res.ChangeGiven)
			res.Outcome = PaidWithChangeShortfall
			b.Note("change not available: %s short", res.ChangeShortfall)
		default:
			return Result{}, err
		}
		collected = total.Add(res.ChangeGiven)
	}
	if err := reg.Credit(collected); err != nil {
		return Result{}, err
	}
	return res, nil
}
