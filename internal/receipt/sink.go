package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-lane/internal/resilience"
)

// TypeDeliver is the asynq task type carrying one receipt.
const TypeDeliver = "receipt:deliver"

// Sink receives every receipt produced by settlement.
type Sink interface {
	Emit(ctx context.Context, r Receipt) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Receipt) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r Receipt) error {
	return f(ctx, r)
}

// WriterSink prints receipts as text, separated by a blank line.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{W: w}
}

// Emit writes the receipt text.
func (s *WriterSink) Emit(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.W, r.Text()+"\n"); err != nil {
		return fmt.Errorf("receipt: write: %w", err)
	}
	return nil
}

// JSONSink writes one JSON document per receipt.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink returns a sink encoding receipts to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// Emit encodes the receipt.
func (s *JSONSink) Emit(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("receipt: encode: %w", err)
	}
	return nil
}

// LogSink logs a summary of each receipt.
type LogSink struct {
	Logger zerolog.Logger
}

// Emit logs the receipt at info level.
func (s LogSink) Emit(_ context.Context, r Receipt) error {
	s.Logger.Info().
		Str("receipt_id", r.ID().String()).
		Str("customer_id", r.CustomerID()).
		Str("lane_id", r.LaneID()).
		Str("outcome", r.Outcome()).
		Str("total", r.Total().String()).
		Str("charged", r.Charged().String()).
		Int("lines", len(r.lines)).
		Msg("receipt_issued")
	return nil
}

// MemorySink keeps the most recent receipts in a fixed-size ring.
type MemorySink struct {
	mu   sync.RWMutex
	buf  []Receipt
	next int
	full bool
}

// NewMemorySink returns a ring holding up to capacity receipts (minimum 1).
func NewMemorySink(capacity int) *MemorySink {
	if capacity < 1 {
		capacity = 1
	}
	return &MemorySink{buf: make([]Receipt, capacity)}
}

// Emit stores the receipt, overwriting the oldest when full.
func (s *MemorySink) Emit(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = r
	s.next = (s.next + 1) % len(s.buf)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns stored receipts, oldest first.
func (s *MemorySink) Recent() []Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.full {
		return append([]Receipt(nil), s.buf[:s.next]...)
	}
	out := make([]Receipt, 0, len(s.buf))
	out = append(out, s.buf[s.next:]...)
	return append(out, s.buf[:s.next]...)
}

// Enqueuer is the subset of *asynq.Client used by QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands receipts to an asynq queue for out-of-process delivery.
type QueueSink struct {
	Client Enqueuer
	Queue  string
}

// Emit enqueues a delivery task.
func (s QueueSink) Emit(ctx context.Context, r Receipt) error {
	if s.Client == nil {
		return errors.New("receipt: queue client not configured")
	}
	task, err := NewDeliverTask(r)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if _, err := s.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("receipt: enqueue %s: %w", r.ID(), err)
	}
	return nil
}

// GuardedSink stops calling Sink while Breaker is open so a dead downstream does
// not slow every settlement.
type GuardedSink struct {
	Sink    Sink
	Breaker *resilience.Breaker
}

// Emit forwards r through the breaker.
func (g GuardedSink) Emit(ctx context.Context, r Receipt) error {
	if g.Breaker == nil {
		return g.Sink.Emit(ctx, r)
	}
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Sink.Emit(ctx, r)
	})
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return fmt.Errorf("receipt: skip %s: %w", r.ID(), err)
	}
	return err
}

// NewDeliverTask encodes r as a TypeDeliver task. The receipt id doubles as the task id
// so a receipt is enqueued at most once.
func NewDeliverTask(r Receipt) (*asynq.Task, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("receipt: encode task: %w", err)
	}
	return asynq.NewTask(TypeDeliver, payload, asynq.TaskID(r.ID().String())), nil
}

// DecodeTask extracts the receipt carried by a TypeDeliver task.
func DecodeTask(t *asynq.Task) (Receipt, error) {
	var r Receipt
	if t.Type() != TypeDeliver {
		return r, fmt.Errorf("receipt: unexpected task type %q", t.Type())
	}
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		return r, fmt.Errorf("receipt: decode task: %w", err)
	}
	return r, nil
}

// MultiSink fans a receipt out to every sink, joining failures.
type MultiSink []Sink

// Emit delivers to all sinks even when one fails.
func (m MultiSink) Emit(ctx context.Context, r Receipt) error {
	var joined error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, r); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

// DeliveryHandler consumes tasks produced by QueueSink and passes each receipt to Sink.
// It implements asynq.Handler.
type DeliveryHandler struct {
	Sink Sink
}

// ProcessTask decodes the receipt and emits it. Undecodable payloads are not retried.
func (h DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if h.Sink == nil {
		return errors.New("receipt: delivery sink not configured")
	}
	r, err := DecodeTask(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return h.Sink.Emit(ctx, r)
}
