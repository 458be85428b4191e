package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-lane/internal/config"
	"github.com/noah-isme/checkout-lane/internal/events"
	"github.com/noah-isme/checkout-lane/internal/health"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/lock"
	"github.com/noah-isme/checkout-lane/internal/ratelimit"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/resilience"
	"github.com/noah-isme/checkout-lane/internal/settlement"
	"github.com/noah-isme/checkout-lane/internal/store"
)

// Dependencies enumerates the process-wide collaborators shared by the commands.
// With REDIS_URL set the catalog and the register locks live in Redis so several
// processes can serve the same store; otherwise both are in-process.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Redis      *redis.Client
	Catalog    inventory.Catalog
	Locker     lock.Locker
	TaskClient *asynq.Client
	Events     *events.Bus
	Receipts   *receipt.MemorySink
	// QueueBreaker guards TaskClient enqueues.
	QueueBreaker *resilience.Breaker
}

// New wires dependencies from cfg.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	d := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Events:   &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}}},
		Receipts: receipt.NewMemorySink(cfg.ReceiptBuffer),
	}

	if !cfg.UseRedis() {
		mem, err := inventory.NewMemory()
		if err != nil {
			return nil, err
		}
		d.Catalog = mem
		d.Locker = lock.NewLocal()
		return d, nil
	}

	client, err := NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	d.Redis = client
	d.Catalog = inventory.NewRedisCatalog(client, cfg.RedisPrefix)
	d.Locker = lock.Redis{R: client, Prefix: cfg.RedisPrefix, TTL: cfg.LockTTL, RetryBackoff: cfg.LockRetryBackoff}
	if cfg.ReceiptQueue {
		d.TaskClient = asynq.NewClient(TaskRedisOpt(client.Options()))
		d.QueueBreaker = resilience.NewBreaker("receipt_queue", 5, 0.5, 30*time.Second).
			WithLogger(logger.With().Str("component", "breaker").Logger())
	}
	return d, nil
}

// NewRedisClient parses url, instruments the client for tracing and pings it.
func NewRedisClient(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TaskRedisOpt points asynq at the same Redis as opts.
func TaskRedisOpt(opts *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

// Sink fans receipts out to the ring buffer, the log, the delivery queue when enabled,
// and any extra sinks.
func (d *Dependencies) Sink(extra ...receipt.Sink) receipt.Sink {
	sinks := receipt.MultiSink{d.Receipts, receipt.LogSink{Logger: d.Logger}}
	if d.TaskClient != nil {
		sinks = append(sinks, receipt.GuardedSink{
			Sink:    receipt.QueueSink{Client: d.TaskClient, Queue: d.Config.ReceiptQueueName},
			Breaker: d.QueueBreaker,
		})
	}
	return append(sinks, extra...)
}

// EngineOptions configures a settlement engine for this process.
func (d *Dependencies) EngineOptions() ([]settlement.Option, error) {
	mode, err := settlement.ParseMode(d.Config.SettlementMode)
	if err != nil {
		return nil, err
	}
	return []settlement.Option{
		settlement.WithLogger(d.Logger.With().Str("component", "settlement").Logger()),
		settlement.WithMode(mode),
		settlement.WithLocker(d.Locker),
		settlement.WithEvents(d.Events),
		settlement.WithDisplayPlaces(d.Config.ReceiptPlaces),
	}, nil
}

// StoreOptions configures the store for this process.
func (d *Dependencies) StoreOptions() []store.Option {
	return []store.Option{
		store.WithLogger(d.Logger.With().Str("component", "store").Logger()),
		store.WithEvents(d.Events),
	}
}

// RateLimit throttles the ops API, shared through Redis when configured.
func (d *Dependencies) RateLimit() ratelimit.Handler {
	var limiter ratelimit.Limiter = ratelimit.NewFixed()
	if d.Redis != nil {
		limiter = ratelimit.Sliding{Client: d.Redis, Prefix: d.Config.RedisPrefix}
	}
	logger := d.Logger
	return ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Window: d.Config.OpsRateWindow, Max: d.Config.OpsRateLimit},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
}

// Probes lists readiness checks for the ops server.
func (d *Dependencies) Probes() []health.Probe {
	probes := []health.Probe{health.CatalogProbe(d.Catalog)}
	if d.Redis != nil {
		probes = append(probes, health.RedisProbe(d.Redis))
	}
	return probes
}

// Close releases network clients.
func (d *Dependencies) Close() error {
	var joined error
	if d.TaskClient != nil {
		joined = errors.Join(joined, d.TaskClient.Close())
	}
	if d.Redis != nil {
		joined = errors.Join(joined, d.Redis.Close())
	}
	return joined
}
