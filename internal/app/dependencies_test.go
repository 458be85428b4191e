package app_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/app"
	"github.com/noah-isme/checkout-lane/internal/config"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/lock"
	"github.com/noah-isme/checkout-lane/internal/ratelimit"
	"github.com/noah-isme/checkout-lane/internal/receipt"
	"github.com/noah-isme/checkout-lane/internal/resilience"
	"github.com/noah-isme/checkout-lane/internal/settlement"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadForTests(map[string]string{
		"REDIS_URL":             "",
		"RECEIPT_QUEUE_ENABLED": "",
		"SETTLEMENT_MODE":       "",
	})
	require.NoError(t, err)
	return cfg
}

func TestNewInProcess(t *testing.T) {
	cfg := testConfig(t)
	deps, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.IsType(t, &inventory.Memory{}, deps.Catalog)
	require.IsType(t, &lock.Local{}, deps.Locker)
	require.Nil(t, deps.Redis)
	require.Nil(t, deps.TaskClient)
	require.Len(t, deps.Probes(), 1)
	require.IsType(t, &ratelimit.Fixed{}, deps.RateLimit().Limiter)
	require.Equal(t, 120, deps.RateLimit().Config.Max)

	sinks, ok := deps.Sink().(receipt.MultiSink)
	require.True(t, ok)
	require.Len(t, sinks, 2)

	opts, err := deps.EngineOptions()
	require.NoError(t, err)
	require.Equal(t, settlement.ModeDrain, settlement.New(nil, opts...).Mode())
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.ReceiptQueue = true
	cfg.SettlementMode = "head"

	deps, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.IsType(t, &inventory.RedisCatalog{}, deps.Catalog)
	require.IsType(t, lock.Redis{}, deps.Locker)
	require.NotNil(t, deps.TaskClient)
	require.Equal(t, resilience.Closed, deps.QueueBreaker.State())
	require.Len(t, deps.Probes(), 2)
	require.IsType(t, ratelimit.Sliding{}, deps.RateLimit().Limiter)
	for _, p := range deps.Probes() {
		require.NoError(t, p.Check(context.Background()), p.Name)
	}

	sinks, ok := deps.Sink(receipt.NewMemorySink(1)).(receipt.MultiSink)
	require.True(t, ok)
	require.Len(t, sinks, 4)

	opts, err := deps.EngineOptions()
	require.NoError(t, err)
	require.Equal(t, settlement.ModeHead, settlement.New(nil, opts...).Mode())
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + addr
	_, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.ErrorContains(t, err, "ping redis")
}

func TestNewRejectsBadURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "mysql://nope"
	_, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.ErrorContains(t, err, "parse redis url")
}
