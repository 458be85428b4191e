package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"SETTLEMENT_MODE":        "",
		"REDIS_URL":              "",
		"LOCK_TTL":               "",
		"OPS_PORT":               "",
		"OTEL_SAMPLING_RATIO":    "",
		"RECEIPT_QUEUE_ENABLED":  "",
		"RECEIPT_BUFFER":         "",
		"OPS_RATE_LIMIT":         "",
		"OPS_RATE_WINDOW":        "",
		"RECEIPT_DISPLAY_PLACES": "",
	})
	require.NoError(t, err)
	require.Equal(t, "drain", cfg.SettlementMode)
	require.False(t, cfg.UseRedis())
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, ":9090", cfg.OpsAddr())
	require.Equal(t, 1.0, cfg.OTelSampling)
	require.False(t, cfg.ReceiptQueue)
	require.Equal(t, 256, cfg.ReceiptBuffer)
	require.Equal(t, 120, cfg.OpsRateLimit)
	require.Equal(t, time.Minute, cfg.OpsRateWindow)
	require.Equal(t, int32(-1), cfg.ReceiptPlaces)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"SETTLEMENT_MODE":        "HEAD",
		"REDIS_URL":              "redis://localhost:6379/0",
		"REDIS_PREFIX":           "store-7",
		"LOCK_TTL":               "5s",
		"LOCK_RETRY_BACKOFF":     "not-a-duration",
		"OPS_PORT":               "127.0.0.1:9100",
		"OTEL_SAMPLING_RATIO":    "0.25",
		"RECEIPT_QUEUE_ENABLED":  "true",
		"RECEIPT_BUFFER":         "-3",
		"OPS_RATE_LIMIT":         "10",
		"OPS_RATE_WINDOW":        "30s",
		"RECEIPT_DISPLAY_PLACES": "2",
	})
	require.NoError(t, err)
	require.Equal(t, "head", cfg.SettlementMode)
	require.True(t, cfg.UseRedis())
	require.Equal(t, "store-7", cfg.RedisPrefix)
	require.Equal(t, 5*time.Second, cfg.LockTTL)
	require.Equal(t, 50*time.Millisecond, cfg.LockRetryBackoff)
	require.Equal(t, "127.0.0.1:9100", cfg.OpsAddr())
	require.Equal(t, 0.25, cfg.OTelSampling)
	require.True(t, cfg.ReceiptQueue)
	require.Equal(t, 256, cfg.ReceiptBuffer)
	require.Equal(t, 10, cfg.OpsRateLimit)
	require.Equal(t, 30*time.Second, cfg.OpsRateWindow)
	require.Equal(t, int32(2), cfg.ReceiptPlaces)

	cfg, err = config.LoadForTests(map[string]string{"RECEIPT_DISPLAY_PLACES": "-2"})
	require.NoError(t, err)
	require.Equal(t, int32(-1), cfg.ReceiptPlaces)
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"SETTLEMENT_MODE": "batch"})
	require.Error(t, err)

	_, err = config.LoadForTests(map[string]string{
		"SETTLEMENT_MODE":       "drain",
		"REDIS_URL":             "",
		"RECEIPT_QUEUE_ENABLED": "1",
	})
	require.Error(t, err)
}
