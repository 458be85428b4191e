package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds checkout configuration loaded from the environment.
type Config struct {
	AppEnv           string
	LogFormat        string
	LogLevel         string
	SettlementMode   string
	RedisURL         string
	RedisPrefix      string
	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	OpsPort          string
	OpsRateLimit     int
	OpsRateWindow    time.Duration
	MetricsNamespace string
	OTelExporter     string
	OTelEndpoint     string
	OTelSampling     float64
	ReceiptQueue     bool
	ReceiptQueueName string
	ReceiptBuffer    int
	ReceiptPlaces    int32
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:           valueOrDefault(k.String("APP_ENV"), "development"),
		LogFormat:        strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "console")),
		LogLevel:         strings.ToLower(valueOrDefault(k.String("OBS_LOG_LEVEL"), "info")),
		SettlementMode:   strings.ToLower(strings.TrimSpace(valueOrDefault(k.String("SETTLEMENT_MODE"), "drain"))),
		RedisURL:         strings.TrimSpace(k.String("REDIS_URL")),
		RedisPrefix:      valueOrDefault(strings.TrimSpace(k.String("REDIS_PREFIX")), "checkout"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		OpsPort:          valueOrDefault(k.String("OPS_PORT"), "9090"),
		OpsRateLimit:     parseInt(k.String("OPS_RATE_LIMIT"), 120),
		OpsRateWindow:    parseDuration(k.String("OPS_RATE_WINDOW"), "1m"),
		MetricsNamespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "checkout"),
		OTelExporter:     strings.ToLower(valueOrDefault(k.String("OTEL_EXPORTER"), "none")),
		OTelEndpoint:     strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTelSampling:     parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),
		ReceiptQueue:     parseBool(k.String("RECEIPT_QUEUE_ENABLED")),
		ReceiptQueueName: valueOrDefault(k.String("RECEIPT_QUEUE_NAME"), "receipts"),
		ReceiptBuffer:    parseInt(k.String("RECEIPT_BUFFER"), 256),
		ReceiptPlaces:    parsePlaces(k.String("RECEIPT_DISPLAY_PLACES")),
	}

	switch cfg.SettlementMode {
	case "drain", "head":
	default:
		return nil, fmt.Errorf("SETTLEMENT_MODE must be drain or head, got %q", cfg.SettlementMode)
	}
	if cfg.ReceiptQueue && cfg.RedisURL == "" {
		return nil, fmt.Errorf("RECEIPT_QUEUE_ENABLED requires REDIS_URL")
	}
	return cfg, nil
}

// OpsAddr returns the address the ops HTTP server binds to.
func (c *Config) OpsAddr() string {
	port := strings.TrimSpace(c.OpsPort)
	if port == "" {
		port = "9090"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// UseRedis reports whether a Redis catalog and lock should be used.
func (c *Config) UseRedis() bool {
	return c.RedisURL != ""
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parsePlaces returns -1 (exact amounts) unless value is a non-negative integer.
func parsePlaces(value string) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil || n < 0 {
		return -1
	}
	return int32(n)
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
