package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Limiter decides whether one more request for key fits within limit per window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time, err error)
}

// Sliding is a sliding window limiter backed by Redis sorted sets, shared by every
// process pointing at the same Redis.
type Sliding struct {
	Client *redis.Client
	Prefix string
}

// Allow implements Limiter.
func (l Sliding) Allow(ctx context.Context, key string, window time.Duration, limit int) (bool, int, time.Time, error) {
	if l.Client == nil || limit <= 0 || window <= 0 {
		return true, limit, time.Now().Add(window), nil
	}

	now := time.Now()
	until := now.Add(window)
	cutoff := float64(now.Add(-window).UnixNano())
	redisKey := l.key(key)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, until, err
	}

	current := int(countCmd.Val())
	return current <= limit, max(0, limit-current), until, nil
}

func (l Sliding) key(key string) string {
	prefix := strings.TrimSuffix(strings.TrimSpace(l.Prefix), ":")
	if prefix == "" {
		return "ratelimit:" + key
	}
	return prefix + ":ratelimit:" + key
}

// Fixed is an in-process fixed window limiter.
type Fixed struct {
	once  sync.Once
	store limiter.Store
}

// NewFixed returns an empty in-process limiter.
func NewFixed() *Fixed {
	return &Fixed{}
}

// Allow implements Limiter.
func (l *Fixed) Allow(ctx context.Context, key string, window time.Duration, limit int) (bool, int, time.Time, error) {
	if limit <= 0 || window <= 0 {
		return true, limit, time.Now().Add(window), nil
	}
	l.once.Do(func() {
		l.store = memory.NewStore()
	})
	lim := limiter.New(l.store, limiter.Rate{Period: window, Limit: int64(limit)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
