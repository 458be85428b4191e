package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseWindow(t *testing.T, l Limiter) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := l.Allow(ctx, "10.0.0.1", time.Minute, 2)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
		require.Equal(t, 1-i, remaining)
	}
	allowed, remaining, _, err := l.Allow(ctx, "10.0.0.1", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)

	allowed, _, _, err = l.Allow(ctx, "10.0.0.2", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed, "keys are independent")
}

func TestSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseWindow(t, Sliding{Client: client, Prefix: "checkout"})
	require.True(t, mr.Exists("checkout:ratelimit:10.0.0.1"))
}

func TestFixedWindow(t *testing.T) {
	exerciseWindow(t, NewFixed())
}

func TestDisabledLimitsAllow(t *testing.T) {
	allowed, _, _, err := Sliding{}.Allow(context.Background(), "k", time.Second, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = NewFixed().Allow(context.Background(), "k", time.Second, 0)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMiddlewareEnforcesLimit(t *testing.T) {
	handler := Handler{
		Limiter: NewFixed(),
		Config:  Config{Window: time.Minute, Max: 1},
	}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lanes", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
}

type failing struct{}

func (failing) Allow(context.Context, string, time.Duration, int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("redis down")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	var seen error
	handler := Handler{
		Limiter: failing{},
		Config:  Config{Window: time.Second, Max: 1},
		OnError: func(err error) { seen = err },
	}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.EqualError(t, seen, "redis down")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5123"
	require.Equal(t, "192.0.2.7", ClientIP(req))
	req.RemoteAddr = "192.0.2.7"
	require.Equal(t, "192.0.2.7", ClientIP(req))
}
