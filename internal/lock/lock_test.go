package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/lock"
)

func newRedisLocker(t *testing.T) (lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Redis{R: client, Prefix: "test", TTL: time.Second, RetryBackoff: 5 * time.Millisecond}, mr
}

// exerciseOrdering runs two callers on the same key and checks the second waits for the
// first to finish.
func exerciseOrdering(t *testing.T, locker lock.Locker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	firstIn := make(chan struct{})
	releaseFirst := make(chan struct{})
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- locker.WithLock(ctx, "register:r1", func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstIn)
			<-releaseFirst
			return nil
		})
	}()
	<-firstIn
	go func() {
		defer wg.Done()
		errs <- locker.WithLock(ctx, "register:r1", func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()

	close(releaseFirst)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRedisWithLockSerialises(t *testing.T) {
	locker, mr := newRedisLocker(t)
	exerciseOrdering(t, locker)
	require.False(t, mr.Exists("test:lock:register:r1"))
}

func TestRedisWithLockHonoursContext(t *testing.T) {
	locker, mr := newRedisLocker(t)
	require.NoError(t, mr.Set("test:lock:register:r1", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "register:r1", func(context.Context) error {
		t.Fatal("callback must not run while the key is held")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := mr.Get("test:lock:register:r1")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestRedisWithLockRequiresClient(t *testing.T) {
	err := lock.Redis{}.WithLock(context.Background(), "k", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestLocalWithLockSerialises(t *testing.T) {
	exerciseOrdering(t, lock.NewLocal())
}

func TestLocalWithLockHonoursContext(t *testing.T) {
	locker := lock.NewLocal()
	hold := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "k", func(context.Context) error {
			close(entered)
			<-hold
			return nil
		})
	}()
	<-entered
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "k", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalWithLockRequiresCallback(t *testing.T) {
	require.ErrorIs(t, lock.NewLocal().WithLock(context.Background(), "k", nil), lock.ErrNoCallback)
}
