package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// hammer fires n simultaneous checks at one bucket and returns how many were
// allowed.
func hammer(t *testing.T, l *Limiter, n int) int {
	t.Helper()
	var (
		allowed atomic.Int64
		wg      sync.WaitGroup
	)
	start := make(chan struct{})
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d, err := l.Check(context.Background(), "call", Scope{IP: "203.0.113.7"})
			if err != nil {
				errs <- err
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("check: %v", err)
	}
	return int(allowed.Load())
}

func TestConcurrentChecksAllowExactlyMax(t *testing.T) {
	const max, n = 7, 50

	t.Run("memory", func(t *testing.T) {
		fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
		l := newTestLimiter(NewMemoryStore(), fc, ipRule(time.Minute, max))
		if got := hammer(t, l, n); got != max {
			t.Fatalf("expected %d allowed, got %d", max, got)
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: n})
		t.Cleanup(func() { _ = rdb.Close() })
		fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
		l := newTestLimiter(NewRedisStore(rdb), fc, ipRule(time.Minute, max))
		if got := hammer(t, l, n); got != max {
			t.Fatalf("expected %d allowed, got %d", max, got)
		}
	})
}
