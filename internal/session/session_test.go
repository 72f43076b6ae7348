package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"callbridge/internal/apperr"
)

func TestRememberIsBounded(t *testing.T) {
	var s Session
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Remember(id, 3)
	}
	if fmt.Sprint(s.Recent) != "[b c d]" {
		t.Fatalf("unexpected recent list %v", s.Recent)
	}
	if s.Last() != "d" {
		t.Fatalf("unexpected last %q", s.Last())
	}

	var one Session
	one.Remember("a", 0)
	one.Remember("b", 0)
	if fmt.Sprint(one.Recent) != "[b]" {
		t.Fatalf("expected K=0 to keep the previous suggestion, got %v", one.Recent)
	}
}

func newSession(now time.Time) Session {
	return Session{ID: "s1", Phone: "+431234567", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
}

func exerciseStore(t *testing.T, st Store, fc *clockwork.FakeClock) {
	t.Helper()
	ctx := context.Background()
	if err := st.Create(ctx, newSession(fc.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Create(ctx, newSession(fc.Now())); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.Update(ctx, "s1", func(s *Session) error {
				s.Remember(fmt.Sprintf("d%d", i), 20)
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s, err := st.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(s.Recent) != 10 {
		t.Fatalf("expected 10 recent entries after concurrent updates, got %v", s.Recent)
	}

	if ok, _ := st.Active(ctx, "s1"); !ok {
		t.Fatalf("expected active session")
	}
	if err := st.Revoke(ctx, "s1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := st.Active(ctx, "s1"); ok {
		t.Fatalf("expected revoked session to be inactive")
	}
	if _, err := st.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	st := NewMemoryStore(fc)
	exerciseStore(t, st, fc)

	if err := st.Create(context.Background(), Session{ID: "s2", ExpiresAt: fc.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	fc.Advance(time.Minute)
	if _, err := st.Get(context.Background(), "s2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	st := NewRedisStore(rdb, fc)
	exerciseStore(t, st, fc)

	if ttl := mr.TTL("session:s1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected session key to expire with the session, ttl %v", ttl)
	}
}
