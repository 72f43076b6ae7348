package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps buckets in process. Suitable for tests and single
// instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string][]time.Time)}
}

func (s *MemoryStore) HitAll(_ context.Context, buckets []Bucket, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wait time.Duration
	for _, b := range buckets {
		hits := purge(s.buckets[b.Key], now, b.Window)
		if len(hits) == 0 {
			delete(s.buckets, b.Key)
		} else {
			s.buckets[b.Key] = hits
		}
		if len(hits) >= b.Max {
			// A zero max disables the action for a full window.
			w := b.Window
			if len(hits) > 0 {
				w = hits[0].Add(b.Window).Sub(now)
			}
			if w > wait {
				wait = w
			}
		}
	}
	if wait > 0 {
		return Decision{Allowed: false, RetryAfter: wait}, nil
	}
	for _, b := range buckets {
		s.buckets[b.Key] = append(s.buckets[b.Key], now)
	}
	return Decision{Allowed: true}, nil
}

// purge drops hits whose age is >= window. hits is ordered oldest first.
func purge(hits []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(hits) && now.Sub(hits[i]) >= window {
		i++
	}
	return hits[i:]
}
