package verification

import (
	"context"
	"sync"
	"time"

	"callbridge/internal/apperr"
)

type MemoryRepo struct {
	mu       sync.Mutex
	attempts map[string]Attempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{attempts: make(map[string]Attempt)}
}

func (r *MemoryRepo) Create(_ context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.ID]; ok {
		return apperr.Conflict("attempt %s exists", a.ID)
	}
	r.attempts[a.ID] = a
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, apperr.NotFound("verification attempt not found")
	}
	return a, nil
}

func (r *MemoryRepo) Update(_ context.Context, id string, fn func(*Attempt) error) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, apperr.NotFound("verification attempt not found")
	}
	if err := fn(&a); err != nil {
		return Attempt{}, err
	}
	r.attempts[id] = a
	return a, nil
}

func (r *MemoryRepo) Stats(_ context.Context, since time.Time) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	for _, a := range r.attempts {
		if a.CreatedAt.Before(since) {
			continue
		}
		s.add(a.Status, 1)
	}
	return s, nil
}

func (s *Stats) add(st Status, n int) {
	s.Requested += n
	switch st {
	case StatusConsumed:
		s.Consumed += n
	case StatusLocked:
		s.Locked += n
	case StatusExpired:
		s.Expired += n
	default:
		s.Pending += n
	}
}
