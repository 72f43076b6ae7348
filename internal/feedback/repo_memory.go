package feedback

import (
	"context"
	"sync"

	"callbridge/internal/apperr"
)

type MemoryRepo struct {
	mu     sync.Mutex
	rows   map[string]Feedback
	byCall map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]Feedback{}, byCall: map[string]string{}}
}

func (r *MemoryRepo) Create(_ context.Context, f Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[f.Token]; ok {
		return apperr.Conflict("feedback token exists")
	}
	if _, ok := r.byCall[f.CallID]; ok {
		return apperr.Conflict("feedback already issued for call %q", f.CallID)
	}
	r.rows[f.Token] = f
	r.byCall[f.CallID] = f.Token
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, token string) (Feedback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[token]
	if !ok {
		return Feedback{}, apperr.NotFound("feedback token not found")
	}
	return f, nil
}

func (r *MemoryRepo) ForCall(_ context.Context, callID string) (Feedback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.byCall[callID]
	if !ok {
		return Feedback{}, apperr.NotFound("no feedback for call %q", callID)
	}
	return r.rows[tok], nil
}

func (r *MemoryRepo) Update(_ context.Context, token string, fn func(*Feedback) error) (Feedback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[token]
	if !ok {
		return Feedback{}, apperr.NotFound("feedback token not found")
	}
	if err := fn(&f); err != nil {
		return Feedback{}, err
	}
	r.rows[token] = f
	return f, nil
}

// All returns every stored row.
func (r *MemoryRepo) All() []Feedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Feedback, 0, len(r.rows))
	for _, f := range r.rows {
		out = append(out, f)
	}
	return out
}
