package calls

import (
	"context"
	"sort"
	"sync"

	"callbridge/internal/apperr"
)

type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]Call{}}
}

func (r *MemoryRepo) Create(_ context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.ID]; ok {
		return apperr.Conflict("call %q already exists", c.ID)
	}
	r.calls[c.ID] = c
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.calls[c.ID]
	if !ok {
		return apperr.NotFound("call %q", c.ID)
	}
	if cur.State.Terminal() {
		return apperr.Conflict("call %q already ended", c.ID)
	}
	r.calls[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, apperr.NotFound("call %q", id)
	}
	return c, nil
}

func (r *MemoryRepo) List(_ context.Context, f Filter) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if !f.Since.IsZero() && c.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !c.CreatedAt.Before(f.Until) {
			continue
		}
		if f.Kind != "" && c.Kind != f.Kind {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}
