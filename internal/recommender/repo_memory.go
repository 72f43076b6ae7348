package recommender

import (
	"context"
	"sort"
	"strings"
	"sync"

	"callbridge/internal/apperr"
)

type MemoryRepo struct {
	mu     sync.Mutex
	dests  map[string]Destination
	events []SelectionEvent
}

func NewMemoryRepo(dests ...Destination) *MemoryRepo {
	r := &MemoryRepo{dests: make(map[string]Destination)}
	for _, d := range dests {
		r.dests[d.ID] = d
	}
	return r
}

func (r *MemoryRepo) Put(d Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dests[d.ID] = d
}

func (r *MemoryRepo) List(_ context.Context, country string) ([]Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Destination
	for _, d := range r.dests {
		if country == "" || d.Country == country {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dests[id]
	if !ok {
		return Destination{}, apperr.NotFound("destination %q not found", id)
	}
	return d, nil
}

func (r *MemoryRepo) Search(_ context.Context, q SearchQuery) ([]Destination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(q.Name)
	var out []Destination
	for _, d := range r.dests {
		if !strings.Contains(strings.ToLower(d.Name), needle) {
			continue
		}
		if !q.AllCountries && d.Country != q.Country {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Country == q.Country, out[j].Country == q.Country
		if pi != pj {
			return pi
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) RecordSelection(_ context.Context, e SelectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dests[e.DestinationID]
	if !ok {
		return apperr.NotFound("destination %q not found", e.DestinationID)
	}
	if e.Kind == SelectionSuggested {
		d.SuggestedCount++
		d.LastSuggestedAt = e.CreatedAt
		r.dests[d.ID] = d
	}
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) Events() []SelectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SelectionEvent(nil), r.events...)
}
