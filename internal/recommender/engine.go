package recommender

import (
	"math/rand"
	"sync"
)

// Picker chooses among Destinations. It holds no per-User state; callers pass
// the recent list they own.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
	// k is how many of the most recent suggestions are avoided.
	k int
}

func NewPicker(k int, rng *rand.Rand) *Picker {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if k < 0 {
		k = 0
	}
	return &Picker{rng: rng, k: k}
}

// Pick returns a Destination from pool weighted by Swayability, avoiding the
// last k ids of recent (oldest first, at least the last one). When exclusion
// empties the pool it falls back to the whole pool minus only the immediately
// previous pick. It reports false only for an empty pool.
func (p *Picker) Pick(pool []Destination, recent []string) (Destination, bool) {
	if len(pool) == 0 {
		return Destination{}, false
	}

	n := p.k
	if n < 1 {
		n = 1
	}
	eligible := without(pool, lastN(recent, n))
	if len(eligible) == 0 {
		eligible = without(pool, lastN(recent, 1))
	}
	if len(eligible) == 0 {
		eligible = pool
	}
	return p.weighted(eligible), true
}

func (p *Picker) weighted(dests []Destination) Destination {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total float64
	for _, d := range dests {
		if d.Swayability > 0 {
			total += d.Swayability
		}
	}
	if total <= 0 {
		return dests[p.rng.Intn(len(dests))]
	}

	r := p.rng.Float64() * total
	var acc float64
	for _, d := range dests {
		if d.Swayability <= 0 {
			continue
		}
		acc += d.Swayability
		if r < acc {
			return d
		}
	}
	// Float rounding can leave r == total; take the last positive weight.
	for i := len(dests) - 1; i >= 0; i-- {
		if dests[i].Swayability > 0 {
			return dests[i]
		}
	}
	return dests[len(dests)-1]
}

func lastN(ids []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(ids) <= n {
		return ids
	}
	return ids[len(ids)-n:]
}

func without(pool []Destination, exclude []string) []Destination {
	if len(exclude) == 0 {
		return pool
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := make([]Destination, 0, len(pool))
	for _, d := range pool {
		if _, ok := skip[d.ID]; !ok {
			out = append(out, d)
		}
	}
	return out
}
