package pricing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"callbridge/internal/config"
)

// MemoryRepo holds minute rates in process. Rates come from the policy file,
// so there is no database table behind them.
type MemoryRepo struct {
	mu    sync.RWMutex
	rates []MinuteRate
}

func NewMemoryRepo(rates ...MinuteRate) *MemoryRepo {
	r := &MemoryRepo{}
	for _, rate := range rates {
		r.Put(rate)
	}
	return r
}

// FromPolicy builds a repo from the pricing section of the policy file.
func FromPolicy(p config.PricingPolicy) *MemoryRepo {
	r := NewMemoryRepo()
	countries := make([]string, 0, len(p.PerMinuteMinor))
	for c := range p.PerMinuteMinor {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	for _, c := range countries {
		r.Put(MinuteRate{Country: c, Currency: p.Currency, RatePerMinuteMinor: p.PerMinuteMinor[c]})
	}
	r.Put(MinuteRate{Country: DefaultCountry, Currency: p.Currency, RatePerMinuteMinor: p.DefaultMinor})
	return r
}

func (r *MemoryRepo) Put(rate MinuteRate) {
	rate.Country = strings.ToUpper(strings.TrimSpace(rate.Country))
	r.mu.Lock()
	r.rates = append(r.rates, rate)
	r.mu.Unlock()
}

func (r *MemoryRepo) FindMinuteRate(_ context.Context, country string, at time.Time) (MinuteRate, bool, error) {
	country = strings.ToUpper(country)
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Prefer the most recent effective pricing row.
	var best MinuteRate
	found := false

	for _, p := range r.rates {
		if p.Country != country {
			continue
		}
		if at.Before(p.EffectiveFrom) {
			continue
		}
		if p.EffectiveTo != nil && !at.Before(*p.EffectiveTo) {
			continue
		}

		if !found || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
			found = true
		}
	}

	return best, found, nil
}
