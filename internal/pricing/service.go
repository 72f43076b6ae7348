package pricing

import (
	"context"
	"errors"
	"time"
)

// Service prices bridged calls for cost reporting.
//
// Pure calculation + repository lookups; no carrier calls.
type Service struct {
	repo  RateRepository
	clock func() time.Time
}

func NewService(repo RateRepository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// RateRepository abstracts pricing persistence.
type RateRepository interface {
	FindMinuteRate(ctx context.Context, country string, at time.Time) (MinuteRate, bool, error)
}

type CallCostRequest struct {
	UserCountry        string
	DestinationCountry string

	// DurationSeconds is the bridged duration in seconds (billable seconds are derived).
	DurationSeconds int

	// At determines which effective pricing to use. If zero, service clock is used.
	At time.Time
}

var (
	ErrPricingNotFound   = errors.New("pricing not found")
	ErrInvalidPricingReq = errors.New("invalid pricing request")
	ErrCurrencyMismatch  = errors.New("pricing currencies differ")
)

// CalculateCallCost computes the cost of a bridged call. A zero duration costs
// nothing.
func (s *Service) CalculateCallCost(ctx context.Context, req CallCostRequest) (CallCost, error) {
	if req.DurationSeconds < 0 {
		return CallCost{}, ErrInvalidPricingReq
	}

	at := req.At
	if at.IsZero() {
		at = s.clock().UTC()
	}

	user, err := s.rate(ctx, req.UserCountry, at)
	if err != nil {
		return CallCost{}, err
	}
	dest, err := s.rate(ctx, req.DestinationCountry, at)
	if err != nil {
		return CallCost{}, err
	}
	if user.Currency != dest.Currency {
		return CallCost{}, ErrCurrencyMismatch
	}

	userSec := billableSeconds(req.DurationSeconds, user.BillingIncrementSeconds)
	destSec := billableSeconds(req.DurationSeconds, dest.BillingIncrementSeconds)
	userCost := legCost(user, req.UserCountry, userSec)
	destCost := legCost(dest, req.DestinationCountry, destSec)

	sec := max(userSec, destSec)
	return CallCost{
		Currency:        user.Currency,
		BillableSeconds: sec,
		BillableMinutes: billableMinutesFromSeconds(sec),
		User:            userCost,
		Destination:     destCost,
		TotalMinor:      userCost.TotalMinor + destCost.TotalMinor,
	}, nil
}

// rate looks up country, falling back to the default rate.
func (s *Service) rate(ctx context.Context, country string, at time.Time) (MinuteRate, error) {
	if country != "" {
		r, ok, err := s.repo.FindMinuteRate(ctx, country, at)
		if err != nil {
			return MinuteRate{}, err
		}
		if ok {
			return r, nil
		}
	}
	r, ok, err := s.repo.FindMinuteRate(ctx, DefaultCountry, at)
	if err != nil {
		return MinuteRate{}, err
	}
	if !ok {
		return MinuteRate{}, ErrPricingNotFound
	}
	return r, nil
}

// legCost charges per started billing increment, pro rata of the minute rate.
func legCost(r MinuteRate, country string, billableSec int) LegCost {
	total := r.RatePerMinuteMinor * int64(billableSec) / 60
	if r.RatePerMinuteMinor*int64(billableSec)%60 != 0 {
		total++
	}
	return LegCost{Country: country, RatePerMinuteMinor: r.RatePerMinuteMinor, TotalMinor: total}
}

func billableSeconds(actualSec int, incrementSec int) int {
	if actualSec <= 0 {
		return 0
	}
	if incrementSec <= 0 {
		incrementSec = 60
	}

	// round up to nearest increment
	q := actualSec / incrementSec
	r := actualSec % incrementSec
	if r != 0 {
		q++
	}
	return q * incrementSec
}

func billableMinutesFromSeconds(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}
