package pricing

import "time"

// Amounts are expressed in minor units (e.g., cents) using int64.

// MinuteRate is the per-minute charge for one outbound call leg terminating in
// Country.
type MinuteRate struct {
	// Country is an ISO 3166-1 alpha-2 code, or DefaultCountry for the
	// fallback rate.
	Country  string `json:"country" yaml:"country"`
	Currency string `json:"currency" yaml:"currency"`

	RatePerMinuteMinor int64 `json:"rate_per_minute_minor" yaml:"rate_per_minute_minor"`

	// BillingIncrementSeconds (e.g., 60 for per-minute, 1 for per-second billing).
	BillingIncrementSeconds int `json:"billing_increment_seconds" yaml:"billing_increment_seconds"`

	// Effective window for pricing. A zero EffectiveFrom is always effective.
	EffectiveFrom time.Time  `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" yaml:"effective_to"`
}

// DefaultCountry keys the rate used when a country has none of its own.
const DefaultCountry = "*"

// LegCost is the price of one leg of a bridged call.
type LegCost struct {
	Country            string `json:"country"`
	RatePerMinuteMinor int64  `json:"rate_per_minute_minor"`
	TotalMinor         int64  `json:"total_minor"`
}

// CallCost prices a bridged call: the User leg at the User's country rate and
// the Destination leg at the Destination's country rate.
type CallCost struct {
	Currency        string  `json:"currency"`
	BillableSeconds int     `json:"billable_seconds"`
	BillableMinutes int     `json:"billable_minutes"`
	User            LegCost `json:"user"`
	Destination     LegCost `json:"destination"`
	TotalMinor      int64   `json:"total_minor"`
}
