package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	// Kind is "instant", "scheduled" or empty for both.
	Kind string `json:"kind,omitempty"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`
	Kind  string    `json:"kind,omitempty"`

	TotalCalls       int `json:"total_calls"`
	CompletedCalls   int `json:"completed_calls"`
	NoAnswerCalls    int `json:"no_answer_calls"`
	RejectedCalls    int `json:"rejected_calls"`
	BusyCalls        int `json:"busy_calls"`
	UnavailableCalls int `json:"unavailable_calls"`
	CarrierErrors    int `json:"carrier_errors"`
	CanceledCalls    int `json:"canceled_calls"`
	InProgressCalls  int `json:"in_progress_calls"`

	// ByState counts every state, including the ones folded together above.
	ByState map[string]int `json:"by_state"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

type VerificationSummary struct {
	Since     time.Time `json:"since"`
	Requested int       `json:"requested"`
	Consumed  int       `json:"consumed"`
	Locked    int       `json:"locked"`
	Expired   int       `json:"expired"`
	Pending   int       `json:"pending"`

	SuccessRate float64 `json:"success_rate"`
}

type CostSummaryRequest struct {
	Range TimeRange `json:"range"`
}

// CostSummary totals the carrier cost of bridged calls.
type CostSummary struct {
	Range    TimeRange `json:"range"`
	Currency string    `json:"currency"`

	PricedCalls     int   `json:"priced_calls"`
	UnpricedCalls   int   `json:"unpriced_calls"`
	BillableMinutes int   `json:"billable_minutes"`
	TotalMinor      int64 `json:"total_minor"`

	// ByDestinationCountry splits TotalMinor by the Destination's country.
	ByDestinationCountry map[string]int64 `json:"by_destination_country"`
}

// ScheduleSummary counts scheduled windows by how they ended.
type ScheduleSummary struct {
	Since     time.Time      `json:"since"`
	Windows   int            `json:"windows"`
	Completed int            `json:"completed"`
	Missed    int            `json:"missed"`
	Open      int            `json:"open"`
	ByOutcome map[string]int `json:"by_outcome"`
}
