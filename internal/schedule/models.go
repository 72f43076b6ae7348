package schedule

import "time"

// Span is a weekly time range in the Schedule's time zone. Start and End are
// minutes after local midnight, End exclusive.
type Span struct {
	Day   time.Weekday `json:"day"`
	Start int          `json:"start"`
	End   int          `json:"end"`
}

// Schedule is a User's standing offer to be called. A User has at most one;
// submitting again supersedes it and keeps its ID, so windows already
// attempted stay attempted.
type Schedule struct {
	ID string `json:"id"`
	// PhoneE164 is kept because the sweep has to dial it.
	PhoneE164   string `json:"-"`
	PhoneHash   string `json:"-"`
	CallingCode int    `json:"calling_code"`
	Region      string `json:"region,omitempty"`

	TimeZone      string `json:"timezone"`
	Spans         []Span `json:"spans"`
	DestinationID string `json:"destination_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attempt marks one window of one Schedule as handled. It is written before
// any carrier action.
type Attempt struct {
	ScheduleID string    `json:"schedule_id"`
	WindowID   string    `json:"window_id"`
	CallID     string    `json:"call_id,omitempty"`
	Outcome    string    `json:"outcome"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Attempt outcomes besides terminal call states.
const (
	OutcomePending   = "pending"
	OutcomeStarted   = "started"
	OutcomeThrottled = "throttled"
	OutcomeFailed    = "failed"
)
