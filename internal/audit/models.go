package audit

import "time"

// Event is an append-only operator review record.
//
// Every Call ending in a non-completed state gets one, carrying the specific
// outcome and, for carrier failures, the raw provider reason. Events are never
// shown to Users.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	CallID        string `json:"call_id,omitempty" db:"call_id"`
	DestinationID string `json:"destination_id,omitempty" db:"destination_id"`
	PhoneHash     string `json:"phone_hash,omitempty" db:"phone_hash"`
	IPAddress     string `json:"ip_address,omitempty" db:"ip_address"`

	// Outcome is the terminal call state or the throttled action.
	Outcome string `json:"outcome,omitempty" db:"outcome"`
	// Reason is internal diagnostic detail, e.g. a carrier error string.
	Reason  string `json:"reason,omitempty" db:"reason"`
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallFailed         EventType = "call_failed"
	EventTypeThrottled          EventType = "throttled"
	EventTypeVerificationFailed EventType = "verification_failed"
	EventTypeScheduleMissed     EventType = "schedule_missed"
)

// Filter narrows List. Zero values match everything; Limit defaults to 100.
type Filter struct {
	Type  EventType
	Since time.Time
	Limit int
}
