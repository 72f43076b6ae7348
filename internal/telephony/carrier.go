package telephony

import (
	"context"
	"time"
)

// Carrier is the call-control capability the orchestrator drives.
//
// Rules:
//   - No provider API calls outside telephony adapters.
//   - PlaceLeg returns as soon as the provider accepted the request; progress
//     arrives later as Events.
//   - Adapters return raw provider errors; callers map them to CarrierError.
type Carrier interface {
	Name() string
	HealthCheck(ctx context.Context) error

	PlaceLeg(ctx context.Context, req LegRequest) (legID string, err error)
	SendPrompt(ctx context.Context, legID string, p Prompt) error
	Bridge(ctx context.Context, legA, legB string) error
	Hangup(ctx context.Context, legID string) error
	// Forget drops whatever the adapter keeps about an ended leg. Unknown
	// legs are ignored.
	Forget(legID string)
}

// SMSSender delivers verification codes.
type SMSSender interface {
	SendCode(ctx context.Context, phoneE164, code string) error
}

// EventSink consumes carrier events. The orchestrator implements it.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event) error
}

type LegRole string

const (
	LegUser        LegRole = "user"
	LegDestination LegRole = "destination"
)

type LegRequest struct {
	CallID string
	Role   LegRole
	// To is the E.164 number to dial.
	To string
	// RingTimeout bounds how long the carrier lets the leg ring.
	RingTimeout time.Duration
}

type EventType string

const (
	EventAnswered EventType = "answered"
	EventNoAnswer EventType = "no_answer"
	EventBusy     EventType = "busy"
	EventHangup   EventType = "hangup"
	EventFailed   EventType = "failed"
	// EventDigits carries DTMF input; empty Digits means the caller entered
	// nothing before the gather timed out.
	EventDigits EventType = "digits"
)

// Terminal reports whether the event ends its leg.
func (t EventType) Terminal() bool {
	switch t {
	case EventNoAnswer, EventBusy, EventHangup, EventFailed:
		return true
	}
	return false
}

// Event is a leg state change reported by the carrier.
type Event struct {
	CallID string    `json:"call_id"`
	LegID  string    `json:"leg_id"`
	Role   LegRole   `json:"role"`
	Type   EventType `json:"type"`
	Digits string    `json:"digits,omitempty"`
	// Reason is the provider's raw diagnostic for failures. Internal only.
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}
