package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Service records internal review events. Callers treat it as best-effort:
// a failed append is logged, never surfaced to the User.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventTypeCallFailed && (e.CallID == "" || e.Outcome == "") {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallFailure records why a Call ended without completing.
func (s *Service) LogCallFailure(ctx context.Context, callID, destinationID, phoneHash, outcome, reason string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeCallFailed,
		CallID:        callID,
		DestinationID: destinationID,
		PhoneHash:     phoneHash,
		Outcome:       outcome,
		Reason:        reason,
		Message:       "call ended without completing",
	})
}

// LogThrottled records a denied action.
func (s *Service) LogThrottled(ctx context.Context, action, phoneHash, ip string, retryAfter time.Duration) error {
	return s.Append(ctx, Event{
		Type:      EventTypeThrottled,
		PhoneHash: phoneHash,
		IPAddress: ip,
		Outcome:   action,
		Reason:    "retry_after=" + retryAfter.String(),
	})
}

// LogVerificationFailure records a locked or expired verification attempt.
func (s *Service) LogVerificationFailure(ctx context.Context, phoneHash, reason string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeVerificationFailed,
		PhoneHash: phoneHash,
		Reason:    reason,
	})
}

// LogScheduleMissed records a scheduled window whose call did not complete.
func (s *Service) LogScheduleMissed(ctx context.Context, callID, phoneHash, window, outcome string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeScheduleMissed,
		CallID:    callID,
		PhoneHash: phoneHash,
		Outcome:   outcome,
		Message:   "scheduled window " + window + " missed",
	})
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	return s.repo.List(ctx, f)
}
