package schedule

import (
	"context"
	"time"
)

type Repository interface {
	// Put stores s as the Schedule for s.PhoneHash, replacing any previous
	// one. The stored row keeps the previous ID and CreatedAt.
	Put(ctx context.Context, s Schedule) (Schedule, error)
	GetByPhone(ctx context.Context, phoneHash string) (Schedule, error)
	DeleteByPhone(ctx context.Context, phoneHash string) error
	List(ctx context.Context) ([]Schedule, error)
}

// AttemptStore holds the per-window markers that make the sweep idempotent.
type AttemptStore interface {
	// MarkAttempt records the window and reports whether this call created
	// the marker. An existing marker means the window was already handled.
	MarkAttempt(ctx context.Context, scheduleID, windowID string, at time.Time) (bool, error)
	// SetOutcome records how the window ended. OutcomeStarted only replaces
	// OutcomePending so a late write never hides a final outcome.
	SetOutcome(ctx context.Context, scheduleID, windowID, callID, outcome string, at time.Time) error
	ListAttempts(ctx context.Context, since time.Time) ([]Attempt, error)
}
