package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"callbridge/internal/apperr"
)

// MemoryRepo implements Repository and AttemptStore in process.
type MemoryRepo struct {
	mu        sync.Mutex
	schedules map[string]Schedule // by phone hash
	attempts  map[string]Attempt  // by schedule id + window id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{schedules: map[string]Schedule{}, attempts: map[string]Attempt{}}
}

func (r *MemoryRepo) Put(_ context.Context, s Schedule) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.schedules[s.PhoneHash]; ok {
		s.ID = prev.ID
		s.CreatedAt = prev.CreatedAt
	}
	s.Spans = append([]Span(nil), s.Spans...)
	r.schedules[s.PhoneHash] = s
	return s, nil
}

func (r *MemoryRepo) GetByPhone(_ context.Context, phoneHash string) (Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[phoneHash]
	if !ok {
		return Schedule{}, apperr.NotFound("no schedule")
	}
	return s, nil
}

func (r *MemoryRepo) DeleteByPhone(_ context.Context, phoneHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[phoneHash]; !ok {
		return apperr.NotFound("no schedule")
	}
	delete(r.schedules, phoneHash)
	return nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func attemptKey(scheduleID, windowID string) string { return scheduleID + "|" + windowID }

func (r *MemoryRepo) MarkAttempt(_ context.Context, scheduleID, windowID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := attemptKey(scheduleID, windowID)
	if _, ok := r.attempts[k]; ok {
		return false, nil
	}
	r.attempts[k] = Attempt{ScheduleID: scheduleID, WindowID: windowID, Outcome: OutcomePending, CreatedAt: at, UpdatedAt: at}
	return true, nil
}

func (r *MemoryRepo) SetOutcome(_ context.Context, scheduleID, windowID, callID, outcome string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := attemptKey(scheduleID, windowID)
	a, ok := r.attempts[k]
	if !ok {
		return apperr.NotFound("attempt %s", k)
	}
	if outcome == OutcomeStarted && a.Outcome != OutcomePending {
		return nil
	}
	if callID != "" {
		a.CallID = callID
	}
	a.Outcome = outcome
	a.UpdatedAt = at
	r.attempts[k] = a
	return nil
}

func (r *MemoryRepo) ListAttempts(_ context.Context, since time.Time) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Attempt
	for _, a := range r.attempts {
		if a.CreatedAt.Before(since) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
