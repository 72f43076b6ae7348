package schedule

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/audit"
	"callbridge/internal/calls"
	"callbridge/internal/phone"
)

type Service struct {
	repo         Repository
	attempts     AttemptStore
	destinations calls.Destinations
	audit        *audit.Service
	clock        clockwork.Clock
	log          *slog.Logger
}

func NewService(repo Repository, attempts AttemptStore, destinations calls.Destinations, auditSvc *audit.Service, clk clockwork.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, attempts: attempts, destinations: destinations, audit: auditSvc, clock: clk, log: log}
}

type SubmitRequest struct {
	Phone         phone.Number
	PhoneHash     string
	TimeZone      string
	Spans         []Span
	DestinationID string
}

// Submit validates and stores the User's Schedule, superseding any previous
// one.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Schedule, error) {
	spans, _, err := Normalize(req.TimeZone, req.Spans)
	if err != nil {
		return Schedule{}, err
	}
	if req.DestinationID == "" {
		return Schedule{}, apperr.Validation("destination_id is required")
	}
	_, ok, err := s.destinations.IsValidChoice(ctx, req.DestinationID)
	if err != nil {
		return Schedule{}, err
	}
	if !ok {
		return Schedule{}, apperr.NotFound("destination %q", req.DestinationID)
	}

	now := s.clock.Now().UTC()
	out, err := s.repo.Put(ctx, Schedule{
		ID:            uuid.NewString(),
		PhoneE164:     req.Phone.E164,
		PhoneHash:     req.PhoneHash,
		CallingCode:   req.Phone.CallingCode,
		Region:        req.Phone.Region,
		TimeZone:      req.TimeZone,
		Spans:         spans,
		DestinationID: req.DestinationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Schedule{}, err
	}
	s.log.Info("schedule submitted", "schedule_id", out.ID, "spans", len(out.Spans))
	return out, nil
}

func (s *Service) Get(ctx context.Context, phoneHash string) (Schedule, error) {
	return s.repo.GetByPhone(ctx, phoneHash)
}

// Delete removes the Schedule so no future window fires. Calls already
// placed are not touched.
func (s *Service) Delete(ctx context.Context, phoneHash string) error {
	return s.repo.DeleteByPhone(ctx, phoneHash)
}

// RecordOutcome stores how a scheduled call ended. Registered with the
// orchestrator's OnFinish.
func (s *Service) RecordOutcome(ctx context.Context, c calls.Call) {
	if c.Kind != calls.KindScheduled || c.ScheduleID == "" {
		return
	}
	if err := s.attempts.SetOutcome(ctx, c.ScheduleID, c.WindowID, c.ID, string(c.State), s.clock.Now().UTC()); err != nil {
		s.log.Warn("record window outcome failed", "schedule_id", c.ScheduleID, "window_id", c.WindowID, "err", err)
	}
	if c.State != calls.StateCompleted && s.audit != nil {
		if err := s.audit.LogScheduleMissed(ctx, c.ID, c.PhoneHash, c.WindowID, string(c.State)); err != nil {
			s.log.Warn("audit missed window failed", "err", err)
		}
	}
}
