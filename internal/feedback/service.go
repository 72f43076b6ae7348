package feedback

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/calls"
	"callbridge/internal/recommender"
)

const maxAdditional = 2000

// DestinationSource resolves the Destination shown next to the questionnaire.
type DestinationSource interface {
	Get(ctx context.Context, id string) (recommender.Destination, error)
}

// Service issues one feedback token per completed call and records the
// single submission made with it.
type Service struct {
	repo  Repository
	dests DestinationSource
	ttl   time.Duration
	clock clockwork.Clock
	log   *slog.Logger
}

func NewService(repo Repository, dests DestinationSource, ttl time.Duration, clk clockwork.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: repo, dests: dests, ttl: ttl, clock: clk, log: log}
}

// Issue creates the token for a finished call. Only completed calls get one;
// it has the calls.FinishFunc shape so it can be registered with OnFinish.
func (s *Service) Issue(ctx context.Context, c calls.Call) {
	if c.State != calls.StateCompleted {
		return
	}
	now := s.clock.Now().UTC()
	f := Feedback{
		Token:         uuid.NewString(),
		CallID:        c.ID,
		DestinationID: c.DestinationID,
		PhoneHash:     c.PhoneHash,
		CallingCode:   c.CallingCode,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		s.log.Warn("feedback token not issued", "call_id", c.ID, "err", err)
		return
	}
	s.log.Debug("feedback token issued", "call_id", c.ID)
}

// ForCall returns the token issued for callID. NotFound means the call did
// not complete or has not ended yet.
func (s *Service) ForCall(ctx context.Context, callID string) (Feedback, error) {
	return s.repo.ForCall(ctx, callID)
}

// Status is what the questionnaire page needs before asking anything.
type Status struct {
	Expired     bool                    `json:"expired"`
	Used        bool                    `json:"used"`
	Destination recommender.Destination `json:"destination"`
}

func (s *Service) Status(ctx context.Context, token string) (Status, error) {
	f, err := s.lookup(ctx, token)
	if err != nil {
		return Status{}, err
	}
	d, err := s.dests.Get(ctx, f.DestinationID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Expired:     f.Expired(s.clock.Now()),
		Used:        f.Used(),
		Destination: d,
	}, nil
}

// Submit records the User's answers. A token takes one submission and none
// after it expired.
func (s *Service) Submit(ctx context.Context, token string, sub Submission) error {
	if !sub.Convinced.Valid() {
		return apperr.Validation("convinced must be one of yes, likely-yes, likely-no, no")
	}
	if utf8.RuneCountInString(sub.Additional) > maxAdditional {
		return apperr.Validation("additional must be at most %d characters", maxAdditional)
	}
	if _, err := uuid.Parse(token); err != nil {
		return apperr.NotFound("feedback token not found")
	}
	now := s.clock.Now().UTC()
	f, err := s.repo.Update(ctx, token, func(f *Feedback) error {
		if f.Used() {
			return apperr.Conflict("feedback already submitted")
		}
		if f.Expired(now) {
			return apperr.Expired("feedback token expired")
		}
		f.EnteredAt = &now
		f.Convinced = sub.Convinced
		f.TechnicalProblems = sub.TechnicalProblems
		f.Additional = sub.Additional
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("feedback submitted", "call_id", f.CallID, "convinced", f.Convinced)
	return nil
}

func (s *Service) lookup(ctx context.Context, token string) (Feedback, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Feedback{}, apperr.NotFound("feedback token not found")
	}
	return s.repo.Get(ctx, token)
}
