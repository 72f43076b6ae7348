package recommender

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/session"
)

// Service answers "which Destination next" for a session and whether a
// Destination is still a valid choice.
type Service struct {
	repo     Repository
	sessions session.Store
	picker   *Picker
	k        int
	clock    clockwork.Clock
	log      *slog.Logger
}

func NewService(repo Repository, sessions session.Store, picker *Picker, clk clockwork.Clock, log *slog.Logger) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, sessions: sessions, picker: picker, k: picker.k, clock: clk, log: log}
}

// Suggest picks from country ("" for all countries) while avoiding recent.
// It returns NotFound only when the pool is empty.
func (s *Service) Suggest(ctx context.Context, country string, recent []string) (Destination, error) {
	pool, err := s.repo.List(ctx, normalizeCountry(country))
	if err != nil {
		return Destination{}, err
	}
	d, ok := s.picker.Pick(pool, recent)
	if !ok {
		return Destination{}, apperr.NotFound("no destinations available for %q", country)
	}
	return d, nil
}

// SuggestForSession picks the next Destination for a session and records it
// in the session's recent list in one atomic update, so concurrent requests
// of the same session never see the same stale list. Renewing a suggestion
// is the same operation.
func (s *Service) SuggestForSession(ctx context.Context, sessionID, country string) (Destination, error) {
	pool, err := s.repo.List(ctx, normalizeCountry(country))
	if err != nil {
		return Destination{}, err
	}
	if len(pool) == 0 {
		return Destination{}, apperr.NotFound("no destinations available for %q", country)
	}

	var picked Destination
	_, err = s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		picked, _ = s.picker.Pick(pool, sess.Recent)
		sess.Remember(picked.ID, s.k)
		sess.SelectedDestinationID = picked.ID
		return nil
	})
	if err != nil {
		return Destination{}, err
	}
	s.logSelection(ctx, picked.ID, SelectionSuggested, sessionID)
	return picked, nil
}

// Select pins a Destination chosen by id, bypassing weighting. It still
// enters the recent list so the next renew does not offer it again.
func (s *Service) Select(ctx context.Context, sessionID, destinationID string) (Destination, error) {
	d, err := s.repo.Get(ctx, destinationID)
	if err != nil {
		return Destination{}, err
	}
	_, err = s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		sess.Remember(d.ID, s.k)
		sess.SelectedDestinationID = d.ID
		return nil
	})
	if err != nil {
		return Destination{}, err
	}
	s.logSelection(ctx, d.ID, SelectionSelected, sessionID)
	return d, nil
}

// Search finds Destinations by part of their name. country is required
// unless all is set, in which case it only ranks that country first. limit
// 0 means MaxSearchResults.
func (s *Service) Search(ctx context.Context, name, country string, all bool, limit int) ([]Destination, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	country = normalizeCountry(country)
	if !all && country == "" {
		return nil, apperr.Validation("country is required if all_countries is false")
	}
	if limit == 0 {
		limit = MaxSearchResults
	}
	if limit < 1 || limit > MaxSearchResults {
		return nil, apperr.Validation("limit must be between 1 and %d", MaxSearchResults)
	}
	return s.repo.Search(ctx, SearchQuery{Name: name, Country: country, AllCountries: all, Limit: limit})
}

// Get resolves a Destination by id.
func (s *Service) Get(ctx context.Context, id string) (Destination, error) {
	return s.repo.Get(ctx, id)
}

// IsValidChoice reports whether id still names a callable Destination.
func (s *Service) IsValidChoice(ctx context.Context, id string) (Destination, bool, error) {
	d, err := s.repo.Get(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return Destination{}, false, nil
	}
	if err != nil {
		return Destination{}, false, err
	}
	return d, d.Phone != "", nil
}

func (s *Service) logSelection(ctx context.Context, destID string, kind SelectionKind, sessionID string) {
	err := s.repo.RecordSelection(ctx, SelectionEvent{
		ID:            uuid.NewString(),
		DestinationID: destID,
		Kind:          kind,
		SessionID:     sessionID,
		CreatedAt:     s.clock.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("selection log failed", "destination_id", destID, "kind", kind, "err", err)
	}
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
