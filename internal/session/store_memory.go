package session

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
)

type MemoryStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	sessions map[string]Session
}

func NewMemoryStore(clk clockwork.Clock) *MemoryStore {
	return &MemoryStore{clock: clk, sessions: make(map[string]Session)}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return apperr.Conflict("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *MemoryStore) getLocked(id string) (Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, apperr.NotFound("session not found")
	}
	if !m.clock.Now().Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return Session{}, apperr.NotFound("session not found")
	}
	s.Recent = append([]string(nil), s.Recent...)
	return s, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.getLocked(id)
	if err != nil {
		return Session{}, err
	}
	if err := fn(&s); err != nil {
		return Session{}, err
	}
	m.sessions[id] = s
	return s, nil
}

func (m *MemoryStore) Active(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.getLocked(id)
	if err != nil {
		return false, nil
	}
	return s.usable(m.clock.Now()), nil
}

func (m *MemoryStore) Revoke(ctx context.Context, id string) error {
	_, err := m.Update(ctx, id, func(s *Session) error {
		s.Revoked = true
		return nil
	})
	return err
}
