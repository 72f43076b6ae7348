// Package session holds the server-side half of a User-Session: revocation
// and the per-session list of recently shown Destinations.
package session

import (
	"context"
	"time"
)

type Session struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	PhoneHash string    `json:"phone_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Recent holds the last shown Destination ids, oldest first.
	Recent []string `json:"recent,omitempty"`
	// SelectedDestinationID is the Destination an Instant Call will dial.
	SelectedDestinationID string `json:"selected_destination_id,omitempty"`

	Revoked bool `json:"revoked,omitempty"`
}

// Remember appends id to the recent list, keeping at most max entries. max is
// raised to 1 so the immediately previous suggestion is always known.
func (s *Session) Remember(id string, max int) {
	if max < 1 {
		max = 1
	}
	s.Recent = append(s.Recent, id)
	if over := len(s.Recent) - max; over > 0 {
		s.Recent = append([]string(nil), s.Recent[over:]...)
	}
}

// Last returns the most recently shown Destination id.
func (s Session) Last() string {
	if len(s.Recent) == 0 {
		return ""
	}
	return s.Recent[len(s.Recent)-1]
}

func (s Session) usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Store persists sessions until they expire.
type Store interface {
	Create(ctx context.Context, s Session) error
	// Get returns NotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (Session, error)
	// Update applies fn atomically. fn may be called more than once.
	Update(ctx context.Context, id string, fn func(*Session) error) (Session, error)
	Active(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string) error
}
