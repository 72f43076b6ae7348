package auth

import (
	"errors"
	"testing"
	"time"

	"callbridge/internal/apperr"
	"callbridge/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "callbridge",
		JWTAudience: "callbridge-web",
		SessionTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifySession(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, exp, err := m.IssueSession(now, "sess-1", "+431234567")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	claims, err := m.Verify(tok, TokenTypeSession, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ID != "sess-1" || claims.Phone != "+431234567" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionAcceptedUntilExactExpiry(t *testing.T) {
	m := newTestManager(t)
	issued := time.Unix(1700000000, 0).UTC()
	tok, _, err := m.IssueSession(issued, "sess-1", "+431234567")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expiry := issued.Add(time.Hour)

	if _, err := m.Verify(tok, TokenTypeSession, expiry.Add(-time.Second)); err != nil {
		t.Fatalf("expected token accepted one second before expiry, got %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeSession, expiry); !errors.Is(err, apperr.ErrExpired) {
		t.Fatalf("expected expired at exact expiry, got %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeSession, expiry.Add(time.Second)); !errors.Is(err, apperr.ErrExpired) {
		t.Fatalf("expected expired one second after expiry, got %v", err)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueOperator(now, "op-1", "alice", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeSession, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token_type mismatch, got %v", err)
	}
	claims, err := m.Verify(tok, TokenTypeOperator, now)
	if err != nil || claims.Role != "operator" || claims.Subject != "alice" {
		t.Fatalf("unexpected operator verify: %+v %v", claims, err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	m := newTestManager(t)
	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "callbridge", JWTAudience: "callbridge-web", SessionTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()
	tok, _, _ := other.IssueSession(now, "sess-1", "+431234567")
	if _, err := m.Verify(tok, TokenTypeSession, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
