package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"callbridge/internal/apperr"
	"callbridge/internal/config"
)

// ErrInvalidToken covers every rejection other than expiry.
var ErrInvalidToken = errors.New("invalid token")

type Manager struct {
	secret      []byte
	issuer      string
	audience    string
	sessionTTL  time.Duration
	operatorTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session ttl must be > 0")
	}
	return &Manager{
		secret:      []byte(cfg.JWTSecret),
		issuer:      cfg.JWTIssuer,
		audience:    cfg.JWTAudience,
		sessionTTL:  cfg.SessionTTL,
		operatorTTL: cfg.OperatorTokenTTL,
	}, nil
}

func (m *Manager) SessionTTL() time.Duration { return m.sessionTTL }

// IssueSession signs a User-Session token for phone valid on [now, now+ttl).
func (m *Manager) IssueSession(now time.Time, sessionID, phone string) (string, time.Time, error) {
	exp := now.Add(m.sessionTTL)
	tok, err := m.sign(Claims{
		RegisteredClaims: m.registered(now, exp, sessionID, ""),
		Phone:            phone,
		TokenType:        TokenTypeSession,
	})
	return tok, exp, err
}

// IssueOperator signs a token for the reporting endpoints.
func (m *Manager) IssueOperator(now time.Time, tokenID, subject, role string) (string, error) {
	if subject == "" || role == "" {
		return "", errors.New("subject and role are required")
	}
	ttl := m.operatorTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return m.sign(Claims{
		RegisteredClaims: m.registered(now, now.Add(ttl), tokenID, subject),
		Role:             role,
		TokenType:        TokenTypeOperator,
	})
}

// Verify checks signature, issuer, audience and type, and that
// iat <= now < exp. There is no leeway: a token is rejected from the second
// it expires.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	if err := jwt.NewValidator(opts...).Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperr.Expired("session expired, verify your number again")
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.TokenType != expected {
		return Claims{}, fmt.Errorf("%w: token_type mismatch", ErrInvalidToken)
	}
	switch expected {
	case TokenTypeSession:
		if claims.Phone == "" || claims.ID == "" {
			return Claims{}, fmt.Errorf("%w: session claims incomplete", ErrInvalidToken)
		}
	case TokenTypeOperator:
		if claims.Role == "" || claims.Subject == "" {
			return Claims{}, fmt.Errorf("%w: operator claims incomplete", ErrInvalidToken)
		}
	}
	return claims, nil
}

func (m *Manager) registered(now, exp time.Time, id, subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		Audience:  audienceOrNil(m.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        id,
	}
}

func (m *Manager) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
