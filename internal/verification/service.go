package verification

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/config"
	"callbridge/internal/phone"
	"callbridge/internal/ratelimit"
	"callbridge/internal/session"
)

// Sender delivers a code over SMS.
type Sender interface {
	SendCode(ctx context.Context, phoneE164, code string) error
}

// Limiter is the subset of ratelimit.Limiter used here.
type Limiter interface {
	Allow(ctx context.Context, action string, scope ratelimit.Scope) error
}

// CodeFunc generates a numeric code of the given length.
type CodeFunc func(length int) (string, error)

type Service struct {
	repo     Repository
	sessions session.Store
	tokens   *auth.Manager
	sender   Sender
	limiter  Limiter
	audit    *audit.Service
	hasher   phone.Hasher
	policy   config.VerificationPolicy
	region   string

	clock   clockwork.Clock
	newCode CodeFunc
	log     *slog.Logger
}

type Deps struct {
	Repo     Repository
	Sessions session.Store
	Tokens   *auth.Manager
	Sender   Sender
	Limiter  Limiter
	Audit    *audit.Service
	Hasher   phone.Hasher
	Policy   config.VerificationPolicy
	// DefaultRegion is used for numbers entered without a country prefix.
	DefaultRegion string

	Clock   clockwork.Clock
	NewCode CodeFunc
	Logger  *slog.Logger
}

func NewService(d Deps) (*Service, error) {
	if d.Repo == nil || d.Sessions == nil || d.Tokens == nil || d.Sender == nil || d.Limiter == nil {
		return nil, errors.New("verification: missing dependency")
	}
	s := &Service{
		repo:     d.Repo,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		sender:   d.Sender,
		limiter:  d.Limiter,
		audit:    d.Audit,
		hasher:   d.Hasher,
		policy:   d.Policy,
		region:   d.DefaultRegion,
		clock:    d.Clock,
		newCode:  d.NewCode,
		log:      d.Logger,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.newCode == nil {
		s.newCode = RandomCode
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Request issues a code for rawPhone and sends it. ip may be empty.
func (s *Service) Request(ctx context.Context, rawPhone, ip string) (string, error) {
	num, err := phone.Parse(rawPhone, s.region)
	if err != nil {
		return "", err
	}
	hash := s.hasher.Hash(num.E164)

	if err := s.limiter.Allow(ctx, config.ActionSMS, ratelimit.Scope{IP: ip, PhoneHash: hash}); err != nil {
		if ra, ok := apperr.RetryAfterOf(err); ok && s.audit != nil {
			if aerr := s.audit.LogThrottled(ctx, config.ActionSMS, hash, ip, ra); aerr != nil {
				s.log.Warn("audit throttled request failed", "err", aerr)
			}
		}
		return "", err
	}

	code, err := s.newCode(s.policy.CodeLength)
	if err != nil {
		return "", fmt.Errorf("verification: generate code: %w", err)
	}

	now := s.clock.Now().UTC()
	a := Attempt{
		ID:          uuid.NewString(),
		PhoneE164:   num.E164,
		PhoneHash:   hash,
		CallingCode: num.CallingCode,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.policy.CodeTTL),
		UpdatedAt:   now,
	}
	a.CodeDigest = s.digest(a.ID, code)
	if err := s.repo.Create(ctx, a); err != nil {
		return "", err
	}

	if err := s.sender.SendCode(ctx, num.E164, code); err != nil {
		s.log.Error("sms send failed", "attempt_id", a.ID, "phone", phone.Mask(num.E164), "err", err)
		return "", apperr.Carrier(err.Error(), err)
	}
	s.log.Info("verification code sent", "attempt_id", a.ID, "phone", phone.Mask(num.E164))
	return a.ID, nil
}

// Confirm checks code against the attempt. A wrong code counts against the
// attempt and invalidates it once the configured maximum is reached. The
// first correct code consumes the attempt and opens a User-Session.
func (s *Service) Confirm(ctx context.Context, attemptID, code, ip string) (Result, error) {
	if err := s.limiter.Allow(ctx, config.ActionConfirm, ratelimit.Scope{IP: ip}); err != nil {
		return Result{}, err
	}
	if _, err := uuid.Parse(attemptID); err != nil {
		return Result{}, apperr.NotFound("verification attempt not found")
	}

	now := s.clock.Now().UTC()
	var outcome error
	var lockedNow bool
	a, err := s.repo.Update(ctx, attemptID, func(a *Attempt) error {
		before := a.Status
		outcome = s.judge(a, code, now)
		lockedNow = before != StatusLocked && a.Status == StatusLocked
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if outcome != nil {
		if lockedNow && s.audit != nil {
			if aerr := s.audit.LogVerificationFailure(ctx, a.PhoneHash, "max attempts exceeded"); aerr != nil {
				s.log.Warn("audit verification failure failed", "attempt_id", a.ID, "err", aerr)
			}
		}
		return Result{}, outcome
	}

	sess := session.Session{
		ID:        uuid.NewString(),
		Phone:     a.PhoneE164,
		PhoneHash: a.PhoneHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokens.SessionTTL()),
	}
	tok, exp, err := s.tokens.IssueSession(now, sess.ID, sess.Phone)
	if err != nil {
		return Result{}, fmt.Errorf("verification: issue session: %w", err)
	}
	sess.ExpiresAt = exp
	if err := s.sessions.Create(ctx, sess); err != nil {
		return Result{}, err
	}
	s.log.Info("phone verified", "attempt_id", a.ID, "session_id", sess.ID)
	return Result{SessionID: sess.ID, SessionToken: tok, ExpiresAt: exp}, nil
}

// judge applies one submission to a, mutating its state, and returns the
// error to surface (nil on success).
func (s *Service) judge(a *Attempt, code string, now time.Time) error {
	switch a.Status {
	case StatusConsumed:
		return apperr.Conflict("this code has already been used")
	case StatusLocked:
		return apperr.Expired("too many wrong codes, request a new one")
	case StatusExpired:
		return apperr.Expired("code expired, request a new one")
	}
	if !now.Before(a.ExpiresAt) {
		a.Status = StatusExpired
		return apperr.Expired("code expired, request a new one")
	}
	if !hmac.Equal([]byte(s.digest(a.ID, code)), []byte(a.CodeDigest)) {
		a.Failures++
		if a.Failures >= s.policy.MaxAttempts {
			a.Status = StatusLocked
			return apperr.Expired("too many wrong codes, request a new one")
		}
		return apperr.Validation("wrong code, %d tries left", s.policy.MaxAttempts-a.Failures)
	}
	a.Status = StatusConsumed
	return nil
}

// Stats reports verification outcomes created since the given time.
func (s *Service) Stats(ctx context.Context, since time.Time) (Stats, error) {
	return s.repo.Stats(ctx, since)
}

func (s *Service) digest(attemptID, code string) string {
	mac := hmac.New(sha256.New, []byte(attemptID))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// RandomCode returns length decimal digits from crypto/rand.
func RandomCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("code length must be > 0")
	}
	buf := make([]byte, length)
	ten := big.NewInt(10)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
