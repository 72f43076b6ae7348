package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"callbridge/internal/apperr"
	"callbridge/internal/config"
)

// KeyPart names one dimension of a bucket's scope key.
type KeyPart string

const (
	PartIP          KeyPart = "ip"
	PartSmallBlock  KeyPart = "ip_small_block" // /24 for IPv4, /64 for IPv6
	PartLargeBlock  KeyPart = "ip_large_block" // /16 for IPv4, /48 for IPv6
	PartPhone       KeyPart = "phone"
	PartDestination KeyPart = "destination"
)

type Rule struct {
	Window time.Duration
	Max    int
	// Key is empty for a global rule.
	Key []KeyPart
}

type ActionPolicy struct {
	FailOpen bool
	Rules    []Rule
}

// Scope carries the identifiers a request can be keyed on. Rules whose key
// needs a value missing from the scope are skipped, so a scheduled call (no
// IP) is only held to its phone and global rules.
type Scope struct {
	IP string
	// PhoneHash identifies the number without putting it into store keys.
	PhoneHash     string
	DestinationID string
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Bucket is one rule resolved against one scope.
type Bucket struct {
	Key    string
	Window time.Duration
	Max    int
}

// Store records hits in sliding windows.
//
// HitAll must be atomic across all buckets: either every bucket has room and
// now is recorded in each of them, or nothing is recorded and the decision
// carries the largest wait among the full buckets. Entries whose age is at
// least the bucket window are expired.
type Store interface {
	HitAll(ctx context.Context, buckets []Bucket, now time.Time) (Decision, error)
}

// storeDownRetry is the hint returned when a fail-closed action cannot reach
// its counter store.
const storeDownRetry = 5 * time.Second

type Limiter struct {
	store    Store
	policies map[string]ActionPolicy
	clock    clockwork.Clock
	log      *slog.Logger
}

type Option func(*Limiter)

func WithClock(c clockwork.Clock) Option { return func(l *Limiter) { l.clock = c } }

func WithLogger(lg *slog.Logger) Option { return func(l *Limiter) { l.log = lg } }

func New(store Store, policies map[string]ActionPolicy, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		policies: policies,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// PoliciesFromConfig converts the policy file's rate_limits section.
func PoliciesFromConfig(in map[string]config.ActionLimits) map[string]ActionPolicy {
	out := make(map[string]ActionPolicy, len(in))
	for action, limits := range in {
		p := ActionPolicy{FailOpen: limits.FailOpen}
		for _, r := range limits.Rules {
			rule := Rule{Window: r.Window, Max: r.Max}
			for _, k := range r.Key {
				rule.Key = append(rule.Key, KeyPart(k))
			}
			p.Rules = append(p.Rules, rule)
		}
		out[action] = p
	}
	return out
}

// Check is check_and_increment for action in scope. Actions without rules
// are always allowed.
func (l *Limiter) Check(ctx context.Context, action string, scope Scope) (Decision, error) {
	policy, ok := l.policies[action]
	if !ok || len(policy.Rules) == 0 {
		return Decision{Allowed: true}, nil
	}

	buckets := make([]Bucket, 0, len(policy.Rules))
	for i, r := range policy.Rules {
		key, ok := bucketKey(action, i, r.Key, scope)
		if !ok {
			continue
		}
		buckets = append(buckets, Bucket{Key: key, Window: r.Window, Max: r.Max})
	}
	if len(buckets) == 0 {
		return Decision{Allowed: true}, nil
	}

	d, err := l.store.HitAll(ctx, buckets, l.clock.Now())
	if err != nil {
		if policy.FailOpen {
			l.log.Warn("rate limit store unavailable, failing open", "action", action, "err", err)
			return Decision{Allowed: true}, nil
		}
		l.log.Error("rate limit store unavailable, failing closed", "action", action, "err", err)
		return Decision{Allowed: false, RetryAfter: storeDownRetry}, nil
	}
	if !d.Allowed {
		d.RetryAfter = roundRetry(d.RetryAfter)
		l.log.Info("rate limited", "action", action, "retry_after", d.RetryAfter.Seconds())
	}
	return d, nil
}

// Allow is Check folded into an error: nil when allowed, a throttling
// error carrying the retry hint otherwise.
func (l *Limiter) Allow(ctx context.Context, action string, scope Scope) error {
	d, err := l.Check(ctx, action, scope)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return apperr.Throttled(d.RetryAfter, "too many %s requests, retry in %ds", action, int(d.RetryAfter.Seconds()))
	}
	return nil
}

// roundRetry rounds up to whole seconds with a floor of one second.
func roundRetry(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func bucketKey(action string, idx int, parts []KeyPart, s Scope) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "rl:%s:%d", action, idx)
	for _, p := range parts {
		v, ok := partValue(p, s)
		if !ok {
			return "", false
		}
		b.WriteString(":")
		b.WriteString(string(p))
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String(), true
}

func partValue(p KeyPart, s Scope) (string, bool) {
	switch p {
	case PartPhone:
		return s.PhoneHash, s.PhoneHash != ""
	case PartDestination:
		return s.DestinationID, s.DestinationID != ""
	case PartIP, PartSmallBlock, PartLargeBlock:
		addr, err := netip.ParseAddr(s.IP)
		if err != nil {
			return "", false
		}
		addr = addr.Unmap()
		switch p {
		case PartSmallBlock:
			return networkOf(addr, 24, 64), true
		case PartLargeBlock:
			return networkOf(addr, 16, 48), true
		}
		return addr.String(), true
	}
	return "", false
}

func networkOf(addr netip.Addr, v4Bits, v6Bits int) string {
	bits := v6Bits
	if addr.Is4() {
		bits = v4Bits
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return addr.String()
	}
	return prefix.String()
}
