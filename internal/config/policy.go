package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the campaign-tunable behavior of the engine, loaded from YAML.
// Anything omitted from the file keeps its DefaultPolicy value.
type Policy struct {
	RateLimits   map[string]ActionLimits `yaml:"rate_limits"`
	Recommender  RecommenderPolicy       `yaml:"recommender"`
	Calls        CallPolicy              `yaml:"calls"`
	Verification VerificationPolicy      `yaml:"verification"`
	Scheduler    SchedulerPolicy         `yaml:"scheduler"`
	Pricing      PricingPolicy           `yaml:"pricing"`
	Feedback     FeedbackPolicy          `yaml:"feedback"`
}

// ActionLimits is the rule set of one throttled action. A request passes only
// if every rule passes.
type ActionLimits struct {
	// FailOpen allows the action when the counter store is unreachable.
	FailOpen bool       `yaml:"fail_open"`
	Rules    []RateRule `yaml:"rules"`
}

type RateRule struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
	// Key lists the scope parts combined into the bucket key: ip,
	// ip_small_block, ip_large_block, phone, destination. Empty is global.
	Key []string `yaml:"key"`
}

type RecommenderPolicy struct {
	// RotationWindow is K, the number of recently shown Destinations avoided.
	RotationWindow      int  `yaml:"rotation_window"`
	AllCountriesDefault bool `yaml:"all_countries_default"`
}

type CallPolicy struct {
	NoAnswerTimeout    time.Duration `yaml:"no_answer_timeout"`
	DestinationTimeout time.Duration `yaml:"destination_timeout"`
	IVRTimeout         time.Duration `yaml:"ivr_timeout"`
	IVRMaxRepeats      int           `yaml:"ivr_max_repeats"`
	// MaxDuration caps a bridged call and the in-call guard lease.
	MaxDuration time.Duration `yaml:"max_duration"`
}

type VerificationPolicy struct {
	CodeTTL     time.Duration `yaml:"code_ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	CodeLength  int           `yaml:"code_length"`
}

type SchedulerPolicy struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	OfficeHours   OfficeHours   `yaml:"office_hours"`
}

type OfficeHours struct {
	Timezone string `yaml:"timezone"`
	// Weekdays uses time.Weekday numbering (0 = Sunday).
	Weekdays []int  `yaml:"weekdays"`
	Begin    string `yaml:"begin"`
	End      string `yaml:"end"`
}

type PricingPolicy struct {
	Currency string `yaml:"currency"`
	// PerMinuteMinor maps ISO country codes to the per-minute rate in minor units.
	PerMinuteMinor map[string]int64 `yaml:"per_minute_minor"`
	DefaultMinor   int64            `yaml:"default_minor"`
}

type FeedbackPolicy struct {
	// TokenTTL is how long a completed call's questionnaire stays open.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Throttled action names.
const (
	ActionSMS             = "sms"
	ActionConfirm         = "confirm"
	ActionCall            = "call"
	ActionDestinationCall = "destination_call"
	ActionSuggest         = "suggest"
	ActionSchedule        = "schedule"
)

func DefaultPolicy() Policy {
	return Policy{
		RateLimits: map[string]ActionLimits{
			ActionSMS: {Rules: []RateRule{
				{Window: time.Hour, Max: 3, Key: []string{"phone"}},
				{Window: time.Hour, Max: 10, Key: []string{"ip"}},
				{Window: time.Hour, Max: 30, Key: []string{"ip_small_block"}},
				{Window: time.Hour, Max: 500},
			}},
			ActionConfirm: {FailOpen: true, Rules: []RateRule{
				{Window: 10 * time.Minute, Max: 30, Key: []string{"ip"}},
			}},
			ActionCall: {Rules: []RateRule{
				{Window: time.Hour, Max: 5, Key: []string{"phone"}},
				{Window: time.Minute, Max: 5, Key: []string{"ip"}},
				{Window: time.Minute, Max: 50},
			}},
			ActionDestinationCall: {Rules: []RateRule{
				{Window: 10 * time.Minute, Max: 3, Key: []string{"destination"}},
			}},
			ActionSuggest: {FailOpen: true, Rules: []RateRule{
				{Window: time.Minute, Max: 60, Key: []string{"ip"}},
			}},
			ActionSchedule: {FailOpen: true, Rules: []RateRule{
				{Window: time.Hour, Max: 20, Key: []string{"phone"}},
			}},
		},
		Recommender: RecommenderPolicy{RotationWindow: 3},
		Calls: CallPolicy{
			NoAnswerTimeout:    30 * time.Second,
			DestinationTimeout: 45 * time.Second,
			IVRTimeout:         10 * time.Second,
			IVRMaxRepeats:      2,
			MaxDuration:        time.Hour,
		},
		Verification: VerificationPolicy{
			CodeTTL:     10 * time.Minute,
			MaxAttempts: 3,
			CodeLength:  6,
		},
		Scheduler: SchedulerPolicy{
			SweepInterval: time.Minute,
			OfficeHours: OfficeHours{
				Timezone: "Europe/Brussels",
				Weekdays: []int{1, 2, 3, 4, 5},
				Begin:    "09:00",
				End:      "20:00",
			},
		},
		Pricing:  PricingPolicy{Currency: "EUR", DefaultMinor: 5},
		Feedback: FeedbackPolicy{TokenTTL: 24 * time.Hour},
	}
}

// LoadPolicy overlays the YAML file at path onto DefaultPolicy. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes raw over the defaults. Sections are merged field by
// field; a rate_limits action present in the file replaces that action's
// default rules entirely.
func ParsePolicy(raw []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	var errs []error

	for action, limits := range p.RateLimits {
		if len(limits.Rules) == 0 {
			errs = append(errs, fmt.Errorf("rate_limits.%s: at least one rule is required", action))
		}
		for i, r := range limits.Rules {
			if r.Window < time.Second {
				errs = append(errs, fmt.Errorf("rate_limits.%s[%d]: window must be >= 1s", action, i))
			}
			// max 0 switches the action off.
			if r.Max < 0 {
				errs = append(errs, fmt.Errorf("rate_limits.%s[%d]: max must be >= 0", action, i))
			}
			for _, part := range r.Key {
				if !isValidKeyPart(part) {
					errs = append(errs, fmt.Errorf("rate_limits.%s[%d]: unknown key part %q", action, i, part))
				}
			}
		}
	}

	if p.Recommender.RotationWindow < 0 {
		errs = append(errs, errors.New("recommender.rotation_window must be >= 0"))
	}
	if p.Calls.NoAnswerTimeout <= 0 || p.Calls.DestinationTimeout <= 0 || p.Calls.IVRTimeout <= 0 {
		errs = append(errs, errors.New("calls timeouts must be > 0"))
	}
	if p.Calls.IVRMaxRepeats < 0 {
		errs = append(errs, errors.New("calls.ivr_max_repeats must be >= 0"))
	}
	if p.Calls.MaxDuration <= 0 {
		errs = append(errs, errors.New("calls.max_duration must be > 0"))
	}
	if p.Verification.CodeTTL <= 0 {
		errs = append(errs, errors.New("verification.code_ttl must be > 0"))
	}
	if p.Verification.MaxAttempts <= 0 {
		errs = append(errs, errors.New("verification.max_attempts must be > 0"))
	}
	if p.Verification.CodeLength < 4 || p.Verification.CodeLength > 10 {
		errs = append(errs, errors.New("verification.code_length must be between 4 and 10"))
	}
	if p.Scheduler.SweepInterval < time.Second {
		errs = append(errs, errors.New("scheduler.sweep_interval must be >= 1s"))
	}
	if err := p.Scheduler.OfficeHours.validate(); err != nil {
		errs = append(errs, err)
	}
	if p.Pricing.DefaultMinor < 0 {
		errs = append(errs, errors.New("pricing.default_minor must be >= 0"))
	}
	if p.Feedback.TokenTTL < time.Minute {
		errs = append(errs, errors.New("feedback.token_ttl must be >= 1m"))
	}

	return joinErrors(errs)
}

func (o OfficeHours) validate() error {
	if _, err := time.LoadLocation(o.Timezone); err != nil {
		return fmt.Errorf("scheduler.office_hours.timezone: %w", err)
	}
	for _, d := range o.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("scheduler.office_hours.weekdays: %d out of range", d)
		}
	}
	begin, err := ParseClock(o.Begin)
	if err != nil {
		return fmt.Errorf("scheduler.office_hours.begin: %w", err)
	}
	end, err := ParseClock(o.End)
	if err != nil {
		return fmt.Errorf("scheduler.office_hours.end: %w", err)
	}
	if begin >= end {
		return errors.New("scheduler.office_hours: begin must be before end")
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted
// as the end of the day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	total := h*60 + m
	if h < 0 || total > 24*60 {
		return 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return total, nil
}

func isValidKeyPart(p string) bool {
	switch p {
	case "ip", "ip_small_block", "ip_large_block", "phone", "destination":
		return true
	default:
		return false
	}
}
