package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies errors surfaced to callers of the engine.
//
// Every kind except KindCarrier is an expected condition and its message is safe
// to show to the User. Carrier errors carry a raw provider reason for internal
// logs only; use PublicMessage when rendering them.
type Kind string

const (
	KindThrottled  Kind = "throttled"
	KindValidation Kind = "validation"
	KindCarrier    Kind = "carrier"
	KindExpired    Kind = "expired"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
)

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set for KindThrottled.
	RetryAfter time.Duration

	// Reason is the carrier's raw reason (KindCarrier). Never shown to Users.
	Reason string

	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Kind-only sentinels for errors.Is.
var (
	ErrThrottled  = &Error{Kind: KindThrottled}
	ErrValidation = &Error{Kind: KindValidation}
	ErrCarrier    = &Error{Kind: KindCarrier}
	ErrExpired    = &Error{Kind: KindExpired}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
)

func Throttled(retryAfter time.Duration, format string, args ...any) *Error {
	return &Error{Kind: KindThrottled, Message: fmt.Sprintf(format, args...), RetryAfter: retryAfter}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Expired(format string, args ...any) *Error {
	return &Error{Kind: KindExpired, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Carrier wraps a provider failure. reason is the provider's raw diagnostic.
func Carrier(reason string, err error) *Error {
	return &Error{Kind: KindCarrier, Message: "carrier request failed", Reason: reason, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RetryAfterOf returns the retry hint of a throttling error.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindThrottled {
		return e.RetryAfter, true
	}
	return 0, false
}

// PublicMessage is the text that may be shown to a User for err.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindCarrier {
		return "call failed, try again"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}
