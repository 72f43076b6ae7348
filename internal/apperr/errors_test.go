package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("calls: start: %w", NotFound("destination %q", "d1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound match")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("did not expect ErrConflict match")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found kind, got %q", KindOf(err))
	}
}

func TestThrottledCarriesRetryAfter(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Throttled(42*time.Second, "rate limit exceeded"))
	d, ok := RetryAfterOf(err)
	if !ok || d != 42*time.Second {
		t.Fatalf("expected 42s retry after, got %v %v", d, ok)
	}
}

func TestCarrierMessageIsGeneric(t *testing.T) {
	err := Carrier("21215: geo permission denied", errors.New("http 400"))
	if got := PublicMessage(err); got != "call failed, try again" {
		t.Fatalf("unexpected public message %q", got)
	}
	if err.Error() == "" {
		t.Fatalf("expected internal message")
	}
	if got := PublicMessage(Validation("empty schedule")); got != "empty schedule" {
		t.Fatalf("unexpected public message %q", got)
	}
	if got := PublicMessage(errors.New("boom")); got != "internal error" {
		t.Fatalf("unexpected public message %q", got)
	}
}
