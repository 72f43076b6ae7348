package phone

import (
	"errors"
	"testing"

	"callbridge/internal/apperr"
)

func TestParseNormalizesToE164(t *testing.T) {
	n, err := Parse("+43 1234567", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.E164 != "+431234567" {
		t.Fatalf("unexpected e164 %q", n.E164)
	}
	if n.CallingCode != 43 {
		t.Fatalf("unexpected calling code %d", n.CallingCode)
	}
}

func TestParseUsesDefaultRegion(t *testing.T) {
	n, err := Parse("030 1234567", "DE")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.E164 != "+49301234567" || n.CallingCode != 49 {
		t.Fatalf("unexpected number %+v", n)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "hello", "+1"} {
		if _, err := Parse(raw, ""); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", raw, err)
		}
	}
}

func TestHashIsPepperedAndStable(t *testing.T) {
	a := NewHasher("pepper-a")
	b := NewHasher("pepper-b")
	if a.Hash("+431234567") != a.Hash("+431234567") {
		t.Fatalf("expected stable hash")
	}
	if a.Hash("+431234567") == b.Hash("+431234567") {
		t.Fatalf("expected pepper to change the hash")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+431234567"); got != "+43*****67" {
		t.Fatalf("unexpected mask %q", got)
	}
}
