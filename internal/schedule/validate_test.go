package schedule

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"callbridge/internal/apperr"
)

func TestNormalizeSortsSpans(t *testing.T) {
	spans, loc, err := Normalize("Europe/Brussels", []Span{
		{Day: time.Wednesday, Start: 600, End: 660},
		{Day: time.Monday, Start: 900, End: 960},
		{Day: time.Monday, Start: 540, End: 600},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if loc.String() != "Europe/Brussels" {
		t.Fatalf("unexpected location %v", loc)
	}
	if spans[0].Day != time.Monday || spans[0].Start != 540 || spans[2].Day != time.Wednesday {
		t.Fatalf("unexpected order %+v", spans)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name  string
		tz    string
		spans []Span
	}{
		{"empty", "UTC", nil},
		{"unknown zone", "Mars/Olympus", []Span{{Day: time.Monday, Start: 0, End: 60}}},
		{"missing zone", "", []Span{{Day: time.Monday, Start: 0, End: 60}}},
		{"bad day", "UTC", []Span{{Day: 7, Start: 0, End: 60}}},
		{"reversed", "UTC", []Span{{Day: time.Monday, Start: 600, End: 540}}},
		{"empty span", "UTC", []Span{{Day: time.Monday, Start: 600, End: 600}}},
		{"past midnight", "UTC", []Span{{Day: time.Monday, Start: 1380, End: 1500}}},
		{"overlap", "UTC", []Span{{Day: time.Friday, Start: 540, End: 660}, {Day: time.Friday, Start: 600, End: 720}}},
	}
	for _, tc := range cases {
		_, _, err := Normalize(tc.tz, tc.spans)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestNormalizeAllowsTouchingSpans(t *testing.T) {
	_, _, err := Normalize("UTC", []Span{
		{Day: time.Friday, Start: 540, End: 600},
		{Day: time.Friday, Start: 600, End: 660},
	})
	if err != nil {
		t.Fatalf("touching spans should be accepted: %v", err)
	}
}
