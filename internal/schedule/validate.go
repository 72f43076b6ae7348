package schedule

import (
	"sort"
	"time"

	"callbridge/internal/apperr"
)

const minutesPerDay = 24 * 60

// Normalize validates spans and returns them sorted by day and start.
// Spans must be non-empty, well-formed and pairwise disjoint.
func Normalize(timeZone string, spans []Span) ([]Span, *time.Location, error) {
	if len(spans) == 0 {
		return nil, nil, apperr.Validation("empty schedule")
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil || timeZone == "" {
		return nil, nil, apperr.Validation("unknown time zone %q", timeZone)
	}
	out := make([]Span, len(spans))
	copy(out, spans)
	for i, s := range out {
		if s.Day < time.Sunday || s.Day > time.Saturday {
			return nil, nil, apperr.Validation("span %d: invalid day %d", i, s.Day)
		}
		if s.Start < 0 || s.End > minutesPerDay || s.Start >= s.End {
			return nil, nil, apperr.Validation("span %d: start must be before end within one day", i)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Start < out[j].Start
	})
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if prev.Day == cur.Day && cur.Start < prev.End {
			return nil, nil, apperr.Validation("time spans overlap on %s", cur.Day)
		}
	}
	return out, loc, nil
}
