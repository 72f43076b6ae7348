package schedule

import (
	"fmt"
	"time"

	"callbridge/internal/config"
)

// ActiveWindow reports the window of s containing now, if any. The window id
// is the local date and span start, e.g. "2026-10-19T09:00", which is stable
// across sweeps and restarts.
func ActiveWindow(s Schedule, now time.Time) (string, bool) {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return "", false
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	for _, sp := range s.Spans {
		if sp.Day == local.Weekday() && sp.Start <= minute && minute < sp.End {
			return fmt.Sprintf("%sT%02d:%02d", local.Format("2006-01-02"), sp.Start/60, sp.Start%60), true
		}
	}
	return "", false
}

// officeHours gates when Destinations can be expected to pick up.
type officeHours struct {
	loc      *time.Location
	weekdays map[time.Weekday]bool
	begin    int
	end      int
}

func parseOfficeHours(o config.OfficeHours) (officeHours, error) {
	out := officeHours{weekdays: map[time.Weekday]bool{}}
	tz := o.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return out, fmt.Errorf("schedule: office hours timezone: %w", err)
	}
	out.loc = loc
	for _, d := range o.Weekdays {
		out.weekdays[time.Weekday(d)] = true
	}
	if out.begin, err = config.ParseClock(o.Begin); err != nil {
		return out, fmt.Errorf("schedule: office hours begin: %w", err)
	}
	if out.end, err = config.ParseClock(o.End); err != nil {
		return out, fmt.Errorf("schedule: office hours end: %w", err)
	}
	return out, nil
}

func (o officeHours) open(now time.Time) bool {
	local := now.In(o.loc)
	if len(o.weekdays) > 0 && !o.weekdays[local.Weekday()] {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return o.begin <= minute && minute < o.end
}
