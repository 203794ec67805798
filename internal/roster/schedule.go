package roster

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(raw string) (time.Weekday, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if raw == name || (len(raw) == 3 && strings.HasPrefix(name, raw)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid day %q", raw)
}

// ParseDate validates a YYYY-MM-DD date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be formatted YYYY-MM-DD")
	}
	return parsed, nil
}

// StartOn combines a date (YYYY-MM-DD) and a kick-off time (HH:MM) in loc.
func StartOn(date, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := time.Parse(TimeLayout, strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be formatted HH:MM")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// NextStart returns the first kick-off on weekday at hhmm that is on or after
// the start of now's day in loc. A game later today, or one already underway
// today, resolves to today.
func NextStart(weekday time.Weekday, hhmm string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	offset := (int(weekday) - int(local.Weekday()) + 7) % 7
	day := local.AddDate(0, 0, offset)
	return StartOn(day.Format(DateLayout), hhmm, loc)
}
