package validation

import (
	"fmt"
	"time"
)

// BusinessLocation returns the *time.Location for a company timezone string.
// Falls back to UTC if the timezone is invalid or empty.
func BusinessLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDate parses a "2006-01-02" date in the given location.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("validation: cannot parse date %q", raw)
	}
	return t, nil
}

// ParseClock parses a "15:04" wall-clock time into minutes since midnight.
func ParseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("validation: cannot parse time %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CombineDateClock builds an instant from a date and minutes-since-midnight,
// in the date's location.
func CombineDateClock(date time.Time, clockMinutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clockMinutes/60, clockMinutes%60, 0, 0, date.Location())
}

// SameDay reports whether two instants fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates an instant to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
