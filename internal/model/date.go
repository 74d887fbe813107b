package model

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a local calendar day formatted as YYYY-MM-DD.
// The lexical order of two Dates matches their chronological order.
type Date string

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	return Date(t.In(loc).Format(dateLayout))
}

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return string(d)
}

// AddDays returns the date n days after d (n may be negative).
// An unparseable date is returned unchanged.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return d
	}
	return Date(t.AddDate(0, 0, n).Format(dateLayout))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d < other
}

// ParseClock parses an HH:mm clock string.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// TriggerAt returns the instant at which clock (HH:mm) occurs on d in loc.
func TriggerAt(d Date, clock string, loc *time.Location) (time.Time, error) {
	day, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", d, err)
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}
