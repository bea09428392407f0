// Package calendar maps timestamps onto canonical day keys.
//
// Every process that opens the store builds its Normalizer from the store's
// timezone setting, so the writer and the widget agree on day boundaries.
package calendar

import (
	"fmt"
	"time"

	"github.com/julianstephens/streakline/internal/constants"
)

// Normalizer maps timestamps to day keys (YYYY-MM-DD) in one fixed location.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Normalizer for loc. A nil loc means time.Local.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc, now: time.Now}
}

// NewFromTimezone returns a Normalizer for an IANA timezone name ("" and "Local" mean system local).
func NewFromTimezone(timezone string) (*Normalizer, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return New(loc), nil
}

// WithClock returns a copy of n that reads the current time from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	return &Normalizer{loc: n.loc, now: now}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Now returns the current time in the normalizer's location.
func (n *Normalizer) Now() time.Time {
	return n.now().In(n.loc)
}

// Today returns today's day key.
func (n *Normalizer) Today() string {
	return n.DayKey(n.now())
}

// DayKey returns the day key for t. Zero or out-of-range timestamps clamp to now.
func (n *Normalizer) DayKey(t time.Time) string {
	return n.StartOfDay(t).Format(constants.DateFormat)
}

// StartOfDay returns midnight of t's calendar day in the normalizer's location.
func (n *Normalizer) StartOfDay(t time.Time) time.Time {
	t = n.clamp(t).In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc)
}

// NextDayStart returns the first instant of the day after t.
func (n *Normalizer) NextDayStart(t time.Time) time.Time {
	s := n.StartOfDay(t)
	return time.Date(s.Year(), s.Month(), s.Day()+1, 0, 0, 0, 0, n.loc)
}

// DaysBetween counts the day boundaries crossed going from a to b. It is negative
// when b is on an earlier day than a, and independent of DST transitions.
func (n *Normalizer) DaysBetween(a, b time.Time) int {
	return civilDiff(n.StartOfDay(a), n.StartOfDay(b))
}

// DayStartTime parses a day key as midnight in the normalizer's location.
func (n *Normalizer) DayStartTime(day string) (time.Time, error) {
	return ParseDateInLocation(day, n.loc)
}

func (n *Normalizer) clamp(t time.Time) time.Time {
	if t.IsZero() || t.Year() < 1 || t.Year() > 9999 {
		return n.now()
	}
	return t
}

// DiffDays returns the number of calendar days from day a to day b.
func DiffDays(a, b string) (int, error) {
	ta, err := time.Parse(constants.DateFormat, a)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: %w", a, err)
	}
	tb, err := time.Parse(constants.DateFormat, b)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: %w", b, err)
	}
	return civilDiff(ta, tb), nil
}

// AddDays shifts a day key by n calendar days.
func AddDays(day string, n int) (string, error) {
	t, err := time.Parse(constants.DateFormat, day)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t.AddDate(0, 0, n).Format(constants.DateFormat), nil
}

// Range returns the day keys from start to end inclusive. It returns nil when end precedes start.
func Range(start, end string) ([]string, error) {
	diff, err := DiffDays(start, end)
	if err != nil {
		return nil, err
	}
	if diff < 0 {
		return nil, nil
	}
	first, _ := time.Parse(constants.DateFormat, start)
	days := make([]string, 0, diff+1)
	for i := 0; i <= diff; i++ {
		days = append(days, first.AddDate(0, 0, i).Format(constants.DateFormat))
	}
	return days, nil
}

// ValidateDay reports whether s is a well-formed day key.
func ValidateDay(s string) bool {
	_, err := time.Parse(constants.DateFormat, s)
	return err == nil
}

// civilDiff compares calendar dates, not elapsed time, so a 23h DST day still counts as one.
func civilDiff(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	// Unix seconds do not saturate the way Duration does past ~292 years
	return int((ub.Unix() - ua.Unix()) / 86400)
}

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ParseDateInLocation parses a date string (YYYY-MM-DD) in the specified timezone.
func ParseDateInLocation(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	// Return the date at midnight in the specified timezone
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return true
	}
	_, err := time.LoadLocation(timezone)
	return err == nil
}
