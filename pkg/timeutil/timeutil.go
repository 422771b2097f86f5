// Package timeutil provides calendar-day helpers bound to a configured timezone.
// Streaks and "today" are decided in the platform's timezone, not the server's.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDate is the canonical date layout (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Calendar answers day-granularity questions in a fixed location.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a calendar for the given location. A nil location means UTC.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{loc: loc, now: time.Now}
}

// LoadCalendar resolves an IANA zone name ("Europe/Istanbul", "UTC").
func LoadCalendar(name string) (*Calendar, error) {
	if name == "" {
		return NewCalendar(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	return NewCalendar(loc), nil
}

// WithClock returns a copy of the calendar that reads time from fn.
// Used by tests to pin "now".
func (c *Calendar) WithClock(fn func() time.Time) *Calendar {
	return &Calendar{loc: c.loc, now: fn}
}

// Location returns the calendar's location.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the calendar's location.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the start of the current day.
func (c *Calendar) Today() time.Time {
	return c.StartOfDay(c.now())
}

// StartOfDay returns the start of the day (00:00:00) containing t.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// IsSameDay checks if two times fall on the same calendar day.
func (c *Calendar) IsSameDay(t1, t2 time.Time) bool {
	return c.DaysBetween(t1, t2) == 0
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// It counts date boundaries, so a DST shift never produces a fractional day.
func (c *Calendar) DaysBetween(t1, t2 time.Time) int {
	a, b := t1.In(c.loc), t2.In(c.loc)
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Anchor reinterprets a date-only value (such as a SQL DATE read back as
// midnight UTC) as midnight of the same year/month/day in the calendar's
// location. Values already produced by StartOfDay are returned unchanged.
func (c *Calendar) Anchor(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, c.loc)
}

// Format formats t as a date string (YYYY-MM-DD) in the calendar's location.
func (c *Calendar) Format(t time.Time) string {
	return t.In(c.loc).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in the calendar's location.
func (c *Calendar) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, c.loc)
}
