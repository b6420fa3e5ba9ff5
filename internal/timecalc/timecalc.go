package timecalc

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day key format used throughout ttt.
const DateLayout = "2006-01-02"

// FormatHours formats fractional hours with one decimal, e.g. "3.5h".
func FormatHours(h float64) string {
	return fmt.Sprintf("%.1fh", h)
}

// DateKey returns the calendar day of t in loc as "2006-01-02".
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// TrimDate cuts a trailing time part ("2026-02-27T00:00:00Z" -> "2026-02-27").
func TrimDate(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// ParseDate parses a day key (an ISO timestamp is truncated to its date) as
// midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, TrimDate(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// LastDays returns the day keys from (today - days) up to and including today,
// oldest first, in loc.
func LastDays(now time.Time, days int, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	if days < 0 {
		days = 0
	}
	today := StartOfDay(now.In(loc))
	keys := make([]string, 0, days+1)
	for i := days; i >= 0; i-- {
		keys = append(keys, today.AddDate(0, 0, -i).Format(DateLayout))
	}
	return keys
}
