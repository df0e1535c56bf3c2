package event

import (
	"strings"
	"time"
)

// DateLayout is the canonical date format used for every date field of a Record.
// Canonical strings sort lexicographically in chronological order, which the
// query engine relies on for both sorting and substring date filtering.
const DateLayout = "2006-01-02"

// inputLayouts are the source formats NormalizeDate accepts, tried in order
var inputLayouts = []string{
	DateLayout,
	"2006.01.02",
	"2006/01/02",
	"20060102",
	"2006-1-2",
	"2006.1.2",
	"2006/1/2",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate parses a canonical YYYY-MM-DD date.
// Returns false for empty or malformed input; it never panics.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeDate converts a source date string into canonical YYYY-MM-DD form.
// Returns "" when the input is empty or in none of the supported formats.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	// Trailing dots as in "2025.11.15."
	raw = strings.TrimSuffix(raw, ".")

	for _, layout := range inputLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.Format(DateLayout)
		}
	}
	return ""
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of whole calendar days from a to b.
// Only the calendar dates matter, so DST transitions do not skew the result.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// IsAccepting reports whether registration is still open on the given day.
// A record is accepting when its application end date parses and is not
// before the start of today. Missing or malformed end dates yield false.
func (r *Record) IsAccepting(today time.Time) bool {
	end, ok := ParseDate(r.ApplicationWindow.End)
	if !ok {
		return false
	}
	return DaysBetween(today, end) >= 0
}

// DaysUntil returns the whole days from today to the event date.
// The second return value is false when the event date does not parse.
func (r *Record) DaysUntil(today time.Time) (int, bool) {
	d, ok := ParseDate(r.EventDate)
	if !ok {
		return 0, false
	}
	return DaysBetween(today, d), true
}

// DaysUntilDeadline returns the whole days from today to the application end date
func (r *Record) DaysUntilDeadline(today time.Time) (int, bool) {
	d, ok := ParseDate(r.ApplicationWindow.End)
	if !ok {
		return 0, false
	}
	return DaysBetween(today, d), true
}
