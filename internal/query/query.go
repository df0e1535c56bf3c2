// Package query filters, annotates and sorts marathon records.
//
// Run is pure: it never touches the network or the cache, and "today" is an
// argument so results are reproducible in tests. Filters are conjunctive and
// applied in a fixed order (region, date, name, track, window, accepting), so
// adding a criterion can only shrink the result.
//
// Example usage:
//
//	days := 7
//	views := query.Run(records, query.Criteria{Region: "서울", WithinDays: &days}, time.Now())
package query

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pfrederiksen/marathon-events/internal/event"
)

const (
	// dateSentinel sorts after every canonical date
	dateSentinel = "9999-99-99"

	// daysSentinel sorts after every real day offset
	daysSentinel = 999
)

// Criteria describes which records to keep. Zero-valued fields are inactive.
type Criteria struct {
	// Region keeps records whose region contains this substring (case-sensitive)
	Region string `json:"region,omitempty"`

	// Date keeps records whose canonical event date contains this substring,
	// so "2025", "2025-11" and "2025-11-15" all work
	Date string `json:"date,omitempty"`

	// Name keeps records whose name contains this substring (case-insensitive)
	Name string `json:"name,omitempty"`

	// Track keeps records with at least one track containing this substring (case-insensitive)
	Track string `json:"track,omitempty"`

	// WithinDays keeps records dated within [today, today+N] and annotates days_until.
	// Nil disables the window; a pointer distinguishes "0 days" from "not set".
	WithinDays *int `json:"within_days,omitempty"`

	// OnlyAccepting keeps records whose registration is still open
	OnlyAccepting bool `json:"only_accepting,omitempty"`
}

// IsEmpty reports whether no criterion is active
func (c Criteria) IsEmpty() bool {
	return c.Region == "" &&
		c.Date == "" &&
		c.Name == "" &&
		c.Track == "" &&
		c.WithinDays == nil &&
		!c.OnlyAccepting
}

// View is a record annotated for one query
type View struct {
	*event.Record
	IsAccepting    bool `json:"is_accepting"`
	DaysUntil      *int `json:"days_until,omitempty"`
	DaysToDeadline *int `json:"days_to_deadline,omitempty"`
}

// Run applies criteria to records relative to today and returns the matching
// views in sort order. The input slice and records are not modified.
// The result is never nil.
func Run(records []*event.Record, c Criteria, today time.Time) []View {
	today = event.StartOfDay(today)
	m := newMatcher(c)

	views := make([]View, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		v, ok := m.match(rec, c, today)
		if !ok {
			continue
		}
		views = append(views, v)
	}

	if c.WithinDays != nil {
		sortByDaysUntil(views)
	} else {
		sortByDate(views)
	}
	return views
}

// matcher holds the folded forms of the case-insensitive criteria
type matcher struct {
	name  string
	track string
}

func newMatcher(c Criteria) matcher {
	return matcher{
		name:  Fold(c.Name),
		track: Fold(c.Track),
	}
}

func (m matcher) match(rec *event.Record, c Criteria, today time.Time) (View, bool) {
	if c.Region != "" && !strings.Contains(rec.Region, c.Region) {
		return View{}, false
	}
	if c.Date != "" && !strings.Contains(rec.EventDate, c.Date) {
		return View{}, false
	}
	if m.name != "" && !strings.Contains(Fold(rec.Name), m.name) {
		return View{}, false
	}
	if m.track != "" && !anyTrackContains(rec.Tracks, m.track) {
		return View{}, false
	}

	v := View{
		Record:      rec,
		IsAccepting: rec.IsAccepting(today),
	}

	if c.WithinDays != nil {
		days, ok := rec.DaysUntil(today)
		if !ok || days < 0 || days > *c.WithinDays {
			return View{}, false
		}
		v.DaysUntil = &days
	}

	if c.OnlyAccepting && !v.IsAccepting {
		return View{}, false
	}
	return v, true
}

func anyTrackContains(tracks []string, folded string) bool {
	for _, t := range tracks {
		if strings.Contains(Fold(t), folded) {
			return true
		}
	}
	return false
}

// Fold returns s NFC-normalized and Unicode case-folded, for case-insensitive
// comparison. Decomposed Hangul compares equal to its composed form.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	// A Caser keeps state and must not be shared between goroutines
	return cases.Fold().String(norm.NFC.String(s))
}

// sortKey returns the event date, or the sentinel when it does not parse
func sortKey(rec *event.Record) string {
	if !rec.HasDate() {
		return dateSentinel
	}
	return rec.EventDate
}

func sortByDate(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		return sortKey(views[i].Record) < sortKey(views[j].Record)
	})
}

func daysKey(v View) int {
	if v.DaysUntil == nil {
		return daysSentinel
	}
	return *v.DaysUntil
}

func sortByDaysUntil(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		return daysKey(views[i]) < daysKey(views[j])
	})
}

// ClosingWithin returns the records still accepting applications whose
// application end date falls within [today, today+days], soonest deadline first.
func ClosingWithin(records []*event.Record, days int, today time.Time) []View {
	today = event.StartOfDay(today)
	accepting := Run(records, Criteria{OnlyAccepting: true}, today)

	views := make([]View, 0, len(accepting))
	for _, v := range accepting {
		left, ok := v.DaysUntilDeadline(today)
		if !ok || left > days {
			continue
		}
		v.DaysToDeadline = &left
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return *views[i].DaysToDeadline < *views[j].DaysToDeadline
	})
	return views
}

// Records strips the annotations from views
func Records(views []View) []*event.Record {
	out := make([]*event.Record, len(views))
	for i, v := range views {
		out[i] = v.Record
	}
	return out
}
