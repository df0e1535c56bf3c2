package event

import (
	"crypto/sha1"
	"fmt"
)

// ApplicationWindow is the registration period of a marathon.
// Both dates are canonical YYYY-MM-DD strings or empty when unknown.
type ApplicationWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contact holds the organizer's contact details
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Record represents one marathon discovered on the source site
type Record struct {
	Name              string            `json:"name"`
	Tracks            []string          `json:"tracks"` // Distance/category labels in source order
	Region            string            `json:"region"`
	Venue             string            `json:"venue"`
	EventDate         string            `json:"event_date"` // Canonical YYYY-MM-DD or ""
	GatheringTime     string            `json:"gathering_time"`
	ApplicationWindow ApplicationWindow `json:"application_window"`
	Contact           Contact           `json:"contact"`
	Organizer         string            `json:"organizer"`
	Homepage          string            `json:"homepage"`
	Intro             string            `json:"intro"`
	SourceURL         string            `json:"source_url"` // Item href the record was derived from
}

// NewRecord creates a Record for sourceURL with every field at its empty value.
// Tracks is an empty slice, never nil, so JSON output always carries "tracks": [].
func NewRecord(sourceURL string) *Record {
	return &Record{
		Tracks:    []string{},
		SourceURL: sourceURL,
	}
}

// GenerateID creates a deterministic ID for a record from its source URL
func GenerateID(sourceURL string) string {
	h := sha1.New()
	h.Write([]byte(sourceURL))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ID returns the record's deterministic identifier
func (r *Record) ID() string {
	return GenerateID(r.SourceURL)
}

// HasDate reports whether the record carries a parsable event date
func (r *Record) HasDate() bool {
	_, ok := ParseDate(r.EventDate)
	return ok
}

// Location joins region and venue for display
func (r *Record) Location() string {
	switch {
	case r.Region != "" && r.Venue != "":
		return r.Region + " - " + r.Venue
	case r.Region != "":
		return r.Region
	default:
		return r.Venue
	}
}
