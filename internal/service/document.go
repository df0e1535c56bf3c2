package service

import (
	"time"

	"github.com/pfrederiksen/marathon-events/internal/query"
)

// Source tells where a document's records came from
type Source string

const (
	SourceCache Source = "cache"
	SourceCrawl Source = "crawl"
)

// Code classifies an unsuccessful document
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeNoData
)

// Summary is the short form of a marathon used for secondary matches
type Summary struct {
	Name      string `json:"name"`
	EventDate string `json:"event_date"`
}

// Document is the result of a service operation.
// Marathons is never nil so it always renders as a JSON array.
type Document struct {
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
	Code        Code           `json:"-"`
	Total       int            `json:"total"`
	Filters     query.Criteria `json:"filters"`
	Marathons   []query.View   `json:"marathons"`
	Source      Source         `json:"source,omitempty"`
	FetchedAt   *time.Time     `json:"fetched_at,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	Match       *query.View    `json:"match,omitempty"`
	Others      []Summary      `json:"others,omitempty"`
}

// NoData reports whether the operation failed because no records could be obtained
func (d *Document) NoData() bool {
	return d.Code == CodeNoData
}
