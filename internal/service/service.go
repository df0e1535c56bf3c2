// Package service answers marathon queries from the cache or a fresh crawl.
//
// A Service owns the record cache and the crawler. Every operation returns a
// Document that is ready to be rendered as JSON or text; failures are reported
// inside the document instead of as Go errors.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pfrederiksen/marathon-events/internal/cache"
	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/metrics"
	"github.com/pfrederiksen/marathon-events/internal/query"
	"github.com/pfrederiksen/marathon-events/internal/scraper"
)

// Crawler fetches the full record set from the source site
type Crawler interface {
	Crawl(ctx context.Context) ([]*event.Record, scraper.Summary)
}

// Service runs queries against cached or freshly crawled records
type Service struct {
	crawler Crawler
	cache   *cache.Cache
	now     func() time.Time

	mu      sync.Mutex
	lastErr error // why the most recent crawl produced nothing
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. The cache is owned by the caller and may be shared
// with nothing else; its lifetime is the process lifetime.
func New(crawler Crawler, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		crawler: crawler,
		cache:   c,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// snapshot is the record set one operation works on
type snapshot struct {
	records   []*event.Record
	source    Source
	fetchedAt time.Time
	err       error
}

// records returns cached records when allowed and fresh, otherwise crawls.
// Concurrent misses share one crawl.
func (s *Service) records(ctx context.Context, useCache bool) snapshot {
	if useCache && s.cache.IsValid() {
		if recs := s.cache.Get(); len(recs) > 0 {
			metrics.CacheLookups.WithLabelValues(metrics.CacheHit).Inc()
			at, _ := s.cache.FetchedAt()
			return snapshot{records: recs, source: SourceCache, fetchedAt: at}
		}
	}

	if useCache {
		metrics.CacheLookups.WithLabelValues(metrics.CacheMiss).Inc()
	} else {
		metrics.CacheLookups.WithLabelValues(metrics.CacheBypass).Inc()
	}

	recs := s.cache.Refresh(ctx, s.crawl)
	if len(recs) == 0 {
		s.mu.Lock()
		err := s.lastErr
		s.mu.Unlock()
		if err == nil {
			err = scraper.ErrNoRecords
		}
		return snapshot{source: SourceCrawl, err: err}
	}

	at, _ := s.cache.FetchedAt()
	return snapshot{records: recs, source: SourceCrawl, fetchedAt: at}
}

func (s *Service) crawl(ctx context.Context) []*event.Record {
	recs, summary := s.crawler.Crawl(ctx)

	s.mu.Lock()
	s.lastErr = summary.Err()
	s.mu.Unlock()

	if summary.Err() != nil {
		logger.Warn("Crawl produced no records; cache left untouched", logger.Fields{
			"candidates": summary.Candidates,
			"failed":     summary.Failed,
		}, summary.Err())
	}
	return recs
}

func (s *Service) today() time.Time {
	return event.StartOfDay(s.now())
}

// run executes criteria against the current snapshot and builds the document
func (s *Service) run(ctx context.Context, c query.Criteria, useCache bool) (*Document, snapshot) {
	snap := s.records(ctx, useCache)
	if snap.err != nil {
		return s.noData(c, snap.err), snap
	}

	views := query.Run(snap.records, c, s.today())
	return s.document(c, snap, views), snap
}

func (s *Service) document(c query.Criteria, snap snapshot, views []query.View) *Document {
	doc := &Document{
		Success:     true,
		Total:       len(views),
		Filters:     c,
		Marathons:   views,
		Source:      snap.source,
		GeneratedAt: s.now(),
	}
	if !snap.fetchedAt.IsZero() {
		at := snap.fetchedAt
		doc.FetchedAt = &at
	}
	return doc
}

func (s *Service) noData(c query.Criteria, err error) *Document {
	return &Document{
		Success:     false,
		Error:       fmt.Sprintf("no marathon data could be obtained: %v", err),
		Code:        CodeNoData,
		Filters:     c,
		Marathons:   []query.View{},
		GeneratedAt: s.now(),
	}
}

func (s *Service) invalid(c query.Criteria, msg string) *Document {
	return &Document{
		Success:     false,
		Error:       msg,
		Code:        CodeInvalidArgument,
		Filters:     c,
		Marathons:   []query.View{},
		GeneratedAt: s.now(),
	}
}

// SearchParams are the inputs of Search
type SearchParams struct {
	Region        string
	Date          string
	OnlyAccepting bool
	UseCache      bool
}

// Search lists marathons filtered by region, date substring and registration status
func (s *Service) Search(ctx context.Context, p SearchParams) *Document {
	c := query.Criteria{
		Region:        p.Region,
		Date:          p.Date,
		OnlyAccepting: p.OnlyAccepting,
	}
	doc, _ := s.run(ctx, c, p.UseCache)
	return doc
}

// FindByName returns the first marathon whose name contains name, case-insensitively,
// plus the names and dates of the other matches
func (s *Service) FindByName(ctx context.Context, name string, useCache bool) *Document {
	c := query.Criteria{Name: name}
	if name == "" {
		return s.invalid(c, "name must not be empty")
	}

	doc, _ := s.run(ctx, c, useCache)
	if !doc.Success {
		return doc
	}

	if len(doc.Marathons) == 0 {
		doc.Message = fmt.Sprintf("no marathon found matching %q", name)
		return doc
	}

	match := doc.Marathons[0]
	doc.Match = &match
	doc.Others = make([]Summary, 0, len(doc.Marathons)-1)
	for _, v := range doc.Marathons[1:] {
		doc.Others = append(doc.Others, Summary{Name: v.Name, EventDate: v.EventDate})
	}
	return doc
}

// Upcoming lists marathons taking place within the next days days, nearest first
func (s *Service) Upcoming(ctx context.Context, days int, useCache bool) *Document {
	c := query.Criteria{WithinDays: &days}
	if days < 0 {
		return s.invalid(c, fmt.Sprintf("days must not be negative, got %d", days))
	}

	doc, _ := s.run(ctx, c, useCache)
	return doc
}

// ByTrack lists marathons offering a track whose label contains track, case-insensitively
func (s *Service) ByTrack(ctx context.Context, track string, useCache bool) *Document {
	c := query.Criteria{Track: track}
	if track == "" {
		return s.invalid(c, "track must not be empty")
	}

	doc, _ := s.run(ctx, c, useCache)
	return doc
}

// ClosingSoon lists marathons whose registration closes within the next days days
func (s *Service) ClosingSoon(ctx context.Context, days int, useCache bool) *Document {
	c := query.Criteria{OnlyAccepting: true}
	if days < 0 {
		return s.invalid(c, fmt.Sprintf("days must not be negative, got %d", days))
	}

	snap := s.records(ctx, useCache)
	if snap.err != nil {
		return s.noData(c, snap.err)
	}

	views := query.ClosingWithin(snap.records, days, s.today())
	doc := s.document(c, snap, views)
	doc.Message = fmt.Sprintf("registration closing within %d days", days)
	return doc
}

// InvalidateCache drops the cached records so the next query crawls
func (s *Service) InvalidateCache() *Document {
	s.cache.Invalidate()
	logger.Info("Cache invalidated", nil)

	return &Document{
		Success:     true,
		Message:     "cache invalidated",
		Marathons:   []query.View{},
		GeneratedAt: s.now(),
	}
}
