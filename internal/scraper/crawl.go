package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/metrics"
)

// Summary describes how a crawl went
type Summary struct {
	ListingURL       string        `json:"listing_url"`
	Candidates       int           `json:"candidates"`
	Fetched          int           `json:"fetched"`
	Failed           int           `json:"failed"`
	StructureChanged bool          `json:"structure_changed,omitempty"`
	ListingErr       error         `json:"-"`
	Duration         time.Duration `json:"duration"`
}

var (
	// ErrStructureChanged means the listing page loaded but held no detail links
	ErrStructureChanged = errors.New("no detail links on listing page; site structure may have changed")

	// ErrNoRecords means every detail page failed
	ErrNoRecords = errors.New("no detail page could be parsed")
)

// Err explains why the crawl produced no records, or returns nil when it produced some
func (s Summary) Err() error {
	switch {
	case s.Fetched > 0:
		return nil
	case s.ListingErr != nil:
		return fmt.Errorf("listing page unavailable: %w", s.ListingErr)
	case s.StructureChanged:
		return ErrStructureChanged
	default:
		return ErrNoRecords
	}
}

// Crawl fetches the listing page, then every unique detail page with at most
// Concurrency() fetches in flight. It returns the records that were extracted;
// failed detail pages are dropped. A listing failure or a listing without
// detail links yields no records. Crawl never returns an error: the Summary
// carries what went wrong.
func (s *Scraper) Crawl(ctx context.Context) (records []*event.Record, summary Summary) {
	start := time.Now()
	summary.ListingURL = s.listingURL
	defer func() {
		summary.Duration = time.Since(start)
		metrics.CrawlDuration.Observe(summary.Duration.Seconds())
	}()

	links, err := s.fetchListing(ctx)
	if err != nil {
		summary.ListingErr = err
		metrics.Crawls.WithLabelValues(metrics.CrawlListingFailed).Inc()
		logger.Error("Listing page fetch failed", logger.Fields{"url": s.listingURL}, err)
		return nil, summary
	}

	candidates := UniqueLinks(links)
	summary.Candidates = len(candidates)
	metrics.CrawlCandidates.Set(float64(len(candidates)))

	if len(candidates) == 0 {
		summary.StructureChanged = true
		metrics.Crawls.WithLabelValues(metrics.CrawlStructureChanged).Inc()
		logger.Warn("No detail links found on listing page; site structure may have changed", logger.Fields{
			"url": s.listingURL,
		}, nil)
		return nil, summary
	}

	results := s.fetchAll(ctx, candidates)

	records = make([]*event.Record, 0, len(results))
	for _, res := range results {
		if !res.OK() {
			summary.Failed++
			continue
		}
		records = append(records, res.Record)
	}
	summary.Fetched = len(records)

	if len(records) == 0 {
		metrics.Crawls.WithLabelValues(metrics.CrawlEmpty).Inc()
	} else {
		metrics.Crawls.WithLabelValues(metrics.CrawlOK).Inc()
		metrics.LastSuccessfulCrawl.SetToCurrentTime()
	}

	logger.Info("Crawl finished", logger.Fields{
		"url":        s.listingURL,
		"candidates": summary.Candidates,
		"fetched":    summary.Fetched,
		"failed":     summary.Failed,
	})

	return records, summary
}

// fetchListing downloads the listing page and extracts candidate hrefs
func (s *Scraper) fetchListing(ctx context.Context) ([]string, error) {
	var links []string
	err := s.get(ctx, s.listingURL, s.listingTimeout, func(r io.Reader) error {
		var err error
		links, err = s.extractor.ExtractLinks(r)
		return err
	})
	return links, err
}

// fetchAll runs FetchDetail over every href with at most s.concurrency in flight.
// Tasks never return errors to the group, so one failure cannot cancel its
// siblings. Results are returned in href order once every task has finished.
func (s *Scraper) fetchAll(ctx context.Context, hrefs []string) []Result {
	results := make([]Result, len(hrefs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, href := range hrefs {
		g.Go(func() error {
			results[i] = s.FetchDetail(ctx, href)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
