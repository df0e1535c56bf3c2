// Package metrics holds the Prometheus collectors for crawls, detail fetches and the record cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marathon_events"

// Fetch outcome labels
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Crawl outcome labels
const (
	CrawlOK               = "ok"
	CrawlListingFailed    = "listing_failed"
	CrawlStructureChanged = "structure_changed"
	CrawlEmpty            = "empty"
)

// Cache lookup labels
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

var (
	// DetailFetches counts detail page fetches by outcome.
	DetailFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detail_fetches_total",
		Help:      "Number of detail page fetches by status",
	}, []string{"status"})

	// Crawls counts complete crawls by outcome.
	Crawls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crawls_total",
		Help:      "Number of crawls by result",
	}, []string{"result"})

	CrawlDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "crawl_duration_seconds",
		Help:      "Time spent on a full listing + detail crawl",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	CrawlCandidates = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "crawl_candidates",
		Help:      "Unique detail links found on the listing page by the last crawl",
	})

	// InflightFetches tracks detail fetches currently in flight.
	InflightFetches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_detail_fetches",
		Help:      "Detail page fetches currently in flight",
	})

	// CacheLookups counts cache lookups by result (hit, miss, bypass).
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Record cache lookups by result",
	}, []string{"result"})

	CachedRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_records",
		Help:      "Number of records in the cache",
	})

	LastSuccessfulCrawl = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last crawl that produced records",
	})
)

func init() {
	prometheus.MustRegister(
		DetailFetches, Crawls, CrawlDuration, CrawlCandidates,
		InflightFetches, CacheLookups, CachedRecords, LastSuccessfulCrawl,
	)
}
