// Package cache holds the most recent crawl result in a single in-memory slot with a TTL.
//
// The expensive operation is "fetch everything", and every query is answered from
// the same full snapshot, so one coarse slot is enough. The slot is never persisted;
// a restart starts empty.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/metrics"
)

// DefaultTTL is how long a crawl result stays fresh
const DefaultTTL = time.Hour

// FetchFunc produces a fresh record set, typically by running a crawl
type FetchFunc func(ctx context.Context) []*event.Record

// Cache is a goroutine-safe single-slot TTL cache of records.
// records and fetchedAt are always set and cleared together.
type Cache struct {
	mu        sync.RWMutex
	records   []*event.Record
	fetchedAt time.Time // zero when empty
	ttl       time.Duration
	now       func() time.Time
	group     singleflight.Group
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// IsValid reports whether an entry is present and younger than the TTL
func (c *Cache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fetchedAt.IsZero() {
		return false
	}
	return c.now().Sub(c.fetchedAt) < c.ttl
}

// Get returns a copy of the cached records, or nil when empty.
// It does not check freshness; callers decide with IsValid.
func (c *Cache) Get() []*event.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.records == nil {
		return nil
	}
	out := make([]*event.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Put replaces the entry and stamps it with the current time.
// An empty record set is ignored so a failed crawl never evicts good data.
// Returns whether the records were stored.
func (c *Cache) Put(records []*event.Record) bool {
	if len(records) == 0 {
		return false
	}

	stored := make([]*event.Record, len(records))
	copy(stored, records)

	c.mu.Lock()
	c.records = stored
	c.fetchedAt = c.now()
	c.mu.Unlock()

	metrics.CachedRecords.Set(float64(len(stored)))
	return true
}

// Invalidate clears the entry so the next lookup misses regardless of TTL
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.records = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()

	metrics.CachedRecords.Set(0)
}

// FetchedAt returns when the current entry was stored
func (c *Cache) FetchedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt, !c.fetchedAt.IsZero()
}

// Len returns the number of cached records
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Refresh runs fetch and stores a non-empty result. Concurrent callers share
// one in-flight fetch and all receive its records. The result is returned even
// when it is empty and therefore not stored.
//
// fetch runs detached from ctx cancellation: once started it completes even if
// the caller that launched it goes away, since other callers may be waiting on it.
func (c *Cache) Refresh(ctx context.Context, fetch FetchFunc) []*event.Record {
	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		records := fetch(context.WithoutCancel(ctx))
		c.Put(records)
		return records, nil
	})

	records, _ := v.([]*event.Record)
	out := make([]*event.Record, len(records))
	copy(out, records)
	return out
}
