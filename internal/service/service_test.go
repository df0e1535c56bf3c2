package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pfrederiksen/marathon-events/internal/cache"
	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/scraper"
)

var now = time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

// fakeCrawler returns a fixed record set and counts calls
type fakeCrawler struct {
	mu      sync.Mutex
	records []*event.Record
	summary scraper.Summary
	calls   int32
	delay   time.Duration
}

func (f *fakeCrawler) Crawl(ctx context.Context) ([]*event.Record, scraper.Summary) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*event.Record, len(f.records))
	copy(out, f.records)
	summary := f.summary
	summary.Fetched = len(out)
	return out, summary
}

func (f *fakeCrawler) set(records []*event.Record, summary scraper.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.summary = summary
}

func (f *fakeCrawler) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func rec(name, region, date, appEnd string, tracks ...string) *event.Record {
	r := event.NewRecord("/raceDetail/" + name)
	r.Name = name
	r.Region = region
	r.EventDate = date
	r.ApplicationWindow.End = appEnd
	if tracks != nil {
		r.Tracks = tracks
	}
	return r
}

func sampleRecords() []*event.Record {
	return []*event.Record{
		rec("서울 마라톤", "서울", "2025-11-15", "2025-11-05", "풀코스", "하프"),
		rec("부산 바다마라톤", "부산", "2025-11-05", "2025-10-20", "10km"),
		rec("서울특별시 야간런", "서울특별시", "2025-11-10", "2025-11-03", "5km", "10KM"),
		rec("미정 대회", "", "", ""),
	}
}

func newTestService(crawler Crawler) (*Service, *cache.Cache) {
	clock := func() time.Time { return now }
	c := cache.New(time.Hour, cache.WithClock(clock))
	return New(crawler, c, WithClock(clock)), c
}

func TestSearch(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, _ := newTestService(crawler)

	tests := []struct {
		name      string
		params    SearchParams
		wantTotal int
		wantFirst string
	}{
		{"all", SearchParams{UseCache: true}, 4, "부산 바다마라톤"},
		{"region substring", SearchParams{Region: "서울", UseCache: true}, 2, "서울특별시 야간런"},
		{"date substring", SearchParams{Date: "2025-11-1", UseCache: true}, 2, "서울특별시 야간런"},
		{"only accepting", SearchParams{OnlyAccepting: true, UseCache: true}, 2, "서울특별시 야간런"},
		{"no match is success", SearchParams{Region: "제주", UseCache: true}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := svc.Search(context.Background(), tt.params)
			if !doc.Success {
				t.Fatalf("Search() failed: %s", doc.Error)
			}
			if doc.Total != tt.wantTotal || len(doc.Marathons) != tt.wantTotal {
				t.Errorf("Search() total = %d (%d marathons), want %d", doc.Total, len(doc.Marathons), tt.wantTotal)
			}
			if tt.wantFirst != "" && doc.Marathons[0].Name != tt.wantFirst {
				t.Errorf("first marathon = %q, want %q", doc.Marathons[0].Name, tt.wantFirst)
			}
			if doc.Marathons == nil {
				t.Error("Marathons should never be nil")
			}
		})
	}

	if crawler.Calls() != 1 {
		t.Errorf("crawler called %d times, want 1 (later searches should hit the cache)", crawler.Calls())
	}
}

func TestSearch_SourceAndFetchedAt(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, _ := newTestService(crawler)

	first := svc.Search(context.Background(), SearchParams{UseCache: true})
	if first.Source != SourceCrawl {
		t.Errorf("first Source = %q, want %q", first.Source, SourceCrawl)
	}
	if first.FetchedAt == nil || !first.FetchedAt.Equal(now) {
		t.Errorf("FetchedAt = %v, want %v", first.FetchedAt, now)
	}

	second := svc.Search(context.Background(), SearchParams{UseCache: true})
	if second.Source != SourceCache {
		t.Errorf("second Source = %q, want %q", second.Source, SourceCache)
	}
}

func TestSearch_NoCacheForcesCrawl(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, _ := newTestService(crawler)

	svc.Search(context.Background(), SearchParams{UseCache: true})
	doc := svc.Search(context.Background(), SearchParams{UseCache: false})

	if crawler.Calls() != 2 {
		t.Errorf("crawler called %d times, want 2", crawler.Calls())
	}
	if doc.Source != SourceCrawl {
		t.Errorf("Source = %q, want %q", doc.Source, SourceCrawl)
	}
}

func TestSearch_ExpiredCacheRecrawls(t *testing.T) {
	current := now
	clock := func() time.Time { return current }
	crawler := &fakeCrawler{records: sampleRecords()}
	svc := New(crawler, cache.New(time.Hour, cache.WithClock(clock)), WithClock(clock))

	svc.Search(context.Background(), SearchParams{UseCache: true})
	current = current.Add(61 * time.Minute)
	svc.Search(context.Background(), SearchParams{UseCache: true})

	if crawler.Calls() != 2 {
		t.Errorf("crawler called %d times, want 2 after TTL expiry", crawler.Calls())
	}
}

func TestSearch_NoData(t *testing.T) {
	tests := []struct {
		name    string
		summary scraper.Summary
		wantErr string
	}{
		{
			name:    "listing failure",
			summary: scraper.Summary{ListingErr: &scraper.StatusError{URL: "x", StatusCode: 503}},
			wantErr: "listing page unavailable",
		},
		{
			name:    "structure changed",
			summary: scraper.Summary{StructureChanged: true},
			wantErr: "structure may have changed",
		},
		{
			name:    "all details failed",
			summary: scraper.Summary{Candidates: 3, Failed: 3},
			wantErr: "no detail page could be parsed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crawler := &fakeCrawler{summary: tt.summary}
			svc, c := newTestService(crawler)

			doc := svc.Search(context.Background(), SearchParams{UseCache: true})
			if doc.Success {
				t.Fatal("Search() should fail when no data can be obtained")
			}
			if !doc.NoData() {
				t.Errorf("Code = %v, want CodeNoData", doc.Code)
			}
			if !strings.Contains(doc.Error, tt.wantErr) {
				t.Errorf("Error = %q, want it to contain %q", doc.Error, tt.wantErr)
			}
			if doc.Marathons == nil || len(doc.Marathons) != 0 {
				t.Errorf("Marathons = %v, want empty list", doc.Marathons)
			}
			if c.Len() != 0 {
				t.Error("a failed crawl must not populate the cache")
			}
		})
	}
}

func TestSearch_FailedRecrawlKeepsCache(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, c := newTestService(crawler)

	svc.Search(context.Background(), SearchParams{UseCache: true})

	crawler.set(nil, scraper.Summary{StructureChanged: true})
	doc := svc.Search(context.Background(), SearchParams{UseCache: false})
	if doc.Success {
		t.Error("forced crawl with no records should fail")
	}
	if c.Len() != 4 {
		t.Errorf("cache holds %d records after failed crawl, want 4", c.Len())
	}

	doc = svc.Search(context.Background(), SearchParams{UseCache: true})
	if !doc.Success || doc.Source != SourceCache {
		t.Errorf("cached search after failed crawl: success=%v source=%q", doc.Success, doc.Source)
	}
}

func TestFindByName(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, _ := newTestService(crawler)

	doc := svc.FindByName(context.Background(), "서울", true)
	if !doc.Success {
		t.Fatalf("FindByName() failed: %s", doc.Error)
	}
	if doc.Match == nil || doc.Match.Name != "서울특별시 야간런" {
		t.Errorf("Match = %+v, want earliest matching marathon", doc.Match)
	}
	if doc.Total != 2 || len(doc.Others) != 1 {
		t.Fatalf("Total = %d, Others = %v; want 2 and 1", doc.Total, doc.Others)
	}
	if doc.Others[0].Name != "서울 마라톤" || doc.Others[0].EventDate != "2025-11-15" {
		t.Errorf("Others[0] = %+v", doc.Others[0])
	}
}

func TestFindByName_NotFound(t *testing.T) {
	svc, _ := newTestService(&fakeCrawler{records: sampleRecords()})

	doc := svc.FindByName(context.Background(), "없는", true)
	if !doc.Success {
		t.Fatalf("FindByName() with no match should succeed, got error %q", doc.Error)
	}
	if doc.Total != 0 || doc.Match != nil {
		t.Errorf("Total = %d, Match = %v; want 0 and nil", doc.Total, doc.Match)
	}
	if !strings.Contains(doc.Message, "no marathon found") {
		t.Errorf("Message = %q", doc.Message)
	}
}

func TestUpcoming(t *testing.T) {
	records := []*event.Record{
		rec("far", "", "2025-11-10", ""),
		rec("near", "", "2025-11-05", ""),
	}
	svc, _ := newTestService(&fakeCrawler{records: records})

	doc := svc.Upcoming(context.Background(), 7, true)
	if !doc.Success {
		t.Fatalf("Upcoming() failed: %s", doc.Error)
	}
	if doc.Total != 1 || doc.Marathons[0].Name != "near" {
		t.Fatalf("Upcoming(7) = %+v, want only 'near'", doc.Marathons)
	}
	if d := doc.Marathons[0].DaysUntil; d == nil || *d != 4 {
		t.Errorf("DaysUntil = %v, want 4", d)
	}
	if doc.Filters.WithinDays == nil || *doc.Filters.WithinDays != 7 {
		t.Errorf("Filters.WithinDays = %v, want 7", doc.Filters.WithinDays)
	}
}

func TestInvalidArguments(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, _ := newTestService(crawler)
	ctx := context.Background()

	docs := map[string]*Document{
		"negative upcoming": svc.Upcoming(ctx, -1, true),
		"negative closing":  svc.ClosingSoon(ctx, -3, true),
		"empty name":        svc.FindByName(ctx, "", true),
		"empty track":       svc.ByTrack(ctx, "", true),
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			if doc.Success || doc.Code != CodeInvalidArgument {
				t.Errorf("success=%v code=%v, want failure with CodeInvalidArgument", doc.Success, doc.Code)
			}
			if doc.Error == "" {
				t.Error("Error should explain the bad argument")
			}
		})
	}

	if crawler.Calls() != 0 {
		t.Errorf("invalid arguments triggered %d crawls, want 0", crawler.Calls())
	}
}

func TestByTrack(t *testing.T) {
	svc, _ := newTestService(&fakeCrawler{records: sampleRecords()})

	doc := svc.ByTrack(context.Background(), "10km", true)
	if !doc.Success || doc.Total != 2 {
		t.Fatalf("ByTrack(10km) total = %d, want 2 (%s)", doc.Total, doc.Error)
	}
	if doc.Marathons[0].Name != "부산 바다마라톤" {
		t.Errorf("first = %q, want 부산 바다마라톤", doc.Marathons[0].Name)
	}
}

func TestClosingSoon(t *testing.T) {
	svc, _ := newTestService(&fakeCrawler{records: sampleRecords()})

	doc := svc.ClosingSoon(context.Background(), 3, true)
	if !doc.Success {
		t.Fatalf("ClosingSoon() failed: %s", doc.Error)
	}
	if doc.Total != 1 || doc.Marathons[0].Name != "서울특별시 야간런" {
		t.Errorf("ClosingSoon(3) = %v, want only 서울특별시 야간런", doc.Marathons)
	}
}

func TestInvalidateCache(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords()}
	svc, c := newTestService(crawler)

	svc.Search(context.Background(), SearchParams{UseCache: true})
	doc := svc.InvalidateCache()
	if !doc.Success || doc.Message == "" {
		t.Errorf("InvalidateCache() = %+v", doc)
	}
	if c.IsValid() {
		t.Error("cache should be invalid after InvalidateCache")
	}

	svc.Search(context.Background(), SearchParams{UseCache: true})
	if crawler.Calls() != 2 {
		t.Errorf("crawler called %d times, want 2 after invalidation", crawler.Calls())
	}
}

func TestConcurrentMissesShareOneCrawl(t *testing.T) {
	crawler := &fakeCrawler{records: sampleRecords(), delay: 50 * time.Millisecond}
	svc, _ := newTestService(crawler)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if doc := svc.Search(context.Background(), SearchParams{UseCache: true}); !doc.Success {
				t.Errorf("concurrent Search() failed: %s", doc.Error)
			}
		}()
	}
	wg.Wait()

	if crawler.Calls() != 1 {
		t.Errorf("crawler called %d times for concurrent misses, want 1", crawler.Calls())
	}
}

// ctxCrawler returns its records only if ctx stays live for the whole delay
type ctxCrawler struct {
	records []*event.Record
	delay   time.Duration
	calls   int32
}

func (c *ctxCrawler) Crawl(ctx context.Context) ([]*event.Record, scraper.Summary) {
	atomic.AddInt32(&c.calls, 1)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return nil, scraper.Summary{Candidates: len(c.records), Failed: len(c.records)}
	}
	return c.records, scraper.Summary{Candidates: len(c.records), Fetched: len(c.records)}
}

func TestSharedCrawlSurvivesFirstCallerCancelling(t *testing.T) {
	crawler := &ctxCrawler{records: sampleRecords(), delay: 200 * time.Millisecond}
	svc, _ := newTestService(crawler)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan *Document, 1)
	go func() { first <- svc.Search(ctx, SearchParams{UseCache: true}) }()

	time.Sleep(50 * time.Millisecond)
	second := make(chan *Document, 1)
	go func() { second <- svc.Search(context.Background(), SearchParams{UseCache: true}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	for name, ch := range map[string]chan *Document{"first": first, "second": second} {
		doc := <-ch
		if !doc.Success || doc.Total != len(sampleRecords()) {
			t.Errorf("%s caller: success=%v total=%d error=%q", name, doc.Success, doc.Total, doc.Error)
		}
	}
	if n := atomic.LoadInt32(&crawler.calls); n != 1 {
		t.Errorf("crawler called %d times, want 1", n)
	}
}

func TestDocumentJSON(t *testing.T) {
	svc, _ := newTestService(&fakeCrawler{records: sampleRecords()})
	doc := svc.Search(context.Background(), SearchParams{Region: "부산", UseCache: true})

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}

	for _, key := range []string{"success", "total", "filters", "marathons", "source", "fetched_at", "generated_at"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("document JSON missing %q: %s", key, data)
		}
	}
	if _, ok := decoded["error"]; ok {
		t.Errorf("successful document should omit error: %s", data)
	}
	filters := decoded["filters"].(map[string]any)
	if len(filters) != 1 || filters["region"] != "부산" {
		t.Errorf("filters = %v, want only region", filters)
	}

	failed := New(&fakeCrawler{}, cache.New(time.Hour)).Search(context.Background(), SearchParams{})
	data, _ = json.Marshal(failed)
	if !strings.Contains(string(data), `"marathons":[]`) {
		t.Errorf("failed document should carry an empty marathons list: %s", data)
	}
	if !errors.Is(scraper.Summary{}.Err(), scraper.ErrNoRecords) {
		t.Error("empty summary should explain itself as ErrNoRecords")
	}
}
