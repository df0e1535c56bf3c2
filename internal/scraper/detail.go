package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/metrics"
)

var (
	// ErrNoPageState means the detail page has no usable __NEXT_DATA__ script
	ErrNoPageState = errors.New("page state script not found")
	// ErrNoPayload means the page state has no raceDetail object or it is empty
	ErrNoPayload = errors.New("race detail payload missing")
)

// Result is the outcome of one detail fetch: a record or the reason there is none
type Result struct {
	URL    string
	Record *event.Record
	Err    error
}

// OK reports whether the fetch produced a record
func (r Result) OK() bool {
	return r.Err == nil && r.Record != nil
}

// pageState mirrors the part of the Next.js page state that carries the race
type pageState struct {
	Props struct {
		PageProps struct {
			RaceDetail map[string]any `json:"raceDetail"`
		} `json:"pageProps"`
	} `json:"props"`
}

// FetchDetail fetches one detail page and extracts its record.
// Failures are reported in the Result and logged; they are never fatal.
func (s *Scraper) FetchDetail(ctx context.Context, href string) Result {
	metrics.InflightFetches.Inc()
	defer metrics.InflightFetches.Dec()

	fullURL := ResolveURL(href, s.baseURL)
	res := Result{URL: fullURL}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			res.Err = fmt.Errorf("waiting for rate limiter: %w", err)
			return s.failed(res)
		}
	}

	err := s.get(ctx, fullURL, s.detailTimeout, func(r io.Reader) error {
		rec, err := parseDetail(r, href)
		if err != nil {
			return err
		}
		res.Record = rec
		return nil
	})
	if err != nil {
		res.Err = err
		res.Record = nil
		return s.failed(res)
	}

	metrics.DetailFetches.WithLabelValues(metrics.StatusOK).Inc()
	return res
}

func (s *Scraper) failed(res Result) Result {
	metrics.DetailFetches.WithLabelValues(metrics.StatusError).Inc()
	logger.Warn("Detail fetch failed", logger.Fields{"url": res.URL}, res.Err)
	return res
}

// parseDetail extracts a record from the embedded page state of a detail page
func parseDetail(r io.Reader, sourceURL string) (*event.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" {
		return nil, ErrNoPageState
	}

	var state pageState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decoding page state: %w", err)
	}

	payload := state.Props.PageProps.RaceDetail
	if len(payload) == 0 {
		return nil, ErrNoPayload
	}

	return recordFromPayload(payload, sourceURL), nil
}

// recordFromPayload maps raceDetail fields onto a Record.
// Absent or oddly typed fields fall back to empty values.
func recordFromPayload(p map[string]any, sourceURL string) *event.Record {
	rec := event.NewRecord(sourceURL)
	rec.Name = stringField(p, "raceName")
	rec.Tracks = tracksField(p, "raceTypeList")
	rec.Region = stringField(p, "region")
	rec.Venue = stringField(p, "place")
	rec.EventDate = dateField(p, "raceDate", sourceURL)
	rec.GatheringTime = stringField(p, "raceStart")
	rec.ApplicationWindow = event.ApplicationWindow{
		Start: dateField(p, "applicationStartDate", sourceURL),
		End:   dateField(p, "applicationEndDate", sourceURL),
	}
	rec.Contact = event.Contact{
		Email: stringField(p, "email"),
		Phone: stringField(p, "phone"),
	}
	rec.Organizer = stringField(p, "host")
	rec.Homepage = stringField(p, "homepageUrl")
	rec.Intro = stringField(p, "intro")
	return rec
}

// stringField reads a scalar payload field as a string
func stringField(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// dateField reads a date field and converts it to canonical form
func dateField(p map[string]any, key, sourceURL string) string {
	raw := stringField(p, key)
	date := event.NormalizeDate(raw)
	if raw != "" && date == "" {
		logger.Debug("Unrecognized date format", logger.Fields{
			"url":   sourceURL,
			"field": key,
			"value": raw,
		})
	}
	return date
}

// tracksField reads the track list, which is usually a comma separated string
// ("Full,Half,10km") but may also arrive as a JSON array
func tracksField(p map[string]any, key string) []string {
	var parts []string
	switch v := p[key].(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			switch t := item.(type) {
			case string:
				parts = append(parts, t)
			case float64:
				parts = append(parts, strconv.FormatFloat(t, 'f', -1, 64))
			}
		}
	}

	tracks := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			tracks = append(tracks, part)
		}
	}
	return tracks
}
