package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	DefaultListingURL  = "https://marathongo.co.kr/races"
	DefaultBaseURL     = "https://marathongo.co.kr"
	UserAgent          = "marathon-events/1.0 (github.com/pfrederiksen/marathon-events)"
	ListingTimeout     = 30 * time.Second
	DetailTimeout      = 15 * time.Second
	DefaultConcurrency = 10
)

// StatusError is returned when a page responds with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Scraper handles fetching the listing page and every marathon detail page
type Scraper struct {
	client         *http.Client
	listingURL     string
	baseURL        string
	userAgent      string
	listingTimeout time.Duration
	detailTimeout  time.Duration
	concurrency    int
	extractor      LinkExtractor
	limiter        *rate.Limiter
}

// Option configures a Scraper
type Option func(*Scraper)

// WithListingURL sets the page that enumerates detail links
func WithListingURL(u string) Option {
	return func(s *Scraper) {
		s.listingURL = u
	}
}

// WithBaseURL sets the host that relative detail links are resolved against
func WithBaseURL(u string) Option {
	return func(s *Scraper) {
		s.baseURL = u
	}
}

// WithConcurrency sets the maximum number of detail fetches in flight.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTimeouts sets the per-request timeouts for the listing and detail pages
func WithTimeouts(listing, detail time.Duration) Option {
	return func(s *Scraper) {
		if listing > 0 {
			s.listingTimeout = listing
		}
		if detail > 0 {
			s.detailTimeout = detail
		}
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		s.client = c
	}
}

// WithLinkExtractor replaces the listing page link extractor
func WithLinkExtractor(e LinkExtractor) Option {
	return func(s *Scraper) {
		s.extractor = e
	}
}

// WithRateLimit paces detail request starts to rps requests per second.
// A non-positive rps disables pacing; the concurrency cap always applies.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Scraper) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a new Scraper with the marathongo.co.kr defaults
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client:         newHTTPClient(),
		listingURL:     DefaultListingURL,
		baseURL:        DefaultBaseURL,
		userAgent:      UserAgent,
		listingTimeout: ListingTimeout,
		detailTimeout:  DetailTimeout,
		concurrency:    DefaultConcurrency,
		extractor:      NewClassLinkExtractor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListingURL returns the configured listing page
func (s *Scraper) ListingURL() string {
	return s.listingURL
}

// Concurrency returns the detail fetch cap
func (s *Scraper) Concurrency() int {
	return s.concurrency
}

// newHTTPClient builds a client without an overall timeout; every request
// carries its own deadline through its context instead.
func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: DefaultConcurrency,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// get issues one GET bounded by timeout and hands the UTF-8 decoded body to parse.
// The body is consumed inside the deadline, so a slow response is a timeout too.
func (s *Scraper) get(ctx context.Context, pageURL string, timeout time.Duration, parse func(io.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return parse(body)
}
