package scraper

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultLinkClass is the anchor class the listing page uses for race cards
	DefaultLinkClass = "MuiLink-root"
	// DetailPathMarker identifies hrefs that point at a detail page
	DetailPathMarker = "/raceDetail/"
)

// LinkExtractor returns the detail page hrefs found in listing page markup,
// in document order. Duplicates are allowed; the crawler removes them.
type LinkExtractor interface {
	ExtractLinks(r io.Reader) ([]string, error)
}

// ClassLinkExtractor selects anchors by CSS class and keeps hrefs containing PathContains
type ClassLinkExtractor struct {
	Class        string
	PathContains string
}

// NewClassLinkExtractor creates an extractor for the marathongo.co.kr listing markup
func NewClassLinkExtractor() *ClassLinkExtractor {
	return &ClassLinkExtractor{
		Class:        DefaultLinkClass,
		PathContains: DetailPathMarker,
	}
}

// ExtractLinks parses HTML and returns matching hrefs
func (e *ClassLinkExtractor) ExtractLinks(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	selector := "a[href]"
	if e.Class != "" {
		selector = "a." + e.Class + "[href]"
	}

	links := make([]string, 0)
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		if e.PathContains != "" && !strings.Contains(href, e.PathContains) {
			return
		}
		links = append(links, href)
	})

	return links, nil
}

// UniqueLinks removes duplicate hrefs by exact string equality, keeping the
// first occurrence of each and preserving order
func UniqueLinks(hrefs []string) []string {
	seen := make(map[string]bool, len(hrefs))
	unique := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if !seen[href] {
			seen[href] = true
			unique = append(unique, href)
		}
	}
	return unique
}

// ResolveURL turns a detail href into an absolute URL.
// Absolute http(s) hrefs are returned unchanged; anything else is appended to base.
func ResolveURL(href, base string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasSuffix(base, "/") && strings.HasPrefix(href, "/") {
		return base + href[1:]
	}
	return base + href
}
