// Package scraper provides HTTP fetching and parsing for marathon listings.
//
// The scraper fetches the public race listing from marathongo.co.kr, extracts the
// detail page links, and fetches every detail page under a fixed concurrency cap.
// Each detail page embeds its data as Next.js page state in a __NEXT_DATA__ script
// tag; the race payload is mapped onto an event.Record with canonical dates.
// Individual detail failures are logged and dropped so that one broken page never
// costs the rest of the crawl.
package scraper
