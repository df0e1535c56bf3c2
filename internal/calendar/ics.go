// Package calendar renders marathon records as an iCalendar (.ics) feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/scraper"
)

// uidDomain qualifies event UIDs so they are globally unique
const uidDomain = "marathon-events"

// GenerateICS generates one iCalendar document holding an all-day event for
// every record with a parsable event date. Undated records are skipped.
// Relative source hrefs are resolved against baseURL for the URL property.
// now stamps DTSTAMP.
func GenerateICS(records []*event.Record, baseURL string, now time.Time) string {
	var ics strings.Builder

	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//marathon-events//marathon-events//KO\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")
	ics.WriteString("X-WR-CALNAME:Marathons\r\n")

	stamp := formatICSTime(now)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		writeEvent(&ics, rec, baseURL, stamp)
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

func writeEvent(ics *strings.Builder, rec *event.Record, baseURL, stamp string) {
	day, ok := event.ParseDate(rec.EventDate)
	if !ok {
		return
	}

	ics.WriteString("BEGIN:VEVENT\r\n")
	writeLine(ics, fmt.Sprintf("UID:%s@%s", rec.ID(), uidDomain))
	writeLine(ics, "DTSTAMP:"+stamp)

	// All-day event; DTEND is exclusive
	writeLine(ics, "DTSTART;VALUE=DATE:"+day.Format("20060102"))
	writeLine(ics, "DTEND;VALUE=DATE:"+day.AddDate(0, 0, 1).Format("20060102"))

	writeLine(ics, "SUMMARY:"+escapeICS(rec.Name))
	if loc := location(rec); loc != "" {
		writeLine(ics, "LOCATION:"+escapeICS(loc))
	}
	if desc := description(rec); desc != "" {
		writeLine(ics, "DESCRIPTION:"+escapeICS(desc))
	}
	if rec.SourceURL != "" {
		writeLine(ics, "URL:"+scraper.ResolveURL(rec.SourceURL, baseURL))
	}

	writeLine(ics, "STATUS:CONFIRMED")
	writeLine(ics, "TRANSP:TRANSPARENT")
	ics.WriteString("END:VEVENT\r\n")
}

func location(rec *event.Record) string {
	return strings.TrimSpace(rec.Region + " " + rec.Venue)
}

func description(rec *event.Record) string {
	var lines []string
	if len(rec.Tracks) > 0 {
		lines = append(lines, "종목: "+strings.Join(rec.Tracks, ", "))
	}
	if rec.GatheringTime != "" {
		lines = append(lines, "집결: "+rec.GatheringTime)
	}
	if w := rec.ApplicationWindow; w.Start != "" || w.End != "" {
		lines = append(lines, fmt.Sprintf("접수: %s ~ %s", w.Start, w.End))
	}
	if rec.Organizer != "" {
		lines = append(lines, "주최: "+rec.Organizer)
	}
	if rec.Homepage != "" {
		lines = append(lines, rec.Homepage)
	}
	return strings.Join(lines, "\n")
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// Replace special characters according to RFC 5545
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// maxLineOctets is the RFC 5545 content line limit, excluding CRLF
const maxLineOctets = 75

// writeLine writes a content line folded at 75 octets without splitting a UTF-8 sequence
func writeLine(ics *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		ics.WriteString(line[:cut])
		ics.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines start with a space that counts toward the limit
		limit = maxLineOctets - 1
	}
	ics.WriteString(line)
	ics.WriteString("\r\n")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
