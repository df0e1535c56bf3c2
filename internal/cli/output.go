package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pfrederiksen/marathon-events/internal/query"
	"github.com/pfrederiksen/marathon-events/internal/service"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// WriteDocument writes the document in the specified format
func WriteDocument(w io.Writer, doc *service.Document, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatText:
		return writeText(w, doc, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs the document as JSON
func writeJSON(w io.Writer, doc *service.Document) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// writeText outputs the document as human-readable text.
// Failures are left to the caller, which reports them on stderr.
func writeText(w io.Writer, doc *service.Document, verbose bool) error {
	if !doc.Success {
		return nil
	}

	if doc.Total == 0 {
		if doc.Message != "" {
			fmt.Fprintln(w, doc.Message)
		} else {
			fmt.Fprintln(w, "No marathons found.")
		}
		return nil
	}

	if doc.Match != nil {
		fmt.Fprintln(w, "Best match:")
		writeMarathon(w, *doc.Match, verbose)
		if len(doc.Others) > 0 {
			fmt.Fprintf(w, "\nAlso matching (%d):\n", len(doc.Others))
			for _, o := range doc.Others {
				fmt.Fprintf(w, "  %s  %s\n", dateOrUnknown(o.EventDate), o.Name)
			}
		}
	} else {
		for i, m := range doc.Marathons {
			if i > 0 {
				fmt.Fprintln(w)
			}
			writeMarathon(w, m, verbose)
		}
	}

	fmt.Fprintf(w, "\nTotal: %d marathons%s\n", doc.Total, provenance(doc))
	return nil
}

// writeMarathon writes one marathon as an indented block
func writeMarathon(w io.Writer, m query.View, verbose bool) {
	fmt.Fprintf(w, "%s  %s\n", dateOrUnknown(m.EventDate), m.Name)

	if m.DaysUntil != nil {
		fmt.Fprintf(w, "     In: %s\n", daysLabel(*m.DaysUntil))
	}
	if loc := m.Location(); loc != "" {
		fmt.Fprintf(w, "     Where: %s\n", loc)
	}
	if len(m.Tracks) > 0 {
		fmt.Fprintf(w, "     Tracks: %s\n", strings.Join(m.Tracks, ", "))
	}
	if win := m.ApplicationWindow; win.Start != "" || win.End != "" {
		status := "closed"
		if m.IsAccepting {
			status = "open"
		}
		line := fmt.Sprintf("%s ~ %s (%s", win.Start, win.End, status)
		if m.DaysToDeadline != nil {
			line += ", closes " + daysLabel(*m.DaysToDeadline)
		}
		fmt.Fprintf(w, "     Registration: %s)\n", line)
	}
	if m.Contact.Email != "" || m.Contact.Phone != "" {
		fmt.Fprintf(w, "     Contact: %s\n", strings.TrimSpace(m.Contact.Email+" "+m.Contact.Phone))
	}
	if intro := shorten(m.Intro, maxIntroRunes); intro != "" {
		fmt.Fprintf(w, "     Intro: %s\n", intro)
	}

	if !verbose {
		return
	}
	if m.GatheringTime != "" {
		fmt.Fprintf(w, "     Gathering: %s\n", m.GatheringTime)
	}
	if m.Organizer != "" {
		fmt.Fprintf(w, "     Organizer: %s\n", m.Organizer)
	}
	if m.Homepage != "" {
		fmt.Fprintf(w, "     Homepage: %s\n", m.Homepage)
	}
	fmt.Fprintf(w, "     Source: %s\n", m.SourceURL)
	fmt.Fprintf(w, "     ID: %s\n", m.ID())
}

// maxIntroRunes caps the intro shown per marathon
const maxIntroRunes = 100

// shorten collapses whitespace in s and cuts it to limit runes with a trailing ellipsis
func shorten(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func dateOrUnknown(date string) string {
	if date == "" {
		return "날짜 미정    "
	}
	return date
}

func daysLabel(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}

// provenance describes where the records came from
func provenance(doc *service.Document) string {
	if doc.Source == "" {
		return ""
	}
	s := fmt.Sprintf(" (from %s", doc.Source)
	if doc.FetchedAt != nil {
		s += ", fetched " + doc.FetchedAt.Local().Format(time.DateTime)
	}
	return s + ")"
}
