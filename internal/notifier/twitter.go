package notifier

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dghubble/go-twitter/twitter" //nolint:staticcheck // Using stable v1.1 API
	"github.com/dghubble/oauth1"

	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/query"
)

// maxPostRunes is Twitter's post length limit
const maxPostRunes = 280

// TwitterNotifier posts announcements to Twitter
type TwitterNotifier struct {
	client *twitter.Client
	pause  time.Duration
}

// NewTwitterNotifier creates a new Twitter notifier using environment variables
// Required environment variables:
// - TWITTER_API_KEY
// - TWITTER_API_SECRET
// - TWITTER_ACCESS_TOKEN
// - TWITTER_ACCESS_SECRET
func NewTwitterNotifier() (*TwitterNotifier, error) {
	apiKey := os.Getenv("TWITTER_API_KEY")
	apiSecret := os.Getenv("TWITTER_API_SECRET")
	accessToken := os.Getenv("TWITTER_ACCESS_TOKEN")
	accessSecret := os.Getenv("TWITTER_ACCESS_SECRET")

	if apiKey == "" || apiSecret == "" || accessToken == "" || accessSecret == "" {
		return nil, fmt.Errorf("missing required Twitter credentials in environment variables")
	}

	config := oauth1.NewConfig(apiKey, apiSecret)
	token := oauth1.NewToken(accessToken, accessSecret)
	return newTwitterNotifier(config.Client(oauth1.NoContext, token), 2*time.Second), nil
}

// newTwitterNotifier builds a notifier on an already authorized HTTP client
func newTwitterNotifier(httpClient *http.Client, pause time.Duration) *TwitterNotifier {
	return &TwitterNotifier{
		client: twitter.NewClient(httpClient),
		pause:  pause,
	}
}

// Notify posts one tweet per marathon, pausing between posts
func (n *TwitterNotifier) Notify(marathons []query.View) error {
	for i, m := range marathons {
		post := formatPost(m)

		tweet, _, err := n.client.Statuses.Update(post, nil)
		if err != nil {
			return fmt.Errorf("failed to post tweet for marathon %q: %w", m.Name, err)
		}
		logger.Info("Posted deadline announcement", logger.Fields{
			"marathon": m.Name,
			"tweet_id": tweet.ID,
		})

		// Rate limiting: wait between tweets
		if i < len(marathons)-1 && n.pause > 0 {
			time.Sleep(n.pause)
		}
	}

	return nil
}

// formatPost formats a closing-soon announcement for one marathon
func formatPost(m query.View) string {
	var b strings.Builder

	b.WriteString("🏃 접수 마감 임박!\n\n")
	b.WriteString(m.Name)
	b.WriteString("\n")

	if m.EventDate != "" {
		fmt.Fprintf(&b, "📅 대회일 %s\n", m.EventDate)
	}
	if loc := m.Location(); loc != "" {
		fmt.Fprintf(&b, "📍 %s\n", loc)
	}
	if len(m.Tracks) > 0 {
		fmt.Fprintf(&b, "🏅 %s\n", strings.Join(m.Tracks, ", "))
	}
	if end := m.ApplicationWindow.End; end != "" {
		fmt.Fprintf(&b, "⏰ 접수 마감 %s%s\n", end, dDay(m.DaysToDeadline))
	}

	if link := m.Homepage; link != "" {
		fmt.Fprintf(&b, "\n🔗 %s\n", link)
	}
	b.WriteString("\n#마라톤 #러닝")

	return truncate(b.String(), maxPostRunes)
}

// dDay renders the Korean D-day countdown for a deadline
func dDay(days *int) string {
	switch {
	case days == nil:
		return ""
	case *days == 0:
		return " (D-Day)"
	default:
		return fmt.Sprintf(" (D-%d)", *days)
	}
}

// truncate shortens s to at most limit runes, ending with an ellipsis when cut
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
