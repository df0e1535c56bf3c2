package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/query"
)

const (
	telegramAPIBaseURL = "https://api.telegram.org/bot"
	telegramTimeout    = 10 * time.Second

	// maxMessageRunes is the Bot API limit for one text message
	maxMessageRunes = 4096
)

// TelegramNotifier sends one digest message per run to a Telegram chat
type TelegramNotifier struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramNotifier creates a notifier from TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID
func NewTelegramNotifier() (*TelegramNotifier, error) {
	return newTelegramNotifier(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"), telegramAPIBaseURL)
}

func newTelegramNotifier(botToken, chatID, baseURL string) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("chat ID is required")
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: telegramTimeout,
		},
	}, nil
}

// Notify sends every marathon in a single digest grouped by region
func (n *TelegramNotifier) Notify(marathons []query.View) error {
	if len(marathons) == 0 {
		return nil
	}
	if err := n.sendMessage(formatDigest(marathons)); err != nil {
		return err
	}
	logger.Info("Sent deadline digest", logger.Fields{"chat_id": n.chatID, "count": len(marathons)})
	return nil
}

// sendMessage posts text to the configured chat as HTML
func (n *TelegramNotifier) sendMessage(text string) error {
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}
	return nil
}

// maxDigestNameRunes caps one marathon name inside the digest
const maxDigestNameRunes = 100

// formatDigest renders marathons grouped by region, regions in sorted order.
// Entries are added whole until the next one would pass maxMessageRunes; the
// rest are summarized in a count so markup is never cut.
func formatDigest(marathons []query.View) string {
	header := fmt.Sprintf("🏃 <b>접수 마감 임박 마라톤</b> (%d)\n\n", len(marathons))
	const footer = "🔗 https://marathongo.co.kr"

	byRegion := make(map[string][]query.View)
	for _, m := range marathons {
		region := m.Region
		if region == "" {
			region = "지역 미정"
		}
		byRegion[region] = append(byRegion[region], m)
	}

	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	var b strings.Builder
	b.WriteString(header)
	used := utf8.RuneCountInString(header)
	// room for the footer and an omitted-count line
	budget := maxMessageRunes - utf8.RuneCountInString(footer) - 32

	written := 0
	full := false
	for _, region := range regions {
		section := fmt.Sprintf("📍 <b>%s</b>\n", html.EscapeString(truncate(region, maxDigestNameRunes)))
		started := false

		for _, m := range byRegion[region] {
			entry := formatDigestEntry(m)
			cost := utf8.RuneCountInString(entry)
			if !started {
				cost += utf8.RuneCountInString(section) + 1
			}
			if used+cost > budget {
				full = true
				break
			}
			if !started {
				b.WriteString(section)
				started = true
			}
			b.WriteString(entry)
			used += cost
			written++
		}
		if started {
			b.WriteString("\n")
		}
		if full {
			break
		}
	}

	if omitted := len(marathons) - written; omitted > 0 {
		fmt.Fprintf(&b, "… 외 %d건\n\n", omitted)
	}
	b.WriteString(footer)
	return b.String()
}

// formatDigestEntry renders one marathon line with its name escaped and capped
func formatDigestEntry(m query.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • %s", html.EscapeString(truncate(m.Name, maxDigestNameRunes)))
	if m.EventDate != "" {
		fmt.Fprintf(&b, " (%s)", m.EventDate)
	}
	if end := m.ApplicationWindow.End; end != "" {
		fmt.Fprintf(&b, " ⏰ %s%s", end, dDay(m.DaysToDeadline))
	}
	b.WriteString("\n")
	return b.String()
}
