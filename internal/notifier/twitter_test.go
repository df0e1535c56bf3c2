package notifier

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/pfrederiksen/marathon-events/internal/event"
	"github.com/pfrederiksen/marathon-events/internal/query"
)

func intPtr(n int) *int {
	return &n
}

func testView(name string) query.View {
	rec := event.NewRecord("/raceDetail/101")
	rec.Name = name
	rec.Region = "서울"
	rec.Venue = "광화문광장"
	rec.EventDate = "2025-11-15"
	rec.Tracks = []string{"하프", "10km"}
	rec.ApplicationWindow = event.ApplicationWindow{Start: "2025-08-01", End: "2025-11-03"}
	rec.Homepage = "https://half.example.com"
	return query.View{Record: rec, IsAccepting: true, DaysToDeadline: intPtr(2)}
}

func TestFormatPost(t *testing.T) {
	tests := []struct {
		name     string
		view     query.View
		contains []string
		excludes []string
	}{
		{
			name: "complete marathon",
			view: testView("서울 하프 마라톤"),
			contains: []string{
				"접수 마감 임박",
				"서울 하프 마라톤",
				"📅 대회일 2025-11-15",
				"📍 서울 - 광화문광장",
				"🏅 하프, 10km",
				"⏰ 접수 마감 2025-11-03 (D-2)",
				"🔗 https://half.example.com",
				"#마라톤",
			},
		},
		{
			name: "deadline today",
			view: func() query.View {
				v := testView("오늘 마감")
				v.DaysToDeadline = intPtr(0)
				return v
			}(),
			contains: []string{"(D-Day)"},
		},
		{
			name: "sparse marathon",
			view: func() query.View {
				rec := event.NewRecord("/raceDetail/5")
				rec.Name = "이름만 있는 대회"
				return query.View{Record: rec}
			}(),
			contains: []string{"이름만 있는 대회", "#러닝"},
			excludes: []string{"📅", "📍", "🏅", "⏰", "🔗"},
		},
		{
			name:     "very long name gets truncated",
			view:     testView(strings.Repeat("아주 긴 마라톤 대회 이름 ", 30)),
			contains: []string{"..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatPost(tt.view)

			if n := utf8.RuneCountInString(got); n > maxPostRunes {
				t.Errorf("formatPost() length = %d runes, want <= %d", n, maxPostRunes)
			}
			if !utf8.ValidString(got) {
				t.Error("formatPost() produced invalid UTF-8")
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("formatPost() missing %q in post:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("formatPost() should not contain %q:\n%s", unwanted, got)
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("짧은 글", 280); got != "짧은 글" {
		t.Errorf("truncate() changed a short string: %q", got)
	}
	got := truncate(strings.Repeat("가", 300), 280)
	if utf8.RuneCountInString(got) != 280 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %d runes, want 280 ending in ...", utf8.RuneCountInString(got))
	}
}

func TestDryRunNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewDryRunNotifier(&buf)

	views := []query.View{testView("첫 번째 대회"), testView("두 번째 대회")}
	if err := n.Notify(views); err != nil {
		t.Fatalf("DryRunNotifier.Notify() error = %v, want nil", err)
	}

	out := buf.String()
	for _, want := range []string{"--- Post 1/2 ---", "--- Post 2/2 ---", "첫 번째 대회", "두 번째 대회", "(Length: "} {
		if !strings.Contains(out, want) {
			t.Errorf("dry-run output missing %q:\n%s", want, out)
		}
	}
}

// rewriteTransport sends every request to a test server
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestTwitter(t *testing.T, handler http.HandlerFunc) *TwitterNotifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	target, _ := url.Parse(server.URL)
	return newTwitterNotifier(&http.Client{Transport: rewriteTransport{target: target}}, 0)
}

func TestTwitterNotifier_Notify(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []string
	)
	n := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/statuses/update.json") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		mu.Lock()
		statuses = append(statuses, r.PostForm.Get("status"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 12345, "text": "ok"}`))
	})

	views := []query.View{testView("서울 하프 마라톤"), testView("부산 바다 마라톤")}
	if err := n.Notify(views); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 {
		t.Fatalf("posted %d statuses, want 2", len(statuses))
	}
	if !strings.Contains(statuses[0], "서울 하프 마라톤") || !strings.Contains(statuses[1], "부산 바다 마라톤") {
		t.Errorf("statuses = %q", statuses)
	}
}

func TestTwitterNotifier_APIError(t *testing.T) {
	var calls int32
	n := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors": [{"code": 187, "message": "Status is a duplicate."}]}`))
	})

	err := n.Notify([]query.View{testView("중복 대회"), testView("다음 대회")})
	if err == nil {
		t.Fatal("Notify() expected error for a rejected post")
	}
	if !strings.Contains(err.Error(), "중복 대회") {
		t.Errorf("error %q should name the marathon", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("made %d calls, want to stop after the first failure", n)
	}
}

func TestNewTwitterNotifier_MissingCredentials(t *testing.T) {
	for _, k := range []string{"TWITTER_API_KEY", "TWITTER_API_SECRET", "TWITTER_ACCESS_TOKEN", "TWITTER_ACCESS_SECRET"} {
		t.Setenv(k, "")
	}

	if _, err := NewTwitterNotifier(); err == nil {
		t.Error("NewTwitterNotifier() should fail without credentials")
	}
}

func TestNewTwitterNotifier_WithCredentials(t *testing.T) {
	for _, k := range []string{"TWITTER_API_KEY", "TWITTER_API_SECRET", "TWITTER_ACCESS_TOKEN", "TWITTER_ACCESS_SECRET"} {
		t.Setenv(k, "test-"+strings.ToLower(k))
	}

	n, err := NewTwitterNotifier()
	if err != nil {
		t.Fatalf("NewTwitterNotifier() error = %v", err)
	}
	if n.client == nil {
		t.Error("client should be initialized")
	}
}
