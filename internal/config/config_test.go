package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()

	if c.Crawler.ListingURL != "https://marathongo.co.kr/races" {
		t.Errorf("ListingURL = %q", c.Crawler.ListingURL)
	}
	if c.Crawler.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", c.Crawler.Concurrency)
	}
	if c.Crawler.ListingTimeout != 30*time.Second || c.Crawler.DetailTimeout != 15*time.Second {
		t.Errorf("timeouts = %v/%v, want 30s/15s", c.Crawler.ListingTimeout, c.Crawler.DetailTimeout)
	}
	if c.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", c.Cache.TTL)
	}
	if c.Crawler.RateLimit != 0 {
		t.Errorf("RateLimit = %v, want disabled", c.Crawler.RateLimit)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
crawler:
  concurrency: 4
  detail_timeout: 5s
  rate_limit: 2.5
cache:
  ttl: 10m
server:
  listen_address: "127.0.0.1:9000"
log:
  level: debug
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.Crawler.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", c.Crawler.Concurrency)
	}
	if c.Crawler.DetailTimeout != 5*time.Second {
		t.Errorf("DetailTimeout = %v, want 5s", c.Crawler.DetailTimeout)
	}
	if c.Crawler.ListingTimeout != 30*time.Second {
		t.Errorf("ListingTimeout = %v, want default 30s", c.Crawler.ListingTimeout)
	}
	if c.Crawler.RateLimit != 2.5 || c.Crawler.RateBurst != 1 {
		t.Errorf("RateLimit/Burst = %v/%d, want 2.5/1", c.Crawler.RateLimit, c.Crawler.RateBurst)
	}
	if c.Cache.TTL != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", c.Cache.TTL)
	}
	if c.Server.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("ListenAddress = %q", c.Server.ListenAddress)
	}
	if c.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", c.Log.Level)
	}
}

func TestLoad_NoFile(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if c.Crawler.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want default", c.Crawler.Concurrency)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "crawler: [", "parse yaml"},
		{"negative concurrency", "crawler:\n  concurrency: -1\n", "concurrency"},
		{"bad listing url", "crawler:\n  listing_url: ftp://example.com\n", "listing_url"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MARATHON_CONCURRENCY":    "3",
		"MARATHON_CACHE_TTL":      "90s",
		"MARATHON_LISTING_URL":    "http://localhost:1234/races",
		"MARATHON_LOG_LEVEL":      "warn",
		"MARATHON_RATE_LIMIT":     "5",
		"MARATHON_DATA_DIR":       "/tmp/marathons",
		"MARATHON_DETAIL_TIMEOUT": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c := Default()
	if err := c.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	if c.Crawler.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", c.Crawler.Concurrency)
	}
	if c.Cache.TTL != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", c.Cache.TTL)
	}
	if c.Crawler.ListingURL != "http://localhost:1234/races" {
		t.Errorf("ListingURL = %q", c.Crawler.ListingURL)
	}
	if c.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", c.Log.Level)
	}
	if c.Crawler.RateLimit != 5 || c.Crawler.RateBurst != 1 {
		t.Errorf("RateLimit/Burst = %v/%d, want 5/1", c.Crawler.RateLimit, c.Crawler.RateBurst)
	}
	if c.Storage.DataDir != "/tmp/marathons" {
		t.Errorf("DataDir = %q", c.Storage.DataDir)
	}
	if c.Crawler.DetailTimeout != 15*time.Second {
		t.Errorf("empty env value should not override, DetailTimeout = %v", c.Crawler.DetailTimeout)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	env := map[string]string{
		"MARATHON_CONCURRENCY": "many",
		"MARATHON_CACHE_TTL":   "1 hour",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := Default().applyEnv(lookup)
	if err == nil {
		t.Fatal("applyEnv() expected error")
	}
	for _, name := range []string{"MARATHON_CONCURRENCY", "MARATHON_CACHE_TTL"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should mention %s", err, name)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("MARATHON_CONCURRENCY", "7")
	path := writeConfig(t, "crawler:\n  concurrency: 4\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Crawler.Concurrency != 7 {
		t.Errorf("Concurrency = %d, want env value 7", c.Crawler.Concurrency)
	}
}
