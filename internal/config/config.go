// Package config loads marathon-events settings from a YAML file and the environment.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, MARATHON_*
// environment variables, then command-line flags (applied by the cli package).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Crawler struct {
	ListingURL     string        `yaml:"listing_url"`
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	Concurrency    int           `yaml:"concurrency"`
	ListingTimeout time.Duration `yaml:"listing_timeout"`
	DetailTimeout  time.Duration `yaml:"detail_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `yaml:"rate_burst"`
}

type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

type Server struct {
	ListenAddress   string        `yaml:"listen_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	DataDir string `yaml:"data_dir"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Config struct {
	Crawler Crawler `yaml:"crawler"`
	Cache   Cache   `yaml:"cache"`
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Log     Log     `yaml:"log"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path, applies defaults and environment overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	c.applyDefaults()
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Crawler.ListingURL == "" {
		c.Crawler.ListingURL = "https://marathongo.co.kr/races"
	}
	if c.Crawler.BaseURL == "" {
		c.Crawler.BaseURL = "https://marathongo.co.kr"
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "marathon-events/1.0 (github.com/pfrederiksen/marathon-events)"
	}
	if c.Crawler.Concurrency == 0 {
		c.Crawler.Concurrency = 10
	}
	if c.Crawler.ListingTimeout == 0 {
		c.Crawler.ListingTimeout = 30 * time.Second
	}
	if c.Crawler.DetailTimeout == 0 {
		c.Crawler.DetailTimeout = 15 * time.Second
	}
	if c.Crawler.RateLimit > 0 && c.Crawler.RateBurst == 0 {
		c.Crawler.RateBurst = 1
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	// A cold request waits for a full crawl
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "~/.marathon-events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// envPrefix namespaces every environment override
const envPrefix = "MARATHON_"

// applyEnv overrides fields from MARATHON_* variables looked up through lookup
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, name, v, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, name, v, err)
		}
		*dst = d
		return nil
	}

	str("LISTING_URL", &c.Crawler.ListingURL)
	str("BASE_URL", &c.Crawler.BaseURL)
	str("USER_AGENT", &c.Crawler.UserAgent)
	str("LISTEN_ADDRESS", &c.Server.ListenAddress)
	str("DATA_DIR", &c.Storage.DataDir)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(envPrefix + "RATE_LIMIT"); ok && v != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT %q: %w", envPrefix, v, err)
		}
		c.Crawler.RateLimit = rps
		if rps > 0 && c.Crawler.RateBurst == 0 {
			c.Crawler.RateBurst = 1
		}
	}

	return errors.Join(
		num("CONCURRENCY", &c.Crawler.Concurrency),
		num("RATE_BURST", &c.Crawler.RateBurst),
		dur("LISTING_TIMEOUT", &c.Crawler.ListingTimeout),
		dur("DETAIL_TIMEOUT", &c.Crawler.DetailTimeout),
		dur("CACHE_TTL", &c.Cache.TTL),
	)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.Crawler.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("crawler.concurrency must be at least 1, got %d", c.Crawler.Concurrency))
	}
	if c.Crawler.ListingTimeout <= 0 || c.Crawler.DetailTimeout <= 0 {
		errs = append(errs, errors.New("crawler timeouts must be positive"))
	}
	if c.Crawler.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("crawler.rate_limit must not be negative, got %v", c.Crawler.RateLimit))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL))
	}
	if !strings.HasPrefix(c.Crawler.ListingURL, "http://") && !strings.HasPrefix(c.Crawler.ListingURL, "https://") {
		errs = append(errs, fmt.Errorf("crawler.listing_url must be an http(s) URL, got %q", c.Crawler.ListingURL))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}
