package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/marathon-events/internal/cache"
	"github.com/pfrederiksen/marathon-events/internal/config"
	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/scraper"
	"github.com/pfrederiksen/marathon-events/internal/service"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitNoData  = 2
)

// Version is reported by --version; set at build time through main
var Version = "dev"

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// options holds the persistent flag values
type options struct {
	configPath  string
	format      string
	noCache     bool
	logLevel    string
	concurrency int
	verbose     bool
}

// app is the state shared by every command once flags are parsed
type app struct {
	opts   options
	cfg    *config.Config
	svc    *service.Service
	format OutputFormat
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "marathon-events",
		Short: "Search upcoming Korean marathons from marathongo.co.kr",
		Long: `A CLI tool to search marathons listed on marathongo.co.kr.
Crawls the race listing and every race detail page, caches the result
for an hour, and answers queries by region, date, name, track and
registration status.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	// Define flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "Path to YAML config file")
	flags.StringVar(&a.opts.format, "format", "text", "Output format: text or json")
	flags.BoolVar(&a.opts.noCache, "no-cache", false, "Ignore cached results and crawl now")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.IntVar(&a.opts.concurrency, "concurrency", 0, "Maximum concurrent detail page fetches (overrides config)")
	flags.BoolVar(&a.opts.verbose, "verbose", false, "Show every field of each marathon")

	cmd.AddCommand(
		a.newSearchCmd(),
		a.newFindCmd(),
		a.newUpcomingCmd(),
		a.newTrackCmd(),
		a.newClosingCmd(),
		a.newCalendarCmd(),
		a.newExportCmd(),
		a.newAnnounceCmd(),
		a.newServeCmd(),
	)

	return cmd
}

// setup loads configuration, configures logging and builds the service
func (a *app) setup(cmd *cobra.Command, args []string) error {
	// Validate format
	a.format = OutputFormat(strings.ToLower(a.opts.format))
	if a.format != FormatText && a.format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", a.opts.format)
	}

	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Crawler.Concurrency = a.opts.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger.SetDefault(logger.New(logger.ParseLevel(cfg.Log.Level), cmd.ErrOrStderr()))

	opts := []scraper.Option{
		scraper.WithListingURL(cfg.Crawler.ListingURL),
		scraper.WithBaseURL(cfg.Crawler.BaseURL),
		scraper.WithUserAgent(cfg.Crawler.UserAgent),
		scraper.WithConcurrency(cfg.Crawler.Concurrency),
		scraper.WithTimeouts(cfg.Crawler.ListingTimeout, cfg.Crawler.DetailTimeout),
	}
	if cfg.Crawler.RateLimit > 0 {
		opts = append(opts, scraper.WithRateLimit(cfg.Crawler.RateLimit, cfg.Crawler.RateBurst))
	}

	sc := scraper.New(opts...)
	a.svc = service.New(sc, cache.New(cfg.Cache.TTL))

	logger.Debug("Configured", logger.Fields{
		"listing_url": sc.ListingURL(),
		"concurrency": sc.Concurrency(),
		"cache_ttl":   cfg.Cache.TTL.String(),
	})
	return nil
}

// useCache reports whether cached results may be served
func (a *app) useCache() bool {
	return !a.opts.noCache
}

// emit writes doc and converts an unsuccessful document into an exit code
func (a *app) emit(cmd *cobra.Command, doc *service.Document) error {
	if err := WriteDocument(cmd.OutOrStdout(), doc, a.format, a.opts.verbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return docError(doc)
}

// docError maps an unsuccessful document to an ExitError
func docError(doc *service.Document) error {
	if doc.Success {
		return nil
	}
	code := ExitFailure
	if doc.NoData() {
		code = ExitNoData
	}
	return &ExitError{Code: code, Err: errors.New(doc.Error)}
}

// Execute runs the CLI and exits with its status
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the CLI with args and returns the exit code
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
