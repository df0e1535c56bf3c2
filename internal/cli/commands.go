package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/marathon-events/internal/calendar"
	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/notifier"
	"github.com/pfrederiksen/marathon-events/internal/query"
	"github.com/pfrederiksen/marathon-events/internal/server"
	"github.com/pfrederiksen/marathon-events/internal/service"
	"github.com/pfrederiksen/marathon-events/internal/storage"
)

func (a *app) newSearchCmd() *cobra.Command {
	var p service.SearchParams

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List marathons, optionally filtered by region, date and registration status",
		Example: `  marathon-events search --region 서울
  marathon-events search --date 2025-11 --accepting`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.UseCache = a.useCache()
			return a.emit(cmd, a.svc.Search(cmd.Context(), p))
		},
	}

	cmd.Flags().StringVar(&p.Region, "region", "", "Region substring (e.g. 서울)")
	cmd.Flags().StringVar(&p.Date, "date", "", "Event date substring: YYYY, YYYY-MM or YYYY-MM-DD")
	cmd.Flags().BoolVar(&p.OnlyAccepting, "accepting", false, "Only marathons still accepting applications")

	return cmd
}

func (a *app) newFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <name>",
		Short: "Find a marathon by name (case-insensitive substring)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			return a.emit(cmd, a.svc.FindByName(cmd.Context(), name, a.useCache()))
		},
	}
}

func (a *app) newUpcomingCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List marathons taking place within the next N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.emit(cmd, a.svc.Upcoming(cmd.Context(), days, a.useCache()))
		},
	}

	cmd.Flags().IntVar(&days, "days", server.DefaultUpcomingDays, "Number of days ahead to include")
	return cmd
}

func (a *app) newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <label>",
		Short: "List marathons offering a track such as 풀코스, 하프 or 10km",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.emit(cmd, a.svc.ByTrack(cmd.Context(), args[0], a.useCache()))
		},
	}
}

func (a *app) newClosingCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "closing",
		Short: "List marathons whose registration closes within the next N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.emit(cmd, a.svc.ClosingSoon(cmd.Context(), days, a.useCache()))
		},
	}

	cmd.Flags().IntVar(&days, "days", server.DefaultUpcomingDays, "Number of days until the registration deadline")
	return cmd
}

func (a *app) newCalendarCmd() *cobra.Command {
	var (
		days   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Export marathons as an iCalendar (.ics) file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc *service.Document
			if cmd.Flags().Changed("days") {
				doc = a.svc.Upcoming(cmd.Context(), days, a.useCache())
			} else {
				doc = a.svc.Search(cmd.Context(), service.SearchParams{UseCache: a.useCache()})
			}
			if !doc.Success {
				return docError(doc)
			}

			ics := calendar.GenerateICS(query.Records(doc.Marathons), a.cfg.Crawler.BaseURL, time.Now())
			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), ics)
				return err
			}

			if err := os.WriteFile(output, []byte(ics), 0644); err != nil {
				return fmt.Errorf("writing calendar: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d marathons to %s\n", doc.Total, output)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Only include marathons within the next N days (default: all)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func (a *app) newExportCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save every marathon to a timestamped JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				dataDir = a.cfg.Storage.DataDir
			}
			store, err := storage.New(dataDir)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}

			doc := a.svc.Search(cmd.Context(), service.SearchParams{UseCache: a.useCache()})
			if !doc.Success {
				return docError(doc)
			}

			var fetchedAt time.Time
			if doc.FetchedAt != nil {
				fetchedAt = *doc.FetchedAt
			}
			path, err := store.SaveExport(query.Records(doc.Marathons), fetchedAt)
			if err != nil {
				return fmt.Errorf("saving export: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d marathons to %s\n", doc.Total, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for export files (default from config: ~/.marathon-events)")
	return cmd
}

func (a *app) newAnnounceCmd() *cobra.Command {
	var (
		days     int
		maxPosts int
		dryRun   bool
		channel  string
	)

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Announce marathons whose registration is about to close",
		Long: `Announce marathons whose registration closes within --days days.

The twitter channel posts one tweet per marathon and requires TWITTER_API_KEY,
TWITTER_API_SECRET, TWITTER_ACCESS_TOKEN and TWITTER_ACCESS_SECRET. The telegram
channel sends one digest and requires TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.
Neither is needed with --dry-run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel != "twitter" && channel != "telegram" {
				return fmt.Errorf("invalid channel: %s (must be 'twitter' or 'telegram')", channel)
			}
			if maxPosts < 1 {
				return fmt.Errorf("--max must be at least 1, got %d", maxPosts)
			}

			doc := a.svc.ClosingSoon(cmd.Context(), days, a.useCache())
			if !doc.Success {
				return docError(doc)
			}

			marathons := doc.Marathons
			if len(marathons) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No marathons closing soon")
				return nil
			}
			// Limit number of posts
			if len(marathons) > maxPosts {
				marathons = marathons[:maxPosts]
			}

			var n notifier.Notifier
			switch {
			case dryRun:
				n = notifier.NewDryRunNotifier(cmd.OutOrStdout())
			case channel == "twitter":
				tw, err := notifier.NewTwitterNotifier()
				if err != nil {
					return fmt.Errorf("initializing Twitter client: %w", err)
				}
				n = tw
			default:
				tg, err := notifier.NewTelegramNotifier()
				if err != nil {
					return fmt.Errorf("initializing Telegram client: %w", err)
				}
				n = tg
			}

			if err := n.Notify(marathons); err != nil {
				return fmt.Errorf("posting announcements: %w", err)
			}
			logger.Info("Announcements sent", logger.Fields{"count": len(marathons), "channel": channel, "dry_run": dryRun})
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 3, "Announce registrations closing within N days")
	cmd.Flags().IntVar(&maxPosts, "max", 10, "Maximum number of posts")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print posts without publishing")
	cmd.Flags().StringVar(&channel, "channel", "twitter", "Where to announce: twitter or telegram")
	return cmd
}

func (a *app) newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the marathon API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if listen != "" {
				cfg.ListenAddress = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(a.svc, cfg, server.WithBaseURL(a.cfg.Crawler.BaseURL)).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config: :8080)")
	return cmd
}
