// Package server exposes the marathon queries as an HTTP JSON API.
//
// Routes:
//
//	GET  /marathons              ?region=&date=&accepting=&cache=
//	GET  /marathons/search       ?name=
//	GET  /marathons/upcoming     ?days=
//	GET  /marathons/tracks       ?track=
//	GET  /marathons/closing      ?days=
//	POST /cache/invalidate
//	GET  /calendar.ics           ?days=
//	GET  /metrics
//	GET  /healthz
//
// Every marathon route accepts cache=false to force a fresh crawl.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pfrederiksen/marathon-events/internal/calendar"
	"github.com/pfrederiksen/marathon-events/internal/config"
	"github.com/pfrederiksen/marathon-events/internal/logger"
	"github.com/pfrederiksen/marathon-events/internal/query"
	"github.com/pfrederiksen/marathon-events/internal/scraper"
	"github.com/pfrederiksen/marathon-events/internal/service"
)

// DefaultUpcomingDays is the window used when days is not given
const DefaultUpcomingDays = 7

// Server serves the marathon API
type Server struct {
	svc             *service.Service
	server          *http.Server
	shutdownTimeout time.Duration
	baseURL         string
	now             func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithBaseURL sets the site root used to resolve calendar event links
func WithBaseURL(u string) Option {
	return func(s *Server) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// New creates a Server for svc configured by cfg
func New(svc *service.Service, cfg config.Server, opts ...Option) *Server {
	s := &Server{
		svc:             svc,
		shutdownTimeout: cfg.ShutdownTimeout,
		baseURL:         scraper.DefaultBaseURL,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /marathons", s.handleSearch)
	mux.HandleFunc("GET /marathons/search", s.handleFind)
	mux.HandleFunc("GET /marathons/upcoming", s.handleUpcoming)
	mux.HandleFunc("GET /marathons/tracks", s.handleTrack)
	mux.HandleFunc("GET /marathons/closing", s.handleClosing)
	mux.HandleFunc("POST /cache/invalidate", s.handleInvalidate)
	mux.HandleFunc("GET /calendar.ics", s.handleCalendar)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logger.Fields{"addr": ln.Addr().String()})
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	useCache, err := boolParam(q.Get("cache"), true)
	if err != nil {
		s.badRequest(w, "cache", err)
		return
	}
	accepting, err := boolParam(q.Get("accepting"), false)
	if err != nil {
		s.badRequest(w, "accepting", err)
		return
	}

	writeDocument(w, s.svc.Search(r.Context(), service.SearchParams{
		Region:        q.Get("region"),
		Date:          q.Get("date"),
		OnlyAccepting: accepting,
		UseCache:      useCache,
	}))
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	useCache, err := boolParam(r.URL.Query().Get("cache"), true)
	if err != nil {
		s.badRequest(w, "cache", err)
		return
	}
	writeDocument(w, s.svc.FindByName(r.Context(), r.URL.Query().Get("name"), useCache))
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days, useCache, ok := s.daysAndCache(w, r)
	if !ok {
		return
	}
	writeDocument(w, s.svc.Upcoming(r.Context(), days, useCache))
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	useCache, err := boolParam(r.URL.Query().Get("cache"), true)
	if err != nil {
		s.badRequest(w, "cache", err)
		return
	}
	writeDocument(w, s.svc.ByTrack(r.Context(), r.URL.Query().Get("track"), useCache))
}

func (s *Server) handleClosing(w http.ResponseWriter, r *http.Request) {
	days, useCache, ok := s.daysAndCache(w, r)
	if !ok {
		return
	}
	writeDocument(w, s.svc.ClosingSoon(r.Context(), days, useCache))
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, s.svc.InvalidateCache())
}

// handleCalendar serves every dated marathon as iCalendar, or only the next
// days days when days is given
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	useCache, err := boolParam(q.Get("cache"), true)
	if err != nil {
		s.badRequest(w, "cache", err)
		return
	}

	var doc *service.Document
	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, "days", err)
			return
		}
		doc = s.svc.Upcoming(r.Context(), days, useCache)
	} else {
		doc = s.svc.Search(r.Context(), service.SearchParams{UseCache: useCache})
	}

	if !doc.Success {
		writeDocument(w, doc)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="marathons.ics"`)
	_, _ = w.Write([]byte(calendar.GenerateICS(query.Records(doc.Marathons), s.baseURL, s.now())))
}

// daysAndCache parses the days and cache parameters, answering 400 on bad input
func (s *Server) daysAndCache(w http.ResponseWriter, r *http.Request) (int, bool, bool) {
	q := r.URL.Query()

	days := DefaultUpcomingDays
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, "days", err)
			return 0, false, false
		}
		days = n
	}

	useCache, err := boolParam(q.Get("cache"), true)
	if err != nil {
		s.badRequest(w, "cache", err)
		return 0, false, false
	}
	return days, useCache, true
}

func (s *Server) badRequest(w http.ResponseWriter, param string, err error) {
	writeDocument(w, &service.Document{
		Success:     false,
		Error:       fmt.Sprintf("invalid %s parameter: %v", param, err),
		Code:        service.CodeInvalidArgument,
		Marathons:   []query.View{},
		GeneratedAt: s.now(),
	})
}

// boolParam parses an optional boolean query parameter
func boolParam(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

// statusFor maps a document to its HTTP status
func statusFor(doc *service.Document) int {
	switch {
	case doc.Success:
		return http.StatusOK
	case doc.Code == service.CodeInvalidArgument:
		return http.StatusBadRequest
	case doc.NoData():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDocument(w http.ResponseWriter, doc *service.Document) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusFor(doc))

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		logger.Error("Failed to write response", nil, err)
	}
}
