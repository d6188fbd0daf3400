// Package api provides the HTTP server for FormCadence.
//
// It exposes JSON endpoints for schedule generation, day-type resolution, the
// completion and skip ledgers, progress, navigation and participant calendars.
// Every response uses the models.APIResponse envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/FormCadence/internal/study"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxRequestBytes   = 1 << 20
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr    string
	Metrics http.Handler
}

// Option defines a function for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) {
		o.Metrics = h
	}
}

// Server serves one study over HTTP.
type Server struct {
	svc     *study.Service
	opts    Opts
	started time.Time
}

// NewServer creates a Server for svc.
func NewServer(svc *study.Service, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	return &Server{svc: svc, opts: o, started: time.Now().UTC()}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.opts.Addr }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /api/v1/schedule/generate", s.scheduleHandler)
	mux.HandleFunc("GET /api/v1/daytypes", s.listDayTypesHandler)
	mux.HandleFunc("POST /api/v1/daytypes/resolve", s.resolveHandler)
	mux.HandleFunc("POST /api/v1/completions", s.completionHandler)
	mux.HandleFunc("POST /api/v1/skips", s.skipHandler)
	mux.HandleFunc("DELETE /api/v1/skips", s.unskipHandler)
	mux.HandleFunc("POST /api/v1/progress", s.progressHandler)
	mux.HandleFunc("POST /api/v1/navigation/next", s.navigationNextHandler)
	mux.HandleFunc("POST /api/v1/navigation/status", s.navigationStatusHandler)

	mux.HandleFunc("POST /api/v1/participants", s.enrollParticipantHandler)
	mux.HandleFunc("GET /api/v1/participants", s.listParticipantsHandler)
	mux.HandleFunc("GET /api/v1/participants/{id}", s.getParticipantHandler)
	mux.HandleFunc("GET /api/v1/participants/{id}/today", s.todayHandler)
	mux.HandleFunc("GET /api/v1/participants/{id}/progress", s.studyProgressHandler)
	mux.HandleFunc("GET /api/v1/participants/{id}/events", s.listEventsHandler)
	mux.HandleFunc("POST /api/v1/participants/{id}/events", s.triggerEventHandler)
	mux.HandleFunc("POST /api/v1/participants/{id}/completions", s.participantCompletionHandler)
	mux.HandleFunc("POST /api/v1/participants/{id}/reset", s.resetParticipantHandler)

	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	return http.MaxBytesHandler(mux, maxRequestBytes)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	return nil
}
