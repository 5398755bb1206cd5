// Package server exposes a read-only HTTP API over the run journal and
// the persistence store: recent runs, per-run step events, and persisted
// record listings. It never mutates pipeline state.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/stepflow/internal/config"
	"github.com/me/stepflow/internal/journal"
	"github.com/me/stepflow/pkg/persist"
)

// Server is the stepflow journal API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServeConfig
	startTime time.Time
	journal   *journal.SQLiteJournal
	store     persist.Store // optional; /records 404s without it
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithPersistStore sets the persistence store listed by /records.
func WithPersistStore(st persist.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// New creates a Server with all routes registered.
func New(cfg config.ServeConfig, j *journal.SQLiteJournal, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		journal:   j,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(requestIDMiddleware)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/records", s.handleListRecords)
	})

	return s
}

// Router returns the configured handler, for mounting or testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, s.router)
}
