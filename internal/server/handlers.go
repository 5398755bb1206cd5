package server

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/stepflow/internal/journal"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Records   string `json:"records"` // whether a persist store is attached
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	records := "unavailable"
	if s.store != nil {
		records = "available"
	}
	respondOK(w, r, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Records:   records,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.journal.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondError(w, r, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []*journal.RunRecord{}
	}
	respondOK(w, r, runs)
}

type runDetail struct {
	Run    *journal.RunRecord   `json:"run"`
	Events []*journal.StepEvent `json:"events"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.journal.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get run", "id", id, "error", err)
		respondError(w, r, http.StatusInternalServerError, "get run failed")
		return
	}
	if run == nil {
		respondError(w, r, http.StatusNotFound, "run '"+id+"' not found")
		return
	}

	events, err := s.journal.ListEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("list events", "id", id, "error", err)
		respondError(w, r, http.StatusInternalServerError, "list events failed")
		return
	}
	if events == nil {
		events = []*journal.StepEvent{}
	}
	respondOK(w, r, runDetail{Run: run, Events: events})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, r, http.StatusNotFound, "no persistence store configured")
		return
	}

	records, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list records", "error", err)
		respondError(w, r, http.StatusInternalServerError, "list records failed")
		return
	}
	respondOK(w, r, records)
}
