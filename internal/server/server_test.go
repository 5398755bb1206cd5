package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/stepflow/internal/config"
	"github.com/me/stepflow/internal/journal"
	"github.com/me/stepflow/pkg/persist"
	"github.com/me/stepflow/pkg/pipeline"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *journal.SQLiteJournal) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j, err := journal.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return New(config.DefaultServeConfig(), j, logger, opts...), j
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("GET %s: bad JSON %q: %v", path, rec.Body.String(), err)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := get(t, s, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("envelope status = %v, want ok", body["status"])
	}
	if id, _ := body["request_id"].(string); !strings.HasPrefix(id, "req_") {
		t.Errorf("request_id = %v, want req_ prefix", body["request_id"])
	}

	data := body["data"].(map[string]any)
	if data["status"] != "healthy" {
		t.Errorf("health status = %v, want healthy", data["status"])
	}
	if data["records"] != "unavailable" {
		t.Errorf("records = %v, want unavailable without a store", data["records"])
	}
}

func TestHealth_ReportsStore(t *testing.T) {
	store, err := persist.NewFSStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	s, _ := newTestServer(t, WithPersistStore(store))

	_, body := get(t, s, "/api/v1/health")
	data := body["data"].(map[string]any)
	if data["records"] != "available" {
		t.Errorf("records = %v, want available", data["records"])
	}
}

func TestListRuns(t *testing.T) {
	s, j := newTestServer(t)
	ctx := context.Background()

	if err := j.RunStarted(ctx, "run-1", "fit_transform", "clf"); err != nil {
		t.Fatalf("RunStarted: %v", err)
	}
	if err := j.RunFinished(ctx, "run-1", nil); err != nil {
		t.Fatalf("RunFinished: %v", err)
	}

	rec, body := get(t, s, "/api/v1/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	runs := body["data"].([]any)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0].(map[string]any)
	if run["id"] != "run-1" || run["status"] != "succeeded" {
		t.Errorf("run = %v", run)
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := get(t, s, "/api/v1/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("empty run list not encoded as []: %s", rec.Body.String())
	}
}

func TestGetRun_WithEvents(t *testing.T) {
	s, j := newTestServer(t)
	ctx := context.Background()

	if err := j.RunStarted(ctx, "run-1", "transform", "clf"); err != nil {
		t.Fatalf("RunStarted: %v", err)
	}
	if err := j.StepEvent(ctx, "run-1", "tfidf", pipeline.ActionComputed, 3*time.Millisecond); err != nil {
		t.Fatalf("StepEvent: %v", err)
	}

	rec, body := get(t, s, "/api/v1/runs/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := body["data"].(map[string]any)
	run := data["run"].(map[string]any)
	if run["id"] != "run-1" {
		t.Errorf("run id = %v", run["id"])
	}
	events := data["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0].(map[string]any)
	if ev["step"] != "tfidf" || ev["action"] != "computed" {
		t.Errorf("event = %v", ev)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := get(t, s, "/api/v1/runs/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body["status"] != "error" {
		t.Errorf("envelope status = %v, want error", body["status"])
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "nope") {
		t.Errorf("error = %q, want run id mentioned", msg)
	}
}

func TestListRecords(t *testing.T) {
	store, err := persist.NewFSStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := store.Put(context.Background(), "clf", persist.KindModel, []byte("m")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s, _ := newTestServer(t, WithPersistStore(store))

	rec, body := get(t, s, "/api/v1/records")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	records := body["data"].([]any)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0].(map[string]any)
	if r["step"] != "clf" || r["kind"] != "model" {
		t.Errorf("record = %v", r)
	}
}

func TestListRecords_WithoutStore(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := get(t, s, "/api/v1/records")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
