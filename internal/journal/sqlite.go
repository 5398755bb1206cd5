// Package journal records pipeline runs and per-step evaluation events in
// SQLite, and serves them back for the CLI and the HTTP API. The journal
// is observational: a journal write failure never aborts a pipeline walk.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/stepflow/pkg/pipeline"

	_ "modernc.org/sqlite"
)

// RunRecord is one top-level engine call.
type RunRecord struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"` // fit_transform or transform
	Target     string     `json:"target"`
	Status     string     `json:"status"` // running, succeeded, failed
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepEvent is one step evaluation within a run.
type StepEvent struct {
	RunID      string    `json:"run_id"`
	Step       string    `json:"step"`
	Action     string    `json:"action"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// timeFormat is fixed-width so stored timestamps compare correctly as
// strings (ORDER BY started_at). RFC3339Nano drops trailing zeros and
// does not.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJournal implements pipeline.Recorder backed by SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal database at dbPath and runs
// migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL mode for concurrent readers (the serve command reads while a
	// run writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	j := &SQLiteJournal{
		db:     db,
		logger: logger.With("component", "journal"),
	}
	if err := j.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// --- pipeline.Recorder ---

func (j *SQLiteJournal) RunStarted(ctx context.Context, runID, mode, target string) error {
	j.logger.Debug("sql", "op", "insert", "table", "runs", "id", runID)

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, target, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		runID, mode, target, time.Now().UTC().Format(timeFormat))
	return err
}

func (j *SQLiteJournal) RunFinished(ctx context.Context, runID string, runErr error) error {
	j.logger.Debug("sql", "op", "update", "table", "runs", "id", runID)

	status := "succeeded"
	msg := ""
	if runErr != nil {
		status = "failed"
		msg = runErr.Error()
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, time.Now().UTC().Format(timeFormat), runID)
	return err
}

func (j *SQLiteJournal) StepEvent(ctx context.Context, runID, step string, action pipeline.Action, elapsed time.Duration) error {
	j.logger.Debug("sql", "op", "insert", "table", "step_events", "run", runID, "step", step)

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO step_events (run_id, step, action, duration_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, step, string(action), elapsed.Milliseconds(),
		time.Now().UTC().Format(timeFormat))
	return err
}

// --- read side ---

// ListRuns returns the most recent runs, newest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	j.logger.Debug("sql", "op", "select", "table", "runs")

	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, mode, target, status, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run, or nil if it does not exist.
func (j *SQLiteJournal) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	j.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, mode, target, status, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRun(rows)
}

// ListEvents returns the step events of a run in evaluation order.
func (j *SQLiteJournal) ListEvents(ctx context.Context, runID string) ([]*StepEvent, error) {
	j.logger.Debug("sql", "op", "select", "table", "step_events", "run", runID)

	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, step, action, duration_ms, created_at
		 FROM step_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StepEvent
	for rows.Next() {
		var ev StepEvent
		var createdAt string
		if err := rows.Scan(&ev.RunID, &ev.Step, &ev.Action, &ev.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func scanRun(rows *sql.Rows) (*RunRecord, error) {
	var r RunRecord
	var startedAt string
	var finishedAt sql.NullString
	if err := rows.Scan(&r.ID, &r.Mode, &r.Target, &r.Status, &r.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		r.FinishedAt = &t
	}
	return &r, nil
}
