package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/renewbot/internal/types"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		machine_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		days_left INTEGER,
		message TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_machine_id ON runs(machine_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Run is one recorded pipeline execution.
type Run struct {
	ID         string
	MachineID  string
	Outcome    types.Outcome
	DaysLeft   sql.NullInt64
	Message    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunFromReport converts a finished report to a history row.
func RunFromReport(r types.Report) Run {
	run := Run{
		ID:         r.RunID,
		MachineID:  r.MachineID,
		Outcome:    r.Outcome,
		Message:    r.Message,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.HasDays {
		run.DaysLeft = sql.NullInt64{Int64: int64(r.DaysLeft), Valid: true}
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// SaveRun inserts or replaces a run
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, machine_id, outcome, days_left, message, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			days_left = excluded.days_left,
			message = excluded.message,
			error = excluded.error,
			finished_at = excluded.finished_at
	`, r.ID, r.MachineID, string(r.Outcome), r.DaysLeft, r.Message, r.Error,
		r.StartedAt.UTC(), r.FinishedAt.UTC())

	return err
}

// Record saves a finished report. It satisfies the app's history sink.
func (s *Store) Record(ctx context.Context, r types.Report) error {
	return s.SaveRun(ctx, RunFromReport(r))
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine_id, outcome, days_left, message, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var outcome string
		var message, errText sql.NullString

		err := rows.Scan(&r.ID, &r.MachineID, &outcome, &r.DaysLeft, &message, &errText,
			&r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, err
		}
		r.Outcome = types.Outcome(outcome)
		r.Message = message.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the newest run for machineID, or nil if there is none.
func (s *Store) LastRun(ctx context.Context, machineID string) (*Run, error) {
	var r Run
	var outcome string
	var message, errText sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, machine_id, outcome, days_left, message, error, started_at, finished_at
		FROM runs
		WHERE machine_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, machineID).Scan(&r.ID, &r.MachineID, &outcome, &r.DaysLeft, &message, &errText,
		&r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Outcome = types.Outcome(outcome)
	r.Message = message.String
	r.Error = errText.String
	return &r, nil
}
