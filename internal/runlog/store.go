// Package runlog persists migration run records so execute-mode runs
// are auditable and safely re-runnable. Dry runs are not recorded.
package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"db-recon/internal/differ"
	"db-recon/internal/endpoint"
)

// Run statuses. A run left in StatusRunning by a crash is reported as
// incomplete, never as success.
const (
	StatusRunning    = "running"
	StatusSuccess    = "success"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
)

// Run is one persisted migration run.
type Run struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Source    endpoint.Endpoint `json:"source"`
	Target    endpoint.Endpoint `json:"target"`
	KeyColumn string            `json:"key_column"`
	Ranges    []differ.KeyRange `json:"ranges"`
	DryRun    bool              `json:"dry_run"`
	Status    string            `json:"status"`

	PlannedCount  int64 `json:"planned_count"`
	InsertedCount int64 `json:"inserted_count"`
	SkippedCount  int64 `json:"skipped_conflicts_count"`
	ErrorsCount   int64 `json:"errors_count"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Line is one batch log entry of a run.
type Line struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Store keeps runs in a local SQLite database.
type Store struct {
	db *sql.DB
}

// DefaultPath places the run log under the user config directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "db-recon")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "runlog.db"), nil
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log store: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	ddl := `
    CREATE TABLE IF NOT EXISTS migration_runs (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL,
        source_json TEXT NOT NULL,
        target_json TEXT NOT NULL,
        key_column TEXT NOT NULL,
        ranges_json TEXT NOT NULL,
        dry_run INTEGER NOT NULL,
        status TEXT NOT NULL,
        planned INTEGER NOT NULL DEFAULT 0,
        inserted INTEGER NOT NULL DEFAULT 0,
        skipped INTEGER NOT NULL DEFAULT 0,
        errored INTEGER NOT NULL DEFAULT 0,
        finished_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS migration_run_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        at DATETIME NOT NULL,
        line TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON migration_run_logs(run_id);
    `
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create run log tables: %w", err)
	}
	return nil
}

// Create persists a new run with StatusRunning before any batch starts,
// so a crash mid-run still leaves an accurate partial record.
func (s *Store) Create(run *Run) (string, error) {
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC()
	run.Status = StatusRunning

	sourceJSON, err := json.Marshal(run.Source)
	if err != nil {
		return "", err
	}
	targetJSON, err := json.Marshal(run.Target)
	if err != nil {
		return "", err
	}
	rangesJSON, err := json.Marshal(run.Ranges)
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec(`INSERT INTO migration_runs
        (id, created_at, source_json, target_json, key_column, ranges_json, dry_run, status, planned)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, string(sourceJSON), string(targetJSON),
		run.KeyColumn, string(rangesJSON), run.DryRun, run.Status, run.PlannedCount)
	if err != nil {
		return "", fmt.Errorf("failed to create run record: %w", err)
	}
	return run.ID, nil
}

// UpdateCounts refreshes the running counters after a batch commits.
func (s *Store) UpdateCounts(id string, inserted, skipped, errored int64) error {
	_, err := s.db.Exec(`UPDATE migration_runs SET inserted = ?, skipped = ?, errored = ? WHERE id = ?`,
		inserted, skipped, errored, id)
	if err != nil {
		return fmt.Errorf("failed to update run counts: %w", err)
	}
	return nil
}

// AppendLine records one batch log line.
func (s *Store) AppendLine(id, text string) error {
	_, err := s.db.Exec(`INSERT INTO migration_run_logs (run_id, at, line) VALUES (?, ?, ?)`,
		id, time.Now().UTC(), text)
	if err != nil {
		return fmt.Errorf("failed to append run log line: %w", err)
	}
	return nil
}

// Finalize freezes the run's terminal status.
func (s *Store) Finalize(id, status string) error {
	_, err := s.db.Exec(`UPDATE migration_runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	return nil
}

// Get loads one run and its batch log lines.
func (s *Store) Get(id string) (*Run, []Line, error) {
	row := s.db.QueryRow(`SELECT id, created_at, source_json, target_json, key_column,
        ranges_json, dry_run, status, planned, inserted, skipped, errored, finished_at
        FROM migration_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("migration run %q not found", id)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(`SELECT at, line FROM migration_run_logs WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.At, &l.Text); err != nil {
			return nil, nil, err
		}
		lines = append(lines, l)
	}
	return run, lines, rows.Err()
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, created_at, source_json, target_json, key_column,
        ranges_json, dry_run, status, planned, inserted, skipped, errored, finished_at
        FROM migration_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var sourceJSON, targetJSON, rangesJSON string
	var finishedAt sql.NullTime
	err := sc.Scan(&run.ID, &run.CreatedAt, &sourceJSON, &targetJSON, &run.KeyColumn,
		&rangesJSON, &run.DryRun, &run.Status,
		&run.PlannedCount, &run.InsertedCount, &run.SkippedCount, &run.ErrorsCount, &finishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourceJSON), &run.Source); err != nil {
		return nil, fmt.Errorf("corrupt source descriptor on run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(targetJSON), &run.Target); err != nil {
		return nil, fmt.Errorf("corrupt target descriptor on run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(rangesJSON), &run.Ranges); err != nil {
		return nil, fmt.Errorf("corrupt range list on run %s: %w", run.ID, err)
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	// A crash leaves the record in running; readers see it as incomplete.
	if run.Status == StatusRunning && run.FinishedAt == nil {
		run.Status = StatusIncomplete
	}
	return &run, nil
}
