// Package persist records bootstrap runs in a local SQLite database.
package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kayz/teachcut/internal/report"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Store handles persistence of run history using SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new SQLite-backed persistence store at the given path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// init creates the necessary tables if they don't exist
func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			started_at   TEXT NOT NULL,
			finished_at  TEXT,
			status       TEXT NOT NULL,
			detail       TEXT,
			results      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
	`)
	return err
}

// StartRun records a new run in the running state.
func (s *Store) StartRun(kind Kind) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, string(run.Kind), run.StartedAt.Format(timeLayout), string(run.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome of run and updates it in place.
func (s *Store) FinishRun(run *Run, status Status, detail string, results []report.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.FinishedAt = time.Now().UTC()
	run.Status = status
	run.Detail = detail
	run.Results = append([]report.TestResult(nil), results...)

	res, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, detail = ?, results = ?
		WHERE id = ?
	`, run.FinishedAt.Format(timeLayout), string(status), detail, toJSON(run.Results), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, kind, started_at, finished_at, status, detail, results
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, kind, started_at, finished_at, status, detail, results
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
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

// PruneRuns deletes all but the newest keep runs.
func (s *Store) PruneRuns(keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var kind, status, startedAt string
	var finishedAt, detail, results sql.NullString

	if err := row.Scan(&run.ID, &kind, &startedAt, &finishedAt, &status, &detail, &results); err != nil {
		return nil, err
	}
	run.Kind = Kind(kind)
	run.Status = Status(status)
	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(timeLayout, finishedAt.String); err == nil {
			run.FinishedAt = t
		}
	}
	run.Detail = detail.String
	if results.Valid {
		_ = fromJSON(results.String, &run.Results)
	}
	return &run, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
