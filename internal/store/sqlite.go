package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gwlsn/rawray/internal/batch"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	destination_mode TEXT NOT NULL,
	destination_dir TEXT,
	format TEXT NOT NULL,
	quality INTEGER NOT NULL,
	delete_originals INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT,
	success_count INTEGER NOT NULL DEFAULT 0,
	bytes_out INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	input_path TEXT NOT NULL,
	output_path TEXT,
	status TEXT NOT NULL,
	fail_kind TEXT,
	error TEXT,
	warning TEXT,
	output_size INTEGER,
	deleted INTEGER NOT NULL DEFAULT 0,
	started_at TEXT,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stats_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_items_run ON items(run_id, position);
`

// SQLiteStore implements batch.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
// The database file is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency between the worker and API reads
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
		_, err = db.Exec(`
			INSERT OR IGNORE INTO stats_metadata (key, value) VALUES
				('session_converted', '0'),
				('lifetime_converted', '0'),
				('session_bytes', '0'),
				('lifetime_bytes', '0')
		`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init stats metadata: %w", err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// SaveRun persists a run and its items in one transaction.
func (s *SQLiteStore) SaveRun(run *batch.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs (
			id, destination_mode, destination_dir, format, quality, delete_originals,
			status, error, success_count, bytes_out, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, string(run.Destination.Mode), nullString(run.Destination.Dir),
		run.Format, run.Quality, boolToInt(run.DeleteOriginals),
		string(run.Status), nullString(run.Error), run.SuccessCount, run.BytesOut,
		formatTime(run.CreatedAt), formatTimePtr(run.StartedAt), formatTimePtr(run.CompletedAt),
	)
	if err != nil {
		return err
	}

	// Items are replaced wholesale; a run has few of them and this keeps
	// positions authoritative.
	if _, err := tx.Exec("DELETE FROM items WHERE run_id = ?", run.ID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO items (
			id, run_id, position, input_path, output_path, status, fail_kind,
			error, warning, output_size, deleted, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, item := range run.Items {
		_, err := stmt.Exec(
			item.ID, run.ID, pos, item.InputPath, nullString(item.OutputPath),
			string(item.Status), nullString(string(item.FailKind)),
			nullString(item.Error), nullString(item.Warning),
			nullInt64(item.OutputSize), boolToInt(item.Deleted),
			formatTimePtr(item.StartedAt), formatTimePtr(item.CompletedAt),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run with its items. Returns nil if not found.
func (s *SQLiteStore) GetRun(id string) (*batch.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, destination_mode, destination_dir, format, quality, delete_originals,
			status, error, success_count, bytes_out, created_at, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadItems(run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetAllRuns returns all runs with items, oldest first.
func (s *SQLiteStore) GetAllRuns() ([]*batch.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, destination_mode, destination_dir, format, quality, delete_originals,
			status, error, success_count, bytes_out, created_at, started_at, completed_at
		FROM runs ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*batch.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, run := range runs {
		if err := s.loadItems(run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// DeleteRun removes a run; its items cascade.
func (s *SQLiteStore) DeleteRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	return err
}

// MarkInterrupted fails every run (and its in-flight items) left running
// by an unclean shutdown. Pending runs are untouched so they restart.
// Returns the number of runs affected.
func (s *SQLiteStore) MarkInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	const reason = "interrupted by shutdown"

	_, err = tx.Exec(`
		UPDATE items SET status = 'failed', error = ?
		WHERE status = 'running' AND run_id IN (SELECT id FROM runs WHERE status = 'running')
	`, reason)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
		UPDATE items SET status = 'skipped'
		WHERE status = 'pending' AND run_id IN (SELECT id FROM runs WHERE status = 'running')
	`)
	if err != nil {
		return 0, err
	}

	result, err := tx.Exec(`
		UPDATE runs SET status = 'failed', error = ?, completed_at = ?
		WHERE status = 'running'
	`, reason, formatTime(time.Now()))
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(count), nil
}

// AddConverted increments the session and lifetime counters after a run
// finishes with successes.
func (s *SQLiteStore) AddConverted(files int, bytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE stats_metadata
		SET value = CAST((CAST(value AS INTEGER) + ?) AS TEXT),
		    updated_at = datetime('now')
		WHERE key IN ('session_converted', 'lifetime_converted')
	`, files)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		UPDATE stats_metadata
		SET value = CAST((CAST(value AS INTEGER) + ?) AS TEXT),
		    updated_at = datetime('now')
		WHERE key IN ('session_bytes', 'lifetime_bytes')
	`, bytes)
	return err
}

// ResetSession zeroes the session counters.
func (s *SQLiteStore) ResetSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE stats_metadata SET value = '0', updated_at = datetime('now')
		WHERE key IN ('session_converted', 'session_bytes')
	`)
	return err
}

// SessionLifetimeStats returns the session and lifetime counters.
// This implements the batch.StoreWithStats interface.
func (s *SQLiteStore) SessionLifetimeStats() (sessionFiles, lifetimeFiles, sessionBytes, lifetimeBytes int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionFiles, err = s.counter("session_converted")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	lifetimeFiles, err = s.counter("lifetime_converted")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	sessionBytes, err = s.counter("session_bytes")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	lifetimeBytes, err = s.counter("lifetime_bytes")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return sessionFiles, lifetimeFiles, sessionBytes, lifetimeBytes, nil
}

func (s *SQLiteStore) counter(key string) (int64, error) {
	var str string
	err := s.db.QueryRow(`SELECT value FROM stats_metadata WHERE key = ?`, key).Scan(&str)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	n, _ := strconv.ParseInt(str, 10, 64)
	return n, nil
}

// loadItems attaches a run's items in position order. Called with lock held.
func (s *SQLiteStore) loadItems(run *batch.Run) error {
	rows, err := s.db.Query(`
		SELECT id, input_path, output_path, status, fail_kind, error, warning,
			output_size, deleted, started_at, completed_at
		FROM items WHERE run_id = ? ORDER BY position ASC
	`, run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	run.Items = nil
	for rows.Next() {
		var item batch.Item
		var outputPath, failKind, errStr, warning sql.NullString
		var outputSize sql.NullInt64
		var deleted int
		var startedAt, completedAt sql.NullString

		err := rows.Scan(
			&item.ID, &item.InputPath, &outputPath, &item.Status, &failKind,
			&errStr, &warning, &outputSize, &deleted, &startedAt, &completedAt,
		)
		if err != nil {
			return err
		}

		item.OutputPath = outputPath.String
		item.FailKind = batch.FailureKind(failKind.String)
		item.Error = errStr.String
		item.Warning = warning.String
		item.OutputSize = outputSize.Int64
		item.Deleted = deleted != 0
		item.StartedAt = parseTime(startedAt.String)
		item.CompletedAt = parseTime(completedAt.String)

		run.Items = append(run.Items, &item)
	}
	return rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Helper functions for scanning rows

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*batch.Run, error) {
	var run batch.Run
	var destMode, status string
	var destDir, errStr sql.NullString
	var deleteOriginals int
	var createdAt, startedAt, completedAt sql.NullString

	err := row.Scan(
		&run.ID, &destMode, &destDir, &run.Format, &run.Quality, &deleteOriginals,
		&status, &errStr, &run.SuccessCount, &run.BytesOut,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Destination = batch.Destination{Mode: batch.DestMode(destMode), Dir: destDir.String}
	run.DeleteOriginals = deleteOriginals != 0
	run.Status = batch.Status(status)
	run.Error = errStr.String
	run.CreatedAt = parseTime(createdAt.String)
	run.StartedAt = parseTime(startedAt.String)
	run.CompletedAt = parseTime(completedAt.String)

	return &run, nil
}

// Helper functions for SQL values

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(i int64) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
