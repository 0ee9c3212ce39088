// Package history records launch results in a SQLite database so past runs
// of an app can be listed after ecolaunch has exited.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/psantana5/ecolaunch/internal/report"
)

// Store is a SQLite-backed run history
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the history database at dbPath
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	// WAL so `history` can read while `start` writes
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		app TEXT NOT NULL,
		pid INTEGER NOT NULL,
		argv TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL,
		exit_code INTEGER NOT NULL,
		exit_reason TEXT NOT NULL,
		signal TEXT,
		peak_rss_bytes INTEGER DEFAULT 0,
		events TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_app_start ON runs(app, start_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores a finished run
func (s *Store) Record(r *report.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	argv, err := json.Marshal(r.Argv)
	if err != nil {
		return fmt.Errorf("failed to marshal argv: %w", err)
	}
	events, err := json.Marshal(r.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO runs
		(id, app, pid, argv, start_time, end_time, duration_ns, exit_code, exit_reason,
		 signal, peak_rss_bytes, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.App, r.PID, string(argv), r.StartTime, r.EndTime, int64(r.Duration),
		r.ExitCode, string(r.ExitReason), r.Signal, int64(r.PeakRSSBytes), string(events))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

// List returns the most recent runs first. An empty app lists every app;
// limit <= 0 means no limit.
func (s *Store) List(app string, limit int) ([]*report.Result, error) {
	query := `
		SELECT id, app, pid, argv, start_time, end_time, duration_ns, exit_code, exit_reason,
		       signal, peak_rss_bytes, events
		FROM runs`
	var args []interface{}
	if app != "" {
		query += " WHERE app = ?"
		args = append(args, app)
	}
	query += " ORDER BY start_time DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []*report.Result
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanRun(rows *sql.Rows) (*report.Result, error) {
	var (
		r                  report.Result
		argvJSON, reason   string
		eventsJSON, signal sql.NullString
		durationNS, peak   int64
	)

	err := rows.Scan(&r.RunID, &r.App, &r.PID, &argvJSON, &r.StartTime, &r.EndTime,
		&durationNS, &r.ExitCode, &reason, &signal, &peak, &eventsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if err := json.Unmarshal([]byte(argvJSON), &r.Argv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal argv: %w", err)
	}
	if eventsJSON.Valid && eventsJSON.String != "" {
		if err := json.Unmarshal([]byte(eventsJSON.String), &r.Events); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}
	}

	r.Duration = time.Duration(durationNS)
	r.ExitReason = report.ExitReason(reason)
	r.Signal = signal.String
	r.PeakRSSBytes = uint64(peak)
	return &r, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
