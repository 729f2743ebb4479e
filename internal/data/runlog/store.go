package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName   = "sqlite"
	maxAttempts  = 5
	DefaultLimit = 20
)

// Run is one promoted snapshot.
type Run struct {
	RunID           string
	Version         int
	Mode            string
	StartedAt       time.Time
	FinishedAt      time.Time
	Files           int
	Reextracted     int
	Failed          int
	Skipped         int
	Nodes           int
	Edges           int
	Cycles          int
	StaleCandidates int
	SnapshotDir     string
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("run log path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("run log path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run log directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when watch mode and a manual
	// run share the file.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite run log %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite run log %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.RunID == "" {
		return fmt.Errorf("record run: run id must not be empty")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	query := `
INSERT INTO runs (
  run_id, snapshot_version, mode, started_at_utc, finished_at_utc, file_count,
  reextracted_count, failed_count, skipped_count, node_count, edge_count,
  cycle_count, stale_count, snapshot_dir
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  snapshot_version=excluded.snapshot_version,
  mode=excluded.mode,
  started_at_utc=excluded.started_at_utc,
  finished_at_utc=excluded.finished_at_utc,
  file_count=excluded.file_count,
  reextracted_count=excluded.reextracted_count,
  failed_count=excluded.failed_count,
  skipped_count=excluded.skipped_count,
  node_count=excluded.node_count,
  edge_count=excluded.edge_count,
  cycle_count=excluded.cycle_count,
  stale_count=excluded.stale_count,
  snapshot_dir=excluded.snapshot_dir
`
	return s.withRetry("record run", func() error {
		_, err := s.db.ExecContext(ctx,
			query,
			run.RunID,
			run.Version,
			run.Mode,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.FinishedAt.UTC().Format(time.RFC3339Nano),
			run.Files,
			run.Reextracted,
			run.Failed,
			run.Skipped,
			run.Nodes,
			run.Edges,
			run.Cycles,
			run.StaleCandidates,
			run.SnapshotDir,
		)
		return err
	})
}

// Recent returns up to limit runs, newest snapshot version first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
SELECT
  run_id, snapshot_version, mode, started_at_utc, finished_at_utc, file_count,
  reextracted_count, failed_count, skipped_count, node_count, edge_count,
  cycle_count, stale_count, snapshot_dir
FROM runs
ORDER BY snapshot_version DESC, finished_at_utc DESC
LIMIT ?
`
	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, limit)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			startedRaw  string
			finishedRaw string
			run         Run
		)
		if err := rows.Scan(
			&run.RunID,
			&run.Version,
			&run.Mode,
			&startedRaw,
			&finishedRaw,
			&run.Files,
			&run.Reextracted,
			&run.Failed,
			&run.Skipped,
			&run.Nodes,
			&run.Edges,
			&run.Cycles,
			&run.StaleCandidates,
			&run.SnapshotDir,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		started, err := time.Parse(time.RFC3339Nano, startedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse start timestamp %q: %w", startedRaw, err)
		}
		finished, err := time.Parse(time.RFC3339Nano, finishedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse finish timestamp %q: %w", finishedRaw, err)
		}
		run.StartedAt = started.UTC()
		run.FinishedAt = finished.UTC()

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
