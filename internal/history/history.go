package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"herald/internal/publisher"
)

//go:embed schema/runs.sql
var runsSchema string

const schemaVersion = 1

// ErrSchemaMismatch indicates the history database was written by another
// schema version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

// Entry is one recorded run.
type Entry struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	DryRun      bool
	QueueSize   int
	DueUnits    int
	Published   int
	FailedUnits int
	Pending     int
	Wrote       bool
	Retried     bool
	Error       string
	Summary     publisher.Summary
}

// Store is the run log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if exists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, runsSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Record stores a run summary. Recording the same run twice replaces it.
func (s *Store) Record(ctx context.Context, summary publisher.Summary) error {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	var runErr sql.NullString
	if summary.Error != "" {
		runErr = sql.NullString{String: summary.Error, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, started_at, duration_ms, dry_run, queue_size, due_units, published, failed_units, pending, wrote, retried, error, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.Duration.Milliseconds(),
		boolInt(summary.DryRun),
		summary.QueueSize,
		summary.DueUnits,
		summary.Published,
		summary.FailedUnits,
		summary.Pending,
		boolInt(summary.Wrote),
		boolInt(summary.Retried),
		runErr,
		string(encoded),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, started_at, duration_ms, dry_run, queue_size, due_units,
		published, failed_units, pending, wrote, retried, error, summary_json
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry                  Entry
			startedAt, summaryJSON string
			durationMS             int64
			dryRun, wrote, retried int
			runErr                 sql.NullString
		)
		if err := rows.Scan(&entry.RunID, &startedAt, &durationMS, &dryRun, &entry.QueueSize, &entry.DueUnits,
			&entry.Published, &entry.FailedUnits, &entry.Pending, &wrote, &retried, &runErr, &summaryJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entry.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.DryRun = dryRun != 0
		entry.Wrote = wrote != 0
		entry.Retried = retried != 0
		entry.Error = runErr.String
		if err := json.Unmarshal([]byte(summaryJSON), &entry.Summary); err != nil {
			return nil, fmt.Errorf("decode summary for run %s: %w", entry.RunID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes runs that started before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
