package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"herald/internal/services"
)

//go:embed schema/documents.sql
var documentsSchema string

// sqliteSchemaVersion is bumped when schema/documents.sql changes.
const sqliteSchemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteStore keeps the document in one row of a sqlite table. The version
// token is the row's revision counter.
type SQLiteStore struct {
	db   *sql.DB
	path string
	name string
}

// OpenSQLite opens (creating if needed) the database at path and binds the
// store to the document called name.
func OpenSQLite(path, name string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure sqlite directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps the conditional update and its read on one
	// sqlite handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db, path: path, name: name}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Describe implements Describer.
func (s *SQLiteStore) Describe() string { return "sqlite:" + s.path + "#" + s.name }

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, documentsSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", sqliteSchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != sqliteSchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, sqliteSchemaVersion, s.path)
	}
	return nil
}

// Read returns the stored document and its revision.
func (s *SQLiteStore) Read(ctx context.Context) (Document, error) {
	var (
		data     []byte
		revision int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, revision FROM documents WHERE name = ?", s.name,
	).Scan(&data, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, services.Wrap(services.ErrTransient, "docstore", "sqlite read", s.name, err)
	}
	return Document{Data: data, Version: strconv.FormatInt(revision, 10)}, nil
}

// Write stores data when version equals the current revision.
func (s *SQLiteStore) Write(ctx context.Context, data []byte, version string) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if version == "" {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO documents (name, data, revision, updated_at) VALUES (?, ?, 1, ?)
             ON CONFLICT(name) DO NOTHING`,
			s.name, data, now,
		)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "docstore", "sqlite create", s.name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", fmt.Errorf("%w: %s already exists", ErrVersionConflict, s.name)
		}
		return "1", nil
	}

	expected, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed revision %q", ErrVersionConflict, version)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = ?, revision = revision + 1, updated_at = ?
         WHERE name = ? AND revision = ?`,
		data, now, s.name, expected,
	)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "docstore", "sqlite write", s.name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrVersionConflict
	}
	return strconv.FormatInt(expected+1, 10), nil
}
