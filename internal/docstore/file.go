package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"herald/internal/services"
)

const fileLockRetry = 25 * time.Millisecond

// FileStore keeps the queue document on local disk. The version token is the
// hex sha256 of the file contents; writers serialise on a sidecar flock.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFile constructs a file-backed store at path.
func NewFile(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Describe implements Describer.
func (s *FileStore) Describe() string { return "file:" + s.path }

// Read returns the file contents and their digest.
func (s *FileStore) Read(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, ErrNotFound
		}
		return Document{}, services.Wrap(services.ErrTransient, "docstore", "file read", s.path, err)
	}
	return Document{Data: data, Version: digest(data)}, nil
}

// Write replaces the file when version matches the digest on disk.
func (s *FileStore) Write(ctx context.Context, data []byte, version string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "docstore", "file write", "create directory", err)
	}
	locked, err := s.lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "docstore", "file write", "acquire lock", err)
	}
	if !locked {
		return "", services.Wrap(services.ErrTransient, "docstore", "file write", "lock not acquired", nil)
	}
	defer func() { _ = s.lock.Unlock() }()

	current, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if version != "" {
			return "", fmt.Errorf("%w: %s no longer exists", ErrVersionConflict, s.path)
		}
	case err != nil:
		return "", services.Wrap(services.ErrTransient, "docstore", "file write", "read current", err)
	case version == "":
		return "", fmt.Errorf("%w: %s already exists", ErrVersionConflict, s.path)
	case digest(current) != version:
		return "", ErrVersionConflict
	}

	if err := writeAtomic(s.path, data); err != nil {
		return "", services.Wrap(services.ErrTransient, "docstore", "file write", s.path, err)
	}
	return digest(data), nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".herald-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
