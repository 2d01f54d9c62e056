package testsupport

import (
	"context"
	"strconv"
	"sync"

	"herald/internal/docstore"
)

// MemoryStore is an in-memory docstore.Store with hooks for failure injection.
type MemoryStore struct {
	mu       sync.Mutex
	data     []byte
	revision int
	exists   bool

	// ReadErr, when set, is returned by Read.
	ReadErr error
	// WriteErr, when set, is returned by Write without touching the document.
	WriteErr error
	// BeforeWrite runs before each conditional check, outside the lock, so a
	// test can simulate a concurrent writer.
	BeforeWrite func(s *MemoryStore)

	Reads  int
	Writes int
}

// NewMemoryStore returns a store holding data. A nil data leaves the document absent.
func NewMemoryStore(data []byte) *MemoryStore {
	s := &MemoryStore{}
	if data != nil {
		s.data = append([]byte(nil), data...)
		s.revision = 1
		s.exists = true
	}
	return s
}

// Read implements docstore.Store.
func (s *MemoryStore) Read(ctx context.Context) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.ReadErr != nil {
		return docstore.Document{}, s.ReadErr
	}
	if !s.exists {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{Data: append([]byte(nil), s.data...), Version: s.version()}, nil
}

// Write implements docstore.Store.
func (s *MemoryStore) Write(ctx context.Context, data []byte, version string) (string, error) {
	if hook := s.BeforeWrite; hook != nil {
		hook(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return "", s.WriteErr
	}
	switch {
	case !s.exists && version != "":
		return "", docstore.ErrVersionConflict
	case s.exists && version != s.version():
		return "", docstore.ErrVersionConflict
	}
	s.data = append([]byte(nil), data...)
	s.revision++
	s.exists = true
	s.Writes++
	return s.version(), nil
}

// Replace overwrites the document as an external writer would, bumping the version.
func (s *MemoryStore) Replace(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.revision++
	s.exists = true
}

// Data returns a copy of the current document.
func (s *MemoryStore) Data() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

// Version returns the current version token.
func (s *MemoryStore) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version()
}

func (s *MemoryStore) version() string {
	if !s.exists {
		return ""
	}
	return "rev-" + strconv.Itoa(s.revision)
}
