package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultStateFile is the name of the file state store inside the data
// directory.
const DefaultStateFile = ".flowhost"

// StateEntry records where a persisted application's source lives.
type StateEntry struct {
	Identity string
	Path     string
}

// StateStore persists the set of deployed file sources across restarts.
type StateStore interface {
	// Load returns the persisted entries. A store that has never been
	// saved returns no entries and no error.
	Load(ctx context.Context) ([]StateEntry, error)

	// Save replaces the persisted entries.
	Save(ctx context.Context, entries []StateEntry) error

	// Close releases the store's resources.
	Close() error
}

// FileStateStore keeps state in a text file with one identity:path line
// per application.
type FileStateStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStateStore creates a store backed by the file at path.
func NewFileStateStore(path string, logger *slog.Logger) *FileStateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStateStore{path: path, logger: logger}
}

// Path returns the state file path.
func (s *FileStateStore) Path() string { return s.path }

// Load implements StateStore. Malformed lines are logged and skipped.
func (s *FileStateStore) Load(_ context.Context) ([]StateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var entries []StateEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		identity, path, ok := strings.Cut(line, ":")
		if !ok || identity == "" || path == "" {
			s.logger.Warn("skipping malformed state line", "file", s.path, "line", n)
			continue
		}
		entries = append(entries, StateEntry{Identity: identity, Path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	return entries, nil
}

// Save implements StateStore. The file is replaced atomically.
func (s *FileStateStore) Save(_ context.Context, entries []StateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s:%s\n", e.Identity, e.Path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Close implements StateStore.
func (s *FileStateStore) Close() error { return nil }
