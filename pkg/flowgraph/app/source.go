package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/config"
)

// Source supplies an application's configuration.
type Source interface {
	// Name identifies the source in error messages.
	Name() string

	// Read returns the configuration bytes.
	Read() ([]byte, error)

	// Path is the absolute file path of a persistent source, or empty.
	Path() string

	// BaseDir is the directory relative module paths resolve against, or
	// empty to use the manager's data directory.
	BaseDir() string
}

type fileSource struct {
	path string
}

// FileSource returns a source reading the file at path. The path is made
// absolute so the source can be persisted and restored.
func FileSource(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	return fileSource{path: abs}, nil
}

func (s fileSource) Name() string    { return s.path }
func (s fileSource) Path() string    { return s.path }
func (s fileSource) BaseDir() string { return filepath.Dir(s.path) }

func (s fileSource) Read() ([]byte, error) {
	return config.ReadFile(s.path)
}

type contentSource struct {
	name string
	data []byte
}

// ContentSource returns a source holding data in memory. Content sources
// are never persisted.
func ContentSource(name string, data []byte) Source {
	return contentSource{name: name, data: append([]byte(nil), data...)}
}

func (s contentSource) Name() string    { return s.name }
func (s contentSource) Path() string    { return "" }
func (s contentSource) BaseDir() string { return "" }

func (s contentSource) Read() ([]byte, error) {
	return append([]byte(nil), s.data...), nil
}

// hasFile reports whether src is backed by a file that is still present.
func hasFile(src Source) bool {
	if src.Path() == "" {
		return false
	}
	_, err := os.Stat(src.Path())
	return err == nil
}
