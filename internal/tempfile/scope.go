// Package tempfile tracks temporary files created while serving a request so they can be
// released together.
package tempfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Scope owns a set of temporary files. Close removes every file still tracked.
type Scope struct {
	dir    string
	mu     sync.Mutex
	paths  []string
	closed bool
}

// NewScope creates a scope whose files are created in dir (os.TempDir when empty).
func NewScope(dir string) *Scope {
	return &Scope{dir: dir}
}

// Dir returns the directory new files are created in.
func (s *Scope) Dir() string {
	return s.dir
}

// Create creates a new empty temporary file tracked by the scope.
// pattern follows os.CreateTemp semantics.
func (s *Scope) Create(pattern string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("tempfile scope is closed")
	}

	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	s.paths = append(s.paths, f.Name())
	activeFiles.Inc()
	return f, nil
}

// WriteFrom copies r into a new tracked temporary file and returns its path.
func (s *Scope) WriteFrom(pattern string, r io.Reader) (string, error) {
	f, err := s.Create(pattern)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), nil
}

// Track adopts a file created elsewhere (e.g. a cropped artifact) into the scope.
func (s *Scope) Track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		removeFile(path)
		return
	}
	s.paths = append(s.paths, path)
	activeFiles.Inc()
}

// Len returns the number of files currently tracked.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Close removes all tracked files. It is safe to call more than once.
func (s *Scope) Close() error {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		activeFiles.Dec()
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove temp file", "path", path, "error", err)
	}
}
