// Package filestore implements the DocumentStore port on the local filesystem.
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DocumentStore = (*Store)(nil)

// Store writes documents into a single directory. Writes are atomic: a reader
// never observes a partially written PDF, and re-saving a bill replaces it.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory documents are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes content under filename and returns the absolute path.
// Any failure wraps model.ErrFileWrite.
func (s *Store) Save(ctx context.Context, filename string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("invalid file name %q: %w", filename, model.ErrFileWrite)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating %s: %v: %w", s.dir, err, model.ErrFileWrite)
	}

	path, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("resolving path for %s: %v: %w", name, err, model.ErrFileWrite)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("writing %s: %v: %w", path, err, model.ErrFileWrite)
	}
	return path, nil
}
