// Package storage provides the buffer storage collaborator: named byte
// buffers (uploaded fact tables and lookup files) grouped by directory.
// Failures are classified as transient and retried with backoff by callers.
package storage

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openstats-labs/statcube/pkg/core"
)

// BufferStore is the storage collaborator contract.
type BufferStore interface {
	// LoadBuffer reads a named buffer from a directory.
	LoadBuffer(ctx context.Context, name, directory string) ([]byte, error)

	// SaveBuffer writes a named buffer to a directory, creating it if needed.
	SaveBuffer(ctx context.Context, name, directory string, data []byte) error
}

// FileStore implements BufferStore on the local filesystem, rooted at a data
// directory.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore rooted at root.
// If logger is nil, a discard logger is used.
func NewFileStore(root string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{root: root, logger: logger}
}

// LoadBuffer reads a named buffer from a directory.
func (s *FileStore) LoadBuffer(ctx context.Context, name, directory string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, directory, name)
	s.logger.Debug("loading buffer", "path", path)

	data, err := os.ReadFile(path) //nolint:gosec // path is rooted at the configured data directory
	if err != nil {
		return nil, &core.StorageError{Op: "load", Name: name, Err: err}
	}
	return data, nil
}

// SaveBuffer writes a named buffer to a directory.
func (s *FileStore) SaveBuffer(ctx context.Context, name, directory string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, directory)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &core.StorageError{Op: "save", Name: name, Err: err}
	}

	path := filepath.Join(dir, name)
	s.logger.Debug("saving buffer", "path", path, "bytes", len(data))

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return &core.StorageError{Op: "save", Name: name, Err: err}
	}
	return nil
}

// IsNotFound reports whether the error is a missing-buffer failure, which is
// permanent rather than transient.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

var _ BufferStore = (*FileStore)(nil)
