// Package artifacts writes rendered reports to their destination.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Store backend names.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Content types for the artifacts judgeroute produces.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

// Store persists a named artifact and returns where it ended up.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// cleanName rejects names that would escape the store root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	clean := path.Clean("/" + filepath.ToSlash(name))[1:]
	if clean == "" || clean != filepath.ToSlash(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return clean, nil
}

// FSStore writes artifacts into a local directory.
type FSStore struct {
	dir string
	mu  sync.Mutex
}

// NewFSStore creates the output directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	//nolint:gosec // G301: reports are meant to be shared
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure output dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Dir returns the output directory.
func (s *FSStore) Dir() string { return s.dir }

// Put writes through a temp file and renames, so readers never see a
// partial document.
func (s *FSStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dst := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	tmp := dst + ".tmp"
	//nolint:gosec // G306: reports are meant to be shared
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}
	return dst, nil
}
