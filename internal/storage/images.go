// Package storage provides the on-disk image store and disk usage helpers.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ImageStore persists raw product images under a single directory. The file's
// absolute path doubles as the item identity across the index and metadata.
type ImageStore struct {
	dir string
}

// NewImageStore creates the store, creating dir if needed.
func NewImageStore(dir string) (*ImageStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("image dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *ImageStore) Dir() string {
	return s.dir
}

// PathFor returns the storage path for filename. Only the base name is used,
// so uploads cannot escape the storage directory.
func (s *ImageStore) PathFor(filename string) string {
	return filepath.Join(s.dir, filepath.Base(filename))
}

// Save writes the image bytes under filename and returns the storage path.
func (s *ImageStore) Save(filename string, r io.Reader) (string, error) {
	path := s.PathFor(filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return path, nil
}

// Remove deletes the stored file for filename. Missing files are not an error.
func (s *ImageStore) Remove(filename string) error {
	err := os.Remove(s.PathFor(filename))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image file: %w", err)
	}
	return nil
}

// Reset deletes every regular file in the storage directory.
func (s *ImageStore) Reset() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read image dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// SaveTemp writes query image bytes to a unique temp file and returns its path
// with a cleanup function. Query images are never part of the catalog.
func SaveTemp(r io.Reader) (string, func(), error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("mitsuke_query_%s.img", uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}
