// Package upload stores uploaded files in a fixed directory under their
// original filenames.
package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for filenames that cannot be stored.
var ErrInvalidName = errors.New("invalid filename")

// ErrNotFound is returned when no stored file matches the name.
var ErrNotFound = errors.New("file not found")

// Store keeps files in a single directory. Names with path components
// are refused so a stored file can never escape the directory.
type Store struct {
	dir string
}

// NewStore creates the directory when missing and returns the store.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// SanitizeName validates an original filename. Names carrying path
// separators or traversal components are rejected outright rather than
// reduced, so a request that tries to escape the store fails without a
// write.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}

	return name, nil
}

// PathFor validates the name and returns the full storage path for it.
func (s *Store) PathFor(name string) (string, error) {
	base, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, base), nil
}

// Resolve returns the storage path of an existing file, or ErrNotFound.
func (s *Store) Resolve(name string) (string, error) {
	path, err := s.PathFor(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", ErrNotFound
	}

	return path, nil
}
