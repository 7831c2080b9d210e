// Package storage keeps uploaded bike images on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrExists = errors.New("file already exists")

type Storage struct {
	validator *PathValidator
}

func New(root string) (*Storage, error) {
	validator, err := NewPathValidator(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(validator.RootAbs(), 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}

	return &Storage{validator: validator}, nil
}

func (s *Storage) RootAbs() string {
	return s.validator.RootAbs()
}

func (s *Storage) Resolve(clientPath string) (string, error) {
	return s.validator.ResolvePath(clientPath)
}

// Write copies r into a new file at clientPath and returns the number of
// bytes written. Existing files are never overwritten.
func (s *Storage) Write(clientPath string, r io.Reader) (int64, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", err)
	}

	file, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return 0, fmt.Errorf("write %q: %w", clientPath, ErrExists)
	}
	if err != nil {
		return 0, fmt.Errorf("create %q: %w", clientPath, err)
	}

	written, copyErr := io.CopyBuffer(file, r, make([]byte, 32*1024))
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(resolved)
		return 0, fmt.Errorf("write %q: %w", clientPath, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(resolved)
		return 0, fmt.Errorf("close %q: %w", clientPath, closeErr)
	}

	return written, nil
}

// Open returns a regular file for reading. Directories report fs.ErrNotExist.
func (s *Storage) Open(clientPath string) (*os.File, fs.FileInfo, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, nil, fs.ErrNotExist
	}

	return file, info, nil
}

func (s *Storage) Remove(clientPath string) error {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return err
	}

	if err := os.Remove(resolved); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", clientPath, err)
	}
	return nil
}
