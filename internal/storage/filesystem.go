package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that FileSystem implements Storage.
var _ Storage = (*FileSystem)(nil)

// FileSystem implements Storage using a single local directory.
// Files are stored at <basePath>/<name>.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem storage rooted at basePath. The
// directory is created on the first Put.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

func (s *FileSystem) path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.basePath, name), nil
}

// Put writes data to disk using atomic write (temp file + rename).
func (s *FileSystem) Put(_ context.Context, name string, data io.Reader) (int64, error) {
	dst, err := s.path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return 0, fmt.Errorf("creating directory %s: %w", s.basePath, err)
	}

	// Dot-prefixed so List never reports a half-written file.
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return 0, fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}
	tmpPath = ""

	return n, nil
}

// Open opens the stored file.
func (s *FileSystem) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("opening file %s: %w", p, err)
	}
	return f, nil
}

// Delete removes the stored file.
func (s *FileSystem) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("removing file %s: %w", p, err)
	}
	return nil
}

// List reads the directory. A directory that was never created is empty.
func (s *FileSystem) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Object{}, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", s.basePath, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		objects = append(objects, Object{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return objects, nil
}
