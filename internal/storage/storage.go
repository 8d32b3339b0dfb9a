package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned when the named object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidName is returned for names that could escape the store.
	ErrInvalidName = errors.New("invalid object name")
)

// Object describes one stored file.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage defines the interface for upload blob storage. Objects live in a
// single flat namespace.
type Storage interface {
	// Put writes data under name and returns the number of bytes written.
	Put(ctx context.Context, name string, data io.Reader) (int64, error)

	// Open returns a ReadCloser for the stored data.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the object. Missing objects return ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns every stored object in no particular order.
	List(ctx context.Context) ([]Object, error)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidName reports whether name is a single safe path segment.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && name != "." && name != ".."
}
