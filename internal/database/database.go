package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/leca/studio-images/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Database defines the persistence interface for records and settings.
type Database interface {
	// Records
	GetRecord(ctx context.Context, c model.Collection, id string) (*model.Record, error)
	ListRecords(ctx context.Context, c model.Collection) ([]*model.Record, error)
	UpsertRecord(ctx context.Context, r *model.Record) error
	// ReplaceURL sets url to newRaw only while it still holds oldRaw and
	// reports whether a row changed.
	ReplaceURL(ctx context.Context, c model.Collection, id, oldRaw, newRaw string, at time.Time) (bool, error)
	DeleteRecord(ctx context.Context, c model.Collection, id string) error

	// Settings
	CacheVersion(ctx context.Context) (int64, error)
	SetCacheVersion(ctx context.Context, v int64) error

	Close() error
}

// Open picks a backend from the URL: postgres:// and postgresql:// go to
// Postgres, anything else is treated as an SQLite path or DSN.
func Open(url string) (Database, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return NewPostgresDB(url)
	}
	return NewSQLiteDB(url)
}

const cacheVersionKey = "cache_version"
