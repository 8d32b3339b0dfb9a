package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leca/studio-images/internal/model"
	"github.com/leca/studio-images/internal/resolve"
	_ "modernc.org/sqlite"
)

var _ Database = (*SQLiteDB)(nil)

// SQLiteDB implements Database backed by SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) an SQLite database at dsn and runs migrations.
// For a plain file path the parent directory is created first.
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	if dir := sqliteDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// sqliteDir returns the directory holding a file DSN, or "" for in-memory
// databases, file: URIs and paths in the working directory.
func sqliteDir(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

const recordColumns = `collection, id, url, title, subtitle, category, description, position, created_at, updated_at`

func (s *SQLiteDB) GetRecord(ctx context.Context, c model.Collection, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? AND id = ?`,
		string(c), id,
	)
	return scanRecord(row)
}

// ListRecords orders carousel slides by position and everything else
// newest first.
func (s *SQLiteDB) ListRecords(ctx context.Context, c model.Collection) ([]*model.Record, error) {
	order := "created_at DESC, id ASC"
	if c == model.CollectionCarousel {
		order = "position ASC, id ASC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = ? ORDER BY `+order,
		string(c),
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []*model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteDB) UpsertRecord(ctx context.Context, r *model.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			subtitle = excluded.subtitle,
			category = excluded.category,
			description = excluded.description,
			position = excluded.position,
			updated_at = excluded.updated_at`,
		string(r.Collection), r.ID, r.URL.Raw, r.Title, r.Subtitle, r.Category, r.Description, r.Position,
		r.CreatedAt.UTC().Format(time.RFC3339Nano), r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ReplaceURL(ctx context.Context, c model.Collection, id, oldRaw, newRaw string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET url = ?, updated_at = ? WHERE collection = ? AND id = ? AND url = ?`,
		newRaw, at.UTC().Format(time.RFC3339Nano), string(c), id, oldRaw,
	)
	if err != nil {
		return false, fmt.Errorf("replace url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replace url: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDB) DeleteRecord(ctx context.Context, c model.Collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, string(c), id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return checkRowsAffected(res)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// CacheVersion returns 0 until a version has been stored.
func (s *SQLiteDB) CacheVersion(ctx context.Context) (int64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, cacheVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cache version: %w", err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cache version %q: %w", raw, err)
	}
	return v, nil
}

func (s *SQLiteDB) SetCacheVersion(ctx context.Context, v int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		cacheVersionKey, strconv.FormatInt(v, 10),
	)
	if err != nil {
		return fmt.Errorf("set cache version: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	r := &model.Record{}
	var collection, rawURL, createdStr, updatedStr string

	err := row.Scan(&collection, &r.ID, &rawURL, &r.Title, &r.Subtitle, &r.Category, &r.Description,
		&r.Position, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	r.Collection = model.Collection(collection)
	r.URL = resolve.Parse(rawURL)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return r, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
