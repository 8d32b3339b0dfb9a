package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/leca/studio-images/internal/model"
	"github.com/leca/studio-images/internal/resolve"
)

var _ Database = (*PostgresDB)(nil)

// PostgresDB implements Database with gorm on Postgres.
type PostgresDB struct {
	db *gorm.DB
}

type recordRow struct {
	Collection  string `gorm:"primaryKey"`
	ID          string `gorm:"primaryKey"`
	URL         string `gorm:"not null;default:''"`
	Title       string
	Subtitle    string
	Category    string
	Description string
	Position    int `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (recordRow) TableName() string { return "records" }

type settingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (settingRow) TableName() string { return "settings" }

// NewPostgresDB connects and migrates the records and settings tables.
func NewPostgresDB(dsn string) (*PostgresDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&recordRow{}, &settingRow{}); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *PostgresDB) GetRecord(ctx context.Context, c model.Collection, id string) (*model.Record, error) {
	var row recordRow
	err := p.db.WithContext(ctx).
		Where("collection = ? AND id = ?", string(c), id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return row.toModel(), nil
}

func (p *PostgresDB) ListRecords(ctx context.Context, c model.Collection) ([]*model.Record, error) {
	order := "created_at DESC, id ASC"
	if c == model.CollectionCarousel {
		order = "position ASC, id ASC"
	}
	var rows []recordRow
	if err := p.db.WithContext(ctx).Where("collection = ?", string(c)).Order(order).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	records := make([]*model.Record, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, nil
}

func (p *PostgresDB) UpsertRecord(ctx context.Context, r *model.Record) error {
	row := recordRow{
		Collection:  string(r.Collection),
		ID:          r.ID,
		URL:         r.URL.Raw,
		Title:       r.Title,
		Subtitle:    r.Subtitle,
		Category:    r.Category,
		Description: r.Description,
		Position:    r.Position,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "title", "subtitle", "category", "description", "position", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (p *PostgresDB) ReplaceURL(ctx context.Context, c model.Collection, id, oldRaw, newRaw string, at time.Time) (bool, error) {
	res := p.db.WithContext(ctx).Model(&recordRow{}).
		Where("collection = ? AND id = ? AND url = ?", string(c), id, oldRaw).
		Updates(map[string]any{"url": newRaw, "updated_at": at.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("replace url: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *PostgresDB) DeleteRecord(ctx context.Context, c model.Collection, id string) error {
	res := p.db.WithContext(ctx).Where("collection = ? AND id = ?", string(c), id).Delete(&recordRow{})
	if res.Error != nil {
		return fmt.Errorf("delete record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) CacheVersion(ctx context.Context) (int64, error) {
	var row settingRow
	err := p.db.WithContext(ctx).Where("key = ?", cacheVersionKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cache version: %w", err)
	}
	return strconv.ParseInt(row.Value, 10, 64)
}

func (p *PostgresDB) SetCacheVersion(ctx context.Context, v int64) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&settingRow{Key: cacheVersionKey, Value: strconv.FormatInt(v, 10)}).Error
	if err != nil {
		return fmt.Errorf("set cache version: %w", err)
	}
	return nil
}

func (r recordRow) toModel() *model.Record {
	return &model.Record{
		ID:          r.ID,
		Collection:  model.Collection(r.Collection),
		URL:         resolve.Parse(r.URL),
		Title:       r.Title,
		Subtitle:    r.Subtitle,
		Category:    r.Category,
		Description: r.Description,
		Position:    r.Position,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
