package navcache

import (
	"errors"
	"fmt"
	"time"

	"mf-portfolio-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLCache stores entries as rows of models.CacheEntry.
type SQLCache struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Cache = (*SQLCache)(nil)

// NewSQLCache returns a cache backed by db. The cache_entries table must
// already be migrated (see database.NewDatabase).
func NewSQLCache(db *gorm.DB, logger *zap.Logger) *SQLCache {
	return &SQLCache{db: db, logger: logger.Named("navcache"), now: time.Now}
}

func (c *SQLCache) Peek(key string) (Entry, bool) {
	var row models.CacheEntry
	err := c.db.Where("cache_key = ?", key).First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.logger.Warn("Failed to read cache entry", zap.String("key", key), zap.Error(err))
		}
		return Entry{}, false
	}
	return Entry{Key: row.Key, Payload: row.Payload, FetchedAt: row.FetchedAt}, true
}

func (c *SQLCache) Get(key string, ttl time.Duration) (Entry, bool) {
	e, ok := c.Peek(key)
	if !ok || !e.Fresh(c.now(), ttl) {
		return Entry{}, false
	}
	return e, true
}

func (c *SQLCache) Put(key string, payload []byte) error {
	row := models.CacheEntry{Key: key, Payload: clone(payload), FetchedAt: c.now()}
	err := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "fetched_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

func (c *SQLCache) Invalidate(key string) error {
	if err := c.db.Where("cache_key = ?", key).Delete(&models.CacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to invalidate cache entry %s: %w", key, err)
	}
	return nil
}

func (c *SQLCache) InvalidateAll() error {
	if err := c.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (c *SQLCache) Stats() (Stats, error) {
	var agg struct {
		Entries    int
		TotalBytes int64
	}
	err := c.db.Model(&models.CacheEntry{}).
		Select("COUNT(*) AS entries, COALESCE(SUM(LENGTH(payload)), 0) AS total_bytes").
		Scan(&agg).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute cache stats: %w", err)
	}
	return Stats{Backend: "sqlite", Entries: agg.Entries, TotalBytes: agg.TotalBytes}, nil
}
