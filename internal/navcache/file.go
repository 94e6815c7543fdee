package navcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/fileutil"

	"go.uber.org/zap"
)

const fileExt = ".json"

// FileCache stores one JSON envelope per key inside a directory.
// Writes go through fileutil.WriteAtomic.
type FileCache struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

var _ Cache = (*FileCache)(nil)

// NewFileCache creates dir if needed and returns a cache rooted there.
func NewFileCache(dir string, logger *zap.Logger) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &FileCache{
		dir:    dir,
		logger: logger.Named("navcache"),
		now:    time.Now,
	}, nil
}

// path maps a key to its file. Keys are hashed so that "/mf/1" and "_mf_1"
// never share a file; the readable prefix only helps when browsing the directory.
func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	safe := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(strings.Trim(key, "/"))
	if len(safe) > 40 {
		safe = safe[:40]
	}
	return filepath.Join(c.dir, safe+"-"+hex.EncodeToString(sum[:8])+fileExt)
}

// load reads and decodes the entry for key. A missing file yields os.ErrNotExist;
// an undecodable one yields apperrors.ErrCacheCorrupt.
func (c *FileCache) load(key string) (Entry, error) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", apperrors.ErrCacheCorrupt, key, err)
	}
	if e.Key != key || e.FetchedAt.IsZero() {
		return Entry{}, fmt.Errorf("%w: %s: envelope does not match key", apperrors.ErrCacheCorrupt, key)
	}
	return e, nil
}

func (c *FileCache) Peek(key string) (Entry, bool) {
	e, err := c.load(key)
	switch {
	case err == nil:
		return e, true
	case errors.Is(err, os.ErrNotExist):
		return Entry{}, false
	case errors.Is(err, apperrors.ErrCacheCorrupt):
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		if rmErr := os.Remove(c.path(key)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.Warn("Failed to remove corrupt cache entry", zap.String("key", key), zap.Error(rmErr))
		}
		return Entry{}, false
	default:
		c.logger.Warn("Failed to read cache entry", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
}

func (c *FileCache) Get(key string, ttl time.Duration) (Entry, bool) {
	e, ok := c.Peek(key)
	if !ok || !e.Fresh(c.now(), ttl) {
		return Entry{}, false
	}
	return e, true
}

func (c *FileCache) Put(key string, payload []byte) error {
	raw, err := json.Marshal(Entry{Key: key, Payload: payload, FetchedAt: c.now()})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := fileutil.WriteAtomic(c.path(key), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	c.logger.Debug("Cached payload", zap.String("key", key), zap.Int("bytes", len(payload)))
	return nil
}

func (c *FileCache) Invalidate(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to invalidate cache entry %s: %w", key, err)
	}
	return nil
}

func (c *FileCache) InvalidateAll() error {
	files, err := filepath.Glob(filepath.Join(c.dir, "*"+fileExt))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	c.logger.Info("Cleared cache", zap.Int("entries", len(files)))
	return nil
}

func (c *FileCache) Stats() (Stats, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*"+fileExt))
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Backend: "file", Entries: len(files)}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		s.TotalBytes += info.Size()
	}
	return s, nil
}
