package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

const (
	catalogKeyPrefix = "catalog:"
	defaultCacheTTL  = 10 * time.Minute
)

// CacheRepository is the storage behind CacheService.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// LoadFunc produces the value for a cache miss.
type LoadFunc func(ctx context.Context) (interface{}, error)

// CacheService is a read-through cache for user independent catalog reads.
// Storage failures degrade to a miss; they never fail the read.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	loads   singleflight.Group
}

// NewCacheService constructs a cache service. A nil repo or enabled=false
// turns it into a pass-through that still collapses concurrent loads.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether reads and writes reach storage.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get decodes the entry for key into dest and reports whether it was found.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	started := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(started))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value under key. A non-positive ttl uses the configured one.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	started := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(started))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Remember fills dest from the cache, or runs load and caches its result.
// Concurrent misses on one key share a single load; each caller receives its
// own copy of the value. The boolean reports a cache hit.
func (s *CacheService) Remember(ctx context.Context, key string, dest interface{}, load LoadFunc) (bool, error) {
	if hit, _ := s.Get(ctx, key, dest); hit {
		return true, nil
	}
	value, err, shared := s.loads.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = s.Set(ctx, key, value, 0)
		return value, nil
	})
	if err != nil {
		return false, err
	}
	if shared {
		s.logger.Debug("cache load shared", zap.String("key", key))
	}
	return false, copyInto(dest, value)
}

// Invalidate removes every entry matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	s.logger.Info("cache invalidated", zap.String("pattern", pattern))
	return nil
}

// InvalidateCatalog drops every cached catalog read.
func (s *CacheService) InvalidateCatalog(ctx context.Context) error {
	return s.Invalidate(ctx, catalogKeyPrefix+"*")
}

// CatalogKey builds a stable cache key for a catalog read. Free-form parts
// such as search terms are hashed so keys stay short.
func CatalogKey(kind string, parts ...string) string {
	if len(parts) == 0 {
		return catalogKeyPrefix + kind
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s%s:%s", catalogKeyPrefix, kind, hex.EncodeToString(sum[:8]))
}

// copyInto round-trips value through JSON, matching what a cache hit yields.
func copyInto(dest, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode loaded value: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode loaded value: %w", err)
	}
	return nil
}
