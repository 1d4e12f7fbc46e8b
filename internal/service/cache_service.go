package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
)

// CacheRepository abstracts the Redis-backed cache used for availability data.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService wraps the cache repository with metrics and an enable switch.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
	ttl     time.Duration
}

// NewCacheService constructs a CacheService.
func NewCacheService(repo CacheRepository, metrics *MetricsService, logger *zap.Logger, enabled bool, ttl time.Duration) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheService{repo: repo, metrics: metrics, logger: logger, enabled: enabled, ttl: ttl}
}

// Enabled reports whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// TTL returns the default entry lifetime.
func (s *CacheService) TTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.ttl
}

// Get fetches a cached value. The boolean reports whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			s.metrics.RecordCacheOperation(false, elapsed)
			return false, nil
		}
		s.metrics.RecordCacheOperation(false, elapsed)
		s.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		return false, err
	}

	s.metrics.RecordCacheOperation(true, elapsed)
	return true, nil
}

// Set stores a value with the default TTL. Failures are logged, not fatal.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}

	start := time.Now()
	if err := s.repo.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.metrics.ObserveCacheWrite(time.Since(start))
}

// InvalidateRoom drops every cached availability entry of a room.
func (s *CacheService) InvalidateRoom(ctx context.Context, roomID string) {
	if !s.Enabled() {
		return
	}
	pattern := fmt.Sprintf("avail:*:%s:*", roomID)
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// GridCacheKey builds the cache key for a room's monthly grid. The room
// version keeps stale entries unreachable after any change.
func GridCacheKey(roomID string, version int64, year int, month time.Month) string {
	return fmt.Sprintf("avail:grid:%s:v%d:%04d-%02d", roomID, version, year, int(month))
}

// RecommendationCacheKey builds the cache key for a recommendation response.
// The day the query runs is part of the key because the scan anchors on today.
func RecommendationCacheKey(roomID string, version int64, day time.Time, dayType string, maxResults, horizonDays int) string {
	return fmt.Sprintf("avail:rec:%s:v%d:%s:%s:%d:%d", roomID, version, day.Format("2006-01-02"), dayType, maxResults, horizonDays)
}
