package cache

import (
	"context"
	"strings"
	"time"

	"badgehub/internal/config"
	"badgehub/internal/database"

	"go.uber.org/zap"
)

// Cache is the caching interface used by all read-through consumers. Callers
// only ever see Get/Set/Delete semantics; which backend serves a value is an
// implementation detail decided once at startup.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool

	// DeletePattern removes every key matching a wildcard pattern. Used for
	// invalidating all category-qualified variants of a count key at once.
	DeletePattern(ctx context.Context, pattern string) error

	// Increment atomically adds delta to a numeric key, creating it at delta
	// when absent.
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// SetTTL resets the expiry of an existing key. GetTTL returns the
	// remaining lifetime, or false when the key does not exist.
	SetTTL(ctx context.Context, key string, ttl time.Duration) error
	GetTTL(ctx context.Context, key string) (time.Duration, bool)

	Health(ctx context.Context) error
	Close() error
}

// New selects the cache backend by probing connectivity once at startup.
// Redis is preferred; when it is not configured or the probe fails, the
// durable Postgres-backed store takes over without callers noticing.
func New(cfg *config.CacheConfig, db *database.Manager, logger *zap.Logger) Cache {
	if cfg.RedisURL != "" {
		redisCache, err := NewRedisCache(cfg, logger)
		if err == nil {
			return redisCache
		}
		logger.Warn("Redis unavailable, falling back to database cache", zap.Error(err))
	} else {
		logger.Info("Redis not configured, using database cache")
	}
	return NewPostgresCache(db, cfg.DefaultTTL, logger)
}

// matchPattern performs the wildcard matching used by the non-Redis
// backends' DeletePattern. Only the trailing/leading star forms Redis users
// rely on are supported.
func matchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(key, strings.TrimPrefix(pattern, "*"))
	}
	return key == pattern
}
