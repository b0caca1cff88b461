package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"badgehub/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisCache struct {
	client     *redis.Client
	logger     *zap.Logger
	defaultTTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection with a short
// probe. A probe failure is returned to the caller so the factory can select
// the fallback backend.
func NewRedisCache(cfg *config.CacheConfig, logger *zap.Logger) (Cache, error) {
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		options.PoolSize = cfg.PoolSize
	}
	if cfg.RedisDB > 0 {
		options.DB = cfg.RedisDB
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis cache initialized",
		zap.String("addr", options.Addr),
		zap.Int("db", options.DB),
	)

	return &redisCache{client: client, logger: logger, defaultTTL: cfg.DefaultTTL}, nil
}

func (r *redisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		// Degrade to a miss; cache failures never surface to callers.
		r.logger.Error("Redis get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var result interface{}
	if err := json.Unmarshal([]byte(val), &result); err == nil {
		return result, true
	}
	return val, true
}

func (r *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.client.Set(ctx, key, val, ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisCache) Exists(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.logger.Error("Redis exists failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

func (r *redisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		// Delete in batches to avoid holding Redis for too long.
		if len(keys) >= 1000 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, key, delta).Result()
}

func (r *redisCache) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *redisCache) GetTTL(ctx context.Context, key string) (time.Duration, bool) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0, false
	}
	return ttl, true
}

func (r *redisCache) Health(ctx context.Context) error {
	_, err := r.client.Ping(ctx).Result()
	return err
}

func (r *redisCache) Close() error {
	return r.client.Close()
}

func encodeValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal cache value: %w", err)
		}
		return string(data), nil
	}
}
