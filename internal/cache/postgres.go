package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"badgehub/internal/database"

	"go.uber.org/zap"
)

// postgresCache is the durable fallback backend. Values live in the
// cache_entries table with an expiry column; expired rows are ignored on
// read and purged lazily. Slower than Redis, but the service keeps working
// when the fast store is down.
type postgresCache struct {
	db         *database.Manager
	logger     *zap.Logger
	defaultTTL time.Duration
}

// NewPostgresCache returns the database-backed cache.
func NewPostgresCache(db *database.Manager, defaultTTL time.Duration, logger *zap.Logger) Cache {
	return &postgresCache{db: db, logger: logger, defaultTTL: defaultTTL}
}

func (p *postgresCache) Get(ctx context.Context, key string) (interface{}, bool) {
	var val string
	err := p.db.QueryRowContext(ctx,
		`SELECT cache_value FROM cache_entries WHERE cache_key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&val)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		p.logger.Error("Cache fallback get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var result interface{}
	if err := json.Unmarshal([]byte(val), &result); err == nil {
		return result, true
	}
	return val, true
}

func (p *postgresCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, cache_value, expires_at)
		 VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		 ON CONFLICT (cache_key)
		 DO UPDATE SET cache_value = EXCLUDED.cache_value, expires_at = EXCLUDED.expires_at`,
		key, val, int64(ttl.Seconds()),
	)
	return err
}

func (p *postgresCache) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = $1`, key)
	return err
}

func (p *postgresCache) Exists(ctx context.Context, key string) bool {
	_, found := p.Get(ctx, key)
	return found
}

func (p *postgresCache) DeletePattern(ctx context.Context, pattern string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key LIKE $1`,
		patternToLike(pattern),
	)
	return err
}

func (p *postgresCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var current int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO cache_entries (cache_key, cache_value, expires_at)
		 VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		 ON CONFLICT (cache_key)
		 DO UPDATE SET
			cache_value = (COALESCE(NULLIF(cache_entries.cache_value, '')::bigint, 0) + $4)::text,
			expires_at = CASE
				WHEN cache_entries.expires_at <= NOW() THEN EXCLUDED.expires_at
				ELSE cache_entries.expires_at
			END
		 RETURNING cache_value::bigint`,
		key, strconv.FormatInt(delta, 10), int64(p.defaultTTL.Seconds()), delta,
	).Scan(&current)
	return current, err
}

func (p *postgresCache) SetTTL(ctx context.Context, key string, ttl time.Duration) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE cache_entries SET expires_at = NOW() + $2 * INTERVAL '1 second'
		 WHERE cache_key = $1`,
		key, int64(ttl.Seconds()),
	)
	return err
}

func (p *postgresCache) GetTTL(ctx context.Context, key string) (time.Duration, bool) {
	var seconds float64
	err := p.db.QueryRowContext(ctx,
		`SELECT EXTRACT(EPOCH FROM (expires_at - NOW()))
		 FROM cache_entries WHERE cache_key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&seconds)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func (p *postgresCache) Health(ctx context.Context) error {
	return p.db.Health(ctx)
}

func (p *postgresCache) Close() error {
	// Purge expired rows on shutdown; the pool itself belongs to the caller.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= NOW()`)
	return err
}

// patternToLike converts a glob pattern to a SQL LIKE pattern.
func patternToLike(pattern string) string {
	escaped := strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(pattern)
	return strings.ReplaceAll(escaped, "*", "%")
}
