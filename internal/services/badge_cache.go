package services

import (
	"context"
	"fmt"
	"time"

	"badgehub/internal/cache"

	"go.uber.org/zap"
)

// Cache TTL classes. Volatile views get short TTLs; counts are cheap to
// rebuild and live the default hour.
const (
	leaderboardTTL   = 5 * time.Minute
	recentUnlocksTTL = 10 * time.Minute
)

// BadgeCache wraps the generic cache with the pipeline's key scheme. All
// keys share one prefix so an operator can flush the namespace at once.
type BadgeCache struct {
	cache  cache.Cache
	prefix string
	logger *zap.Logger
}

// NewBadgeCache creates the badge cache helper.
func NewBadgeCache(c cache.Cache, prefix string, logger *zap.Logger) *BadgeCache {
	if prefix == "" {
		prefix = "badgehub"
	}
	return &BadgeCache{cache: c, prefix: prefix, logger: logger}
}

func (b *BadgeCache) key(parts string) string {
	return b.prefix + ":" + parts
}

// BadgeCountKey builds the count key for a user, optionally qualified by
// achievement type and category.
func (b *BadgeCache) BadgeCountKey(userID int64, achievementType, category string) string {
	key := fmt.Sprintf("user_badges:%d", userID)
	if achievementType != "" {
		key += ":" + achievementType
	}
	if category != "" {
		key += ":" + category
	}
	return b.key(key)
}

// GetBadgeCount returns a cached badge count.
func (b *BadgeCache) GetBadgeCount(ctx context.Context, userID int64, achievementType, category string) (int, bool) {
	v, found := b.cache.Get(ctx, b.BadgeCountKey(userID, achievementType, category))
	if !found {
		return 0, false
	}
	return toInt(v)
}

// SetBadgeCount stores a badge count with the default TTL.
func (b *BadgeCache) SetBadgeCount(ctx context.Context, userID int64, achievementType, category string, count int) {
	if err := b.cache.Set(ctx, b.BadgeCountKey(userID, achievementType, category), count, 0); err != nil {
		b.logger.Warn("Failed to cache badge count", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// InvalidateUserBadges drops the user's unqualified count key and every
// qualified variant in one pass.
func (b *BadgeCache) InvalidateUserBadges(ctx context.Context, userID int64) {
	base := b.key(fmt.Sprintf("user_badges:%d", userID))
	if err := b.cache.Delete(ctx, base); err != nil {
		b.logger.Warn("Failed to invalidate badge count", zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := b.cache.DeletePattern(ctx, base+":*"); err != nil {
		b.logger.Warn("Failed to invalidate badge count variants", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// GetLeaderboard returns a cached leaderboard page.
func (b *BadgeCache) GetLeaderboard(ctx context.Context, limit int) (interface{}, bool) {
	return b.cache.Get(ctx, b.key(fmt.Sprintf("leaderboard:%d", limit)))
}

// SetLeaderboard stores a leaderboard page with a short TTL.
func (b *BadgeCache) SetLeaderboard(ctx context.Context, limit int, data interface{}) {
	if err := b.cache.Set(ctx, b.key(fmt.Sprintf("leaderboard:%d", limit)), data, leaderboardTTL); err != nil {
		b.logger.Warn("Failed to cache leaderboard", zap.Error(err))
	}
}

// InvalidateLeaderboard drops every cached leaderboard page.
func (b *BadgeCache) InvalidateLeaderboard(ctx context.Context) {
	if err := b.cache.DeletePattern(ctx, b.key("leaderboard:*")); err != nil {
		b.logger.Warn("Failed to invalidate leaderboard", zap.Error(err))
	}
}

// GetRecentUnlocks returns the cached recent-unlock feed.
func (b *BadgeCache) GetRecentUnlocks(ctx context.Context, limit int) (interface{}, bool) {
	return b.cache.Get(ctx, b.key(fmt.Sprintf("recent_unlocks:%d", limit)))
}

// SetRecentUnlocks stores the recent-unlock feed.
func (b *BadgeCache) SetRecentUnlocks(ctx context.Context, limit int, data interface{}) {
	if err := b.cache.Set(ctx, b.key(fmt.Sprintf("recent_unlocks:%d", limit)), data, recentUnlocksTTL); err != nil {
		b.logger.Warn("Failed to cache recent unlocks", zap.Error(err))
	}
}

// InvalidateRecentUnlocks drops the cached recent-unlock feed.
func (b *BadgeCache) InvalidateRecentUnlocks(ctx context.Context) {
	if err := b.cache.DeletePattern(ctx, b.key("recent_unlocks:*")); err != nil {
		b.logger.Warn("Failed to invalidate recent unlocks", zap.Error(err))
	}
}

// GetQueueStats returns the cached queue stats snapshot.
func (b *BadgeCache) GetQueueStats(ctx context.Context) (interface{}, bool) {
	return b.cache.Get(ctx, b.key("queue_stats"))
}

// SetQueueStats stores the queue stats snapshot.
func (b *BadgeCache) SetQueueStats(ctx context.Context, data interface{}, ttl time.Duration) {
	if err := b.cache.Set(ctx, b.key("queue_stats"), data, ttl); err != nil {
		b.logger.Warn("Failed to cache queue stats", zap.Error(err))
	}
}

// InvalidateQueueStats drops the cached queue stats snapshot.
func (b *BadgeCache) InvalidateQueueStats(ctx context.Context) {
	if err := b.cache.Delete(ctx, b.key("queue_stats")); err != nil {
		b.logger.Warn("Failed to invalidate queue stats", zap.Error(err))
	}
}

// toInt normalizes the numeric types a cache backend may hand back.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
