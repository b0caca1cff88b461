package services

import (
	"context"

	"badgehub/internal/models"
	"badgehub/internal/repositories"

	"go.uber.org/zap"
)

// ===============================
// STATS SERVICE
// ===============================

// StatsService serves the read-heavy community views: the badge leaderboard
// and the recent unlock feed. Both are cached with short TTLs.
type StatsService interface {
	Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
	RecentUnlocks(ctx context.Context, limit int) ([]*models.UserAchievement, error)
}

type statsService struct {
	progress   repositories.ProgressRepository
	badgeCache *BadgeCache
	logger     *zap.Logger
}

// NewStatsService creates the stats service.
func NewStatsService(progress repositories.ProgressRepository, badgeCache *BadgeCache, logger *zap.Logger) StatsService {
	return &statsService{progress: progress, badgeCache: badgeCache, logger: logger}
}

func (s *statsService) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	if cached, found := s.badgeCache.GetLeaderboard(ctx, limit); found {
		if entries, ok := cached.([]*models.LeaderboardEntry); ok {
			return entries, nil
		}
	}

	entries, err := s.progress.Leaderboard(ctx, limit)
	if err != nil {
		return nil, NewInternalError("failed to load leaderboard")
	}
	s.badgeCache.SetLeaderboard(ctx, limit, entries)
	return entries, nil
}

func (s *statsService) RecentUnlocks(ctx context.Context, limit int) ([]*models.UserAchievement, error) {
	if limit <= 0 {
		limit = 5
	}

	if cached, found := s.badgeCache.GetRecentUnlocks(ctx, limit); found {
		if list, ok := cached.([]*models.UserAchievement); ok {
			return list, nil
		}
	}

	list, err := s.progress.RecentUnlocks(ctx, limit)
	if err != nil {
		return nil, NewInternalError("failed to load recent unlocks")
	}
	s.badgeCache.SetRecentUnlocks(ctx, limit, list)
	return list, nil
}
