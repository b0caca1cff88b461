package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"badgehub/internal/events"
	"badgehub/internal/models"
	"badgehub/internal/repositories"

	"go.uber.org/zap"
)

// ===============================
// PROGRESS SERVICE
// ===============================

// ListFilter narrows ListForUser results.
type ListFilter struct {
	Category     string
	UnlockedOnly bool
	FeaturedOnly bool
	Limit        int
}

// ProgressService owns per-user achievement state: counts, unlocks, the
// featured badge, and the audit history. All unlock transitions in the whole
// system funnel through Unlock.
type ProgressService interface {
	// UpdateProgress atomically adds delta to the stored count.
	UpdateProgress(ctx context.Context, userID, achievementID int64, delta int, scopeID int64) (*models.ProgressRecord, error)
	// Unlock transitions the record to unlocked. Returns false when already
	// unlocked; the first call wins and later calls have no effect.
	Unlock(ctx context.Context, userID, achievementID int64, actionType string, actorID *int64, notes string) (bool, error)
	// Revoke reverses an unlock. The actor is mandatory.
	Revoke(ctx context.Context, userID, achievementID int64, actorID int64, notes string) (bool, error)
	// SetFeatured makes one unlocked achievement the user's featured badge.
	SetFeatured(ctx context.Context, userID, achievementID int64) error
	FeaturedBadge(ctx context.Context, userID int64) (*models.UserAchievement, error)
	// Progress reports how far along a user is. A missing row reads as zero
	// progress against the definition's threshold.
	Progress(ctx context.Context, userID, achievementID int64) (*models.Progress, error)
	ListForUser(ctx context.Context, userID int64, filter ListFilter) ([]*models.UserAchievement, error)
	// CountForUser is a cache read-through over the unlocked badge count.
	CountForUser(ctx context.Context, userID int64, achievementType, category string) (int, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error)
}

type progressService struct {
	progress     repositories.ProgressRepository
	achievements repositories.AchievementRepository
	badgeCache   *BadgeCache
	bus          *events.Bus
	logger       *zap.Logger
}

// NewProgressService creates the progress service.
func NewProgressService(
	progress repositories.ProgressRepository,
	achievements repositories.AchievementRepository,
	badgeCache *BadgeCache,
	bus *events.Bus,
	logger *zap.Logger,
) ProgressService {
	return &progressService{
		progress:     progress,
		achievements: achievements,
		badgeCache:   badgeCache,
		bus:          bus,
		logger:       logger,
	}
}

func (s *progressService) UpdateProgress(ctx context.Context, userID, achievementID int64, delta int, scopeID int64) (*models.ProgressRecord, error) {
	record, err := s.progress.IncrementProgress(ctx, userID, achievementID, delta, scopeID)
	if err != nil {
		s.logger.Error("Failed to update progress",
			zap.Int64("user_id", userID),
			zap.Int64("achievement_id", achievementID),
			zap.Error(err),
		)
		return nil, NewInternalError("failed to update progress")
	}
	return record, nil
}

func (s *progressService) Unlock(ctx context.Context, userID, achievementID int64, actionType string, actorID *int64, notes string) (bool, error) {
	defn, err := s.achievements.GetByID(ctx, achievementID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return false, NewNotFoundError(fmt.Sprintf("achievement %d not found", achievementID))
		}
		return false, NewInternalError("failed to load achievement")
	}

	// Ensure the row exists so the conditional UPDATE has something to hit.
	// Boolean and manual unlocks may arrive before any progress update.
	if _, err := s.progress.IncrementProgress(ctx, userID, achievementID, 0, 0); err != nil {
		return false, NewInternalError("failed to prepare progress record")
	}

	unlocked, err := s.progress.Unlock(ctx, userID, achievementID, time.Now().UTC())
	if err != nil {
		return false, NewInternalError("failed to unlock achievement")
	}
	if !unlocked {
		// Already unlocked. Idempotent no-op, resolved without error.
		return false, nil
	}

	if actionType == "" {
		actionType = models.ActionUnlocked
	}
	entry := &models.HistoryEntry{
		UserID:        userID,
		AchievementID: achievementID,
		ActionType:    actionType,
		ActorID:       actorID,
		Notes:         notes,
	}
	if err := s.progress.AppendHistory(ctx, entry); err != nil {
		// The unlock stands; a missing history row is repairable.
		s.logger.Error("Failed to append unlock history",
			zap.Int64("user_id", userID),
			zap.Int64("achievement_id", achievementID),
			zap.Error(err),
		)
	}

	s.badgeCache.InvalidateUserBadges(ctx, userID)
	s.badgeCache.InvalidateLeaderboard(ctx)
	s.badgeCache.InvalidateRecentUnlocks(ctx)

	n := events.NewAchievementUnlocked(userID, achievementID, defn.Key, defn.Name)
	n.ActorID = actorID
	n.Reason = actionType
	if err := s.bus.Publish(ctx, n); err != nil {
		s.logger.Warn("Unlock notification delivery failed", zap.Error(err))
	}

	s.logger.Info("Achievement unlocked",
		zap.Int64("user_id", userID),
		zap.Int64("achievement_id", achievementID),
		zap.String("key", defn.Key),
		zap.String("action", actionType),
	)
	return true, nil
}

func (s *progressService) Revoke(ctx context.Context, userID, achievementID int64, actorID int64, notes string) (bool, error) {
	defn, err := s.achievements.GetByID(ctx, achievementID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return false, NewNotFoundError(fmt.Sprintf("achievement %d not found", achievementID))
		}
		return false, NewInternalError("failed to load achievement")
	}

	revoked, err := s.progress.Revoke(ctx, userID, achievementID)
	if err != nil {
		return false, NewInternalError("failed to revoke achievement")
	}
	if !revoked {
		return false, nil
	}

	entry := &models.HistoryEntry{
		UserID:        userID,
		AchievementID: achievementID,
		ActionType:    models.ActionManualRevoke,
		ActorID:       &actorID,
		Notes:         notes,
	}
	if err := s.progress.AppendHistory(ctx, entry); err != nil {
		s.logger.Error("Failed to append revoke history",
			zap.Int64("user_id", userID),
			zap.Int64("achievement_id", achievementID),
			zap.Error(err),
		)
	}

	s.badgeCache.InvalidateUserBadges(ctx, userID)
	s.badgeCache.InvalidateLeaderboard(ctx)
	s.badgeCache.InvalidateRecentUnlocks(ctx)

	n := events.NewAchievementRevoked(userID, achievementID, defn.Key)
	n.ActorID = &actorID
	n.Reason = notes
	if err := s.bus.Publish(ctx, n); err != nil {
		s.logger.Warn("Revoke notification delivery failed", zap.Error(err))
	}

	s.logger.Info("Achievement revoked",
		zap.Int64("user_id", userID),
		zap.Int64("achievement_id", achievementID),
		zap.Int64("actor_id", actorID),
	)
	return true, nil
}

func (s *progressService) SetFeatured(ctx context.Context, userID, achievementID int64) error {
	if err := s.progress.SetFeatured(ctx, userID, achievementID); err != nil {
		if repositories.IsNotFound(err) {
			return NewValidationError("achievement is not unlocked for this user", nil)
		}
		return NewInternalError("failed to set featured badge")
	}

	s.badgeCache.InvalidateUserBadges(ctx, userID)

	if err := s.bus.Publish(ctx, events.NewFeaturedBadgeSet(userID, achievementID)); err != nil {
		s.logger.Warn("Featured badge notification delivery failed", zap.Error(err))
	}
	return nil
}

func (s *progressService) FeaturedBadge(ctx context.Context, userID int64) (*models.UserAchievement, error) {
	ua, err := s.progress.FeaturedBadge(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError("no featured badge set")
		}
		return nil, NewInternalError("failed to load featured badge")
	}
	return ua, nil
}

func (s *progressService) Progress(ctx context.Context, userID, achievementID int64) (*models.Progress, error) {
	defn, err := s.achievements.GetByID(ctx, achievementID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("achievement %d not found", achievementID))
		}
		return nil, NewInternalError("failed to load achievement")
	}

	record, err := s.progress.Get(ctx, userID, achievementID)
	if err != nil && !repositories.IsNotFound(err) {
		return nil, NewInternalError("failed to load progress")
	}

	p := &models.Progress{Threshold: defn.Threshold}
	if record != nil {
		p.Current = record.CurrentCount
		p.Unlocked = record.Unlocked()
	}
	if p.Threshold > 0 {
		pct := float64(p.Current) / float64(p.Threshold) * 100
		p.Percentage = math.Min(100, math.Round(pct*10)/10)
	}
	return p, nil
}

func (s *progressService) ListForUser(ctx context.Context, userID int64, filter ListFilter) ([]*models.UserAchievement, error) {
	list, err := s.progress.ListForUser(ctx, userID, filter.UnlockedOnly)
	if err != nil {
		return nil, NewInternalError("failed to list achievements")
	}

	out := make([]*models.UserAchievement, 0, len(list))
	for _, ua := range list {
		if filter.Category != "" && ua.Achievement.Category != filter.Category {
			continue
		}
		if filter.FeaturedOnly && !ua.IsFeatured {
			continue
		}
		out = append(out, ua)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *progressService) CountForUser(ctx context.Context, userID int64, achievementType, category string) (int, error) {
	if count, found := s.badgeCache.GetBadgeCount(ctx, userID, achievementType, category); found {
		return count, nil
	}

	count, err := s.progress.CountUnlocked(ctx, userID, achievementType, category)
	if err != nil {
		return 0, NewInternalError("failed to count achievements")
	}
	s.badgeCache.SetBadgeCount(ctx, userID, achievementType, category, count)
	return count, nil
}

func (s *progressService) History(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.progress.History(ctx, userID, limit)
	if err != nil {
		return nil, NewInternalError("failed to load history")
	}
	return entries, nil
}
