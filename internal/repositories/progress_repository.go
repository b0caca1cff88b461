package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"badgehub/internal/models"

	"go.uber.org/zap"
)

type progressRepository struct {
	baseRepository
}

// NewProgressRepository creates the progress and history repository.
func NewProgressRepository(db DB, logger *zap.Logger) ProgressRepository {
	return &progressRepository{baseRepository{db: db, logger: logger}}
}

const progressColumns = `id, user_id, achievement_id, current_count, unlocked_at, is_featured, scope_id`

func (r *progressRepository) Get(ctx context.Context, userID, achievementID int64) (*models.ProgressRecord, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM user_achievements
			WHERE user_id = $1 AND achievement_id = $2`, progressColumns),
		userID, achievementID)
	return scanProgress(row)
}

func (r *progressRepository) IncrementProgress(ctx context.Context, userID, achievementID int64, delta int, scopeID int64) (*models.ProgressRecord, error) {
	// Single-statement upsert; concurrent increments serialize on the row
	// lock so no update is lost.
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO user_achievements (user_id, achievement_id, current_count, scope_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, achievement_id)
			DO UPDATE SET current_count = user_achievements.current_count + $3
			RETURNING %s`, progressColumns),
		userID, achievementID, delta, scopeID)
	return scanProgress(row)
}

func (r *progressRepository) SetProgress(ctx context.Context, userID, achievementID int64, count int, scopeID int64) (*models.ProgressRecord, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO user_achievements (user_id, achievement_id, current_count, scope_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, achievement_id)
			DO UPDATE SET current_count = $3
			RETURNING %s`, progressColumns),
		userID, achievementID, count, scopeID)
	return scanProgress(row)
}

func (r *progressRepository) Unlock(ctx context.Context, userID, achievementID int64, at time.Time) (bool, error) {
	// The WHERE clause makes the unlock idempotent: a second call matches
	// zero rows and reports false without touching the original timestamp.
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_achievements SET unlocked_at = $3
		 WHERE user_id = $1 AND achievement_id = $2 AND unlocked_at IS NULL`,
		userID, achievementID, at)
	if err != nil {
		return false, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *progressRepository) Revoke(ctx context.Context, userID, achievementID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_achievements SET unlocked_at = NULL, is_featured = FALSE, current_count = 0
		 WHERE user_id = $1 AND achievement_id = $2 AND unlocked_at IS NOT NULL`,
		userID, achievementID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke achievement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *progressRepository) SetFeatured(ctx context.Context, userID, achievementID int64) error {
	return r.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_achievements SET is_featured = FALSE
			 WHERE user_id = $1 AND is_featured = TRUE`, userID); err != nil {
			return fmt.Errorf("failed to clear featured flag: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE user_achievements SET is_featured = TRUE
			 WHERE user_id = $1 AND achievement_id = $2 AND unlocked_at IS NOT NULL`,
			userID, achievementID)
		if err != nil {
			return fmt.Errorf("failed to set featured badge: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Rolling back also restores the previously featured badge.
			return ErrNotFound
		}
		return nil
	})
}

func (r *progressRepository) FeaturedBadge(ctx context.Context, userID int64) (*models.UserAchievement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT ua.id, ua.user_id, ua.achievement_id, ua.current_count, ua.unlocked_at, ua.is_featured, ua.scope_id,
			a.id, a.achievement_key, a.achievement_type, a.category, a.name, a.description,
			a.threshold, a.threshold_type, a.trigger_type, a.criteria, a.sort_order, a.is_active, a.created_at, a.updated_at
		 FROM user_achievements ua
		 JOIN achievements a ON a.id = ua.achievement_id
		 WHERE ua.user_id = $1 AND ua.is_featured = TRUE AND ua.unlocked_at IS NOT NULL`,
		userID)

	ua, err := scanUserAchievementRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load featured badge: %w", err)
	}
	return ua, nil
}

func (r *progressRepository) ListForUser(ctx context.Context, userID int64, unlockedOnly bool) ([]*models.UserAchievement, error) {
	query := `SELECT ua.id, ua.user_id, ua.achievement_id, ua.current_count, ua.unlocked_at, ua.is_featured, ua.scope_id,
			a.id, a.achievement_key, a.achievement_type, a.category, a.name, a.description,
			a.threshold, a.threshold_type, a.trigger_type, a.criteria, a.sort_order, a.is_active, a.created_at, a.updated_at
		 FROM user_achievements ua
		 JOIN achievements a ON a.id = ua.achievement_id
		 WHERE ua.user_id = $1`
	if unlockedOnly {
		query += ` AND ua.unlocked_at IS NOT NULL`
	}
	query += ` ORDER BY a.category, a.sort_order, a.id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user achievements: %w", err)
	}
	defer rows.Close()
	return scanUserAchievements(rows)
}

func (r *progressRepository) CountUnlocked(ctx context.Context, userID int64, achievementType, category string) (int, error) {
	query := `SELECT COUNT(*) FROM user_achievements ua
		 JOIN achievements a ON a.id = ua.achievement_id
		 WHERE ua.user_id = $1 AND ua.unlocked_at IS NOT NULL`
	args := []interface{}{userID}

	if achievementType != "" {
		args = append(args, achievementType)
		query += fmt.Sprintf(` AND a.achievement_type = $%d`, len(args))
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(` AND a.category = $%d`, len(args))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unlocked achievements: %w", err)
	}
	return count, nil
}

func (r *progressRepository) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, COUNT(*) AS badge_count
		 FROM user_achievements
		 WHERE unlocked_at IS NOT NULL
		 GROUP BY user_id
		 ORDER BY badge_count DESC, user_id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.BadgeCount); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *progressRepository) RecentUnlocks(ctx context.Context, limit int) ([]*models.UserAchievement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ua.id, ua.user_id, ua.achievement_id, ua.current_count, ua.unlocked_at, ua.is_featured, ua.scope_id,
			a.id, a.achievement_key, a.achievement_type, a.category, a.name, a.description,
			a.threshold, a.threshold_type, a.trigger_type, a.criteria, a.sort_order, a.is_active, a.created_at, a.updated_at
		 FROM user_achievements ua
		 JOIN achievements a ON a.id = ua.achievement_id
		 WHERE ua.unlocked_at IS NOT NULL
		 ORDER BY ua.unlocked_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent unlocks: %w", err)
	}
	defer rows.Close()
	return scanUserAchievements(rows)
}

func (r *progressRepository) ListUserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM user_achievements
		 WHERE user_id > $1
		 ORDER BY user_id ASC
		 LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *progressRepository) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO achievement_history (user_id, achievement_id, action_type, actor_id, notes, scope_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		entry.UserID, entry.AchievementID, entry.ActionType, entry.ActorID, entry.Notes, entry.ScopeID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (r *progressRepository) History(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, achievement_id, action_type, actor_id, notes, created_at, scope_id
		 FROM achievement_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var out []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.AchievementID, &e.ActionType,
			&e.ActorID, &e.Notes, &e.CreatedAt, &e.ScopeID); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanProgress(row *sql.Row) (*models.ProgressRecord, error) {
	var p models.ProgressRecord
	err := row.Scan(&p.ID, &p.UserID, &p.AchievementID, &p.CurrentCount,
		&p.UnlockedAt, &p.IsFeatured, &p.ScopeID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan progress record: %w", err)
	}
	return &p, nil
}

func scanUserAchievementRow(scan func(...interface{}) error) (*models.UserAchievement, error) {
	var ua models.UserAchievement
	var criteria []byte
	err := scan(
		&ua.ID, &ua.UserID, &ua.AchievementID, &ua.CurrentCount, &ua.UnlockedAt, &ua.IsFeatured, &ua.ScopeID,
		&ua.Achievement.ID, &ua.Achievement.Key, &ua.Achievement.Type, &ua.Achievement.Category,
		&ua.Achievement.Name, &ua.Achievement.Description, &ua.Achievement.Threshold,
		&ua.Achievement.ThresholdType, &ua.Achievement.TriggerType, &criteria,
		&ua.Achievement.SortOrder, &ua.Achievement.IsActive, &ua.Achievement.CreatedAt, &ua.Achievement.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ua.Achievement.Criteria, err = models.ParseCriteria(criteria); err != nil {
		return nil, fmt.Errorf("invalid criteria for achievement %d: %w", ua.AchievementID, err)
	}
	return &ua, nil
}

func scanUserAchievements(rows *sql.Rows) ([]*models.UserAchievement, error) {
	var out []*models.UserAchievement
	for rows.Next() {
		ua, err := scanUserAchievementRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user achievement row: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}
