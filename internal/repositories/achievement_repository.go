package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"badgehub/internal/models"

	"go.uber.org/zap"
)

type achievementRepository struct {
	baseRepository
}

// NewAchievementRepository creates the achievement definition repository.
func NewAchievementRepository(db DB, logger *zap.Logger) AchievementRepository {
	return &achievementRepository{baseRepository{db: db, logger: logger}}
}

const achievementColumns = `id, achievement_key, achievement_type, category, name, description,
	threshold, threshold_type, trigger_type, criteria, sort_order, is_active, created_at, updated_at`

func (r *achievementRepository) GetByID(ctx context.Context, id int64) (*models.Achievement, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM achievements WHERE id = $1`, achievementColumns), id)
	return scanAchievement(row)
}

func (r *achievementRepository) GetByKey(ctx context.Context, key string) (*models.Achievement, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM achievements WHERE achievement_key = $1`, achievementColumns), key)
	return scanAchievement(row)
}

func (r *achievementRepository) ListActive(ctx context.Context) ([]*models.Achievement, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM achievements WHERE is_active = TRUE
			ORDER BY category, sort_order, id`, achievementColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()
	return scanAchievements(rows)
}

func (r *achievementRepository) ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.Achievement, error) {
	// Threshold-ascending order lets tier chains unlock lowest tier first.
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM achievements
			WHERE is_active = TRUE AND trigger_type = $1
			ORDER BY threshold ASC, id`, achievementColumns), triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements for trigger %s: %w", triggerType, err)
	}
	defer rows.Close()
	return scanAchievements(rows)
}

func (r *achievementRepository) Create(ctx context.Context, a *models.Achievement) error {
	criteria, err := marshalCriteria(a.Criteria)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO achievements
			(achievement_key, achievement_type, category, name, description,
			 threshold, threshold_type, trigger_type, criteria, sort_order, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		a.Key, a.Type, a.Category, a.Name, a.Description,
		a.Threshold, a.ThresholdType, a.TriggerType, criteria, a.SortOrder, a.IsActive,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create achievement: %w", err)
	}
	return nil
}

func (r *achievementRepository) Update(ctx context.Context, a *models.Achievement) error {
	criteria, err := marshalCriteria(a.Criteria)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE achievements SET
			achievement_type = $2, category = $3, name = $4, description = $5,
			threshold = $6, threshold_type = $7, trigger_type = $8, criteria = $9,
			sort_order = $10, is_active = $11, updated_at = NOW()
		 WHERE id = $1`,
		a.ID, a.Type, a.Category, a.Name, a.Description,
		a.Threshold, a.ThresholdType, a.TriggerType, criteria, a.SortOrder, a.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update achievement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *achievementRepository) Deactivate(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE achievements SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate achievement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalCriteria(c *models.Criteria) (interface{}, error) {
	if c.IsEmpty() {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal criteria: %w", err)
	}
	return data, nil
}

func scanAchievement(row *sql.Row) (*models.Achievement, error) {
	var a models.Achievement
	var criteria []byte
	err := row.Scan(
		&a.ID, &a.Key, &a.Type, &a.Category, &a.Name, &a.Description,
		&a.Threshold, &a.ThresholdType, &a.TriggerType, &criteria,
		&a.SortOrder, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan achievement: %w", err)
	}
	if a.Criteria, err = models.ParseCriteria(criteria); err != nil {
		return nil, fmt.Errorf("invalid criteria for achievement %d: %w", a.ID, err)
	}
	return &a, nil
}

func scanAchievements(rows *sql.Rows) ([]*models.Achievement, error) {
	var out []*models.Achievement
	for rows.Next() {
		var a models.Achievement
		var criteria []byte
		err := rows.Scan(
			&a.ID, &a.Key, &a.Type, &a.Category, &a.Name, &a.Description,
			&a.Threshold, &a.ThresholdType, &a.TriggerType, &criteria,
			&a.SortOrder, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement row: %w", err)
		}
		if a.Criteria, err = models.ParseCriteria(criteria); err != nil {
			return nil, fmt.Errorf("invalid criteria for achievement %d: %w", a.ID, err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
