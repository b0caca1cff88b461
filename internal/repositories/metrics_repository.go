package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"badgehub/internal/models"

	"go.uber.org/zap"
)

type metricsRepository struct {
	baseRepository
}

// NewMetricsRepository creates the adapter metrics repository.
func NewMetricsRepository(db DB, logger *zap.Logger) MetricsRepository {
	return &metricsRepository{baseRepository{db: db, logger: logger}}
}

func (r *metricsRepository) UpsertVendorMetric(ctx context.Context, userID, vendorID int64, metricType string, delta float64) (*models.VendorMetric, error) {
	var m models.VendorMetric
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO vendor_metrics (user_id, vendor_id, metric_type, current_value)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, vendor_id, metric_type)
		 DO UPDATE SET current_value = vendor_metrics.current_value + $4, updated_at = NOW()
		 RETURNING id, user_id, vendor_id, metric_type, current_value, updated_at`,
		userID, vendorID, metricType, delta,
	).Scan(&m.ID, &m.UserID, &m.VendorID, &m.MetricType, &m.CurrentValue, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert vendor metric: %w", err)
	}
	return &m, nil
}

func (r *metricsRepository) GetVendorMetric(ctx context.Context, userID, vendorID int64, metricType string) (*models.VendorMetric, error) {
	var m models.VendorMetric
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, vendor_id, metric_type, current_value, updated_at
		 FROM vendor_metrics
		 WHERE user_id = $1 AND vendor_id = $2 AND metric_type = $3`,
		userID, vendorID, metricType,
	).Scan(&m.ID, &m.UserID, &m.VendorID, &m.MetricType, &m.CurrentValue, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor metric: %w", err)
	}
	return &m, nil
}

func (r *metricsRepository) UpsertContentMetric(ctx context.Context, m *models.ContentMetric) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO content_metrics (user_id, content_type, content_id, metric_type, current_count, milestone_reached)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, content_type, content_id, metric_type)
		 DO UPDATE SET current_count = $5, milestone_reached = GREATEST(content_metrics.milestone_reached, $6)
		 RETURNING id`,
		m.UserID, m.ContentType, m.ContentID, m.MetricType, m.CurrentCount, m.MilestoneReached,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert content metric: %w", err)
	}
	return nil
}

func (r *metricsRepository) GetContentMetric(ctx context.Context, userID int64, contentType string, contentID int64, metricType string) (*models.ContentMetric, error) {
	var m models.ContentMetric
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, content_type, content_id, metric_type, current_count, milestone_reached
		 FROM content_metrics
		 WHERE user_id = $1 AND content_type = $2 AND content_id = $3 AND metric_type = $4`,
		userID, contentType, contentID, metricType,
	).Scan(&m.ID, &m.UserID, &m.ContentType, &m.ContentID, &m.MetricType, &m.CurrentCount, &m.MilestoneReached)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load content metric: %w", err)
	}
	return &m, nil
}
