package services

import (
	"context"
	"strings"

	"badgehub/internal/models"
	"badgehub/internal/repositories"

	"go.uber.org/zap"
)

// VendorTierEvaluator is the stock CustomThresholdEvaluator. It resolves
// vendor tier achievements (bronze/silver/gold style) against the adapter
// maintained vendor metrics instead of the flat event count.
//
// The metric consulted follows the achievement key suffix:
//
//	*_bronze  -> purchase_count
//	*_silver  -> total_spent
//	*_gold    -> orders_over_x
//
// Anything else falls back to purchase_count.
type VendorTierEvaluator struct {
	metrics repositories.MetricsRepository
	logger  *zap.Logger
}

// NewVendorTierEvaluator creates the vendor tier evaluator.
func NewVendorTierEvaluator(metrics repositories.MetricsRepository, logger *zap.Logger) *VendorTierEvaluator {
	return &VendorTierEvaluator{metrics: metrics, logger: logger}
}

// ShouldUnlock implements CustomThresholdEvaluator.
func (v *VendorTierEvaluator) ShouldUnlock(ctx context.Context, userID int64, defn *models.Achievement, payload models.Payload) (bool, error) {
	if defn.Criteria == nil || defn.Criteria.VendorID == nil {
		// A vendor tier without a vendor is a misconfigured definition.
		v.logger.Warn("Vendor tier achievement has no vendor configured",
			zap.Int64("achievement_id", defn.ID),
			zap.String("key", defn.Key),
		)
		return false, nil
	}

	metricType := metricTypeForKey(defn.Key)
	metric, err := v.metrics.GetVendorMetric(ctx, userID, *defn.Criteria.VendorID, metricType)
	if err != nil {
		if repositories.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return metric.CurrentValue >= float64(defn.Threshold), nil
}

func metricTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, "_silver"):
		return models.VendorMetricTotalSpent
	case strings.HasSuffix(key, "_gold"):
		return models.VendorMetricOrdersOverX
	default:
		return models.VendorMetricPurchaseCount
	}
}
