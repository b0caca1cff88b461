package repositories

import (
	"context"
	"database/sql"
	"time"

	"badgehub/internal/models"
)

// ===============================
// REPOSITORY INTERFACES
// ===============================

// AchievementRepository provides read access to achievement definitions.
type AchievementRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Achievement, error)
	GetByKey(ctx context.Context, key string) (*models.Achievement, error)
	ListActive(ctx context.Context) ([]*models.Achievement, error)
	// ListActiveByTrigger returns active definitions for a trigger type,
	// ordered by threshold ascending so tier chains evaluate lowest first.
	ListActiveByTrigger(ctx context.Context, triggerType string) ([]*models.Achievement, error)
	Create(ctx context.Context, a *models.Achievement) error
	Update(ctx context.Context, a *models.Achievement) error
	Deactivate(ctx context.Context, id int64) error
}

// ProgressRepository persists per-user achievement progress and the
// append-only history log.
type ProgressRepository interface {
	Get(ctx context.Context, userID, achievementID int64) (*models.ProgressRecord, error)
	// IncrementProgress atomically adds delta to the stored count, creating
	// the row at delta when absent, and returns the resulting record.
	IncrementProgress(ctx context.Context, userID, achievementID int64, delta int, scopeID int64) (*models.ProgressRecord, error)
	// SetProgress overwrites the stored count, creating the row when absent.
	SetProgress(ctx context.Context, userID, achievementID int64, count int, scopeID int64) (*models.ProgressRecord, error)
	// Unlock stamps unlocked_at if and only if it is currently null. The
	// boolean reports whether this call performed the transition.
	Unlock(ctx context.Context, userID, achievementID int64, at time.Time) (bool, error)
	// Revoke clears unlocked_at and the featured flag and resets the count.
	// The boolean reports whether an unlocked row was actually revoked.
	Revoke(ctx context.Context, userID, achievementID int64) (bool, error)
	// SetFeatured marks one unlocked achievement featured after clearing the
	// flag from every other row the user has. Runs in a transaction.
	SetFeatured(ctx context.Context, userID, achievementID int64) error
	FeaturedBadge(ctx context.Context, userID int64) (*models.UserAchievement, error)

	ListForUser(ctx context.Context, userID int64, unlockedOnly bool) ([]*models.UserAchievement, error)
	CountUnlocked(ctx context.Context, userID int64, achievementType, category string) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
	RecentUnlocks(ctx context.Context, limit int) ([]*models.UserAchievement, error)

	// ListUserIDs pages through distinct users with progress rows, returning
	// IDs greater than afterID in ascending order.
	ListUserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)

	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	History(ctx context.Context, userID int64, limit int) ([]*models.HistoryEntry, error)
}

// QueueRepository persists the durable event queue.
type QueueRepository interface {
	Insert(ctx context.Context, event *models.QueuedEvent) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.QueuedEvent, error)
	// SelectUnprocessed returns the oldest pending events in FIFO order.
	SelectUnprocessed(ctx context.Context, limit int) ([]*models.QueuedEvent, error)
	MarkProcessed(ctx context.Context, id int64, at time.Time) error
	Stats(ctx context.Context) (*models.QueueStats, error)
	// DeleteProcessedBefore removes processed rows older than the cutoff and
	// returns how many were deleted.
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	RecentForUser(ctx context.Context, userID int64, limit int) ([]*models.QueuedEvent, error)
	ListByType(ctx context.Context, eventType string, limit int) ([]*models.QueuedEvent, error)
}

// MetricsRepository persists adapter-maintained vendor and content metrics.
type MetricsRepository interface {
	UpsertVendorMetric(ctx context.Context, userID, vendorID int64, metricType string, delta float64) (*models.VendorMetric, error)
	GetVendorMetric(ctx context.Context, userID, vendorID int64, metricType string) (*models.VendorMetric, error)
	UpsertContentMetric(ctx context.Context, m *models.ContentMetric) error
	GetContentMetric(ctx context.Context, userID int64, contentType string, contentID int64, metricType string) (*models.ContentMetric, error)
}

// Collection bundles every repository for one-shot wiring in main.
type Collection struct {
	Achievements AchievementRepository
	Progress     ProgressRepository
	Queue        QueueRepository
	Metrics      MetricsRepository
}

// DB is the narrow database surface the repositories need. Satisfied by
// *database.Manager in production and by sqlmock-style fakes in tests.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
