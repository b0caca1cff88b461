package services

import (
	"context"
	"sync"
	"testing"

	"badgehub/internal/events"
	"badgehub/internal/models"
	"badgehub/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptrInt64(v int64) *int64       { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// unlockCollector records unlock notifications from the bus.
type unlockCollector struct {
	mu      sync.Mutex
	unlocks []*events.AchievementUnlocked
}

func (c *unlockCollector) attach(t *testing.T, bus *events.Bus) {
	t.Helper()
	err := bus.Subscribe(events.TypeAchievementUnlock, events.HandlerFunc{
		ID: "test-collector",
		Func: func(ctx context.Context, n events.Notification) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.unlocks = append(c.unlocks, n.(*events.AchievementUnlocked))
			return nil
		},
	})
	require.NoError(t, err)
}

func (c *unlockCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unlocks)
}

func TestCountThresholdScenario(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	defn := env.addAchievement(models.Achievement{
		Key:         "friends_5",
		Category:    registry.CategorySocial,
		Name:        "Social Butterfly",
		Threshold:   5,
		TriggerType: registry.EventFriendsAdded,
	})

	collector := &unlockCollector{}
	collector.attach(t, env.bus)

	const userID = int64(42)

	// Four events: progress 4/5, still locked.
	for i := 0; i < 4; i++ {
		unlocked, err := env.services.Engine.ProcessEvent(ctx, userID, registry.EventFriendsAdded, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, unlocked)
	}

	progress, err := env.services.Progress.Progress(ctx, userID, defn.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.Current)
	assert.Equal(t, 80.0, progress.Percentage)
	assert.False(t, progress.Unlocked)

	// Fifth event unlocks with exactly one notification.
	unlocked, err := env.services.Engine.ProcessEvent(ctx, userID, registry.EventFriendsAdded, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, unlocked)
	assert.Equal(t, 1, collector.count())

	progress, err = env.services.Progress.Progress(ctx, userID, defn.ID)
	require.NoError(t, err)
	assert.True(t, progress.Unlocked)
	assert.Equal(t, 100.0, progress.Percentage)

	// Sixth event is a complete no-op: no count change, no notification.
	unlocked, err = env.services.Engine.ProcessEvent(ctx, userID, registry.EventFriendsAdded, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, unlocked)
	assert.Equal(t, 1, collector.count())

	progress, err = env.services.Progress.Progress(ctx, userID, defn.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, progress.Current)

	// Exactly one history row for the unlock.
	history := env.progressRepo.historyFor(userID, defn.ID)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionUnlocked, history[0].ActionType)
}

func TestBooleanThresholdUnlocksOnFirstMatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	defn := env.addAchievement(models.Achievement{
		Key:           "first_course",
		Category:      registry.CategoryLearning,
		Name:          "First Course",
		Threshold:     1,
		ThresholdType: models.ThresholdTypeBoolean,
		TriggerType:   registry.EventCourseCompleted,
	})

	unlocked, err := env.services.Engine.ProcessEvent(ctx, 7, registry.EventCourseCompleted, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, unlocked)

	// The count is never touched on the boolean path.
	record, err := env.progressRepo.Get(ctx, 7, defn.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, record.CurrentCount)
	assert.True(t, record.Unlocked())

	// Replays are absorbed.
	unlocked, err = env.services.Engine.ProcessEvent(ctx, 7, registry.EventCourseCompleted, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, unlocked)
}

func TestMatchesCriteriaConjunction(t *testing.T) {
	env := newTestEnv()
	engine := env.services.Engine

	defn := &models.Achievement{
		ThresholdType: models.ThresholdTypeCount,
		Criteria: &models.Criteria{
			VendorID:  ptrInt64(12),
			MinAmount: ptrFloat64(50),
		},
	}

	// All configured predicates hold.
	assert.True(t, engine.MatchesCriteria(defn, models.Payload{
		"vendor_id": float64(12),
		"amount":    75.0,
	}))

	// Wrong vendor.
	assert.False(t, engine.MatchesCriteria(defn, models.Payload{
		"vendor_id": float64(99),
		"amount":    75.0,
	}))

	// Amount below the floor.
	assert.False(t, engine.MatchesCriteria(defn, models.Payload{
		"vendor_id": float64(12),
		"amount":    49.99,
	}))

	// A missing payload field required by a configured predicate never
	// matches.
	assert.False(t, engine.MatchesCriteria(defn, models.Payload{
		"vendor_id": float64(12),
	}))
	assert.False(t, engine.MatchesCriteria(defn, nil))
}

func TestMatchesCriteriaEmptyMatchesEverything(t *testing.T) {
	env := newTestEnv()
	engine := env.services.Engine

	noCriteria := &models.Achievement{ThresholdType: models.ThresholdTypeCount}
	assert.True(t, engine.MatchesCriteria(noCriteria, nil))
	assert.True(t, engine.MatchesCriteria(noCriteria, models.Payload{"anything": 1}))
}

func TestMatchesCriteriaCategoryAndSeries(t *testing.T) {
	env := newTestEnv()
	engine := env.services.Engine

	categoryDefn := &models.Achievement{
		Criteria: &models.Criteria{ProductCategory: ptrString("books")},
	}
	assert.True(t, engine.MatchesCriteria(categoryDefn, models.Payload{
		"product_categories": []interface{}{"music", "books"},
	}))
	assert.False(t, engine.MatchesCriteria(categoryDefn, models.Payload{
		"product_categories": []interface{}{"music"},
	}))
	assert.False(t, engine.MatchesCriteria(categoryDefn, models.Payload{}))

	seriesDefn := &models.Achievement{
		Criteria: &models.Criteria{EventSeries: ptrString("summer_fest")},
	}
	assert.True(t, engine.MatchesCriteria(seriesDefn, models.Payload{"event_series": "summer_fest"}))
	assert.False(t, engine.MatchesCriteria(seriesDefn, models.Payload{"event_series": "winter_gala"}))
}

func TestTierChainUnlocksLowestFirst(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	bronze := env.addAchievement(models.Achievement{
		Key: "groups_1", Category: registry.CategoryGroups, Name: "Joiner",
		Threshold: 1, TriggerType: registry.EventGroupsJoined,
	})
	silver := env.addAchievement(models.Achievement{
		Key: "groups_3", Category: registry.CategoryGroups, Name: "Regular",
		Threshold: 3, TriggerType: registry.EventGroupsJoined,
	})

	const userID = int64(5)

	unlocked, err := env.services.Engine.ProcessEvent(ctx, userID, registry.EventGroupsJoined, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, unlocked, "first event unlocks the bronze tier only")

	_, err = env.services.Engine.ProcessEvent(ctx, userID, registry.EventGroupsJoined, nil, 0)
	require.NoError(t, err)
	unlocked, err = env.services.Engine.ProcessEvent(ctx, userID, registry.EventGroupsJoined, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, unlocked, "third event unlocks the silver tier")

	next, err := env.services.Engine.NextTier(ctx, registry.EventGroupsJoined, bronze.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, silver.ID, next.ID)

	top, err := env.services.Engine.NextTier(ctx, registry.EventGroupsJoined, silver.ID)
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestCustomThresholdVendorTier(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	defn := env.addAchievement(models.Achievement{
		Key:           "vendor_12_bronze",
		Category:      registry.CategoryCommerce,
		Name:          "Bronze Patron",
		Threshold:     3,
		ThresholdType: models.ThresholdTypeCustom,
		TriggerType:   registry.EventVendorPurchase,
		Criteria:      &models.Criteria{VendorID: ptrInt64(12)},
	})

	const userID = int64(9)
	payload := models.Payload{"vendor_id": float64(12)}

	// Below the metric threshold: no unlock.
	_, err := env.metricsRepo.UpsertVendorMetric(ctx, userID, 12, models.VendorMetricPurchaseCount, 2)
	require.NoError(t, err)
	unlocked, err := env.services.Engine.ProcessEvent(ctx, userID, registry.EventVendorPurchase, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, unlocked)

	// Metric crosses the threshold.
	_, err = env.metricsRepo.UpsertVendorMetric(ctx, userID, 12, models.VendorMetricPurchaseCount, 1)
	require.NoError(t, err)
	unlocked, err = env.services.Engine.ProcessEvent(ctx, userID, registry.EventVendorPurchase, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, unlocked)

	record, err := env.progressRepo.Get(ctx, userID, defn.ID)
	require.NoError(t, err)
	assert.True(t, record.Unlocked())
}

func TestRecalculateUserRepairsCounts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	defn := env.addAchievement(models.Achievement{
		Key: "posts_10", Category: registry.CategoryContent, Name: "Prolific",
		Threshold: 10, TriggerType: registry.EventActivityPosted,
	})

	counter := &fixedCounter{counts: map[string]int{registry.EventActivityPosted: 12}}
	engine := NewEngineService(env.achievements, env.progressRepo, env.services.Progress, zap.NewNop(),
		WithActivityCounter(counter))

	unlockedIDs, err := engine.RecalculateUser(ctx, 3, registry.EventActivityPosted)
	require.NoError(t, err)
	assert.Equal(t, []int64{defn.ID}, unlockedIDs)

	record, err := env.progressRepo.Get(ctx, 3, defn.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, record.CurrentCount)
	assert.True(t, record.Unlocked())

	// Recalculating again finds nothing new to unlock.
	unlockedIDs, err = engine.RecalculateUser(ctx, 3, registry.EventActivityPosted)
	require.NoError(t, err)
	assert.Empty(t, unlockedIDs)
}

func TestBulkRecalculate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.addAchievement(models.Achievement{
		Key: "posts_3", Category: registry.CategoryContent, Name: "Poster",
		Threshold: 3, TriggerType: registry.EventActivityPosted,
	})

	// Seed progress rows so the users are discoverable.
	for _, userID := range []int64{1, 2, 3} {
		_, err := env.progressRepo.IncrementProgress(ctx, userID, 1, 1, 0)
		require.NoError(t, err)
	}

	counter := &fixedCounter{counts: map[string]int{registry.EventActivityPosted: 5}}
	engine := NewEngineService(env.achievements, env.progressRepo, env.services.Progress, zap.NewNop(),
		WithActivityCounter(counter))

	summary, err := engine.BulkRecalculate(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.UsersProcessed)
	assert.Equal(t, 3, summary.Unlocked)
	assert.Equal(t, 0, summary.Errors)
}

func TestPreviewUnlocks(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	low := env.addAchievement(models.Achievement{
		Key: "friends_3", Category: registry.CategorySocial, Name: "Friendly",
		Threshold: 3, TriggerType: registry.EventFriendsAdded,
	})
	high := env.addAchievement(models.Achievement{
		Key: "friends_25", Category: registry.CategorySocial, Name: "Popular",
		Threshold: 25, TriggerType: registry.EventFriendsAdded,
	})

	preview, err := env.services.Engine.PreviewUnlocks(ctx, 4, registry.EventFriendsAdded, 10)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, low.ID, preview[0].ID)

	preview, err = env.services.Engine.PreviewUnlocks(ctx, 4, registry.EventFriendsAdded, 30)
	require.NoError(t, err)
	assert.Len(t, preview, 2)

	// Already-unlocked definitions drop out of the preview.
	_, err = env.services.Progress.UpdateProgress(ctx, 4, low.ID, 3, 0)
	require.NoError(t, err)
	_, err = env.services.Progress.Unlock(ctx, 4, low.ID, models.ActionUnlocked, nil, "")
	require.NoError(t, err)

	preview, err = env.services.Engine.PreviewUnlocks(ctx, 4, registry.EventFriendsAdded, 30)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, high.ID, preview[0].ID)
}

type fixedCounter struct {
	counts map[string]int
}

func (c *fixedCounter) Count(ctx context.Context, userID int64, triggerKey string) (int, error) {
	return c.counts[triggerKey], nil
}
