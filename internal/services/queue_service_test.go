package services

import (
	"context"
	"testing"
	"time"

	"badgehub/internal/models"
	"badgehub/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRejectsUnknownEventType(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.services.Queue.Enqueue(ctx, 1, "made_up_event", nil, 0)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	// Nothing was written.
	pending, err := env.queueRepo.SelectUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEnqueueRejectsMissingUser(t *testing.T) {
	env := newTestEnv()

	_, err := env.services.Queue.Enqueue(context.Background(), 0, registry.EventFriendsAdded, nil, 0)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestEnqueuePersistsPendingRow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	id, err := env.services.Queue.Enqueue(ctx, 7, registry.EventFriendsAdded,
		models.Payload{"friend_id": 33}, 2)
	require.NoError(t, err)
	assert.Positive(t, id)

	event, err := env.queueRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, event.Processed)
	assert.Equal(t, int64(7), event.UserID)
	assert.Equal(t, int64(2), event.SourceScopeID)
}

func TestDrainBatchProcessesFIFO(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.addAchievement(models.Achievement{
		Key: "friends_3", Category: registry.CategorySocial, Name: "Friendly",
		Threshold: 3, TriggerType: registry.EventFriendsAdded,
	})

	// Five events with strictly increasing enqueue times.
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		_, err := env.queueRepo.Insert(ctx, &models.QueuedEvent{
			UserID:     7,
			EventType:  registry.EventFriendsAdded,
			EnqueuedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	// A batch of three takes the three oldest.
	processed, err := env.services.Queue.DrainBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)

	pending, err := env.queueRepo.SelectUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(4), pending[0].ID)
	assert.Equal(t, int64(5), pending[1].ID)

	// Three matching events crossed the threshold during the drain.
	record, err := env.progressRepo.Get(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, record.Unlocked())
}

func TestDrainBatchEmptyQueue(t *testing.T) {
	env := newTestEnv()

	processed, err := env.services.Queue.DrainBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestProcessOneIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.addAchievement(models.Achievement{
		Key: "friends_2", Category: registry.CategorySocial, Name: "Pair",
		Threshold: 2, TriggerType: registry.EventFriendsAdded,
	})

	id, err := env.services.Queue.Enqueue(ctx, 7, registry.EventFriendsAdded, nil, 0)
	require.NoError(t, err)

	handled, err := env.services.Queue.ProcessOne(ctx, id)
	require.NoError(t, err)
	assert.True(t, handled)

	record, err := env.progressRepo.Get(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, record.CurrentCount)

	// Second application is refused and the count stays put.
	handled, err = env.services.Queue.ProcessOne(ctx, id)
	require.NoError(t, err)
	assert.False(t, handled)

	record, err = env.progressRepo.Get(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, record.CurrentCount)

	// Unknown IDs are a quiet no-op.
	handled, err = env.services.Queue.ProcessOne(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestTriggerImmediateMatchesWithoutQueueRow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.addAchievement(models.Achievement{
		Key:           "first_post",
		Category:      registry.CategoryContent,
		Name:          "First Post",
		Threshold:     1,
		ThresholdType: models.ThresholdTypeBoolean,
		TriggerType:   registry.EventActivityPosted,
	})

	unlocked, err := env.services.Queue.TriggerImmediate(ctx, 7, registry.EventActivityPosted, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, unlocked)

	// No durable row was written.
	pending, err := env.queueRepo.SelectUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = env.services.Queue.TriggerImmediate(ctx, 7, "made_up_event", nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestQueueStats(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.services.Queue.Enqueue(ctx, 7, registry.EventFriendsAdded, nil, 0)
		require.NoError(t, err)
	}
	_, err := env.services.Queue.ProcessOne(ctx, 1)
	require.NoError(t, err)

	stats, err := env.services.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processed)
	assert.NotNil(t, stats.LastRunAt)

	// The snapshot is served from cache until it expires.
	_, err = env.services.Queue.Enqueue(ctx, 7, registry.EventFriendsAdded, nil, 0)
	require.NoError(t, err)
	stats2, err := env.services.Queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats2.Total, "enqueue invalidates the stats cache")
}

func TestCleanupRemovesOldProcessedEvents(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -60)
	recent := time.Now().Add(-time.Hour)

	for _, processedAt := range []time.Time{old, recent} {
		id, err := env.queueRepo.Insert(ctx, &models.QueuedEvent{
			UserID:    7,
			EventType: registry.EventFriendsAdded,
		})
		require.NoError(t, err)
		require.NoError(t, env.queueRepo.MarkProcessed(ctx, id, processedAt))
	}

	deleted, err := env.services.Queue.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err := env.queueRepo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}

func TestEventsByTypeAndRecentForUser(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.services.Queue.Enqueue(ctx, 7, registry.EventFriendsAdded, nil, 0)
	require.NoError(t, err)
	_, err = env.services.Queue.Enqueue(ctx, 7, registry.EventGroupsJoined, nil, 0)
	require.NoError(t, err)
	_, err = env.services.Queue.Enqueue(ctx, 8, registry.EventFriendsAdded, nil, 0)
	require.NoError(t, err)

	byType, err := env.services.Queue.EventsByType(ctx, registry.EventFriendsAdded, 10)
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	_, err = env.services.Queue.EventsByType(ctx, "made_up_event", 10)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	recent, err := env.services.Queue.RecentEventsForUser(ctx, 7, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
