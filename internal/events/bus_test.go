package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewBus(DefaultBusConfig(), logger)
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var received []Notification
	err := bus.Subscribe(TypeAchievementUnlock, HandlerFunc{
		ID: "collector",
		Func: func(ctx context.Context, n Notification) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, n)
			return nil
		},
	})
	require.NoError(t, err)

	n := NewAchievementUnlocked(7, 3, "friends_5", "Social Butterfly")
	require.NoError(t, bus.Publish(context.Background(), n))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	unlocked, ok := received[0].(*AchievementUnlocked)
	require.True(t, ok)
	assert.Equal(t, int64(7), unlocked.UserID)
	assert.Equal(t, "friends_5", unlocked.AchievementKey)
	assert.NotEmpty(t, unlocked.NotificationID())
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	bus := newTestBus(t)

	called := false
	require.NoError(t, bus.Subscribe(TypeAchievementRevoked, HandlerFunc{
		ID: "revoke-only",
		Func: func(ctx context.Context, n Notification) error {
			called = true
			return nil
		},
	}))

	require.NoError(t, bus.Publish(context.Background(), NewFeaturedBadgeSet(1, 2)))
	assert.False(t, called)
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	bus := newTestBus(t)

	var delivered bool
	require.NoError(t, bus.Subscribe(TypeEventQueued, HandlerFunc{
		ID:   "panics",
		Func: func(ctx context.Context, n Notification) error { panic("boom") },
	}))
	require.NoError(t, bus.Subscribe(TypeEventQueued, HandlerFunc{
		ID: "survives",
		Func: func(ctx context.Context, n Notification) error {
			delivered = true
			return nil
		},
	}))

	err := bus.Publish(context.Background(), NewEventQueued(1, 7, "friends_added", false))
	assert.Error(t, err)
	assert.True(t, delivered, "healthy handler should still run")
}

func TestPublishCollectsHandlerErrors(t *testing.T) {
	bus := newTestBus(t)

	require.NoError(t, bus.Subscribe(TypeEventProcessed, HandlerFunc{
		ID:   "fails",
		Func: func(ctx context.Context, n Notification) error { return fmt.Errorf("handler broke") },
	}))

	err := bus.Publish(context.Background(), NewEventProcessed(1, 7, "friends_added", 0))
	assert.Error(t, err)

	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPublishAsyncDelivery(t *testing.T) {
	bus := newTestBus(t)
	bus.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	}()

	done := make(chan Notification, 1)
	require.NoError(t, bus.Subscribe(TypeAchievementUnlock, HandlerFunc{
		ID: "async",
		Func: func(ctx context.Context, n Notification) error {
			done <- n
			return nil
		},
	}))

	require.NoError(t, bus.PublishAsync(context.Background(),
		NewAchievementUnlocked(9, 4, "course_1", "First Course")))

	select {
	case n := <-done:
		assert.Equal(t, TypeAchievementUnlock, n.NotificationType())
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestSubscribeValidation(t *testing.T) {
	bus := newTestBus(t)

	assert.Error(t, bus.Subscribe("", HandlerFunc{ID: "x", Func: nil}))
	assert.Error(t, bus.Subscribe(TypeEventQueued, nil))
}
