package services

import (
	"context"
	"fmt"
	"time"

	"badgehub/internal/config"
	"badgehub/internal/events"
	"badgehub/internal/models"
	"badgehub/internal/monitoring"
	"badgehub/internal/registry"
	"badgehub/internal/repositories"

	"go.uber.org/zap"
)

// ===============================
// QUEUE SERVICE
// ===============================

// QueueService owns the durable event queue: intake, batch draining, stats
// and retention. Every accepted event is eventually funneled through
// ProcessOne exactly once.
type QueueService interface {
	// Enqueue validates and persists an event. Unknown event types are
	// rejected with a validation error before anything is written.
	Enqueue(ctx context.Context, userID int64, eventType string, payload models.Payload, sourceScopeID int64) (int64, error)
	// DrainBatch processes the oldest pending events in FIFO order and
	// returns how many were handled. The batch always completes; a failing
	// event is logged and marked processed rather than wedging the queue.
	DrainBatch(ctx context.Context, maxSize int) (int, error)
	// ProcessOne applies a single queued event. Returns false without side
	// effects when the event is missing or already processed.
	ProcessOne(ctx context.Context, eventID int64) (bool, error)
	// TriggerImmediate runs the matching path synchronously with no queue
	// row. Returns how many achievements the event unlocked.
	TriggerImmediate(ctx context.Context, userID int64, eventType string, payload models.Payload) (int, error)
	// Stats returns queue aggregates, cached for a short window.
	Stats(ctx context.Context) (*models.QueueStats, error)
	// Cleanup deletes processed events older than the retention window.
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	RecentEventsForUser(ctx context.Context, userID int64, limit int) ([]*models.QueuedEvent, error)
	EventsByType(ctx context.Context, eventType string, limit int) ([]*models.QueuedEvent, error)
}

type queueService struct {
	queue      repositories.QueueRepository
	engine     EngineService
	registry   *registry.Registry
	badgeCache *BadgeCache
	bus        *events.Bus
	metrics    *monitoring.Metrics
	cfg        *config.QueueConfig
	logger     *zap.Logger
}

// NewQueueService creates the queue service.
func NewQueueService(
	queue repositories.QueueRepository,
	engine EngineService,
	reg *registry.Registry,
	badgeCache *BadgeCache,
	bus *events.Bus,
	metrics *monitoring.Metrics,
	cfg *config.QueueConfig,
	logger *zap.Logger,
) QueueService {
	return &queueService{
		queue:      queue,
		engine:     engine,
		registry:   reg,
		badgeCache: badgeCache,
		bus:        bus,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *queueService) Enqueue(ctx context.Context, userID int64, eventType string, payload models.Payload, sourceScopeID int64) (int64, error) {
	if userID <= 0 {
		return 0, NewValidationError("user id is required", nil)
	}
	if !s.registry.IsRegistered(eventType) {
		return 0, NewValidationError(fmt.Sprintf("unknown event type %q", eventType), nil)
	}

	event := &models.QueuedEvent{
		UserID:        userID,
		EventType:     eventType,
		Payload:       payload,
		SourceScopeID: sourceScopeID,
	}
	id, err := s.queue.Insert(ctx, event)
	if err != nil {
		s.logger.Error("Failed to enqueue event",
			zap.Int64("user_id", userID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return 0, NewInternalError("failed to enqueue event")
	}

	s.metrics.EventsEnqueued.WithLabelValues(eventType).Inc()
	s.badgeCache.InvalidateQueueStats(ctx)

	if err := s.bus.Publish(ctx, events.NewEventQueued(id, userID, eventType, s.cfg.ImmediateMode)); err != nil {
		s.logger.Warn("Queued notification delivery failed", zap.Error(err))
	}

	if s.cfg.ImmediateMode {
		if _, err := s.ProcessOne(ctx, id); err != nil {
			// The row stays pending; the drain worker picks it up later.
			s.logger.Error("Immediate processing failed, deferring to drain",
				zap.Int64("event_id", id),
				zap.Error(err),
			)
		}
	}
	return id, nil
}

func (s *queueService) DrainBatch(ctx context.Context, maxSize int) (int, error) {
	if maxSize <= 0 {
		maxSize = s.cfg.BatchSize
	}

	batch, err := s.queue.SelectUnprocessed(ctx, maxSize)
	if err != nil {
		return 0, NewTransientStoreError("failed to select pending events", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	processed := 0
	for _, event := range batch {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := s.applyEvent(ctx, event); err != nil {
			// Log with full identity and keep going; the event is already
			// marked processed inside applyEvent so it cannot poison the
			// next batch.
			s.logger.Error("Event processing failed",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Int64("user_id", event.UserID),
				zap.Any("payload", event.Payload),
				zap.Error(err),
			)
		}
		processed++
	}

	s.badgeCache.InvalidateQueueStats(ctx)
	return processed, nil
}

func (s *queueService) ProcessOne(ctx context.Context, eventID int64) (bool, error) {
	event, err := s.queue.GetByID(ctx, eventID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return false, nil
		}
		return false, NewTransientStoreError("failed to load event", err)
	}
	if event.Processed {
		return false, nil
	}

	if err := s.applyEvent(ctx, event); err != nil {
		return false, err
	}
	return true, nil
}

// applyEvent runs one event through the engine and marks it processed. The
// processed mark is unconditional: an engine failure is logged upstream, not
// retried, so a malformed payload can never stall the queue.
func (s *queueService) applyEvent(ctx context.Context, event *models.QueuedEvent) error {
	unlocked, engineErr := s.engine.ProcessEvent(ctx, event.UserID, event.EventType, event.Payload, event.SourceScopeID)

	if err := s.queue.MarkProcessed(ctx, event.ID, time.Now().UTC()); err != nil && !repositories.IsNotFound(err) {
		if engineErr != nil {
			return fmt.Errorf("engine: %v; mark processed: %w", engineErr, err)
		}
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	s.metrics.EventsProcessed.WithLabelValues(event.EventType).Inc()
	if engineErr != nil {
		s.metrics.EventsFailed.WithLabelValues(event.EventType).Inc()
	}
	s.metrics.Unlocks.Add(float64(unlocked))

	if err := s.bus.Publish(ctx, events.NewEventProcessed(event.ID, event.UserID, event.EventType, unlocked)); err != nil {
		s.logger.Warn("Processed notification delivery failed", zap.Error(err))
	}
	return engineErr
}

func (s *queueService) TriggerImmediate(ctx context.Context, userID int64, eventType string, payload models.Payload) (int, error) {
	if userID <= 0 {
		return 0, NewValidationError("user id is required", nil)
	}
	if !s.registry.IsRegistered(eventType) {
		return 0, NewValidationError(fmt.Sprintf("unknown event type %q", eventType), nil)
	}

	unlocked, err := s.engine.ProcessEvent(ctx, userID, eventType, payload, 0)
	if err != nil {
		return 0, err
	}

	s.metrics.EventsProcessed.WithLabelValues(eventType).Inc()
	s.metrics.Unlocks.Add(float64(unlocked))
	return unlocked, nil
}

func (s *queueService) Stats(ctx context.Context) (*models.QueueStats, error) {
	if cached, found := s.badgeCache.GetQueueStats(ctx); found {
		if stats, ok := cached.(*models.QueueStats); ok {
			return stats, nil
		}
		// A backend that round-trips through JSON hands back a map; fall
		// through to a fresh read rather than decoding it.
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, NewTransientStoreError("failed to load queue stats", err)
	}

	s.metrics.QueueDepth.Set(float64(stats.Pending))
	s.badgeCache.SetQueueStats(ctx, stats, s.cfg.StatsCacheTTL)
	return stats, nil
}

func (s *queueService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	deleted, err := s.queue.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, NewTransientStoreError("failed to clean up event queue", err)
	}
	if deleted > 0 {
		s.logger.Info("Event queue cleanup complete",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
		s.badgeCache.InvalidateQueueStats(ctx)
	}
	return deleted, nil
}

func (s *queueService) RecentEventsForUser(ctx context.Context, userID int64, limit int) ([]*models.QueuedEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	list, err := s.queue.RecentForUser(ctx, userID, limit)
	if err != nil {
		return nil, NewInternalError("failed to list recent events")
	}
	return list, nil
}

func (s *queueService) EventsByType(ctx context.Context, eventType string, limit int) ([]*models.QueuedEvent, error) {
	if !s.registry.IsRegistered(eventType) {
		return nil, NewValidationError(fmt.Sprintf("unknown event type %q", eventType), nil)
	}
	if limit <= 0 {
		limit = 20
	}
	list, err := s.queue.ListByType(ctx, eventType, limit)
	if err != nil {
		return nil, NewInternalError("failed to list events by type")
	}
	return list, nil
}
