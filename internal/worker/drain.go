// Package worker runs the background loops: the periodic queue drain and the
// retention cleanup.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"badgehub/internal/config"
	"badgehub/internal/monitoring"
	"badgehub/internal/services"

	"go.uber.org/zap"
)

// DrainWorker periodically drains the event queue. Exactly one drain runs at
// a time; a tick that fires while the previous batch is still executing is
// skipped rather than queued.
type DrainWorker struct {
	queue   services.QueueService
	metrics *monitoring.Metrics
	cfg     *config.QueueConfig
	logger  *zap.Logger

	running int32
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewDrainWorker creates the worker.
func NewDrainWorker(queue services.QueueService, metrics *monitoring.Metrics, cfg *config.QueueConfig, logger *zap.Logger) *DrainWorker {
	return &DrainWorker{
		queue:   queue,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start launches the drain and cleanup loops. Call Stop to shut down.
func (w *DrainWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Info("Starting drain worker",
		zap.Duration("interval", w.cfg.DrainInterval),
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Duration("cleanup_interval", w.cfg.CleanupInterval),
	)

	w.wg.Add(2)
	go w.drainLoop(ctx)
	go w.cleanupLoop(ctx)
}

// Stop cancels the loops and waits for in-flight work to finish.
func (w *DrainWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("Drain worker stopped")
}

func (w *DrainWorker) drainLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.DrainOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// DrainOnce runs a single guarded drain pass. Returns the number of events
// handled; -1 means the pass was skipped because another was in flight.
func (w *DrainWorker) DrainOnce(ctx context.Context) int {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		w.logger.Warn("Skipping drain tick, previous run still active")
		return -1
	}
	defer atomic.StoreInt32(&w.running, 0)

	start := time.Now()
	processed, err := w.queue.DrainBatch(ctx, w.cfg.BatchSize)
	duration := time.Since(start)

	w.metrics.DrainDuration.Observe(duration.Seconds())
	w.metrics.DrainBatchSize.Observe(float64(processed))

	if err != nil {
		w.logger.Error("Drain batch failed",
			zap.Int("processed", processed),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return processed
	}
	if processed > 0 {
		w.logger.Info("Drain batch complete",
			zap.Int("processed", processed),
			zap.Duration("duration", duration),
		)
	}
	return processed
}

func (w *DrainWorker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.queue.Cleanup(ctx, w.cfg.RetentionDays); err != nil {
				w.logger.Error("Queue cleanup failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
