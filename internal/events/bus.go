// Package events carries in-process notifications between the pipeline and
// its observers (websocket broadcaster, metrics, audit logging). This is the
// internal fan-out layer; durable event intake lives in the queue service.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler consumes notifications of a subscribed type.
type Handler interface {
	Handle(ctx context.Context, n Notification) error
	HandlerID() string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	ID   string
	Func func(ctx context.Context, n Notification) error
}

func (f HandlerFunc) Handle(ctx context.Context, n Notification) error { return f.Func(ctx, n) }
func (f HandlerFunc) HandlerID() string                                { return f.ID }

// BusStats is a point-in-time snapshot of bus activity.
type BusStats struct {
	Published     int64         `json:"published"`
	Delivered     int64         `json:"delivered"`
	Failed        int64         `json:"failed"`
	HandlersCount int           `json:"handlers_count"`
	QueueDepth    int           `json:"queue_depth"`
	Uptime        time.Duration `json:"uptime"`
}

// BusConfig tunes the async delivery path.
type BusConfig struct {
	BufferSize     int
	WorkerCount    int
	HandlerTimeout time.Duration
}

// DefaultBusConfig returns sensible defaults for a single-node deployment.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		BufferSize:     1000,
		WorkerCount:    4,
		HandlerTimeout: 30 * time.Second,
	}
}

// Bus fans notifications out to subscribed handlers. Publish delivers
// synchronously; PublishAsync hands the notification to the worker pool.
type Bus struct {
	mu             sync.RWMutex
	handlers       map[string][]Handler
	queue          chan delivery
	logger         *zap.Logger
	handlerTimeout time.Duration
	bufferSize     int
	workerCount    int
	startTime      time.Time

	statsMu   sync.Mutex
	published int64
	delivered int64
	failed    int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type delivery struct {
	notification Notification
}

// NewBus creates a bus. Call Start before using the async path.
func NewBus(cfg *BusConfig, logger *zap.Logger) *Bus {
	if cfg == nil {
		cfg = DefaultBusConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		handlers:       make(map[string][]Handler),
		queue:          make(chan delivery, cfg.BufferSize),
		logger:         logger,
		handlerTimeout: cfg.HandlerTimeout,
		bufferSize:     cfg.BufferSize,
		workerCount:    cfg.WorkerCount,
		startTime:      time.Now(),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Subscribe registers a handler for a notification type.
func (b *Bus) Subscribe(notificationType string, handler Handler) error {
	if notificationType == "" {
		return fmt.Errorf("notification type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[notificationType] = append(b.handlers[notificationType], handler)

	b.logger.Debug("Handler subscribed",
		zap.String("type", notificationType),
		zap.String("handler_id", handler.HandlerID()),
	)
	return nil
}

// Publish delivers synchronously to every subscribed handler. Handler
// failures are collected; one failing handler does not stop the others.
func (b *Bus) Publish(ctx context.Context, n Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	b.statsMu.Lock()
	b.published++
	b.statsMu.Unlock()

	return b.deliver(ctx, n)
}

// PublishAsync queues the notification for the worker pool. A full buffer is
// an error rather than a block; callers on the hot path must not stall.
func (b *Bus) PublishAsync(ctx context.Context, n Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	select {
	case b.queue <- delivery{notification: n}:
		b.statsMu.Lock()
		b.published++
		b.statsMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("notification queue is full")
	}
}

// Start launches the async delivery workers.
func (b *Bus) Start() {
	b.logger.Info("Starting notification bus", zap.Int("worker_count", b.workerCount))
	for i := 0; i < b.workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

// Stop drains the workers, waiting up to the context deadline.
func (b *Bus) Stop(ctx context.Context) error {
	b.logger.Info("Stopping notification bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Notification bus stop timed out")
		return ctx.Err()
	}
}

// Stats returns a snapshot of bus activity.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	handlerCount := 0
	for _, hs := range b.handlers {
		handlerCount += len(hs)
	}
	b.mu.RUnlock()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return BusStats{
		Published:     b.published,
		Delivered:     b.delivered,
		Failed:        b.failed,
		HandlersCount: handlerCount,
		QueueDepth:    len(b.queue),
		Uptime:        time.Since(b.startTime),
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	for {
		select {
		case d := <-b.queue:
			if err := b.deliver(b.ctx, d.notification); err != nil {
				b.logger.Error("Async notification delivery failed",
					zap.Int("worker_id", id),
					zap.String("type", d.notification.NotificationType()),
					zap.Error(err),
				)
			}
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, n Notification) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[n.NotificationType()]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var failed int
	for _, h := range handlers {
		if err := b.execute(ctx, h, n); err != nil {
			failed++
			b.statsMu.Lock()
			b.failed++
			b.statsMu.Unlock()
			b.logger.Error("Notification handler failed",
				zap.String("handler_id", h.HandlerID()),
				zap.String("type", n.NotificationType()),
				zap.Error(err),
			)
		} else {
			b.statsMu.Lock()
			b.delivered++
			b.statsMu.Unlock()
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d handlers failed", failed, len(handlers))
	}
	return nil
}

// execute runs one handler with a timeout and panic isolation so a broken
// observer cannot take the pipeline down.
func (b *Bus) execute(ctx context.Context, h Handler, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.HandlerID(), r)
		}
	}()

	handlerCtx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()
	return h.Handle(handlerCtx, n)
}
