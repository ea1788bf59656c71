package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/events"
)

type job struct {
	ctx     context.Context
	handler events.EventHandler
	event   events.Event
}

// NotificationWorker moves notification delivery off the request path. Handlers wrapped
// by Wrap enqueue the event and return immediately; a fixed pool drains the queue.
type NotificationWorker struct {
	jobs    chan job
	workers int
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	group   *errgroup.Group
	started bool
}

// NewNotificationWorker sizes the queue and pool from config.
func NewNotificationWorker(cfg config.NotificationConfig, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	return &NotificationWorker{
		jobs:    make(chan job, size),
		workers: workers,
		logger:  logger.Named("notification_worker"),
	}
}

// Start launches the pool. Jobs run until the queue is closed by Stop.
func (w *NotificationWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.group = &errgroup.Group{}
	for i := 0; i < w.workers; i++ {
		w.group.Go(w.drain)
	}
	w.logger.Info("notification worker started", zap.Int("workers", w.workers), zap.Int("queue_size", cap(w.jobs)))
}

func (w *NotificationWorker) drain() error {
	for j := range w.jobs {
		if err := j.handler(j.ctx, j.event); err != nil {
			w.logger.Warn("notification delivery failed",
				zap.String("event_type", string(j.event.Type)),
				zap.String("entity_id", j.event.EntityID),
				zap.Error(err))
		}
	}
	return nil
}

// Wrap turns a handler into one that enqueues. When the queue is full or the worker
// stopped, the event is dropped with a warning.
func (w *NotificationWorker) Wrap(handler events.EventHandler) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		w.mu.RLock()
		defer w.mu.RUnlock()
		if w.closed {
			w.logger.Warn("notification dropped after shutdown", zap.String("event_type", string(event.Type)))
			return nil
		}
		select {
		case w.jobs <- job{ctx: context.WithoutCancel(ctx), handler: handler, event: event}:
		default:
			w.logger.Warn("notification queue full; dropping event",
				zap.String("event_type", string(event.Type)),
				zap.String("entity_id", event.EntityID))
		}
		return nil
	}
}

// Stop closes the queue and waits for queued jobs to finish.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	group := w.group
	w.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
	w.logger.Info("notification worker stopped")
}
