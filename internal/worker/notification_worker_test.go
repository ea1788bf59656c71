package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/events"
)

func TestWorkerDeliversQueuedEvents(t *testing.T) {
	w := NewNotificationWorker(config.NotificationConfig{Workers: 3, QueueSize: 16}, nil)
	w.Start()

	var (
		mu  sync.Mutex
		ids []string
	)
	handler := w.Wrap(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, e.EntityID)
		return nil
	})

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, handler(context.Background(), events.Event{Type: events.EventIncidentCreated, EntityID: id}))
	}
	w.Stop()

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids)
}

func TestWorkerDropsWhenQueueFull(t *testing.T) {
	w := NewNotificationWorker(config.NotificationConfig{Workers: 1, QueueSize: 1}, nil)

	calls := 0
	handler := w.Wrap(func(context.Context, events.Event) error {
		calls++
		return nil
	})

	// Not started yet, so the single slot fills and the rest are dropped.
	for i := 0; i < 3; i++ {
		require.NoError(t, handler(context.Background(), events.Event{Type: events.EventWorkflowAdvanced}))
	}
	w.Start()
	w.Stop()

	assert.Equal(t, 1, calls)
}

func TestWorkerSwallowsHandlerErrorsAndIgnoresLateEvents(t *testing.T) {
	w := NewNotificationWorker(config.NotificationConfig{}, nil)
	w.Start()

	calls := 0
	handler := w.Wrap(func(context.Context, events.Event) error {
		calls++
		return errors.New("smtp down")
	})
	require.NoError(t, handler(context.Background(), events.Event{Type: events.EventIncidentCreated}))
	w.Stop()
	w.Stop()

	require.NoError(t, handler(context.Background(), events.Event{Type: events.EventIncidentCreated}))
	assert.Equal(t, 1, calls)
}

func TestWorkerRunsAfterRequestContextEnds(t *testing.T) {
	w := NewNotificationWorker(config.NotificationConfig{Workers: 1, QueueSize: 4}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var seen error
	handler := w.Wrap(func(ctx context.Context, _ events.Event) error {
		seen = ctx.Err()
		return nil
	})
	require.NoError(t, handler(ctx, events.Event{Type: events.EventWorkflowCancelled}))
	cancel()

	w.Start()
	w.Stop()
	assert.NoError(t, seen)
}
