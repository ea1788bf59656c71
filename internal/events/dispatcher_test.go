package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsHandlersForTypeOnly(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []string
	d.Subscribe(EventIncidentCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.EntityID)
		return nil
	})
	d.Subscribe(EventIncidentCreated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.EntityID)
		return nil
	})
	d.Subscribe(EventWorkflowCreated, func(context.Context, Event) error {
		got = append(got, "workflow")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventIncidentCreated, EntityID: "inc-1"}))
	assert.Equal(t, []string{"first:inc-1", "second:inc-1"}, got)
}

func TestPublishIsolatesFailingHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	reached := false
	d.Subscribe(EventWorkflowAdvanced, func(context.Context, Event) error { return boom })
	d.Subscribe(EventWorkflowAdvanced, func(context.Context, Event) error { panic("nil map") })
	d.Subscribe(EventWorkflowAdvanced, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventWorkflowAdvanced})
	require.Error(t, err)
	assert.True(t, reached)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "workflow_advanced handler: panic: nil map")
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	d.Subscribe(EventIncidentUpdated, nil)
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventIncidentUpdated}))
}
