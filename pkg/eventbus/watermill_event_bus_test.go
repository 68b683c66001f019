package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(slog.Default(), pub, sub)

	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	return bus
}

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.WorkflowExecutionRequested, 1)

	require.NoError(t, bus.Handle(t.Context(), events.WorkflowExecutionRequestedEvent, func(_ context.Context, event any) error {
		requested, ok := event.(*events.WorkflowExecutionRequested)
		if !ok {
			return nil
		}

		received <- requested

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	err := bus.Publish(t.Context(), "wf-1", events.WorkflowExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionRequestedEvent, "wf-1"),
		ExecutionID: "exec-1",
		UserID:      "user-1",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "wf-1", event.WorkflowID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newBus(t)
	received := make(chan string, 2)

	require.NoError(t, bus.Handle(t.Context(), events.WorkflowExecutionCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.WorkflowExecutionCompleted)
		if !ok {
			return nil
		}

		received <- completed.ExecutionID

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "wf-1", events.WorkflowExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionStartedEvent, "wf-1"),
		ExecutionID: "exec-started",
	}))
	require.NoError(t, bus.Publish(t.Context(), "wf-1", events.WorkflowExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, "wf-1"),
		ExecutionID: "exec-completed",
	}))

	select {
	case id := <-received:
		assert.Equal(t, "exec-completed", id)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	first := bus.GenerateID(t.Context())
	second := bus.GenerateID(t.Context())

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
