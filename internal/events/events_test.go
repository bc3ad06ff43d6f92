package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus()

	var got Event
	calls := 0
	bus.Subscribe(TypeBookingCreated, func(e Event) error {
		got = e
		calls++
		return nil
	})
	bus.Subscribe(TypeBookingCancelled, func(e Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	err := bus.PublishJSON(TypeBookingCreated, map[string]any{"booking_id": "NB-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.False(t, got.CreatedAt.IsZero())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "NB-1", payload["booking_id"])
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(TypeBookingConfirmed, func(Event) error {
			calls++
			return nil
		})
	}

	bus.Publish(Event{Type: TypeBookingConfirmed})
	assert.Equal(t, 3, calls)
}
