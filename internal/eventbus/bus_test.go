package eventbus_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/eventbus"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := eventbus.New(nil)
	var mu sync.Mutex
	var got []string

	bus.Subscribe("greeting", func(_ context.Context, evt eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a:"+evt.Payload.(string))
	})
	bus.Subscribe("greeting", func(_ context.Context, evt eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "b:"+evt.Payload.(string))
	})

	bus.Publish(context.Background(), "greeting", "hi")

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a:hi", "b:hi"}, got)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := eventbus.New(nil)
	calls := 0
	unsub := bus.Subscribe("x", func(context.Context, eventbus.Event) { calls++ })

	unsub()
	unsub() // second call must be a no-op, not panic

	bus.Publish(context.Background(), "x", nil)
	assert.Equal(t, 0, calls)
}

func TestHandlerPanicDoesNotStopDeliveryOrPropagate(t *testing.T) {
	bus := eventbus.New(nil)
	secondCalled := false

	bus.Subscribe("evt", func(context.Context, eventbus.Event) {
		panic("boom")
	})
	bus.Subscribe("evt", func(context.Context, eventbus.Event) {
		secondCalled = true
	})

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), "evt", nil)
	})
	assert.True(t, secondCalled)
}

func TestLateSubscribersMissPriorEvents(t *testing.T) {
	bus := eventbus.New(nil)
	bus.Publish(context.Background(), "early", "before")

	var got any
	bus.Subscribe("early", func(_ context.Context, evt eventbus.Event) { got = evt.Payload })
	bus.Publish(context.Background(), "early", "after")

	assert.Equal(t, "after", got)
}

func TestPublishAssignsIDAndTimestamp(t *testing.T) {
	bus := eventbus.New(nil)
	evt := bus.Publish(context.Background(), "x", nil)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
}
