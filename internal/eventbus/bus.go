// Package eventbus implements the process-wide publish/subscribe broker
// described for the Event Bus component: subscribe returns an unsubscribe
// handle, publish delivers synchronously from the publisher's point of view,
// and a failing handler must never abort delivery to its siblings or
// propagate back to the publisher.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/judgehost/judgehost/internal/telemetry"
)

// Event is the envelope delivered to every subscriber of a given name.
type Event struct {
	ID        string
	Name      string
	Source    string
	Timestamp time.Time
	Payload   any
}

// Handler receives published events. A handler that panics or returns is
// never allowed to stop delivery to other handlers.
type Handler func(ctx context.Context, evt Event)

// Unsubscribe invalidates a subscription. Calling it more than once is a
// no-op, matching the Subscription handle lifecycle.
type Unsubscribe func()

// PublishOptions overrides the auto-assigned source/timestamp of an event.
type PublishOptions struct {
	Source    string
	Timestamp time.Time
}

// Bus is the publish/subscribe broker. The zero value is not usable; build
// one with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscription]Handler
	logger      telemetry.Logger
}

type subscription struct {
	name string
}

// New constructs an empty Bus. A nil logger defaults to a no-op logger.
func New(logger telemetry.Logger) *Bus {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Bus{
		subscribers: make(map[string]map[*subscription]Handler),
		logger:      logger,
	}
}

// Subscribe registers handler for events published under name and returns a
// handle that removes it. Late subscribers never see events published before
// they subscribed.
func (b *Bus) Subscribe(name string, handler Handler) Unsubscribe {
	sub := &subscription{name: name}
	b.mu.Lock()
	if b.subscribers[name] == nil {
		b.subscribers[name] = make(map[*subscription]Handler)
	}
	b.subscribers[name][sub] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers[name], sub)
			if len(b.subscribers[name]) == 0 {
				delete(b.subscribers, name)
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers payload to every handler currently subscribed to name.
// Subscribers are snapshotted under a read lock and the lock is released
// before any handler runs, so handlers may themselves subscribe or
// unsubscribe. A subscribe that races a publish call is included in that
// call's delivery only if it completes before the snapshot is taken.
// Handler failures (panics) are caught, logged, and never reach the caller,
// and never prevent delivery to the remaining handlers.
func (b *Bus) Publish(ctx context.Context, name string, payload any, opts ...PublishOptions) Event {
	evt := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if len(opts) > 0 {
		if opts[0].Source != "" {
			evt.Source = opts[0].Source
		}
		if !opts[0].Timestamp.IsZero() {
			evt.Timestamp = opts[0].Timestamp
		}
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[name]))
	for _, h := range b.subscribers[name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, evt)
	}
	return evt
}

func (b *Bus) deliver(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event bus handler panicked", "event", evt.Name, "recover", r)
		}
	}()
	h(ctx, evt)
}
