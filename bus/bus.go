// Package bus implements the Event Bus + Decision Bridge (C11): a typed
// pub-sub dispatcher with allow/deny middleware support, sitting between the
// acceptance loop's REPLAN signal and a new Run of the execution entry.
package bus

import (
	"context"
	"reflect"
	"sync"
)

// Handler receives one published event of a subscribed type.
type Handler func(ctx context.Context, event any) error

// Bus is a typed, in-process publish/subscribe dispatcher. Subscribers
// register against a concrete event type (via Subscribe's generic type
// parameter); Publish delivers to every handler registered for event's
// dynamic type, sequentially and in subscription order — not the teacher's
// buffered-channel-with-drop fan-out, because the domain's ordering
// guarantees (§5: workflow_execution_completed before
// workflow_reflection_requested before ... before workflow_adjustment_requested)
// require that a publisher observe delivery, not fire-and-forget it.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[reflect.Type][]Handler
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[reflect.Type][]Handler)}
}

// Subscribe registers handler for every event of type T published after
// this call.
func Subscribe[T any](b *Bus, handler func(ctx context.Context, event T) error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	wrapped := func(ctx context.Context, event any) error {
		typed, ok := event.(T)
		if !ok {
			return nil
		}
		return handler(ctx, typed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], wrapped)
}

// Publish delivers event to every handler subscribed to event's dynamic
// type, in registration order, stopping at the first handler error. A
// published event with no subscribers is a silent no-op.
func (b *Bus) Publish(ctx context.Context, event any) error {
	t := reflect.TypeOf(event)
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[t]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
