package events

import "context"

// Emitter receives RunEvents for an observability backend: logging,
// distributed tracing, in-memory history for tests, or any combination via
// a fan-out Emitter. Implementations must not block Run execution and must
// not panic.
type Emitter interface {
	// Emit sends a single event. Implementations should not block.
	Emit(event RunEvent)

	// EmitBatch sends multiple events in one call, preserving order.
	// Returns an error only on catastrophic failure; per-event delivery
	// problems should be handled internally.
	EmitBatch(ctx context.Context, events []RunEvent) error

	// Flush blocks until all buffered events are delivered or ctx expires.
	// Safe to call more than once.
	Flush(ctx context.Context) error
}

// NullEmitter discards every event. Useful as a default when no
// observability backend is configured.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that discards everything.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (NullEmitter) Emit(RunEvent) {}

func (NullEmitter) EmitBatch(context.Context, []RunEvent) error { return nil }

func (NullEmitter) Flush(context.Context) error { return nil }

// Multi fans one event out to every Emitter in order. A write to one
// emitter never prevents delivery to the rest.
type Multi []Emitter

func (m Multi) Emit(event RunEvent) {
	for _, e := range m {
		e.Emit(event)
	}
}

func (m Multi) EmitBatch(ctx context.Context, evs []RunEvent) error {
	var firstErr error
	for _, e := range m {
		if err := e.EmitBatch(ctx, evs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m Multi) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range m {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
