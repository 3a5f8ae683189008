package journal

import "context"

// AppendInput describes a RunEvent to persist.
type AppendInput struct {
	RunID          string
	Channel        Channel
	Type           string
	Payload        map[string]any
	IdempotencyKey string // optional
}

// Journal is the C2 Event Journal port.
type Journal interface {
	// Append inserts an event. If the input carries an IdempotencyKey, or
	// Type is a terminal type, the store behaves as insert-or-get: the
	// caller receives the existing row and Deduped=true instead of a
	// duplicate insert.
	Append(ctx context.Context, in AppendInput) (event *RunEvent, deduped bool, err error)

	// List returns a page of events for a run ordered by EventID ascending,
	// optionally restricted to one channel, starting after cursor (0 means
	// from the start). limit <= 0 means unbounded: return every remaining
	// event and hasMore=false.
	List(ctx context.Context, runID string, channel Channel, cursor int64, limit int) (events []*RunEvent, nextCursor int64, hasMore bool, err error)
}

// HasEventOfType reports whether any already-persisted event in events has
// the given type. Helper for idempotent lifecycle checks
// (already_execution_completed-style guards) that orchestrator code builds
// on top of Journal.List.
func HasEventOfType(events []*RunEvent, eventType string) bool {
	for _, e := range events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// FindByPayloadKey returns the first event whose Type matches and whose
// Payload[key] equals value, used to look up events keyed by e.g.
// reflection_id within a channel.
func FindByPayloadKey(events []*RunEvent, eventType, key string, value string) *RunEvent {
	for _, e := range events {
		if e.Type != eventType {
			continue
		}
		if v, ok := e.Payload[key].(string); ok && v == value {
			return e
		}
	}
	return nil
}
