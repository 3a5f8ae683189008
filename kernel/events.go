package kernel

// EventType enumerates the kernel's stream event taxonomy (§4.8). A stream
// event of any other type is rejected by the caller as
// invalid_execution_event_type.
type EventType string

const (
	EventNodeStart        EventType = "node_start"
	EventNodeComplete     EventType = "node_complete"
	EventNodeError        EventType = "node_error"
	EventWorkflowComplete EventType = "workflow_complete"
	EventWorkflowError    EventType = "workflow_error"
)

var validEventTypes = map[EventType]bool{
	EventNodeStart:        true,
	EventNodeComplete:     true,
	EventNodeError:        true,
	EventWorkflowComplete: true,
	EventWorkflowError:    true,
}

// IsValidEventType reports whether t is one of the kernel's known event
// types.
func IsValidEventType(t EventType) bool { return validEventTypes[t] }

// IsTerminal reports whether t ends a kernel stream.
func (t EventType) IsTerminal() bool {
	return t == EventWorkflowComplete || t == EventWorkflowError
}

// Event is one item of the kernel's stream_after_gate sequence. C9 sets
// RunID and ExecutorID before forwarding the event downstream; the kernel
// itself is run-agnostic.
type Event struct {
	Type       EventType
	RunID      string
	ExecutorID string
	WorkflowID string
	NodeID     string
	Attempt    int
	Error      string
	ErrorType  string
	Retryable  bool
	Fields     map[string]any
}
