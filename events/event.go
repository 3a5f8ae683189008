// Package events generalizes the node-level observability emitter into one
// that reports Run-scoped events: node_start/node_complete/node_error,
// workflow_complete/workflow_error, workflow_confirm_required/
// workflow_confirmed, and the repair and acceptance loops' own
// workflow_termination_report/workflow_reflection_requested/
// workflow_adjustment_requested events, instead of a graph engine's generic
// step events.
package events

import "github.com/dshills/workflowcore/kernel"

// RunEvent is one observability event emitted during Run execution.
type RunEvent struct {
	// RunID identifies the Run that emitted this event.
	RunID string

	// WorkflowID identifies the workflow being executed.
	WorkflowID string

	// NodeID identifies which node emitted this event. Empty for Run-level
	// events (started, completed, termination report).
	NodeID string

	// Type names the event: "node_start", "node_complete",
	// "workflow_confirm_required", "workflow_reflection_requested", etc.
	Type string

	// Fields carries event-specific structured data — the same payload
	// shape kernel.Event/orchestrator's stream events already use.
	Fields map[string]any
}

// FromKernelEvent adapts a kernel.Event off the orchestrator's stream into a
// RunEvent, folding the kernel's separate Error/ErrorType/Retryable/Attempt
// fields into Fields so every emitter backend only has to handle one shape.
func FromKernelEvent(ev kernel.Event) RunEvent {
	fields := make(map[string]any, len(ev.Fields)+4)
	for k, v := range ev.Fields {
		fields[k] = v
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
	}
	if ev.ErrorType != "" {
		fields["error_type"] = ev.ErrorType
	}
	if ev.Retryable {
		fields["retryable"] = ev.Retryable
	}
	if ev.Attempt != 0 {
		fields["attempt"] = ev.Attempt
	}

	return RunEvent{
		RunID:      ev.RunID,
		WorkflowID: ev.WorkflowID,
		NodeID:     ev.NodeID,
		Type:       string(ev.Type),
		Fields:     fields,
	}
}
