// Package journal implements the C2 Event Journal: an append-only per-Run
// event log that is the single source of truth for replay, acceptance, and
// idempotency.
package journal

import (
	"strconv"
	"time"
)

// Channel is a logical subpartition of a Run's journal.
type Channel string

const (
	ChannelExecution Channel = "execution"
	ChannelLifecycle Channel = "lifecycle"
	ChannelPlanning  Channel = "planning"
)

// Execution channel event types (§6.2).
const (
	TypeNodeStart               = "node_start"
	TypeNodeComplete            = "node_complete"
	TypeNodeError               = "node_error"
	TypeWorkflowStart           = "workflow_start"
	TypeWorkflowComplete        = "workflow_complete"
	TypeWorkflowError           = "workflow_error"
	TypeWorkflowConfirmRequired = "workflow_confirm_required"
	TypeWorkflowConfirmed       = "workflow_confirmed"
	TypeReactLoopStarted        = "workflow_react_loop_started"
	TypeAttemptFailed           = "workflow_attempt_failed"
	TypeReactPatchApplied       = "workflow_react_patch_applied"
	TypeTerminationReport       = "workflow_termination_report"
)

// Lifecycle channel event types (§6.2), beyond the ones shared with
// execution above.
const (
	TypeExecutionCompleted  = "workflow_execution_completed"
	TypeTestReport          = "workflow_test_report"
	TypeReflectionRequested = "workflow_reflection_requested"
	TypeReflectionCompleted = "workflow_reflection_completed"
	TypeAdjustmentRequested = "workflow_adjustment_requested"
)

// terminalTypes are deduplicated on (run_id, channel, type) even without an
// idempotency key.
var terminalTypes = map[string]bool{
	TypeWorkflowComplete: true,
	TypeWorkflowError:    true,
}

// IsTerminalType reports whether t is one of the journal's terminal event
// types.
func IsTerminalType(t string) bool { return terminalTypes[t] }

// RunEvent is an ordered, append-only record in a Run's journal.
type RunEvent struct {
	EventID        int64
	RunID          string
	Channel        Channel
	Type           string
	Payload        map[string]any
	IdempotencyKey string // empty means none
	CreatedAt      time.Time
}

// Ref returns the stable string reference format used by evidence snapshots
// and acceptance evidence maps: "run_event:{run_id}:{channel}:{event_id}".
func (e *RunEvent) Ref() string {
	return FormatRef(e.RunID, string(e.Channel), e.EventID)
}

// FormatRef builds the stable reference string for a persisted RunEvent
// without requiring the event itself.
func FormatRef(runID, channel string, eventID int64) string {
	return "run_event:" + runID + ":" + channel + ":" + strconv.FormatInt(eventID, 10)
}
