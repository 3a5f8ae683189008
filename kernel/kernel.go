package kernel

import "context"

// GatePolicy is the pre-execution policy consulted by GateExecute (e.g. a
// global concurrency coordinator). A nil GatePolicy always allows.
type GatePolicy interface {
	Allow(ctx context.Context, workflowID, correlationID, originalDecisionID string) (bool, error)
}

// Kernel drives node-by-node execution of a validated Workflow. It has no
// knowledge of Runs, confirmations, or the repair loop — those are the
// orchestrator's concern (C9). The kernel only knows how to walk nodes and
// emit a well-formed event stream, matching the teacher's separation of
// Engine (pure execution) from application-level retry/checkpoint policy.
type Kernel struct {
	executors *ExecutorRegistry
	gate      GatePolicy
}

// NewKernel constructs a Kernel. gate may be nil, in which case
// GateExecute always allows.
func NewKernel(executors *ExecutorRegistry, gate GatePolicy) *Kernel {
	return &Kernel{executors: executors, gate: gate}
}

// GateExecute runs the pre-execution policy and, if allowed, invokes
// afterGate. This separation lets the caller perform the atomic Run claim
// and workflow_start persistence only when the gate passes (§4.8).
func (k *Kernel) GateExecute(ctx context.Context, workflowID, correlationID, originalDecisionID string, afterGate func(ctx context.Context) error) error {
	if k.gate != nil {
		allowed, err := k.gate.Allow(ctx, workflowID, correlationID, originalDecisionID)
		if err != nil {
			return err
		}
		if !allowed {
			return &Error{Code: CodeDuplicateExecution, Message: "execution gate denied for workflow " + workflowID}
		}
	}
	return afterGate(ctx)
}

// StreamAfterGate walks workflow from startNodeID, emitting one event per
// node transition on the returned channel. The stream is finite: it always
// ends with exactly one of EventWorkflowComplete or EventWorkflowError, and
// the channel is then closed. Node errors end the stream with
// EventWorkflowError; the caller (C9) is responsible for interpreting
// ErrorType/Retryable for its repair loop.
//
// The returned channel must be drained to completion; StreamAfterGate does
// not spawn a goroutine of its own beyond the one producing these events.
func (k *Kernel) StreamAfterGate(ctx context.Context, workflow *Workflow, startNodeID string, initialState map[string]any) <-chan Event {
	events := make(chan Event, 4)

	go func() {
		defer close(events)

		state := initialState
		currentID := startNodeID
		attempt := 0

		for {
			select {
			case <-ctx.Done():
				events <- Event{
					Type:      EventWorkflowError,
					NodeID:    currentID,
					Error:     ctx.Err().Error(),
					ErrorType: "stream_cancelled",
				}
				return
			default:
			}

			node, ok := workflow.NodeByID(currentID)
			if !ok {
				events <- Event{
					Type:      EventWorkflowError,
					NodeID:    currentID,
					Error:     "node not found during execution: " + currentID,
					ErrorType: "node_not_found",
				}
				return
			}

			if node.ID == workflow.EndNodeID {
				events <- Event{Type: EventWorkflowComplete, NodeID: node.ID, Fields: state}
				return
			}

			executor, ok := k.executors.Lookup(node.Type)
			if !ok {
				events <- Event{
					Type:      EventWorkflowError,
					NodeID:    node.ID,
					Error:     "no executor registered for node type " + string(node.Type),
					ErrorType: "executor_not_found",
				}
				return
			}

			attempt++
			events <- Event{Type: EventNodeStart, NodeID: node.ID, Attempt: attempt}

			outcome := executor.Execute(ctx, node, state)
			if outcome.Err != nil {
				events <- Event{
					Type:      EventNodeError,
					NodeID:    node.ID,
					Attempt:   attempt,
					Error:     outcome.Err.Error(),
					ErrorType: outcome.ErrorType,
					Retryable: outcome.Retryable,
				}
				events <- Event{
					Type:      EventWorkflowError,
					NodeID:    node.ID,
					Error:     outcome.Err.Error(),
					ErrorType: outcome.ErrorType,
					Retryable: outcome.Retryable,
				}
				return
			}

			state = mergeState(state, outcome.Output)
			events <- Event{Type: EventNodeComplete, NodeID: node.ID, Attempt: attempt, Fields: outcome.Output}

			if outcome.NextNodeID == "" {
				events <- Event{
					Type:      EventWorkflowError,
					NodeID:    node.ID,
					Error:     "node did not route to a next node and is not the end node",
					ErrorType: "no_route",
				}
				return
			}
			currentID = outcome.NextNodeID
		}
	}()

	return events
}

// mergeState applies delta on top of prev, last-write-wins per key — the
// map-state analogue of the teacher's typed Reducer.
func mergeState(prev, delta map[string]any) map[string]any {
	merged := make(map[string]any, len(prev)+len(delta))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}
