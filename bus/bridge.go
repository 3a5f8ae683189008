package bus

import (
	"context"
	"fmt"
)

// DecisionHandler executes an actionable, validated decision (typically: run
// the execution entry, C9) and reports back run_id and a result payload.
type DecisionHandler func(ctx context.Context, event DecisionValidatedEvent) (runID string, result map[string]any, err error)

// DecisionBridge subscribes to DecisionValidatedEvent for a configured set
// of actionable decision types and invokes handler, surfacing the outcome as
// ExecutionResultEvent. A handler error MUST NOT have created any journal
// rows (fail-closed) — that invariant is the handler's responsibility
// (orchestrator.RunExecutionEntry.Prepare validates before any persistence);
// the bridge itself only reports what the handler returns.
type DecisionBridge struct {
	bus                   *Bus
	actionableDecisionTypes map[string]bool
	handler               DecisionHandler
}

// NewDecisionBridge attaches a bridge to bus for the given actionable
// decision types, invoking handler for each matching DecisionValidatedEvent.
func NewDecisionBridge(b *Bus, handler DecisionHandler, actionableDecisionTypes ...string) *DecisionBridge {
	set := make(map[string]bool, len(actionableDecisionTypes))
	for _, t := range actionableDecisionTypes {
		set[t] = true
	}
	bridge := &DecisionBridge{bus: b, actionableDecisionTypes: set, handler: handler}
	Subscribe(b, bridge.onDecisionValidated)
	return bridge
}

func (d *DecisionBridge) onDecisionValidated(ctx context.Context, event DecisionValidatedEvent) error {
	if !d.actionableDecisionTypes[event.DecisionType] {
		return nil
	}

	runID, result, err := d.handler(ctx, event)
	if err != nil {
		return d.bus.Publish(ctx, ExecutionResultEvent{
			Status:        "failed",
			CorrelationID: event.CorrelationID,
			RunID:         runID,
			WorkflowID:    event.WorkflowID,
			Error:         fmt.Sprint(err),
		})
	}
	return d.bus.Publish(ctx, ExecutionResultEvent{
		Status:        "succeeded",
		CorrelationID: event.CorrelationID,
		RunID:         runID,
		WorkflowID:    event.WorkflowID,
		Result:        result,
	})
}
