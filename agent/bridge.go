package agent

import (
	"context"

	"github.com/dshills/workflowcore/bus"
	"github.com/dshills/workflowcore/idempotency"
	"github.com/dshills/workflowcore/orchestrator"
	"github.com/dshills/workflowcore/run"
)

// RunStarter is the subset of orchestrator.RunExecutionEntry the bridge
// needs to turn a validated decision into an executed Run.
type RunStarter interface {
	ExecuteWithResults(ctx context.Context, workflowID, runID, correlationID, originalDecisionID string, initialState map[string]any) (orchestrator.Result, error)
}

// DecisionBridge is the C11 half that starts Runs; bus.DecisionBridge only
// hands actionable decisions to a caller-supplied handler and starts no Run
// itself. This bridge subscribes to domain events that imply
// a new Run should start, routes the resulting candidate decision through a
// DecisionCoordinator, and — once validated — claims and executes a new Run
// via RunStarter, publishing the outcome back onto the bus.
//
// Grounded on bus/events.go's DecisionMadeEvent/DecisionValidatedEvent/
// DecisionRejectedEvent/ExecutionResultEvent shapes (already defined for
// this purpose) and on orchestrator/acceptance_loop.go's REPLAN-at-most-
// once guarantee, which this bridge extends one hop further: at most one
// new Run per reflection_id, via the same idempotency.Coordinator used
// elsewhere in this module for exactly this kind of dedup.
type DecisionBridge struct {
	Bus         *bus.Bus
	Coordinator *DecisionCoordinator
	Runs        run.Repository
	Executor    RunStarter
	Dedup       *idempotency.Coordinator

	// DefaultProjectID is used when the originating Run (named by the
	// adjustment event's run_id) can no longer be read.
	DefaultProjectID string
}

// Wire registers the bridge's subscriptions on Bus. Call once during
// startup before any WorkflowAdjustmentRequestedEvent can be published.
func (b *DecisionBridge) Wire() {
	bus.Subscribe(b.Bus, b.handleAdjustmentRequested)
	bus.Subscribe(b.Bus, b.handleDecisionMade)
}

// handleAdjustmentRequested turns the acceptance loop's REPLAN signal into
// a candidate execute_workflow decision.
func (b *DecisionBridge) handleAdjustmentRequested(ctx context.Context, ev bus.WorkflowAdjustmentRequestedEvent) error {
	decision := bus.DecisionMadeEvent{
		Source:             "decision_bridge",
		WorkflowID:         ev.WorkflowID,
		DecisionType:       "execute_workflow",
		CorrelationID:      stringField(ev.ExecutionContext, "run_id"),
		OriginalDecisionID: stringField(ev.ExecutionContext, "reflection_id"),
		Payload:            ev.ExecutionContext,
	}
	return b.Bus.Publish(ctx, decision)
}

// handleDecisionMade validates a candidate decision and, once allowed,
// executes it. Decision types other than execute_workflow are ignored —
// this bridge only drives workflow re-execution; other decision kinds are
// reserved for future bridges sharing the same bus.
func (b *DecisionBridge) handleDecisionMade(ctx context.Context, decision bus.DecisionMadeEvent) error {
	if decision.DecisionType != "execute_workflow" {
		return nil
	}

	allow, reason := b.Coordinator.Evaluate(ctx, decision)
	if !allow {
		return b.Bus.Publish(ctx, bus.DecisionRejectedEvent{DecisionMadeEvent: decision, Reason: reason})
	}
	if err := b.Bus.Publish(ctx, bus.DecisionValidatedEvent{DecisionMadeEvent: decision}); err != nil {
		return err
	}
	return b.executeValidated(ctx, decision)
}

func (b *DecisionBridge) executeValidated(ctx context.Context, decision bus.DecisionMadeEvent) error {
	idemKey := decision.OriginalDecisionID
	if idemKey == "" {
		idemKey = decision.CorrelationID
	}

	projectID := b.DefaultProjectID
	if previous, err := b.Runs.GetByID(ctx, decision.CorrelationID); err == nil {
		projectID = previous.ProjectID
	}

	newRun, err := b.Runs.CreateWithIdempotency(ctx, projectID, decision.WorkflowID, idemKey)
	if err != nil {
		return b.publishResult(ctx, decision, "failed", "", err)
	}

	result, err := b.Dedup.Run(ctx, "decision_bridge:"+idemKey, func(ctx context.Context) (any, error) {
		return b.Executor.ExecuteWithResults(ctx, decision.WorkflowID, newRun.ID, decision.CorrelationID, decision.OriginalDecisionID, nil)
	})
	if err != nil {
		return b.publishResult(ctx, decision, "failed", newRun.ID, err)
	}

	status := "failed"
	if execResult, ok := result.(orchestrator.Result); ok && execResult.Success {
		status = "succeeded"
	}
	return b.publishResult(ctx, decision, status, newRun.ID, nil)
}

func (b *DecisionBridge) publishResult(ctx context.Context, decision bus.DecisionMadeEvent, status, runID string, err error) error {
	event := bus.ExecutionResultEvent{
		Status:        status,
		CorrelationID: decision.CorrelationID,
		RunID:         runID,
		WorkflowID:    decision.WorkflowID,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return b.Bus.Publish(ctx, event)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
