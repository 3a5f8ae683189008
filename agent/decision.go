// Package agent implements the Decision Bridge half of the Event Bus +
// Decision Bridge component (C11) and the conversation agent that drives
// it: turning a WorkflowAdjustmentRequestedEvent (or any other decision
// source) into a validated execute_workflow decision and a new Run,
// without the bus itself having to know what a "decision" is for.
package agent

import (
	"context"

	"github.com/dshills/workflowcore/bus"
)

// Validator inspects a candidate decision and reports whether it may
// proceed. A non-empty reason explains a false verdict and becomes the
// DecisionRejectedEvent's Reason.
type Validator func(ctx context.Context, decision bus.DecisionMadeEvent) (allow bool, reason string)

// DecisionCoordinator runs a DecisionMadeEvent through every registered
// Validator, first-rejection-wins, mirroring a chain-of-responsibility
// middleware stack rather than a single monolithic check so individual
// policies (rate limits, replan-count ceilings, workflow allowlists) can be
// composed independently.
type DecisionCoordinator struct {
	validators []Validator
}

// NewDecisionCoordinator builds a coordinator from zero or more validators,
// run in the order given.
func NewDecisionCoordinator(validators ...Validator) *DecisionCoordinator {
	return &DecisionCoordinator{validators: validators}
}

// Evaluate runs decision through every validator, returning the first
// rejection encountered, or allow=true if all validators pass (including
// the zero-validator case).
func (c *DecisionCoordinator) Evaluate(ctx context.Context, decision bus.DecisionMadeEvent) (allow bool, reason string) {
	for _, v := range c.validators {
		if ok, why := v(ctx, decision); !ok {
			return false, why
		}
	}
	return true, ""
}

// MaxReplanAttemptsValidator rejects a decision whose ExecutionContext
// carries a "next_attempt" beyond maxAttempts, so a runaway REPLAN
// chain cannot keep re-entering the bridge after the acceptance loop's own
// BLOCKED ceiling should have taken over.
func MaxReplanAttemptsValidator(maxAttempts int) Validator {
	return func(_ context.Context, decision bus.DecisionMadeEvent) (bool, string) {
		next, ok := decision.Payload["next_attempt"].(int)
		if !ok {
			return true, ""
		}
		if next > maxAttempts {
			return false, "max_replan_attempts_exceeded"
		}
		return true, ""
	}
}

// AllowedWorkflowValidator rejects a decision for any workflow ID not in
// allowed, when allowed is non-empty. An empty allowlist permits every
// workflow.
func AllowedWorkflowValidator(allowed map[string]bool) Validator {
	return func(_ context.Context, decision bus.DecisionMadeEvent) (bool, string) {
		if len(allowed) == 0 {
			return true, ""
		}
		if !allowed[decision.WorkflowID] {
			return false, "workflow_not_allowed"
		}
		return true, ""
	}
}
