package agent

import (
	"context"
	"testing"

	"github.com/dshills/workflowcore/bus"
)

func TestDecisionCoordinatorAllowsWhenNoValidators(t *testing.T) {
	c := NewDecisionCoordinator()
	allow, reason := c.Evaluate(context.Background(), bus.DecisionMadeEvent{})
	if !allow || reason != "" {
		t.Fatalf("expected allow with no reason, got allow=%v reason=%q", allow, reason)
	}
}

func TestDecisionCoordinatorFirstRejectionWins(t *testing.T) {
	calledSecond := false
	alwaysReject := func(context.Context, bus.DecisionMadeEvent) (bool, string) { return false, "first_rejects" }
	second := func(context.Context, bus.DecisionMadeEvent) (bool, string) {
		calledSecond = true
		return true, ""
	}
	c := NewDecisionCoordinator(alwaysReject, second)

	allow, reason := c.Evaluate(context.Background(), bus.DecisionMadeEvent{})
	if allow || reason != "first_rejects" {
		t.Fatalf("expected rejection from first validator, got allow=%v reason=%q", allow, reason)
	}
	if calledSecond {
		t.Fatal("expected second validator not to run after first rejection")
	}
}

func TestMaxReplanAttemptsValidatorRejectsOverCeiling(t *testing.T) {
	v := MaxReplanAttemptsValidator(3)

	allow, _ := v(context.Background(), bus.DecisionMadeEvent{Payload: map[string]any{"next_attempt": 4}})
	if allow {
		t.Fatal("expected rejection when next_attempt exceeds ceiling")
	}

	allow, reason := v(context.Background(), bus.DecisionMadeEvent{Payload: map[string]any{"next_attempt": 3}})
	if !allow || reason != "" {
		t.Fatalf("expected allow at the ceiling, got allow=%v reason=%q", allow, reason)
	}
}

func TestMaxReplanAttemptsValidatorAllowsMissingAttempt(t *testing.T) {
	v := MaxReplanAttemptsValidator(3)
	allow, _ := v(context.Background(), bus.DecisionMadeEvent{Payload: map[string]any{}})
	if !allow {
		t.Fatal("expected allow when next_attempt absent")
	}
}

func TestAllowedWorkflowValidator(t *testing.T) {
	v := AllowedWorkflowValidator(map[string]bool{"wf_a": true})

	allow, _ := v(context.Background(), bus.DecisionMadeEvent{WorkflowID: "wf_a"})
	if !allow {
		t.Fatal("expected wf_a to be allowed")
	}

	allow, reason := v(context.Background(), bus.DecisionMadeEvent{WorkflowID: "wf_b"})
	if allow || reason != "workflow_not_allowed" {
		t.Fatalf("expected wf_b rejected, got allow=%v reason=%q", allow, reason)
	}
}

func TestAllowedWorkflowValidatorEmptyAllowlistPermitsAll(t *testing.T) {
	v := AllowedWorkflowValidator(nil)
	allow, _ := v(context.Background(), bus.DecisionMadeEvent{WorkflowID: "anything"})
	if !allow {
		t.Fatal("expected empty allowlist to permit any workflow")
	}
}
