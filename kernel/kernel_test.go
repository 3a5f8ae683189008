package kernel

import (
	"context"
	"errors"
	"testing"
)

func linearWorkflow() *Workflow {
	return &Workflow{
		ID:          "wf_1",
		StartNodeID: "start",
		EndNodeID:   "end",
		Nodes: []WorkflowNode{
			{ID: "start", Type: NodeTypeStart},
			{ID: "step1", Type: NodeTypeLLM, Config: NodeConfig{ModelProvider: "mock"}},
			{ID: "end", Type: NodeTypeEnd},
		},
	}
}

func drain(events <-chan Event) []Event {
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestStreamAfterGateHappyPath(t *testing.T) {
	registry := NewExecutorRegistry(map[NodeType]NodeExecutor{
		NodeTypeStart: NodeExecutorFunc(func(_ context.Context, _ WorkflowNode, state map[string]any) NodeOutcome {
			return NodeOutcome{NextNodeID: "step1"}
		}),
		NodeTypeLLM: NodeExecutorFunc(func(_ context.Context, _ WorkflowNode, state map[string]any) NodeOutcome {
			return NodeOutcome{Output: map[string]any{"answer": "42"}, NextNodeID: "end"}
		}),
	})
	k := NewKernel(registry, nil)

	events := drain(k.StreamAfterGate(context.Background(), linearWorkflow(), "start", map[string]any{}))

	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	last := events[len(events)-1]
	if last.Type != EventWorkflowComplete {
		t.Fatalf("expected terminal workflow_complete, got %s", last.Type)
	}

	var sawNodeStart, sawNodeComplete bool
	for _, e := range events {
		if e.Type == EventNodeStart {
			sawNodeStart = true
		}
		if e.Type == EventNodeComplete {
			sawNodeComplete = true
		}
	}
	if !sawNodeStart || !sawNodeComplete {
		t.Errorf("expected node_start and node_complete events, got %+v", events)
	}
}

func TestStreamAfterGateNodeErrorEndsWithWorkflowError(t *testing.T) {
	registry := NewExecutorRegistry(map[NodeType]NodeExecutor{
		NodeTypeStart: NodeExecutorFunc(func(_ context.Context, _ WorkflowNode, _ map[string]any) NodeOutcome {
			return NodeOutcome{NextNodeID: "step1"}
		}),
		NodeTypeLLM: NodeExecutorFunc(func(_ context.Context, _ WorkflowNode, _ map[string]any) NodeOutcome {
			return NodeOutcome{Err: errors.New("boom"), ErrorType: "timeout", Retryable: true}
		}),
	})
	k := NewKernel(registry, nil)

	events := drain(k.StreamAfterGate(context.Background(), linearWorkflow(), "start", map[string]any{}))
	last := events[len(events)-1]
	if last.Type != EventWorkflowError {
		t.Fatalf("expected terminal workflow_error, got %s", last.Type)
	}
	if last.ErrorType != "timeout" || !last.Retryable {
		t.Errorf("expected error_type=timeout retryable=true, got %+v", last)
	}
}

func TestStreamAfterGateMissingExecutorIsWorkflowError(t *testing.T) {
	registry := NewExecutorRegistry(map[NodeType]NodeExecutor{
		NodeTypeStart: NodeExecutorFunc(func(_ context.Context, _ WorkflowNode, _ map[string]any) NodeOutcome {
			return NodeOutcome{NextNodeID: "step1"}
		}),
	})
	k := NewKernel(registry, nil)

	events := drain(k.StreamAfterGate(context.Background(), linearWorkflow(), "start", map[string]any{}))
	last := events[len(events)-1]
	if last.Type != EventWorkflowError {
		t.Fatalf("expected terminal workflow_error, got %s", last.Type)
	}
}

func TestGateExecuteDeniesWhenPolicyRejects(t *testing.T) {
	k := NewKernel(NewExecutorRegistry(nil), denyGate{})
	called := false
	err := k.GateExecute(context.Background(), "wf_1", "corr_1", "", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected gate to deny")
	}
	if called {
		t.Error("afterGate must not run when the gate denies")
	}
}

type denyGate struct{}

func (denyGate) Allow(_ context.Context, _, _, _ string) (bool, error) { return false, nil }

func TestGateExecuteInvokesAfterGateWhenAllowed(t *testing.T) {
	k := NewKernel(NewExecutorRegistry(nil), nil)
	called := false
	err := k.GateExecute(context.Background(), "wf_1", "corr_1", "", func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected afterGate to run when no gate policy is set")
	}
}
