package journal

import (
	"errors"
	"testing"
	"time"
)

func TestFlattenHoistsIdentifyingFields(t *testing.T) {
	e := &RunEvent{
		EventID: 42,
		RunID:   "run_abc",
		Channel: ChannelExecution,
		Type:    TypeNodeStart,
		Payload: map[string]any{"node_id": "n1", "attempt": 1},
	}

	flat, err := Flatten(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flat["type"] != TypeNodeStart {
		t.Errorf("expected type hoisted, got %v", flat["type"])
	}
	if flat["run_id"] != "run_abc" {
		t.Errorf("expected run_id hoisted, got %v", flat["run_id"])
	}
	if flat["node_id"] != "n1" {
		t.Errorf("expected payload fields preserved, got %v", flat["node_id"])
	}
	if _, hasNestedPayload := flat["payload"]; hasNestedPayload {
		t.Error("flattened event must not carry a nested payload key")
	}
}

func TestSafePayloadFallsBackOnUnserializable(t *testing.T) {
	payload := map[string]any{
		"ok":  "fine",
		"bad": errors.New("boom"),
	}
	safe := SafePayload(payload)
	if safe["ok"] != "fine" {
		t.Errorf("expected untouched value preserved, got %v", safe["ok"])
	}
	if safe["bad"] != "boom" {
		t.Errorf("expected error rendered via Error(), got %v", safe["bad"])
	}
}

func TestIsTerminalType(t *testing.T) {
	if !IsTerminalType(TypeWorkflowComplete) {
		t.Error("workflow_complete must be terminal")
	}
	if !IsTerminalType(TypeWorkflowError) {
		t.Error("workflow_error must be terminal")
	}
	if IsTerminalType(TypeNodeStart) {
		t.Error("node_start must not be terminal")
	}
}

func TestHasEventOfTypeAndFindByPayloadKey(t *testing.T) {
	events := []*RunEvent{
		{EventID: 1, Type: TypeReflectionRequested, Payload: map[string]any{"reflection_id": "r1"}, CreatedAt: time.Now()},
		{EventID: 2, Type: TypeReflectionRequested, Payload: map[string]any{"reflection_id": "r2"}, CreatedAt: time.Now()},
	}
	if !HasEventOfType(events, TypeReflectionRequested) {
		t.Error("expected to find reflection_requested event")
	}
	if HasEventOfType(events, TypeReflectionCompleted) {
		t.Error("expected no reflection_completed event")
	}
	found := FindByPayloadKey(events, TypeReflectionRequested, "reflection_id", "r2")
	if found == nil || found.EventID != 2 {
		t.Errorf("expected to find event 2 by reflection_id, got %+v", found)
	}
}
