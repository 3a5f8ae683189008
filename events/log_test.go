package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitterJSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)
	l.Emit(RunEvent{RunID: "run_1", WorkflowID: "wf_1", NodeID: "a", Type: "node_start"})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error: %v (buf=%q)", err, buf.String())
	}
	if decoded["run_id"] != "run_1" || decoded["type"] != "node_start" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestLogEmitterTextMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)
	l.Emit(RunEvent{RunID: "run_1", WorkflowID: "wf_1", NodeID: "a", Type: "node_start"})

	out := buf.String()
	if !strings.Contains(out, "[node_start]") || !strings.Contains(out, "run_id=run_1") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestLogEmitterDefaultsToStdoutWhenWriterNil(t *testing.T) {
	l := NewLogEmitter(nil, true)
	if l.writer == nil {
		t.Fatal("expected default writer to be set")
	}
}

func TestLogEmitterEmitBatchWritesEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)
	err := l.EmitBatch(nil, []RunEvent{
		{RunID: "run_1", Type: "node_start"},
		{RunID: "run_1", Type: "node_end"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}
