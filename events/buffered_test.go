package events

import "testing"

func TestBufferedEmitterRecordsPerRunHistory(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(RunEvent{RunID: "run_1", Type: "node_start", NodeID: "a"})
	b.Emit(RunEvent{RunID: "run_1", Type: "node_end", NodeID: "a"})
	b.Emit(RunEvent{RunID: "run_2", Type: "node_start", NodeID: "b"})

	if got := b.GetHistory("run_1"); len(got) != 2 {
		t.Fatalf("expected 2 events for run_1, got %d", len(got))
	}
	if got := b.GetHistory("run_2"); len(got) != 1 {
		t.Fatalf("expected 1 event for run_2, got %d", len(got))
	}
	if got := b.GetHistory("missing"); got != nil {
		t.Fatalf("expected nil history for unknown run, got %+v", got)
	}
}

func TestBufferedEmitterFilterByTypeAndNode(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(RunEvent{RunID: "run_1", Type: "node_start", NodeID: "a"})
	b.Emit(RunEvent{RunID: "run_1", Type: "node_error", NodeID: "a"})
	b.Emit(RunEvent{RunID: "run_1", Type: "node_start", NodeID: "b"})

	filtered := b.GetHistoryWithFilter("run_1", HistoryFilter{NodeID: "a", Type: "node_error"})
	if len(filtered) != 1 || filtered[0].NodeID != "a" {
		t.Fatalf("expected single filtered event, got %+v", filtered)
	}
}

func TestBufferedEmitterClear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(RunEvent{RunID: "run_1", Type: "node_start"})
	b.Emit(RunEvent{RunID: "run_2", Type: "node_start"})

	b.Clear("run_1")
	if got := b.GetHistory("run_1"); len(got) != 0 {
		t.Fatalf("expected run_1 cleared, got %+v", got)
	}
	if got := b.GetHistory("run_2"); len(got) != 1 {
		t.Fatalf("expected run_2 untouched, got %+v", got)
	}

	b.Clear("")
	if got := b.GetHistory("run_2"); len(got) != 0 {
		t.Fatalf("expected all runs cleared, got %+v", got)
	}
}
