package confirm

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCreateOrGetPendingIsIdempotentPerRun(t *testing.T) {
	s := NewStore()

	first, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.CreateOrGetPending("run_1", "wf_1", "node_b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ConfirmID != second.ConfirmID {
		t.Errorf("expected same pending confirmation while unresolved, got %s vs %s", first.ConfirmID, second.ConfirmID)
	}
}

func TestCreateOrGetPendingRejectsBlankFields(t *testing.T) {
	s := NewStore()
	if _, err := s.CreateOrGetPending("", "wf_1", "node_a"); err == nil {
		t.Error("expected error for blank run_id")
	}
	if _, err := s.CreateOrGetPending("run_1", "", "node_a"); err == nil {
		t.Error("expected error for blank workflow_id")
	}
	if _, err := s.CreateOrGetPending("run_1", "wf_1", ""); err == nil {
		t.Error("expected error for blank node_id")
	}
}

func TestResolveAndWaitForDecisionAllow(t *testing.T) {
	s := NewStore()
	pending, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var decision Decision
	go func() {
		defer wg.Done()
		decision, err = s.WaitForDecision(context.Background(), pending.ConfirmID, time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	if resolveErr := s.Resolve("run_1", pending.ConfirmID, Allow); resolveErr != nil {
		t.Fatalf("unexpected resolve error: %v", resolveErr)
	}
	wg.Wait()

	if err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if decision != Allow {
		t.Errorf("expected Allow, got %s", decision)
	}
}

func TestWaitForDecisionTimesOutToDeny(t *testing.T) {
	s := NewStore()
	pending, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decision, err := s.WaitForDecision(context.Background(), pending.ConfirmID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != Deny {
		t.Errorf("expected fail-closed Deny on timeout, got %s", decision)
	}
}

func TestWaitForDecisionContextCancelDenies(t *testing.T) {
	s := NewStore()
	pending, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision, err := s.WaitForDecision(ctx, pending.ConfirmID, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != Deny {
		t.Errorf("expected fail-closed Deny on cancellation, got %s", decision)
	}
}

func TestConfirmIDNotReusedAfterResolution(t *testing.T) {
	s := NewStore()
	pending, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Resolve("run_1", pending.ConfirmID, Allow); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if _, err := s.WaitForDecision(context.Background(), pending.ConfirmID, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The confirm_id is now cleaned up; resolving it again must fail rather
	// than silently succeeding against a stale entry.
	if err := s.Resolve("run_1", pending.ConfirmID, Deny); err == nil {
		t.Error("expected error resolving a cleaned-up confirm_id")
	}

	next, err := s.CreateOrGetPending("run_1", "wf_1", "node_b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ConfirmID == pending.ConfirmID {
		t.Error("expected a fresh confirm_id for the next pending confirmation")
	}
}

func TestResolveRejectsMismatchedRun(t *testing.T) {
	s := NewStore()
	pending, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Resolve("run_2", pending.ConfirmID, Allow); err == nil {
		t.Error("expected error resolving with mismatched run_id")
	}
}

func TestResolveRejectsInvalidDecision(t *testing.T) {
	s := NewStore()
	pending, err := s.CreateOrGetPending("run_1", "wf_1", "node_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Resolve("run_1", pending.ConfirmID, Decision("maybe")); err == nil {
		t.Error("expected error for invalid decision value")
	}
}
