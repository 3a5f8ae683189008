// Package confirm implements the C3 Confirmation Store: an in-memory,
// fail-closed confirm/allow/deny gate that the execution kernel blocks on
// before a node with a side-effect contract runs.
//
// It is deliberately in-memory only for the MVP (§4.3, PRD-030): durability
// and retry after a process restart are handled by replaying the journal's
// workflow_confirm_required / workflow_confirmed events, not by this store.
package confirm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/workflowcore/run"
)

// Decision is the outcome of a confirmation gate.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// PendingConfirmation is a single outstanding confirmation gate for a Run.
// There is at most one pending confirmation per run_id at any time.
type PendingConfirmation struct {
	ConfirmID   string
	RunID       string
	WorkflowID  string
	NodeID      string
	CreatedAt   time.Time

	mu       sync.Mutex
	resolved bool
	result   Decision
	done     chan struct{}
}

func (p *PendingConfirmation) resolve(decision Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true
	p.result = decision
	close(p.done)
}

// Store is an in-memory confirmation store keyed by run_id and confirm_id.
type Store struct {
	mu               sync.Mutex
	pendingByConfirm map[string]*PendingConfirmation
	confirmByRun     map[string]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		pendingByConfirm: make(map[string]*PendingConfirmation),
		confirmByRun:     make(map[string]string),
	}
}

// CreateOrGetPending returns the single in-flight confirmation for runID,
// creating one if none is pending. A second call for the same run_id while
// the first is still unresolved returns the same PendingConfirmation, so
// the gate stays idempotent across retries of the same node.
func (s *Store) CreateOrGetPending(runID, workflowID, nodeID string) (*PendingConfirmation, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, run.NewError(run.CodeDomainValidation, "run_id is required")
	}
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return nil, run.NewError(run.CodeDomainValidation, "workflow_id is required")
	}
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, run.NewError(run.CodeDomainValidation, "node_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.confirmByRun[runID]; ok {
		if existing, ok := s.pendingByConfirm[existingID]; ok && !existing.isDone() {
			return existing, nil
		}
	}

	pending := &PendingConfirmation{
		ConfirmID:  uuid.NewString(),
		RunID:      runID,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		CreatedAt:  time.Now(),
		done:       make(chan struct{}),
	}
	s.pendingByConfirm[pending.ConfirmID] = pending
	s.confirmByRun[runID] = pending.ConfirmID
	return pending, nil
}

func (p *PendingConfirmation) isDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

// Resolve records the human decision for confirmID. Resolving an
// already-resolved confirmation is a no-op, matching the fail-closed
// at-most-once semantics of the journal's workflow_confirmed event.
func (s *Store) Resolve(runID, confirmID string, decision Decision) error {
	runID = strings.TrimSpace(runID)
	confirmID = strings.TrimSpace(confirmID)
	if runID == "" {
		return run.NewError(run.CodeDomainValidation, "run_id is required")
	}
	if confirmID == "" {
		return run.NewError(run.CodeDomainValidation, "confirm_id is required")
	}
	if decision != Allow && decision != Deny {
		return run.NewError(run.CodeDomainValidation, "decision must be 'allow' or 'deny'")
	}

	s.mu.Lock()
	pending, ok := s.pendingByConfirm[confirmID]
	s.mu.Unlock()
	if !ok {
		return run.NewError(run.CodeNotFound, "confirmation not found (may be expired)")
	}
	if pending.RunID != runID {
		return run.NewError(run.CodeDomainValidation, "confirm_id does not belong to this run_id")
	}

	pending.resolve(decision)
	return nil
}

// WaitForDecision blocks until confirmID is resolved, ctx is canceled, or
// timeout elapses. Any non-allow outcome — including timeout and context
// cancellation — returns Deny: the gate is fail-closed, never fail-open.
// The pending confirmation is always cleaned up before returning, so a
// confirm_id is never reused across Runs.
func (s *Store) WaitForDecision(ctx context.Context, confirmID string, timeout time.Duration) (Decision, error) {
	confirmID = strings.TrimSpace(confirmID)
	if confirmID == "" {
		return Deny, run.NewError(run.CodeDomainValidation, "confirm_id is required")
	}

	s.mu.Lock()
	pending, ok := s.pendingByConfirm[confirmID]
	s.mu.Unlock()
	if !ok {
		return Deny, run.NewError(run.CodeNotFound, "confirmation not found (may be expired)")
	}
	defer s.cleanup(confirmID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-pending.done:
		pending.mu.Lock()
		decision := pending.result
		pending.mu.Unlock()
		return decision, nil
	case <-timer.C:
		return Deny, nil
	case <-ctx.Done():
		return Deny, nil
	}
}

func (s *Store) cleanup(confirmID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.pendingByConfirm[confirmID]
	if !ok {
		return
	}
	delete(s.pendingByConfirm, confirmID)
	if s.confirmByRun[pending.RunID] == confirmID {
		delete(s.confirmByRun, pending.RunID)
	}
}
