// Package run holds the Run entity: a single tracked execution instance of a
// workflow (or, for agent_id-bound runs, of an agent), its legal lifecycle
// transitions, and the Repository port used to persist it.
package run

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run is a single executable instance of a workflow.
type Run struct {
	ID         string
	ProjectID  string
	WorkflowID string
	AgentID    string // empty for workflow runs
	Status     Status
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      string
}

// Create builds a workflow Run in StatusCreated.
func Create(projectID, workflowID string) (*Run, error) {
	projectID = strings.TrimSpace(projectID)
	workflowID = strings.TrimSpace(workflowID)
	if projectID == "" {
		return nil, NewError(CodeDomainValidation, "project_id must not be empty")
	}
	if workflowID == "" {
		return nil, NewError(CodeDomainValidation, "workflow_id must not be empty")
	}
	return &Run{
		ID:         "run_" + uuid.NewString()[:8],
		ProjectID:  projectID,
		WorkflowID: workflowID,
		Status:     StatusCreated,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// CreateAgent builds an agent Run in StatusPending. Workflow/project ids are
// optional placeholders when the agent has no concrete workflow binding.
func CreateAgent(agentID, projectID, workflowID string) (*Run, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, NewError(CodeDomainValidation, "agent_id must not be empty")
	}
	if strings.TrimSpace(projectID) == "" {
		projectID = "proj_agent"
	}
	if strings.TrimSpace(workflowID) == "" {
		workflowID = "wf_agent_" + uuid.NewString()[:8]
	}
	return &Run{
		ID:         "run_" + uuid.NewString()[:8],
		ProjectID:  strings.TrimSpace(projectID),
		WorkflowID: strings.TrimSpace(workflowID),
		AgentID:    agentID,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// DeriveIDFromIdempotencyKey computes the stable run_id used by
// CreateWithIdempotency: "run_" + sha256(project|workflow|key) truncated to
// 16 hex characters, so reissued requests with the same key converge on the
// same Run.
func DeriveIDFromIdempotencyKey(projectID, workflowID, idempotencyKey string) string {
	material := fmt.Sprintf("%s|%s|%s", strings.TrimSpace(projectID), strings.TrimSpace(workflowID), strings.TrimSpace(idempotencyKey))
	sum := sha256.Sum256([]byte(material))
	return "run_" + hex.EncodeToString(sum[:])[:16]
}

// CreateWithIdempotency builds a workflow Run whose ID is deterministically
// derived from (projectID, workflowID, idempotencyKey).
func CreateWithIdempotency(projectID, workflowID, idempotencyKey string) (*Run, error) {
	projectID = strings.TrimSpace(projectID)
	workflowID = strings.TrimSpace(workflowID)
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, NewError(CodeDomainValidation, "idempotency_key must not be empty")
	}
	if projectID == "" {
		return nil, NewError(CodeDomainValidation, "project_id must not be empty")
	}
	if workflowID == "" {
		return nil, NewError(CodeDomainValidation, "workflow_id must not be empty")
	}
	return &Run{
		ID:         DeriveIDFromIdempotencyKey(projectID, workflowID, idempotencyKey),
		ProjectID:  projectID,
		WorkflowID: workflowID,
		Status:     StatusCreated,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (r *Run) assertCanTransition(target Status) error {
	if !r.Status.CanTransitionTo(target) {
		return NewError(CodeDomainValidation, "illegal status transition: %s -> %s", r.Status, target)
	}
	return nil
}

// Start transitions a Created/Pending run to Running, setting StartedAt on
// first entry.
func (r *Run) Start() error {
	if r.Status != StatusCreated && r.Status != StatusPending {
		return NewError(CodeDomainValidation, "can only start from created/pending, got %s", r.Status)
	}
	if err := r.assertCanTransition(StatusRunning); err != nil {
		return err
	}
	r.Status = StatusRunning
	if r.StartedAt == nil {
		now := time.Now().UTC()
		r.StartedAt = &now
	}
	return nil
}

// Complete transitions Running -> Completed.
func (r *Run) Complete() error {
	if err := r.assertCanTransition(StatusCompleted); err != nil {
		return err
	}
	r.Status = StatusCompleted
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Error = ""
	return nil
}

// Succeed transitions Running -> Succeeded (the agent-run terminal state).
func (r *Run) Succeed() error {
	if r.Status != StatusRunning {
		return NewError(CodeDomainValidation, "can only succeed from running, got %s", r.Status)
	}
	if err := r.assertCanTransition(StatusSucceeded); err != nil {
		return err
	}
	r.Status = StatusSucceeded
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Error = ""
	return nil
}

// Fail transitions Running -> Failed.
func (r *Run) Fail(errMsg string) error {
	if r.Status != StatusRunning {
		return NewError(CodeDomainValidation, "can only fail from running, got %s", r.Status)
	}
	if err := r.assertCanTransition(StatusFailed); err != nil {
		return err
	}
	r.Status = StatusFailed
	now := time.Now().UTC()
	r.FinishedAt = &now
	if strings.TrimSpace(errMsg) != "" {
		r.Error = strings.TrimSpace(errMsg)
	}
	return nil
}

// IsTerminal reports whether the run has reached an absorbing state.
func (r *Run) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Duration returns the run's wall-clock duration, or nil if not yet
// terminal.
func (r *Run) Duration() *time.Duration {
	if r.FinishedAt == nil {
		return nil
	}
	d := r.FinishedAt.Sub(r.CreatedAt)
	return &d
}
