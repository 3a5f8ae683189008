// Package orchestrator implements the Run Execution Entry (C9) and the
// Acceptance Loop Orchestrator (C10): the single orchestration path shared
// by every caller that turns a CREATED Run into a streamed, journaled
// execution with a bounded, config-only ReAct repair loop, and the
// evidence -> verdict -> REPLAN pipeline triggered on a Run's terminal
// event.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/dshills/workflowcore/confirm"
	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/kernel"
	"github.com/dshills/workflowcore/run"
	"github.com/dshills/workflowcore/telemetry"
)

// ReAct repair-loop bounds (§4.9.1). A stream that exceeds any of these
// emits a workflow_termination_report and ends the Run in error.
const (
	confirmTimeout              = 300 * time.Second
	reactMaxAttempts            = 6
	reactMaxConsecutiveFailures = 3
	reactMaxElapsed             = 600 * time.Second
	reactMaxLLMCalls            = 20
)

// RunExecutionEntry is the Run-level authoritative execution orchestrator
// (C9): HTTP execute/stream and an internal agent's execute_workflow share
// this one entry point, never the kernel directly.
type RunExecutionEntry struct {
	Workflows  WorkflowRepository
	Runs       run.Repository
	Journal    journal.Journal
	Kernel     *kernel.Kernel
	Confirm    *confirm.Store
	Tools      ToolCatalog
	ExecutorID string

	// Tracer spans the Run claim and the kernel stream. Nil disables tracing.
	Tracer *telemetry.Tracer
}

// Result is ExecuteWithResults' summary of a fully drained stream.
type Result struct {
	Success    bool
	Status     string
	WorkflowID string
	RunID      string
	ExecutorID string
	Events     []kernel.Event
}

// Prepare validates the workflow and the run gate, then atomically claims
// the Run (CREATED -> RUNNING) and appends workflow_start — all before any
// node executes. A second concurrent Prepare for the same run_id fails with
// CodeDuplicateExecution; the claim is the single source of truth (§4.8).
func (e *RunExecutionEntry) Prepare(ctx context.Context, workflowID, runID, correlationID, originalDecisionID string) (err error) {
	workflowID = strings.TrimSpace(workflowID)
	runID = strings.TrimSpace(runID)

	var end telemetry.End
	ctx, end = e.Tracer.StartRunClaim(ctx, workflowID, runID)
	defer func() { end(err) }()

	if workflowID == "" {
		return run.NewError(run.CodeDomainValidation, "workflow_id is required")
	}
	if runID == "" {
		return run.NewError(run.CodeDomainValidation, "run_id is required")
	}

	workflow, err := e.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return err
	}
	checker, err := buildToolChecker(ctx, e.Tools)
	if err != nil {
		return err
	}
	if err := kernel.Validate(workflow, checker); err != nil {
		return err
	}

	r, err := e.Runs.GetByID(ctx, runID)
	if err != nil {
		return &kernel.Error{Code: kernel.CodeRunNotFound, Message: "run_id not found: " + runID}
	}
	if r.WorkflowID != workflowID {
		return &kernel.Error{Code: kernel.CodeRunWrongWorkflow, Message: "run_id does not belong to this workflow"}
	}
	if r.Status != run.StatusCreated {
		return &kernel.Error{Code: kernel.CodeRunNotExecutable, Message: "run is not executable (status=" + string(r.Status) + ")"}
	}

	return e.Kernel.GateExecute(ctx, workflowID, correlationID, originalDecisionID, func(ctx context.Context) error {
		claimed, err := e.Runs.UpdateStatusIfCurrent(ctx, runID, run.StatusCreated, run.StatusRunning)
		if err != nil {
			return err
		}
		if !claimed {
			return &kernel.Error{Code: kernel.CodeDuplicateExecution, Message: "duplicate execution dropped (run already claimed)"}
		}
		_, _, err = e.Journal.Append(ctx, journal.AppendInput{
			RunID:   runID,
			Channel: journal.ChannelLifecycle,
			Type:    journal.TypeWorkflowStart,
			Payload: map[string]any{"workflow_id": workflowID, "executor_id": e.ExecutorID},
		})
		return err
	})
}

// StreamAfterGate streams the execution after Prepare has already claimed
// the Run: the side-effect confirmation gate, the node-by-node kernel
// stream, and — on attempt failure — the bounded ReAct repair loop. The
// stream always ends with exactly one terminal event and a persisted
// terminal lifecycle marker, whichever branch it takes.
func (e *RunExecutionEntry) StreamAfterGate(ctx context.Context, workflowID, runID string, initialState map[string]any) <-chan kernel.Event {
	out := make(chan kernel.Event, 4)

	go func() {
		defer close(out)
		spanCtx, end := e.Tracer.StartKernelStream(ctx, strings.TrimSpace(workflowID), strings.TrimSpace(runID))
		defer func() { end(nil) }()
		s := &streamSession{entry: e, workflowID: strings.TrimSpace(workflowID), runID: strings.TrimSpace(runID), out: out}
		s.run(spanCtx, initialState)
	}()

	return out
}

// ExecuteWithResults runs Prepare then drains StreamAfterGate, returning the
// outcome instead of a live stream — the shape a synchronous caller (e.g. an
// internal agent) wants.
func (e *RunExecutionEntry) ExecuteWithResults(ctx context.Context, workflowID, runID, correlationID, originalDecisionID string, initialState map[string]any) (Result, error) {
	if err := e.Prepare(ctx, workflowID, runID, correlationID, originalDecisionID); err != nil {
		return Result{}, err
	}

	var events []kernel.Event
	for ev := range e.StreamAfterGate(ctx, workflowID, runID, initialState) {
		events = append(events, ev)
	}

	status := "unknown"
	success := false
	if r, err := e.Runs.GetByID(ctx, runID); err == nil {
		status = string(r.Status)
		success = r.Status == run.StatusCompleted
	}
	terminalType := kernel.EventType("")
	executorID := e.ExecutorID
	if len(events) > 0 {
		last := events[len(events)-1]
		terminalType = last.Type
		if last.ExecutorID != "" {
			executorID = last.ExecutorID
		}
	}

	return Result{
		Success:    success && terminalType == kernel.EventWorkflowComplete,
		Status:     status,
		WorkflowID: workflowID,
		RunID:      runID,
		ExecutorID: executorID,
		Events:     events,
	}, nil
}
