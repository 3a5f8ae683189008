package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dshills/workflowcore/acceptance"
	"github.com/dshills/workflowcore/bus"
	"github.com/dshills/workflowcore/criteria"
	"github.com/dshills/workflowcore/evidence"
	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/run"
	"github.com/dshills/workflowcore/telemetry"
)

const (
	acceptanceExecutorID = "acceptance_loop_v1"
	reflectionIDVersion  = "v1"
)

// AcceptanceLoopOrchestrator is the C10 coordinator invoked on a Run's
// terminal event: it collects evidence, builds a test report, runs the
// evaluator, and persists the resulting reflection trail idempotently by
// reflection_id, publishing a REPLAN domain event at most once per
// reflection.
type AcceptanceLoopOrchestrator struct {
	Criteria  *criteria.Manager
	Evidence  *evidence.Collector
	Runs      run.Repository
	Journal   journal.Journal
	Workflows WorkflowRepository
	Bus       *bus.Bus

	// Tracer spans each reflection pass. Nil is valid and disables tracing.
	Tracer *telemetry.Tracer
}

// computeReflectionID derives the idempotency anchor for one
// (run, criteria) evaluation: "v1" fixes the hash scheme so a future
// change to the reflection algorithm can version past already-persisted
// reflections instead of colliding with them.
func computeReflectionID(runID, criteriaHash string) string {
	material := strings.TrimSpace(runID) + "|" + strings.TrimSpace(criteriaHash) + "|" + reflectionIDVersion
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// OnRunTerminal runs the acceptance reflection for a Run that has just
// reached a terminal event. It is safe to call more than once for the same
// (run_id, criteria): every persisted event beyond the first is
// deduplicated by reflection_id, and a REPLAN is published on the bus at
// most once per reflection.
func (a *AcceptanceLoopOrchestrator) OnRunTerminal(ctx context.Context, workflowID, runID string, sessionID *string, attempt, maxReplanAttempts int, userCriteria, planCriteria []string) (result acceptance.Result, err error) {
	workflowID = strings.TrimSpace(workflowID)
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return acceptance.Result{}, run.NewError(run.CodeDomainValidation, "run_id is required")
	}
	effectiveSessionID := runID
	if sessionID != nil && strings.TrimSpace(*sessionID) != "" {
		effectiveSessionID = strings.TrimSpace(*sessionID)
	}
	if attempt < 1 {
		attempt = 1
	}
	if maxReplanAttempts < 1 {
		maxReplanAttempts = 1
	}

	var end telemetry.End
	ctx, end = a.Tracer.StartAcceptanceReflection(ctx, workflowID, runID, attempt)
	defer func() { end(err) }()

	workflow, err := a.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return acceptance.Result{}, err
	}
	snapshot := a.Criteria.BuildSnapshot(workflow.Description, userCriteria, planCriteria)
	reflectionID := computeReflectionID(runID, snapshot.CriteriaHash)

	evidenceSnap, err := a.Evidence.Collect(ctx, runID)
	if err != nil {
		return acceptance.Result{}, err
	}

	if a.alreadyReflected(ctx, runID, reflectionID) {
		return a.reevaluate(ctx, workflowID, runID, evidenceSnap, snapshot, reflectionID, attempt, maxReplanAttempts)
	}

	if evidenceSnap.Summary.TerminalEventType != journal.TypeWorkflowComplete && evidenceSnap.Summary.TerminalEventType != journal.TypeWorkflowError {
		return blockedNotTerminal(attempt, maxReplanAttempts), nil
	}

	r, err := a.Runs.GetByID(ctx, runID)
	if err != nil {
		return acceptance.Result{}, err
	}

	testsPassed, testReportRef, err := a.getOrCreateTestReport(ctx, workflowID, runID, reflectionID, attempt, snapshot.CriteriaHash, evidenceSnap)
	if err != nil {
		return acceptance.Result{}, err
	}

	if err := a.persistExecutionCompleted(ctx, workflowID, runID, effectiveSessionID, attempt, r, evidenceSnap, testReportRef); err != nil {
		return acceptance.Result{}, err
	}
	if err := a.persistReflectionRequested(ctx, workflowID, runID, effectiveSessionID, reflectionID, attempt, snapshot); err != nil {
		return acceptance.Result{}, err
	}

	result, err = acceptance.Evaluate(acceptance.Input{
		Criteria:                 snapshot,
		Evidence:                 evidenceSnap,
		Attempt:                  attempt,
		MaxReplanAttempts:        maxReplanAttempts,
		PreviousUnmetIDs:         nil,
		TestsPassed:              &testsPassed,
		TestReportRef:            testReportRef,
		RequireTestReportForPass: true,
	})
	if err != nil {
		return acceptance.Result{}, err
	}

	if err := a.persistReflectionCompleted(ctx, workflowID, runID, effectiveSessionID, reflectionID, attempt, result); err != nil {
		return acceptance.Result{}, err
	}

	if result.Verdict == acceptance.Replan {
		if err := a.publishAdjustmentRequested(ctx, workflowID, runID, effectiveSessionID, reflectionID, attempt, result); err != nil {
			return acceptance.Result{}, err
		}
	}

	return result, nil
}

// reevaluate re-runs the idempotent read-only path: no further lifecycle
// events are persisted, matching the original's behavior when
// OnRunTerminal is invoked again for a reflection_id that already
// completed.
func (a *AcceptanceLoopOrchestrator) reevaluate(ctx context.Context, workflowID, runID string, evidenceSnap evidence.Snapshot, snapshot criteria.Snapshot, reflectionID string, attempt, maxReplanAttempts int) (acceptance.Result, error) {
	if evidenceSnap.Summary.TerminalEventType != journal.TypeWorkflowComplete && evidenceSnap.Summary.TerminalEventType != journal.TypeWorkflowError {
		return blockedNotTerminal(attempt, maxReplanAttempts), nil
	}

	testsPassed, testReportRef, err := a.getOrCreateTestReport(ctx, workflowID, runID, reflectionID, attempt, snapshot.CriteriaHash, evidenceSnap)
	if err != nil {
		return acceptance.Result{}, err
	}

	return acceptance.Evaluate(acceptance.Input{
		Criteria:                 snapshot,
		Evidence:                 evidenceSnap,
		Attempt:                  attempt,
		MaxReplanAttempts:        maxReplanAttempts,
		PreviousUnmetIDs:         nil,
		TestsPassed:              &testsPassed,
		TestReportRef:            testReportRef,
		RequireTestReportForPass: true,
	})
}

func blockedNotTerminal(attempt, maxReplanAttempts int) acceptance.Result {
	return acceptance.Result{
		Verdict:           acceptance.Blocked,
		Attempt:           attempt,
		MaxReplanAttempts: maxReplanAttempts,
		BlockedReason:     "run_not_terminal",
	}
}

func (a *AcceptanceLoopOrchestrator) alreadyReflected(ctx context.Context, runID, reflectionID string) bool {
	events, _, _, err := a.Journal.List(ctx, runID, journal.ChannelLifecycle, 0, 0)
	if err != nil {
		return false
	}
	return journal.FindByPayloadKey(events, journal.TypeReflectionCompleted, "reflection_id", reflectionID) != nil
}

func (a *AcceptanceLoopOrchestrator) getOrCreateTestReport(ctx context.Context, workflowID, runID, reflectionID string, attempt int, criteriaHash string, evidenceSnap evidence.Snapshot) (bool, string, error) {
	events, _, _, err := a.Journal.List(ctx, runID, journal.ChannelLifecycle, 0, 0)
	if err != nil {
		return false, "", err
	}
	if existing := journal.FindByPayloadKey(events, journal.TypeTestReport, "reflection_id", reflectionID); existing != nil {
		status, _ := existing.Payload["status"].(string)
		return status == "passed", existing.Ref(), nil
	}

	checks := []map[string]any{
		{"check": "terminal_event", "passed": evidenceSnap.Summary.TerminalEventType == journal.TypeWorkflowComplete},
	}
	if evidenceSnap.Summary.ConfirmRequired {
		checks = append(checks, map[string]any{"check": "confirm_allow", "passed": evidenceSnap.Summary.ConfirmDecision == "allow"})
	}
	passed := true
	for _, c := range checks {
		if ok, _ := c["passed"].(bool); !ok {
			passed = false
			break
		}
	}
	status := "failed"
	if passed {
		status = "passed"
	}

	ev, _, err := a.Journal.Append(ctx, journal.AppendInput{
		RunID:   runID,
		Channel: journal.ChannelLifecycle,
		Type:    journal.TypeTestReport,
		Payload: map[string]any{
			"reflection_id": reflectionID, "workflow_id": workflowID, "run_id": runID,
			"attempt": attempt, "executor_id": acceptanceExecutorID, "status": status,
			"checks": checks, "criteria_hash": criteriaHash,
		},
	})
	if err != nil {
		return false, "", err
	}
	return passed, ev.Ref(), nil
}

func (a *AcceptanceLoopOrchestrator) persistExecutionCompleted(ctx context.Context, workflowID, runID, sessionID string, attempt int, r *run.Run, evidenceSnap evidence.Snapshot, testReportRef string) error {
	_, _, err := a.Journal.Append(ctx, journal.AppendInput{
		RunID:          runID,
		Channel:        journal.ChannelLifecycle,
		Type:           journal.TypeExecutionCompleted,
		IdempotencyKey: "workflow_execution_completed",
		Payload: map[string]any{
			"session_id": sessionID, "workflow_id": workflowID, "run_id": runID,
			"attempt": attempt, "status": string(r.Status), "started_at": r.StartedAt,
			"ended_at": r.FinishedAt, "executor_id": acceptanceExecutorID,
			"run_event_refs": evidenceSnap.RunEventRefs, "artifact_refs": []string{},
			"test_report_ref": testReportRef, "confirm_required": evidenceSnap.Summary.ConfirmRequired,
		},
	})
	return err
}

func (a *AcceptanceLoopOrchestrator) persistReflectionRequested(ctx context.Context, workflowID, runID, sessionID, reflectionID string, attempt int, snapshot criteria.Snapshot) error {
	_, _, err := a.Journal.Append(ctx, journal.AppendInput{
		RunID:          runID,
		Channel:        journal.ChannelLifecycle,
		Type:           journal.TypeReflectionRequested,
		IdempotencyKey: "workflow_reflection_requested:" + reflectionID,
		Payload: map[string]any{
			"reflection_id": reflectionID, "run_id": runID, "session_id": sessionID,
			"attempt": attempt, "criteria_hash": snapshot.CriteriaHash,
			"criteria_snapshot_ref": snapshot.CriteriaHash, "criteria_snapshot": snapshot,
			"executor_id": acceptanceExecutorID,
		},
	})
	return err
}

func (a *AcceptanceLoopOrchestrator) persistReflectionCompleted(ctx context.Context, workflowID, runID, sessionID, reflectionID string, attempt int, result acceptance.Result) error {
	_, _, err := a.Journal.Append(ctx, journal.AppendInput{
		RunID:          runID,
		Channel:        journal.ChannelLifecycle,
		Type:           journal.TypeReflectionCompleted,
		IdempotencyKey: "workflow_reflection_completed:" + reflectionID,
		Payload: map[string]any{
			"reflection_id": reflectionID, "run_id": runID, "session_id": sessionID,
			"attempt": attempt, "verdict": string(result.Verdict), "executor_id": acceptanceExecutorID,
			"unmet_criteria": result.UnmetCriteria, "evidence_map": result.EvidenceMap,
			"missing_evidence": result.MissingEvidence, "user_questions": result.UserQuestions,
			"replan_constraints": result.ReplanConstraints, "test_report_ref": result.TestReportRef,
		},
	})
	return err
}

// publishAdjustmentRequested persists the workflow_adjustment_requested
// lifecycle marker idempotently by reflection_id and publishes the domain
// event on the bus only if this is the first time it was persisted — a
// REPLAN fires at most once per reflection (§5 ordering guarantee).
func (a *AcceptanceLoopOrchestrator) publishAdjustmentRequested(ctx context.Context, workflowID, runID, sessionID, reflectionID string, attempt int, result acceptance.Result) error {
	_, deduped, err := a.Journal.Append(ctx, journal.AppendInput{
		RunID:          runID,
		Channel:        journal.ChannelLifecycle,
		Type:           journal.TypeAdjustmentRequested,
		IdempotencyKey: "workflow_adjustment_requested:" + reflectionID,
		Payload: map[string]any{
			"from_reflection_id": reflectionID, "next_attempt": attempt + 1,
			"unmet_criteria": result.UnmetCriteria, "missing_evidence": result.MissingEvidence,
			"constraints": result.ReplanConstraints, "executor_id": acceptanceExecutorID,
		},
	})
	if err != nil {
		return err
	}
	if deduped {
		return nil
	}

	if a.Bus == nil {
		return nil
	}
	return a.Bus.Publish(ctx, bus.WorkflowAdjustmentRequestedEvent{
		Source:          acceptanceExecutorID,
		WorkflowID:      workflowID,
		FailedNodeID:    "acceptance",
		FailureReason:   "acceptance_replan_requested",
		SuggestedAction: "replan",
		ExecutionContext: map[string]any{
			"run_id": runID, "reflection_id": reflectionID, "next_attempt": attempt + 1,
			"unmet_criteria": result.UnmetCriteria, "missing_evidence": result.MissingEvidence,
			"constraints": result.ReplanConstraints,
		},
	})
}
