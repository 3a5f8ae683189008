package acceptance

import (
	"testing"

	"github.com/dshills/workflowcore/criteria"
	"github.com/dshills/workflowcore/evidence"
)

func baselineCriterion() criteria.Criterion {
	return criteria.Criterion{
		ID:                 "crit_baseline01",
		Text:               criteria.BaselineSuccessCriterionText,
		Source:             criteria.SourceInferred,
		VerificationMethod: criteria.MethodRunEvent,
	}
}

func completedEvidence() evidence.Snapshot {
	return evidence.Snapshot{
		RunID: "run_1",
		Summary: evidence.Summary{
			TerminalEventType: "workflow_complete",
			EventRefsByType: map[string][]string{
				"workflow_complete": {"run_event:run_1:execution:3"},
			},
		},
	}
}

func TestEvaluateConflictYieldsNeedUser(t *testing.T) {
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion()},
			Conflicts: []criteria.Conflict{
				{LeftID: "crit_a", RightID: "crit_b", Reason: "conflict_on_core:x"},
			},
		},
		Evidence:          completedEvidence(),
		Attempt:           1,
		MaxReplanAttempts: 3,
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != NeedUser {
		t.Fatalf("expected NEED_USER, got %s", result.Verdict)
	}
	if len(result.UserQuestions) == 0 {
		t.Error("expected at least one user question for a conflict")
	}
}

func TestEvaluateAllSatisfiedYieldsPass(t *testing.T) {
	passed := true
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion()},
		},
		Evidence:                 completedEvidence(),
		Attempt:                  1,
		MaxReplanAttempts:        3,
		TestsPassed:              &passed,
		TestReportRef:            "artifact:report:1",
		RequireTestReportForPass: true,
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != Pass {
		t.Fatalf("expected PASS, got %s: unmet=%v missing=%v", result.Verdict, result.UnmetCriteria, result.MissingEvidence)
	}
}

func TestEvaluateMissingTestReportBlocksPass(t *testing.T) {
	passed := true
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion()},
		},
		Evidence:                 completedEvidence(),
		Attempt:                  1,
		MaxReplanAttempts:        3,
		TestsPassed:              &passed,
		TestReportRef:            "",
		RequireTestReportForPass: true,
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict == Pass {
		t.Fatal("expected a non-PASS verdict when test_report_ref is required but absent")
	}
}

func TestEvaluateUnverifiableCriterionYieldsNeedUser(t *testing.T) {
	manual := criteria.Criterion{
		ID:                 "crit_manual01",
		Text:               "界面看起来专业美观",
		Source:             criteria.SourceInferred,
		VerificationMethod: criteria.MethodManual,
	}
	passed := true
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria:                []criteria.Criterion{baselineCriterion(), manual},
			UnverifiableCriteriaIDs: []string{manual.ID},
		},
		Evidence:          completedEvidence(),
		Attempt:           1,
		MaxReplanAttempts: 3,
		TestsPassed:       &passed,
		TestReportRef:     "artifact:report:1",
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != NeedUser {
		t.Fatalf("expected NEED_USER, got %s", result.Verdict)
	}
	if len(result.UserQuestions) == 0 {
		t.Error("expected a clarification question for the unverifiable criterion")
	}
}

func TestEvaluateAttemptAtMaxYieldsBlocked(t *testing.T) {
	unmetCrit := criteria.Criterion{
		ID:                 "crit_unmet01",
		Text:               "输出必须包含图表",
		Source:             criteria.SourceUser,
		VerificationMethod: criteria.MethodArtifact,
	}
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion(), unmetCrit},
		},
		Evidence:          completedEvidence(),
		Attempt:           3,
		MaxReplanAttempts: 3,
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != Blocked {
		t.Fatalf("expected BLOCKED, got %s", result.Verdict)
	}
	if result.BlockedReason == "" {
		t.Error("expected a non-empty blocked reason")
	}
}

func TestEvaluateNonShrinkingUnmetYieldsNeedUser(t *testing.T) {
	unmetCrit := criteria.Criterion{
		ID:                 "crit_unmet02",
		Text:               "输出必须包含图表",
		Source:             criteria.SourceUser,
		VerificationMethod: criteria.MethodArtifact,
	}
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion(), unmetCrit},
		},
		Evidence:          completedEvidence(),
		Attempt:           2,
		MaxReplanAttempts: 5,
		PreviousUnmetIDs:  []string{unmetCrit.ID},
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != NeedUser {
		t.Fatalf("expected NEED_USER when unmet criteria did not shrink, got %s", result.Verdict)
	}
}

func TestEvaluateShrinkingUnmetYieldsReplan(t *testing.T) {
	stillUnmet := criteria.Criterion{
		ID:                 "crit_unmet03",
		Text:               "输出必须包含图表",
		Source:             criteria.SourceUser,
		VerificationMethod: criteria.MethodArtifact,
	}
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion(), stillUnmet},
		},
		Evidence:          completedEvidence(),
		Attempt:           2,
		MaxReplanAttempts: 5,
		PreviousUnmetIDs:  []string{stillUnmet.ID, "crit_other_now_resolved"},
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != Replan {
		t.Fatalf("expected REPLAN, got %s", result.Verdict)
	}
	if len(result.ReplanConstraints) == 0 {
		t.Error("expected replan constraints naming the unmet criterion")
	}
}

func TestEvaluateRejectsInvalidAttempt(t *testing.T) {
	if _, err := Evaluate(Input{Attempt: 0, MaxReplanAttempts: 3}); err == nil {
		t.Fatal("expected error for attempt < 1")
	}
	if _, err := Evaluate(Input{Attempt: 1, MaxReplanAttempts: 0}); err == nil {
		t.Fatal("expected error for max_replan_attempts < 1")
	}
}

func TestEvaluateFirstAttemptWithUnmetHasNoPreviousComparison(t *testing.T) {
	unmetCrit := criteria.Criterion{
		ID:                 "crit_unmet04",
		Text:               "输出必须包含图表",
		Source:             criteria.SourceUser,
		VerificationMethod: criteria.MethodArtifact,
	}
	in := Input{
		Criteria: criteria.Snapshot{
			Criteria: []criteria.Criterion{baselineCriterion(), unmetCrit},
		},
		Evidence:          completedEvidence(),
		Attempt:           1,
		MaxReplanAttempts: 3,
	}
	result, err := Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != Replan {
		t.Fatalf("expected REPLAN on first attempt with no prior comparison, got %s", result.Verdict)
	}
}
