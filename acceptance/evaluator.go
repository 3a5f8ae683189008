// Package acceptance implements the Acceptance Evaluator (C6): a pure,
// side-effect-free function from (criteria, evidence, attempt) to a
// verdict.
package acceptance

import (
	"fmt"
	"strings"

	"github.com/dshills/workflowcore/criteria"
	"github.com/dshills/workflowcore/evidence"
)

// Verdict is the evaluator's decision.
type Verdict string

const (
	Pass     Verdict = "PASS"
	Replan   Verdict = "REPLAN"
	NeedUser Verdict = "NEED_USER"
	Blocked  Verdict = "BLOCKED"
)

const maxQuestions = 3
const maxReplanConstraints = 20

// Result is the evaluator's full output for one attempt.
type Result struct {
	Verdict           Verdict
	Attempt           int
	MaxReplanAttempts int

	UnmetCriteria   []string
	EvidenceMap     map[string][]string
	MissingEvidence []string

	UserQuestions     []string
	ReplanConstraints []string
	BlockedReason     string

	TestReportRef string
}

// Input bundles the evaluator's inputs (§4.6 signature).
type Input struct {
	Criteria          criteria.Snapshot
	Evidence          evidence.Snapshot
	Attempt           int
	MaxReplanAttempts int
	PreviousUnmetIDs  []string // nil means "no prior attempt to compare against"
	TestsPassed       *bool
	TestReportRef     string

	RequireTestReportForPass bool
}

// Evaluate runs the top-to-bottom verdict decision table of §4.6. It has no
// I/O and is deterministic for identical inputs.
func Evaluate(in Input) (Result, error) {
	if in.Attempt < 1 {
		return Result{}, fmt.Errorf("attempt must start from 1")
	}
	maxReplan := in.MaxReplanAttempts
	if maxReplan < 1 {
		return Result{}, fmt.Errorf("max_replan_attempts must be >= 1")
	}

	refsByType := in.Evidence.Summary.EventRefsByType

	var unmet, missing []string
	evidenceMap := map[string][]string{}

	for _, c := range in.Criteria.Criteria {
		refs, satisfied := evaluateSingleCriterion(c, in, refsByType)
		evidenceMap[c.ID] = refs
		if len(refs) == 0 {
			missing = append(missing, c.ID)
		}
		if !satisfied {
			unmet = append(unmet, c.ID)
		}
	}

	unmetSet := toSet(unmet)

	if len(in.Criteria.Conflicts) > 0 {
		questions := limitQuestions(in.Criteria.UserQuestions, maxQuestions)
		if len(questions) == 0 {
			questions = []string{"存在冲突的验收标准，请确认取舍（可一行回答）"}
		}
		return Result{
			Verdict:           NeedUser,
			Attempt:           in.Attempt,
			MaxReplanAttempts: maxReplan,
			UnmetCriteria:     unmet,
			EvidenceMap:       evidenceMap,
			MissingEvidence:   missing,
			UserQuestions:     questions,
			TestReportRef:     in.TestReportRef,
		}, nil
	}

	testsPassed := in.TestsPassed != nil && *in.TestsPassed
	passRequirementsMet := len(unmet) == 0 &&
		len(missing) == 0 &&
		testsPassed &&
		(!in.RequireTestReportForPass || in.TestReportRef != "")
	if passRequirementsMet {
		return Result{
			Verdict:           Pass,
			Attempt:           in.Attempt,
			MaxReplanAttempts: maxReplan,
			EvidenceMap:       evidenceMap,
			TestReportRef:     in.TestReportRef,
		}, nil
	}

	missingSet := toSet(missing)
	needsUser := len(in.Criteria.UnverifiableCriteriaIDs) > 0
	if !needsUser {
		for _, c := range in.Criteria.Criteria {
			if missingSet[c.ID] && criterionRequiresUserConfirmation(c, in.Criteria) {
				needsUser = true
				break
			}
		}
	}

	if !needsUser && in.Attempt >= maxReplan {
		return Result{
			Verdict:           Blocked,
			Attempt:           in.Attempt,
			MaxReplanAttempts: maxReplan,
			UnmetCriteria:     unmet,
			EvidenceMap:       evidenceMap,
			MissingEvidence:   missing,
			BlockedReason:     "max_replan_attempts_reached",
			UserQuestions:     limitQuestions(in.Criteria.UserQuestions, maxQuestions),
			TestReportRef:     in.TestReportRef,
		}, nil
	}

	if in.PreviousUnmetIDs != nil && len(unmetSet) > 0 {
		if !strictSubset(unmetSet, toSet(in.PreviousUnmetIDs)) {
			needsUser = true
		}
	}

	if needsUser {
		questions := in.Criteria.UserQuestions
		if len(questions) == 0 {
			questions = deriveQuestionsFromMissing(in.Criteria.Criteria, missingSet, maxQuestions)
		}
		return Result{
			Verdict:           NeedUser,
			Attempt:           in.Attempt,
			MaxReplanAttempts: maxReplan,
			UnmetCriteria:     unmet,
			EvidenceMap:       evidenceMap,
			MissingEvidence:   missing,
			UserQuestions:     limitQuestions(questions, maxQuestions),
			TestReportRef:     in.TestReportRef,
		}, nil
	}

	return Result{
		Verdict:           Replan,
		Attempt:           in.Attempt,
		MaxReplanAttempts: maxReplan,
		UnmetCriteria:     unmet,
		EvidenceMap:       evidenceMap,
		MissingEvidence:   missing,
		ReplanConstraints: buildReplanConstraints(in.Criteria.Criteria, unmetSet),
		TestReportRef:     in.TestReportRef,
	}, nil
}

func evaluateSingleCriterion(c criteria.Criterion, in Input, refsByType map[string][]string) ([]string, bool) {
	if isUnverifiableID(c.ID, in.Criteria.UnverifiableCriteriaIDs) {
		return nil, false
	}

	switch c.VerificationMethod {
	case criteria.MethodManual:
		return nil, false
	case criteria.MethodTest:
		if in.TestsPassed != nil && *in.TestsPassed && in.TestReportRef != "" {
			return []string{in.TestReportRef}, true
		}
		return nil, false
	case criteria.MethodArtifact:
		return nil, false
	case criteria.MethodRunEvent:
		return evaluateRunEventCriterion(c, in.Evidence, refsByType)
	default: // MethodUnknown
		return nil, false
	}
}

func evaluateRunEventCriterion(c criteria.Criterion, snap evidence.Snapshot, refsByType map[string][]string) ([]string, bool) {
	if strings.TrimSpace(c.Text) != criteria.BaselineSuccessCriterionText {
		return nil, false
	}

	terminal := snap.Summary.TerminalEventType

	var refs []string
	if len(refsByType["workflow_complete"]) > 0 {
		refs = refsByType["workflow_complete"]
	} else if len(refsByType["workflow_error"]) > 0 {
		refs = refsByType["workflow_error"]
	}

	confirmAllowed := !snap.Summary.ConfirmRequired || snap.Summary.ConfirmDecision == "allow"
	satisfied := terminal == "workflow_complete" && confirmAllowed
	return refs, satisfied
}

func criterionRequiresUserConfirmation(c criteria.Criterion, snap criteria.Snapshot) bool {
	if isUnverifiableID(c.ID, snap.UnverifiableCriteriaIDs) {
		return true
	}
	return c.VerificationMethod == criteria.MethodManual || c.VerificationMethod == criteria.MethodUnknown
}

func deriveQuestionsFromMissing(criteriaList []criteria.Criterion, missingIDs map[string]bool, limit int) []string {
	var questions []string
	for _, c := range criteriaList {
		if !missingIDs[c.ID] {
			continue
		}
		if len(questions) >= limit {
			break
		}
		if c.VerificationMethod == criteria.MethodManual {
			questions = append(questions, fmt.Sprintf("请确认该标准是否已满足：%s（allow/deny 或一句话描述）", c.Text))
		} else {
			questions = append(questions, fmt.Sprintf("缺少可复查证据以验收：%s。请提供证据口径（例如期望的输出/阈值/文件路径）。", c.Text))
		}
	}
	return questions
}

func buildReplanConstraints(criteriaList []criteria.Criterion, unmetIDs map[string]bool) []string {
	var constraints []string
	for _, c := range criteriaList {
		if !unmetIDs[c.ID] {
			continue
		}
		constraints = append(constraints, fmt.Sprintf("fix_unmet_criterion:%s:%s", c.ID, c.Text))
	}
	if len(constraints) > maxReplanConstraints {
		constraints = constraints[:maxReplanConstraints]
	}
	return constraints
}

func limitQuestions(questions []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, q := range questions {
		if q == "" {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, q)
	}
	return out
}

func isUnverifiableID(id string, ids []string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// strictSubset reports whether a is a strict subset of b (§4.6 REPLAN loop
// guard: unmet must shrink, not merely change).
func strictSubset(a, b map[string]bool) bool {
	if len(a) >= len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
