package orchestrator

import "github.com/dustin/go-humanize"

// terminationLastErrorKeys is the allowlist of last_error fields carried
// into a termination report (§4.9.2); everything else about the failing
// event is dropped rather than echoed verbatim.
var terminationLastErrorKeys = []string{
	"type", "node_id", "node_type", "error", "error_type", "error_level",
	"retryable", "hint", "message", "attempt",
}

// terminationReport is the workflow_termination_report payload: the
// ReAct repair loop's final account of why it gave up, built whichever way
// it stopped — hit one of the four bounds, or ran out of applicable
// patches.
type terminationReport struct {
	WorkflowID          string
	StopReason          string
	StopCondition       string
	AttemptsTotal       int
	ConsecutiveFailures int
	LLMCalls            int
	ElapsedMs           int64
	LastError           map[string]any
	Patches             []map[string]any
}

func buildTerminationReport(workflowID, stopReason, stopCondition string, attemptsTotal, consecutiveFailures, llmCalls int, elapsedMs int64, lastError map[string]any, patches []map[string]any) terminationReport {
	filtered := make(map[string]any, len(terminationLastErrorKeys))
	for _, key := range terminationLastErrorKeys {
		if v, ok := lastError[key]; ok && v != nil {
			filtered[key] = v
		}
	}
	return terminationReport{
		WorkflowID:          workflowID,
		StopReason:          stopReason,
		StopCondition:       stopCondition,
		AttemptsTotal:       attemptsTotal,
		ConsecutiveFailures: consecutiveFailures,
		LLMCalls:            llmCalls,
		ElapsedMs:           elapsedMs,
		LastError:           filtered,
		Patches:             patches,
	}
}

// toFields renders the report as the event payload map carried on the
// workflow_termination_report stream event.
func (r terminationReport) toFields() map[string]any {
	return map[string]any{
		"type":                 "workflow_termination_report",
		"workflow_id":          r.WorkflowID,
		"patch_scope":          "config-only",
		"stop_reason":          r.StopReason,
		"stop_condition":       r.StopCondition,
		"attempts_total":       r.AttemptsTotal,
		"consecutive_failures": r.ConsecutiveFailures,
		"llm_calls":            r.LLMCalls,
		"elapsed_ms":           r.ElapsedMs,
		"elapsed_human":        humanize.Comma(r.ElapsedMs) + "ms",
		"last_error":           r.LastError,
		"patches":              r.Patches,
	}
}
