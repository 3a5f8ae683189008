package orchestrator

import (
	"context"
	"time"

	"github.com/dshills/workflowcore/confirm"
	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/kernel"
	"github.com/dshills/workflowcore/run"
)

// streamSession holds the per-stream mutable state StreamAfterGate's
// goroutine threads through the confirmation gate and the ReAct loop. It
// exists so entry.go's StreamAfterGate stays a thin constructor: all of the
// control flow translated from stream_after_gate lives here.
type streamSession struct {
	entry      *RunExecutionEntry
	workflowID string
	runID      string
	out        chan<- kernel.Event

	terminalPersisted bool
}

func (s *streamSession) run(ctx context.Context, initialState map[string]any) {
	workflow, err := s.entry.Workflows.GetByID(ctx, s.workflowID)
	if err != nil {
		s.persistTerminalError(ctx, "workflow not found: "+s.workflowID, "")
		s.send(kernel.Event{Type: kernel.EventWorkflowError, Error: "workflow not found: " + s.workflowID})
		return
	}

	if nodeID, ok := firstSideEffectNodeID(workflow); ok {
		if !s.runConfirmationGate(ctx, nodeID) {
			return
		}
	}

	s.runReactLoop(ctx, workflow, initialState)

	if !s.terminalPersisted {
		// Defensive close: the loop ended without ever reaching a terminal
		// branch (should be unreachable, kept as the same belt-and-braces
		// guard the Python original applies in its finally block).
		s.appendLifecycle(ctx, journal.TypeWorkflowError, map[string]any{"error": "missing_terminal_event"})
	}
}

// runConfirmationGate blocks the stream on the human confirmation gate for
// a workflow whose first side-effect node requires one. It returns false if
// the stream must stop here (denied, timed out, or the caller disconnected);
// true means the ReAct loop should proceed.
func (s *streamSession) runConfirmationGate(ctx context.Context, nodeID string) bool {
	pending, err := s.entry.Confirm.CreateOrGetPending(s.runID, s.workflowID, nodeID)
	if err != nil {
		s.persistTerminalError(ctx, err.Error(), "")
		s.send(kernel.Event{Type: kernel.EventWorkflowError, NodeID: nodeID, Error: err.Error()})
		return false
	}

	s.emit(ctx, kernel.Event{
		Type:   kernel.EventType(journal.TypeWorkflowConfirmRequired),
		NodeID: nodeID,
		Fields: map[string]any{"confirm_id": pending.ConfirmID, "default_decision": "deny"},
	})

	_, end := s.entry.Tracer.StartConfirmationWait(ctx, s.workflowID, s.runID, nodeID)
	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	decision, err := s.entry.Confirm.WaitForDecision(waitCtx, pending.ConfirmID, confirmTimeout)
	end(err)

	if ctx.Err() != nil {
		// The caller's own context ended the wait, not our derived timeout:
		// this is a disconnect, not a confirm_timeout.
		s.appendLifecycle(ctx, journal.TypeWorkflowError, map[string]any{"error": "stream_cancelled"})
		return false
	}
	if err != nil {
		s.persistTerminalError(ctx, err.Error(), "")
		s.send(kernel.Event{Type: kernel.EventWorkflowError, NodeID: nodeID, Error: err.Error()})
		return false
	}

	reason := "user_denied"
	if waitCtx.Err() == context.DeadlineExceeded && decision != confirm.Allow {
		reason = "confirm_timeout"
	}

	s.emit(ctx, kernel.Event{
		Type:   kernel.EventType(journal.TypeWorkflowConfirmed),
		NodeID: nodeID,
		Fields: map[string]any{"confirm_id": pending.ConfirmID, "decision": string(decision)},
	})

	if decision != confirm.Allow {
		s.emit(ctx, kernel.Event{
			Type:      kernel.EventWorkflowError,
			NodeID:    nodeID,
			Error:     "side_effect_confirm_denied",
			ErrorType: "side_effect_confirm_denied",
			Fields:    map[string]any{"reason": reason, "confirm_id": pending.ConfirmID},
		})
		s.appendLifecycle(ctx, journal.TypeWorkflowError, map[string]any{
			"error": "side_effect_confirm_denied", "reason": reason, "confirm_id": pending.ConfirmID,
		})
		return false
	}
	return true
}

// runReactLoop drives the kernel stream to completion, retrying with a
// bounded, config-only patch on attempt failure (§4.9.1) until the workflow
// completes, a stop condition is hit, or no further patch applies.
func (s *streamSession) runReactLoop(ctx context.Context, workflow *kernel.Workflow, initialState map[string]any) {
	startedAt := time.Now()
	attempt := 1
	consecutiveFailures := 0
	llmCalls := 0
	reactStarted := false
	var patches []map[string]any

	for {
		var lastNodeError map[string]any
		var terminalError map[string]any

		for ev := range s.entry.Kernel.StreamAfterGate(ctx, workflow, workflow.StartNodeID, initialState) {
			ev.Attempt = attempt

			if !kernel.IsValidEventType(ev.Type) {
				s.emit(ctx, kernel.Event{Type: kernel.EventWorkflowError, Attempt: attempt, ErrorType: "invalid_execution_event_type", Error: string(ev.Type)})
				s.persistTerminalError(ctx, "invalid_execution_event_type", string(ev.Type))
				return
			}

			if ev.Type == kernel.EventNodeError {
				lastNodeError = eventToMap(ev)
			}

			if ev.Type == kernel.EventWorkflowComplete {
				s.emit(ctx, ev)
				s.persistTerminalComplete(ctx)
				return
			}

			if ev.Type == kernel.EventWorkflowError {
				terminalError = eventToMap(ev)
				if isLLMNode(workflow, ev.NodeID) {
					llmCalls++
				}
				break
			}

			if isLLMNode(workflow, ev.NodeID) {
				llmCalls++
			}
			s.emit(ctx, ev)
		}

		if terminalError == nil {
			s.emit(ctx, kernel.Event{Type: kernel.EventWorkflowError, Attempt: attempt, ErrorType: "missing_terminal_event", Error: "missing_terminal_event"})
			s.persistTerminalError(ctx, "missing_terminal_event", "")
			return
		}

		consecutiveFailures++
		lastError := lastNodeError
		if lastError == nil {
			lastError = terminalError
		}

		if !reactStarted {
			reactStarted = true
			s.emit(ctx, kernel.Event{
				Type: kernel.EventType(journal.TypeReactLoopStarted), Attempt: attempt,
				Fields: map[string]any{
					"max_attempts":             reactMaxAttempts,
					"max_consecutive_failures": reactMaxConsecutiveFailures,
					"max_seconds":              reactMaxElapsed.Seconds(),
					"max_llm_calls":            reactMaxLLMCalls,
				},
			})
		}

		s.emit(ctx, kernel.Event{
			Type: kernel.EventType(journal.TypeAttemptFailed), Attempt: attempt,
			NodeID: stringField(lastError, "node_id"),
			Error:  stringField(terminalError, "error"),
			Fields: map[string]any{
				"error_type": stringField(lastError, "error_type"),
				"retryable":  lastError["retryable"],
			},
		})

		if reason := shouldStopReact(attempt, consecutiveFailures, llmCalls, startedAt); reason != "" {
			report := buildTerminationReport(s.workflowID, reason, reason, attempt, consecutiveFailures, llmCalls, time.Since(startedAt).Milliseconds(), lastError, patches)
			s.emit(ctx, kernel.Event{Type: kernel.EventType(journal.TypeTerminationReport), Attempt: attempt, Fields: report.toFields()})
			s.persistTerminalError(ctx, "react_stop", reason)
			s.emit(ctx, kernel.Event{Type: kernel.EventWorkflowError, Attempt: attempt, Error: stringField(terminalError, "error"), ErrorType: stringField(terminalError, "error_type")})
			return
		}

		patched, failReason, err := applyConfigOnlyPatch(ctx, s.entry.Workflows, s.entry.Tools, s.workflowID, stringField(lastError, "node_id"), stringField(lastError, "error_type"), boolField(lastError, "retryable"))
		if err != nil || patched == nil {
			condition := failReason
			if err != nil {
				condition = err.Error()
			}
			report := buildTerminationReport(s.workflowID, "unrepairable_error", condition, attempt, consecutiveFailures, llmCalls, time.Since(startedAt).Milliseconds(), lastError, patches)
			s.emit(ctx, kernel.Event{Type: kernel.EventType(journal.TypeTerminationReport), Attempt: attempt, Fields: report.toFields()})
			s.emit(ctx, kernel.Event{Type: kernel.EventWorkflowError, Attempt: attempt, Error: stringField(terminalError, "error"), ErrorType: stringField(terminalError, "error_type")})
			s.persistTerminalError(ctx, "react_unrepairable", "")
			return
		}

		// Re-fetch the patched workflow definition: applyConfigOnlyPatch saved
		// a mutated copy to the repository.
		refreshed, err := s.entry.Workflows.GetByID(ctx, s.workflowID)
		if err == nil {
			workflow = refreshed
		}

		patches = append(patches, map[string]any{"node_id": patched.NodeID, "error_type": patched.ErrorType, "attempt": attempt, "changes": changesToFields(patched.Changes)})
		s.emit(ctx, kernel.Event{
			Type: kernel.EventType(journal.TypeReactPatchApplied), Attempt: attempt,
			Fields: map[string]any{"patch": patches[len(patches)-1], "patch_scope": "config-only"},
		})

		attempt++
	}
}

func shouldStopReact(attempt, consecutiveFailures, llmCalls int, startedAt time.Time) string {
	switch {
	case attempt >= reactMaxAttempts:
		return "max_attempts"
	case consecutiveFailures >= reactMaxConsecutiveFailures:
		return "consecutive_failures"
	case llmCalls >= reactMaxLLMCalls:
		return "max_llm_calls"
	case time.Since(startedAt) >= reactMaxElapsed:
		return "max_elapsed"
	default:
		return ""
	}
}

// emit persists ev to the execution channel and forwards it on the stream.
func (s *streamSession) emit(ctx context.Context, ev kernel.Event) {
	ev.RunID = s.runID
	ev.WorkflowID = s.workflowID
	ev.ExecutorID = s.entry.ExecutorID

	payload := eventToMap(ev)
	_, _, _ = s.entry.Journal.Append(ctx, journal.AppendInput{
		RunID:   s.runID,
		Channel: journal.ChannelExecution,
		Type:    string(ev.Type),
		Payload: payload,
	})
	s.send(ev)
}

func (s *streamSession) send(ev kernel.Event) {
	ev.RunID = s.runID
	ev.WorkflowID = s.workflowID
	if ev.ExecutorID == "" {
		ev.ExecutorID = s.entry.ExecutorID
	}
	s.out <- ev
}

func (s *streamSession) appendLifecycle(ctx context.Context, eventType string, payload map[string]any) {
	merged := map[string]any{"workflow_id": s.workflowID, "executor_id": s.entry.ExecutorID}
	for k, v := range payload {
		merged[k] = v
	}
	_, _, _ = s.entry.Journal.Append(ctx, journal.AppendInput{
		RunID:   s.runID,
		Channel: journal.ChannelLifecycle,
		Type:    eventType,
		Payload: merged,
	})
	s.terminalPersisted = true

	// Move the claimed Run to its terminal status to match the marker.
	target := run.StatusFailed
	if eventType == journal.TypeWorkflowComplete {
		target = run.StatusCompleted
	}
	_, _ = s.entry.Runs.UpdateStatusIfCurrent(ctx, s.runID, run.StatusRunning, target)
}

func (s *streamSession) persistTerminalComplete(ctx context.Context) {
	if s.terminalPersisted {
		return
	}
	s.appendLifecycle(ctx, journal.TypeWorkflowComplete, nil)
}

func (s *streamSession) persistTerminalError(ctx context.Context, errMsg, reason string) {
	if s.terminalPersisted {
		return
	}
	payload := map[string]any{"error": errMsg}
	if reason != "" {
		payload["reason"] = reason
	}
	s.appendLifecycle(ctx, journal.TypeWorkflowError, payload)
}

func firstSideEffectNodeID(workflow *kernel.Workflow) (string, bool) {
	for _, id := range topologicalOrder(workflow) {
		node, ok := workflow.NodeByID(id)
		if ok && kernel.HasSideEffect(node.Type) {
			return id, true
		}
	}
	return "", false
}

// topologicalOrder runs Kahn's algorithm over workflow's main subgraph,
// breaking ties by node ID for a deterministic order. The validator has
// already guaranteed acyclicity by the time this runs.
func topologicalOrder(workflow *kernel.Workflow) []string {
	indegree := make(map[string]int, len(workflow.Nodes))
	adjacency := make(map[string][]string, len(workflow.Nodes))
	for _, n := range workflow.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range workflow.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
		indegree[e.To]++
	}

	var ready []string
	for _, n := range workflow.Nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sortStrings(ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newlyReady []string
		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				newlyReady = append(newlyReady, next)
			}
		}
		sortStrings(newlyReady)
		ready = append(ready, newlyReady...)
	}
	return order
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func isLLMNode(workflow *kernel.Workflow, nodeID string) bool {
	node, ok := workflow.NodeByID(nodeID)
	return ok && node.Type == kernel.NodeTypeLLM
}

func eventToMap(ev kernel.Event) map[string]any {
	m := map[string]any{"type": string(ev.Type)}
	if ev.NodeID != "" {
		m["node_id"] = ev.NodeID
	}
	if ev.Attempt != 0 {
		m["attempt"] = ev.Attempt
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}
	if ev.ErrorType != "" {
		m["error_type"] = ev.ErrorType
	}
	if ev.Retryable {
		m["retryable"] = ev.Retryable
	}
	for k, v := range ev.Fields {
		m[k] = v
	}
	return m
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

func changesToFields(changes map[string]patchChange) map[string]any {
	out := make(map[string]any, len(changes))
	for k, v := range changes {
		out[k] = map[string]any{"from": v.From, "to": v.To}
	}
	return out
}
