package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := vec.With(labels).(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordRunTerminalIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordRunTerminal("wf_1", "succeeded", 2*time.Second)

	if got := counterValue(t, r.runsTotal, prometheus.Labels{"workflow_id": "wf_1", "status": "succeeded"}); got != 1 {
		t.Fatalf("expected runsTotal=1, got %v", got)
	}
}

func TestDisableSuppressesRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.Disable()

	r.RecordRunTerminal("wf_1", "succeeded", time.Second)
	r.IncrementRetries("node_a", "timeout")
	r.RecordEventPublished("workflow_execution_completed")

	if got := counterValue(t, r.runsTotal, prometheus.Labels{"workflow_id": "wf_1", "status": "succeeded"}); got != 0 {
		t.Fatalf("expected no recording while disabled, got %v", got)
	}

	r.Enable()
	r.RecordRunTerminal("wf_1", "succeeded", time.Second)
	if got := counterValue(t, r.runsTotal, prometheus.Labels{"workflow_id": "wf_1", "status": "succeeded"}); got != 1 {
		t.Fatalf("expected 1 after re-enabling, got %v", got)
	}
}

func TestRecordConfirmationResolvedTracksTimeoutSeparately(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordConfirmationResolved("wf_1", "timeout", 30*time.Second)

	if got := counterValue(t, r.confirmTimeouts, prometheus.Labels{"workflow_id": "wf_1"}); got != 1 {
		t.Fatalf("expected confirmTimeouts=1, got %v", got)
	}
}

func TestIncrementDecisionRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.IncrementDecisionRejected("max_replan_attempts_exceeded")
	r.IncrementDecisionRejected("max_replan_attempts_exceeded")

	if got := counterValue(t, r.decisionRejected, prometheus.Labels{"reason": "max_replan_attempts_exceeded"}); got != 2 {
		t.Fatalf("expected decisionRejected=2, got %v", got)
	}
}
