// Package metrics exposes Prometheus-compatible counters, gauges, and
// histograms for Run, Event, Confirmation, and ReAct-loop activity, adapted
// from the node-execution metrics the kernel's teacher tracked — same
// namespace-prefix, registry-injection, and enable/disable-for-tests shape,
// retargeted at Run lifecycle and the acceptance loop instead of generic
// graph nodes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects metrics across Run execution, event delivery,
// confirmation waits, and the acceptance loop's ReAct attempts. All label
// values should be low-cardinality (workflow/node/status/reason), never raw
// run IDs with unbounded cardinality over the process lifetime — callers
// that need per-run detail should use journal.Journal instead.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	nodeLatency      *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	confirmPending   prometheus.Gauge
	confirmWait      *prometheus.HistogramVec
	confirmTimeouts  *prometheus.CounterVec
	reactAttempts    *prometheus.CounterVec
	reactDuration    *prometheus.HistogramVec
	decisionRejected *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// New creates and registers every metric with registry. A nil registry uses
// prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Recorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Recorder{
		enabled: true,

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowcore",
			Name:      "runs_total",
			Help:      "Runs reaching a terminal status, by workflow and status",
		}, []string{"workflow_id", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowcore",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a Run from claim to terminal status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow_id", "status"}),

		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowcore",
			Name:      "node_step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"node_id", "node_type", "status"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowcore",
			Name:      "node_retries_total",
			Help:      "Node execution retries, by node and reason",
		}, []string{"node_id", "reason"}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowcore",
			Name:      "events_published_total",
			Help:      "Events published on the bus, by event type",
		}, []string{"event_type"}),

		confirmPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflowcore",
			Name:      "confirmations_pending",
			Help:      "Current number of confirmation gates awaiting a decision",
		}),

		confirmWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowcore",
			Name:      "confirmation_wait_seconds",
			Help:      "Time a confirmation gate spent pending before resolving",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),

		confirmTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowcore",
			Name:      "confirmation_timeouts_total",
			Help:      "Confirmation gates that resolved by timeout rather than an explicit decision",
		}, []string{"workflow_id"}),

		reactAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowcore",
			Name:      "react_attempts_total",
			Help:      "Acceptance-loop attempts, by workflow and verdict",
		}, []string{"workflow_id", "verdict"}),

		reactDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflowcore",
			Name:      "react_loop_seconds",
			Help:      "Wall-clock duration of a full acceptance loop, execute through final verdict",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"workflow_id", "verdict"}),

		decisionRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflowcore",
			Name:      "decisions_rejected_total",
			Help:      "Decision bridge candidates rejected, by reason",
		}, []string{"reason"}),
	}
}

func (r *Recorder) isEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// RecordRunTerminal records a Run reaching status after duration.
func (r *Recorder) RecordRunTerminal(workflowID, status string, duration time.Duration) {
	if !r.isEnabled() {
		return
	}
	r.runsTotal.WithLabelValues(workflowID, status).Inc()
	r.runDuration.WithLabelValues(workflowID, status).Observe(duration.Seconds())
}

// RecordNodeLatency records one node execution's duration and outcome.
func (r *Recorder) RecordNodeLatency(nodeID, nodeType, status string, latency time.Duration) {
	if !r.isEnabled() {
		return
	}
	r.nodeLatency.WithLabelValues(nodeID, nodeType, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries records one retry of nodeID for reason.
func (r *Recorder) IncrementRetries(nodeID, reason string) {
	if !r.isEnabled() {
		return
	}
	r.retries.WithLabelValues(nodeID, reason).Inc()
}

// RecordEventPublished records one bus.Publish call for eventType.
func (r *Recorder) RecordEventPublished(eventType string) {
	if !r.isEnabled() {
		return
	}
	r.eventsPublished.WithLabelValues(eventType).Inc()
}

// SetConfirmationsPending sets the current count of pending confirmation
// gates.
func (r *Recorder) SetConfirmationsPending(count int) {
	if !r.isEnabled() {
		return
	}
	r.confirmPending.Set(float64(count))
}

// RecordConfirmationResolved records a confirmation gate resolving after
// wait, with outcome one of "approved", "rejected", or "timeout".
func (r *Recorder) RecordConfirmationResolved(workflowID, outcome string, wait time.Duration) {
	if !r.isEnabled() {
		return
	}
	r.confirmWait.WithLabelValues(outcome).Observe(wait.Seconds())
	if outcome == "timeout" {
		r.confirmTimeouts.WithLabelValues(workflowID).Inc()
	}
}

// RecordReactAttempt records one acceptance-loop attempt, with verdict one
// of "pass", "replan", or "blocked".
func (r *Recorder) RecordReactAttempt(workflowID, verdict string) {
	if !r.isEnabled() {
		return
	}
	r.reactAttempts.WithLabelValues(workflowID, verdict).Inc()
}

// RecordReactLoopDuration records the wall-clock span of a full acceptance
// loop ending in verdict.
func (r *Recorder) RecordReactLoopDuration(workflowID, verdict string, d time.Duration) {
	if !r.isEnabled() {
		return
	}
	r.reactDuration.WithLabelValues(workflowID, verdict).Observe(d.Seconds())
}

// IncrementDecisionRejected records one decision bridge rejection for
// reason.
func (r *Recorder) IncrementDecisionRejected(reason string) {
	if !r.isEnabled() {
		return
	}
	r.decisionRejected.WithLabelValues(reason).Inc()
}

// Disable stops recording (tests that don't want to assert on metrics).
func (r *Recorder) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

// Enable resumes recording after Disable.
func (r *Recorder) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}
