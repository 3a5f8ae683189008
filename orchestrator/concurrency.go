package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ConcurrencyManager is the global admission gate referenced by spec §5's
// Resource policy: Runs are independent and share no cross-Run locks, but a
// burst of simultaneous Prepare calls must not starve the acceptance
// orchestrator of scheduling slots. It implements kernel.GatePolicy, so a
// Kernel constructed with one refuses GateExecute once the concurrent-run
// ceiling is reached, and a token-bucket limiter additionally smooths the
// rate of new claims even when capacity is available.
type ConcurrencyManager struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// NewConcurrencyManager builds a manager admitting at most maxConcurrent
// Run claims in flight at once, with new claims additionally rate-limited
// to ratePerSecond per second (burst allows ratePerSecond in one instant).
// maxConcurrent <= 0 disables the concurrency ceiling; ratePerSecond <= 0
// disables the rate limit.
func NewConcurrencyManager(maxConcurrent int, ratePerSecond float64) *ConcurrencyManager {
	m := &ConcurrencyManager{}
	if maxConcurrent > 0 {
		m.slots = make(chan struct{}, maxConcurrent)
	}
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return m
}

// Allow implements kernel.GatePolicy. It never blocks waiting for a free
// slot: a denial here is the caller's signal to retry later, not a reason
// to hang the HTTP execute/stream path.
func (m *ConcurrencyManager) Allow(ctx context.Context, workflowID, correlationID, originalDecisionID string) (bool, error) {
	if m.limiter != nil && !m.limiter.Allow() {
		return false, nil
	}
	if m.slots == nil {
		return true, nil
	}
	select {
	case m.slots <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

// Release frees the concurrency slot claimed by a prior Allow call, one
// slot per call. Nothing in this package calls it: Prepare and
// StreamAfterGate never release a slot.
func (m *ConcurrencyManager) Release() {
	if m.slots == nil {
		return
	}
	select {
	case <-m.slots:
	default:
	}
}

// RunManyResult pairs a fanned-out Run's identifying ids with its outcome.
type RunManyResult struct {
	WorkflowID string
	RunID      string
	Result     Result
	Err        error
}

// RunManyRequest is one Run to execute as part of a bounded concurrent
// batch via RunMany.
type RunManyRequest struct {
	WorkflowID         string
	RunID              string
	CorrelationID      string
	OriginalDecisionID string
	InitialState       map[string]any
}

// RunMany drives ExecuteWithResults for every request concurrently, capped
// at maxInFlight simultaneous streams via an errgroup — the fan-out shape
// spec §5 calls for when many Runs become executable at once (e.g. a batch
// of REPLAN-triggered re-executions). A failure in one Run's stream never
// cancels the others; each result (including its own error) is reported
// independently.
func (e *RunExecutionEntry) RunMany(ctx context.Context, requests []RunManyRequest, maxInFlight int) []RunManyResult {
	results := make([]RunManyResult, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	if maxInFlight > 0 {
		g.SetLimit(maxInFlight)
	}

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			result, err := e.ExecuteWithResults(gctx, req.WorkflowID, req.RunID, req.CorrelationID, req.OriginalDecisionID, req.InitialState)
			results[i] = RunManyResult{WorkflowID: req.WorkflowID, RunID: req.RunID, Result: result, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
