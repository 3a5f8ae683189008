// Package telemetry wires OpenTelemetry spans directly around the
// orchestrator's own lifecycle phases — Run claim, kernel streaming,
// confirmation wait, and acceptance reflection — the way
// events.OTelEmitter wires spans around individual stream events, but at
// the coarser granularity of a whole phase rather than one event at a
// time.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts the four named orchestration spans. A nil *Tracer (or one
// built with a nil trace.Tracer) is valid and makes every Start* call a
// no-op, so callers can wire telemetry optionally without a separate
// enabled flag.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps tracer. Passing nil yields a no-op Tracer.
func New(tracer trace.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// End reports the outcome of a started span and ends it. Call the
// returned func exactly once per Start* call.
type End func(err error)

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, End) {
	if t == nil || t.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartRunClaim spans the window from Prepare's validation through its
// atomic CREATED->RUNNING claim.
func (t *Tracer) StartRunClaim(ctx context.Context, workflowID, runID string) (context.Context, End) {
	return t.start(ctx, "run.claim",
		attribute.String("workflowcore.workflow_id", workflowID),
		attribute.String("workflowcore.run_id", runID),
	)
}

// StartKernelStream spans one full kernel node-by-node stream, from the
// first node dispatched to the terminal event.
func (t *Tracer) StartKernelStream(ctx context.Context, workflowID, runID string) (context.Context, End) {
	return t.start(ctx, "run.kernel_stream",
		attribute.String("workflowcore.workflow_id", workflowID),
		attribute.String("workflowcore.run_id", runID),
	)
}

// StartConfirmationWait spans a side-effect node's wait for an external
// confirmation decision.
func (t *Tracer) StartConfirmationWait(ctx context.Context, workflowID, runID, nodeID string) (context.Context, End) {
	return t.start(ctx, "run.confirmation_wait",
		attribute.String("workflowcore.workflow_id", workflowID),
		attribute.String("workflowcore.run_id", runID),
		attribute.String("workflowcore.node_id", nodeID),
	)
}

// StartAcceptanceReflection spans one acceptance-loop evaluation pass
// (evidence collection through verdict).
func (t *Tracer) StartAcceptanceReflection(ctx context.Context, workflowID, runID string, attempt int) (context.Context, End) {
	return t.start(ctx, "run.acceptance_reflection",
		attribute.String("workflowcore.workflow_id", workflowID),
		attribute.String("workflowcore.run_id", runID),
		attribute.Int("workflowcore.attempt", attempt),
	)
}
