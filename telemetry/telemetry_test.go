package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartRunClaimRecordsSpanAndAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := New(tp.Tracer("test"))
	_, end := tracer.StartRunClaim(context.Background(), "wf_1", "run_1")
	end(nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "run.claim" {
		t.Fatalf("expected 1 run.claim span, got %+v", spans)
	}
}

func TestEndRecordsErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := New(tp.Tracer("test"))
	_, end := tracer.StartAcceptanceReflection(context.Background(), "wf_1", "run_1", 2)
	end(errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if len(spans[0].Events) == 0 {
		t.Fatalf("expected recorded error event on span")
	}
}

func TestNilTracerIsNoOp(t *testing.T) {
	var tracer *Tracer
	ctx, end := tracer.StartKernelStream(context.Background(), "wf_1", "run_1")
	if ctx == nil {
		t.Fatal("expected context to be returned")
	}
	end(errors.New("should not panic"))
}

func TestZeroValueTracerIsNoOp(t *testing.T) {
	tracer := New(nil)
	_, end := tracer.StartConfirmationWait(context.Background(), "wf_1", "run_1", "node_a")
	end(nil)
}

func TestGlobalTracerProviderIntegration(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	}()

	tracer := New(otel.Tracer("test"))
	_, end := tracer.StartKernelStream(context.Background(), "wf_1", "run_1")
	end(nil)

	if len(exporter.GetSpans()) != 1 {
		t.Fatalf("expected 1 span via global provider, got %d", len(exporter.GetSpans()))
	}
}
