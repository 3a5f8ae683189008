package orchestrator

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/workflowcore/confirm"
	"github.com/dshills/workflowcore/kernel"
	"github.com/dshills/workflowcore/run"
	"github.com/dshills/workflowcore/store"
	"github.com/dshills/workflowcore/telemetry"
)

type fakeWorkflowRepo struct {
	workflows map[string]*kernel.Workflow
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{workflows: map[string]*kernel.Workflow{}}
}

func (f *fakeWorkflowRepo) GetByID(_ context.Context, id string) (*kernel.Workflow, error) {
	w, ok := f.workflows[id]
	if !ok {
		return nil, run.NewError(run.CodeNotFound, "workflow not found: %s", id)
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWorkflowRepo) Save(_ context.Context, w *kernel.Workflow) error {
	cp := *w
	f.workflows[w.ID] = &cp
	return nil
}

func linearWorkflow(id string) *kernel.Workflow {
	return &kernel.Workflow{
		ID:          id,
		Description: "greet the user",
		StartNodeID: "start",
		EndNodeID:   "end",
		Nodes: []kernel.WorkflowNode{
			{ID: "start", Type: kernel.NodeTypeStart},
			{ID: "work", Type: kernel.NodeTypeLLM, Config: kernel.NodeConfig{ModelProvider: "mock"}},
			{ID: "end", Type: kernel.NodeTypeEnd},
		},
		Edges: []kernel.WorkflowEdge{
			{From: "start", To: "work"},
			{From: "work", To: "end"},
		},
	}
}

func succeedingExecutors() *kernel.ExecutorRegistry {
	return kernel.NewExecutorRegistry(map[kernel.NodeType]kernel.NodeExecutor{
		kernel.NodeTypeStart: kernel.NodeExecutorFunc(func(_ context.Context, _ kernel.WorkflowNode, state map[string]any) kernel.NodeOutcome {
			return kernel.NodeOutcome{Output: state, NextNodeID: "work"}
		}),
		kernel.NodeTypeLLM: kernel.NodeExecutorFunc(func(_ context.Context, _ kernel.WorkflowNode, state map[string]any) kernel.NodeOutcome {
			return kernel.NodeOutcome{Output: map[string]any{"reply": "hi"}, NextNodeID: "end"}
		}),
	})
}

func newEntry(t *testing.T, wf *kernel.Workflow, executors *kernel.ExecutorRegistry) (*RunExecutionEntry, *store.Memory, *fakeWorkflowRepo) {
	t.Helper()
	workflows := newFakeWorkflowRepo()
	_ = workflows.Save(context.Background(), wf)

	mem := store.NewMemory()
	r, err := run.Create("proj_1", wf.ID)
	if err != nil {
		t.Fatalf("run.Create: %v", err)
	}
	if err := mem.Save(context.Background(), r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entry := &RunExecutionEntry{
		Workflows:  workflows,
		Runs:       mem,
		Journal:    mem,
		Kernel:     kernel.NewKernel(executors, nil),
		Confirm:    confirm.NewStore(),
		Tools:      nil,
		ExecutorID: "test_executor",
	}
	return entry, mem, workflows
}

func TestExecuteWithResultsRunsToCompletion(t *testing.T) {
	wf := linearWorkflow("wf_1")
	entry, mem, _ := newEntry(t, wf, succeedingExecutors())

	runs, err := mem.ListByWorkflowID(context.Background(), wf.ID, 1, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected exactly one run, got %v / err=%v", runs, err)
	}
	runID := runs[0].ID

	result, err := entry.ExecuteWithResults(context.Background(), wf.ID, runID, "corr_1", "", nil)
	if err != nil {
		t.Fatalf("ExecuteWithResults: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Events[len(result.Events)-1].Type != kernel.EventWorkflowComplete {
		t.Fatalf("expected terminal workflow_complete, got %+v", result.Events[len(result.Events)-1])
	}

	finalRun, err := mem.GetByID(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if finalRun.Status != run.StatusCompleted {
		t.Fatalf("expected run completed, got %s", finalRun.Status)
	}
}

func TestExecuteWithResultsRecordsClaimAndStreamSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	wf := linearWorkflow("wf_traced")
	entry, mem, _ := newEntry(t, wf, succeedingExecutors())
	entry.Tracer = telemetry.New(tp.Tracer("test"))

	runs, _ := mem.ListByWorkflowID(context.Background(), wf.ID, 1, 0)
	runID := runs[0].ID

	if _, err := entry.ExecuteWithResults(context.Background(), wf.ID, runID, "corr_1", "", nil); err != nil {
		t.Fatalf("ExecuteWithResults: %v", err)
	}

	var sawClaim, sawStream bool
	for _, span := range exporter.GetSpans() {
		switch span.Name {
		case "run.claim":
			sawClaim = true
		case "run.kernel_stream":
			sawStream = true
		}
	}
	if !sawClaim {
		t.Fatal("expected a run.claim span")
	}
	if !sawStream {
		t.Fatal("expected a run.kernel_stream span")
	}
}

func TestPrepareRejectsDuplicateClaim(t *testing.T) {
	wf := linearWorkflow("wf_2")
	entry, mem, _ := newEntry(t, wf, succeedingExecutors())

	runs, _ := mem.ListByWorkflowID(context.Background(), wf.ID, 1, 0)
	runID := runs[0].ID

	if err := entry.Prepare(context.Background(), wf.ID, runID, "corr", ""); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}
	err := entry.Prepare(context.Background(), wf.ID, runID, "corr", "")
	if err == nil {
		t.Fatal("expected second Prepare to fail (run no longer CREATED)")
	}
}

func TestPrepareRejectsRunForWrongWorkflow(t *testing.T) {
	wf := linearWorkflow("wf_3")
	other := linearWorkflow("wf_other")
	entry, mem, workflows := newEntry(t, wf, succeedingExecutors())
	_ = workflows.Save(context.Background(), other)

	r, _ := run.Create("proj_1", other.ID)
	_ = mem.Save(context.Background(), r)

	err := entry.Prepare(context.Background(), wf.ID, r.ID, "corr", "")
	if err == nil {
		t.Fatal("expected run_wrong_workflow error")
	}
	kerr, ok := err.(*kernel.Error)
	if !ok || kerr.Code != kernel.CodeRunWrongWorkflow {
		t.Fatalf("expected CodeRunWrongWorkflow, got %v", err)
	}
}

func failingThenRecoveringExecutors(errorType string, retryable bool) *kernel.ExecutorRegistry {
	attempts := 0
	return kernel.NewExecutorRegistry(map[kernel.NodeType]kernel.NodeExecutor{
		kernel.NodeTypeStart: kernel.NodeExecutorFunc(func(_ context.Context, _ kernel.WorkflowNode, state map[string]any) kernel.NodeOutcome {
			return kernel.NodeOutcome{Output: state, NextNodeID: "work"}
		}),
		kernel.NodeTypeLLM: kernel.NodeExecutorFunc(func(_ context.Context, _ kernel.WorkflowNode, state map[string]any) kernel.NodeOutcome {
			attempts++
			if attempts == 1 {
				return kernel.NodeOutcome{ErrorType: errorType, Retryable: retryable, Err: errTimeout}
			}
			return kernel.NodeOutcome{Output: map[string]any{"reply": "hi"}, NextNodeID: "end"}
		}),
	})
}

var errTimeout = &kernel.Error{Code: "timeout", Message: "node timed out"}

func TestReactLoopRecoversFromTimeoutViaConfigOnlyPatch(t *testing.T) {
	wf := linearWorkflow("wf_4")
	for i, n := range wf.Nodes {
		if n.ID == "work" {
			wf.Nodes[i].Config.TimeoutSeconds = 5
		}
	}
	entry, mem, _ := newEntry(t, wf, failingThenRecoveringExecutors("timeout", true))

	runs, _ := mem.ListByWorkflowID(context.Background(), wf.ID, 1, 0)
	runID := runs[0].ID

	result, err := entry.ExecuteWithResults(context.Background(), wf.ID, runID, "corr", "", nil)
	if err != nil {
		t.Fatalf("ExecuteWithResults: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected eventual success after patch+retry, got %+v", result)
	}

	patched, err := entry.Workflows.GetByID(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	node, _ := patched.NodeByID("work")
	if node.Config.TimeoutSeconds != 10 {
		t.Fatalf("expected timeout doubled to 10, got %d", node.Config.TimeoutSeconds)
	}
}
