package tool

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/workflowcore/kernel"
)

// Status tracks a catalogued tool's publication lifecycle, mirroring the
// original's ToolStatus value object.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPublished  Status = "published"
	StatusDeprecated Status = "deprecated"
)

// entry is a catalogued tool's metadata plus its executable implementation.
type entry struct {
	id     string
	status Status
	impl   Tool
}

// Registry is the in-memory tool catalog: it backs
// orchestrator.ToolCatalog (FindPublished/FindAll, through CatalogAdapter)
// for the config-only patch policy's deprecated-tool swap, kernel.ToolChecker
// (Exists/Deprecated) for static workflow validation, and looks up the
// Tool implementation a tool-type node executor calls at run time.
//
// Grounded on the original's tool_repository port (find_published/
// find_all filtered by ToolStatus != DEPRECATED) and on the teacher's
// Tool/MockTool pair for the executable side.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces a tool under the given publication status.
func (r *Registry) Register(status Status, impl Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[impl.Name()] = entry{id: impl.Name(), status: status, impl: impl}
}

// Deprecate marks a previously registered tool deprecated without removing
// it, so historical runs can still resolve it by ID even though the
// validator and patch policy will no longer offer it to new workflows.
func (r *Registry) Deprecate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.status = StatusDeprecated
		r.entries[id] = e
	}
}

// Lookup returns the executable Tool for id, or ok=false if uncatalogued.
func (r *Registry) Lookup(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.impl, true
}

// FindPublished lists tools whose status is published, sorted by ID for
// deterministic patch-candidate selection.
func (r *Registry) FindPublished(_ context.Context) ([]Info, error) {
	return r.find(func(e entry) bool { return e.status == StatusPublished }), nil
}

// FindAll lists every catalogued tool, published or not, sorted by ID.
func (r *Registry) FindAll(_ context.Context) ([]Info, error) {
	return r.find(func(entry) bool { return true }), nil
}

func (r *Registry) find(keep func(entry) bool) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, Info{ID: e.id, Deprecated: e.status == StatusDeprecated})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Info is the catalog-facing view of a tool; its fields mirror
// orchestrator.ToolInfo, and CatalogAdapter converts one into the other.
type Info struct {
	ID         string
	Deprecated bool
}

// Exists implements kernel.ToolChecker.
func (r *Registry) Exists(toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[toolID]
	return ok
}

// Deprecated implements kernel.ToolChecker.
func (r *Registry) Deprecated(toolID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolID]
	return ok && e.status == StatusDeprecated
}

var _ kernel.ToolChecker = (*Registry)(nil)

// NodeExecutor implements kernel.NodeExecutor for kernel.NodeTypeTool
// nodes, resolving node.Config.ToolID against a Registry and reporting an
// unresolved tool as a "tool_not_found" error so the repair loop's
// config-only patch policy can swap in a replacement.
type NodeExecutor struct {
	Tools *Registry
}

// NewNodeExecutor builds a NodeExecutor backed by tools.
func NewNodeExecutor(tools *Registry) *NodeExecutor {
	return &NodeExecutor{Tools: tools}
}

// stateKeyToolInput and stateKeyToolOutput are the conventional state keys
// a tool node reads its call input from and writes its result under.
const (
	stateKeyToolInput  = "tool_input"
	stateKeyToolOutput = "tool_output"
)

// Execute implements kernel.NodeExecutor.
func (e *NodeExecutor) Execute(ctx context.Context, node kernel.WorkflowNode, state map[string]any) kernel.NodeOutcome {
	impl, ok := e.Tools.Lookup(node.Config.ToolID)
	if !ok {
		return kernel.NodeOutcome{
			Err:       &toolNotFoundError{toolID: node.Config.ToolID},
			ErrorType: "tool_not_found",
			Retryable: false,
		}
	}

	input, _ := state[stateKeyToolInput].(map[string]interface{})
	result, err := impl.Call(ctx, input)
	if err != nil {
		errorType := "tool_call_failed"
		if ctx.Err() != nil {
			errorType = "timeout"
		}
		return kernel.NodeOutcome{Err: err, ErrorType: errorType, Retryable: ctx.Err() == nil}
	}

	return kernel.NodeOutcome{Output: map[string]any{stateKeyToolOutput: result}}
}

type toolNotFoundError struct{ toolID string }

func (e *toolNotFoundError) Error() string { return "tool not found: " + e.toolID }
