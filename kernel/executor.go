package kernel

import "context"

// NodeOutcome is what a NodeExecutor reports back to the kernel loop after
// running one node.
type NodeOutcome struct {
	// Output is merged into the workflow's running state for downstream
	// nodes, mirroring the teacher's Delta/Reducer pattern but keyed by
	// name rather than carried in a typed state struct, since workflow
	// state here is a serializable map shared across process boundaries.
	Output map[string]any

	// NextNodeID is the next node to execute, or "" if this was the
	// workflow's end node.
	NextNodeID string

	// Err, if non-nil, ends the run with a node_error event.
	Err error

	// ErrorType classifies Err (e.g. "timeout", "tool_not_found") for the
	// repair loop's config-only patch policy (§4.9.1).
	ErrorType string

	// Retryable mirrors the teacher's RetryPolicy.Retryable predicate
	// result, informing the repair loop whether a timeout-style patch
	// applies.
	Retryable bool
}

// NodeExecutor runs a single WorkflowNode given the workflow's current
// accumulated state.
type NodeExecutor interface {
	Execute(ctx context.Context, node WorkflowNode, state map[string]any) NodeOutcome
}

// NodeExecutorFunc adapts a plain function to NodeExecutor, mirroring the
// teacher's NodeFunc adapter.
type NodeExecutorFunc func(ctx context.Context, node WorkflowNode, state map[string]any) NodeOutcome

// Execute implements NodeExecutor.
func (f NodeExecutorFunc) Execute(ctx context.Context, node WorkflowNode, state map[string]any) NodeOutcome {
	return f(ctx, node, state)
}

// ExecutorRegistry maps node types to the executor responsible for running
// them. Validate's "every node type referenced is implemented" check is
// enforced by the kernel at stream time via Lookup.
type ExecutorRegistry struct {
	byType map[NodeType]NodeExecutor
}

// NewExecutorRegistry builds a registry from the given node-type mapping.
func NewExecutorRegistry(executors map[NodeType]NodeExecutor) *ExecutorRegistry {
	byType := make(map[NodeType]NodeExecutor, len(executors))
	for t, e := range executors {
		byType[t] = e
	}
	return &ExecutorRegistry{byType: byType}
}

// Lookup returns the executor for t, or ok=false if none is registered.
func (r *ExecutorRegistry) Lookup(t NodeType) (NodeExecutor, bool) {
	e, ok := r.byType[t]
	return e, ok
}
