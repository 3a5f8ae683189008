// Package kernel implements the Workflow Validator (C7) and Execution Kernel
// (C8): static DAG validation and the node-by-node driver that the Run
// Execution Entry (orchestrator package) streams from.
package kernel

import "sort"

// NodeType names an executor capable of running a WorkflowNode.
type NodeType string

const (
	NodeTypeStart        NodeType = "start"
	NodeTypeEnd          NodeType = "end"
	NodeTypeLLM          NodeType = "llm"
	NodeTypeTool         NodeType = "tool"
	NodeTypeHTTP         NodeType = "http"
	NodeTypeNotification NodeType = "notification"
	NodeTypeRouter       NodeType = "router"
)

// sideEffectNodeTypes are the node types that require a human confirmation
// gate before the kernel stream begins (§4.9 Stream after gate, step 1).
var sideEffectNodeTypes = map[NodeType]bool{
	NodeTypeTool:         true,
	NodeTypeHTTP:         true,
	NodeTypeNotification: true,
}

// HasSideEffect reports whether t is one of the node types that triggers
// the confirmation gate.
func HasSideEffect(t NodeType) bool { return sideEffectNodeTypes[t] }

// NodeConfig carries a node's per-type settings. Only the fields relevant
// to the node's Type are populated; the validator enforces the contract.
type NodeConfig struct {
	// Timeout bounds execution of this node. Zero means the kernel default.
	TimeoutSeconds int

	// ToolID names the tool this node invokes. Required for tool nodes.
	ToolID string

	// ModelProvider constrains which LLM provider this node may call.
	// Required for llm nodes; must appear in the validator's allowlist.
	ModelProvider string

	// Extra holds node-type-specific fields not otherwise modeled (prompt
	// templates, HTTP method/URL, notification channel, router predicate
	// name, …) for contract checks that only need presence/non-emptiness.
	Extra map[string]string
}

// WorkflowNode is one vertex of a workflow's main subgraph.
type WorkflowNode struct {
	ID     string
	Type   NodeType
	Config NodeConfig
}

// WorkflowEdge is a directed, unconditional transition between two nodes.
// Conditional routing is expressed by router nodes, not edge predicates —
// unlike the teacher's generic graph.Edge, workflow edges here carry no
// state-dependent predicate because node configs (not Go closures) are the
// serializable unit of a workflow definition.
type WorkflowEdge struct {
	From string
	To   string
}

// Workflow is the static definition validated by Validate and driven by
// Kernel.StreamAfterGate.
type Workflow struct {
	ID          string
	Description string
	StartNodeID string
	EndNodeID   string
	Nodes       []WorkflowNode
	Edges       []WorkflowEdge
}

// NodeByID looks up a node by ID, returning ok=false if absent.
func (w *Workflow) NodeByID(id string) (WorkflowNode, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return WorkflowNode{}, false
}

// HasSideEffectNode reports whether any node in the main subgraph requires
// a confirmation gate.
func (w *Workflow) HasSideEffectNode() bool {
	for _, n := range w.Nodes {
		if HasSideEffect(n.Type) {
			return true
		}
	}
	return false
}

// TopologyFingerprint returns the sorted node-ID and edge-ID sets, used by
// the orchestrator's config-only patch policy to detect a
// patch_scope_violation (§4.9.1: any topology change after a patch aborts
// the repair).
func (w *Workflow) TopologyFingerprint() (nodeIDs []string, edgeKeys []string) {
	nodeIDs = make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}
	sort.Strings(nodeIDs)
	edgeKeys = make([]string, 0, len(w.Edges))
	for _, e := range w.Edges {
		edgeKeys = append(edgeKeys, e.From+"->"+e.To)
	}
	sort.Strings(edgeKeys)
	return nodeIDs, edgeKeys
}
