package kernel

import "fmt"

// ToolChecker answers whether a tool exists and whether it is deprecated,
// backing the validator's per-tool-node contract check (§4.7). The tool
// package's registry implements this.
type ToolChecker interface {
	Exists(toolID string) bool
	Deprecated(toolID string) bool
}

// modelProviderAllowlist is the set of LLM providers a node's
// ModelProvider config may reference (§4.7 "model-provider allowlists").
var modelProviderAllowlist = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"google":    true,
	"mock":      true,
}

// Validate performs the fail-closed static checks of §4.7 against
// workflow's main subgraph, before any side effects. It returns the first
// violation found as a typed *Error.
func Validate(workflow *Workflow, tools ToolChecker) error {
	if workflow == nil {
		return &Error{Code: CodeInvalidNodeConfig, Message: "workflow is nil"}
	}
	if workflow.StartNodeID == "" {
		return &Error{Code: CodeNoStartNode, Message: "workflow has no start node"}
	}
	if workflow.EndNodeID == "" {
		return &Error{Code: CodeNoEndNode, Message: "workflow has no end node"}
	}
	if _, ok := workflow.NodeByID(workflow.StartNodeID); !ok {
		return &Error{Code: CodeNoStartNode, Message: "start node " + workflow.StartNodeID + " not defined"}
	}
	if _, ok := workflow.NodeByID(workflow.EndNodeID); !ok {
		return &Error{Code: CodeNoEndNode, Message: "end node " + workflow.EndNodeID + " not defined"}
	}

	adjacency := make(map[string][]string, len(workflow.Nodes))
	for _, n := range workflow.Nodes {
		adjacency[n.ID] = nil
	}
	for _, e := range workflow.Edges {
		if _, ok := adjacency[e.From]; !ok {
			return &Error{Code: CodeDanglingEdge, Message: "edge references unknown node " + e.From}
		}
		if _, ok := adjacency[e.To]; !ok {
			return &Error{Code: CodeDanglingEdge, Message: "edge references unknown node " + e.To}
		}
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	if !reachable(adjacency, workflow.StartNodeID, workflow.EndNodeID) {
		return &Error{Code: CodeUnreachableEnd, Message: "no path from " + workflow.StartNodeID + " to " + workflow.EndNodeID}
	}
	if hasCycle(adjacency) {
		return &Error{Code: CodeCyclicGraph, Message: "main subgraph contains a cycle"}
	}

	for _, n := range workflow.Nodes {
		if err := validateNodeContract(n, tools); err != nil {
			return err
		}
	}

	return nil
}

func reachable(adjacency map[string][]string, from, to string) bool {
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, next := range adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// hasCycle runs a standard white/gray/black DFS cycle check over adjacency.
func hasCycle(adjacency map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(adjacency))

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, next := range adjacency[node] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for node := range adjacency {
		if color[node] == white {
			if visit(node) {
				return true
			}
		}
	}
	return false
}

// validateNodeContract checks node-type-specific requirements (§4.7:
// "Node configs satisfy their per-type contracts").
func validateNodeContract(n WorkflowNode, tools ToolChecker) error {
	switch n.Type {
	case NodeTypeStart, NodeTypeEnd, NodeTypeRouter:
		return nil
	case NodeTypeLLM:
		if n.Config.ModelProvider == "" {
			return &Error{Code: CodeInvalidNodeConfig, Message: fmt.Sprintf("node %s: model_provider is required", n.ID)}
		}
		if !modelProviderAllowlist[n.Config.ModelProvider] {
			return &Error{Code: CodeInvalidNodeConfig, Message: fmt.Sprintf("node %s: model_provider %q not allowed", n.ID, n.Config.ModelProvider)}
		}
		return nil
	case NodeTypeTool:
		if n.Config.ToolID == "" {
			return &Error{Code: CodeInvalidNodeConfig, Message: fmt.Sprintf("node %s: tool_id is required", n.ID)}
		}
		if tools == nil || !tools.Exists(n.Config.ToolID) {
			return &Error{Code: CodeToolNotFound, Message: fmt.Sprintf("node %s: tool %q not found", n.ID, n.Config.ToolID)}
		}
		if tools.Deprecated(n.Config.ToolID) {
			return &Error{Code: CodeToolDeprecated, Message: fmt.Sprintf("node %s: tool %q is deprecated", n.ID, n.Config.ToolID)}
		}
		return nil
	case NodeTypeHTTP:
		if n.Config.Extra["url"] == "" {
			return &Error{Code: CodeInvalidNodeConfig, Message: fmt.Sprintf("node %s: url is required", n.ID)}
		}
		return nil
	case NodeTypeNotification:
		if n.Config.Extra["channel"] == "" {
			return &Error{Code: CodeInvalidNodeConfig, Message: fmt.Sprintf("node %s: channel is required", n.ID)}
		}
		return nil
	default:
		return &Error{Code: CodeUnknownNodeType, Message: fmt.Sprintf("node %s: unknown node type %q", n.ID, n.Type)}
	}
}
