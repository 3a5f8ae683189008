package orchestrator

import (
	"context"

	"github.com/dshills/workflowcore/kernel"
)

// Node timeout bounds for the config-only timeout-widening patch (§4.9.1).
const (
	patchMinTimeoutSeconds     = 10
	patchMaxTimeoutSeconds     = 300
	patchDefaultTimeoutSeconds = 30
)

// patchChange records one field mutation a patch made, for the
// workflow_react_patch_applied event payload.
type patchChange struct {
	From any
	To   any
}

// patchResult describes a successfully applied config-only repair.
type patchResult struct {
	NodeID    string
	ErrorType string
	Changes   map[string]patchChange
}

// applyConfigOnlyPatch attempts a best-effort, config-only repair of the
// node that just failed (PRD-040 / §4.9.1): widen a timeout for a
// timeout/retryable failure, or swap a missing tool for a non-deprecated
// published alternative for tool_not_found. It never adds or removes nodes
// or edges; if the topology differs after mutation this is a bug in the
// patch itself, and the caller must fail closed.
//
// A nil result with a non-empty reason and nil error means "not applicable"
// (the reason names why, e.g. "unsupported_error_type"); the caller maps
// that to an unrepairable termination. A non-nil error means a port failed
// (repository/catalog I/O) or the patched workflow failed validation.
func applyConfigOnlyPatch(ctx context.Context, workflows WorkflowRepository, tools ToolCatalog, workflowID, nodeID, errorType string, retryable bool) (*patchResult, string, error) {
	if nodeID == "" {
		return nil, "missing_node_id", nil
	}

	workflow, err := workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, "", err
	}
	nodeIDsBefore, edgeKeysBefore := workflow.TopologyFingerprint()

	idx := -1
	for i, n := range workflow.Nodes {
		if n.ID == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, "node_not_found", nil
	}
	node := &workflow.Nodes[idx]

	result := &patchResult{NodeID: nodeID, ErrorType: errorType, Changes: map[string]patchChange{}}

	switch {
	case errorType == "timeout" || retryable:
		before := node.Config.TimeoutSeconds
		current := before
		if current <= 0 {
			current = patchDefaultTimeoutSeconds
		}
		target := current * 2
		if target < patchMinTimeoutSeconds {
			target = patchMinTimeoutSeconds
		}
		if target > patchMaxTimeoutSeconds {
			target = patchMaxTimeoutSeconds
		}
		node.Config.TimeoutSeconds = target
		result.Changes["timeout"] = patchChange{From: before, To: target}

	case errorType == "tool_not_found":
		if node.Type != kernel.NodeTypeTool {
			return nil, "tool_not_found_non_tool_node", nil
		}
		if tools == nil {
			return nil, "tool_repository_unavailable", nil
		}
		candidates, err := tools.FindPublished(ctx)
		if err != nil {
			return nil, "", err
		}
		if len(candidates) == 0 {
			if candidates, err = tools.FindAll(ctx); err != nil {
				return nil, "", err
			}
		}
		if len(candidates) == 0 {
			return nil, "no_fallback_tools", nil
		}

		nonDeprecated := make([]ToolInfo, 0, len(candidates))
		for _, t := range candidates {
			if !t.Deprecated {
				nonDeprecated = append(nonDeprecated, t)
			}
		}
		if len(nonDeprecated) == 0 {
			return nil, "no_non_deprecated_tools", nil
		}

		before := node.Config.ToolID
		fallback := nonDeprecated[0]
		for _, t := range nonDeprecated {
			if t.ID != before {
				fallback = t
				break
			}
		}
		node.Config.ToolID = fallback.ID
		result.Changes["tool_id"] = patchChange{From: before, To: fallback.ID}

	default:
		return nil, "unsupported_error_type", nil
	}

	nodeIDsAfter, edgeKeysAfter := workflow.TopologyFingerprint()
	if !stringSlicesEqual(nodeIDsBefore, nodeIDsAfter) || !stringSlicesEqual(edgeKeysBefore, edgeKeysAfter) {
		return nil, "patch_scope_violation", nil
	}

	checker, err := buildToolChecker(ctx, tools)
	if err != nil {
		return nil, "", err
	}
	if err := kernel.Validate(workflow, checker); err != nil {
		return nil, "", err
	}
	if err := workflows.Save(ctx, workflow); err != nil {
		return nil, "", err
	}

	return result, "", nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
