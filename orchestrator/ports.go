package orchestrator

import (
	"context"

	"github.com/dshills/workflowcore/kernel"
)

// WorkflowRepository is the persistence port for workflow definitions that
// the Run Execution Entry (C9) and its config-only patch policy (§4.9.1)
// read and, after a repair, save back.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*kernel.Workflow, error)
	Save(ctx context.Context, w *kernel.Workflow) error
}

// ToolInfo is the subset of a catalogued tool the patch policy and the
// validator's ToolChecker need.
type ToolInfo struct {
	ID         string
	Deprecated bool
}

// ToolCatalog is the read port onto the tool registry (tool package) used by
// the config-only patch policy's tool_not_found fallback and by Prepare's
// pre-execution validation.
type ToolCatalog interface {
	FindPublished(ctx context.Context) ([]ToolInfo, error)
	FindAll(ctx context.Context) ([]ToolInfo, error)
}

// catalogChecker adapts a ToolCatalog snapshot to kernel.ToolChecker.
type catalogChecker struct {
	deprecatedByID map[string]bool
}

func (c catalogChecker) Exists(toolID string) bool {
	_, ok := c.deprecatedByID[toolID]
	return ok
}

func (c catalogChecker) Deprecated(toolID string) bool {
	return c.deprecatedByID[toolID]
}

func buildToolChecker(ctx context.Context, tools ToolCatalog) (kernel.ToolChecker, error) {
	if tools == nil {
		return catalogChecker{deprecatedByID: map[string]bool{}}, nil
	}
	all, err := tools.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]bool, len(all))
	for _, t := range all {
		byID[t.ID] = t.Deprecated
	}
	return catalogChecker{deprecatedByID: byID}, nil
}
