package tool

import (
	"context"

	"github.com/dshills/workflowcore/orchestrator"
)

// CatalogAdapter satisfies orchestrator.ToolCatalog by converting a
// Registry's Info results to orchestrator.ToolInfo. Kept as a separate
// adapter rather than changing Registry's own return type so this package
// has no compile-time dependency on the orchestrator package's types in
// its primary API.
type CatalogAdapter struct {
	Tools *Registry
}

// NewCatalogAdapter wraps tools for use as an orchestrator.ToolCatalog.
func NewCatalogAdapter(tools *Registry) CatalogAdapter {
	return CatalogAdapter{Tools: tools}
}

// FindPublished implements orchestrator.ToolCatalog.
func (c CatalogAdapter) FindPublished(ctx context.Context) ([]orchestrator.ToolInfo, error) {
	infos, err := c.Tools.FindPublished(ctx)
	if err != nil {
		return nil, err
	}
	return convertInfos(infos), nil
}

// FindAll implements orchestrator.ToolCatalog.
func (c CatalogAdapter) FindAll(ctx context.Context) ([]orchestrator.ToolInfo, error) {
	infos, err := c.Tools.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return convertInfos(infos), nil
}

func convertInfos(infos []Info) []orchestrator.ToolInfo {
	out := make([]orchestrator.ToolInfo, len(infos))
	for i, info := range infos {
		out[i] = orchestrator.ToolInfo{ID: info.ID, Deprecated: info.Deprecated}
	}
	return out
}
