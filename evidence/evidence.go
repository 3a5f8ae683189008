// Package evidence implements the Evidence Collector (C5): a deterministic
// snapshot of a Run's outcome built purely from its event journal.
package evidence

import (
	"context"
	"sort"

	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/run"
)

// Summary is the execution_summary sub-object of a Snapshot.
type Summary struct {
	RunEventCount     int
	TypeCounts        map[string]int
	EventRefsByType   map[string][]string
	ChannelCounts     map[string]int
	TerminalEventType string // "" means none
	ConfirmRequired   bool
	ConfirmDecision   string // "" means none
	FirstEventID      *int64
	LastEventID       *int64
}

// Snapshot is the RunEvidenceSnapshot of §3.1, derived in-memory from every
// persisted event for a Run.
type Snapshot struct {
	RunID         string
	RunEventRefs  []string
	ArtifactRefs  []string
	TestReportRef string
	Summary       Summary
}

// Collector builds Snapshots for a Run.
type Collector struct {
	runs    run.Repository
	journal journal.Journal
}

// NewCollector constructs a Collector.
func NewCollector(runs run.Repository, j journal.Journal) *Collector {
	return &Collector{runs: runs, journal: j}
}

// Collect builds a deterministic Snapshot for runID. It fails closed if the
// Run does not exist; it never relies on storage iteration order — events
// are always sorted by EventID before folding into the summary.
func (c *Collector) Collect(ctx context.Context, runID string) (Snapshot, error) {
	if _, err := c.runs.GetByID(ctx, runID); err != nil {
		return Snapshot{}, err
	}

	all, err := c.collectAllEvents(ctx, runID)
	if err != nil {
		return Snapshot{}, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EventID < all[j].EventID })

	refs := make([]string, 0, len(all))
	typeCounts := map[string]int{}
	channelCounts := map[string]int{}
	refsByType := map[string][]string{}

	var terminalType string
	confirmRequired := false
	var confirmDecision string

	for _, e := range all {
		ref := e.Ref()
		refs = append(refs, ref)

		typeCounts[e.Type]++
		refsByType[e.Type] = append(refsByType[e.Type], ref)
		channelCounts[string(e.Channel)] = channelCounts[string(e.Channel)] + 1

		switch e.Type {
		case journal.TypeWorkflowComplete:
			terminalType = journal.TypeWorkflowComplete
		case journal.TypeWorkflowError:
			if terminalType == "" {
				terminalType = journal.TypeWorkflowError
			}
		case journal.TypeWorkflowConfirmRequired:
			confirmRequired = true
		case journal.TypeWorkflowConfirmed:
			if decision, ok := e.Payload["decision"].(string); ok && decision != "" {
				confirmDecision = decision
			}
		}
	}

	summary := Summary{
		RunEventCount:     len(all),
		TypeCounts:        typeCounts,
		EventRefsByType:   refsByType,
		ChannelCounts:     channelCounts,
		TerminalEventType: terminalType,
		ConfirmRequired:   confirmRequired,
		ConfirmDecision:   confirmDecision,
	}
	if len(all) > 0 {
		first, last := all[0].EventID, all[len(all)-1].EventID
		summary.FirstEventID = &first
		summary.LastEventID = &last
	}

	return Snapshot{
		RunID:        runID,
		RunEventRefs: refs,
		ArtifactRefs: []string{},
		Summary:      summary,
	}, nil
}

// collectAllEvents pages through every channel of the run's journal.
func (c *Collector) collectAllEvents(ctx context.Context, runID string) ([]*journal.RunEvent, error) {
	var all []*journal.RunEvent
	for _, channel := range []journal.Channel{journal.ChannelExecution, journal.ChannelLifecycle, journal.ChannelPlanning} {
		cursor := int64(0)
		for {
			events, next, hasMore, err := c.journal.List(ctx, runID, channel, cursor, 0)
			if err != nil {
				return nil, err
			}
			all = append(all, events...)
			if !hasMore {
				break
			}
			cursor = next
		}
	}
	return all, nil
}
