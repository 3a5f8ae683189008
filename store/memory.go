// Package store provides persistence backends for the Run Repository (C1)
// and Event Journal (C2) ports: an in-memory implementation for tests and
// single-process use, and SQLite/MySQL implementations for durable
// deployments (§6.3).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/run"
)

// Memory is an in-memory Run Repository and Event Journal. Designed for
// tests, development, and short-lived workflows where durability isn't
// required; data is lost when the process ends.
type Memory struct {
	mu sync.RWMutex

	runs map[string]*run.Run

	// events[runID][channel] is append-ordered; nextEventID is a single
	// monotonic counter shared across every run and channel so event_id
	// ordering is globally comparable, matching the BIGINT AUTOINCREMENT
	// column the SQL-backed stores use.
	events      map[string]map[journal.Channel][]*journal.RunEvent
	nextEventID int64

	idempotencyIndex map[string]*journal.RunEvent // runID|channel|key -> event
	terminalIndex    map[string]*journal.RunEvent  // runID|channel|type -> event
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:             make(map[string]*run.Run),
		events:           make(map[string]map[journal.Channel][]*journal.RunEvent),
		idempotencyIndex: make(map[string]*journal.RunEvent),
		terminalIndex:    make(map[string]*journal.RunEvent),
	}
}

// --- run.Repository ---

func (m *Memory) Save(_ context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *Memory) GetByID(_ context.Context, id string) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, run.NewError(run.CodeNotFound, "run not found: %s", id)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateStatusIfCurrent(_ context.Context, id string, expected, target run.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return false, run.NewError(run.CodeNotFound, "run not found: %s", id)
	}
	if r.Status != expected {
		return false, nil
	}
	r.Status = target
	now := time.Now().UTC()
	if target.IsTerminal() {
		r.FinishedAt = &now
	}
	if target == run.StatusRunning && r.StartedAt == nil {
		r.StartedAt = &now
	}
	return true, nil
}

func (m *Memory) CountByWorkflowID(_ context.Context, workflowID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.runs {
		if r.WorkflowID == workflowID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ListByWorkflowID(_ context.Context, workflowID string, limit, offset int) ([]*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*run.Run, 0)
	for _, r := range m.runs {
		if r.WorkflowID == workflowID {
			cp := *r
			matches = append(matches, &cp)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	if offset >= len(matches) {
		return []*run.Run{}, nil
	}
	end := len(matches)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matches[offset:end], nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	delete(m.events, id)
	return nil
}

func (m *Memory) CreateWithIdempotency(_ context.Context, projectID, workflowID, idempotencyKey string) (*run.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := run.DeriveIDFromIdempotencyKey(projectID, workflowID, idempotencyKey)
	if existing, ok := m.runs[id]; ok {
		cp := *existing
		return &cp, nil
	}

	r, err := run.CreateWithIdempotency(projectID, workflowID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	cp := *r
	m.runs[r.ID] = &cp
	return r, nil
}

// --- journal.Journal ---

func (m *Memory) Append(_ context.Context, in journal.AppendInput) (*journal.RunEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.IdempotencyKey != "" {
		key := idempotencyIndexKey(in.RunID, in.Channel, in.IdempotencyKey)
		if existing, ok := m.idempotencyIndex[key]; ok {
			return existing, true, nil
		}
	} else if journal.IsTerminalType(in.Type) {
		key := terminalIndexKey(in.RunID, in.Channel, in.Type)
		if existing, ok := m.terminalIndex[key]; ok {
			return existing, true, nil
		}
	}

	m.nextEventID++
	event := &journal.RunEvent{
		EventID:        m.nextEventID,
		RunID:          in.RunID,
		Channel:        in.Channel,
		Type:           in.Type,
		Payload:        in.Payload,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	if m.events[in.RunID] == nil {
		m.events[in.RunID] = make(map[journal.Channel][]*journal.RunEvent)
	}
	m.events[in.RunID][in.Channel] = append(m.events[in.RunID][in.Channel], event)

	if in.IdempotencyKey != "" {
		m.idempotencyIndex[idempotencyIndexKey(in.RunID, in.Channel, in.IdempotencyKey)] = event
	}
	if journal.IsTerminalType(in.Type) {
		m.terminalIndex[terminalIndexKey(in.RunID, in.Channel, in.Type)] = event
	}

	return event, false, nil
}

func (m *Memory) List(_ context.Context, runID string, channel journal.Channel, cursor int64, limit int) ([]*journal.RunEvent, int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.events[runID][channel]
	start := 0
	for start < len(all) && all[start].EventID <= cursor {
		start++
	}
	remaining := all[start:]

	if limit <= 0 || limit >= len(remaining) {
		return append([]*journal.RunEvent(nil), remaining...), 0, false, nil
	}

	page := append([]*journal.RunEvent(nil), remaining[:limit]...)
	next := page[len(page)-1].EventID
	return page, next, true, nil
}

func idempotencyIndexKey(runID string, channel journal.Channel, key string) string {
	return runID + "|" + string(channel) + "|" + key
}

func terminalIndexKey(runID string, channel journal.Channel, eventType string) string {
	return runID + "|" + string(channel) + "|" + eventType
}
