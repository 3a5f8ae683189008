package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/run"
)

// SQLite is a single-file Run Repository + Event Journal. Designed for
// development, testing with zero setup, and single-process deployments.
// Uses WAL mode for concurrent reads.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLite opens (creating if absent) a SQLite-backed store at path. Use
// ":memory:" for an ephemeral in-process database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			error TEXT NOT NULL DEFAULT ''
		)
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_workflow_created ON runs(workflow_id, created_at DESC)"); err != nil {
		return fmt.Errorf("failed to create idx_runs_workflow_created: %w", err)
	}

	eventsTable := `
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			idempotency_key TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, eventsTable); err != nil {
		return fmt.Errorf("failed to create run_events table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_run_events_idempotency ON run_events(run_id, channel, idempotency_key) WHERE idempotency_key IS NOT NULL"); err != nil {
		return fmt.Errorf("failed to create idx_run_events_idempotency: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_run_events_type ON run_events(run_id, channel, type)"); err != nil {
		return fmt.Errorf("failed to create idx_run_events_type: %w", err)
	}
	return nil
}

// Close closes the database connection. Safe to call more than once.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// --- run.Repository ---

func (s *SQLite) Save(ctx context.Context, r *run.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, project_id, workflow_id, agent_id, status, created_at, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			error = excluded.error
	`, r.ID, r.ProjectID, r.WorkflowID, r.AgentID, string(r.Status), r.CreatedAt, nullableTime(r.StartedAt), nullableTime(r.FinishedAt), r.Error)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*run.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, workflow_id, agent_id, status, created_at, started_at, finished_at, error
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, run.NewError(run.CodeNotFound, "run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return r, nil
}

func (s *SQLite) UpdateStatusIfCurrent(ctx context.Context, id string, expected, target run.Status) (bool, error) {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if target.IsTerminal() {
		res, err = s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
			string(target), now, id, string(expected))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ? AND status = ?`,
			string(target), now, id, string(expected))
	}
	if err != nil {
		return false, fmt.Errorf("failed to update run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLite) CountByWorkflowID(ctx context.Context, workflowID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE workflow_id = ?`, workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func (s *SQLite) ListByWorkflowID(ctx context.Context, workflowID string, limit, offset int) ([]*run.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, workflow_id, agent_id, status, created_at, started_at, finished_at, error
		FROM runs WHERE workflow_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, workflowID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	if results == nil {
		results = []*run.Run{}
	}
	return results, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run events: %w", err)
	}
	return nil
}

func (s *SQLite) CreateWithIdempotency(ctx context.Context, projectID, workflowID, idempotencyKey string) (*run.Run, error) {
	r, err := run.CreateWithIdempotency(projectID, workflowID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, project_id, workflow_id, agent_id, status, created_at, started_at, finished_at, error)
		VALUES (?, ?, ?, '', ?, ?, NULL, NULL, '')
		ON CONFLICT(id) DO NOTHING
	`, r.ID, r.ProjectID, r.WorkflowID, string(r.Status), r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return s.GetByID(ctx, r.ID)
}

// --- journal.Journal ---

func (s *SQLite) Append(ctx context.Context, in journal.AppendInput) (*journal.RunEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found, err := s.lookupDedup(ctx, in); err != nil {
		return nil, false, err
	} else if found {
		return existing, true, nil
	}

	payloadJSON, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, channel, type, payload, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.RunID, string(in.Channel), in.Type, string(payloadJSON), nullableString(in.IdempotencyKey), now)
	if err != nil {
		// A racing writer may have inserted the same (run_id, channel,
		// idempotency_key) between our lookup and this insert; re-check.
		if existing, found, lookupErr := s.lookupDedup(ctx, in); lookupErr == nil && found {
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("failed to append run event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read inserted event id: %w", err)
	}

	return &journal.RunEvent{
		EventID:        id,
		RunID:          in.RunID,
		Channel:        in.Channel,
		Type:           in.Type,
		Payload:        in.Payload,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}, false, nil
}

func (s *SQLite) lookupDedup(ctx context.Context, in journal.AppendInput) (*journal.RunEvent, bool, error) {
	var row *sql.Row
	switch {
	case in.IdempotencyKey != "":
		row = s.db.QueryRowContext(ctx, `
			SELECT id, run_id, channel, type, payload, idempotency_key, created_at
			FROM run_events WHERE run_id = ? AND channel = ? AND idempotency_key = ?
		`, in.RunID, string(in.Channel), in.IdempotencyKey)
	case journal.IsTerminalType(in.Type):
		row = s.db.QueryRowContext(ctx, `
			SELECT id, run_id, channel, type, payload, idempotency_key, created_at
			FROM run_events WHERE run_id = ? AND channel = ? AND type = ?
			ORDER BY id ASC LIMIT 1
		`, in.RunID, string(in.Channel), in.Type)
	default:
		return nil, false, nil
	}

	event, err := scanRunEvent(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for duplicate event: %w", err)
	}
	return event, true, nil
}

func (s *SQLite) List(ctx context.Context, runID string, channel journal.Channel, cursor int64, limit int) ([]*journal.RunEvent, int64, bool, error) {
	query := `
		SELECT id, run_id, channel, type, payload, idempotency_key, created_at
		FROM run_events WHERE run_id = ? AND channel = ? AND id > ?
		ORDER BY id ASC
	`
	args := []any{runID, string(channel), cursor}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to list run events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*journal.RunEvent
	for rows.Next() {
		e, err := scanRunEvent(rows)
		if err != nil {
			return nil, 0, false, fmt.Errorf("failed to scan run event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, fmt.Errorf("error iterating run event rows: %w", err)
	}

	if limit <= 0 || len(events) <= limit {
		return events, 0, false, nil
	}
	page := events[:limit]
	return page, page[len(page)-1].EventID, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*run.Run, error) {
	var (
		r          run.Run
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &r.WorkflowID, &r.AgentID, &status, &r.CreatedAt, &startedAt, &finishedAt, &r.Error); err != nil {
		return nil, err
	}
	r.Status = run.Status(status)
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

func scanRunEvent(row rowScanner) (*journal.RunEvent, error) {
	var (
		e              journal.RunEvent
		channel        string
		payloadJSON    string
		idempotencyKey sql.NullString
	)
	if err := row.Scan(&e.EventID, &e.RunID, &channel, &e.Type, &payloadJSON, &idempotencyKey, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Channel = journal.Channel(channel)
	if idempotencyKey.Valid {
		e.IdempotencyKey = idempotencyKey.String
	}
	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}
	return &e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
