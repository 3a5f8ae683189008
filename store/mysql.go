package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dshills/workflowcore/journal"
	"github.com/dshills/workflowcore/run"
)

// MySQL is a MySQL/MariaDB-backed Run Repository + Event Journal, for
// production deployments with multiple workers sharing one database.
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens a connection pool against dsn and ensures the schema
// exists. DSN format:
// [username[:password]@][protocol[(address)]]/dbname[?params]
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	m := &MySQL{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQL) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(255) NOT NULL,
			workflow_id VARCHAR(255) NOT NULL,
			agent_id VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			started_at DATETIME(6) NULL,
			finished_at DATETIME(6) NULL,
			error TEXT NOT NULL,
			INDEX idx_runs_workflow_created (workflow_id, created_at DESC)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	// MySQL treats each NULL in a UNIQUE KEY as distinct, so
	// (run_id, channel, idempotency_key) enforces the "unique where key is
	// not null" rule of spec §6.3 without a partial-index workaround.
	eventsTable := `
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			channel VARCHAR(32) NOT NULL,
			type VARCHAR(64) NOT NULL,
			payload JSON NOT NULL,
			idempotency_key VARCHAR(255) NULL,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uniq_run_events_idempotency (run_id, channel, idempotency_key),
			INDEX idx_run_events_type (run_id, channel, type)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, eventsTable); err != nil {
		return fmt.Errorf("failed to create run_events table: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (m *MySQL) Close() error {
	return m.db.Close()
}

// --- run.Repository ---

func (m *MySQL) Save(ctx context.Context, r *run.Run) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO runs (id, project_id, workflow_id, agent_id, status, created_at, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			started_at = VALUES(started_at),
			finished_at = VALUES(finished_at),
			error = VALUES(error)
	`, r.ID, r.ProjectID, r.WorkflowID, r.AgentID, string(r.Status), r.CreatedAt, nullableTime(r.StartedAt), nullableTime(r.FinishedAt), r.Error)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (m *MySQL) GetByID(ctx context.Context, id string) (*run.Run, error) {
	row := m.db.QueryRowContext(ctx, `
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

func (m *MySQL) UpdateStatusIfCurrent(ctx context.Context, id string, expected, target run.Status) (bool, error) {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if target.IsTerminal() {
		res, err = m.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
			string(target), now, id, string(expected))
	} else {
		res, err = m.db.ExecContext(ctx,
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

func (m *MySQL) CountByWorkflowID(ctx context.Context, workflowID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE workflow_id = ?`, workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func (m *MySQL) ListByWorkflowID(ctx context.Context, workflowID string, limit, offset int) ([]*run.Run, error) {
	rows, err := m.db.QueryContext(ctx, `
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

func (m *MySQL) Delete(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run events: %w", err)
	}
	return nil
}

func (m *MySQL) CreateWithIdempotency(ctx context.Context, projectID, workflowID, idempotencyKey string) (*run.Run, error) {
	r, err := run.CreateWithIdempotency(projectID, workflowID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT IGNORE INTO runs (id, project_id, workflow_id, agent_id, status, created_at, started_at, finished_at, error)
		VALUES (?, ?, ?, '', ?, ?, NULL, NULL, '')
	`, r.ID, r.ProjectID, r.WorkflowID, string(r.Status), r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return m.GetByID(ctx, r.ID)
}

// --- journal.Journal ---

func (m *MySQL) Append(ctx context.Context, in journal.AppendInput) (*journal.RunEvent, bool, error) {
	if existing, found, err := m.lookupDedup(ctx, in); err != nil {
		return nil, false, err
	} else if found {
		return existing, true, nil
	}

	payloadJSON, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, channel, type, payload, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.RunID, string(in.Channel), in.Type, string(payloadJSON), nullableString(in.IdempotencyKey), now)
	if err != nil {
		if existing, found, lookupErr := m.lookupDedup(ctx, in); lookupErr == nil && found {
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

func (m *MySQL) lookupDedup(ctx context.Context, in journal.AppendInput) (*journal.RunEvent, bool, error) {
	var row *sql.Row
	switch {
	case in.IdempotencyKey != "":
		row = m.db.QueryRowContext(ctx, `
			SELECT id, run_id, channel, type, payload, idempotency_key, created_at
			FROM run_events WHERE run_id = ? AND channel = ? AND idempotency_key = ?
		`, in.RunID, string(in.Channel), in.IdempotencyKey)
	case journal.IsTerminalType(in.Type):
		row = m.db.QueryRowContext(ctx, `
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

func (m *MySQL) List(ctx context.Context, runID string, channel journal.Channel, cursor int64, limit int) ([]*journal.RunEvent, int64, bool, error) {
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

	rows, err := m.db.QueryContext(ctx, query, args...)
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
