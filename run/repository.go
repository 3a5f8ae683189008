package run

import "context"

// Repository is the C1 Run Repository port. Implementations (store.Memory,
// store.SQLite, store.MySQL) must make UpdateStatusIfCurrent a single atomic
// statement — it is the CAS primitive every lifecycle invariant relies on.
type Repository interface {
	// Save upserts a Run by ID.
	Save(ctx context.Context, r *Run) error

	// GetByID fetches a Run, returning a *Error{Code: CodeNotFound} if absent.
	GetByID(ctx context.Context, id string) (*Run, error)

	// UpdateStatusIfCurrent performs `UPDATE ... WHERE id=? AND status=?` and
	// reports whether exactly one row was affected. This is the single
	// source of duplicate-claim suppression across concurrent callers.
	UpdateStatusIfCurrent(ctx context.Context, id string, expected, target Status) (bool, error)

	// CountByWorkflowID returns the number of Runs for a workflow.
	CountByWorkflowID(ctx context.Context, workflowID string) (int, error)

	// ListByWorkflowID returns a page of Runs for a workflow, most recent
	// first.
	ListByWorkflowID(ctx context.Context, workflowID string, limit, offset int) ([]*Run, error)

	// Delete removes a Run; idempotent (no error if already absent).
	Delete(ctx context.Context, id string) error

	// CreateWithIdempotency derives a deterministic Run ID from
	// (projectID, workflowID, idempotencyKey) and inserts it, or returns the
	// existing row if one with that ID already exists.
	CreateWithIdempotency(ctx context.Context, projectID, workflowID, idempotencyKey string) (*Run, error)
}
