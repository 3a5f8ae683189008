package store

import (
	"context"
	"os"
	"testing"

	"github.com/dshills/workflowcore/run"
)

func getTestMySQLDSN(t *testing.T) string {
	t.Helper()
	return os.Getenv("TEST_MYSQL_DSN")
}

// TestMySQLRunRoundTrip exercises the MySQL-backed repository against a real
// server; it is skipped unless TEST_MYSQL_DSN is set (no MySQL server is
// assumed to be available in this environment).
func TestMySQLRunRoundTrip(t *testing.T) {
	dsn := getTestMySQLDSN(t)
	if dsn == "" {
		t.Skip("skipping MySQL tests: TEST_MYSQL_DSN not set")
	}

	ctx := context.Background()
	s, err := NewMySQL(dsn)
	if err != nil {
		t.Fatalf("failed to open mysql store: %v", err)
	}
	defer func() { _ = s.Close() }()

	r, err := run.Create("proj_1", "wf_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("expected id %s, got %s", r.ID, got.ID)
	}
}

func TestMySQLInvalidDSNFailsFast(t *testing.T) {
	if _, err := NewMySQL("not a valid dsn"); err == nil {
		t.Fatal("expected an error for a malformed DSN")
	}
}
