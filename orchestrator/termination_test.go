package orchestrator

import "testing"

func TestBuildTerminationReportFiltersLastErrorToAllowlist(t *testing.T) {
	lastError := map[string]any{
		"type": "workflow_error", "node_id": "work", "error": "boom",
		"error_type": "timeout", "retryable": true,
		"secret_internal_detail": "should not leak",
	}
	report := buildTerminationReport("wf_1", "max_attempts", "max_attempts", 6, 1, 2, 1234, lastError, nil)

	if _, ok := report.LastError["secret_internal_detail"]; ok {
		t.Fatal("expected non-allowlisted key to be dropped")
	}
	if report.LastError["node_id"] != "work" {
		t.Fatalf("expected node_id to survive the allowlist filter, got %v", report.LastError["node_id"])
	}

	fields := report.toFields()
	if fields["stop_reason"] != "max_attempts" {
		t.Fatalf("expected stop_reason max_attempts, got %v", fields["stop_reason"])
	}
	if fields["patch_scope"] != "config-only" {
		t.Fatalf("expected patch_scope config-only, got %v", fields["patch_scope"])
	}
	if fields["attempts_total"] != 6 {
		t.Fatalf("expected attempts_total 6, got %v", fields["attempts_total"])
	}
}

func TestBuildTerminationReportHandlesNilLastError(t *testing.T) {
	report := buildTerminationReport("wf_1", "unrepairable_error", "no_applicable_patch", 2, 1, 0, 0, nil, nil)
	if len(report.LastError) != 0 {
		t.Fatalf("expected empty last_error, got %v", report.LastError)
	}
}
