package config

import "testing"

func TestNewAppliesDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts := cfg.Options()
	if opts.MaxReplanAttempts != 3 || opts.MaxReactAttempts != 6 || opts.ConfirmTimeoutSeconds != 300 {
		t.Fatalf("expected defaults, got %+v", opts)
	}
	if !opts.RequireTestReportForPass {
		t.Fatal("expected RequireTestReportForPass default true")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg, err := New(
		WithMaxReplanAttempts(5),
		WithMaxReactAttempts(10),
		WithE2ETestMode(true),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opts := cfg.Options()
	if opts.MaxReplanAttempts != 5 || opts.MaxReactAttempts != 10 || !opts.E2ETestMode {
		t.Fatalf("expected overridden values, got %+v", opts)
	}
	// Unset fields keep their defaults.
	if opts.MaxLLMCalls != 20 {
		t.Fatalf("expected default MaxLLMCalls retained, got %d", opts.MaxLLMCalls)
	}
}

func TestLaterOptionWinsOnSameField(t *testing.T) {
	cfg, err := New(WithMaxReplanAttempts(5), WithMaxReplanAttempts(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Options().MaxReplanAttempts; got != 8 {
		t.Fatalf("expected last option to win, got %d", got)
	}
}

func TestConfirmTimeoutDuration(t *testing.T) {
	cfg, _ := New(WithConfirmTimeoutSeconds(45))
	if got := cfg.ConfirmTimeout().Seconds(); got != 45 {
		t.Fatalf("expected 45s, got %v", got)
	}
}

func TestFromOptionsSkipsDefaults(t *testing.T) {
	cfg := FromOptions(Options{MaxReplanAttempts: 1})
	if cfg.Options().MaxReactAttempts != 0 {
		t.Fatalf("expected zero-value fields left unset, got %+v", cfg.Options())
	}
}
