// Package config holds the acceptance loop's tunables as a functional-option
// Config, mirroring the teacher's Option/Options split: a typed Option
// function for fluent construction, plus a plain Options struct for callers
// that prefer to build and pass one value.
package config

import "time"

// Option configures a Config. Options compose left-to-right; a later option
// overrides an earlier one that touches the same field.
type Option func(*Config) error

// Config holds the tunables of the acceptance loop, the confirmation gate,
// and the ReAct repair loop, starting from Defaults. No other package of this
// module reads a Config: the orchestrator package uses its own constants,
// whose values equal Defaults.
type Config struct {
	opts Options
}

// Options is the plain-struct form of Config, for callers building
// configuration from a file or environment rather than option calls.
type Options struct {
	// MaxReplanAttempts caps how many times the decision bridge may
	// re-execute a workflow in response to a single acceptance-loop
	// reflection chain before MaxReplanAttemptsValidator rejects further
	// attempts.
	MaxReplanAttempts int

	// RequireTestReportForPass, when true, rejects a PASS verdict that
	// carries no evidence ref naming a test report — the acceptance loop
	// must cite what it checked before approving.
	RequireTestReportForPass bool

	// MaxReactAttempts bounds how many execute/patch attempts the ReAct
	// repair loop of a single Run may take.
	MaxReactAttempts int

	// MaxConsecutiveFailures bounds how many attempts in a row may fail
	// before the ReAct repair loop stops patching.
	MaxConsecutiveFailures int

	// MaxReactSeconds bounds the total wall-clock time a ReAct loop may
	// spend across all its attempts.
	MaxReactSeconds int

	// MaxLLMCalls bounds how many model calls a single Run may make,
	// independent of node count, guarding against a misbehaving prompt
	// loop.
	MaxLLMCalls int

	// ConfirmTimeoutSeconds is the default wait before an unresolved
	// confirmation gate times out.
	ConfirmTimeoutSeconds int

	// E2ETestMode marks deterministic end-to-end test runs. It is only
	// stored here; no code in this module changes behaviour on it.
	E2ETestMode bool

	// DisableRunPersistence marks throwaway local runs. It is only stored
	// here; no code in this module skips writing Run records on it.
	DisableRunPersistence bool
}

// Defaults mirrors the values named for this module's tunables: a replan
// ceiling of 3, a 6-attempt/600-second ReAct budget, a 3-in-a-row failure
// ceiling, 20 LLM calls, and a 300-second confirmation timeout.
func Defaults() Options {
	return Options{
		MaxReplanAttempts:        3,
		RequireTestReportForPass: true,
		MaxReactAttempts:         6,
		MaxConsecutiveFailures:   3,
		MaxReactSeconds:          600,
		MaxLLMCalls:              20,
		ConfirmTimeoutSeconds:    300,
	}
}

// New builds a Config starting from Defaults and applying opts in order.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{opts: Defaults()}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Options returns the resolved Options value.
func (c *Config) Options() Options { return c.opts }

// ConfirmTimeout returns ConfirmTimeoutSeconds as a time.Duration.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.opts.ConfirmTimeoutSeconds) * time.Second
}

// MaxReactDuration returns MaxReactSeconds as a time.Duration.
func (c *Config) MaxReactDuration() time.Duration {
	return time.Duration(c.opts.MaxReactSeconds) * time.Second
}

// WithMaxReplanAttempts sets the replan ceiling the decision bridge enforces
// via agent.MaxReplanAttemptsValidator.
func WithMaxReplanAttempts(n int) Option {
	return func(cfg *Config) error {
		cfg.opts.MaxReplanAttempts = n
		return nil
	}
}

// WithRequireTestReportForPass toggles whether a PASS verdict must cite a
// test report evidence ref.
func WithRequireTestReportForPass(required bool) Option {
	return func(cfg *Config) error {
		cfg.opts.RequireTestReportForPass = required
		return nil
	}
}

// WithMaxReactAttempts sets MaxReactAttempts.
func WithMaxReactAttempts(n int) Option {
	return func(cfg *Config) error {
		cfg.opts.MaxReactAttempts = n
		return nil
	}
}

// WithMaxConsecutiveFailures sets MaxConsecutiveFailures.
func WithMaxConsecutiveFailures(n int) Option {
	return func(cfg *Config) error {
		cfg.opts.MaxConsecutiveFailures = n
		return nil
	}
}

// WithMaxReactSeconds bounds the total wall-clock budget of a ReAct loop.
func WithMaxReactSeconds(n int) Option {
	return func(cfg *Config) error {
		cfg.opts.MaxReactSeconds = n
		return nil
	}
}

// WithMaxLLMCalls bounds model calls per Run.
func WithMaxLLMCalls(n int) Option {
	return func(cfg *Config) error {
		cfg.opts.MaxLLMCalls = n
		return nil
	}
}

// WithConfirmTimeoutSeconds sets the default confirmation gate timeout.
func WithConfirmTimeoutSeconds(n int) Option {
	return func(cfg *Config) error {
		cfg.opts.ConfirmTimeoutSeconds = n
		return nil
	}
}

// WithE2ETestMode sets E2ETestMode.
func WithE2ETestMode(enabled bool) Option {
	return func(cfg *Config) error {
		cfg.opts.E2ETestMode = enabled
		return nil
	}
}

// WithDisableRunPersistence sets DisableRunPersistence.
func WithDisableRunPersistence(disabled bool) Option {
	return func(cfg *Config) error {
		cfg.opts.DisableRunPersistence = disabled
		return nil
	}
}

// FromOptions builds a Config directly from a pre-populated Options value,
// skipping Defaults — for callers that already assembled a complete value
// (e.g. from a config file) and don't want option-call overrides.
func FromOptions(opts Options) *Config {
	return &Config{opts: opts}
}
