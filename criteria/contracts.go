// Package criteria implements the Criteria Manager (C4) and the
// Acceptance Criteria Contracts (C13): normalizing, merging, hashing, and
// conflict-detecting acceptance criteria into a deterministic
// CriteriaSnapshot consumed by the acceptance evaluator.
package criteria

// Source ranks where a criterion came from; higher-priority sources win
// merges for the same criterion id.
type Source string

const (
	SourceUser     Source = "user"
	SourcePlan     Source = "plan"
	SourceInferred Source = "inferred"
)

var sourcePriority = map[Source]int{
	SourceUser:     3,
	SourcePlan:     2,
	SourceInferred: 1,
}

// VerificationMethod is the shared C4/C13 taxonomy of how a criterion's
// satisfaction can be established.
type VerificationMethod string

const (
	MethodRunEvent VerificationMethod = "run_event"
	MethodTest     VerificationMethod = "test"
	MethodArtifact VerificationMethod = "artifact"
	MethodManual   VerificationMethod = "manual"
	MethodUnknown  VerificationMethod = "unknown"
)
