package criteria

// Criterion is a single acceptance criterion. ID is stable across sources
// (derived from normalized text) so merging is deterministic.
type Criterion struct {
	ID                 string
	Text               string
	Source             Source
	VerificationMethod VerificationMethod
	Meta               map[string]any
}

// canonicalDict mirrors the Python original's to_canonical_dict: a minimal,
// stable shape for hashing.
func (c Criterion) canonicalDict() map[string]any {
	meta := c.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"id":                  c.ID,
		"text":                c.Text,
		"source":              string(c.Source),
		"verification_method": string(c.VerificationMethod),
		"meta":                meta,
	}
}

// Conflict is a pair of criteria sharing a normalized core with opposite
// negation polarity.
type Conflict struct {
	LeftID string
	RightID string
	Reason  string
}

// Snapshot is the immutable bundle passed to the acceptance evaluator.
type Snapshot struct {
	Criteria                []Criterion
	CriteriaHash            string
	Conflicts               []Conflict
	UnverifiableCriteriaIDs []string
	UserQuestions           []string
}
