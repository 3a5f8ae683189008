package criteria

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// BaselineSuccessCriterionText is injected when no explicit criteria are
// supplied, matching the Python original's bilingual baseline wording.
const BaselineSuccessCriterionText = "Run 执行成功（run.status=COMPLETED 且终态事件为 workflow_complete）"

const maxUserQuestions = 3

// Manager builds CriteriaSnapshots (§4.4).
type Manager struct{}

// NewManager constructs a Manager. It holds no state: build_snapshot has no
// I/O (mirrors the Python original's "self-contained, no DB/no I/O" design).
func NewManager() *Manager { return &Manager{} }

// BuildSnapshot normalizes, merges, hashes, and conflict-checks the given
// criteria sources into a deterministic Snapshot.
func (m *Manager) BuildSnapshot(taskDescription string, userCriteria, planCriteria []string) Snapshot {
	merged := map[string]Criterion{}

	add := func(text string, source Source) {
		normalized := normalizeText(text)
		if normalized == "" {
			return
		}
		id := stableCriterionID(normalized)
		method := m.inferVerificationMethod(text, source)
		candidate := Criterion{
			ID:                 id,
			Text:               trimmed(text),
			Source:             source,
			VerificationMethod: method,
		}

		existing, ok := merged[id]
		if !ok {
			merged[id] = candidate
			return
		}
		if sourcePriority[candidate.Source] > sourcePriority[existing.Source] {
			merged[id] = candidate
		}
	}

	for _, text := range userCriteria {
		add(text, SourceUser)
	}
	for _, text := range planCriteria {
		add(text, SourcePlan)
	}

	if len(merged) == 0 {
		for _, inferred := range m.inferMinimumCriteria(taskDescription) {
			add(inferred.text, SourceInferred)
			id := stableCriterionID(normalizeText(inferred.text))
			if _, ok := merged[id]; ok {
				merged[id] = Criterion{
					ID:                 id,
					Text:               trimmed(inferred.text),
					Source:             SourceInferred,
					VerificationMethod: inferred.method,
				}
			}
		}
	}

	criteria := make([]Criterion, 0, len(merged))
	for _, c := range merged {
		criteria = append(criteria, c)
	}
	sort.Slice(criteria, func(i, j int) bool {
		pi, pj := sourcePriority[criteria[i].Source], sourcePriority[criteria[j].Source]
		if pi != pj {
			return pi > pj
		}
		return normalizeText(criteria[i].Text) < normalizeText(criteria[j].Text)
	})

	conflicts := detectConflicts(criteria)
	unverifiable := make([]string, 0)
	for _, c := range criteria {
		if isUnverifiable(c) {
			unverifiable = append(unverifiable, c.ID)
		}
	}
	questions := buildUserQuestions(criteria, conflicts, unverifiable, maxUserQuestions)

	return Snapshot{
		Criteria:                criteria,
		CriteriaHash:            hashCanonical(criteria),
		Conflicts:               conflicts,
		UnverifiableCriteriaIDs: unverifiable,
		UserQuestions:           questions,
	}
}

type inferredCriterion struct {
	text   string
	method VerificationMethod
}

// inferMinimumCriteria always includes a verifiable baseline success
// criterion, plus a manual one if the task description reads subjective
// and unquantified (§4.4 step 4).
func (m *Manager) inferMinimumCriteria(taskDescription string) []inferredCriterion {
	inferred := []inferredCriterion{
		{text: BaselineSuccessCriterionText, method: MethodRunEvent},
	}
	desc := trimmed(taskDescription)
	if desc != "" && isSubjectiveAndUnquantified(desc) {
		inferred = append(inferred, inferredCriterion{
			text:   fmt.Sprintf("满足目标：%s", desc),
			method: MethodManual,
		})
	}
	return inferred
}

func (m *Manager) inferVerificationMethod(text string, source Source) VerificationMethod {
	normalized := normalizeText(text)
	if source == SourceInferred && normalized == normalizeText(BaselineSuccessCriterionText) {
		return MethodRunEvent
	}
	if isSubjectiveAndUnquantified(normalized) {
		return MethodManual
	}
	return MethodUnknown
}

// isUnverifiable treats MANUAL criteria, and subjective-looking UNKNOWN
// criteria, as requiring user confirmation (§4.4 verification-method
// inference).
func isUnverifiable(c Criterion) bool {
	if c.VerificationMethod == MethodManual {
		return true
	}
	if c.VerificationMethod == MethodUnknown && isSubjectiveAndUnquantified(c.Text) {
		return true
	}
	return false
}

// detectConflicts finds criteria sharing a normalized core with opposite
// negation polarity (§4.4 step 6).
func detectConflicts(criteria []Criterion) []Conflict {
	type indexed struct {
		criterion Criterion
		negated   bool
	}
	seen := map[string]indexed{}
	conflicts := make([]Conflict, 0)

	for _, c := range criteria {
		core := coreText(c.Text)
		if core == "" {
			continue
		}
		neg := isNegated(c.Text)
		existing, ok := seen[core]
		if !ok {
			seen[core] = indexed{criterion: c, negated: neg}
			continue
		}
		if neg != existing.negated {
			left, right := existing.criterion, c
			if c.ID < existing.criterion.ID {
				left, right = c, existing.criterion
			}
			conflicts = append(conflicts, Conflict{
				LeftID:  left.ID,
				RightID: right.ID,
				Reason:  "conflict_on_core:" + core,
			})
		}
	}
	return conflicts
}

// buildUserQuestions composes up to limit clarification prompts: conflicts
// first, then quantification requests for unverifiable criteria (§4.4
// step 8).
func buildUserQuestions(criteria []Criterion, conflicts []Conflict, unverifiableIDs []string, limit int) []string {
	textByID := make(map[string]string, len(criteria))
	for _, c := range criteria {
		textByID[c.ID] = c.Text
	}

	questions := make([]string, 0, limit)
	for _, conflict := range conflicts {
		if len(questions) >= limit {
			return questions
		}
		left := textOrID(textByID, conflict.LeftID)
		right := textOrID(textByID, conflict.RightID)
		questions = append(questions, fmt.Sprintf("以下标准存在冲突，请确认保留哪一条：A) %s  B) %s", left, right))
	}
	for _, id := range unverifiableIDs {
		if len(questions) >= limit {
			return questions
		}
		text := textOrID(textByID, id)
		questions = append(questions, fmt.Sprintf("请将该标准量化/可验证：%s（例如给出阈值/示例输出/对比基准；可一行回答）", text))
	}
	return questions
}

func textOrID(byID map[string]string, id string) string {
	if text, ok := byID[id]; ok {
		return text
	}
	return id
}

func stableCriterionID(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "crit_" + hex.EncodeToString(sum[:])[:12]
}

// hashCanonical computes criteria_hash = sha256 over canonical JSON of the
// sorted criteria (§4.4 step 7). Go's encoding/json sorts object keys
// alphabetically when marshaling a map, matching the Python original's
// json.dumps(..., sort_keys=True).
func hashCanonical(criteria []Criterion) string {
	canonical := make([]map[string]any, 0, len(criteria))
	for _, c := range criteria {
		canonical = append(canonical, c.canonicalDict())
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(canonical)

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
