package criteria

import (
	"regexp"
	"strings"
)

// Bilingual (Chinese/English) token lexicons used by core text normalization
// for conflict detection and subjectivity heuristics. Ported unchanged in
// meaning from the Python original's CriteriaManager module constants.
var (
	negationTokens = []string{
		"不", "禁止", "不得", "不能", "无需", "不要",
		"no", "not", "never", "deny",
	}

	stopwordTokens = []string{
		"必须", "需要", "应当", "应该", "请", "确保", "允许", "可以", "尽量", "务必",
		"must", "should", "shall", "may", "please", "ensure",
	}

	subjectiveHints = []string{
		"更好", "更快", "更漂亮", "更美观", "好看", "优雅", "易用", "友好", "更稳定", "更安全",
		"better", "faster", "prettier", "beautiful", "secure",
	}
)

var (
	reSpaces    = regexp.MustCompile(`\s+`)
	rePunct     = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	reHasNumber = regexp.MustCompile(`\d`)
	reASCIIWord = regexp.MustCompile(`^[a-z]+$`)
)

// tokenPattern matches tok as a whole word when it is an ASCII word (so "no"
// does not match inside "not" or "node"), and anywhere for CJK tokens.
func tokenPattern(tok string) *regexp.Regexp {
	q := regexp.QuoteMeta(tok)
	if reASCIIWord.MatchString(tok) {
		q = `\b` + q + `\b`
	}
	return regexp.MustCompile(q)
}

// normalizeText lowercases and collapses whitespace (§4.4 step 1).
func normalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	return reSpaces.ReplaceAllString(t, " ")
}

// isNegated reports whether normalized text contains a negation token.
func isNegated(text string) bool {
	t := normalizeText(text)
	for _, tok := range negationTokens {
		if tokenPattern(tok).MatchString(t) {
			return true
		}
	}
	return false
}

// coreText strips negation and stopword tokens, then punctuation, to
// produce the "core" used for conflict detection (§4.4 step 6).
func coreText(text string) string {
	t := normalizeText(text)
	for _, tok := range negationTokens {
		t = tokenPattern(tok).ReplaceAllString(t, " ")
	}
	for _, tok := range stopwordTokens {
		t = tokenPattern(tok).ReplaceAllString(t, " ")
	}
	t = rePunct.ReplaceAllString(t, " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(t, " "))
}

// isSubjectiveAndUnquantified reports whether text reads as a subjective
// quality claim ("prettier", "更漂亮") with no numeric anchor.
func isSubjectiveAndUnquantified(text string) bool {
	t := normalizeText(text)
	if reHasNumber.MatchString(t) {
		return false
	}
	for _, hint := range subjectiveHints {
		if strings.Contains(t, hint) {
			return true
		}
	}
	return false
}
