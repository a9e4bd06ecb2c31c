package grading

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Variant is one acceptable phrasing of an expected answer, tokenized once.
type Variant struct {
	Text     string
	Tokens   []string
	Required [][]string
}

// NewVariant tokenizes text and its required phrases.
func NewVariant(text string, required []string) Variant {
	v := Variant{Text: strings.TrimSpace(text), Tokens: Tokens(text)}
	for _, phrase := range required {
		if tokens := Tokens(phrase); len(tokens) > 0 {
			v.Required = append(v.Required, tokens)
		}
	}
	return v
}

var pluralExceptions = map[string]bool{"is": true, "has": true, "was": true, "this": true, "his": true}

// ValidateVariant grades answer against a single variant. Rules run in a fixed order and the
// first short-circuiting rule wins; word-level diagnostics are collected together.
func ValidateVariant(answer string, v Variant) Result {
	res := Result{CorrectAnswer: v.Text}

	answerTokens := Tokens(answer)
	if strings.TrimSpace(answer) == "" || len(answerTokens) == 0 {
		return fail(res, ReasonEmpty)
	}
	if len(v.Tokens) == 0 {
		res.NeedsAI = true
		res.Reason = ReasonUndecided
		res.Feedback = feedbackUndecided
		return res
	}

	if languagesDiffer(DetectLanguage(v.Text), DetectLanguage(answer)) {
		res.WrongLanguage = true
		return fail(res, ReasonWrongLanguage)
	}
	if endsWithQuestion(v.Text) != endsWithQuestion(answer) {
		return fail(res, ReasonQuestionMark)
	}
	if matchPlaceholders(v.Tokens, answerTokens) {
		res.IsCorrect = true
		return res
	}
	if !checkContractions(v.Text, answer) {
		return fail(res, ReasonContraction)
	}

	for _, phrase := range v.Required {
		if len(phrase) > 1 && !containsSeq(answerTokens, phrase) {
			res.MissingWords = []string{strings.Join(phrase, " ")}
			return fail(res, ReasonRequiredPhrase)
		}
	}
	if len(v.Required) > 1 && requiredOutOfOrder(answerTokens, v.Required) {
		res.OrderError = true
		return fail(res, ReasonWordOrder)
	}

	checkNumbers(&res, ExtractNumbers(v.Text), ExtractNumbers(answer))
	matchWords(&res, v, answerTokens)

	if res.errorSignals() == 0 {
		res.IsCorrect = true
		res.Reason = ReasonNone
		res.Feedback = ""
		return res
	}
	return fail(res, ReasonMismatch)
}

// matchPlaceholders reports whether a placeholder-bearing expected sequence matches positionally.
func matchPlaceholders(expected, answer []string) bool {
	has := false
	for _, t := range expected {
		if isPlaceholder(t) {
			has = true
			break
		}
	}
	if !has || len(expected) != len(answer) {
		return false
	}
	for i, t := range expected {
		if !isPlaceholder(t) && t != answer[i] {
			return false
		}
	}
	return true
}

// requiredOutOfOrder walks the required phrases in declared order. A phrase that exists in the
// answer only before the previous phrase's position is out of order. Absent phrases are skipped.
func requiredOutOfOrder(answer []string, required [][]string) bool {
	cursor := 0
	for _, phrase := range required {
		if at := indexSeq(answer, phrase, cursor); at >= 0 {
			cursor = at + len(phrase)
			continue
		}
		if indexSeq(answer, phrase, 0) >= 0 {
			return true
		}
	}
	return false
}

func checkNumbers(res *Result, expected, answer []string) {
	remaining := append([]string(nil), answer...)
	var unmatched []string
	for _, n := range expected {
		if i := indexOf(remaining, n); i >= 0 {
			remaining = append(remaining[:i], remaining[i+1:]...)
			continue
		}
		unmatched = append(unmatched, n)
	}
	for _, n := range unmatched {
		if len(remaining) > 0 {
			found := remaining[0]
			remaining = remaining[1:]
			if res.NumberMismatch == nil {
				res.NumberMismatch = &NumberMismatch{Expected: n, Found: found}
			} else {
				res.IncorrectWords = append(res.IncorrectWords, WordMismatch{Expected: n, Found: found})
			}
			continue
		}
		res.IncorrectWords = append(res.IncorrectWords, WordMismatch{Expected: n})
	}
}

type fuzzyPair struct {
	expected string
	found    string
}

// matchWords covers the expected tokens with answer tokens and fills the word-level diagnostics:
// missing, plural and split-word mismatches, duplicates and extras.
func matchWords(res *Result, v Variant, answerTokens []string) {
	mandatory := make(map[string]bool)
	for _, phrase := range v.Required {
		for _, t := range phrase {
			mandatory[t] = true
		}
	}

	var expected []string
	placeholders := 0
	for _, t := range v.Tokens {
		switch {
		case isPlaceholder(t):
			placeholders++
		case isNumber(t):
		default:
			expected = append(expected, t)
		}
	}
	var pool []string
	for _, t := range answerTokens {
		if !isNumber(t) {
			pool = append(pool, t)
		}
	}
	used := make([]bool, len(pool))
	matched := make([]bool, len(expected))

	for i, t := range expected {
		for j, a := range pool {
			if !used[j] && a == t {
				used[j], matched[i] = true, true
				break
			}
		}
	}

	var fuzzy []fuzzyPair
	for i, t := range expected {
		if matched[i] || mandatory[t] {
			continue
		}
		limit := tolerance(t)
		for j, a := range pool {
			if !used[j] && levenshtein.ComputeDistance(t, a) <= limit {
				used[j], matched[i] = true, true
				fuzzy = append(fuzzy, fuzzyPair{expected: t, found: a})
				break
			}
		}
	}

	for _, p := range fuzzy {
		if pluralMismatch(p.expected, p.found) {
			res.IncorrectWords = append(res.IncorrectWords, WordMismatch{Expected: p.expected, Found: p.found})
		}
	}

	var missing []string
	for i, t := range expected {
		if matched[i] {
			continue
		}
		if j := findUnused(pool, used, func(a string) bool { return pluralMismatch(t, a) }); j >= 0 {
			used[j] = true
			res.IncorrectWords = append(res.IncorrectWords, WordMismatch{Expected: t, Found: pool[j]})
			continue
		}
		if j := findSplit(pool, used, t); j >= 0 {
			used[j], used[j+1] = true, true
			res.IncorrectWords = append(res.IncorrectWords, WordMismatch{Expected: t, Found: pool[j] + " " + pool[j+1]})
			continue
		}
		missing = append(missing, t)
	}
	res.MissingWords = append(res.MissingWords, missing...)

	for j := range pool {
		if placeholders == 0 {
			break
		}
		if !used[j] {
			used[j] = true
			placeholders--
		}
	}

	res.DuplicateWords = duplicates(pool, expected)
	for j, a := range pool {
		if !used[j] {
			res.ExtraWords = append(res.ExtraWords, a)
		}
	}
}

// tolerance is the edit distance allowed for an optional token: min(max(1, len/3), 2).
func tolerance(token string) int {
	n := utf8.RuneCountInString(token) / 3
	if n < 1 {
		n = 1
	}
	if n > 2 {
		n = 2
	}
	return n
}

// pluralMismatch reports whether a and b are the same word in different number, e.g. apple/apples.
func pluralMismatch(a, b string) bool {
	if a == b || pluralExceptions[a] || pluralExceptions[b] {
		return false
	}
	return a == b+"s" || a == b+"es" || b == a+"s" || b == a+"es"
}

func findUnused(pool []string, used []bool, match func(string) bool) int {
	for j, a := range pool {
		if !used[j] && match(a) {
			return j
		}
	}
	return -1
}

// findSplit finds two adjacent unused tokens that concatenate to word.
func findSplit(pool []string, used []bool, word string) int {
	for j := 0; j+1 < len(pool); j++ {
		if !used[j] && !used[j+1] && pool[j]+pool[j+1] == word {
			return j
		}
	}
	return -1
}

// duplicates lists answer tokens repeated more often than the expected sentence allows.
func duplicates(pool, expected []string) []string {
	want := make(map[string]int, len(expected))
	for _, t := range expected {
		want[t]++
	}
	got := make(map[string]int, len(pool))
	var order []string
	for _, t := range pool {
		if got[t] == 0 {
			order = append(order, t)
		}
		got[t]++
	}
	var out []string
	for _, t := range order {
		if got[t] > 1 && got[t] > want[t] {
			out = append(out, t)
		}
	}
	return out
}

func indexOf(items []string, s string) int {
	for i, it := range items {
		if it == s {
			return i
		}
	}
	return -1
}
