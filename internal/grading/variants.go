package grading

import "dialogue-lesson-service/internal/domain"

// Variants tokenizes every acceptable phrasing of expected and pairs it with its required phrases.
func Variants(expected domain.Answer, required domain.RequiredWords) []Variant {
	out := make([]Variant, 0, len(expected.Variants))
	for i, text := range expected.Variants {
		out = append(out, NewVariant(text, required.ForVariant(i, len(expected.Variants))))
	}
	return out
}

// Validate grades answer against every variant and returns the best result. A fully correct variant
// wins, preferring the one with the fewest extra words; otherwise the variant with the fewest error
// signals is returned, ties broken by fewest extra words and then by declaration order.
func Validate(answer string, expected domain.Answer, required domain.RequiredWords) Result {
	variants := Variants(expected, required)
	if len(variants) == 0 {
		return ValidateVariant(answer, Variant{})
	}

	results := make([]Result, len(variants))
	for i, v := range variants {
		results[i] = ValidateVariant(answer, v)
	}
	return best(results)
}

// ValidateDrill grades answer against a grammar drill.
func ValidateDrill(answer string, drill domain.GrammarDrill) Result {
	return Validate(answer, drill.Expected, drill.RequiredWords)
}

func best(results []Result) Result {
	bestCorrect := -1
	for i, r := range results {
		if r.IsCorrect && (bestCorrect < 0 || len(r.ExtraWords) < len(results[bestCorrect].ExtraWords)) {
			bestCorrect = i
		}
	}
	if bestCorrect >= 0 {
		return results[bestCorrect]
	}

	pick := 0
	for i := 1; i < len(results); i++ {
		a, b := results[i], results[pick]
		if a.errorSignals() < b.errorSignals() ||
			(a.errorSignals() == b.errorSignals() && len(a.ExtraWords) < len(b.ExtraWords)) {
			pick = i
		}
	}
	return results[pick]
}
