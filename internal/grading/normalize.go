package grading

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Language is the script family detected in a piece of text.
type Language string

const (
	LangNone    Language = ""
	LangRussian Language = "ru"
	LangEnglish Language = "en"
	LangMixed   Language = "mixed"
)

var (
	apostropheReplacer = strings.NewReplacer(
		"\u2019", "'", "\u2018", "'", "`", "'", "\u00b4", "'", "\u02bc", "'", "\u2032", "'",
	)
	spaceReplacer = strings.NewReplacer(
		"\u00a0", " ", "\u202f", " ", "\u2007", " ", "\t", " ", "\n", " ", "\r", " ",
	)
	punctuationReplacer = strings.NewReplacer(
		",", "", ".", "", "!", "", ";", "", ":", "", "\"", "",
	)
	canNotPattern = regexp.MustCompile(`\bcan not\b`)
	digitRun      = regexp.MustCompile(`\d+`)
)

// Normalize canonicalizes text for comparison: lowercase, unified apostrophes and spaces,
// commas, periods, "!", ";" and ":" removed, "?" kept, contractions expanded, whitespace collapsed.
func Normalize(text string) string {
	s := norm.NFC.String(text)
	s = strings.ToLower(s)
	s = apostropheReplacer.Replace(s)
	s = spaceReplacer.Replace(s)
	s = punctuationReplacer.Replace(s)
	s = expandContractions(s)
	s = canNotPattern.ReplaceAllString(s, "cannot")
	return strings.Join(strings.Fields(s), " ")
}

// Tokens returns the normalized word tokens of text with question marks dropped.
func Tokens(text string) []string {
	return strings.Fields(strings.ReplaceAll(Normalize(text), "?", " "))
}

// ExtractNumbers returns every digit run in text, in order.
func ExtractNumbers(text string) []string {
	return digitRun.FindAllString(text, -1)
}

// DetectLanguage reports whether text is written in Cyrillic, Latin, both, or neither.
func DetectLanguage(text string) Language {
	var cyr, lat bool
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr = true
		case unicode.Is(unicode.Latin, r):
			lat = true
		}
	}
	switch {
	case cyr && lat:
		return LangMixed
	case cyr:
		return LangRussian
	case lat:
		return LangEnglish
	}
	return LangNone
}

// languagesDiffer is true only when both sides are single-script and the scripts differ.
func languagesDiffer(a, b Language) bool {
	if a == LangNone || b == LangNone || a == LangMixed || b == LangMixed {
		return false
	}
	return a != b
}

func endsWithQuestion(text string) bool {
	s := strings.TrimRightFunc(spaceReplacer.Replace(text), unicode.IsSpace)
	return strings.HasSuffix(s, "?")
}

func unifyApostrophes(text string) string {
	return apostropheReplacer.Replace(norm.NFC.String(text))
}

// rawTokens splits text on whitespace keeping case, with surrounding punctuation trimmed.
func rawTokens(text string) []string {
	fields := strings.Fields(spaceReplacer.Replace(unifyApostrophes(text)))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ",.!?;:\"")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isPlaceholder(token string) bool {
	return len(token) >= 2 && strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]")
}

func isNumber(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// indexSeq returns the first index >= from where seq occurs contiguously in tokens, or -1.
func indexSeq(tokens, seq []string, from int) int {
	if len(seq) == 0 {
		return -1
	}
	for i := from; i+len(seq) <= len(tokens); i++ {
		match := true
		for j := range seq {
			if tokens[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func containsSeq(tokens, seq []string) bool {
	return indexSeq(tokens, seq, 0) >= 0
}
