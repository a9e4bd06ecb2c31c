package grading

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// contraction pairs a contracted form with its canonical expansion. bare is the apostrophe-less
// misspelling learners type; it is empty when the bare form is itself a real word ("were", "its", "ill").
type contraction struct {
	short string
	long  string
	bare  string
}

var contractions = []contraction{
	{"i'm", "i am", "im"},
	{"you're", "you are", "youre"},
	{"we're", "we are", ""},
	{"they're", "they are", "theyre"},
	{"he's", "he is", "hes"},
	{"she's", "she is", "shes"},
	{"it's", "it is", ""},
	{"that's", "that is", "thats"},
	{"what's", "what is", "whats"},
	{"there's", "there is", "theres"},
	{"where's", "where is", "wheres"},
	{"who's", "who is", "whos"},
	{"isn't", "is not", "isnt"},
	{"aren't", "are not", "arent"},
	{"wasn't", "was not", "wasnt"},
	{"weren't", "were not", "werent"},
	{"don't", "do not", "dont"},
	{"doesn't", "does not", "doesnt"},
	{"didn't", "did not", "didnt"},
	{"haven't", "have not", "havent"},
	{"hasn't", "has not", "hasnt"},
	{"hadn't", "had not", "hadnt"},
	{"won't", "will not", ""},
	{"wouldn't", "would not", "wouldnt"},
	{"can't", "cannot", "cant"},
	{"couldn't", "could not", "couldnt"},
	{"shouldn't", "should not", "shouldnt"},
	{"mustn't", "must not", "mustnt"},
	{"i've", "i have", "ive"},
	{"you've", "you have", "youve"},
	{"we've", "we have", "weve"},
	{"they've", "they have", "theyve"},
	{"i'll", "i will", ""},
	{"you'll", "you will", "youll"},
	{"he'll", "he will", ""},
	{"she'll", "she will", ""},
	{"we'll", "we will", ""},
	{"they'll", "they will", "theyll"},
	{"it'll", "it will", "itll"},
	{"i'd", "i would", ""},
	{"you'd", "you would", "youd"},
	{"he'd", "he would", ""},
	{"she'd", "she would", ""},
	{"we'd", "we would", ""},
	{"they'd", "they would", "theyd"},
	{"let's", "let us", ""},
}

var (
	contractionByShort = make(map[string]contraction, len(contractions))
	contractionPattern *regexp.Regexp
)

func init() {
	alts := make([]string, 0, len(contractions))
	for _, c := range contractions {
		contractionByShort[c.short] = c
		alts = append(alts, regexp.QuoteMeta(c.short))
	}
	// Longest first so "you're" is never shadowed by a shorter alternative.
	sort.Slice(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	contractionPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Contractions returns the supported (contracted, expanded) pairs.
func Contractions() [][2]string {
	out := make([][2]string, 0, len(contractions))
	for _, c := range contractions {
		out = append(out, [2]string{c.short, c.long})
	}
	return out
}

// expandContractions rewrites every known contraction in lowercase text to its expansion.
func expandContractions(s string) string {
	return contractionPattern.ReplaceAllStringFunc(s, func(m string) string {
		if c, ok := contractionByShort[strings.ToLower(m)]; ok {
			return c.long
		}
		return m
	})
}

// checkContractions verifies that every contraction written in expected is answered either with the
// same contraction or with its expansion. The pronoun "I" must stay capitalized when expected writes it
// so. It returns false only for a targeted mistake: a miscapitalized "I" form or an apostrophe-less
// spelling. Answers that contain neither form fall through to word coverage.
func checkContractions(expected, answer string) bool {
	exp := unifyApostrophes(expected)
	raw := rawTokens(answer)
	lower := make([]string, len(raw))
	for i, t := range raw {
		lower[i] = strings.ToLower(t)
	}

	for _, form := range contractionPattern.FindAllString(exp, -1) {
		c, ok := contractionByShort[strings.ToLower(form)]
		if !ok {
			continue
		}
		short := strings.Fields(c.short)
		long := strings.Fields(c.long)
		foundShort := containsSeq(lower, short)
		foundLong := containsSeq(lower, long)

		if strings.HasPrefix(form, "I'") {
			if containsCapitalized(raw, short) || containsCapitalized(raw, long) {
				continue
			}
			if foundShort || foundLong {
				return false
			}
		} else if foundShort || foundLong {
			continue
		}

		if c.bare != "" && containsSeq(lower, []string{c.bare}) {
			return false
		}
	}
	return true
}

// containsCapitalized reports whether seq occurs in tokens ignoring case, with the first matched
// token starting with an upper-case letter.
func containsCapitalized(tokens, seq []string) bool {
	if len(seq) == 0 {
		return false
	}
	for i := 0; i+len(seq) <= len(tokens); i++ {
		if tokens[i] == "" || !unicode.IsUpper([]rune(tokens[i])[0]) {
			continue
		}
		match := true
		for j := range seq {
			if !strings.EqualFold(tokens[i+j], seq[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
