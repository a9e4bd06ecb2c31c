package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"I'm  Tom.", "i am tom"},
		{"I’m Tom!", "i am tom"},
		{"Hello, world;", "hello world"},
		{"Are you OK?", "are you ok?"},
		{"I can not swim", "i cannot swim"},
		{"I can't swim", "i cannot swim"},
		{"  They're   here: now ", "they are here now"},
		{"He said \"hi\"", "he said hi"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), tc.in)
	}
}

func TestTokensDropQuestionMark(t *testing.T) {
	assert.Equal(t, []string{"are", "you", "ok"}, Tokens("Are you OK?"))
	assert.Empty(t, Tokens(" ?! "))
}

func TestExtractNumbers(t *testing.T) {
	assert.Equal(t, []string{"3", "15"}, ExtractNumbers("I have 3 apples and 15 pears"))
	assert.Empty(t, ExtractNumbers("no digits"))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangEnglish, DetectLanguage("Hello"))
	assert.Equal(t, LangRussian, DetectLanguage("Привет"))
	assert.Equal(t, LangMixed, DetectLanguage("Привет Tom"))
	assert.Equal(t, LangNone, DetectLanguage("42 ?"))

	assert.True(t, languagesDiffer(LangEnglish, LangRussian))
	assert.False(t, languagesDiffer(LangEnglish, LangMixed))
	assert.False(t, languagesDiffer(LangNone, LangRussian))
}

func TestExpandContractionsCoversTable(t *testing.T) {
	for _, pair := range Contractions() {
		assert.Equal(t, pair[1], expandContractions(pair[0]), pair[0])
	}
}
