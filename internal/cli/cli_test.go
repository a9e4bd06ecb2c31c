package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dialogue-lesson-service/internal/config"
	"dialogue-lesson-service/internal/grading"
	"dialogue-lesson-service/internal/infra/memory"
)

func runCheck(t *testing.T, args ...string) grading.Result {
	t.Helper()
	cmd := NewCheckCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	var result grading.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result
}

func TestCheckCommandGradesPlainText(t *testing.T) {
	result := runCheck(t, "--expected", "I am a student", "--answer", "I'm a student")
	assert.True(t, result.IsCorrect)
}

func TestCheckCommandGradesVariantsWithRequiredWords(t *testing.T) {
	result := runCheck(t,
		"--expected", `["I have a cat", "I have got a cat"]`,
		"--required", `["have"]`,
		"--answer", "I have got a cat")
	assert.True(t, result.IsCorrect)

	result = runCheck(t, "--expected", "I have a cat", "--answer", "I has a dog")
	assert.False(t, result.IsCorrect)
}

func TestParseAnswerShapes(t *testing.T) {
	a, err := parseAnswer("Hello there")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello there"}, a.Variants)

	a, err = parseAnswer(`["Hi", "Hello"]`)
	require.NoError(t, err)
	assert.Len(t, a.Variants, 1, "single-word elements form one sentence")

	_, err = parseAnswer(`["unterminated"`)
	assert.Error(t, err)
}

func TestBuildDependenciesInMemory(t *testing.T) {
	cfg := config.Config{}
	cfg.Lesson.UILang = "en"

	deps, cleanup, err := buildDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.ScriptRepository{}, deps.Scripts)
	assert.IsType(t, &memory.SessionStore{}, deps.Sessions)
	assert.IsType(t, &memory.MessageStore{}, deps.Messages)
	assert.IsType(t, &memory.ProgressStore{}, deps.Progress)
	assert.Nil(t, deps.Remote)
	assert.Equal(t, "en", deps.DefaultLang)
}
