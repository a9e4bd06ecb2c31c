package lesson

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/grading"
)

func sampleScript() domain.LessonScript {
	return domain.LessonScript{
		ID:    "day1-lesson1",
		Title: "To be",
		Vocabulary: []domain.VocabularyCard{
			{Words: []domain.VocabularyWord{{Word: "doctor", Translation: "врач"}}},
		},
		Grammar: []domain.GrammarSection{{
			Title:       "Verb to be",
			Explanation: "I am, you are, he is.",
			Drills: []domain.GrammarDrill{
				{Question: "Я врач", Expected: domain.NewAnswer("I am a doctor.")},
				{Question: "Ты врач", Expected: domain.NewAnswer("You are a doctor.")},
			},
		}},
		Constructor: []domain.ConstructorTask{
			{Instruction: "Order the words", Words: []string{"am", "I", "Tom"}, Expected: domain.NewAnswer("I am Tom")},
		},
		FindTheMistake: []domain.FindTheMistakeTask{
			{Options: []string{"I is Tom.", "I am Tom."}, Answer: "A", Explanation: "I goes with am."},
		},
		Situations: []domain.Situation{
			{Title: "Cafe", Turns: []domain.SituationTurn{{AIText: "Hi! What would you like?"}, {AIText: "Anything else?"}}},
			{Title: "Airport", Turns: []domain.SituationTurn{{AIText: "Passport, please."}}},
		},
	}
}

func step(t domain.StepType, index, sub int) domain.StepPointer {
	return domain.StepPointer{Type: t, Index: index, SubIndex: sub}
}

func correct() Outcome { return Outcome{Kind: OutcomeAnswer, IsCorrect: true} }

func TestStartOpensFirstNonEmptySection(t *testing.T) {
	script := sampleScript()
	script.Vocabulary = nil

	tr := Start(script, "en")
	assert.Equal(t, step(domain.StepGrammar, 0, 0), tr.Next)
	require.Len(t, tr.Messages, 3)
	assert.Contains(t, tr.Messages[0].Text, "To be")
	assert.Equal(t, domain.KindPrompt, tr.Messages[2].Kind)
	assert.Contains(t, tr.Messages[2].Text, "Verb to be")
	assert.Equal(t, tr.Next, *tr.Messages[2].CurrentStepSnapshot)
}

func TestStartEmptyScriptCompletes(t *testing.T) {
	tr := Start(domain.LessonScript{ID: "empty"}, "ru")
	assert.True(t, tr.Completed())
	assert.True(t, IsCompletionMessage(tr.Messages[len(tr.Messages)-1]))
}

func TestSituationTurnsAdvanceToNextScenario(t *testing.T) {
	script := sampleScript()

	tr, err := Next(Input{Script: script, Step: step(domain.StepSituations, 0, 0), Outcome: correct()})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepSituations, 0, 1), tr.Next)
	assert.Equal(t, "Anything else?", tr.Messages[len(tr.Messages)-1].Text)

	tr, err = Next(Input{Script: script, Step: tr.Next, Outcome: correct()})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepSituations, 1, 0), tr.Next)
	last := tr.Messages[len(tr.Messages)-1]
	assert.True(t, last.AwaitingContinue)
	assert.NotContains(t, last.Text, "Passport")

	tr, err = Next(Input{Script: script, Step: tr.Next, AwaitingContinue: true, Outcome: Outcome{Kind: OutcomeContinue}})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepSituations, 1, 0), tr.Next)
	require.Len(t, tr.Messages, 1)
	assert.Contains(t, tr.Messages[0].Text, "Passport, please.")
	assert.Contains(t, tr.Messages[0].Text, "Airport")
}

func TestAwaitingContinueRejectsAnswers(t *testing.T) {
	_, err := Next(Input{Script: sampleScript(), Step: step(domain.StepSituations, 1, 0), AwaitingContinue: true, Outcome: correct()})
	assert.True(t, errors.Is(err, domain.ErrInvalidSubmission))
}

func TestLastScenarioCompletesLesson(t *testing.T) {
	tr, err := Next(Input{Script: sampleScript(), Step: step(domain.StepSituations, 1, 0), Outcome: correct()})
	require.NoError(t, err)
	assert.True(t, tr.Completed())
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, domain.KindAck, tr.Messages[0].Kind)
	assert.True(t, IsCompletionMessage(tr.Messages[1]))
}

func TestIncorrectAnswerKeepsPointer(t *testing.T) {
	for _, p := range []domain.StepPointer{
		step(domain.StepGrammar, 0, 0),
		step(domain.StepConstructor, 0, 0),
		step(domain.StepSituations, 0, 1),
	} {
		tr, err := Next(Input{Script: sampleScript(), Step: p, Outcome: Outcome{Kind: OutcomeAnswer, Feedback: "Correct answer: x"}})
		require.NoError(t, err)
		assert.Equal(t, p, tr.Next)
		assert.False(t, tr.Advanced)
		require.Len(t, tr.Messages, 1)
		assert.Equal(t, domain.KindFeedback, tr.Messages[0].Kind)
		assert.Equal(t, "Correct answer: x", tr.Messages[0].Text)
		assert.Equal(t, p, *tr.Messages[0].CurrentStepSnapshot)
	}
}

func TestGrammarPartialAcknowledgesOnly(t *testing.T) {
	p := step(domain.StepGrammar, 0, 0)
	tr, err := Next(Input{Script: sampleScript(), Step: p, Outcome: Outcome{Kind: OutcomeAnswer, IsCorrect: true, Partial: true}})
	require.NoError(t, err)
	assert.Equal(t, p, tr.Next)
	require.Len(t, tr.Messages, 1)
	assert.Equal(t, domain.KindAck, tr.Messages[0].Kind)

	tr, err = Next(Input{Script: sampleScript(), Step: p, Outcome: correct(), Lang: "en"})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepConstructor, 0, 0), tr.Next)
	kinds := []domain.MessageKind{}
	for _, m := range tr.Messages {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []domain.MessageKind{domain.KindAck, domain.KindTransition, domain.KindPrompt}, kinds)
	assert.Equal(t, p, *tr.Messages[0].CurrentStepSnapshot)
	assert.Equal(t, tr.Next, *tr.Messages[2].CurrentStepSnapshot)
}

func TestFindTheMistakeChoice(t *testing.T) {
	p := step(domain.StepFindTheMistake, 0, 0)

	tr, err := Next(Input{Script: sampleScript(), Step: p, Outcome: Outcome{Kind: OutcomeChoice, Choice: "b"}})
	require.NoError(t, err)
	assert.Equal(t, p, tr.Next)

	tr, err = Next(Input{Script: sampleScript(), Step: p, Outcome: Outcome{Kind: OutcomeChoice, Choice: "a"}})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepSituations, 0, 0), tr.Next)
	assert.Contains(t, tr.Messages[0].Text, "I goes with am.")
}

func TestVocabularyContinueAndSkip(t *testing.T) {
	p := step(domain.StepVocabulary, 0, 0)

	tr, err := Next(Input{Script: sampleScript(), Step: p, Outcome: Outcome{Kind: OutcomeContinue}})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepGrammar, 0, 0), tr.Next)

	_, err = Next(Input{Script: sampleScript(), Step: p, Outcome: correct()})
	assert.True(t, errors.Is(err, domain.ErrInvalidSubmission))
}

func TestSkipAdvancesWithoutAck(t *testing.T) {
	tr, err := Next(Input{Script: sampleScript(), Step: step(domain.StepConstructor, 0, 0), Outcome: Outcome{Kind: OutcomeSkip}})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepFindTheMistake, 0, 0), tr.Next)
	for _, m := range tr.Messages {
		assert.NotEqual(t, domain.KindAck, m.Kind)
	}

	tr, err = Next(Input{Script: sampleScript(), Step: step(domain.StepSituations, 0, 1), Outcome: Outcome{Kind: OutcomeSkip}})
	require.NoError(t, err)
	assert.Equal(t, step(domain.StepSituations, 1, 0), tr.Next)
	assert.False(t, tr.Messages[len(tr.Messages)-1].AwaitingContinue)
}

func TestUnknownStepIsRejected(t *testing.T) {
	_, err := Next(Input{Script: sampleScript(), Step: step(domain.StepConstructor, 5, 0), Outcome: correct()})
	assert.True(t, errors.Is(err, domain.ErrStepNotFound))

	_, err = Next(Input{Script: sampleScript(), Step: domain.CompletionStep(), Outcome: correct()})
	assert.True(t, errors.Is(err, domain.ErrInvalidSubmission))
}

func TestFindTheMistakePromptFormat(t *testing.T) {
	msg := Prompt(sampleScript(), step(domain.StepFindTheMistake, 0, 0), "en")
	assert.True(t, strings.Contains(msg.Text, "\nA) I is Tom.\nB) I am Tom."))
}

func TestFeedbackFor(t *testing.T) {
	res := grading.Validate("I am Bob", domain.NewAnswer("I am Tom."), domain.RequiredWords{})
	assert.Equal(t, "Correct answer: I am Tom.", FeedbackFor("en", res))
	assert.Equal(t, "Правильный ответ: I am Tom.", FeedbackFor("ru", res))
	assert.Equal(t, "Правильный ответ: I am Tom.", FeedbackFor("de", res))

	res = grading.Validate("Я Боб", domain.NewAnswer("I am Tom."), domain.RequiredWords{})
	assert.Equal(t, CatalogFor("en").WrongLanguage, FeedbackFor("en", res))
}

func TestCompletionDetectorFiresOnce(t *testing.T) {
	var d CompletionDetector
	done := []domain.ChatMessage{completionMessage(CatalogFor("en"))}

	assert.False(t, d.Observe([]domain.ChatMessage{{Role: domain.RoleModel, Text: "hello"}}))
	assert.True(t, d.Observe(done))
	assert.False(t, d.Observe(done))
	assert.True(t, d.Fired())
	assert.False(t, IsCompletionMessage(domain.ChatMessage{Role: domain.RoleUser, Text: CompletionSentinel}))
}

func TestPacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, NoPacing{}.Wait(ctx, 3))
	assert.IsType(t, NoPacing{}, PacerFor(0))

	p := FixedPacing{Delay: time.Hour}
	assert.NoError(t, p.Wait(ctx, 0))
	cancel()
	assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)
}
