package lesson

import (
	"fmt"
	"strings"

	"dialogue-lesson-service/internal/grading"
)

// CompletionSentinel marks the message that closes a lesson. Completion is derived from its presence
// in the message log.
const CompletionSentinel = "<lesson_complete>"

// Catalog holds the learner-facing texts for one interface language.
type Catalog struct {
	Lang           string
	Greeting       string
	Correct        string
	TryAgain       string
	Retry          string
	ShowAnswer     string
	WrongLanguage  string
	QuestionMark   string
	Contraction    string
	Vocabulary     string
	Constructor    string
	FindTheMistake string
	Situations     string
	NextScenario   string
	Completion     string
	Sections       map[string]string
}

var catalogs = map[string]Catalog{
	"ru": {
		Lang:           "ru",
		Greeting:       "Привет! Начинаем урок %q.",
		Correct:        "Верно!",
		TryAgain:       "Не совсем. Попробуй ещё раз.",
		Retry:          "Не получилось проверить ответ. Попробуй отправить его ещё раз.",
		ShowAnswer:     "Правильный ответ: %s",
		WrongLanguage:  "Ответь, пожалуйста, по-английски.",
		QuestionMark:   "Обрати внимание на знак вопроса.",
		Contraction:    "Проверь написание сокращения.",
		Vocabulary:     "Новые слова:",
		Constructor:    "Составь предложение из слов:",
		FindTheMistake: "В каком предложении ошибка?",
		Situations:     "Ситуация:",
		NextScenario:   "Отлично! Нажми «Продолжить», чтобы перейти к следующей ситуации.",
		Completion:     "Урок пройден! Отличная работа.",
		Sections: map[string]string{
			"vocabulary":       "Разминка со словами.",
			"grammar":          "Переходим к грамматике.",
			"constructor":      "Теперь собери предложения.",
			"find_the_mistake": "Найди ошибку.",
			"situations":       "Попробуем живой диалог.",
		},
	},
	"en": {
		Lang:           "en",
		Greeting:       "Hi! Let's start the lesson %q.",
		Correct:        "Correct!",
		TryAgain:       "Not quite. Try again.",
		Retry:          "We could not check your answer. Please send it again.",
		ShowAnswer:     "Correct answer: %s",
		WrongLanguage:  "Please answer in English.",
		QuestionMark:   "Watch the question mark.",
		Contraction:    "Check how the contraction is spelled.",
		Vocabulary:     "New words:",
		Constructor:    "Build a sentence from the words:",
		FindTheMistake: "Which sentence has a mistake?",
		Situations:     "Situation:",
		NextScenario:   "Well done! Press Continue for the next situation.",
		Completion:     "Lesson complete! Great job.",
		Sections: map[string]string{
			"vocabulary":       "Warm up with new words.",
			"grammar":          "On to grammar.",
			"constructor":      "Now build some sentences.",
			"find_the_mistake": "Find the mistake.",
			"situations":       "Let's try a real conversation.",
		},
	},
}

// DefaultLang is used when the requested interface language has no catalog.
const DefaultLang = "ru"

// CatalogFor returns the catalog for lang, falling back to DefaultLang.
func CatalogFor(lang string) Catalog {
	if c, ok := catalogs[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return c
	}
	return catalogs[DefaultLang]
}

// FeedbackFor turns a local grading result into the learner-facing text.
// Lexical mistakes always show the correct answer rather than itemized diagnostics.
func FeedbackFor(lang string, res grading.Result) string {
	c := CatalogFor(lang)
	if res.IsCorrect {
		return c.Correct
	}
	switch res.Reason {
	case grading.ReasonWrongLanguage:
		return c.WrongLanguage
	case grading.ReasonQuestionMark:
		return joinLines(c.QuestionMark, showAnswer(c, res.CorrectAnswer))
	case grading.ReasonContraction:
		return joinLines(c.Contraction, showAnswer(c, res.CorrectAnswer))
	case grading.ReasonEmpty, grading.ReasonUndecided:
		return c.TryAgain
	}
	if res.CorrectAnswer == "" {
		return c.TryAgain
	}
	return showAnswer(c, res.CorrectAnswer)
}

func showAnswer(c Catalog, answer string) string {
	if answer == "" {
		return ""
	}
	return fmt.Sprintf(c.ShowAnswer, answer)
}

func joinLines(lines ...string) string {
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
