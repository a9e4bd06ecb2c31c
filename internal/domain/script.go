package domain

import (
	"fmt"
	"strings"
)

// LessonScript is the read-only content of one lesson, organized by exercise section.
type LessonScript struct {
	ID             string               `json:"id"`
	Day            int                  `json:"day"`
	Lesson         int                  `json:"lesson"`
	Level          string               `json:"level"`
	Title          string               `json:"title,omitempty"`
	Vocabulary     []VocabularyCard     `json:"vocabulary"`
	Grammar        []GrammarSection     `json:"grammar"`
	Constructor    []ConstructorTask    `json:"constructor"`
	FindTheMistake []FindTheMistakeTask `json:"findTheMistake"`
	Situations     []Situation          `json:"situations"`
}

// VocabularyCard is one warmup card of words.
type VocabularyCard struct {
	Words []VocabularyWord `json:"words"`
}

type VocabularyWord struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Example     string `json:"example,omitempty"`
}

// GrammarSection is an explanation followed by a block of drills.
type GrammarSection struct {
	Title       string         `json:"title"`
	Explanation string         `json:"explanation"`
	Drills      []GrammarDrill `json:"drills"`
}

// GrammarDrill is a single grammar exercise with one or more acceptable answers.
type GrammarDrill struct {
	Question      string        `json:"question"`
	Task          string        `json:"task"`
	Expected      Answer        `json:"expected"`
	RequiredWords RequiredWords `json:"requiredWords,omitempty"`
}

// ConstructorTask asks the learner to order the given words into a sentence.
type ConstructorTask struct {
	Instruction   string        `json:"instruction"`
	Words         []string      `json:"words"`
	Expected      Answer        `json:"expected"`
	RequiredWords RequiredWords `json:"requiredWords,omitempty"`
	Translation   string        `json:"translation,omitempty"`
}

// FindTheMistakeTask is a binary choice between two sentences; Answer is "A" or "B".
type FindTheMistakeTask struct {
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// Situation is a multi-turn conversational scenario.
type Situation struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Turns       []SituationTurn `json:"turns"`
}

// SituationTurn is one exchange: the AI line and what the learner should reply.
// Expected is optional; without it the reply is graded remotely.
type SituationTurn struct {
	AIText        string        `json:"aiText"`
	Task          string        `json:"task,omitempty"`
	Expected      Answer        `json:"expected,omitempty"`
	RequiredWords RequiredWords `json:"requiredWords,omitempty"`
}

// SectionLen returns the number of tasks in the section for t.
func (s LessonScript) SectionLen(t StepType) int {
	switch t {
	case StepVocabulary:
		return len(s.Vocabulary)
	case StepGrammar:
		return len(s.Grammar)
	case StepConstructor:
		return len(s.Constructor)
	case StepFindTheMistake:
		return len(s.FindTheMistake)
	case StepSituations:
		return len(s.Situations)
	}
	return 0
}

// Contains reports whether p addresses an existing task in the script.
func (s LessonScript) Contains(p StepPointer) bool {
	if !p.Valid() {
		return false
	}
	if p.IsCompletion() {
		return true
	}
	if p.Index >= s.SectionLen(p.Type) {
		return false
	}
	if p.Type == StepSituations {
		return p.SubIndex < len(s.Situations[p.Index].Turns)
	}
	return p.SubIndex == 0
}

// Validate checks the structural invariants the step engine relies on.
func (s LessonScript) Validate() error {
	var errs []FieldError

	if strings.TrimSpace(s.ID) == "" {
		errs = append(errs, FieldError{Field: "id", Message: "required"})
	}
	for i, t := range s.FindTheMistake {
		if len(t.Options) != 2 {
			errs = append(errs, FieldError{Field: fmt.Sprintf("findTheMistake[%d].options", i), Message: "must have exactly 2 options"})
		}
		if a := strings.ToUpper(strings.TrimSpace(t.Answer)); a != "A" && a != "B" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("findTheMistake[%d].answer", i), Message: "must be A or B"})
		}
	}
	for i, t := range s.Constructor {
		if t.Expected.IsEmpty() {
			errs = append(errs, FieldError{Field: fmt.Sprintf("constructor[%d].expected", i), Message: "required"})
		}
	}
	for i, sit := range s.Situations {
		if len(sit.Turns) == 0 {
			errs = append(errs, FieldError{Field: fmt.Sprintf("situations[%d].turns", i), Message: "must have at least one turn"})
		}
	}

	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}
