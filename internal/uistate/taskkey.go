package uistate

import (
	"strings"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/grading"
)

// KeyTier records which rule produced a task key.
type KeyTier int

const (
	TierSnapshot KeyTier = iota
	TierFingerprint
	TierMessage
)

const messageKeyPrefix = "msg:"

// TaskKey derives the stable key of the exercise of type want rendered by msg. Rules in priority order:
//  1. the message's step snapshot, when it has the wanted type: "type:index" (":sub" for situations);
//  2. a content fingerprint matched against the script, yielding the same "type:index" form;
//  3. the message id: "msg:<id>".
func TaskKey(script domain.LessonScript, msg domain.ChatMessage, want domain.StepType) (string, KeyTier) {
	if p := msg.CurrentStepSnapshot; p != nil && p.Type == want && script.Contains(*p) {
		return p.String(), TierSnapshot
	}
	if idx, ok := fingerprint(script, msg.Text, want); ok {
		return domain.StepPointer{Type: want, Index: idx}.String(), TierFingerprint
	}
	return messageKeyPrefix + msg.ID, TierMessage
}

func fingerprint(script domain.LessonScript, text string, want domain.StepType) (int, bool) {
	switch want {
	case domain.StepFindTheMistake:
		a, b, ok := choiceOptions(text)
		if !ok {
			return 0, false
		}
		for i, task := range script.FindTheMistake {
			if len(task.Options) == 2 && grading.Normalize(task.Options[0]) == a && grading.Normalize(task.Options[1]) == b {
				return i, true
			}
		}
	case domain.StepConstructor:
		for i, task := range script.Constructor {
			if task.Instruction != "" && strings.Contains(text, task.Instruction) &&
				strings.Contains(text, strings.Join(task.Words, " / ")) {
				return i, true
			}
		}
	case domain.StepGrammar:
		for i, section := range script.Grammar {
			if section.Title != "" && strings.Contains(text, section.Title) {
				return i, true
			}
		}
	}
	return 0, false
}

// choiceOptions extracts the normalized "A) " and "B) " lines of a binary-choice prompt.
func choiceOptions(text string) (a, b string, ok bool) {
	var foundA, foundB bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "A) ") && !foundA:
			a, foundA = grading.Normalize(line[3:]), true
		case strings.HasPrefix(line, "B) ") && !foundB:
			b, foundB = grading.Normalize(line[3:]), true
		}
	}
	return a, b, foundA && foundB
}
