package app

import (
	"strings"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/grading"
	"dialogue-lesson-service/internal/lesson"
	"dialogue-lesson-service/internal/uistate"
)

// Submission is one learner action on the active step.
type Submission struct {
	Kind              lesson.OutcomeKind `json:"kind"`
	Text              string             `json:"text,omitempty"`
	Choice            string             `json:"choice,omitempty"`
	DrillIndex        int                `json:"drillIndex,omitempty"`
	PickedWordIndices []int              `json:"pickedWordIndices,omitempty"`
}

// Validate checks the submission shape.
func (s Submission) Validate() error {
	var errs []domain.FieldError
	switch s.Kind {
	case lesson.OutcomeAnswer:
		if strings.TrimSpace(s.Text) == "" && len(s.PickedWordIndices) == 0 {
			errs = append(errs, domain.FieldError{Field: "text", Message: "required"})
		}
		if s.DrillIndex < 0 {
			errs = append(errs, domain.FieldError{Field: "drillIndex", Message: "must not be negative"})
		}
	case lesson.OutcomeChoice:
		if c := strings.ToUpper(strings.TrimSpace(s.Choice)); c != "A" && c != "B" {
			errs = append(errs, domain.FieldError{Field: "choice", Message: "must be A or B"})
		}
	case lesson.OutcomeContinue, lesson.OutcomeSkip:
	default:
		errs = append(errs, domain.FieldError{Field: "kind", Message: "unknown submission kind"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// userText is what the learner's own chat message shows, or "" when the action has no message.
func (s Submission) userText(script domain.LessonScript, step domain.StepPointer) string {
	switch s.Kind {
	case lesson.OutcomeAnswer:
		if strings.TrimSpace(s.Text) == "" && step.Type == domain.StepConstructor && step.Index < len(script.Constructor) {
			return pickedSentence(script.Constructor[step.Index], s.PickedWordIndices)
		}
		return strings.TrimSpace(s.Text)
	case lesson.OutcomeChoice:
		return strings.ToUpper(strings.TrimSpace(s.Choice))
	}
	return ""
}

func pickedSentence(task domain.ConstructorTask, picked []int) string {
	words := make([]string, 0, len(picked))
	for _, i := range picked {
		if i >= 0 && i < len(task.Words) {
			words = append(words, task.Words[i])
		}
	}
	return strings.Join(words, " ")
}

// SubmitResult reports what a submission did. Ignored is set when the submission was dropped:
// another one was in flight, no active step could be resolved, or the step rejected it.
type SubmitResult struct {
	Ignored   bool                 `json:"ignored"`
	Step      domain.StepPointer   `json:"step"`
	Messages  []domain.ChatMessage `json:"messages,omitempty"`
	Grading   *grading.Result      `json:"grading,omitempty"`
	IsCorrect bool                 `json:"isCorrect"`
	Advanced  bool                 `json:"advanced"`
	Completed bool                 `json:"completed"`
}

// UIUpdate carries a client-side draft for one exercise. Exactly one state must be set.
type UIUpdate struct {
	Key         string                    `json:"key"`
	Drill       *uistate.DrillBlockState  `json:"drill,omitempty"`
	Constructor *uistate.ConstructorState `json:"constructor,omitempty"`
	Choice      *uistate.ChoiceState      `json:"choice,omitempty"`
}

func (u UIUpdate) Validate() error {
	var errs []domain.FieldError
	if strings.TrimSpace(u.Key) == "" {
		errs = append(errs, domain.FieldError{Field: "key", Message: "required"})
	}
	set := 0
	for _, present := range []bool{u.Drill != nil, u.Constructor != nil, u.Choice != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		errs = append(errs, domain.FieldError{Field: "state", Message: "exactly one of drill, constructor, choice is required"})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// drillProgress applies one graded drill answer to the confirmed block state.
func drillProgress(prev uistate.DrillBlockState, drills, idx int, answer string, correct bool) uistate.DrillBlockState {
	n := max(drills, len(prev.Answers))
	next := uistate.DrillBlockState{
		Answers:   make([]string, n),
		Checked:   make([]bool, n),
		Correct:   make([]bool, n),
		Completed: prev.Completed,
	}
	copy(next.Answers, prev.Answers)
	copy(next.Checked, prev.Checked)
	copy(next.Correct, prev.Correct)
	next.Answers[idx], next.Checked[idx], next.Correct[idx] = answer, true, correct

	next.CurrentDrillIndex = drills
	for i := 0; i < drills; i++ {
		if !next.Correct[i] {
			next.CurrentDrillIndex = i
			break
		}
	}
	if next.CurrentDrillIndex == drills {
		next.Completed = true
		next.CurrentDrillIndex = drills - 1
	}
	return next
}
