package lesson

import (
	"fmt"
	"strings"

	"dialogue-lesson-service/internal/domain"
)

// OutcomeKind is what the learner did on the active step.
type OutcomeKind string

const (
	OutcomeAnswer   OutcomeKind = "answer"
	OutcomeChoice   OutcomeKind = "choice"
	OutcomeContinue OutcomeKind = "continue"
	OutcomeSkip     OutcomeKind = "skip"
)

// Outcome is the graded result of a submission. For answers IsCorrect, Feedback and ReactionText come
// from local grading or the remote validator. Partial marks a correct answer that does not finish the
// step yet, e.g. one drill of a grammar block.
type Outcome struct {
	Kind         OutcomeKind
	IsCorrect    bool
	Partial      bool
	Feedback     string
	ReactionText string
	Choice       string
}

// Input is everything the transition function needs.
type Input struct {
	Script           domain.LessonScript
	Step             domain.StepPointer
	AwaitingContinue bool
	Outcome          Outcome
	Lang             string
}

// Transition is the new step pointer and the ordered batch of model messages to append.
// Messages carry Role, Kind, Text, CurrentStepSnapshot and AwaitingContinue; ids and order are assigned
// by the caller.
type Transition struct {
	Next     domain.StepPointer
	Messages []domain.ChatMessage
	Advanced bool
}

// Completed reports whether the transition reached the terminal step.
func (t Transition) Completed() bool {
	return t.Next.IsCompletion()
}

// Start computes the opening pointer and messages of a lesson: a greeting, then the first non-empty section.
func Start(script domain.LessonScript, lang string) Transition {
	c := CatalogFor(lang)
	first := firstStep(script, 0)

	msgs := []domain.ChatMessage{model(domain.KindTransition, fmt.Sprintf(c.Greeting, title(script)), first, false)}
	if first.IsCompletion() {
		msgs = append(msgs, completionMessage(c))
		return Transition{Next: first, Messages: msgs, Advanced: true}
	}
	msgs = append(msgs, model(domain.KindTransition, c.Sections[string(first.Type)], first, false))
	msgs = append(msgs, Prompt(script, first, lang))
	return Transition{Next: first, Messages: msgs, Advanced: true}
}

// Next is the pure transition function over (script, step, outcome).
// An incorrect answer leaves the pointer unchanged and only appends feedback.
func Next(in Input) (Transition, error) {
	step := in.Step
	if !in.Script.Contains(step) {
		return Transition{Next: step}, fmt.Errorf("%s: %w", step, domain.ErrStepNotFound)
	}
	if step.IsCompletion() {
		return Transition{Next: step}, fmt.Errorf("lesson already complete: %w", domain.ErrInvalidSubmission)
	}
	c := CatalogFor(in.Lang)
	out := in.Outcome

	if in.AwaitingContinue {
		switch out.Kind {
		case OutcomeContinue, OutcomeSkip:
			return Transition{Next: step, Messages: []domain.ChatMessage{Prompt(in.Script, step, in.Lang)}}, nil
		}
		return Transition{Next: step}, fmt.Errorf("%s awaits continue: %w", step, domain.ErrInvalidSubmission)
	}

	if out.Kind == OutcomeSkip {
		return advance(in, c, nil), nil
	}

	switch step.Type {
	case domain.StepVocabulary:
		if out.Kind != OutcomeContinue {
			break
		}
		return advance(in, c, nil), nil

	case domain.StepGrammar:
		section := in.Script.Grammar[step.Index]
		if out.Kind == OutcomeContinue && len(section.Drills) == 0 {
			return advance(in, c, nil), nil
		}
		if out.Kind != OutcomeAnswer {
			break
		}
		if !out.IsCorrect {
			return feedback(in, c), nil
		}
		ack := model(domain.KindAck, reaction(out, c), step, false)
		if out.Partial {
			return Transition{Next: step, Messages: []domain.ChatMessage{ack}}, nil
		}
		return advance(in, c, &ack), nil

	case domain.StepConstructor, domain.StepSituations:
		if out.Kind != OutcomeAnswer {
			break
		}
		if !out.IsCorrect {
			return feedback(in, c), nil
		}
		ack := model(domain.KindAck, reaction(out, c), step, false)
		return advance(in, c, &ack), nil

	case domain.StepFindTheMistake:
		if out.Kind != OutcomeChoice {
			break
		}
		task := in.Script.FindTheMistake[step.Index]
		if !strings.EqualFold(strings.TrimSpace(out.Choice), strings.TrimSpace(task.Answer)) {
			text := c.TryAgain
			if out.Feedback != "" {
				text = out.Feedback
			}
			return Transition{Next: step, Messages: []domain.ChatMessage{model(domain.KindFeedback, text, step, false)}}, nil
		}
		text := c.Correct
		if task.Explanation != "" {
			text = joinLines(c.Correct, task.Explanation)
		}
		ack := model(domain.KindAck, text, step, false)
		return advance(in, c, &ack), nil
	}

	return Transition{Next: step}, fmt.Errorf("%s does not accept %q: %w", step, out.Kind, domain.ErrInvalidSubmission)
}

// Prompt renders the message that presents the task at p.
func Prompt(script domain.LessonScript, p domain.StepPointer, lang string) domain.ChatMessage {
	c := CatalogFor(lang)
	var b strings.Builder

	switch p.Type {
	case domain.StepVocabulary:
		b.WriteString(c.Vocabulary)
		for _, w := range script.Vocabulary[p.Index].Words {
			fmt.Fprintf(&b, "\n%s: %s", w.Word, w.Translation)
			if w.Example != "" {
				fmt.Fprintf(&b, " (%s)", w.Example)
			}
		}
	case domain.StepGrammar:
		section := script.Grammar[p.Index]
		b.WriteString(section.Title)
		if section.Explanation != "" {
			b.WriteString("\n\n" + section.Explanation)
		}
		for i, d := range section.Drills {
			fmt.Fprintf(&b, "\n%d. %s", i+1, d.Question)
			if d.Task != "" {
				fmt.Fprintf(&b, " (%s)", d.Task)
			}
		}
	case domain.StepConstructor:
		task := script.Constructor[p.Index]
		b.WriteString(c.Constructor)
		if task.Instruction != "" {
			b.WriteString(" " + task.Instruction)
		}
		b.WriteString("\n" + strings.Join(task.Words, " / "))
	case domain.StepFindTheMistake:
		task := script.FindTheMistake[p.Index]
		b.WriteString(c.FindTheMistake)
		for i, opt := range task.Options {
			fmt.Fprintf(&b, "\n%c) %s", 'A'+i, opt)
		}
	case domain.StepSituations:
		sit := script.Situations[p.Index]
		turn := sit.Turns[p.SubIndex]
		if p.SubIndex == 0 {
			fmt.Fprintf(&b, "%s %s", c.Situations, sit.Title)
			if sit.Description != "" {
				b.WriteString("\n" + sit.Description)
			}
			b.WriteString("\n\n")
		}
		b.WriteString(turn.AIText)
		if turn.Task != "" {
			b.WriteString("\n(" + turn.Task + ")")
		}
	case domain.StepCompletion:
		return completionMessage(c)
	}

	return model(domain.KindPrompt, b.String(), p, false)
}

// NextStep returns the pointer after p: the next situation turn, the next task of the section, the first
// task of the next non-empty section, or completion.
func NextStep(script domain.LessonScript, p domain.StepPointer) domain.StepPointer {
	if p.IsCompletion() {
		return p
	}
	if p.Type == domain.StepSituations && p.SubIndex+1 < len(script.Situations[p.Index].Turns) {
		return domain.StepPointer{Type: p.Type, Index: p.Index, SubIndex: p.SubIndex + 1}
	}
	if p.Index+1 < script.SectionLen(p.Type) {
		return domain.StepPointer{Type: p.Type, Index: p.Index + 1}
	}
	for i, t := range domain.SectionOrder {
		if t == p.Type {
			return firstStep(script, i+1)
		}
	}
	return domain.CompletionStep()
}

func firstStep(script domain.LessonScript, from int) domain.StepPointer {
	for _, t := range domain.SectionOrder[from:] {
		if script.SectionLen(t) > 0 {
			return domain.StepPointer{Type: t}
		}
	}
	return domain.CompletionStep()
}

// advance moves past the current step. A correctly finished scenario with more scenarios ahead stops
// and waits for an explicit continue instead of opening the next one.
func advance(in Input, c Catalog, ack *domain.ChatMessage) Transition {
	next := NextStep(in.Script, in.Step)
	var msgs []domain.ChatMessage
	if ack != nil {
		msgs = append(msgs, *ack)
	}

	switch {
	case next.IsCompletion():
		msgs = append(msgs, completionMessage(c))
	case next.Type != in.Step.Type:
		msgs = append(msgs, model(domain.KindTransition, c.Sections[string(next.Type)], next, false))
		msgs = append(msgs, Prompt(in.Script, next, in.Lang))
	case next.Type == domain.StepSituations && next.Index != in.Step.Index && in.Outcome.Kind != OutcomeSkip:
		msgs = append(msgs, model(domain.KindTransition, c.NextScenario, next, true))
	default:
		msgs = append(msgs, Prompt(in.Script, next, in.Lang))
	}
	return Transition{Next: next, Messages: msgs, Advanced: true}
}

func feedback(in Input, c Catalog) Transition {
	text := in.Outcome.Feedback
	if text == "" {
		text = c.TryAgain
	}
	return Transition{
		Next:     in.Step,
		Messages: []domain.ChatMessage{model(domain.KindFeedback, text, in.Step, false)},
	}
}

func reaction(out Outcome, c Catalog) string {
	if out.ReactionText != "" {
		return out.ReactionText
	}
	return c.Correct
}

func completionMessage(c Catalog) domain.ChatMessage {
	return model(domain.KindCompletion, c.Completion+" "+CompletionSentinel, domain.CompletionStep(), false)
}

func model(kind domain.MessageKind, text string, step domain.StepPointer, awaiting bool) domain.ChatMessage {
	return domain.ChatMessage{
		Role:                domain.RoleModel,
		Kind:                kind,
		Text:                text,
		CurrentStepSnapshot: step.Ptr(),
		AwaitingContinue:    awaiting,
	}
}

func title(script domain.LessonScript) string {
	if script.Title != "" {
		return script.Title
	}
	return script.ID
}
