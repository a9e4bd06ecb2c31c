package uistate

// DrillBlockState is the interaction state of a grammar drill block.
type DrillBlockState struct {
	Answers           []string `json:"answers"`
	Checked           []bool   `json:"checked"`
	Correct           []bool   `json:"correct"`
	Completed         bool     `json:"completed"`
	CurrentDrillIndex int      `json:"currentDrillIndex"`
}

// ConstructorState is the interaction state of a word-ordering task.
type ConstructorState struct {
	PickedWordIndices []int `json:"pickedWordIndices"`
	Completed         bool  `json:"completed"`
}

// ChoiceState is the interaction state of a binary-choice task.
type ChoiceState struct {
	Selected string `json:"selected"`
	Correct  bool   `json:"correct"`
	Advanced bool   `json:"advanced"`
}

// MergeDrillBlock merges the local draft over the confirmed state. A confirmed correct item is final;
// otherwise items the learner already checked locally win, then a confirmed check, then an in-progress
// local draft. Completion and the drill index only move forward.
func MergeDrillBlock(local, confirmed DrillBlockState) DrillBlockState {
	n := max(len(local.Answers), len(local.Checked), len(confirmed.Answers), len(confirmed.Checked), len(confirmed.Correct))
	out := DrillBlockState{
		Answers:           make([]string, n),
		Checked:           make([]bool, n),
		Correct:           make([]bool, n),
		Completed:         local.Completed || confirmed.Completed,
		CurrentDrillIndex: max(local.CurrentDrillIndex, confirmed.CurrentDrillIndex),
	}
	for i := 0; i < n; i++ {
		switch {
		case at(confirmed.Correct, i):
			out.Answers[i], out.Checked[i], out.Correct[i] = at(confirmed.Answers, i), true, true
		case at(local.Checked, i):
			out.Answers[i], out.Checked[i], out.Correct[i] = at(local.Answers, i), true, at(local.Correct, i)
		case at(confirmed.Checked, i):
			out.Answers[i], out.Checked[i], out.Correct[i] = at(confirmed.Answers, i), true, at(confirmed.Correct, i)
		case at(local.Answers, i) != "":
			out.Answers[i] = at(local.Answers, i)
		default:
			out.Answers[i] = at(confirmed.Answers, i)
		}
	}
	return out
}

// MergeConstructor keeps a locally completed task completed, applies a confirmed completion, and
// otherwise prefers the learner's in-progress picks.
func MergeConstructor(local, confirmed ConstructorState) ConstructorState {
	switch {
	case local.Completed:
		return local
	case confirmed.Completed:
		return confirmed
	case len(local.PickedWordIndices) > 0:
		return local
	}
	return confirmed
}

// MergeChoice keeps a local selection until a confirmed verdict (correct or advanced) exists;
// advancement is sticky from either side.
func MergeChoice(local, confirmed ChoiceState) ChoiceState {
	out := confirmed
	decided := confirmed.Selected != "" && (confirmed.Correct || confirmed.Advanced)
	if local.Selected != "" && !decided {
		out.Selected, out.Correct = local.Selected, local.Correct
	}
	out.Advanced = local.Advanced || confirmed.Advanced
	return out
}

func at[T any](items []T, i int) T {
	var zero T
	if i < len(items) {
		return items[i]
	}
	return zero
}
