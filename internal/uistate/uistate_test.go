package uistate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dialogue-lesson-service/internal/domain"
)

func sampleScript() domain.LessonScript {
	return domain.LessonScript{
		ID:      "l1",
		Grammar: []domain.GrammarSection{{Title: "Verb to be"}, {Title: "Present Simple"}},
		Constructor: []domain.ConstructorTask{
			{Instruction: "Order the words", Words: []string{"am", "I", "Tom"}},
			{Instruction: "Order the words", Words: []string{"is", "She", "Ann"}},
		},
		FindTheMistake: []domain.FindTheMistakeTask{
			{Options: []string{"I is Tom.", "I am Tom."}, Answer: "A"},
			{Options: []string{"She are Ann.", "She is Ann."}, Answer: "A"},
		},
		Situations: []domain.Situation{{Turns: []domain.SituationTurn{{AIText: "hi"}, {AIText: "bye"}}}},
	}
}

func TestTaskKeyTiers(t *testing.T) {
	script := sampleScript()

	snap := domain.StepPointer{Type: domain.StepFindTheMistake, Index: 1}
	key, tier := TaskKey(script, domain.ChatMessage{ID: "m1", CurrentStepSnapshot: &snap}, domain.StepFindTheMistake)
	assert.Equal(t, "find_the_mistake:1", key)
	assert.Equal(t, TierSnapshot, tier)

	msg := domain.ChatMessage{ID: "m2", Text: "Which one?\nA) She are Ann\nB) she is ann."}
	key, tier = TaskKey(script, msg, domain.StepFindTheMistake)
	assert.Equal(t, "find_the_mistake:1", key)
	assert.Equal(t, TierFingerprint, tier)

	msg = domain.ChatMessage{ID: "m3", Text: "Build:\nOrder the words\nis / She / Ann"}
	key, _ = TaskKey(script, msg, domain.StepConstructor)
	assert.Equal(t, "constructor:1", key)

	msg = domain.ChatMessage{ID: "m4", Text: "Present Simple\n\nexplanation"}
	key, _ = TaskKey(script, msg, domain.StepGrammar)
	assert.Equal(t, "grammar:1", key)

	msg = domain.ChatMessage{ID: "m5", Text: "unrelated"}
	key, tier = TaskKey(script, msg, domain.StepConstructor)
	assert.Equal(t, "msg:m5", key)
	assert.Equal(t, TierMessage, tier)
}

func TestTaskKeySnapshotOfOtherTypeFallsThrough(t *testing.T) {
	snap := domain.StepPointer{Type: domain.StepGrammar}
	msg := domain.ChatMessage{ID: "m1", CurrentStepSnapshot: &snap, Text: "A) I is Tom.\nB) I am Tom."}
	key, tier := TaskKey(sampleScript(), msg, domain.StepFindTheMistake)
	assert.Equal(t, "find_the_mistake:0", key)
	assert.Equal(t, TierFingerprint, tier)
}

func TestTaskKeysAreDistinctAcrossLesson(t *testing.T) {
	script := sampleScript()
	seen := map[string]domain.StepPointer{}
	pointers := []domain.StepPointer{
		{Type: domain.StepGrammar}, {Type: domain.StepGrammar, Index: 1},
		{Type: domain.StepConstructor}, {Type: domain.StepConstructor, Index: 1},
		{Type: domain.StepFindTheMistake}, {Type: domain.StepFindTheMistake, Index: 1},
		{Type: domain.StepSituations}, {Type: domain.StepSituations, SubIndex: 1},
	}
	for _, p := range pointers {
		p := p
		key, _ := TaskKey(script, domain.ChatMessage{ID: "same", CurrentStepSnapshot: &p}, p.Type)
		if prev, ok := seen[key]; ok {
			t.Fatalf("key %q shared by %v and %v", key, prev, p)
		}
		seen[key] = p

		again, _ := TaskKey(script, domain.ChatMessage{ID: "other", CurrentStepSnapshot: &p}, p.Type)
		assert.Equal(t, key, again)
	}
}

func TestCompletedConstructorSurvivesStaleConfirmation(t *testing.T) {
	r := NewRegistry(MergeConstructor)
	r.SetDraft("constructor:0", ConstructorState{PickedWordIndices: []int{1, 0, 2}, Completed: true})
	r.Confirm("constructor:0", ConstructorState{})

	got, ok := r.Get("constructor:0")
	assert.True(t, ok)
	assert.True(t, got.Completed)
	assert.Equal(t, []int{1, 0, 2}, got.PickedWordIndices)
}

func TestConstructorConfirmedCompletionApplies(t *testing.T) {
	got := MergeConstructor(ConstructorState{PickedWordIndices: []int{0}}, ConstructorState{PickedWordIndices: []int{1, 0, 2}, Completed: true})
	assert.True(t, got.Completed)
	assert.Equal(t, []int{1, 0, 2}, got.PickedWordIndices)

	got = MergeConstructor(ConstructorState{}, ConstructorState{PickedWordIndices: []int{2}})
	assert.Equal(t, []int{2}, got.PickedWordIndices)
}

func TestMergeDrillBlock(t *testing.T) {
	local := DrillBlockState{
		Answers:           []string{"I am a doctor", "You is"},
		Checked:           []bool{true, false},
		Correct:           []bool{true, false},
		CurrentDrillIndex: 1,
	}
	confirmed := DrillBlockState{
		Answers:           []string{"", "", "They are"},
		Checked:           []bool{false, false, true},
		Correct:           []bool{false, false, true},
		CurrentDrillIndex: 2,
	}
	got := MergeDrillBlock(local, confirmed)

	assert.Equal(t, []string{"I am a doctor", "You is", "They are"}, got.Answers)
	assert.Equal(t, []bool{true, false, true}, got.Checked)
	assert.Equal(t, []bool{true, false, true}, got.Correct)
	assert.Equal(t, 2, got.CurrentDrillIndex)
	assert.False(t, got.Completed)

	got = MergeDrillBlock(DrillBlockState{Completed: true}, DrillBlockState{CurrentDrillIndex: 0})
	assert.True(t, got.Completed)
}

func TestMergeDrillBlockAppliesConfirmedVerdict(t *testing.T) {
	local := DrillBlockState{Answers: []string{"I is"}, Checked: []bool{true}, Correct: []bool{false}}
	confirmed := DrillBlockState{Answers: []string{"I am"}, Correct: []bool{true}, Completed: true}

	got := MergeDrillBlock(local, confirmed)
	assert.Equal(t, []string{"I am"}, got.Answers)
	assert.Equal(t, []bool{true}, got.Checked)
	assert.Equal(t, []bool{true}, got.Correct)
	assert.True(t, got.Completed)

	// A confirmed wrong answer does not override a newer local check.
	got = MergeDrillBlock(
		DrillBlockState{Answers: []string{"I am"}, Checked: []bool{true}, Correct: []bool{true}},
		DrillBlockState{Answers: []string{"I is"}, Checked: []bool{true}, Correct: []bool{false}},
	)
	assert.Equal(t, []string{"I am"}, got.Answers)
	assert.Equal(t, []bool{true}, got.Correct)
}

func TestMergeChoice(t *testing.T) {
	got := MergeChoice(ChoiceState{Selected: "B"}, ChoiceState{Selected: "A", Correct: true, Advanced: true})
	assert.Equal(t, "A", got.Selected, "a confirmed verdict replaces the local pick")
	assert.True(t, got.Correct)
	assert.True(t, got.Advanced)

	got = MergeChoice(ChoiceState{Selected: "B"}, ChoiceState{Selected: "A"})
	assert.Equal(t, "B", got.Selected, "an undecided confirmation keeps the local pick")

	got = MergeChoice(ChoiceState{}, ChoiceState{Selected: "A", Correct: true})
	assert.Equal(t, "A", got.Selected)
	assert.True(t, got.Correct)
}

func TestStoreSnapshot(t *testing.T) {
	s := NewStore()
	s.Choices.SetDraft("find_the_mistake:0", ChoiceState{Selected: "A"})
	s.Drills.ConfirmFunc("grammar:0", func(prev DrillBlockState) DrillBlockState {
		prev.CurrentDrillIndex = 1
		return prev
	})

	snap := s.Snapshot()
	assert.Equal(t, "A", snap.Choices["find_the_mistake:0"].Selected)
	assert.Equal(t, 1, snap.Drills["grammar:0"].CurrentDrillIndex)
	assert.Empty(t, snap.Constructors)
	assert.Equal(t, []string{"grammar:0"}, s.Drills.Keys())
}
