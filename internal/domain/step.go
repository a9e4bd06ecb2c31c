package domain

import "strconv"

// StepType names a section of the lesson script.
type StepType string

const (
	StepVocabulary     StepType = "vocabulary"
	StepGrammar        StepType = "grammar"
	StepConstructor    StepType = "constructor"
	StepFindTheMistake StepType = "find_the_mistake"
	StepSituations     StepType = "situations"
	StepCompletion     StepType = "completion"
)

// SectionOrder is the order in which a lesson walks its sections.
var SectionOrder = []StepType{
	StepVocabulary,
	StepGrammar,
	StepConstructor,
	StepFindTheMistake,
	StepSituations,
}

// IsValid reports whether t is a known step type.
func (t StepType) IsValid() bool {
	switch t {
	case StepVocabulary, StepGrammar, StepConstructor, StepFindTheMistake, StepSituations, StepCompletion:
		return true
	}
	return false
}

// StepPointer identifies where the learner currently is in a lesson script.
type StepPointer struct {
	Type     StepType `json:"type"`
	Index    int      `json:"index"`
	SubIndex int      `json:"subIndex,omitempty"`
}

// CompletionStep is the terminal pointer.
func CompletionStep() StepPointer {
	return StepPointer{Type: StepCompletion}
}

// Valid reports whether the pointer is well formed. It does not check it against a script.
func (p StepPointer) Valid() bool {
	return p.Type.IsValid() && p.Index >= 0 && p.SubIndex >= 0
}

// IsCompletion reports whether the pointer is the terminal step.
func (p StepPointer) IsCompletion() bool {
	return p.Type == StepCompletion
}

func (p StepPointer) String() string {
	s := string(p.Type) + ":" + strconv.Itoa(p.Index)
	if p.Type == StepSituations {
		s += ":" + strconv.Itoa(p.SubIndex)
	}
	return s
}

// Ptr returns a pointer to a copy of p, handy for message snapshots.
func (p StepPointer) Ptr() *StepPointer {
	return &p
}
