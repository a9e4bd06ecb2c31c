package grading

// Reason classifies why an answer was rejected.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonEmpty          Reason = "empty"
	ReasonWrongLanguage  Reason = "wrong_language"
	ReasonQuestionMark   Reason = "question_mark"
	ReasonContraction    Reason = "contraction"
	ReasonRequiredPhrase Reason = "required_phrase"
	ReasonWordOrder      Reason = "word_order"
	ReasonMismatch       Reason = "mismatch"
	ReasonUndecided      Reason = "undecided"
)

// WordMismatch is an expected token answered with a wrong form.
type WordMismatch struct {
	Expected string `json:"expected"`
	Found    string `json:"found,omitempty"`
}

// NumberMismatch is an expected number answered with a different number.
type NumberMismatch struct {
	Expected string `json:"expected"`
	Found    string `json:"found"`
}

// Result is the outcome of grading one answer. It is built once per call and never mutated afterwards.
type Result struct {
	IsCorrect      bool            `json:"isCorrect"`
	Feedback       string          `json:"feedback"`
	NeedsAI        bool            `json:"needsAI"`
	Reason         Reason          `json:"reason,omitempty"`
	CorrectAnswer  string          `json:"correctAnswer,omitempty"`
	MissingWords   []string        `json:"missingWords"`
	IncorrectWords []WordMismatch  `json:"incorrectWords"`
	WrongLanguage  bool            `json:"wrongLanguage"`
	ExtraWords     []string        `json:"extraWords"`
	OrderError     bool            `json:"orderError"`
	DuplicateWords []string        `json:"duplicateWords"`
	NumberMismatch *NumberMismatch `json:"numberMismatch,omitempty"`
}

// errorSignals counts the signals that make an answer wrong.
func (r Result) errorSignals() int {
	n := len(r.MissingWords) + len(r.IncorrectWords)
	if r.NumberMismatch != nil {
		n++
	}
	return n
}

const (
	feedbackShowAnswer = "show the correct answer"
	feedbackUndecided  = "needs remote validation"
)

var reasonFeedback = map[Reason]string{
	ReasonEmpty:          "answer is empty",
	ReasonWrongLanguage:  "answer is written in the wrong language",
	ReasonQuestionMark:   "question mark does not match the expected sentence",
	ReasonContraction:    "contraction is spelled incorrectly",
	ReasonRequiredPhrase: feedbackShowAnswer,
	ReasonWordOrder:      feedbackShowAnswer,
	ReasonMismatch:       feedbackShowAnswer,
}

func fail(r Result, reason Reason) Result {
	r.IsCorrect = false
	r.NeedsAI = false
	r.Reason = reason
	r.Feedback = reasonFeedback[reason]
	return r
}
