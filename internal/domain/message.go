package domain

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// MessageKind tags what a model message is for.
type MessageKind string

const (
	KindAnswer     MessageKind = "answer"
	KindPrompt     MessageKind = "prompt"
	KindTransition MessageKind = "transition"
	KindAck        MessageKind = "ack"
	KindFeedback   MessageKind = "feedback"
	KindCompletion MessageKind = "completion"
)

// SaveStatus tracks whether a message or progress record reached the backing store.
type SaveStatus string

const (
	SavePending SaveStatus = "pending"
	SaveSaved   SaveStatus = "saved"
	SaveFailed  SaveStatus = "failed"
)

// ChatMessage is one entry in the append-only lesson log.
// CurrentStepSnapshot freezes the step the message was produced or answered under.
type ChatMessage struct {
	ID                  string       `json:"id"`
	Role                Role         `json:"role"`
	Kind                MessageKind  `json:"kind,omitempty"`
	Text                string       `json:"text"`
	CurrentStepSnapshot *StepPointer `json:"currentStepSnapshot"`
	MessageOrder        int          `json:"messageOrder"`
	AwaitingContinue    bool         `json:"awaitingContinue,omitempty"`
	SaveStatus          SaveStatus   `json:"saveStatus,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
}

// LessonRef addresses one learner's run through one lesson.
type LessonRef struct {
	LessonID string
	UserID   string
	UILang   string
}

// Key is the stable session key for the ref.
func (r LessonRef) Key() string {
	return r.UserID + ":" + r.LessonID
}

// Progress is the persisted position of a learner inside a lesson.
type Progress struct {
	UserID              string       `json:"userId"`
	LessonID            string       `json:"lessonId"`
	Day                 int          `json:"day"`
	Lesson              int          `json:"lesson"`
	Level               string       `json:"level"`
	CurrentStepSnapshot *StepPointer `json:"currentStepSnapshot"`
	Completed           bool         `json:"completed"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// RemoteValidationRequest is sent to the AI-backed validator when local grading cannot decide.
type RemoteValidationRequest struct {
	LessonID      string      `json:"lessonId"`
	UserID        string      `json:"userId"`
	CurrentStep   StepPointer `json:"currentStep"`
	StudentAnswer string      `json:"studentAnswer"`
	UILang        string      `json:"uiLang"`
	// Context carries the prompt the learner is answering so the validator does not need the script.
	Context string `json:"context,omitempty"`
}

// RemoteVerdict is the remote validator's decision.
type RemoteVerdict struct {
	IsCorrect    bool   `json:"isCorrect"`
	Feedback     string `json:"feedback"`
	ReactionText string `json:"reactionText"`
}
