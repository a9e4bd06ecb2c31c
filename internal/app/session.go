package app

import (
	"sync"
	"sync/atomic"
	"time"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/lesson"
	"dialogue-lesson-service/internal/uistate"
)

// Snapshot is what subscribers of a lesson session receive.
type Snapshot struct {
	LessonID       string               `json:"lessonId"`
	UserID         string               `json:"userId"`
	Step           domain.StepPointer   `json:"step"`
	Messages       []domain.ChatMessage `json:"messages"`
	UIState        uistate.Snapshot     `json:"uiState"`
	Completed      bool                 `json:"completed"`
	ProgressStatus domain.SaveStatus    `json:"progressStatus,omitempty"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// Session is the in-memory state of one learner's lesson run.
type Session struct {
	key string
	now func() time.Time

	// inFlight rejects a second submission while one is processed.
	inFlight   atomic.Bool
	completion lesson.CompletionDetector
	ui         *uistate.Store

	startMu sync.Mutex
	started bool

	mu             sync.RWMutex
	ref            domain.LessonRef
	script         domain.LessonScript
	step           domain.StepPointer
	messages       []domain.ChatMessage
	seen           map[string]int
	progressStatus domain.SaveStatus
	persistTail    chan struct{}
	unsubscribe    func()
	subscribers    map[chan Snapshot]struct{}
}

func newSession(key string) *Session {
	return newSessionWithClock(key, time.Now)
}

// newSessionWithClock allows deterministic timestamps in tests.
func newSessionWithClock(key string, now func() time.Time) *Session {
	return &Session{
		key:         key,
		now:         now,
		ui:          uistate.NewStore(),
		seen:        make(map[string]int),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(key string) *Session {
	return newSession(key)
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// IsEmpty reports whether nobody is watching the session and no submission is running.
func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers) == 0 && !s.inFlight.Load()
}

func (s *Session) init(ref domain.LessonRef, script domain.LessonScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref = ref
	s.script = script
}

// restore loads persisted history. The active step is the snapshot of the last model message.
func (s *Session) restore(history []domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range history {
		if m.SaveStatus == "" {
			m.SaveStatus = domain.SaveSaved
		}
		s.seen[m.ID] = len(s.messages)
		s.messages = append(s.messages, m)
	}
	if step, _, ok := activeStepLocked(s.messages); ok {
		s.step = step
	}
}

// activeStep resolves the step the next submission answers and whether the learner must press continue.
func (s *Session) activeStep() (domain.StepPointer, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeStepLocked(s.messages)
}

func activeStepLocked(messages []domain.ChatMessage) (domain.StepPointer, bool, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != domain.RoleModel {
			continue
		}
		if m.CurrentStepSnapshot == nil {
			return domain.StepPointer{}, false, false
		}
		return *m.CurrentStepSnapshot, m.AwaitingContinue, true
	}
	return domain.StepPointer{}, false, false
}

func (s *Session) lessonRef() domain.LessonRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ref
}

func (s *Session) lessonScript() domain.LessonScript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

func (s *Session) nextOrder() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return 0
	}
	return s.messages[len(s.messages)-1].MessageOrder + 1
}

// append adds msg to the log and fans out the new snapshot.
func (s *Session) append(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	s.broadcastLocked()
}

func (s *Session) setStep(step domain.StepPointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
	s.broadcastLocked()
}

// chainPersist returns the channel the next write must wait for and installs done as the new tail.
func (s *Session) chainPersist(done chan struct{}) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.persistTail
	s.persistTail = done
	return prev
}

// markSaved records the store's copy of a local message. A server-assigned id becomes the message id;
// the local id stays known so late echoes still match.
func (s *Session) markSaved(localID string, saved domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.seen[localID]
	if !ok {
		return
	}
	if saved.ID != "" && saved.ID != localID {
		s.messages[idx].ID = saved.ID
		s.seen[saved.ID] = idx
	}
	s.messages[idx].SaveStatus = domain.SaveSaved
	s.broadcastLocked()
}

func (s *Session) markFailed(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.seen[localID]; ok {
		s.messages[idx].SaveStatus = domain.SaveFailed
		s.broadcastLocked()
	}
}

func (s *Session) setProgressStatus(status domain.SaveStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressStatus = status
	s.broadcastLocked()
}

// reconcile matches an echoed message against the log by id, then (order, role), then (text, role)
// among unconfirmed messages. Unmatched echoes are appended. It reports whether the echo was new.
func (s *Session) reconcile(echo domain.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	if i, ok := s.seen[echo.ID]; ok && echo.ID != "" {
		idx = i
	}
	if idx < 0 {
		for i, m := range s.messages {
			if m.MessageOrder == echo.MessageOrder && m.Role == echo.Role {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		for i, m := range s.messages {
			if m.SaveStatus != domain.SaveSaved && m.Role == echo.Role && m.Text == echo.Text {
				idx = i
				break
			}
		}
	}

	if idx >= 0 {
		m := &s.messages[idx]
		if echo.ID != "" {
			m.ID = echo.ID
			s.seen[echo.ID] = idx
		}
		if m.SaveStatus != domain.SaveSaved {
			m.SaveStatus = domain.SaveSaved
			s.broadcastLocked()
		}
		return false
	}

	if echo.SaveStatus == "" {
		echo.SaveStatus = domain.SaveSaved
	}
	if echo.ID != "" {
		s.seen[echo.ID] = len(s.messages)
	}
	s.messages = append(s.messages, echo)
	s.broadcastLocked()
	return true
}

func (s *Session) setUnsubscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribe = fn
}

// close drops the message store subscription.
func (s *Session) close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// broadcast fans out the current snapshot, e.g. after a UI state change.
func (s *Session) broadcast() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcastLocked()
}

func (s *Session) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow subscriber: replace its oldest pending snapshot.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() Snapshot {
	messages := make([]domain.ChatMessage, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{
		LessonID:       s.ref.LessonID,
		UserID:         s.ref.UserID,
		Step:           s.step,
		Messages:       messages,
		UIState:        s.ui.Snapshot(),
		Completed:      s.completion.Fired(),
		ProgressStatus: s.progressStatus,
		UpdatedAt:      s.now(),
	}
}
