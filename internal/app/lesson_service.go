package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/grading"
	"dialogue-lesson-service/internal/lesson"
	"dialogue-lesson-service/internal/logging"
	"dialogue-lesson-service/internal/metrics"
	"dialogue-lesson-service/internal/uistate"
)

// SessionRepository abstracts how lesson sessions are held (in-memory, Redis-tracked, etc).
type SessionRepository interface {
	GetOrCreate(key string) *Session
	Get(key string) (*Session, bool)
	DeleteIfEmpty(key string)
}

// ScriptRepository loads lesson scripts (from cache/backing store).
type ScriptRepository interface {
	GetScript(ctx context.Context, lessonID string) (domain.LessonScript, error)
}

// MessageStore persists the chat log and echoes stored messages back in realtime.
type MessageStore interface {
	AppendMessage(ctx context.Context, key string, msg domain.ChatMessage) (domain.ChatMessage, error)
	ListMessages(ctx context.Context, key string) ([]domain.ChatMessage, error)
	Subscribe(ctx context.Context, key string, onMessage func(domain.ChatMessage)) (func(), error)
}

// ProgressStore persists the learner's position.
type ProgressStore interface {
	UpsertProgress(ctx context.Context, progress domain.Progress) error
}

// RemoteValidator adjudicates answers the local grader cannot decide.
type RemoteValidator interface {
	Validate(ctx context.Context, req domain.RemoteValidationRequest) (domain.RemoteVerdict, error)
}

const (
	defaultRemoteTimeout  = 12 * time.Second
	defaultPersistTimeout = 5 * time.Second
)

// Dependencies wires a LessonService. Sessions and Scripts are required.
type Dependencies struct {
	Sessions       SessionRepository
	Scripts        ScriptRepository
	Messages       MessageStore
	Progress       ProgressStore
	Remote         RemoteValidator
	Pacer          lesson.Pacer
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	RemoteTimeout  time.Duration
	PersistTimeout time.Duration
	DefaultLang    string
	Clock          func() time.Time
	NewID          func() string
}

// LessonService contains the lesson session use cases.
type LessonService struct {
	sessions       SessionRepository
	scripts        ScriptRepository
	messages       MessageStore
	progress       ProgressStore
	remote         RemoteValidator
	pacer          lesson.Pacer
	log            *zap.Logger
	metrics        *metrics.Metrics
	remoteTimeout  time.Duration
	persistTimeout time.Duration
	defaultLang    string
	now            func() time.Time
	newID          func() string

	pending sync.WaitGroup
}

func NewLessonService(deps Dependencies) *LessonService {
	s := &LessonService{
		sessions:       deps.Sessions,
		scripts:        deps.Scripts,
		messages:       deps.Messages,
		progress:       deps.Progress,
		remote:         deps.Remote,
		pacer:          deps.Pacer,
		log:            deps.Logger,
		metrics:        deps.Metrics,
		remoteTimeout:  deps.RemoteTimeout,
		persistTimeout: deps.PersistTimeout,
		defaultLang:    deps.DefaultLang,
		now:            deps.Clock,
		newID:          deps.NewID,
	}
	if s.pacer == nil {
		s.pacer = lesson.NoPacing{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}
	if s.remoteTimeout <= 0 {
		s.remoteTimeout = defaultRemoteTimeout
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = defaultPersistTimeout
	}
	if s.defaultLang == "" {
		s.defaultLang = lesson.DefaultLang
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// StartLesson loads the script and opens the session. Persisted history is restored when present;
// otherwise the opening messages are emitted. Starting an open session returns it unchanged.
func (s *LessonService) StartLesson(ctx context.Context, ref domain.LessonRef) (Snapshot, error) {
	if ref.UILang == "" {
		ref.UILang = s.defaultLang
	}
	script, err := s.scripts.GetScript(ctx, ref.LessonID)
	if err != nil {
		return Snapshot{}, err
	}

	session := s.sessions.GetOrCreate(ref.Key())
	session.startMu.Lock()
	defer session.startMu.Unlock()
	if session.started {
		return session.snapshot(), nil
	}

	session.init(ref, script)
	log := s.log.With(logging.Lesson(ref.LessonID, ref.UserID)...)

	var history []domain.ChatMessage
	if s.messages != nil {
		history, err = s.messages.ListMessages(ctx, ref.Key())
		if err != nil {
			log.Warn("load chat history", zap.Error(err))
			history = nil
		}
	}

	if len(history) > 0 {
		session.restore(history)
		session.completion.Observe(history)
		log.Info("lesson resumed", zap.Int("messages", len(history)))
	} else {
		tr := lesson.Start(script, ref.UILang)
		batch := s.stamp(session, tr.Messages, domain.SavePending)
		for _, msg := range batch {
			session.append(msg)
			s.persist(ctx, session, msg)
		}
		session.setStep(tr.Next)
		if session.completion.Observe(batch) {
			s.metrics.Completions.Inc()
		}
		log.Info("lesson started", zap.String("step", tr.Next.String()))
	}

	if s.messages != nil {
		unsubscribe, err := s.messages.Subscribe(context.Background(), ref.Key(), func(m domain.ChatMessage) {
			if _, err := s.ReconcileEcho(ref, m); err != nil {
				log.Debug("echo for closed session", zap.String("message_id", m.ID))
			}
		})
		if err != nil {
			log.Warn("subscribe to message echoes", zap.Error(err))
		} else {
			session.setUnsubscribe(unsubscribe)
		}
	}

	session.started = true
	return session.snapshot(), nil
}

// HandleStudentAnswer grades a submission against the active step, advances the lesson and appends the
// resulting messages in order. A submission arriving while another one is processed is ignored.
func (s *LessonService) HandleStudentAnswer(ctx context.Context, ref domain.LessonRef, sub Submission) (SubmitResult, error) {
	session, ok := s.sessions.Get(ref.Key())
	if !ok {
		return SubmitResult{}, domain.ErrSessionNotFound
	}
	if err := sub.Validate(); err != nil {
		return SubmitResult{}, err
	}
	if !session.inFlight.CompareAndSwap(false, true) {
		s.metrics.IgnoredSubmissions.WithLabelValues("in_flight").Inc()
		return SubmitResult{Ignored: true}, nil
	}
	defer session.inFlight.Store(false)

	ref = session.lessonRef()
	script := session.lessonScript()
	log := s.log.With(logging.Lesson(ref.LessonID, ref.UserID)...)

	step, awaiting, ok := session.activeStep()
	if !ok || !script.Contains(step) {
		s.metrics.IgnoredSubmissions.WithLabelValues("no_step").Inc()
		log.Warn("submission dropped: active step unknown")
		return SubmitResult{Ignored: true}, nil
	}

	g, err := s.grade(ctx, ref, session, script, step, awaiting, sub)
	if err != nil {
		s.metrics.IgnoredSubmissions.WithLabelValues("invalid").Inc()
		log.Warn("submission dropped", zap.String("step", step.String()), zap.Error(err))
		return SubmitResult{Ignored: true, Step: step}, nil
	}

	tr, err := lesson.Next(lesson.Input{
		Script:           script,
		Step:             step,
		AwaitingContinue: awaiting,
		Outcome:          g.outcome,
		Lang:             ref.UILang,
	})
	if err != nil {
		s.metrics.IgnoredSubmissions.WithLabelValues("rejected").Inc()
		log.Warn("submission dropped", zap.String("step", step.String()), zap.Error(err))
		return SubmitResult{Ignored: true, Step: step}, nil
	}
	if g.confirm != nil {
		g.confirm()
	}

	var drafts []domain.ChatMessage
	if text := sub.userText(script, step); text != "" {
		drafts = append(drafts, domain.ChatMessage{
			Role:                domain.RoleUser,
			Kind:                domain.KindAnswer,
			Text:                text,
			CurrentStepSnapshot: step.Ptr(),
		})
	}
	drafts = append(drafts, tr.Messages...)
	batch := s.stamp(session, drafts, domain.SavePending)

	for i, msg := range batch {
		if err := s.pacer.Wait(ctx, i); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn("pacing", zap.Error(err))
		}
		session.append(msg)
		s.persist(ctx, session, msg)
	}
	session.setStep(tr.Next)

	if tr.Advanced {
		s.metrics.StepTransitions.WithLabelValues(string(tr.Next.Type)).Inc()
	}
	completed := session.completion.Observe(batch)
	if completed {
		s.metrics.Completions.Inc()
		log.Info("lesson completed")
	}
	if tr.Advanced || completed {
		s.upsertProgress(ctx, session, script, tr.Next, tr.Completed())
	}

	return SubmitResult{
		Step:      tr.Next,
		Messages:  batch,
		Grading:   g.local,
		IsCorrect: g.outcome.IsCorrect,
		Advanced:  tr.Advanced,
		Completed: tr.Completed(),
	}, nil
}

type graded struct {
	outcome lesson.Outcome
	local   *grading.Result
	// confirm records the authoritative UI state once the transition is accepted.
	confirm func()
}

func (s *LessonService) grade(ctx context.Context, ref domain.LessonRef, session *Session, script domain.LessonScript, step domain.StepPointer, awaiting bool, sub Submission) (graded, error) {
	out := lesson.Outcome{Kind: sub.Kind, Choice: strings.ToUpper(strings.TrimSpace(sub.Choice))}
	if awaiting {
		return graded{outcome: out}, nil
	}
	key := step.String()

	switch {
	case sub.Kind == lesson.OutcomeChoice && step.Type == domain.StepFindTheMistake:
		correct := strings.EqualFold(out.Choice, strings.TrimSpace(script.FindTheMistake[step.Index].Answer))
		s.countValidation(correct)
		return graded{outcome: out, confirm: func() {
			session.ui.Choices.Confirm(key, uistate.ChoiceState{Selected: out.Choice, Correct: correct, Advanced: correct})
		}}, nil

	case sub.Kind != lesson.OutcomeAnswer:
		return graded{outcome: out}, nil
	}

	answer := sub.userText(script, step)
	var (
		res     grading.Result
		prompt  string
		confirm func(correct bool)
		partial func() bool
	)
	switch step.Type {
	case domain.StepGrammar:
		drills := script.Grammar[step.Index].Drills
		if sub.DrillIndex >= len(drills) {
			return graded{}, fmt.Errorf("drill %d of %s: %w", sub.DrillIndex, step, domain.ErrInvalidSubmission)
		}
		drill := drills[sub.DrillIndex]
		res = grading.ValidateDrill(answer, drill)
		prompt = drill.Question
		prev, _ := session.ui.Drills.Confirmed(key)
		confirm = func(correct bool) {
			session.ui.Drills.Confirm(key, drillProgress(prev, len(drills), sub.DrillIndex, answer, correct))
		}
		partial = func() bool {
			return !drillProgress(prev, len(drills), sub.DrillIndex, answer, true).Completed
		}

	case domain.StepConstructor:
		task := script.Constructor[step.Index]
		res = grading.Validate(answer, task.Expected, task.RequiredWords)
		prompt = task.Instruction
		picked := append([]int(nil), sub.PickedWordIndices...)
		confirm = func(correct bool) {
			if correct {
				session.ui.Constructors.Confirm(key, uistate.ConstructorState{PickedWordIndices: picked, Completed: true})
			}
		}

	case domain.StepSituations:
		turn := script.Situations[step.Index].Turns[step.SubIndex]
		res = grading.Validate(answer, turn.Expected, turn.RequiredWords)
		prompt = turn.AIText

	default:
		return graded{outcome: out}, nil
	}

	if res.NeedsAI {
		s.metrics.Validations.WithLabelValues("needs_ai").Inc()
		verdict := s.remoteVerdict(ctx, ref, step, answer, prompt)
		out.IsCorrect, out.Feedback, out.ReactionText = verdict.IsCorrect, verdict.Feedback, verdict.ReactionText
	} else {
		s.countValidation(res.IsCorrect)
		out.IsCorrect = res.IsCorrect
		if !res.IsCorrect {
			out.Feedback = lesson.FeedbackFor(ref.UILang, res)
		}
	}
	if out.IsCorrect && partial != nil {
		out.Partial = partial()
	}

	g := graded{outcome: out, local: &res}
	if confirm != nil {
		correct := out.IsCorrect
		g.confirm = func() { confirm(correct) }
	}
	return g, nil
}

// remoteVerdict asks the remote validator under a bounded timeout. Any failure yields a localized
// retry prompt so the learner is never left waiting.
func (s *LessonService) remoteVerdict(ctx context.Context, ref domain.LessonRef, step domain.StepPointer, answer, prompt string) domain.RemoteVerdict {
	retry := domain.RemoteVerdict{Feedback: lesson.CatalogFor(ref.UILang).Retry}
	log := s.log.With(logging.Lesson(ref.LessonID, ref.UserID)...)
	if s.remote == nil {
		s.metrics.RemoteValidations.WithLabelValues("error").Inc()
		log.Warn("remote validation fallback", zap.Error(domain.ErrRemoteUnavailable))
		return retry
	}

	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	type reply struct {
		verdict domain.RemoteVerdict
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		v, err := s.remote.Validate(ctx, domain.RemoteValidationRequest{
			LessonID:      ref.LessonID,
			UserID:        ref.UserID,
			CurrentStep:   step,
			StudentAnswer: answer,
			UILang:        ref.UILang,
			Context:       prompt,
		})
		done <- reply{verdict: v, err: err}
	}()

	select {
	case <-ctx.Done():
		s.metrics.RemoteValidations.WithLabelValues("timeout").Inc()
		log.Warn("remote validation fallback", zap.Error(ctx.Err()))
		return retry
	case r := <-done:
		if r.err != nil {
			s.metrics.RemoteValidations.WithLabelValues("error").Inc()
			log.Warn("remote validation fallback", zap.Error(r.err))
			return retry
		}
		s.metrics.RemoteValidations.WithLabelValues("ok").Inc()
		return r.verdict
	}
}

func (s *LessonService) countValidation(correct bool) {
	if correct {
		s.metrics.Validations.WithLabelValues("correct").Inc()
		return
	}
	s.metrics.Validations.WithLabelValues("incorrect").Inc()
}

// stamp assigns ids, order and timestamps to a batch of drafts.
func (s *LessonService) stamp(session *Session, drafts []domain.ChatMessage, status domain.SaveStatus) []domain.ChatMessage {
	order := session.nextOrder()
	now := s.now()
	out := make([]domain.ChatMessage, len(drafts))
	for i, m := range drafts {
		m.ID = s.newID()
		m.MessageOrder = order + i
		m.SaveStatus = status
		m.CreatedAt = now
		out[i] = m
	}
	return out
}

// persist writes msg in the background. Writes of one session run in append order; a failure marks
// the message failed and never blocks the lesson.
func (s *LessonService) persist(ctx context.Context, session *Session, msg domain.ChatMessage) {
	if s.messages == nil {
		return
	}
	done := make(chan struct{})
	prev := session.chainPersist(done)
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()

		saved, err := s.messages.AppendMessage(ctx, session.Key(), msg)
		if err != nil {
			session.markFailed(msg.ID)
			s.metrics.PersistenceFailures.WithLabelValues("message").Inc()
			s.log.Warn("persist chat message", zap.String("session", session.Key()), zap.String("message_id", msg.ID), zap.Error(err))
			return
		}
		session.markSaved(msg.ID, saved)
	}()
}

// upsertProgress records the learner's position in the background.
func (s *LessonService) upsertProgress(ctx context.Context, session *Session, script domain.LessonScript, step domain.StepPointer, completed bool) {
	if s.progress == nil {
		return
	}
	ref := session.lessonRef()
	progress := domain.Progress{
		UserID:              ref.UserID,
		LessonID:            ref.LessonID,
		Day:                 script.Day,
		Lesson:              script.Lesson,
		Level:               script.Level,
		CurrentStepSnapshot: step.Ptr(),
		Completed:           completed,
		UpdatedAt:           s.now(),
	}
	session.setProgressStatus(domain.SavePending)
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
		if err := s.progress.UpsertProgress(ctx, progress); err != nil {
			session.setProgressStatus(domain.SaveFailed)
			s.metrics.PersistenceFailures.WithLabelValues("progress").Inc()
			s.log.Warn("upsert progress", zap.String("session", session.Key()), zap.Error(err))
			return
		}
		session.setProgressStatus(domain.SaveSaved)
	}()
}

// Flush waits for background persistence to finish.
func (s *LessonService) Flush() {
	s.pending.Wait()
}

// Subscribe returns a channel that receives snapshots of a lesson session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LessonService) Subscribe(_ context.Context, ref domain.LessonRef) (<-chan Snapshot, func(), error) {
	session, ok := s.sessions.Get(ref.Key())
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Leave drops the session once nobody watches it. History stays in the message store.
func (s *LessonService) Leave(_ context.Context, ref domain.LessonRef) {
	session, ok := s.sessions.Get(ref.Key())
	if !ok {
		return
	}
	if session.IsEmpty() {
		session.close()
		s.sessions.DeleteIfEmpty(ref.Key())
	}
}

// ReconcileEcho merges a message echoed by the store into the session without duplicating it.
// It reports whether the echo was a new message.
func (s *LessonService) ReconcileEcho(ref domain.LessonRef, msg domain.ChatMessage) (bool, error) {
	session, ok := s.sessions.Get(ref.Key())
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	return session.reconcile(msg), nil
}

// UpdateUIState records a client-side draft and fans out the merged state.
func (s *LessonService) UpdateUIState(_ context.Context, ref domain.LessonRef, update UIUpdate) (uistate.Snapshot, error) {
	session, ok := s.sessions.Get(ref.Key())
	if !ok {
		return uistate.Snapshot{}, domain.ErrSessionNotFound
	}
	if err := update.Validate(); err != nil {
		return uistate.Snapshot{}, err
	}
	switch {
	case update.Drill != nil:
		session.ui.Drills.SetDraft(update.Key, *update.Drill)
	case update.Constructor != nil:
		session.ui.Constructors.SetDraft(update.Key, *update.Constructor)
	case update.Choice != nil:
		session.ui.Choices.SetDraft(update.Key, *update.Choice)
	}
	return session.broadcast().UIState, nil
}

// TaskKey resolves the UI state key of the exercise rendered by message messageID.
func (s *LessonService) TaskKey(ref domain.LessonRef, messageID string, want domain.StepType) (string, error) {
	session, ok := s.sessions.Get(ref.Key())
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	for _, m := range session.snapshot().Messages {
		if m.ID == messageID {
			key, _ := uistate.TaskKey(session.lessonScript(), m, want)
			return key, nil
		}
	}
	return "", domain.ErrMessageNotFound
}
