package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"dialogue-lesson-service/internal/domain"
)

// MessageStore keeps chat logs in memory and echoes every append to subscribers of the session key.
type MessageStore struct {
	mu      sync.RWMutex
	logs    map[string][]domain.ChatMessage
	subs    map[string]map[int]func(domain.ChatMessage)
	nextSub int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		logs: make(map[string][]domain.ChatMessage),
		subs: make(map[string]map[int]func(domain.ChatMessage)),
	}
}

func (s *MessageStore) AppendMessage(ctx context.Context, key string, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChatMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SaveStatus = domain.SaveSaved

	s.mu.Lock()
	s.logs[key] = append(s.logs[key], msg)
	listeners := make([]func(domain.ChatMessage), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
	return msg, nil
}

func (s *MessageStore) ListMessages(_ context.Context, key string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	out := make([]domain.ChatMessage, len(s.logs[key]))
	copy(out, s.logs[key])
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].MessageOrder < out[j].MessageOrder })
	return out, nil
}

func (s *MessageStore) Subscribe(_ context.Context, key string, onMessage func(domain.ChatMessage)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(domain.ChatMessage))
	}
	s.subs[key][id] = onMessage

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
		if len(s.subs[key]) == 0 {
			delete(s.subs, key)
		}
	}, nil
}

// ProgressStore keeps lesson progress in memory.
type ProgressStore struct {
	mu       sync.RWMutex
	progress map[string]domain.Progress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{progress: make(map[string]domain.Progress)}
}

func (s *ProgressStore) UpsertProgress(ctx context.Context, p domain.Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.UserID + ":" + p.LessonID
	// A completed lesson stays completed.
	if prev, ok := s.progress[key]; ok && prev.Completed {
		p.Completed = true
	}
	s.progress[key] = p
	return nil
}

// Get returns the stored progress of userID in lessonID.
func (s *ProgressStore) Get(userID, lessonID string) (domain.Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[userID+":"+lessonID]
	return p, ok
}
