package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dialogue-lesson-service/internal/domain"
)

// MessageStore keeps each chat log in a Redis list and publishes every append for realtime echoes.
//
//	RPUSH   lesson:messages:{key} {json}
//	PUBLISH lesson:echo:{key}     {json}
type MessageStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMessageStore(client *redis.Client, ttl time.Duration) *MessageStore {
	return &MessageStore{client: client, ttl: ttl}
}

func (s *MessageStore) AppendMessage(ctx context.Context, key string, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SaveStatus = domain.SaveSaved
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("encode message: %w", err)
	}

	listKey := s.listKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listKey, raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, listKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("append message: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel(key), raw).Err(); err != nil {
		return msg, fmt.Errorf("publish message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListMessages(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	items, err := s.client.LRange(ctx, s.listKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]domain.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MessageOrder < out[j].MessageOrder })
	return out, nil
}

// Subscribe delivers echoes published for key until the returned function is called.
func (s *MessageStore) Subscribe(ctx context.Context, key string, onMessage func(domain.ChatMessage)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	done := make(chan struct{})
	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case <-done:
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg domain.ChatMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				onMessage(msg)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}, nil
}

func (s *MessageStore) listKey(key string) string {
	return "lesson:messages:" + key
}

func (s *MessageStore) channel(key string) string {
	return "lesson:echo:" + key
}
