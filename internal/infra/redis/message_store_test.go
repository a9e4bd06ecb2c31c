package redis

import (
	"context"
	"testing"
	"time"

	"dialogue-lesson-service/internal/domain"
)

func TestMessageStoreAppendAndList(t *testing.T) {
	_, client := newClient(t)
	store := NewMessageStore(client, time.Hour)
	ctx := context.Background()

	second, err := store.AppendMessage(ctx, "u:l", domain.ChatMessage{Role: domain.RoleUser, Text: "hello", MessageOrder: 2})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.ID == "" || second.SaveStatus != domain.SaveSaved {
		t.Fatalf("expected id and saved status, got %+v", second)
	}
	if _, err := store.AppendMessage(ctx, "u:l", domain.ChatMessage{ID: "m1", Role: domain.RoleModel, Text: "hi", MessageOrder: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := store.ListMessages(ctx, "u:l")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].Text != "hello" {
		t.Fatalf("expected messages sorted by order, got %+v", msgs)
	}

	other, err := store.ListMessages(ctx, "u:other")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty log, got %v %v", other, err)
	}
}

func TestMessageStoreSubscribeReceivesEchoes(t *testing.T) {
	_, client := newClient(t)
	store := NewMessageStore(client, time.Hour)
	ctx := context.Background()

	echoes := make(chan domain.ChatMessage, 4)
	unsubscribe, err := store.Subscribe(ctx, "u:l", func(msg domain.ChatMessage) { echoes <- msg })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	saved, err := store.AppendMessage(ctx, "u:l", domain.ChatMessage{Role: domain.RoleUser, Text: "hello", MessageOrder: 1})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case echo := <-echoes:
		if echo.ID != saved.ID || echo.Text != "hello" {
			t.Fatalf("unexpected echo: %+v", echo)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for echo")
	}

	unsubscribe()
	unsubscribe()
}
