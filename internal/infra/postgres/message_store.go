package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"dialogue-lesson-service/internal/domain"
)

// EchoChannel is the LISTEN/NOTIFY channel carrying persisted chat messages.
const EchoChannel = "lesson_echo"

// MessageStore keeps chat logs in the chat_messages table and notifies listeners on every insert.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

type echoEnvelope struct {
	Key     string             `json:"key"`
	Message domain.ChatMessage `json:"message"`
}

func (s *MessageStore) AppendMessage(ctx context.Context, key string, msg domain.ChatMessage) (domain.ChatMessage, error) {
	step, err := json.Marshal(msg.CurrentStepSnapshot)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("encode step: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO chat_messages (session_key, role, kind, text, step, message_order, awaiting_continue, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
		 RETURNING id::text, created_at`,
		key, string(msg.Role), string(msg.Kind), msg.Text, string(step), msg.MessageOrder, msg.AwaitingContinue, msg.CreatedAt,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("insert message: %w", err)
	}
	msg.SaveStatus = domain.SaveSaved

	payload, err := json.Marshal(echoEnvelope{Key: key, Message: msg})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("encode echo: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, EchoChannel, string(payload)); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListMessages(ctx context.Context, key string) ([]domain.ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, role, kind, text, step, message_order, awaiting_continue, created_at
		 FROM chat_messages WHERE session_key=$1 ORDER BY message_order, id`, key)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var (
			msg        domain.ChatMessage
			role, kind string
			step       []byte
		)
		if err := rows.Scan(&msg.ID, &role, &kind, &msg.Text, &step, &msg.MessageOrder, &msg.AwaitingContinue, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.Kind = domain.MessageKind(kind)
		msg.SaveStatus = domain.SaveSaved
		if len(step) > 0 && string(step) != "null" {
			var p domain.StepPointer
			if err := json.Unmarshal(step, &p); err != nil {
				return nil, fmt.Errorf("decode step: %w", err)
			}
			msg.CurrentStepSnapshot = &p
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Subscribe holds a pooled connection in LISTEN mode and forwards echoes for key until the returned
// function is called.
func (s *MessageStore) Subscribe(ctx context.Context, key string, onMessage func(domain.ChatMessage)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+EchoChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				return
			}
			var env echoEnvelope
			if err := json.Unmarshal([]byte(n.Payload), &env); err != nil || env.Key != key {
				continue
			}
			onMessage(env.Message)
		}
	}()

	return func() {
		cancel()
		<-done
		// The connection is closed rather than reused since it may still be listening.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}, nil
}
