package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dialogue-lesson-service/internal/app"
	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := app.NewLessonService(app.Dependencies{
		Sessions: memory.NewSessionStore(),
		Scripts:  memory.NewScriptRepository(memory.NewStaticScriptLoader(sampleScripts()), time.Minute),
		Messages: memory.NewMessageStore(),
		Progress: memory.NewProgressStore(),
	})
	wsHandler := NewWSHandler(service, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketLessonFlow(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "lessonId=lesson-1&userId=u1&lang=en")

	started := readUntil(t, conn, "started")
	if started["lessonId"] != "lesson-1" {
		t.Fatalf("expected started snapshot for lesson-1, got %v", started)
	}

	if err := conn.WriteJSON(map[string]any{"type": "continue"}); err != nil {
		t.Fatalf("write continue: %v", err)
	}
	result := readUntil(t, conn, "result")
	if result["advanced"] != true {
		t.Fatalf("expected vocabulary to advance, got %v", result)
	}
	step, _ := result["step"].(map[string]any)
	if step["type"] != string(domain.StepFindTheMistake) {
		t.Fatalf("expected find_the_mistake step, got %v", step)
	}

	if err := conn.WriteJSON(map[string]any{"type": "choice", "payload": map[string]any{"choice": "b"}}); err != nil {
		t.Fatalf("write choice: %v", err)
	}
	result = readUntil(t, conn, "result")
	if result["isCorrect"] != true || result["completed"] != true {
		t.Fatalf("expected correct final choice to complete the lesson, got %v", result)
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "lessonId=lesson-1&userId=u2")
	readUntil(t, conn, "started")

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload := readUntil(t, conn, "error")
	if payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error payload: %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "choice", "payload": map[string]any{"choice": "c"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload = readUntil(t, conn, "error")
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "choice") {
		t.Fatalf("expected validation message about choice, got %v", payload)
	}
}

func TestWebSocketUnknownLesson(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "lessonId=missing&userId=u1")

	payload := readUntil(t, conn, "error")
	if msg, _ := payload["message"].(string); !strings.Contains(msg, domain.ErrScriptNotFound.Error()) {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestWebSocketRequiresParams(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws?lessonId=lesson-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestClientMessageHidesInternalErrors(t *testing.T) {
	if got := clientMessage(errors.New("dial tcp 10.0.0.1:5432: refused")); got != "internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := clientMessage(fmt.Errorf("wrap: %w", domain.ErrSessionNotFound)); !strings.Contains(got, domain.ErrSessionNotFound.Error()) {
		t.Fatalf("expected session error to pass through, got %q", got)
	}
}

func TestDeliverStopsWhenWriterIsGone(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})

	if !deliver(send, writerDone, errorMessage("first")) {
		t.Fatalf("expected message queued while writer runs")
	}

	close(writerDone)
	result := make(chan bool, 1)
	go func() { result <- deliver(send, writerDone, errorMessage("second")) }()

	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected delivery to fail after writer stopped")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("deliver blocked on a full buffer after writer stopped")
	}
}

// readUntil reads messages until one of type expect arrives and returns its payload.
func readUntil(t *testing.T, conn *websocket.Conn, expect string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if msg.Type == expect {
			return msg.Payload
		}
	}
	t.Fatalf("no %s message received", expect)
	return nil
}

func sampleScripts() map[string]domain.LessonScript {
	return map[string]domain.LessonScript{
		"lesson-1": {
			ID: "lesson-1",
			Vocabulary: []domain.VocabularyCard{{Words: []domain.VocabularyWord{
				{Word: "coffee", Translation: "кофе"},
			}}},
			FindTheMistake: []domain.FindTheMistakeTask{{
				Options: []string{"She don't like coffee.", "She doesn't like coffee."},
				Answer:  "B",
			}},
		},
	}
}
