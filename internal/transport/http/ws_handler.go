package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dialogue-lesson-service/internal/app"
	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/lesson"
	"dialogue-lesson-service/internal/logging"
)

type WSHandler struct {
	service  *app.LessonService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.LessonService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type taskKeyPayload struct {
	MessageID string          `json:"messageId"`
	StepType  domain.StepType `json:"stepType"`
}

type taskKeyResult struct {
	MessageID string `json:"messageId"`
	Key       string `json:"key"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// submissionKinds maps inbound message types onto learner actions.
var submissionKinds = map[string]lesson.OutcomeKind{
	"answer":   lesson.OutcomeAnswer,
	"choice":   lesson.OutcomeChoice,
	"continue": lesson.OutcomeContinue,
	"skip":     lesson.OutcomeSkip,
}

// ServeWS upgrades HTTP requests to websockets and wires them into the lesson use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ref := domain.LessonRef{
		LessonID: r.URL.Query().Get("lessonId"),
		UserID:   r.URL.Query().Get("userId"),
		UILang:   r.URL.Query().Get("lang"),
	}
	if ref.LessonID == "" || ref.UserID == "" {
		http.Error(w, "missing lessonId or userId", http.StatusBadRequest)
		return
	}
	log := h.log.With(logging.Lesson(ref.LessonID, ref.UserID)...)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	started, err := h.service.StartLesson(r.Context(), ref)
	if err != nil {
		log.Warn("start lesson failed", zap.Error(err))
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: clientMessage(err)}})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), ref)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: clientMessage(err)}})
		return
	}
	defer h.service.Leave(r.Context(), ref)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				// Unblocks the read loop.
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "started", Payload: started}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !deliver(send, writerDone, h.dispatch(r, ref, log, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, ref domain.LessonRef, log *zap.Logger, inbound inboundMessage) outboundMessage[any] {
	if kind, ok := submissionKinds[inbound.Type]; ok {
		var sub app.Submission
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &sub); err != nil {
				return errorMessage("invalid " + inbound.Type + " payload")
			}
		}
		sub.Kind = kind
		result, err := h.service.HandleStudentAnswer(r.Context(), ref, sub)
		if err != nil {
			log.Warn("submission failed", zap.String("type", inbound.Type), zap.Error(err))
			return errorMessage(clientMessage(err))
		}
		return outboundMessage[any]{Type: "result", Payload: result}
	}

	switch inbound.Type {
	case "ui_state":
		var update app.UIUpdate
		if err := json.Unmarshal(inbound.Payload, &update); err != nil {
			return errorMessage("invalid ui_state payload")
		}
		state, err := h.service.UpdateUIState(r.Context(), ref, update)
		if err != nil {
			return errorMessage(clientMessage(err))
		}
		return outboundMessage[any]{Type: "ui_state", Payload: state}
	case "task_key":
		var payload taskKeyPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage("invalid task_key payload")
		}
		key, err := h.service.TaskKey(ref, payload.MessageID, payload.StepType)
		if err != nil {
			return errorMessage(clientMessage(err))
		}
		return outboundMessage[any]{Type: "task_key", Payload: taskKeyResult{MessageID: payload.MessageID, Key: key}}
	}
	return errorMessage("unsupported message type")
}

// deliver queues msg for the writer and reports false once the writer has stopped.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// clientMessage hides internal failures behind a generic message.
func clientMessage(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, domain.ErrScriptNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		return err.Error()
	}
	return "internal error"
}
