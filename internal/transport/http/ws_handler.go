package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// WSHandler exposes the session engine over a websocket: the client
// drives the game with start/next/answer/cancel messages and receives
// question, summary, answerResult and error frames.
type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
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

type startPayload struct {
	Fresh bool `json:"fresh"`
}

type answerPayload struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the per-connection message loop.
// The connection carries no game state: every message round-trips
// through the session store, so a reconnect resumes where the player
// left off.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("userId")
	ruleSet := r.URL.Query().Get("ruleSet")
	if player == "" || ruleSet == "" {
		http.Error(w, "missing userId or ruleSet", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					h.writeError(conn, "invalid start payload")
					continue
				}
			}
			h.writeProgress(ctx, conn, player, ruleSet, payload.Fresh)
		case "next":
			h.writeProgress(ctx, conn, player, ruleSet, false)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				h.writeError(conn, "invalid answer payload")
				continue
			}
			result, err := h.service.SubmitAnswer(ctx, player, ruleSet, payload.QuestionID, payload.Answer)
			if err != nil {
				h.writeError(conn, clientMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[domain.AnswerResult]{Type: "answerResult", Payload: result})
		case "cancel":
			if err := h.service.Cancel(ctx, player, ruleSet); err != nil {
				h.writeError(conn, clientMessage(err))
				continue
			}
			_ = conn.WriteJSON(outboundMessage[struct{}]{Type: "canceled"})
		default:
			h.writeError(conn, "unsupported message type")
		}
	}
}

func (h *WSHandler) writeProgress(ctx context.Context, conn *websocket.Conn, player, ruleSet string, fresh bool) {
	progress, err := h.service.StartOrResume(ctx, player, ruleSet, fresh)
	if err != nil {
		h.writeError(conn, clientMessage(err))
		return
	}
	if progress.Summary != nil {
		_ = conn.WriteJSON(outboundMessage[*domain.SessionSummary]{Type: "summary", Payload: progress.Summary})
		return
	}
	_ = conn.WriteJSON(outboundMessage[*domain.NextQuestion]{Type: "question", Payload: progress.Question})
}

func (h *WSHandler) writeError(conn *websocket.Conn, message string) {
	_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: message}})
}

// clientMessage maps the error taxonomy to client-facing text. Only
// configuration and validation errors carry detail; anything else is
// reported generically.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRuleSetNotFound), errors.Is(err, domain.ErrInvalidRuleSet):
		return "no such quiz"
	case errors.Is(err, domain.ErrQuestionNotFound):
		return "bad request: unknown question"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "no game in progress"
	default:
		log.Printf("ws request failed: %v", err)
		return "internal error"
	}
}
