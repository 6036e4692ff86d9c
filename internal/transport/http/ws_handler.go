package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"arena-quiz-service/internal/app"
)

// WSHandler serves match play over a websocket: the client fetches questions
// and submits answers without re-authenticating per request.
type WSHandler struct {
	matches  *app.MatchService
	upgrader websocket.Upgrader
}

func NewWSHandler(matches *app.MatchService) *WSHandler {
	return &WSHandler{
		matches: matches,
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

type questionPayload struct {
	MatchID int64 `json:"matchId"`
	Number  int   `json:"number"`
}

type wsAnswerPayload struct {
	QuestionID int64 `json:"questionId"`
	AnswerID   int64 `json:"answerId"`
}

type cancelPayload struct {
	QuestionID int64 `json:"questionId"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and runs the play loop. Identity comes from
// the userId query parameter; all writes go through a single writer goroutine
// so concurrent sends never interleave on the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "question":
			var payload questionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid question payload")
				continue
			}
			question, err := h.matches.GetOrCreateQuestion(r.Context(), userID, payload.MatchID, payload.Number)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			send <- outboundMessage{Type: "question", Payload: question}
		case "answer":
			var payload wsAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			question, err := h.matches.SubmitAnswer(r.Context(), userID, payload.QuestionID, payload.AnswerID)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			send <- outboundMessage{Type: "answerResult", Payload: question}
		case "cancel":
			var payload cancelPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid cancel payload")
				continue
			}
			question, err := h.matches.CancelAnswer(r.Context(), userID, payload.QuestionID)
			if err != nil {
				send <- errorMessage(err.Error())
				continue
			}
			send <- outboundMessage{Type: "answerResult", Payload: question}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(send)
	<-writerDone
}

func errorMessage(message string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: message}}
}
