package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
)

func TestWebSocketPlayFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	provider := memory.NewProvider()

	game := &domain.Game{Name: "daily", QuestionsPerRound: 1, QuestionSeconds: 30}
	if err := store.CreateGame(ctx, game); err != nil {
		t.Fatalf("create game: %v", err)
	}
	round := &domain.Round{
		GameID:    game.ID,
		Number:    1,
		State:     domain.RoundActive,
		TimeStart: time.Now().Unix() - 60,
		TimeEnd:   time.Now().Unix() + 3600,
		Questions: 1,
	}
	if err := store.CreateRound(ctx, round); err != nil {
		t.Fatalf("create round: %v", err)
	}
	if err := store.CreateCategory(ctx, &domain.Category{GameID: game.ID, BankCategoryID: 7, RoundFirst: 1}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	match := &domain.Match{RoundID: round.ID, User1: 11, User2: 22}
	if err := store.CreateMatch(ctx, match); err != nil {
		t.Fatalf("create match: %v", err)
	}
	provider.AddQuestion(7, content.BankQuestion{
		ID:      501,
		Answers: []content.BankAnswer{{ID: 1, Correct: true}, {ID: 2}},
	})

	wsHandler := NewWSHandler(app.NewMatchService(store, provider))
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?userId=11"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"type":    "question",
		"payload": map[string]any{"matchId": match.ID, "number": 1},
	}); err != nil {
		t.Fatalf("write question: %v", err)
	}
	typ, payload := readNext(conn, t, "question")
	if typ != "question" {
		t.Fatalf("expected question, got %s", typ)
	}
	questionID := int64(payload["id"].(float64))

	if err := conn.WriteJSON(map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": questionID, "answerId": 1},
	}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, payload = readNext(conn, t, "answerResult")
	if correct, _ := payload["correct1"].(bool); !correct {
		t.Fatalf("expected correct answer, payload %v", payload)
	}

	// Answering again surfaces an error frame, not a dropped connection.
	if err := conn.WriteJSON(map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": questionID, "answerId": 2},
	}); err != nil {
		t.Fatalf("write second answer: %v", err)
	}
	readNext(conn, t, "error")
}

func TestWebSocketRejectsMissingIdentity(t *testing.T) {
	wsHandler := NewWSHandler(app.NewMatchService(memory.NewStore(), memory.NewProvider()))
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without userId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake rejection, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	var payload map[string]any
	_ = json.Unmarshal(msg.Payload, &payload)
	return msg.Type, payload
}
