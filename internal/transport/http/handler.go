package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
)

// Handler exposes the JSON admin and play API. Caller identity arrives in the
// X-User-ID header; authentication itself sits in front of this service.
type Handler struct {
	rounds   *app.RoundService
	matches  *app.MatchService
	brackets *app.BracketService
}

func NewHandler(rounds *app.RoundService, matches *app.MatchService, brackets *app.BracketService) *Handler {
	return &Handler{rounds: rounds, matches: matches, brackets: brackets}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /games/{gameID}/join", h.joinGame)

	mux.HandleFunc("POST /rounds", h.saveRound)
	mux.HandleFunc("POST /rounds/{roundID}/schedule", h.scheduleRound)
	mux.HandleFunc("POST /rounds/{roundID}/stop", h.stopRound)
	mux.HandleFunc("DELETE /rounds/{roundID}", h.deleteRound)

	mux.HandleFunc("GET /matches/{matchID}/questions/{number}", h.matchQuestion)
	mux.HandleFunc("POST /questions/{questionID}/answer", h.answerQuestion)
	mux.HandleFunc("POST /questions/{questionID}/cancel", h.cancelQuestion)

	mux.HandleFunc("POST /tournaments", h.createTournament)
	mux.HandleFunc("PUT /tournaments/{tournamentID}/topics", h.saveTopics)
	mux.HandleFunc("PUT /tournaments/{tournamentID}/seeds", h.seedMatches)
	mux.HandleFunc("POST /tournaments/{tournamentID}/publish", h.publishTournament)
	mux.HandleFunc("POST /tournaments/{tournamentID}/state", h.setTournamentState)
	mux.HandleFunc("GET /tournaments/{tournamentID}/sizing", h.tournamentSizing)
	mux.HandleFunc("POST /pairings/{matchID}/topics/{topicID}/question", h.bracketQuestion)
	mux.HandleFunc("POST /pairings/{matchID}/winner", h.setPairingWinner)
	mux.HandleFunc("POST /bracket-questions/{questionID}/answer", h.answerBracketQuestion)
}

func (h *Handler) joinGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := pathID(w, r, "gameID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.rounds.JoinGame(r.Context(), gameID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type saveRoundRequest struct {
	RoundID int64              `json:"roundId"`
	GameID  int64              `json:"gameId"`
	Name    string             `json:"name"`
	Added   []*domain.Category `json:"addedCategories"`
	Removed []int64            `json:"removedCategories"`
}

func (h *Handler) saveRound(w http.ResponseWriter, r *http.Request) {
	var req saveRoundRequest
	if !readJSON(w, r, &req) {
		return
	}
	round, err := h.rounds.SaveRound(r.Context(), req.RoundID, req.GameID, req.Name, req.Added, req.Removed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

type scheduleRequest struct {
	TimeStart int64 `json:"timeStart"`
	TimeEnd   int64 `json:"timeEnd"`
}

func (h *Handler) scheduleRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "roundID")
	if !ok {
		return
	}
	var req scheduleRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.rounds.ScheduleRound(r.Context(), roundID, req.TimeStart, req.TimeEnd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) stopRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "roundID")
	if !ok {
		return
	}
	if err := h.rounds.StopRound(r.Context(), roundID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) deleteRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "roundID")
	if !ok {
		return
	}
	if err := h.rounds.DeleteRound(r.Context(), roundID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) matchQuestion(w http.ResponseWriter, r *http.Request) {
	matchID, ok := pathID(w, r, "matchID")
	if !ok {
		return
	}
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		http.Error(w, "invalid question number", http.StatusBadRequest)
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	question, err := h.matches.GetOrCreateQuestion(r.Context(), userID, matchID, number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

type answerRequest struct {
	AnswerID int64 `json:"answerId"`
}

func (h *Handler) answerQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !readJSON(w, r, &req) {
		return
	}
	question, err := h.matches.SubmitAnswer(r.Context(), userID, questionID, req.AnswerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (h *Handler) cancelQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	question, err := h.matches.CancelAnswer(r.Context(), userID, questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

type createTournamentRequest struct {
	GameID int64  `json:"gameId"`
	Name   string `json:"name"`
}

func (h *Handler) createTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if !readJSON(w, r, &req) {
		return
	}
	t, err := h.brackets.CreateTournament(r.Context(), req.GameID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) saveTopics(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := pathID(w, r, "tournamentID")
	if !ok {
		return
	}
	var topics []*domain.TournamentTopic
	if !readJSON(w, r, &topics) {
		return
	}
	if err := h.brackets.SaveTopics(r.Context(), tournamentID, topics); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) seedMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := pathID(w, r, "tournamentID")
	if !ok {
		return
	}
	var matches []*domain.TournamentMatch
	if !readJSON(w, r, &matches) {
		return
	}
	if err := h.brackets.SeedMatches(r.Context(), tournamentID, matches); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) publishTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := pathID(w, r, "tournamentID")
	if !ok {
		return
	}
	if err := h.brackets.Publish(r.Context(), tournamentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type stateRequest struct {
	State domain.TournamentState `json:"state"`
}

func (h *Handler) setTournamentState(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := pathID(w, r, "tournamentID")
	if !ok {
		return
	}
	var req stateRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.brackets.SetState(r.Context(), tournamentID, req.State); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) tournamentSizing(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := pathID(w, r, "tournamentID")
	if !ok {
		return
	}
	participants, steps, err := h.brackets.Sizing(r.Context(), tournamentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"participants": participants,
		"totalSteps":   steps,
	})
}

func (h *Handler) bracketQuestion(w http.ResponseWriter, r *http.Request) {
	matchID, ok := pathID(w, r, "matchID")
	if !ok {
		return
	}
	topicID, ok := pathID(w, r, "topicID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	question, err := h.brackets.RequestQuestion(r.Context(), userID, matchID, topicID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

type winnerRequest struct {
	Winner int64 `json:"winner"`
}

func (h *Handler) setPairingWinner(w http.ResponseWriter, r *http.Request) {
	matchID, ok := pathID(w, r, "matchID")
	if !ok {
		return
	}
	var req winnerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.brackets.SetPairingWinner(r.Context(), matchID, req.Winner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) answerBracketQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !readJSON(w, r, &req) {
		return
	}
	question, err := h.brackets.SubmitAnswer(r.Context(), userID, questionID, req.AnswerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "missing or invalid X-User-ID header", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrPoolExhausted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotParticipant):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
