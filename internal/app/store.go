package app

import (
	"context"

	"arena-quiz-service/internal/domain"
)

// GameStore reads game configuration.
type GameStore interface {
	Game(ctx context.Context, id int64) (*domain.Game, error)
	CreateGame(ctx context.Context, game *domain.Game) error
}

// RoundStore persists rounds. Listings exclude deleted rounds and are ordered
// by number.
type RoundStore interface {
	Round(ctx context.Context, id int64) (*domain.Round, error)
	RoundsByGame(ctx context.Context, gameID int64) ([]*domain.Round, error)
	RoundsByState(ctx context.Context, state domain.RoundState) ([]*domain.Round, error)
	CreateRound(ctx context.Context, round *domain.Round) error
	UpdateRound(ctx context.Context, round *domain.Round) error
}

// CategoryStore persists the question-pool selectors of a game.
type CategoryStore interface {
	Category(ctx context.Context, id int64) (*domain.Category, error)
	CategoriesByGame(ctx context.Context, gameID int64) ([]*domain.Category, error)
	CreateCategory(ctx context.Context, category *domain.Category) error
	UpdateCategory(ctx context.Context, category *domain.Category) error
	DeleteCategory(ctx context.Context, id int64) error
}

// MatchStore persists round matches. FinishMatch applies the winner with a
// compare-and-swap against an open match and reports whether this call won
// the write; the losing caller of a concurrent finish must treat false as a
// no-op and re-read.
type MatchStore interface {
	Match(ctx context.Context, id int64) (*domain.Match, error)
	MatchesByRound(ctx context.Context, roundID int64) ([]*domain.Match, error)
	CreateMatch(ctx context.Context, match *domain.Match) error
	UpdateMatch(ctx context.Context, match *domain.Match) error
	FinishMatch(ctx context.Context, id, winner int64, score int) (bool, error)
}

// QuestionStore persists match questions. CreateQuestionIfAbsent is keyed on
// (match, number): under a duplicate-create race it returns the row that won.
type QuestionStore interface {
	Question(ctx context.Context, id int64) (*domain.MatchQuestion, error)
	QuestionByNumber(ctx context.Context, matchID int64, number int) (*domain.MatchQuestion, error)
	QuestionsByMatch(ctx context.Context, matchID int64) ([]*domain.MatchQuestion, error)
	CreateQuestionIfAbsent(ctx context.Context, question *domain.MatchQuestion) (*domain.MatchQuestion, error)
	UpdateQuestion(ctx context.Context, question *domain.MatchQuestion) error
}

// AttemptStore appends immutable attempt audit records.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// ParticipantStore manages the pairing pool of a game.
type ParticipantStore interface {
	AddParticipant(ctx context.Context, participant *domain.Participant) error
	ActiveParticipants(ctx context.Context, gameID int64) ([]int64, error)
	DeactivateParticipant(ctx context.Context, gameID, userID int64) error
}

// TournamentStore persists the bracket mode. Replace* calls swap the full set
// while the tournament is unpublished; CreateTournamentQuestionIfAbsent is
// keyed on (match, topic, user) with the same race contract as match
// questions; SetTournamentMatchWinner is a compare-and-swap against an open
// pairing.
type TournamentStore interface {
	Tournament(ctx context.Context, id int64) (*domain.Tournament, error)
	TournamentsByState(ctx context.Context, state domain.TournamentState) ([]*domain.Tournament, error)
	CreateTournament(ctx context.Context, tournament *domain.Tournament) error
	UpdateTournament(ctx context.Context, tournament *domain.Tournament) error

	Topic(ctx context.Context, id int64) (*domain.TournamentTopic, error)
	Topics(ctx context.Context, tournamentID int64) ([]*domain.TournamentTopic, error)
	ReplaceTopics(ctx context.Context, tournamentID int64, topics []*domain.TournamentTopic) error

	TournamentMatch(ctx context.Context, id int64) (*domain.TournamentMatch, error)
	TournamentMatchesByStep(ctx context.Context, tournamentID int64, step int) ([]*domain.TournamentMatch, error)
	ReplaceSeedMatches(ctx context.Context, tournamentID int64, matches []*domain.TournamentMatch) error
	CreateTournamentMatch(ctx context.Context, match *domain.TournamentMatch) error
	SetTournamentMatchWinner(ctx context.Context, id, winner int64) (bool, error)

	TournamentQuestion(ctx context.Context, id int64) (*domain.TournamentQuestion, error)
	TournamentQuestionsByMatch(ctx context.Context, matchID int64) ([]*domain.TournamentQuestion, error)
	CreateTournamentQuestionIfAbsent(ctx context.Context, question *domain.TournamentQuestion) (*domain.TournamentQuestion, error)
	UpdateTournamentQuestion(ctx context.Context, question *domain.TournamentQuestion) error
}

// MessageStore is the notification outbox. ClaimMessages moves a batch of
// undelivered messages to progress so a re-run of a partially completed
// delivery pass cannot double-send anything already marked sent.
type MessageStore interface {
	EnqueueMessage(ctx context.Context, message *domain.Message) error
	HasMessage(ctx context.Context, typ domain.MessageType, userID, matchID int64) (bool, error)
	ClaimMessages(ctx context.Context, limit int) ([]*domain.Message, error)
	MarkMessageSent(ctx context.Context, id int64) error
	ReleaseMessage(ctx context.Context, id int64) error
}

// Store aggregates the full persistence surface for wiring.
type Store interface {
	GameStore
	RoundStore
	CategoryStore
	MatchStore
	QuestionStore
	AttemptStore
	ParticipantStore
	TournamentStore
	MessageStore
}
