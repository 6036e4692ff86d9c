package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

// MatchService owns a single 1v1 match: question creation, answer
// application and winner determination.
type MatchService struct {
	store    Store
	provider content.Provider
	selector *Selector
	now      func() time.Time
}

func NewMatchService(store Store, provider content.Provider) *MatchService {
	return &MatchService{
		store:    store,
		provider: provider,
		selector: NewSelector(provider),
		now:      time.Now,
	}
}

// NewMatchServiceWithClock is test-only for deterministic timestamps.
func NewMatchServiceWithClock(store Store, provider content.Provider, now func() time.Time) *MatchService {
	s := NewMatchService(store, provider)
	s.now = now
	return s
}

// GetOrCreateQuestion returns the question at a match position, creating and
// seeding it on first fetch. Repeated fetches return the identical question:
// same bank question, same answer order. The caller's view time is stamped on
// their first fetch and a "viewed" attempt is recorded.
func (s *MatchService) GetOrCreateQuestion(ctx context.Context, callerID, matchID int64, number int) (*domain.MatchQuestion, error) {
	match, err := s.store.Match(ctx, matchID)
	if err != nil {
		return nil, err
	}
	slot := match.Slot(callerID)
	if slot == 0 {
		return nil, domain.ErrNotParticipant
	}
	round, err := s.store.Round(ctx, match.RoundID)
	if err != nil {
		return nil, err
	}
	if round.State != domain.RoundActive {
		return nil, fmt.Errorf("round %d is %s: %w", round.ID, round.State, domain.ErrInvalidState)
	}
	if number < 1 || number > round.Questions {
		return nil, fmt.Errorf("position %d out of 1..%d: %w", number, round.Questions, domain.ErrValidation)
	}

	question, err := s.store.QuestionByNumber(ctx, matchID, number)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if question == nil {
		question, err = s.createQuestion(ctx, round, matchID, number)
		if err != nil {
			return nil, err
		}
	}

	if !question.SideStarted(slot) && !question.SideFinished(slot) {
		now := s.now().Unix()
		question.MarkStarted(slot, now)
		if err := s.store.UpdateQuestion(ctx, question); err != nil {
			return nil, err
		}
		attempt := &domain.Attempt{
			QuestionID: question.ID,
			MatchID:    matchID,
			UserID:     callerID,
			CreatedAt:  now,
		}
		if err := s.store.CreateAttempt(ctx, attempt); err != nil {
			return nil, err
		}
		match.LastProgress = now
		if err := s.store.UpdateMatch(ctx, match); err != nil {
			return nil, err
		}
	}
	return question, nil
}

func (s *MatchService) createQuestion(ctx context.Context, round *domain.Round, matchID int64, number int) (*domain.MatchQuestion, error) {
	game, err := s.store.Game(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.CategoriesByGame(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	bank, err := s.selector.PickForRound(ctx, categories, round.Number)
	if err != nil {
		return nil, err
	}
	question := &domain.MatchQuestion{
		MatchID:        matchID,
		Number:         number,
		BankQuestionID: bank.ID,
		AnswerOrder:    s.selector.FixOrder(bank, game.ShuffleAnswers),
	}
	// Under a duplicate-fetch race the store hands back the row that won.
	return s.store.CreateQuestionIfAbsent(ctx, question)
}

// SubmitAnswer applies the caller's answer to a question, scores it and, if
// this completes the match, determines the winner.
func (s *MatchService) SubmitAnswer(ctx context.Context, callerID, questionID, answerID int64) (*domain.MatchQuestion, error) {
	if answerID <= 0 {
		return nil, fmt.Errorf("answer id must be positive: %w", domain.ErrValidation)
	}
	return s.finalizeSide(ctx, callerID, questionID, answerID)
}

// CancelAnswer force-finalizes the caller's side with zero score, recording
// an explicit skip.
func (s *MatchService) CancelAnswer(ctx context.Context, callerID, questionID int64) (*domain.MatchQuestion, error) {
	return s.finalizeSide(ctx, callerID, questionID, 0)
}

func (s *MatchService) finalizeSide(ctx context.Context, callerID, questionID, answerID int64) (*domain.MatchQuestion, error) {
	question, err := s.store.Question(ctx, questionID)
	if err != nil {
		return nil, err
	}
	match, err := s.store.Match(ctx, question.MatchID)
	if err != nil {
		return nil, err
	}
	slot := match.Slot(callerID)
	if slot == 0 {
		return nil, domain.ErrNotParticipant
	}
	if question.SideFinished(slot) {
		return nil, domain.ErrAlreadyAnswered
	}
	if !question.SideStarted(slot) {
		return nil, fmt.Errorf("question %d not fetched by caller: %w", questionID, domain.ErrInvalidState)
	}
	round, err := s.store.Round(ctx, match.RoundID)
	if err != nil {
		return nil, err
	}
	if round.State != domain.RoundActive {
		return nil, fmt.Errorf("round %d is %s: %w", round.ID, round.State, domain.ErrInvalidState)
	}
	game, err := s.store.Game(ctx, round.GameID)
	if err != nil {
		return nil, err
	}
	bank, err := s.provider.Question(ctx, question.BankQuestionID)
	if err != nil {
		return nil, err
	}
	if answerID != 0 && !containsID(domain.SplitIDs(question.AnswerOrder), answerID) {
		return nil, fmt.Errorf("answer %d does not belong to question %d: %w", answerID, questionID, domain.ErrValidation)
	}

	now := s.now()
	started := time.Unix(question.SideStart(slot), 0)
	correct := answerID != 0 && bank.Correct(answerID)
	points, remaining := domain.Score(correct, started, now, game.QuestionSeconds)

	question.Finalize(slot, answerID, points, correct)
	if err := s.store.UpdateQuestion(ctx, question); err != nil {
		return nil, err
	}
	attempt := &domain.Attempt{
		QuestionID:    question.ID,
		MatchID:       match.ID,
		UserID:        callerID,
		AnswerID:      answerID,
		Score:         points,
		Correct:       correct,
		TimeRemaining: remaining,
		Finished:      true,
		CreatedAt:     now.Unix(),
	}
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	match.LastProgress = now.Unix()
	if err := s.store.UpdateMatch(ctx, match); err != nil {
		return nil, err
	}

	s.notifyOpponentPlayed(ctx, round, match, question, slot)

	if question.Complete() {
		if err := s.tryFinishMatch(ctx, round, match); err != nil {
			return nil, err
		}
	}
	return question, nil
}

// notifyOpponentPlayed nudges the opponent when the caller finished a
// question the opponent has not yet seen. Best-effort; an outbox failure
// must not fail the submission.
func (s *MatchService) notifyOpponentPlayed(ctx context.Context, round *domain.Round, match *domain.Match, question *domain.MatchQuestion, slot int) {
	other := 3 - slot
	if question.SideStarted(other) || question.SideFinished(other) {
		return
	}
	opponent := match.User2
	if other == 1 {
		opponent = match.User1
	}
	_ = s.store.EnqueueMessage(ctx, &domain.Message{
		Type:      domain.MessageOpponentPlayed,
		Status:    domain.MessagePendingStatus,
		UserID:    opponent,
		GameID:    round.GameID,
		RoundID:   round.ID,
		MatchID:   match.ID,
		CreatedAt: s.now().Unix(),
	})
}

// tryFinishMatch determines the winner once every question of the match is
// complete. The finish is a compare-and-swap: under concurrent completion
// exactly one writer applies it and the loser's call is a silent no-op, so
// both callers observe the same final state.
func (s *MatchService) tryFinishMatch(ctx context.Context, round *domain.Round, match *domain.Match) error {
	if match.Finished() {
		return nil
	}
	questions, err := s.store.QuestionsByMatch(ctx, match.ID)
	if err != nil {
		return err
	}
	if len(questions) < round.Questions {
		return nil
	}
	for _, q := range questions {
		if !q.Complete() {
			return nil
		}
	}

	winner, score := decideMatch(match, questions)
	applied, err := s.store.FinishMatch(ctx, match.ID, winner, score)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	now := s.now().Unix()
	for _, userID := range []int64{match.User1, match.User2} {
		_ = s.store.EnqueueMessage(ctx, &domain.Message{
			Type:      domain.MessageMatchFinished,
			Status:    domain.MessagePendingStatus,
			UserID:    userID,
			GameID:    round.GameID,
			RoundID:   round.ID,
			MatchID:   match.ID,
			CreatedAt: now,
		})
	}
	return nil
}

// decideMatch aggregates question outcomes into the match result: more
// question wins first, higher score total second. A full tie resolves to the
// first-listed participant so round matches always terminate with a winner
// (bracket pairings keep the draw explicit instead).
func decideMatch(match *domain.Match, questions []*domain.MatchQuestion) (winner int64, score int) {
	var wins1, wins2, total1, total2 int
	for _, q := range questions {
		total1 += q.Score1
		total2 += q.Score2
		switch q.Outcome() {
		case domain.OutcomeUser1:
			wins1++
		case domain.OutcomeUser2:
			wins2++
		}
	}
	switch domain.ResolveDuel(wins1, wins2, total1, total2) {
	case domain.OutcomeUser2:
		return match.User2, total2
	default:
		return match.User1, total1
	}
}

// ExpireOverdue force-finalizes question sides whose time budget has lapsed
// without an answer (lazy timeout) and completes any matches that became
// decidable. Invoked by the scheduler pass, never by user requests.
func (s *MatchService) ExpireOverdue(ctx context.Context, round *domain.Round, game *domain.Game, now time.Time) error {
	matches, err := s.store.MatchesByRound(ctx, round.ID)
	if err != nil {
		return err
	}
	deadline := now.Unix() - int64(game.QuestionSeconds)
	for _, match := range matches {
		if match.Finished() {
			continue
		}
		questions, err := s.store.QuestionsByMatch(ctx, match.ID)
		if err != nil {
			return err
		}
		touched := false
		for _, q := range questions {
			changed := false
			for _, slot := range []int{1, 2} {
				if !q.SideStarted(slot) || q.SideFinished(slot) {
					continue
				}
				if q.SideStart(slot) > deadline {
					continue
				}
				q.Finalize(slot, 0, 0, false)
				changed = true
				userID := match.User1
				if slot == 2 {
					userID = match.User2
				}
				if err := s.store.CreateAttempt(ctx, &domain.Attempt{
					QuestionID: q.ID,
					MatchID:    match.ID,
					UserID:     userID,
					Finished:   true,
					CreatedAt:  now.Unix(),
				}); err != nil {
					return err
				}
			}
			if changed {
				touched = true
				if err := s.store.UpdateQuestion(ctx, q); err != nil {
					return err
				}
			}
		}
		if touched {
			if err := s.tryFinishMatch(ctx, round, match); err != nil {
				return err
			}
		}
	}
	return nil
}

// SettleRound resolves every unfinished match of a round that has reached
// its end: open question sides are zeroed out and matches with at least one
// question are decided; matches never played are abandoned.
func (s *MatchService) SettleRound(ctx context.Context, round *domain.Round, now time.Time) error {
	matches, err := s.store.MatchesByRound(ctx, round.ID)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if match.Finished() {
			continue
		}
		questions, err := s.store.QuestionsByMatch(ctx, match.ID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			match.Abandoned = true
			if err := s.store.UpdateMatch(ctx, match); err != nil {
				return err
			}
			continue
		}
		for _, q := range questions {
			changed := false
			for _, slot := range []int{1, 2} {
				if q.SideFinished(slot) {
					continue
				}
				q.Finalize(slot, 0, 0, false)
				changed = true
			}
			if changed {
				if err := s.store.UpdateQuestion(ctx, q); err != nil {
					return err
				}
			}
		}
		winner, score := decideMatch(match, questions)
		if _, err := s.store.FinishMatch(ctx, match.ID, winner, score); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
