package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

// RoundService owns round administration and the time-driven round
// transitions executed by the scheduler pass.
type RoundService struct {
	store    Store
	selector *Selector
	matches  *MatchService
	now      func() time.Time
}

func NewRoundService(store Store, provider content.Provider) *RoundService {
	return &RoundService{
		store:    store,
		selector: NewSelector(provider),
		matches:  NewMatchService(store, provider),
		now:      time.Now,
	}
}

// NewRoundServiceWithClock is test-only for deterministic timestamps.
func NewRoundServiceWithClock(store Store, provider content.Provider, now func() time.Time) *RoundService {
	s := NewRoundService(store, provider)
	s.now = now
	s.matches.now = now
	return s
}

// SaveRound creates a round (roundID 0) or renames an existing one, and
// applies category window changes. Added categories open at the round's
// number; removed ones are closed at the previous number, or deleted outright
// when they never fed an earlier round.
func (s *RoundService) SaveRound(ctx context.Context, roundID, gameID int64, name string, added []*domain.Category, removed []int64) (*domain.Round, error) {
	var round *domain.Round
	if roundID == 0 {
		if _, err := s.store.Game(ctx, gameID); err != nil {
			return nil, err
		}
		existing, err := s.store.RoundsByGame(ctx, gameID)
		if err != nil {
			return nil, err
		}
		round = &domain.Round{
			GameID: gameID,
			Number: len(existing) + 1,
			Name:   name,
			State:  domain.RoundPending,
		}
		if err := s.store.CreateRound(ctx, round); err != nil {
			return nil, err
		}
	} else {
		var err error
		round, err = s.store.Round(ctx, roundID)
		if err != nil {
			return nil, err
		}
		if name != "" {
			round.Name = name
			if err := s.store.UpdateRound(ctx, round); err != nil {
				return nil, err
			}
		}
	}

	for _, cat := range added {
		cat.GameID = round.GameID
		if cat.RoundFirst == 0 {
			cat.RoundFirst = round.Number
		}
		if err := s.store.CreateCategory(ctx, cat); err != nil {
			return nil, err
		}
	}
	for _, id := range removed {
		cat, err := s.store.Category(ctx, id)
		if err != nil {
			return nil, err
		}
		if cat.GameID != round.GameID {
			return nil, fmt.Errorf("category %d belongs to game %d: %w", id, cat.GameID, domain.ErrValidation)
		}
		if cat.RoundFirst >= round.Number {
			if err := s.store.DeleteCategory(ctx, id); err != nil {
				return nil, err
			}
			continue
		}
		cat.RoundLast = round.Number - 1
		if err := s.store.UpdateCategory(ctx, cat); err != nil {
			return nil, err
		}
	}
	return round, nil
}

// ScheduleRound sets the play window of a pending round. The start must lie
// strictly in the future and before the end; activation itself happens lazily
// in the next scheduler pass.
func (s *RoundService) ScheduleRound(ctx context.Context, roundID, start, end int64) error {
	round, err := s.store.Round(ctx, roundID)
	if err != nil {
		return err
	}
	if round.State != domain.RoundPending {
		return fmt.Errorf("round %d is %s: %w", roundID, round.State, domain.ErrInvalidState)
	}
	if start >= end {
		return fmt.Errorf("start %d not before end %d: %w", start, end, domain.ErrValidation)
	}
	if start <= s.now().Unix() {
		return fmt.Errorf("start %d not in the future: %w", start, domain.ErrValidation)
	}
	round.TimeStart = start
	round.TimeEnd = end
	return s.store.UpdateRound(ctx, round)
}

// StopRound ends an active round immediately. Unfinished matches are
// abandoned rather than decided, and participants who never finished a single
// question are dropped from future pairing.
func (s *RoundService) StopRound(ctx context.Context, roundID int64) error {
	round, err := s.store.Round(ctx, roundID)
	if err != nil {
		return err
	}
	if round.State != domain.RoundActive {
		return fmt.Errorf("round %d is %s: %w", roundID, round.State, domain.ErrInvalidState)
	}
	now := s.now().Unix()

	matches, err := s.store.MatchesByRound(ctx, roundID)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if match.Finished() {
			continue
		}
		match.Abandoned = true
		if err := s.store.UpdateMatch(ctx, match); err != nil {
			return err
		}
		for _, userID := range []int64{match.User1, match.User2} {
			idle, err := s.userIdle(ctx, matches, userID)
			if err != nil {
				return err
			}
			if !idle {
				continue
			}
			if err := s.store.DeactivateParticipant(ctx, round.GameID, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
	}

	round.TimeEnd = now
	round.State = domain.RoundFinished
	return s.store.UpdateRound(ctx, round)
}

// userIdle reports whether the user finished zero question sides across the
// round's matches.
func (s *RoundService) userIdle(ctx context.Context, matches []*domain.Match, userID int64) (bool, error) {
	for _, match := range matches {
		slot := match.Slot(userID)
		if slot == 0 {
			continue
		}
		questions, err := s.store.QuestionsByMatch(ctx, match.ID)
		if err != nil {
			return false, err
		}
		for _, q := range questions {
			if q.SideFinished(slot) {
				return false, nil
			}
		}
	}
	return true, nil
}

// DeleteRound removes a pending round and renumbers the later rounds of the
// game so numbers stay contiguous from 1. Category windows referencing the
// shifted numbers move with them.
func (s *RoundService) DeleteRound(ctx context.Context, roundID int64) error {
	round, err := s.store.Round(ctx, roundID)
	if err != nil {
		return err
	}
	if round.State != domain.RoundPending {
		return fmt.Errorf("round %d is %s: %w", roundID, round.State, domain.ErrInvalidState)
	}
	deletedNumber := round.Number
	round.State = domain.RoundDeleted
	if err := s.store.UpdateRound(ctx, round); err != nil {
		return err
	}

	rounds, err := s.store.RoundsByGame(ctx, round.GameID)
	if err != nil {
		return err
	}
	for _, r := range rounds {
		if r.Number <= deletedNumber {
			continue
		}
		r.Number--
		if err := s.store.UpdateRound(ctx, r); err != nil {
			return err
		}
	}

	categories, err := s.store.CategoriesByGame(ctx, round.GameID)
	if err != nil {
		return err
	}
	for _, cat := range categories {
		changed := false
		if cat.RoundFirst > deletedNumber {
			cat.RoundFirst--
			changed = true
		}
		if cat.RoundLast > deletedNumber {
			cat.RoundLast--
			changed = true
		}
		if changed {
			if err := s.store.UpdateCategory(ctx, cat); err != nil {
				return err
			}
		}
	}
	return nil
}

// JoinGame adds a user to the game's pairing pool. Rejoining reactivates a
// previously deactivated participant.
func (s *RoundService) JoinGame(ctx context.Context, gameID, userID int64) error {
	if _, err := s.store.Game(ctx, gameID); err != nil {
		return err
	}
	return s.store.AddParticipant(ctx, &domain.Participant{GameID: gameID, UserID: userID})
}

// ActivationPass applies every time-due round transition: pending rounds whose
// window opened become active with freshly paired matches, overdue question
// sides are force-finalized, and active rounds past their window (or with all
// matches finished) are settled. Safe to re-run; already-active rounds are
// untouched.
func (s *RoundService) ActivationPass(ctx context.Context, now time.Time) error {
	cache := newPassCache(s.store, s.store)

	pending, err := s.store.RoundsByState(ctx, domain.RoundPending)
	if err != nil {
		return err
	}
	for _, round := range pending {
		if round.TimeStart == 0 || round.TimeStart > now.Unix() {
			continue
		}
		if err := s.activate(ctx, cache, round, now); err != nil {
			log.Printf("activation: round %d: %v", round.ID, err)
		}
	}

	active, err := s.store.RoundsByState(ctx, domain.RoundActive)
	if err != nil {
		return err
	}
	for _, round := range active {
		game, err := cache.Game(ctx, round.GameID)
		if err != nil {
			return err
		}
		if err := s.matches.ExpireOverdue(ctx, round, game, now); err != nil {
			log.Printf("activation: expire round %d: %v", round.ID, err)
		}
		done, err := s.roundDone(ctx, round, now)
		if err != nil {
			return err
		}
		if !done {
			continue
		}
		if err := s.matches.SettleRound(ctx, round, now); err != nil {
			log.Printf("activation: settle round %d: %v", round.ID, err)
			continue
		}
		round.State = domain.RoundFinished
		if err := s.store.UpdateRound(ctx, round); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoundService) activate(ctx context.Context, cache *passCache, round *domain.Round, now time.Time) error {
	game, err := cache.Game(ctx, round.GameID)
	if err != nil {
		return err
	}
	users, err := s.store.ActiveParticipants(ctx, round.GameID)
	if err != nil {
		return err
	}
	shuffled := s.selector.shuffledUsers(users)
	// An odd pool leaves the last user without an opponent this round.
	created := 0
	for i := 0; i+1 < len(shuffled); i += 2 {
		match := &domain.Match{
			RoundID:      round.ID,
			User1:        shuffled[i],
			User2:        shuffled[i+1],
			LastProgress: now.Unix(),
		}
		if err := s.store.CreateMatch(ctx, match); err != nil {
			return err
		}
		created++
		for _, userID := range []int64{match.User1, match.User2} {
			if err := s.store.EnqueueMessage(ctx, &domain.Message{
				Type:      domain.MessageMatchStarted,
				Status:    domain.MessagePendingStatus,
				UserID:    userID,
				GameID:    round.GameID,
				RoundID:   round.ID,
				MatchID:   match.ID,
				CreatedAt: now.Unix(),
			}); err != nil {
				return err
			}
		}
	}
	round.State = domain.RoundActive
	round.Questions = game.QuestionsPerRound
	round.Matches = created
	return s.store.UpdateRound(ctx, round)
}

func (s *RoundService) roundDone(ctx context.Context, round *domain.Round, now time.Time) (bool, error) {
	if round.TimeEnd > 0 && now.Unix() >= round.TimeEnd {
		return true, nil
	}
	matches, err := s.store.MatchesByRound(ctx, round.ID)
	if err != nil {
		return false, err
	}
	if len(matches) == 0 {
		return false, nil
	}
	for _, match := range matches {
		if !match.Finished() && !match.Abandoned {
			return false, nil
		}
	}
	return true, nil
}
