package app

import (
	"context"
	"log"
	"time"

	"arena-quiz-service/internal/domain"
)

// Notifier delivers one rendered notification to a user. Implementations own
// rendering and localization; this package only decides what to send and to
// whom.
type Notifier interface {
	Notify(ctx context.Context, message *domain.Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message *domain.Message) error

func (f NotifierFunc) Notify(ctx context.Context, message *domain.Message) error {
	return f(ctx, message)
}

// MessageService derives notification messages from game state and drains the
// outbox through the Notifier.
type MessageService struct {
	store    Store
	notifier Notifier
	batch    int
}

func NewMessageService(store Store, notifier Notifier, batch int) *MessageService {
	if batch <= 0 {
		batch = 100
	}
	return &MessageService{store: store, notifier: notifier, batch: batch}
}

// GeneratePass derives match_stale messages for active-round matches with no
// progress for one cadence unit of their game. The other message types
// (match_started, opponent_played, match_finished) are enqueued inline by the
// transitions that cause them. Re-entrant: an undelivered stale nudge for the
// same user and match suppresses a duplicate.
func (s *MessageService) GeneratePass(ctx context.Context, now time.Time) error {
	cache := newPassCache(s.store, s.store)
	active, err := s.store.RoundsByState(ctx, domain.RoundActive)
	if err != nil {
		return err
	}
	for _, round := range active {
		game, err := cache.Game(ctx, round.GameID)
		if err != nil {
			return err
		}
		cadence := game.CadenceSeconds()
		if cadence <= 0 {
			continue
		}
		matches, err := s.store.MatchesByRound(ctx, round.ID)
		if err != nil {
			return err
		}
		for _, match := range matches {
			if match.Finished() || match.Abandoned {
				continue
			}
			idle := match.LastProgress
			if idle == 0 {
				idle = round.TimeStart
			}
			if now.Unix()-idle < cadence {
				continue
			}
			for _, userID := range []int64{match.User1, match.User2} {
				exists, err := s.store.HasMessage(ctx, domain.MessageMatchStale, userID, match.ID)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				if err := s.store.EnqueueMessage(ctx, &domain.Message{
					Type:      domain.MessageMatchStale,
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
	}
	return nil
}

// DeliveryPass claims a batch of undelivered messages and hands each to the
// Notifier. A failed delivery is logged and the message released back to
// pending for the next pass; one bad message never aborts the batch.
func (s *MessageService) DeliveryPass(ctx context.Context) error {
	claimed, err := s.store.ClaimMessages(ctx, s.batch)
	if err != nil {
		return err
	}
	for _, message := range claimed {
		if err := s.notifier.Notify(ctx, message); err != nil {
			log.Printf("delivery: message %d to user %d: %v", message.ID, message.UserID, err)
			if err := s.store.ReleaseMessage(ctx, message.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.store.MarkMessageSent(ctx, message.ID); err != nil {
			return err
		}
	}
	return nil
}
