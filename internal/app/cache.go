package app

import (
	"context"

	"arena-quiz-service/internal/domain"
)

// passCache is a read-through lookup cache scoped to a single scheduler pass.
// It is not shared across passes or requests; a fresh one is built at the top
// of each pass and discarded with it.
type passCache struct {
	games  GameStore
	rounds RoundStore

	gameByID  map[int64]*domain.Game
	roundByID map[int64]*domain.Round
}

func newPassCache(games GameStore, rounds RoundStore) *passCache {
	return &passCache{
		games:     games,
		rounds:    rounds,
		gameByID:  make(map[int64]*domain.Game),
		roundByID: make(map[int64]*domain.Round),
	}
}

func (c *passCache) Game(ctx context.Context, id int64) (*domain.Game, error) {
	if game, ok := c.gameByID[id]; ok {
		return game, nil
	}
	game, err := c.games.Game(ctx, id)
	if err != nil {
		return nil, err
	}
	c.gameByID[id] = game
	return game, nil
}

func (c *passCache) Round(ctx context.Context, id int64) (*domain.Round, error) {
	if round, ok := c.roundByID[id]; ok {
		return round, nil
	}
	round, err := c.rounds.Round(ctx, id)
	if err != nil {
		return nil, err
	}
	c.roundByID[id] = round
	return round, nil
}
