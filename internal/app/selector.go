package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

// Selector draws bank questions for new match positions and fixes their
// answer order. Reuse of an already-created question is the store's job
// (create-if-absent); the selector only ever produces fresh draws.
type Selector struct {
	provider content.Provider

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector(provider content.Provider) *Selector {
	return &Selector{
		provider: provider,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// newSelectorWithSeed allows deterministic draws in tests.
func newSelectorWithSeed(provider content.Provider, seed int64) *Selector {
	return &Selector{
		provider: provider,
		rnd:      rand.New(rand.NewSource(seed)),
	}
}

// PickForRound draws one bank question uniformly at random from the union of
// all categories open for the given round number. It fails with
// ErrPoolExhausted when no category contributes an eligible question.
func (s *Selector) PickForRound(ctx context.Context, categories []*domain.Category, roundNumber int) (content.BankQuestion, error) {
	pool := make([]int64, 0, 16)
	seen := make(map[int64]struct{})
	for _, cat := range categories {
		if !cat.OpenFor(roundNumber) {
			continue
		}
		ids, err := s.provider.QuestionIDs(ctx, cat.BankCategoryID, cat.Subcategories)
		if err != nil {
			return content.BankQuestion{}, err
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pool = append(pool, id)
		}
	}
	return s.pick(ctx, pool)
}

// PickForTopic draws one bank question from a bracket topic's category.
func (s *Selector) PickForTopic(ctx context.Context, topic *domain.TournamentTopic) (content.BankQuestion, error) {
	ids, err := s.provider.QuestionIDs(ctx, topic.BankCategoryID, false)
	if err != nil {
		return content.BankQuestion{}, err
	}
	return s.pick(ctx, ids)
}

func (s *Selector) pick(ctx context.Context, pool []int64) (content.BankQuestion, error) {
	if len(pool) == 0 {
		return content.BankQuestion{}, domain.ErrPoolExhausted
	}
	s.mu.Lock()
	id := pool[s.rnd.Intn(len(pool))]
	s.mu.Unlock()
	return s.provider.Question(ctx, id)
}

// FixOrder freezes the answer sequence for a freshly drawn question: identity
// order, or a uniform permutation when the game shuffles answers. The result
// is persisted once and never recomputed.
func (s *Selector) FixOrder(question content.BankQuestion, shuffle bool) string {
	ids := question.AnswerIDs()
	if shuffle {
		s.mu.Lock()
		s.rnd.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
		s.mu.Unlock()
	}
	return domain.JoinIDs(ids)
}

// shuffledUsers returns a copy of the ids in random order, for pairing.
func (s *Selector) shuffledUsers(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	s.mu.Lock()
	s.rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	s.mu.Unlock()
	return out
}
