package app

import (
	"context"
	"fmt"
	"time"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

// BracketService owns single-elimination tournaments: seeding, per-topic
// question play and step advancement. Steps are 1-based; step 1 holds the
// seeded pairings.
type BracketService struct {
	store    Store
	provider content.Provider
	selector *Selector
	now      func() time.Time
}

func NewBracketService(store Store, provider content.Provider) *BracketService {
	return &BracketService{
		store:    store,
		provider: provider,
		selector: NewSelector(provider),
		now:      time.Now,
	}
}

// NewBracketServiceWithClock is test-only for deterministic timestamps.
func NewBracketServiceWithClock(store Store, provider content.Provider, now func() time.Time) *BracketService {
	s := NewBracketService(store, provider)
	s.now = now
	return s
}

func (s *BracketService) CreateTournament(ctx context.Context, gameID int64, name string) (*domain.Tournament, error) {
	if _, err := s.store.Game(ctx, gameID); err != nil {
		return nil, err
	}
	t := &domain.Tournament{
		GameID: gameID,
		Name:   name,
		State:  domain.TournamentUnpublished,
	}
	if err := s.store.CreateTournament(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// editable loads a tournament and rejects mutation once it left the
// unpublished state.
func (s *BracketService) editable(ctx context.Context, tournamentID int64) (*domain.Tournament, error) {
	t, err := s.store.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.State != domain.TournamentUnpublished {
		return nil, fmt.Errorf("tournament %d is %s: %w", tournamentID, t.State, domain.ErrInvalidState)
	}
	return t, nil
}

// SaveTopics replaces the topic set of an unpublished tournament.
func (s *BracketService) SaveTopics(ctx context.Context, tournamentID int64, topics []*domain.TournamentTopic) error {
	if _, err := s.editable(ctx, tournamentID); err != nil {
		return err
	}
	for _, topic := range topics {
		if topic.Step < 1 {
			return fmt.Errorf("topic step %d: %w", topic.Step, domain.ErrValidation)
		}
		if topic.BankCategoryID <= 0 {
			return fmt.Errorf("topic without bank category: %w", domain.ErrValidation)
		}
	}
	return s.store.ReplaceTopics(ctx, tournamentID, topics)
}

// SeedMatches replaces the step-1 pairings of an unpublished tournament. Byes
// are not supported, so every pairing needs two distinct users.
func (s *BracketService) SeedMatches(ctx context.Context, tournamentID int64, matches []*domain.TournamentMatch) error {
	if _, err := s.editable(ctx, tournamentID); err != nil {
		return err
	}
	seen := make(map[int64]bool)
	for _, match := range matches {
		if match.User1 <= 0 || match.User2 <= 0 || match.User1 == match.User2 {
			return fmt.Errorf("seed pairing needs two distinct users: %w", domain.ErrValidation)
		}
		for _, u := range []int64{match.User1, match.User2} {
			if seen[u] {
				return fmt.Errorf("user %d seeded twice: %w", u, domain.ErrValidation)
			}
			seen[u] = true
		}
	}
	return s.store.ReplaceSeedMatches(ctx, tournamentID, matches)
}

// Publish locks the bracket and opens step 1 for play.
func (s *BracketService) Publish(ctx context.Context, tournamentID int64) error {
	t, err := s.editable(ctx, tournamentID)
	if err != nil {
		return err
	}
	seeds, err := s.store.TournamentMatchesByStep(ctx, tournamentID, 1)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return fmt.Errorf("tournament %d has no seed pairings: %w", tournamentID, domain.ErrValidation)
	}
	topics, err := s.store.Topics(ctx, tournamentID)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return fmt.Errorf("tournament %d has no topics: %w", tournamentID, domain.ErrValidation)
	}
	t.State = domain.TournamentProgress
	return s.store.UpdateTournament(ctx, t)
}

// SetState applies an admin state override, used to dump an abandoned
// tournament. Finished tournaments are immutable.
func (s *BracketService) SetState(ctx context.Context, tournamentID int64, state domain.TournamentState) error {
	switch state {
	case domain.TournamentUnpublished, domain.TournamentProgress, domain.TournamentFinished, domain.TournamentDumped:
	default:
		return fmt.Errorf("unknown tournament state %q: %w", state, domain.ErrValidation)
	}
	t, err := s.store.Tournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.State == domain.TournamentFinished {
		return fmt.Errorf("tournament %d is finished: %w", tournamentID, domain.ErrInvalidState)
	}
	t.State = state
	return s.store.UpdateTournament(ctx, t)
}

// Sizing reports the bracket dimensions derived from the seed pairings.
func (s *BracketService) Sizing(ctx context.Context, tournamentID int64) (participants, totalSteps int, err error) {
	seeds, err := s.store.TournamentMatchesByStep(ctx, tournamentID, 1)
	if err != nil {
		return 0, 0, err
	}
	participants = 2 * len(seeds)
	if participants == 0 {
		return 0, 0, nil
	}
	return participants, participants - 1, nil
}

// RequestQuestion returns the caller's question for a pairing topic, seeding
// it on first request. The second participant of the pairing reuses the bank
// question seeded by the first but starts with fresh answer state.
func (s *BracketService) RequestQuestion(ctx context.Context, callerID, matchID, topicID int64) (*domain.TournamentQuestion, error) {
	match, err := s.store.TournamentMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Slot(callerID) == 0 {
		return nil, domain.ErrNotParticipant
	}
	if match.Winner > 0 {
		return nil, fmt.Errorf("pairing %d already decided: %w", matchID, domain.ErrInvalidState)
	}
	t, err := s.store.Tournament(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if t.State != domain.TournamentProgress {
		return nil, fmt.Errorf("tournament %d is %s: %w", t.ID, t.State, domain.ErrInvalidState)
	}
	topic, err := s.store.Topic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic.TournamentID != t.ID || topic.Step != match.Step {
		return nil, fmt.Errorf("topic %d not playable at step %d: %w", topicID, match.Step, domain.ErrValidation)
	}

	game, err := s.store.Game(ctx, t.GameID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.TournamentQuestionsByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	var mine, theirs *domain.TournamentQuestion
	for _, q := range existing {
		if q.TopicID != topicID {
			continue
		}
		if q.UserID == callerID {
			mine = q
		} else {
			theirs = q
		}
	}
	if mine == nil {
		question := &domain.TournamentQuestion{
			TournamentID: t.ID,
			MatchID:      matchID,
			TopicID:      topicID,
			UserID:       callerID,
		}
		if theirs != nil {
			question.BankQuestionID = theirs.BankQuestionID
			question.AnswerOrder = theirs.AnswerOrder
		} else {
			bank, err := s.selector.PickForTopic(ctx, topic)
			if err != nil {
				return nil, err
			}
			question.BankQuestionID = bank.ID
			question.AnswerOrder = s.selector.FixOrder(bank, game.ShuffleAnswers)
		}
		mine, err = s.store.CreateTournamentQuestionIfAbsent(ctx, question)
		if err != nil {
			return nil, err
		}
	}
	if mine.AnswerID == 0 && !mine.Finished {
		if err := s.reconcileSeed(ctx, matchID, topicID, mine); err != nil {
			return nil, err
		}
	}
	if mine.TimeStart == 0 && !mine.Finished {
		mine.TimeStart = s.now().Unix()
		if err := s.store.UpdateTournamentQuestion(ctx, mine); err != nil {
			return nil, err
		}
	}
	return mine, nil
}

// reconcileSeed converges a pairing on one bank question per topic. Two
// participants racing the first request for an unseeded topic can both draw
// before either row lands; the create-if-absent key carries user_id, so both
// inserts succeed. The row with the lowest id holds the canonical draw and
// the caller's unanswered row is rewritten to match it.
func (s *BracketService) reconcileSeed(ctx context.Context, matchID, topicID int64, mine *domain.TournamentQuestion) error {
	rows, err := s.store.TournamentQuestionsByMatch(ctx, matchID)
	if err != nil {
		return err
	}
	canonical := mine
	for _, q := range rows {
		if q.TopicID == topicID && q.ID < canonical.ID {
			canonical = q
		}
	}
	if canonical.ID == mine.ID || canonical.BankQuestionID == mine.BankQuestionID {
		return nil
	}
	mine.BankQuestionID = canonical.BankQuestionID
	mine.AnswerOrder = canonical.AnswerOrder
	return s.store.UpdateTournamentQuestion(ctx, mine)
}

// SubmitAnswer applies the caller's answer to a bracket question under the
// same scoring rules as round questions. AnswerID 0 is an explicit skip.
func (s *BracketService) SubmitAnswer(ctx context.Context, callerID, questionID, answerID int64) (*domain.TournamentQuestion, error) {
	question, err := s.store.TournamentQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if question.UserID != callerID {
		return nil, domain.ErrNotParticipant
	}
	if question.Finished {
		return nil, domain.ErrAlreadyAnswered
	}
	if question.TimeStart == 0 {
		return nil, fmt.Errorf("question %d not fetched: %w", questionID, domain.ErrInvalidState)
	}
	t, err := s.store.Tournament(ctx, question.TournamentID)
	if err != nil {
		return nil, err
	}
	if t.State != domain.TournamentProgress {
		return nil, fmt.Errorf("tournament %d is %s: %w", t.ID, t.State, domain.ErrInvalidState)
	}
	game, err := s.store.Game(ctx, t.GameID)
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
	correct := answerID != 0 && bank.Correct(answerID)
	points, _ := domain.Score(correct, time.Unix(question.TimeStart, 0), now, game.QuestionSeconds)

	question.AnswerID = answerID
	question.Score = points
	question.Correct = correct
	question.Finished = true
	if err := s.store.UpdateTournamentQuestion(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

// ResolvePairing computes the tri-state result of a pairing from the topic
// questions both sides played. Unlike round matches a full tie stays a draw;
// an admin breaks it with SetPairingWinner.
func (s *BracketService) ResolvePairing(ctx context.Context, matchID int64) (domain.Outcome, error) {
	match, err := s.store.TournamentMatch(ctx, matchID)
	if err != nil {
		return domain.OutcomeOpen, err
	}
	topics, err := s.store.Topics(ctx, match.TournamentID)
	if err != nil {
		return domain.OutcomeOpen, err
	}
	var stepTopics []*domain.TournamentTopic
	for _, topic := range topics {
		if topic.Step == match.Step {
			stepTopics = append(stepTopics, topic)
		}
	}
	if len(stepTopics) == 0 {
		return domain.OutcomeOpen, nil
	}
	questions, err := s.store.TournamentQuestionsByMatch(ctx, matchID)
	if err != nil {
		return domain.OutcomeOpen, err
	}
	byKey := make(map[int64]map[int64]*domain.TournamentQuestion)
	for _, q := range questions {
		if byKey[q.TopicID] == nil {
			byKey[q.TopicID] = make(map[int64]*domain.TournamentQuestion)
		}
		byKey[q.TopicID][q.UserID] = q
	}

	var wins1, wins2, total1, total2 int
	for _, topic := range stepTopics {
		q1 := byKey[topic.ID][match.User1]
		q2 := byKey[topic.ID][match.User2]
		if q1 == nil || q2 == nil || !q1.Finished || !q2.Finished {
			return domain.OutcomeOpen, nil
		}
		total1 += q1.Score
		total2 += q2.Score
		switch domain.CompareScores(q1.Score, q2.Score) {
		case domain.OutcomeUser1:
			wins1++
		case domain.OutcomeUser2:
			wins2++
		}
	}
	return domain.ResolveDuel(wins1, wins2, total1, total2), nil
}

// SetPairingWinner is the admin override for drawn pairings. It refuses to
// overturn a pairing that already has a winner.
func (s *BracketService) SetPairingWinner(ctx context.Context, matchID, winner int64) error {
	match, err := s.store.TournamentMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Slot(winner) == 0 {
		return fmt.Errorf("user %d not in pairing %d: %w", winner, matchID, domain.ErrValidation)
	}
	applied, err := s.store.SetTournamentMatchWinner(ctx, matchID, winner)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("pairing %d already decided: %w", matchID, domain.ErrInvalidState)
	}
	return nil
}

// AdvancePass moves every in-progress tournament forward: decidable pairings
// get their winner recorded, and once a step is fully decided the winners are
// paired into the next step. The sole survivor of the last pairing wins the
// tournament. Re-entrant; drawn pairings hold the step until resolved.
func (s *BracketService) AdvancePass(ctx context.Context) error {
	tournaments, err := s.store.TournamentsByState(ctx, domain.TournamentProgress)
	if err != nil {
		return err
	}
	for _, t := range tournaments {
		if err := s.advance(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *BracketService) advance(ctx context.Context, t *domain.Tournament) error {
	step := 1
	for {
		matches, err := s.store.TournamentMatchesByStep(ctx, t.ID, step)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return nil
		}
		winners := make([]int64, 0, len(matches))
		decided := true
		for _, match := range matches {
			if match.Winner == 0 {
				outcome, err := s.ResolvePairing(ctx, match.ID)
				if err != nil {
					return err
				}
				switch outcome {
				case domain.OutcomeUser1:
					if _, err := s.store.SetTournamentMatchWinner(ctx, match.ID, match.User1); err != nil {
						return err
					}
					match.Winner = match.User1
				case domain.OutcomeUser2:
					if _, err := s.store.SetTournamentMatchWinner(ctx, match.ID, match.User2); err != nil {
						return err
					}
					match.Winner = match.User2
				default:
					decided = false
				}
			}
			if match.Winner > 0 {
				winners = append(winners, match.Winner)
			}
		}
		if !decided {
			return nil
		}
		if len(winners) == 1 {
			t.State = domain.TournamentFinished
			t.Winner = winners[0]
			return s.store.UpdateTournament(ctx, t)
		}
		next, err := s.store.TournamentMatchesByStep(ctx, t.ID, step+1)
		if err != nil {
			return err
		}
		if len(next) == 0 {
			for i := 0; i+1 < len(winners); i += 2 {
				if err := s.store.CreateTournamentMatch(ctx, &domain.TournamentMatch{
					TournamentID: t.ID,
					Step:         step + 1,
					User1:        winners[i],
					User2:        winners[i+1],
				}); err != nil {
					return err
				}
			}
		}
		step++
	}
}
