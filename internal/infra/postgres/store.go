package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
)

// Store is the bun-backed implementation of the persistence surface. The
// compare-and-swap operations lean on conditional UPDATEs and the
// create-if-absent operations on unique indexes with ON CONFLICT DO NOTHING,
// so the race guarantees hold across instances.
type Store struct {
	db *bun.DB
}

var _ app.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// --- games ---

func (s *Store) Game(ctx context.Context, id int64) (*domain.Game, error) {
	game := new(domain.Game)
	err := s.db.NewSelect().Model(game).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return game, nil
}

func (s *Store) CreateGame(ctx context.Context, game *domain.Game) error {
	_, err := s.db.NewInsert().Model(game).Exec(ctx)
	return err
}

// --- rounds ---

func (s *Store) Round(ctx context.Context, id int64) (*domain.Round, error) {
	round := new(domain.Round)
	err := s.db.NewSelect().Model(round).
		Where("id = ?", id).
		Where("state != ?", domain.RoundDeleted).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return round, nil
}

func (s *Store) RoundsByGame(ctx context.Context, gameID int64) ([]*domain.Round, error) {
	var rounds []*domain.Round
	err := s.db.NewSelect().Model(&rounds).
		Where("game_id = ?", gameID).
		Where("state != ?", domain.RoundDeleted).
		Order("number ASC").
		Scan(ctx)
	return rounds, err
}

func (s *Store) RoundsByState(ctx context.Context, state domain.RoundState) ([]*domain.Round, error) {
	var rounds []*domain.Round
	err := s.db.NewSelect().Model(&rounds).
		Where("state = ?", state).
		Order("id ASC").
		Scan(ctx)
	return rounds, err
}

func (s *Store) CreateRound(ctx context.Context, round *domain.Round) error {
	_, err := s.db.NewInsert().Model(round).Exec(ctx)
	return err
}

func (s *Store) UpdateRound(ctx context.Context, round *domain.Round) error {
	res, err := s.db.NewUpdate().Model(round).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- categories ---

func (s *Store) Category(ctx context.Context, id int64) (*domain.Category, error) {
	cat := new(domain.Category)
	err := s.db.NewSelect().Model(cat).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return cat, nil
}

func (s *Store) CategoriesByGame(ctx context.Context, gameID int64) ([]*domain.Category, error) {
	var cats []*domain.Category
	err := s.db.NewSelect().Model(&cats).
		Where("game_id = ?", gameID).
		Order("id ASC").
		Scan(ctx)
	return cats, err
}

func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) error {
	_, err := s.db.NewInsert().Model(category).Exec(ctx)
	return err
}

func (s *Store) UpdateCategory(ctx context.Context, category *domain.Category) error {
	res, err := s.db.NewUpdate().Model(category).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Category)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- matches ---

func (s *Store) Match(ctx context.Context, id int64) (*domain.Match, error) {
	match := new(domain.Match)
	err := s.db.NewSelect().Model(match).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return match, nil
}

func (s *Store) MatchesByRound(ctx context.Context, roundID int64) ([]*domain.Match, error) {
	var matches []*domain.Match
	err := s.db.NewSelect().Model(&matches).
		Where("round_id = ?", roundID).
		Order("id ASC").
		Scan(ctx)
	return matches, err
}

func (s *Store) CreateMatch(ctx context.Context, match *domain.Match) error {
	_, err := s.db.NewInsert().Model(match).Exec(ctx)
	return err
}

func (s *Store) UpdateMatch(ctx context.Context, match *domain.Match) error {
	// The winner columns are only ever written through FinishMatch.
	res, err := s.db.NewUpdate().Model(match).
		Column("abandoned", "last_progress").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) FinishMatch(ctx context.Context, id, winner int64, score int) (bool, error) {
	res, err := s.db.NewUpdate().Model((*domain.Match)(nil)).
		Set("winner = ?", winner).
		Set("winner_score = ?", score).
		Where("id = ?", id).
		Where("winner = 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- match questions ---

func (s *Store) Question(ctx context.Context, id int64) (*domain.MatchQuestion, error) {
	q := new(domain.MatchQuestion)
	err := s.db.NewSelect().Model(q).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return q, nil
}

func (s *Store) QuestionByNumber(ctx context.Context, matchID int64, number int) (*domain.MatchQuestion, error) {
	q := new(domain.MatchQuestion)
	err := s.db.NewSelect().Model(q).
		Where("match_id = ?", matchID).
		Where("number = ?", number).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return q, nil
}

func (s *Store) QuestionsByMatch(ctx context.Context, matchID int64) ([]*domain.MatchQuestion, error) {
	var questions []*domain.MatchQuestion
	err := s.db.NewSelect().Model(&questions).
		Where("match_id = ?", matchID).
		Order("number ASC").
		Scan(ctx)
	return questions, err
}

func (s *Store) CreateQuestionIfAbsent(ctx context.Context, question *domain.MatchQuestion) (*domain.MatchQuestion, error) {
	_, err := s.db.NewInsert().Model(question).
		On("CONFLICT (match_id, number) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	// Re-read so the race loser observes the winner's row.
	return s.QuestionByNumber(ctx, question.MatchID, question.Number)
}

func (s *Store) UpdateQuestion(ctx context.Context, question *domain.MatchQuestion) error {
	res, err := s.db.NewUpdate().Model(question).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- attempts ---

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	_, err := s.db.NewInsert().Model(attempt).Exec(ctx)
	return err
}

// --- participants ---

func (s *Store) AddParticipant(ctx context.Context, participant *domain.Participant) error {
	_, err := s.db.NewInsert().Model(participant).
		On("CONFLICT (game_id, user_id) DO UPDATE").
		Set("inactive = FALSE").
		Exec(ctx)
	return err
}

func (s *Store) ActiveParticipants(ctx context.Context, gameID int64) ([]int64, error) {
	var userIDs []int64
	err := s.db.NewSelect().Model((*domain.Participant)(nil)).
		Column("user_id").
		Where("game_id = ?", gameID).
		Where("inactive = FALSE").
		Order("user_id ASC").
		Scan(ctx, &userIDs)
	return userIDs, err
}

func (s *Store) DeactivateParticipant(ctx context.Context, gameID, userID int64) error {
	res, err := s.db.NewUpdate().Model((*domain.Participant)(nil)).
		Set("inactive = TRUE").
		Where("game_id = ?", gameID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- tournaments ---

func (s *Store) Tournament(ctx context.Context, id int64) (*domain.Tournament, error) {
	t := new(domain.Tournament)
	err := s.db.NewSelect().Model(t).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return t, nil
}

func (s *Store) TournamentsByState(ctx context.Context, state domain.TournamentState) ([]*domain.Tournament, error) {
	var ts []*domain.Tournament
	err := s.db.NewSelect().Model(&ts).
		Where("state = ?", state).
		Order("id ASC").
		Scan(ctx)
	return ts, err
}

func (s *Store) CreateTournament(ctx context.Context, tournament *domain.Tournament) error {
	_, err := s.db.NewInsert().Model(tournament).Exec(ctx)
	return err
}

func (s *Store) UpdateTournament(ctx context.Context, tournament *domain.Tournament) error {
	res, err := s.db.NewUpdate().Model(tournament).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) Topic(ctx context.Context, id int64) (*domain.TournamentTopic, error) {
	topic := new(domain.TournamentTopic)
	err := s.db.NewSelect().Model(topic).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return topic, nil
}

func (s *Store) Topics(ctx context.Context, tournamentID int64) ([]*domain.TournamentTopic, error) {
	var topics []*domain.TournamentTopic
	err := s.db.NewSelect().Model(&topics).
		Where("tournament_id = ?", tournamentID).
		Order("step ASC", "level ASC").
		Scan(ctx)
	return topics, err
}

func (s *Store) ReplaceTopics(ctx context.Context, tournamentID int64, topics []*domain.TournamentTopic) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*domain.TournamentTopic)(nil)).
			Where("tournament_id = ?", tournamentID).
			Exec(ctx); err != nil {
			return err
		}
		if len(topics) == 0 {
			return nil
		}
		for _, topic := range topics {
			topic.TournamentID = tournamentID
		}
		_, err := tx.NewInsert().Model(&topics).Exec(ctx)
		return err
	})
}

func (s *Store) TournamentMatch(ctx context.Context, id int64) (*domain.TournamentMatch, error) {
	match := new(domain.TournamentMatch)
	err := s.db.NewSelect().Model(match).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return match, nil
}

func (s *Store) TournamentMatchesByStep(ctx context.Context, tournamentID int64, step int) ([]*domain.TournamentMatch, error) {
	var matches []*domain.TournamentMatch
	err := s.db.NewSelect().Model(&matches).
		Where("tournament_id = ?", tournamentID).
		Where("step = ?", step).
		Order("id ASC").
		Scan(ctx)
	return matches, err
}

func (s *Store) ReplaceSeedMatches(ctx context.Context, tournamentID int64, matches []*domain.TournamentMatch) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*domain.TournamentMatch)(nil)).
			Where("tournament_id = ?", tournamentID).
			Where("step = 1").
			Exec(ctx); err != nil {
			return err
		}
		if len(matches) == 0 {
			return nil
		}
		for _, match := range matches {
			match.TournamentID = tournamentID
			match.Step = 1
		}
		_, err := tx.NewInsert().Model(&matches).Exec(ctx)
		return err
	})
}

func (s *Store) CreateTournamentMatch(ctx context.Context, match *domain.TournamentMatch) error {
	_, err := s.db.NewInsert().Model(match).Exec(ctx)
	return err
}

func (s *Store) SetTournamentMatchWinner(ctx context.Context, id, winner int64) (bool, error) {
	res, err := s.db.NewUpdate().Model((*domain.TournamentMatch)(nil)).
		Set("winner = ?", winner).
		Where("id = ?", id).
		Where("winner = 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) TournamentQuestion(ctx context.Context, id int64) (*domain.TournamentQuestion, error) {
	q := new(domain.TournamentQuestion)
	err := s.db.NewSelect().Model(q).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return q, nil
}

func (s *Store) TournamentQuestionsByMatch(ctx context.Context, matchID int64) ([]*domain.TournamentQuestion, error) {
	var questions []*domain.TournamentQuestion
	err := s.db.NewSelect().Model(&questions).
		Where("match_id = ?", matchID).
		Order("id ASC").
		Scan(ctx)
	return questions, err
}

func (s *Store) CreateTournamentQuestionIfAbsent(ctx context.Context, question *domain.TournamentQuestion) (*domain.TournamentQuestion, error) {
	_, err := s.db.NewInsert().Model(question).
		On("CONFLICT (match_id, topic_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	existing := new(domain.TournamentQuestion)
	err = s.db.NewSelect().Model(existing).
		Where("match_id = ?", question.MatchID).
		Where("topic_id = ?", question.TopicID).
		Where("user_id = ?", question.UserID).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return existing, nil
}

func (s *Store) UpdateTournamentQuestion(ctx context.Context, question *domain.TournamentQuestion) error {
	res, err := s.db.NewUpdate().Model(question).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- messages ---

func (s *Store) EnqueueMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.NewInsert().Model(message).Exec(ctx)
	return err
}

func (s *Store) HasMessage(ctx context.Context, typ domain.MessageType, userID, matchID int64) (bool, error) {
	return s.db.NewSelect().Model((*domain.Message)(nil)).
		Where("type = ?", typ).
		Where("user_id = ?", userID).
		Where("match_id = ?", matchID).
		Exists(ctx)
}

func (s *Store) ClaimMessages(ctx context.Context, limit int) ([]*domain.Message, error) {
	var claimed []*domain.Message
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(&claimed).
			Where("status IN (?, ?)", domain.MessagePendingStatus, domain.MessageProgressStatus).
			Order("id ASC").
			Limit(limit).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]int64, len(claimed))
		for i, m := range claimed {
			ids[i] = m.ID
			m.Status = domain.MessageProgressStatus
		}
		_, err = tx.NewUpdate().Model((*domain.Message)(nil)).
			Set("status = ?", domain.MessageProgressStatus).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		return err
	})
	return claimed, err
}

func (s *Store) MarkMessageSent(ctx context.Context, id int64) error {
	res, err := s.db.NewUpdate().Model((*domain.Message)(nil)).
		Set("status = ?", domain.MessageSentStatus).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ReleaseMessage(ctx context.Context, id int64) error {
	res, err := s.db.NewUpdate().Model((*domain.Message)(nil)).
		Set("status = ?", domain.MessagePendingStatus).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
