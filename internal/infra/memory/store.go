package memory

import (
	"context"
	"sort"
	"sync"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
)

// Store is an in-memory implementation of the full persistence surface. It is
// the reference implementation the service tests run against; the postgres
// store must match its observable behavior.
type Store struct {
	mu     sync.Mutex
	nextID int64

	games        map[int64]*domain.Game
	rounds       map[int64]*domain.Round
	categories   map[int64]*domain.Category
	matches      map[int64]*domain.Match
	questions    map[int64]*domain.MatchQuestion
	attempts     map[int64]*domain.Attempt
	participants map[int64]*domain.Participant

	tournaments  map[int64]*domain.Tournament
	topics       map[int64]*domain.TournamentTopic
	tMatches     map[int64]*domain.TournamentMatch
	tQuestions   map[int64]*domain.TournamentQuestion
	messages     map[int64]*domain.Message
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		games:        make(map[int64]*domain.Game),
		rounds:       make(map[int64]*domain.Round),
		categories:   make(map[int64]*domain.Category),
		matches:      make(map[int64]*domain.Match),
		questions:    make(map[int64]*domain.MatchQuestion),
		attempts:     make(map[int64]*domain.Attempt),
		participants: make(map[int64]*domain.Participant),
		tournaments:  make(map[int64]*domain.Tournament),
		topics:       make(map[int64]*domain.TournamentTopic),
		tMatches:     make(map[int64]*domain.TournamentMatch),
		tQuestions:   make(map[int64]*domain.TournamentQuestion),
		messages:     make(map[int64]*domain.Message),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- games ---

func (s *Store) Game(ctx context.Context, id int64) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *game
	return &cp, nil
}

func (s *Store) CreateGame(ctx context.Context, game *domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.ID == 0 {
		game.ID = s.id()
	}
	cp := *game
	s.games[game.ID] = &cp
	return nil
}

// --- rounds ---

func (s *Store) Round(ctx context.Context, id int64) (*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[id]
	if !ok || round.State == domain.RoundDeleted {
		return nil, domain.ErrNotFound
	}
	cp := *round
	return &cp, nil
}

func (s *Store) RoundsByGame(ctx context.Context, gameID int64) ([]*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Round
	for _, round := range s.rounds {
		if round.GameID != gameID || round.State == domain.RoundDeleted {
			continue
		}
		cp := *round
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) RoundsByState(ctx context.Context, state domain.RoundState) ([]*domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Round
	for _, round := range s.rounds {
		if round.State != state {
			continue
		}
		cp := *round
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRound(ctx context.Context, round *domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round.ID == 0 {
		round.ID = s.id()
	}
	cp := *round
	s.rounds[round.ID] = &cp
	return nil
}

func (s *Store) UpdateRound(ctx context.Context, round *domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[round.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *round
	s.rounds[round.ID] = &cp
	return nil
}

// --- categories ---

func (s *Store) Category(ctx context.Context, id int64) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *cat
	return &cp, nil
}

func (s *Store) CategoriesByGame(ctx context.Context, gameID int64) ([]*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Category
	for _, cat := range s.categories {
		if cat.GameID != gameID {
			continue
		}
		cp := *cat
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category.ID == 0 {
		category.ID = s.id()
	}
	cp := *category
	s.categories[category.ID] = &cp
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, category *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[category.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *category
	s.categories[category.ID] = &cp
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

// --- matches ---

func (s *Store) Match(ctx context.Context, id int64) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (s *Store) MatchesByRound(ctx context.Context, roundID int64) ([]*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Match
	for _, match := range s.matches {
		if match.RoundID != roundID {
			continue
		}
		cp := *match
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateMatch(ctx context.Context, match *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if match.ID == 0 {
		match.ID = s.id()
	}
	cp := *match
	s.matches[match.ID] = &cp
	return nil
}

func (s *Store) UpdateMatch(ctx context.Context, match *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.matches[match.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *match
	// The winner is only ever written through FinishMatch.
	cp.Winner, cp.WinnerScore = stored.Winner, stored.WinnerScore
	s.matches[match.ID] = &cp
	return nil
}

func (s *Store) FinishMatch(ctx context.Context, id, winner int64, score int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if match.Winner > 0 {
		return false, nil
	}
	match.Winner = winner
	match.WinnerScore = score
	return true, nil
}

// --- match questions ---

func (s *Store) Question(ctx context.Context, id int64) (*domain.MatchQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *Store) QuestionByNumber(ctx context.Context, matchID int64, number int) (*domain.MatchQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.questions {
		if q.MatchID == matchID && q.Number == number {
			cp := *q
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) QuestionsByMatch(ctx context.Context, matchID int64) ([]*domain.MatchQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.MatchQuestion
	for _, q := range s.questions {
		if q.MatchID != matchID {
			continue
		}
		cp := *q
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) CreateQuestionIfAbsent(ctx context.Context, question *domain.MatchQuestion) (*domain.MatchQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.questions {
		if q.MatchID == question.MatchID && q.Number == question.Number {
			cp := *q
			return &cp, nil
		}
	}
	if question.ID == 0 {
		question.ID = s.id()
	}
	cp := *question
	s.questions[question.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, question *domain.MatchQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[question.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *question
	s.questions[question.ID] = &cp
	return nil
}

// --- attempts ---

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt.ID == 0 {
		attempt.ID = s.id()
	}
	cp := *attempt
	s.attempts[attempt.ID] = &cp
	return nil
}

// Attempts returns all recorded attempts for assertions in tests.
func (s *Store) Attempts(matchID int64) []*domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Attempt
	for _, a := range s.attempts {
		if a.MatchID != matchID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- participants ---

func (s *Store) AddParticipant(ctx context.Context, participant *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.GameID == participant.GameID && p.UserID == participant.UserID {
			p.Inactive = false
			return nil
		}
	}
	if participant.ID == 0 {
		participant.ID = s.id()
	}
	cp := *participant
	s.participants[participant.ID] = &cp
	return nil
}

func (s *Store) ActiveParticipants(ctx context.Context, gameID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, p := range s.participants {
		if p.GameID == gameID && !p.Inactive {
			out = append(out, p.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) DeactivateParticipant(ctx context.Context, gameID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.GameID == gameID && p.UserID == userID {
			p.Inactive = true
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- tournaments ---

func (s *Store) Tournament(ctx context.Context, id int64) (*domain.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) TournamentsByState(ctx context.Context, state domain.TournamentState) ([]*domain.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Tournament
	for _, t := range s.tournaments {
		if t.State != state {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateTournament(ctx context.Context, tournament *domain.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tournament.ID == 0 {
		tournament.ID = s.id()
	}
	cp := *tournament
	s.tournaments[tournament.ID] = &cp
	return nil
}

func (s *Store) UpdateTournament(ctx context.Context, tournament *domain.Tournament) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[tournament.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *tournament
	s.tournaments[tournament.ID] = &cp
	return nil
}

func (s *Store) Topic(ctx context.Context, id int64) (*domain.TournamentTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic, ok := s.topics[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *topic
	return &cp, nil
}

func (s *Store) Topics(ctx context.Context, tournamentID int64) ([]*domain.TournamentTopic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TournamentTopic
	for _, topic := range s.topics {
		if topic.TournamentID != tournamentID {
			continue
		}
		cp := *topic
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].Level < out[j].Level
	})
	return out, nil
}

func (s *Store) ReplaceTopics(ctx context.Context, tournamentID int64, topics []*domain.TournamentTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, topic := range s.topics {
		if topic.TournamentID == tournamentID {
			delete(s.topics, id)
		}
	}
	for _, topic := range topics {
		if topic.ID == 0 {
			topic.ID = s.id()
		}
		topic.TournamentID = tournamentID
		cp := *topic
		s.topics[topic.ID] = &cp
	}
	return nil
}

func (s *Store) TournamentMatch(ctx context.Context, id int64) (*domain.TournamentMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.tMatches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (s *Store) TournamentMatchesByStep(ctx context.Context, tournamentID int64, step int) ([]*domain.TournamentMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TournamentMatch
	for _, match := range s.tMatches {
		if match.TournamentID != tournamentID || match.Step != step {
			continue
		}
		cp := *match
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ReplaceSeedMatches(ctx context.Context, tournamentID int64, matches []*domain.TournamentMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, match := range s.tMatches {
		if match.TournamentID == tournamentID && match.Step == 1 {
			delete(s.tMatches, id)
		}
	}
	for _, match := range matches {
		if match.ID == 0 {
			match.ID = s.id()
		}
		match.TournamentID = tournamentID
		match.Step = 1
		cp := *match
		s.tMatches[match.ID] = &cp
	}
	return nil
}

func (s *Store) CreateTournamentMatch(ctx context.Context, match *domain.TournamentMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if match.ID == 0 {
		match.ID = s.id()
	}
	cp := *match
	s.tMatches[match.ID] = &cp
	return nil
}

func (s *Store) SetTournamentMatchWinner(ctx context.Context, id, winner int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.tMatches[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if match.Winner > 0 {
		return false, nil
	}
	match.Winner = winner
	return true, nil
}

func (s *Store) TournamentQuestion(ctx context.Context, id int64) (*domain.TournamentQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.tQuestions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *Store) TournamentQuestionsByMatch(ctx context.Context, matchID int64) ([]*domain.TournamentQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TournamentQuestion
	for _, q := range s.tQuestions {
		if q.MatchID != matchID {
			continue
		}
		cp := *q
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateTournamentQuestionIfAbsent(ctx context.Context, question *domain.TournamentQuestion) (*domain.TournamentQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.tQuestions {
		if q.MatchID == question.MatchID && q.TopicID == question.TopicID && q.UserID == question.UserID {
			cp := *q
			return &cp, nil
		}
	}
	if question.ID == 0 {
		question.ID = s.id()
	}
	cp := *question
	s.tQuestions[question.ID] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpdateTournamentQuestion(ctx context.Context, question *domain.TournamentQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tQuestions[question.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *question
	s.tQuestions[question.ID] = &cp
	return nil
}

// --- messages ---

func (s *Store) EnqueueMessage(ctx context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.ID == 0 {
		message.ID = s.id()
	}
	cp := *message
	s.messages[message.ID] = &cp
	return nil
}

func (s *Store) HasMessage(ctx context.Context, typ domain.MessageType, userID, matchID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Type == typ && m.UserID == userID && m.MatchID == matchID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ClaimMessages(ctx context.Context, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	ids := make([]int64, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		m := s.messages[id]
		if m.Status == domain.MessageSentStatus {
			continue
		}
		m.Status = domain.MessageProgressStatus
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) MarkMessageSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = domain.MessageSentStatus
	return nil
}

func (s *Store) ReleaseMessage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = domain.MessagePendingStatus
	return nil
}

// Messages returns all outbox rows for assertions in tests.
func (s *Store) Messages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, m := range s.messages {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
