package domain

import (
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

// RoundState is the lifecycle state of a round.
type RoundState string

const (
	RoundPending  RoundState = "pending"
	RoundActive   RoundState = "active"
	RoundFinished RoundState = "finished"
	RoundDeleted  RoundState = "deleted"
)

// TournamentState is the lifecycle state of a bracket tournament.
type TournamentState string

const (
	TournamentUnpublished TournamentState = "unpublished"
	TournamentProgress    TournamentState = "progress"
	TournamentFinished    TournamentState = "finished"
	TournamentDumped      TournamentState = "dumped"
)

// MessageType identifies the notification a message carries.
type MessageType string

const (
	MessageMatchStarted   MessageType = "match_started"
	MessageMatchStale     MessageType = "match_stale"
	MessageMatchFinished  MessageType = "match_finished"
	MessageOpponentPlayed MessageType = "opponent_played"
)

// MessageStatus tracks outbox delivery progress.
type MessageStatus string

const (
	MessagePendingStatus  MessageStatus = "pending"
	MessageProgressStatus MessageStatus = "progress"
	MessageSentStatus     MessageStatus = "sent"
)

// Outcome is the shared duel result used by round matches and bracket
// pairings. Round matches never surface OutcomeDraw to callers; bracket
// pairings do.
type Outcome int

const (
	OutcomeOpen Outcome = iota
	OutcomeDraw
	OutcomeUser1
	OutcomeUser2
)

// Game is the configuration root owning rounds, categories and tournaments.
type Game struct {
	bun.BaseModel `bun:"table:games"`

	ID                int64  `bun:"id,pk,autoincrement" json:"id"`
	Name              string `bun:"name" json:"name"`
	QuestionsPerRound int    `bun:"questions_per_round" json:"questionsPerRound"`
	QuestionSeconds   int    `bun:"question_seconds" json:"questionSeconds"`
	ReviewSeconds     int    `bun:"review_seconds" json:"reviewSeconds"`
	ShuffleAnswers    bool   `bun:"shuffle_answers" json:"shuffleAnswers"`
	RoundUnit         string `bun:"round_unit" json:"roundUnit"` // minutes, hours or days
	RoundValue        int    `bun:"round_value" json:"roundValue"`
	RoundCount        int    `bun:"round_count" json:"roundCount"` // 0 = unbounded
}

// CadenceSeconds converts the round cadence into seconds.
func (g *Game) CadenceSeconds() int64 {
	unit := int64(0)
	switch g.RoundUnit {
	case "minutes":
		unit = 60
	case "hours":
		unit = 3600
	case "days":
		unit = 86400
	}
	return unit * int64(g.RoundValue)
}

// Round is one time-boxed stage of a game. Number is 1-based and kept
// contiguous across deletions. TimeStart/TimeEnd are unix seconds, 0 meaning
// unscheduled.
type Round struct {
	bun.BaseModel `bun:"table:rounds"`

	ID        int64      `bun:"id,pk,autoincrement" json:"id"`
	GameID    int64      `bun:"game_id" json:"gameId"`
	Number    int        `bun:"number" json:"number"`
	Name      string     `bun:"name" json:"name"`
	State     RoundState `bun:"state" json:"state"`
	TimeStart int64      `bun:"time_start" json:"timeStart"`
	TimeEnd   int64      `bun:"time_end" json:"timeEnd"`
	Questions int        `bun:"questions" json:"questions"` // snapshotted from the game at activation
	Matches   int        `bun:"matches" json:"matches"`
}

// Category selects a question-bank pool for a window of round numbers.
// RoundLast 0 means the window is still open.
type Category struct {
	bun.BaseModel `bun:"table:categories"`

	ID             int64 `bun:"id,pk,autoincrement" json:"id"`
	GameID         int64 `bun:"game_id" json:"gameId"`
	BankCategoryID int64 `bun:"bank_category_id" json:"bankCategoryId"`
	Subcategories  bool  `bun:"subcategories" json:"subcategories"`
	RoundFirst     int   `bun:"round_first" json:"roundFirst"`
	RoundLast      int   `bun:"round_last" json:"roundLast"`
}

// OpenFor reports whether the category may feed questions to the given round
// number.
func (c *Category) OpenFor(roundNumber int) bool {
	if roundNumber < c.RoundFirst {
		return false
	}
	return c.RoundLast == 0 || roundNumber <= c.RoundLast
}

// Match is a 1v1 pairing inside a round. Winner 0 means undecided; a match is
// finished exactly when Winner > 0.
type Match struct {
	bun.BaseModel `bun:"table:matches"`

	ID           int64 `bun:"id,pk,autoincrement" json:"id"`
	RoundID      int64 `bun:"round_id" json:"roundId"`
	User1        int64 `bun:"user1" json:"user1"`
	User2        int64 `bun:"user2" json:"user2"`
	Winner       int64 `bun:"winner" json:"winner"`
	WinnerScore  int   `bun:"winner_score" json:"winnerScore"`
	Abandoned    bool  `bun:"abandoned" json:"abandoned"`
	LastProgress int64 `bun:"last_progress" json:"lastProgress"`
}

// Finished reports whether a winner has been recorded.
func (m *Match) Finished() bool { return m.Winner > 0 }

// Slot returns 1 or 2 for a participant of the match, 0 for anyone else.
func (m *Match) Slot(userID int64) int {
	switch userID {
	case m.User1:
		return 1
	case m.User2:
		return 2
	}
	return 0
}

// Opponent returns the other participant, 0 if userID is not in the match.
func (m *Match) Opponent(userID int64) int64 {
	switch userID {
	case m.User1:
		return m.User2
	case m.User2:
		return m.User1
	}
	return 0
}

// MatchQuestion is one timed multiple-choice item of a match, tracked
// independently per participant. AnswerOrder fixes the answer sequence for
// both sides once at creation.
type MatchQuestion struct {
	bun.BaseModel `bun:"table:match_questions"`

	ID             int64  `bun:"id,pk,autoincrement" json:"id"`
	MatchID        int64  `bun:"match_id" json:"matchId"`
	Number         int    `bun:"number" json:"number"`
	BankQuestionID int64  `bun:"bank_question_id" json:"bankQuestionId"`
	AnswerOrder    string `bun:"answer_order" json:"answerOrder"`

	TimeStart1 int64 `bun:"time_start1" json:"timeStart1"`
	AnswerID1  int64 `bun:"answer_id1" json:"answerId1"`
	Score1     int   `bun:"score1" json:"score1"`
	Correct1   bool  `bun:"correct1" json:"correct1"`
	Finished1  bool  `bun:"finished1" json:"finished1"`

	TimeStart2 int64 `bun:"time_start2" json:"timeStart2"`
	AnswerID2  int64 `bun:"answer_id2" json:"answerId2"`
	Score2     int   `bun:"score2" json:"score2"`
	Correct2   bool  `bun:"correct2" json:"correct2"`
	Finished2  bool  `bun:"finished2" json:"finished2"`
}

// Complete reports whether both participants finished the question.
func (q *MatchQuestion) Complete() bool { return q.Finished1 && q.Finished2 }

// SideStarted reports whether the given slot has viewed the question.
func (q *MatchQuestion) SideStarted(slot int) bool {
	if slot == 1 {
		return q.TimeStart1 > 0
	}
	return q.TimeStart2 > 0
}

// SideFinished reports whether the given slot has a final answer state.
func (q *MatchQuestion) SideFinished(slot int) bool {
	if slot == 1 {
		return q.Finished1
	}
	return q.Finished2
}

// SideStart returns the view timestamp for the slot.
func (q *MatchQuestion) SideStart(slot int) int64 {
	if slot == 1 {
		return q.TimeStart1
	}
	return q.TimeStart2
}

// MarkStarted stamps the view time for a slot if not already stamped.
func (q *MatchQuestion) MarkStarted(slot int, now int64) {
	if slot == 1 && q.TimeStart1 == 0 {
		q.TimeStart1 = now
	}
	if slot == 2 && q.TimeStart2 == 0 {
		q.TimeStart2 = now
	}
}

// Finalize records the terminal answer state for a slot.
func (q *MatchQuestion) Finalize(slot int, answerID int64, score int, correct bool) {
	if slot == 1 {
		q.AnswerID1, q.Score1, q.Correct1, q.Finished1 = answerID, score, correct, true
		return
	}
	q.AnswerID2, q.Score2, q.Correct2, q.Finished2 = answerID, score, correct, true
}

// Outcome resolves the per-question winner: the side with the non-zero score,
// the higher score when both scored, neither when neither side was correct.
func (q *MatchQuestion) Outcome() Outcome {
	if !q.Complete() {
		return OutcomeOpen
	}
	return CompareScores(q.Score1, q.Score2)
}

// Attempt is an immutable audit record of one participant's engagement with a
// question. It may exist without an answer ("viewed but not answered").
type Attempt struct {
	bun.BaseModel `bun:"table:attempts"`

	ID            int64 `bun:"id,pk,autoincrement" json:"id"`
	QuestionID    int64 `bun:"question_id" json:"questionId"`
	MatchID       int64 `bun:"match_id" json:"matchId"`
	UserID        int64 `bun:"user_id" json:"userId"`
	AnswerID      int64 `bun:"answer_id" json:"answerId"`
	Score         int   `bun:"score" json:"score"`
	Correct       bool  `bun:"correct" json:"correct"`
	TimeRemaining int   `bun:"time_remaining" json:"timeRemaining"`
	Finished      bool  `bun:"finished" json:"finished"`
	CreatedAt     int64 `bun:"created_at" json:"createdAt"`
}

// Participant is a member of a game's pairing pool. Inactive participants are
// skipped when a round generates matches.
type Participant struct {
	bun.BaseModel `bun:"table:participants"`

	ID       int64 `bun:"id,pk,autoincrement" json:"id"`
	GameID   int64 `bun:"game_id" json:"gameId"`
	UserID   int64 `bun:"user_id" json:"userId"`
	Inactive bool  `bun:"inactive" json:"inactive"`
}

// Tournament is the single-elimination bracket mode of a game.
type Tournament struct {
	bun.BaseModel `bun:"table:tournaments"`

	ID     int64           `bun:"id,pk,autoincrement" json:"id"`
	GameID int64           `bun:"game_id" json:"gameId"`
	Name   string          `bun:"name" json:"name"`
	State  TournamentState `bun:"state" json:"state"`
	Winner int64           `bun:"winner" json:"winner"`
}

// TournamentTopic binds a question pool to one bracket step.
type TournamentTopic struct {
	bun.BaseModel `bun:"table:tournament_topics"`

	ID             int64 `bun:"id,pk,autoincrement" json:"id"`
	TournamentID   int64 `bun:"tournament_id" json:"tournamentId"`
	Step           int   `bun:"step" json:"step"`
	Level          int   `bun:"level" json:"level"`
	BankCategoryID int64 `bun:"bank_category_id" json:"bankCategoryId"`
}

// TournamentMatch is one pairing at a given bracket step. Winner 0 means the
// pairing is still open.
type TournamentMatch struct {
	bun.BaseModel `bun:"table:tournament_matches"`

	ID           int64 `bun:"id,pk,autoincrement" json:"id"`
	TournamentID int64 `bun:"tournament_id" json:"tournamentId"`
	Step         int   `bun:"step" json:"step"`
	User1        int64 `bun:"user1" json:"user1"`
	User2        int64 `bun:"user2" json:"user2"`
	Winner       int64 `bun:"winner" json:"winner"`
}

// Slot returns 1 or 2 for a participant of the pairing, 0 for anyone else.
func (m *TournamentMatch) Slot(userID int64) int {
	switch userID {
	case m.User1:
		return 1
	case m.User2:
		return 2
	}
	return 0
}

// TournamentQuestion tracks one participant's answer state for a topic inside
// a pairing. Both participants of a pairing share the BankQuestionID of the
// first row seeded for the topic but keep independent answer state.
type TournamentQuestion struct {
	bun.BaseModel `bun:"table:tournament_questions"`

	ID             int64  `bun:"id,pk,autoincrement" json:"id"`
	TournamentID   int64  `bun:"tournament_id" json:"tournamentId"`
	MatchID        int64  `bun:"match_id" json:"matchId"`
	TopicID        int64  `bun:"topic_id" json:"topicId"`
	UserID         int64  `bun:"user_id" json:"userId"`
	BankQuestionID int64  `bun:"bank_question_id" json:"bankQuestionId"`
	AnswerOrder    string `bun:"answer_order" json:"answerOrder"`
	TimeStart      int64  `bun:"time_start" json:"timeStart"`
	AnswerID       int64  `bun:"answer_id" json:"answerId"`
	Score          int    `bun:"score" json:"score"`
	Correct        bool   `bun:"correct" json:"correct"`
	Finished       bool   `bun:"finished" json:"finished"`
}

// Message is an outbox entry consumed by the delivery pass.
type Message struct {
	bun.BaseModel `bun:"table:messages"`

	ID        int64         `bun:"id,pk,autoincrement" json:"id"`
	Type      MessageType   `bun:"type" json:"type"`
	Status    MessageStatus `bun:"status" json:"status"`
	UserID    int64         `bun:"user_id" json:"userId"`
	GameID    int64         `bun:"game_id" json:"gameId"`
	RoundID   int64         `bun:"round_id" json:"roundId"`
	MatchID   int64         `bun:"match_id" json:"matchId"`
	CreatedAt int64         `bun:"created_at" json:"createdAt"`
}

// JoinIDs renders an id sequence as the persisted comma-joined form.
func JoinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// SplitIDs parses the persisted comma-joined id form. Malformed entries are
// dropped rather than defaulted.
func SplitIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
