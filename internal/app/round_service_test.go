package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
)

type roundFixture struct {
	store    *memory.Store
	provider *memory.Provider
	svc      *app.RoundService
	clock    *fakeClock
	game     *domain.Game
}

func newRoundFixture(t *testing.T) *roundFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	provider := memory.NewProvider()
	clock := &fakeClock{at: time.Unix(100000, 0)}

	game := &domain.Game{
		Name:              "daily trivia",
		QuestionsPerRound: 1,
		QuestionSeconds:   30,
		RoundUnit:         "hours",
		RoundValue:        1,
	}
	if err := store.CreateGame(ctx, game); err != nil {
		t.Fatalf("create game: %v", err)
	}
	provider.AddQuestion(7, content.BankQuestion{
		ID:      501,
		Answers: []content.BankAnswer{{ID: 1, Correct: true}, {ID: 2}},
	})

	return &roundFixture{
		store:    store,
		provider: provider,
		svc:      app.NewRoundServiceWithClock(store, provider, clock.Now),
		clock:    clock,
		game:     game,
	}
}

func (f *roundFixture) join(t *testing.T, users ...int64) {
	t.Helper()
	for _, u := range users {
		if err := f.svc.JoinGame(context.Background(), f.game.ID, u); err != nil {
			t.Fatalf("join %d: %v", u, err)
		}
	}
}

func TestSaveRoundNumbersContiguously(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()

	first, err := f.svc.SaveRound(ctx, 0, f.game.ID, "opening", nil, nil)
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	second, err := f.svc.SaveRound(ctx, 0, f.game.ID, "second", nil, nil)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if first.Number != 1 || second.Number != 2 {
		t.Fatalf("numbers %d/%d, want 1/2", first.Number, second.Number)
	}
	if first.State != domain.RoundPending {
		t.Fatalf("new round state %s, want pending", first.State)
	}
}

func TestSaveRoundUnknownGame(t *testing.T) {
	f := newRoundFixture(t)

	_, err := f.svc.SaveRound(context.Background(), 0, f.game.ID+1000, "ghost", nil, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSaveRoundCategoryWindows(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()

	r1, err := f.svc.SaveRound(ctx, 0, f.game.ID, "opening", []*domain.Category{
		{BankCategoryID: 7},
	}, nil)
	if err != nil {
		t.Fatalf("save r1: %v", err)
	}
	cats, err := f.store.CategoriesByGame(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("load cats: %v", err)
	}
	if len(cats) != 1 || cats[0].RoundFirst != 1 || cats[0].RoundLast != 0 {
		t.Fatalf("category window %+v, want open from round 1", cats[0])
	}

	// Removing from a later round closes the window; removing from the round
	// that opened it deletes the row.
	r2, err := f.svc.SaveRound(ctx, 0, f.game.ID, "second", nil, nil)
	if err != nil {
		t.Fatalf("save r2: %v", err)
	}
	if _, err := f.svc.SaveRound(ctx, r2.ID, f.game.ID, "", nil, []int64{cats[0].ID}); err != nil {
		t.Fatalf("close category: %v", err)
	}
	cats, err = f.store.CategoriesByGame(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("reload cats: %v", err)
	}
	if len(cats) != 1 || cats[0].RoundLast != 1 {
		t.Fatalf("category window %+v, want closed at round 1", cats[0])
	}

	added, err := f.svc.SaveRound(ctx, r1.ID, f.game.ID, "", []*domain.Category{
		{BankCategoryID: 9, RoundFirst: 1},
	}, nil)
	if err != nil {
		t.Fatalf("add to r1: %v", err)
	}
	cats, _ = f.store.CategoriesByGame(ctx, f.game.ID)
	if _, err := f.svc.SaveRound(ctx, added.ID, f.game.ID, "", nil, []int64{cats[1].ID}); err != nil {
		t.Fatalf("remove fresh category: %v", err)
	}
	cats, _ = f.store.CategoriesByGame(ctx, f.game.ID)
	if len(cats) != 1 {
		t.Fatalf("fresh category should be deleted outright, %d rows remain", len(cats))
	}
}

func TestScheduleRoundValidation(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()

	round, err := f.svc.SaveRound(ctx, 0, f.game.ID, "opening", nil, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	now := f.clock.at.Unix()

	if err := f.svc.ScheduleRound(ctx, round.ID, now+100, now+50); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("inverted window: got %v, want ErrValidation", err)
	}
	if err := f.svc.ScheduleRound(ctx, round.ID, now-10, now+100); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("past start: got %v, want ErrValidation", err)
	}
	if err := f.svc.ScheduleRound(ctx, round.ID, now+60, now+3660); err != nil {
		t.Fatalf("valid schedule: %v", err)
	}

	round.State = domain.RoundActive
	if err := f.store.UpdateRound(ctx, round); err != nil {
		t.Fatalf("force active: %v", err)
	}
	if err := f.svc.ScheduleRound(ctx, round.ID, now+60, now+120); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("reschedule active: got %v, want ErrInvalidState", err)
	}
}

func TestActivationPassPairsParticipants(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()
	f.join(t, 11, 22, 33, 44, 55)

	round, err := f.svc.SaveRound(ctx, 0, f.game.ID, "opening", []*domain.Category{{BankCategoryID: 7}}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	now := f.clock.at.Unix()
	if err := f.svc.ScheduleRound(ctx, round.ID, now+60, now+3600); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Before the window opens nothing happens.
	if err := f.svc.ActivationPass(ctx, f.clock.at); err != nil {
		t.Fatalf("early pass: %v", err)
	}
	got, _ := f.store.Round(ctx, round.ID)
	if got.State != domain.RoundPending {
		t.Fatalf("round activated before its window")
	}

	f.clock.Advance(2 * time.Minute)
	if err := f.svc.ActivationPass(ctx, f.clock.at); err != nil {
		t.Fatalf("pass: %v", err)
	}
	got, _ = f.store.Round(ctx, round.ID)
	if got.State != domain.RoundActive {
		t.Fatalf("round state %s, want active", got.State)
	}
	if got.Questions != f.game.QuestionsPerRound {
		t.Fatalf("questions snapshot %d, want %d", got.Questions, f.game.QuestionsPerRound)
	}

	matches, err := f.store.MatchesByRound(ctx, round.ID)
	if err != nil {
		t.Fatalf("load matches: %v", err)
	}
	// Five participants pair into two matches; one sits out.
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	seen := make(map[int64]bool)
	for _, m := range matches {
		for _, u := range []int64{m.User1, m.User2} {
			if seen[u] {
				t.Fatalf("user %d paired twice", u)
			}
			seen[u] = true
		}
	}

	var started int
	for _, m := range f.store.Messages() {
		if m.Type == domain.MessageMatchStarted {
			started++
		}
	}
	if started != 4 {
		t.Fatalf("match_started messages %d, want 4", started)
	}

	// Re-running the pass must not re-activate or re-pair.
	if err := f.svc.ActivationPass(ctx, f.clock.at); err != nil {
		t.Fatalf("repeat pass: %v", err)
	}
	matches, _ = f.store.MatchesByRound(ctx, round.ID)
	if len(matches) != 2 {
		t.Fatalf("repeat pass changed matches to %d", len(matches))
	}
}

func TestActivationPassFinishesExpiredRound(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()
	f.join(t, 11, 22)

	round, err := f.svc.SaveRound(ctx, 0, f.game.ID, "opening", []*domain.Category{{BankCategoryID: 7}}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	now := f.clock.at.Unix()
	if err := f.svc.ScheduleRound(ctx, round.ID, now+60, now+120); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	f.clock.Advance(90 * time.Second)
	if err := f.svc.ActivationPass(ctx, f.clock.at); err != nil {
		t.Fatalf("activate: %v", err)
	}

	f.clock.Advance(90 * time.Second)
	if err := f.svc.ActivationPass(ctx, f.clock.at); err != nil {
		t.Fatalf("finish pass: %v", err)
	}
	got, _ := f.store.Round(ctx, round.ID)
	if got.State != domain.RoundFinished {
		t.Fatalf("round state %s, want finished", got.State)
	}
	matches, _ := f.store.MatchesByRound(ctx, round.ID)
	if len(matches) != 1 || !matches[0].Abandoned {
		t.Fatalf("never-played match should be abandoned, got %+v", matches)
	}
}

func TestStopRoundAbandonsAndDeactivates(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()
	f.join(t, 11, 22)

	round, err := f.svc.SaveRound(ctx, 0, f.game.ID, "opening", []*domain.Category{{BankCategoryID: 7}}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	now := f.clock.at.Unix()
	if err := f.svc.ScheduleRound(ctx, round.ID, now+60, now+3600); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	if err := f.svc.ActivationPass(ctx, f.clock.at); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := f.svc.StopRound(ctx, round.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, _ := f.store.Round(ctx, round.ID)
	if got.State != domain.RoundFinished || got.TimeEnd != f.clock.at.Unix() {
		t.Fatalf("stopped round %+v", got)
	}
	matches, _ := f.store.MatchesByRound(ctx, round.ID)
	if !matches[0].Abandoned {
		t.Fatalf("incomplete match not abandoned")
	}
	active, _ := f.store.ActiveParticipants(ctx, f.game.ID)
	if len(active) != 0 {
		t.Fatalf("idle participants still active: %v", active)
	}

	if err := f.svc.StopRound(ctx, round.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double stop: got %v, want ErrInvalidState", err)
	}
}

func TestDeleteRoundRenumbers(t *testing.T) {
	f := newRoundFixture(t)
	ctx := context.Background()

	var rounds []*domain.Round
	for _, name := range []string{"one", "two", "three"} {
		r, err := f.svc.SaveRound(ctx, 0, f.game.ID, name, nil, nil)
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		rounds = append(rounds, r)
	}
	// A category window pinned to round 3 must follow the renumbering.
	if _, err := f.svc.SaveRound(ctx, rounds[2].ID, f.game.ID, "", []*domain.Category{
		{BankCategoryID: 7, RoundFirst: 3},
	}, nil); err != nil {
		t.Fatalf("add category: %v", err)
	}

	if err := f.svc.DeleteRound(ctx, rounds[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	remaining, err := f.store.RoundsByGame(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("load rounds: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d rounds, want 2", len(remaining))
	}
	if remaining[0].Name != "one" || remaining[0].Number != 1 {
		t.Fatalf("first round %+v", remaining[0])
	}
	if remaining[1].Name != "three" || remaining[1].Number != 2 {
		t.Fatalf("renumbered round %+v", remaining[1])
	}
	cats, _ := f.store.CategoriesByGame(ctx, f.game.ID)
	if cats[0].RoundFirst != 2 {
		t.Fatalf("category window %+v, want round_first 2", cats[0])
	}

	if err := f.svc.DeleteRound(ctx, rounds[0].ID); err != nil {
		t.Fatalf("delete pending: %v", err)
	}
	// Active rounds cannot be deleted.
	remaining, _ = f.store.RoundsByGame(ctx, f.game.ID)
	remaining[0].State = domain.RoundActive
	if err := f.store.UpdateRound(ctx, remaining[0]); err != nil {
		t.Fatalf("force active: %v", err)
	}
	if err := f.svc.DeleteRound(ctx, remaining[0].ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("delete active: got %v, want ErrInvalidState", err)
	}
}
