package memory

import (
	"context"
	"sync"
	"testing"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

func questionFixture(id int64) content.BankQuestion {
	return content.BankQuestion{
		ID:      id,
		Answers: []content.BankAnswer{{ID: 1, Correct: true}, {ID: 2}},
	}
}

func TestFinishMatchIsSingleWriter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	match := &domain.Match{RoundID: 1, User1: 11, User2: 22}
	if err := store.CreateMatch(ctx, match); err != nil {
		t.Fatalf("create: %v", err)
	}

	var mu sync.Mutex
	wins := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(winner int64) {
			defer wg.Done()
			applied, err := store.FinishMatch(ctx, match.ID, winner, 10)
			if err != nil {
				t.Errorf("finish: %v", err)
				return
			}
			if applied {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(11 + i%2*11))
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d writers won the finish, want exactly 1", wins)
	}
	got, err := store.Match(ctx, match.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Finished() {
		t.Fatalf("match left open after concurrent finishes")
	}
}

func TestCreateQuestionIfAbsentReturnsWinner(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, err := store.CreateQuestionIfAbsent(ctx, &domain.MatchQuestion{
		MatchID: 5, Number: 1, BankQuestionID: 501, AnswerOrder: "1,2",
	})
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := store.CreateQuestionIfAbsent(ctx, &domain.MatchQuestion{
		MatchID: 5, Number: 1, BankQuestionID: 999, AnswerOrder: "9,8",
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID || second.BankQuestionID != 501 {
		t.Fatalf("race loser got %+v, want the winner's row", second)
	}
}

func TestUpdateMatchCannotWriteWinner(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	match := &domain.Match{RoundID: 1, User1: 11, User2: 22}
	if err := store.CreateMatch(ctx, match); err != nil {
		t.Fatalf("create: %v", err)
	}
	match.Winner = 11
	match.Abandoned = true
	if err := store.UpdateMatch(ctx, match); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Match(ctx, match.ID)
	if got.Winner != 0 {
		t.Fatalf("plain update wrote the winner column")
	}
	if !got.Abandoned {
		t.Fatalf("plain update lost the abandoned flag")
	}
}

func TestClaimMessagesSkipsSent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for i := 0; i < 3; i++ {
		if err := store.EnqueueMessage(ctx, &domain.Message{
			Type:   domain.MessageMatchStarted,
			Status: domain.MessagePendingStatus,
			UserID: int64(i + 1),
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	claimed, err := store.ClaimMessages(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("claimed %d, want 3", len(claimed))
	}
	if err := store.MarkMessageSent(ctx, claimed[0].ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	// Sent messages stay out; progress messages are re-claimed.
	again, err := store.ClaimMessages(ctx, 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("reclaimed %d, want 2", len(again))
	}
	for _, m := range again {
		if m.ID == claimed[0].ID {
			t.Fatalf("sent message reclaimed")
		}
	}
}

func TestProviderSubcategoryExpansion(t *testing.T) {
	p := NewProvider()
	p.AddQuestion(1, questionFixture(101))
	p.AddQuestion(2, questionFixture(102))
	p.AddQuestion(3, questionFixture(103))
	p.AddChild(1, 2)
	p.AddChild(2, 3)

	flat, err := p.QuestionIDs(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if len(flat) != 1 {
		t.Fatalf("flat listing %v, want just the parent's question", flat)
	}
	deep, err := p.QuestionIDs(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("deep: %v", err)
	}
	if len(deep) != 3 {
		t.Fatalf("deep listing %v, want the whole subtree", deep)
	}
}
