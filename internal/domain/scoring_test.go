package domain_test

import (
	"testing"
	"time"

	"arena-quiz-service/internal/domain"
)

func TestScoreIncorrectIsAlwaysZero(t *testing.T) {
	start := time.Unix(1000, 0)
	for _, elapsed := range []time.Duration{0, 5 * time.Second, 29 * time.Second, time.Hour} {
		points, _ := domain.Score(false, start, start.Add(elapsed), 30)
		if points != 0 {
			t.Fatalf("incorrect answer after %v scored %d, want 0", elapsed, points)
		}
	}
}

func TestScoreInstantCorrectEqualsBudget(t *testing.T) {
	start := time.Unix(1000, 0)
	points, remaining := domain.Score(true, start, start, 30)
	if points != 30 || remaining != 30 {
		t.Fatalf("got points=%d remaining=%d, want 30/30", points, remaining)
	}
}

func TestScoreMonotonicInElapsed(t *testing.T) {
	start := time.Unix(1000, 0)
	prev := 31
	for elapsed := 0; elapsed <= 40; elapsed++ {
		points, _ := domain.Score(true, start, start.Add(time.Duration(elapsed)*time.Second), 30)
		if points > prev {
			t.Fatalf("score increased from %d to %d at elapsed=%ds", prev, points, elapsed)
		}
		prev = points
	}
	if prev != 0 {
		t.Fatalf("expected zero score past the budget, got %d", prev)
	}
}

func TestScoreClampsEarlySubmission(t *testing.T) {
	start := time.Unix(1000, 0)
	// Submission clock skewed before the start never exceeds the budget.
	points, remaining := domain.Score(true, start, start.Add(-3*time.Second), 30)
	if points != 30 || remaining != 30 {
		t.Fatalf("got points=%d remaining=%d, want clamp to 30/30", points, remaining)
	}
}

func TestResolveDuel(t *testing.T) {
	cases := []struct {
		name                 string
		wins1, wins2         int
		total1, total2       int
		want                 domain.Outcome
	}{
		{"more wins", 2, 1, 40, 25, domain.OutcomeUser1},
		{"fewer wins despite score", 1, 2, 99, 10, domain.OutcomeUser2},
		{"wins tied score decides", 1, 1, 25, 20, domain.OutcomeUser1},
		{"wins tied lower score loses", 1, 1, 10, 20, domain.OutcomeUser2},
		{"full tie", 1, 1, 20, 20, domain.OutcomeDraw},
		{"nobody scored", 0, 0, 0, 0, domain.OutcomeDraw},
	}
	for _, tc := range cases {
		got := domain.ResolveDuel(tc.wins1, tc.wins2, tc.total1, tc.total2)
		if got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestQuestionOutcome(t *testing.T) {
	q := &domain.MatchQuestion{Finished1: true, Finished2: true, Score1: 25, Score2: 0}
	if q.Outcome() != domain.OutcomeUser1 {
		t.Fatalf("expected user1 to take the question")
	}
	q = &domain.MatchQuestion{Finished1: true, Finished2: true}
	if q.Outcome() != domain.OutcomeDraw {
		t.Fatalf("expected a scoreless question to count for neither side")
	}
	q = &domain.MatchQuestion{Finished1: true}
	if q.Outcome() != domain.OutcomeOpen {
		t.Fatalf("expected an incomplete question to stay open")
	}
}
