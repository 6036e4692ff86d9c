package domain

import "time"

// Score computes the points for one answered (or timed-out) question side.
// timeRemaining is the unexpired share of the budget at submission, clamped
// to [0, budget]; points equal timeRemaining for a correct answer and 0
// otherwise. Faster correct answers therefore never score less than slower
// ones.
func Score(correct bool, started, submitted time.Time, budgetSeconds int) (points, timeRemaining int) {
	elapsed := int(submitted.Sub(started) / time.Second)
	timeRemaining = budgetSeconds - elapsed
	if timeRemaining < 0 {
		timeRemaining = 0
	}
	if timeRemaining > budgetSeconds {
		timeRemaining = budgetSeconds
	}
	if !correct {
		return 0, timeRemaining
	}
	return timeRemaining, timeRemaining
}

// ResolveDuel decides a two-sided contest from per-question win counts and
// score totals: more question wins first, higher total second, OutcomeDraw on
// a full tie. Both the round match engine and the bracket pairing engine
// resolve through here; only the handling of OutcomeDraw differs between
// them.
func ResolveDuel(wins1, wins2, total1, total2 int) Outcome {
	if wins1 != wins2 {
		if wins1 > wins2 {
			return OutcomeUser1
		}
		return OutcomeUser2
	}
	if total1 != total2 {
		if total1 > total2 {
			return OutcomeUser1
		}
		return OutcomeUser2
	}
	return OutcomeDraw
}

// CompareScores resolves a single question between two finished sides: the
// side with the non-zero score takes it, higher score wins when both scored.
func CompareScores(score1, score2 int) Outcome {
	switch {
	case score1 == 0 && score2 == 0:
		return OutcomeDraw
	case score1 > score2:
		return OutcomeUser1
	case score2 > score1:
		return OutcomeUser2
	}
	// Equal non-zero scores contribute to neither side's win count.
	return OutcomeDraw
}
