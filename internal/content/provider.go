// Package content defines the question-bank collaborator: a read-only source
// of multiple-choice questions grouped into categories.
package content

import "context"

// BankAnswer is one answer of a bank question.
type BankAnswer struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// BankQuestion is a multiple-choice question as stored in the bank.
type BankQuestion struct {
	ID         int64        `json:"id"`
	CategoryID int64        `json:"categoryId"`
	Prompt     string       `json:"prompt"`
	Answers    []BankAnswer `json:"answers"`
}

// AnswerIDs returns the identity answer order of the question.
func (q BankQuestion) AnswerIDs() []int64 {
	ids := make([]int64, len(q.Answers))
	for i, a := range q.Answers {
		ids[i] = a.ID
	}
	return ids
}

// Correct reports whether the given answer id is a correct answer of the
// question. Answer id 0 (no answer) is never correct.
func (q BankQuestion) Correct(answerID int64) bool {
	for _, a := range q.Answers {
		if a.ID == answerID && a.Correct {
			return true
		}
	}
	return false
}

// Provider is the question-bank collaborator. Implementations must treat the
// bank as read-only.
type Provider interface {
	// QuestionIDs lists the ids available under a bank category, optionally
	// including its subcategories.
	QuestionIDs(ctx context.Context, categoryID int64, subcategories bool) ([]int64, error)
	// Question returns the full definition for a bank question id. It fails
	// with domain.ErrNotFound for unknown ids.
	Question(ctx context.Context, id int64) (BankQuestion, error)
}
