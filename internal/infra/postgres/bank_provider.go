package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

// BankProvider reads the question bank from Postgres. The bank tables
// (bank_categories, bank_questions, bank_answers) are owned by the content
// pipeline; this provider never writes them. Runs on a separate pgx pool so
// bulky bank reads do not compete with the game store's connections.
type BankProvider struct {
	pool *pgxpool.Pool
}

var _ content.Provider = (*BankProvider)(nil)

func NewBankProvider(pool *pgxpool.Pool) *BankProvider {
	return &BankProvider{pool: pool}
}

func (p *BankProvider) QuestionIDs(ctx context.Context, categoryID int64, subcategories bool) ([]int64, error) {
	var rows pgx.Rows
	var err error
	if subcategories {
		rows, err = p.pool.Query(ctx, `
			WITH RECURSIVE tree AS (
				SELECT id FROM bank_categories WHERE id = $1
				UNION ALL
				SELECT c.id FROM bank_categories c JOIN tree t ON c.parent_id = t.id
			)
			SELECT q.id FROM bank_questions q JOIN tree t ON q.category_id = t.id
			ORDER BY q.id`, categoryID)
	} else {
		rows, err = p.pool.Query(ctx, `
			SELECT id FROM bank_questions WHERE category_id = $1 ORDER BY id`, categoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("list bank questions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bank question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *BankProvider) Question(ctx context.Context, id int64) (content.BankQuestion, error) {
	var q content.BankQuestion
	err := p.pool.QueryRow(ctx, `
		SELECT id, category_id, prompt FROM bank_questions WHERE id = $1`, id).
		Scan(&q.ID, &q.CategoryID, &q.Prompt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return content.BankQuestion{}, domain.ErrNotFound
		}
		return content.BankQuestion{}, fmt.Errorf("load bank question: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, text, correct FROM bank_answers WHERE question_id = $1 ORDER BY id`, id)
	if err != nil {
		return content.BankQuestion{}, fmt.Errorf("load bank answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a content.BankAnswer
		if err := rows.Scan(&a.ID, &a.Text, &a.Correct); err != nil {
			return content.BankQuestion{}, fmt.Errorf("scan bank answer: %w", err)
		}
		q.Answers = append(q.Answers, a)
	}
	return q, rows.Err()
}
