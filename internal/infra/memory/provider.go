package memory

import (
	"context"
	"sync"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/domain"
)

// Provider serves a fixed question bank from memory. Category ids map to
// question id lists; the subcategories flag additionally pulls in the listed
// child categories.
type Provider struct {
	mu        sync.RWMutex
	questions map[int64]content.BankQuestion
	byCat     map[int64][]int64
	children  map[int64][]int64
}

var _ content.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{
		questions: make(map[int64]content.BankQuestion),
		byCat:     make(map[int64][]int64),
		children:  make(map[int64][]int64),
	}
}

// AddQuestion registers a bank question under a category.
func (p *Provider) AddQuestion(categoryID int64, question content.BankQuestion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions[question.ID] = question
	p.byCat[categoryID] = append(p.byCat[categoryID], question.ID)
}

// AddChild links a child category under a parent for subcategory expansion.
func (p *Provider) AddChild(parentID, childID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[parentID] = append(p.children[parentID], childID)
}

func (p *Provider) QuestionIDs(ctx context.Context, categoryID int64, subcategories bool) ([]int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := append([]int64(nil), p.byCat[categoryID]...)
	if subcategories {
		for _, child := range p.collect(categoryID) {
			ids = append(ids, p.byCat[child]...)
		}
	}
	return ids, nil
}

// collect walks the category tree below a parent.
func (p *Provider) collect(parentID int64) []int64 {
	var out []int64
	queue := append([]int64(nil), p.children[parentID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		queue = append(queue, p.children[id]...)
	}
	return out
}

func (p *Provider) Question(ctx context.Context, id int64) (content.BankQuestion, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.questions[id]
	if !ok {
		return content.BankQuestion{}, domain.ErrNotFound
	}
	return q, nil
}
