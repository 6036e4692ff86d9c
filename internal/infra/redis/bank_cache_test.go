package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"arena-quiz-service/internal/content"
	"arena-quiz-service/internal/infra/memory"
)

func TestBankCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	inner := memory.NewProvider()
	inner.AddQuestion(7, content.BankQuestion{
		ID:      501,
		Answers: []content.BankAnswer{{ID: 1, Correct: true}, {ID: 2}},
	})
	counting := &countingProvider{Provider: inner}
	cache := NewBankCache(client, counting, time.Minute)

	ids, err := cache.QuestionIDs(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("question ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 501 {
		t.Fatalf("got ids %v, want [501]", ids)
	}
	if counting.listCalls != 1 {
		t.Fatalf("expected one loader call, got %d", counting.listCalls)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := cache.QuestionIDs(context.Background(), 7, false); err != nil {
		t.Fatalf("cached question ids: %v", err)
	}
	if counting.listCalls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", counting.listCalls)
	}

	q, err := cache.Question(context.Background(), 501)
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	if !q.Correct(1) {
		t.Fatalf("cached question lost answer data: %+v", q)
	}
	if _, err := cache.Question(context.Background(), 501); err != nil {
		t.Fatalf("cached question: %v", err)
	}
	if counting.questionCalls != 1 {
		t.Fatalf("expected one question load, got %d", counting.questionCalls)
	}
}

func TestBankCacheKeysAreDepthSensitive(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	inner := memory.NewProvider()
	inner.AddQuestion(7, content.BankQuestion{ID: 501})
	inner.AddQuestion(8, content.BankQuestion{ID: 502})
	inner.AddChild(7, 8)
	cache := NewBankCache(client, inner, time.Minute)

	flat, err := cache.QuestionIDs(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	deep, err := cache.QuestionIDs(context.Background(), 7, true)
	if err != nil {
		t.Fatalf("deep: %v", err)
	}
	if len(flat) != 1 || len(deep) != 2 {
		t.Fatalf("flat=%v deep=%v, want 1 and 2 ids", flat, deep)
	}
	if !mr.Exists("bank:cat:7:flat") || !mr.Exists("bank:cat:7:deep") {
		t.Fatalf("expected separate keys per depth")
	}
}

type countingProvider struct {
	content.Provider
	listCalls     int
	questionCalls int
}

func (p *countingProvider) QuestionIDs(ctx context.Context, categoryID int64, subcategories bool) ([]int64, error) {
	p.listCalls++
	return p.Provider.QuestionIDs(ctx, categoryID, subcategories)
}

func (p *countingProvider) Question(ctx context.Context, id int64) (content.BankQuestion, error) {
	p.questionCalls++
	return p.Provider.Question(ctx, id)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
