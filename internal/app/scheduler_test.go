package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
)

type recordingLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
}

func (l *recordingLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *recordingLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.releases++
	return nil
}

func TestRunPassHoldsAndReleasesLock(t *testing.T) {
	store := memory.NewStore()
	provider := memory.NewProvider()
	clock := &fakeClock{at: time.Unix(400000, 0)}
	lock := &recordingLock{}

	scheduler := app.NewScheduler(
		app.NewRoundServiceWithClock(store, provider, clock.Now),
		app.NewBracketService(store, provider),
		app.NewMessageService(store, app.NotifierFunc(func(context.Context, *domain.Message) error { return nil }), 10),
		lock,
	)

	if err := scheduler.RunPass(context.Background(), clock.at); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if lock.acquires != 1 || lock.releases != 1 {
		t.Fatalf("acquires=%d releases=%d, want 1/1", lock.acquires, lock.releases)
	}

	// A held lease skips the pass without error.
	lock.held = true
	if err := scheduler.RunPass(context.Background(), clock.at); err != nil {
		t.Fatalf("contended pass: %v", err)
	}
	if lock.releases != 1 {
		t.Fatalf("skipped pass released a lease it never held")
	}
}
