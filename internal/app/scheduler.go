package app

import (
	"context"
	"log"
	"time"
)

// PassLock serializes scheduler passes across instances. Acquire returns
// false when another instance holds the lease.
type PassLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// nopLock runs passes unguarded, for single-instance deployments and tests.
type nopLock struct{}

func (nopLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (nopLock) Release(ctx context.Context) error         { return nil }

// Scheduler runs the periodic pass chain: round activation, bracket
// advancement, message generation and delivery. Each pass takes the tick time
// as an argument so time-driven transitions stay deterministic under test.
type Scheduler struct {
	rounds   *RoundService
	brackets *BracketService
	messages *MessageService
	lock     PassLock
}

func NewScheduler(rounds *RoundService, brackets *BracketService, messages *MessageService, lock PassLock) *Scheduler {
	if lock == nil {
		lock = nopLock{}
	}
	return &Scheduler{rounds: rounds, brackets: brackets, messages: messages, lock: lock}
}

// RunPass executes one full pass chain under the pass lock. A pass failure is
// logged and does not stop the later passes; every pass is re-entrant so the
// next tick repairs whatever was left undone.
func (s *Scheduler) RunPass(ctx context.Context, now time.Time) error {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			log.Printf("scheduler: release lock: %v", err)
		}
	}()

	if err := s.rounds.ActivationPass(ctx, now); err != nil {
		log.Printf("scheduler: activation pass: %v", err)
	}
	if err := s.brackets.AdvancePass(ctx); err != nil {
		log.Printf("scheduler: advance pass: %v", err)
	}
	if err := s.messages.GeneratePass(ctx, now); err != nil {
		log.Printf("scheduler: generate pass: %v", err)
	}
	if err := s.messages.DeliveryPass(ctx); err != nil {
		log.Printf("scheduler: delivery pass: %v", err)
	}
	return nil
}

// Run ticks RunPass until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.RunPass(ctx, now); err != nil {
				log.Printf("scheduler: pass: %v", err)
			}
		}
	}
}
