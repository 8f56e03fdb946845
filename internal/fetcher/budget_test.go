package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestBudget(t *testing.T) {
	fixedNow := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Acquire within limit", func(t *testing.T) {
		b := NewRequestBudget(3, time.Minute)
		b.now = func() time.Time { return fixedNow }

		if err := b.Acquire(context.Background(), 3); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if rem := b.Remaining(); rem != 0 {
			t.Fatalf("Expected 0 remaining, got %d", rem)
		}
	})

	t.Run("Exhausted budget blocks until context ends", func(t *testing.T) {
		b := NewRequestBudget(1, time.Minute)
		b.now = func() time.Time { return fixedNow }
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := b.Acquire(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Expected deadline exceeded, got %v", err)
		}
	})

	t.Run("Window rollover refills", func(t *testing.T) {
		now := fixedNow
		b := NewRequestBudget(2, time.Minute)
		b.now = func() time.Time { return now }

		if err := b.Acquire(context.Background(), 2); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		now = now.Add(time.Minute)
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("Acquire after rollover failed: %v", err)
		}
		if rem := b.Remaining(); rem != 1 {
			t.Fatalf("Expected 1 remaining, got %d", rem)
		}
	})

	t.Run("Waits for real window", func(t *testing.T) {
		b := NewRequestBudget(1, 30*time.Millisecond)
		start := time.Now()
		if err := b.Acquire(context.Background(), 2); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Fatalf("Expected to wait for the window, waited %v", elapsed)
		}
	})

	t.Run("Unlimited never blocks", func(t *testing.T) {
		b := NewRequestBudget(0, 0)
		if err := b.Acquire(context.Background(), 10_000); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	})

	t.Run("Invalid arguments", func(t *testing.T) {
		b := NewRequestBudget(1, time.Minute)
		var nilCtx context.Context
		if err := b.Acquire(nilCtx, 1); err == nil {
			t.Fatalf("expected error for nil context")
		}
		if err := b.Acquire(context.Background(), 0); err == nil {
			t.Fatalf("expected error for n=0")
		}
		var nilBudget *RequestBudget
		if err := nilBudget.Acquire(context.Background(), 1); err == nil {
			t.Fatalf("expected error for nil budget")
		}
	})
}
