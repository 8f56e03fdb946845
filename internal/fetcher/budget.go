package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RequestBudget caps API requests per fixed window. REDCap enforces a
// per-user rate limit (600 requests per minute by default) and answers 429
// once it is exceeded.
type RequestBudget struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	remaining int
	reset     time.Time
	now       func() time.Time
}

// NewRequestBudget returns a budget of limit requests per window. A limit
// <= 0 disables throttling.
func NewRequestBudget(limit int, window time.Duration) *RequestBudget {
	if window <= 0 {
		window = time.Minute
	}
	return &RequestBudget{
		limit:     limit,
		window:    window,
		remaining: limit,
		now:       time.Now,
	}
}

func (b *RequestBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

func (b *RequestBudget) Acquire(ctx context.Context, n int) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if n <= 0 {
		return fmt.Errorf("Acquire: n must be > 0 (got %d)", n)
	}
	if b == nil {
		return fmt.Errorf("Acquire: nil RequestBudget")
	}
	if b.now == nil {
		return fmt.Errorf("Acquire: RequestBudget.now is nil (use NewRequestBudget)")
	}
	if b.limit <= 0 {
		return ctx.Err()
	}

	for i := 0; i < n; i++ {
		if err := b.acquireOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *RequestBudget) acquireOne(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		now := b.now()
		if b.reset.IsZero() || !now.Before(b.reset) {
			b.remaining = b.limit
			b.reset = now.Add(b.window)
		}
		if b.remaining > 0 {
			b.remaining--
			b.mu.Unlock()
			return nil
		}
		wait := b.reset.Sub(now)
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}
