package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"redcapgrade/internal/grading"
	"redcapgrade/internal/redcap"
)

// gradeFunc grades the project behind one student token.
type gradeFunc func(ctx context.Context, token string) (grading.Evaluation, error)

// Scheduler runs gradeFunc over student tokens with bounded concurrency.
type Scheduler struct {
	concurrency int
}

func NewScheduler(concurrency int) (*Scheduler, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{concurrency: concurrency}, nil
}

// Execute grades every token and returns the rows in token order.
//
// The first failure cancels the remaining work and is returned; no partial
// result is returned with it.
func (s *Scheduler) Execute(ctx context.Context, tokens []string, grade gradeFunc) ([]grading.Evaluation, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	if s == nil {
		return nil, errors.New("scheduler is nil")
	}
	if grade == nil {
		return nil, errors.New("grade func is nil")
	}

	rows := make([]grading.Evaluation, len(tokens))
	err := s.Each(ctx, len(tokens), func(ctx context.Context, i int) error {
		row, err := grade(ctx, tokens[i])
		if err != nil {
			return fmt.Errorf("student #%d (%s): %w", i+1, redcap.MaskToken(tokens[i]), err)
		}
		rows[i] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Each calls fn for 0..n-1 with bounded concurrency and stops at the first
// error.
func (s *Scheduler) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
