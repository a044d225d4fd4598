// Package reconciler implements the per-direction reconciliation engine: the
// circuit breaker, the recommendation interpreter and the direction state
// machine driving the offer/share/refine loop.
package reconciler

import (
	"context"
	"fmt"

	"github.com/ashureev/accord-labs/internal/domain"
	"github.com/ashureev/accord-labs/internal/store"
)

// MaxAnalysisPasses is the number of full analysis passes permitted per
// direction. The next check after the budget is spent returns ShouldSkip and
// every later one does too; the counter is never reset.
const MaxAnalysisPasses = 3

// BreakerVerdict is the outcome of one circuit breaker check.
type BreakerVerdict struct {
	Attempts   int
	ShouldSkip bool
}

// CircuitBreaker gates analysis passes on the persisted refinement counter.
// It is the sole authority on whether a pass may run; callers must consult
// it before touching the gap analyzer.
type CircuitBreaker struct {
	repo store.Repository
}

// NewCircuitBreaker creates a circuit breaker over the given repository.
func NewCircuitBreaker(repo store.Repository) *CircuitBreaker {
	return &CircuitBreaker{repo: repo}
}

// CheckAndIncrement atomically claims one analysis slot for the direction.
// The increment doubles as the in-flight claim: a duplicate submission for
// the same direction observes a higher attempt number, never the same one.
func (b *CircuitBreaker) CheckAndIncrement(ctx context.Context, d domain.Direction) (BreakerVerdict, error) {
	attempts, err := b.repo.IncrementRefinementCounter(ctx, d)
	if err != nil {
		return BreakerVerdict{}, fmt.Errorf("circuit breaker check for %s: %w", d.Key(), err)
	}
	return BreakerVerdict{
		Attempts:   attempts,
		ShouldSkip: attempts > MaxAnalysisPasses,
	}, nil
}
