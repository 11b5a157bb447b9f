package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrModelCallLimit is wrapped by ModelLimiter.Increment once the budget is spent.
var ErrModelCallLimit = errors.New("model call limit reached")

// ModelLimiter bounds the model calls of one loop run. A run issues at most
// MaxIterations tool-bearing calls plus one final call, so the loop sizes it
// to MaxIterations+1.
type ModelLimiter struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewModelLimiter returns a limiter allowing limit calls; 0 means unlimited.
func NewModelLimiter(limit int) *ModelLimiter {
	return &ModelLimiter{limit: limit}
}

// Increment reserves one call. A rejected call is not counted.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.limit > 0 && ml.used >= ml.limit {
		return fmt.Errorf("%w (%d)", ErrModelCallLimit, ml.limit)
	}
	ml.used++
	return nil
}

// Count returns the number of reserved calls.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.used
}

// Limit returns the configured budget.
func (ml *ModelLimiter) Limit() int { return ml.limit }

// Remaining returns the calls left, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.limit == 0 {
		return -1
	}
	return ml.limit - ml.used
}
