package core

import (
	"fmt"
	"sync"
)

// StepLimiter caps the number of generator rounds of one task.
type StepLimiter struct {
	mu    sync.Mutex
	max   int
	steps int
}

// NewStepLimiter creates a limiter allowing max steps. Zero means unlimited.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Acquire counts one step. It fails with ErrStepLimitExceeded once the
// budget is spent; refused steps are not counted.
func (l *StepLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 && l.steps >= l.max {
		return fmt.Errorf("%w: %d", ErrStepLimitExceeded, l.max)
	}
	l.steps++
	return nil
}

// Steps returns the number of acquired steps.
func (l *StepLimiter) Steps() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps
}

// Remaining returns the steps left, or -1 when unlimited.
func (l *StepLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max == 0 {
		return -1
	}
	return l.max - l.steps
}
