package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrIterationLimit is returned once the iteration ceiling is reached.
	ErrIterationLimit = errors.New("iteration limit reached")
	// ErrCostLimit is returned once cumulative cost exceeds the ceiling.
	ErrCostLimit = errors.New("cost limit exceeded")
)

// RunLimiter enforces the iteration and cost ceilings of a run.
// A zero ceiling means unlimited.
type RunLimiter struct {
	maxIterations int
	maxCost       float64
	iterations    int
	cost          float64
	mu            sync.Mutex
}

// NewRunLimiter creates a limiter with the given ceilings.
func NewRunLimiter(maxIterations int, maxCost float64) *RunLimiter {
	return &RunLimiter{maxIterations: maxIterations, maxCost: maxCost}
}

// Tick counts one scheduler iteration and returns the new count.
func (rl *RunLimiter) Tick() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.iterations++

	return rl.iterations
}

// AddCost accumulates cost and returns the new total.
func (rl *RunLimiter) AddCost(c float64) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cost += c

	return rl.cost
}

// Check returns ErrIterationLimit or ErrCostLimit when a ceiling is hit.
func (rl *RunLimiter) Check() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.maxIterations > 0 && rl.iterations >= rl.maxIterations {
		return fmt.Errorf("%w: %d", ErrIterationLimit, rl.maxIterations)
	}

	if rl.maxCost > 0 && rl.cost >= rl.maxCost {
		return fmt.Errorf("%w: %.2f >= %.2f", ErrCostLimit, rl.cost, rl.maxCost)
	}

	return nil
}

// Iterations returns the number of ticks counted so far.
func (rl *RunLimiter) Iterations() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.iterations
}

// Cost returns the cumulative cost.
func (rl *RunLimiter) Cost() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.cost
}

// Remaining returns how many iterations are left, or -1 when unlimited.
func (rl *RunLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.maxIterations == 0 {
		return -1
	}

	return rl.maxIterations - rl.iterations
}
