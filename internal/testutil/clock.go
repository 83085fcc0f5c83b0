package testutil

import (
	"sync"
	"time"
)

// Epoch is the first timestamp handed out by a StepClock.
var Epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// StepClock is a deterministic wall clock for tests. Every call to Now
// returns the previous value advanced by a fixed step, so timestamps are
// strictly increasing and identical across test runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewStepClock creates a clock starting at Epoch and advancing one second
// per call.
func NewStepClock() *StepClock {
	return NewStepClockAt(Epoch, time.Second)
}

// NewStepClockAt creates a clock starting at start and advancing by step.
// A non-positive step is replaced by one second.
func NewStepClockAt(start time.Time, step time.Duration) *StepClock {
	if step <= 0 {
		step = time.Second
	}
	return &StepClock{start: start.UTC(), step: step}
}

// Now returns the next timestamp. The first call returns the start time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns the number of timestamps handed out.
func (c *StepClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock to its start time.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
