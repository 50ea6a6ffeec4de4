// Package testutil provides deterministic time and identity sources for
// tests and conformance scenarios.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a StepClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a wall clock that advances by a fixed step on every reading.
//
// The same scenario read through a fresh StepClock produces the same
// timestamps, so traces containing them can be compared byte for byte.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewStepClock creates a clock whose first reading is start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, now: start, step: step}
}

// Now returns the current reading and advances the clock.
// Matches the func() time.Time shape that WithNow options take.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d without producing a reading.
// Fake sleepers use this to make delays visible in durations.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
