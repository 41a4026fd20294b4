package engine

import "sync/atomic"

// Clock stamps submitted operations with strictly increasing sequence
// numbers. The zero value starts at 0 and is ready to use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock. Safe for concurrent use; no two calls return the
// same value.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the last value handed out, or 0.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
