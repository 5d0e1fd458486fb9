package engine

import "sync/atomic"

// Clock numbers pick events. The first pick gets 1. Numbering survives
// Reload, and a pick log persisted across runs continues where it stopped
// when the engine is built WithClock(NewClockAt(lastSeq)).
type Clock struct {
	last atomic.Int64
}

// NewClock returns a Clock whose first Next is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a Clock whose first Next is last+1.
func NewClockAt(last int64) *Clock {
	var c Clock
	c.last.Store(last)
	return &c
}

// Next reserves and returns the next pick number.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the number handed out last, 0 before any pick.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
