package engine

import "sync/atomic"

// Clock is the engine's logical clock. Every invocation and completion is
// stamped with a strictly increasing seq; wall time never orders events.
//
// Safe for concurrent use, though only the engine's writer calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// timeline clamps externally supplied times so the engine's notion of now
// never moves backwards. Zero means "no time supplied" and resolves to the
// last seen time.
type timeline struct {
	last int64
}

func (t *timeline) stamp(at int64) int64 {
	if at > t.last {
		t.last = at
	}
	return t.last
}

// Now returns the latest time the engine has seen.
func (t *timeline) Now() int64 {
	return t.last
}
