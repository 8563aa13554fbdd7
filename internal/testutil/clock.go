// Package testutil holds deterministic stand-ins for time, flow tokens and
// principals used across package tests and scenarios.
package testutil

import "sync"

// Epoch is the default scenario start time (2023-11-14T22:13:20Z).
const Epoch int64 = 1_700_000_000

// Timeline is a controllable unix-seconds clock for feeding call times to
// the engine. The engine never reads the wall clock, so tests drive
// deadlines by advancing a Timeline.
//
// Safe for concurrent use.
type Timeline struct {
	mu  sync.Mutex
	now int64
}

// NewTimeline starts a timeline at start; zero means Epoch.
func NewTimeline(start int64) *Timeline {
	if start == 0 {
		start = Epoch
	}
	return &Timeline{now: start}
}

// Now returns the current time.
func (t *Timeline) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Advance moves time forward by seconds and returns the new time.
// Negative values are ignored.
func (t *Timeline) Advance(seconds int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seconds > 0 {
		t.now += seconds
	}
	return t.now
}

// Set jumps to at if it is later than now.
func (t *Timeline) Set(at int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at > t.now {
		t.now = at
	}
	return t.now
}
