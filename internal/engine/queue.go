package engine

import (
	"context"
	"sync"
)

// Reply is the result of a queued request.
type Reply struct {
	Outcome Outcome
	Err     error
}

type pending struct {
	ctx   context.Context
	req   Request
	reply chan Reply
}

// requestQueue is an unbounded FIFO of requests waiting for the Run loop.
//
// Enqueue never blocks, so callers on other goroutines can submit while the
// loop is busy. The signal channel lets Run wait without spinning and wakes
// it when the queue is closed.
type requestQueue struct {
	mu      sync.Mutex
	pending []pending
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		pending: make([]pending, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue. Returns false if the
// queue is closed.
func (q *requestQueue) Enqueue(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, p)

	// Coalesce signals; one wakeup drains everything.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return pending{}, false
	}
	p := q.pending[0]

	// Clear the slot so the reply channel and args can be collected.
	q.pending[0] = pending{}
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return p, true
}

// Wait returns a channel that signals when requests may be available.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops new requests and hands back the ones still queued.
func (q *requestQueue) Close() []pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	rest := q.pending
	q.pending = nil
	return rest
}
