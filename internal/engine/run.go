package engine

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by Submit after Stop or after Run returned.
var ErrQueueClosed = errors.New("engine queue closed")

// Enqueue submits a request to the Run loop. The returned channel receives
// exactly one Reply. Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ctx context.Context, req Request) (<-chan Reply, bool) {
	reply := make(chan Reply, 1)
	if !e.queue.Enqueue(pending{ctx: ctx, req: req, reply: reply}) {
		return nil, false
	}
	return reply, true
}

// Submit enqueues req and waits for its reply.
func (e *Engine) Submit(ctx context.Context, req Request) (Outcome, error) {
	reply, ok := e.Enqueue(ctx, req)
	if !ok {
		return Outcome{}, ErrQueueClosed
	}
	select {
	case r := <-reply:
		return r.Outcome, r.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Run drains the request queue until ctx is cancelled or Stop is called.
// Must be called from exactly one goroutine. Requests still queued at
// shutdown are answered with ErrQueueClosed.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "seq", e.clock.Current())

	for {
		if p, ok := e.queue.TryDequeue(); ok {
			e.serve(p)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.drain(e.queue.Close())
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue, so this fires
			// immediately after Stop.
			if e.queue.Len() == 0 && e.closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once it notices.
func (e *Engine) Stop() {
	e.drain(e.queue.Close())
}

func (e *Engine) closed() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

func (e *Engine) serve(p pending) {
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := e.Apply(ctx, p.req)
	p.reply <- Reply{Outcome: out, Err: err}
}

func (e *Engine) drain(rest []pending) {
	for _, p := range rest {
		p.reply <- Reply{Err: ErrQueueClosed}
	}
}
