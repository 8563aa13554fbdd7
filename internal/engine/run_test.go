package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
)

func TestRun_SubmitConcurrent(t *testing.T) {
	e := New(owner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Submit(ctx, Request{Caller: alice, Action: "Kelsen.createOrgan", At: t0})
			assert.NoError(t, err)
			assert.NoError(t, out.Err)
		}()
	}
	wg.Wait()

	assert.Len(t, e.World().Organs(), callers)
	assert.Equal(t, int64(2*callers), e.Seq())

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	_, err := e.Submit(ctx, Request{Caller: alice, Action: "Kelsen.createOrgan"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestRun_ContextCancel(t *testing.T) {
	e := New(owner)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok := e.Enqueue(context.Background(), Request{Action: "Kelsen.createOrgan"})
	assert.False(t, ok)
}

func TestRun_RepliesInOrder(t *testing.T) {
	e := New(owner)

	// Queue before the loop starts so the order is fixed.
	var replies []<-chan Reply
	for i := 0; i < 3; i++ {
		r, ok := e.Enqueue(context.Background(), Request{Caller: alice, Action: "Kelsen.createOrgan"})
		require.True(t, ok)
		replies = append(replies, r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	reg := e.World().Registry().Address()
	for i, r := range replies {
		reply := <-r
		require.NoError(t, reply.Err)
		s, _ := reply.Outcome.Result().Str("organ")
		assert.Equal(t, ir.DeriveAddress(reg, uint64(i)).Hex(), s)
	}
}

func TestStop_AnswersQueuedRequests(t *testing.T) {
	e := New(owner)
	r, ok := e.Enqueue(context.Background(), Request{Caller: alice, Action: "Kelsen.createOrgan"})
	require.True(t, ok)

	e.Stop()
	reply := <-r
	assert.ErrorIs(t, reply.Err, ErrQueueClosed)
}
