package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEqueuePopOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewEqueue(0)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Event{Kind: EventIO, Priority: 5, ModulePath: "low-a"}))
	require.NoError(t, q.Push(ctx, Event{Kind: EventIO, Priority: 1, ModulePath: "high"}))
	require.NoError(t, q.Push(ctx, Event{Kind: EventIO, Priority: 5, ModulePath: "low-b"}))

	ev, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "high", ev.ModulePath)

	ev, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "low-a", ev.ModulePath)

	ev, err = q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "low-b", ev.ModulePath)
}

func TestEqueuePushBlocksWhenFull(t *testing.T) {
	q := NewEqueue(1)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, Event{Kind: EventIO, ModulePath: "first"}))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(ctx, Event{Kind: EventIO, ModulePath: "second"}) }()

	select {
	case <-pushed:
		t.Fatal("push should have blocked while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := q.Pop(ctx)
	require.NoError(t, err)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after a pop freed capacity")
	}
}

func TestEqueuePopReturnsErrorAfterClose(t *testing.T) {
	q := NewEqueue(0)
	q.Close()

	_, err := q.Pop(context.Background())
	require.Error(t, err)
}

func TestEqueuePushCancelledByContext(t *testing.T) {
	q := NewEqueue(1)
	require.NoError(t, q.Push(context.Background(), Event{Kind: EventIO}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := q.Push(ctx, Event{Kind: EventIO})
	require.Error(t, err)
}
