package scheduler

import (
	"container/heap"
	"context"
	"sync"

	"github.com/hoohou/plumber/internal/itc/pipe"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// EventKind distinguishes the two producers of equeue events (§4.6, §4.7):
// a module delivering a new request, or an async task announcing it has
// finished its exec phase.
type EventKind int

const (
	// EventIO is a module's accept_event result: a fresh request arriving
	// on a paired (in, out) pipe handle.
	EventIO EventKind = iota
	// EventTaskCompletion is an async task's exec phase finishing.
	EventTaskCompletion
)

// Event is one entry on the equeue.
type Event struct {
	Kind     EventKind
	Priority int // lower value runs first

	// IO fields, valid when Kind == EventIO.
	ModulePath string
	In, Out    *pipe.Handle

	// Completion fields, valid when Kind == EventTaskCompletion.
	Completion *asyncCompletion

	seq int // tie-breaker for FIFO order within equal priority
}

// equeueHeap is a min-heap ordered by (Priority, seq).
type equeueHeap []*Event

func (h equeueHeap) Len() int { return len(h) }
func (h equeueHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h equeueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *equeueHeap) Push(x interface{}) { *h = append(*h, x.(*Event)) }
func (h *equeueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Equeue is the bounded, priority-ordered, multi-producer multi-consumer
// queue between event-producing module threads / async completions and the
// worker pool (§4.6, §5 "Shared-resource policy": back-pressure on a full
// queue rather than an unbounded buffer).
type Equeue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	heap     equeueHeap
	capacity int
	nextSeq  int
	closed   bool
}

// NewEqueue constructs a bounded equeue. capacity <= 0 means unbounded.
func NewEqueue(capacity int) *Equeue {
	q := &Equeue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push enqueues ev, blocking while the queue is full. It returns an error
// if ctx is cancelled first or the queue has been closed.
func (q *Equeue) Push(ctx context.Context, ev Event) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.capacity > 0 && len(q.heap) >= q.capacity && !q.closed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.notFull.Wait()
	}
	if q.closed {
		return pkgerrors.NewFatalError("equeue.Push", "equeue is closed")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	ev.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, &ev)
	q.notEmpty.Signal()
	return nil
}

// Pop blocks until an event is available or ctx is done / the queue is
// closed and drained.
func (q *Equeue) Pop(ctx context.Context) (Event, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.closed {
		if ctx.Err() != nil {
			return Event{}, ctx.Err()
		}
		q.notEmpty.Wait()
	}
	if len(q.heap) == 0 {
		return Event{}, pkgerrors.NewFatalError("equeue.Pop", "equeue is closed")
	}

	ev := heap.Pop(&q.heap).(*Event)
	q.notFull.Signal()
	return *ev, nil
}

// Close wakes every blocked Push/Pop; a Pop on a closed, drained queue
// returns an error.
func (q *Equeue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len reports the current queue depth, for inspection/metrics.
func (q *Equeue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
