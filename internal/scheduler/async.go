package scheduler

import (
	"context"
	"sync"

	"github.com/hoohou/plumber/internal/graph"
)

// asyncCompletion carries an async task's result back to the RSC that
// suspended for it (§4.7: "the completion thread posts a TaskCompletion
// event on the equeue with a back-pointer to the RSC").
type asyncCompletion struct {
	rsc    *RSC
	node   graph.NodeID
	result interface{}
	err    error
	cleanup func(ctx context.Context, result interface{}, err error)
}

// AsyncPool is the dedicated thread pool async tasks' exec phase runs on,
// freeing the worker that suspended (§4.7, §5 "fixed-size async offload
// pool"). It is a fixed-size goroutine pool fed by a buffered channel,
// grounded on the teacher's worker-pool-as-buffered-channel-semaphore
// idiom, generalized from "acquire a slot, run inline" to "acquire a slot,
// run on a pool goroutine, post completion".
type AsyncPool struct {
	sem chan struct{}
	eq  *Equeue
	wg  sync.WaitGroup
}

// NewAsyncPool constructs a pool with the given concurrency limit, posting
// completions to eq.
func NewAsyncPool(size int, eq *Equeue) *AsyncPool {
	if size <= 0 {
		size = 1
	}
	return &AsyncPool{sem: make(chan struct{}, size), eq: eq}
}

// Submit runs exec on a pool goroutine once a slot is free, then pushes an
// EventTaskCompletion carrying the result and the cleanup phase. setup has
// already run synchronously by the time Submit is called (see
// schedulerContext.Async).
func (p *AsyncPool) Submit(ctx context.Context, rsc *RSC, node graph.NodeID, state interface{},
	exec func(ctx context.Context, state interface{}) (interface{}, error),
	cleanup func(ctx context.Context, result interface{}, err error)) {

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		result, err := exec(ctx, state)

		completion := &asyncCompletion{rsc: rsc, node: node, result: result, err: err, cleanup: cleanup}
		_ = p.eq.Push(ctx, Event{Kind: EventTaskCompletion, Priority: 0, Completion: completion})
	}()
}

// Wait blocks until every submitted exec phase has returned; used at
// shutdown (scheduler_kill) to avoid dropping in-flight async work.
func (p *AsyncPool) Wait() { p.wg.Wait() }
