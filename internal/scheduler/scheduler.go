// Package scheduler drives service graphs to completion: the per-request
// step loop (§4.5), the event loop that turns module events into RSCs
// (§4.6), async offload (§4.7), and the worker pool and equeue that tie
// them together (§5).
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/itc/module"
	"github.com/hoohou/plumber/internal/plog"
	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Config controls the scheduler's resource limits (§5 "Threading model").
type Config struct {
	// Workers is the fixed worker pool size N.
	Workers int
	// AsyncPoolSize is the fixed-size async offload pool.
	AsyncPoolSize int
	// EqueueCapacity bounds the event queue; <=0 means unbounded.
	EqueueCapacity int
}

// Scheduler owns the equeue, the worker pool (a buffered-channel semaphore,
// grounded on the teacher's execCtx.WorkerPool idiom), one goroutine per
// event-producing module, and the async offload pool.
type Scheduler struct {
	cfg      Config
	graph    *graph.Graph
	servlets *servlet.Registry
	modules  *module.Registry
	logger   *plog.Logger

	equeue    *Equeue
	asyncPool *AsyncPool
	workerSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool

	totalRequests  atomic.Int64
	activeRequests atomic.Int64
}

// Stats is a point-in-time snapshot of scheduler activity, polled by the
// inspector's live dashboard (§ domain stack: "live request-rate view").
type Stats struct {
	Workers        int
	AsyncPoolSize  int
	EqueueLen      int
	TotalRequests  int64
	ActiveRequests int64
}

// Stats returns a snapshot of current scheduler activity.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Workers:        s.cfg.Workers,
		AsyncPoolSize:  s.cfg.AsyncPoolSize,
		EqueueLen:      s.equeue.Len(),
		TotalRequests:  s.totalRequests.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

// New constructs a Scheduler bound to a frozen service graph, the servlet
// registry used to instantiate per-request node instances, and the module
// registry whose EventProducers feed the event loop.
func New(cfg Config, g *graph.Graph, servlets *servlet.Registry, modules *module.Registry, logger *plog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.AsyncPoolSize <= 0 {
		cfg.AsyncPoolSize = 4
	}
	eq := NewEqueue(cfg.EqueueCapacity)
	return &Scheduler{
		cfg:       cfg,
		graph:     g,
		servlets:  servlets,
		modules:   modules,
		logger:    logger,
		equeue:    eq,
		asyncPool: NewAsyncPool(cfg.AsyncPoolSize, eq),
		workerSem: make(chan struct{}, cfg.Workers),
	}
}

// Start implements scheduler_start(graph) (§6): it launches one goroutine
// per event-producing module and the fixed worker pool, all driven by an
// internally owned, cancellable context.
func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(parent)
	ctx := s.ctx
	s.mu.Unlock()

	for _, producer := range s.modules.EventProducers() {
		s.wg.Add(1)
		go s.runEventLoop(ctx, producer)
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}
	return nil
}

// Kill implements scheduler_kill(no_error_if_not_started) (§6): it cancels
// the scheduler's context, closes the equeue so blocked workers wake up,
// waits for every async task's exec phase and every goroutine to return.
func (s *Scheduler) Kill(noErrorIfNotStarted bool) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		if noErrorIfNotStarted {
			return nil
		}
		return pkgerrors.NewUsageError("scheduler.Kill", "scheduler was not started")
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.equeue.Close()
	s.asyncPool.Wait()
	s.wg.Wait()
	return nil
}

// runEventLoop is one event-producing module's thread: it calls
// AcceptEvent in a loop, pushing each result onto the equeue with the
// module's priority, until the thread-killed flag (ctx cancellation) is
// observed (§4.6, §5 "Module accept_event respects the thread-killed
// flag").
func (s *Scheduler) runEventLoop(ctx context.Context, producer module.EventProducer) {
	defer s.wg.Done()
	defer producer.EventThreadKilled()

	for {
		if ctx.Err() != nil {
			return
		}
		in, out, err := producer.AcceptEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept_event failed", "module", producer.Path(), "error", err)
			continue
		}

		ev := Event{
			Kind:       EventIO,
			Priority:   producer.Priority(),
			ModulePath: producer.Path(),
			In:         in,
			Out:        out,
		}
		if pushErr := s.equeue.Push(ctx, ev); pushErr != nil {
			return
		}
	}
}

// runWorker is one worker thread: it pops equeue events, translating an
// EventIO into a fresh RSC seeded from the default service graph and an
// EventTaskCompletion into a resumed step loop, driving each to
// completion or suspension before returning for the next event (§4.6,
// §5 "each thread owns its RSCs while stepping them").
func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()

	for {
		ev, err := s.equeue.Pop(ctx)
		if err != nil {
			return
		}

		switch ev.Kind {
		case EventIO:
			s.handleIOEvent(ctx, ev)
		case EventTaskCompletion:
			CompleteAsync(ctx, ev.Completion)
			s.drain(ctx, ev.Completion.rsc)
		}
	}
}

func (s *Scheduler) handleIOEvent(ctx context.Context, ev Event) {
	rsc, err := NewRSC(s.graph, s.servlets, s.logger)
	if err != nil {
		s.logger.Error("failed to construct rsc", "error", err)
		return
	}

	if ev.In != nil {
		rsc.BindPipe(s.graph.Input.Node, s.graph.Input.PD, ev.In)
	}
	if ev.Out != nil {
		rsc.BindPipe(s.graph.Output.Node, s.graph.Output.PD, ev.Out)
	}

	s.totalRequests.Add(1)
	s.activeRequests.Add(1)

	rsc.SeedRoots()
	s.drain(ctx, rsc)
}

// drain steps rsc until it is idle: either the request has completed (no
// outstanding async, empty ready queue) or it has parked awaiting an async
// completion (§4.2 "the worker releases the RSC ... and returns to the
// pool").
func (s *Scheduler) drain(ctx context.Context, rsc *RSC) {
	for {
		result, err := Step(ctx, rsc, s.asyncPool)
		if err != nil {
			// Abort already recorded on rsc; keep draining the cancel path
			// so every initialized node's unload still runs.
			continue
		}
		if result == Idle {
			if rsc.Done() {
				rsc.Close()
				s.activeRequests.Add(-1)
			}
			return
		}
	}
}
