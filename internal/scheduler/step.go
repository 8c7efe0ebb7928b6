package scheduler

import (
	"context"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/itc/pipe"
	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/internal/task"
)

// StepResult mirrors the step() return codes in §4.5: Progressed means a
// task ran (or was skipped on the cancel path) and the loop should be
// called again; Idle means the ready queue is empty — either the request
// is complete (no outstanding async) or it is parked awaiting an async
// completion; the loop should stop calling Step until re-woken.
type StepResult int

const (
	Idle StepResult = iota
	Progressed
)

// Step runs exactly one task from rsc's ready queue, implementing the
// per-node Init/Exec/Unload sequencing chosen to resolve §9 Open Question
// (b) (see rsc.go's nodePhase doc). asyncPool backs any Async call a
// servlet's Exec makes.
func Step(ctx context.Context, rsc *RSC, asyncPool *AsyncPool) (StepResult, error) {
	id, ok := rsc.popReady()
	if !ok {
		return Idle, nil
	}

	if rsc.isCancelled() {
		return stepCancelled(ctx, rsc, id, asyncPool)
	}

	switch rsc.getPhase(id) {
	case phasePending:
		return stepRun(ctx, rsc, id, task.ActionInit, asyncPool, phaseInitDone, true)
	case phaseInitDone:
		res, err := stepRun(ctx, rsc, id, task.ActionExec, asyncPool, phaseExecDone, true)
		// Successors become ready as soon as this node's exec has returned
		// and its outputs are finalised (§4.5 step 4), not after its
		// unload — unload is this runtime's chosen cleanup-ordering
		// resolution of §9 Open Question (b), not a gate on downstream
		// progress.
		if err == nil && rsc.getPhase(id) == phaseExecDone {
			advanceSuccessors(rsc, id)
		}
		return res, err
	case phaseExecDone:
		return stepRun(ctx, rsc, id, task.ActionUnload, asyncPool, phaseUnloadDone, false)
	default:
		return Progressed, nil
	}
}

// stepCancelled implements the cancellation path (§5 "Cancellation"): a
// node whose init already ran gets its unload invoked (skipping exec);
// a node that never started is simply dropped.
func stepCancelled(ctx context.Context, rsc *RSC, id graph.NodeID, asyncPool *AsyncPool) (StepResult, error) {
	switch rsc.getPhase(id) {
	case phaseInitDone, phaseExecDone:
		_, err := stepRun(ctx, rsc, id, task.ActionUnload, asyncPool, phaseUnloadDone, false)
		return Progressed, err
	default:
		return Progressed, nil
	}
}

// stepRun invokes one action on node id. On success it transitions the
// node's phase and, if requeue is true, re-enqueues the node so the next
// Step call drives it to its next phase. A servlet error aborts the
// request (§4.5 "Failure handling").
func stepRun(ctx context.Context, rsc *RSC, id graph.NodeID, action task.Flags, asyncPool *AsyncPool, onSuccess nodePhase, requeue bool) (StepResult, error) {
	n := rsc.Graph.Nodes[id]
	s := rsc.servlets[id]

	sc := newSchedulerContext(ctx, rsc, id, asyncPool)
	t := task.New(0, id, s, rsc.argv[id], action, rsc.pipes[id])

	err := t.Run(ctx, sc)

	if sc.suspended {
		// Exec called Async: the node stays at its current phase until the
		// completion event advances it; do not requeue here, the async
		// completion handler does that.
		return Progressed, nil
	}

	if err != nil {
		rsc.abort(err)
		rsc.logf("node %d action %s failed: %v", id, action, err)
		// Requeue so the cancellation path (stepCancelled) picks this node
		// back up: if init already completed (this was an exec failure),
		// that drives its unload; if init itself failed, the node's phase
		// is still phasePending and stepCancelled drops it untouched. An
		// unload failure is not requeued — unload already ran.
		if action != task.ActionUnload {
			rsc.pushReady(id)
		}
		return Progressed, err
	}

	if action == task.ActionExec {
		flushOutputs(n, rsc.pipes[id])
	}

	rsc.setPhase(id, onSuccess)
	if requeue {
		rsc.pushReady(id)
	}
	return Progressed, nil
}

// flushOutputs finalises every output pipe of a node once its exec has
// returned, per §4.5 step 4 ("flush_and_finalise(task.pipes[out_pd])").
// pipe.Handle.Finalize already encodes the PERSIST contract: a persistent
// pipe's state survives untouched for the next request on the same
// connection, everything else is disposed here.
func flushOutputs(n *graph.Node, pipes []*pipe.Handle) {
	for i, d := range n.PDs {
		if d.Direction != servlet.DirOutput {
			continue
		}
		if i >= len(pipes) || pipes[i] == nil {
			continue
		}
		_ = pipes[i].Finalize()
	}
}

// advanceSuccessors walks the edges leaving id and enqueues any
// destination node whose inputs are now all satisfied (§4.5 step 4).
func advanceSuccessors(rsc *RSC, id graph.NodeID) {
	seen := make(map[graph.NodeID]bool)
	for _, e := range rsc.Graph.Edges {
		if e.SrcNode != id || seen[e.DstNode] {
			continue
		}
		seen[e.DstNode] = true
		if rsc.getPhase(e.DstNode) != phasePending {
			continue
		}
		if rsc.allInputsReady(e.DstNode) {
			rsc.pushReady(e.DstNode)
		}
	}
}

// CompleteAsync finishes an async task's suspension: it runs the cleanup
// phase on the calling (worker) goroutine, flushes the node's outputs,
// advances it to phaseExecDone, requeues it and advances its successors;
// the caller then resumes stepping (§4.7 "the consuming worker runs the
// cleanup phase on-thread and resumes the step loop").
func CompleteAsync(ctx context.Context, c *asyncCompletion) {
	rsc := c.rsc
	rsc.decAsync()

	if rsc.isCancelled() {
		// §5: "their completion sees the cancellation flag and discards
		// results" — still run cleanup so any resources it holds are
		// released, but do not advance the graph. The node's Init has run,
		// so requeue it for stepCancelled to drive its Unload.
		if c.cleanup != nil {
			c.cleanup(ctx, c.result, c.err)
		}
		rsc.pushReady(c.node)
		return
	}

	if c.cleanup != nil {
		c.cleanup(ctx, c.result, c.err)
	}
	if c.err != nil {
		rsc.abort(c.err)
		// Same requeue as stepRun's error path: the node's phase is still
		// phaseInitDone, so stepCancelled drives its unload instead of
		// leaving it stranded.
		rsc.pushReady(c.node)
		return
	}

	n := rsc.Graph.Nodes[c.node]
	flushOutputs(n, rsc.pipes[c.node])
	rsc.setPhase(c.node, phaseExecDone)
	// Requeue this node's own Unload phase before waking successors, the
	// same order the synchronous exec path observes (a node's own
	// continuation is enqueued before its downstream neighbors).
	rsc.pushReady(c.node)
	advanceSuccessors(rsc, c.node)
}
