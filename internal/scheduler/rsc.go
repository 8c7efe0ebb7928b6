package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/itc/pipe"
	"github.com/hoohou/plumber/internal/plog"
	"github.com/hoohou/plumber/internal/rls"
	"github.com/hoohou/plumber/internal/servlet"
)

// nodePhase tracks one node's progress through its per-request lifecycle.
// The graph's own pseudocode (§4.5) dispatches a single generic
// task.action(); this runtime resolves the ambiguity the spec leaves open
// (§9 Open Question (b), ordering of unload on cancellation) by always
// running a node's three actions in the fixed order Init, Exec, Unload,
// strictly sequentially within one RSC — siblings drain in ready-queue
// (FIFO) order rather than interleaving. See DESIGN.md.
type nodePhase int

const (
	phasePending nodePhase = iota
	phaseInitDone
	phaseExecDone
	phaseUnloadDone
)

// RSC (request scheduler context) drives one request's service graph to
// completion (§4.2, glossary "RSC").
type RSC struct {
	mu sync.Mutex

	Graph    *graph.Graph
	Scope    *rls.Scope
	logger   *plog.Logger
	servlets map[graph.NodeID]servlet.Servlet
	argv     map[graph.NodeID][]string
	pipes    map[graph.NodeID][]*pipe.Handle

	phase     map[graph.NodeID]nodePhase
	ready     []graph.NodeID
	cancelled bool
	firstErr  error

	outstandingAsync int
}

// NewRSC constructs an RSC bound to g, instantiating one servlet per node
// from reg.
func NewRSC(g *graph.Graph, reg *servlet.Registry, logger *plog.Logger) (*RSC, error) {
	rsc := &RSC{
		Graph:    g,
		Scope:    rls.New(),
		logger:   logger,
		servlets: make(map[graph.NodeID]servlet.Servlet, len(g.Nodes)),
		argv:     make(map[graph.NodeID][]string, len(g.Nodes)),
		pipes:    make(map[graph.NodeID][]*pipe.Handle, len(g.Nodes)),
		phase:    make(map[graph.NodeID]nodePhase, len(g.Nodes)),
	}
	for id, n := range g.Nodes {
		s, err := reg.New(n.ServletName)
		if err != nil {
			return nil, err
		}
		rsc.servlets[id] = s
		rsc.argv[id] = n.Argv
		rsc.pipes[id] = make([]*pipe.Handle, len(n.PDs))
		rsc.phase[id] = phasePending
	}
	return rsc, nil
}

// BindPipe installs the pipe handle bound to node's PD index pd.
func (rsc *RSC) BindPipe(node graph.NodeID, pd servlet.PD, h *pipe.Handle) {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	rsc.pipes[node][pd] = h
}

// Pipe returns the handle bound to node's PD index pd, or nil if unbound.
func (rsc *RSC) Pipe(node graph.NodeID, pd servlet.PD) *pipe.Handle {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	return rsc.pipes[node][pd]
}

// SeedRoots enqueues every node with no inbound edges (§4.6: "seeds it with
// init tasks for all nodes that have no inbound edges").
func (rsc *RSC) SeedRoots() {
	hasIncoming := make(map[graph.NodeID]bool, len(rsc.Graph.Nodes))
	for _, e := range rsc.Graph.Edges {
		hasIncoming[e.DstNode] = true
	}
	ids := make([]graph.NodeID, 0, len(rsc.Graph.Nodes))
	for id := range rsc.Graph.Nodes {
		if !hasIncoming[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rsc.mu.Lock()
	rsc.ready = append(rsc.ready, ids...)
	rsc.mu.Unlock()
}

// Done reports whether the request has nothing left to do: the ready
// queue is empty and no async task is outstanding.
func (rsc *RSC) Done() bool {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	return len(rsc.ready) == 0 && rsc.outstandingAsync == 0
}

// Err returns the first servlet/runtime error this request encountered, if
// any.
func (rsc *RSC) Err() error {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	return rsc.firstErr
}

func (rsc *RSC) popReady() (graph.NodeID, bool) {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	if len(rsc.ready) == 0 {
		return 0, false
	}
	id := rsc.ready[0]
	rsc.ready = rsc.ready[1:]
	return id, true
}

func (rsc *RSC) pushReady(id graph.NodeID) {
	rsc.mu.Lock()
	rsc.ready = append(rsc.ready, id)
	rsc.mu.Unlock()
}

func (rsc *RSC) abort(err error) {
	rsc.mu.Lock()
	if rsc.firstErr == nil {
		rsc.firstErr = err
	}
	rsc.cancelled = true
	rsc.mu.Unlock()
}

func (rsc *RSC) isCancelled() bool {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	return rsc.cancelled
}

func (rsc *RSC) getPhase(id graph.NodeID) nodePhase {
	rsc.mu.Lock()
	defer rsc.mu.Unlock()
	return rsc.phase[id]
}

func (rsc *RSC) setPhase(id graph.NodeID, p nodePhase) {
	rsc.mu.Lock()
	rsc.phase[id] = p
	rsc.mu.Unlock()
}

func (rsc *RSC) incAsync() { rsc.mu.Lock(); rsc.outstandingAsync++; rsc.mu.Unlock() }
func (rsc *RSC) decAsync() { rsc.mu.Lock(); rsc.outstandingAsync--; rsc.mu.Unlock() }

// Close tears down the RSC's request-local scope, returning leaked
// tokens (§8 invariant: every free callback runs exactly once).
func (rsc *RSC) Close() []servlet.Token {
	return rsc.Scope.Close()
}

// allInputsReady reports whether every incoming edge's source node has
// finished its exec, for every input PD of node other than the graph's
// input endpoint and disabled PDs, per §4.5 "all_inputs_ready(dst_node)".
// It looks only at node phases, not at bound pipes or their data.
func (rsc *RSC) allInputsReady(node graph.NodeID) bool {
	n := rsc.Graph.Nodes[node]
	for pdIdx, d := range n.PDs {
		if d.Direction != servlet.DirInput {
			continue
		}
		if node == rsc.Graph.Input.Node && servlet.PD(pdIdx) == rsc.Graph.Input.PD {
			continue
		}
		if d.Flags.Has(servlet.DescDisabled) {
			continue
		}
		for _, e := range rsc.Graph.IncomingEdges(node, servlet.PD(pdIdx)) {
			if rsc.getPhase(e.SrcNode) < phaseExecDone {
				return false
			}
		}
	}
	return true
}

func (rsc *RSC) logf(format string, args ...interface{}) {
	if rsc.logger == nil {
		return
	}
	rsc.logger.Debug(fmt.Sprintf(format, args...))
}
