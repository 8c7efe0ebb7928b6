package scheduler

import (
	"context"
	"fmt"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/itc/pipe"
	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// flagsByName maps the runtime-owned flag opcodes' string arguments to
// their pipe.Flags bit (§4.1). These opcodes are handled by the runtime
// itself, never forwarded to a module's Invoke, because a pipe's flag set
// is handle-level bookkeeping the runtime owns, not module-specific state.
var flagsByName = map[string]pipe.Flags{
	"persist":  pipe.Persist,
	"async":    pipe.Async,
	"shadow":   pipe.Shadow,
	"disabled": pipe.Disabled,
}

// schedulerContext is the per-task servlet.Context implementation: it
// resolves a servlet's PD calls against the RSC's bound pipe table and
// scope, and bridges Async to the scheduler's AsyncPool. One instance
// backs exactly one task invocation (§9 "current-task TLS" — here an
// explicit per-call value instead of a thread-local slot, since a Go
// goroutine already gives each task its own call stack).
type schedulerContext struct {
	ctx    context.Context
	rsc    *RSC
	node   graph.NodeID
	async  *AsyncPool
	logger func(format string, args ...interface{})

	suspended bool
}

func newSchedulerContext(ctx context.Context, rsc *RSC, node graph.NodeID, async *AsyncPool) *schedulerContext {
	return &schedulerContext{ctx: ctx, rsc: rsc, node: node, async: async, logger: rsc.logf}
}

// Define is a no-op at task-invocation time: the PD table was already
// fixed by Describe at graph-freeze time (§4.4). It exists on the
// interface so a servlet written against the original pipe_define-at-init
// shape can still call it defensively; it validates the name matches an
// already-declared PD rather than creating a new one.
func (c *schedulerContext) Define(name string, dir servlet.Direction, typeName string) servlet.PD {
	n := c.rsc.Graph.Nodes[c.node]
	return n.PDByName(name)
}

func (c *schedulerContext) Read(pd servlet.PD, buf []byte) (int, error) {
	h := c.rsc.Pipe(c.node, pd)
	if h == nil {
		return 0, pkgerrors.NewUsageError("schedulerContext.Read", fmt.Sprintf("pd %d is not bound", pd))
	}
	return h.Read(buf)
}

func (c *schedulerContext) Write(pd servlet.PD, buf []byte) (int, error) {
	h := c.rsc.Pipe(c.node, pd)
	if h == nil {
		return 0, pkgerrors.NewUsageError("schedulerContext.Write", fmt.Sprintf("pd %d is not bound", pd))
	}
	res := h.Write(buf)
	if res.Ok() {
		return res.N, nil
	}
	return 0, res.Err
}

func (c *schedulerContext) EOF(pd servlet.PD) bool {
	h := c.rsc.Pipe(c.node, pd)
	if h == nil {
		return true
	}
	return h.EOF()
}

// Cntl intercepts the runtime-owned flag opcodes (set_flag/clear_flag/
// get_flags, §4.1) before they would otherwise reach the owning module's
// Invoke: a pipe's flag set is handle-level state the runtime itself
// maintains on pipe.Handle, not something any module vtable implements.
// Everything else is forwarded to the module as a module-specific control
// operation.
func (c *schedulerContext) Cntl(pd servlet.PD, opcode string, args ...interface{}) (interface{}, error) {
	h := c.rsc.Pipe(c.node, pd)
	if h == nil {
		return nil, pkgerrors.NewUsageError("schedulerContext.Cntl", fmt.Sprintf("pd %d is not bound", pd))
	}

	switch opcode {
	case "set_flag", "clear_flag":
		if len(args) != 1 {
			return nil, pkgerrors.NewUsageError("schedulerContext.Cntl", fmt.Sprintf("%s takes exactly one flag name argument", opcode))
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, pkgerrors.NewUsageError("schedulerContext.Cntl", fmt.Sprintf("%s argument must be a flag name string", opcode))
		}
		bit, ok := flagsByName[name]
		if !ok {
			return nil, pkgerrors.NewUsageError("schedulerContext.Cntl", fmt.Sprintf("unknown flag %q", name))
		}
		if opcode == "set_flag" {
			h.SetFlag(bit)
		} else {
			h.ClearFlag(bit)
		}
		return nil, nil
	case "get_flags":
		return h.Flags(), nil
	}

	return h.Invoke(opcode, args...)
}

func (c *schedulerContext) Log(msg string, fields ...interface{}) {
	if c.logger != nil {
		c.logger(msg+" %v", fields)
	}
}

func (c *schedulerContext) ScopeAdd(ent servlet.Entity) (servlet.Token, error) {
	return c.rsc.Scope.Add(ent)
}

func (c *schedulerContext) ScopeGet(tok servlet.Token) (interface{}, error) {
	return c.rsc.Scope.Get(tok)
}

func (c *schedulerContext) ScopeCopy(tok servlet.Token) (servlet.Token, error) {
	return c.rsc.Scope.Copy(tok)
}

func (c *schedulerContext) OpenStream(tok servlet.Token) (servlet.StreamHandle, error) {
	return c.rsc.Scope.OpenStream(tok)
}

func (c *schedulerContext) Async(
	setup func(ctx context.Context) (interface{}, error),
	exec func(ctx context.Context, state interface{}) (interface{}, error),
	cleanup func(ctx context.Context, result interface{}, err error),
) error {
	state, err := setup(c.ctx)
	if err != nil {
		return err
	}
	c.suspended = true
	c.rsc.incAsync()
	c.async.Submit(c.ctx, c.rsc, c.node, state, exec, cleanup)
	return nil
}
