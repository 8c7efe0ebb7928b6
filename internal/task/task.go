// Package task implements the per-request execution instance of a service
// graph node: one Task binds a servlet instance's Init/Exec/Unload action
// to a concrete pipe table for the lifetime of a single request (§3
// "Task").
package task

import (
	"context"
	"fmt"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/itc/pipe"
	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Flags records which action a Task runs and whether it has already been
// invoked once, mirroring the original runtime's action-bitmask-plus-
// invoked-bit encoding (runtime/task.h) rather than a separate bool field,
// so the zero value is a well-defined "init, not yet invoked" task.
type Flags uint32

const (
	actionMask Flags = 0x3
	// ActionInit is the task's default action.
	ActionInit Flags = 0
	// ActionExec runs the servlet's main body.
	ActionExec Flags = 1
	// ActionUnload finalizes the servlet.
	ActionUnload Flags = 2
	// Invoked is set once Run has returned for this task, guarding against
	// a task being started twice.
	Invoked Flags = 1 << 30
)

// Action returns the action bits, independent of the Invoked bit.
func (f Flags) Action() Flags { return f & actionMask }

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

func (f Flags) actionString() string {
	switch f.Action() {
	case ActionInit:
		return "init"
	case ActionExec:
		return "exec"
	case ActionUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Task is one execution instance of a servlet against a request (§3).
type Task struct {
	ID      int
	Node    graph.NodeID
	Flags   Flags
	Servlet servlet.Servlet
	Argv    []string

	// Pipes is indexed by servlet.PD; it is populated by the scheduler
	// before Run is called, one *pipe.Handle per declared PD (nil for a
	// PD with no bound edge, e.g. a disabled optional input).
	Pipes []*pipe.Handle
}

// New constructs a Task bound to a node's servlet instance and pipe table.
func New(id int, node graph.NodeID, s servlet.Servlet, argv []string, flags Flags, pipes []*pipe.Handle) *Task {
	return &Task{ID: id, Node: node, Servlet: s, Argv: argv, Flags: flags, Pipes: pipes}
}

// Run executes the task's action against sc, the per-task servlet.Context
// the scheduler constructs to bridge Pipes and the request-local scope.
// Running a task twice is a usage error (§3 invariant: a task's action
// runs exactly once).
func (t *Task) Run(ctx context.Context, sc servlet.Context) error {
	if t.Flags.Has(Invoked) {
		return pkgerrors.NewUsageError("task.Run", fmt.Sprintf("task %d already invoked", t.ID))
	}
	defer func() { t.Flags |= Invoked }()

	var err error
	switch t.Flags.Action() {
	case ActionInit:
		err = t.Servlet.Init(ctx, sc, t.Argv)
	case ActionExec:
		err = t.Servlet.Exec(ctx, sc)
	case ActionUnload:
		err = t.Servlet.Unload(ctx, sc)
	default:
		return pkgerrors.NewFatalError("task.Run", fmt.Sprintf("task %d has unrecognized action bits", t.ID))
	}
	if err != nil {
		return pkgerrors.NewServletError(int(t.Node), t.Flags.actionString(), err)
	}
	return nil
}
