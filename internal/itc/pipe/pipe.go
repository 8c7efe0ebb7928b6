// Package pipe implements the pipe handle: the runtime instance of a pipe,
// polymorphic over its owning transport module. A handle carries the
// module's vtable, its module-specific state pointer, the flag set, and the
// protocol-parser state stack used by push_state/pop_state (§4.1).
package pipe

import (
	"sync"

	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Direction is the compile-time direction of a pipe descriptor.
type Direction int

const (
	// Input pipes are read by the owning servlet.
	Input Direction = iota
	// Output pipes are written by the owning servlet.
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Flags is a bitset of the pipe flag contract in §4.1.
type Flags uint32

const (
	// Persist marks a pipe as surviving past this task invocation: a
	// subsequent request on the same connection re-enters the servlet with
	// the state pushed via PushState.
	Persist Flags = 1 << iota
	// Async marks a pipe whose writes may be buffered; the servlet may
	// return before the bytes hit the wire.
	Async
	// Shadow marks an output pipe as an alias of another output; writes are
	// redirected to the origin.
	Shadow
	// Disabled marks a muted pipe: reads return EOF, writes are discarded.
	Disabled
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Operations is the subset of the module vtable that acts on a single
// pipe's module-specific state, as opposed to the handle-level bookkeeping
// (flags, state stack) the runtime itself owns.
type Operations interface {
	// Read copies up to len(buf) bytes into buf. A return of 0 with a nil
	// error means "would block", not EOF.
	Read(state interface{}, buf []byte) (int, error)
	// Write copies buf into the pipe. The three-variant result replaces the
	// C runtime's sentinel/ownership-transfer convention (§7).
	Write(state interface{}, buf []byte) pkgerrors.WriteResult
	// HasUnreadData reports whether a subsequent Read would return data
	// without blocking.
	HasUnreadData(state interface{}) bool
	// EOF reports whether the pipe has reached end of stream.
	EOF(state interface{}) bool
	// Deallocate releases module-specific resources backing state.
	Deallocate(state interface{}) error
	// Invoke performs a module-specific side-channel RPC (the "cntl" path).
	Invoke(state interface{}, opcode string, args ...interface{}) (interface{}, error)
}

// stateFrame is one entry of the push_state/pop_state stack.
type stateFrame struct {
	ptr     interface{}
	dispose func(interface{})
}

// Handle is the runtime instance of a pipe.
type Handle struct {
	mu sync.Mutex

	// ModuleName is the dotted path of the owning module.
	ModuleName string
	// State is the module-specific context pointer; ops are invoked with
	// this value so a module can multiplex many handles.
	State interface{}
	// TypeName is the inferred or declared pipe type, empty until the
	// service graph's type-inference pass fills it in.
	TypeName string
	Direction Direction

	ops   Operations
	flags Flags
	stack []stateFrame

	// ShadowOf, when non-nil, is the output handle this handle aliases.
	// Writes on a shadow handle are redirected to ShadowOf.
	ShadowOf *Handle
}

// New constructs a handle bound to a module's operations and initial state.
func New(moduleName string, ops Operations, state interface{}, dir Direction) *Handle {
	return &Handle{ModuleName: moduleName, ops: ops, State: state, Direction: dir}
}

// Flags returns the current flag set.
func (h *Handle) Flags() Flags {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flags
}

// SetFlag sets the given bits.
func (h *Handle) SetFlag(f Flags) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flags |= f
}

// ClearFlag clears the given bits.
func (h *Handle) ClearFlag(f Flags) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flags &^= f
}

// PushState pushes a protocol-parser resumption pointer, with a dispose
// callback invoked when the frame is discarded without being popped
// (request teardown on a non-persist pipe).
func (h *Handle) PushState(ptr interface{}, dispose func(interface{})) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack = append(h.stack, stateFrame{ptr: ptr, dispose: dispose})
}

// PopState pops the most recently pushed state pointer. ok is false when the
// stack is empty.
func (h *Handle) PopState() (ptr interface{}, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		return nil, false
	}
	top := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return top.ptr, true
}

// DisposeState drops all remaining state frames, invoking their dispose
// callbacks. Called on handle teardown when PERSIST is not set.
func (h *Handle) DisposeState() {
	h.mu.Lock()
	stack := h.stack
	h.stack = nil
	h.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].dispose != nil {
			stack[i].dispose(stack[i].ptr)
		}
	}
}

// Read reads from the pipe. A DISABLED pipe always reports EOF.
func (h *Handle) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if h.Flags().Has(Disabled) {
		return 0, nil
	}
	return h.ops.Read(h.State, buf)
}

// Write writes to the pipe, redirecting to the shadow origin and discarding
// the bytes entirely when DISABLED is set.
func (h *Handle) Write(buf []byte) pkgerrors.WriteResult {
	if len(buf) == 0 {
		return pkgerrors.WriteOK(0)
	}
	if h.Flags().Has(Disabled) {
		return pkgerrors.WriteOK(len(buf))
	}
	target := h
	if h.ShadowOf != nil {
		target = h.ShadowOf
	}
	return target.ops.Write(target.State, buf)
}

// HasUnreadData reports whether a Read would return data without blocking.
func (h *Handle) HasUnreadData() bool {
	if h.Flags().Has(Disabled) {
		return false
	}
	return h.ops.HasUnreadData(h.State)
}

// EOF reports end of stream. A DISABLED pipe is always at EOF.
func (h *Handle) EOF() bool {
	if h.Flags().Has(Disabled) {
		return true
	}
	return h.ops.EOF(h.State)
}

// Invoke performs a module-specific side-channel call.
func (h *Handle) Invoke(opcode string, args ...interface{}) (interface{}, error) {
	return h.ops.Invoke(h.State, opcode, args...)
}

// Finalize flushes and releases the handle. When persist is set the pipe
// (its state stack and its module-specific state) survives for the next
// request on the same connection; otherwise all remaining frames are
// disposed and the module deallocates its state.
func (h *Handle) Finalize() error {
	if h.Flags().Has(Persist) {
		return nil
	}
	h.DisposeState()
	if h.ShadowOf != nil {
		// Shadows never own module state; nothing to deallocate.
		return nil
	}
	return h.ops.Deallocate(h.State)
}

// NewShadow creates a zero-copy alias of origin. Flags are inherited per the
// shadow-resolution pass in §4.4 ("shadow of persist is persist"); SHADOW is
// always set regardless of the origin's flags.
//
// A shadow of a shadow collapses transitively to the root origin at creation
// time rather than chaining handles: the root is the only place module
// state actually lives, so every shadow in the chain redirects writes there
// directly. This resolves the open question of multi-level shadow semantics
// left untested in the C runtime (§9 Open Questions (a)) by making the
// chain's depth irrelevant to both write latency and teardown order.
func NewShadow(origin *Handle) *Handle {
	root := origin
	for root.ShadowOf != nil {
		root = root.ShadowOf
	}
	s := &Handle{
		ModuleName: root.ModuleName,
		Direction:  Output,
		ShadowOf:   root,
		ops:        root.ops,
		State:      root.State,
	}
	s.flags = Shadow
	if origin.Flags().Has(Persist) {
		s.flags |= Persist
	}
	return s
}
