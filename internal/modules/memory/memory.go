// Package memory implements the in-process, memory-backed transport
// module used for intra-graph edges (§4.1: "allocation for an intra-graph
// edge (memory-backed)"). It never produces events; it only answers
// Allocate.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/hoohou/plumber/internal/itc/pipe"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Module is the memory transport's registry entry.
type Module struct {
	path string
}

// New constructs a memory module registered under path (default
// "pipe.mem").
func New(path string) *Module {
	if path == "" {
		path = "pipe.mem"
	}
	return &Module{path: path}
}

func (m *Module) Path() string { return m.path }

// AcceptEvent is unsupported: the memory module is allocation-only, never
// an event producer.
func (m *Module) AcceptEvent(ctx context.Context) (*pipe.Handle, *pipe.Handle, error) {
	return nil, nil, pkgerrors.NewUsageError("memory.AcceptEvent", "the memory module does not produce events")
}

// Allocate constructs a fresh, empty buffer-backed pipe handle.
func (m *Module) Allocate(dir pipe.Direction, typeName string) (*pipe.Handle, error) {
	return pipe.New(m.path, operations{}, &bufState{}, dir), nil
}

func (m *Module) Ops() pipe.Operations { return operations{} }

func (m *Module) EventThreadKilled() {}

type bufState struct {
	mu  sync.Mutex
	buf bytes.Buffer
	eof bool
}

type operations struct{}

func (operations) Read(state interface{}, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	s := state.(*bufState)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return 0, nil
	}
	return s.buf.Read(buf)
}

func (operations) Write(state interface{}, buf []byte) pkgerrors.WriteResult {
	if len(buf) == 0 {
		return pkgerrors.WriteOK(0)
	}
	s := state.(*bufState)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.buf.Write(buf)
	if err != nil {
		return pkgerrors.WriteFailRetained(pkgerrors.NewModuleIOError("pipe.mem", "write", err))
	}
	return pkgerrors.WriteOK(n)
}

func (operations) HasUnreadData(state interface{}) bool {
	s := state.(*bufState)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len() > 0
}

func (operations) EOF(state interface{}) bool {
	s := state.(*bufState)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof && s.buf.Len() == 0
}

func (operations) Deallocate(state interface{}) error {
	s := state.(*bufState)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	return nil
}

// Invoke supports the "close" opcode, which marks the buffer's write side
// closed — subsequent EOF() calls report true once the buffer drains.
func (operations) Invoke(state interface{}, opcode string, args ...interface{}) (interface{}, error) {
	s := state.(*bufState)
	switch opcode {
	case "close":
		s.mu.Lock()
		s.eof = true
		s.mu.Unlock()
		return nil, nil
	default:
		return nil, pkgerrors.NewUsageError("memory.Invoke", "unsupported opcode "+opcode)
	}
}
