// Package tcp implements the TCP transport module: one accept_event
// thread per listener, delivering a paired (in, out) pipe handle for
// every readable chunk on every accepted connection (§4.1, §4.6).
//
// A module's exposed pipe.Read must never block the worker that steps a
// request (§5: "Workers never block inside a servlet's exec"), so the
// actual blocking network read happens on a dedicated per-connection
// goroutine that only feeds an in-memory buffer; Read drains that buffer
// without blocking, exactly like the memory module. The same *pipe.Handle
// pair is redelivered for every subsequent chunk on a persistent
// connection, which is what makes PERSIST's pushed state (§4.1) visible
// to the servlet across requests — Finalize never disposes that state
// while PERSIST is set.
package tcp

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/hoohou/plumber/internal/itc/pipe"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

// Module is the TCP transport's registry entry and event producer.
type Module struct {
	path     string
	priority int
	listener net.Listener

	mu     sync.Mutex
	events chan connEvent
	once   sync.Once
	killed bool
}

type connEvent struct {
	in, out *pipe.Handle
}

// New wraps an already-bound net.Listener as a module registered under
// path, with the given equeue priority (lower runs first, §4.6 "priority
// determined by the module").
func New(path string, priority int, listener net.Listener) *Module {
	return &Module{path: path, priority: priority, listener: listener, events: make(chan connEvent, 64)}
}

func (m *Module) Path() string  { return m.path }
func (m *Module) Priority() int { return m.priority }

// AcceptEvent blocks until a readable chunk is available on some
// connection accepted by this module's listener, starting the accept loop
// on first call.
func (m *Module) AcceptEvent(ctx context.Context) (*pipe.Handle, *pipe.Handle, error) {
	m.once.Do(func() { go m.acceptLoop(ctx) })

	select {
	case ev, ok := <-m.events:
		if !ok {
			return nil, nil, pkgerrors.NewModuleIOError(m.path, "accept_event", context.Canceled)
		}
		return ev.in, ev.out, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Allocate is unsupported: TCP pipes only arrive through accept_event.
func (m *Module) Allocate(dir pipe.Direction, typeName string) (*pipe.Handle, error) {
	return nil, pkgerrors.NewUsageError("tcp.Allocate", "the tcp module only produces pipes via accept_event")
}

func (m *Module) Ops() pipe.Operations { return connOps{} }

// EventThreadKilled marks this module's threads for orderly exit: it sets
// the killed flag and closes the listener, which makes the accept loop's
// Accept call fail so the loop returns.
func (m *Module) EventThreadKilled() {
	m.mu.Lock()
	m.killed = true
	m.mu.Unlock()
	_ = m.listener.Close()
}

func (m *Module) acceptLoop(ctx context.Context) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.pumpConn(ctx, conn)
	}
}

func (m *Module) pumpConn(ctx context.Context, conn net.Conn) {
	state := &connState{conn: conn}
	in := pipe.New(m.path, connOps{}, state, pipe.Input)
	out := pipe.New(m.path, connOps{}, state, pipe.Output)

	tmp := make([]byte, 32*1024)
	for {
		n, readErr := conn.Read(tmp)
		if n > 0 {
			state.mu.Lock()
			state.in.Write(tmp[:n])
			state.mu.Unlock()

			select {
			case m.events <- connEvent{in: in, out: out}:
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}
		if readErr != nil {
			state.mu.Lock()
			state.eof = true
			state.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
}

type connState struct {
	mu   sync.Mutex
	conn net.Conn
	in   bytes.Buffer
	eof  bool
}

type connOps struct{}

func (connOps) Read(s interface{}, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	st := s.(*connState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.in.Len() == 0 {
		return 0, nil
	}
	return st.in.Read(buf)
}

func (connOps) Write(s interface{}, buf []byte) pkgerrors.WriteResult {
	if len(buf) == 0 {
		return pkgerrors.WriteOK(0)
	}
	st := s.(*connState)
	n, err := st.conn.Write(buf)
	if err != nil {
		return pkgerrors.WriteFailRetained(pkgerrors.NewModuleIOError("pipe.tcp", "write", err))
	}
	return pkgerrors.WriteOK(n)
}

func (connOps) HasUnreadData(s interface{}) bool {
	st := s.(*connState)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.in.Len() > 0
}

func (connOps) EOF(s interface{}) bool {
	st := s.(*connState)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.eof && st.in.Len() == 0
}

func (connOps) Deallocate(s interface{}) error {
	st := s.(*connState)
	return st.conn.Close()
}

func (connOps) Invoke(s interface{}, opcode string, args ...interface{}) (interface{}, error) {
	return nil, pkgerrors.NewUsageError("tcp.Invoke", "unsupported opcode "+opcode)
}
