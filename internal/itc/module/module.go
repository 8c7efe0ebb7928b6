// Package module implements the module registry: transport modules register
// under a dotted path at startup and are resolved by exact path or by
// path-prefix iteration ("all modules under pipe.tcp"), per §4.1.
package module

import (
	"context"

	"github.com/hoohou/plumber/internal/itc/pipe"
)

// Module is the transport vtable consumed by the core and implemented by
// modules (TCP, TLS, memory, file, ...). This is the polymorphism boundary
// named in the Design Notes: a single interface plus a tagged registry
// entry, no inheritance tree.
type Module interface {
	// Path returns the module's dotted registration path.
	Path() string

	// AcceptEvent blocks until a new request is ready on this module,
	// returning the paired input/output pipe handles for it. Returns
	// context.Canceled when the event thread is being killed (§4.6).
	AcceptEvent(ctx context.Context) (in, out *pipe.Handle, err error)

	// Allocate creates a pipe handle for an intra-graph edge or any other
	// on-demand allocation path (b) in §4.1.
	Allocate(dir pipe.Direction, typeName string) (*pipe.Handle, error)

	// Ops returns the per-handle operations vtable (read/write/eof/...)
	// this module installs on every handle it creates.
	Ops() pipe.Operations

	// EventThreadKilled is set during finalization; AcceptEvent must return
	// promptly with context.Canceled after the current blocking call once
	// this has been invoked.
	EventThreadKilled()
}

// EventProducer is implemented by modules that run their own event thread
// (§4.6: "one thread per event-producing module"). Modules that are only
// ever allocated for intra-graph edges (e.g. the memory module) do not
// implement this.
type EventProducer interface {
	Module
	// Priority orders IOEvents from this module relative to others sharing
	// the equeue; lower values run first, and equal values run in push order.
	Priority() int
}
