// Package servlet defines the servlet interface and its pipe descriptor
// table (§3 "Servlet instance", §6 "Servlet interface").
//
// The C runtime loads a servlet as a dlopen'd binary exporting a fixed
// symbol table (description, version, context size, init/exec/unload
// function pointers) and bridges the runtime's own function table into the
// servlet's address space. Go has no safe equivalent of dlopen for
// first-class, type-checked code, so a Plumber servlet is instead a
// statically-linked Go type implementing the Servlet interface and
// registered by name at process startup — the same redesign the module
// registry already uses for transport modules. See DESIGN.md.
package servlet

import "context"

// Action identifies which phase of a servlet's lifecycle a Task is running.
type Action int

const (
	// Init runs once per node per request, before any Exec.
	Init Action = iota
	// Exec is the servlet's main body.
	Exec
	// Unload runs once per node per request, after Exec (or in its place
	// on the cancellation path, for nodes whose Init already ran).
	Unload
)

func (a Action) String() string {
	switch a {
	case Init:
		return "init"
	case Exec:
		return "exec"
	case Unload:
		return "unload"
	default:
		return "unknown"
	}
}

// PD is a servlet-local pipe descriptor index.
type PD int

// Descriptor is the compile-time metadata for one declared pipe (§3 "Pipe
// descriptor (PD)").
type Descriptor struct {
	Name      string
	Direction Direction
	TypeName  string
	Flags     DescriptorFlags
	ShadowOf  PD // valid only when Flags.Has(DescShadow); index into the same table
}

// Direction mirrors pipe.Direction without importing it, so the servlet
// package has no dependency on the itc packages — a servlet only declares
// intent, the runtime binds it to real pipe.Handles at task construction.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
)

// DescriptorFlags are the compile-time flags carried on a PD, independent
// of the runtime flags a bound pipe.Handle may additionally carry.
type DescriptorFlags uint32

const (
	DescAsync DescriptorFlags = 1 << iota
	DescShadow
	DescPersist
	DescDisabled
)

func (f DescriptorFlags) Has(bit DescriptorFlags) bool { return f&bit != 0 }

// Context is passed to every servlet action; it lets a servlet look up the
// PDs its Describe declared and use the pipes bound to them. The
// runtime implementation lives in the scheduler package; this interface
// keeps the servlet package free of a scheduler import.
type Context interface {
	// Define returns the index of the PD named name in the servlet's
	// Describe table; it does not add a descriptor.
	Define(name string, dir Direction, typeName string) PD
	// Read reads from the pipe bound to pd.
	Read(pd PD, buf []byte) (int, error)
	// Write writes to the pipe bound to pd.
	Write(pd PD, buf []byte) (int, error)
	// EOF reports end of stream on pd.
	EOF(pd PD) bool
	// Cntl performs a module-specific or runtime control operation on pd.
	Cntl(pd PD, opcode string, args ...interface{}) (interface{}, error)
	// Log writes msg and fields as one debug line through the request's
	// logger; the line carries no request or node identity fields.
	Log(msg string, fields ...interface{})

	// ScopeAdd installs ent in the request-local scope, returning a token.
	ScopeAdd(ent Entity) (Token, error)
	// ScopeGet resolves a token to its entity's data pointer.
	ScopeGet(tok Token) (interface{}, error)
	// ScopeCopy invokes the entity's Copy callback and installs the result
	// as a new entity.
	ScopeCopy(tok Token) (Token, error)
	// OpenStream resolves tok to a StreamableEntity and opens its DRA
	// stream, letting a transport forward large payloads byte-for-byte
	// without ever invoking the entity's Copy callback (§4.3).
	OpenStream(tok Token) (StreamHandle, error)

	// Async registers a three-phase async task (§4.7) and suspends the
	// current task: setup runs synchronously before Exec returns, exec runs
	// on the async offload pool once setup succeeds, and cleanup runs back
	// on a worker thread, on the step loop, once exec has returned. Calling
	// Async signals suspension by itself — there is no separate
	// async_cntl(handle, SET_WAIT, true) call, because unlike the C ABI a
	// Go closure can simply not return until it is scheduled, and the
	// runtime already knows a suspension occurred the moment this method is
	// invoked.
	Async(setup func(ctx context.Context) (interface{}, error),
		exec func(ctx context.Context, state interface{}) (interface{}, error),
		cleanup func(ctx context.Context, result interface{}, err error)) error
}

// Token is an opaque request-local scope handle (§3 "Scope token").
type Token uint32

// Entity is what a servlet hands to ScopeAdd; see the rls package for the
// concrete reference-counted implementation. Declared here, not imported
// from rls, so servlets depend only on this package.
type Entity interface {
	// Data is the value a ScopeGet call should hand back.
	Data() interface{}
	// Free is invoked exactly once, when the entity's refcount reaches
	// zero at request teardown.
	Free()
}

// CopyableEntity is optionally implemented by entities that support
// scope_copy (§4.3).
type CopyableEntity interface {
	Entity
	Copy() (Entity, error)
}

// StreamableEntity is optionally implemented by entities that back a DRA
// stream (§4.1, §4.3).
type StreamableEntity interface {
	Entity
	OpenStream() (StreamHandle, error)
}

// StreamHandle is the substrate for direct reference access: a downstream
// module pulls bytes from it instead of the runtime copying through a pipe.
type StreamHandle interface {
	Read(buf []byte) (int, error)
	EOF() bool
	Close() error
	// ReadyEvent optionally returns a descriptor the runtime can poll
	// instead of spinning while the stream is not yet readable.
	ReadyEvent() (fd int, ok bool)
}

// Servlet is the contract every Plumber servlet satisfies (§6 "Servlet
// interface").
//
// Describe is a pure, side-effect-free declaration of the servlet's PD
// table, called once at graph-freeze time (the servlet loader in §2).
// Init/Exec/Unload are the per-request task actions (§3 "Task"). The C
// runtime instead observes pipe_define calls made inside init() the first
// time a servlet binary is loaded; separating declaration from the
// per-request Init hook avoids running a servlet's request-scoped setup
// logic (opening connections, parsing argv-derived config) just to learn
// its pipe table, and lets the graph builder validate PD names before any
// request ever reaches the servlet. See DESIGN.md.
type Servlet interface {
	// Describe returns the servlet's compile-time pipe descriptor table
	// for the given argv. Called once per node at Builder.Freeze.
	Describe(argv []string) []Descriptor
	// Init initializes per-request state. Runs once per node per request,
	// before any Exec.
	Init(ctx context.Context, sc Context, argv []string) error
	// Exec runs the servlet's main body.
	Exec(ctx context.Context, sc Context) error
	// Unload finalizes the servlet after Exec, or in place of Exec on the
	// cancellation path for a node whose Init already ran.
	Unload(ctx context.Context, sc Context) error
}

// Metadata is the servlet's fixed exported symbol table (§6: description,
// version, entry points — realized here as struct fields rather than an
// ABI symbol).
type Metadata struct {
	Description string
	Version     int
}

// MetadataProvider lets a servlet advertise its Metadata; optional.
type MetadataProvider interface {
	ServletMetadata() Metadata
}
