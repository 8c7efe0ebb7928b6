// Package pstdstring is the request-local string buffer type shared by the
// example servlets: a byte buffer that can be committed to the scope and
// passed between pipeline stages as a token instead of being copied through
// a pipe on every hop. Grounded on pstd/types/string.h's pstd_string_t:
// new/write/commit/from_rls/copy_rls map onto New/Write/ScopeAdd/ScopeGet/
// Copy here, with Go's GC replacing the manual pstd_string_free call.
package pstdstring

import (
	"bytes"

	"github.com/hoohou/plumber/internal/servlet"
)

// Buffer is a request-local string value.
type Buffer struct {
	buf bytes.Buffer
}

// New constructs an empty buffer with the given initial capacity hint.
func New(initCap int) *Buffer {
	b := &Buffer{}
	if initCap > 0 {
		b.buf.Grow(initCap)
	}
	return b
}

// Write appends data to the buffer.
func (b *Buffer) Write(data []byte) (int, error) { return b.buf.Write(data) }

// String returns the buffer's contents.
func (b *Buffer) String() string { return b.buf.String() }

// Bytes returns the buffer's contents without copying.
func (b *Buffer) Bytes() []byte { return b.buf.Bytes() }

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int { return b.buf.Len() }

// Data implements servlet.Entity.
func (b *Buffer) Data() interface{} { return b }

// Free implements servlet.Entity. The buffer holds no external resources;
// this exists so Buffer satisfies the interface the scope requires of
// every committed entity.
func (b *Buffer) Free() {}

// Copy implements servlet.CopyableEntity: scope_copy makes a private,
// independently-writable clone rather than aliasing the original bytes
// (the copy-on-write half of pstd_string_copy_rls).
func (b *Buffer) Copy() (servlet.Entity, error) {
	clone := New(b.buf.Len())
	_, _ = clone.Write(b.buf.Bytes())
	return clone, nil
}

// OpenStream implements servlet.StreamableEntity: a downstream module reads
// the buffer's bytes directly instead of the runtime copying them through a
// pipe (§4.1, direct reference access), which is what lets a large blob
// cross the graph with zero Copy callback invocations.
func (b *Buffer) OpenStream() (servlet.StreamHandle, error) {
	return &bufferStream{r: bytes.NewReader(b.buf.Bytes())}, nil
}

type bufferStream struct {
	r *bytes.Reader
}

func (s *bufferStream) Read(buf []byte) (int, error) {
	n, err := s.r.Read(buf)
	if err != nil {
		// io.EOF is reported through EOF(), not as a read error (§4.1: "0
		// bytes with no error means would-block, not EOF").
		return n, nil
	}
	return n, nil
}

func (s *bufferStream) EOF() bool { return s.r.Len() == 0 }

func (s *bufferStream) Close() error { return nil }

// ReadyEvent reports no pollable descriptor: the underlying bytes are
// already resident in memory, so a stream reader is never unready.
func (s *bufferStream) ReadyEvent() (int, bool) { return 0, false }
