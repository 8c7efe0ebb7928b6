// Package blobsrc is the producer half of the token-forwarding scenario:
// it commits a large byte blob to the request scope once and forwards only
// the 4-byte token downstream, instead of writing the blob's bytes through
// every pipe hop.
package blobsrc

import (
	"context"
	"encoding/binary"

	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/servlets/pstdstring"
)

type producer struct {
	blob []byte
	out  servlet.PD
}

// New constructs the blob-source servlet; blob is the payload committed to
// scope and referenced by token on every call.
func New(blob []byte) servlet.Servlet { return &producer{blob: blob} }

func (s *producer) Describe(argv []string) []servlet.Descriptor {
	return []servlet.Descriptor{
		{Name: "out", Direction: servlet.DirOutput, TypeName: "plumber.std.string"},
	}
}

func (s *producer) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.out = sc.Define("out", servlet.DirOutput, "plumber.std.string")
	return nil
}

func (s *producer) Exec(ctx context.Context, sc servlet.Context) error {
	buf := pstdstring.New(len(s.blob))
	_, _ = buf.Write(s.blob)

	token, err := sc.ScopeAdd(buf)
	if err != nil {
		return err
	}

	var tokBuf [4]byte
	binary.LittleEndian.PutUint32(tokBuf[:], uint32(token))
	_, err = sc.Write(s.out, tokBuf[:])
	return err
}

func (s *producer) Unload(ctx context.Context, sc servlet.Context) error {
	return nil
}
