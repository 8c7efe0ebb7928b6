// Package blobsink is the consumer half of the token-forwarding scenario:
// it resolves the token written by blobsrc and pulls the referenced bytes
// directly through the DRA stream (OpenStream) rather than asking the
// scope to make a private copy, proving a large payload can cross the
// graph without a single Copy callback invocation.
package blobsink

import (
	"context"
	"encoding/binary"

	"github.com/hoohou/plumber/internal/servlet"
)

type consumer struct {
	in  servlet.PD
	out servlet.PD
}

// New constructs the blob-sink servlet.
func New() servlet.Servlet { return &consumer{} }

func (s *consumer) Describe(argv []string) []servlet.Descriptor {
	return []servlet.Descriptor{
		{Name: "in", Direction: servlet.DirInput, TypeName: "plumber.std.string"},
		{Name: "out", Direction: servlet.DirOutput, TypeName: "plumber.base.raw"},
	}
}

func (s *consumer) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.in = sc.Define("in", servlet.DirInput, "plumber.std.string")
	s.out = sc.Define("out", servlet.DirOutput, "plumber.base.raw")
	return nil
}

func (s *consumer) Exec(ctx context.Context, sc servlet.Context) error {
	var tokBuf [4]byte
	if _, err := readFull(sc, s.in, tokBuf[:]); err != nil {
		return err
	}
	token := servlet.Token(binary.LittleEndian.Uint32(tokBuf[:]))

	stream, err := sc.OpenStream(token)
	if err != nil {
		return err
	}
	defer stream.Close()

	buf := make([]byte, 64*1024)
	for !stream.EOF() {
		n, err := stream.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if _, err := sc.Write(s.out, buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

func (s *consumer) Unload(ctx context.Context, sc servlet.Context) error {
	return nil
}

func readFull(sc servlet.Context, pd servlet.PD, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := sc.Read(pd, buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			if sc.EOF(pd) {
				break
			}
			continue
		}
		total += n
	}
	return total, nil
}
