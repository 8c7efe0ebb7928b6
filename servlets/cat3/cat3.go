// Package cat3 implements the fan-in concatenation scenario: three inputs
// holding 4-byte little-endian integers are summed and the result is
// written as a single 4-byte little-endian integer. Exercises a node with
// more than one input PD, which the Greeting servlets never do.
package cat3

import (
	"context"
	"encoding/binary"

	"github.com/hoohou/plumber/internal/servlet"
)

type sum3 struct {
	in  [3]servlet.PD
	out servlet.PD
}

// New constructs the fan-in servlet.
func New() servlet.Servlet { return &sum3{} }

func (s *sum3) Describe(argv []string) []servlet.Descriptor {
	return []servlet.Descriptor{
		{Name: "in#0", Direction: servlet.DirInput, TypeName: "plumber.std.int32"},
		{Name: "in#1", Direction: servlet.DirInput, TypeName: "plumber.std.int32"},
		{Name: "in#2", Direction: servlet.DirInput, TypeName: "plumber.std.int32"},
		{Name: "out", Direction: servlet.DirOutput, TypeName: "plumber.std.int32"},
	}
}

func (s *sum3) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.in[0] = sc.Define("in#0", servlet.DirInput, "plumber.std.int32")
	s.in[1] = sc.Define("in#1", servlet.DirInput, "plumber.std.int32")
	s.in[2] = sc.Define("in#2", servlet.DirInput, "plumber.std.int32")
	s.out = sc.Define("out", servlet.DirOutput, "plumber.std.int32")
	return nil
}

func (s *sum3) Exec(ctx context.Context, sc servlet.Context) error {
	var total int32
	for _, pd := range s.in {
		v, err := readInt32(sc, pd)
		if err != nil {
			return err
		}
		total += v
	}

	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], uint32(total))
	_, err := sc.Write(s.out, out[:])
	return err
}

func (s *sum3) Unload(ctx context.Context, sc servlet.Context) error {
	return nil
}

func readInt32(sc servlet.Context, pd servlet.PD) (int32, error) {
	var buf [4]byte
	total := 0
	for total < 4 {
		n, err := sc.Read(pd, buf[total:])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			if sc.EOF(pd) {
				break
			}
			continue
		}
		total += n
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}
