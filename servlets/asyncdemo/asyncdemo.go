// Package asyncdemo exercises the async-offload path end to end: exec
// posts a task that sleeps, simulating a slow downstream call, and the
// response is the value that task computed, proving the step loop
// released its worker during the sleep and resumed correctly on
// completion.
package asyncdemo

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/hoohou/plumber/internal/servlet"
)

type sleeper struct {
	sleep time.Duration
	value int32
	out   servlet.PD
}

// New constructs the async-demo servlet, offloading for the given
// duration and returning value on completion.
func New(sleep time.Duration, value int32) servlet.Servlet {
	return &sleeper{sleep: sleep, value: value}
}

func (s *sleeper) Describe(argv []string) []servlet.Descriptor {
	return []servlet.Descriptor{
		{Name: "out", Direction: servlet.DirOutput, TypeName: "plumber.std.int32"},
	}
}

func (s *sleeper) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.out = sc.Define("out", servlet.DirOutput, "plumber.std.int32")
	return nil
}

func (s *sleeper) Exec(ctx context.Context, sc servlet.Context) error {
	return sc.Async(
		func(ctx context.Context) (interface{}, error) {
			return nil, nil
		},
		func(ctx context.Context, state interface{}) (interface{}, error) {
			select {
			case <-time.After(s.sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return s.value, nil
		},
		func(ctx context.Context, result interface{}, err error) {
			if err != nil {
				return
			}
			v, _ := result.(int32)
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			_, _ = sc.Write(s.out, buf[:])
		},
	)
}

func (s *sleeper) Unload(ctx context.Context, sc servlet.Context) error {
	return nil
}
