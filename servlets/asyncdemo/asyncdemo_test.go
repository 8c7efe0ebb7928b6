package asyncdemo

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/servlet"
)

type fakeContext struct {
	written map[servlet.PD]*bytes.Buffer
}

func (f *fakeContext) Define(name string, dir servlet.Direction, typeName string) servlet.PD { return 0 }
func (f *fakeContext) Read(pd servlet.PD, buf []byte) (int, error)                            { return 0, nil }

func (f *fakeContext) Write(pd servlet.PD, buf []byte) (int, error) {
	if f.written[pd] == nil {
		f.written[pd] = &bytes.Buffer{}
	}
	return f.written[pd].Write(buf)
}

func (f *fakeContext) EOF(pd servlet.PD) bool { return true }

func (f *fakeContext) Cntl(pd servlet.PD, opcode string, args ...interface{}) (interface{}, error) {
	return nil, nil
}

func (f *fakeContext) Log(msg string, fields ...interface{}) {}

func (f *fakeContext) ScopeAdd(ent servlet.Entity) (servlet.Token, error) { return 0, nil }
func (f *fakeContext) ScopeGet(tok servlet.Token) (interface{}, error)    { return nil, nil }
func (f *fakeContext) ScopeCopy(tok servlet.Token) (servlet.Token, error)         { return 0, nil }
func (f *fakeContext) OpenStream(tok servlet.Token) (servlet.StreamHandle, error) { return nil, nil }

func (f *fakeContext) Async(
	setup func(ctx context.Context) (interface{}, error),
	exec func(ctx context.Context, state interface{}) (interface{}, error),
	cleanup func(ctx context.Context, result interface{}, err error),
) error {
	state, err := setup(context.Background())
	if err != nil {
		return err
	}
	go func() {
		result, err := exec(context.Background(), state)
		cleanup(context.Background(), result, err)
	}()
	return nil
}

func TestExecResumesWithComputedValue(t *testing.T) {
	fc := &fakeContext{written: map[servlet.PD]*bytes.Buffer{}}
	s := New(10*time.Millisecond, 42).(*sleeper)
	s.out = 0

	require.NoError(t, s.Exec(context.Background(), fc))

	require.Eventually(t, func() bool {
		return fc.written[0] != nil && fc.written[0].Len() == 4
	}, time.Second, time.Millisecond)

	require.Equal(t, int32(42), int32(binary.LittleEndian.Uint32(fc.written[0].Bytes())))
}
