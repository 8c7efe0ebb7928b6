package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/servlet"
)

type fakeContext struct{}

func (fakeContext) Define(name string, dir servlet.Direction, typeName string) servlet.PD { return 0 }
func (fakeContext) Read(pd servlet.PD, buf []byte) (int, error)                            { return 0, nil }
func (fakeContext) Write(pd servlet.PD, buf []byte) (int, error)                           { return len(buf), nil }
func (fakeContext) EOF(pd servlet.PD) bool                                                 { return false }
func (fakeContext) Cntl(pd servlet.PD, opcode string, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (fakeContext) Log(msg string, fields ...interface{})              {}
func (fakeContext) ScopeAdd(ent servlet.Entity) (servlet.Token, error) { return 0, nil }
func (fakeContext) ScopeGet(tok servlet.Token) (interface{}, error)    { return nil, nil }
func (fakeContext) ScopeCopy(tok servlet.Token) (servlet.Token, error)         { return 0, nil }
func (fakeContext) OpenStream(tok servlet.Token) (servlet.StreamHandle, error) { return nil, nil }
func (fakeContext) Async(
	setup func(ctx context.Context) (interface{}, error),
	exec func(ctx context.Context, state interface{}) (interface{}, error),
	cleanup func(ctx context.Context, result interface{}, err error),
) error {
	return nil
}

type recordingServlet struct {
	ran    []string
	execErr error
}

func (*recordingServlet) Describe(argv []string) []servlet.Descriptor { return nil }
func (s *recordingServlet) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.ran = append(s.ran, "init")
	return nil
}
func (s *recordingServlet) Exec(ctx context.Context, sc servlet.Context) error {
	s.ran = append(s.ran, "exec")
	return s.execErr
}
func (s *recordingServlet) Unload(ctx context.Context, sc servlet.Context) error {
	s.ran = append(s.ran, "unload")
	return nil
}

func TestRunDispatchesByAction(t *testing.T) {
	s := &recordingServlet{}
	tsk := New(1, 0, s, nil, ActionExec, nil)

	require.NoError(t, tsk.Run(context.Background(), fakeContext{}))
	require.Equal(t, []string{"exec"}, s.ran)
	require.True(t, tsk.Flags.Has(Invoked))
}

func TestRunTwiceFails(t *testing.T) {
	s := &recordingServlet{}
	tsk := New(1, 0, s, nil, ActionInit, nil)

	require.NoError(t, tsk.Run(context.Background(), fakeContext{}))
	err := tsk.Run(context.Background(), fakeContext{})
	require.Error(t, err)
}

func TestRunWrapsServletError(t *testing.T) {
	s := &recordingServlet{execErr: errors.New("boom")}
	tsk := New(1, 0, s, nil, ActionExec, nil)

	err := tsk.Run(context.Background(), fakeContext{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}
