package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/graph"
	"github.com/hoohou/plumber/internal/itc/pipe"
	"github.com/hoohou/plumber/internal/servlet"
	pkgerrors "github.com/hoohou/plumber/pkg/errors"
)

type noopOps struct{ invoked []string }

func (noopOps) Read(state interface{}, buf []byte) (int, error) { return 0, nil }
func (noopOps) Write(state interface{}, buf []byte) pkgerrors.WriteResult {
	return pkgerrors.WriteResult{N: len(buf)}
}
func (noopOps) HasUnreadData(state interface{}) bool { return false }
func (noopOps) EOF(state interface{}) bool           { return false }
func (noopOps) Deallocate(state interface{}) error   { return nil }
func (o *noopOps) Invoke(state interface{}, opcode string, args ...interface{}) (interface{}, error) {
	o.invoked = append(o.invoked, opcode)
	return nil, nil
}

func newTestRSC(t *testing.T) (rsc *RSC, node graph.NodeID, handle *pipe.Handle, ops *noopOps) {
	t.Helper()
	reg := servlet.NewRegistry()
	require.NoError(t, reg.Register("echo", func() servlet.Servlet {
		return &recordingServlet{name: "echo", trace: &[]string{}}
	}))

	b := graph.NewBuilder(reg, nil)
	n := b.AddNode("echo", nil)
	require.NoError(t, b.SetInput(n, "in"))
	require.NoError(t, b.SetOutput(n, "out"))
	g, err := b.Freeze()
	require.NoError(t, err)

	rsc, err = NewRSC(g, reg, nil)
	require.NoError(t, err)

	ops = &noopOps{}
	handle = pipe.New("pipe.test", ops, nil, pipe.Output)
	rsc.BindPipe(n, g.Nodes[n].PDByName("out"), handle)
	return rsc, n, handle, ops
}

func TestCntlSetFlagAndClearFlagAreInterceptedNotForwarded(t *testing.T) {
	rsc, n, h, ops := newTestRSC(t)
	pd := rsc.Graph.Nodes[n].PDByName("out")
	sc := newSchedulerContext(context.Background(), rsc, n, nil)

	_, err := sc.Cntl(pd, "set_flag", "persist")
	require.NoError(t, err)
	require.True(t, h.Flags().Has(pipe.Persist))

	_, err = sc.Cntl(pd, "clear_flag", "persist")
	require.NoError(t, err)
	require.False(t, h.Flags().Has(pipe.Persist))

	require.Empty(t, ops.invoked)
}

func TestCntlGetFlagsReturnsCurrentFlagSet(t *testing.T) {
	rsc, n, _, _ := newTestRSC(t)
	pd := rsc.Graph.Nodes[n].PDByName("out")
	sc := newSchedulerContext(context.Background(), rsc, n, nil)

	_, err := sc.Cntl(pd, "set_flag", "persist")
	require.NoError(t, err)

	flags, err := sc.Cntl(pd, "get_flags")
	require.NoError(t, err)
	require.Equal(t, pipe.Persist, flags)
}

func TestCntlRejectsUnknownFlagName(t *testing.T) {
	rsc, n, _, _ := newTestRSC(t)
	pd := rsc.Graph.Nodes[n].PDByName("out")
	sc := newSchedulerContext(context.Background(), rsc, n, nil)

	_, err := sc.Cntl(pd, "set_flag", "not-a-flag")
	require.Error(t, err)
}

func TestCntlForwardsUnrecognizedOpcodeToModule(t *testing.T) {
	rsc, n, _, ops := newTestRSC(t)
	pd := rsc.Graph.Nodes[n].PDByName("out")
	sc := newSchedulerContext(context.Background(), rsc, n, nil)

	_, err := sc.Cntl(pd, "close")
	require.NoError(t, err)
	require.Equal(t, []string{"close"}, ops.invoked)
}
