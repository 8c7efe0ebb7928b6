package servlet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type noopServlet struct{}

func (noopServlet) Describe(argv []string) []Descriptor                      { return nil }
func (noopServlet) Init(ctx context.Context, sc Context, argv []string) error { return nil }
func (noopServlet) Exec(ctx context.Context, sc Context) error                { return nil }
func (noopServlet) Unload(ctx context.Context, sc Context) error              { return nil }

func TestRegisterAndNewProducesDistinctInstances(t *testing.T) {
	r := NewRegistry()
	calls := 0
	require.NoError(t, r.Register("echo", func() Servlet {
		calls++
		return noopServlet{}
	}))

	s1, err := r.New("echo")
	require.NoError(t, err)
	s2, err := r.New("echo")
	require.NoError(t, err)
	require.NotNil(t, s1)
	require.NotNil(t, s2)
	require.Equal(t, 2, calls)
}

func TestNewUnknownServletFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("missing")
	require.Error(t, err)
}

func TestDuplicateRegisterFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", func() Servlet { return noopServlet{} }))
	require.Error(t, r.Register("a", func() Servlet { return noopServlet{} }))
}
