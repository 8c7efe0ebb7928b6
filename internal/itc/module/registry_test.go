package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/itc/pipe"
)

type stubModule struct {
	path string
}

func (s *stubModule) Path() string { return s.path }
func (s *stubModule) AcceptEvent(ctx context.Context) (*pipe.Handle, *pipe.Handle, error) {
	return nil, nil, nil
}
func (s *stubModule) Allocate(dir pipe.Direction, typeName string) (*pipe.Handle, error) {
	return nil, nil
}
func (s *stubModule) Ops() pipe.Operations { return nil }
func (s *stubModule) EventThreadKilled()   {}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubModule{path: "pipe.tcp.port_8888"}))

	m, err := r.Lookup("pipe.tcp.port_8888")
	require.NoError(t, err)
	require.Equal(t, "pipe.tcp.port_8888", m.Path())
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubModule{path: "pipe.mem"}))
	require.Error(t, r.Register(&stubModule{path: "pipe.mem"}))
}

func TestLookupPrefix(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubModule{path: "pipe.tcp.port_8888"}))
	require.NoError(t, r.Register(&stubModule{path: "pipe.tcp.port_9999"}))
	require.NoError(t, r.Register(&stubModule{path: "pipe.mem"}))

	mods := r.LookupPrefix("pipe.tcp")
	require.Len(t, mods, 2)
	require.Equal(t, "pipe.tcp.port_8888", mods[0].Path())
	require.Equal(t, "pipe.tcp.port_9999", mods[1].Path())
}

func TestFreezeRejectsFurtherRegistration(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	require.Error(t, r.Register(&stubModule{path: "pipe.mem"}))
}

func TestLookupMissingFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("pipe.nope")
	require.Error(t, err)
}
