package rls

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/servlet"
)

type fakeEntity struct {
	value string
	freed bool
}

func (e *fakeEntity) Data() interface{} { return e.value }
func (e *fakeEntity) Free()             { e.freed = true }

type copyableEntity struct {
	fakeEntity
	copyErr error
}

func (e *copyableEntity) Copy() (servlet.Entity, error) {
	if e.copyErr != nil {
		return nil, e.copyErr
	}
	return &fakeEntity{value: e.value + "-copy"}, nil
}

func TestAddGetRelease(t *testing.T) {
	s := New()
	ent := &fakeEntity{value: "hello"}

	tok, err := s.Add(ent)
	require.NoError(t, err)

	v, err := s.Get(tok)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	require.False(t, ent.freed)

	require.NoError(t, s.Release(tok))
	require.True(t, ent.freed)

	_, err = s.Get(tok)
	require.Error(t, err)
}

func TestRetainDefersFreeUntilAllReleased(t *testing.T) {
	s := New()
	ent := &fakeEntity{value: "shared"}
	tok, err := s.Add(ent)
	require.NoError(t, err)
	require.NoError(t, s.Retain(tok))

	require.NoError(t, s.Release(tok))
	require.False(t, ent.freed)
	require.NoError(t, s.Release(tok))
	require.True(t, ent.freed)
}

func TestCopyProducesIndependentToken(t *testing.T) {
	s := New()
	ent := &copyableEntity{fakeEntity: fakeEntity{value: "base"}}
	tok, err := s.Add(ent)
	require.NoError(t, err)

	copyTok, err := s.Copy(tok)
	require.NoError(t, err)
	require.NotEqual(t, tok, copyTok)

	v, err := s.Get(copyTok)
	require.NoError(t, err)
	require.Equal(t, "base-copy", v)

	require.NoError(t, s.Release(tok))
	v2, err := s.Get(copyTok)
	require.NoError(t, err)
	require.Equal(t, "base-copy", v2)
}

func TestCopyFailsWithoutCopyableEntity(t *testing.T) {
	s := New()
	tok, err := s.Add(&fakeEntity{value: "plain"})
	require.NoError(t, err)

	_, err = s.Copy(tok)
	require.Error(t, err)
}

func TestCopyPropagatesUnderlyingError(t *testing.T) {
	s := New()
	tok, err := s.Add(&copyableEntity{fakeEntity: fakeEntity{value: "x"}, copyErr: errors.New("nope")})
	require.NoError(t, err)

	_, err = s.Copy(tok)
	require.Error(t, err)
}

func TestCloseForceFreesRemainingEntitiesAndReportsLeaks(t *testing.T) {
	s := New()
	leaker := &fakeEntity{value: "leak"}
	tracked := &fakeEntity{value: "tracked"}

	leakTok, err := s.Add(leaker)
	require.NoError(t, err)
	_, err = s.AddTracked(tracked)
	require.NoError(t, err)

	leaked := s.Close()
	require.True(t, leaker.freed)
	require.True(t, tracked.freed)
	require.Equal(t, []servlet.Token{leakTok}, leaked)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New()
	_, err := s.Add(&fakeEntity{value: "x"})
	require.NoError(t, err)

	first := s.Close()
	require.Len(t, first, 1)
	second := s.Close()
	require.Nil(t, second)
}
