package blobsink

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/servlets/blobsrc"
)

// countingEntity wraps a CopyableEntity/StreamableEntity pair and counts
// Copy invocations, so the test can assert the DRA path never takes the
// copy-on-write branch for a large payload.
type countingEntity struct {
	servlet.Entity
	copies *int
}

func (c countingEntity) Copy() (servlet.Entity, error) {
	*c.copies++
	return c.Entity.(interface {
		Copy() (servlet.Entity, error)
	}).Copy()
}

func (c countingEntity) OpenStream() (servlet.StreamHandle, error) {
	return c.Entity.(interface {
		OpenStream() (servlet.StreamHandle, error)
	}).OpenStream()
}

type sharedContext struct {
	pipes   map[servlet.PD]*bytes.Buffer
	scope   map[servlet.Token]servlet.Entity
	nextTok servlet.Token
	nextPD  servlet.PD
	copies  int
}

func newSharedContext() *sharedContext {
	return &sharedContext{pipes: map[servlet.PD]*bytes.Buffer{}, scope: map[servlet.Token]servlet.Entity{}}
}

// Define hands out sequential PDs in call order, mirroring how each
// servlet's Init call binds its declared names in this harness (no name
// deduplication, since src and sink are independent servlet instances
// whose "out"/"in" names are local to each).
func (c *sharedContext) Define(name string, dir servlet.Direction, typeName string) servlet.PD {
	pd := c.nextPD
	c.nextPD++
	return pd
}

func (c *sharedContext) Read(pd servlet.PD, buf []byte) (int, error) {
	b := c.pipes[pd]
	if b == nil || b.Len() == 0 {
		return 0, nil
	}
	return b.Read(buf)
}

func (c *sharedContext) Write(pd servlet.PD, buf []byte) (int, error) {
	if c.pipes[pd] == nil {
		c.pipes[pd] = &bytes.Buffer{}
	}
	return c.pipes[pd].Write(buf)
}

func (c *sharedContext) EOF(pd servlet.PD) bool { return c.pipes[pd] == nil || c.pipes[pd].Len() == 0 }

func (c *sharedContext) Cntl(pd servlet.PD, opcode string, args ...interface{}) (interface{}, error) {
	return nil, nil
}

func (c *sharedContext) Log(msg string, fields ...interface{}) {}

func (c *sharedContext) ScopeAdd(ent servlet.Entity) (servlet.Token, error) {
	c.nextTok++
	c.scope[c.nextTok] = countingEntity{Entity: ent, copies: &c.copies}
	return c.nextTok, nil
}

func (c *sharedContext) ScopeGet(tok servlet.Token) (interface{}, error) {
	return c.scope[tok].Data(), nil
}

func (c *sharedContext) ScopeCopy(tok servlet.Token) (servlet.Token, error) {
	ent := c.scope[tok]
	copyable, ok := ent.(interface{ Copy() (servlet.Entity, error) })
	if !ok {
		return 0, nil
	}
	copied, err := copyable.Copy()
	if err != nil {
		return 0, err
	}
	c.nextTok++
	c.scope[c.nextTok] = copied
	return c.nextTok, nil
}

func (c *sharedContext) OpenStream(tok servlet.Token) (servlet.StreamHandle, error) {
	ent := c.scope[tok]
	streamable := ent.(interface {
		OpenStream() (servlet.StreamHandle, error)
	})
	return streamable.OpenStream()
}

func (c *sharedContext) Async(
	setup func(ctx context.Context) (interface{}, error),
	exec func(ctx context.Context, state interface{}) (interface{}, error),
	cleanup func(ctx context.Context, result interface{}, err error),
) error {
	return nil
}

func TestTokenForwardingDeliversBlobWithoutCopyCallback(t *testing.T) {
	blob := make([]byte, 1<<20)
	for i := range blob {
		blob[i] = byte(i % 251)
	}

	src := blobsrc.New(blob)
	sink := New()

	ctx := newSharedContext()
	require.NoError(t, src.Init(context.Background(), ctx, nil))
	require.NoError(t, src.Exec(context.Background(), ctx))

	// The token src wrote lands on pd 0 in this shared-context test
	// harness; forward it to the sink's input pd unchanged (the real
	// runtime does this via the graph's edge binding).
	ctx.pipes[1] = bytes.NewBuffer(ctx.pipes[0].Bytes())

	require.NoError(t, sink.Init(context.Background(), ctx, nil))
	require.NoError(t, sink.Exec(context.Background(), ctx))

	require.Equal(t, blob, ctx.pipes[2].Bytes())
	require.Equal(t, 0, ctx.copies)
}
