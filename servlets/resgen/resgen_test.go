package resgen

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/servlets/pstdstring"
)

type fakeContext struct {
	input   *bytes.Reader
	written map[servlet.PD]*bytes.Buffer
	scope   map[servlet.Token]servlet.Entity
}

func (f *fakeContext) Define(name string, dir servlet.Direction, typeName string) servlet.PD { return 0 }

func (f *fakeContext) Read(pd servlet.PD, buf []byte) (int, error) {
	if f.input.Len() == 0 {
		return 0, nil
	}
	n, _ := f.input.Read(buf)
	return n, nil
}

func (f *fakeContext) Write(pd servlet.PD, buf []byte) (int, error) {
	if f.written[pd] == nil {
		f.written[pd] = &bytes.Buffer{}
	}
	return f.written[pd].Write(buf)
}

func (f *fakeContext) EOF(pd servlet.PD) bool { return f.input.Len() == 0 }

func (f *fakeContext) Cntl(pd servlet.PD, opcode string, args ...interface{}) (interface{}, error) {
	return nil, nil
}

func (f *fakeContext) Log(msg string, fields ...interface{}) {}

func (f *fakeContext) ScopeAdd(ent servlet.Entity) (servlet.Token, error) { return 0, nil }

func (f *fakeContext) ScopeGet(tok servlet.Token) (interface{}, error) {
	return f.scope[tok].Data(), nil
}

func (f *fakeContext) ScopeCopy(tok servlet.Token) (servlet.Token, error) { return 0, nil }

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
	result, err := exec(context.Background(), state)
	cleanup(context.Background(), result, err)
	return nil
}

func TestExecRendersHTMLWithUserAgent(t *testing.T) {
	ua := pstdstring.New(0)
	_, _ = ua.Write([]byte("curl/8.0"))

	tokBuf := make([]byte, 4)
	tokBuf[0] = 7

	fc := &fakeContext{
		input:   bytes.NewReader(tokBuf),
		written: map[servlet.PD]*bytes.Buffer{},
		scope:   map[servlet.Token]servlet.Entity{7: ua},
	}
	s := &responseGenerator{userAgent: 0, response: 1}

	require.NoError(t, s.Exec(context.Background(), fc))
	require.Contains(t, fc.written[1].String(), "curl/8.0")
	require.Contains(t, fc.written[1].String(), "HTTP/1.1 200 OK")
}
