package pstdstring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndString(t *testing.T) {
	b := New(0)
	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", b.String())
	require.Equal(t, 5, b.Len())
}

func TestCopyProducesIndependentBuffer(t *testing.T) {
	b := New(0)
	_, _ = b.Write([]byte("original"))

	copied, err := b.Copy()
	require.NoError(t, err)
	clone := copied.(*Buffer)
	_, _ = clone.Write([]byte("-appended"))

	require.Equal(t, "original", b.String())
	require.Equal(t, "original-appended", clone.String())
}

func TestOpenStreamReadsAllBytesThenEOF(t *testing.T) {
	b := New(0)
	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, _ = b.Write(payload)

	stream, err := b.OpenStream()
	require.NoError(t, err)
	defer stream.Close()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 4096)
	for !stream.EOF() {
		n, err := stream.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	require.Equal(t, payload, got)
}
