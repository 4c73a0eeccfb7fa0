package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	payloads := [][]byte{
		{},
		{0x01},
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, p := range payloads {
		require.NoError(t, w.WriteFrame(p))
	}

	r := NewReader(&buf, 0)
	for _, want := range payloads {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFrame(make([]byte, 100)))

	r := NewReader(&buf, 50)
	_, err := r.ReadFrame()
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameShortRead(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0, 0, 5, 1, 2}), 0)
	_, err := r.ReadFrame()
	require.Error(t, err)
}
