package chunk

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerEmitsLengthPrefixAndTerminator(t *testing.T) {
	c := NewChunker()
	c.BeginMessage()
	c.Write([]byte("hi"))
	c.EndMessage()

	var out bytes.Buffer
	require.NoError(t, c.Send(context.Background(), &out))

	assert.Equal(t, []byte{0x00, 0x02, 'h', 'i', 0x00, 0x00}, out.Bytes())
}

func TestChunkerSplitsOversizedMessage(t *testing.T) {
	c := NewChunkerSize(4)
	c.BeginMessage()
	c.Write([]byte("abcdefgh"))
	c.EndMessage()

	var out bytes.Buffer
	require.NoError(t, c.Send(context.Background(), &out))

	want := []byte{
		0x00, 0x04, 'a', 'b', 'c', 'd',
		0x00, 0x04, 'e', 'f', 'g', 'h',
		0x00, 0x00,
	}
	assert.Equal(t, want, out.Bytes())
}

func TestDechunkIdempotentWithChunker(t *testing.T) {
	payload := bytes.Repeat([]byte("payload-bytes-"), 5000) // forces multi-chunk split

	c := NewChunker()
	c.BeginMessage()
	c.Write(payload)
	c.EndMessage()

	var wire bytes.Buffer
	require.NoError(t, c.Send(context.Background(), &wire))

	dc := NewDechunker()
	got, err := dc.Next(&wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDechunkMultipleMessages(t *testing.T) {
	c := NewChunker()
	c.BeginMessage()
	c.Write([]byte("one"))
	c.EndMessage()
	c.BeginMessage()
	c.Write([]byte("two"))
	c.EndMessage()

	var wire bytes.Buffer
	require.NoError(t, c.Send(context.Background(), &wire))

	dc := NewDechunker()
	first, err := dc.Next(&wire)
	require.NoError(t, err)
	assert.Equal(t, "one", string(first))

	second, err := dc.Next(&wire)
	require.NoError(t, err)
	assert.Equal(t, "two", string(second))
}

func TestDechunkZeroChunkTerminatesRegardlessOfFraming(t *testing.T) {
	// A message with zero-length content is valid: header 0 immediately.
	wire := bytes.NewReader([]byte{0x00, 0x00})
	dc := NewDechunker()
	got, err := dc.Next(wire)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDechunkTruncatedMidChunkFails(t *testing.T) {
	wire := bytes.NewReader([]byte{0x00, 0x05, 'a', 'b'}) // declares 5 bytes, only 2 present
	dc := NewDechunker()
	_, err := dc.Next(wire)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDechunkCleanEOFAtBoundary(t *testing.T) {
	wire := bytes.NewReader(nil)
	dc := NewDechunker()
	_, err := dc.Next(wire)
	assert.ErrorIs(t, err, io.EOF)
}
