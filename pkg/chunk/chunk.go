// Package chunk implements Bolt's chunked framing (spec §4.1, §6.1): a
// message is split into one or more [uint16 length][length bytes] chunks and
// terminated by a zero-length chunk. The teacher's pkg/bolt/server.go framed
// chunks the same way on the server side (sendChunk/handleMessage); this
// package generalizes that framing into a reusable writer (Chunker) and
// reader state machine (Dechunker) shared by every protocol version.
package chunk

import (
	"context"
	"fmt"
	"io"

	"github.com/orneryd/bolt-core/pkg/buffer"
)

// MaxChunkSize is the largest payload a single chunk may carry (spec §6.1).
const MaxChunkSize = 65535

// Chunker buffers an outgoing message, splits it into MaxChunkSize (or
// smaller) chunks on EndMessage, and writes the queued chunks on Send. It
// is not safe for concurrent use.
type Chunker struct {
	maxSize int
	buf     []byte
	out     []byte
}

// NewChunker returns a Chunker with the default maximum chunk size.
func NewChunker() *Chunker {
	return NewChunkerSize(MaxChunkSize)
}

// NewChunkerSize returns a Chunker that never emits a chunk larger than
// size. A size outside [1, MaxChunkSize] selects MaxChunkSize.
func NewChunkerSize(size int) *Chunker {
	if size <= 0 || size > MaxChunkSize {
		size = MaxChunkSize
	}
	return &Chunker{maxSize: size}
}

// BeginMessage starts accumulating bytes for a new message.
func (c *Chunker) BeginMessage() {
	c.buf = c.buf[:0]
}

// Write appends raw message bytes to the current message.
func (c *Chunker) Write(p []byte) {
	c.buf = append(c.buf, p...)
}

// EndMessage slices the accumulated message into chunks, appends the
// zero-length terminator chunk, and queues the result for Send.
func (c *Chunker) EndMessage() {
	for len(c.buf) > 0 {
		n := len(c.buf)
		if n > c.maxSize {
			n = c.maxSize
		}
		c.appendChunk(c.buf[:n])
		c.buf = c.buf[n:]
	}
	// Zero-length chunk marks the message boundary (spec §4.1, §6.1).
	c.out = append(c.out, 0x00, 0x00)
}

func (c *Chunker) appendChunk(payload []byte) {
	var hdr [2]byte
	hdr[0] = byte(len(payload) >> 8)
	hdr[1] = byte(len(payload))
	c.out = append(c.out, hdr[0], hdr[1])
	c.out = append(c.out, payload...)
}

// Send writes every queued chunk (for every message ended since the last
// Send) to wr in a single Write and clears the queue. ctx is checked once
// before the write; a write that is already blocked is not canceled by it.
func (c *Chunker) Send(ctx context.Context, wr io.Writer) error {
	if len(c.out) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := wr.Write(c.out)
	c.out = c.out[:0]
	if err != nil {
		return fmt.Errorf("chunk: write failed: %w", err)
	}
	return nil
}

// Pending reports whether any chunk bytes are queued for the next Send.
func (c *Chunker) Pending() bool {
	return len(c.out) > 0
}

// dechunkState names the Dechunker's read position (spec §4.1).
type dechunkState int

const (
	stateAwaitHeader dechunkState = iota
	stateInChunk
	stateMessageReady
)

// Dechunker reassembles a chunked byte stream back into whole messages. It
// reads length-prefixed chunks from a reader and reassembles their payloads
// until a zero-length terminator chunk is seen, at which point the
// reassembled message is delivered. Not safe for concurrent use.
type Dechunker struct {
	state  dechunkState
	header [2]byte
	msg    buffer.Buffer
}

// NewDechunker returns a ready-to-use Dechunker.
func NewDechunker() *Dechunker {
	return &Dechunker{state: stateAwaitHeader}
}

// Next reads chunks from r until a full message has been reassembled, and
// returns its bytes. The returned slice is only valid until the next call
// to Next. Next fails with an error wrapping io.ErrUnexpectedEOF if the
// stream ends in the middle of a chunk; a clean EOF at a chunk boundary
// (the AWAIT_HEADER state) is returned as io.EOF.
func (d *Dechunker) Next(r io.Reader) ([]byte, error) {
	d.msg.Reset()
	for {
		if _, err := io.ReadFull(r, d.header[:]); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("chunk: truncated chunk header: %w", io.ErrUnexpectedEOF)
		}
		size := int(d.header[0])<<8 | int(d.header[1])
		if size == 0 {
			return d.msg.Bytes(), nil
		}
		d.state = stateInChunk
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("chunk: truncated chunk payload: %w", io.ErrUnexpectedEOF)
		}
		d.msg.Write(payload)
		d.state = stateAwaitHeader
	}
}
