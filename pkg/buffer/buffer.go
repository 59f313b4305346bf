// Package buffer provides a growable byte buffer with a read cursor and
// endian-correct numeric accessors, used by the PackStream codec and the
// Bolt chunker to build and consume wire-format frames without repeated
// allocation.
package buffer

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Buffer is a growable, cursor-addressed byte buffer. The zero value is a
// ready-to-use empty buffer. Unlike bytes.Buffer, reads do not discard
// consumed bytes: Rewind moves the cursor back to the start without
// touching the written bytes, so a just-written message can be read back,
// and Reset empties the buffer for reuse with a new message.
type Buffer struct {
	buf []byte
	pos int
}

// New returns a Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Reset empties the buffer and rewinds the read cursor to zero.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

// Rewind moves the read cursor back to the start without discarding the
// written bytes, so a just-written message can be read back.
func (b *Buffer) Rewind() {
	b.pos = 0
}

// Bytes returns the buffer's full written content.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of written bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.buf) - b.pos
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// WriteUint16 appends v as two big-endian bytes.
func (b *Buffer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// WriteUint32 appends v as four big-endian bytes.
func (b *Buffer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// WriteUint64 appends v as eight big-endian bytes.
func (b *Buffer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// ReadByte consumes and returns the next byte. It returns io.EOF, not a
// wrapped error, when the cursor is exactly at the end — the same
// boundary Dechunker treats as a clean stream close.
func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

// PeekByte returns the next byte without consuming it.
func (b *Buffer) PeekByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	return b.buf[b.pos], nil
}

// Read consumes and returns the next n bytes as a slice into the buffer's
// backing array. Callers must copy the slice before the buffer is reused.
func (b *Buffer) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("buffer: negative read size %d", n)
	}
	if b.pos+n > len(b.buf) {
		if b.pos >= len(b.buf) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("buffer: requested %d bytes, only %d remaining: %w", n, b.Remaining(), io.ErrUnexpectedEOF)
	}
	out := b.buf[b.pos : b.pos+n]
	b.pos += n
	return out, nil
}

// ReadUint16 consumes and returns a big-endian uint16.
func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

// ReadUint32 consumes and returns a big-endian uint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// ReadUint64 consumes and returns a big-endian uint64.
func (b *Buffer) ReadUint64() (uint64, error) {
	p, err := b.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// ReadInt64 consumes and returns a big-endian two's-complement int64.
func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

// ReadFloat64 consumes and returns a big-endian IEEE-754 float64.
func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// WriteFloat64 appends v as eight big-endian IEEE-754 bytes.
func (b *Buffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}
