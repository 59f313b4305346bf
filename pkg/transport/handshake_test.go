package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeChannel adapts a net.Conn (from net.Pipe) to the Channel interface for
// handshake tests, avoiding a real socket.
type pipeChannel struct {
	net.Conn
}

func (p pipeChannel) RemoteAddr() string { return p.Conn.RemoteAddr().String() }

func TestHandshakeNegotiatesProposedVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 20)
		_, _ = server.Read(buf)
		_, _ = server.Write([]byte{0x00, 0x00, 0x03, 0x05}) // minor=3, major=5
	}()

	got, err := Handshake(pipeChannel{client}, []VersionRange{
		{Major: 5, Minor: 4, MinorRange: 4},
		{Major: 5, Minor: 0, MinorRange: 0},
		{Major: 4, Minor: 4, MinorRange: 0},
		{Major: 4, Minor: 1, MinorRange: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, NegotiatedVersion{Major: 5, Minor: 3}, got)
}

func TestHandshakeRejectionIsProtocolError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 20)
		_, _ = server.Read(buf)
		_, _ = server.Write([]byte{0x00, 0x00, 0x00, 0x00})
	}()

	_, err := Handshake(pipeChannel{client}, []VersionRange{{Major: 5, Minor: 4}})
	require.Error(t, err)
}

func TestHandshakeWritesMagicBytesFirst(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 20)
		n, _ := server.Read(buf)
		received <- buf[:n]
		_, _ = server.Write([]byte{0x00, 0x00, 0x00, 0x04})
	}()

	_, err := Handshake(pipeChannel{client}, []VersionRange{{Major: 4, Minor: 4}})
	require.NoError(t, err)

	select {
	case b := <-received:
		require.Len(t, b, 20)
		assert.Equal(t, Magic[:], b[:4])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handshake bytes")
	}
}
