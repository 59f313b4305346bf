package bolt

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/bolt-core/pkg/boltlog"
	"github.com/orneryd/bolt-core/pkg/buffer"
	"github.com/orneryd/bolt-core/pkg/chunk"
	"github.com/orneryd/bolt-core/pkg/packstream"
)

// testChannel adapts a net.Conn to transport.Channel for tests, the same
// way handshake_test.go's pipeChannel does.
type testChannel struct {
	net.Conn
}

func (c testChannel) RemoteAddr() string { return "pipe" }

// scriptedServer drives the "server" end of a net.Pipe: it reads the 20
// handshake bytes, replies with a fixed version, then writes back the canned
// response messages built by replies, in order. Before each reply it reads
// one dechunked client message, except for a reply that directly follows a
// RECORD: the RECORDs and the SUCCESS after them all answer one PULL.
func scriptedServer(t *testing.T, conn net.Conn, negotiated [4]byte, replies ...func(*packstream.Packer)) {
	t.Helper()
	go func() {
		hsBuf := make([]byte, 20)
		if _, err := io.ReadFull(conn, hsBuf); err != nil {
			return
		}
		if _, err := conn.Write(negotiated[:]); err != nil {
			return
		}
		dechunker := chunk.NewDechunker()
		afterRecord := false
		for _, build := range replies {
			if !afterRecord {
				if _, err := dechunker.Next(conn); err != nil {
					return
				}
			}
			buf := buffer.New(256)
			p := packstream.NewPacker(buf)
			build(p)
			afterRecord = buf.Bytes()[1] == packstream.MsgRecord
			chunker := chunk.NewChunker()
			chunker.BeginMessage()
			chunker.Write(buf.Bytes())
			chunker.EndMessage()
			if err := chunker.Send(context.Background(), conn); err != nil {
				return
			}
		}
	}()
}

func successReply(meta map[string]any) func(*packstream.Packer) {
	return func(p *packstream.Packer) {
		p.StructHeader(packstream.MsgSuccess, 1)
		_ = p.Map(meta)
	}
}

func recordReply(fields []any) func(*packstream.Packer) {
	return func(p *packstream.Packer) {
		p.StructHeader(packstream.MsgRecord, 1)
		_ = p.Any(fields)
	}
}

func failureReply(meta map[string]any) func(*packstream.Packer) {
	return func(p *packstream.Packer) {
		p.StructHeader(packstream.MsgFailure, 1)
		_ = p.Map(meta)
	}
}

func newTestConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	c := NewConnection(testChannel{client}, "localhost:7687", boltlog.Discard())
	return c, server
}

func TestConnectNegotiatesAndSendsHello(t *testing.T) {
	c, server := newTestConnection(t)
	scriptedServer(t, server, [4]byte{0x00, 0x00, 0x04, 0x05},
		successReply(map[string]any{"server": "Neo4j/5.5.0"}),
		successReply(map[string]any{}), // LOGON's SUCCESS (bolt 5.4 is reauth-capable)
	)

	err := c.Connect(context.Background(), "bolt-core/1.0", "", map[string]any{"scheme": "none"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 5, Minor: 4}, c.Version())
	assert.Equal(t, StateReady, c.State())
}

func TestConnectArmsReceiveTimeoutHint(t *testing.T) {
	c, server := newTestConnection(t)
	scriptedServer(t, server, [4]byte{0x00, 0x00, 0x04, 0x05},
		successReply(map[string]any{
			"server": "Neo4j/5.5.0",
			"hints":  map[string]any{"connection.recv_timeout_seconds": int64(30)},
		}),
		successReply(map[string]any{}), // LOGON's SUCCESS
	)

	require.NoError(t, c.Connect(context.Background(), "bolt-core/1.0", "", nil, nil))
	assert.Equal(t, 30*time.Second, c.recvTimeout)
}

func TestConnectFailsOnHandshakeRejection(t *testing.T) {
	c, server := newTestConnection(t)
	go func() {
		buf := make([]byte, 20)
		_, _ = io.ReadFull(server, buf)
		_, _ = server.Write([]byte{0x00, 0x00, 0x00, 0x00})
	}()

	err := c.Connect(context.Background(), "bolt-core/1.0", "", nil, nil)
	require.Error(t, err)
	assert.True(t, c.IsBroken())
}

func TestRunThenPullDeliversRecordsAndKeepsObserverAlive(t *testing.T) {
	c, server := newTestConnection(t)
	scriptedServer(t, server, [4]byte{0x00, 0x00, 0x04, 0x05},
		successReply(map[string]any{}),
		successReply(map[string]any{}), // LOGON's SUCCESS
		successReply(map[string]any{"fields": []any{"n"}}),
		recordReply([]any{int64(1)}),
		recordReply([]any{int64(2)}),
		successReply(map[string]any{"has_more": false}),
	)
	require.NoError(t, c.Connect(context.Background(), "bolt-core/1.0", "", nil, nil))

	var runMeta map[string]any
	runObs := &Observer{OnSuccess: func(m map[string]any) { runMeta = m }}
	require.NoError(t, c.Run(context.Background(), "RETURN 1", nil, TxMetadata{}, runObs))
	assert.Equal(t, []any{"n"}, runMeta["fields"])

	var records [][]any
	var pullMeta map[string]any
	pullObs := &Observer{
		OnRecord:  func(fields []any) { records = append(records, fields) },
		OnSuccess: func(m map[string]any) { pullMeta = m },
	}
	require.NoError(t, c.Pull(context.Background(), 1000, -1, pullObs))

	assert.Len(t, records, 2)
	assert.Equal(t, false, pullMeta["has_more"])
	assert.False(t, c.HasOngoingObservableRequests())
}

func TestFailureTriggersImplicitResetOnBolt4(t *testing.T) {
	c, server := newTestConnection(t)
	scriptedServer(t, server, [4]byte{0x00, 0x00, 0x04, 0x04},
		successReply(map[string]any{}),
		failureReply(map[string]any{"code": "Neo.ClientError.Statement.SyntaxError", "message": "bad query"}),
		successReply(map[string]any{}), // RESET's SUCCESS
	)
	require.NoError(t, c.Connect(context.Background(), "bolt-core/1.0", "", nil, nil))

	var gotErr error
	obs := &Observer{OnFailure: func(err error) { gotErr = err }}
	err := c.Run(context.Background(), "syntax error(", nil, TxMetadata{}, obs)
	require.Error(t, err)
	assert.Error(t, gotErr)
	assert.False(t, c.IsBroken())
	assert.Equal(t, StateReady, c.State())
}

func TestProtocolErrorBreaksConnection(t *testing.T) {
	c, server := newTestConnection(t)
	scriptedServer(t, server, [4]byte{0x00, 0x00, 0x04, 0x04},
		successReply(map[string]any{}),
		failureReply(map[string]any{"code": "protocol_error", "message": "invalid message"}),
	)
	require.NoError(t, c.Connect(context.Background(), "bolt-core/1.0", "", nil, nil))

	obs := &Observer{}
	_ = c.Run(context.Background(), "RETURN 1", nil, TxMetadata{}, obs)
	assert.True(t, c.IsBroken())
}

func TestResetAndFlushRejectsStaleObservers(t *testing.T) {
	c, server := newTestConnection(t)
	scriptedServer(t, server, [4]byte{0x00, 0x00, 0x04, 0x04},
		successReply(map[string]any{}),
		successReply(map[string]any{}), // RESET's SUCCESS
	)
	require.NoError(t, c.Connect(context.Background(), "bolt-core/1.0", "", nil, nil))

	var staleErr error
	obs := &Observer{OnFailure: func(err error) { staleErr = err }}
	c.pushObserver(obs, true)

	require.NoError(t, c.ResetAndFlush(context.Background()))
	assert.Error(t, staleErr)
	assert.False(t, c.HasOngoingObservableRequests())
}
