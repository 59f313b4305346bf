package bolt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/bolt-core/pkg/buffer"
	"github.com/orneryd/bolt-core/pkg/packstream"
)

func TestNewProtocolDispatchesByMajorMinor(t *testing.T) {
	cases := []struct {
		v    Version
		want Version
	}{
		{Version{Major: 3, Minor: 0}, Version{Major: 3, Minor: 0}},
		{Version{Major: 4, Minor: 3}, Version{Major: 4, Minor: 3}},
		{Version{Major: 5, Minor: 4}, Version{Major: 5, Minor: 4}},
	}
	for _, tc := range cases {
		p, err := NewProtocol(tc.v)
		require.NoError(t, err)
		assert.Equal(t, tc.want, p.Version())
	}
}

func TestNewProtocolRejectsUnknownMajor(t *testing.T) {
	_, err := NewProtocol(Version{Major: 9, Minor: 0})
	require.Error(t, err)
}

func TestBolt3DoesNotSupportLogonOrRoute(t *testing.T) {
	p := NewBolt3()
	buf := buffer.New(32)
	packer := packstream.NewPacker(buf)
	assert.Error(t, p.EncodeLogon(packer, nil))
	assert.Error(t, p.EncodeRoute(packer, nil, nil, "", ""))
}

func TestBolt4SupportsRouteOnlyFrom43(t *testing.T) {
	early := NewBolt4(1)
	buf := buffer.New(32)
	assert.Error(t, early.EncodeRoute(packstream.NewPacker(buf), nil, nil, "", ""))

	late := NewBolt4(3)
	buf2 := buffer.New(32)
	assert.NoError(t, late.EncodeRoute(packstream.NewPacker(buf2), map[string]string{"region": "us"}, []string{"bm1"}, "neo4j", ""))
}

func TestBolt5CapabilityMatrix(t *testing.T) {
	assert.False(t, NewBolt5(0).Capabilities().Reauth)
	assert.True(t, NewBolt5(1).Capabilities().Reauth)
	assert.False(t, NewBolt5(1).Capabilities().NotificationFiltering)
	assert.True(t, NewBolt5(2).Capabilities().NotificationFiltering)
	assert.False(t, NewBolt5(3).Capabilities().Telemetry)
	assert.True(t, NewBolt5(4).Capabilities().Telemetry)
}

func TestBolt5EncodesHelloDecodableWithItsHydrator(t *testing.T) {
	p := NewBolt5(4)
	buf := buffer.New(128)
	packer := packstream.NewPacker(buf)
	require.NoError(t, p.EncodeHello(packer, "bolt-core/1.0", "bolt-core-agent", map[string]any{"scheme": "basic"}, nil))

	buf.Rewind()
	u := packstream.NewUnpacker(buf, p.Hydrator())
	v, err := u.Next()
	require.NoError(t, err)
	s, ok := v.(packstream.Struct)
	require.True(t, ok)
	assert.Equal(t, packstream.MsgHello, s.Tag)
}

func TestBolt5RejectsLogonBeforeReauthCapable(t *testing.T) {
	p := NewBolt5(0)
	buf := buffer.New(32)
	err := p.EncodeLogon(packstream.NewPacker(buf), map[string]any{"scheme": "basic"})
	require.Error(t, err)
}

func TestPullEncodesOptionalQid(t *testing.T) {
	p := NewBolt4(4)
	buf := buffer.New(32)
	packer := packstream.NewPacker(buf)
	require.NoError(t, p.EncodePull(packer, 100, 7))
	buf.Rewind()
	u := packstream.NewUnpacker(buf, nil)
	v, err := u.Next()
	require.NoError(t, err)
	s := v.(packstream.Struct)
	meta := s.Fields[0].(map[string]any)
	assert.EqualValues(t, 7, meta["qid"])
	assert.EqualValues(t, 100, meta["n"])
}
