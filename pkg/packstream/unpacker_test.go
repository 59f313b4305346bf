package packstream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/bolt-core/pkg/buffer"
)

func TestUnpackerDecodesTinyInt(t *testing.T) {
	buf := buffer.New(4)
	buf.WriteByte(0x2A)
	buf.Rewind()
	u := NewUnpacker(buf, nil)
	v, err := u.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestUnpackerDecodesNegativeTinyInt(t *testing.T) {
	buf := buffer.New(4)
	buf.WriteByte(0xF0) // -16
	buf.Rewind()
	u := NewUnpacker(buf, nil)
	v, err := u.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(-16), v)
}

func TestUnpackerDecodesTinyString(t *testing.T) {
	buf := buffer.New(8)
	buf.Write([]byte{0x82, 0x68, 0x69})
	buf.Rewind()
	u := NewUnpacker(buf, nil)
	v, err := u.Next()
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
}

func TestUnpackerLossyIntegerConversion(t *testing.T) {
	buf := buffer.New(16)
	p := NewPacker(buf)
	big := int64(1<<53 + 5) // outside MaxSafeInteger
	p.Int64(big)
	buf.Rewind()

	u := NewUnpacker(buf, nil)
	u.SetLossyIntegers(true)
	v, err := u.Next()
	require.NoError(t, err)
	assert.IsType(t, float64(0), v)
	assert.True(t, u.LastDecodeLossy())
}

func TestUnpackerLosslessByDefault(t *testing.T) {
	buf := buffer.New(16)
	p := NewPacker(buf)
	big := int64(1<<53 + 5)
	p.Int64(big)
	buf.Rewind()

	u := NewUnpacker(buf, nil)
	v, err := u.Next()
	require.NoError(t, err)
	assert.Equal(t, big, v)
	assert.False(t, u.LastDecodeLossy())
}

func TestUnpackerLossyWithinSafeRangeNeverMarksLossy(t *testing.T) {
	buf := buffer.New(16)
	p := NewPacker(buf)
	p.Int64(1000)
	buf.Rewind()

	u := NewUnpacker(buf, nil)
	u.SetLossyIntegers(true)
	v, err := u.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v)
	assert.False(t, u.LastDecodeLossy())
}

func TestUnpackerUnknownMarkerIsProtocolError(t *testing.T) {
	buf := buffer.New(4)
	buf.WriteByte(0xC5) // unassigned marker
	buf.Rewind()
	u := NewUnpacker(buf, nil)
	_, err := u.Next()
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestUnpackerMapRejectsNonStringKey(t *testing.T) {
	buf := buffer.New(16)
	buf.WriteByte(MarkerTinyMapBase | 1)
	buf.WriteByte(0x01) // tiny-int key, not a string
	buf.WriteByte(0x02)
	buf.Rewind()
	u := NewUnpacker(buf, nil)
	_, err := u.Next()
	require.Error(t, err)
}

func TestUnpackerListSizeClassBoundaries(t *testing.T) {
	buf := buffer.New(256)
	p := NewPacker(buf)
	items := make([]any, 16)
	for i := range items {
		items[i] = int64(i)
	}
	p.ArrayHeader(len(items))
	for _, v := range items {
		require.NoError(t, p.Any(v))
	}
	buf.Rewind()
	u := NewUnpacker(buf, nil)
	got, err := u.Next()
	require.NoError(t, err)
	list, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, list, 16)
	assert.Equal(t, int64(0), list[0])
	assert.Equal(t, int64(15), list[15])
}

func TestUnpackerHydratesNode(t *testing.T) {
	buf := buffer.New(64)
	p := NewPacker(buf)
	p.StructHeader(SigNode, 3)
	p.Int64(17)
	p.Strings([]string{"Person"})
	require.NoError(t, p.Map(map[string]any{"name": "ann"}))
	buf.Rewind()

	u := NewUnpacker(buf, DefaultHydrator(HydratorOptions{}))
	v, err := u.Next()
	require.NoError(t, err)
	n, ok := v.(Node)
	require.True(t, ok)
	assert.EqualValues(t, 17, n.Id)
	assert.Equal(t, []string{"Person"}, n.Labels)
	assert.Equal(t, "ann", n.Props["name"])
}

func TestUnpackerFallsBackToGenericStructForUnknownTag(t *testing.T) {
	buf := buffer.New(16)
	p := NewPacker(buf)
	p.StructHeader(0x7A, 1)
	p.Int64(1)
	buf.Rewind()

	u := NewUnpacker(buf, DefaultHydrator(HydratorOptions{}))
	v, err := u.Next()
	require.NoError(t, err)
	s, ok := v.(Struct)
	require.True(t, ok)
	assert.Equal(t, byte(0x7A), s.Tag)
}

func TestUnpackerReadPastEndIsEOF(t *testing.T) {
	buf := buffer.New(0)
	u := NewUnpacker(buf, nil)
	_, err := u.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
}
