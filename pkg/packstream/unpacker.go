package packstream

import (
	"fmt"

	"github.com/orneryd/bolt-core/pkg/buffer"
)

// ProtocolError is returned by Unpacker for any malformed input (spec §4.2:
// "On unknown marker, fail with protocol_error").
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol_error: " + e.Msg }

func protoErrf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// Hydrator turns a raw Struct into a richer domain value, if its tag is
// recognized. It returns (nil, false) for unrecognized tags, leaving the
// generic Struct as the decoded value (spec §4.2 "Structure dispatch").
type Hydrator func(s Struct) (any, bool)

// Unpacker decodes PackStream values from a buffer.Buffer.
type Unpacker struct {
	buf       *buffer.Buffer
	hydrate   Hydrator
	lossyInt  bool
	lastLossy bool
}

// NewUnpacker returns an Unpacker reading from buf. hydrate may be nil, in
// which case every structure decodes as a generic Struct.
func NewUnpacker(buf *buffer.Buffer, hydrate Hydrator) *Unpacker {
	return &Unpacker{buf: buf, hydrate: hydrate}
}

// MaxSafeInteger is the largest integer magnitude representable without
// loss as a float64 (spec §3: "Integers outside the safe 53-bit range
// carry a lossless representation flag").
const MaxSafeInteger = 1<<53 - 1

// SetLossyIntegers opts into the "disableLosslessIntegers" decode mode
// (spec §6.6): integers outside the safe 53-bit range are converted to
// float64 instead of being kept as an exact int64. The conversion never
// fails (spec §8: "lossy mode never raises"); LastDecodeLossy reports
// whether the most recently decoded integer lost precision.
func (u *Unpacker) SetLossyIntegers(v bool) {
	u.lossyInt = v
}

// LastDecodeLossy reports whether the integer most recently returned by
// Next lost precision converting to float64 under lossy-integer mode.
func (u *Unpacker) LastDecodeLossy() bool {
	return u.lastLossy
}

func (u *Unpacker) wrapInt64(v int64) any {
	u.lastLossy = false
	if !u.lossyInt {
		return v
	}
	if v > MaxSafeInteger || v < -MaxSafeInteger {
		u.lastLossy = true
		return float64(v)
	}
	return v
}

// Next decodes and returns the next PackStream value. The dynamic type of
// the result is one of: nil, bool, int64, float64, string, []any,
// map[string]any, Struct, or whatever the Hydrator returns for a
// recognized structure signature.
func (u *Unpacker) Next() (any, error) {
	marker, err := u.buf.ReadByte()
	if err != nil {
		return nil, err
	}
	return u.dispatch(marker)
}

func (u *Unpacker) dispatch(marker byte) (any, error) {
	switch {
	case marker == MarkerNull:
		return nil, nil
	case marker == MarkerFalse:
		return false, nil
	case marker == MarkerTrue:
		return true, nil
	case marker == MarkerFloat64:
		return u.buf.ReadFloat64()
	case isTinyInt(marker):
		return u.wrapInt64(int64(int8(marker))), nil
	case marker == MarkerInt8:
		b, err := u.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return u.wrapInt64(int64(int8(b))), nil
	case marker == MarkerInt16:
		v, err := u.buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		return u.wrapInt64(int64(int16(v))), nil
	case marker == MarkerInt32:
		v, err := u.buf.ReadUint32()
		if err != nil {
			return nil, err
		}
		return u.wrapInt64(int64(int32(v))), nil
	case marker == MarkerInt64:
		v, err := u.buf.ReadInt64()
		if err != nil {
			return nil, err
		}
		return u.wrapInt64(v), nil
	case marker>>4 == MarkerTinyStringBase>>4:
		return u.readString(int(marker & 0x0F))
	case marker == MarkerString8:
		n, err := u.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return u.readString(int(n))
	case marker == MarkerString16:
		n, err := u.buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		return u.readString(int(n))
	case marker == MarkerString32:
		n, err := u.buf.ReadUint32()
		if err != nil {
			return nil, err
		}
		return u.readString(int(n))
	case marker>>4 == MarkerTinyListBase>>4:
		return u.readList(int(marker & 0x0F))
	case marker == MarkerList8:
		n, err := u.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return u.readList(int(n))
	case marker == MarkerList16:
		n, err := u.buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		return u.readList(int(n))
	case marker == MarkerList32:
		n, err := u.buf.ReadUint32()
		if err != nil {
			return nil, err
		}
		return u.readList(int(n))
	case marker>>4 == MarkerTinyMapBase>>4:
		return u.readMap(int(marker & 0x0F))
	case marker == MarkerMap8:
		n, err := u.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return u.readMap(int(n))
	case marker == MarkerMap16:
		n, err := u.buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		return u.readMap(int(n))
	case marker == MarkerMap32:
		n, err := u.buf.ReadUint32()
		if err != nil {
			return nil, err
		}
		return u.readMap(int(n))
	case marker>>4 == MarkerTinyStructBase>>4:
		return u.readStruct(int(marker & 0x0F))
	case marker == MarkerStruct8:
		n, err := u.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		return u.readStruct(int(n))
	case marker == MarkerStruct16:
		n, err := u.buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		return u.readStruct(int(n))
	default:
		return nil, protoErrf("unknown marker 0x%02X", marker)
	}
}

func isTinyInt(marker byte) bool {
	// Tiny ints occupy 0xF0..0xFF (negative, two's complement) and
	// 0x00..0x7F (non-negative). 0x80..0xEF are claimed by other markers.
	return marker <= 0x7F || marker >= 0xF0
}

func (u *Unpacker) readString(n int) (string, error) {
	b, err := u.buf.Read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (u *Unpacker) readList(n int) ([]any, error) {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := u.Next()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (u *Unpacker) readMap(n int) (map[string]any, error) {
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		kAny, err := u.Next()
		if err != nil {
			return nil, err
		}
		k, ok := kAny.(string)
		if !ok {
			return nil, protoErrf("map key is not a string: %T", kAny)
		}
		v, err := u.Next()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (u *Unpacker) readStruct(numFields int) (any, error) {
	tag, err := u.buf.ReadByte()
	if err != nil {
		return nil, err
	}
	fields := make([]any, numFields)
	for i := 0; i < numFields; i++ {
		v, err := u.Next()
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	s := Struct{Tag: tag, Fields: fields}
	if u.hydrate != nil {
		if v, ok := u.hydrate(s); ok {
			return v, nil
		}
	}
	return s, nil
}
