package packstream

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/orneryd/bolt-core/pkg/buffer"
)

// Packer encodes PackStream values into a buffer.Buffer. Each method is a
// direct marker+payload writer, following the shape of the real driver's
// internal packstream Packer (see the vendored outgoing.go fragment this
// package is grounded on).
type Packer struct {
	buf *buffer.Buffer
	// useUtc selects the Bolt 5.0+ UTC-based DateTime structures (SigUtc*)
	// over the legacy offset/zone-name ones (SigLegacyDateTime*); set by
	// the owning protocol version (spec §4.2, DESIGN NOTES).
	useUtc bool
}

// NewPacker returns a Packer writing into buf.
func NewPacker(buf *buffer.Buffer) *Packer {
	return &Packer{buf: buf}
}

// SetUseUtc toggles UTC-based DateTime encoding (Bolt 5.0+).
func (p *Packer) SetUseUtc(v bool) {
	p.useUtc = v
}

// Nil writes the null marker.
func (p *Packer) Nil() {
	p.buf.WriteByte(MarkerNull)
}

// Bool writes a boolean value.
func (p *Packer) Bool(v bool) {
	if v {
		p.buf.WriteByte(MarkerTrue)
	} else {
		p.buf.WriteByte(MarkerFalse)
	}
}

// Int writes an int using the tightest size class that fits (spec §4.2,
// §8 "Integer encoding picks the tightest size class at each 2^k boundary").
func (p *Packer) Int(v int) {
	p.Int64(int64(v))
}

// Int64 writes an int64 using the tightest size class that fits.
func (p *Packer) Int64(v int64) {
	switch {
	case v >= TinyIntMin && v <= TinyIntMax:
		p.buf.WriteByte(byte(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		p.buf.WriteByte(MarkerInt8)
		p.buf.WriteByte(byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		p.buf.WriteByte(MarkerInt16)
		p.buf.WriteUint16(uint16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		p.buf.WriteByte(MarkerInt32)
		p.buf.WriteUint32(uint32(v))
	default:
		p.buf.WriteByte(MarkerInt64)
		p.buf.WriteUint64(uint64(v))
	}
}

// Uint32 writes a uint32 as a (possibly promoted) signed integer; values
// beyond int32 range are promoted to the int64 size class.
func (p *Packer) Uint32(v uint32) {
	p.Int64(int64(v))
}

// Uint64 writes a uint64. Values beyond int64 range are not representable
// and are clamped to MaxInt64 before encoding (PackStream has no unsigned
// integer type; the structures that carry uint32/uint64 Go values, such as
// Point SRIDs, never exceed int64 range in practice).
func (p *Packer) Uint64(v uint64) {
	if v > math.MaxInt64 {
		v = math.MaxInt64
	}
	p.Int64(int64(v))
}

// Float64 writes an 8-byte IEEE-754 float (spec §4.2: "floats are always
// 8 bytes").
func (p *Packer) Float64(v float64) {
	p.buf.WriteByte(MarkerFloat64)
	p.buf.WriteFloat64(v)
}

// String writes a UTF-8 string using the tightest size class that fits
// (spec §8: tiny at 15, 8-bit at 16, 16-bit at 256, 32-bit at 65536).
func (p *Packer) String(v string) {
	b := []byte(v)
	n := len(b)
	switch {
	case n <= 15:
		p.buf.WriteByte(MarkerTinyStringBase | byte(n))
	case n <= math.MaxUint8:
		p.buf.WriteByte(MarkerString8)
		p.buf.WriteByte(byte(n))
	case n <= math.MaxUint16:
		p.buf.WriteByte(MarkerString16)
		p.buf.WriteUint16(uint16(n))
	case n <= math.MaxUint32:
		p.buf.WriteByte(MarkerString32)
		p.buf.WriteUint32(uint32(n))
	default:
		panic(fmt.Sprintf("packstream: string of length %d exceeds 32-bit size class", n))
	}
	p.buf.Write(b)
}

// Bytes writes a byte slice as a PackStream structure-free byte array.
// Bolt has no native byte-array marker shared across all versions in this
// spec's scope; this driver represents byte slices as a tiny/8/16/32-bit
// list of integers (tiny ints for 0..127, 16-bit ints for 128..255),
// matching how the generic packX fallback would encode
// a []byte without the dedicated optimization the real driver applies.
func (p *Packer) Bytes(v []byte) {
	p.ArrayHeader(len(v))
	for _, b := range v {
		p.Int64(int64(b))
	}
}

// ArrayHeader writes a list size-class marker for n following elements.
func (p *Packer) ArrayHeader(n int) {
	p.sizedMarker(n, MarkerTinyListBase, MarkerList8, MarkerList16, MarkerList32)
}

// MapHeader writes a map size-class marker for n following key/value pairs.
func (p *Packer) MapHeader(n int) {
	p.sizedMarker(n, MarkerTinyMapBase, MarkerMap8, MarkerMap16, MarkerMap32)
}

// StructHeader writes a structure size-class marker, tag, and n following
// field count (spec §4.2: "tiny-struct | struct-8 | struct-16 followed by
// a one-byte signature").
func (p *Packer) StructHeader(tag byte, n int) {
	switch {
	case n <= 15:
		p.buf.WriteByte(MarkerTinyStructBase | byte(n))
	case n <= math.MaxUint8:
		p.buf.WriteByte(MarkerStruct8)
		p.buf.WriteByte(byte(n))
	default:
		p.buf.WriteByte(MarkerStruct16)
		p.buf.WriteUint16(uint16(n))
	}
	p.buf.WriteByte(tag)
}

func (p *Packer) sizedMarker(n int, tinyBase, m8, m16, m32 byte) {
	switch {
	case n <= 15:
		p.buf.WriteByte(tinyBase | byte(n))
	case n <= math.MaxUint8:
		p.buf.WriteByte(m8)
		p.buf.WriteByte(byte(n))
	case n <= math.MaxUint16:
		p.buf.WriteByte(m16)
		p.buf.WriteUint16(uint16(n))
	case int64(n) <= math.MaxUint32:
		p.buf.WriteByte(m32)
		p.buf.WriteUint32(uint32(n))
	default:
		panic(fmt.Sprintf("packstream: size %d exceeds 32-bit size class", n))
	}
}

// IntMap writes a map[string]int directly, skipping the reflect-based
// dispatch Any would otherwise require (mirrors the real driver's
// packX optimization for map[string]int).
func (p *Packer) IntMap(m map[string]int) {
	p.MapHeader(len(m))
	for k, v := range m {
		p.String(k)
		p.Int(v)
	}
}

// StringMap writes a map[string]string directly.
func (p *Packer) StringMap(m map[string]string) {
	p.MapHeader(len(m))
	for k, v := range m {
		p.String(k)
		p.String(v)
	}
}

// Strings writes a []string directly.
func (p *Packer) Strings(s []string) {
	p.ArrayHeader(len(s))
	for _, v := range s {
		p.String(v)
	}
}

// Ints writes a []int directly.
func (p *Packer) Ints(s []int) {
	p.ArrayHeader(len(s))
	for _, v := range s {
		p.Int(v)
	}
}

// Int64s writes a []int64 directly.
func (p *Packer) Int64s(s []int64) {
	p.ArrayHeader(len(s))
	for _, v := range s {
		p.Int64(v)
	}
}

// Float64s writes a []float64 directly.
func (p *Packer) Float64s(s []float64) {
	p.ArrayHeader(len(s))
	for _, v := range s {
		p.Float64(v)
	}
}

// Map writes a map[string]any, dispatching each value through Any.
func (p *Packer) Map(m map[string]any) error {
	p.MapHeader(len(m))
	for k, v := range m {
		p.String(k)
		if err := p.Any(v); err != nil {
			return err
		}
	}
	return nil
}

// Any encodes an arbitrary Go value, dispatching on its dynamic type the
// same way the real driver's packX does: direct kinds first, then the
// slice/map optimizations, then structures, falling back to reflection.
func (p *Packer) Any(x any) error {
	if x == nil {
		p.Nil()
		return nil
	}
	switch v := x.(type) {
	case bool:
		p.Bool(v)
		return nil
	case int:
		p.Int(v)
		return nil
	case int64:
		p.Int64(v)
		return nil
	case float64:
		p.Float64(v)
		return nil
	case string:
		p.String(v)
		return nil
	case []byte:
		p.Bytes(v)
		return nil
	case []int:
		p.Ints(v)
		return nil
	case []int64:
		p.Int64s(v)
		return nil
	case []string:
		p.Strings(v)
		return nil
	case []float64:
		p.Float64s(v)
		return nil
	case map[string]int:
		p.IntMap(v)
		return nil
	case map[string]string:
		p.StringMap(v)
		return nil
	case map[string]any:
		return p.Map(v)
	case time.Time, Date, Time, LocalTime, LocalDateTime, DateTime, Duration, Point2D, Point3D,
		*Date, *Time, *LocalTime, *LocalDateTime, *DateTime, *Duration, *Point2D, *Point3D:
		return p.packStruct(x)
	}
	return p.packReflect(x)
}

func (p *Packer) packReflect(x any) error {
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Bool:
		p.Bool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.Int64(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		p.Uint32(uint32(v.Uint()))
	case reflect.Uint64, reflect.Uint:
		p.Uint64(v.Uint())
	case reflect.Float32, reflect.Float64:
		p.Float64(v.Float())
	case reflect.String:
		p.String(v.String())
	case reflect.Ptr:
		if v.IsNil() {
			p.Nil()
			return nil
		}
		return p.Any(v.Elem().Interface())
	case reflect.Slice, reflect.Array:
		n := v.Len()
		p.ArrayHeader(n)
		for i := 0; i < n; i++ {
			if err := p.Any(v.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("packstream: unsupported map key type %s", v.Type().Key())
		}
		p.MapHeader(v.Len())
		iter := v.MapRange()
		for iter.Next() {
			p.String(iter.Key().String())
			if err := p.Any(iter.Value().Interface()); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("packstream: unsupported type %T", x)
	}
	return nil
}
