// Package packstream implements the PackStream binary serialization used
// inside Bolt chunks (spec §4.2, §6.3): a tagged-union encoding with a
// marker byte selecting the type and, for variable-length types, a size
// class (tiny/8/16/32-bit). The dispatch-by-marker-byte shape here follows
// the real neo4j-go-driver's internal/packstream package (see the vendored
// outgoing.go fragment under _examples/other_examples), adapted into a
// Packer/Unpacker pair built on this module's own buffer.Buffer, in the
// same spirit as _examples/ossrs-go-oryx-lib/amf0's marker-dispatch codec.
package packstream

// Marker bytes, spec §6.3.
const (
	MarkerNull    byte = 0xC0
	MarkerFalse   byte = 0xC2
	MarkerTrue    byte = 0xC3
	MarkerFloat64 byte = 0xC1

	MarkerInt8  byte = 0xC8
	MarkerInt16 byte = 0xC9
	MarkerInt32 byte = 0xCA
	MarkerInt64 byte = 0xCB

	// Tiny int occupies the whole byte range; recognized by value, not a
	// fixed marker. TinyIntMin/TinyIntMax bound the inclusive range spec
	// §6.3 ("F0..7F tiny int -16..+127").
	TinyIntMin = -16
	TinyIntMax = 127

	MarkerTinyStringBase byte = 0x80
	MarkerString8        byte = 0xD0
	MarkerString16       byte = 0xD1
	MarkerString32       byte = 0xD2

	MarkerTinyListBase byte = 0x90
	MarkerList8        byte = 0xD4
	MarkerList16       byte = 0xD5
	MarkerList32       byte = 0xD6

	MarkerTinyMapBase byte = 0xA0
	MarkerMap8        byte = 0xD8
	MarkerMap16       byte = 0xD9
	MarkerMap32       byte = 0xDA

	MarkerTinyStructBase byte = 0xB0
	MarkerStruct8        byte = 0xDC
	MarkerStruct16       byte = 0xDD
)

// Structure signatures (spec §6.3), common to every protocol version.
const (
	SigNode                byte = 'N' // 0x4E
	SigRelationship        byte = 'R' // 0x52
	SigUnboundRelationship byte = 'r' // 0x72
	SigPath                byte = 'P' // 0x50
	SigDate                byte = 'D' // 0x44
	SigTime                byte = 'T' // 0x54
	SigLocalTime           byte = 't' // 0x74
	SigLocalDateTime       byte = 'd' // 0x64
	SigDuration            byte = 'E' // 0x45
	SigPoint2D             byte = 'X' // 0x58
	SigPoint3D             byte = 'Y' // 0x59
	SigLegacyDateTimeOffset byte = 'F'
	SigLegacyDateTimeZoneID byte = 'f'
	SigUtcDateTimeOffset    byte = 'I'
	SigUtcDateTimeZoneID    byte = 'i'
)

// Bolt request/response message signatures (spec §6.4).
const (
	MsgHello     byte = 0x01
	MsgLogon     byte = 0x6A
	MsgLogoff    byte = 0x6B
	MsgGoodbye   byte = 0x02
	MsgReset     byte = 0x0F
	MsgRun       byte = 0x10
	MsgBegin     byte = 0x11
	MsgCommit    byte = 0x12
	MsgRollback  byte = 0x13
	MsgDiscardN  byte = 0x2F
	MsgPullN     byte = 0x3F
	MsgRoute     byte = 0x66
	MsgTelemetry byte = 0x54

	MsgSuccess byte = 0x70
	MsgRecord  byte = 0x71
	MsgIgnored byte = 0x7E
	MsgFailure byte = 0x7F
)
