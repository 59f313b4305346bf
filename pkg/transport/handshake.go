package transport

import (
	"fmt"
	"io"

	"github.com/orneryd/bolt-core/pkg/boltcore"
)

// Magic is the 4-byte Bolt handshake preamble (spec §6.2).
var Magic = [4]byte{0x60, 0x60, 0xB0, 0x17}

// VersionRange is one of the four proposed version ranges sent in the
// handshake: major.minor, plus how many minors below minor are also
// acceptable (spec §6.2 "RR MI MA", "supports a contiguous set of minors").
type VersionRange struct {
	Major       byte
	Minor       byte
	MinorRange  byte
}

func (v VersionRange) encode() [4]byte {
	return [4]byte{0x00, v.MinorRange, v.Minor, v.Major}
}

// NegotiatedVersion is the single version the server selected.
type NegotiatedVersion struct {
	Major byte
	Minor byte
}

// Handshake writes the magic bytes and up to four proposed version ranges,
// then reads the server's 4-byte reply (spec §4.3, §6.2). proposals shorter
// than four entries are padded with zero ranges (rejected by any server).
func Handshake(ch Channel, proposals []VersionRange) (NegotiatedVersion, error) {
	if len(proposals) > 4 {
		proposals = proposals[:4]
	}
	out := make([]byte, 0, 4+16)
	out = append(out, Magic[:]...)
	for i := 0; i < 4; i++ {
		var enc [4]byte
		if i < len(proposals) {
			enc = proposals[i].encode()
		}
		out = append(out, enc[:]...)
	}
	if _, err := ch.Write(out); err != nil {
		return NegotiatedVersion{}, fmt.Errorf("transport: write handshake: %w", err)
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(ch, reply); err != nil {
		return NegotiatedVersion{}, fmt.Errorf("transport: read handshake reply: %w", err)
	}
	if reply[0] == 0 && reply[1] == 0 && reply[2] == 0 && reply[3] == 0 {
		return NegotiatedVersion{}, boltcore.New(boltcore.CodeProtocolError, "server rejected every proposed protocol version").
			WithCause(boltcore.ErrHandshakeRejected)
	}
	return NegotiatedVersion{Minor: reply[2], Major: reply[3]}, nil
}
