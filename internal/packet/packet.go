// Package packet implements the fixed 12-byte header that leads every
// datagram on the video and audio UDP ports.
package packet

import (
	"encoding/binary"
	"errors"
)

const (
	// MaxDatagram is the largest datagram sent on a media port
	MaxDatagram = 1400
	// HeaderSize is the fixed header length in bytes
	HeaderSize = 12
	// MaxPayload is the payload capacity of a single datagram
	MaxPayload = MaxDatagram - HeaderSize
)

// Header flag bits
const (
	// FlagKeyframe marks every fragment of a keyframe NAL
	FlagKeyframe = 0x01
	// FlagStart marks the first fragment of a NAL
	FlagStart = 0x02
	// FlagEnd marks the last fragment of a NAL
	FlagEnd = 0x04
)

// ErrTruncated is returned when fewer than HeaderSize bytes are given to DecodeHeader
var ErrTruncated = errors.New("packet: truncated header")

// Header is the leading 12 bytes of a media datagram. All multi-byte fields
// are big-endian on the wire. Timestamp is the 90 kHz media clock on the
// video port and an opaque packet counter on the audio port.
type Header struct {
	Sequence      uint16
	Timestamp     uint32
	Flags         uint8
	FragmentIndex uint16
	FragmentCount uint16
}

// Keyframe reports whether the keyframe flag bit is set
func (h Header) Keyframe() bool { return h.Flags&FlagKeyframe != 0 }

// Start reports whether this is the first fragment of its NAL
func (h Header) Start() bool { return h.Flags&FlagStart != 0 }

// End reports whether this is the last fragment of its NAL
func (h Header) End() bool { return h.Flags&FlagEnd != 0 }

// EncodeHeader serializes h into a fresh HeaderSize-byte slice.
// The reserved byte at offset 7 is always written as zero.
func EncodeHeader(h Header) []byte {
	return AppendHeader(make([]byte, 0, HeaderSize), h)
}

// AppendHeader appends the serialized form of h to dst and returns the
// extended slice. Useful for building a datagram in a single allocation.
func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.BigEndian.AppendUint16(dst, h.Sequence)
	dst = binary.BigEndian.AppendUint32(dst, h.Timestamp)
	dst = append(dst, h.Flags, 0)
	dst = binary.BigEndian.AppendUint16(dst, h.FragmentIndex)
	dst = binary.BigEndian.AppendUint16(dst, h.FragmentCount)
	return dst
}

// DecodeHeader parses the leading HeaderSize bytes of b. Anything after the
// header is the NAL fragment and is left to the caller. The reserved byte is
// ignored.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	return Header{
		Sequence:      binary.BigEndian.Uint16(b[0:2]),
		Timestamp:     binary.BigEndian.Uint32(b[2:6]),
		Flags:         b[6],
		FragmentIndex: binary.BigEndian.Uint16(b[8:10]),
		FragmentCount: binary.BigEndian.Uint16(b[10:12]),
	}, nil
}

// FragmentCount returns the number of datagrams needed to carry a payload of
// n bytes. A zero-length NAL still occupies one fragment.
func FragmentCount(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + MaxPayload - 1) / MaxPayload
}
