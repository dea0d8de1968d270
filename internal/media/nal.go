// Package media holds the wire-level media types shared by the video and
// audio pipelines: NAL units, the 90 kHz clock, and H.264 parameter-set
// parsing.
package media

// NAL is one encoded H.264 unit (parameter set or slice) as carried over the
// UDP video port. Timestamp is in 90 kHz ticks.
type NAL struct {
	Data      []byte
	Keyframe  bool
	Timestamp uint32
}

// H.264 NAL unit types, ITU-T H.264 Table 7-1. Only the four the protocol
// recognizes; everything else is dropped at the decoder.
const (
	NALTypeSlice = 1
	NALTypeIDR   = 5
	NALTypeSPS   = 7
	NALTypePPS   = 8
)

// NALType returns the nal_unit_type from the low 5 bits of the first byte,
// or -1 for an empty unit.
func NALType(data []byte) int {
	if len(data) == 0 {
		return -1
	}
	return int(data[0] & 0x1F)
}

// KeyframeType reports whether a NAL of the given type is part of a keyframe
// delivery (parameter sets and IDR slices).
func KeyframeType(t int) bool {
	return t == NALTypeSPS || t == NALTypePPS || t == NALTypeIDR
}
