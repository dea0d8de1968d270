package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// loopCodec is a pure-Go stand-in for the hardware AAC binding used by tests
// and the CLI's --loopback mode. Packets are 16-bit quantized PCM behind a
// small header; round-tripping preserves frame count, rate, and channel
// layout, which is all the pipeline contract requires.
type loopCodec struct {
	channels int
}

const loopMagic = 0xA2

// NewLoopbackCodec creates a loopback codec for the given channel count.
func NewLoopbackCodec(channels int) (Codec, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: loopback codec: unsupported channel count %d", channels)
	}
	return &loopCodec{channels: channels}, nil
}

func (c *loopCodec) Channels() int { return c.channels }

func (c *loopCodec) EncodeWindow(pcm []float32) ([]byte, error) {
	if len(pcm) != WindowFrames*c.channels {
		return nil, fmt.Errorf("audio: loopback encode: %d samples, want %d", len(pcm), WindowFrames*c.channels)
	}
	out := make([]byte, 4+2*len(pcm))
	out[0] = loopMagic
	out[1] = byte(c.channels)
	binary.BigEndian.PutUint16(out[2:4], WindowFrames)
	for i, s := range pcm {
		v := int16(math.Round(float64(clamp(s, -1, 1)) * math.MaxInt16))
		binary.BigEndian.PutUint16(out[4+2*i:], uint16(v))
	}
	return out, nil
}

func (c *loopCodec) Decode(packet []byte) ([]float32, error) {
	if len(packet) == 0 {
		return nil, nil
	}
	if len(packet) < 4 || packet[0] != loopMagic {
		return nil, errors.New("audio: loopback decode: bad packet header")
	}
	channels := int(packet[1])
	frames := int(binary.BigEndian.Uint16(packet[2:4]))
	if channels != c.channels {
		return nil, fmt.Errorf("audio: loopback decode: channel count %d, want %d", channels, c.channels)
	}
	body := packet[4:]
	if len(body) != 2*frames*channels {
		return nil, fmt.Errorf("audio: loopback decode: body %d bytes for %d frames", len(body), frames)
	}
	pcm := make([]float32, frames*channels)
	for i := range pcm {
		v := int16(binary.BigEndian.Uint16(body[2*i:]))
		pcm[i] = float32(v) / math.MaxInt16
	}
	return pcm, nil
}

func (c *loopCodec) Close() error { return nil }

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
