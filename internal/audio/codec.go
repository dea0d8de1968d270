// Package audio implements the beam audio pipeline: PCM capture and
// playback devices, the AAC encode/decode wrappers around a codec binding,
// and the local-mute policy.
package audio

import (
	"fmt"
	"log"
)

const (
	// SampleRate is the capture and playback rate in Hz
	SampleRate = 48000
	// WindowFrames is the AAC encoder window: packets are emitted per 1024
	// input frames
	WindowFrames = 1024
)

// Codec is the AAC-LC encode/decode binding. EncodeWindow is handed exactly
// WindowFrames frames of interleaved PCM; Decode expands one packet back to
// interleaved PCM. Implementations must not panic on malformed input.
type Codec interface {
	EncodeWindow(pcm []float32) ([]byte, error)
	Decode(packet []byte) ([]float32, error)
	Channels() int
	Close() error
}

// Encoder accumulates arbitrary-sized PCM blocks into encoder windows and
// emits one packet per completed window. The packet counter is the value
// carried in the UDP timestamp field on the audio port.
type Encoder struct {
	codec Codec
	sink  func(packet []byte, counter uint32)

	window  int // samples per window (frames × channels)
	buf     []float32
	counter uint32
}

// NewEncoder wraps a codec binding. sink receives each completed packet with
// its monotonic counter.
func NewEncoder(codec Codec, sink func(packet []byte, counter uint32)) *Encoder {
	return &Encoder{
		codec:  codec,
		sink:   sink,
		window: WindowFrames * codec.Channels(),
	}
}

// Write folds one captured PCM block in, emitting as many packets as the
// accumulated samples complete. Encode errors drop the window and keep the
// stream running.
func (e *Encoder) Write(pcm []float32) {
	e.buf = append(e.buf, pcm...)
	for len(e.buf) >= e.window {
		chunk := e.buf[:e.window]
		e.buf = e.buf[e.window:]

		packet, err := e.codec.EncodeWindow(chunk)
		if err != nil {
			log.Printf("[WARN] audio: encode window %d failed: %v", e.counter, err)
			continue
		}
		e.sink(packet, e.counter)
		e.counter++
	}
}

// Packets returns how many packets have been emitted so far.
func (e *Encoder) Packets() uint32 {
	return e.counter
}

// Close releases the codec binding. Call only after capture has stopped.
func (e *Encoder) Close() error {
	return e.codec.Close()
}

// Decoder feeds received packets through the codec binding. An empty packet
// yields no output; decode errors are logged and dropped.
type Decoder struct {
	codec Codec
	out   func(pcm []float32)
}

// NewDecoder wraps a codec binding for the receive side.
func NewDecoder(codec Codec, out func(pcm []float32)) *Decoder {
	return &Decoder{codec: codec, out: out}
}

// Submit decodes one packet payload (header already stripped by transport).
func (d *Decoder) Submit(packet []byte) {
	if len(packet) == 0 {
		return
	}
	pcm, err := d.codec.Decode(packet)
	if err != nil {
		log.Printf("[WARN] audio: decode packet failed: %v", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	d.out(pcm)
}

// Close releases the codec binding. Call only after the receive pump has
// drained.
func (d *Decoder) Close() error {
	return d.codec.Close()
}

// Deinterleave splits interleaved PCM into per-channel planes, the layout
// the playback engine schedules.
func Deinterleave(pcm []float32, channels int) [][]float32 {
	if channels <= 0 {
		return nil
	}
	frames := len(pcm) / channels
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			planes[ch][i] = pcm[i*channels+ch]
		}
	}
	return planes
}

// BitrateFor returns the configured AAC bitrate for a channel count.
func BitrateFor(channels, stereoBitrate, monoBitrate int) (int, error) {
	switch channels {
	case 1:
		return monoBitrate, nil
	case 2:
		return stereoBitrate, nil
	default:
		return 0, fmt.Errorf("audio: unsupported channel count %d", channels)
	}
}
