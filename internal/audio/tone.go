package audio

import "math"

// ToneGenerator produces a continuous sine tone as interleaved PCM, used by
// loopback capture and tests.
type ToneGenerator struct {
	freq     float64
	channels int
	phase    float64
}

// NewToneGenerator creates a generator for the given frequency in Hz.
func NewToneGenerator(freq float64, channels int) *ToneGenerator {
	return &ToneGenerator{freq: freq, channels: channels}
}

// Block returns the next frames of the tone, interleaved.
func (g *ToneGenerator) Block(frames int) []float32 {
	out := make([]float32, frames*g.channels)
	step := 2 * math.Pi * g.freq / SampleRate
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(g.phase))
		g.phase += step
		for ch := 0; ch < g.channels; ch++ {
			out[i*g.channels+ch] = v
		}
	}
	return out
}
