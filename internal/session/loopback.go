package session

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/beamapp/beam/internal/audio"
	"github.com/beamapp/beam/internal/video"
)

// SolidSource produces flat frames of a fixed size; the loopback stand-in
// for window capture.
type SolidSource struct {
	Width, Height int
	shade         uint8
}

// Capture returns the next frame, cycling its shade so consecutive frames
// differ.
func (s *SolidSource) Capture() (*image.RGBA, error) {
	s.shade += 16
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = s.shade
		img.Pix[i+3] = 0xFF
	}
	return img, nil
}

// CountingSink counts displayed frames and discards them.
type CountingSink struct {
	count atomic.Uint64
}

// Display counts the frame.
func (s *CountingSink) Display(f video.DecodedFrame) error {
	s.count.Add(1)
	return nil
}

// Flush is a no-op.
func (s *CountingSink) Flush() {}

// Count returns how many frames were displayed.
func (s *CountingSink) Count() uint64 {
	return s.count.Load()
}

// StartToneCapture produces 10 ms blocks of a 440 Hz tone at the audio
// sample rate until ctx is cancelled; the loopback stand-in for app audio
// capture.
func StartToneCapture(ctx context.Context, channels int) <-chan []float32 {
	out := make(chan []float32, 16)
	go func() {
		defer close(out)
		gen := audio.NewToneGenerator(440, channels)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- gen.Block(audio.SampleRate / 100):
				default:
				}
			}
		}
	}()
	return out
}
