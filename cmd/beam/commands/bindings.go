package commands

import (
	"context"
	"fmt"
	"image"

	"github.com/beamapp/beam/internal/audio"
	"github.com/beamapp/beam/internal/session"
	"github.com/beamapp/beam/internal/video"
	"github.com/beamapp/beam/internal/window"
)

// portableBindings wires the session with what this build can do without
// the platform layer: screenshot-based region capture, malgo audio devices,
// and the loopback codecs. Hardware codec bindings, the virtual display,
// and input posting come from the platform package of a native build.
func portableBindings(headless bool) session.Bindings {
	bind := session.Bindings{
		EncoderBinding: video.LoopbackEncoder,
		DecoderBinding: video.LoopbackDecoder,
		NewCaptureSource: func(win window.Handle, fps int) (video.Source, error) {
			r := win.Frame
			if r.W <= 0 || r.H <= 0 {
				return nil, fmt.Errorf("window has no frame")
			}
			return video.RegionSource{
				Rect: image.Rect(int(r.X), int(r.Y), int(r.X+r.W), int(r.Y+r.H)),
			}, nil
		},
		NewAudioCodec:     audio.NewLoopbackCodec,
		StartAudioCapture: audio.StartCapture,
		NewPlaybackEngine: func(channels int) (audio.Engine, error) {
			if headless {
				return &audio.CountingEngine{}, nil
			}
			return audio.NewMalgoEngine(channels)
		},
		Sink: &session.CountingSink{},
	}
	if headless {
		bind.StartAudioCapture = func(ctx context.Context, channels int) (<-chan []float32, error) {
			return session.StartToneCapture(ctx, channels), nil
		}
	}
	return bind
}
