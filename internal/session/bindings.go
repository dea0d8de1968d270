package session

import (
	"context"

	"github.com/beamapp/beam/internal/audio"
	"github.com/beamapp/beam/internal/input"
	"github.com/beamapp/beam/internal/video"
	"github.com/beamapp/beam/internal/window"
)

// CursorMonitor is the OS binding for the sender's 3 Hz cursor poll: some
// target apps (games) hide the cursor globally when focused, and the hiding
// API has no observer.
type CursorMonitor interface {
	Visible() bool
	// Unhide reverses a global cursor-hide so the sender's own cursor stays
	// visible while the hidden window thinks it owns the screen.
	Unhide()
}

// Bindings collects the platform seams a session is wired with. Media codec
// bindings are mandatory; the OS-surface bindings (display, poster,
// accessibility, cursor) may be nil, in which case the session runs with
// the corresponding feature degraded: unhidden window, no input injection,
// no cursor-capture signaling.
type Bindings struct {
	// Video
	EncoderBinding   video.EncoderBinding
	DecoderBinding   video.DecoderBinding
	NewCaptureSource func(win window.Handle, fps int) (video.Source, error)

	// Audio
	NewAudioCodec     func(channels int) (audio.Codec, error)
	StartAudioCapture func(ctx context.Context, channels int) (<-chan []float32, error)
	NewPlaybackEngine func(channels int) (audio.Engine, error)
	AudioTap          audio.CaptureTap

	// OS surfaces
	DisplayAPI    window.DisplayAPI
	WindowFinder  window.Finder
	Poster        input.Poster
	Accessibility input.Accessibility
	Cursor        CursorMonitor
	// WindowCount reports how many windows a bundle currently has open,
	// for the mute-blacklist rule. Nil means "only the beamed one".
	WindowCount func(bundleID string) int

	// Receiver display
	Sink FrameSink
	// OnCursorCapture lets the shell hide the local cursor and switch to
	// raw-delta mouse handling when capture mode toggles.
	OnCursorCapture func(captured bool)
}

// Loopback returns bindings that run the full pipeline without any OS
// surface: the pure-Go codecs, a solid-color capture source, a tone audio
// source, and a counting frame sink. Used by tests and the CLI's --loopback
// mode.
func Loopback(width, height int) Bindings {
	return Bindings{
		EncoderBinding: video.LoopbackEncoder,
		DecoderBinding: video.LoopbackDecoder,
		NewCaptureSource: func(win window.Handle, fps int) (video.Source, error) {
			return &SolidSource{Width: width, Height: height}, nil
		},
		NewAudioCodec: audio.NewLoopbackCodec,
		StartAudioCapture: func(ctx context.Context, channels int) (<-chan []float32, error) {
			return StartToneCapture(ctx, channels), nil
		},
		NewPlaybackEngine: func(channels int) (audio.Engine, error) {
			return &audio.CountingEngine{}, nil
		},
		Sink: &CountingSink{},
	}
}
