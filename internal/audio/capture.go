package audio

import (
	"context"
	"encoding/binary"
	"log"
	"math"
	"sync"

	malgo "github.com/gen2brain/malgo"
)

// CaptureTap is the platform binding for per-process capture with local
// mute. Attach routes the process's audio into the capture stream and
// silences it locally; Detach restores normal routing.
type CaptureTap interface {
	Attach(pid int32) error
	Detach()
}

// NoTap is the portable CaptureTap: capture proceeds from the system mix and
// nothing is muted locally.
type NoTap struct{}

// Attach is a no-op.
func (NoTap) Attach(pid int32) error { return nil }

// Detach is a no-op.
func (NoTap) Detach() {}

// StartCapture opens a PCM capture stream: interleaved 32-bit float at
// SampleRate with the given channel count, delivered in whatever block sizes
// the device produces. The stream closes when ctx is cancelled.
//
// The portable backend is a miniaudio loopback device (system audio); where
// loopback is unsupported it falls back to the default capture device.
func StartCapture(ctx context.Context, channels int) (<-chan []float32, error) {
	out := make(chan []float32, 64)

	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[DEBUG] audio: malgo: %s", message)
	})
	if err != nil {
		close(out)
		return nil, err
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if len(pInput) == 0 {
				return
			}
			samples := bytesToFloat32(pInput)
			select {
			case out <- samples:
			default:
				// Encoder is behind; drop the block rather than stall the
				// device callback.
			}
		},
	}

	dev, err := initCaptureDevice(mCtx, malgo.Loopback, channels, callbacks)
	if err != nil {
		log.Printf("[DEBUG] audio: loopback capture unavailable (%v), using capture device", err)
		dev, err = initCaptureDevice(mCtx, malgo.Capture, channels, callbacks)
	}
	if err != nil {
		mCtx.Uninit()
		close(out)
		return nil, err
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		mCtx.Uninit()
		close(out)
		return nil, err
	}

	var closeOnce sync.Once
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = dev.Stop()
			dev.Uninit()
			mCtx.Uninit()
			close(out)
		})
	}()

	return out, nil
}

func initCaptureDevice(mCtx *malgo.AllocatedContext, devType malgo.DeviceType, channels int, callbacks malgo.DeviceCallbacks) (*malgo.Device, error) {
	cfg := malgo.DefaultDeviceConfig(devType)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(SampleRate)
	return malgo.InitDevice(mCtx.Context, cfg, callbacks)
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
