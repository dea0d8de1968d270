// Package video implements the beam video pipeline: window capture, the
// H.264 encode/decode wrappers around a hardware codec binding, and a
// pure-Go loopback codec for tests and headless runs.
package video

import (
	"fmt"
	"image"
	"log"
	"sync/atomic"
	"time"

	"github.com/beamapp/beam/internal/media"
)

// Frame is one raw captured frame with its presentation time, measured from
// session start.
type Frame struct {
	Image *image.RGBA
	PTS   time.Duration
}

// CodecOutput is one encoded unit emitted by an encode session.
type CodecOutput struct {
	Data []byte
	IDR  bool
	PTS  time.Duration
}

// EncoderConfig fixes the real-time compression parameters.
type EncoderConfig struct {
	Width               int
	Height              int
	FPS                 int
	Bitrate             int
	MaxKeyframeInterval int
}

// EncodeSession is the hardware H.264 compression binding. Encode must
// return promptly; outputs arrive on the session's callback goroutine.
type EncodeSession interface {
	// Encode submits one raw frame. When forceIDR is set the frame is
	// encoded as an IDR regardless of the keyframe cadence.
	Encode(f Frame, forceIDR bool) error
	// ParameterSets returns the session's current SPS and PPS.
	ParameterSets() (sps, pps []byte, ok bool)
	Close() error
}

// EncoderBinding creates a hardware encode session delivering outputs to out.
type EncoderBinding func(cfg EncoderConfig, out func(CodecOutput)) (EncodeSession, error)

// Encoder wraps an encode session with the protocol behavior: SPS and PPS
// are re-emitted ahead of every IDR with the IDR's timestamp, keyframe
// marking covers parameter sets and IDR slices, and ForceKeyframe latches
// onto exactly the next submitted frame.
type Encoder struct {
	sess  EncodeSession
	sink  func(media.NAL)
	force atomic.Bool
}

// NewEncoder creates the hardware session. A binding failure here is fatal
// to the session that owns the encoder.
func NewEncoder(binding EncoderBinding, cfg EncoderConfig, sink func(media.NAL)) (*Encoder, error) {
	e := &Encoder{sink: sink}
	sess, err := binding(cfg, e.handleOutput)
	if err != nil {
		return nil, fmt.Errorf("video: create encode session: %w", err)
	}
	e.sess = sess
	return e, nil
}

func (e *Encoder) handleOutput(out CodecOutput) {
	ts := media.To90kHz(out.PTS)
	if out.IDR {
		if sps, pps, ok := e.sess.ParameterSets(); ok {
			e.sink(media.NAL{Data: sps, Keyframe: true, Timestamp: ts})
			e.sink(media.NAL{Data: pps, Keyframe: true, Timestamp: ts})
		}
	}
	e.sink(media.NAL{Data: out.Data, Keyframe: out.IDR, Timestamp: ts})
}

// Submit encodes one captured frame. Per-frame errors are logged and the
// frame dropped; the pipeline keeps running.
func (e *Encoder) Submit(f Frame) {
	forceIDR := e.force.Swap(false)
	if err := e.sess.Encode(f, forceIDR); err != nil {
		log.Printf("[WARN] video: encode frame at %v failed: %v", f.PTS, err)
	}
}

// ForceKeyframe makes the next encoded frame an IDR.
func (e *Encoder) ForceKeyframe() {
	e.force.Store(true)
}

// Close tears down the hardware session, draining its callback.
func (e *Encoder) Close() error {
	return e.sess.Close()
}
