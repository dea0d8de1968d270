package video

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/beamapp/beam/internal/media"
)

// The loopback codec is a pure-Go stand-in for the hardware binding: slices
// carry the raw pixels, parameter sets are real minimal SPS/PPS NALs, and
// outputs are delivered asynchronously on a dedicated goroutine just like a
// hardware callback queue. It backs tests and the CLI's --loopback mode.

type loopEncodeSession struct {
	cfg EncoderConfig
	sps []byte
	pps []byte

	frames int
	jobs   chan CodecOutput
	wg     sync.WaitGroup
	closed bool
}

// LoopbackEncoder is an EncoderBinding producing loopback sessions.
func LoopbackEncoder(cfg EncoderConfig, out func(CodecOutput)) (EncodeSession, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("video: loopback encoder: bad dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.MaxKeyframeInterval <= 0 {
		cfg.MaxKeyframeInterval = 60
	}
	s := &loopEncodeSession{
		cfg:  cfg,
		sps:  media.BuildSPS(roundUp16(cfg.Width), roundUp16(cfg.Height)),
		pps:  media.BuildPPS(),
		jobs: make(chan CodecOutput, 16),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for o := range s.jobs {
			out(o)
		}
	}()
	return s, nil
}

func (s *loopEncodeSession) Encode(f Frame, forceIDR bool) error {
	if s.closed {
		return errors.New("video: encode on closed session")
	}
	idr := forceIDR || s.frames%s.cfg.MaxKeyframeInterval == 0
	s.frames++

	b := f.Image.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, 5+len(f.Image.Pix))
	if idr {
		data[0] = 0x65
	} else {
		data[0] = 0x41
	}
	binary.BigEndian.PutUint16(data[1:3], uint16(w))
	binary.BigEndian.PutUint16(data[3:5], uint16(h))
	copy(data[5:], f.Image.Pix)

	s.jobs <- CodecOutput{Data: data, IDR: idr, PTS: f.PTS}
	return nil
}

func (s *loopEncodeSession) ParameterSets() (sps, pps []byte, ok bool) {
	return s.sps, s.pps, true
}

func (s *loopEncodeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.jobs)
	s.wg.Wait()
	return nil
}

type loopDecodeSession struct {
	out func(DecodedFrame)

	seenIDR bool
	jobs    chan DecodedFrame
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// LoopbackDecoder is a DecoderBinding producing loopback sessions. A slice
// arriving before the session's first IDR reports ErrReferenceLost, which is
// what drives the keyframe_request recovery path in loopback runs.
func LoopbackDecoder(sps, pps []byte, out func(DecodedFrame)) (DecodeSession, error) {
	if _, err := media.ParseSPS(sps); err != nil {
		return nil, fmt.Errorf("video: loopback decoder: %w", err)
	}
	if len(pps) == 0 || media.NALType(pps) != media.NALTypePPS {
		return nil, errors.New("video: loopback decoder: bad PPS")
	}
	s := &loopDecodeSession{
		out:  out,
		jobs: make(chan DecodedFrame, 16),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for f := range s.jobs {
			out(f)
		}
	}()
	return s, nil
}

func (s *loopDecodeSession) Decode(avcc []byte, pts, duration time.Duration) error {
	_ = duration

	if len(avcc) < 4 {
		return errors.New("video: short AVCC unit")
	}
	n := binary.BigEndian.Uint32(avcc)
	nal := avcc[4:]
	if uint32(len(nal)) != n {
		return fmt.Errorf("video: AVCC length %d does not match payload %d", n, len(nal))
	}
	if len(nal) < 5 {
		return errors.New("video: short slice")
	}

	switch media.NALType(nal) {
	case media.NALTypeIDR:
		s.seenIDR = true
	case media.NALTypeSlice:
		if !s.seenIDR {
			return ErrReferenceLost
		}
	default:
		return fmt.Errorf("video: unexpected NAL type %d in slice path", media.NALType(nal))
	}

	w := int(binary.BigEndian.Uint16(nal[1:3]))
	h := int(binary.BigEndian.Uint16(nal[3:5]))
	pix := nal[5:]
	if len(pix) != w*h*4 {
		return fmt.Errorf("video: slice pixel payload %d for %dx%d", len(pix), w, h)
	}

	img := &image.RGBA{
		Pix:    append([]byte(nil), pix...),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("video: decode on closed session")
	}
	s.jobs <- DecodedFrame{Image: img, PTS: pts}
	return nil
}

func (s *loopDecodeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func roundUp16(v int) int {
	return (v + 15) &^ 15
}
