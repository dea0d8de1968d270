package video

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/beamapp/beam/internal/media"
)

// FrameDuration is the nominal duration attached to every decoded slice.
const FrameDuration = time.Second / 30

// ErrReferenceLost is returned by a decode session when a slice depends on a
// reference frame the decoder never received. The session layer answers it
// with a keyframe_request.
var ErrReferenceLost = errors.New("video: reference frame missing")

// DecodedFrame is one decompressed frame with its presentation time.
type DecodedFrame struct {
	Image *image.RGBA
	PTS   time.Duration
}

// DecodeSession is the hardware H.264 decompression binding, built for one
// SPS/PPS pair. Decode must return promptly; frames arrive on the session's
// completion callback goroutine. Close drains in-flight completions.
type DecodeSession interface {
	Decode(avcc []byte, pts, duration time.Duration) error
	Close() error
}

// DecoderBinding creates a decode session from parameter sets.
type DecoderBinding func(sps, pps []byte, out func(DecodedFrame)) (DecodeSession, error)

// Decoder consumes reassembled NAL units in arrival order. Parameter sets
// are cached; the decompression session is (re)built whenever the cached
// pair describes different dimensions than the active one. Slices are
// wrapped in AVCC framing and submitted with their presentation time.
type Decoder struct {
	binding   DecoderBinding
	out       func(DecodedFrame)
	onRefLoss func()

	sps, pps []byte
	active   media.SPSInfo
	sess     DecodeSession
}

// NewDecoder creates an idle decoder; the session appears once both
// parameter sets have been received. onRefLoss fires when a slice hits a
// missing reference.
func NewDecoder(binding DecoderBinding, out func(DecodedFrame), onRefLoss func()) *Decoder {
	return &Decoder{binding: binding, out: out, onRefLoss: onRefLoss}
}

// Submit feeds one NAL. Unrecognized NAL types are dropped; slices before
// any session exists are dropped.
func (d *Decoder) Submit(nal media.NAL) {
	switch media.NALType(nal.Data) {
	case media.NALTypeSPS:
		d.sps = append([]byte(nil), nal.Data...)
		d.maybeRebuild()
	case media.NALTypePPS:
		d.pps = append([]byte(nil), nal.Data...)
		d.maybeRebuild()
	case media.NALTypeIDR, media.NALTypeSlice:
		d.submitSlice(nal)
	default:
		// SEI, AUD, filler: dropped.
	}
}

func (d *Decoder) submitSlice(nal media.NAL) {
	if d.sess == nil {
		return
	}

	avcc := make([]byte, 4+len(nal.Data))
	binary.BigEndian.PutUint32(avcc, uint32(len(nal.Data)))
	copy(avcc[4:], nal.Data)

	err := d.sess.Decode(avcc, media.FromTicks(nal.Timestamp), FrameDuration)
	if err == nil {
		return
	}
	if errors.Is(err, ErrReferenceLost) {
		if d.onRefLoss != nil {
			d.onRefLoss()
		}
		return
	}
	log.Printf("[WARN] video: decode slice at ts %d failed: %v", nal.Timestamp, err)
}

// maybeRebuild swaps in a fresh session when both parameter sets are cached
// and they describe a different stream geometry than the active session.
func (d *Decoder) maybeRebuild() {
	if d.sps == nil || d.pps == nil {
		return
	}
	info, err := media.ParseSPS(d.sps)
	if err != nil {
		log.Printf("[WARN] video: unparseable SPS: %v", err)
		return
	}
	if d.sess != nil && info == d.active {
		return
	}

	if d.sess != nil {
		d.sess.Close()
		d.sess = nil
	}
	sess, err := d.binding(d.sps, d.pps, d.out)
	if err != nil {
		log.Printf("[WARN] video: rebuild decode session (%dx%d): %v", info.Width, info.Height, err)
		return
	}
	d.sess = sess
	d.active = info
	log.Printf("[DEBUG] video: decode session ready for %dx%d", info.Width, info.Height)
}

// Close drains and releases the active session.
func (d *Decoder) Close() error {
	if d.sess == nil {
		return nil
	}
	err := d.sess.Close()
	d.sess = nil
	if err != nil {
		return fmt.Errorf("video: close decode session: %w", err)
	}
	return nil
}
