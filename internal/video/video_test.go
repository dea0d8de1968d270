package video

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/beamapp/beam/internal/media"
)

func testFrame(w, h int, pts time.Duration) Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	return Frame{Image: img, PTS: pts}
}

// collector gathers NALs emitted by an encoder.
type collector struct {
	mu   sync.Mutex
	nals []media.NAL
}

func (c *collector) sink(n media.NAL) {
	c.mu.Lock()
	c.nals = append(c.nals, n)
	c.mu.Unlock()
}

func (c *collector) snapshot() []media.NAL {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]media.NAL(nil), c.nals...)
}

func newTestEncoder(t *testing.T, c *collector, kfInterval int) *Encoder {
	t.Helper()
	enc, err := NewEncoder(LoopbackEncoder, EncoderConfig{
		Width: 64, Height: 48, FPS: 30, Bitrate: 8_000_000, MaxKeyframeInterval: kfInterval,
	}, c.sink)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	return enc
}

func TestEncoderEmitsParameterSetsBeforeIDR(t *testing.T) {
	c := &collector{}
	enc := newTestEncoder(t, c, 60)

	enc.Submit(testFrame(64, 48, 0))
	enc.Close()

	nals := c.snapshot()
	if len(nals) != 3 {
		t.Fatalf("first frame emitted %d NALs, want SPS+PPS+IDR", len(nals))
	}
	types := []int{media.NALType(nals[0].Data), media.NALType(nals[1].Data), media.NALType(nals[2].Data)}
	if types[0] != media.NALTypeSPS || types[1] != media.NALTypePPS || types[2] != media.NALTypeIDR {
		t.Errorf("NAL order = %v, want [SPS PPS IDR]", types)
	}
	for i, n := range nals {
		if !n.Keyframe {
			t.Errorf("NAL %d of keyframe delivery not flagged keyframe", i)
		}
		if n.Timestamp != nals[0].Timestamp {
			t.Errorf("parameter sets and IDR timestamps differ")
		}
	}
}

func TestEncoderTimestampIs90kHz(t *testing.T) {
	c := &collector{}
	enc := newTestEncoder(t, c, 60)

	enc.Submit(testFrame(64, 48, time.Second))
	enc.Close()

	nals := c.snapshot()
	if len(nals) == 0 {
		t.Fatal("no NALs emitted")
	}
	if got := nals[len(nals)-1].Timestamp; got != 90000 {
		t.Errorf("timestamp for pts=1s is %d, want 90000", got)
	}
}

func TestForceKeyframeLatchesOntoNextFrame(t *testing.T) {
	c := &collector{}
	enc := newTestEncoder(t, c, 1000)

	enc.Submit(testFrame(64, 48, 0)) // IDR (first frame)
	enc.Submit(testFrame(64, 48, time.Second/30))
	enc.ForceKeyframe()
	enc.Submit(testFrame(64, 48, 2*time.Second/30)) // forced IDR
	enc.Submit(testFrame(64, 48, 3*time.Second/30))
	enc.Close()

	var kinds []bool
	for _, n := range c.snapshot() {
		typ := media.NALType(n.Data)
		if typ == media.NALTypeIDR || typ == media.NALTypeSlice {
			kinds = append(kinds, typ == media.NALTypeIDR)
		}
	}
	want := []bool{true, false, true, false}
	if len(kinds) != len(want) {
		t.Fatalf("got %d slices, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("slice %d IDR=%v, want %v (force latch must hit exactly the next frame)", i, kinds[i], want[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := &collector{}
	enc := newTestEncoder(t, c, 60)

	const frames = 5
	for i := 0; i < frames; i++ {
		enc.Submit(testFrame(64, 48, time.Duration(i)*time.Second/30))
	}
	enc.Close()

	var decoded []DecodedFrame
	var mu sync.Mutex
	refLoss := 0
	dec := NewDecoder(LoopbackDecoder, func(f DecodedFrame) {
		mu.Lock()
		decoded = append(decoded, f)
		mu.Unlock()
	}, func() { refLoss++ })

	for _, n := range c.snapshot() {
		dec.Submit(n)
	}
	dec.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(decoded) != frames {
		t.Fatalf("decoded %d frames, want %d", len(decoded), frames)
	}
	if refLoss != 0 {
		t.Errorf("unexpected reference loss on a clean stream")
	}
	if got := decoded[0].Image.Bounds(); got.Dx() != 64 || got.Dy() != 48 {
		t.Errorf("decoded bounds = %v", got)
	}
	if decoded[1].PTS != time.Second/30 {
		t.Errorf("pts for frame 1 = %v, want %v", decoded[1].PTS, time.Second/30)
	}
}

func TestDecoderDropsSlicesWithoutContext(t *testing.T) {
	refLoss := 0
	dec := NewDecoder(LoopbackDecoder, func(DecodedFrame) {
		t.Error("frame decoded without a session")
	}, func() { refLoss++ })

	// Slice with no SPS/PPS ever seen: silently dropped, no refloss.
	dec.Submit(media.NAL{Data: []byte{0x41, 0, 64, 0, 48}, Timestamp: 0})
	if refLoss != 0 {
		t.Errorf("slice without context triggered keyframe request")
	}
	dec.Close()
}

func TestDecoderRequestsKeyframeOnReferenceLoss(t *testing.T) {
	c := &collector{}
	enc := newTestEncoder(t, c, 60)
	enc.Submit(testFrame(64, 48, 0))                // SPS PPS IDR
	enc.Submit(testFrame(64, 48, time.Second/30))   // slice
	enc.Submit(testFrame(64, 48, 2*time.Second/30)) // slice
	enc.Close()

	nals := c.snapshot()

	refLoss := 0
	dec := NewDecoder(LoopbackDecoder, func(DecodedFrame) {}, func() { refLoss++ })

	// Deliver SPS+PPS but lose the IDR; the following slice must trigger
	// exactly one keyframe request per lost-reference slice.
	for _, n := range nals {
		if media.NALType(n.Data) == media.NALTypeIDR {
			continue
		}
		dec.Submit(n)
	}
	dec.Close()

	if refLoss != 2 {
		t.Errorf("reference loss fired %d times, want 2", refLoss)
	}
}

func TestDecoderRebuildsOnNewDimensions(t *testing.T) {
	var mu sync.Mutex
	var dims []image.Rectangle
	dec := NewDecoder(LoopbackDecoder, func(f DecodedFrame) {
		mu.Lock()
		dims = append(dims, f.Image.Bounds())
		mu.Unlock()
	}, nil)

	encode := func(w, h int) []media.NAL {
		c := &collector{}
		enc, err := NewEncoder(LoopbackEncoder, EncoderConfig{Width: w, Height: h, MaxKeyframeInterval: 60}, c.sink)
		if err != nil {
			t.Fatalf("encoder %dx%d: %v", w, h, err)
		}
		enc.Submit(testFrame(w, h, 0))
		enc.Close()
		return c.snapshot()
	}

	for _, n := range encode(64, 48) {
		dec.Submit(n)
	}
	for _, n := range encode(128, 96) {
		dec.Submit(n)
	}
	dec.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(dims) != 2 {
		t.Fatalf("decoded %d frames across rebuild, want 2", len(dims))
	}
	if dims[1].Dx() != 128 || dims[1].Dy() != 96 {
		t.Errorf("post-rebuild frame bounds = %v", dims[1])
	}
}

func TestStopImmediatelyAfterStart(t *testing.T) {
	c := &collector{}
	enc := newTestEncoder(t, c, 60)
	if err := enc.Close(); err != nil {
		t.Errorf("close right after create: %v", err)
	}

	dec := NewDecoder(LoopbackDecoder, func(DecodedFrame) {}, nil)
	if err := dec.Close(); err != nil {
		t.Errorf("decoder close right after create: %v", err)
	}
}
