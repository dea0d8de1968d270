package audio

import (
	"math"
	"math/rand"
	"testing"
)

func sineWindow(channels int, freq float64) []float32 {
	pcm := make([]float32, WindowFrames*channels)
	for i := 0; i < WindowFrames; i++ {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / SampleRate))
		for ch := 0; ch < channels; ch++ {
			pcm[i*channels+ch] = v
		}
	}
	return pcm
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewLoopbackCodec(2)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	defer codec.Close()

	var packets [][]byte
	enc := NewEncoder(codec, func(p []byte, counter uint32) {
		if counter != uint32(len(packets)) {
			t.Errorf("counter %d out of order", counter)
		}
		packets = append(packets, p)
	})

	// Three consecutive 1024-frame sine windows.
	for i := 0; i < 3; i++ {
		enc.Write(sineWindow(2, 440))
	}
	if len(packets) != 3 {
		t.Fatalf("emitted %d packets, want 3", len(packets))
	}

	for i, p := range packets {
		pcm, err := codec.Decode(p)
		if err != nil {
			t.Fatalf("decode packet %d: %v", i, err)
		}
		if len(pcm) != WindowFrames*2 {
			t.Errorf("packet %d decoded to %d samples, want %d frames stereo", i, len(pcm), WindowFrames)
		}
	}
}

func TestEncoderArbitraryBlockSizes(t *testing.T) {
	codec, _ := NewLoopbackCodec(2)
	defer codec.Close()

	count := 0
	enc := NewEncoder(codec, func([]byte, uint32) { count++ })

	// 3 windows worth of samples in ragged blocks.
	total := 3 * WindowFrames * 2
	window := sineWindow(2, 220)
	fed := 0
	sizes := []int{100, 999, 2048, 1, 500}
	for fed < total {
		n := sizes[fed%len(sizes)]
		if fed+n > total {
			n = total - fed
		}
		block := make([]float32, n)
		for i := range block {
			block[i] = window[(fed+i)%len(window)]
		}
		enc.Write(block)
		fed += n
	}

	if count != 3 {
		t.Errorf("ragged feeding emitted %d packets, want 3", count)
	}
	if enc.Packets() != 3 {
		t.Errorf("Packets() = %d, want 3", enc.Packets())
	}
}

func TestDecodeEmptyProducesNoOutput(t *testing.T) {
	codec, _ := NewLoopbackCodec(2)
	defer codec.Close()

	called := false
	dec := NewDecoder(codec, func([]float32) { called = true })
	dec.Submit(nil)
	dec.Submit([]byte{})
	if called {
		t.Error("empty packet produced output")
	}
}

func TestDecodeRandomBytesDoesNotPanic(t *testing.T) {
	codec, _ := NewLoopbackCodec(2)
	defer codec.Close()

	dec := NewDecoder(codec, func([]float32) {})
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		n := rng.Intn(8)
		junk := make([]byte, n)
		rng.Read(junk)
		dec.Submit(junk) // must not panic
	}
	dec.Submit([]byte{0xDE, 0xAD, 0xBE, 0xEF})
}

func TestShouldMute(t *testing.T) {
	bl := NewBlacklist([]string{"com.google.Chrome"})

	cases := []struct {
		bundle        string
		total, beamed int
		want          bool
	}{
		{"com.google.Chrome", 3, 1, false},
		{"com.google.Chrome", 1, 1, true},
		{"com.apple.Safari", 5, 1, true},
		{"com.google.Chrome", 0, 0, true},
		{"com.google.Chrome", 2, 2, true},
		{"com.google.Chrome", 5, 2, false},
	}
	for _, c := range cases {
		if got := bl.ShouldMute(c.bundle, c.total, c.beamed); got != c.want {
			t.Errorf("ShouldMute(%q, %d, %d) = %v, want %v", c.bundle, c.total, c.beamed, got, c.want)
		}
	}
}

func TestDeinterleave(t *testing.T) {
	pcm := []float32{1, -1, 2, -2, 3, -3}
	planes := Deinterleave(pcm, 2)
	if len(planes) != 2 {
		t.Fatalf("got %d planes", len(planes))
	}
	wantL := []float32{1, 2, 3}
	wantR := []float32{-1, -2, -3}
	for i := range wantL {
		if planes[0][i] != wantL[i] || planes[1][i] != wantR[i] {
			t.Fatalf("planes = %v / %v", planes[0], planes[1])
		}
	}
}

func TestInterleaveRoundTrip(t *testing.T) {
	pcm := []float32{0.5, -0.5, 0.25, -0.25}
	got := interleave(Deinterleave(pcm, 2))
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Fatalf("interleave round trip = %v", got)
		}
	}
}

func TestPlayerSchedulesInOrder(t *testing.T) {
	engine := &CountingEngine{}
	p := NewPlayer(engine, 2)
	for i := 0; i < 20; i++ {
		p.Schedule(sineWindow(2, 440))
	}
	p.Stop()
	if engine.Count() != 20 || p.Scheduled() != 20 {
		t.Errorf("scheduled %d/%d buffers, want 20", engine.Count(), p.Scheduled())
	}
}

func TestBitrateFor(t *testing.T) {
	if b, _ := BitrateFor(2, 128_000, 64_000); b != 128_000 {
		t.Errorf("stereo bitrate = %d", b)
	}
	if b, _ := BitrateFor(1, 128_000, 64_000); b != 64_000 {
		t.Errorf("mono bitrate = %d", b)
	}
	if _, err := BitrateFor(6, 128_000, 64_000); err == nil {
		t.Error("surround accepted")
	}
}
