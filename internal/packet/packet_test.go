package packet

import (
	"bytes"
	"testing"
)

func TestEncodeHeaderLayout(t *testing.T) {
	h := Header{
		Sequence:      0xABCD,
		Timestamp:     0x12345678,
		Flags:         0x07,
		FragmentIndex: 0x0102,
		FragmentCount: 0x0304,
	}
	got := EncodeHeader(h)
	want := []byte{0xAB, 0xCD, 0x12, 0x34, 0x56, 0x78, 0x07, 0x00, 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("encoded header = % X, want % X", got, want)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{},
		{Sequence: 1, Timestamp: 90000, Flags: FlagStart | FlagEnd, FragmentIndex: 0, FragmentCount: 1},
		{Sequence: 0xFFFF, Timestamp: 0xFFFFFFFF, Flags: 0xFF, FragmentIndex: 0xFFFF, FragmentCount: 0xFFFF},
		{Sequence: 42, Timestamp: 1, Flags: FlagKeyframe, FragmentIndex: 7, FragmentCount: 9},
	}
	for _, h := range cases {
		got, err := DecodeHeader(EncodeHeader(h))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != h {
			t.Errorf("round trip: got %+v, want %+v", got, h)
		}
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		if _, err := DecodeHeader(make([]byte, n)); err != ErrTruncated {
			t.Errorf("len %d: err = %v, want ErrTruncated", n, err)
		}
	}
}

func TestDecodeIgnoresReserved(t *testing.T) {
	b := EncodeHeader(Header{Sequence: 5, FragmentCount: 1})
	b[7] = 0xFF
	h, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Sequence != 5 || h.FragmentCount != 1 {
		t.Errorf("reserved byte leaked into decode: %+v", h)
	}
}

func TestFragmentCount(t *testing.T) {
	cases := []struct {
		size, want int
	}{
		{0, 1},
		{1, 1},
		{MaxPayload, 1},
		{MaxPayload + 1, 2},
		{3000, 3},
		{10 * MaxPayload, 10},
	}
	for _, c := range cases {
		if got := FragmentCount(c.size); got != c.want {
			t.Errorf("FragmentCount(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestFlagAccessors(t *testing.T) {
	h := Header{Flags: FlagKeyframe | FlagStart | FlagEnd}
	if !h.Keyframe() || !h.Start() || !h.End() {
		t.Errorf("flag accessors failed for 0x%02X", h.Flags)
	}
	h = Header{Flags: FlagKeyframe}
	if h.Start() || h.End() {
		t.Errorf("start/end set for keyframe-only flags")
	}
}
