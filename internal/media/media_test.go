package media

import (
	"testing"
	"time"
)

func TestTo90kHz(t *testing.T) {
	cases := []struct {
		pts  time.Duration
		want uint32
	}{
		{0, 0},
		{time.Second, 90000},
		{time.Second / 30, 3000},
		{time.Millisecond, 90},
	}
	for _, c := range cases {
		if got := To90kHz(c.pts); got != c.want {
			t.Errorf("To90kHz(%v) = %d, want %d", c.pts, got, c.want)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	for _, pts := range []time.Duration{0, time.Second / 30, time.Second, 90 * time.Second} {
		if got := FromTicks(To90kHz(pts)); got != pts {
			t.Errorf("FromTicks(To90kHz(%v)) = %v", pts, got)
		}
	}
}

func TestNALType(t *testing.T) {
	cases := []struct {
		first byte
		want  int
	}{
		{0x67, NALTypeSPS},
		{0x68, NALTypePPS},
		{0x65, NALTypeIDR},
		{0x41, NALTypeSlice},
		{0x06, 6},
	}
	for _, c := range cases {
		if got := NALType([]byte{c.first, 0x00}); got != c.want {
			t.Errorf("NALType(0x%02X) = %d, want %d", c.first, got, c.want)
		}
	}
	if NALType(nil) != -1 {
		t.Error("NALType(nil) != -1")
	}
}

func TestKeyframeType(t *testing.T) {
	for _, typ := range []int{NALTypeSPS, NALTypePPS, NALTypeIDR} {
		if !KeyframeType(typ) {
			t.Errorf("KeyframeType(%d) = false", typ)
		}
	}
	if KeyframeType(NALTypeSlice) {
		t.Error("non-IDR slice reported as keyframe type")
	}
}

func TestBuildParseSPS(t *testing.T) {
	cases := []struct{ w, h int }{
		{640, 480},
		{1280, 720},
		{1920, 1088},
		{64, 48},
	}
	for _, c := range cases {
		sps := BuildSPS(c.w, c.h)
		if NALType(sps) != NALTypeSPS {
			t.Fatalf("BuildSPS(%d,%d) type = %d", c.w, c.h, NALType(sps))
		}
		info, err := ParseSPS(sps)
		if err != nil {
			t.Fatalf("ParseSPS(%d,%d): %v", c.w, c.h, err)
		}
		if info.Width != c.w || info.Height != c.h {
			t.Errorf("ParseSPS(%d,%d) = %dx%d", c.w, c.h, info.Width, info.Height)
		}
	}
}

func TestParseSPSRejectsGarbage(t *testing.T) {
	if _, err := ParseSPS(nil); err == nil {
		t.Error("nil SPS accepted")
	}
	if _, err := ParseSPS([]byte{0x65, 0x00, 0x00, 0x00}); err == nil {
		t.Error("IDR NAL accepted as SPS")
	}
	if _, err := ParseSPS([]byte{0x67, 66}); err == nil {
		t.Error("short SPS accepted")
	}
}

func TestUnescapeRBSP(t *testing.T) {
	in := []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x00}
	want := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	got := unescapeRBSP(in)
	if len(got) != len(want) {
		t.Fatalf("unescape len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unescape = % X, want % X", got, want)
		}
	}
}
