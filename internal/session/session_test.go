package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/beamapp/beam/internal/config"
	"github.com/beamapp/beam/internal/control"
	"github.com/beamapp/beam/internal/input"
	"github.com/beamapp/beam/internal/registry"
	"github.com/beamapp/beam/internal/window"
)

func testOptions() config.Options {
	return config.Default()
}

// startReceiver listens on loopback and adopts the first connection into a
// fresh receiver session.
func startReceiver(t *testing.T, bind Bindings) (*Session, registry.Peer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	recv := New(RoleReceiver, testOptions(), bind, "receiver")
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if err := recv.Adopt(conn); err != nil {
			t.Errorf("adopt: %v", err)
		}
	}()

	peer := registry.Peer{
		ID:   "peer-receiver",
		Name: "receiver",
		Host: "127.0.0.1",
		Port: ln.Addr().(*net.TCPAddr).Port,
	}
	return recv, peer
}

func testOffer() Offer {
	return Offer{
		Target: window.Handle{
			PID:      1234,
			WindowID: 7,
			Frame:    window.Rect{X: 100, Y: 100, W: 640, H: 480},
		},
		Title:    "Test Window",
		BundleID: "com.example.test",
		HasAudio: true,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHappyPathBeam(t *testing.T) {
	recv, peer := startReceiver(t, Loopback(640, 480))

	sender := New(RoleSender, testOptions(), Loopback(640, 480), "sender")
	if err := sender.StartBeam(peer, testOffer()); err != nil {
		t.Fatalf("StartBeam: %v", err)
	}
	defer sender.Stop()
	defer recv.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return sender.State() == StateActive && recv.State() == StateActive
	}, "both sides active")

	// After about a second of pipeline time, at least 20 frames must have
	// reached the renderer and at least 20 audio packets must have been
	// scheduled for playback.
	waitFor(t, 5*time.Second, func() bool {
		st := recv.Stats()
		return st.FramesRendered >= 20 && st.AudioBuffers >= 20
	}, "media flow (>=20 frames rendered, >=20 audio buffers)")

	if st := sender.Stats(); st.FramesCaptured < 20 || st.AudioPackets < 20 {
		t.Errorf("sender stats too low: %+v", st)
	}
}

func TestStopIsIdempotentAndSymmetric(t *testing.T) {
	recv, peer := startReceiver(t, Loopback(64, 48))

	sender := New(RoleSender, testOptions(), Loopback(64, 48), "sender")
	if err := sender.StartBeam(peer, testOffer()); err != nil {
		t.Fatalf("StartBeam: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return sender.State() == StateActive
	}, "sender active")

	sender.Stop()
	sender.Stop()
	if sender.State() != StateStopped {
		t.Errorf("sender state after stop = %v", sender.State())
	}

	// The receiver sees beam_end (or the disconnect) and tears down too.
	waitFor(t, 5*time.Second, func() bool {
		return recv.State() == StateStopped
	}, "receiver stopped after peer beam_end")
}

func TestStopImmediatelyAfterStart(t *testing.T) {
	_, peer := startReceiver(t, Loopback(64, 48))

	sender := New(RoleSender, testOptions(), Loopback(64, 48), "sender")
	if err := sender.StartBeam(peer, testOffer()); err != nil {
		t.Fatalf("StartBeam: %v", err)
	}
	sender.Stop() // no grace period: must not hang, panic, or leak
	if sender.State() != StateStopped {
		t.Errorf("state = %v, want stopped", sender.State())
	}
}

func TestStartBeamAndAdoptRejectWrongRole(t *testing.T) {
	s := New(RoleReceiver, testOptions(), Loopback(64, 48), "x")
	if err := s.StartBeam(registry.Peer{}, testOffer()); err == nil {
		t.Error("StartBeam accepted on a receiver session")
	}

	s2 := New(RoleSender, testOptions(), Loopback(64, 48), "x")
	if err := s2.Adopt(nil); err == nil {
		t.Error("Adopt accepted on a sender session")
	}
}

func TestStartBeamToDeadPeerFails(t *testing.T) {
	s := New(RoleSender, testOptions(), Loopback(64, 48), "x")
	err := s.StartBeam(registry.Peer{Name: "ghost", Host: "127.0.0.1", Port: 1}, testOffer())
	if err == nil {
		t.Fatal("beam to closed port succeeded")
	}
	if s.State() != StateStopped {
		t.Errorf("state after failed connect = %v", s.State())
	}
	if s.Err() == "" {
		t.Error("one-shot error string empty after failure")
	}
}

// --- input forwarding end to end ---

type recordingPoster struct {
	mu    sync.Mutex
	mouse []string
	keys  []int
}

func (p *recordingPoster) PostMouse(pid int32, typ string, x, y float64, button string, dx, dy float64) error {
	p.mu.Lock()
	p.mouse = append(p.mouse, typ)
	p.mu.Unlock()
	return nil
}

func (p *recordingPoster) PostKey(pid int32, keyCode int, down bool, mods input.ModifierFlags, text string) error {
	p.mu.Lock()
	p.keys = append(p.keys, keyCode)
	p.mu.Unlock()
	return nil
}

func (p *recordingPoster) CursorPosition() (float64, float64) { return 0, 0 }
func (p *recordingPoster) WarpCursor(x, y float64)            {}
func (p *recordingPoster) ActivateApp(pid int32) error        { return nil }

type noTreeAX struct{}

func (noTreeAX) PressAt(pid int32, x, y float64) error          { return nil }
func (noTreeAX) WindowElement(pid int32) (input.Element, bool)  { return nil, false }

func TestInputEventsReachSenderInOrder(t *testing.T) {
	recv, peer := startReceiver(t, Loopback(64, 48))

	poster := &recordingPoster{}
	bind := Loopback(64, 48)
	bind.Poster = poster
	bind.Accessibility = noTreeAX{}

	sender := New(RoleSender, testOptions(), bind, "sender")
	if err := sender.StartBeam(peer, testOffer()); err != nil {
		t.Fatalf("StartBeam: %v", err)
	}
	defer sender.Stop()
	defer recv.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return recv.State() == StateActive && sender.State() == StateActive
	}, "active")

	cap := recv.Capture()
	if cap == nil {
		t.Fatal("receiver has no input capture surface")
	}
	// View is 640x480 in view coordinates (origin bottom-left).
	cap.SetSurfaceSize(640, 480)
	cap.PointerEvent(control.EventMouseMove, 320, 240, "", 1, 1)
	cap.KeyDown(4, input.ModifierFlags{}, "h")
	cap.KeyUp(4, input.ModifierFlags{})

	waitFor(t, 5*time.Second, func() bool {
		poster.mu.Lock()
		defer poster.mu.Unlock()
		return len(poster.mouse) == 1 && len(poster.keys) == 2
	}, "input delivery on the sender")

	poster.mu.Lock()
	defer poster.mu.Unlock()
	if poster.mouse[0] != control.EventMouseMove {
		t.Errorf("mouse event = %q", poster.mouse[0])
	}
	if poster.keys[0] != 4 || poster.keys[1] != 4 {
		t.Errorf("key events = %v", poster.keys)
	}
}

// --- cursor state propagation ---

type fakeCursor struct {
	mu      sync.Mutex
	visible bool
	unhides int
}

func (c *fakeCursor) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *fakeCursor) Unhide() {
	c.mu.Lock()
	c.unhides++
	c.mu.Unlock()
}

func (c *fakeCursor) set(v bool) {
	c.mu.Lock()
	c.visible = v
	c.mu.Unlock()
}

func TestCursorStateEntersCaptureOnReceiver(t *testing.T) {
	recv, peer := startReceiver(t, Loopback(64, 48))

	cursor := &fakeCursor{visible: true}
	bind := Loopback(64, 48)
	bind.Cursor = cursor

	sender := New(RoleSender, testOptions(), bind, "sender")
	if err := sender.StartBeam(peer, testOffer()); err != nil {
		t.Fatalf("StartBeam: %v", err)
	}
	defer sender.Stop()
	defer recv.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return recv.State() == StateActive
	}, "active")

	// The target app hides the cursor globally; the sender's poll must
	// notify the receiver (entering capture) and reverse the hide locally.
	cursor.set(false)

	waitFor(t, 5*time.Second, func() bool {
		cap := recv.Capture()
		return cap != nil && cap.Captured()
	}, "receiver cursor capture")

	waitFor(t, 5*time.Second, func() bool {
		cursor.mu.Lock()
		defer cursor.mu.Unlock()
		return cursor.unhides > 0
	}, "sender-side unhide reversal")

	cursor.set(true)
	waitFor(t, 5*time.Second, func() bool {
		return !recv.Capture().Captured()
	}, "capture release on visible=true")
}
