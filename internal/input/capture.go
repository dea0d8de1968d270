// Package input normalizes receiver-side pointer and keyboard events for
// the wire and injects them into the hidden target window on the sender.
package input

import (
	"github.com/beamapp/beam/internal/control"
)

// OS virtual key codes the core needs by name.
const (
	KeyEscape   = 53
	KeyCommand  = 55
	KeyShift    = 56
	KeyOption   = 58
	KeyControl  = 59
	KeyPageUp   = 116
	KeyPageDown = 121
)

// Slack beyond the unit square tolerated before a pointer event is dropped
// as an off-surface drag.
const surfaceSlack = 0.1

// Scroll normalization factors: high-precision deltas are divided by 500,
// line-based deltas multiplied by 0.03.
const (
	preciseScrollDivisor = 500.0
	lineScrollFactor     = 0.03
)

// ModifierFlags is the state of the four modifier keys.
type ModifierFlags struct {
	Shift   bool
	Control bool
	Option  bool
	Command bool
}

// Capture observes local events on the receiver's display surface,
// normalizes them, and forwards them to the control channel. It also owns
// the cursor-capture state driven by the sender's cursor_state messages.
type Capture struct {
	width, height float64

	send            func(control.Event)
	onCaptureChange func(captured bool)

	captured bool
	mods     ModifierFlags
}

// NewCapture wires a capture surface of the given size. send receives every
// normalized event; onCaptureChange fires when cursor-capture is entered or
// left so the shell can hide the local cursor and disassociate the mouse.
func NewCapture(width, height float64, send func(control.Event), onCaptureChange func(bool)) *Capture {
	return &Capture{
		width:           width,
		height:          height,
		send:            send,
		onCaptureChange: onCaptureChange,
	}
}

// SetSurfaceSize tracks view resizes.
func (c *Capture) SetSurfaceSize(width, height float64) {
	c.width, c.height = width, height
}

// Captured reports whether cursor-capture mode is active.
func (c *Capture) Captured() bool {
	return c.captured
}

// SetRemoteCursorVisible applies a cursor_state message: an invisible remote
// cursor enters capture mode, a visible one releases it.
func (c *Capture) SetRemoteCursorVisible(visible bool) {
	c.setCaptured(!visible)
}

func (c *Capture) setCaptured(captured bool) {
	if c.captured == captured {
		return
	}
	c.captured = captured
	if c.onCaptureChange != nil {
		c.onCaptureChange(captured)
	}
}

// normalize maps a view-space point (origin bottom-left) into [0,1]² with
// y=0 at the top. ok is false when the point is outside the slack band.
func (c *Capture) normalize(u, v float64) (x, y float64, ok bool) {
	if c.width <= 0 || c.height <= 0 {
		return 0, 0, false
	}
	x = u / c.width
	y = 1 - v/c.height
	if x < -surfaceSlack || x > 1+surfaceSlack || y < -surfaceSlack || y > 1+surfaceSlack {
		return 0, 0, false
	}
	return x, y, true
}

// PointerEvent normalizes and forwards one pointer event. For moves, raw
// deltas ride along; in capture mode they are the authoritative motion.
// Off-surface events are dropped.
func (c *Capture) PointerEvent(eventType string, u, v float64, button string, deltaX, deltaY float64) {
	x, y, ok := c.normalize(u, v)
	if !ok {
		return
	}
	ev := control.Event{Type: eventType, X: x, Y: y, Button: button}
	if eventType == control.EventMouseMove {
		ev.DeltaX = deltaX
		ev.DeltaY = deltaY
	}
	c.send(ev)
}

// ScrollEvent normalizes one wheel event. The OS-natural delta is negated so
// a positive wire delta always means "scroll the content downward".
func (c *Capture) ScrollEvent(rawDeltaY float64, precise bool) {
	var d float64
	if precise {
		d = -rawDeltaY / preciseScrollDivisor
	} else {
		d = -rawDeltaY * lineScrollFactor
	}
	c.send(control.Event{Type: control.EventScroll, DeltaY: d})
}

// KeyDown forwards one key press. While captured, the escape key releases
// capture and is consumed rather than forwarded. Returns true when the event
// was consumed locally (callers must not propagate it up the responder
// chain either way; consumed means it never reaches the wire).
func (c *Capture) KeyDown(keyCode int, mods ModifierFlags, text string) (consumed bool) {
	if c.captured && keyCode == KeyEscape {
		c.setCaptured(false)
		return true
	}
	c.mods = mods
	c.send(control.Event{
		Type: control.EventKeyDown, KeyCode: keyCode,
		Shift: mods.Shift, Control: mods.Control, Option: mods.Option, Command: mods.Command,
		Text: text,
	})
	return false
}

// KeyUp forwards one key release.
func (c *Capture) KeyUp(keyCode int, mods ModifierFlags) {
	c.mods = mods
	c.send(control.Event{
		Type: control.EventKeyUp, KeyCode: keyCode,
		Shift: mods.Shift, Control: mods.Control, Option: mods.Option, Command: mods.Command,
	})
}

// ModifiersChanged synthesizes key-down/key-up events for each modifier
// whose flag flipped, since the OS reports modifier activity as a flag
// change rather than a key event.
func (c *Capture) ModifiersChanged(now ModifierFlags) {
	prev := c.mods
	c.mods = now

	changes := []struct {
		keyCode  int
		was, is  bool
	}{
		{KeyShift, prev.Shift, now.Shift},
		{KeyControl, prev.Control, now.Control},
		{KeyOption, prev.Option, now.Option},
		{KeyCommand, prev.Command, now.Command},
	}
	for _, ch := range changes {
		if ch.was == ch.is {
			continue
		}
		typ := control.EventKeyUp
		if ch.is {
			typ = control.EventKeyDown
		}
		c.send(control.Event{
			Type: typ, KeyCode: ch.keyCode,
			Shift: now.Shift, Control: now.Control, Option: now.Option, Command: now.Command,
		})
	}
}
