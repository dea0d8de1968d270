// Package window hides beamed windows by parking them on a process-owned
// virtual display that the compositor renders but the user cannot see.
package window

import "errors"

// ErrNotSupported is returned by platform layers without the private virtual
// display facility. The session continues unhidden.
var ErrNotSupported = errors.New("window: virtual display not supported on this platform")

// Rect is a screen rectangle in global display coordinates (origin top-left,
// y grows downward).
type Rect struct {
	X, Y, W, H float64
}

// Intersects reports whether two rectangles overlap with positive area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// DisplayRef is an opaque handle to one virtual display.
type DisplayRef interface{}

// DisplayAPI is the private-OS-API binding for virtual displays. Create
// places the display at the bottom-left corner of the existing arrangement
// with one pixel of overlap with the main display's left edge; the display
// is session-scoped and disappears with the process.
type DisplayAPI interface {
	Create(width, height int) (DisplayRef, error)
	Resize(ref DisplayRef, height int) error
	Destroy(ref DisplayRef) error
	Bounds(ref DisplayRef) Rect
}

// AXWindow is an accessibility handle to one window: position and size are
// readable, position writable, and the window can be raised.
type AXWindow interface {
	Title() string
	Position() (x, y float64)
	SetPosition(x, y float64) error
	Size() (w, h float64)
	Raise() error
}

// Handle identifies a capturable window as produced by the window picker:
// owning process, window ID, and the frame it had when picked.
type Handle struct {
	PID      int32
	WindowID uint32
	Frame    Rect
}

// Finder resolves a process's windows to accessibility handles.
type Finder interface {
	// FindWindow returns the first window of pid whose title contains
	// titleSubstring, or the first window when titleSubstring is empty.
	FindWindow(pid int32, titleSubstring string) (AXWindow, error)
}
