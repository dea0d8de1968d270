package window

import (
	"fmt"
	"log"
	"sync"
)

const (
	// DisplayWidth is the virtual display width
	DisplayWidth = 1920
	// DisplayInitialHeight is the height the display starts at
	DisplayInitialHeight = 1080
	// DisplayMaxHeight caps live growth of the display
	DisplayMaxHeight = 10800
	// stackMargin separates stacked windows and insets the first slot
	stackMargin = 50.0
)

type hiddenEntry struct {
	win            AXWindow
	origX, origY   float64
	frame          Rect // assigned slot on the virtual display
}

// Hider owns one session-scoped virtual display and the windows parked on
// it. Windows stack downward without overlapping; the display grows in
// DisplayInitialHeight steps when a new slot would not fit, up to
// DisplayMaxHeight.
type Hider struct {
	api    DisplayAPI
	finder Finder

	mu      sync.Mutex
	display DisplayRef
	height  int
	entries []*hiddenEntry
}

// NewHider creates the virtual display. A binding without the facility
// returns ErrNotSupported; callers continue unhidden.
func NewHider(api DisplayAPI, finder Finder) (*Hider, error) {
	ref, err := api.Create(DisplayWidth, DisplayInitialHeight)
	if err != nil {
		return nil, fmt.Errorf("window: create virtual display: %w", err)
	}
	return &Hider{
		api:     api,
		finder:  finder,
		display: ref,
		height:  DisplayInitialHeight,
	}, nil
}

// Hide locates pid's window (by title substring when given), records its
// on-screen position, and moves it into the next free slot on the virtual
// display. The returned handle stays valid until Restore or RestoreAll.
func (h *Hider) Hide(pid int32, titleSubstring string) (AXWindow, error) {
	win, err := h.finder.FindWindow(pid, titleSubstring)
	if err != nil {
		return nil, fmt.Errorf("window: locate window of pid %d: %w", pid, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	bounds := h.api.Bounds(h.display)
	winW, winH := win.Size()

	y := bounds.Y + stackMargin
	if n := len(h.entries); n > 0 {
		prev := h.entries[n-1].frame
		y = prev.Y + prev.H + stackMargin
	}

	// Grow the display when the slot's bottom edge would fall off it.
	if bottom := y + winH; bottom > bounds.Y+float64(h.height) {
		needed := int(bottom - bounds.Y)
		newHeight := ((needed + DisplayInitialHeight - 1) / DisplayInitialHeight) * DisplayInitialHeight
		if newHeight > DisplayMaxHeight {
			return nil, fmt.Errorf("window: virtual display full (%d windows hidden)", len(h.entries))
		}
		if err := h.api.Resize(h.display, newHeight); err != nil {
			return nil, fmt.Errorf("window: grow virtual display to %d: %w", newHeight, err)
		}
		h.height = newHeight
	}

	origX, origY := win.Position()
	x := bounds.X + stackMargin
	if err := win.SetPosition(x, y); err != nil {
		return nil, fmt.Errorf("window: move window onto virtual display: %w", err)
	}

	h.entries = append(h.entries, &hiddenEntry{
		win:   win,
		origX: origX,
		origY: origY,
		frame: Rect{X: x, Y: y, W: winW, H: winH},
	})
	log.Printf("[INFO] window: hid %q at slot (%.0f, %.0f)", win.Title(), x, y)
	return win, nil
}

// Frame returns the hidden window's current virtual-display rectangle, the
// geometry the input injector denormalizes against.
func (h *Hider) Frame(win AXWindow) (Rect, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.entries {
		if e.win == win {
			w, hh := e.win.Size()
			return Rect{X: e.frame.X, Y: e.frame.Y, W: w, H: hh}, true
		}
	}
	return Rect{}, false
}

// Restore moves one window back to its recorded position and raises it.
func (h *Hider) Restore(win AXWindow) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restoreLocked(win)
}

func (h *Hider) restoreLocked(win AXWindow) error {
	for i, e := range h.entries {
		if e.win != win {
			continue
		}
		h.entries = append(h.entries[:i], h.entries[i+1:]...)
		if err := win.SetPosition(e.origX, e.origY); err != nil {
			return fmt.Errorf("window: restore position: %w", err)
		}
		if err := win.Raise(); err != nil {
			return fmt.Errorf("window: raise restored window: %w", err)
		}
		return nil
	}
	return fmt.Errorf("window: not a hidden window")
}

// RestoreAll restores every hidden window in reverse hide order, then
// destroys the virtual display. The hider is dead afterwards.
func (h *Hider) RestoreAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.entries) - 1; i >= 0; i-- {
		if err := h.restoreLocked(h.entries[i].win); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	if h.display != nil {
		if err := h.api.Destroy(h.display); err != nil {
			log.Printf("[WARN] window: destroy virtual display: %v", err)
		}
		h.display = nil
	}
}

// Hidden returns how many windows are currently parked.
func (h *Hider) Hidden() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
