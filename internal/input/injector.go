package input

import (
	"log"
	"math"
	"time"

	"github.com/beamapp/beam/internal/control"
	"github.com/beamapp/beam/internal/window"
)

const (
	// clickMaxDistance is the largest down→up travel, in logical points,
	// still resolved as a click.
	clickMaxDistance = 10.0
	// clickMaxDuration is the longest down→up interval still resolved as a
	// click.
	clickMaxDuration = 500 * time.Millisecond
	// scrollSearchDepth bounds the accessibility DFS for a scroll area.
	scrollSearchDepth = 5

	roleScrollArea = "AXScrollArea"
)

// Injector consumes normalized input events from the control channel and
// delivers them into the hidden target window. Clicks are buffered so they
// can be resolved through the accessibility press path, which does not move
// the sender's cursor; everything that must go through OS events wraps the
// post in a save/warp/restore of the local cursor, because some apps only
// honor events at the cursor's position.
type Injector struct {
	pid    int32
	frame  func() (window.Rect, bool)
	poster Poster
	ax     Accessibility
	now    func() time.Time

	buffered *bufferedDown
}

type bufferedDown struct {
	button string
	x, y   float64
	at     time.Time
}

// NewInjector wires delivery into the target process. frame reports the
// hidden window's live virtual-display rectangle. The target app is
// activated once so posted pointer events count as input.
func NewInjector(pid int32, frame func() (window.Rect, bool), poster Poster, ax Accessibility) *Injector {
	inj := &Injector{
		pid:    pid,
		frame:  frame,
		poster: poster,
		ax:     ax,
		now:    time.Now,
	}
	if err := poster.ActivateApp(pid); err != nil {
		log.Printf("[WARN] input: activate target app %d: %v", pid, err)
	}
	return inj
}

// Deliver routes one event. Unknown event types are dropped silently.
func (inj *Injector) Deliver(ev control.Event) {
	switch ev.Type {
	case control.EventMouseDown:
		inj.handleDown(ev)
	case control.EventMouseUp:
		inj.handleUp(ev)
	case control.EventMouseDrag:
		inj.handleDrag(ev)
	case control.EventMouseMove:
		inj.handleMove(ev)
	case control.EventKeyDown:
		inj.handleKey(ev, true)
	case control.EventKeyUp:
		inj.handleKey(ev, false)
	case control.EventScroll:
		inj.handleScroll(ev)
	}
}

// denormalize maps wire coordinates onto the hidden window's current
// virtual-display frame.
func (inj *Injector) denormalize(ev control.Event) (x, y float64, ok bool) {
	r, ok := inj.frame()
	if !ok {
		return 0, 0, false
	}
	return r.X + ev.X*r.W, r.Y + ev.Y*r.H, true
}

func (inj *Injector) handleDown(ev control.Event) {
	x, y, ok := inj.denormalize(ev)
	if !ok {
		return
	}
	// Buffer: resolved as a click or a drag by what follows.
	inj.buffered = &bufferedDown{button: ev.Button, x: x, y: y, at: inj.now()}
}

func (inj *Injector) handleUp(ev control.Event) {
	x, y, ok := inj.denormalize(ev)
	if !ok {
		inj.buffered = nil
		return
	}

	down := inj.buffered
	inj.buffered = nil

	if down != nil && inj.isClick(down, ev.Button, x, y) {
		if err := inj.ax.PressAt(inj.pid, x, y); err == nil {
			return
		} else {
			log.Printf("[DEBUG] input: ax press failed, falling back to os events: %v", err)
		}
	}

	// Not a click (or AX refused): deliver the buffered down, then the up,
	// as OS events.
	if down != nil {
		inj.postMouseWarped(control.EventMouseDown, down.x, down.y, down.button, 0, 0)
	}
	inj.postMouseWarped(control.EventMouseUp, x, y, ev.Button, 0, 0)
}

func (inj *Injector) isClick(down *bufferedDown, upButton string, upX, upY float64) bool {
	if down.button != upButton {
		return false
	}
	if math.Hypot(upX-down.x, upY-down.y) >= clickMaxDistance {
		return false
	}
	return inj.now().Sub(down.at) < clickMaxDuration
}

func (inj *Injector) handleDrag(ev control.Event) {
	x, y, ok := inj.denormalize(ev)
	if !ok {
		return
	}
	// A drag voids the click interpretation: flush the buffered down first.
	if down := inj.buffered; down != nil {
		inj.buffered = nil
		inj.postMouseWarped(control.EventMouseDown, down.x, down.y, down.button, 0, 0)
	}
	inj.postMouseWarped(control.EventMouseDrag, x, y, "", 0, 0)
}

func (inj *Injector) handleMove(ev control.Event) {
	x, y, ok := inj.denormalize(ev)
	if !ok {
		return
	}
	if err := inj.poster.PostMouse(inj.pid, control.EventMouseMove, x, y, "", ev.DeltaX, ev.DeltaY); err != nil {
		log.Printf("[DEBUG] input: post move: %v", err)
	}
}

func (inj *Injector) handleKey(ev control.Event, down bool) {
	mods := ModifierFlags{Shift: ev.Shift, Control: ev.Control, Option: ev.Option, Command: ev.Command}
	text := ""
	if down {
		text = ev.Text
	}
	if err := inj.poster.PostKey(inj.pid, ev.KeyCode, down, mods, text); err != nil {
		log.Printf("[DEBUG] input: post key %d: %v", ev.KeyCode, err)
	}
}

// postMouseWarped posts one OS mouse event inside a save/warp/restore of the
// local cursor.
func (inj *Injector) postMouseWarped(eventType string, x, y float64, button string, dx, dy float64) {
	saveX, saveY := inj.poster.CursorPosition()
	inj.poster.WarpCursor(x, y)
	if err := inj.poster.PostMouse(inj.pid, eventType, x, y, button, dx, dy); err != nil {
		log.Printf("[DEBUG] input: post %s: %v", eventType, err)
	}
	inj.poster.WarpCursor(saveX, saveY)
}

func (inj *Injector) handleScroll(ev control.Event) {
	if area, ok := inj.findScrollArea(); ok {
		if bar, ok := area.VerticalScrollBar(); ok {
			if v, ok := bar.Value(); ok {
				target := clampUnit(v + ev.DeltaY)
				if err := bar.SetValue(target); err == nil {
					return
				} else {
					log.Printf("[DEBUG] input: set scroll value: %v", err)
				}
			}
		}
	}

	// No scroll bar reachable: page keys.
	keyCode := KeyPageUp
	if ev.DeltaY > 0 {
		keyCode = KeyPageDown
	}
	if err := inj.poster.PostKey(inj.pid, keyCode, true, ModifierFlags{}, ""); err != nil {
		log.Printf("[DEBUG] input: scroll fallback keydown: %v", err)
		return
	}
	if err := inj.poster.PostKey(inj.pid, keyCode, false, ModifierFlags{}, ""); err != nil {
		log.Printf("[DEBUG] input: scroll fallback keyup: %v", err)
	}
}

// findScrollArea walks the target window's element tree depth-first, at most
// scrollSearchDepth levels, and returns the first AXScrollArea.
func (inj *Injector) findScrollArea() (Element, bool) {
	root, ok := inj.ax.WindowElement(inj.pid)
	if !ok {
		return nil, false
	}
	return findScrollArea(root, scrollSearchDepth)
}

func findScrollArea(el Element, depth int) (Element, bool) {
	if el.Role() == roleScrollArea {
		return el, true
	}
	if depth == 0 {
		return nil, false
	}
	for _, child := range el.Children() {
		if found, ok := findScrollArea(child, depth-1); ok {
			return found, true
		}
	}
	return nil, false
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
