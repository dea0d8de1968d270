package input

// Poster is the OS binding for synthesizing events directly into a target
// process, bypassing global event routing.
type Poster interface {
	// PostMouse posts one mouse event of the given wire type at screen
	// coordinates, with raw deltas for apps that read relative motion.
	PostMouse(pid int32, eventType string, x, y float64, button string, deltaX, deltaY float64) error
	// PostKey posts one key event; text, when non-empty on key-down, is
	// additionally delivered through the Unicode string injection path so
	// composed characters survive any keymap.
	PostKey(pid int32, keyCode int, down bool, mods ModifierFlags, text string) error
	// CursorPosition returns the current on-screen cursor location.
	CursorPosition() (x, y float64)
	// WarpCursor moves the cursor without generating events.
	WarpCursor(x, y float64)
	// ActivateApp brings the target app frontmost once, so posted pointer
	// events are treated as input rather than activation clicks.
	ActivateApp(pid int32) error
}

// Element is one accessibility node of the target window's UI tree.
type Element interface {
	Role() string
	Children() []Element
	// Value reads the element's numeric value (scroll bars expose 0..1).
	Value() (float64, bool)
	SetValue(v float64) error
	// VerticalScrollBar returns the element's vertical scroll bar child, if
	// it has one.
	VerticalScrollBar() (Element, bool)
}

// Accessibility is the AX binding: press without cursor movement, and the
// element tree used to find scroll areas.
type Accessibility interface {
	// PressAt performs an accessibility press on the element at the given
	// screen point.
	PressAt(pid int32, x, y float64) error
	// WindowElement returns the root element of the target window.
	WindowElement(pid int32) (Element, bool)
}
