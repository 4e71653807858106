// Package toplevel tracks the windows a wlr compositor reports through the
// foreign-toplevel protocol and turns their aggregate state into playback
// decisions: pause the wallpaper while it cannot be seen, mute it while a
// window has focus.
package toplevel

// State values from the zwlr_foreign_toplevel_handle_v1 state event.
const (
	StateMaximized  = 0
	StateMinimized  = 1
	StateActivated  = 2
	StateFullscreen = 3
)

type window struct {
	fullscreenActive bool
	activeOrMax      bool
}

// Tracker maintains per-window flags keyed by the toplevel handle and the
// aggregate counts derived from them. Not safe for concurrent use; all
// updates arrive on the Wayland event thread.
type Tracker struct {
	windows map[uintptr]window

	fullscreen  int
	activeOrMax int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{windows: make(map[uintptr]window)}
}

// Update records the state array of one toplevel and reports whether either
// aggregate answer (FullscreenActive, WindowActive) changed.
//
// A window only counts as fullscreen when it is also activated: an
// unfocused fullscreen window on another workspace does not hide the
// wallpaper. Activated or maximized windows count as active regardless.
func (t *Tracker) Update(id uintptr, states []uint32) bool {
	var fullscreen, activated, maximized bool
	for _, s := range states {
		switch s {
		case StateFullscreen:
			fullscreen = true
		case StateActivated:
			activated = true
		case StateMaximized:
			maximized = true
		}
	}

	next := window{
		fullscreenActive: fullscreen && activated,
		activeOrMax:      activated || maximized,
	}
	prev := t.windows[id]
	t.windows[id] = next

	return t.apply(prev, next)
}

// Remove drops a closed toplevel and reports whether either aggregate answer
// changed. Unknown ids are ignored.
func (t *Tracker) Remove(id uintptr) bool {
	prev, ok := t.windows[id]
	if !ok {
		return false
	}
	delete(t.windows, id)
	return t.apply(prev, window{})
}

func (t *Tracker) apply(prev, next window) bool {
	beforeFS, beforeActive := t.FullscreenActive(), t.WindowActive()

	if next.fullscreenActive && !prev.fullscreenActive {
		t.fullscreen++
	}
	if !next.fullscreenActive && prev.fullscreenActive {
		t.fullscreen--
	}
	if next.activeOrMax && !prev.activeOrMax {
		t.activeOrMax++
	}
	if !next.activeOrMax && prev.activeOrMax {
		t.activeOrMax--
	}

	return t.FullscreenActive() != beforeFS || t.WindowActive() != beforeActive
}

// FullscreenActive reports whether any focused window is fullscreen.
func (t *Tracker) FullscreenActive() bool {
	return t.fullscreen > 0
}

// WindowActive reports whether any window is focused or maximized.
func (t *Tracker) WindowActive() bool {
	return t.activeOrMax > 0
}

// Policy holds the enabled playback reactions.
type Policy struct {
	// PauseOnFullscreen pauses playback while a focused window is
	// fullscreen. On by default; --no-pause-on-fullscreen disables it.
	PauseOnFullscreen bool

	// PauseOnWindow pauses playback while any window is focused or
	// maximized. Opt-in.
	PauseOnWindow bool

	// MuteOnWindow silences audio while any window is focused or
	// maximized. Opt-in, meaningful only with audio enabled.
	MuteOnWindow bool
}

// Enabled reports whether any reaction is switched on, so callers can skip
// window tracking entirely otherwise.
func (p Policy) Enabled() bool {
	return p.PauseOnFullscreen || p.PauseOnWindow || p.MuteOnWindow
}

// Decide maps the aggregate window state to the desired playback state.
func (p Policy) Decide(fullscreenActive, windowActive bool) (pause, mute bool) {
	pause = (p.PauseOnFullscreen && fullscreenActive) ||
		(p.PauseOnWindow && windowActive)
	mute = p.MuteOnWindow && windowActive
	return pause, mute
}
