package toplevel_test

import (
	"testing"

	"github.com/wlvid/wlvid/internal/toplevel"
)

// TestFullscreenRequiresFocus validates that a fullscreen window only counts
// once it is also activated: fullscreen on another workspace must not pause
// the wallpaper.
func TestFullscreenRequiresFocus(t *testing.T) {
	tr := toplevel.NewTracker()

	tr.Update(1, []uint32{toplevel.StateFullscreen})
	if tr.FullscreenActive() {
		t.Error("unfocused fullscreen window must not count as fullscreen-active")
	}

	changed := tr.Update(1, []uint32{toplevel.StateFullscreen, toplevel.StateActivated})
	if !changed || !tr.FullscreenActive() {
		t.Errorf("focused fullscreen window: changed = %v, FullscreenActive = %v, want true/true",
			changed, tr.FullscreenActive())
	}

	changed = tr.Update(1, []uint32{toplevel.StateFullscreen})
	if !changed || tr.FullscreenActive() {
		t.Errorf("focus left the fullscreen window: changed = %v, FullscreenActive = %v, want true/false",
			changed, tr.FullscreenActive())
	}
}

// TestWindowActiveCounting validates the activated-or-maximized aggregate
// across several windows: the answer flips only on the first enter and the
// last leave.
func TestWindowActiveCounting(t *testing.T) {
	tr := toplevel.NewTracker()

	if changed := tr.Update(1, []uint32{toplevel.StateActivated}); !changed {
		t.Error("first active window must change the aggregate")
	}
	if changed := tr.Update(2, []uint32{toplevel.StateMaximized}); changed {
		t.Error("second active window must not change the aggregate")
	}
	if !tr.WindowActive() {
		t.Fatal("WindowActive() = false with two qualifying windows")
	}

	if changed := tr.Update(1, nil); changed {
		t.Error("aggregate must hold while one qualifying window remains")
	}
	if changed := tr.Update(2, nil); !changed || tr.WindowActive() {
		t.Errorf("last leave: changed = %v, WindowActive = %v, want true/false",
			changed, tr.WindowActive())
	}
}

// TestMinimizedDoesNotCount validates that a minimized-only state qualifies
// for neither aggregate.
func TestMinimizedDoesNotCount(t *testing.T) {
	tr := toplevel.NewTracker()
	tr.Update(1, []uint32{toplevel.StateMinimized})
	if tr.WindowActive() || tr.FullscreenActive() {
		t.Error("minimized window must not count as active or fullscreen")
	}
}

// TestRemoveClosedWindow validates that closing a window releases whatever it
// contributed to both aggregates, and that unknown ids are ignored.
func TestRemoveClosedWindow(t *testing.T) {
	tr := toplevel.NewTracker()
	tr.Update(1, []uint32{toplevel.StateFullscreen, toplevel.StateActivated})

	if changed := tr.Remove(1); !changed {
		t.Error("removing the only qualifying window must change the aggregate")
	}
	if tr.FullscreenActive() || tr.WindowActive() {
		t.Error("aggregates must clear after the contributing window closes")
	}

	if changed := tr.Remove(99); changed {
		t.Error("removing an unknown id must be a no-op")
	}
}

// TestPolicyDecide validates the mapping from aggregate window state to
// pause/mute decisions for each option combination.
func TestPolicyDecide(t *testing.T) {
	tests := []struct {
		name       string
		policy     toplevel.Policy
		fullscreen bool
		active     bool
		wantPause  bool
		wantMute   bool
	}{
		{"defaults, idle desktop", toplevel.Policy{PauseOnFullscreen: true}, false, false, false, false},
		{"defaults, fullscreen video", toplevel.Policy{PauseOnFullscreen: true}, true, true, true, false},
		{"fullscreen pause disabled", toplevel.Policy{}, true, true, false, false},
		{"pause on any window", toplevel.Policy{PauseOnWindow: true}, false, true, true, false},
		{"mute on window", toplevel.Policy{MuteOnWindow: true}, false, true, false, true},
		{"everything on, window focused", toplevel.Policy{PauseOnFullscreen: true, PauseOnWindow: true, MuteOnWindow: true}, false, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pause, mute := tt.policy.Decide(tt.fullscreen, tt.active)
			if pause != tt.wantPause || mute != tt.wantMute {
				t.Errorf("Decide(%v, %v) = (%v, %v), want (%v, %v)",
					tt.fullscreen, tt.active, pause, mute, tt.wantPause, tt.wantMute)
			}
		})
	}
}

// TestPolicyEnabled validates the shortcut that lets callers skip window
// tracking when no reaction is configured.
func TestPolicyEnabled(t *testing.T) {
	if (toplevel.Policy{}).Enabled() {
		t.Error("empty policy must not be enabled")
	}
	if !(toplevel.Policy{MuteOnWindow: true}).Enabled() {
		t.Error("policy with any option set must be enabled")
	}
}
