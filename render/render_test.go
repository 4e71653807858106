package render_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wlvid/wlvid/framechannel"
	"github.com/wlvid/wlvid/render"
)

// fakePresenter records calls and lets tests observe frame state at upload
// time.
type fakePresenter struct {
	uploads  int
	redraws  int
	resizes  [][2]int
	lastSeen []byte // pixels observed during Upload
	sawFreed bool   // frame already released when Upload ran

	uploadErr error
	redrawErr error
	resizeErr error
}

func (p *fakePresenter) Upload(f *framechannel.Frame) error {
	p.uploads++
	p.sawFreed = p.sawFreed || f.Released()
	p.lastSeen = append([]byte(nil), f.Pixels...)
	return p.uploadErr
}

func (p *fakePresenter) Redraw() error {
	p.redraws++
	return p.redrawErr
}

func (p *fakePresenter) Resize(w, h int) error {
	p.resizes = append(p.resizes, [2]int{w, h})
	return p.resizeErr
}

func publishFrame(ch *framechannel.Channel, tag byte, released *atomic.Int32) *framechannel.Frame {
	f := framechannel.NewFrame(2, 2, 8, 0, []byte{tag}, func() {
		if released != nil {
			released.Add(1)
		}
	})
	ch.Publish(f)
	return f
}

// --- Tick dispatch ---

// TestTickUploadsPendingFrame validates the take-upload-release ordering:
// the presenter sees live pixels, and the frame is released only after
// Upload returns.
func TestTickUploadsPendingFrame(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{}
	loop, err := render.NewLoop(ch, p, 0)
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}

	var released atomic.Int32
	f := publishFrame(ch, 'A', &released)

	action, err := loop.Tick(time.Now())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if action != render.ActionUploaded {
		t.Fatalf("Tick() = %v, want ActionUploaded", action)
	}
	if p.sawFreed {
		t.Error("presenter observed a released frame during Upload")
	}
	if string(p.lastSeen) != "A" {
		t.Errorf("presenter saw pixels %q, want %q", p.lastSeen, "A")
	}
	if !f.Released() || released.Load() != 1 {
		t.Error("frame must be released after Upload returns")
	}
}

// TestTickRedrawsWhenEmpty validates that a tick with no pending frame
// presents the previous texture instead of blocking or going dark.
func TestTickRedrawsWhenEmpty(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{}
	loop, _ := render.NewLoop(ch, p, 0)

	action, err := loop.Tick(time.Now())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if action != render.ActionRedrawn {
		t.Fatalf("Tick() = %v, want ActionRedrawn", action)
	}
	if p.redraws != 1 || p.uploads != 0 {
		t.Errorf("redraws = %d, uploads = %d; want 1, 0", p.redraws, p.uploads)
	}
}

// --- FPS ceiling ---

// TestFpsCeilingSkipsDraws simulates a 60 Hz compositor against a 30 fps cap
// over one second of fake time and validates that roughly half the ticks are
// skipped. The bound is draws <= cap+1: the first tick always draws.
func TestFpsCeilingSkipsDraws(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{}
	loop, _ := render.NewLoop(ch, p, 30)

	start := time.Now()
	var draws, skips int
	for i := 0; i < 60; i++ {
		now := start.Add(time.Duration(i) * time.Second / 60)
		action, err := loop.Tick(now)
		if err != nil {
			t.Fatalf("Tick(%d) error = %v", i, err)
		}
		if action == render.ActionSkipped {
			skips++
		} else {
			draws++
		}
	}

	if draws > 31 {
		t.Errorf("draws = %d over 1s, want <= 31 with a 30 fps cap", draws)
	}
	if draws < 29 {
		t.Errorf("draws = %d over 1s, want >= 29 (cap must not over-throttle)", draws)
	}
	if skips != 60-draws {
		t.Errorf("skips = %d, want %d", skips, 60-draws)
	}

	stats := loop.Stats()
	if stats.Skipped != uint64(skips) {
		t.Errorf("Stats().Skipped = %d, want %d", stats.Skipped, skips)
	}
}

// TestUncappedDrawsEveryTick validates that fps 0 disables the ceiling.
func TestUncappedDrawsEveryTick(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{}
	loop, _ := render.NewLoop(ch, p, 0)

	start := time.Now()
	for i := 0; i < 10; i++ {
		action, _ := loop.Tick(start.Add(time.Duration(i) * time.Millisecond))
		if action == render.ActionSkipped {
			t.Fatalf("tick %d skipped with no fps cap", i)
		}
	}
}

// TestSkippedTickLeavesFramePending validates that the ceiling skips the
// draw, not the frame: the pending frame survives for the next allowed tick.
func TestSkippedTickLeavesFramePending(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{}
	loop, _ := render.NewLoop(ch, p, 30)

	start := time.Now()
	if action, _ := loop.Tick(start); action != render.ActionRedrawn {
		t.Fatal("first tick should draw (redraw, channel empty)")
	}

	publishFrame(ch, 'B', nil)

	// 1ms later: under the 33ms interval, must skip without consuming.
	if action, _ := loop.Tick(start.Add(time.Millisecond)); action != render.ActionSkipped {
		t.Fatal("tick under the fps interval must be skipped")
	}

	// Past the interval: the frame published before the skip is delivered.
	action, _ := loop.Tick(start.Add(40 * time.Millisecond))
	if action != render.ActionUploaded {
		t.Fatalf("Tick() = %v, want ActionUploaded", action)
	}
	if string(p.lastSeen) != "B" {
		t.Errorf("presenter saw %q, want frame B", p.lastSeen)
	}
}

// --- Errors and resize ---

func TestUploadErrorPropagates(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{uploadErr: errors.New("context lost")}
	loop, _ := render.NewLoop(ch, p, 0)

	f := publishFrame(ch, 'A', nil)
	if _, err := loop.Tick(time.Now()); err == nil {
		t.Fatal("Tick() = nil error, want upload failure")
	}
	if !f.Released() {
		t.Error("frame must be released even when Upload fails")
	}
}

func TestResize(t *testing.T) {
	ch := framechannel.New()
	p := &fakePresenter{}
	loop, _ := render.NewLoop(ch, p, 0)

	if err := loop.Resize(2560, 1440); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if len(p.resizes) != 1 || p.resizes[0] != [2]int{2560, 1440} {
		t.Errorf("presenter resizes = %v, want [[2560 1440]]", p.resizes)
	}

	if err := loop.Resize(0, 1440); err == nil {
		t.Error("Resize(0, 1440) = nil error, want invalid extent")
	}
}

func TestNewLoopValidation(t *testing.T) {
	ch := framechannel.New()
	if _, err := render.NewLoop(nil, &fakePresenter{}, 0); err == nil {
		t.Error("NewLoop(nil channel) = nil error")
	}
	if _, err := render.NewLoop(ch, nil, 0); err == nil {
		t.Error("NewLoop(nil presenter) = nil error")
	}
	if _, err := render.NewLoop(ch, &fakePresenter{}, -1); err == nil {
		t.Error("NewLoop(fps -1) = nil error")
	}
}
