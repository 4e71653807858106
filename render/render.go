// Package render decides what happens on each compositor frame tick: take
// the pending decoded frame and upload it, redraw the previous texture when
// nothing is pending, or skip the draw entirely when the fps ceiling says so.
//
// The loop never sleeps. Pacing works by declining to draw on a tick and
// letting the caller re-request the next frame callback, so the compositor's
// own cadence stays the only clock.
package render

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wlvid/wlvid/framechannel"
)

// Presenter is the GPU-facing half of the loop. Upload and Redraw both end
// with a present (buffer swap); Upload must finish reading frame.Pixels
// before it returns, because the caller releases the frame immediately after.
type Presenter interface {
	Upload(frame *framechannel.Frame) error
	Redraw() error
	Resize(width, height int) error
}

// Action reports what a tick did, so the surface driver knows whether a
// present already happened or it must commit bare to keep callbacks flowing.
type Action int

const (
	// ActionSkipped means the fps ceiling suppressed the draw. Nothing was
	// presented; the driver commits without attaching.
	ActionSkipped Action = iota
	// ActionUploaded means a new frame was uploaded and presented.
	ActionUploaded
	// ActionRedrawn means no frame was pending and the previous texture was
	// presented again.
	ActionRedrawn
)

// Stats is a non-blocking snapshot of loop counters.
type Stats struct {
	Uploads uint64
	Redraws uint64
	Skipped uint64
}

// Loop drives one wallpaper surface. Not safe for concurrent use: every
// method runs on the surface's event-loop thread.
type Loop struct {
	channel   *framechannel.Channel
	presenter Presenter
	limiter   *limiter

	uploads uint64 // atomic, Stats may be read from another goroutine
	redraws uint64
	skipped uint64
}

// NewLoop creates a presentation loop. fps caps the draw rate; 0 draws on
// every compositor tick.
func NewLoop(channel *framechannel.Channel, presenter Presenter, fps int) (*Loop, error) {
	if channel == nil {
		return nil, fmt.Errorf("render: frame channel is required")
	}
	if presenter == nil {
		return nil, fmt.Errorf("render: presenter is required")
	}
	if fps < 0 {
		return nil, fmt.Errorf("render: invalid fps %d (must be positive)", fps)
	}
	return &Loop{
		channel:   channel,
		presenter: presenter,
		limiter:   newLimiter(fps),
	}, nil
}

// Tick runs once per compositor frame callback.
func (l *Loop) Tick(now time.Time) (Action, error) {
	if !l.limiter.allow(now) {
		atomic.AddUint64(&l.skipped, 1)
		return ActionSkipped, nil
	}

	frame := l.channel.TryTake()
	if frame == nil {
		// Decoder paced below the display: keep the last image on screen.
		atomic.AddUint64(&l.redraws, 1)
		if err := l.presenter.Redraw(); err != nil {
			return ActionRedrawn, fmt.Errorf("render: redraw: %w", err)
		}
		return ActionRedrawn, nil
	}
	defer frame.Release()

	atomic.AddUint64(&l.uploads, 1)
	if err := l.presenter.Upload(frame); err != nil {
		return ActionUploaded, fmt.Errorf("render: upload: %w", err)
	}
	return ActionUploaded, nil
}

// Resize propagates a new surface extent to the presenter.
func (l *Loop) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("render: invalid extent %dx%d", width, height)
	}
	slog.Info("render: surface resized", "extent", fmt.Sprintf("%dx%d", width, height))
	if err := l.presenter.Resize(width, height); err != nil {
		return fmt.Errorf("render: resize: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Uploads: atomic.LoadUint64(&l.uploads),
		Redraws: atomic.LoadUint64(&l.redraws),
		Skipped: atomic.LoadUint64(&l.skipped),
	}
}
