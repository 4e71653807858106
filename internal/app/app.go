// Package app wires the pieces together: layer surface up first, then the
// decode source publishing into the frame channel, then the presentation
// loop driven by the surface's frame callbacks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wlvid/wlvid/framechannel"
	"github.com/wlvid/wlvid/internal/config"
	"github.com/wlvid/wlvid/internal/toplevel"
	"github.com/wlvid/wlvid/internal/wlegl"
	"github.com/wlvid/wlvid/render"
	"github.com/wlvid/wlvid/source"
)

// Run plays cfg.File as the wallpaper until ctx is cancelled, the compositor
// closes the surface, or the pipeline hits an unrecoverable error.
//
// Must be called from the process's main goroutine: the Wayland surface and
// the EGL context live on this goroutine's OS thread.
func Run(ctx context.Context, cfg *config.Config) error {
	sessionID := uuid.New().String()
	slog.Info("app: starting",
		"session_id", sessionID,
		"file", cfg.File,
		"audio", cfg.Audio,
		"fps_cap", cfg.FPS,
	)

	if _, err := os.Stat(cfg.File); err != nil {
		return fmt.Errorf("app: file not found: %s", cfg.File)
	}

	surf, err := wlegl.New("wlvid")
	if err != nil {
		if errors.Is(err, wlegl.ErrProtocol) {
			return fmt.Errorf("%w (a wlroots-based compositor such as sway or hyprland is required)", err)
		}
		return err
	}
	defer surf.Destroy()

	width, height := surf.Size()

	channel := framechannel.New()
	src, err := source.New(source.Config{
		Path:          cfg.File,
		Width:         width,
		Height:        height,
		Audio:         cfg.Audio,
		Volume:        cfg.Volume,
		FPS:           cfg.FPS,
		FallbackGuard: cfg.FallbackGuard,
	}, channel)
	if err != nil {
		return err
	}

	renderer, err := wlegl.NewRenderer(surf)
	if err != nil {
		return err
	}

	loop, err := render.NewLoop(channel, renderer, cfg.FPS)
	if err != nil {
		renderer.Destroy()
		return err
	}
	surf.OnResize = loop.Resize
	wireWindowPolicy(surf, src, cfg)

	if err := src.Start(ctx); err != nil {
		renderer.Destroy()
		return err
	}

	// Shutdown order matters: stop the decode graph before closing the
	// channel (so nothing publishes into it), and only then release the
	// GPU (no borrowed frame may outlive its mapping).
	defer func() {
		if err := src.Stop(); err != nil {
			slog.Error("app: failed to stop source", "error", err)
		}
		channel.Close()
		renderer.Destroy()
		logStats(src, loop, channel)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, _ := errgroup.WithContext(runCtx)
	g.Go(func() error {
		select {
		case err := <-src.Fatal():
			cancel()
			return err
		case <-runCtx.Done():
			return nil
		}
	})

	runErr := surf.Run(runCtx, func(now time.Time) (bool, error) {
		action, err := loop.Tick(now)
		return action != render.ActionSkipped, err
	})
	cancel()

	if fatalErr := g.Wait(); fatalErr != nil {
		return fatalErr
	}
	if errors.Is(runErr, wlegl.ErrClosed) {
		slog.Info("app: surface closed by compositor, exiting")
		return nil
	}
	return runErr
}

// wireWindowPolicy reacts to compositor window state: pause while the
// wallpaper is hidden behind a fullscreen window (or, opt-in, any focused
// window), mute while a window has focus. Failures to pause or mute are
// logged, not fatal, matching the rest of the degradation policy.
func wireWindowPolicy(surf *wlegl.Surface, src *source.Source, cfg *config.Config) {
	pol := toplevel.Policy{
		PauseOnFullscreen: cfg.PauseOnFullscreen,
		PauseOnWindow:     cfg.PauseOnWindow,
		MuteOnWindow:      cfg.MuteOnWindow && cfg.Audio,
	}
	if cfg.MuteOnWindow && !cfg.Audio {
		slog.Warn("app: --mute-on-window has no effect without --audio")
	}
	if !pol.Enabled() {
		return
	}
	if !surf.WindowTracking() {
		slog.Warn("app: compositor lacks the foreign-toplevel protocol, window reactions disabled")
		return
	}

	var paused, muted bool
	surf.OnWindows = func(fullscreenActive, windowActive bool) error {
		pause, mute := pol.Decide(fullscreenActive, windowActive)

		if pause != paused {
			paused = pause
			var err error
			if pause {
				err = src.Pause()
			} else {
				err = src.Resume()
			}
			if err != nil {
				slog.Error("app: failed to switch playback state", "error", err)
			}
		}

		if mute != muted {
			muted = mute
			vol := cfg.Volume
			if mute {
				vol = 0
			}
			if err := src.SetVolume(vol); err != nil {
				slog.Error("app: failed to adjust volume", "error", err)
			}
		}
		return nil
	}
}

func logStats(src *source.Source, loop *render.Loop, channel *framechannel.Channel) {
	srcStats := src.Stats()
	loopStats := loop.Stats()
	chStats := channel.Stats()
	slog.Info("app: session summary",
		"frames_decoded", srcStats.FramesProduced,
		"loops", srcStats.Loops,
		"backend", srcStats.Backend.String(),
		"frames_presented", loopStats.Uploads,
		"redraws", loopStats.Redraws,
		"skipped", loopStats.Skipped,
		"dropped", chStats.Dropped,
	)
}
