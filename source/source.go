package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/wlvid/wlvid/framechannel"
	"github.com/wlvid/wlvid/source/internal/gstpipe"
)

// Source owns one decode graph and publishes its frames into a channel.
type Source struct {
	cfg     Config
	backend Backend
	channel *framechannel.Channel

	graph *gstpipe.Graph

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// fatal carries the first unrecoverable pipeline error. Buffered so the
	// bus monitor never blocks on delivery.
	fatal chan error

	// Statistics (atomic for thread-safety)
	frames uint64
	bytes  uint64
	loops  uint64
}

// New validates the configuration, probes the decode backends, and applies
// the fallback guard. Fail-fast: every error a misconfiguration can cause
// surfaces here, before any pipeline exists.
func New(cfg Config, channel *framechannel.Channel) (*Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, fmt.Errorf("source: frame channel is required")
	}
	if err := gstpipe.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
	}

	backend := BackendSoftware
	if gstpipe.ProbeHardware() {
		backend = BackendHardware
	}
	if err := checkGuard(backend, cfg.Width, cfg.Height, cfg.FallbackGuard); err != nil {
		return nil, err
	}

	slog.Info("source: decode source created",
		"file", cfg.Path,
		"extent", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"backend", backend.String(),
		"audio", cfg.Audio,
		"fps_cap", cfg.FPS,
	)

	return &Source{
		cfg:     cfg,
		backend: backend,
		channel: channel,
		fatal:   make(chan error, 1),
	}, nil
}

// Start builds the decode graph and moves it to PLAYING. Returns immediately;
// frames arrive asynchronously through the channel once the pipeline rolls.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("source: already started")
	}

	uri, err := gstpipe.FileURI(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	volume := 0.0
	if s.cfg.Audio {
		volume = s.cfg.Volume
	}

	graph, err := gstpipe.Build(gstpipe.Config{
		URI:      uri,
		Width:    s.cfg.Width,
		Height:   s.cfg.Height,
		Hardware: s.backend == BackendHardware,
		Volume:   volume,
		FPS:      s.cfg.FPS,
	})
	if err != nil {
		return fmt.Errorf("source: failed to build decode graph: %w", err)
	}
	s.graph = graph

	pub := &gstpipe.Publisher{
		Channel: s.channel,
		Width:   s.cfg.Width,
		Height:  s.cfg.Height,
		Frames:  &s.frames,
		Bytes:   &s.bytes,
	}
	graph.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstpipe.OnNewSample(sink, pub)
		},
	})

	if err := graph.Pipeline.SetState(gst.StatePlaying); err != nil {
		graph.Pipeline.SetState(gst.StateNull)
		s.graph = nil
		return fmt.Errorf("source: failed to start pipeline: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.monitorBus()

	slog.Info("source: playback started", "file", s.cfg.Path)
	return nil
}

// Fatal delivers the first unrecoverable pipeline error. The channel never
// closes; callers select on it alongside their own shutdown signal.
func (s *Source) Fatal() <-chan error {
	return s.fatal
}

// monitorBus watches the pipeline bus. End of stream restarts playback from
// zero (looping is the normal case, not an error); pipeline errors are fatal
// and reported through Fatal.
func (s *Source) monitorBus() {
	defer s.wg.Done()

	bus := s.graph.Pipeline.GetPipelineBus()
	for {
		select {
		case <-s.ctx.Done():
			slog.Debug("source: context cancelled, stopping bus monitor")
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			if err := s.restart(); err != nil {
				slog.Error("source: failed to restart playback", "error", err)
				s.reportFatal(fmt.Errorf("source: restart after end of stream: %w", err))
				return
			}
			slog.Debug("source: looped to start",
				"loops", atomic.LoadUint64(&s.loops),
				"frames", atomic.LoadUint64(&s.frames),
			)

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("source: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"file", s.cfg.Path,
				"frames", atomic.LoadUint64(&s.frames),
			)
			s.reportFatal(fmt.Errorf("source: pipeline error: %s", gerr.Error()))
			return

		case gst.MessageStateChanged:
			if msg.Source() == s.graph.Pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				slog.Debug("source: pipeline state changed", "from", old, "to", next)
			}
		}
	}
}

// restart seeks back to zero so playback loops without tearing the graph
// down. When the demuxer rejects the flushing seek (some containers cannot
// seek), fall back to bouncing the pipeline through NULL.
func (s *Source) restart() error {
	ev := gst.NewSeekEvent(1.0, gst.FormatTime,
		gst.SeekFlagFlush|gst.SeekFlagKeyUnit,
		gst.SeekTypeSet, 0, gst.SeekTypeNone, -1)
	if ev != nil && s.graph.Pipeline.SendEvent(ev) {
		atomic.AddUint64(&s.loops, 1)
		return nil
	}

	slog.Warn("source: flushing seek rejected, rebuilding playback state")
	if err := s.graph.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("reset to NULL: %w", err)
	}
	if err := s.graph.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("return to PLAYING: %w", err)
	}
	atomic.AddUint64(&s.loops, 1)
	return nil
}

func (s *Source) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// Pause freezes decode and audio, typically while a fullscreen or focused
// window hides the wallpaper. The graph keeps its state and its mapped
// buffers; Resume picks playback up where it stopped.
func (s *Source) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return fmt.Errorf("source: not started")
	}
	if err := s.graph.Pipeline.SetState(gst.StatePaused); err != nil {
		return fmt.Errorf("source: failed to pause pipeline: %w", err)
	}
	slog.Debug("source: playback paused")
	return nil
}

// Resume returns a paused graph to PLAYING.
func (s *Source) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return fmt.Errorf("source: not started")
	}
	if err := s.graph.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("source: failed to resume pipeline: %w", err)
	}
	slog.Debug("source: playback resumed")
	return nil
}

// SetVolume updates playback volume live, without rebuilding the graph.
// No-op when audio was disabled at construction.
func (s *Source) SetVolume(vol float64) error {
	if vol < 0 || vol > 1 {
		return fmt.Errorf("source: invalid volume %.2f (must be 0.0-1.0)", vol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return fmt.Errorf("source: not started")
	}
	if !s.cfg.Audio {
		return nil
	}
	s.graph.Volume.SetProperty("volume", vol)
	return nil
}

// Stop tears the decode graph down. Must run before the channel is closed
// and before any GPU teardown, so no callback publishes into a dead channel
// or touches memory the renderer is releasing. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		slog.Debug("source: not started, nothing to stop")
		return nil
	}

	slog.Info("source: stopping playback")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Debug("source: bus monitor stopped cleanly")
	case <-time.After(3 * time.Second):
		slog.Warn("source: stop timeout exceeded, bus monitor may still be running")
	}

	if s.graph != nil {
		if err := s.graph.Pipeline.SetState(gst.StateNull); err != nil {
			slog.Error("source: failed to reset pipeline", "error", err)
		}
		s.graph = nil
	}

	slog.Info("source: playback stopped",
		"frames", atomic.LoadUint64(&s.frames),
		"loops", atomic.LoadUint64(&s.loops),
	)

	s.cancel = nil
	s.ctx = nil
	return nil
}

// Stats returns a snapshot of decode-side counters.
func (s *Source) Stats() Stats {
	return Stats{
		FramesProduced: atomic.LoadUint64(&s.frames),
		BytesMapped:    atomic.LoadUint64(&s.bytes),
		Loops:          atomic.LoadUint64(&s.loops),
		Backend:        s.backend,
	}
}

// Backend reports which decode path was selected at construction.
func (s *Source) Backend() Backend {
	return s.backend
}
