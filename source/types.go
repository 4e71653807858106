package source

import (
	"errors"
	"fmt"
)

// Backend identifies the decode path selected at construction time.
type Backend int

const (
	// BackendHardware decodes and scales on the GPU via VAAPI.
	BackendHardware Backend = iota
	// BackendSoftware decodes on the CPU (avdec + videoscale).
	BackendSoftware
)

// String implements fmt.Stringer.
func (b Backend) String() string {
	switch b {
	case BackendHardware:
		return "hardware (VAAPI)"
	case BackendSoftware:
		return "software"
	default:
		return fmt.Sprintf("unknown(%d)", int(b))
	}
}

// guardMaxPixels is the fallback-guard threshold: software decoding is
// refused when the output extent exceeds Full HD, unless the guard is
// disabled.
const guardMaxPixels = 1920 * 1080

// ErrNoBackend is returned when GStreamer itself is unusable, so neither
// decode backend can be constructed.
var ErrNoBackend = errors.New("source: no decode backend available")

// ErrResolutionGuard is returned when only the software backend is
// available, the output extent exceeds the guard threshold, and the guard
// has not been disabled.
var ErrResolutionGuard = errors.New(
	"source: refusing software decode above 1920x1080 (use --no-fallback-guard to override)")

// Config describes one decode graph. Immutable after New.
type Config struct {
	// Path to the video file.
	Path string

	// Width and Height are the output extent the graph scales to, i.e. the
	// wallpaper surface size reported by the compositor.
	Width  int
	Height int

	// Audio enables audible playback. The audio chain is always attached as
	// the pipeline clock provider; without Audio its volume is zero.
	Audio  bool
	Volume float64 // 0.0 = mute, 1.0 = full

	// FPS caps the decode-side framerate via videorate. 0 = source rate.
	FPS int

	// FallbackGuard refuses high-resolution software decoding (see
	// ErrResolutionGuard). Enabled by default.
	FallbackGuard bool
}

// Stats is a non-blocking snapshot of decode-side counters.
type Stats struct {
	FramesProduced uint64
	BytesMapped    uint64
	Loops          uint64 // completed seek-to-zero restarts
	Backend        Backend
}

// validate applies fail-fast checks on the configuration.
func (c Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("source: file path is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("source: invalid output extent %dx%d", c.Width, c.Height)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("source: invalid volume %.2f (must be 0.0-1.0)", c.Volume)
	}
	if c.FPS < 0 {
		return fmt.Errorf("source: invalid fps %d (must be positive)", c.FPS)
	}
	return nil
}

// checkGuard evaluates the fallback-guard decision for the selected backend.
// Evaluated once, at construction: Hardware always passes; Software passes
// when under the threshold or when the guard is disabled.
func checkGuard(backend Backend, width, height int, guard bool) error {
	if backend == BackendHardware {
		return nil
	}
	if !guard {
		return nil
	}
	if int64(width)*int64(height) > guardMaxPixels {
		return fmt.Errorf("%w: output is %dx%d", ErrResolutionGuard, width, height)
	}
	return nil
}
