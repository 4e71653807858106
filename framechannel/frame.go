package framechannel

import (
	"sync/atomic"
	"time"
)

// Frame is one decoded video frame handed from the decoder to the render
// loop.
//
// BORROW CONTRACT:
//   - Pixels is a read-only view of decoder-owned mapped memory. It is valid
//     only until Release is called; after that the decoder may recycle the
//     underlying buffer-pool slot.
//   - The consumer MUST call Release exactly once, after it has finished
//     reading Pixels (typically right after the GPU texture upload returns).
//   - Neither side may modify Pixels.
//
// The channel itself releases frames that are overwritten before being
// consumed, so a producer never needs to track unconsumed frames.
type Frame struct {
	// Width and Height of the frame in pixels.
	Width  int
	Height int

	// Stride is the row pitch in bytes. May exceed Width*4 when the decoder
	// pads rows.
	Stride int

	// PTS is the presentation timestamp from the decode graph, monotonically
	// non-decreasing within one playback loop.
	PTS time.Duration

	// Pixels holds packed 4-byte BGRA, Height rows of Stride bytes.
	// Borrowed; see the contract above.
	Pixels []byte

	release  func()
	released atomic.Bool
}

// NewFrame wraps a mapped decoder buffer in a Frame. release is invoked
// exactly once, from Release, and must return the underlying buffer to the
// decoder's pool (unmap + unref). A nil release is allowed for tests.
func NewFrame(width, height, stride int, pts time.Duration, pixels []byte, release func()) *Frame {
	return &Frame{
		Width:   width,
		Height:  height,
		Stride:  stride,
		PTS:     pts,
		Pixels:  pixels,
		release: release,
	}
}

// Release returns the borrowed pixel memory to the decoder. Idempotent:
// the CompareAndSwap guarantees the underlying unmap runs at most once even
// if both the channel and the consumer race to release.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	if !f.released.CompareAndSwap(false, true) {
		return
	}
	f.Pixels = nil
	if f.release != nil {
		f.release()
	}
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}
