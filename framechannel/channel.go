package framechannel

import (
	"sync"
	"sync/atomic"
)

// Channel is the synchronization boundary between the decode threads and the
// render loop: a single mutable slot holding at most one pending Frame.
//
// Thread-safety: Publish and TryTake are each atomic with respect to the
// other (mutex-protected pointer swap), and neither ever blocks beyond that
// swap. The consumer can therefore never observe a half-overwritten frame,
// and a frame published while the consumer holds an earlier one does not
// touch the held frame, only the pending slot.
type Channel struct {
	mu      sync.Mutex
	pending *Frame
	closed  bool

	published uint64 // atomic
	drops     uint64 // atomic: frames overwritten before consumption
	taken     uint64 // atomic
}

// Stats is a non-blocking snapshot of channel counters.
type Stats struct {
	Published uint64
	Dropped   uint64
	Taken     uint64
}

// New creates an empty channel.
func New() *Channel {
	return &Channel{}
}

// Publish makes frame the pending frame, replacing any unconsumed one.
//
// Semantics:
//   - Non-blocking: always returns immediately.
//   - Overwrite policy: the previous unconsumed frame is released back to
//     the decoder and counted as a drop.
//   - After Close, frames are released immediately and not retained.
//
// Contract: frame must not be nil, and the producer must not touch
// frame.Pixels after Publish.
func (c *Channel) Publish(frame *Frame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		frame.Release()
		return
	}
	old := c.pending
	c.pending = frame
	c.mu.Unlock()

	atomic.AddUint64(&c.published, 1)
	if old != nil {
		atomic.AddUint64(&c.drops, 1)
		old.Release()
	}
}

// TryTake returns the pending frame, or nil when none is pending. A frame is
// delivered at most once; two takes with no intervening publish yield
// (frame, nil). The caller owns the returned frame and must Release it.
func (c *Channel) TryTake() *Frame {
	c.mu.Lock()
	frame := c.pending
	c.pending = nil
	c.mu.Unlock()

	if frame != nil {
		atomic.AddUint64(&c.taken, 1)
	}
	return frame
}

// Close releases any pending frame and makes further publishes no-ops.
// Idempotent. Called during shutdown after the decode graph has stopped
// producing, so no frame can be stranded holding a mapped buffer.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		pending.Release()
	}
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Published: atomic.LoadUint64(&c.published),
		Dropped:   atomic.LoadUint64(&c.drops),
		Taken:     atomic.LoadUint64(&c.taken),
	}
}
