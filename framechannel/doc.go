// Package framechannel implements the single-slot, latest-wins handoff
// between the decode threads and the render loop.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// The decoder and the render loop run at independent, uncorrelated rates:
// decode may burst ahead on easy frames while presentation is capped by
// compositor vsync or an fps ceiling. A FIFO queue would either grow without
// bound or push blocking back-pressure into the decoder's own threads. For a
// wallpaper only the newest frame matters, so the channel holds at most one
// unconsumed frame and every Publish replaces (and releases) the previous
// one.
//
// Design:
//   - Non-blocking Publish() (~1µs, mutex + pointer swap)
//   - Non-blocking TryTake() (the consumer is paced externally by compositor
//     frame callbacks, so it never needs to wait here)
//   - Borrowed frame memory: a Frame wraps a mapped decoder buffer and a
//     Release step; the channel releases overwritten frames itself, the
//     consumer releases the frame it took
package framechannel
