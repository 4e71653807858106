// Package source wraps the GStreamer decode graph that turns a video file
// into a stream of BGRA frames for the render loop.
//
// The graph prefers VAAPI hardware decoding (uridecodebin auto-selects the
// va decoder, vapostproc scales and converts in VRAM) and falls back to a
// CPU path (videoscale + videoconvert). Software decoding above 1920x1080
// is refused by default (the fallback guard) because CPU decode at that
// size burns cores and RAM for a wallpaper; --no-fallback-guard overrides.
//
// Frames are published into a framechannel.Channel as borrowed mapped
// buffers: the appsink callback maps the GstBuffer read-only and hands the
// mapping over without copying pixels. The held sample pins the buffer-pool
// slot until the consumer releases the frame.
//
// End of stream is not an error: the graph seeks back to zero so playback
// loops without tearing the pipeline down.
package source
