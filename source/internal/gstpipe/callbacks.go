package gstpipe

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/wlvid/wlvid/framechannel"
)

// Publisher carries the state the appsink callback needs: the destination
// channel, the negotiated extent, and atomic counters owned by the caller.
type Publisher struct {
	Channel *framechannel.Channel
	Width   int
	Height  int

	Frames *uint64 // atomic
	Bytes  *uint64 // atomic
}

// OnNewSample runs on a GStreamer streaming thread for every decoded frame.
//
// The buffer is mapped read-only and handed to the channel as a borrowed
// frame: no pixel copy. The closure keeps the sample reachable, so the
// buffer-pool slot stays pinned until the consumer (or an overwrite in the
// channel) releases the frame and the mapping is undone.
func OnNewSample(sink *app.Sink, pub *Publisher) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// One bad sample should not kill playback.
		slog.Warn("gstpipe: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstpipe: sample carries no buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo.Size() == 0 {
		buffer.Unmap()
		slog.Warn("gstpipe: empty buffer received, skipping frame")
		return gst.FlowOK
	}
	// A view of the mapped memory, not a copy (MapInfo.Bytes would copy the
	// whole frame). Valid until the Unmap in the release closure.
	pixels := mapView(mapInfo.Data(), int(mapInfo.Size()))

	// The capsfilter fixes the extent, but the pool may pad rows; derive the
	// pitch from the mapped size rather than assuming width*4.
	stride := len(pixels) / pub.Height

	atomic.AddUint64(pub.Frames, 1)
	atomic.AddUint64(pub.Bytes, uint64(len(pixels)))

	pts := buffer.PresentationTimestamp()
	frame := framechannel.NewFrame(pub.Width, pub.Height, stride, pts, pixels, func() {
		buffer.Unmap()
		// The sample reference pins the buffer-pool slot until here.
		runtime.KeepAlive(sample)
	})

	pub.Channel.Publish(frame)
	return gst.FlowOK
}

// mapView reinterprets a mapped region as a byte slice sharing the same
// memory. The caller must not use the slice after the region is unmapped.
func mapView(data unsafe.Pointer, size int) []byte {
	return unsafe.Slice((*byte)(data), size)
}
