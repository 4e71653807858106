// Package gstpipe builds the GStreamer decode graph behind the source
// package: uridecodebin feeding a video branch that ends in an appsink, plus
// an always-present audio branch that provides the pipeline clock.
package gstpipe

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Config describes one decode graph.
type Config struct {
	URI    string
	Width  int
	Height int

	// Hardware selects the VAAPI branch (vapostproc scales and converts in
	// VRAM); otherwise videoscale+videoconvert run on the CPU.
	Hardware bool

	// Volume in 0.0-1.0. The audio branch is always built so the audio sink
	// can provide the pipeline clock; muted playback just sets volume 0.
	Volume float64

	// FPS caps the branch framerate via videorate. 0 = source rate.
	FPS int
}

// Graph holds references to the live pipeline elements.
type Graph struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
	Volume   *gst.Element
}

// interior queue clamps applied through the deep-element-added hook, keeping
// uridecodebin's internal buffering from holding dozens of decoded frames
const (
	clampMultiqueueBuffers = 2
	clampQueueBytes        = 20 * 1024 * 1024
)

// FileURI converts a local path into the file:// URI uridecodebin expects.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("gstpipe: cannot resolve %q: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: abs}
	return u.String(), nil
}

// ProbeHardware reports whether the VAAPI postprocessor is available. Used at
// construction time to pick the decode branch.
func ProbeHardware() bool {
	gst.Init(nil)
	elem, err := gst.NewElement("vapostproc")
	if err != nil {
		return false
	}
	elem.SetState(gst.StateNull)
	return true
}

// CheckAvailable verifies GStreamer itself works by instantiating a trivial
// element. Fail-fast check for New.
func CheckAvailable() error {
	gst.Init(nil)
	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("gstpipe: GStreamer not available: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// Build creates and wires the decode graph. The pipeline is returned in NULL
// state; the caller sets callbacks on the appsink and moves it to PLAYING.
//
// Video branch:
//
//	uridecodebin → queue → [vapostproc | videoscale → videoconvert] →
//	videorate → capsfilter(BGRA,WxH[,fps]) → appsink
//
// Audio branch (always present, clock provider):
//
//	uridecodebin → queue → audioconvert → audioresample → volume → sink
//
// A failure to build the audio sink is non-fatal: the branch falls back to
// fakesink so the video keeps its clock and pad wiring.
func Build(cfg Config) (*Graph, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create pipeline: %w", err)
	}

	installQueueClamp(pipeline)

	decode, err := gst.NewElement("uridecodebin")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create uridecodebin: %w", err)
	}
	decode.SetProperty("uri", cfg.URI)

	// Video branch head. Two buffers is enough headroom for the appsink to
	// lag one frame without stalling the decoder.
	vqueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create queue: %w", err)
	}
	vqueue.SetProperty("max-size-buffers", 2)
	vqueue.SetProperty("max-size-bytes", 0)
	vqueue.SetProperty("max-size-time", uint64(0))

	var scale []*gst.Element
	if cfg.Hardware {
		post, err := gst.NewElement("vapostproc")
		if err != nil {
			return nil, fmt.Errorf("gstpipe: failed to create vapostproc: %w", err)
		}
		scale = []*gst.Element{post}
	} else {
		vscale, err := gst.NewElement("videoscale")
		if err != nil {
			return nil, fmt.Errorf("gstpipe: failed to create videoscale: %w", err)
		}
		vconvert, err := gst.NewElement("videoconvert")
		if err != nil {
			return nil, fmt.Errorf("gstpipe: failed to create videoconvert: %w", err)
		}
		vconvert.SetProperty("n-threads", 0)
		scale = []*gst.Element{vscale, vconvert}
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildVideoCaps(cfg.Width, cfg.Height, cfg.FPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create appsink: %w", err)
	}
	appsink.SetProperty("max-buffers", 2)
	appsink.SetProperty("drop", true)
	appsink.SetProperty("sync", true)

	video := append([]*gst.Element{vqueue}, scale...)
	video = append(video, videorate, capsfilter, appsink.Element)

	audio, volume, err := buildAudioBranch(cfg.Volume)
	if err != nil {
		return nil, err
	}

	elements := append([]*gst.Element{decode}, video...)
	elements = append(elements, audio...)
	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("gstpipe: failed to add elements: %w", err)
	}

	if err := gst.ElementLinkMany(video...); err != nil {
		return nil, fmt.Errorf("gstpipe: failed to link video branch: %w", err)
	}
	if err := gst.ElementLinkMany(audio...); err != nil {
		return nil, fmt.Errorf("gstpipe: failed to link audio branch: %w", err)
	}

	wirePads(decode, vqueue, audio[0])

	slog.Info("gstpipe: decode graph built",
		"hardware", cfg.Hardware,
		"extent", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps_cap", cfg.FPS,
	)

	return &Graph{
		Pipeline: pipeline,
		AppSink:  appsink,
		Volume:   volume,
	}, nil
}

// buildAudioBranch constructs the audio chain. autoaudiosink failure degrades
// to fakesink (sync still on) so the pipeline keeps a clock even on machines
// with no audio server.
func buildAudioBranch(vol float64) ([]*gst.Element, *gst.Element, error) {
	aqueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, nil, fmt.Errorf("gstpipe: failed to create audio queue: %w", err)
	}
	convert, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("gstpipe: failed to create audioconvert: %w", err)
	}
	resample, err := gst.NewElement("audioresample")
	if err != nil {
		return nil, nil, fmt.Errorf("gstpipe: failed to create audioresample: %w", err)
	}
	volume, err := gst.NewElement("volume")
	if err != nil {
		return nil, nil, fmt.Errorf("gstpipe: failed to create volume: %w", err)
	}
	volume.SetProperty("volume", vol)

	sink, err := gst.NewElement("autoaudiosink")
	if err != nil {
		slog.Warn("gstpipe: autoaudiosink unavailable, audio muted", "error", err)
		sink, err = gst.NewElement("fakesink")
		if err != nil {
			return nil, nil, fmt.Errorf("gstpipe: failed to create audio sink: %w", err)
		}
	}
	sink.SetProperty("sync", true)

	return []*gst.Element{aqueue, convert, resample, volume, sink}, volume, nil
}

// installQueueClamp hooks deep-element-added to clamp the queues uridecodebin
// creates internally. Without this the demuxer's multiqueue buffers seconds
// of decoded video, defeating the latest-wins handoff.
func installQueueClamp(pipeline *gst.Pipeline) {
	pipeline.Connect("deep-element-added", func(_ *gst.Pipeline, _ *gst.Bin, elem *gst.Element) {
		factory := elem.GetFactory()
		if factory == nil {
			return
		}
		switch factory.GetName() {
		case "multiqueue":
			elem.SetProperty("max-size-buffers", clampMultiqueueBuffers)
			elem.SetProperty("max-size-time", uint64(0))
		case "queue":
			elem.SetProperty("max-size-bytes", clampQueueBytes)
		}
	})
}

// wirePads connects uridecodebin's dynamic pads to the branch heads by caps
// media type. Unlinkable pads (subtitles, a second video track) are ignored.
func wirePads(decode, videoHead, audioHead *gst.Element) {
	decode.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		caps := pad.GetCurrentCaps()
		if caps == nil {
			return
		}
		structure := caps.GetStructureAt(0)
		if structure == nil {
			return
		}
		name := structure.Name()

		var target *gst.Element
		switch {
		case len(name) >= 5 && name[:5] == "video":
			target = videoHead
		case len(name) >= 5 && name[:5] == "audio":
			target = audioHead
		default:
			slog.Debug("gstpipe: ignoring pad", "caps", name)
			return
		}

		sinkPad := target.GetStaticPad("sink")
		if sinkPad == nil || sinkPad.IsLinked() {
			return
		}
		if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
			slog.Error("gstpipe: failed to link decoded pad",
				"caps", name,
				"ret", ret,
			)
			return
		}
		slog.Debug("gstpipe: decoded pad linked", "caps", name)
	})
}

// buildVideoCaps builds the capsfilter string that fixes the branch output:
// packed BGRA at the surface extent, optionally capped to fps frames/second.
func buildVideoCaps(width, height, fps int) string {
	if fps > 0 {
		return fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d,framerate=%d/1",
			width, height, fps)
	}
	return fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d", width, height)
}
