// Package wlegl owns the Wayland side of the wallpaper: a layer-shell
// surface on the background layer, an EGL/GLES2 renderer on top of it, and
// the event loop that turns compositor frame callbacks into render ticks.
//
// Everything here is thread-confined: New, Run, and the renderer must be
// used from one goroutine, which New pins to its OS thread for the lifetime
// of the EGL context.
package wlegl

/*
#cgo CFLAGS: -DWL_EGL_PLATFORM
#cgo LDFLAGS: -lwayland-client -lwayland-egl -lEGL -lGLESv2
#include "wlegl.h"
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/cgo"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wlvid/wlvid/internal/toplevel"
)

// ErrProtocol means the compositor lacks a protocol this program needs,
// zwlr_layer_shell_v1 in practice. GNOME's Mutter is the usual culprit.
var ErrProtocol = errors.New("wlegl: compositor does not support the layer-shell protocol")

// ErrClosed means the compositor closed the layer surface (output unplugged,
// session ending). Not a failure: the process should exit cleanly.
var ErrClosed = errors.New("wlegl: layer surface closed by compositor")

// fallback extent when the compositor leaves sizing to us (sends 0x0)
const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

// Surface is a configured background layer surface plus its event loop.
type Surface struct {
	display     *C.struct_wl_display
	registry    *C.struct_wl_registry
	compositor  *C.struct_wl_compositor
	surface     *C.struct_wl_surface
	layerShell  *C.struct_zwlr_layer_shell_v1
	layerSurf   *C.struct_zwlr_layer_surface_v1
	toplevelMgr *C.struct_zwlr_foreign_toplevel_manager_v1

	handle cgo.Handle

	width  int
	height int

	// event-loop state, touched only on the pinned thread
	configured   bool
	closedByComp bool
	frameDue     bool
	resizeW      int
	resizeH      int
	resizePend   bool

	windows      *toplevel.Tracker
	windowsDirty bool

	// OnResize is invoked from Run when the compositor reconfigures the
	// surface to a new extent. Set before Run.
	OnResize func(width, height int) error

	// OnWindows is invoked from Run when the aggregate window state changes:
	// whether a focused window is fullscreen, and whether any window is
	// focused or maximized. Set before Run.
	OnWindows func(fullscreenActive, windowActive bool) error
}

// New connects to the compositor, binds the globals, and brings up a
// configured layer surface anchored to all four edges of the default output.
// The calling goroutine is pinned to its OS thread; every later call on the
// Surface and its renderer must come from the same goroutine.
func New(namespace string) (*Surface, error) {
	runtime.LockOSThread()

	s := &Surface{windows: toplevel.NewTracker()}
	s.handle = cgo.NewHandle(s)

	s.display = C.wl_display_connect(nil)
	if s.display == nil {
		s.handle.Delete()
		return nil, fmt.Errorf("wlegl: failed to connect to Wayland display (is WAYLAND_DISPLAY set?)")
	}

	s.registry = C.wl_display_get_registry(s.display)
	if s.registry == nil {
		s.teardown()
		return nil, fmt.Errorf("wlegl: failed to get registry")
	}
	C.wl_registry_add_listener(s.registry, C.wlvid_registry_listener(), unsafe.Pointer(uintptr(s.handle)))
	C.wl_display_roundtrip(s.display)

	if s.compositor == nil {
		s.teardown()
		return nil, fmt.Errorf("wlegl: compositor did not advertise wl_compositor")
	}
	if s.layerShell == nil {
		s.teardown()
		return nil, ErrProtocol
	}

	s.surface = C.wl_compositor_create_surface(s.compositor)
	if s.surface == nil {
		s.teardown()
		return nil, fmt.Errorf("wlegl: failed to create surface")
	}

	if err := s.setupLayerSurface(namespace); err != nil {
		s.teardown()
		return nil, err
	}

	slog.Info("wlegl: layer surface configured",
		"extent", fmt.Sprintf("%dx%d", s.width, s.height),
	)
	return s, nil
}

func (s *Surface) setupLayerSurface(namespace string) error {
	ns := C.CString(namespace)
	defer C.free(unsafe.Pointer(ns))

	s.layerSurf = C.zwlr_layer_shell_v1_get_layer_surface(
		s.layerShell, s.surface, nil,
		C.ZWLR_LAYER_SHELL_V1_LAYER_BACKGROUND, ns,
	)
	if s.layerSurf == nil {
		return fmt.Errorf("wlegl: failed to create layer surface")
	}
	C.zwlr_layer_surface_v1_add_listener(s.layerSurf,
		C.wlvid_layer_surface_listener(), unsafe.Pointer(uintptr(s.handle)))

	// Cover the whole output: anchored to every edge, size left to the
	// compositor, drawn under everything, invisible to the keyboard.
	C.zwlr_layer_surface_v1_set_anchor(s.layerSurf,
		C.ZWLR_LAYER_SURFACE_V1_ANCHOR_TOP|
			C.ZWLR_LAYER_SURFACE_V1_ANCHOR_BOTTOM|
			C.ZWLR_LAYER_SURFACE_V1_ANCHOR_LEFT|
			C.ZWLR_LAYER_SURFACE_V1_ANCHOR_RIGHT)
	C.zwlr_layer_surface_v1_set_size(s.layerSurf, 0, 0)
	C.zwlr_layer_surface_v1_set_exclusive_zone(s.layerSurf, -1)
	C.zwlr_layer_surface_v1_set_keyboard_interactivity(s.layerSurf,
		C.ZWLR_LAYER_SURFACE_V1_KEYBOARD_INTERACTIVITY_NONE)
	C.zwlr_layer_surface_v1_set_margin(s.layerSurf, 0, 0, 0, 0)

	C.wl_surface_commit(s.surface)

	// The initial configure arrives as an event; pump the display until it
	// does. Bounded so a wedged compositor cannot hang startup.
	deadline := time.Now().Add(5 * time.Second)
	for !s.configured {
		if time.Now().After(deadline) {
			return fmt.Errorf("wlegl: timeout waiting for layer surface configure")
		}
		if C.wl_display_dispatch(s.display) < 0 {
			return fmt.Errorf("wlegl: display error while waiting for configure")
		}
		if s.closedByComp {
			return ErrClosed
		}
	}
	return nil
}

//export goHandleGlobal
func goHandleGlobal(handle C.uintptr_t, registry *C.struct_wl_registry, name C.uint32_t, iface *C.char, version C.uint32_t) {
	s := cgo.Handle(uintptr(handle)).Value().(*Surface)

	switch C.GoString(iface) {
	case "wl_compositor":
		s.compositor = (*C.struct_wl_compositor)(C.wl_registry_bind(
			registry, name, &C.wl_compositor_interface, 1))
		slog.Debug("wlegl: bound wl_compositor")
	case "zwlr_layer_shell_v1":
		s.layerShell = (*C.struct_zwlr_layer_shell_v1)(C.wl_registry_bind(
			registry, name, &C.zwlr_layer_shell_v1_interface, 1))
		slog.Debug("wlegl: bound zwlr_layer_shell_v1")
	case "zwlr_foreign_toplevel_manager_v1":
		bind := version
		if bind > 3 {
			bind = 3
		}
		s.toplevelMgr = (*C.struct_zwlr_foreign_toplevel_manager_v1)(C.wl_registry_bind(
			registry, name, &C.zwlr_foreign_toplevel_manager_v1_interface, bind))
		C.zwlr_foreign_toplevel_manager_v1_add_listener(s.toplevelMgr,
			C.wlvid_toplevel_manager_listener(), unsafe.Pointer(uintptr(s.handle)))
		slog.Debug("wlegl: bound zwlr_foreign_toplevel_manager_v1", "version", uint32(bind))
	}
}

//export goHandleToplevelState
func goHandleToplevelState(handle C.uintptr_t, tl *C.struct_zwlr_foreign_toplevel_handle_v1, states *C.uint32_t, count C.size_t) {
	s := cgo.Handle(uintptr(handle)).Value().(*Surface)

	var flags []uint32
	if count > 0 {
		flags = unsafe.Slice((*uint32)(unsafe.Pointer(states)), int(count))
	}
	if s.windows.Update(uintptr(unsafe.Pointer(tl)), flags) {
		s.windowsDirty = true
	}
}

//export goHandleToplevelClosed
func goHandleToplevelClosed(handle C.uintptr_t, tl *C.struct_zwlr_foreign_toplevel_handle_v1) {
	s := cgo.Handle(uintptr(handle)).Value().(*Surface)
	if s.windows.Remove(uintptr(unsafe.Pointer(tl))) {
		s.windowsDirty = true
	}
}

//export goHandleLayerConfigure
func goHandleLayerConfigure(handle C.uintptr_t, surface *C.struct_zwlr_layer_surface_v1, serial, width, height C.uint32_t) {
	s := cgo.Handle(uintptr(handle)).Value().(*Surface)

	C.zwlr_layer_surface_v1_ack_configure(surface, serial)

	w, h := int(width), int(height)
	if w == 0 || h == 0 {
		w, h = defaultWidth, defaultHeight
	}

	if !s.configured {
		s.width, s.height = w, h
		s.configured = true
		return
	}
	if w != s.width || h != s.height {
		s.resizeW, s.resizeH = w, h
		s.resizePend = true
	}
}

//export goHandleLayerClosed
func goHandleLayerClosed(handle C.uintptr_t) {
	s := cgo.Handle(uintptr(handle)).Value().(*Surface)
	slog.Info("wlegl: layer surface closed by compositor")
	s.closedByComp = true
}

//export goHandleFrameDone
func goHandleFrameDone(handle C.uintptr_t, _ C.uint32_t) {
	s := cgo.Handle(uintptr(handle)).Value().(*Surface)
	s.frameDue = true
}

// Size returns the configured surface extent.
func (s *Surface) Size() (int, int) {
	return s.width, s.height
}

// WindowTracking reports whether the compositor advertises the
// foreign-toplevel protocol, without which OnWindows never fires.
func (s *Surface) WindowTracking() bool {
	return s.toplevelMgr != nil
}

// requestFrame asks the compositor for the next frame callback. Takes effect
// on the next commit (an eglSwapBuffers counts).
func (s *Surface) requestFrame() {
	C.wlvid_request_frame(s.surface, C.uintptr_t(s.handle))
}

// Run pumps Wayland events and calls tick once per compositor frame
// callback. tick reports whether it presented; when it did not, Run commits
// the surface bare so the requested callback still reaches the compositor.
//
// Returns nil when ctx is cancelled, ErrClosed when the compositor closes
// the surface, or the first error from tick or the display connection.
func (s *Surface) Run(ctx context.Context, tick func(now time.Time) (presented bool, err error)) error {
	fd := int32(C.wl_display_get_fd(s.display))

	// Prime the callback cycle. Frame callbacks only fire for mapped
	// surfaces that keep committing, so the first tick is ours to start.
	s.frameDue = true

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if s.closedByComp {
			return ErrClosed
		}

		if s.resizePend {
			s.resizePend = false
			s.width, s.height = s.resizeW, s.resizeH
			if s.OnResize != nil {
				if err := s.OnResize(s.width, s.height); err != nil {
					return err
				}
			}
		}

		if s.windowsDirty {
			s.windowsDirty = false
			if s.OnWindows != nil {
				err := s.OnWindows(s.windows.FullscreenActive(), s.windows.WindowActive())
				if err != nil {
					return err
				}
			}
		}

		if s.frameDue {
			s.frameDue = false
			s.requestFrame()
			presented, err := tick(time.Now())
			if err != nil {
				return err
			}
			if !presented {
				C.wl_surface_commit(s.surface)
			}
		}

		// Read with the prepare/read protocol so a future second event
		// thread cannot race the socket.
		for C.wl_display_prepare_read(s.display) != 0 {
			if C.wl_display_dispatch_pending(s.display) < 0 {
				return fmt.Errorf("wlegl: display dispatch failed")
			}
		}
		C.wl_display_flush(s.display)

		fds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 50)
		if err != nil && !errors.Is(err, unix.EINTR) {
			C.wl_display_cancel_read(s.display)
			return fmt.Errorf("wlegl: poll: %w", err)
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			if C.wl_display_read_events(s.display) < 0 {
				return fmt.Errorf("wlegl: display connection lost")
			}
		} else {
			C.wl_display_cancel_read(s.display)
		}
		if C.wl_display_dispatch_pending(s.display) < 0 {
			return fmt.Errorf("wlegl: display dispatch failed")
		}
	}
}

// Destroy tears the Wayland state down. Call after the renderer has been
// destroyed, and always after the decode graph has stopped.
func (s *Surface) Destroy() {
	s.teardown()
}

func (s *Surface) teardown() {
	if s.layerSurf != nil {
		C.zwlr_layer_surface_v1_destroy(s.layerSurf)
		s.layerSurf = nil
	}
	if s.surface != nil {
		C.wl_surface_destroy(s.surface)
		s.surface = nil
	}
	if s.toplevelMgr != nil {
		C.zwlr_foreign_toplevel_manager_v1_stop(s.toplevelMgr)
		C.zwlr_foreign_toplevel_manager_v1_destroy(s.toplevelMgr)
		s.toplevelMgr = nil
	}
	if s.layerShell != nil {
		// Plain proxy destroy: the destroy request exists only since
		// protocol version 3 and we bind version 1.
		C.wl_proxy_destroy((*C.struct_wl_proxy)(unsafe.Pointer(s.layerShell)))
		s.layerShell = nil
	}
	if s.compositor != nil {
		C.wl_compositor_destroy(s.compositor)
		s.compositor = nil
	}
	if s.registry != nil {
		C.wl_registry_destroy(s.registry)
		s.registry = nil
	}
	if s.display != nil {
		C.wl_display_disconnect(s.display)
		s.display = nil
	}
	s.handle.Delete()
}
