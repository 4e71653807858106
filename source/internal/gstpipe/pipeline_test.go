package gstpipe

import (
	"strings"
	"testing"
	"unsafe"
)

// TestMapViewAliasesMapping validates that the slice handed to the frame
// channel shares the mapped memory instead of copying it: writes through the
// mapping must be visible in the view, and the backing pointers must match.
func TestMapViewAliasesMapping(t *testing.T) {
	backing := make([]byte, 64)
	view := mapView(unsafe.Pointer(&backing[0]), len(backing))

	if len(view) != len(backing) {
		t.Fatalf("mapView length = %d, want %d", len(view), len(backing))
	}
	if &view[0] != &backing[0] {
		t.Fatal("mapView copied the mapping instead of aliasing it")
	}

	backing[17] = 0xAB
	if view[17] != 0xAB {
		t.Error("write through the mapping not visible in the view")
	}
}

// TestBuildVideoCaps validates the capsfilter string: BGRA at the surface
// extent, with the framerate term present only when an fps cap is set.
func TestBuildVideoCaps(t *testing.T) {
	got := buildVideoCaps(1920, 1080, 0)
	want := "video/x-raw,format=BGRA,width=1920,height=1080"
	if got != want {
		t.Errorf("buildVideoCaps(1920, 1080, 0) = %q, want %q", got, want)
	}

	got = buildVideoCaps(2560, 1440, 30)
	want = "video/x-raw,format=BGRA,width=2560,height=1440,framerate=30/1"
	if got != want {
		t.Errorf("buildVideoCaps(2560, 1440, 30) = %q, want %q", got, want)
	}
}

// TestFileURI validates local path to file:// URI conversion, including the
// escaping uridecodebin requires for paths with spaces.
func TestFileURI(t *testing.T) {
	uri, err := FileURI("/videos/loop.mp4")
	if err != nil {
		t.Fatalf("FileURI() error = %v", err)
	}
	if uri != "file:///videos/loop.mp4" {
		t.Errorf("FileURI(/videos/loop.mp4) = %q", uri)
	}

	uri, err = FileURI("/videos/my wallpaper.mp4")
	if err != nil {
		t.Fatalf("FileURI() error = %v", err)
	}
	if uri != "file:///videos/my%20wallpaper.mp4" {
		t.Errorf("FileURI() did not escape spaces: %q", uri)
	}

	// Relative paths resolve against the working directory.
	uri, err = FileURI("loop.mp4")
	if err != nil {
		t.Fatalf("FileURI() error = %v", err)
	}
	if !strings.HasPrefix(uri, "file:///") || !strings.HasSuffix(uri, "/loop.mp4") {
		t.Errorf("FileURI(loop.mp4) = %q, want absolute file:// URI", uri)
	}
}
