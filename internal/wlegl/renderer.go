package wlegl

/*
#include "wlegl.h"
*/
import "C"

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/wlvid/wlvid/framechannel"
)

// Renderer draws decoded BGRA frames onto a Surface with GLES2. It keeps one
// persistent texture: Upload refreshes it, Redraw presents it again.
//
// Frames arrive as BGRA but GLES2 only uploads RGBA, so the fragment shader
// swizzles channels instead of the CPU touching pixels.
const vertexShaderSrc = `
    attribute vec2 a_position;
    attribute vec2 a_texCoord;
    varying vec2 v_texCoord;

    void main() {
        gl_Position = vec4(a_position, 0.0, 1.0);
        v_texCoord = a_texCoord;
    }
`

const fragmentShaderSrc = `
    precision mediump float;
    varying vec2 v_texCoord;
    uniform sampler2D u_texture;

    void main() {
        vec4 texel = texture2D(u_texture, v_texCoord);
        gl_FragColor = vec4(texel.b, texel.g, texel.r, texel.a);
    }
`

type Renderer struct {
	surf   *Surface
	window *C.struct_wl_egl_window

	eglDisplay C.EGLDisplay
	eglContext C.EGLContext
	eglSurface C.EGLSurface

	program   C.GLuint
	attribPos C.GLint
	attribTex C.GLint

	tex      C.GLuint
	texW     int
	texH     int
	hasImage bool

	// scratch repacks padded rows; GLES2 has no unpack row length
	scratch []byte

	width  int
	height int
}

// NewRenderer brings up EGL and GLES2 state on s. Must run on the goroutine
// that created s.
func NewRenderer(s *Surface) (*Renderer, error) {
	r := &Renderer{surf: s}
	r.width, r.height = s.Size()

	r.window = C.wl_egl_window_create(s.surface, C.int(r.width), C.int(r.height))
	if r.window == nil {
		return nil, fmt.Errorf("wlegl: failed to create EGL window")
	}

	if err := r.initEGL(); err != nil {
		C.wl_egl_window_destroy(r.window)
		return nil, err
	}

	prog, err := compileProgram(vertexShaderSrc, fragmentShaderSrc)
	if err != nil {
		r.destroyEGL()
		C.wl_egl_window_destroy(r.window)
		return nil, err
	}
	r.program = prog

	posStr := C.CString("a_position")
	defer C.free(unsafe.Pointer(posStr))
	texStr := C.CString("a_texCoord")
	defer C.free(unsafe.Pointer(texStr))
	samplerStr := C.CString("u_texture")
	defer C.free(unsafe.Pointer(samplerStr))

	r.attribPos = C.GLint(C.glGetAttribLocation(prog, posStr))
	r.attribTex = C.GLint(C.glGetAttribLocation(prog, texStr))
	C.glUseProgram(prog)
	C.glUniform1i(C.glGetUniformLocation(prog, samplerStr), 0)

	C.glGenTextures(1, &r.tex)
	C.glBindTexture(C.GL_TEXTURE_2D, r.tex)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_WRAP_S, C.GL_CLAMP_TO_EDGE)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_WRAP_T, C.GL_CLAMP_TO_EDGE)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MIN_FILTER, C.GL_LINEAR)
	C.glTexParameteri(C.GL_TEXTURE_2D, C.GL_TEXTURE_MAG_FILTER, C.GL_LINEAR)

	C.glClearColor(0, 0, 0, 1)
	C.glViewport(0, 0, C.GLsizei(r.width), C.GLsizei(r.height))

	slog.Info("wlegl: renderer initialized",
		"extent", fmt.Sprintf("%dx%d", r.width, r.height),
	)
	return r, nil
}

func (r *Renderer) initEGL() error {
	// WL_EGL_PLATFORM makes EGLNativeDisplayType a wl_display pointer.
	r.eglDisplay = C.eglGetDisplay(C.EGLNativeDisplayType(r.surf.display))
	if r.eglDisplay == nil {
		return fmt.Errorf("wlegl: failed to get EGL display")
	}
	if C.eglInitialize(r.eglDisplay, nil, nil) == C.EGL_FALSE {
		return fmt.Errorf("wlegl: failed to initialize EGL")
	}

	attribs := []C.EGLint{
		C.EGL_SURFACE_TYPE, C.EGL_WINDOW_BIT,
		C.EGL_RED_SIZE, 8,
		C.EGL_GREEN_SIZE, 8,
		C.EGL_BLUE_SIZE, 8,
		C.EGL_ALPHA_SIZE, 8,
		C.EGL_RENDERABLE_TYPE, C.EGL_OPENGL_ES2_BIT,
		C.EGL_NONE,
	}
	var config C.EGLConfig
	var numConfigs C.EGLint
	if C.eglChooseConfig(r.eglDisplay, &attribs[0], &config, 1, &numConfigs) == C.EGL_FALSE || numConfigs == 0 {
		return fmt.Errorf("wlegl: no usable EGL config")
	}

	ctxAttribs := []C.EGLint{
		C.EGL_CONTEXT_CLIENT_VERSION, 2,
		C.EGL_NONE,
	}
	r.eglContext = C.eglCreateContext(r.eglDisplay, config, nil, &ctxAttribs[0])
	if r.eglContext == nil {
		return fmt.Errorf("wlegl: failed to create EGL context")
	}

	r.eglSurface = C.eglCreateWindowSurface(r.eglDisplay, config,
		C.EGLNativeWindowType(r.window), nil)
	if r.eglSurface == nil {
		return fmt.Errorf("wlegl: failed to create EGL surface")
	}

	if C.eglMakeCurrent(r.eglDisplay, r.eglSurface, r.eglSurface, r.eglContext) == C.EGL_FALSE {
		return fmt.Errorf("wlegl: failed to make EGL context current")
	}

	// Frame callbacks pace presentation; a blocking swap would add a second
	// throttle on top.
	C.eglSwapInterval(r.eglDisplay, 0)
	return nil
}

// Upload refreshes the texture from frame and presents it. The pixels are
// fully consumed by the GL upload before Upload returns, so the caller may
// release the frame immediately after.
func (r *Renderer) Upload(frame *framechannel.Frame) error {
	pixels := frame.Pixels
	if frame.Stride != frame.Width*4 {
		pixels = r.repack(frame)
	}

	C.glBindTexture(C.GL_TEXTURE_2D, r.tex)
	if frame.Width != r.texW || frame.Height != r.texH {
		C.glTexImage2D(C.GL_TEXTURE_2D, 0, C.GL_RGBA,
			C.GLsizei(frame.Width), C.GLsizei(frame.Height),
			0, C.GL_RGBA, C.GL_UNSIGNED_BYTE,
			unsafe.Pointer(&pixels[0]))
		r.texW, r.texH = frame.Width, frame.Height
	} else {
		C.glTexSubImage2D(C.GL_TEXTURE_2D, 0, 0, 0,
			C.GLsizei(frame.Width), C.GLsizei(frame.Height),
			C.GL_RGBA, C.GL_UNSIGNED_BYTE,
			unsafe.Pointer(&pixels[0]))
	}
	r.hasImage = true

	r.draw()
	return r.present()
}

// Redraw presents the current texture again, or solid black before the
// first frame arrives.
func (r *Renderer) Redraw() error {
	if !r.hasImage {
		C.glClear(C.GL_COLOR_BUFFER_BIT)
		return r.present()
	}
	r.draw()
	return r.present()
}

// Resize adjusts the EGL window and viewport to a new surface extent. The
// texture keeps its size; frames at the old extent stretch until the decode
// graph is rebuilt.
func (r *Renderer) Resize(width, height int) error {
	r.width, r.height = width, height
	C.wl_egl_window_resize(r.window, C.int(width), C.int(height), 0, 0)
	C.glViewport(0, 0, C.GLsizei(width), C.GLsizei(height))
	return nil
}

func (r *Renderer) draw() {
	C.glClear(C.GL_COLOR_BUFFER_BIT)
	C.glUseProgram(r.program)
	C.glActiveTexture(C.GL_TEXTURE0)
	C.glBindTexture(C.GL_TEXTURE_2D, r.tex)
	drawFullscreenQuad(r.attribPos, r.attribTex)
}

func (r *Renderer) present() error {
	if C.eglSwapBuffers(r.eglDisplay, r.eglSurface) == C.EGL_FALSE {
		return fmt.Errorf("wlegl: eglSwapBuffers failed (0x%x)", uint32(C.eglGetError()))
	}
	return nil
}

// repack copies a frame with padded rows into tightly packed scratch memory.
func (r *Renderer) repack(frame *framechannel.Frame) []byte {
	rowBytes := frame.Width * 4
	need := rowBytes * frame.Height
	if cap(r.scratch) < need {
		r.scratch = make([]byte, need)
	}
	r.scratch = r.scratch[:need]
	for y := 0; y < frame.Height; y++ {
		src := frame.Pixels[y*frame.Stride : y*frame.Stride+rowBytes]
		copy(r.scratch[y*rowBytes:], src)
	}
	return r.scratch
}

// Destroy releases GL and EGL state. Must run before Surface.Destroy.
func (r *Renderer) Destroy() {
	if r.tex != 0 {
		C.glDeleteTextures(1, &r.tex)
		r.tex = 0
	}
	if r.program != 0 {
		C.glDeleteProgram(r.program)
		r.program = 0
	}
	r.destroyEGL()
	if r.window != nil {
		C.wl_egl_window_destroy(r.window)
		r.window = nil
	}
	slog.Debug("wlegl: renderer destroyed")
}

func (r *Renderer) destroyEGL() {
	if r.eglDisplay == nil {
		return
	}
	C.eglMakeCurrent(r.eglDisplay, nil, nil, nil)
	if r.eglSurface != nil {
		C.eglDestroySurface(r.eglDisplay, r.eglSurface)
		r.eglSurface = nil
	}
	if r.eglContext != nil {
		C.eglDestroyContext(r.eglDisplay, r.eglContext)
		r.eglContext = nil
	}
	C.eglTerminate(r.eglDisplay)
	r.eglDisplay = nil
}

// drawFullscreenQuad draws two triangles covering the viewport. Texture v
// is flipped: frame row 0 is the top of the image.
func drawFullscreenQuad(attribPos, attribTex C.GLint) {
	vertices := []C.GLfloat{
		// x, y, u, v
		-1, -1, 0, 1,
		1, -1, 1, 1,
		-1, 1, 0, 0,
		1, -1, 1, 1,
		1, 1, 1, 0,
		-1, 1, 0, 0,
	}

	C.glEnableVertexAttribArray(C.GLuint(attribPos))
	C.glEnableVertexAttribArray(C.GLuint(attribTex))

	C.glVertexAttribPointer(C.GLuint(attribPos), 2, C.GL_FLOAT, C.GL_FALSE,
		4*4, unsafe.Pointer(&vertices[0]))
	C.glVertexAttribPointer(C.GLuint(attribTex), 2, C.GL_FLOAT, C.GL_FALSE,
		4*4, unsafe.Pointer(uintptr(unsafe.Pointer(&vertices[0]))+8))

	C.glDrawArrays(C.GL_TRIANGLES, 0, 6)

	C.glDisableVertexAttribArray(C.GLuint(attribPos))
	C.glDisableVertexAttribArray(C.GLuint(attribTex))
}

func compileShader(src string, shaderType C.GLenum) (C.GLuint, error) {
	csrc := C.CString(src)
	defer C.free(unsafe.Pointer(csrc))

	shader := C.glCreateShader(shaderType)
	C.glShaderSource(shader, 1, &csrc, nil)
	C.glCompileShader(shader)

	var status C.GLint
	C.glGetShaderiv(shader, C.GL_COMPILE_STATUS, &status)
	if status == C.GL_FALSE {
		var logLen C.GLint
		C.glGetShaderiv(shader, C.GL_INFO_LOG_LENGTH, &logLen)
		infoLog := make([]byte, int(logLen)+1)
		C.glGetShaderInfoLog(shader, logLen, nil, (*C.GLchar)(unsafe.Pointer(&infoLog[0])))
		C.glDeleteShader(shader)
		return 0, fmt.Errorf("wlegl: shader compile error: %s", infoLog)
	}
	return shader, nil
}

func compileProgram(vsrc, fsrc string) (C.GLuint, error) {
	vs, err := compileShader(vsrc, C.GL_VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fsrc, C.GL_FRAGMENT_SHADER)
	if err != nil {
		C.glDeleteShader(vs)
		return 0, err
	}

	prog := C.glCreateProgram()
	C.glAttachShader(prog, vs)
	C.glAttachShader(prog, fs)
	C.glLinkProgram(prog)

	var status C.GLint
	C.glGetProgramiv(prog, C.GL_LINK_STATUS, &status)
	if status == C.GL_FALSE {
		var logLen C.GLint
		C.glGetProgramiv(prog, C.GL_INFO_LOG_LENGTH, &logLen)
		infoLog := make([]byte, int(logLen)+1)
		C.glGetProgramInfoLog(prog, logLen, nil, (*C.GLchar)(unsafe.Pointer(&infoLog[0])))
		C.glDeleteProgram(prog)
		C.glDeleteShader(vs)
		C.glDeleteShader(fs)
		return 0, fmt.Errorf("wlegl: program link error: %s", infoLog)
	}

	C.glDeleteShader(vs)
	C.glDeleteShader(fs)
	return prog, nil
}
