package core

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	// GL contexts are bound to the OS thread that made them current.
	runtime.LockOSThread()
}

// Window owns the host window and its GL 3.3 core context. Window creation is
// a host concern; the renderer only assumes a current context.
type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string
}

type WindowConfig struct {
	Width      int
	Height     int
	Title      string
	Resizable  bool
	VSync      bool
	Fullscreen bool
	Debug      bool
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "gles3render",
		Resizable: true,
		VSync:     true,
	}
}

func contextHints(debug bool) {
	glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLAPI)
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLDebugContext, boolToInt(debug))
}

// NewWindow creates the window and makes its context current on the calling
// (locked) thread.
func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	contextHints(config.Debug)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	var monitor *glfw.Monitor
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	handle.MakeContextCurrent()
	if config.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	window := &Window{
		Handle: handle,
		Width:  config.Width,
		Height: config.Height,
		Title:  config.Title,
	}
	handle.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		window.Width = width
		window.Height = height
	})
	window.Width, window.Height = handle.GetFramebufferSize()
	return window, nil
}

// SharedContext is a hidden window whose context shares objects with the
// main one. The async shader compiler makes it current on its own thread.
type SharedContext struct {
	handle *glfw.Window
}

// NewSharedContext must be called on the main thread.
func (w *Window) NewSharedContext() (*SharedContext, error) {
	contextHints(false)
	glfw.WindowHint(glfw.Visible, glfw.False)
	handle, err := glfw.CreateWindow(1, 1, w.Title+" (compile)", nil, w.Handle)
	glfw.WindowHint(glfw.Visible, glfw.True)
	if err != nil {
		return nil, fmt.Errorf("shared context: %w", err)
	}
	// CreateWindow leaves the previous context current; keep the main one.
	w.Handle.MakeContextCurrent()
	return &SharedContext{handle: handle}, nil
}

// MakeCurrent binds the shared context to the calling thread, which must be
// locked with runtime.LockOSThread.
func (s *SharedContext) MakeCurrent() {
	s.handle.MakeContextCurrent()
}

// Release detaches the context from the calling thread.
func (s *SharedContext) Release() {
	glfw.DetachCurrentContext()
}

// Destroy must be called on the main thread.
func (s *SharedContext) Destroy() {
	s.handle.Destroy()
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

func (w *Window) GetFramebufferSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func (w *Window) IsKeyPressed(key glfw.Key) bool {
	return w.Handle.GetKey(key) == glfw.Press
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}
