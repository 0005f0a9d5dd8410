package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"gles3render/core"
	"gles3render/renderer"
)

// DebugOverlay collects status fields for the window title.
type DebugOverlay struct {
	lines []string

	frames   int
	fps      int
	lastTick time.Time
}

func (do *DebugOverlay) AddLine(format string, args ...interface{}) {
	do.lines = append(do.lines, fmt.Sprintf(format, args...))
}

func (do *DebugOverlay) Clear() {
	do.lines = do.lines[:0]
}

func (do *DebugOverlay) GetText() string {
	return strings.Join(do.lines, " | ")
}

// Frame counts a frame and reports whether a second has passed since the
// last report.
func (do *DebugOverlay) Frame(now time.Time) bool {
	do.frames++
	if do.lastTick.IsZero() {
		do.lastTick = now
	}
	if now.Sub(do.lastTick) < time.Second {
		return false
	}
	do.fps = do.frames
	do.frames = 0
	do.lastTick = now
	return true
}

// Report refreshes the window title and logs the frame counters.
func (do *DebugOverlay) Report(w *core.Window, info renderer.Info, dn *DayNight, extra string) {
	do.Clear()
	do.AddLine("FPS %d", do.fps)
	do.AddLine("obj %d verts %d draws %d", info.Objects, info.Vertices, info.DrawCalls)
	do.AddLine("mat %d shader %d surf %d", info.MaterialChanges, info.ShaderChanges, info.SurfaceChanges)
	if info.PendingCompiles > 0 {
		do.AddLine("compiling %d", info.PendingCompiles)
	}
	state := "running"
	if !dn.Active {
		state = "paused"
	}
	do.AddLine("%s %s", dn.TimeOfDayStr(), state)
	if extra != "" {
		do.AddLine("%s", extra)
	}
	w.SetTitle("gles3render | " + do.GetText())
	core.Logger().Debug("frame", "n", info.Frame, "fps", do.fps, "objects", info.Objects, "draws", info.DrawCalls)
}

// keyEdges turns held keys into single presses.
type keyEdges map[glfw.Key]bool

// pressed reports whether key went down since the last call.
func (k keyEdges) pressed(w *core.Window, key glfw.Key) bool {
	down := w.IsKeyPressed(key)
	was := k[key]
	k[key] = down
	return down && !was
}
