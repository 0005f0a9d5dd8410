// Command demo renders a small town square with a day and night cycle,
// optionally with an imported model and a hot reloaded material shader.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/glfw/v3.3/glfw"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/storage"
	gmath "gles3render/math"
	"gles3render/renderer"
	"gles3render/scene"
)

func main() {
	settingsPath := flag.String("settings", "render.toml", "project settings (TOML)")
	modelPath := flag.String("model", "", "glTF, GLB or OBJ model placed in the square")
	shaderPath := flag.String("shader", "", "material shader file for the fountain, reloaded on change")
	flag.Parse()

	if err := run(*settingsPath, *modelPath, *shaderPath); err != nil {
		core.LogError("demo: %v", err)
		os.Exit(1)
	}
}

func loadSettings(path string) (*core.Settings, error) {
	set, err := core.LoadSettings(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogInfo("no %s, using defaults", path)
		set, err = core.NewSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	if !set.Has(storage.KeyGenerateWireframes) {
		set.Set(storage.KeyGenerateWireframes, true)
	}
	return set, nil
}

func loadModel(path string) (*scene.Model, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return scene.LoadGLTF(path)
	case ".obj":
		return scene.LoadOBJ(path)
	}
	return nil, fmt.Errorf("model %q: unknown format", path)
}

func run(settingsPath, modelPath, shaderPath string) error {
	settings, err := loadSettings(settingsPath)
	if err != nil {
		return err
	}

	cfg := core.DefaultWindowConfig()
	cfg.Title = "gles3render"
	window, err := core.NewWindow(cfg)
	if err != nil {
		return err
	}
	defer window.Destroy()

	dev, err := glapi.NewNative()
	if err != nil {
		return err
	}
	opts := renderer.Options{WorkerDevice: dev}
	if settings.Int(storage.KeyCompileMode, 0) != 0 {
		shared, err := window.NewSharedContext()
		if err != nil {
			core.LogWarn("no shared context, async compiles need parallel compile: %v", err)
		} else {
			defer shared.Destroy()
			opts.Shared = shared
		}
	}

	ctx, err := renderer.New(dev, settings, opts)
	if err != nil {
		return err
	}
	defer ctx.Finalize()
	feat := ctx.Features()
	core.LogInfo("gl: %s | %s | %s", feat.Vendor, feat.Renderer, feat.Version)

	st := ctx.Storage()
	format := storage.CompressDefault
	t, err := buildTown(st, format)
	if err != nil {
		return err
	}
	instances := t.instances

	if modelPath != "" {
		m, err := loadModel(modelPath)
		if err != nil {
			return err
		}
		offset := gmath.Mat4Translation(gmath.NewVec3(0, 0, 7))
		for i := range m.Nodes {
			m.Nodes[i].Transform = m.Nodes[i].Transform.Mul(offset)
		}
		added, err := m.Upload(st, format)
		if err != nil {
			return err
		}
		core.LogInfo("model %s: %d meshes, %d instances", filepath.Base(modelPath), len(m.Meshes), len(added))
		instances = append(instances, added...)
	}

	if shaderPath != "" {
		sh := st.ShaderCreate()
		if err := ctx.WatchShaderFile(sh, shaderPath); err != nil {
			return err
		}
		st.MaterialSetShader(t.fountain, sh)
	}

	env := st.EnvironmentCreate()
	tm := st.Environment(env).Tonemap
	tm.Mode = storage.TonemapACES
	tm.AutoExposure = true
	st.EnvironmentSetTonemap(env, tm)
	glow := st.Environment(env).Glow
	glow.Enabled = true
	glow.BicubicUpscale = true
	st.EnvironmentSetGlow(env, glow)
	ssao := st.Environment(env).SSAO
	ssao.Enabled = true
	st.EnvironmentSetSSAO(env, ssao)

	dn, err := NewDayNight(st, env)
	if err != nil {
		return err
	}
	lights := append([]ecs.Entity{dn.SunInstance()}, t.lights...)

	rt := st.RenderTargetCreate()
	st.RenderTargetSetUseFXAA(rt, true)

	cam := scene.NewOrbitCamera(gmath.NewVec3(0, 1.5, 0), 24, math32.Pi/3, float32(cfg.Width)/float32(cfg.Height))

	core.LogInfo("keys: arrows orbit, W/S zoom, N pause day, ,/. day speed, Z wireframe, O ssao, B glow, E auto exposure, [/] exposure, Esc quit")

	var (
		keys      = keyEdges{}
		hud       = &DebugOverlay{}
		visible   []ecs.Entity
		wireframe bool
		width     int
		height    int
		start     = time.Now()
		last      = start
	)
	for !window.ShouldClose() {
		window.PollEvents()
		if window.IsKeyPressed(glfw.KeyEscape) {
			break
		}
		now := time.Now()
		dt := min(float32(now.Sub(last).Seconds()), 0.05)
		last = now

		w, h := window.GetFramebufferSize()
		if w <= 0 || h <= 0 {
			continue
		}
		if w != width || h != height {
			if err := st.RenderTargetSetSize(rt, w, h); err != nil {
				return err
			}
			cam.SetAspect(w, h)
			width, height = w, h
		}

		handleCamera(window, cam, dt)
		if keys.pressed(window, glfw.KeyZ) {
			wireframe = !wireframe
		}
		handleEnvironment(window, keys, st, env, dt)
		handleDayNight(window, keys, dn, dt)

		dn.Update(dt)
		if err := dn.Apply(); err != nil {
			core.LogWarn("day/night: %v", err)
		}

		visible = scene.Cull(st, cam.ViewProjection(), instances, visible[:0])
		args := renderer.NewFrameArgs(rt, cam.View())
		args.Environment = env
		args.Instances = visible
		args.Lights = lights
		args.Time = float32(now.Sub(start).Seconds())
		args.Delta = dt
		args.Wireframe = wireframe
		if err := ctx.Draw(args); err != nil {
			return err
		}
		if err := ctx.BlitToScreen(rt, w, h); err != nil {
			return err
		}
		window.SwapBuffers()
		if err := ctx.CheckContextLost(); err != nil {
			return err
		}

		if hud.Frame(now) {
			extra := fmt.Sprintf("culled %d/%d", len(instances)-len(visible), len(instances))
			if wireframe {
				extra += " [wire]"
			}
			hud.Report(window, ctx.Info(), dn, extra)
		}
	}
	return nil
}

func handleCamera(w *core.Window, cam *scene.OrbitCamera, dt float32) {
	const turn, zoom = 1.5, 12
	var yaw, pitch float32
	if w.IsKeyPressed(glfw.KeyLeft) {
		yaw -= turn * dt
	}
	if w.IsKeyPressed(glfw.KeyRight) {
		yaw += turn * dt
	}
	if w.IsKeyPressed(glfw.KeyUp) {
		pitch += turn * dt
	}
	if w.IsKeyPressed(glfw.KeyDown) {
		pitch -= turn * dt
	}
	if yaw != 0 || pitch != 0 {
		cam.Orbit(yaw, pitch)
	}
	if w.IsKeyPressed(glfw.KeyW) {
		cam.Zoom(-zoom * dt)
	}
	if w.IsKeyPressed(glfw.KeyS) {
		cam.Zoom(zoom * dt)
	}
}

func handleEnvironment(w *core.Window, keys keyEdges, st *storage.Storage, env ecs.Entity, dt float32) {
	e := st.Environment(env)
	if keys.pressed(w, glfw.KeyO) {
		ssao := e.SSAO
		ssao.Enabled = !ssao.Enabled
		st.EnvironmentSetSSAO(env, ssao)
		core.LogInfo("ssao: %v", ssao.Enabled)
	}
	if keys.pressed(w, glfw.KeyB) {
		glow := e.Glow
		glow.Enabled = !glow.Enabled
		st.EnvironmentSetGlow(env, glow)
		core.LogInfo("glow: %v", glow.Enabled)
	}
	tm := e.Tonemap
	changed := false
	if keys.pressed(w, glfw.KeyE) {
		tm.AutoExposure = !tm.AutoExposure
		core.LogInfo("auto exposure: %v", tm.AutoExposure)
		changed = true
	}
	if w.IsKeyPressed(glfw.KeyLeftBracket) {
		tm.Exposure = max(tm.Exposure-0.5*dt, 0.1)
		changed = true
	}
	if w.IsKeyPressed(glfw.KeyRightBracket) {
		tm.Exposure = min(tm.Exposure+0.5*dt, 5)
		changed = true
	}
	if changed {
		st.EnvironmentSetTonemap(env, tm)
	}
}

func handleDayNight(w *core.Window, keys keyEdges, dn *DayNight, dt float32) {
	if keys.pressed(w, glfw.KeyN) {
		dn.Active = !dn.Active
	}
	// A larger Speed is a slower cycle.
	if w.IsKeyPressed(glfw.KeyComma) {
		dn.Speed = min(dn.Speed+20*dt, 600)
	}
	if w.IsKeyPressed(glfw.KeyPeriod) {
		dn.Speed = max(dn.Speed-20*dt, 10)
	}
}
