package renderer

import (
	"errors"
	"fmt"
	"time"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/opengl"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
)

// KeyLogLevel selects the log level at startup: debug, info, warn or error.
const KeyLogLevel = "debug/settings/log_level"

// ErrContextLost is returned once the driver reports a lost context. The
// host must tear the Context down and build a new one.
var ErrContextLost = errors.New("renderer: gl context lost")

type (
	// Camera is the view a frame is drawn from.
	Camera = opengl.Camera
	// CameraFeed resolves camera feed backgrounds to textures.
	CameraFeed = opengl.CameraFeed
)

// Options are the host supplied parts of a Context. Everything else comes
// from the project settings.
type Options struct {
	// Clock drives shadow atlas reallocation timing. Defaults to the
	// monotonic clock.
	Clock core.TimeSource
	// Shared is a secondary context for async compiles on drivers without
	// parallel compile.
	Shared shader.SharedContext
	// WorkerDevice issues GL calls on the compile worker.
	WorkerDevice glapi.Device
	// CameraFeed serves camera feed backgrounds.
	CameraFeed CameraFeed
}

// FrameArgs is everything one Draw call renders. Entity fields that are not
// used must be ecs.Null; NewFrameArgs sets them up that way.
type FrameArgs struct {
	RenderTarget    ecs.Entity
	Camera          Camera
	Environment     ecs.Entity
	ShadowAtlas     ecs.Entity
	ReflectionAtlas ecs.Entity

	Instances        []ecs.Entity
	Lights           []ecs.Entity
	ReflectionProbes []ecs.Entity

	// Time is the shader TIME in seconds, Delta the frame length.
	Time  float32
	Delta float32

	// ClearRequest clears the render target to the color before drawing.
	ClearRequest *core.Color
	Wireframe    bool
}

// NewFrameArgs returns the arguments for drawing rt from cam with no
// environment or atlases.
func NewFrameArgs(rt ecs.Entity, cam Camera) FrameArgs {
	return FrameArgs{
		RenderTarget:    rt,
		Camera:          cam,
		Environment:     ecs.Null,
		ShadowAtlas:     ecs.Null,
		ReflectionAtlas: ecs.Null,
	}
}

// Info is the work of the last frame.
type Info struct {
	opengl.Info
	Frame           uint64
	PendingCompiles int
	ShaderReloads   int
}

// Context owns every resource of one GL context: the shader compiler, the
// resource storage and the scene renderer.
type Context struct {
	dev   glapi.Device
	feat  *glapi.Features
	mgr   *shader.Manager
	st    *storage.Storage
	scene *opengl.Renderer

	watcher *shader.Watcher
	watched map[string]ecs.Entity

	info Info
	lost bool
}

// New builds a Context on the current GL context of dev. settings may be
// nil, in which case every key takes its default.
func New(dev glapi.Device, settings *core.Settings, opts Options) (*Context, error) {
	if settings == nil {
		settings = core.NewSettings()
	}
	if settings.Has(KeyLogLevel) {
		core.SetLogLevel(settings.String(KeyLogLevel, "info"))
	}

	feat := glapi.QueryFeatures(dev)
	cfg := storage.NewConfig(settings)
	so := cfg.ShaderOptions()
	so.Shared = opts.Shared
	so.WorkerDevice = opts.WorkerDevice
	mgr, err := shader.NewManager(dev, feat, so)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}

	st, err := storage.New(dev, feat, cfg, mgr, storage.Sources{Scene: opengl.SceneSource(cfg, feat)}, opts.Clock)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("renderer: %w", err)
	}

	scene, err := opengl.New(st)
	if err != nil {
		st.Finalize()
		mgr.Close()
		return nil, fmt.Errorf("renderer: %w", err)
	}
	if opts.CameraFeed != nil {
		scene.SetCameraFeed(opts.CameraFeed)
	}

	core.LogInfo("renderer: %s (%s), compile mode %d", feat.Renderer, feat.Version, so.Mode)
	return &Context{
		dev:     dev,
		feat:    feat,
		mgr:     mgr,
		st:      st,
		scene:   scene,
		watched: map[string]ecs.Entity{},
	}, nil
}

// Storage exposes the resource API: meshes, materials, lights, atlases and
// render targets are created through it.
func (c *Context) Storage() *storage.Storage { return c.st }

// Features returns the probed driver capabilities.
func (c *Context) Features() *glapi.Features { return c.feat }

// Draw renders one frame: pending resource updates are applied, finished
// shader compiles installed and the scene drawn into args.RenderTarget.
func (c *Context) Draw(args FrameArgs) error {
	if c.lost {
		return ErrContextLost
	}
	if args.ClearRequest != nil {
		c.st.RenderTargetRequestClear(args.RenderTarget, *args.ClearRequest)
	}
	reloads := c.applyShaderChanges()

	frame := c.st.BeginFrame()
	c.st.UpdateDirty()
	c.mgr.Poll()

	err := c.scene.RenderScene(&opengl.FrameState{
		RenderTarget:     args.RenderTarget,
		Camera:           args.Camera,
		Environment:      args.Environment,
		ShadowAtlas:      args.ShadowAtlas,
		ReflectionAtlas:  args.ReflectionAtlas,
		Instances:        args.Instances,
		Lights:           args.Lights,
		ReflectionProbes: args.ReflectionProbes,
		Time:             args.Time,
		Delta:            args.Delta,
		Wireframe:        args.Wireframe,
	})
	c.info = Info{
		Info:            c.scene.Info(),
		Frame:           frame,
		PendingCompiles: c.mgr.Pending(),
		ShaderReloads:   reloads,
	}
	if err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	return nil
}

// RenderShadow draws the casters into the atlas slot of a light. pass is
// the cube face or cascade.
func (c *Context) RenderShadow(light, atlas ecs.Entity, pass int, casters []ecs.Entity) error {
	if c.lost {
		return ErrContextLost
	}
	return c.scene.RenderShadow(light, atlas, pass, casters)
}

// Info returns the counters of the last Draw.
func (c *Context) Info() Info { return c.info }

// WaitShaders blocks until queued async compiles are installed.
func (c *Context) WaitShaders(timeout time.Duration) error {
	return c.mgr.WaitIdle(timeout)
}

// CheckContextLost drains the GL error queue and reports a lost context.
// Other errors are logged.
func (c *Context) CheckContextLost() error {
	if c.lost {
		return ErrContextLost
	}
	for range 16 {
		switch e := c.dev.GetError(); e {
		case glapi.NO_ERROR:
			return nil
		case glapi.CONTEXT_LOST:
			c.lost = true
			core.LogError("renderer: gl context lost")
			return ErrContextLost
		default:
			core.LogDebug("renderer: gl error 0x%04x", e)
		}
	}
	return nil
}

// BlitToScreen copies the color of rt into the default framebuffer,
// stretched to width x height.
func (c *Context) BlitToScreen(rt ecs.Entity, width, height int) error {
	if c.lost {
		return ErrContextLost
	}
	t := c.st.RenderTarget(rt)
	if t == nil {
		return fmt.Errorf("blit to screen: render target %v: %w", rt, storage.ErrInvalidHandle)
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	d := c.dev
	d.BindFramebuffer(glapi.READ_FRAMEBUFFER, t.FBO())
	d.BindFramebuffer(glapi.DRAW_FRAMEBUFFER, 0)
	d.BlitFramebuffer(0, 0, int32(t.Width), int32(t.Height), 0, 0, int32(width), int32(height), glapi.COLOR_BUFFER_BIT, glapi.LINEAR)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}

// Finalize releases every GL object. The Context must not be used after.
func (c *Context) Finalize() {
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			core.LogWarn("renderer: %v", err)
		}
		c.watcher = nil
	}
	c.scene.Free()
	c.st.Finalize()
	c.mgr.Close()
}
