// Package opengl is the forward scene renderer: it turns culled instances,
// lights and probes into render lists and draws them with the GL 3.3 scene
// program, then runs the screen effects of the environment.
package opengl

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// Camera is the view a scene pass renders from.
type Camera struct {
	// Transform is the camera to world matrix.
	Transform  gmath.Mat4
	Projection gmath.Mat4
	Orthogonal bool
	// VAspect keeps the vertical field of view when the aspect changes.
	VAspect bool
}

// FrameState is everything one RenderScene call draws.
type FrameState struct {
	RenderTarget    ecs.Entity
	Camera          Camera
	Environment     ecs.Entity
	ShadowAtlas     ecs.Entity
	ReflectionAtlas ecs.Entity

	// Instances are the culled geometry instances of the scenario.
	Instances []ecs.Entity
	// Lights are the visible light instances.
	Lights []ecs.Entity
	// ReflectionProbes are the visible probe instances, highest priority
	// first.
	ReflectionProbes []ecs.Entity

	Time      float32
	Delta     float32
	Wireframe bool
}

// Info counts the work of the last RenderScene call.
type Info struct {
	Objects         int
	Vertices        int
	MaterialChanges int
	ShaderChanges   int
	SurfaceChanges  int
	DrawCalls       int
}

// CameraFeed resolves camera feed backgrounds to textures.
type CameraFeed interface {
	// FeedTextures returns the textures of a feed. When ycbcr is false y
	// holds RGB and cbcr is unused.
	FeedTextures(id int) (y, cbcr uint32, ycbcr, ok bool)
}

// Renderer draws scenes stored in a storage.Storage.
type Renderer struct {
	st  *storage.Storage
	dev glapi.Device
	cfg storage.Config
	lim sceneLimits

	// Uniform blocks of the scene program
	sceneUBO       *uniformBlock
	radianceUBO    *uniformBlock
	directionalUBO *uniformBlock
	omniUBO        *uniformBlock
	spotUBO        *uniformBlock
	reflectionUBO  *uniformBlock

	// Render list and the per-pass sort key tables
	list          *RenderList
	materialSlots map[ecs.Entity]uint16
	geometrySlots map[ecs.Entity]uint16

	// Lights and probes packed for the current pass
	directional     []ecs.Entity
	omniIndex       map[ecs.Entity]int
	spotIndex       map[ecs.Entity]int
	reflectionIndex map[ecs.Entity]int
	fwd             forwardLists

	// Shadow bookkeeping: caster hashes of atlas slots and the directional
	// lights whose cascades were drawn this frame
	shadowStamps map[ecs.Entity]uint64
	dirShadowed  map[ecs.Entity]bool

	// Programs
	sky *shader.Shader
	fx  effects

	// SSAO sample kernel and rotation noise
	ssaoKernel []float32
	ssaoNoise  glapi.Texture

	feed CameraFeed
	info Info
}

// New creates the uniform blocks and programs of the renderer. The storage
// must carry the scene program built by SceneSource.
func New(st *storage.Storage) (*Renderer, error) {
	if st.ModeShader(shader.ModeSpatial) == nil {
		return nil, fmt.Errorf("renderer: storage has no scene program: %w", storage.ErrInvalidArgument)
	}
	r := &Renderer{
		st:              st,
		dev:             st.Device(),
		cfg:             st.Config(),
		materialSlots:   map[ecs.Entity]uint16{},
		geometrySlots:   map[ecs.Entity]uint16{},
		omniIndex:       map[ecs.Entity]int{},
		spotIndex:       map[ecs.Entity]int{},
		reflectionIndex: map[ecs.Entity]int{},
		shadowStamps:    map[ecs.Entity]uint64{},
		dirShadowed:     map[ecs.Entity]bool{},
	}
	r.lim = newSceneLimits(r.cfg, st.Features())
	r.list = NewRenderList(r.cfg.MaxRenderableElements)

	blocks := []struct {
		dst     **uniformBlock
		binding uint32
		size    int
	}{
		{&r.sceneUBO, bindingSceneData, 512},
		{&r.radianceUBO, bindingRadiance, 128},
		{&r.directionalUBO, bindingDirectional, 512},
		{&r.omniUBO, bindingOmni, lightDataSize * r.lim.Lights},
		{&r.spotUBO, bindingSpot, lightDataSize * r.lim.Lights},
		{&r.reflectionUBO, bindingReflections, reflectionDataSize * r.lim.Reflections},
	}
	for _, b := range blocks {
		ub, err := newUniformBlock(r.dev, b.binding, b.size)
		if err != nil {
			r.Free()
			return nil, fmt.Errorf("renderer: uniform block %d: %w", b.binding, err)
		}
		*b.dst = ub
	}

	mgr := st.ShaderManager()
	r.sky = mgr.NewShader(skySource())
	r.fx = newEffects(mgr)
	if err := r.initSSAO(); err != nil {
		r.Free()
		return nil, fmt.Errorf("renderer: %w", err)
	}
	core.LogDebug("renderer: %d lights, %d reflections, %d forward slots, %d elements",
		r.lim.Lights, r.lim.Reflections, r.lim.Forward, r.list.Max())
	return r, nil
}

// Free releases the GL objects of the renderer. Programs belong to the
// shader manager.
func (r *Renderer) Free() {
	for _, b := range []*uniformBlock{r.sceneUBO, r.radianceUBO, r.directionalUBO, r.omniUBO, r.spotUBO, r.reflectionUBO} {
		b.release()
	}
	r.ssaoNoise.Release()
}

// Info returns the counters of the last scene pass.
func (r *Renderer) Info() Info { return r.info }

// SetCameraFeed installs the resolver of camera feed backgrounds.
func (r *Renderer) SetCameraFeed(f CameraFeed) { r.feed = f }

// Limits returns the light, reflection and per-object slot counts compiled
// into the scene program.
func (r *Renderer) Limits() (lights, reflections, forward int) {
	return r.lim.Lights, r.lim.Reflections, r.lim.Forward
}

// ── Scene ───────────────────────────────────────────────────────────────────

// RenderScene draws one camera view into a render target: reflection probe
// faces and shadow maps first, then the opaque, sky and transparent passes
// and the screen effects of the environment.
func (r *Renderer) RenderScene(fs *FrameState) error {
	rt := r.st.RenderTarget(fs.RenderTarget)
	if rt == nil || !rt.Valid {
		return fmt.Errorf("render scene: target %v: %w", fs.RenderTarget, storage.ErrInvalidHandle)
	}
	if rt.Flags[storage.RenderTargetNo3D] {
		return nil
	}
	r.st.BeginScenePass()
	r.info = Info{}
	clear(r.dirShadowed)
	for _, li := range fs.Lights {
		r.st.LightInstanceMarkVisible(li)
	}

	reg := r.st.Registry()
	env := r.st.Environment(fs.Environment)
	shadowAtlas := ecs.Get[storage.ShadowAtlas](reg, fs.ShadowAtlas)
	reflAtlas := ecs.Get[storage.ReflectionAtlas](reg, fs.ReflectionAtlas)

	r.renderReflectionProbes(fs, env, shadowAtlas, reflAtlas)
	r.renderShadows(fs, shadowAtlas)

	p := r.mainPass(fs, rt, env, shadowAtlas, reflAtlas)
	r.setupScene(p, fs.Lights, fs.ReflectionProbes)

	r.list.Clear()
	r.resetSlots()
	r.fill(p, fs.Instances)
	r.list.SortByKey()
	r.list.SortByReverseDepthAndPriority()

	d := r.dev
	d.BindFramebuffer(glapi.FRAMEBUFFER, p.fbo)
	d.Viewport(0, 0, int32(p.width), int32(p.height))
	r.bindSceneTextures(p)
	r.clearTarget(p)
	r.drawCameraFeed(p)

	if r.usePrepass(p) {
		r.drawDepthPrepass(p)
	}
	r.drawList(p, r.list.Opaque, false)
	r.drawExtraDirectional(p, r.list.Opaque, false)
	r.drawSky(p)

	if p.mrt {
		r.renderMRTEffects(p)
		p.fbo = rt.FBO()
		p.mrt = false
		d.BindFramebuffer(glapi.FRAMEBUFFER, p.fbo)
		d.Viewport(0, 0, int32(p.width), int32(p.height))
		r.writeSceneData(p)
		r.bindSceneTextures(p)
	}

	if len(r.list.Alpha) > 0 {
		r.prepareScreenTextures(p)
		r.drawList(p, r.list.Alpha, true)
		r.drawExtraDirectional(p, r.list.Alpha, true)
	}

	if rt.MSAA != storage.MSAADisabled && p.fbo == rt.MSAAFBO() {
		r.resolveMSAA(rt)
	}
	if env != nil && rt.Has3DEffects() {
		r.postProcess(p, fs.Delta)
	}
	r.endScene()
	return nil
}

func (r *Renderer) mainPass(fs *FrameState, rt *storage.RenderTarget, env *storage.Environment, sa *storage.ShadowAtlas, ra *storage.ReflectionAtlas) *scenePass {
	p := &scenePass{
		cam:         fs.Camera,
		camInv:      fs.Camera.Transform.Inverse(),
		env:         env,
		rt:          rt,
		rtEnt:       fs.RenderTarget,
		fbo:         rt.FBO(),
		width:       rt.Width,
		height:      rt.Height,
		shadowAtlas: sa,
		reflAtlas:   ra,
		sky:         r.radianceSky(env),
		time:        fs.Time,
		wireframe:   fs.Wireframe,
		shadows:     true,
		dirLight:    ecs.Null,
	}
	p.zNear, p.zFar = gmath.ProjectionZNear(p.cam.Projection), gmath.ProjectionZFar(p.cam.Projection)
	keep := env != nil && (env.Background == storage.BackgroundKeep || env.Background == storage.BackgroundCanvas)
	switch {
	case env != nil && env.NeedsMRT() && rt.Has3DEffects() && rt.MSAA == storage.MSAADisabled && !keep && !fs.Wireframe:
		p.mrt = true
		p.fbo = rt.Buffers.FBO()
	case rt.MSAA != storage.MSAADisabled && rt.MSAAFBO() != 0:
		p.fbo = rt.MSAAFBO()
	}
	return p
}

func (r *Renderer) radianceSky(env *storage.Environment) *storage.Sky {
	if env == nil || env.Sky.IsNull() {
		return nil
	}
	sk := r.st.Sky(env.Sky)
	if sk == nil || !sk.Filtered || sk.RadianceID() == 0 {
		return nil
	}
	return sk
}

func (r *Renderer) usePrepass(p *scenePass) bool {
	if !(r.cfg.DepthPrepass || p.contactShadows) || p.wireframe || len(r.list.Opaque) == 0 {
		return false
	}
	return p.env == nil || (p.env.Background != storage.BackgroundKeep && p.env.Background != storage.BackgroundCanvas)
}

// setupScene packs the scene, radiance, light and reflection blocks of p.
func (r *Renderer) setupScene(p *scenePass, lights, probes []ecs.Entity) {
	r.setupLights(p, lights)
	r.setupReflections(p, probes)
	r.writeSceneData(p)
	r.writeRadiance(p)
	if len(r.directional) > 0 {
		r.writeDirectional(p, r.directional[0])
	}
}

// bindSceneTextures binds the shadow atlases, the reflection atlas and the
// radiance cubemap to their fixed units.
func (r *Renderer) bindSceneTextures(p *scenePass) {
	if p.shadowAtlas != nil {
		r.bindTex(storage.UnitShadowAtlas, glapi.TEXTURE_2D, p.shadowAtlas.DepthID())
	}
	if ds := r.st.DirectionalShadow(); ds.Size > 0 {
		r.bindTex(storage.UnitDirShadow, glapi.TEXTURE_2D, ds.DepthID())
	}
	if p.reflAtlas != nil {
		r.bindTex(storage.UnitReflection, glapi.TEXTURE_2D, p.reflAtlas.ColorID())
	}
	if p.sky != nil {
		r.bindTex(storage.UnitRadiance, glapi.TEXTURE_CUBE_MAP, p.sky.RadianceID())
	}
}

func (r *Renderer) bindTex(unit int, target, id uint32) {
	r.dev.ActiveTexture(glapi.TEXTURE0 + uint32(unit))
	r.dev.BindTexture(target, id)
}

// resetSlots forgets the material and geometry indices of the last list.
func (r *Renderer) resetSlots() {
	clear(r.materialSlots)
	clear(r.geometrySlots)
}

// endScene restores the state the canvas renderer expects.
func (r *Renderer) endScene() {
	d := r.dev
	d.Disable(glapi.BLEND)
	d.Disable(glapi.CULL_FACE)
	d.Disable(glapi.SCISSOR_TEST)
	d.Enable(glapi.DEPTH_TEST)
	d.DepthFunc(glapi.LEQUAL)
	d.DepthMask(true)
	d.ColorMask(true, true, true, true)
	d.BindVertexArray(0)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	if prog := r.st.ModeShader(shader.ModeSpatial); prog != nil {
		prog.Unbind()
	}
}

// scenePass is the state every draw of one pass reads.
type scenePass struct {
	cam    Camera
	camInv gmath.Mat4
	env    *storage.Environment
	rt     *storage.RenderTarget
	rtEnt  ecs.Entity

	fbo           uint32
	width, height int
	zNear, zFar   float32

	shadowAtlas *storage.ShadowAtlas
	reflAtlas   *storage.ReflectionAtlas
	sky         *storage.Sky

	// Depth-only passes
	depth       bool
	dp          bool
	casters     bool
	reverseCull bool
	zOffset     float32
	zSlope      float32
	dpZFar      float32
	dpSide      float32

	// Color passes
	mrt            bool
	wireframe      bool
	additive       bool
	shadows        bool
	useShadows     bool
	contactShadows bool
	dirLight       ecs.Entity
	dirShadow      bool
	dirSplits      int
	blendSplits    bool
	// cullMask limits the instances drawn by layer; 0 draws every layer.
	cullMask uint32

	time float32
}
