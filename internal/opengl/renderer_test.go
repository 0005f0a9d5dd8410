package opengl

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/glapi/glfake"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

const alphaShader = "shader_type spatial;\nvoid fragment() { ALBEDO = vec3(1.0); ALPHA = 0.5; }"

type testScene struct {
	st  *storage.Storage
	r   *Renderer
	dev *glfake.Device
	rt  ecs.Entity
}

// newTestRenderer builds a storage with the real scene program on a fake
// device, a renderer and a 64x64 render target.
func newTestRenderer(t *testing.T, overrides map[string]any) testScene {
	t.Helper()
	dev := glfake.New()
	feat := glapi.QueryFeatures(dev)

	set := core.NewSettings()
	set.Set(storage.KeyDirectionalShadowSize, 256)
	set.Set(storage.KeyShadowCubemapSize, 64)
	set.Set(storage.KeyImmediateBufferSize, 64)
	for k, v := range overrides {
		set.Set(k, v)
	}
	cfg := storage.NewConfig(set)

	mgr, err := shader.NewManager(dev, feat, shader.Options{Mode: shader.CompileSync})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	st, err := storage.New(dev, feat, cfg, mgr, storage.Sources{Scene: SceneSource(cfg, feat)}, &core.ManualClock{Now: 1_000_000})
	require.NoError(t, err)
	t.Cleanup(st.Finalize)

	r, err := New(st)
	require.NoError(t, err)
	t.Cleanup(r.Free)

	rt := st.RenderTargetCreate()
	require.NoError(t, st.RenderTargetSetSize(rt, 64, 64))
	return testScene{st: st, r: r, dev: dev, rt: rt}
}

func cubeArrays() *storage.SurfaceArrays {
	a := &storage.SurfaceArrays{}
	for i := range 8 {
		v := gmath.NewVec3(float32(i&1)*2-1, float32(i>>1&1)*2-1, float32(i>>2&1)*2-1)
		a.Vertices = append(a.Vertices, v)
		a.Normals = append(a.Normals, v.Normalize())
	}
	a.Indices = []uint32{
		0, 2, 1, 1, 2, 3,
		4, 5, 6, 5, 7, 6,
		0, 1, 4, 1, 5, 4,
		2, 6, 3, 3, 6, 7,
		0, 4, 2, 2, 4, 6,
		1, 3, 5, 3, 7, 5,
	}
	return a
}

// addCube places a cube instance at pos, optionally drawn with material.
func (ts testScene) addCube(t *testing.T, pos gmath.Vec3, material ecs.Entity) ecs.Entity {
	t.Helper()
	mesh := ts.st.MeshCreate()
	_, err := ts.st.MeshAddSurfaceFromArrays(mesh, storage.PrimitiveTriangles, 0, cubeArrays(), nil)
	require.NoError(t, err)
	if !material.IsNull() {
		ts.st.MeshSurfaceSetMaterial(mesh, 0, material)
	}
	in := ts.st.InstanceCreate()
	require.NoError(t, ts.st.InstanceSetBase(in, mesh))
	ts.st.InstanceSetTransform(in, gmath.Mat4Translation(pos))
	return in
}

func (ts testScene) material(t *testing.T, code string) ecs.Entity {
	t.Helper()
	sh := ts.st.ShaderCreate()
	ts.st.ShaderSetCode(sh, code)
	mat := ts.st.MaterialCreate()
	ts.st.MaterialSetShader(mat, sh)
	return mat
}

func testCamera() Camera {
	return Camera{
		Transform:  gmath.Mat4Translation(gmath.NewVec3(0, 0, 8)),
		Projection: gmath.Mat4Perspective(math32.Pi/3, 1, 0.1, 100),
	}
}

// render pumps the dirty queues, forgets what they drew and renders one
// frame of the target from testCamera. set fills in the frame.
func (ts testScene) render(t *testing.T, set func(fs *FrameState)) {
	t.Helper()
	ts.st.BeginFrame()
	ts.st.UpdateDirty()
	ts.dev.ResetRecording()
	fs := FrameState{
		RenderTarget:    ts.rt,
		Camera:          testCamera(),
		Environment:     ecs.Null,
		ShadowAtlas:     ecs.Null,
		ReflectionAtlas: ecs.Null,
	}
	if set != nil {
		set(&fs)
	}
	require.NoError(t, ts.r.RenderScene(&fs))
}

// draws filters the recorded draws by framebuffer and primitive.
func (ts testScene) draws(fbo, mode uint32) []glfake.Draw {
	var out []glfake.Draw
	for _, d := range ts.dev.Draws() {
		if d.Framebuffer == fbo && d.Mode == mode {
			out = append(out, d)
		}
	}
	return out
}

func (ts testScene) hasDefine(d glfake.Draw, name string) bool {
	prog := ts.dev.ProgramState(d.Program)
	return prog != nil && prog.HasDefine(name)
}

func TestNewRequiresSceneProgram(t *testing.T) {
	dev := glfake.New()
	feat := glapi.QueryFeatures(dev)
	mgr, err := shader.NewManager(dev, feat, shader.Options{Mode: shader.CompileSync})
	require.NoError(t, err)
	defer mgr.Close()
	st, err := storage.New(dev, feat, storage.NewConfig(core.NewSettings()), mgr, storage.Sources{}, &core.ManualClock{})
	require.NoError(t, err)
	defer st.Finalize()

	_, err = New(st)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestRenderSceneInvalidTarget(t *testing.T) {
	ts := newTestRenderer(t, nil)
	err := ts.r.RenderScene(&FrameState{RenderTarget: ts.st.MaterialCreate(), Environment: ecs.Null, ShadowAtlas: ecs.Null, ReflectionAtlas: ecs.Null})
	assert.ErrorIs(t, err, storage.ErrInvalidHandle)
}

func TestEmptySceneDrawsSky(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	require.NoError(t, st.RenderTargetSetFlag(ts.rt, storage.RenderTargetNo3DEffects, true))

	pano := st.TextureCreate()
	require.NoError(t, st.TextureAllocate(pano, 8, 4, 1, storage.ImageRGBA8, storage.TextureType2D, storage.FlagFilter))
	sky := st.SkyCreate()
	require.NoError(t, st.SkySetTexture(sky, pano, 32))
	env := st.EnvironmentCreate()
	st.EnvironmentSetBackground(env, storage.BackgroundSky)
	st.EnvironmentSetSky(env, sky)

	ts.render(t, func(fs *FrameState) { fs.Environment = env })

	rt := st.RenderTarget(ts.rt)
	quads := ts.draws(rt.FBO(), glapi.TRIANGLE_FAN)
	require.Len(t, quads, 1)
	assert.False(t, quads[0].DepthMask, "sky does not write depth")
	assert.Equal(t, uint32(glapi.LEQUAL), quads[0].DepthFunc)
	assert.Empty(t, ts.draws(rt.FBO(), glapi.TRIANGLES))
	assert.Equal(t, 1, ts.r.Info().DrawCalls)
}

func TestKeepBackgroundDrawsNothing(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	require.NoError(t, st.RenderTargetSetFlag(ts.rt, storage.RenderTargetNo3DEffects, true))
	env := st.EnvironmentCreate()
	st.EnvironmentSetBackground(env, storage.BackgroundKeep)

	ts.render(t, func(fs *FrameState) { fs.Environment = env })

	rt := st.RenderTarget(ts.rt)
	assert.Empty(t, ts.dev.Draws())
	for _, c := range ts.dev.Clears() {
		if c.Framebuffer == rt.FBO() {
			assert.Equal(t, uint32(glapi.DEPTH_BUFFER_BIT), c.Mask, "color is kept")
		}
	}
	assert.Zero(t, ts.r.Info().DrawCalls)
}

func TestClearRequestWinsOnce(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	red := core.Color{R: 1, A: 1}
	st.RenderTargetRequestClear(ts.rt, red)

	ts.render(t, nil)

	rt := st.RenderTarget(ts.rt)
	found := false
	for _, c := range ts.dev.Clears() {
		if c.Framebuffer == rt.FBO() && c.Mask&glapi.COLOR_BUFFER_BIT != 0 {
			assert.Equal(t, [4]float32{1, 0, 0, 1}, c.Color)
			found = true
		}
	}
	assert.True(t, found)
	assert.False(t, st.RenderTargetIsClearRequested(ts.rt))
}

func TestCubeUnderDirectionalShadow(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)

	light := st.LightCreate(storage.LightDirectional)
	st.LightSetShadow(light, true)
	li := st.LightInstanceCreate(light)
	st.LightInstanceSetTransform(li, gmath.Mat4CameraLookAt(gmath.NewVec3(0, 10, 0), gmath.Vec3Zero, gmath.Vec3Front))

	ts.render(t, func(fs *FrameState) {
		fs.Instances = []ecs.Entity{cube}
		fs.Lights = []ecs.Entity{li}
	})

	ds := st.DirectionalShadow()
	shadow := ts.draws(ds.FramebufferID(), glapi.TRIANGLES)
	require.Len(t, shadow, 1, "the shadow pass draws the cube once")
	assert.Equal(t, [4]int32{0, 0, 256, 256}, shadow[0].Viewport)
	assert.Equal(t, [4]bool{}, shadow[0].ColorMask)
	assert.True(t, ts.hasDefine(shadow[0], "RENDER_DEPTH"))

	rt := st.RenderTarget(ts.rt)
	main := ts.draws(rt.FBO(), glapi.TRIANGLES)
	require.Len(t, main, 2)
	prepass, color := main[0], main[1]
	assert.Equal(t, [4]bool{}, prepass.ColorMask, "the prepass writes depth only")
	assert.True(t, ts.hasDefine(prepass, "RENDER_DEPTH"))
	assert.Equal(t, [4]bool{true, true, true, true}, color.ColorMask)
	assert.True(t, ts.hasDefine(color, "USE_SHADOW"))
	assert.True(t, ts.hasDefine(color, "USE_LIGHT_DIRECTIONAL"))
	assert.False(t, ts.hasDefine(color, "RENDER_DEPTH"))

	info := ts.r.Info()
	assert.Equal(t, 3, info.DrawCalls)
	assert.Equal(t, 3*36, info.Vertices)
}

func TestShadowlessLightSkipsShadowPass(t *testing.T) {
	ts := newTestRenderer(t, map[string]any{storage.KeyDepthPrepass: false})
	st := ts.st
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)
	li := st.LightInstanceCreate(st.LightCreate(storage.LightDirectional))

	ts.render(t, func(fs *FrameState) {
		fs.Instances = []ecs.Entity{cube}
		fs.Lights = []ecs.Entity{li}
	})

	assert.Empty(t, ts.draws(st.DirectionalShadow().FramebufferID(), glapi.TRIANGLES))
	main := ts.draws(st.RenderTarget(ts.rt).FBO(), glapi.TRIANGLES)
	require.Len(t, main, 1)
	assert.False(t, ts.hasDefine(main[0], "USE_SHADOW"))
}

func TestAlphaDrawsAfterOpaque(t *testing.T) {
	ts := newTestRenderer(t, map[string]any{storage.KeyDepthPrepass: false})
	glass := ts.addCube(t, gmath.NewVec3(0, 0, 2), ts.material(t, alphaShader))
	wall := ts.addCube(t, gmath.Vec3Zero, ecs.Null)

	ts.render(t, func(fs *FrameState) { fs.Instances = []ecs.Entity{glass, wall} })

	main := ts.draws(ts.st.RenderTarget(ts.rt).FBO(), glapi.TRIANGLES)
	require.Len(t, main, 2)
	assert.False(t, main[0].Blend, "the opaque cube draws first")
	assert.True(t, main[1].Blend)
	assert.Equal(t, uint32(glapi.SRC_ALPHA), main[1].BlendSrc)
	assert.Equal(t, uint32(glapi.ONE_MINUS_SRC_ALPHA), main[1].BlendDst)
	assert.False(t, main[1].DepthMask)
}

func TestAlphaBackToFront(t *testing.T) {
	ts := newTestRenderer(t, map[string]any{storage.KeyDepthPrepass: false})
	mat := ts.material(t, alphaShader)
	near := ts.addCube(t, gmath.NewVec3(0, 0, 3), mat)
	far := ts.addCube(t, gmath.NewVec3(0, 0, -3), mat)

	ts.render(t, func(fs *FrameState) { fs.Instances = []ecs.Entity{near, far} })

	require.Len(t, ts.r.list.Alpha, 2)
	assert.Equal(t, far, ts.r.list.Alpha[0].Instance)
	assert.Equal(t, near, ts.r.list.Alpha[1].Instance)
}

func TestExtraDirectionalLightsReachAlpha(t *testing.T) {
	ts := newTestRenderer(t, map[string]any{storage.KeyDepthPrepass: false})
	st := ts.st
	wall := ts.addCube(t, gmath.Vec3Zero, ecs.Null)
	glass := ts.addCube(t, gmath.NewVec3(0, 0, 3), ts.material(t, alphaShader))
	glow := ts.addCube(t, gmath.NewVec3(0, 0, 2), ts.material(t, "shader_type spatial;\nrender_mode unshaded;\nvoid fragment() { ALBEDO = vec3(1.0); ALPHA = 0.5; }"))
	sun := st.LightInstanceCreate(st.LightCreate(storage.LightDirectional))
	moon := st.LightInstanceCreate(st.LightCreate(storage.LightDirectional))

	ts.render(t, func(fs *FrameState) {
		fs.Instances = []ecs.Entity{wall, glass, glow}
		fs.Lights = []ecs.Entity{sun, moon}
	})

	main := ts.draws(st.RenderTarget(ts.rt).FBO(), glapi.TRIANGLES)
	require.Len(t, main, 5, "unshaded elements skip the extra light")
	wallBase, wallAdd := main[0], main[1]
	assert.False(t, wallBase.Blend)
	assert.True(t, wallAdd.Blend)
	assert.Equal(t, [2]uint32{glapi.ONE, glapi.ONE}, [2]uint32{wallAdd.BlendSrc, wallAdd.BlendDst})

	for _, d := range main[2:4] {
		assert.Equal(t, [2]uint32{glapi.SRC_ALPHA, glapi.ONE_MINUS_SRC_ALPHA}, [2]uint32{d.BlendSrc, d.BlendDst})
	}
	glassAdd := main[4]
	assert.True(t, glassAdd.Blend)
	assert.Equal(t, [2]uint32{glapi.SRC_ALPHA, glapi.ONE}, [2]uint32{glassAdd.BlendSrc, glassAdd.BlendDst})
	assert.False(t, glassAdd.DepthMask)
	assert.True(t, ts.hasDefine(glassAdd, "USE_LIGHT_DIRECTIONAL"))
	assert.False(t, ts.hasDefine(glassAdd, "USE_FORWARD_LIGHTING"))
}

func TestOpaqueFrontToBack(t *testing.T) {
	ts := newTestRenderer(t, map[string]any{storage.KeyDepthPrepass: false})
	far := ts.addCube(t, gmath.NewVec3(0, 0, -40), ecs.Null)
	near := ts.addCube(t, gmath.NewVec3(0, 0, 3), ecs.Null)

	ts.render(t, func(fs *FrameState) { fs.Instances = []ecs.Entity{far, near} })

	require.Len(t, ts.r.list.Opaque, 2)
	first, second := ts.r.list.Opaque[0], ts.r.list.Opaque[1]
	assert.Equal(t, near, first.Instance)
	assert.Equal(t, far, second.Instance)
	assert.Less(t, KeyLayer(first.Key), KeyLayer(second.Key))
	assert.Greater(t, KeyGeometry(first.Key), KeyGeometry(second.Key), "the layer outranks fill order")
}

func TestReflectionAtlasSaturation(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	atlas := st.ReflectionAtlasCreate()
	require.NoError(t, st.ReflectionAtlasSetSize(atlas, 128))
	require.NoError(t, st.ReflectionAtlasSetSubdivision(atlas, 1))

	probe := func() ecs.Entity {
		p := st.ReflectionProbeCreate()
		st.ReflectionProbeSetUpdateMode(p, storage.ReflectionUpdateOnce)
		return st.ReflectionProbeInstanceCreate(p)
	}
	high, low := probe(), probe()
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)

	for range storage.ReflectionRenderSteps + 2 {
		ts.render(t, func(fs *FrameState) {
			fs.ReflectionAtlas = atlas
			fs.Instances = []ecs.Entity{cube}
			fs.ReflectionProbes = []ecs.Entity{high, low}
		})
	}

	reg := st.Registry()
	hi := ecs.Get[storage.ReflectionProbeInstance](reg, high)
	lo := ecs.Get[storage.ReflectionProbeInstance](reg, low)
	assert.Equal(t, 0, hi.AtlasIndex)
	assert.False(t, hi.Dirty, "all six faces were captured")
	assert.Equal(t, -1, lo.AtlasIndex, "the lower priority probe gets no slot")
	assert.True(t, lo.Dirty)
}

func TestOmniCubeShadowFoldsIntoBothHalves(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	atlas := st.ShadowAtlasCreate()
	require.NoError(t, st.ShadowAtlasSetSize(atlas, 512))
	require.NoError(t, st.ShadowAtlasSetQuadrantSubdivision(atlas, 0, 1))

	light := st.LightCreate(storage.LightOmni)
	st.LightSetShadow(light, true)
	st.LightSetParam(light, storage.LightParamRange, 10)
	st.LightOmniSetShadowMode(light, storage.OmniShadowCube)
	li := st.LightInstanceCreate(light)
	st.LightInstanceSetTransform(li, gmath.Mat4Translation(gmath.NewVec3(0, 3, 0)))
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)

	ts.render(t, func(fs *FrameState) {
		fs.ShadowAtlas = atlas
		fs.Instances = []ecs.Entity{cube}
		fs.Lights = []ecs.Entity{li}
	})

	sa := ecs.Get[storage.ShadowAtlas](st.Registry(), atlas)
	_, ok := sa.Key(li)
	require.True(t, ok)

	rt := st.RenderTarget(ts.rt)
	faces := map[uint32]int{}
	for _, d := range ts.dev.Draws() {
		if d.Mode == glapi.TRIANGLES && d.Framebuffer != rt.FBO() {
			faces[d.Framebuffer]++
		}
	}
	assert.Len(t, faces, 6, "one draw per cube face")

	halves := ts.draws(sa.FramebufferID(), glapi.TRIANGLE_FAN)
	require.Len(t, halves, 2)
	for _, h := range halves {
		assert.True(t, ts.hasDefine(h, "CUBE_TO_DP"))
		assert.Equal(t, uint32(glapi.ALWAYS), h.DepthFunc)
		assert.Equal(t, [4]bool{}, h.ColorMask)
	}
}

func TestShadowRedrawOnlyWhenCastersMove(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	atlas := st.ShadowAtlasCreate()
	require.NoError(t, st.ShadowAtlasSetSize(atlas, 512))
	require.NoError(t, st.ShadowAtlasSetQuadrantSubdivision(atlas, 0, 1))

	light := st.LightCreate(storage.LightSpot)
	st.LightSetShadow(light, true)
	st.LightSetParam(light, storage.LightParamRange, 20)
	li := st.LightInstanceCreate(light)
	st.LightInstanceSetTransform(li, gmath.Mat4Translation(gmath.NewVec3(0, 0, 5)))
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)
	sa := ecs.Get[storage.ShadowAtlas](st.Registry(), atlas)
	set := func(fs *FrameState) {
		fs.ShadowAtlas = atlas
		fs.Instances = []ecs.Entity{cube}
		fs.Lights = []ecs.Entity{li}
	}

	ts.render(t, set)
	assert.Len(t, ts.draws(sa.FramebufferID(), glapi.TRIANGLES), 1)

	ts.render(t, set)
	assert.Empty(t, ts.draws(sa.FramebufferID(), glapi.TRIANGLES), "unchanged shadow is kept")

	st.InstanceSetTransform(cube, gmath.Mat4Translation(gmath.NewVec3(1, 0, 0)))
	ts.render(t, set)
	assert.Len(t, ts.draws(sa.FramebufferID(), glapi.TRIANGLES), 1)
}

func TestRenderShadowErrors(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	atlas := st.ShadowAtlasCreate()
	require.NoError(t, st.ShadowAtlasSetSize(atlas, 512))
	omni := st.LightInstanceCreate(st.LightCreate(storage.LightOmni))

	assert.ErrorIs(t, ts.r.RenderShadow(omni, atlas, 0, nil), ErrNoShadowSlot)
	assert.ErrorIs(t, ts.r.RenderShadow(omni, atlas, 2, nil), storage.ErrInvalidArgument, "dual paraboloid has two passes")
	assert.ErrorIs(t, ts.r.RenderShadow(st.MeshCreate(), atlas, 0, nil), storage.ErrInvalidHandle)
}

func TestNo3DTargetSkipsScene(t *testing.T) {
	ts := newTestRenderer(t, nil)
	require.NoError(t, ts.st.RenderTargetSetFlag(ts.rt, storage.RenderTargetNo3D, true))
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)

	ts.render(t, func(fs *FrameState) { fs.Instances = []ecs.Entity{cube} })
	assert.Empty(t, ts.dev.Draws())
}

func TestWireframeDrawsLines(t *testing.T) {
	ts := newTestRenderer(t, map[string]any{storage.KeyGenerateWireframes: true})
	cube := ts.addCube(t, gmath.Vec3Zero, ecs.Null)

	ts.render(t, func(fs *FrameState) {
		fs.Instances = []ecs.Entity{cube}
		fs.Wireframe = true
	})

	rt := ts.st.RenderTarget(ts.rt)
	assert.Empty(t, ts.draws(rt.FBO(), glapi.TRIANGLES))
	assert.Len(t, ts.draws(rt.FBO(), glapi.LINES), 1)
}

func TestCameraFeedBackground(t *testing.T) {
	ts := newTestRenderer(t, nil)
	st := ts.st
	require.NoError(t, st.RenderTargetSetFlag(ts.rt, storage.RenderTargetNo3DEffects, true))
	env := st.EnvironmentCreate()
	st.EnvironmentSetBackground(env, storage.BackgroundCameraFeed)
	st.EnvironmentSetCameraFeedID(env, 7)
	feed := &fakeFeed{id: 7, y: 11, cbcr: 12}
	ts.r.SetCameraFeed(feed)

	ts.render(t, func(fs *FrameState) { fs.Environment = env })

	quads := ts.draws(st.RenderTarget(ts.rt).FBO(), glapi.TRIANGLE_FAN)
	require.Len(t, quads, 1)
	assert.True(t, ts.hasDefine(quads[0], "USE_CAMERA_FEED"))
	assert.True(t, ts.hasDefine(quads[0], "USE_YCBCR"))
	assert.Equal(t, uint32(11), quads[0].Textures[uint32(storage.UnitSource)])
	assert.Equal(t, uint32(12), quads[0].Textures[uint32(storage.UnitAux)])
}

type fakeFeed struct {
	id      int
	y, cbcr uint32
}

func (f *fakeFeed) FeedTextures(id int) (y, cbcr uint32, ycbcr, ok bool) {
	if id != f.id {
		return 0, 0, false, false
	}
	return f.y, f.cbcr, true, true
}
