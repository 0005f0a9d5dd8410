package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/glapi/glfake"
	"gles3render/internal/shader"
)

const testSceneVertex = `
layout(location = 0) in vec3 vertex_attrib;
uniform mat4 world_transform;
/* MATERIAL UNIFORMS */
/* VERTEX GLOBALS */
void main() {
	vec3 VERTEX = vertex_attrib;
/* VERTEX CODE */
	gl_Position = world_transform * vec4(VERTEX, 1.0);
}
`

const testSceneFragment = `
/* MATERIAL UNIFORMS */
/* FRAGMENT GLOBALS */
out vec4 frag_color;
void main() {
	vec3 ALBEDO = vec3(1.0);
	float ALPHA = 1.0;
/* FRAGMENT CODE */
	frag_color = vec4(ALBEDO, ALPHA);
}
`

type testEnv struct {
	s     *Storage
	dev   *glfake.Device
	clock *core.ManualClock
}

// newTestStorage builds a storage on a fake device with small shadow
// buffers. overrides are applied on top of the defaults.
func newTestStorage(t *testing.T, overrides map[string]any) testEnv {
	t.Helper()
	dev := glfake.New()
	feat := glapi.QueryFeatures(dev)

	set := core.NewSettings()
	set.Set(KeyDirectionalShadowSize, 256)
	set.Set(KeyShadowCubemapSize, 64)
	set.Set(KeyImmediateBufferSize, 64)
	for k, v := range overrides {
		set.Set(k, v)
	}
	cfg := NewConfig(set)

	mgr, err := shader.NewManager(dev, feat, shader.Options{Mode: shader.CompileSync})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	clock := &core.ManualClock{Now: 1_000_000}
	src := Sources{Scene: shader.NewSceneSource("scene", testSceneVertex, testSceneFragment)}
	s, err := New(dev, feat, cfg, mgr, src, clock)
	require.NoError(t, err)
	t.Cleanup(s.Finalize)
	return testEnv{s: s, dev: dev, clock: clock}
}

func TestNewCreatesDefaults(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	for _, e := range []ecs.Entity{s.Defaults.White, s.Defaults.Black, s.Defaults.Normal, s.Defaults.White3D, s.Defaults.WhiteArray} {
		tex := s.ResolveTexture(e)
		require.NotNil(t, tex)
		assert.True(t, tex.Active)
		assert.NotZero(t, tex.ID())
	}
	sh := ecs.Get[Shader](s.Registry(), s.DefaultShader)
	require.NotNil(t, sh)
	assert.True(t, sh.Valid)

	rm, m, rsh := s.ResolveMaterial(ecs.Null)
	assert.Equal(t, s.DefaultMaterial, rm)
	assert.NotNil(t, m)
	assert.Equal(t, sh, rsh)
	assert.Equal(t, 256, s.DirectionalShadow().Size)
}

func TestFreeRefusesOwnedAndDefaultResources(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	assert.False(t, s.Free(s.DefaultMaterial))
	assert.False(t, s.Free(s.DefaultShader))
	assert.True(t, s.Owns(s.DefaultMaterial))

	rt := s.RenderTargetCreate()
	tex := s.RenderTargetGetTexture(rt)
	require.False(t, tex.IsNull())
	assert.False(t, s.Free(tex), "render target texture cannot be freed alone")
	assert.True(t, s.Free(rt))
	assert.False(t, s.Owns(tex), "texture goes with its render target")
	assert.False(t, s.Free(rt))
}

func TestFinalizeReleasesEveryGLObject(t *testing.T) {
	dev := glfake.New()
	feat := glapi.QueryFeatures(dev)
	set := core.NewSettings()
	set.Set(KeyDirectionalShadowSize, 128)
	set.Set(KeyShadowCubemapSize, 32)
	mgr, err := shader.NewManager(dev, feat, shader.Options{})
	require.NoError(t, err)
	defer mgr.Close()

	s, err := New(dev, feat, NewConfig(set), mgr, Sources{}, &core.ManualClock{})
	require.NoError(t, err)

	rt := s.RenderTargetCreate()
	require.NoError(t, s.RenderTargetSetSize(rt, 64, 32))
	atlas := s.ShadowAtlasCreate()
	require.NoError(t, s.ShadowAtlasSetSize(atlas, 256))
	mesh := s.MeshCreate()
	_, err = s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), nil)
	require.NoError(t, err)
	assert.NotZero(t, dev.Live("texture"))

	s.Finalize()
	for _, kind := range []string{"texture", "buffer", "framebuffer", "renderbuffer", "vertex array"} {
		assert.Zero(t, dev.Live(kind), kind)
	}
	assert.Zero(t, s.Registry().Alive())
}

func TestDestroyedHandlesFailLookup(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	m := s.MaterialCreate()
	require.True(t, s.Free(m))
	m2 := s.MaterialCreate()
	assert.Equal(t, m.Index(), m2.Index(), "slot is reused")
	assert.NotEqual(t, m, m2)

	s.MaterialSetParam(m, "x", float32(1))
	assert.Nil(t, s.MaterialGetParam(m, "x"))
	assert.Nil(t, ecs.Get[Material](s.Registry(), m))
	assert.NotNil(t, ecs.Get[Material](s.Registry(), m2))
}
