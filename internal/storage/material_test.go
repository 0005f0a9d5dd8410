package storage

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	gmath "gles3render/math"
)

const paramShader = `shader_type spatial;
uniform float roughness : hint_range(0, 1) = 0.5;
uniform vec3 tint : source_color = vec3(1.0, 1.0, 1.0);
uniform vec4 params;
uniform sampler2D albedo_tex : hint_albedo;
uniform sampler2D normal_tex : hint_normal;
void fragment() {
	ALBEDO = texture(albedo_tex, UV).rgb * tint * roughness;
}
`

func uboFloat(b []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[offset:]))
}

func newShaderMaterial(t *testing.T, s *Storage, code string) (sh, mat ecs.Entity) {
	t.Helper()
	sh = s.ShaderCreate()
	s.ShaderSetCode(sh, code)
	mat = s.MaterialCreate()
	s.MaterialSetShader(mat, sh)
	s.UpdateDirty()
	return sh, mat
}

func TestMaterialUniformBuffer(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	_, e := newShaderMaterial(t, s, paramShader)

	m := ecs.Get[Material](s.Registry(), e)
	require.NotNil(t, m)
	require.Equal(t, 48, m.UBOSize)
	require.NotZero(t, m.UBOID())

	gpu := env.dev.BufferContents(m.UBOID())
	assert.Equal(t, float32(0.5), uboFloat(gpu, 0), "declared default")
	assert.Equal(t, float32(1), uboFloat(gpu, 16))
	assert.Zero(t, uboFloat(gpu, 32))

	tint := core.Color{R: 0.5, G: 0.25, B: 1, A: 1}
	s.MaterialSetParam(e, "roughness", float32(0.75))
	s.MaterialSetParam(e, "tint", tint)
	s.MaterialSetParam(e, "params", gmath.Vec4{X: 1, Y: 2, Z: 3, W: 4})
	s.UpdateDirty()

	gpu = env.dev.BufferContents(m.UBOID())
	assert.Equal(t, m.UBOData, gpu)
	assert.Equal(t, float32(0.75), uboFloat(gpu, 0))
	lin := tint.ToLinear()
	assert.InDelta(t, lin.R, uboFloat(gpu, 16), 1e-6, "source colors are linearized")
	assert.InDelta(t, lin.G, uboFloat(gpu, 20), 1e-6)
	for i, want := range []float32{1, 2, 3, 4} {
		assert.Equal(t, want, uboFloat(gpu, 32+4*i))
	}

	s.MaterialSetParam(e, "roughness", nil)
	s.UpdateDirty()
	assert.Equal(t, float32(0.5), uboFloat(env.dev.BufferContents(m.UBOID()), 0), "cleared param falls back to default")
	assert.Equal(t, []float32{0.5}, s.MaterialGetParamDefault(e, "roughness"))
}

func TestMaterialTexturesFollowHints(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	sh, e := newShaderMaterial(t, s, paramShader)
	m := ecs.Get[Material](s.Registry(), e)

	require.Len(t, m.Textures, 2)
	assert.Equal(t, s.Defaults.White, m.Textures[0])
	assert.Equal(t, s.Defaults.Normal, m.Textures[1])

	s.ShaderSetDefaultTextureParam(sh, "albedo_tex", s.Defaults.Black)
	s.UpdateDirty()
	assert.Equal(t, s.Defaults.Black, m.Textures[0])

	tex := s.TextureCreate()
	s.MaterialSetParam(e, "albedo_tex", tex)
	s.UpdateDirty()
	assert.Equal(t, tex, m.Textures[0])

	require.True(t, s.Free(tex))
	s.MaterialSetParam(e, "albedo_tex", tex)
	s.UpdateDirty()
	assert.Equal(t, s.Defaults.Black, m.Textures[0], "freed texture falls back")
}

func TestMaterialFlagsFromShader(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	_, opaque := newShaderMaterial(t, s, "shader_type spatial;\nvoid fragment() { ALBEDO = vec3(1.0); }")
	assert.True(t, s.MaterialCastsShadow(opaque))
	assert.False(t, s.MaterialIsAnimated(opaque))

	_, additive := newShaderMaterial(t, s, "shader_type spatial;\nrender_mode blend_add;\n")
	assert.False(t, s.MaterialCastsShadow(additive))

	_, animated := newShaderMaterial(t, s, "shader_type spatial;\nvoid fragment() { ALBEDO = vec3(sin(TIME)); }")
	assert.True(t, s.MaterialIsAnimated(animated))

	s.MaterialSetNextPass(opaque, animated)
	assert.True(t, s.MaterialIsAnimated(opaque), "next pass animates the chain")
	s.MaterialSetNextPass(animated, opaque)
	assert.True(t, s.MaterialIsAnimated(animated), "cycles terminate")

	s.MaterialSetNextPass(opaque, opaque)
	assert.Equal(t, animated, ecs.Get[Material](s.Registry(), opaque).NextPass, "self chain refused")
}

func TestMaterialInvalidShaderUsesDefault(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	sh, e := newShaderMaterial(t, s, paramShader)

	got, _, _ := s.ResolveMaterial(e)
	assert.Equal(t, e, got)

	s.ShaderSetCode(sh, "shader_type spatial;\nuniform vec5 broken;")
	s.UpdateDirty()
	assert.False(t, ecs.Get[Shader](s.Registry(), sh).Valid)
	got, _, _ = s.ResolveMaterial(e)
	assert.Equal(t, s.DefaultMaterial, got)
	m := ecs.Get[Material](s.Registry(), e)
	assert.Zero(t, m.UBOSize)
	assert.Zero(t, m.UBOID())

	s.ShaderSetCode(sh, paramShader)
	s.UpdateDirty()
	got, _, _ = s.ResolveMaterial(e)
	assert.Equal(t, e, got)
	assert.Equal(t, 48, m.UBOSize)
}

func TestMaterialSurvivesShaderFree(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	sh, e := newShaderMaterial(t, s, paramShader)
	buffers := env.dev.Live("buffer")

	require.True(t, s.Free(sh))
	assert.True(t, s.MaterialGetShader(e).IsNull())
	s.UpdateDirty()
	assert.Equal(t, buffers-1, env.dev.Live("buffer"), "uniform buffer released")

	require.True(t, s.Free(e))
	assert.Equal(t, buffers-1, env.dev.Live("buffer"))
}

func TestMaterialRenderPriorityClamped(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.MaterialCreate()
	m := ecs.Get[Material](s.Registry(), e)

	for _, tc := range []struct {
		in, want int
	}{
		{12, 12},
		{15, 15},
		{16, 15},
		{-16, -16},
		{-17, -16},
		{500, RenderPriorityMax},
		{-500, RenderPriorityMin},
	} {
		s.MaterialSetRenderPriority(e, tc.in)
		assert.Equal(t, tc.want, m.RenderPriority, "priority %d", tc.in)
	}
}

func TestMaterialOwnerCounts(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.MaterialCreate()
	m := ecs.Get[Material](s.Registry(), e)
	owner := s.MeshCreate()

	assert.True(t, s.MaterialAddGeometry(e, owner))
	assert.True(t, s.MaterialAddGeometry(e, owner))
	assert.Equal(t, 1, m.GeometryOwners())
	s.MaterialRemoveGeometry(e, owner)
	assert.Equal(t, 1, m.GeometryOwners(), "one reference left")
	s.MaterialRemoveGeometry(e, owner)
	assert.Zero(t, m.GeometryOwners())

	assert.False(t, s.MaterialAddGeometry(ecs.Null, owner))
	assert.True(t, s.MaterialAddInstance(e, owner))
	assert.Equal(t, 1, m.InstanceOwners())
}

func TestShaderParamListOrder(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	sh := s.ShaderCreate()
	s.ShaderSetCode(sh, paramShader)

	var names []string
	for _, u := range s.ShaderGetParamList(sh) {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"roughness", "tint", "params", "albedo_tex", "normal_tex"}, names)
	assert.Equal(t, paramShader, s.ShaderGetCode(sh))
}
