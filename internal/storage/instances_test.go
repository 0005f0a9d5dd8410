package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	gmath "gles3render/math"
)

func newMeshInstance(t *testing.T, s *Storage) (mesh, inst ecs.Entity) {
	t.Helper()
	mesh = s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), nil)
	require.NoError(t, err)
	inst = s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, mesh))
	return mesh, inst
}

func TestInstanceBaseAndBounds(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mesh, e := newMeshInstance(t, s)
	in := s.Instance(e)
	assert.Equal(t, InstanceMesh, in.BaseType)
	assert.True(t, in.BaseType.Geometry())

	s.InstanceSetTransform(e, gmath.Mat4Translation(gmath.NewVec3(1, 2, 3)))
	box := s.InstanceGetAABB(e)
	assert.Equal(t, gmath.NewVec3(1, 2, 3), box.Position, "dirty bounds refresh on read")
	assert.Equal(t, gmath.NewVec3(1, 1, 0), box.Size)
	assert.False(t, in.Mirror)

	s.InstanceSetTransform(e, gmath.Mat4Scale(gmath.NewVec3(-1, 1, 1)))
	s.UpdateDirtyInstances()
	assert.True(t, in.Mirror, "negative scale flips winding")

	require.True(t, s.Free(mesh))
	assert.Equal(t, InstanceNone, in.BaseType)
	assert.True(t, in.Base.IsNull())
	s.UpdateDirtyInstances()
	assert.Equal(t, gmath.AABB{}, in.AABB)
}

func TestInstanceSetBaseRejectsNonBase(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mesh, e := newMeshInstance(t, s)

	err := s.InstanceSetBase(e, s.MaterialCreate())
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, InstanceNone, s.Instance(e).BaseType)
	assert.Empty(t, ecs.Get[Mesh](s.Registry(), mesh).instances, "old base forgets the instance")

	require.NoError(t, s.InstanceSetBase(e, s.LightCreate(LightOmni)))
	assert.Equal(t, InstanceLight, s.Instance(e).BaseType)
	assert.False(t, s.Instance(e).BaseType.Geometry())
	require.NoError(t, s.InstanceSetBase(e, ecs.Null))
	assert.Equal(t, InstanceNone, s.Instance(e).BaseType)
}

func TestInstanceMaterialSlots(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	_, e := newMeshInstance(t, s)
	in := s.Instance(e)
	override := s.MaterialCreate()
	extra := s.MaterialCreate()

	require.NoError(t, s.InstanceSetMaterialOverride(e, override))
	assert.Equal(t, override, in.SurfaceMaterial(0, ecs.Null))
	assert.Equal(t, 1, ecs.Get[Material](s.Registry(), override).InstanceOwners())

	require.NoError(t, s.InstanceSetSurfaceMaterial(e, 2, extra))
	require.Len(t, in.Materials, 3)
	assert.Equal(t, 1, ecs.Get[Material](s.Registry(), extra).InstanceOwners())
	s.UpdateDirtyInstances()
	assert.Len(t, in.Materials, 1, "slots past the surface count are trimmed")
	assert.Zero(t, ecs.Get[Material](s.Registry(), extra).InstanceOwners())

	require.True(t, s.Free(override))
	assert.True(t, in.MaterialOverride.IsNull(), "freed material leaves the instance")

	assert.ErrorIs(t, s.InstanceSetMaterialOverlay(e, s.TextureCreate()), ErrInvalidHandle)
	assert.ErrorIs(t, s.InstanceSetSurfaceMaterial(e, -1, extra), ErrInvalidArgument)

	require.NoError(t, s.InstanceSetMaterialOverlay(e, extra))
	require.True(t, s.Free(e))
	assert.Zero(t, ecs.Get[Material](s.Registry(), extra).InstanceOwners())
}

func TestInstanceShadowAndAnimationFlags(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mesh, e := newMeshInstance(t, s)
	in := s.Instance(e)
	_, opaque := newShaderMaterial(t, s, "shader_type spatial;\nvoid fragment() { ALBEDO = vec3(1.0); }")
	_, additive := newShaderMaterial(t, s, "shader_type spatial;\nrender_mode blend_add;\n")
	_, animated := newShaderMaterial(t, s, "shader_type spatial;\nvoid fragment() { ALBEDO = vec3(sin(TIME)); }")

	s.MeshSurfaceSetMaterial(mesh, 0, opaque)
	s.UpdateDirtyInstances()
	assert.True(t, in.CastsShadow)
	assert.False(t, in.Animated)

	s.InstanceSetCastShadows(e, ShadowCastingOff)
	s.UpdateDirtyInstances()
	assert.False(t, in.CastsShadow)

	s.InstanceSetCastShadows(e, ShadowCastingOn)
	require.NoError(t, s.InstanceSetMaterialOverride(e, additive))
	s.UpdateDirtyInstances()
	assert.False(t, in.CastsShadow, "override decides")

	require.NoError(t, s.InstanceSetMaterialOverride(e, ecs.Null))
	require.NoError(t, s.InstanceSetMaterialOverlay(e, animated))
	s.UpdateDirtyInstances()
	assert.True(t, in.CastsShadow)
	assert.True(t, in.Animated, "animated overlay")
}

func TestInstanceLightmapCapture(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.InstanceCreate()
	in := s.Instance(e)

	err := s.InstanceSetLightmapCapture(e, make([]core.Color, 5))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, in.UseLightmapCapture)

	data := []core.Color{core.ColorWhite, core.ColorBlack, core.ColorWhite, core.ColorBlack, core.ColorWhite, core.ColorBlack}
	require.NoError(t, s.InstanceSetLightmapCapture(e, data))
	assert.True(t, in.UseLightmapCapture)
	assert.Equal(t, core.ColorWhite, in.LightmapCapture[4])

	require.NoError(t, s.InstanceSetLightmapCapture(e, nil))
	assert.False(t, in.UseLightmapCapture)

	assert.ErrorIs(t, s.InstanceSetLightmap(e, s.MaterialCreate(), 0, gmath.Vec4{}), ErrInvalidHandle)
	tex := s.TextureCreate()
	uv := gmath.Vec4{X: 0.5, Y: 0, Z: 0.5, W: 1}
	require.NoError(t, s.InstanceSetLightmap(e, tex, 2, uv))
	assert.Equal(t, tex, in.Lightmap)
	assert.Equal(t, 2, in.LightmapSlice)
	assert.Equal(t, uv, in.LightmapUVScale)
}

func TestInstancePairingCaps(t *testing.T) {
	env := newTestStorage(t, map[string]any{KeyMaxLightsPerObject: 2})
	s := env.s
	e := s.InstanceCreate()
	in := s.Instance(e)

	lights := []ecs.Entity{
		newLightInstance(s, LightOmni), newLightInstance(s, LightSpot), newLightInstance(s, LightOmni),
	}
	s.InstancePairLights(e, lights)
	assert.Equal(t, lights[:2], in.Lights)

	probes := []ecs.Entity{s.InstanceCreate(), s.InstanceCreate(), s.InstanceCreate()}
	s.InstancePairGIProbes(e, probes)
	assert.Len(t, in.GIProbes, MaxInstanceGIProbes)
	s.InstancePairReflectionProbes(e, probes)
	assert.Len(t, in.ReflectionProbes, 3)

	s.InstancePairLights(e, nil)
	assert.Empty(t, in.Lights)
}

func TestInstanceTypeNames(t *testing.T) {
	assert.Equal(t, "gi_probe", InstanceGIProbe.String())
	assert.Equal(t, "InstanceType(42)", InstanceType(42).String())
}
