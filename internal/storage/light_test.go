package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	gmath "gles3render/math"
)

func TestLightParamsAndVersion(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	l := s.LightCreate(LightSpot)
	assert.Equal(t, LightSpot, s.LightGetType(l))
	assert.Equal(t, float32(45), s.LightGetParam(l, LightParamSpotAngle))

	v := s.LightGetVersion(l)
	s.LightSetParam(l, LightParamEnergy, 3)
	s.LightSetColor(l, core.Color{R: 1, A: 1})
	assert.Equal(t, v, s.LightGetVersion(l), "shading-only changes keep shadows")
	assert.Equal(t, float32(3), s.LightGetParam(l, LightParamEnergy))

	s.LightSetParam(l, LightParamRange, 5)
	s.LightSetShadow(l, true)
	s.LightSetCullMask(l, 1)
	assert.Equal(t, v+3, s.LightGetVersion(l))

	s.LightSetParam(l, LightParamMax, 1)
	assert.Zero(t, s.LightGetParam(l, LightParamMax))
	assert.Zero(t, s.LightGetParam(l, -1))
	assert.Equal(t, v+3, s.LightGetVersion(l))
}

func TestLightAABB(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	omni := s.LightCreate(LightOmni)
	s.LightSetParam(omni, LightParamRange, 2)
	box := s.LightGetAABB(omni)
	assert.Equal(t, gmath.NewVec3(-2, -2, -2), box.Position)
	assert.Equal(t, gmath.NewVec3(4, 4, 4), box.Size)

	spot := s.LightCreate(LightSpot)
	s.LightSetParam(spot, LightParamRange, 2)
	box = s.LightGetAABB(spot)
	assert.InDelta(t, -2, box.Position.X, 1e-5)
	assert.Equal(t, float32(-2), box.Position.Z)
	assert.Equal(t, float32(2), box.Size.Z)

	s.LightSetParam(spot, LightParamSpotAngle, 120)
	box = s.LightGetAABB(spot)
	assert.Equal(t, float32(4), box.Size.X, "wide cones are capped at the range")

	assert.Equal(t, gmath.AABB{}, s.LightGetAABB(s.LightCreate(LightDirectional)))
}

func TestLightChangesDirtyInstances(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	l := s.LightCreate(LightOmni)
	inst := s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, l))
	s.UpdateDirtyInstances()

	s.LightSetParam(l, LightParamRange, 3)
	assert.True(t, s.dirtyInstances.Contains(inst))
	assert.Equal(t, gmath.NewVec3(6, 6, 6), s.InstanceGetAABB(inst).Size)

	require.True(t, s.Free(l))
	assert.Equal(t, InstanceNone, s.Instance(inst).BaseType)
}

func TestLightInstanceVisibility(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	assert.True(t, s.LightInstanceCreate(s.MaterialCreate()).IsNull())

	e := newLightInstance(s, LightSpot)
	li := s.LightInstance(e)
	require.NotNil(t, li)

	pass := s.BeginScenePass()
	env.clock.Advance(3 * time.Millisecond)
	s.LightInstanceMarkVisible(e)
	assert.Equal(t, pass, li.LastScenePass)
	assert.Equal(t, env.clock.Usec(), li.LastVisibleUsec)

	st := ShadowTransform{Far: 10, Split: 0.5}
	s.LightInstanceSetShadowTransform(e, 3, st)
	s.LightInstanceSetShadowTransform(e, 4, ShadowTransform{Far: 1})
	assert.Equal(t, st, li.ShadowTransforms[3])
}

func TestDirectionalShadowSplits(t *testing.T) {
	assert.Equal(t, 1, DirectionalShadowOrthogonal.Splits())
	assert.Equal(t, 2, DirectionalShadowPSSM2.Splits())
	assert.Equal(t, 4, DirectionalShadowPSSM4.Splits())
}
