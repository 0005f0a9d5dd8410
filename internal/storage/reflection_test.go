package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	gmath "gles3render/math"
)

func newReflectionAtlas(t *testing.T, s *Storage, size, subdiv int) (ecs.Entity, *ReflectionAtlas) {
	t.Helper()
	e := s.ReflectionAtlasCreate()
	require.NoError(t, s.ReflectionAtlasSetSize(e, size))
	require.NoError(t, s.ReflectionAtlasSetSubdivision(e, subdiv))
	return e, ecs.Get[ReflectionAtlas](s.Registry(), e)
}

func probeInstance(s *Storage, pi ecs.Entity) *ReflectionProbeInstance {
	return ecs.Get[ReflectionProbeInstance](s.Registry(), pi)
}

func TestReflectionAtlasLayout(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	_, a := newReflectionAtlas(t, s, 200, 3)

	assert.Equal(t, 256, a.Size)
	assert.Equal(t, 4, a.Subdiv)
	assert.Equal(t, ReflectionAtlasMipmaps, a.Levels())
	assert.NotZero(t, a.LevelFramebuffer(ReflectionAtlasMipmaps-1))
	assert.Zero(t, a.LevelFramebuffer(ReflectionAtlasMipmaps))
	assert.Equal(t, core.Rect2i{X: 64, Y: 64, Width: 64, Height: 64}, a.SlotRect(5))
	assert.NotNil(t, env.dev.TextureImage(a.ColorID(), 0x0DE1, ReflectionAtlasMipmaps-1))
}

func TestReflectionAtlasRejectsBadSubdivision(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.ReflectionAtlasCreate()
	assert.ErrorIs(t, s.ReflectionAtlasSetSubdivision(e, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.ReflectionAtlasSetSubdivision(e, 17), ErrInvalidArgument)
	assert.ErrorIs(t, s.ReflectionAtlasSetSize(e, -4), ErrInvalidArgument)
}

func TestReflectionProbeRenderCycle(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	atlas, a := newReflectionAtlas(t, s, 256, 2)
	probe := s.ReflectionProbeCreate()
	e := s.ReflectionProbeInstanceCreate(probe)

	assert.True(t, s.ReflectionProbeInstanceNeedsRedraw(e))
	assert.False(t, s.ReflectionProbeInstanceHasReflection(e))

	s.BeginFrame()
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(e, atlas))
	pi := probeInstance(s, e)
	assert.Equal(t, 0, pi.AtlasIndex)
	assert.Equal(t, e, a.Owner(0))
	assert.True(t, s.ReflectionProbeInstanceHasReflection(e))

	for step := 1; step < ReflectionRenderSteps; step++ {
		assert.False(t, s.ReflectionProbeInstancePostprocessStep(e), "step %d", step)
	}
	assert.True(t, s.ReflectionProbeInstancePostprocessStep(e))
	assert.False(t, s.ReflectionProbeInstanceNeedsRedraw(e))

	s.ReflectionProbeSetIntensity(probe, 2)
	assert.True(t, s.ReflectionProbeInstanceNeedsRedraw(e), "probe changes dirty the instance")
	assert.Equal(t, float32(2), s.ReflectionProbe(probe).Intensity)

	s.ReflectionProbeSetUpdateMode(probe, ReflectionUpdateAlways)
	for range ReflectionRenderSteps {
		s.ReflectionProbeInstancePostprocessStep(e)
	}
	assert.True(t, s.ReflectionProbeInstanceNeedsRedraw(e), "always mode")

	s.BeginFrame()
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(e, atlas))
	assert.Equal(t, 0, pi.AtlasIndex, "slot kept across frames")
}

func TestReflectionAtlasSaturation(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	atlas, a := newReflectionAtlas(t, s, 128, 1)
	probe := s.ReflectionProbeCreate()
	first := s.ReflectionProbeInstanceCreate(probe)
	second := s.ReflectionProbeInstanceCreate(probe)

	s.BeginFrame()
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(first, atlas))
	err := s.ReflectionProbeInstanceBeginRender(second, atlas)
	assert.ErrorIs(t, err, ErrAtlasFull, "slot in use this frame")
	assert.Equal(t, -1, probeInstance(s, second).AtlasIndex)

	s.BeginFrame()
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(second, atlas))
	assert.Equal(t, second, a.Owner(0))
	assert.Equal(t, -1, probeInstance(s, first).AtlasIndex, "evicted probe loses its slot")
	assert.True(t, probeInstance(s, first).Dirty)
	assert.False(t, s.ReflectionProbeInstanceHasReflection(first))

	s.BeginFrame()
	s.ReflectionProbeInstanceMarkUsed(second)
	assert.ErrorIs(t, s.ReflectionProbeInstanceBeginRender(first, atlas), ErrAtlasFull, "used slots are protected")
}

func TestReflectionAtlasLeastRecentlyUsed(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	atlas, a := newReflectionAtlas(t, s, 128, 2)
	probe := s.ReflectionProbeCreate()
	var probes []ecs.Entity
	for i := 0; i < 4; i++ {
		s.BeginFrame()
		e := s.ReflectionProbeInstanceCreate(probe)
		require.NoError(t, s.ReflectionProbeInstanceBeginRender(e, atlas))
		probes = append(probes, e)
	}
	s.BeginFrame()
	s.ReflectionProbeInstanceMarkUsed(probes[0])

	s.BeginFrame()
	late := s.ReflectionProbeInstanceCreate(probe)
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(late, atlas))
	assert.Equal(t, 1, probeInstance(s, late).AtlasIndex, "oldest slot not marked used")
	assert.Equal(t, late, a.Owner(1))
	assert.Equal(t, -1, probeInstance(s, probes[1]).AtlasIndex)
}

func TestReflectionSlotsReleasedWithOwners(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	atlas, a := newReflectionAtlas(t, s, 128, 2)
	probe := s.ReflectionProbeCreate()
	e := s.ReflectionProbeInstanceCreate(probe)

	s.BeginFrame()
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(e, atlas))
	require.NoError(t, s.ReflectionAtlasSetSubdivision(atlas, 4))
	assert.Equal(t, -1, probeInstance(s, e).AtlasIndex, "subdivision change drops slots")

	require.NoError(t, s.ReflectionProbeInstanceBeginRender(e, atlas))
	s.ReflectionProbeReleaseAtlasIndex(e)
	assert.True(t, a.Owner(0).IsNull())

	require.NoError(t, s.ReflectionProbeInstanceBeginRender(e, atlas))
	require.True(t, s.Free(e))
	assert.True(t, a.Owner(0).IsNull())
	assert.Empty(t, s.ReflectionProbe(probe).probeInstances)

	other := s.ReflectionProbeInstanceCreate(probe)
	require.NoError(t, s.ReflectionProbeInstanceBeginRender(other, atlas))
	require.True(t, s.Free(atlas))
	assert.Equal(t, -1, probeInstance(s, other).AtlasIndex)
	assert.True(t, probeInstance(s, other).Atlas.IsNull())

	require.True(t, s.Free(probe))
	assert.True(t, probeInstance(s, other).Probe.IsNull())
	assert.False(t, s.ReflectionProbeInstanceNeedsRedraw(other))
}

func TestReflectionProbeAABB(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	probe := s.ReflectionProbeCreate()
	s.ReflectionProbeSetExtents(probe, gmath.NewVec3(1, 2, 3))

	box := s.ReflectionProbeGetAABB(probe)
	assert.Equal(t, gmath.NewVec3(-1, -2, -3), box.Position)
	assert.Equal(t, gmath.NewVec3(2, 4, 6), box.Size)
}

func TestReflectionCubemapPool(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	assert.Equal(t, 128, s.ReflectionCubemapFor(100).Size)
	assert.Equal(t, 32, s.ReflectionCubemapFor(1).Size)
	assert.Equal(t, ReflectionCubemapMaxSize, s.ReflectionCubemapFor(4096).Size)
	c := s.ReflectionCubemapFor(64)
	fb := env.dev.FramebufferState(c.FaceFramebuffer(2))
	assert.Equal(t, c.CubemapID(), fb.Attachments[0x8CE0].Texture)
}
