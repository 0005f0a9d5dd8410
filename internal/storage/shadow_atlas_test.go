package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
)

func newAtlas(t *testing.T, s *Storage, size int) ecs.Entity {
	t.Helper()
	a := s.ShadowAtlasCreate()
	require.NoError(t, s.ShadowAtlasSetSize(a, size))
	return a
}

func newLightInstance(s *Storage, typ LightType) ecs.Entity {
	return s.LightInstanceCreate(s.LightCreate(typ))
}

func TestShadowKeyPacking(t *testing.T) {
	for _, c := range []struct{ q, i int }{{0, 0}, {1, 3}, {3, 63}, {2, ShadowIndexMask}} {
		q, i := SplitShadowKey(ShadowKey(c.q, c.i))
		assert.Equal(t, c.q, q)
		assert.Equal(t, c.i, i)
	}
}

func TestShadowAtlasLayout(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := newAtlas(t, s, 1000)
	a := ecs.Get[ShadowAtlas](s.Registry(), e)

	assert.Equal(t, 1024, a.Size)
	assert.Equal(t, [4]int{0, 1, 2, 3}, a.SizeOrder)
	assert.Equal(t, core.Rect2i{X: 0, Y: 512, Width: 128, Height: 128}, a.SlotRect(ShadowKey(2, 0)))
	assert.Equal(t, core.Rect2i{X: 576, Y: 576, Width: 64, Height: 64}, a.SlotRect(ShadowKey(3, 9)))
	assert.Equal(t, core.Rect2i{X: 768, Y: 0, Width: 256, Height: 256}, a.SlotRect(ShadowKey(1, 1)))
	assert.NotZero(t, a.DepthID())

	require.NoError(t, s.ShadowAtlasSetQuadrantSubdivision(e, 0, 0))
	require.NoError(t, s.ShadowAtlasSetQuadrantSubdivision(e, 3, 3))
	assert.Equal(t, 4, a.Subdivision(3), "rounded to a power of two")
	assert.Equal(t, [4]int{1, 2, 3, 0}, a.SizeOrder, "disabled quadrants sort last")
	assert.ErrorIs(t, s.ShadowAtlasSetQuadrantSubdivision(e, 1, 17), ErrInvalidArgument)
	assert.ErrorIs(t, s.ShadowAtlasSetQuadrantSubdivision(e, 4, 1), ErrInvalidArgument)
}

func TestShadowAtlasLeaseIsStable(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := newAtlas(t, s, 1024)
	a := ecs.Get[ShadowAtlas](s.Registry(), e)
	light := newLightInstance(s, LightOmni)

	key, redraw, err := s.ShadowAtlasUpdateLight(e, light, 0.25, 1)
	require.NoError(t, err)
	assert.True(t, redraw)
	q, _ := SplitShadowKey(key)
	assert.Equal(t, 2, q, "128px slots fit a quarter of a 512px quadrant")
	assert.Equal(t, light, a.Owner(key))

	again, redraw, err := s.ShadowAtlasUpdateLight(e, light, 0.25, 1)
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.False(t, redraw, "unchanged version keeps the slot contents")

	_, redraw, err = s.ShadowAtlasUpdateLight(e, light, 0.25, 2)
	require.NoError(t, err)
	assert.True(t, redraw)

	other := newLightInstance(s, LightSpot)
	key2, _, err := s.ShadowAtlasUpdateLight(e, other, 0.25, 1)
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}

func TestShadowAtlasMovesAfterTolerance(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := newAtlas(t, s, 1024)
	a := ecs.Get[ShadowAtlas](s.Registry(), e)
	light := newLightInstance(s, LightOmni)

	small, _, err := s.ShadowAtlasUpdateLight(e, light, 0.25, 1)
	require.NoError(t, err)

	env.clock.Advance(100 * time.Millisecond)
	key, _, err := s.ShadowAtlasUpdateLight(e, light, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, small, key, "recent slots are kept")

	env.clock.Advance(time.Second)
	key, redraw, err := s.ShadowAtlasUpdateLight(e, light, 1, 1)
	require.NoError(t, err)
	assert.True(t, redraw)
	assert.Equal(t, ShadowKey(0, 0), key)
	assert.True(t, a.Owner(small).IsNull(), "old slot released")
}

func TestShadowAtlasEvictsStaleLights(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := newAtlas(t, s, 512)
	a := ecs.Get[ShadowAtlas](s.Registry(), e)
	for q := 1; q < 4; q++ {
		require.NoError(t, s.ShadowAtlasSetQuadrantSubdivision(e, q, 0))
	}

	first := newLightInstance(s, LightOmni)
	second := newLightInstance(s, LightOmni)

	s.BeginScenePass()
	s.LightInstanceMarkVisible(first)
	key, _, err := s.ShadowAtlasUpdateLight(e, first, 1, 1)
	require.NoError(t, err)

	_, _, err = s.ShadowAtlasUpdateLight(e, second, 1, 1)
	assert.ErrorIs(t, err, ErrAtlasFull, "visible this pass")

	s.BeginScenePass()
	env.clock.Advance(100 * time.Millisecond)
	_, _, err = s.ShadowAtlasUpdateLight(e, second, 1, 1)
	assert.ErrorIs(t, err, ErrAtlasFull, "seen within the tolerance")

	env.clock.Advance(time.Second)
	s.LightInstanceMarkVisible(second)
	got, redraw, err := s.ShadowAtlasUpdateLight(e, second, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.True(t, redraw)
	assert.Equal(t, second, a.Owner(key))
	_, held := a.Key(first)
	assert.False(t, held)

	_, _, err = s.ShadowAtlasUpdateLight(e, first, 1, 1)
	assert.ErrorIs(t, err, ErrAtlasFull)
}

func TestShadowAtlasReleasesOnDestroy(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := newAtlas(t, s, 1024)
	a := ecs.Get[ShadowAtlas](s.Registry(), e)
	light := newLightInstance(s, LightOmni)

	key, _, err := s.ShadowAtlasUpdateLight(e, light, 0.5, 1)
	require.NoError(t, err)
	require.True(t, s.Free(light))
	assert.True(t, a.Owner(key).IsNull())

	light = newLightInstance(s, LightOmni)
	_, _, err = s.ShadowAtlasUpdateLight(e, light, 0.5, 1)
	require.NoError(t, err)
	require.True(t, s.Free(e))
	assert.Empty(t, ecs.Get[LightInstance](s.Registry(), light).shadowAtlases)
}

func TestShadowAtlasResizeDropsLeases(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := newAtlas(t, s, 1024)
	a := ecs.Get[ShadowAtlas](s.Registry(), e)
	light := newLightInstance(s, LightOmni)
	mem := s.Info().TextureMem

	_, _, err := s.ShadowAtlasUpdateLight(e, light, 0.5, 1)
	require.NoError(t, err)

	require.NoError(t, s.ShadowAtlasSetSize(e, 2048))
	_, held := a.Key(light)
	assert.False(t, held)
	assert.Equal(t, mem+2048*2048*4-1024*1024*4, s.Info().TextureMem)

	require.NoError(t, s.ShadowAtlasSetSize(e, 0))
	assert.Zero(t, a.DepthID())
	_, _, err = s.ShadowAtlasUpdateLight(e, light, 0.5, 1)
	assert.ErrorIs(t, err, ErrAtlasFull)
	assert.ErrorIs(t, s.ShadowAtlasSetSize(e, -1), ErrInvalidArgument)
}

func TestShadowAtlasFramebufferFailureLeaksNothing(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.ShadowAtlasCreate()
	textures, fbos := env.dev.Live("texture"), env.dev.Live("framebuffer")

	env.dev.IncompleteFBO = func(uint32) bool { return true }
	assert.Error(t, s.ShadowAtlasSetSize(e, 512))
	env.dev.IncompleteFBO = nil

	assert.Equal(t, textures, env.dev.Live("texture"))
	assert.Equal(t, fbos, env.dev.Live("framebuffer"))
	assert.Zero(t, ecs.Get[ShadowAtlas](s.Registry(), e).Size)
}

func TestDirectionalCascadeRects(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	light := s.LightCreate(LightDirectional)

	assert.Equal(t, core.Rect2i{Width: 256, Height: 256}, s.DirectionalShadowGetCascadeRect(light, 0))

	s.LightDirectionalSetShadowMode(light, DirectionalShadowPSSM2)
	assert.Equal(t, core.Rect2i{X: 128, Width: 128, Height: 256}, s.DirectionalShadowGetCascadeRect(light, 1))

	s.LightDirectionalSetShadowMode(light, DirectionalShadowPSSM4)
	assert.Equal(t, core.Rect2i{X: 128, Y: 128, Width: 128, Height: 128}, s.DirectionalShadowGetCascadeRect(light, 3))
	assert.Equal(t, core.Rect2i{Y: 128, Width: 128, Height: 128}, s.DirectionalShadowGetCascadeRect(light, 2))
}

func TestShadowCubemapPool(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	require.NotNil(t, s.ShadowCubemapFor(40))
	assert.Equal(t, 64, s.ShadowCubemapFor(40).Size)
	assert.Equal(t, 32, s.ShadowCubemapFor(20).Size)
	assert.Equal(t, 64, s.ShadowCubemapFor(4096).Size, "largest when nothing fits")
	c := s.ShadowCubemapFor(32)
	assert.NotZero(t, c.CubemapID())
	assert.NotEqual(t, c.FaceFramebuffer(0), c.FaceFramebuffer(5))
}
