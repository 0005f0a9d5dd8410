package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
)

func newPanorama(t *testing.T, s *Storage) ecs.Entity {
	t.Helper()
	pano := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(pano, 8, 4, 1, ImageRGBA8, TextureType2D, FlagFilter))
	return pano
}

func drawsInto(env testEnv, fbo uint32) int {
	n := 0
	for _, d := range env.dev.Draws() {
		if d.Framebuffer == fbo {
			n++
		}
	}
	return n
}

func TestSkyRadianceAllocation(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mem := s.Info().TextureMem
	e := s.SkyCreate()
	pano := newPanorama(t, s)
	panoMem := s.Info().TextureMem - mem

	require.NoError(t, s.SkySetTexture(e, pano, 50))
	sk := s.Sky(e)
	assert.Equal(t, 64, sk.RadianceSize)
	assert.Equal(t, 5, sk.RadianceLevels(), "levels stop at 4x4")
	assert.False(t, sk.Filtered)
	assert.Equal(t, mem+panoMem+6*8*(64*64+32*32+16*16+8*8+4*4), s.Info().TextureMem)

	tex := env.dev.TextureState(sk.RadianceID())
	require.NotNil(t, tex)
	assert.Equal(t, float32(4), tex.Params[glapi.TEXTURE_MAX_LEVEL])

	require.NoError(t, s.SkySetTexture(e, ecs.Null, 64))
	assert.Zero(t, sk.RadianceID())
	assert.Equal(t, mem+panoMem, s.Info().TextureMem)
}

func TestSkySetTextureValidation(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.SkyCreate()

	assert.ErrorIs(t, s.SkySetTexture(e, s.MaterialCreate(), 64), ErrInvalidHandle)
	assert.True(t, s.Sky(e).Panorama.IsNull())
	assert.ErrorIs(t, s.SkySetTexture(e, newPanorama(t, s), 16), ErrInvalidArgument)
	assert.Zero(t, s.Sky(e).RadianceID())
	assert.ErrorIs(t, s.SkySetTexture(s.MaterialCreate(), ecs.Null, 64), ErrInvalidHandle)
}

func TestSkyFiltering(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.SkyCreate()
	require.NoError(t, s.SkySetTexture(e, newPanorama(t, s), 32))
	sk := s.Sky(e)
	require.Equal(t, 4, sk.RadianceLevels())

	s.UpdateDirty()
	assert.True(t, sk.Filtered)
	assert.Equal(t, 4*6, drawsInto(env, sk.fbo.ID()), "one draw per level and face")

	last := env.dev.FramebufferState(sk.fbo.ID()).Attachments[glapi.COLOR_ATTACHMENT0]
	assert.Equal(t, sk.RadianceID(), last.Texture)
	assert.Equal(t, int32(3), last.Level)
	assert.Equal(t, uint32(glapi.TEXTURE_CUBE_MAP_POSITIVE_X+5), last.Target)

	env.dev.ResetRecording()
	s.UpdateDirty()
	assert.Zero(t, drawsInto(env, sk.fbo.ID()), "filtered once")
}

func TestSkyWaitsForPanorama(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.SkyCreate()
	pano := s.TextureCreate()
	require.NoError(t, s.SkySetTexture(e, pano, 32))

	s.UpdateDirtySkies()
	assert.False(t, s.Sky(e).Filtered, "panorama has no storage yet")

	require.NoError(t, s.TextureAllocate(pano, 8, 4, 1, ImageRGBA8, TextureType2D, 0))
	s.UpdateDirtySkies()
	assert.True(t, s.Sky(e).Filtered)
}

func TestSkyFilterFailure(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.SkyCreate()
	require.NoError(t, s.SkySetTexture(e, newPanorama(t, s), 32))
	mem := s.Info().TextureMem

	env.dev.IncompleteFBO = func(uint32) bool { return true }
	s.UpdateDirtySkies()
	env.dev.IncompleteFBO = nil
	assert.False(t, s.Sky(e).Filtered)

	require.True(t, s.Free(e))
	assert.Less(t, s.Info().TextureMem, mem)
}
