package glapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/glapi"
	"gles3render/internal/glapi/glfake"
)

func TestOwnedTakeAndRelease(t *testing.T) {
	dev := glfake.New()
	bufs, err := glapi.NewBuffers(dev, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, bufs.Len())
	assert.Equal(t, 3, dev.Live("buffer"))

	moved := bufs.Take()
	assert.False(t, bufs.Valid())
	assert.Equal(t, uint32(0), bufs.ID())
	assert.True(t, moved.Valid())

	bufs.Release()
	assert.Equal(t, 3, dev.Live("buffer"), "releasing a moved-from value frees nothing")

	moved.Release()
	moved.Release()
	assert.Equal(t, 0, dev.Live("buffer"))
}

func TestOwnedCopyDoubleFreePanics(t *testing.T) {
	dev := glfake.New()
	tex, err := glapi.NewTextures(dev, 1)
	require.NoError(t, err)
	alias := tex
	tex.Release()
	assert.Panics(t, func() { alias.Release() })
}

func TestOwnedCreationFailure(t *testing.T) {
	dev := glfake.New()
	dev.ZeroNames = map[string]bool{"framebuffer": true}
	fb, err := glapi.NewFramebuffers(dev, 2)
	assert.ErrorIs(t, err, glapi.ErrObjectCreation)
	assert.False(t, fb.Valid())
}

func TestBorrowedDoesNotRelease(t *testing.T) {
	dev := glfake.New()
	tex, err := glapi.NewTextures(dev, 1)
	require.NoError(t, err)
	b := tex.Borrow()
	assert.True(t, b.Valid())
	assert.Equal(t, tex.ID(), b.ID())
	tex.Release()
	assert.Equal(t, 0, dev.Live("texture"))
}

func TestCheckFramebuffer(t *testing.T) {
	dev := glfake.New()
	fb, err := glapi.NewFramebuffers(dev, 1)
	require.NoError(t, err)
	tex, err := glapi.NewTextures(dev, 1)
	require.NoError(t, err)

	dev.BindFramebuffer(glapi.FRAMEBUFFER, fb.ID())
	assert.ErrorIs(t, glapi.CheckFramebuffer(dev, glapi.FRAMEBUFFER), glapi.ErrIncompleteFramebuffer)

	dev.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.TEXTURE_2D, tex.ID(), 0)
	assert.NoError(t, glapi.CheckFramebuffer(dev, glapi.FRAMEBUFFER))

	dev.IncompleteFBO = func(uint32) bool { return true }
	assert.ErrorIs(t, glapi.CheckFramebuffer(dev, glapi.FRAMEBUFFER), glapi.ErrIncompleteFramebuffer)
}

func TestQueryFeatures(t *testing.T) {
	dev := glfake.New()
	dev.Extensions = []string{"GL_EXT_texture_sRGB_decode", "GL_ARB_get_program_binary", "GL_EXT_texture_filter_anisotropic"}
	dev.ParallelCompile = true

	f := glapi.QueryFeatures(dev)
	assert.True(t, f.SRGBDecode)
	assert.True(t, f.ProgramBinary)
	assert.True(t, f.ParallelCompile)
	assert.True(t, f.Anisotropic)
	assert.Equal(t, float32(16), f.MaxAnisotropy)
	assert.False(t, f.BPTC)
	assert.False(t, f.LATC)
	assert.Equal(t, 4, f.Extensions())
	assert.Contains(t, f.DriverKey(), "glfake")
}

func TestQueryFeaturesFractionalAnisotropy(t *testing.T) {
	dev := glfake.New()
	dev.Extensions = []string{"GL_ARB_texture_filter_anisotropic"}
	dev.MaxAnisotropy = 7.5

	f := glapi.QueryFeatures(dev)
	assert.True(t, f.Anisotropic)
	assert.Equal(t, float32(7.5), f.MaxAnisotropy)
	assert.Zero(t, dev.GetIntegerv(glapi.MAX_TEXTURE_MAX_ANISOTROPY), "the limit is float-only")

	dev.Extensions = nil
	assert.Zero(t, glapi.QueryFeatures(dev).MaxAnisotropy)
}
