package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/shader"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 2048*1024, c.ImmediateBufferSize)
	assert.Equal(t, 4096, c.DirectionalShadowSize)
	assert.Equal(t, 512, c.ShadowCubemapSize)
	assert.Equal(t, uint64(500), c.ShadowReallocMsec)
	assert.Equal(t, ShadowFilterPCF5, c.ShadowFilterMode)
	assert.Equal(t, 32, c.MaxLightsPerObject)
	assert.True(t, c.HighQualityGGX)
	assert.True(t, c.DepthPrepass)
	assert.Equal(t, shader.CompileSync, c.CompileMode)
	assert.Equal(t, shader.DefaultCacheDir(), c.ShaderCacheDir)
}

func TestConfigFromProjectFile(t *testing.T) {
	set, err := core.ParseSettings([]byte(`
[rendering.quality.shadows]
filter_mode = 7

[rendering.quality.directional_shadow]
size = 1000

[rendering.quality.shadow_atlas]
realloc_tolerance_msec = -20

[rendering.quality.subsurface_scattering]
quality = 9
scale = 0.5

[rendering.quality.reflections]
high_quality_ggx = false

[rendering.gles3.shaders]
shader_compilation_mode = 2
max_simultaneous_compiles = 0
shader_cache_dir = "/var/cache/shaders"
`))
	require.NoError(t, err)
	c := NewConfig(set)

	assert.Equal(t, ShadowFilterPCF5, c.ShadowFilterMode, "unknown modes fall back")
	assert.Equal(t, 1024, c.DirectionalShadowSize)
	assert.Zero(t, c.ShadowReallocMsec)
	assert.Equal(t, 2, c.SSSQuality)
	assert.Equal(t, float32(0.5), c.SSSScale)
	assert.False(t, c.HighQualityGGX)

	opts := c.ShaderOptions()
	assert.Equal(t, shader.CompileAsyncCache, opts.Mode)
	assert.Equal(t, 1, opts.MaxSimultaneous)
	assert.Equal(t, "/var/cache/shaders", opts.CacheDir)
}

func TestConfigRejectsUnknownCompileMode(t *testing.T) {
	set := core.NewSettings()
	set.Set(KeyCompileMode, 9)
	set.Set(KeyMaxRenderableElements, 0)
	c := NewConfig(set)
	assert.Equal(t, shader.CompileSync, c.CompileMode)
	assert.Equal(t, 1, c.MaxRenderableElements)
}
