package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const projectTOML = `
[rendering.quality.shadows]
filter_mode = 2

[rendering.quality.directional_shadow]
size = 2048

[rendering.quality.subsurface_scattering]
scale = 0.5
follow_surface = true

[rendering.gles3.shaders]
shader_compilation_mode = 2
shader_cache_dir = "/tmp/cache"
`

func TestParseSettingsFlattensTables(t *testing.T) {
	s, err := ParseSettings([]byte(projectTOML))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Int("rendering/quality/shadows/filter_mode", 1))
	assert.Equal(t, 2048, s.Int("rendering/quality/directional_shadow/size", 4096))
	assert.InDelta(t, 0.5, s.Float("rendering/quality/subsurface_scattering/scale", 1), 1e-6)
	assert.True(t, s.Bool("rendering/quality/subsurface_scattering/follow_surface", false))
	assert.Equal(t, "/tmp/cache", s.String("rendering/gles3/shaders/shader_cache_dir", ""))
}

func TestSettingsDefaults(t *testing.T) {
	s := NewSettings()
	assert.Equal(t, 65536, s.Int("rendering/limits/rendering/max_renderable_elements", 65536))
	assert.True(t, s.Bool("rendering/quality/depth_prepass/enable", true))

	s.Set("rendering/quality/depth_prepass/enable", false)
	assert.False(t, s.Bool("rendering/quality/depth_prepass/enable", true))
}

func TestParseSettingsRejectsBadTOML(t *testing.T) {
	_, err := ParseSettings([]byte("[rendering\nfoo = "))
	assert.Error(t, err)
}

func TestColorLinearRoundTrip(t *testing.T) {
	c := Color{0.5, 0.25, 1, 0.3}
	back := c.ToLinear().ToSRGB()
	assert.InDelta(t, c.R, back.R, 1e-4)
	assert.InDelta(t, c.G, back.G, 1e-4)
	assert.InDelta(t, c.B, back.B, 1e-4)
	assert.Equal(t, c.A, back.A)
	assert.InDelta(t, 0.2140, c.ToLinear().R, 1e-3)
}

func TestNumberedSource(t *testing.T) {
	assert.Equal(t, "   1 | a\n   2 | b\n", NumberedSource("a\nb"))
}
