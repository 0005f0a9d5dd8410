package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
)

func TestEnvironmentDefaults(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.EnvironmentCreate()
	en := s.Environment(e)
	require.NotNil(t, en)

	assert.Equal(t, BackgroundClearColor, en.Background)
	assert.True(t, en.Sky.IsNull())
	assert.Equal(t, float32(1), en.Tonemap.Exposure)
	assert.Equal(t, uint32(1<<2|1<<4), en.Glow.Levels)
	assert.False(t, en.IsSkyVisible())
	assert.False(t, en.NeedsMRT())
}

func TestEnvironmentSetters(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.EnvironmentCreate()
	en := s.Environment(e)

	s.EnvironmentSetBackground(e, BackgroundColorSky)
	assert.True(t, en.IsSkyVisible())
	s.EnvironmentSetBackground(e, BackgroundKeep)
	assert.False(t, en.IsSkyVisible())

	blue := core.Color{B: 1, A: 1}
	s.EnvironmentSetAmbientLight(e, blue, 2, 1.5)
	assert.Equal(t, blue, en.AmbientColor)
	assert.Equal(t, float32(2), en.AmbientEnergy)
	assert.Equal(t, float32(1), en.AmbientSkyContribution, "clamped")

	tm := en.Tonemap
	tm.AutoExposure, tm.MinLuminance, tm.MaxLuminance = true, 4, 0.5
	s.EnvironmentSetTonemap(e, tm)
	assert.Equal(t, float32(0.5), en.Tonemap.MinLuminance, "bounds swapped")
	assert.Equal(t, float32(4), en.Tonemap.MaxLuminance)
	assert.True(t, en.Tonemap.AutoExposure)

	s.EnvironmentSetBGColor(s.MaterialCreate(), blue)
	assert.Equal(t, core.ColorBlack, en.BGColor)
}

func TestEnvironmentNeedsMRT(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.EnvironmentCreate()
	en := s.Environment(e)

	g := en.Glow
	g.Enabled = true
	s.EnvironmentSetGlow(e, g)
	assert.False(t, en.NeedsMRT(), "glow reads only the color buffer")

	s.EnvironmentSetSSS(e, true)
	assert.True(t, en.NeedsMRT())
	s.EnvironmentSetSSS(e, false)

	dof := en.DOFNear
	dof.Enabled = true
	s.EnvironmentSetDOFBlurNear(e, dof)
	assert.True(t, en.NeedsMRT())
}
