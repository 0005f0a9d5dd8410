package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/glapi/glfake"
	"gles3render/internal/storage"
	"gles3render/renderer"
)

func TestSamplePaletteHitsKeys(t *testing.T) {
	for _, key := range palettes {
		p := samplePalette(key.t)
		assert.Equal(t, key.zenith, p.zenith, "t=%v", key.t)
		assert.Equal(t, key.sunColor, p.sunColor, "t=%v", key.t)
		assert.Equal(t, key.sunIntensity, p.sunIntensity, "t=%v", key.t)
	}
}

func TestSamplePaletteWraps(t *testing.T) {
	last, first := palettes[len(palettes)-1], palettes[0]
	mid := (last.t + 1) / 2
	p := samplePalette(mid)
	assert.InDelta(t, (last.sunIntensity+first.sunIntensity)/2, p.sunIntensity, 1e-5)
	assert.InDelta(t, (last.horizon.R+first.horizon.R)/2, p.horizon.R, 1e-5)
}

func TestSunDirection(t *testing.T) {
	noon := sunDirection(0)
	assert.Less(t, noon.Y, float32(-0.9), "the noon sun shines down")
	midnight := sunDirection(0.5)
	assert.Greater(t, midnight.Y, float32(0.9))
	assert.InDelta(t, 1, sunDirection(0.3).Length(), 1e-5)
}

func TestTimeOfDayStr(t *testing.T) {
	for time, want := range map[float32]string{0: "12:00 PM", 0.25: "06:00 PM", 0.5: "12:00 AM", 0.75: "06:00 AM"} {
		assert.Equal(t, want, (&DayNight{Time: time}).TimeOfDayStr())
	}
}

func TestDayNightDrivesEnvironment(t *testing.T) {
	set := core.NewSettings()
	set.Set(storage.KeyDirectionalShadowSize, 256)
	set.Set(storage.KeyShadowCubemapSize, 64)
	ctx, err := renderer.New(glfake.New(), set, renderer.Options{Clock: &core.ManualClock{Now: 1}})
	require.NoError(t, err)
	t.Cleanup(ctx.Finalize)
	st := ctx.Storage()
	env := st.EnvironmentCreate()

	dn, err := NewDayNight(st, env)
	require.NoError(t, err)
	e := st.Environment(env)
	assert.Equal(t, storage.BackgroundSky, e.Background)
	assert.Equal(t, dn.sky, e.Sky)
	assert.Equal(t, dn.panorama, st.Sky(dn.sky).Panorama)
	assert.True(t, e.Fog.Enabled)
	assert.InDelta(t, 1/palettes[0].fogDensity, e.Fog.DepthEnd, 1e-3)
	assert.InDelta(t, palettes[0].sunIntensity, st.LightGetParam(dn.sun, storage.LightParamEnergy), 1e-6)
	assert.Equal(t, storage.LightDirectional, st.LightGetType(dn.sun))

	dn.Update(1)
	require.NoError(t, dn.Apply())
	assert.Zero(t, dn.skyTime, "small steps keep the sky")

	dn.Time = 0.5
	require.NoError(t, dn.Apply())
	assert.Equal(t, float32(0.5), dn.skyTime)
	assert.InDelta(t, palettes[3].sunIntensity, st.LightGetParam(dn.sun, storage.LightParamEnergy), 1e-6)

	dn.Active = false
	dn.Update(10)
	assert.Equal(t, float32(0.5), dn.Time)
}
