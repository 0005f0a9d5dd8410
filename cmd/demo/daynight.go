package main

import (
	"fmt"

	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// dayPalette holds the sky and light values for one key time of day.
type dayPalette struct {
	t            float32 // normalised time 0..1
	zenith       core.Color
	horizon      core.Color
	ground       core.Color
	fogColor     core.Color
	fogDensity   float32
	sunColor     core.Color
	sunIntensity float32
	ambient      core.Color
}

// palettes are ordered by t and wrap (0 == 1).
var palettes = []dayPalette{
	{ // noon
		t:            0.00,
		zenith:       core.Color{R: 0.20, G: 0.42, B: 0.90, A: 1},
		horizon:      core.Color{R: 0.58, G: 0.75, B: 0.95, A: 1},
		ground:       core.Color{R: 0.12, G: 0.10, B: 0.08, A: 1},
		fogColor:     core.Color{R: 0.62, G: 0.78, B: 0.95, A: 1},
		fogDensity:   0.011,
		sunColor:     core.Color{R: 1.00, G: 0.98, B: 0.92, A: 1},
		sunIntensity: 1.20,
		ambient:      core.Color{R: 0.16, G: 0.18, B: 0.26, A: 1},
	},
	{ // golden hour
		t:            0.22,
		zenith:       core.Color{R: 0.14, G: 0.20, B: 0.60, A: 1},
		horizon:      core.Color{R: 0.90, G: 0.52, B: 0.18, A: 1},
		ground:       core.Color{R: 0.08, G: 0.07, B: 0.06, A: 1},
		fogColor:     core.Color{R: 0.85, G: 0.55, B: 0.25, A: 1},
		fogDensity:   0.018,
		sunColor:     core.Color{R: 1.00, G: 0.65, B: 0.25, A: 1},
		sunIntensity: 0.90,
		ambient:      core.Color{R: 0.10, G: 0.12, B: 0.20, A: 1},
	},
	{ // dusk
		t:            0.30,
		zenith:       core.Color{R: 0.08, G: 0.10, B: 0.28, A: 1},
		horizon:      core.Color{R: 0.50, G: 0.22, B: 0.28, A: 1},
		ground:       core.Color{R: 0.04, G: 0.03, B: 0.04, A: 1},
		fogColor:     core.Color{R: 0.35, G: 0.18, B: 0.22, A: 1},
		fogDensity:   0.020,
		sunColor:     core.Color{R: 0.70, G: 0.40, B: 0.55, A: 1},
		sunIntensity: 0.25,
		ambient:      core.Color{R: 0.06, G: 0.07, B: 0.14, A: 1},
	},
	{ // midnight, the sun light doubles as moonlight
		t:            0.50,
		zenith:       core.Color{R: 0.02, G: 0.03, B: 0.10, A: 1},
		horizon:      core.Color{R: 0.04, G: 0.04, B: 0.08, A: 1},
		ground:       core.Color{R: 0.01, G: 0.01, B: 0.02, A: 1},
		fogColor:     core.Color{R: 0.03, G: 0.03, B: 0.06, A: 1},
		fogDensity:   0.010,
		sunColor:     core.Color{R: 0.40, G: 0.45, B: 0.65, A: 1},
		sunIntensity: 0.12,
		ambient:      core.Color{R: 0.03, G: 0.04, B: 0.09, A: 1},
	},
	{ // pre-dawn
		t:            0.70,
		zenith:       core.Color{R: 0.06, G: 0.08, B: 0.25, A: 1},
		horizon:      core.Color{R: 0.40, G: 0.18, B: 0.24, A: 1},
		ground:       core.Color{R: 0.03, G: 0.03, B: 0.04, A: 1},
		fogColor:     core.Color{R: 0.30, G: 0.15, B: 0.20, A: 1},
		fogDensity:   0.020,
		sunColor:     core.Color{R: 0.75, G: 0.42, B: 0.60, A: 1},
		sunIntensity: 0.20,
		ambient:      core.Color{R: 0.06, G: 0.07, B: 0.14, A: 1},
	},
	{ // sunrise
		t:            0.78,
		zenith:       core.Color{R: 0.12, G: 0.18, B: 0.55, A: 1},
		horizon:      core.Color{R: 0.88, G: 0.45, B: 0.22, A: 1},
		ground:       core.Color{R: 0.08, G: 0.06, B: 0.05, A: 1},
		fogColor:     core.Color{R: 0.75, G: 0.40, B: 0.20, A: 1},
		fogDensity:   0.015,
		sunColor:     core.Color{R: 1.00, G: 0.60, B: 0.28, A: 1},
		sunIntensity: 0.70,
		ambient:      core.Color{R: 0.09, G: 0.10, B: 0.17, A: 1},
	},
}

const (
	skyWidth, skyHeight = 128, 64
	skyRadianceSize     = 128
	// skyRefresh is how far the cycle moves before the sky panorama is
	// redrawn and refiltered.
	skyRefresh = 1.0 / 96
)

// DayNight drives the sun, the sky and the fog through a day.
type DayNight struct {
	Time   float32 // 0..1: 0 noon, 0.25 sunset, 0.5 midnight, 0.75 sunrise
	Speed  float32 // seconds per full cycle
	Active bool

	st       *storage.Storage
	env      ecs.Entity
	sky      ecs.Entity
	panorama ecs.Entity
	sun      ecs.Entity // light
	sunInst  ecs.Entity // light instance
	skyTime  float32
	skyReady bool
}

// NewDayNight creates the sky and the shadowed sun and hooks them to env.
func NewDayNight(st *storage.Storage, env ecs.Entity) (*DayNight, error) {
	dn := &DayNight{Speed: 120, Active: true, st: st, env: env}

	dn.panorama = st.TextureCreate()
	if err := st.TextureAllocate(dn.panorama, skyWidth, skyHeight, 1, storage.ImageRGBA8, storage.TextureType2D, storage.FlagFilter|storage.FlagRepeat); err != nil {
		return nil, fmt.Errorf("sky panorama: %w", err)
	}
	dn.sky = st.SkyCreate()
	st.EnvironmentSetSky(env, dn.sky)
	st.EnvironmentSetBackground(env, storage.BackgroundSky)

	dn.sun = st.LightCreate(storage.LightDirectional)
	st.LightSetShadow(dn.sun, true)
	st.LightSetParam(dn.sun, storage.LightParamShadowMaxDistance, 80)
	st.LightDirectionalSetShadowMode(dn.sun, storage.DirectionalShadowPSSM4)
	dn.sunInst = st.LightInstanceCreate(dn.sun)
	return dn, dn.Apply()
}

// SunInstance is the light instance to pass with each frame.
func (dn *DayNight) SunInstance() ecs.Entity { return dn.sunInst }

func (dn *DayNight) Update(dt float32) {
	if !dn.Active {
		return
	}
	dn.Time += dt / dn.Speed
	if dn.Time >= 1 {
		dn.Time -= 1
	}
}

func lerpColor(a, b core.Color, t float32) core.Color {
	return core.Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: 1,
	}
}

// samplePalette interpolates the two keys around t.
func samplePalette(t float32) dayPalette {
	n := len(palettes)
	a, b := palettes[n-1], palettes[0]
	span := 1 - a.t + b.t
	local := t - a.t
	if t < b.t {
		local = t + 1 - a.t
	}
	for i := 0; i+1 < n; i++ {
		if t >= palettes[i].t && t < palettes[i+1].t {
			a, b = palettes[i], palettes[i+1]
			span, local = b.t-a.t, t-a.t
			break
		}
	}
	f := local / span
	return dayPalette{
		t:            t,
		zenith:       lerpColor(a.zenith, b.zenith, f),
		horizon:      lerpColor(a.horizon, b.horizon, f),
		ground:       lerpColor(a.ground, b.ground, f),
		fogColor:     lerpColor(a.fogColor, b.fogColor, f),
		fogDensity:   a.fogDensity + (b.fogDensity-a.fogDensity)*f,
		sunColor:     lerpColor(a.sunColor, b.sunColor, f),
		sunIntensity: a.sunIntensity + (b.sunIntensity-a.sunIntensity)*f,
		ambient:      lerpColor(a.ambient, b.ambient, f),
	}
}

// sunDirection is the direction the sun light travels: straight down at
// noon, straight up at midnight, tilted along Z.
func sunDirection(t float32) gmath.Vec3 {
	s, c := math32.Sincos(t * 2 * math32.Pi)
	return gmath.NewVec3(s, -c, 0.35).Normalize()
}

// Apply pushes the current time to the sun, the environment and, when the
// cycle has moved far enough, the sky.
func (dn *DayNight) Apply() error {
	st := dn.st
	p := samplePalette(dn.Time)

	dir := sunDirection(dn.Time)
	st.LightInstanceSetTransform(dn.sunInst, gmath.Mat4CameraLookAt(dir.Mul(-50), gmath.Vec3Zero, gmath.Vec3Up))
	st.LightSetColor(dn.sun, p.sunColor)
	st.LightSetParam(dn.sun, storage.LightParamEnergy, p.sunIntensity)

	st.EnvironmentSetAmbientLight(dn.env, p.ambient, 1, 0.3)
	st.EnvironmentSetBGColor(dn.env, p.horizon)
	fog := st.Environment(dn.env).Fog
	fog.Enabled = true
	fog.Color = p.fogColor
	fog.SunColor = p.sunColor
	fog.SunAmount = 0.3
	fog.DepthEnabled = true
	fog.DepthBegin = 10
	fog.DepthEnd = 1 / p.fogDensity
	st.EnvironmentSetFog(dn.env, fog)

	if dn.skyReady && math32.Abs(dn.Time-dn.skyTime) < skyRefresh {
		return nil
	}
	if err := st.TextureSetData(dn.panorama, skyPanorama(p), 0, 0); err != nil {
		return fmt.Errorf("sky panorama: %w", err)
	}
	if err := st.SkySetTexture(dn.sky, dn.panorama, skyRadianceSize); err != nil {
		return fmt.Errorf("sky: %w", err)
	}
	dn.skyTime, dn.skyReady = dn.Time, true
	return nil
}

// skyPanorama paints the zenith, horizon and ground gradient into an
// equirectangular image.
func skyPanorama(p dayPalette) storage.Image {
	img := storage.Image{Width: skyWidth, Height: skyHeight, Format: storage.ImageRGBA8, Data: make([]byte, skyWidth*skyHeight*4)}
	for y := range skyHeight {
		elev := math32.Sin((0.5 - (float32(y)+0.5)/skyHeight) * math32.Pi)
		var c core.Color
		if elev >= 0 {
			c = lerpColor(p.horizon, p.zenith, math32.Sqrt(elev))
		} else {
			c = lerpColor(p.horizon, p.ground, min(-elev*4, 1))
		}
		px := [4]byte{toByte(c.R), toByte(c.G), toByte(c.B), 255}
		row := img.Data[y*skyWidth*4 : (y+1)*skyWidth*4]
		for x := 0; x < len(row); x += 4 {
			copy(row[x:], px[:])
		}
	}
	return img
}

func toByte(v float32) byte {
	return byte(gmath.Clamp(v, 0, 1)*255 + 0.5)
}

// TimeOfDayStr formats the cycle as a clock, noon at 0.
func (dn *DayNight) TimeOfDayStr() string {
	hours := math32.Mod(dn.Time*24+12, 24)
	h := int(hours)
	m := int((hours - float32(h)) * 60)
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	displayH := h % 12
	if displayH == 0 {
		displayH = 12
	}
	return fmt.Sprintf("%02d:%02d %s", displayH, m, period)
}
