package storage

import (
	"gles3render/core"
	"gles3render/internal/ecs"
	gmath "gles3render/math"
)

// Background selects what fills the target before geometry is drawn.
type Background int

const (
	BackgroundClearColor Background = iota
	BackgroundColor
	BackgroundSky
	BackgroundColorSky
	BackgroundCanvas
	BackgroundKeep
	BackgroundCameraFeed
)

// GlowBlendMode is how the glow pyramid is composed onto the image.
type GlowBlendMode int

const (
	GlowBlendAdditive GlowBlendMode = iota
	GlowBlendScreen
	GlowBlendSoftLight
	GlowBlendReplace
)

// Tonemapper maps HDR color to the display range.
type Tonemapper int

const (
	TonemapLinear Tonemapper = iota
	TonemapReinhard
	TonemapFilmic
	TonemapACES
	TonemapACESFitted
)

// DOFQuality picks the bokeh kernel size.
type DOFQuality int

const (
	DOFQualityLow DOFQuality = iota
	DOFQualityMedium
	DOFQualityHigh
)

// SSAOQuality picks the AO sample count.
type SSAOQuality int

const (
	SSAOQualityLow SSAOQuality = iota
	SSAOQualityMedium
	SSAOQualityHigh
)

// SSAOBlur is the bilateral blur kernel width.
type SSAOBlur int

const (
	SSAOBlurDisabled SSAOBlur = iota
	SSAOBlur1x1
	SSAOBlur2x2
	SSAOBlur3x3
)

// Fog is distance, height and sun-scattered fog.
type Fog struct {
	Enabled   bool
	Color     core.Color
	SunColor  core.Color
	SunAmount float32

	DepthEnabled bool
	DepthBegin   float32
	DepthEnd     float32
	DepthCurve   float32

	TransmitEnabled bool
	TransmitCurve   float32

	HeightEnabled bool
	HeightMin     float32
	HeightMax     float32
	HeightCurve   float32
}

// SSAO controls screen-space ambient occlusion.
type SSAO struct {
	Enabled       bool
	Radius        float32
	Intensity     float32
	Radius2       float32
	Intensity2    float32
	Bias          float32
	LightAffect   float32
	ChannelAffect float32
	Color         core.Color
	Quality       SSAOQuality
	Blur          SSAOBlur
	EdgeSharpness float32
}

// SSR controls screen-space reflections.
type SSR struct {
	Enabled        bool
	MaxSteps       int
	FadeIn         float32
	FadeOut        float32
	DepthTolerance float32
	Roughness      bool
}

// Glow controls the bloom pyramid. Levels is a bitmask of the pyramid
// levels that contribute.
type Glow struct {
	Enabled         bool
	Levels          uint32
	Intensity       float32
	Strength        float32
	Bloom           float32
	BlendMode       GlowBlendMode
	HDRBleedThresh  float32
	HDRBleedScale   float32
	HDRLuminanceCap float32
	BicubicUpscale  bool
	HighQuality     bool
}

// Tonemap controls exposure and the tone curve. The auto exposure ladder
// adapts towards Grey / luminance at Speed per second within
// [MinLuminance, MaxLuminance].
type Tonemap struct {
	Mode         Tonemapper
	Exposure     float32
	White        float32
	AutoExposure bool
	MinLuminance float32
	MaxLuminance float32
	Grey         float32
	Speed        float32
}

// DOF is one side of the depth of field blur.
type DOF struct {
	Enabled    bool
	Distance   float32
	Transition float32
	Amount     float32
	Quality    DOFQuality
}

// Adjustments is the final color correction.
type Adjustments struct {
	Enabled         bool
	Brightness      float32
	Contrast        float32
	Saturation      float32
	ColorCorrection ecs.Entity
}

// Environment is the background, ambient light and post-process setup of
// a camera.
type Environment struct {
	Background     Background
	Sky            ecs.Entity
	SkyCustomFOV   float32
	SkyOrientation gmath.Mat4
	BGColor        core.Color
	BGEnergy       float32
	CanvasMaxLayer int
	CameraFeedID   int

	AmbientColor           core.Color
	AmbientEnergy          float32
	AmbientSkyContribution float32

	Fog         Fog
	SSAO        SSAO
	SSR         SSR
	SSS         bool
	Glow        Glow
	Tonemap     Tonemap
	DOFFar      DOF
	DOFNear     DOF
	Adjustments Adjustments
}

// EnvironmentCreate makes an environment with the stock defaults.
func (s *Storage) EnvironmentCreate() ecs.Entity {
	e, _ := create(s, Environment{
		Sky:                    ecs.Null,
		SkyOrientation:         gmath.Mat4Identity(),
		BGColor:                core.ColorBlack,
		BGEnergy:               1,
		AmbientColor:           core.ColorBlack,
		AmbientEnergy:          1,
		AmbientSkyContribution: 1,
		Fog: Fog{
			Color:         core.Color{R: 0.5, G: 0.6, B: 0.7, A: 1},
			SunColor:      core.Color{R: 1, G: 0.9, B: 0.7, A: 1},
			DepthBegin:    10,
			DepthEnd:      100,
			DepthCurve:    1,
			TransmitCurve: 1,
			HeightMin:     10,
			HeightMax:     0,
			HeightCurve:   1,
		},
		SSAO: SSAO{
			Radius: 1, Intensity: 1, Radius2: 0, Intensity2: 1, Bias: 0.01,
			ChannelAffect: 0, Color: core.ColorBlack, Quality: SSAOQualityMedium,
			Blur: SSAOBlur3x3, EdgeSharpness: 4,
		},
		SSR: SSR{MaxSteps: 64, FadeIn: 0.15, FadeOut: 2, DepthTolerance: 0.2, Roughness: true},
		Glow: Glow{
			Levels: 1<<2 | 1<<4, Intensity: 0.8, Strength: 1, Bloom: 0,
			BlendMode: GlowBlendSoftLight, HDRBleedThresh: 1, HDRBleedScale: 2, HDRLuminanceCap: 12,
		},
		Tonemap: Tonemap{
			Mode: TonemapLinear, Exposure: 1, White: 1, MinLuminance: 0.05,
			MaxLuminance: 8, Grey: 0.4, Speed: 0.5,
		},
		DOFFar:      DOF{Distance: 10, Transition: 5, Amount: 0.1, Quality: DOFQualityLow},
		DOFNear:     DOF{Distance: 2, Transition: 1, Amount: 0.1, Quality: DOFQualityLow},
		Adjustments: Adjustments{Brightness: 1, Contrast: 1, Saturation: 1, ColorCorrection: ecs.Null},
	})
	return e
}

func (s *Storage) environment(e ecs.Entity, op string) *Environment {
	return get[Environment](s, e, op)
}

// Environment returns the environment component, or nil.
func (s *Storage) Environment(e ecs.Entity) *Environment {
	return ecs.Get[Environment](s.reg, e)
}

func (s *Storage) EnvironmentSetBackground(e ecs.Entity, bg Background) {
	if env := s.environment(e, "environment set background"); env != nil {
		env.Background = bg
	}
}

func (s *Storage) EnvironmentSetSky(e, sky ecs.Entity) {
	if env := s.environment(e, "environment set sky"); env != nil {
		env.Sky = sky
	}
}

func (s *Storage) EnvironmentSetSkyCustomFOV(e ecs.Entity, fov float32) {
	if env := s.environment(e, "environment set sky custom fov"); env != nil {
		env.SkyCustomFOV = fov
	}
}

func (s *Storage) EnvironmentSetSkyOrientation(e ecs.Entity, m gmath.Mat4) {
	if env := s.environment(e, "environment set sky orientation"); env != nil {
		env.SkyOrientation = m
	}
}

func (s *Storage) EnvironmentSetBGColor(e ecs.Entity, c core.Color) {
	if env := s.environment(e, "environment set bg color"); env != nil {
		env.BGColor = c
	}
}

func (s *Storage) EnvironmentSetBGEnergy(e ecs.Entity, v float32) {
	if env := s.environment(e, "environment set bg energy"); env != nil {
		env.BGEnergy = v
	}
}

func (s *Storage) EnvironmentSetCanvasMaxLayer(e ecs.Entity, layer int) {
	if env := s.environment(e, "environment set canvas max layer"); env != nil {
		env.CanvasMaxLayer = layer
	}
}

func (s *Storage) EnvironmentSetCameraFeedID(e ecs.Entity, id int) {
	if env := s.environment(e, "environment set camera feed id"); env != nil {
		env.CameraFeedID = id
	}
}

// EnvironmentSetAmbientLight sets the ambient color, its energy and how
// much of it comes from the sky radiance.
func (s *Storage) EnvironmentSetAmbientLight(e ecs.Entity, c core.Color, energy, skyContribution float32) {
	if env := s.environment(e, "environment set ambient light"); env != nil {
		env.AmbientColor, env.AmbientEnergy = c, energy
		env.AmbientSkyContribution = gmath.Clamp(skyContribution, 0, 1)
	}
}

func (s *Storage) EnvironmentSetFog(e ecs.Entity, f Fog) {
	if env := s.environment(e, "environment set fog"); env != nil {
		env.Fog = f
	}
}

func (s *Storage) EnvironmentSetSSAO(e ecs.Entity, v SSAO) {
	if env := s.environment(e, "environment set ssao"); env != nil {
		env.SSAO = v
	}
}

func (s *Storage) EnvironmentSetSSR(e ecs.Entity, v SSR) {
	if env := s.environment(e, "environment set ssr"); env != nil {
		env.SSR = v
	}
}

func (s *Storage) EnvironmentSetSSS(e ecs.Entity, on bool) {
	if env := s.environment(e, "environment set sss"); env != nil {
		env.SSS = on
	}
}

func (s *Storage) EnvironmentSetGlow(e ecs.Entity, g Glow) {
	if env := s.environment(e, "environment set glow"); env != nil {
		env.Glow = g
	}
}

// EnvironmentSetTonemap sets the tone curve. Luminance bounds are swapped
// when given in the wrong order.
func (s *Storage) EnvironmentSetTonemap(e ecs.Entity, t Tonemap) {
	env := s.environment(e, "environment set tonemap")
	if env == nil {
		return
	}
	if t.MinLuminance > t.MaxLuminance {
		t.MinLuminance, t.MaxLuminance = t.MaxLuminance, t.MinLuminance
	}
	env.Tonemap = t
}

func (s *Storage) EnvironmentSetDOFBlurFar(e ecs.Entity, d DOF) {
	if env := s.environment(e, "environment set dof blur far"); env != nil {
		env.DOFFar = d
	}
}

func (s *Storage) EnvironmentSetDOFBlurNear(e ecs.Entity, d DOF) {
	if env := s.environment(e, "environment set dof blur near"); env != nil {
		env.DOFNear = d
	}
}

func (s *Storage) EnvironmentSetAdjustment(e ecs.Entity, a Adjustments) {
	if env := s.environment(e, "environment set adjustment"); env != nil {
		env.Adjustments = a
	}
}

// IsSkyVisible reports whether the background draws the sky.
func (env *Environment) IsSkyVisible() bool {
	return env.Background == BackgroundSky || env.Background == BackgroundColorSky
}

// NeedsMRT reports whether the environment enables an effect reading the
// auxiliary buffers of the main pass.
func (env *Environment) NeedsMRT() bool {
	return env.SSAO.Enabled || env.SSR.Enabled || env.SSS || env.DOFFar.Enabled || env.DOFNear.Enabled
}
