package storage

import (
	"gles3render/core"
	"gles3render/internal/shader"
	gmath "gles3render/math"
)

// ShadowFilter selects the shadow sampling kernel.
type ShadowFilter int

const (
	ShadowFilterNone ShadowFilter = iota
	ShadowFilterPCF5
	ShadowFilterPCF13
)

// Config is the project configuration the renderer reads once at startup.
type Config struct {
	MaxRenderableElements    int
	MaxRenderableLights      int
	MaxRenderableReflections int
	MaxLightsPerObject       int
	ImmediateBufferSize      int
	BlendShapeMaxBufferSize  int

	ShadowFilterMode      ShadowFilter
	DirectionalShadowSize int
	ShadowCubemapSize     int
	ShadowReallocMsec     uint64

	SSSQuality               int
	SSSScale                 float32
	SSSFollowSurface         bool
	SSSWeightSamples         bool
	HighQualityGGX           bool
	ReflectionArrays         bool
	LightmapBicubic          bool
	ForceVertexShading       bool
	PhysicalLightAttenuation bool
	DepthPrepass             bool
	VCTHighQuality           bool
	SplitStream              bool

	CompileMode    shader.CompileMode
	MaxCompiles    int
	ShaderCacheDir string

	// GenerateWireframes builds line index buffers for triangle surfaces.
	GenerateWireframes bool
}

// Setting keys.
const (
	KeyMaxRenderableElements    = "rendering/limits/rendering/max_renderable_elements"
	KeyMaxRenderableLights      = "rendering/limits/rendering/max_renderable_lights"
	KeyMaxRenderableReflections = "rendering/limits/rendering/max_renderable_reflections"
	KeyMaxLightsPerObject       = "rendering/limits/rendering/max_lights_per_object"
	KeyImmediateBufferSize      = "rendering/limits/buffers/immediate_buffer_size_kb"
	KeyBlendShapeBufferSize     = "rendering/limits/buffers/blend_shape_max_buffer_size_kb"
	KeyShadowFilterMode         = "rendering/quality/shadows/filter_mode"
	KeyDirectionalShadowSize    = "rendering/quality/directional_shadow/size"
	KeyShadowCubemapSize        = "rendering/quality/shadow_atlas/cubemap_size"
	KeyShadowReallocTolerance   = "rendering/quality/shadow_atlas/realloc_tolerance_msec"
	KeySSSQuality               = "rendering/quality/subsurface_scattering/quality"
	KeySSSScale                 = "rendering/quality/subsurface_scattering/scale"
	KeySSSFollowSurface         = "rendering/quality/subsurface_scattering/follow_surface"
	KeySSSWeightSamples         = "rendering/quality/subsurface_scattering/weight_samples"
	KeyHighQualityGGX           = "rendering/quality/reflections/high_quality_ggx"
	KeyReflectionArrays         = "rendering/quality/reflections/texture_array_reflections"
	KeyLightmapBicubic          = "rendering/quality/lightmapping/use_bicubic_sampling"
	KeyForceVertexShading       = "rendering/quality/shading/force_vertex_shading"
	KeyPhysicalLightAttenuation = "rendering/quality/shading/use_physical_light_attenuation"
	KeyDepthPrepass             = "rendering/quality/depth_prepass/enable"
	KeyVCTHighQuality           = "rendering/quality/voxel_cone_tracing/high_quality"
	KeySplitStream              = "rendering/misc/mesh_storage/split_stream"
	KeyCompileMode              = "rendering/gles3/shaders/shader_compilation_mode"
	KeyMaxCompiles              = "rendering/gles3/shaders/max_simultaneous_compiles"
	KeyShaderCacheDir           = "rendering/gles3/shaders/shader_cache_dir"
	KeyGenerateWireframes       = "debug/settings/generate_wireframes"
)

// DefaultConfig returns the configuration used when no setting is given.
func DefaultConfig() Config {
	return NewConfig(core.NewSettings())
}

// NewConfig reads every recognized key from s.
func NewConfig(s *core.Settings) Config {
	c := Config{
		MaxRenderableElements:    s.Int(KeyMaxRenderableElements, 65536),
		MaxRenderableLights:      s.Int(KeyMaxRenderableLights, 4096),
		MaxRenderableReflections: s.Int(KeyMaxRenderableReflections, 1024),
		MaxLightsPerObject:       s.Int(KeyMaxLightsPerObject, 32),
		ImmediateBufferSize:      s.Int(KeyImmediateBufferSize, 2048) * 1024,
		BlendShapeMaxBufferSize:  s.Int(KeyBlendShapeBufferSize, 4096) * 1024,

		ShadowFilterMode:      ShadowFilter(s.Int(KeyShadowFilterMode, int(ShadowFilterPCF5))),
		DirectionalShadowSize: gmath.NextPowerOf2(s.Int(KeyDirectionalShadowSize, 4096)),
		ShadowCubemapSize:     gmath.NextPowerOf2(s.Int(KeyShadowCubemapSize, 512)),
		ShadowReallocMsec:     uint64(max(0, s.Int(KeyShadowReallocTolerance, 500))),

		SSSQuality:               s.Int(KeySSSQuality, 1),
		SSSScale:                 s.Float(KeySSSScale, 1.0),
		SSSFollowSurface:         s.Bool(KeySSSFollowSurface, false),
		SSSWeightSamples:         s.Bool(KeySSSWeightSamples, true),
		HighQualityGGX:           s.Bool(KeyHighQualityGGX, true),
		ReflectionArrays:         s.Bool(KeyReflectionArrays, true),
		LightmapBicubic:          s.Bool(KeyLightmapBicubic, true),
		ForceVertexShading:       s.Bool(KeyForceVertexShading, false),
		PhysicalLightAttenuation: s.Bool(KeyPhysicalLightAttenuation, false),
		DepthPrepass:             s.Bool(KeyDepthPrepass, true),
		VCTHighQuality:           s.Bool(KeyVCTHighQuality, false),
		SplitStream:              s.Bool(KeySplitStream, false),

		CompileMode:    shader.CompileMode(s.Int(KeyCompileMode, 0)),
		MaxCompiles:    s.Int(KeyMaxCompiles, 2),
		ShaderCacheDir: s.String(KeyShaderCacheDir, shader.DefaultCacheDir()),

		GenerateWireframes: s.Bool(KeyGenerateWireframes, false),
	}
	if c.ShadowFilterMode < ShadowFilterNone || c.ShadowFilterMode > ShadowFilterPCF13 {
		core.LogWarn("%s: unknown mode %d, using PCF5", KeyShadowFilterMode, c.ShadowFilterMode)
		c.ShadowFilterMode = ShadowFilterPCF5
	}
	if c.CompileMode < shader.CompileSync || c.CompileMode > shader.CompileAsyncCache {
		core.LogWarn("%s: unknown mode %d, compiling synchronously", KeyCompileMode, c.CompileMode)
		c.CompileMode = shader.CompileSync
	}
	c.SSSQuality = min(max(c.SSSQuality, 0), 2)
	c.MaxCompiles = max(c.MaxCompiles, 1)
	c.MaxRenderableElements = max(c.MaxRenderableElements, 1)
	return c
}

// ShaderOptions returns the compile options matching the configuration.
func (c Config) ShaderOptions() shader.Options {
	return shader.Options{Mode: c.CompileMode, MaxSimultaneous: c.MaxCompiles, CacheDir: c.ShaderCacheDir}
}
