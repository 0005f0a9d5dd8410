package shader

import (
	"math/bits"
	"strings"
)

// Conditionals is a set of compile-time switches, one bit per name in the
// owning Source's conditional list.
type Conditionals uint64

// MaxConditionals is the number of switches a Source may declare.
const MaxConditionals = 64

// With returns c with bit i set or cleared.
func (c Conditionals) With(i int, on bool) Conditionals {
	if on {
		return c | 1<<uint(i)
	}
	return c &^ (1 << uint(i))
}

// Has reports whether bit i is set.
func (c Conditionals) Has(i int) bool {
	return c&(1<<uint(i)) != 0
}

// Count returns the number of set bits.
func (c Conditionals) Count() int {
	return bits.OnesCount64(uint64(c))
}

// Defines renders the set bits as #define lines using names.
func (c Conditionals) Defines(names []string) string {
	var b strings.Builder
	for i, n := range names {
		if c.Has(i) {
			b.WriteString("#define ")
			b.WriteString(n)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Scene (spatial) conditionals.
const (
	SceneUseShadow = iota
	SceneUseForwardLighting
	SceneUseLightDirectional
	SceneLightUsePSSM2
	SceneLightUsePSSM4
	SceneLightUsePSSMBlend
	SceneShadowModePCF5
	SceneShadowModePCF13
	SceneShadeless
	SceneUseVertexLighting
	SceneUseRadianceMap
	SceneUseRadianceMapArray
	SceneUseContactShadows
	SceneUseGIProbes
	SceneUseLightmap
	SceneUseLightmapLayered
	SceneUseLightmapCapture
	SceneUseLightmapFilterBicubic
	SceneRenderDepth
	SceneRenderDepthDualParaboloid
	SceneUseMultipleRenderTargets
	SceneUseInstancing
	SceneUseSkeleton
	SceneUsePhysicalLightAttenuation
	SceneEnableOctahedralCompression
	SceneUseDepthPrepass
	SceneVCTQualityHigh
	SceneUseBlendShapes
)

// SceneConditionalNames is the conditional list of the spatial scene
// source, indexed by the Scene* constants.
var SceneConditionalNames = []string{
	"USE_SHADOW",
	"USE_FORWARD_LIGHTING",
	"USE_LIGHT_DIRECTIONAL",
	"LIGHT_USE_PSSM2",
	"LIGHT_USE_PSSM4",
	"LIGHT_USE_PSSM_BLEND",
	"SHADOW_MODE_PCF_5",
	"SHADOW_MODE_PCF_13",
	"SHADELESS",
	"USE_VERTEX_LIGHTING",
	"USE_RADIANCE_MAP",
	"USE_RADIANCE_MAP_ARRAY",
	"USE_CONTACT_SHADOWS",
	"USE_GI_PROBES",
	"USE_LIGHTMAP",
	"USE_LIGHTMAP_LAYERED",
	"USE_LIGHTMAP_CAPTURE",
	"USE_LIGHTMAP_FILTER_BICUBIC",
	"RENDER_DEPTH",
	"RENDER_DEPTH_DUAL_PARABOLOID",
	"USE_MULTIPLE_RENDER_TARGETS",
	"USE_INSTANCING",
	"USE_SKELETON",
	"USE_PHYSICAL_LIGHT_ATTENUATION",
	"ENABLE_OCTAHEDRAL_COMPRESSION",
	"USE_DEPTH_PREPASS",
	"VCT_QUALITY_HIGH",
	"USE_BLEND_SHAPES",
}

// SceneDepthConditionals are the switches a depth-only draw keeps; every
// other scene bit is dropped when falling back to the generic variant.
const SceneDepthConditionals = Conditionals(1<<SceneRenderDepth |
	1<<SceneRenderDepthDualParaboloid |
	1<<SceneUseInstancing |
	1<<SceneUseSkeleton |
	1<<SceneEnableOctahedralCompression)

// Canvas conditionals.
const (
	CanvasUseTexture = iota
	CanvasLinearToSRGB
	CanvasUseVFlip
)

var CanvasConditionalNames = []string{"USE_TEXTURE", "LINEAR_TO_SRGB", "USE_VFLIP"}

// Particles conditionals.
const (
	ParticlesUseFractionalDelta = iota
)

var ParticlesConditionalNames = []string{"USE_FRACTIONAL_DELTA"}
