package shader

// BlendMode of spatial and canvas shaders.
type BlendMode int

const (
	BlendMix BlendMode = iota
	BlendAdd
	BlendSub
	BlendMul
)

// DepthDrawMode controls depth writes of spatial shaders.
type DepthDrawMode int

const (
	DepthDrawOpaque DepthDrawMode = iota
	DepthDrawAlways
	DepthDrawNever
	DepthDrawAlphaPrepass
)

// CullMode of spatial shaders.
type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullDisabled
)

// SpatialProperties are the render-mode driven switches of a spatial
// shader that the render-list assembler and the draw loop read.
type SpatialProperties struct {
	BlendMode            BlendMode
	DepthDrawMode        DepthDrawMode
	CullMode             CullMode
	Unshaded             bool
	NoDepthTest          bool
	UsesVertexLight      bool
	WorldCoordinates     bool
	ShadowsDisabled      bool
	AmbientDisabled      bool
	EnsureCorrectNormals bool
	UsesAlpha            bool
	UsesAlphaScissor     bool
	UsesScreenTexture    bool
	UsesDepthTexture     bool
	UsesDiscard          bool
	WritesVertex         bool
	UsesSSS              bool
	UsesTime             bool
	UsesNormalMRT        bool
	UsesInstanceCustom   bool
}

// CanvasProperties are the render-mode driven switches of a canvas shader.
type CanvasProperties struct {
	BlendMode     BlendMode
	Unshaded      bool
	LightOnly     bool
	UsesTime      bool
	UsesScreenTex bool
}

// ParticlesProperties are the switches of a particles process shader.
type ParticlesProperties struct {
	KeepData        bool
	DisableForce    bool
	DisableVelocity bool
	UsesTime        bool
}

// Spatial interprets render modes and usage of a spatial shader.
func (p *Parsed) Spatial() SpatialProperties {
	sp := SpatialProperties{
		Unshaded:             p.HasRenderMode("unshaded"),
		NoDepthTest:          p.HasRenderMode("depth_test_disable") || p.HasRenderMode("depth_test_disabled"),
		UsesVertexLight:      p.Usage.UsesVertexLighting,
		WorldCoordinates:     p.Usage.UsesWorldCoordinates,
		ShadowsDisabled:      p.HasRenderMode("shadows_disabled"),
		AmbientDisabled:      p.HasRenderMode("ambient_light_disabled"),
		EnsureCorrectNormals: p.HasRenderMode("ensure_correct_normals"),
		UsesAlpha:            p.Usage.WritesAlpha,
		UsesAlphaScissor:     p.Usage.UsesAlphaScissor,
		UsesScreenTexture:    p.Usage.UsesScreenTexture,
		UsesDepthTexture:     p.Usage.UsesDepthTexture,
		UsesDiscard:          p.Usage.UsesDiscard,
		WritesVertex:         p.Usage.WritesVertex || p.Usage.WritesPosition,
		UsesSSS:              p.Usage.UsesSSS,
		UsesTime:             p.Usage.UsesTime,
		UsesNormalMRT:        p.Usage.UsesNormalRoughness,
		UsesInstanceCustom:   p.Usage.UsesInstanceCustom,
	}
	switch {
	case p.HasRenderMode("blend_add"):
		sp.BlendMode = BlendAdd
	case p.HasRenderMode("blend_sub"):
		sp.BlendMode = BlendSub
	case p.HasRenderMode("blend_mul"):
		sp.BlendMode = BlendMul
	}
	switch {
	case p.HasRenderMode("depth_draw_always"):
		sp.DepthDrawMode = DepthDrawAlways
	case p.HasRenderMode("depth_draw_never"):
		sp.DepthDrawMode = DepthDrawNever
	case p.HasRenderMode("depth_draw_alpha_prepass"):
		sp.DepthDrawMode = DepthDrawAlphaPrepass
	}
	switch {
	case p.HasRenderMode("cull_front"):
		sp.CullMode = CullFront
	case p.HasRenderMode("cull_disabled"):
		sp.CullMode = CullDisabled
	}
	return sp
}

// Canvas interprets render modes of a canvas shader.
func (p *Parsed) Canvas() CanvasProperties {
	cp := CanvasProperties{
		Unshaded:      p.HasRenderMode("unshaded"),
		LightOnly:     p.HasRenderMode("light_only"),
		UsesTime:      p.Usage.UsesTime,
		UsesScreenTex: p.Usage.UsesScreenTexture,
	}
	switch {
	case p.HasRenderMode("blend_add"):
		cp.BlendMode = BlendAdd
	case p.HasRenderMode("blend_sub"):
		cp.BlendMode = BlendSub
	case p.HasRenderMode("blend_mul"):
		cp.BlendMode = BlendMul
	}
	return cp
}

// Particles interprets render modes of a particles shader.
func (p *Parsed) Particles() ParticlesProperties {
	return ParticlesProperties{
		KeepData:        p.HasRenderMode("keep_data"),
		DisableForce:    p.HasRenderMode("disable_force"),
		DisableVelocity: p.HasRenderMode("disable_velocity"),
		UsesTime:        p.Usage.UsesTime,
	}
}

// Transparent reports whether elements using these properties belong to
// the alpha list.
func (sp SpatialProperties) Transparent() bool {
	return sp.UsesAlpha || sp.UsesScreenTexture || sp.UsesDepthTexture || sp.BlendMode != BlendMix
}

// CanCastShadow reports whether geometry with these properties is drawn
// into shadow maps.
func (sp SpatialProperties) CanCastShadow() bool {
	return !sp.Transparent() || sp.DepthDrawMode == DepthDrawAlphaPrepass
}
