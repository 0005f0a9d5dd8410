package shader

// Source is a named program template: two GLSL stages with marker comments
// for custom code, the conditional names it understands, and the fixed
// uniforms, samplers and blocks it exposes.
type Source struct {
	Name     string
	Vertex   string
	Fragment string

	Conditionals []string
	// Uniforms are looked up once per variant; Shader.Loc indexes them.
	Uniforms []string
	// TextureUnits binds built-in samplers to fixed units.
	TextureUnits map[string]int
	// UBOBindings binds uniform blocks to binding points. The material
	// block is bound automatically when a variant carries custom code.
	UBOBindings map[string]uint32
	// MaterialBinding is the binding point of the material block.
	MaterialBinding uint32
	// Feedback names interleaved transform feedback outputs.
	Feedback []string

	// FallbackBit is the conditional set on the generic depth-only variant
	// used while a custom variant is not ready; -1 disables the fallback.
	FallbackBit int
	// FallbackKeep masks the conditionals the fallback variant inherits.
	FallbackKeep Conditionals
}

// NewSceneSource fills the scene conditional table and depth fallback.
func NewSceneSource(name, vertex, fragment string) *Source {
	return &Source{
		Name:         name,
		Vertex:       vertex,
		Fragment:     fragment,
		Conditionals: SceneConditionalNames,
		FallbackBit:  SceneRenderDepth,
		FallbackKeep: SceneDepthConditionals,
	}
}
