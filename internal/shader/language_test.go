package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaterial = `
shader_type spatial;
render_mode unshaded, cull_disabled;

uniform float roughness : hint_range(0, 1) = 0.5;
uniform vec3 tint : source_color = vec3(1.0, 0.5, 0.25);
uniform sampler2D albedo_tex : hint_albedo;
uniform highp vec4 params;
varying vec3 world_pos;

const float SCALE = 2.0;

/* helpers */
float twice(float x) {
	return x * SCALE;
}

void vertex() {
	world_pos = VERTEX;
}

void fragment() {
	ALBEDO = texture(albedo_tex, UV).rgb * tint; // sampled
	ALPHA = twice(roughness);
}
`

func TestParseUniformLayout(t *testing.T) {
	p, err := Parse(testMaterial)
	require.NoError(t, err)
	assert.Equal(t, ModeSpatial, p.Mode)
	assert.Equal(t, []string{"unshaded", "cull_disabled"}, p.RenderModes)
	require.Len(t, p.Uniforms, 4)

	rough := p.Uniform("roughness")
	require.NotNil(t, rough)
	assert.Equal(t, HintRange, rough.Hint)
	assert.Equal(t, []float32{0, 1}, rough.HintArgs)
	assert.Equal(t, []float32{0.5}, rough.Default)
	assert.Equal(t, 0, rough.Offset)

	tint := p.Uniform("tint")
	assert.True(t, tint.IsColor())
	assert.Equal(t, 16, tint.Offset, "vec3 aligns to 16")
	assert.Equal(t, []float32{1, 0.5, 0.25}, tint.Default)

	params := p.Uniform("params")
	assert.Equal(t, 32, params.Offset)
	assert.Nil(t, params.Default)
	assert.Equal(t, 48, p.UBOSize)

	tex := p.Uniform("albedo_tex")
	assert.True(t, tex.IsTexture())
	assert.Equal(t, 0, tex.Unit)
	assert.Equal(t, HintAlbedo, tex.Hint)
	assert.Equal(t, -1, rough.Unit)
	assert.Equal(t, []*Uniform{tex}, p.Textures)
}

func TestParseBodiesAndUsage(t *testing.T) {
	p, err := Parse(testMaterial)
	require.NoError(t, err)
	assert.Equal(t, []Varying{{Type: "vec3", Name: "world_pos"}}, p.Varyings)
	assert.Contains(t, p.Globals, "const float SCALE = 2.0;")
	assert.Contains(t, p.Globals, "float twice(float x) {\n\treturn x * SCALE;\n}\n")
	assert.Equal(t, "world_pos = VERTEX;", p.Vertex)
	assert.Contains(t, p.Fragment, "ALPHA = twice(roughness);")
	assert.NotContains(t, p.Fragment, "sampled")
	assert.Empty(t, p.Light)

	assert.True(t, p.Usage.WritesAlpha)
	assert.False(t, p.Usage.UsesAlphaScissor)
	assert.False(t, p.Usage.WritesVertex)
	assert.False(t, p.Usage.UsesTime)

	sp := p.Spatial()
	assert.True(t, sp.Unshaded)
	assert.Equal(t, CullDisabled, sp.CullMode)
	assert.True(t, sp.Transparent())
	assert.False(t, sp.CanCastShadow())
}

func TestParseDefaults(t *testing.T) {
	p, err := Parse(`shader_type canvas_item;
uniform mat3 basis = 2.0;
uniform vec2 offset = 1.5;
uniform bool flip = true;
uniform ivec2 cells = ivec2(3, 4);`)
	require.NoError(t, err)
	assert.Equal(t, ModeCanvas, p.Mode)
	assert.Equal(t, []float32{2, 0, 0, 0, 2, 0, 0, 0, 2}, p.Uniform("basis").Default)
	assert.Equal(t, []float32{1.5, 1.5}, p.Uniform("offset").Default)
	assert.Equal(t, []float32{1}, p.Uniform("flip").Default)
	assert.Equal(t, []float32{3, 4}, p.Uniform("cells").Default)

	// mat3 occupies three vec4 columns.
	assert.Equal(t, 0, p.Uniform("basis").Offset)
	assert.Equal(t, 48, p.Uniform("offset").Offset)
	assert.Equal(t, 56, p.Uniform("flip").Offset)
	assert.Equal(t, 64, p.Uniform("cells").Offset)
	assert.Equal(t, 80, p.UBOSize)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing type":     "uniform float x;",
		"unknown type":     "shader_type spatial;\nuniform vec5 x;",
		"bad mode":         "shader_type compute;",
		"texture default":  "shader_type spatial;\nuniform sampler2D t = 1.0;",
		"redeclared":       "shader_type spatial;\nuniform float a;\nuniform float a;",
		"bad hint":         "shader_type spatial;\nuniform float a : hint_nothing;",
		"unterminated":     "shader_type spatial;\nvoid fragment() {",
		"missing semi":     "shader_type spatial",
		"wrong components": "shader_type spatial;\nuniform vec3 c = vec3(1.0, 2.0);",
		"stray statement":  "shader_type spatial;\nreturn 1;",
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(code)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseErrorLine(t *testing.T) {
	_, err := Parse("shader_type spatial;\n\n/* a\nb */\nuniform vec5 x;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 5")
}

func TestGenerate(t *testing.T) {
	p, err := Parse(testMaterial)
	require.NoError(t, err)
	cc := Generate(p)

	assert.Contains(t, cc.Uniforms, "layout(std140) uniform MaterialUniforms {\n\tfloat roughness;\n\tvec3 tint;\n\tvec4 params;\n};\n")
	assert.Contains(t, cc.Uniforms, "uniform sampler2D albedo_tex;\n")
	assert.Equal(t, []string{"albedo_tex"}, cc.TextureNames)
	assert.Contains(t, cc.VertexGlobals, "out vec3 world_pos;\n")
	assert.Contains(t, cc.FragmentGlobals, "in vec3 world_pos;\n")
	assert.Contains(t, cc.FragmentGlobals, "float twice(float x)")

	assert.Contains(t, cc.Defines, "#define RENDER_MODE_UNSHADED\n")
	assert.Contains(t, cc.Defines, "#define RENDER_MODE_CULL_DISABLED\n")
	assert.Contains(t, cc.Defines, "#define USE_VERTEX_SHADER_CODE\n")
	assert.Contains(t, cc.Defines, "#define USE_FRAGMENT_SHADER_CODE\n")
	assert.Contains(t, cc.Defines, "#define USE_ALPHA\n")
	assert.NotContains(t, cc.Defines, "USE_LIGHT_SHADER_CODE")
}

func TestGenerateWithoutUniforms(t *testing.T) {
	p, err := Parse("shader_type spatial;\nvoid light() { DIFFUSE_LIGHT += vec3(1.0); }")
	require.NoError(t, err)
	cc := Generate(p)
	assert.Empty(t, cc.Uniforms)
	assert.Contains(t, cc.Defines, "#define USE_LIGHT_SHADER_CODE\n")
}

func TestExpandSplicesPerStage(t *testing.T) {
	cc := &CustomCode{Uniforms: "U", VertexGlobals: "VG", FragmentGlobals: "FG", Vertex: "V", Fragment: "F", Light: "L"}
	tmpl := MarkerMaterialUniforms + "|" + MarkerVertexGlobals + "|" + MarkerFragmentGlobals + "|" +
		MarkerVertexCode + "|" + MarkerFragmentCode + "|" + MarkerLightCode
	assert.Equal(t, "U|VG||V||L", expand(tmpl, cc, true))
	assert.Equal(t, "U||FG||F|L", expand(tmpl, cc, false))
	assert.Equal(t, "|||||", expand(tmpl, nil, true))
}

func TestConditionals(t *testing.T) {
	var c Conditionals
	c = c.With(SceneUseShadow, true).With(SceneUseInstancing, true).With(SceneUseSkeleton, true)
	c = c.With(SceneUseSkeleton, false)
	assert.True(t, c.Has(SceneUseShadow))
	assert.False(t, c.Has(SceneUseSkeleton))
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, "#define USE_SHADOW\n#define USE_INSTANCING\n", c.Defines(SceneConditionalNames))

	assert.Len(t, SceneConditionalNames, SceneUseBlendShapes+1)
	kept := c & SceneDepthConditionals
	assert.True(t, kept.Has(SceneUseInstancing))
	assert.False(t, kept.Has(SceneUseShadow))
}

func TestConditionalBitsRoundTrip(t *testing.T) {
	for i, name := range SceneConditionalNames {
		t.Run(name, func(t *testing.T) {
			c := Conditionals(0).With(i, true)
			assert.True(t, c.Has(i))
			assert.Equal(t, 1, c.Count())
			assert.Equal(t, "#define "+name+"\n", c.Defines(SceneConditionalNames))
			for j := range SceneConditionalNames {
				if j != i {
					assert.False(t, c.Has(j), "bit %d leaks into %d", i, j)
				}
			}
			assert.Zero(t, c.With(i, false))
		})
	}

	var all Conditionals
	for i := range MaxConditionals {
		all = all.With(i, true)
	}
	assert.Equal(t, ^Conditionals(0), all)
	assert.Equal(t, MaxConditionals, all.Count())
	for i := range MaxConditionals {
		assert.Equal(t, MaxConditionals-1, all.With(i, false).Count())
	}
}
