package shader

import (
	"fmt"
	"strings"
)

// Markers a Source template carries where custom code is spliced in.
const (
	MarkerMaterialUniforms = "/* MATERIAL UNIFORMS */"
	MarkerVertexGlobals    = "/* VERTEX GLOBALS */"
	MarkerFragmentGlobals  = "/* FRAGMENT GLOBALS */"
	MarkerVertexCode       = "/* VERTEX CODE */"
	MarkerFragmentCode     = "/* FRAGMENT CODE */"
	MarkerLightCode        = "/* LIGHT CODE */"
)

// MaterialBlock is the name of the std140 block holding material uniforms.
const MaterialBlock = "MaterialUniforms"

// CustomCode is the GLSL a material shader contributes to a Source.
type CustomCode struct {
	Uniforms        string
	VertexGlobals   string
	FragmentGlobals string
	Vertex          string
	Fragment        string
	Light           string
	Defines         string
	// TextureNames lists sampler uniforms in unit order.
	TextureNames []string
}

// Generate turns a parsed shader into the code spliced into its mode's
// Source template.
func Generate(p *Parsed) CustomCode {
	var cc CustomCode
	var uni strings.Builder
	if p.UBOSize > 0 {
		fmt.Fprintf(&uni, "layout(std140) uniform %s {\n", MaterialBlock)
		for _, u := range p.Uniforms {
			if u.IsTexture() {
				continue
			}
			fmt.Fprintf(&uni, "\t%s %s;\n", u.Type.Name, u.Name)
		}
		uni.WriteString("};\n")
	}
	for _, u := range p.Uniforms {
		if u.IsTexture() {
			fmt.Fprintf(&uni, "uniform %s %s;\n", u.Type.Name, u.Name)
			cc.TextureNames = append(cc.TextureNames, u.Name)
		}
	}
	cc.Uniforms = uni.String()

	var vg, fg strings.Builder
	for _, v := range p.Varyings {
		flat := ""
		if v.Flat {
			flat = "flat "
		}
		fmt.Fprintf(&vg, "%sout %s %s;\n", flat, v.Type, v.Name)
		fmt.Fprintf(&fg, "%sin %s %s;\n", flat, v.Type, v.Name)
	}
	vg.WriteString(p.Globals)
	fg.WriteString(p.Globals)
	cc.VertexGlobals = vg.String()
	cc.FragmentGlobals = fg.String()

	cc.Vertex = p.Vertex
	cc.Fragment = p.Fragment
	cc.Light = p.Light

	var defs strings.Builder
	for _, m := range p.RenderModes {
		fmt.Fprintf(&defs, "#define RENDER_MODE_%s\n", strings.ToUpper(m))
	}
	define := func(on bool, name string) {
		if on {
			fmt.Fprintf(&defs, "#define %s\n", name)
		}
	}
	define(p.Vertex != "", "USE_VERTEX_SHADER_CODE")
	define(p.Fragment != "", "USE_FRAGMENT_SHADER_CODE")
	define(p.Light != "", "USE_LIGHT_SHADER_CODE")
	define(p.Usage.WritesAlpha, "USE_ALPHA")
	define(p.Usage.UsesAlphaScissor, "ALPHA_SCISSOR_USED")
	define(p.Usage.UsesSSS, "ENABLE_SSS")
	define(p.Usage.UsesScreenTexture, "SCREEN_TEXTURE_USED")
	define(p.Usage.UsesDepthTexture, "DEPTH_TEXTURE_USED")
	define(p.Usage.UsesInstanceCustom, "ENABLE_INSTANCE_CUSTOM")
	define(p.Usage.UsesWorldCoordinates, "VERTEX_WORLD_COORDS_USED")
	define(p.Usage.WritesPointSize, "USE_POINT_SIZE")
	define(p.Usage.WritesPosition, "OVERRIDE_POSITION")
	define(p.Usage.WritesNormalMap, "ENABLE_NORMALMAP")
	cc.Defines = defs.String()
	return cc
}

// expand splices cc into a stage template.
func expand(template string, cc *CustomCode, vertex bool) string {
	r := []string{MarkerMaterialUniforms, "", MarkerLightCode, "", MarkerVertexCode, "", MarkerFragmentCode, "",
		MarkerVertexGlobals, "", MarkerFragmentGlobals, ""}
	if cc != nil {
		r[1] = cc.Uniforms
		r[3] = cc.Light
		if vertex {
			r[5] = cc.Vertex
			r[9] = cc.VertexGlobals
		} else {
			r[7] = cc.Fragment
			r[11] = cc.FragmentGlobals
		}
	}
	return strings.NewReplacer(r...).Replace(template)
}
