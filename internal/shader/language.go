package shader

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse is returned for shader code the front-end does not understand.
var ErrParse = errors.New("shader: parse error")

// Mode is the shader_type of a material shader.
type Mode int

const (
	ModeSpatial Mode = iota
	ModeCanvas
	ModeParticles
)

func (m Mode) String() string {
	switch m {
	case ModeSpatial:
		return "spatial"
	case ModeCanvas:
		return "canvas_item"
	case ModeParticles:
		return "particles"
	}
	return "unknown"
}

// Hint tags a uniform with how missing values are filled and how textures
// are sampled.
type Hint int

const (
	HintNone Hint = iota
	HintColor
	HintRange
	HintAlbedo
	HintBlackAlbedo
	HintNormal
	HintAniso
	HintBlack
	HintWhite
	HintTransparent
)

var hintNames = map[string]Hint{
	"hint_color":        HintColor,
	"source_color":      HintColor,
	"hint_range":        HintRange,
	"hint_albedo":       HintAlbedo,
	"hint_black_albedo": HintBlackAlbedo,
	"hint_normal":       HintNormal,
	"hint_aniso":        HintAniso,
	"hint_black":        HintBlack,
	"hint_white":        HintWhite,
	"hint_transparent":  HintTransparent,
}

// TextureKind is the sampler dimensionality of a texture uniform.
type TextureKind int

const (
	TextureNone TextureKind = iota
	Texture2D
	Texture2DArray
	Texture3D
	TextureCube
)

// DataType describes a uniform type and its std140 footprint.
type DataType struct {
	Name       string
	Components int
	Size       int
	Align      int
	Integer    bool
	Bool       bool
	Texture    TextureKind
}

var dataTypes = map[string]DataType{
	"bool":           {Name: "bool", Components: 1, Size: 4, Align: 4, Bool: true},
	"int":            {Name: "int", Components: 1, Size: 4, Align: 4, Integer: true},
	"uint":           {Name: "uint", Components: 1, Size: 4, Align: 4, Integer: true},
	"float":          {Name: "float", Components: 1, Size: 4, Align: 4},
	"vec2":           {Name: "vec2", Components: 2, Size: 8, Align: 8},
	"vec3":           {Name: "vec3", Components: 3, Size: 12, Align: 16},
	"vec4":           {Name: "vec4", Components: 4, Size: 16, Align: 16},
	"ivec2":          {Name: "ivec2", Components: 2, Size: 8, Align: 8, Integer: true},
	"ivec3":          {Name: "ivec3", Components: 3, Size: 12, Align: 16, Integer: true},
	"ivec4":          {Name: "ivec4", Components: 4, Size: 16, Align: 16, Integer: true},
	"mat3":           {Name: "mat3", Components: 9, Size: 48, Align: 16},
	"mat4":           {Name: "mat4", Components: 16, Size: 64, Align: 16},
	"sampler2D":      {Name: "sampler2D", Texture: Texture2D},
	"isampler2D":     {Name: "isampler2D", Texture: Texture2D, Integer: true},
	"usampler2D":     {Name: "usampler2D", Texture: Texture2D, Integer: true},
	"sampler2DArray": {Name: "sampler2DArray", Texture: Texture2DArray},
	"sampler3D":      {Name: "sampler3D", Texture: Texture3D},
	"samplerCube":    {Name: "samplerCube", Texture: TextureCube},
}

// Uniform is one declared material parameter.
type Uniform struct {
	Name     string
	Type     DataType
	Hint     Hint
	HintArgs []float32
	// Default is nil when the declaration has no initializer.
	Default []float32
	Order   int
	// Offset and Size locate the value in the std140 material block; both
	// are zero for textures.
	Offset int
	Size   int
	// Unit is the texture unit for samplers, -1 otherwise.
	Unit int
}

// IsTexture reports whether u is a sampler.
func (u *Uniform) IsTexture() bool {
	return u.Type.Texture != TextureNone
}

// IsColor reports whether u carries a color that must be linearized for
// spatial shaders.
func (u *Uniform) IsColor() bool {
	return u.Hint == HintColor && (u.Type.Name == "vec3" || u.Type.Name == "vec4")
}

// Varying is a user varying passed from vertex to fragment.
type Varying struct {
	Type string
	Name string
	Flat bool
}

// Usage flags discovered while parsing function bodies.
type Usage struct {
	WritesAlpha          bool
	UsesAlphaScissor     bool
	UsesScreenTexture    bool
	UsesDepthTexture     bool
	UsesNormalRoughness  bool
	UsesTime             bool
	UsesDiscard          bool
	WritesVertex         bool
	WritesPosition       bool
	WritesNormalMap      bool
	UsesSSS              bool
	UsesVertexLighting   bool
	UsesWorldCoordinates bool
	UsesInstanceCustom   bool
	UsesFragCoord        bool
	WritesPointSize      bool
}

// Parsed is the front-end result for one shader.
type Parsed struct {
	Mode        Mode
	RenderModes []string
	Uniforms    []*Uniform
	Varyings    []Varying
	// Globals holds helper functions and constants verbatim.
	Globals  string
	Vertex   string
	Fragment string
	Light    string
	UBOSize  int
	Textures []*Uniform
	Usage    Usage
}

// HasRenderMode reports whether m was listed in a render_mode statement.
func (p *Parsed) HasRenderMode(m string) bool {
	for _, r := range p.RenderModes {
		if r == m {
			return true
		}
	}
	return false
}

// Uniform looks a uniform up by name.
func (p *Parsed) Uniform(name string) *Uniform {
	for _, u := range p.Uniforms {
		if u.Name == name {
			return u
		}
	}
	return nil
}

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	identRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Parse runs the shader front-end over code.
func Parse(code string) (*Parsed, error) {
	src := blockComment.ReplaceAllStringFunc(code, func(s string) string {
		return strings.Repeat("\n", strings.Count(s, "\n"))
	})
	src = lineComment.ReplaceAllString(src, "")

	p := &Parsed{Mode: -1}
	var globals strings.Builder
	pos := 0
	for {
		for pos < len(src) && isSpace(src[pos]) {
			pos++
		}
		if pos >= len(src) {
			break
		}
		end, isFunc, err := statementEnd(src, pos)
		if err != nil {
			return nil, err
		}
		stmt := src[pos:end]
		if isFunc {
			// Function statements keep their closing brace.
			stmt = src[pos : end+1]
		}
		stmt = strings.TrimSpace(stmt)
		line := strings.Count(src[:pos], "\n") + 1
		pos = end + 1
		if isFunc {
			if err := p.addFunction(stmt, &globals); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		if err := p.addStatement(stmt, &globals); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if p.Mode < 0 {
		return nil, fmt.Errorf("missing shader_type: %w", ErrParse)
	}
	p.Globals = globals.String()
	p.layout()
	p.scanUsage()
	return p, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// statementEnd finds the end of the statement starting at pos: the ';' at
// nesting depth zero, or the '}' closing a function body.
func statementEnd(src string, pos int) (int, bool, error) {
	parens := 0
	for i := pos; i < len(src); i++ {
		switch src[i] {
		case '(':
			parens++
		case ')':
			parens--
		case ';':
			if parens == 0 {
				return i, false, nil
			}
		case '{':
			if parens != 0 {
				continue
			}
			depth := 0
			for j := i; j < len(src); j++ {
				switch src[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						return j, true, nil
					}
				}
			}
			return 0, false, fmt.Errorf("unterminated block: %w", ErrParse)
		}
	}
	return 0, false, fmt.Errorf("missing ';': %w", ErrParse)
}

func (p *Parsed) addStatement(stmt string, globals *strings.Builder) error {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "shader_type":
		if len(fields) != 2 {
			return fmt.Errorf("shader_type: %w", ErrParse)
		}
		switch fields[1] {
		case "spatial":
			p.Mode = ModeSpatial
		case "canvas_item":
			p.Mode = ModeCanvas
		case "particles":
			p.Mode = ModeParticles
		default:
			return fmt.Errorf("unknown shader_type %q: %w", fields[1], ErrParse)
		}
	case "render_mode":
		for _, m := range strings.Split(strings.TrimSpace(stmt[len("render_mode"):]), ",") {
			m = strings.TrimSpace(m)
			if !identRe.MatchString(m) {
				return fmt.Errorf("render_mode %q: %w", m, ErrParse)
			}
			p.RenderModes = append(p.RenderModes, m)
		}
	case "uniform":
		return p.addUniform(strings.TrimSpace(stmt[len("uniform"):]))
	case "varying":
		rest := stripPrecision(fields[1:])
		v := Varying{}
		if len(rest) > 0 && rest[0] == "flat" {
			v.Flat = true
			rest = rest[1:]
		}
		if len(rest) != 2 || !identRe.MatchString(rest[1]) {
			return fmt.Errorf("varying: %w", ErrParse)
		}
		v.Type, v.Name = rest[0], rest[1]
		p.Varyings = append(p.Varyings, v)
	case "const":
		globals.WriteString(stmt)
		globals.WriteString(";\n")
	default:
		return fmt.Errorf("unexpected %q: %w", fields[0], ErrParse)
	}
	return nil
}

func stripPrecision(fields []string) []string {
	out := fields[:0:0]
	for _, f := range fields {
		switch f {
		case "lowp", "mediump", "highp":
			continue
		}
		out = append(out, f)
	}
	return out
}

func (p *Parsed) addUniform(decl string) error {
	var def string
	if i := strings.IndexByte(decl, '='); i >= 0 {
		decl, def = strings.TrimSpace(decl[:i]), strings.TrimSpace(decl[i+1:])
	}
	var hint string
	if i := strings.IndexByte(decl, ':'); i >= 0 {
		decl, hint = strings.TrimSpace(decl[:i]), strings.TrimSpace(decl[i+1:])
	}
	parts := stripPrecision(strings.Fields(decl))
	if len(parts) != 2 || !identRe.MatchString(parts[1]) {
		return fmt.Errorf("uniform %q: %w", decl, ErrParse)
	}
	dt, ok := dataTypes[parts[0]]
	if !ok {
		return fmt.Errorf("uniform type %q: %w", parts[0], ErrParse)
	}
	if p.Uniform(parts[1]) != nil {
		return fmt.Errorf("uniform %q redeclared: %w", parts[1], ErrParse)
	}
	u := &Uniform{Name: parts[1], Type: dt, Order: len(p.Uniforms), Unit: -1}
	if hint != "" {
		name, args, err := splitCall(hint)
		if err != nil {
			return err
		}
		h, ok := hintNames[name]
		if !ok {
			return fmt.Errorf("hint %q: %w", name, ErrParse)
		}
		u.Hint, u.HintArgs = h, args
	}
	if def != "" {
		vals, err := parseDefault(def, dt)
		if err != nil {
			return err
		}
		u.Default = vals
	}
	p.Uniforms = append(p.Uniforms, u)
	return nil
}

// splitCall parses `name` or `name(a, b, ...)` with numeric arguments.
func splitCall(s string) (string, []float32, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if !identRe.MatchString(s) {
			return "", nil, fmt.Errorf("%q: %w", s, ErrParse)
		}
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("%q: %w", s, ErrParse)
	}
	name := strings.TrimSpace(s[:open])
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	var args []float32
	if inner != "" {
		for _, a := range strings.Split(inner, ",") {
			v, err := parseNumber(strings.TrimSpace(a))
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		}
	}
	return name, args, nil
}

func parseNumber(s string) (float32, error) {
	switch s {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	s = strings.TrimSuffix(strings.TrimSuffix(s, "f"), "u")
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", s, ErrParse)
	}
	return float32(v), nil
}

func parseDefault(s string, dt DataType) ([]float32, error) {
	if dt.Texture != TextureNone {
		return nil, fmt.Errorf("texture uniforms take no default: %w", ErrParse)
	}
	var vals []float32
	if strings.Contains(s, "(") {
		name, args, err := splitCall(s)
		if err != nil {
			return nil, err
		}
		if name != dt.Name {
			return nil, fmt.Errorf("default %q for %s: %w", name, dt.Name, ErrParse)
		}
		vals = args
	} else {
		v, err := parseNumber(s)
		if err != nil {
			return nil, err
		}
		vals = []float32{v}
	}
	switch {
	case len(vals) == dt.Components:
		return vals, nil
	case len(vals) == 1 && (dt.Name == "mat3" || dt.Name == "mat4"):
		n := 3
		if dt.Name == "mat4" {
			n = 4
		}
		out := make([]float32, n*n)
		for i := 0; i < n; i++ {
			out[i*n+i] = vals[0]
		}
		return out, nil
	case len(vals) == 1:
		out := make([]float32, dt.Components)
		for i := range out {
			out[i] = vals[0]
		}
		return out, nil
	}
	return nil, fmt.Errorf("default for %s has %d values: %w", dt.Name, len(vals), ErrParse)
}

var funcHeader = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)\s*\{`)

func (p *Parsed) addFunction(stmt string, globals *strings.Builder) error {
	m := funcHeader.FindStringSubmatch(stmt)
	if m == nil {
		return fmt.Errorf("function header: %w", ErrParse)
	}
	body := strings.TrimSpace(stmt[len(m[0]) : len(stmt)-1])
	switch m[2] {
	case "vertex":
		p.Vertex = body
	case "fragment":
		p.Fragment = body
	case "light":
		p.Light = body
	default:
		globals.WriteString(stmt)
		globals.WriteByte('\n')
	}
	return nil
}

// layout assigns std140 offsets in declaration order and sequential texture
// units to samplers.
func (p *Parsed) layout() {
	offset := 0
	for _, u := range p.Uniforms {
		if u.IsTexture() {
			u.Unit = len(p.Textures)
			p.Textures = append(p.Textures, u)
			continue
		}
		offset = alignUp(offset, u.Type.Align)
		u.Offset = offset
		u.Size = u.Type.Size
		offset += u.Size
	}
	p.UBOSize = alignUp(offset, 16)
}

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}

func assigns(body, ident string) bool {
	re := regexp.MustCompile(`\b` + ident + `\b(\.[xyzwrgba]+)?\s*[-+*/]?=[^=]`)
	return re.MatchString(body)
}

func mentions(body, ident string) bool {
	re := regexp.MustCompile(`\b` + ident + `\b`)
	return re.MatchString(body)
}

func (p *Parsed) scanUsage() {
	all := p.Vertex + "\n" + p.Fragment + "\n" + p.Light + "\n" + p.Globals
	u := &p.Usage
	u.WritesAlpha = assigns(p.Fragment, "ALPHA")
	u.UsesAlphaScissor = assigns(p.Fragment, "ALPHA_SCISSOR")
	u.UsesScreenTexture = mentions(all, "SCREEN_TEXTURE")
	u.UsesDepthTexture = mentions(all, "DEPTH_TEXTURE")
	u.UsesNormalRoughness = assigns(p.Fragment, "NORMAL") || assigns(p.Fragment, "NORMALMAP") || assigns(p.Fragment, "ROUGHNESS")
	u.UsesTime = mentions(all, "TIME")
	u.UsesDiscard = mentions(p.Fragment, "discard") || mentions(p.Light, "discard")
	u.WritesVertex = assigns(p.Vertex, "VERTEX")
	u.WritesPosition = assigns(p.Vertex, "POSITION")
	u.WritesNormalMap = assigns(p.Fragment, "NORMALMAP")
	u.UsesSSS = assigns(p.Fragment, "SSS_STRENGTH")
	u.UsesVertexLighting = p.HasRenderMode("vertex_lighting")
	u.UsesWorldCoordinates = p.HasRenderMode("world_vertex_coords")
	u.UsesInstanceCustom = mentions(p.Vertex, "INSTANCE_CUSTOM")
	u.UsesFragCoord = mentions(p.Fragment, "FRAGCOORD")
	u.WritesPointSize = assigns(p.Vertex, "POINT_SIZE")
}
