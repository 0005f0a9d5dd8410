package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	gmath "gles3render/math"
)

// Render priority bounds of MaterialSetRenderPriority. The range fits the
// five priority bits of a render sort key.
const (
	RenderPriorityMin = -16
	RenderPriorityMax = 15
)

// DefaultShaderCode is the code of the shader behind the default material.
const DefaultShaderCode = "shader_type spatial;\n"

// ── Shaders ──

// Shader is a material shader: its code, what the parser learned from it
// and the custom code slot it occupies in its mode's program template.
type Shader struct {
	Code   string
	Mode   shader.Mode
	Parsed *shader.Parsed
	Valid  bool

	Spatial   shader.SpatialProperties
	Canvas    shader.CanvasProperties
	Particles shader.ParticlesProperties

	// DefaultTextures override the hint fallback per sampler name.
	DefaultTextures map[string]ecs.Entity

	program    *shader.Shader
	customCode uint32
	materials  map[ecs.Entity]struct{}
}

// Program returns the mode program the shader's code is spliced into and
// the custom code id selecting it.
func (sh *Shader) Program() (*shader.Shader, uint32) { return sh.program, sh.customCode }

// ShaderCreate makes a shader with empty code. It stays invalid until code
// that parses is set.
func (s *Storage) ShaderCreate() ecs.Entity {
	e, _ := create(s, Shader{Mode: -1, DefaultTextures: map[string]ecs.Entity{}, materials: map[ecs.Entity]struct{}{}})
	return e
}

func (s *Storage) destroyShader(e ecs.Entity, sh *Shader) {
	if sh.program != nil && sh.customCode != 0 {
		sh.program.RemoveCustomCode(sh.customCode)
	}
	for m := range sh.materials {
		if mat := ecs.Get[Material](s.reg, m); mat != nil {
			mat.Shader = ecs.Null
			s.dirtyMaterials.Mark(m)
		}
	}
}

// ShaderSetCode replaces the code. It is parsed on the next update.
func (s *Storage) ShaderSetCode(e ecs.Entity, code string) {
	sh := get[Shader](s, e, "shader set code")
	if sh == nil {
		return
	}
	sh.Code = code
	s.dirtyShaders.Mark(e)
}

// ShaderGetCode returns the code last set.
func (s *Storage) ShaderGetCode(e ecs.Entity) string {
	if sh := get[Shader](s, e, "shader get code"); sh != nil {
		return sh.Code
	}
	return ""
}

// ShaderGetParamList returns the uniforms in declaration order.
func (s *Storage) ShaderGetParamList(e ecs.Entity) []*shader.Uniform {
	sh := get[Shader](s, e, "shader get param list")
	if sh == nil {
		return nil
	}
	if s.dirtyShaders.Contains(e) {
		s.dirtyShaders.Unmark(e)
		s.updateShader(e, sh)
	}
	if sh.Parsed == nil {
		return nil
	}
	out := append([]*shader.Uniform(nil), sh.Parsed.Uniforms...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ShaderSetDefaultTextureParam sets the texture a sampler uses when a
// material provides none. A null texture removes the override.
func (s *Storage) ShaderSetDefaultTextureParam(e ecs.Entity, name string, tex ecs.Entity) {
	sh := get[Shader](s, e, "shader set default texture param")
	if sh == nil {
		return
	}
	if tex.IsNull() {
		delete(sh.DefaultTextures, name)
	} else {
		sh.DefaultTextures[name] = tex
	}
	for m := range sh.materials {
		s.dirtyMaterials.Mark(m)
	}
}

// ShaderGetDefaultTextureParam returns the default texture of a sampler.
func (s *Storage) ShaderGetDefaultTextureParam(e ecs.Entity, name string) ecs.Entity {
	if sh := get[Shader](s, e, "shader get default texture param"); sh != nil {
		if t, ok := sh.DefaultTextures[name]; ok {
			return t
		}
	}
	return ecs.Null
}

// UpdateDirtyShaders reparses changed shaders and regenerates their
// custom code.
func (s *Storage) UpdateDirtyShaders() {
	s.dirtyShaders.Drain(func(e ecs.Entity) {
		if sh := ecs.Get[Shader](s.reg, e); sh != nil {
			s.updateShader(e, sh)
		}
	})
}

func (s *Storage) updateShader(e ecs.Entity, sh *Shader) {
	defer func() {
		for m := range sh.materials {
			s.dirtyMaterials.Mark(m)
		}
	}()
	invalidate := func() {
		sh.Valid = false
		sh.Parsed = nil
		if sh.program != nil && sh.customCode != 0 {
			sh.program.RemoveCustomCode(sh.customCode)
		}
		sh.program, sh.customCode = nil, 0
	}
	if sh.Code == "" {
		invalidate()
		return
	}
	p, err := shader.Parse(sh.Code)
	if err != nil {
		core.LogError("shader %v: %v\n%s", e, err, core.NumberedSource(sh.Code))
		invalidate()
		return
	}
	prog := s.modes[p.Mode]
	if prog == nil {
		core.LogError("shader %v: no program template for %v shaders", e, p.Mode)
		invalidate()
		return
	}
	if sh.program != prog {
		if sh.program != nil && sh.customCode != 0 {
			sh.program.RemoveCustomCode(sh.customCode)
		}
		sh.program, sh.customCode = prog, prog.AddCustomCode()
	}
	prog.SetCustomCode(sh.customCode, shader.Generate(p))
	sh.Parsed = p
	sh.Mode = p.Mode
	sh.Valid = true
	switch p.Mode {
	case shader.ModeSpatial:
		sh.Spatial = p.Spatial()
	case shader.ModeCanvas:
		sh.Canvas = p.Canvas()
	case shader.ModeParticles:
		sh.Particles = p.Particles()
	}
}

func (sh *Shader) usesTime() bool {
	if sh.Parsed == nil {
		return false
	}
	return sh.Parsed.Usage.UsesTime
}

// ── Materials ──

// Material binds a shader to parameter values, a uniform buffer and a
// resolved texture list.
type Material struct {
	Shader ecs.Entity
	// Params maps uniform names to values: float32, int, int32, uint32,
	// bool, []float32, gmath.Vec2/Vec3/Vec4, gmath.Mat4, core.Color or an
	// ecs.Entity naming a texture.
	Params map[string]any

	UBOSize int
	UBOData []byte

	// Textures is parallel to the shader's sampler list.
	Textures     []ecs.Entity
	TextureHints []shader.Hint
	TextureKinds []shader.TextureKind

	NextPass       ecs.Entity
	RenderPriority int
	LineWidth      float32
	CanCastShadow  bool
	IsAnimated     bool

	ubo            glapi.Buffer
	geometryOwners map[ecs.Entity]int
	instanceOwners map[ecs.Entity]int
}

// UBOID returns the GL name of the material uniform buffer, 0 when the
// shader declares no block.
func (m *Material) UBOID() uint32 { return m.ubo.ID() }

// GeometryOwners returns the number of geometries referencing m.
func (m *Material) GeometryOwners() int { return len(m.geometryOwners) }

// InstanceOwners returns the number of instances referencing m.
func (m *Material) InstanceOwners() int { return len(m.instanceOwners) }

// MaterialCreate makes a material without a shader.
func (s *Storage) MaterialCreate() ecs.Entity {
	e, _ := create(s, Material{
		Shader:         ecs.Null,
		NextPass:       ecs.Null,
		Params:         map[string]any{},
		LineWidth:      1,
		geometryOwners: map[ecs.Entity]int{},
		instanceOwners: map[ecs.Entity]int{},
	})
	return e
}

func (s *Storage) destroyMaterial(e ecs.Entity, m *Material) {
	if sh := ecs.Get[Shader](s.reg, m.Shader); sh != nil {
		delete(sh.materials, e)
	}
	for g := range m.geometryOwners {
		if sf := ecs.Get[Surface](s.reg, g); sf != nil && sf.Material == e {
			sf.Material = ecs.Null
			if mesh := ecs.Get[Mesh](s.reg, sf.Mesh); mesh != nil {
				s.markInstances(mesh.instances)
			}
		}
		if im := ecs.Get[Immediate](s.reg, g); im != nil && im.Material == e {
			im.Material = ecs.Null
			s.markInstances(im.instances)
		}
	}
	for i := range m.instanceOwners {
		if in := ecs.Get[Instance](s.reg, i); in != nil {
			in.dropMaterial(e)
			s.dirtyInstances.Mark(i)
		}
	}
	s.info.VertexMem -= m.UBOSize
	m.ubo.Release()
}

// MaterialSetShader assigns the shader. The material is repacked on the
// next update.
func (s *Storage) MaterialSetShader(e, sh ecs.Entity) {
	m := get[Material](s, e, "material set shader")
	if m == nil || m.Shader == sh {
		return
	}
	if old := ecs.Get[Shader](s.reg, m.Shader); old != nil {
		delete(old.materials, e)
	}
	m.Shader = ecs.Null
	if shc := get[Shader](s, sh, "material set shader"); shc != nil {
		m.Shader = sh
		shc.materials[e] = struct{}{}
	}
	s.dirtyMaterials.Mark(e)
}

// MaterialGetShader returns the shader.
func (s *Storage) MaterialGetShader(e ecs.Entity) ecs.Entity {
	if m := get[Material](s, e, "material get shader"); m != nil {
		return m.Shader
	}
	return ecs.Null
}

// MaterialSetParam sets a parameter; a nil value clears it.
func (s *Storage) MaterialSetParam(e ecs.Entity, name string, v any) {
	m := get[Material](s, e, "material set param")
	if m == nil {
		return
	}
	if v == nil {
		delete(m.Params, name)
	} else {
		m.Params[name] = v
	}
	s.dirtyMaterials.Mark(e)
}

// MaterialGetParam returns a parameter, or nil when unset.
func (s *Storage) MaterialGetParam(e ecs.Entity, name string) any {
	if m := get[Material](s, e, "material get param"); m != nil {
		return m.Params[name]
	}
	return nil
}

// MaterialGetParamDefault returns the shader default of a parameter.
func (s *Storage) MaterialGetParamDefault(e ecs.Entity, name string) []float32 {
	m := get[Material](s, e, "material get param default")
	if m == nil {
		return nil
	}
	sh := ecs.Get[Shader](s.reg, m.Shader)
	if sh == nil || sh.Parsed == nil {
		return nil
	}
	if u := sh.Parsed.Uniform(name); u != nil {
		return u.Default
	}
	return nil
}

// MaterialSetNextPass chains a material drawn after this one.
func (s *Storage) MaterialSetNextPass(e, next ecs.Entity) {
	m := get[Material](s, e, "material set next pass")
	if m == nil {
		return
	}
	if next == e {
		core.LogError("material set next pass: %v cannot follow itself", e)
		return
	}
	m.NextPass = next
	s.dirtyMaterials.Mark(e)
}

// MaterialSetRenderPriority sets the sort priority, clamped to
// [RenderPriorityMin, RenderPriorityMax].
func (s *Storage) MaterialSetRenderPriority(e ecs.Entity, p int) {
	m := get[Material](s, e, "material set render priority")
	if m == nil {
		return
	}
	if p < RenderPriorityMin || p > RenderPriorityMax {
		core.LogWarn("material set render priority %d: clamped to [%d, %d]", p, RenderPriorityMin, RenderPriorityMax)
		p = min(max(p, RenderPriorityMin), RenderPriorityMax)
	}
	m.RenderPriority = p
}

// MaterialSetLineWidth sets the width of line primitives.
func (s *Storage) MaterialSetLineWidth(e ecs.Entity, w float32) {
	if m := get[Material](s, e, "material set line width"); m != nil {
		m.LineWidth = w
	}
}

// MaterialAddGeometry records that a surface or immediate references e.
// It reports false when e is not a material.
func (s *Storage) MaterialAddGeometry(e, geometry ecs.Entity) bool {
	m := get[Material](s, e, "material add geometry")
	if m == nil {
		return false
	}
	m.geometryOwners[geometry]++
	return true
}

// MaterialRemoveGeometry drops one geometry reference.
func (s *Storage) MaterialRemoveGeometry(e, geometry ecs.Entity) {
	m := get[Material](s, e, "material remove geometry")
	if m == nil {
		return
	}
	if m.geometryOwners[geometry] <= 1 {
		delete(m.geometryOwners, geometry)
		return
	}
	m.geometryOwners[geometry]--
}

// MaterialAddInstance records that an instance references e.
func (s *Storage) MaterialAddInstance(e, instance ecs.Entity) bool {
	m := get[Material](s, e, "material add instance")
	if m == nil {
		return false
	}
	m.instanceOwners[instance]++
	return true
}

// MaterialRemoveInstance drops one instance reference.
func (s *Storage) MaterialRemoveInstance(e, instance ecs.Entity) {
	m := get[Material](s, e, "material remove instance")
	if m == nil {
		return
	}
	if m.instanceOwners[instance] <= 1 {
		delete(m.instanceOwners, instance)
		return
	}
	m.instanceOwners[instance]--
}

// MaterialIsAnimated reports whether the material or its next passes use
// time.
func (s *Storage) MaterialIsAnimated(e ecs.Entity) bool {
	for seen := map[ecs.Entity]bool{}; !seen[e]; {
		seen[e] = true
		m := ecs.Get[Material](s.reg, e)
		if m == nil {
			return false
		}
		if s.dirtyMaterials.Contains(e) {
			s.dirtyMaterials.Unmark(e)
			s.updateMaterial(e, m)
		}
		if m.IsAnimated {
			return true
		}
		e = m.NextPass
	}
	return false
}

// MaterialCastsShadow reports whether geometry using the material can be
// drawn into shadow maps.
func (s *Storage) MaterialCastsShadow(e ecs.Entity) bool {
	m := ecs.Get[Material](s.reg, e)
	if m == nil {
		return true
	}
	if s.dirtyMaterials.Contains(e) {
		s.dirtyMaterials.Unmark(e)
		s.updateMaterial(e, m)
	}
	return m.CanCastShadow
}

// ResolveMaterial returns e when it is a material with a valid shader and
// the default material otherwise.
func (s *Storage) ResolveMaterial(e ecs.Entity) (ecs.Entity, *Material, *Shader) {
	if m := ecs.Get[Material](s.reg, e); m != nil {
		if sh := ecs.Get[Shader](s.reg, m.Shader); sh != nil && sh.Valid {
			return e, m, sh
		}
	}
	e = s.DefaultMaterial
	m := ecs.Get[Material](s.reg, e)
	if m == nil {
		return ecs.Null, nil, nil
	}
	return e, m, ecs.Get[Shader](s.reg, m.Shader)
}

// UpdateDirtyMaterials repacks changed materials.
func (s *Storage) UpdateDirtyMaterials() {
	s.dirtyMaterials.Drain(func(e ecs.Entity) {
		if m := ecs.Get[Material](s.reg, e); m != nil {
			s.updateMaterial(e, m)
		}
	})
}

func (s *Storage) updateMaterial(e ecs.Entity, m *Material) {
	sh := ecs.Get[Shader](s.reg, m.Shader)
	if sh != nil && s.dirtyShaders.Contains(m.Shader) {
		s.dirtyShaders.Unmark(m.Shader)
		s.updateShader(m.Shader, sh)
	}

	castShadow, animated := true, false
	if sh == nil || !sh.Valid {
		s.resizeUBO(e, m, 0)
		m.Textures, m.TextureHints, m.TextureKinds = nil, nil, nil
	} else {
		p := sh.Parsed
		if p.Mode == shader.ModeSpatial {
			castShadow = sh.Spatial.CanCastShadow()
		}
		animated = sh.usesTime()
		if s.resizeUBO(e, m, p.UBOSize) {
			s.packUniforms(m, p)
			if m.ubo.Valid() {
				s.dev.BindBuffer(glapi.UNIFORM_BUFFER, m.ubo.ID())
				s.dev.BufferSubData(glapi.UNIFORM_BUFFER, 0, m.UBOData)
				s.dev.BindBuffer(glapi.UNIFORM_BUFFER, 0)
			}
		}
		s.resolveTextures(m, sh)
	}

	if castShadow != m.CanCastShadow || animated != m.IsAnimated {
		m.CanCastShadow, m.IsAnimated = castShadow, animated
		for g := range m.geometryOwners {
			if sf := ecs.Get[Surface](s.reg, g); sf != nil {
				if mesh := ecs.Get[Mesh](s.reg, sf.Mesh); mesh != nil {
					s.markInstances(mesh.instances)
				}
			} else if im := ecs.Get[Immediate](s.reg, g); im != nil {
				s.markInstances(im.instances)
			}
		}
		for i := range m.instanceOwners {
			s.dirtyInstances.Mark(i)
		}
	}
}

// resizeUBO reallocates the buffer when the declared size changed. It
// reports false only when a needed buffer could not be created.
func (s *Storage) resizeUBO(e ecs.Entity, m *Material, size int) bool {
	if size == m.UBOSize && (size == 0 || m.ubo.Valid()) {
		return true
	}
	s.info.VertexMem -= m.UBOSize
	m.ubo.Release()
	m.UBOSize, m.UBOData = 0, nil
	if size == 0 {
		return true
	}
	buf, err := glapi.NewBuffers(s.dev, 1)
	if err != nil {
		core.LogError("material %v: uniform buffer of %d bytes: %v", e, size, err)
		return false
	}
	m.ubo = buf
	m.UBOSize = size
	m.UBOData = make([]byte, size)
	s.dev.BindBuffer(glapi.UNIFORM_BUFFER, buf.ID())
	s.dev.BufferData(glapi.UNIFORM_BUFFER, size, nil, glapi.DYNAMIC_DRAW)
	s.dev.BindBuffer(glapi.UNIFORM_BUFFER, 0)
	s.info.VertexMem += size
	return true
}

// packUniforms fills UBOData with every non-sampler uniform in std140
// layout: the material value, else the declared default, else zero.
func (s *Storage) packUniforms(m *Material, p *shader.Parsed) {
	clear(m.UBOData)
	for _, u := range p.Uniforms {
		if u.IsTexture() || u.Size == 0 {
			continue
		}
		vals, ok := paramFloats(m.Params[u.Name])
		if !ok {
			vals = u.Default
		}
		if vals == nil {
			if u.IsColor() && u.Type.Components == 4 {
				vals = []float32{0, 0, 0, 1}
			} else {
				continue
			}
		} else if u.IsColor() && p.Mode == shader.ModeSpatial {
			vals = linearize(vals)
		}
		putStd140(m.UBOData[u.Offset:u.Offset+u.Size], u.Type, vals)
	}
}

func linearize(v []float32) []float32 {
	if len(v) < 3 {
		return v
	}
	out := append([]float32(nil), v...)
	c := core.Color{R: v[0], G: v[1], B: v[2], A: 1}.ToLinear()
	out[0], out[1], out[2] = c.R, c.G, c.B
	return out
}

// paramFloats flattens a parameter value. Matrices come out in GLSL
// column order.
func paramFloats(v any) ([]float32, bool) {
	switch x := v.(type) {
	case float32:
		return []float32{x}, true
	case float64:
		return []float32{float32(x)}, true
	case int:
		return []float32{float32(x)}, true
	case int32:
		return []float32{float32(x)}, true
	case uint32:
		return []float32{float32(x)}, true
	case bool:
		if x {
			return []float32{1}, true
		}
		return []float32{0}, true
	case []float32:
		return x, true
	case gmath.Vec2:
		return []float32{x.X, x.Y}, true
	case gmath.Vec3:
		return []float32{x.X, x.Y, x.Z}, true
	case gmath.Vec4:
		return []float32{x.X, x.Y, x.Z, x.W}, true
	case core.Color:
		return []float32{x.R, x.G, x.B, x.A}, true
	case gmath.Mat4:
		f := x.Flat()
		return f[:], true
	}
	return nil, false
}

// putStd140 writes vals as type dt into dst, which is exactly dt.Size
// bytes. mat3 columns are padded to vec4.
func putStd140(dst []byte, dt shader.DataType, vals []float32) {
	word := func(at int, f float32) {
		if at*4+4 > len(dst) {
			return
		}
		switch {
		case dt.Bool:
			var b uint32
			if f != 0 {
				b = 1
			}
			binary.LittleEndian.PutUint32(dst[at*4:], b)
		case dt.Integer:
			binary.LittleEndian.PutUint32(dst[at*4:], uint32(int32(f)))
		default:
			binary.LittleEndian.PutUint32(dst[at*4:], math.Float32bits(f))
		}
	}
	switch dt.Name {
	case "mat3":
		// A Mat4 value arrives as 16 floats; keep its upper 3x3.
		step := 3
		if len(vals) == 16 {
			step = 4
		}
		for c := 0; c < 3; c++ {
			for r := 0; r < 3; r++ {
				if i := c*step + r; i < len(vals) {
					word(c*4+r, vals[i])
				}
			}
		}
	default:
		for i := 0; i < dt.Components && i < len(vals); i++ {
			word(i, vals[i])
		}
	}
}

// resolveTextures fills the texture list in sampler order: material value,
// then shader default, then the hint fallback.
func (s *Storage) resolveTextures(m *Material, sh *Shader) {
	p := sh.Parsed
	m.Textures = m.Textures[:0]
	m.TextureHints = m.TextureHints[:0]
	m.TextureKinds = m.TextureKinds[:0]
	for _, u := range p.Uniforms {
		if !u.IsTexture() {
			continue
		}
		tex := ecs.Null
		if t, ok := m.Params[u.Name].(ecs.Entity); ok && ecs.Has[Texture](s.reg, t) {
			tex = t
		} else if t, ok := sh.DefaultTextures[u.Name]; ok && ecs.Has[Texture](s.reg, t) {
			tex = t
		} else {
			tex = s.Defaults.ForHint(u.Hint, u.Type.Texture)
		}
		m.Textures = append(m.Textures, tex)
		m.TextureHints = append(m.TextureHints, u.Hint)
		m.TextureKinds = append(m.TextureKinds, u.Type.Texture)
	}
}

// BindMaterial selects the material's custom code on its mode program,
// binds the uniform buffer at the program's material binding and binds the
// textures from unit 0. It returns the program, or nil when the material
// cannot be drawn.
func (s *Storage) BindMaterial(e ecs.Entity) (*shader.Shader, *Material) {
	_, m, sh := s.ResolveMaterial(e)
	if m == nil || sh == nil || !sh.Valid {
		return nil, nil
	}
	prog, code := sh.Program()
	prog.SetCustomShader(code)
	if m.ubo.Valid() {
		s.dev.BindBufferBase(glapi.UNIFORM_BUFFER, prog.Source().MaterialBinding, m.ubo.ID())
	}
	for i, t := range m.Textures {
		s.BindTexture(i, t, m.TextureHints[i], m.TextureKinds[i])
	}
	return prog, m
}

func (s *Storage) createDefaultMaterial() error {
	sh := s.ShaderCreate()
	s.ShaderSetCode(sh, DefaultShaderCode)
	s.DefaultShader = sh
	s.DefaultMaterial = s.MaterialCreate()
	s.MaterialSetShader(s.DefaultMaterial, sh)
	if s.modes[shader.ModeSpatial] == nil {
		return nil
	}
	s.UpdateDirtyShaders()
	if shc := ecs.Get[Shader](s.reg, sh); shc == nil || !shc.Valid {
		return fmt.Errorf("default material: shader %v did not parse: %w", sh, ErrInvalidArgument)
	}
	s.UpdateDirtyMaterials()
	return nil
}
