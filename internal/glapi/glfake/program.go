package glfake

import (
	"bytes"
	"strings"

	"gles3render/internal/glapi"
)

// BinaryFormat is the only program binary format the fake reports.
const BinaryFormat = 0xFA4E

var binaryMagic = []byte("GLFAKE1\x00")

// Shader is a recorded shader object.
type Shader struct {
	Kind     uint32
	Source   string
	Compiled bool
}

// Program is a recorded program object.
type Program struct {
	Attached    []uint32
	Vertex      string
	Fragment    string
	Varyings    []string
	Linked      bool
	FromBinary  bool
	Retrievable bool
	polls       int
	locations   map[string]int32
	Values      map[int32][]float32
	Blocks      map[string]uint32
	Bindings    map[uint32]uint32
}

func (d *Device) CreateShader(kind uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.genLocked("shader", 1)[0]
	if id != 0 {
		d.shaders[id] = &Shader{Kind: kind}
	}
	return id
}

func (d *Device) ShaderSource(id uint32, src string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.shaders[id]; s != nil {
		s.Source = src
	}
}

func (d *Device) CompileShader(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.shaders[id]
	if s == nil {
		return
	}
	s.Compiled = !strings.Contains(s.Source, "#error") && (d.FailCompile == nil || !d.FailCompile(s.Source))
}

func (d *Device) GetShaderiv(id, pname uint32) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.shaders[id]
	if s == nil {
		return 0
	}
	switch pname {
	case glapi.COMPILE_STATUS:
		if s.Compiled {
			return glapi.TRUE
		}
		return glapi.FALSE
	case glapi.COMPLETION_STATUS_KHR:
		return glapi.TRUE
	case glapi.INFO_LOG_LENGTH:
		return int32(len(d.shaderLogLocked(s)))
	}
	return 0
}

func (d *Device) shaderLogLocked(s *Shader) string {
	if s.Compiled {
		return ""
	}
	return "0:1(1): error: glfake rejected source"
}

func (d *Device) ShaderInfoLog(id uint32) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s := d.shaders[id]; s != nil {
		return d.shaderLogLocked(s)
	}
	return ""
}

func (d *Device) DeleteShader(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("shader", []uint32{id})
	delete(d.shaders, id)
}

func (d *Device) CreateProgram() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.genLocked("program", 1)[0]
	if id != 0 {
		d.programs[id] = &Program{
			locations: map[string]int32{},
			Values:    map[int32][]float32{},
			Blocks:    map[string]uint32{},
			Bindings:  map[uint32]uint32{},
		}
	}
	return id
}

func (d *Device) AttachShader(program, shader uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.programs[program]; p != nil {
		p.Attached = append(p.Attached, shader)
	}
}

func (d *Device) DetachShader(program, shader uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil {
		return
	}
	for i, s := range p.Attached {
		if s == shader {
			p.Attached = append(p.Attached[:i], p.Attached[i+1:]...)
			break
		}
	}
}

func (d *Device) BindAttribLocation(program, index uint32, name string) {}

func (d *Device) TransformFeedbackVaryings(program uint32, names []string, mode uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.programs[program]; p != nil {
		p.Varyings = append([]string(nil), names...)
	}
}

func (d *Device) LinkProgram(program uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil {
		return
	}
	ok := len(p.Attached) > 0
	for _, sid := range p.Attached {
		s := d.shaders[sid]
		if s == nil || !s.Compiled {
			ok = false
			continue
		}
		if s.Kind == glapi.VERTEX_SHADER {
			p.Vertex = s.Source
		} else {
			p.Fragment = s.Source
		}
	}
	if ok && d.FailLink != nil && d.FailLink(p.Vertex, p.Fragment) {
		ok = false
	}
	d.finishLinkLocked(p, ok)
}

func (d *Device) finishLinkLocked(p *Program, ok bool) {
	p.Linked = ok
	p.polls = 0
	p.locations = map[string]int32{}
	p.Blocks = map[string]uint32{}
}

func (d *Device) GetProgramiv(program, pname uint32) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil {
		return 0
	}
	switch pname {
	case glapi.LINK_STATUS:
		if p.Linked {
			return glapi.TRUE
		}
		return glapi.FALSE
	case glapi.COMPLETION_STATUS_KHR:
		p.polls++
		if p.polls > d.CompletionPolls {
			return glapi.TRUE
		}
		return glapi.FALSE
	case glapi.INFO_LOG_LENGTH:
		if p.Linked {
			return 0
		}
		return int32(len("glfake: link failed"))
	case glapi.PROGRAM_BINARY_LENGTH:
		return int32(len(d.binaryLocked(p)))
	}
	return 0
}

func (d *Device) ProgramInfoLog(program uint32) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.programs[program]; p != nil && !p.Linked {
		return "glfake: link failed"
	}
	return ""
}

func (d *Device) DeleteProgram(program uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("program", []uint32{program})
	delete(d.programs, program)
	if d.program == program {
		d.program = 0
	}
}

func (d *Device) UseProgram(program uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.program = program
}

func (d *Device) ProgramParameteri(program, pname uint32, v int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.programs[program]; p != nil && pname == glapi.PROGRAM_BINARY_RETRIEVABLE_HINT {
		p.Retrievable = v != 0
	}
}

func (d *Device) binaryLocked(p *Program) []byte {
	if !p.Linked {
		return nil
	}
	var b bytes.Buffer
	b.Write(binaryMagic)
	b.WriteString(p.Vertex)
	b.WriteByte(0)
	b.WriteString(p.Fragment)
	return b.Bytes()
}

func (d *Device) GetProgramBinary(program uint32) (uint32, []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil || !p.Linked {
		return 0, nil
	}
	return BinaryFormat, d.binaryLocked(p)
}

func (d *Device) ProgramBinary(program, format uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil {
		return
	}
	ok := !d.RejectBinary && format == BinaryFormat && bytes.HasPrefix(data, binaryMagic)
	if ok {
		parts := bytes.SplitN(data[len(binaryMagic):], []byte{0}, 2)
		if len(parts) != 2 {
			ok = false
		} else {
			p.Vertex, p.Fragment = string(parts[0]), string(parts[1])
		}
	}
	p.FromBinary = ok
	d.finishLinkLocked(p, ok)
}

func (d *Device) GetUniformLocation(program uint32, name string) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil || !p.Linked {
		return -1
	}
	base := name
	if i := strings.IndexByte(base, '['); i >= 0 {
		base = base[:i]
	}
	if !strings.Contains(p.Vertex, base) && !strings.Contains(p.Fragment, base) {
		return -1
	}
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc := int32(len(p.locations))
	p.locations[name] = loc
	return loc
}

func (d *Device) GetUniformBlockIndex(program uint32, name string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil || !p.Linked || (!strings.Contains(p.Vertex, name) && !strings.Contains(p.Fragment, name)) {
		return glapi.INVALID_INDEX
	}
	if idx, ok := p.Blocks[name]; ok {
		return idx
	}
	idx := uint32(len(p.Blocks))
	p.Blocks[name] = idx
	return idx
}

func (d *Device) UniformBlockBinding(program, blockIndex, binding uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.programs[program]; p != nil {
		p.Bindings[blockIndex] = binding
	}
}

func (d *Device) setUniform(loc int32, v ...float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p := d.programs[d.program]; p != nil && loc >= 0 {
		p.Values[loc] = v
	}
}

func (d *Device) Uniform1i(loc, v int32)                  { d.setUniform(loc, float32(v)) }
func (d *Device) Uniform1f(loc int32, v float32)          { d.setUniform(loc, v) }
func (d *Device) Uniform2f(loc int32, x, y float32)       { d.setUniform(loc, x, y) }
func (d *Device) Uniform3f(loc int32, x, y, z float32)    { d.setUniform(loc, x, y, z) }
func (d *Device) Uniform4f(loc int32, x, y, z, w float32) { d.setUniform(loc, x, y, z, w) }
func (d *Device) Uniform1fv(loc int32, v []float32)       { d.setUniform(loc, v...) }
func (d *Device) Uniform2fv(loc int32, v []float32)       { d.setUniform(loc, v...) }
func (d *Device) Uniform4fv(loc int32, v []float32)       { d.setUniform(loc, v...) }
func (d *Device) UniformMatrix4fv(loc int32, v []float32) { d.setUniform(loc, v...) }

// ProgramState returns the recorded program, or nil.
func (d *Device) ProgramState(id uint32) *Program {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.programs[id]
}

// Uniform returns the last value set on a named uniform of a program.
func (d *Device) Uniform(program uint32, name string) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.programs[program]
	if p == nil {
		return nil
	}
	loc, ok := p.locations[name]
	if !ok {
		return nil
	}
	return p.Values[loc]
}

// HasDefine reports whether the program's fragment or vertex source
// defines name, which is how conditionals reach the generated code.
func (p *Program) HasDefine(name string) bool {
	def := "#define " + name + "\n"
	return strings.Contains(p.Vertex, def) || strings.Contains(p.Fragment, def)
}
