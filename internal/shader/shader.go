package shader

import (
	"errors"
	"fmt"

	"gles3render/core"
	"gles3render/internal/glapi"
)

var (
	// ErrCompile is returned when a variant failed to compile or link and
	// no fallback could be bound.
	ErrCompile = errors.New("shader: compile failed")
	// ErrLink is logged for link failures.
	ErrLink = errors.New("shader: link failed")
)

// State of a variant.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	}
	return "failed"
}

// VariantKey identifies one compiled program of a Shader.
type VariantKey struct {
	Code    uint32
	Version uint32
	Conds   Conditionals
}

// Variant is one linked (or linking) program.
type Variant struct {
	Key   VariantKey
	State State

	program    glapi.Program
	vertex     string
	fragment   string
	hash       uint64
	fromCache  bool
	locs       []int32
	customLocs map[string]int32

	// Objects kept alive while the driver links in parallel.
	vs, fs, pendingProgram uint32
}

// Program returns the GL program name, 0 unless ready.
func (v *Variant) Program() uint32 {
	if v.State != StateReady {
		return 0
	}
	return v.program.ID()
}

// FromCache reports whether the program was loaded from the binary cache.
func (v *Variant) FromCache() bool {
	return v.fromCache
}

type customEntry struct {
	code    CustomCode
	version uint32
}

// Shader instantiates one Source under conditionals and custom code. It is
// used only on the render thread.
type Shader struct {
	mgr *Manager
	src *Source

	conds    Conditionals
	custom   uint32
	codes    map[uint32]*customEntry
	nextCode uint32
	variants map[VariantKey]*Variant
	active   *Variant

	uniformCache map[int32][4]float32
}

// Source returns the template the shader was built from.
func (s *Shader) Source() *Source {
	return s.src
}

// SetConditional toggles one conditional for the next Bind.
func (s *Shader) SetConditional(i int, on bool) {
	s.conds = s.conds.With(i, on)
}

// SetConditionals replaces all conditionals.
func (s *Shader) SetConditionals(c Conditionals) {
	s.conds = c
}

// Conditionals returns the conditionals of the next Bind.
func (s *Shader) Conditionals() Conditionals {
	return s.conds
}

// AddCustomCode registers an empty custom code slot and returns its id.
func (s *Shader) AddCustomCode() uint32 {
	s.nextCode++
	s.codes[s.nextCode] = &customEntry{}
	return s.nextCode
}

// SetCustomCode replaces a slot's code. Variants built from the previous
// code are released; the next Bind compiles the new code.
func (s *Shader) SetCustomCode(id uint32, code CustomCode) {
	e := s.codes[id]
	if e == nil {
		core.LogOnce(fmt.Sprintf("shader-code-%s-%d", s.src.Name, id), "shader %s: unknown custom code %d", s.src.Name, id)
		return
	}
	s.dropVariants(id)
	e.code = code
	e.version++
}

// RemoveCustomCode frees a slot and its variants.
func (s *Shader) RemoveCustomCode(id uint32) {
	if _, ok := s.codes[id]; !ok {
		return
	}
	s.dropVariants(id)
	delete(s.codes, id)
	if s.custom == id {
		s.custom = 0
	}
}

// CodeVersion returns the version of a custom code slot.
func (s *Shader) CodeVersion(id uint32) uint32 {
	if e := s.codes[id]; e != nil {
		return e.version
	}
	return 0
}

func (s *Shader) dropVariants(code uint32) {
	for k, v := range s.variants {
		if k.Code != code {
			continue
		}
		if s.active == v {
			s.active = nil
		}
		s.mgr.forget(v)
		v.program.Release()
		delete(s.variants, k)
	}
}

// SetCustomShader selects the custom code used by the next Bind; 0 selects
// the bare template.
func (s *Shader) SetCustomShader(id uint32) {
	if id != 0 {
		if _, ok := s.codes[id]; !ok {
			id = 0
		}
	}
	s.custom = id
}

// CustomShader returns the selected custom code id.
func (s *Shader) CustomShader() uint32 {
	return s.custom
}

func (s *Shader) key() VariantKey {
	k := VariantKey{Code: s.custom, Conds: s.conds}
	if e := s.codes[s.custom]; e != nil {
		k.Version = e.version
	}
	return k
}

// Variant returns the variant of the current selection, or nil if it was
// never requested.
func (s *Shader) Variant() *Variant {
	return s.variants[s.key()]
}

// Warm requests the variant of (code, conds) without binding it and reports
// its state. Materials use it to learn whether their shader compiles.
func (s *Shader) Warm(code uint32, conds Conditionals) State {
	prevCode, prevConds := s.custom, s.conds
	s.custom, s.conds = code, conds
	v := s.request(s.key())
	s.custom, s.conds = prevCode, prevConds
	return v.State
}

func (s *Shader) request(k VariantKey) *Variant {
	if v := s.variants[k]; v != nil {
		return v
	}
	v := &Variant{Key: k}
	s.variants[k] = v
	var cc *CustomCode
	if e := s.codes[k.Code]; e != nil && k.Code != 0 {
		cc = &e.code
	}
	v.vertex, v.fragment = s.build(k.Conds, cc, true), s.build(k.Conds, cc, false)
	s.mgr.compile(s, v)
	return v
}

func (s *Shader) build(conds Conditionals, cc *CustomCode, vertex bool) string {
	tmpl := s.src.Fragment
	stage := "#define FRAGMENT_SHADER\n"
	if vertex {
		tmpl = s.src.Vertex
		stage = "#define VERTEX_SHADER\n"
	}
	head := "#version 330 core\n" + stage + conds.Defines(s.src.Conditionals)
	if cc != nil {
		head += cc.Defines
	}
	return head + expand(tmpl, cc, vertex)
}

// Bind makes the program for the current selection current. When that
// variant is still compiling or failed, the generic depth-only variant is
// bound instead and ready is false; the caller must mask color writes. An
// error means nothing could be bound and the draw must be skipped.
func (s *Shader) Bind() (ready bool, err error) {
	v := s.request(s.key())
	if v.State != StateReady {
		if s.src.FallbackBit < 0 {
			return false, fmt.Errorf("%s %v: %w", s.src.Name, v.State, ErrCompile)
		}
		fk := VariantKey{Conds: (s.conds & s.src.FallbackKeep).With(s.src.FallbackBit, true)}
		v = s.request(fk)
		if v.State != StateReady {
			return false, fmt.Errorf("%s fallback: %w", s.src.Name, ErrCompile)
		}
	}
	s.use(v)
	return v.Key == s.key(), nil
}

func (s *Shader) use(v *Variant) {
	if s.active != v {
		s.active = v
		clear(s.uniformCache)
	}
	if s.mgr.current != v.program.ID() {
		s.mgr.dev.UseProgram(v.program.ID())
		s.mgr.current = v.program.ID()
	}
}

// Unbind clears the current program.
func (s *Shader) Unbind() {
	s.active = nil
	s.mgr.current = 0
	s.mgr.dev.UseProgram(0)
}

// Active returns the bound variant, or nil.
func (s *Shader) Active() *Variant {
	return s.active
}

// Loc returns the location of the i-th Source uniform in the bound variant.
func (s *Shader) Loc(i int) int32 {
	if s.active == nil || i >= len(s.active.locs) {
		return -1
	}
	return s.active.locs[i]
}

// CustomLoc returns the location of a custom uniform by name.
func (s *Shader) CustomLoc(name string) int32 {
	if s.active == nil {
		return -1
	}
	if loc, ok := s.active.customLocs[name]; ok {
		return loc
	}
	loc := s.mgr.dev.GetUniformLocation(s.active.program.ID(), name)
	s.active.customLocs[name] = loc
	return loc
}

func (s *Shader) cached(loc int32, v [4]float32) bool {
	if loc < 0 {
		return true
	}
	if old, ok := s.uniformCache[loc]; ok && old == v {
		return true
	}
	s.uniformCache[loc] = v
	return false
}

// Uniform1i sets an int or sampler uniform of the bound variant.
func (s *Shader) Uniform1i(i int, v int32) {
	loc := s.Loc(i)
	if !s.cached(loc, [4]float32{float32(v)}) {
		s.mgr.dev.Uniform1i(loc, v)
	}
}

// Uniform1f sets a float uniform of the bound variant.
func (s *Shader) Uniform1f(i int, v float32) {
	loc := s.Loc(i)
	if !s.cached(loc, [4]float32{v}) {
		s.mgr.dev.Uniform1f(loc, v)
	}
}

// Uniform2f sets a vec2 uniform of the bound variant.
func (s *Shader) Uniform2f(i int, x, y float32) {
	loc := s.Loc(i)
	if !s.cached(loc, [4]float32{x, y}) {
		s.mgr.dev.Uniform2f(loc, x, y)
	}
}

// Uniform3f sets a vec3 uniform of the bound variant.
func (s *Shader) Uniform3f(i int, x, y, z float32) {
	loc := s.Loc(i)
	if !s.cached(loc, [4]float32{x, y, z}) {
		s.mgr.dev.Uniform3f(loc, x, y, z)
	}
}

// Uniform4f sets a vec4 uniform of the bound variant.
func (s *Shader) Uniform4f(i int, x, y, z, w float32) {
	loc := s.Loc(i)
	if !s.cached(loc, [4]float32{x, y, z, w}) {
		s.mgr.dev.Uniform4f(loc, x, y, z, w)
	}
}

// UniformMat4 sets a mat4 uniform; matrices bypass the cache.
func (s *Shader) UniformMat4(i int, m [16]float32) {
	if loc := s.Loc(i); loc >= 0 {
		s.mgr.dev.UniformMatrix4fv(loc, m[:])
	}
}

// Uniform2fv sets a vec2 array uniform.
func (s *Shader) Uniform2fv(i int, v []float32) {
	if loc := s.Loc(i); loc >= 0 {
		s.mgr.dev.Uniform2fv(loc, v)
	}
}

// Uniform4fv sets a vec4 array uniform.
func (s *Shader) Uniform4fv(i int, v []float32) {
	if loc := s.Loc(i); loc >= 0 {
		s.mgr.dev.Uniform4fv(loc, v)
	}
}

// Free releases every variant and custom code slot.
func (s *Shader) Free() {
	for k, v := range s.variants {
		s.mgr.forget(v)
		v.program.Release()
		delete(s.variants, k)
	}
	s.active = nil
	s.codes = map[uint32]*customEntry{}
}

// VariantCount returns the number of variants requested so far.
func (s *Shader) VariantCount() int {
	return len(s.variants)
}
