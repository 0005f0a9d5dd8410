// Package glfake is an in-memory glapi.Device that records what the
// renderer asks of the GPU. It keeps buffer and texture contents, tracks
// live names per kind, panics on double deletes, and can be told to fail
// compiles, links, binary loads and framebuffer checks.
package glfake

import (
	"fmt"
	"sync"

	"gles3render/internal/glapi"
)

// Attrib is one vertex attribute as configured on a vertex array.
type Attrib struct {
	Enabled    bool
	Buffer     uint32
	Size       int32
	Type       uint32
	Normalized bool
	Integer    bool
	Stride     int32
	Offset     int
	Divisor    uint32
}

// VertexArray is the recorded state of one vertex array object.
type VertexArray struct {
	Attribs       map[uint32]*Attrib
	ElementBuffer uint32
}

// Framebuffer records attachments by attachment point.
type Framebuffer struct {
	Attachments map[uint32]Attachment
	DrawBuffers []uint32
}

// Attachment is a texture or renderbuffer bound to a framebuffer.
type Attachment struct {
	Texture      uint32
	Renderbuffer uint32
	Target       uint32
	Level        int32
	Layer        int32
}

// Draw is one recorded draw call with the state that was current.
type Draw struct {
	Mode        uint32
	First       int32
	Count       int32
	Indexed     bool
	IndexType   uint32
	Offset      int
	Instances   int32
	Program     uint32
	VertexArray uint32
	Framebuffer uint32
	Viewport    [4]int32
	ColorMask   [4]bool
	DepthMask   bool
	DepthTest   bool
	DepthFunc   uint32
	Blend       bool
	BlendSrc    uint32
	BlendDst    uint32
	Cull        bool
	CullFace    uint32
	Textures    map[uint32]uint32
	Feedback    bool
}

// Clear is one recorded glClear.
type Clear struct {
	Mask        uint32
	Color       [4]float32
	Depth       float64
	Framebuffer uint32
	ColorMask   [4]bool
}

// Device implements glapi.Device. All methods are safe for concurrent use
// so an async compile worker can share it with the render goroutine.
type Device struct {
	mu sync.Mutex

	// Failure injection.
	FailCompile      func(src string) bool
	FailLink         func(vertex, fragment string) bool
	RejectBinary     bool
	IncompleteFBO    func(fbo uint32) bool
	ZeroNames        map[string]bool
	CompletionPolls  int
	ParallelCompile  bool
	Extensions       []string
	MaxAnisotropy    float32
	PendingError     uint32
	Vendor, Renderer string

	nextName uint32
	live     map[string]map[uint32]bool

	buffers   map[uint32][]byte
	bound     map[uint32]uint32
	uboBase   map[uint32]uint32
	textures  map[uint32]*Texture
	unit      uint32
	units     map[uint32]map[uint32]uint32
	vaos      map[uint32]*VertexArray
	vao       uint32
	fbos      map[uint32]*Framebuffer
	drawFBO   uint32
	readFBO   uint32
	rbs       map[uint32]*Renderbuffer
	rb        uint32
	shaders   map[uint32]*Shader
	programs  map[uint32]*Program
	program   uint32
	caps      map[uint32]bool
	depthMask bool
	colorMask [4]bool
	depthFunc uint32
	blendSrc  uint32
	blendDst  uint32
	cullFace  uint32
	viewport  [4]int32
	clearCol  [4]float32
	clearDep  float64
	feedback  bool

	draws  []Draw
	clears []Clear
}

// Renderbuffer records renderbuffer storage.
type Renderbuffer struct {
	InternalFormat uint32
	Samples        int32
	Width, Height  int32
}

// New returns a device with a GL 3.3 core-like default state.
func New() *Device {
	return &Device{
		Vendor:        "glfake",
		Renderer:      "recorder",
		MaxAnisotropy: 16,
		live:          map[string]map[uint32]bool{},
		buffers:       map[uint32][]byte{},
		bound:         map[uint32]uint32{},
		uboBase:       map[uint32]uint32{},
		textures:      map[uint32]*Texture{},
		units:         map[uint32]map[uint32]uint32{},
		vaos:          map[uint32]*VertexArray{},
		fbos:          map[uint32]*Framebuffer{},
		rbs:           map[uint32]*Renderbuffer{},
		shaders:       map[uint32]*Shader{},
		programs:      map[uint32]*Program{},
		caps:          map[uint32]bool{},
		depthMask:     true,
		colorMask:     [4]bool{true, true, true, true},
		depthFunc:     glapi.LESS,
		blendSrc:      glapi.ONE,
		blendDst:      glapi.ZERO,
		cullFace:      glapi.BACK,
		clearDep:      1,
	}
}

var _ glapi.Device = (*Device)(nil)

// ── Names ────────────────────────────────────────────────────────────────────

func (d *Device) genLocked(kind string, n int) []uint32 {
	ids := make([]uint32, n)
	if d.ZeroNames[kind] {
		return ids
	}
	set := d.live[kind]
	if set == nil {
		set = map[uint32]bool{}
		d.live[kind] = set
	}
	for i := range ids {
		d.nextName++
		ids[i] = d.nextName
		set[d.nextName] = true
	}
	return ids
}

func (d *Device) delLocked(kind string, ids []uint32) {
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if !d.live[kind][id] {
			panic(fmt.Sprintf("glfake: delete of dead %s %d", kind, id))
		}
		delete(d.live[kind], id)
	}
}

// Live returns how many names of kind ("buffer", "texture", "vertex array",
// "framebuffer", "renderbuffer", "shader", "program") are alive.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live[kind])
}

// IsLive reports whether id of kind is alive.
func (d *Device) IsLive(kind string, id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind][id]
}

// LiveTotal returns the number of live names over all kinds.
func (d *Device) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, set := range d.live {
		n += len(set)
	}
	return n
}

func (d *Device) GenBuffers(n int) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.genLocked("buffer", n)
	for _, id := range ids {
		if id != 0 {
			d.buffers[id] = nil
		}
	}
	return ids
}

func (d *Device) DeleteBuffers(ids []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("buffer", ids)
	for _, id := range ids {
		delete(d.buffers, id)
	}
}

func (d *Device) GenTextures(n int) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.genLocked("texture", n)
	for _, id := range ids {
		if id != 0 {
			d.textures[id] = newTexture()
		}
	}
	return ids
}

func (d *Device) DeleteTextures(ids []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("texture", ids)
	for _, id := range ids {
		delete(d.textures, id)
	}
}

func (d *Device) GenVertexArrays(n int) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.genLocked("vertex array", n)
	for _, id := range ids {
		if id != 0 {
			d.vaos[id] = &VertexArray{Attribs: map[uint32]*Attrib{}}
		}
	}
	return ids
}

func (d *Device) DeleteVertexArrays(ids []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("vertex array", ids)
	for _, id := range ids {
		delete(d.vaos, id)
	}
}

func (d *Device) GenFramebuffers(n int) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.genLocked("framebuffer", n)
	for _, id := range ids {
		if id != 0 {
			d.fbos[id] = &Framebuffer{Attachments: map[uint32]Attachment{}}
		}
	}
	return ids
}

func (d *Device) DeleteFramebuffers(ids []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("framebuffer", ids)
	for _, id := range ids {
		delete(d.fbos, id)
	}
}

func (d *Device) GenRenderbuffers(n int) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.genLocked("renderbuffer", n)
	for _, id := range ids {
		if id != 0 {
			d.rbs[id] = &Renderbuffer{}
		}
	}
	return ids
}

func (d *Device) DeleteRenderbuffers(ids []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delLocked("renderbuffer", ids)
	for _, id := range ids {
		delete(d.rbs, id)
	}
}

// ── Buffers ──────────────────────────────────────────────────────────────────

func (d *Device) BindBuffer(target, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound[target] = id
	if target == glapi.ELEMENT_ARRAY_BUFFER && d.vao != 0 {
		d.vaos[d.vao].ElementBuffer = id
	}
}

func (d *Device) BindBufferBase(target, index, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound[target] = id
	if target == glapi.UNIFORM_BUFFER {
		d.uboBase[index] = id
	}
}

func (d *Device) boundBufferLocked(target uint32) uint32 {
	if target == glapi.ELEMENT_ARRAY_BUFFER && d.vao != 0 {
		return d.vaos[d.vao].ElementBuffer
	}
	return d.bound[target]
}

func (d *Device) BufferData(target uint32, size int, data []byte, usage uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.boundBufferLocked(target)
	if id == 0 {
		d.PendingError = glapi.INVALID_OPERATION
		return
	}
	buf := make([]byte, size)
	copy(buf, data)
	d.buffers[id] = buf
}

func (d *Device) BufferSubData(target uint32, offset int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.boundBufferLocked(target)
	buf := d.buffers[id]
	if id == 0 || offset < 0 || offset+len(data) > len(buf) {
		d.PendingError = glapi.INVALID_VALUE
		return
	}
	copy(buf[offset:], data)
}

func (d *Device) GetBufferSubData(target uint32, offset int, out []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.buffers[d.boundBufferLocked(target)]
	if offset < 0 || offset+len(out) > len(buf) {
		d.PendingError = glapi.INVALID_VALUE
		return
	}
	copy(out, buf[offset:])
}

// BufferContents returns a copy of a buffer's storage.
func (d *Device) BufferContents(id uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buffers[id]...)
}

// BufferSize returns the allocated size of a buffer.
func (d *Device) BufferSize(id uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers[id])
}

// UniformBufferAt returns the buffer bound to a uniform binding point.
func (d *Device) UniformBufferAt(index uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uboBase[index]
}

// ── Vertex arrays ────────────────────────────────────────────────────────────

func (d *Device) BindVertexArray(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vao = id
}

func (d *Device) attribLocked(index uint32) *Attrib {
	v := d.vaos[d.vao]
	if v == nil {
		return &Attrib{}
	}
	a := v.Attribs[index]
	if a == nil {
		a = &Attrib{}
		v.Attribs[index] = a
	}
	return a
}

func (d *Device) EnableVertexAttribArray(index uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attribLocked(index).Enabled = true
}

func (d *Device) DisableVertexAttribArray(index uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attribLocked(index).Enabled = false
}

func (d *Device) VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.attribLocked(index)
	a.Buffer, a.Size, a.Type, a.Normalized, a.Integer = d.bound[glapi.ARRAY_BUFFER], size, xtype, normalized, false
	a.Stride, a.Offset = stride, offset
}

func (d *Device) VertexAttribIPointer(index uint32, size int32, xtype uint32, stride int32, offset int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.attribLocked(index)
	a.Buffer, a.Size, a.Type, a.Normalized, a.Integer = d.bound[glapi.ARRAY_BUFFER], size, xtype, false, true
	a.Stride, a.Offset = stride, offset
}

func (d *Device) VertexAttribDivisor(index, divisor uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attribLocked(index).Divisor = divisor
}

func (d *Device) VertexAttrib4f(index uint32, x, y, z, w float32) {}

// VertexArrayState returns a copy of a vertex array's recorded layout.
func (d *Device) VertexArrayState(id uint32) VertexArray {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.vaos[id]
	if v == nil {
		return VertexArray{}
	}
	out := VertexArray{Attribs: map[uint32]*Attrib{}, ElementBuffer: v.ElementBuffer}
	for k, a := range v.Attribs {
		c := *a
		out.Attribs[k] = &c
	}
	return out
}

// ── Framebuffers ─────────────────────────────────────────────────────────────

func (d *Device) BindFramebuffer(target, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch target {
	case glapi.DRAW_FRAMEBUFFER:
		d.drawFBO = id
	case glapi.READ_FRAMEBUFFER:
		d.readFBO = id
	default:
		d.drawFBO, d.readFBO = id, id
	}
}

func (d *Device) fboLocked(target uint32) *Framebuffer {
	if target == glapi.READ_FRAMEBUFFER {
		return d.fbos[d.readFBO]
	}
	return d.fbos[d.drawFBO]
}

func (d *Device) FramebufferTexture2D(target, attachment, texTarget, tex uint32, level int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f := d.fboLocked(target); f != nil {
		f.Attachments[attachment] = Attachment{Texture: tex, Target: texTarget, Level: level}
	}
}

func (d *Device) FramebufferTextureLayer(target, attachment, tex uint32, level, layer int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f := d.fboLocked(target); f != nil {
		f.Attachments[attachment] = Attachment{Texture: tex, Level: level, Layer: layer}
	}
}

func (d *Device) FramebufferRenderbuffer(target, attachment, rbTarget, rb uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f := d.fboLocked(target); f != nil {
		f.Attachments[attachment] = Attachment{Renderbuffer: rb}
	}
}

func (d *Device) CheckFramebufferStatus(target uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.drawFBO
	if target == glapi.READ_FRAMEBUFFER {
		id = d.readFBO
	}
	if id == 0 {
		return glapi.FRAMEBUFFER_COMPLETE
	}
	f := d.fbos[id]
	if f == nil || len(f.Attachments) == 0 {
		return glapi.FRAMEBUFFER_INCOMPLETE_ATTACH
	}
	if d.IncompleteFBO != nil && d.IncompleteFBO(id) {
		return glapi.FRAMEBUFFER_UNSUPPORTED
	}
	return glapi.FRAMEBUFFER_COMPLETE
}

func (d *Device) DrawBuffers(bufs []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f := d.fbos[d.drawFBO]; f != nil {
		f.DrawBuffers = append([]uint32(nil), bufs...)
	}
}

func (d *Device) ReadBuffer(src uint32) {}

func (d *Device) BlitFramebuffer(sx0, sy0, sx1, sy1, dx0, dy0, dx1, dy1 int32, mask, filter uint32) {
}

func (d *Device) BindRenderbuffer(target, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rb = id
}

func (d *Device) RenderbufferStorage(target, internalFormat uint32, width, height int32) {
	d.RenderbufferStorageMultisample(target, 0, internalFormat, width, height)
}

func (d *Device) RenderbufferStorageMultisample(target uint32, samples int32, internalFormat uint32, width, height int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.rbs[d.rb]; r != nil {
		*r = Renderbuffer{InternalFormat: internalFormat, Samples: samples, Width: width, Height: height}
	}
}

// FramebufferState returns a copy of a framebuffer's attachments.
func (d *Device) FramebufferState(id uint32) Framebuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.fbos[id]
	if f == nil {
		return Framebuffer{}
	}
	out := Framebuffer{Attachments: map[uint32]Attachment{}, DrawBuffers: append([]uint32(nil), f.DrawBuffers...)}
	for k, v := range f.Attachments {
		out.Attachments[k] = v
	}
	return out
}

// ── State ────────────────────────────────────────────────────────────────────

func (d *Device) Enable(capability uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps[capability] = true
}

func (d *Device) Disable(capability uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps[capability] = false
}

// Enabled reports the recorded state of a capability.
func (d *Device) Enabled(capability uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps[capability]
}

func (d *Device) DepthMask(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depthMask = on
}

func (d *Device) ColorMask(r, g, b, a bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.colorMask = [4]bool{r, g, b, a}
}

func (d *Device) DepthFunc(fn uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depthFunc = fn
}

func (d *Device) CullFace(mode uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cullFace = mode
}

func (d *Device) FrontFace(mode uint32)     {}
func (d *Device) BlendEquation(mode uint32) {}

func (d *Device) BlendFunc(src, dst uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blendSrc, d.blendDst = src, dst
}

func (d *Device) BlendFuncSeparate(srcRGB, dstRGB, srcA, dstA uint32) {
	d.BlendFunc(srcRGB, dstRGB)
}

func (d *Device) Viewport(x, y, width, height int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewport = [4]int32{x, y, width, height}
}

func (d *Device) Scissor(x, y, width, height int32) {}

func (d *Device) ClearColor(r, g, b, a float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearCol = [4]float32{r, g, b, a}
}

func (d *Device) ClearDepth(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearDep = v
}

func (d *Device) Clear(mask uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears = append(d.clears, Clear{Mask: mask, Color: d.clearCol, Depth: d.clearDep, Framebuffer: d.drawFBO, ColorMask: d.colorMask})
}

func (d *Device) ClearBufferfv(buffer uint32, drawBuffer int32, v []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := Clear{Framebuffer: d.drawFBO, ColorMask: d.colorMask}
	if buffer == glapi.DEPTH && len(v) > 0 {
		c.Mask, c.Depth = glapi.DEPTH_BUFFER_BIT, float64(v[0])
	} else {
		c.Mask = glapi.COLOR_BUFFER_BIT
		copy(c.Color[:], v)
	}
	d.clears = append(d.clears, c)
}

func (d *Device) LineWidth(w float32)                 {}
func (d *Device) PolygonOffset(factor, units float32) {}

// ── Draws ────────────────────────────────────────────────────────────────────

func (d *Device) recordLocked(dr Draw) {
	dr.Program = d.program
	dr.VertexArray = d.vao
	dr.Framebuffer = d.drawFBO
	dr.Viewport = d.viewport
	dr.ColorMask = d.colorMask
	dr.DepthMask = d.depthMask
	dr.DepthTest = d.caps[glapi.DEPTH_TEST]
	dr.DepthFunc = d.depthFunc
	dr.Blend = d.caps[glapi.BLEND]
	dr.BlendSrc, dr.BlendDst = d.blendSrc, d.blendDst
	dr.Cull = d.caps[glapi.CULL_FACE]
	dr.CullFace = d.cullFace
	dr.Feedback = d.feedback
	dr.Textures = map[uint32]uint32{}
	for unit, targets := range d.units {
		for _, id := range targets {
			if id != 0 {
				dr.Textures[unit] = id
			}
		}
	}
	d.draws = append(d.draws, dr)
}

func (d *Device) DrawArrays(mode uint32, first, count int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(Draw{Mode: mode, First: first, Count: count, Instances: 1})
}

func (d *Device) DrawElements(mode uint32, count int32, xtype uint32, offset int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(Draw{Mode: mode, Count: count, Indexed: true, IndexType: xtype, Offset: offset, Instances: 1})
}

func (d *Device) DrawArraysInstanced(mode uint32, first, count, instances int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(Draw{Mode: mode, First: first, Count: count, Instances: instances})
}

func (d *Device) DrawElementsInstanced(mode uint32, count int32, xtype uint32, offset int, instances int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(Draw{Mode: mode, Count: count, Indexed: true, IndexType: xtype, Offset: offset, Instances: instances})
}

func (d *Device) BeginTransformFeedback(mode uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedback = true
}

func (d *Device) EndTransformFeedback() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedback = false
}

// Draws returns the recorded draw calls.
func (d *Device) Draws() []Draw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Draw(nil), d.draws...)
}

// Clears returns the recorded clears.
func (d *Device) Clears() []Clear {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Clear(nil), d.clears...)
}

// ResetRecording forgets recorded draws and clears but keeps objects.
func (d *Device) ResetRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws = nil
	d.clears = nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (d *Device) ReadPixels(x, y, width, height int32, format, xtype uint32, out []byte) {
	for i := range out {
		out[i] = 0
	}
}

func (d *Device) GetString(name uint32) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch name {
	case glapi.VENDOR:
		return d.Vendor
	case glapi.RENDERER:
		return d.Renderer
	case glapi.VERSION:
		return "3.3.0 glfake"
	case glapi.SHADING_LANGUAGE_VERSION:
		return "3.30"
	}
	return ""
}

func (d *Device) extensionsLocked() []string {
	ext := append([]string(nil), d.Extensions...)
	if d.ParallelCompile {
		ext = append(ext, "GL_KHR_parallel_shader_compile")
	}
	return ext
}

func (d *Device) GetStringi(name, index uint32) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ext := d.extensionsLocked()
	if name != glapi.EXTENSIONS || int(index) >= len(ext) {
		return ""
	}
	return ext[index]
}

func (d *Device) GetIntegerv(pname uint32) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch pname {
	case glapi.NUM_EXTENSIONS:
		return int32(len(d.extensionsLocked()))
	case glapi.MAX_TEXTURE_SIZE:
		return 16384
	case glapi.MAX_COMBINED_TEXTURE_IMAGE_UNITS, glapi.MAX_TEXTURE_IMAGE_UNITS:
		return 32
	case glapi.MAX_UNIFORM_BLOCK_SIZE:
		return 65536
	case glapi.MAX_SAMPLES:
		return 8
	case glapi.NUM_PROGRAM_BINARY_FORMATS:
		return 1
	case glapi.FRAMEBUFFER_BINDING:
		return int32(d.drawFBO)
	case glapi.CURRENT_PROGRAM:
		return int32(d.program)
	}
	return 0
}

// GetFloatv answers the float-only limits; the rest read as 0.
func (d *Device) GetFloatv(pname uint32) float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pname == glapi.MAX_TEXTURE_MAX_ANISOTROPY {
		return d.MaxAnisotropy
	}
	return 0
}

func (d *Device) GetError() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.PendingError
	if e != glapi.CONTEXT_LOST {
		d.PendingError = glapi.NO_ERROR
	}
	return e
}

func (d *Device) Flush()  {}
func (d *Device) Finish() {}
