package glapi

import (
	"fmt"
	"strings"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"
)

// Native forwards every Device call to the go-gl bindings. A GL context must
// be current on the calling thread.
type Native struct{}

// NewNative loads the GL function pointers for the current context.
func NewNative() (*Native, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}
	return &Native{}, nil
}

func bytePtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func gen(n int, fn func(int32, *uint32)) []uint32 {
	ids := make([]uint32, n)
	if n > 0 {
		fn(int32(n), &ids[0])
	}
	return ids
}

func del(ids []uint32, fn func(int32, *uint32)) {
	if len(ids) > 0 {
		fn(int32(len(ids)), &ids[0])
	}
}

// ── Object names ─────────────────────────────────────────────────────────────

func (*Native) GenBuffers(n int) []uint32        { return gen(n, gl.GenBuffers) }
func (*Native) DeleteBuffers(ids []uint32)       { del(ids, gl.DeleteBuffers) }
func (*Native) GenTextures(n int) []uint32       { return gen(n, gl.GenTextures) }
func (*Native) DeleteTextures(ids []uint32)      { del(ids, gl.DeleteTextures) }
func (*Native) GenVertexArrays(n int) []uint32   { return gen(n, gl.GenVertexArrays) }
func (*Native) DeleteVertexArrays(ids []uint32)  { del(ids, gl.DeleteVertexArrays) }
func (*Native) GenFramebuffers(n int) []uint32   { return gen(n, gl.GenFramebuffers) }
func (*Native) DeleteFramebuffers(ids []uint32)  { del(ids, gl.DeleteFramebuffers) }
func (*Native) GenRenderbuffers(n int) []uint32  { return gen(n, gl.GenRenderbuffers) }
func (*Native) DeleteRenderbuffers(ids []uint32) { del(ids, gl.DeleteRenderbuffers) }

// ── Buffers ──────────────────────────────────────────────────────────────────

func (*Native) BindBuffer(target, id uint32)            { gl.BindBuffer(target, id) }
func (*Native) BindBufferBase(target, index, id uint32) { gl.BindBufferBase(target, index, id) }

func (*Native) BufferData(target uint32, size int, data []byte, usage uint32) {
	gl.BufferData(target, size, bytePtr(data), usage)
}

func (*Native) BufferSubData(target uint32, offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BufferSubData(target, offset, len(data), bytePtr(data))
}

func (*Native) GetBufferSubData(target uint32, offset int, out []byte) {
	if len(out) == 0 {
		return
	}
	gl.GetBufferSubData(target, offset, len(out), bytePtr(out))
}

// ── Textures ─────────────────────────────────────────────────────────────────

func (*Native) ActiveTexture(unit uint32)     { gl.ActiveTexture(unit) }
func (*Native) BindTexture(target, id uint32) { gl.BindTexture(target, id) }

func (*Native) TexImage2D(target uint32, level, internalFormat, width, height int32, format, xtype uint32, data []byte) {
	gl.TexImage2D(target, level, internalFormat, width, height, 0, format, xtype, bytePtr(data))
}

func (*Native) TexImage3D(target uint32, level, internalFormat, width, height, depth int32, format, xtype uint32, data []byte) {
	gl.TexImage3D(target, level, internalFormat, width, height, depth, 0, format, xtype, bytePtr(data))
}

func (*Native) TexSubImage2D(target uint32, level, x, y, width, height int32, format, xtype uint32, data []byte) {
	gl.TexSubImage2D(target, level, x, y, width, height, format, xtype, bytePtr(data))
}

func (*Native) TexSubImage3D(target uint32, level, x, y, z, width, height, depth int32, format, xtype uint32, data []byte) {
	gl.TexSubImage3D(target, level, x, y, z, width, height, depth, format, xtype, bytePtr(data))
}

func (*Native) CompressedTexImage2D(target uint32, level int32, internalFormat uint32, width, height int32, data []byte) {
	gl.CompressedTexImage2D(target, level, internalFormat, width, height, 0, int32(len(data)), bytePtr(data))
}

func (*Native) CompressedTexImage3D(target uint32, level int32, internalFormat uint32, width, height, depth int32, data []byte) {
	gl.CompressedTexImage3D(target, level, internalFormat, width, height, depth, 0, int32(len(data)), bytePtr(data))
}

func (*Native) TexParameteri(target, pname uint32, v int32)   { gl.TexParameteri(target, pname, v) }
func (*Native) TexParameterf(target, pname uint32, v float32) { gl.TexParameterf(target, pname, v) }

func (*Native) TexParameterfv(target, pname uint32, v []float32) {
	if len(v) > 0 {
		gl.TexParameterfv(target, pname, &v[0])
	}
}

func (*Native) GenerateMipmap(target uint32) { gl.GenerateMipmap(target) }

func (*Native) GetTexImage(target uint32, level int32, format, xtype uint32, out []byte) {
	gl.GetTexImage(target, level, format, xtype, bytePtr(out))
}

// ── Vertex arrays ────────────────────────────────────────────────────────────

func (*Native) BindVertexArray(id uint32)                 { gl.BindVertexArray(id) }
func (*Native) EnableVertexAttribArray(index uint32)      { gl.EnableVertexAttribArray(index) }
func (*Native) DisableVertexAttribArray(index uint32)     { gl.DisableVertexAttribArray(index) }
func (*Native) VertexAttribDivisor(index, divisor uint32) { gl.VertexAttribDivisor(index, divisor) }

func (*Native) VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset int) {
	gl.VertexAttribPointer(index, size, xtype, normalized, stride, gl.PtrOffset(offset))
}

func (*Native) VertexAttribIPointer(index uint32, size int32, xtype uint32, stride int32, offset int) {
	gl.VertexAttribIPointer(index, size, xtype, stride, gl.PtrOffset(offset))
}

func (*Native) VertexAttrib4f(index uint32, x, y, z, w float32) { gl.VertexAttrib4f(index, x, y, z, w) }

// ── Framebuffers ─────────────────────────────────────────────────────────────

func (*Native) BindFramebuffer(target, id uint32) { gl.BindFramebuffer(target, id) }

func (*Native) FramebufferTexture2D(target, attachment, texTarget, tex uint32, level int32) {
	gl.FramebufferTexture2D(target, attachment, texTarget, tex, level)
}

func (*Native) FramebufferTextureLayer(target, attachment, tex uint32, level, layer int32) {
	gl.FramebufferTextureLayer(target, attachment, tex, level, layer)
}

func (*Native) FramebufferRenderbuffer(target, attachment, rbTarget, rb uint32) {
	gl.FramebufferRenderbuffer(target, attachment, rbTarget, rb)
}

func (*Native) CheckFramebufferStatus(target uint32) uint32 { return gl.CheckFramebufferStatus(target) }

func (*Native) DrawBuffers(bufs []uint32) {
	if len(bufs) == 0 {
		gl.DrawBuffer(gl.NONE)
		return
	}
	gl.DrawBuffers(int32(len(bufs)), &bufs[0])
}

func (*Native) ReadBuffer(src uint32) { gl.ReadBuffer(src) }

func (*Native) BlitFramebuffer(sx0, sy0, sx1, sy1, dx0, dy0, dx1, dy1 int32, mask, filter uint32) {
	gl.BlitFramebuffer(sx0, sy0, sx1, sy1, dx0, dy0, dx1, dy1, mask, filter)
}

func (*Native) BindRenderbuffer(target, id uint32) { gl.BindRenderbuffer(target, id) }

func (*Native) RenderbufferStorage(target, internalFormat uint32, width, height int32) {
	gl.RenderbufferStorage(target, internalFormat, width, height)
}

func (*Native) RenderbufferStorageMultisample(target uint32, samples int32, internalFormat uint32, width, height int32) {
	gl.RenderbufferStorageMultisample(target, samples, internalFormat, width, height)
}

// ── Shaders and programs ─────────────────────────────────────────────────────

func (*Native) CreateShader(kind uint32) uint32 { return gl.CreateShader(kind) }

func (*Native) ShaderSource(id uint32, src string) {
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(id, 1, csrc, nil)
	free()
}

func (*Native) CompileShader(id uint32) { gl.CompileShader(id) }

func (*Native) GetShaderiv(id, pname uint32) int32 {
	var v int32
	gl.GetShaderiv(id, pname, &v)
	return v
}

func (n *Native) ShaderInfoLog(id uint32) string {
	logLen := n.GetShaderiv(id, gl.INFO_LOG_LENGTH)
	if logLen <= 0 {
		return ""
	}
	log := strings.Repeat("\x00", int(logLen+1))
	gl.GetShaderInfoLog(id, logLen, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

func (*Native) DeleteShader(id uint32)              { gl.DeleteShader(id) }
func (*Native) CreateProgram() uint32               { return gl.CreateProgram() }
func (*Native) AttachShader(program, shader uint32) { gl.AttachShader(program, shader) }
func (*Native) DetachShader(program, shader uint32) { gl.DetachShader(program, shader) }

func (*Native) BindAttribLocation(program, index uint32, name string) {
	gl.BindAttribLocation(program, index, gl.Str(name+"\x00"))
}

func (*Native) TransformFeedbackVaryings(program uint32, names []string, mode uint32) {
	if len(names) == 0 {
		return
	}
	terminated := make([]string, len(names))
	for i, n := range names {
		terminated[i] = n + "\x00"
	}
	cnames, free := gl.Strs(terminated...)
	gl.TransformFeedbackVaryings(program, int32(len(names)), cnames, mode)
	free()
}

func (*Native) LinkProgram(program uint32) { gl.LinkProgram(program) }

func (*Native) GetProgramiv(program, pname uint32) int32 {
	var v int32
	gl.GetProgramiv(program, pname, &v)
	return v
}

func (n *Native) ProgramInfoLog(program uint32) string {
	logLen := n.GetProgramiv(program, gl.INFO_LOG_LENGTH)
	if logLen <= 0 {
		return ""
	}
	log := strings.Repeat("\x00", int(logLen+1))
	gl.GetProgramInfoLog(program, logLen, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

func (*Native) DeleteProgram(program uint32) { gl.DeleteProgram(program) }
func (*Native) UseProgram(program uint32)    { gl.UseProgram(program) }

func (*Native) ProgramParameteri(program, pname uint32, v int32) {
	gl.ProgramParameteri(program, pname, v)
}

func (n *Native) GetProgramBinary(program uint32) (uint32, []byte) {
	size := n.GetProgramiv(program, gl.PROGRAM_BINARY_LENGTH)
	if size <= 0 {
		return 0, nil
	}
	buf := make([]byte, size)
	var length int32
	var format uint32
	gl.GetProgramBinary(program, size, &length, &format, bytePtr(buf))
	return format, buf[:length]
}

func (*Native) ProgramBinary(program, format uint32, data []byte) {
	gl.ProgramBinary(program, format, bytePtr(data), int32(len(data)))
}

func (*Native) GetUniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (*Native) GetUniformBlockIndex(program uint32, name string) uint32 {
	return gl.GetUniformBlockIndex(program, gl.Str(name+"\x00"))
}

func (*Native) UniformBlockBinding(program, blockIndex, binding uint32) {
	gl.UniformBlockBinding(program, blockIndex, binding)
}

// ── Uniforms ─────────────────────────────────────────────────────────────────

func (*Native) Uniform1i(loc, v int32)                  { gl.Uniform1i(loc, v) }
func (*Native) Uniform1f(loc int32, v float32)          { gl.Uniform1f(loc, v) }
func (*Native) Uniform2f(loc int32, x, y float32)       { gl.Uniform2f(loc, x, y) }
func (*Native) Uniform3f(loc int32, x, y, z float32)    { gl.Uniform3f(loc, x, y, z) }
func (*Native) Uniform4f(loc int32, x, y, z, w float32) { gl.Uniform4f(loc, x, y, z, w) }

func (*Native) Uniform1fv(loc int32, v []float32) {
	if len(v) > 0 {
		gl.Uniform1fv(loc, int32(len(v)), &v[0])
	}
}

func (*Native) Uniform2fv(loc int32, v []float32) {
	if len(v) >= 2 {
		gl.Uniform2fv(loc, int32(len(v)/2), &v[0])
	}
}

func (*Native) Uniform4fv(loc int32, v []float32) {
	if len(v) >= 4 {
		gl.Uniform4fv(loc, int32(len(v)/4), &v[0])
	}
}

func (*Native) UniformMatrix4fv(loc int32, v []float32) {
	if len(v) >= 16 {
		gl.UniformMatrix4fv(loc, int32(len(v)/16), false, &v[0])
	}
}

// ── State ────────────────────────────────────────────────────────────────────

func (*Native) Enable(capability uint32)        { gl.Enable(capability) }
func (*Native) Disable(capability uint32)       { gl.Disable(capability) }
func (*Native) DepthMask(on bool)               { gl.DepthMask(on) }
func (*Native) ColorMask(r, g, b, a bool)       { gl.ColorMask(r, g, b, a) }
func (*Native) DepthFunc(fn uint32)             { gl.DepthFunc(fn) }
func (*Native) CullFace(mode uint32)            { gl.CullFace(mode) }
func (*Native) FrontFace(mode uint32)           { gl.FrontFace(mode) }
func (*Native) BlendEquation(mode uint32)       { gl.BlendEquation(mode) }
func (*Native) BlendFunc(src, dst uint32)       { gl.BlendFunc(src, dst) }
func (*Native) Viewport(x, y, w, h int32)       { gl.Viewport(x, y, w, h) }
func (*Native) Scissor(x, y, w, h int32)        { gl.Scissor(x, y, w, h) }
func (*Native) ClearColor(r, g, b, a float32)   { gl.ClearColor(r, g, b, a) }
func (*Native) ClearDepth(d float64)            { gl.ClearDepth(d) }
func (*Native) Clear(mask uint32)               { gl.Clear(mask) }
func (*Native) LineWidth(w float32)             { gl.LineWidth(w) }
func (*Native) PolygonOffset(factor, u float32) { gl.PolygonOffset(factor, u) }

func (*Native) BlendFuncSeparate(srcRGB, dstRGB, srcA, dstA uint32) {
	gl.BlendFuncSeparate(srcRGB, dstRGB, srcA, dstA)
}

func (*Native) ClearBufferfv(buffer uint32, drawBuffer int32, v []float32) {
	if len(v) > 0 {
		gl.ClearBufferfv(buffer, drawBuffer, &v[0])
	}
}

// ── Draws ────────────────────────────────────────────────────────────────────

func (*Native) DrawArrays(mode uint32, first, count int32) { gl.DrawArrays(mode, first, count) }

func (*Native) DrawElements(mode uint32, count int32, xtype uint32, offset int) {
	gl.DrawElements(mode, count, xtype, gl.PtrOffset(offset))
}

func (*Native) DrawArraysInstanced(mode uint32, first, count, instances int32) {
	gl.DrawArraysInstanced(mode, first, count, instances)
}

func (*Native) DrawElementsInstanced(mode uint32, count int32, xtype uint32, offset int, instances int32) {
	gl.DrawElementsInstanced(mode, count, xtype, gl.PtrOffset(offset), instances)
}

func (*Native) BeginTransformFeedback(mode uint32) { gl.BeginTransformFeedback(mode) }
func (*Native) EndTransformFeedback()              { gl.EndTransformFeedback() }

// ── Queries ──────────────────────────────────────────────────────────────────

func (*Native) ReadPixels(x, y, width, height int32, format, xtype uint32, out []byte) {
	gl.ReadPixels(x, y, width, height, format, xtype, bytePtr(out))
}

func (*Native) GetString(name uint32) string {
	return gl.GoStr(gl.GetString(name))
}

func (*Native) GetStringi(name, index uint32) string {
	return gl.GoStr(gl.GetStringi(name, index))
}

func (*Native) GetIntegerv(pname uint32) int32 {
	var v int32
	gl.GetIntegerv(pname, &v)
	return v
}

func (*Native) GetFloatv(pname uint32) float32 {
	var v float32
	gl.GetFloatv(pname, &v)
	return v
}

func (*Native) GetError() uint32 { return gl.GetError() }
func (*Native) Flush()           { gl.Flush() }
func (*Native) Finish()          { gl.Finish() }

var _ Device = (*Native)(nil)
