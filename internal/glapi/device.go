// Package glapi is the GL 3.3 core call surface the renderer is written
// against. Native forwards to go-gl; tests use the recording device in
// glfake. All calls must happen on the thread owning the context.
package glapi

// Device is the subset of OpenGL the renderer uses, with Go-friendly
// signatures: slices instead of pointers, byte offsets instead of
// pointer-typed offsets.
type Device interface {
	// Object names.
	GenBuffers(n int) []uint32
	DeleteBuffers(ids []uint32)
	GenTextures(n int) []uint32
	DeleteTextures(ids []uint32)
	GenVertexArrays(n int) []uint32
	DeleteVertexArrays(ids []uint32)
	GenFramebuffers(n int) []uint32
	DeleteFramebuffers(ids []uint32)
	GenRenderbuffers(n int) []uint32
	DeleteRenderbuffers(ids []uint32)

	// Buffers.
	BindBuffer(target, id uint32)
	BindBufferBase(target, index, id uint32)
	BufferData(target uint32, size int, data []byte, usage uint32)
	BufferSubData(target uint32, offset int, data []byte)
	GetBufferSubData(target uint32, offset int, out []byte)

	// Textures.
	ActiveTexture(unit uint32)
	BindTexture(target, id uint32)
	TexImage2D(target uint32, level, internalFormat, width, height int32, format, xtype uint32, data []byte)
	TexImage3D(target uint32, level, internalFormat, width, height, depth int32, format, xtype uint32, data []byte)
	TexSubImage2D(target uint32, level, x, y, width, height int32, format, xtype uint32, data []byte)
	TexSubImage3D(target uint32, level, x, y, z, width, height, depth int32, format, xtype uint32, data []byte)
	CompressedTexImage2D(target uint32, level int32, internalFormat uint32, width, height int32, data []byte)
	CompressedTexImage3D(target uint32, level int32, internalFormat uint32, width, height, depth int32, data []byte)
	TexParameteri(target, pname uint32, v int32)
	TexParameterf(target, pname uint32, v float32)
	TexParameterfv(target, pname uint32, v []float32)
	GenerateMipmap(target uint32)
	GetTexImage(target uint32, level int32, format, xtype uint32, out []byte)

	// Vertex arrays.
	BindVertexArray(id uint32)
	EnableVertexAttribArray(index uint32)
	DisableVertexAttribArray(index uint32)
	VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset int)
	VertexAttribIPointer(index uint32, size int32, xtype uint32, stride int32, offset int)
	VertexAttribDivisor(index, divisor uint32)
	VertexAttrib4f(index uint32, x, y, z, w float32)

	// Framebuffers.
	BindFramebuffer(target, id uint32)
	FramebufferTexture2D(target, attachment, texTarget, tex uint32, level int32)
	FramebufferTextureLayer(target, attachment, tex uint32, level, layer int32)
	FramebufferRenderbuffer(target, attachment, rbTarget, rb uint32)
	CheckFramebufferStatus(target uint32) uint32
	DrawBuffers(bufs []uint32)
	ReadBuffer(src uint32)
	BlitFramebuffer(sx0, sy0, sx1, sy1, dx0, dy0, dx1, dy1 int32, mask, filter uint32)
	BindRenderbuffer(target, id uint32)
	RenderbufferStorage(target, internalFormat uint32, width, height int32)
	RenderbufferStorageMultisample(target uint32, samples int32, internalFormat uint32, width, height int32)

	// Shaders and programs.
	CreateShader(kind uint32) uint32
	ShaderSource(id uint32, src string)
	CompileShader(id uint32)
	GetShaderiv(id, pname uint32) int32
	ShaderInfoLog(id uint32) string
	DeleteShader(id uint32)
	CreateProgram() uint32
	AttachShader(program, shader uint32)
	DetachShader(program, shader uint32)
	BindAttribLocation(program, index uint32, name string)
	TransformFeedbackVaryings(program uint32, names []string, mode uint32)
	LinkProgram(program uint32)
	GetProgramiv(program, pname uint32) int32
	ProgramInfoLog(program uint32) string
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	ProgramParameteri(program, pname uint32, v int32)
	GetProgramBinary(program uint32) (format uint32, data []byte)
	ProgramBinary(program, format uint32, data []byte)
	GetUniformLocation(program uint32, name string) int32
	GetUniformBlockIndex(program uint32, name string) uint32
	UniformBlockBinding(program, blockIndex, binding uint32)

	// Uniforms on the bound program.
	Uniform1i(loc, v int32)
	Uniform1f(loc int32, v float32)
	Uniform2f(loc int32, x, y float32)
	Uniform3f(loc int32, x, y, z float32)
	Uniform4f(loc int32, x, y, z, w float32)
	Uniform1fv(loc int32, v []float32)
	Uniform2fv(loc int32, v []float32)
	Uniform4fv(loc int32, v []float32)
	UniformMatrix4fv(loc int32, v []float32)

	// Fixed-function state.
	Enable(capability uint32)
	Disable(capability uint32)
	DepthMask(on bool)
	ColorMask(r, g, b, a bool)
	DepthFunc(fn uint32)
	CullFace(mode uint32)
	FrontFace(mode uint32)
	BlendEquation(mode uint32)
	BlendFunc(src, dst uint32)
	BlendFuncSeparate(srcRGB, dstRGB, srcA, dstA uint32)
	Viewport(x, y, width, height int32)
	Scissor(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	ClearDepth(d float64)
	Clear(mask uint32)
	ClearBufferfv(buffer uint32, drawBuffer int32, v []float32)
	LineWidth(w float32)
	PolygonOffset(factor, units float32)

	// Draws.
	DrawArrays(mode uint32, first, count int32)
	DrawElements(mode uint32, count int32, xtype uint32, offset int)
	DrawArraysInstanced(mode uint32, first, count, instances int32)
	DrawElementsInstanced(mode uint32, count int32, xtype uint32, offset int, instances int32)
	BeginTransformFeedback(mode uint32)
	EndTransformFeedback()

	// Queries.
	ReadPixels(x, y, width, height int32, format, xtype uint32, out []byte)
	GetString(name uint32) string
	GetStringi(name, index uint32) string
	GetIntegerv(pname uint32) int32
	GetFloatv(pname uint32) float32
	GetError() uint32
	Flush()
	Finish()
}
