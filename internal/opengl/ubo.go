package opengl

import (
	"encoding/binary"
	"math"

	"gles3render/core"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// std140 packs values with the alignment rules of a std140 uniform block:
// scalars align to 4, vec2 to 8, vec3, vec4 and matrix columns to 16.
// Struct array elements start on 16 bytes; call Struct before each one.
type std140 struct {
	buf []byte
}

func (w *std140) align(a int) {
	for len(w.buf)%a != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *std140) word(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Float writes a float.
func (w *std140) Float(f float32) {
	w.align(4)
	w.word(math.Float32bits(f))
}

// Int writes an int.
func (w *std140) Int(i int32) {
	w.align(4)
	w.word(uint32(i))
}

// Bool writes a bool as a 32-bit word.
func (w *std140) Bool(b bool) {
	w.align(4)
	if b {
		w.word(1)
	} else {
		w.word(0)
	}
}

// Vec2 writes a vec2.
func (w *std140) Vec2(x, y float32) {
	w.align(8)
	w.word(math.Float32bits(x))
	w.word(math.Float32bits(y))
}

// Vec4 writes a vec4.
func (w *std140) Vec4(x, y, z, v float32) {
	w.align(16)
	for _, f := range [4]float32{x, y, z, v} {
		w.word(math.Float32bits(f))
	}
}

// Vec3W writes a vec3 padded to a vec4 with the given fourth component.
func (w *std140) Vec3W(v gmath.Vec3, fourth float32) {
	w.Vec4(v.X, v.Y, v.Z, fourth)
}

// Color writes a color as a vec4.
func (w *std140) Color(c core.Color) {
	w.Vec4(c.R, c.G, c.B, c.A)
}

// Mat4 writes a mat4 in upload order.
func (w *std140) Mat4(m gmath.Mat4) {
	w.align(16)
	for _, f := range m.Flat() {
		w.word(math.Float32bits(f))
	}
}

// Struct starts an array element.
func (w *std140) Struct() {
	w.align(16)
}

// Len returns the bytes written so far.
func (w *std140) Len() int { return len(w.buf) }

// Bytes returns the block rounded up to 16 bytes.
func (w *std140) Bytes() []byte {
	w.align(16)
	return w.buf
}

// Reset empties the writer keeping its storage.
func (w *std140) Reset() {
	w.buf = w.buf[:0]
}

// uniformBlock is a GL uniform buffer bound at a fixed binding point and
// refilled every frame.
type uniformBlock struct {
	dev     glapi.Device
	buf     glapi.Buffer
	binding uint32
	size    int
	w       std140
}

func newUniformBlock(d glapi.Device, binding uint32, size int) (*uniformBlock, error) {
	buf, err := glapi.NewBuffers(d, 1)
	if err != nil {
		return nil, err
	}
	b := &uniformBlock{dev: d, buf: buf, binding: binding, size: size}
	d.BindBuffer(glapi.UNIFORM_BUFFER, buf.ID())
	d.BufferData(glapi.UNIFORM_BUFFER, size, nil, glapi.DYNAMIC_DRAW)
	d.BindBuffer(glapi.UNIFORM_BUFFER, 0)
	return b, nil
}

// Upload copies the writer contents into the buffer, growing it when the
// data no longer fits, and binds it.
func (b *uniformBlock) Upload() {
	data := b.w.Bytes()
	d := b.dev
	d.BindBuffer(glapi.UNIFORM_BUFFER, b.buf.ID())
	if len(data) > b.size {
		b.size = len(data)
		d.BufferData(glapi.UNIFORM_BUFFER, b.size, data, glapi.DYNAMIC_DRAW)
	} else if len(data) > 0 {
		d.BufferSubData(glapi.UNIFORM_BUFFER, 0, data)
	}
	d.BindBuffer(glapi.UNIFORM_BUFFER, 0)
	b.Bind()
}

// Bind attaches the buffer to its binding point.
func (b *uniformBlock) Bind() {
	b.dev.BindBufferBase(glapi.UNIFORM_BUFFER, b.binding, b.buf.ID())
}

// ID returns the GL name of the buffer.
func (b *uniformBlock) ID() uint32 { return b.buf.ID() }

func (b *uniformBlock) release() {
	if b != nil {
		b.buf.Release()
	}
}
