package opengl

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/glapi/glfake"
	gmath "gles3render/math"
)

func floatAt(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestStd140Alignment(t *testing.T) {
	var w std140
	w.Float(1)
	w.Vec2(2, 3)
	assert.Equal(t, 16, w.Len(), "vec2 aligns to 8")

	w.Bool(true)
	w.Vec3W(gmath.NewVec3(4, 5, 6), 7)
	assert.Equal(t, 48, w.Len(), "vec4 aligns to 16")

	w.Int(-2)
	w.Mat4(gmath.Mat4Identity())
	assert.Equal(t, 128, w.Len())

	w.Float(9)
	w.Struct()
	assert.Equal(t, 144, w.Len())
	w.Color(core.Color{R: 1, G: 0.5, B: 0.25, A: 1})

	b := w.Bytes()
	require.Len(t, b, 160)
	assert.Equal(t, float32(1), floatAt(b, 0))
	assert.Equal(t, float32(2), floatAt(b, 8))
	assert.Equal(t, float32(3), floatAt(b, 12))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[16:]))
	assert.Equal(t, float32(4), floatAt(b, 32))
	assert.Equal(t, float32(7), floatAt(b, 44))
	assert.Equal(t, int32(-2), int32(binary.LittleEndian.Uint32(b[48:])))
	assert.Equal(t, float32(1), floatAt(b, 64))
	assert.Equal(t, float32(1), floatAt(b, 64+5*4))
	assert.Equal(t, float32(9), floatAt(b, 128))
	assert.Equal(t, float32(0.25), floatAt(b, 152))

	w.Reset()
	assert.Zero(t, w.Len())
	w.Float(1)
	assert.Len(t, w.Bytes(), 16, "blocks round up to 16 bytes")
}

func TestUniformBlockUploadGrows(t *testing.T) {
	dev := glfake.New()
	b, err := newUniformBlock(dev, 3, 32)
	require.NoError(t, err)
	defer b.release()
	assert.Equal(t, 32, dev.BufferSize(b.ID()))

	b.w.Vec4(1, 2, 3, 4)
	b.Upload()
	assert.Equal(t, 32, dev.BufferSize(b.ID()))
	assert.Equal(t, float32(3), floatAt(dev.BufferContents(b.ID()), 8))
	assert.Equal(t, b.ID(), dev.UniformBufferAt(3))

	b.w.Reset()
	for i := range 4 {
		b.w.Vec4(float32(i), 0, 0, 0)
	}
	b.Upload()
	assert.Equal(t, 64, dev.BufferSize(b.ID()))
	assert.Equal(t, float32(3), floatAt(dev.BufferContents(b.ID()), 48))
}
