package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

func TestImmediateAttributesBackfill(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.ImmediateCreate()
	red := core.Color{R: 1, A: 1}
	up := gmath.NewVec3(0, 1, 0)

	require.NoError(t, s.ImmediateBegin(e, PrimitiveTriangles, s.TextureCreate()))
	s.ImmediateVertex(e, gmath.NewVec3(0, 0, 0))
	s.ImmediateColor(e, red)
	s.ImmediateVertex(e, gmath.NewVec3(1, 0, 0))
	s.ImmediateNormal(e, up)
	s.ImmediateVertex(e, gmath.NewVec3(0, 2, 0))
	require.NoError(t, s.ImmediateEnd(e))

	im := s.Immediate(e)
	require.Len(t, im.Chunks, 1)
	c := im.Chunks[0]
	assert.Equal(t, FormatVertex|FormatColor|FormatNormal, c.Format)
	assert.Equal(t, []core.Color{red, red, red}, c.Colors, "first color fills earlier vertices")
	assert.Equal(t, []gmath.Vec3{up, up, up}, c.Normals)
	assert.Empty(t, c.UV)

	box := s.ImmediateGetAABB(e)
	assert.Equal(t, gmath.Vec3{}, box.Position)
	assert.Equal(t, gmath.NewVec3(1, 2, 0), box.Size)
}

func TestImmediateBeginEndOrder(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.ImmediateCreate()

	assert.ErrorIs(t, s.ImmediateEnd(e), ErrImmediateState)
	s.ImmediateVertex(e, gmath.NewVec3(1, 1, 1))
	assert.Empty(t, s.Immediate(e).Chunks, "vertex outside a chunk is dropped")

	require.NoError(t, s.ImmediateBegin(e, PrimitiveLines, s.TextureCreate()))
	assert.ErrorIs(t, s.ImmediateBegin(e, PrimitiveLines, s.TextureCreate()), ErrImmediateState)
	s.ImmediateVertex(e, gmath.NewVec3(1, 1, 1))
	s.ImmediateClear(e)
	assert.Len(t, s.Immediate(e).Chunks, 1, "clear refused while building")

	require.NoError(t, s.ImmediateEnd(e))
	require.NoError(t, s.ImmediateBegin(e, PrimitivePoints, s.TextureCreate()))
	s.ImmediateVertex(e, gmath.NewVec3(-1, 0, 0))
	require.NoError(t, s.ImmediateEnd(e))
	assert.Len(t, s.Immediate(e).Chunks, 2)
	assert.Equal(t, gmath.NewVec3(-1, 0, 0), s.ImmediateGetAABB(e).Position, "bounds span chunks")

	s.ImmediateClear(e)
	assert.Empty(t, s.Immediate(e).Chunks)
	assert.Equal(t, gmath.AABB{}, s.ImmediateGetAABB(e))
}

func TestImmediateDirtiesInstances(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.ImmediateCreate()
	inst := s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, e))
	assert.Equal(t, InstanceImmediate, s.Instance(inst).BaseType)
	s.UpdateDirtyInstances()

	require.NoError(t, s.ImmediateBegin(e, PrimitiveTriangles, s.TextureCreate()))
	s.ImmediateVertex(e, gmath.NewVec3(0, 0, 4))
	assert.False(t, s.dirtyInstances.Contains(inst))
	require.NoError(t, s.ImmediateEnd(e))
	assert.True(t, s.dirtyInstances.Contains(inst))
	assert.Equal(t, gmath.NewVec3(0, 0, 4), s.InstanceGetAABB(inst).Position)

	mat := s.MaterialCreate()
	s.ImmediateSetMaterial(e, mat)
	assert.Equal(t, mat, s.ImmediateGetMaterial(e))
	assert.True(t, s.dirtyInstances.Contains(inst))

	require.True(t, s.Free(e))
	assert.Equal(t, InstanceNone, s.Instance(inst).BaseType)
}

func TestStreamImmediateChunk(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	c := &ImmediateChunk{
		Format:   FormatVertex | FormatColor,
		Vertices: []gmath.Vec3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}},
		Colors:   []core.Color{{R: 1, A: 1}, {G: 1, A: 0.5}},
	}

	n, ok := s.StreamImmediateChunk(c)
	require.True(t, ok)
	assert.Equal(t, int32(2), n)

	vao := env.dev.VertexArrayState(s.immediate.vao.ID())
	pos := vao.Attribs[ArrayVertex]
	require.NotNil(t, pos)
	assert.True(t, pos.Enabled)
	assert.Equal(t, int32(28), pos.Stride)
	assert.Equal(t, 0, pos.Offset)
	col := vao.Attribs[ArrayColor]
	require.NotNil(t, col)
	assert.Equal(t, 12, col.Offset)
	assert.Equal(t, uint32(glapi.FLOAT), col.Type)
	assert.False(t, vao.Attribs[ArrayNormal].Enabled)

	data := env.dev.BufferContents(s.immediate.buf.ID())
	assert.Len(t, data, 64*1024, "buffer orphaned at full size")
	want := floatBytes(1, 2, 3, 1, 0, 0, 1, 4, 5, 6, 0, 1, 0, 0.5)
	assert.Equal(t, want, data[:len(want)])
}

func TestStreamImmediateChunkSkips(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	_, ok := s.StreamImmediateChunk(&ImmediateChunk{})
	assert.False(t, ok, "empty")

	big := &ImmediateChunk{Format: FormatVertex, Vertices: make([]gmath.Vec3, 6000)}
	_, ok = s.StreamImmediateChunk(big)
	assert.False(t, ok, "larger than the stream buffer")
}
