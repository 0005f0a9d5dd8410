package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

func surfaceOf(t *testing.T, s *Storage, mesh ecs.Entity, i int) *Surface {
	t.Helper()
	sf := ecs.Get[Surface](s.Registry(), s.MeshSurface(mesh, i))
	require.NotNil(t, sf)
	return sf
}

func TestMeshSurfaceReadBack(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mem := s.Info().VertexMem

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, CompressDefault, quadArrays(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.MeshGetSurfaceCount(mesh))

	sf := surfaceOf(t, s, mesh, 0)
	assert.True(t, sf.Active)
	assert.True(t, sf.Indexed())
	assert.Equal(t, 6, sf.IndexCount)
	assert.Equal(t, PrimitiveTriangles, s.MeshSurfaceGetPrimitive(mesh, 0))
	assert.True(t, s.MeshSurfaceGetFormat(mesh, 0).Has(FormatNormal|CompressNormal))
	assert.Equal(t, 1, s.Info().Surfaces)
	assert.Equal(t, mem+sf.ArrayBytes+sf.IndexBytes, s.Info().VertexMem)

	vao := env.dev.VertexArrayState(sf.VAO(false))
	require.NotNil(t, vao.Attribs[ArrayNormal])
	assert.Equal(t, uint32(glapi.BYTE), vao.Attribs[ArrayNormal].Type)
	assert.True(t, vao.Attribs[ArrayNormal].Normalized)
	assert.Equal(t, sf.VertexBuffer(), vao.Attribs[ArrayVertex].Buffer)
	assert.NotZero(t, vao.ElementBuffer)
	assert.Equal(t, vao.ElementBuffer, env.dev.VertexArrayState(sf.VAO(true)).ElementBuffer)

	got, err := s.MeshSurfaceGetArrays(mesh, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, got.Indices)
	assert.Equal(t, quadArrays().Vertices, got.Vertices)
	assert.Equal(t, quadArrays().Bones, got.Bones)
}

func TestMeshSplitStream(t *testing.T) {
	env := newTestStorage(t, map[string]any{KeySplitStream: true})
	s := env.s

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), nil)
	require.NoError(t, err)
	_, err = s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, FlagUseDynamicUpdate, triangleArrays(), nil)
	require.NoError(t, err)

	static := surfaceOf(t, s, mesh, 0)
	assert.True(t, static.Split)
	assert.Equal(t, 36, static.Layout.Attribs[ArrayNormal].Offset, "normals follow every position")
	dynamic := surfaceOf(t, s, mesh, 1)
	assert.False(t, dynamic.Split, "dynamic surfaces stay interleaved")

	got, err := s.MeshSurfaceGetArrays(mesh, 0)
	require.NoError(t, err)
	assert.Equal(t, triangleArrays().Vertices, got.Vertices)
	assert.Equal(t, triangleArrays().Normals, got.Normals)
}

func TestMeshAddSurfaceValidates(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mesh := s.MeshCreate()
	buffers := env.dev.Live("buffer")

	_, err := s.MeshAddSurface(mesh, SurfaceData{Format: FormatVertex, VertexCount: 3, Vertices: make([]byte, 35)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.MeshAddSurface(mesh, SurfaceData{
		Format: FormatVertex | FormatIndex, VertexCount: 3, Vertices: make([]byte, 36),
		IndexCount: 3, Indices: make([]byte, 3),
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), []*SurfaceArrays{triangleArrays()})
	assert.ErrorIs(t, err, ErrInvalidArgument, "mesh declares no blend shapes")

	_, err = s.MeshAddSurface(ecs.Null, SurfaceData{})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	assert.Zero(t, s.MeshGetSurfaceCount(mesh))
	assert.Equal(t, buffers, env.dev.Live("buffer"))
}

func TestMeshRemoveSurfaceReleasesBuffers(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	buffers, vaos := env.dev.Live("buffer"), env.dev.Live("vertex array")
	mem := s.Info().VertexMem

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, quadArrays(), nil)
	require.NoError(t, err)
	_, err = s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), nil)
	require.NoError(t, err)
	assert.Equal(t, buffers+3, env.dev.Live("buffer"))
	assert.Equal(t, vaos+4, env.dev.Live("vertex array"))

	first := s.MeshSurface(mesh, 0)
	s.MeshRemoveSurface(mesh, 0)
	assert.Equal(t, 1, s.MeshGetSurfaceCount(mesh))
	assert.False(t, s.Owns(first))
	assert.Equal(t, buffers+1, env.dev.Live("buffer"))

	require.True(t, s.Free(mesh))
	assert.Equal(t, buffers, env.dev.Live("buffer"))
	assert.Equal(t, vaos, env.dev.Live("vertex array"))
	assert.Zero(t, s.Info().Surfaces)
	assert.Equal(t, mem, s.Info().VertexMem)
}

func TestMeshAABB(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), nil)
	require.NoError(t, err)
	far := triangleArrays()
	for i := range far.Vertices {
		far.Vertices[i] = far.Vertices[i].Add(gmath.NewVec3(0, 0, 4))
	}
	_, err = s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, far, nil)
	require.NoError(t, err)

	box := s.MeshGetAABB(mesh, ecs.Null)
	assert.Equal(t, gmath.NewVec3(0, 0, 0), box.Position)
	assert.Equal(t, gmath.NewVec3(1, 1, 4), box.Size)

	custom := gmath.AABB{Position: gmath.NewVec3(-5, -5, -5), Size: gmath.NewVec3(10, 10, 10)}
	s.MeshSetCustomAABB(mesh, custom)
	assert.Equal(t, custom, s.MeshGetAABB(mesh, ecs.Null))
	s.MeshSetCustomAABB(mesh, gmath.AABB{})
	assert.Equal(t, box, s.MeshGetAABB(mesh, ecs.Null))
}

func TestMeshWireframe(t *testing.T) {
	env := newTestStorage(t, map[string]any{KeyGenerateWireframes: true})
	s := env.s

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, quadArrays(), nil)
	require.NoError(t, err)
	sf := surfaceOf(t, s, mesh, 0)

	vao, count := sf.WireframeVAO(false)
	require.NotZero(t, vao)
	assert.Equal(t, 12, count)
	ibo := env.dev.VertexArrayState(vao).ElementBuffer
	lines := env.dev.BufferContents(ibo)
	require.Len(t, lines, 24)
	// first triangle 0,1,2 becomes 0-1 1-2 2-0
	want := []byte{0, 0, 1, 0, 1, 0, 2, 0, 2, 0, 0, 0}
	assert.Equal(t, want, lines[:12])

	_, err = s.MeshAddSurfaceFromArrays(mesh, PrimitiveLines, 0, triangleArrays(), nil)
	require.NoError(t, err)
	vao, _ = surfaceOf(t, s, mesh, 1).WireframeVAO(false)
	assert.Zero(t, vao, "only triangle lists get wireframes")
}

func TestMeshSurfaceMaterialReferences(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	mat := s.MaterialCreate()
	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), nil)
	require.NoError(t, err)

	s.MeshSurfaceSetMaterial(mesh, 0, mat)
	assert.Equal(t, mat, s.MeshSurfaceGetMaterial(mesh, 0))
	m := ecs.Get[Material](s.Registry(), mat)
	assert.Equal(t, 1, m.GeometryOwners())

	other := s.MaterialCreate()
	s.MeshSurfaceSetMaterial(mesh, 0, other)
	assert.Zero(t, m.GeometryOwners())

	require.True(t, s.Free(other))
	assert.True(t, s.MeshSurfaceGetMaterial(mesh, 0).IsNull(), "freed material is dropped from the surface")

	s.MeshSurfaceSetMaterial(mesh, 0, mat)
	require.True(t, s.Free(mesh))
	assert.Zero(t, m.GeometryOwners())
}

func TestMeshBlendShapes(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	mem := s.Info().VertexMem
	mesh := s.MeshCreate()
	s.MeshSetBlendShapeCount(mesh, 1)
	target := triangleArrays()
	target.Vertices[2] = gmath.NewVec3(0, 2, 0)
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, triangleArrays(), []*SurfaceArrays{target})
	require.NoError(t, err)

	sf := surfaceOf(t, s, mesh, 0)
	require.Equal(t, 1, sf.BlendShapeCount())
	assert.NotZero(t, sf.BlendShapeVAO(0))
	assert.Equal(t, mem+2*sf.ArrayBytes, s.Info().VertexMem)

	s.MeshSetBlendShapeCount(mesh, 2)
	m := ecs.Get[Mesh](s.Registry(), mesh)
	assert.Equal(t, 1, m.BlendShapeCount, "count is fixed once surfaces exist")

	assert.False(t, m.HasActiveBlendShapes())
	s.MeshSetBlendShapeValues(mesh, []float32{0.5, 9})
	assert.Equal(t, []float32{0.5}, m.BlendShapeValues)
	assert.True(t, m.HasActiveBlendShapes())
}

func TestMeshSurfaceUpdateRegion(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, FlagUseDynamicUpdate, triangleArrays(), nil)
	require.NoError(t, err)
	sf := surfaceOf(t, s, mesh, 0)

	patch := []byte{1, 2, 3, 4}
	require.NoError(t, s.MeshSurfaceUpdateRegion(mesh, 0, 8, patch))
	assert.Equal(t, patch, env.dev.BufferContents(sf.VertexBuffer())[8:12])

	err = s.MeshSurfaceUpdateRegion(mesh, 0, sf.ArrayBytes-2, patch)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, s.MeshSurfaceUpdateRegion(mesh, 5, 0, patch), ErrInvalidHandle)
}
