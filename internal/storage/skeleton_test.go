package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

func TestSkeletonTextureLayout(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mem := s.Info().TextureMem

	e := s.SkeletonCreate()
	require.NoError(t, s.SkeletonAllocate(e, 100, false))
	sk := ecs.Get[Skeleton](s.Registry(), e)
	assert.Equal(t, 2, sk.Height, "300 texels span two rows")
	assert.Equal(t, mem+SkeletonTextureWidth*2*16, s.Info().TextureMem)
	assert.Equal(t, 100, s.SkeletonGetBoneCount(e))

	s.SkeletonBoneSetTransform(e, 1, gmath.Mat4Translation(gmath.NewVec3(1, 2, 3)))
	s.UpdateDirty()

	img := env.dev.TextureImage(sk.TextureID(), glapi.TEXTURE_2D, 0)
	require.NotNil(t, img)
	texels := bytesFloat32(img.Data)
	assert.Equal(t, []float32{1, 0, 0, 1}, texels[12:16], "bone 1 column 0 carries x translation")
	assert.Equal(t, []float32{0, 1, 0, 2}, texels[16:20])
	assert.Equal(t, []float32{0, 0, 1, 3}, texels[20:24])
	assert.Equal(t, []float32{1, 0, 0, 0}, texels[0:4])

	s.SkeletonBoneSetTransform(e, 100, gmath.Mat4Identity())
	assert.Equal(t, gmath.Mat4Identity(), s.SkeletonBoneGetTransform(e, 100), "out of range reads identity")

	require.NoError(t, s.SkeletonAllocate(e, 10, true))
	assert.Equal(t, 2, sk.TexelsPerBone())
	assert.Equal(t, 1, sk.Height)
	assert.ErrorIs(t, s.SkeletonAllocate(e, -1, false), ErrInvalidArgument)

	require.True(t, s.Free(e))
	assert.Equal(t, mem, s.Info().TextureMem)
}

func TestSkinnedMeshBounds(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	mesh := s.MeshCreate()
	_, err := s.MeshAddSurfaceFromArrays(mesh, PrimitiveTriangles, 0, quadArrays(), nil)
	require.NoError(t, err)
	boxes := s.MeshSurfaceGetBoneAABBs(mesh, 0)
	require.Len(t, boxes, 11)
	assert.Equal(t, gmath.AABB{Position: gmath.NewVec3(1.5, 2, -0.25)}, boxes[6])
	assert.Equal(t, gmath.AABB{Position: gmath.NewVec3(-1, -1, 0.5)}, boxes[0], "zero weights do not count")

	sk := s.SkeletonCreate()
	require.NoError(t, s.SkeletonAllocate(sk, 11, false))
	inst := s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, mesh))
	require.NoError(t, s.InstanceSetSkeleton(inst, sk))

	rest := s.MeshGetAABB(mesh, ecs.Null)
	assert.Equal(t, rest, s.InstanceGetAABB(inst), "identity bones keep the rest bounds")

	s.SkeletonBoneSetTransform(sk, 6, gmath.Mat4Translation(gmath.NewVec3(10, 0, 0)))
	s.UpdateDirty()
	box := s.Instance(inst).AABB
	assert.Equal(t, float32(-1), box.Position.X)
	assert.Equal(t, float32(12.5), box.Size.X)

	require.True(t, s.Free(sk))
	assert.True(t, s.Instance(inst).Skeleton.IsNull())
	s.UpdateDirty()
	assert.Equal(t, rest, s.Instance(inst).AABB)
}
