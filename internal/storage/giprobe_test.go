package storage

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

func TestGIProbeVersioning(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.GIProbeCreate()
	inst := s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, e))
	assert.Equal(t, InstanceGIProbe, s.Instance(inst).BaseType)
	s.UpdateDirtyInstances()

	v := s.GIProbeGetVersion(e)
	box := gmath.AABB{Position: gmath.NewVec3(-2, 0, -2), Size: gmath.NewVec3(4, 4, 4)}
	s.GIProbeSetBounds(e, box)
	s.GIProbeSetEnergy(e, 2)
	s.GIProbeSetInterior(e, true)
	assert.Equal(t, v+3, s.GIProbeGetVersion(e))
	assert.True(t, s.dirtyInstances.Contains(inst))
	assert.Equal(t, box, s.InstanceGetAABB(inst))

	p := s.GIProbe(e)
	assert.Equal(t, float32(2), p.Energy)
	assert.True(t, p.Interior)
	assert.Equal(t, float32(0.7), p.Propagation)

	s.GIProbeSetEnergy(s.MaterialCreate(), 1)
	assert.Zero(t, s.GIProbeGetVersion(s.MaterialCreate()))
}

func TestGIProbeDataUncompressed(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mem := s.Info().TextureMem

	e, err := s.GIProbeDataCreate(8, 4, 4, 2, GIProbeS3TC)
	require.NoError(t, err)
	gd := ecs.Get[GIProbeData](s.Registry(), e)
	assert.Equal(t, GIProbeUncompressed, gd.Compression, "no s3tc on this device")
	assert.Equal(t, mem+8*4*4*4+4*2*2*4, s.Info().TextureMem)

	lvl1 := env.dev.TextureImage(gd.TextureID(), glapi.TEXTURE_3D, 1)
	require.NotNil(t, lvl1)
	assert.Equal(t, int32(2), lvl1.Depth)

	slice := bytes.Repeat([]byte{7}, 8*4*4)
	require.NoError(t, s.GIProbeDataUpdate(e, 1, 1, 0, slice))
	img := env.dev.TextureImage(gd.TextureID(), glapi.TEXTURE_3D, 0)
	assert.Equal(t, slice, img.Data[8*4*4:8*4*4*2])
	assert.Zero(t, img.Data[0])

	assert.ErrorIs(t, s.GIProbeDataUpdate(e, 0, 1, 2, slice), ErrInvalidArgument)
	assert.ErrorIs(t, s.GIProbeDataUpdate(e, 3, 2, 0, slice), ErrInvalidArgument)
	assert.ErrorIs(t, s.GIProbeDataUpdate(e, 0, 1, 0, slice[1:]), ErrInvalidArgument)

	require.True(t, s.Free(e))
	assert.Equal(t, mem, s.Info().TextureMem)
}

func TestGIProbeDataCompressed(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	s.Features().ETC2 = true

	e, err := s.GIProbeDataCreate(8, 8, 2, 1, GIProbeETC2)
	require.NoError(t, err)
	gd := ecs.Get[GIProbeData](s.Registry(), e)
	assert.Equal(t, GIProbeETC2, gd.Compression)

	level := bytes.Repeat([]byte{1}, 128)
	assert.ErrorIs(t, s.GIProbeDataUpdate(e, 0, 1, 0, level[:64]), ErrInvalidArgument, "compressed levels upload whole")
	require.NoError(t, s.GIProbeDataUpdate(e, 0, 2, 0, level))
	img := env.dev.TextureImage(gd.TextureID(), glapi.TEXTURE_3D, 0)
	require.NotNil(t, img)
	assert.True(t, img.Compressed)
	assert.Equal(t, level, img.Data)

	_, err = s.GIProbeDataCreate(0, 8, 2, 1, GIProbeUncompressed)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGICompressedSize(t *testing.T) {
	assert.Equal(t, 16, giCompressedSize(1, 1, 1))
	assert.Equal(t, 4*2*3*16, giCompressedSize(16, 5, 3))
}

func packOctant(light [6][3]float32, alpha float32, children [8]uint32) []byte {
	b := make([]byte, LightmapOctantSize)
	for dir := range light {
		for ch, v := range light[dir] {
			binary.LittleEndian.PutUint16(b[(dir*3+ch)*2:], float16.Fromfloat32(v).Bits())
		}
	}
	binary.LittleEndian.PutUint32(b[36:], math.Float32bits(alpha))
	for k, c := range children {
		binary.LittleEndian.PutUint32(b[40+k*4:], c)
	}
	return b
}

func TestLightmapCaptureOctree(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.LightmapCaptureCreate()
	inst := s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, e))
	assert.Equal(t, InstanceLightmapCapture, s.Instance(inst).BaseType)

	var light [6][3]float32
	light[2] = [3]float32{1, 0.5, 2}
	children := [8]uint32{1, LightmapOctantEmpty, LightmapOctantEmpty, LightmapOctantEmpty,
		LightmapOctantEmpty, LightmapOctantEmpty, LightmapOctantEmpty, LightmapOctantEmpty}
	data := append(packOctant(light, 0.25, children), packOctant([6][3]float32{}, 1, [8]uint32{})...)

	s.UpdateDirtyInstances()
	require.NoError(t, s.LightmapCaptureSetOctree(e, data))
	assert.True(t, s.dirtyInstances.Contains(inst))

	c := s.LightmapCapture(e)
	require.Len(t, c.Octree, 2)
	assert.Equal(t, light, c.Octree[0].Light)
	assert.Equal(t, float32(0.25), c.Octree[0].Alpha)
	assert.Equal(t, uint32(1), c.Octree[0].Children[0])
	assert.Equal(t, uint32(LightmapOctantEmpty), c.Octree[0].Children[7])
	assert.Equal(t, data, s.LightmapCaptureGetOctree(e))

	assert.ErrorIs(t, s.LightmapCaptureSetOctree(e, data[1:]), ErrInvalidArgument)
	assert.Len(t, c.Octree, 2, "rejected data leaves the octree")

	box := gmath.AABB{Size: gmath.NewVec3(1, 1, 1)}
	s.LightmapCaptureSetBounds(e, box)
	assert.Equal(t, box, s.InstanceGetAABB(inst))
}
