package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// quadArrays is a skinned, fully attributed quad of two triangles.
func quadArrays() *SurfaceArrays {
	return &SurfaceArrays{
		Vertices: []gmath.Vec3{
			gmath.NewVec3(-1, -1, 0.5), gmath.NewVec3(1.5, -1, 0.5),
			gmath.NewVec3(1.5, 2, -0.25), gmath.NewVec3(-1, 2, -0.25),
		},
		Normals: []gmath.Vec3{
			gmath.NewVec3(0, 0, 1), gmath.NewVec3(0, 1, 0),
			gmath.NewVec3(1, 1, 1).Normalize(), gmath.NewVec3(0, 0, -1),
		},
		Tangents: []gmath.Vec4{
			{X: 1, W: 1}, {X: 1, W: -1}, {Z: 1, W: 1}, {Y: -1, W: -1},
		},
		Colors: []core.Color{
			{R: 1, A: 1}, {G: 1, A: 1}, {B: 1, A: 0.5}, {R: 0.2, G: 0.4, B: 0.6, A: 1},
		},
		UV:      []gmath.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
		UV2:     []gmath.Vec2{{X: 0.25, Y: 0.5}, {X: 0.75, Y: 0.5}, {X: 0.75, Y: 1}, {X: 0.25, Y: 1}},
		Bones:   [][4]uint16{{0, 1, 2, 3}, {4, 5, 0, 0}, {6, 0, 0, 0}, {7, 8, 9, 10}},
		Weights: [][4]float32{{0.25, 0.25, 0.25, 0.25}, {0.5, 0.5, 0, 0}, {1, 0, 0, 0}, {0.1, 0.2, 0.3, 0.4}},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// triangleArrays is a single unindexed triangle with normals.
func triangleArrays() *SurfaceArrays {
	return &SurfaceArrays{
		Vertices: []gmath.Vec3{gmath.NewVec3(0, 0, 0), gmath.NewVec3(1, 0, 0), gmath.NewVec3(0, 1, 0)},
		Normals:  []gmath.Vec3{gmath.NewVec3(0, 0, 1), gmath.NewVec3(0, 0, 1), gmath.NewVec3(0, 0, 1)},
	}
}

func TestLayoutInterleaved(t *testing.T) {
	f := FormatVertex | FormatNormal | FormatTexUV | FormatIndex
	l := Layout(f, 4, false)

	assert.Equal(t, 32, l.Stride)
	assert.Zero(t, l.PositionStride)
	assert.Equal(t, 0, l.Attribs[ArrayVertex].Offset)
	assert.Equal(t, 12, l.Attribs[ArrayNormal].Offset)
	assert.Equal(t, 24, l.Attribs[ArrayTexUV].Offset)
	assert.Equal(t, 128, l.Size)
	assert.Equal(t, uint32(glapi.UNSIGNED_SHORT), l.IndexType)
	assert.Equal(t, 2, l.IndexSize)
	assert.False(t, l.Attribs[ArrayColor].Enabled)

	big := Layout(f, 70000, false)
	assert.Equal(t, uint32(glapi.UNSIGNED_INT), big.IndexType)
	assert.Equal(t, 4, big.IndexSize)
}

func TestLayoutSplitStream(t *testing.T) {
	l := Layout(FormatVertex|FormatNormal|FormatTexUV, 4, true)

	assert.Equal(t, 12, l.PositionStride)
	assert.Equal(t, int32(12), l.Attribs[ArrayVertex].Stride)
	assert.Equal(t, 0, l.Attribs[ArrayVertex].Offset)
	assert.Equal(t, 48, l.Attribs[ArrayNormal].Offset)
	assert.Equal(t, 60, l.Attribs[ArrayTexUV].Offset)
	assert.Equal(t, 20, l.Stride)
	assert.Equal(t, int32(20), l.Attribs[ArrayNormal].Stride)
	assert.Equal(t, 48+20*4, l.Size)
}

func TestLayoutCompressed(t *testing.T) {
	f := FormatVertex | FormatNormal | FormatTangent | FormatColor | FormatTexUV | CompressDefault
	l := Layout(f, 1, false)

	assert.Equal(t, 12+4+4+4+4, l.Stride)
	assert.Equal(t, uint32(glapi.BYTE), l.Attribs[ArrayNormal].Type)
	assert.True(t, l.Attribs[ArrayNormal].Normalized)
	assert.Equal(t, uint32(glapi.UNSIGNED_BYTE), l.Attribs[ArrayColor].Type)
	assert.Equal(t, uint32(glapi.HALF_FLOAT), l.Attribs[ArrayTexUV].Type)

	half := Layout(FormatVertex|CompressVertex, 1, false)
	assert.Equal(t, 8, half.Stride)
	assert.Equal(t, int32(4), half.Attribs[ArrayVertex].Size)

	flat := Layout(FormatVertex|FlagUse2DVertices, 1, false)
	assert.Equal(t, 8, flat.Stride)
	assert.Equal(t, int32(2), flat.Attribs[ArrayVertex].Size)
}

func TestLayoutOctahedral(t *testing.T) {
	f := FormatVertex | FormatNormal | FormatTangent | CompressTangent | FlagUseOctahedralCompression
	l := Layout(f, 1, false)

	n := l.Attribs[ArrayNormal]
	assert.True(t, n.Enabled)
	assert.Equal(t, uint32(ArrayTangent), n.Index, "packed normal is read through the tangent slot")
	assert.Equal(t, uint32(glapi.BYTE), n.Type)
	assert.Equal(t, int32(4), n.Size)
	assert.False(t, l.Attribs[ArrayTangent].Enabled)
	assert.Equal(t, 16, l.Stride)

	wide := Layout(FormatVertex|FormatNormal|FormatTangent|FlagUseOctahedralCompression, 1, false)
	assert.Equal(t, uint32(glapi.SHORT), wide.Attribs[ArrayNormal].Type)
	assert.Equal(t, 20, wide.Stride)

	only := Layout(FormatVertex|FormatNormal|FlagUseOctahedralCompression, 1, false)
	assert.Equal(t, int32(2), only.Attribs[ArrayNormal].Size)
	assert.Equal(t, uint32(glapi.SHORT), only.Attribs[ArrayNormal].Type)
}

func TestLayoutBones(t *testing.T) {
	l := Layout(FormatVertex|FormatBones|FormatWeights, 1, false)
	assert.True(t, l.Attribs[ArrayBones].Integer)
	assert.Equal(t, uint32(glapi.UNSIGNED_BYTE), l.Attribs[ArrayBones].Type)
	assert.Equal(t, 12+4+16, l.Stride)

	wide := Layout(FormatVertex|FormatBones|FormatWeights|FlagUse16BitBones|CompressWeights, 1, false)
	assert.Equal(t, uint32(glapi.UNSIGNED_SHORT), wide.Attribs[ArrayBones].Type)
	assert.Equal(t, uint32(glapi.UNSIGNED_SHORT), wide.Attribs[ArrayWeights].Type)
	assert.True(t, wide.Attribs[ArrayWeights].Normalized)
	assert.Equal(t, 12+8+8, wide.Stride)
}

func assertVec3Near(t *testing.T, want, got gmath.Vec3, delta float64, msg string) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, msg)
	assert.InDelta(t, want.Y, got.Y, delta, msg)
	assert.InDelta(t, want.Z, got.Z, delta, msg)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		format  ArrayFormat
		split   bool
		normal  float64
		tangent float64
		color   float64
		weight  float64
	}{
		{"uncompressed", 0, false, 1e-6, 1e-6, 1e-6, 1e-6},
		{"uncompressed split", 0, true, 1e-6, 1e-6, 1e-6, 1e-6},
		{"default compression", CompressDefault, false, 0.01, 0.01, 1.0 / 255, 1.0 / 65535},
		{"half vertices", CompressDefault | CompressVertex, true, 0.01, 0.01, 1.0 / 255, 1.0 / 65535},
		{"octahedral", CompressDefault | FlagUseOctahedralCompression, false, 0.03, 0.05, 1.0 / 255, 1.0 / 65535},
		{"octahedral wide", CompressColor | FlagUseOctahedralCompression, false, 0.001, 0.001, 1.0 / 255, 1e-6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := quadArrays()
			p, err := PackArrays(tc.format, src, tc.split)
			require.NoError(t, err)
			assert.Equal(t, 4, p.VertexCount)
			assert.Equal(t, 6, p.IndexCount)
			assert.Len(t, p.Vertices, p.Layout.Size)
			assert.Equal(t, src.Format(), p.Format&src.Format())

			got, err := UnpackArrays(p.Format, p.Vertices, p.VertexCount, p.Indices, p.IndexCount, tc.split)
			require.NoError(t, err)
			require.Len(t, got.Vertices, 4)
			require.Len(t, got.Normals, 4)
			require.Len(t, got.Tangents, 4)
			assert.Equal(t, src.Indices, got.Indices)
			assert.Equal(t, src.Bones, got.Bones)

			for i := range src.Vertices {
				assertVec3Near(t, src.Vertices[i], got.Vertices[i], 1e-3, "vertex")
				assertVec3Near(t, src.Normals[i], got.Normals[i], tc.normal, "normal")
				st, gt := src.Tangents[i], got.Tangents[i]
				assertVec3Near(t, gmath.NewVec3(st.X, st.Y, st.Z), gmath.NewVec3(gt.X, gt.Y, gt.Z), tc.tangent, "tangent")
				assert.Equal(t, st.W, gt.W, "bitangent sign")
				for k, c := range src.Colors[i].Array() {
					assert.InDelta(t, c, got.Colors[i].Array()[k], tc.color, "color")
				}
				assert.InDelta(t, src.UV[i].X, got.UV[i].X, 1e-3)
				assert.InDelta(t, src.UV2[i].Y, got.UV2[i].Y, 1e-3)
				for k, w := range src.Weights[i] {
					assert.InDelta(t, w, got.Weights[i][k], tc.weight, "weight")
				}
			}
		})
	}
}

func TestPackArraysAABB(t *testing.T) {
	p, err := PackArrays(0, quadArrays(), false)
	require.NoError(t, err)
	assert.Equal(t, gmath.NewVec3(-1, -1, -0.25), p.AABB.Position)
	assert.Equal(t, gmath.NewVec3(2.5, 3, 0.75), p.AABB.Size)
}

func TestPack2DVertices(t *testing.T) {
	a := &SurfaceArrays{Vertices: []gmath.Vec3{gmath.NewVec3(1, 2, 9), gmath.NewVec3(3, 4, 9)}}
	p, err := PackArrays(FlagUse2DVertices, a, false)
	require.NoError(t, err)
	assert.Len(t, p.Vertices, 16)

	got, err := UnpackArrays(p.Format, p.Vertices, 2, nil, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []gmath.Vec3{gmath.NewVec3(1, 2, 0), gmath.NewVec3(3, 4, 0)}, got.Vertices)
}

func TestPackArraysRejectsBadInput(t *testing.T) {
	_, err := PackArrays(0, &SurfaceArrays{}, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	a := triangleArrays()
	a.UV = []gmath.Vec2{{}}
	_, err = PackArrays(0, a, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	a = triangleArrays()
	a.Indices = []uint32{0, 1, 3}
	_, err = PackArrays(0, a, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	a = quadArrays()
	a.Bones[0][0] = 300
	_, err = PackArrays(0, a, false)
	assert.ErrorIs(t, err, ErrInvalidArgument, "8-bit bones")
	_, err = PackArrays(FlagUse16BitBones, a, false)
	assert.NoError(t, err)
}

func TestUnpackArraysShortBuffer(t *testing.T) {
	_, err := UnpackArrays(FormatVertex|FormatNormal, make([]byte, 10), 1, nil, 0, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOctahedralRoundTrip(t *testing.T) {
	for _, n := range []gmath.Vec3{
		gmath.NewVec3(0, 0, 1), gmath.NewVec3(0, 0, -1), gmath.NewVec3(1, 0, 0),
		gmath.NewVec3(-1, 2, -3).Normalize(), gmath.NewVec3(0.3, -0.4, 0.5).Normalize(),
	} {
		assertVec3Near(t, n, OctDecode(OctEncode(n)), 1e-5, "octahedral")
	}
}
