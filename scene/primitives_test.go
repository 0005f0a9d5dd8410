package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// assertOutwardWinding checks every non-degenerate triangle is counter
// clockwise seen from the side its vertex normals point to.
func assertOutwardWinding(t *testing.T, a *storage.SurfaceArrays) {
	t.Helper()
	require.Zero(t, len(a.Indices)%3)
	for i := 0; i < len(a.Indices); i += 3 {
		i0, i1, i2 := a.Indices[i], a.Indices[i+1], a.Indices[i+2]
		face := a.Vertices[i1].Sub(a.Vertices[i0]).Cross(a.Vertices[i2].Sub(a.Vertices[i0]))
		if face.LengthSqr() < 1e-10 {
			continue
		}
		n := a.Normals[i0].Add(a.Normals[i1]).Add(a.Normals[i2])
		if !assert.Positive(t, face.Dot(n), "triangle %d", i/3) {
			return
		}
	}
}

func assertTangentFrame(t *testing.T, a *storage.SurfaceArrays) {
	t.Helper()
	require.Len(t, a.Tangents, len(a.Vertices))
	for i, tg := range a.Tangents {
		v := gmath.NewVec3(tg.X, tg.Y, tg.Z)
		assert.InDelta(t, 1, v.Length(), 1e-3, "tangent %d", i)
		assert.InDelta(t, 0, v.Dot(a.Normals[i]), 1e-3, "tangent %d", i)
		assert.Contains(t, []float32{-1, 1}, tg.W)
	}
}

func TestPrimitives(t *testing.T) {
	cases := []struct {
		name     string
		arrays   *storage.SurfaceArrays
		vertices int
		indices  int
	}{
		{"box", Box(gmath.NewVec3(2, 4, 6)), 24, 36},
		{"sphere", Sphere(1, 16, 8), 17 * 9, 16 * 8 * 6},
		{"torus", Torus(1, 0.25, 12, 6), 13 * 7, 12 * 6 * 6},
		{"plane", Plane(10, 10, 4), 25, 4 * 4 * 6},
		{"cylinder", Cylinder(1, 2, 8), 2*9 + 2*10, 8*6 + 2*8*3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.arrays
			assert.Len(t, a.Vertices, tc.vertices)
			assert.Len(t, a.Indices, tc.indices)
			require.Len(t, a.Normals, len(a.Vertices))
			require.Len(t, a.UV, len(a.Vertices))
			for _, idx := range a.Indices {
				require.Less(t, int(idx), len(a.Vertices))
			}
			assertOutwardWinding(t, a)
			assertTangentFrame(t, a)
		})
	}
}

func TestBoxExtents(t *testing.T) {
	a := Box(gmath.NewVec3(2, 4, 6))
	var b gmath.AABB
	for i, v := range a.Vertices {
		if i == 0 {
			b = gmath.AABB{Position: v}
			continue
		}
		b = b.Expand(v)
	}
	assert.Equal(t, gmath.NewVec3(-1, -2, -3), b.Position)
	assert.Equal(t, gmath.NewVec3(2, 4, 6), b.Size)
}

func TestSphereRadius(t *testing.T) {
	for _, v := range Sphere(3, 8, 4).Vertices {
		assert.InDelta(t, 3, v.Length(), 1e-4)
	}
}

func TestPrimitiveSegmentsClamped(t *testing.T) {
	a := Torus(1, 0.5, 0, 1)
	assert.Len(t, a.Vertices, 4*4)
	assert.Len(t, Sphere(1, 1, 1).Indices, 3*2*6)
}

func TestComputeTangentsFollowsU(t *testing.T) {
	a := &storage.SurfaceArrays{
		Vertices: []gmath.Vec3{{X: 0}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		Normals:  []gmath.Vec3{gmath.Vec3Front, gmath.Vec3Front, gmath.Vec3Front, gmath.Vec3Front},
		UV:       []gmath.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
	ComputeTangents(a)
	require.Len(t, a.Tangents, 4)
	for _, tg := range a.Tangents {
		assert.InDelta(t, 1, tg.X, 1e-5)
		assert.InDelta(t, 0, tg.Y, 1e-5)
		assert.Equal(t, float32(1), tg.W)
	}

	// Mirrored V flips the bitangent sign.
	for i := range a.UV {
		a.UV[i].Y = 1 - a.UV[i].Y
	}
	ComputeTangents(a)
	for _, tg := range a.Tangents {
		assert.Equal(t, float32(-1), tg.W)
	}
}

func TestComputeTangentsNeedsUVs(t *testing.T) {
	a := &storage.SurfaceArrays{
		Vertices: []gmath.Vec3{{}, {X: 1}, {Y: 1}},
		Normals:  []gmath.Vec3{gmath.Vec3Front, gmath.Vec3Front, gmath.Vec3Front},
	}
	ComputeTangents(a)
	assert.Nil(t, a.Tangents)
}

func TestComputeTangentsDegenerateUV(t *testing.T) {
	a := &storage.SurfaceArrays{
		Vertices: []gmath.Vec3{{}, {X: 1}, {Y: 1}},
		Normals:  []gmath.Vec3{gmath.Vec3Up, gmath.Vec3Up, gmath.Vec3Up},
		UV:       make([]gmath.Vec2, 3),
	}
	ComputeTangents(a)
	for _, tg := range a.Tangents {
		v := gmath.NewVec3(tg.X, tg.Y, tg.Z)
		assert.InDelta(t, 1, v.Length(), 1e-5)
		assert.InDelta(t, 0, math32.Abs(v.Dot(gmath.Vec3Up)), 1e-5)
	}
}
