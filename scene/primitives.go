// Package scene holds the host side of the demo: procedural primitives,
// glTF and OBJ import into the mesh store, a fly camera and frustum
// culling of instances.
package scene

import (
	"github.com/chewxy/math32"

	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// Box returns an axis aligned box of the given size centered at the origin
// with one flat face per side.
func Box(size gmath.Vec3) *storage.SurfaceArrays {
	h := size.Mul(0.5)
	faces := [6]struct{ n, u, v gmath.Vec3 }{
		{gmath.Vec3Right, gmath.Vec3Back, gmath.Vec3Up},
		{gmath.Vec3Left, gmath.Vec3Front, gmath.Vec3Up},
		{gmath.Vec3Up, gmath.Vec3Right, gmath.Vec3Back},
		{gmath.Vec3Down, gmath.Vec3Right, gmath.Vec3Front},
		{gmath.Vec3Front, gmath.Vec3Right, gmath.Vec3Up},
		{gmath.Vec3Back, gmath.Vec3Left, gmath.Vec3Up},
	}
	a := &storage.SurfaceArrays{}
	for _, f := range faces {
		base := uint32(len(a.Vertices))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.n.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).MulVec(h)
			a.Vertices = append(a.Vertices, p)
			a.Normals = append(a.Normals, f.n)
			a.UV = append(a.UV, gmath.NewVec2((c[0]+1)/2, (1-c[1])/2))
		}
		a.Indices = append(a.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	ComputeTangents(a)
	return a
}

// Sphere returns a UV sphere.
func Sphere(radius float32, segments, rings int) *storage.SurfaceArrays {
	segments, rings = max(segments, 3), max(rings, 2)
	a := &storage.SurfaceArrays{}
	for ring := 0; ring <= rings; ring++ {
		sinPhi, cosPhi := math32.Sincos(float32(ring) * math32.Pi / float32(rings))
		for seg := 0; seg <= segments; seg++ {
			sinTheta, cosTheta := math32.Sincos(float32(seg) * 2 * math32.Pi / float32(segments))
			n := gmath.NewVec3(sinPhi*cosTheta, cosPhi, -sinPhi*sinTheta)
			a.Vertices = append(a.Vertices, n.Mul(radius))
			a.Normals = append(a.Normals, n)
			a.UV = append(a.UV, gmath.NewVec2(float32(seg)/float32(segments), float32(ring)/float32(rings)))
		}
	}
	a.Indices = gridIndices(rings, segments)
	ComputeTangents(a)
	return a
}

// Torus returns a torus around the Y axis.
func Torus(majorRadius, minorRadius float32, majorSegments, minorSegments int) *storage.SurfaceArrays {
	majorSegments, minorSegments = max(majorSegments, 3), max(minorSegments, 3)
	a := &storage.SurfaceArrays{}
	for i := 0; i <= majorSegments; i++ {
		sinTheta, cosTheta := math32.Sincos(float32(i) * 2 * math32.Pi / float32(majorSegments))
		for j := 0; j <= minorSegments; j++ {
			sinPhi, cosPhi := math32.Sincos(float32(j) * 2 * math32.Pi / float32(minorSegments))
			r := majorRadius + minorRadius*cosPhi
			a.Vertices = append(a.Vertices, gmath.NewVec3(r*cosTheta, minorRadius*sinPhi, -r*sinTheta))
			a.Normals = append(a.Normals, gmath.NewVec3(cosPhi*cosTheta, sinPhi, -cosPhi*sinTheta).Normalize())
			a.UV = append(a.UV, gmath.NewVec2(float32(i)/float32(majorSegments), float32(j)/float32(minorSegments)))
		}
	}
	a.Indices = gridIndices(majorSegments, minorSegments)
	ComputeTangents(a)
	return a
}

// Plane returns a subdivided plane on XZ facing up.
func Plane(width, depth float32, subdivisions int) *storage.SurfaceArrays {
	subdivisions = max(subdivisions, 1)
	a := &storage.SurfaceArrays{}
	for z := 0; z <= subdivisions; z++ {
		for x := 0; x <= subdivisions; x++ {
			u, v := float32(x)/float32(subdivisions), float32(z)/float32(subdivisions)
			a.Vertices = append(a.Vertices, gmath.NewVec3((u-0.5)*width, 0, (v-0.5)*depth))
			a.Normals = append(a.Normals, gmath.Vec3Up)
			a.UV = append(a.UV, gmath.NewVec2(u, v))
		}
	}
	a.Indices = gridIndices(subdivisions, subdivisions)
	ComputeTangents(a)
	return a
}

// Cylinder returns a capped cylinder along Y centered at the origin.
func Cylinder(radius, height float32, segments int) *storage.SurfaceArrays {
	segments = max(segments, 3)
	a := &storage.SurfaceArrays{}
	for ring := 0; ring <= 1; ring++ {
		y := (0.5 - float32(ring)) * height
		for seg := 0; seg <= segments; seg++ {
			s, c := math32.Sincos(float32(seg) * 2 * math32.Pi / float32(segments))
			a.Vertices = append(a.Vertices, gmath.NewVec3(c*radius, y, -s*radius))
			a.Normals = append(a.Normals, gmath.NewVec3(c, 0, -s))
			a.UV = append(a.UV, gmath.NewVec2(float32(seg)/float32(segments), float32(ring)))
		}
	}
	a.Indices = gridIndices(1, segments)

	for _, side := range [2]float32{1, -1} {
		n := gmath.Vec3Up.Mul(side)
		center := uint32(len(a.Vertices))
		a.Vertices = append(a.Vertices, n.Mul(height/2))
		a.Normals = append(a.Normals, n)
		a.UV = append(a.UV, gmath.NewVec2(0.5, 0.5))
		for seg := 0; seg <= segments; seg++ {
			s, c := math32.Sincos(float32(seg) * 2 * math32.Pi / float32(segments))
			a.Vertices = append(a.Vertices, gmath.NewVec3(c*radius, side*height/2, -s*radius))
			a.Normals = append(a.Normals, n)
			a.UV = append(a.UV, gmath.NewVec2(c*0.5+0.5, s*0.5+0.5))
		}
		for seg := uint32(1); seg <= uint32(segments); seg++ {
			if side > 0 {
				a.Indices = append(a.Indices, center, center+seg, center+seg+1)
			} else {
				a.Indices = append(a.Indices, center, center+seg+1, center+seg)
			}
		}
	}
	ComputeTangents(a)
	return a
}

// gridIndices triangulates a (rows+1) x (cols+1) vertex grid.
func gridIndices(rows, cols int) []uint32 {
	idx := make([]uint32, 0, rows*cols*6)
	stride := uint32(cols + 1)
	for r := range uint32(rows) {
		for c := range uint32(cols) {
			cur := r*stride + c
			next := cur + stride
			idx = append(idx, cur, next, cur+1, cur+1, next, next+1)
		}
	}
	return idx
}
