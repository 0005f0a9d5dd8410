package scene

import (
	"github.com/chewxy/math32"

	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// ComputeTangents fills a.Tangents from positions, normals and UVs for
// tangent space normal mapping. W carries the bitangent sign. Arrays
// without UVs or normals are left alone; triangles with a degenerate UV
// area are skipped.
func ComputeTangents(a *storage.SurfaceArrays) {
	n := len(a.Vertices)
	if n == 0 || len(a.UV) != n || len(a.Normals) != n {
		return
	}
	tan := make([]gmath.Vec3, n)
	bit := make([]gmath.Vec3, n)

	accum := func(i0, i1, i2 uint32) {
		p0, p1, p2 := a.Vertices[i0], a.Vertices[i1], a.Vertices[i2]
		uv0, uv1, uv2 := a.UV[i0], a.UV[i1], a.UV[i2]
		e1, e2 := p1.Sub(p0), p2.Sub(p0)
		du1, dv1 := uv1.X-uv0.X, uv1.Y-uv0.Y
		du2, dv2 := uv2.X-uv0.X, uv2.Y-uv0.Y

		denom := du1*dv2 - du2*dv1
		if denom == 0 {
			return
		}
		r := 1 / denom
		t := e1.Mul(dv2 * r).Sub(e2.Mul(dv1 * r))
		b := e2.Mul(du1 * r).Sub(e1.Mul(du2 * r))
		for _, i := range [3]uint32{i0, i1, i2} {
			tan[i] = tan[i].Add(t)
			bit[i] = bit[i].Add(b)
		}
	}
	if len(a.Indices) > 0 {
		for i := 0; i+2 < len(a.Indices); i += 3 {
			accum(a.Indices[i], a.Indices[i+1], a.Indices[i+2])
		}
	} else {
		for i := 0; i+2 < n; i += 3 {
			accum(uint32(i), uint32(i+1), uint32(i+2))
		}
	}

	a.Tangents = make([]gmath.Vec4, n)
	for i, nrm := range a.Normals {
		// Gram-Schmidt against the normal.
		t := tan[i].Sub(nrm.Mul(nrm.Dot(tan[i])))
		if t.LengthSqr() < 1e-8 {
			if math32.Abs(nrm.X) < 0.9 {
				t = gmath.Vec3Right.Sub(nrm.Mul(nrm.X))
			} else {
				t = gmath.Vec3Up.Sub(nrm.Mul(nrm.Y))
			}
		}
		t = t.Normalize()
		w := float32(1)
		if nrm.Cross(t).Dot(bit[i]) < 0 {
			w = -1
		}
		a.Tangents[i] = gmath.NewVec4(t.X, t.Y, t.Z, w)
	}
}
