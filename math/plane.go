package math

// Plane represents a half-space: dot(Normal, p) + D = 0.
// Normal points into the "inside" of a frustum.
type Plane struct {
	Normal Vec3
	D      float32
}

// DistanceTo returns the signed distance from a point to the plane.
func (p Plane) DistanceTo(pt Vec3) float32 {
	return p.Normal.Dot(pt) + p.D
}

// Frustum holds six clip planes: Left, Right, Bottom, Top, Near, Far.
type Frustum struct {
	Planes [6]Plane
}

// FrustumFromVP extracts normalized planes from a view-projection matrix
// (Gribb/Hartmann). GLSL sees the transpose of a Mat4, so the GLSL rows are
// the Go columns vp[i][0..3].
func FrustumFromVP(vp Mat4) Frustum {
	r := [4]Vec4{}
	for i := 0; i < 4; i++ {
		r[i] = Vec4{X: vp[0][i], Y: vp[1][i], Z: vp[2][i], W: vp[3][i]}
	}
	var f Frustum
	f.Planes[0] = normalizePlane(r[3].Add(r[0]))
	f.Planes[1] = normalizePlane(r[3].Sub(r[0]))
	f.Planes[2] = normalizePlane(r[3].Add(r[1]))
	f.Planes[3] = normalizePlane(r[3].Sub(r[1]))
	f.Planes[4] = normalizePlane(r[3].Add(r[2]))
	f.Planes[5] = normalizePlane(r[3].Sub(r[2]))
	return f
}

func normalizePlane(v Vec4) Plane {
	l := v.ToVec3().Length()
	if l == 0 {
		return Plane{}
	}
	return Plane{Normal: v.ToVec3().Div(l), D: v.W / l}
}
