package math

import "github.com/chewxy/math32"

// Mat4Perspective builds a GL perspective projection (clip z in [-w, w]).
func Mat4Perspective(fovY, aspect, near, far float32) Mat4 {
	tanHalfFovy := math32.Tan(fovY / 2)

	m := Mat4Zero()
	m[0][0] = 1 / (aspect * tanHalfFovy)
	m[1][1] = 1 / tanHalfFovy
	m[2][2] = -(far + near) / (far - near)
	m[2][3] = -1
	m[3][2] = -(2 * far * near) / (far - near)
	return m
}

// Mat4Frustum builds an off-axis perspective projection, used for
// asymmetric (VR / tiled) views.
func Mat4Frustum(left, right, bottom, top, near, far float32) Mat4 {
	m := Mat4Zero()
	m[0][0] = 2 * near / (right - left)
	m[1][1] = 2 * near / (top - bottom)
	m[2][0] = (right + left) / (right - left)
	m[2][1] = (top + bottom) / (top - bottom)
	m[2][2] = -(far + near) / (far - near)
	m[2][3] = -1
	m[3][2] = -(2 * far * near) / (far - near)
	return m
}

func Mat4Orthographic(left, right, bottom, top, near, far float32) Mat4 {
	m := Mat4Identity()
	m[0][0] = 2 / (right - left)
	m[1][1] = 2 / (top - bottom)
	m[2][2] = -2 / (far - near)
	m[3][0] = -(right + left) / (right - left)
	m[3][1] = -(top + bottom) / (top - bottom)
	m[3][2] = -(far + near) / (far - near)
	return m
}

// IsOrthogonal reports a projection without perspective divide.
func IsOrthogonal(p Mat4) bool {
	return p[2][3] == 0
}

// ProjectionZNear recovers the near plane distance.
func ProjectionZNear(p Mat4) float32 {
	if IsOrthogonal(p) {
		return (p[3][2] + 1) / p[2][2]
	}
	return p[3][2] / (p[2][2] - 1)
}

// ProjectionZFar recovers the far plane distance.
func ProjectionZFar(p Mat4) float32 {
	if IsOrthogonal(p) {
		return (p[3][2] - 1) / p[2][2]
	}
	return p[3][2] / (p[2][2] + 1)
}

// ProjectionEndpoints returns the 8 view-space frustum corners: near plane
// first (4), then far plane (4), each ordered like AABB.Corner on x/y.
func ProjectionEndpoints(p Mat4) [8]Vec3 {
	inv := p.Inverse()
	var out [8]Vec3
	for i := 0; i < 8; i++ {
		x := float32(-1)
		if i&1 != 0 {
			x = 1
		}
		y := float32(-1)
		if i&2 != 0 {
			y = 1
		}
		z := float32(-1)
		if i >= 4 {
			z = 1
		}
		out[i] = inv.MulVec3(Vec3{X: x, Y: y, Z: z})
	}
	return out
}

// ProjectionPixelsPerUnit returns how many pixels a unit-sized object covers
// at the near plane for a viewport of the given width; used to size shadow
// atlas requests.
func ProjectionPixelsPerUnit(p Mat4, width int) float32 {
	ep := ProjectionEndpoints(p)
	w := ep[1].X - ep[0].X
	if w == 0 {
		return 0
	}
	return float32(width) / w
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}

// NextPowerOf2 rounds v up to a power of two (1 for v <= 1).
func NextPowerOf2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}
	return p
}
