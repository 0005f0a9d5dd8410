package math

import "github.com/chewxy/math32"

// Mat4 is a 4x4 matrix in row-vector convention: a point p is transformed as
// p * M, so a model-view-projection chain reads model.Mul(view).Mul(proj).
// Translation lives in row 3. The memory order of Mat4 is what OpenGL expects
// for a column-major upload with transpose=false.
type Mat4 [4][4]float32

func Mat4Identity() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

func Mat4Zero() Mat4 {
	return Mat4{}
}

func (m Mat4) Mul(other Mat4) Mat4 {
	var result Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += m[i][k] * other[k][j]
			}
			result[i][j] = s
		}
	}
	return result
}

func (m Mat4) MulVec(v Vec4) Vec4 {
	return v.MulMat(m)
}

// MulVec3 transforms a point (w=1) and divides by w.
func (m Mat4) MulVec3(v Vec3) Vec3 {
	return m.MulVec(v.ToVec4(1.0)).ToVec3DivW()
}

// MulDir transforms a direction (w=0); translation is ignored.
func (m Mat4) MulDir(v Vec3) Vec3 {
	return m.MulVec(v.ToVec4(0)).ToVec3()
}

func (m Mat4) Transpose() Mat4 {
	return Mat4{
		{m[0][0], m[1][0], m[2][0], m[3][0]},
		{m[0][1], m[1][1], m[2][1], m[3][1]},
		{m[0][2], m[1][2], m[2][2], m[3][2]},
		{m[0][3], m[1][3], m[2][3], m[3][3]},
	}
}

// Origin returns the translation row.
func (m Mat4) Origin() Vec3 {
	return Vec3{X: m[3][0], Y: m[3][1], Z: m[3][2]}
}

// Axis returns basis row i (0 = X, 1 = Y, 2 = Z).
func (m Mat4) Axis(i int) Vec3 {
	return Vec3{X: m[i][0], Y: m[i][1], Z: m[i][2]}
}

// Determinant3 returns the determinant of the upper 3x3 basis. A negative
// value means the transform mirrors geometry.
func (m Mat4) Determinant3() float32 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Flat returns the 16 floats in upload order.
func (m Mat4) Flat() [16]float32 {
	var out [16]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = m[i][j]
		}
	}
	return out
}

func Mat4Translation(translation Vec3) Mat4 {
	m := Mat4Identity()
	m[3][0] = translation.X
	m[3][1] = translation.Y
	m[3][2] = translation.Z
	return m
}

func Mat4Scale(scale Vec3) Mat4 {
	m := Mat4Identity()
	m[0][0] = scale.X
	m[1][1] = scale.Y
	m[2][2] = scale.Z
	return m
}

func Mat4RotationX(angle float32) Mat4 {
	c, s := math32.Cos(angle), math32.Sin(angle)
	return Mat4{
		{1, 0, 0, 0},
		{0, c, s, 0},
		{0, -s, c, 0},
		{0, 0, 0, 1},
	}
}

func Mat4RotationY(angle float32) Mat4 {
	c, s := math32.Cos(angle), math32.Sin(angle)
	return Mat4{
		{c, 0, -s, 0},
		{0, 1, 0, 0},
		{s, 0, c, 0},
		{0, 0, 0, 1},
	}
}

func Mat4RotationZ(angle float32) Mat4 {
	c, s := math32.Cos(angle), math32.Sin(angle)
	return Mat4{
		{c, s, 0, 0},
		{-s, c, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

func Mat4LookAt(eye, target, up Vec3) Mat4 {
	zAxis := eye.Sub(target).Normalize()
	xAxis := up.Cross(zAxis).Normalize()
	yAxis := zAxis.Cross(xAxis)

	return Mat4{
		{xAxis.X, yAxis.X, zAxis.X, 0},
		{xAxis.Y, yAxis.Y, zAxis.Y, 0},
		{xAxis.Z, yAxis.Z, zAxis.Z, 0},
		{-xAxis.Dot(eye), -yAxis.Dot(eye), -zAxis.Dot(eye), 1},
	}
}

// Mat4CameraLookAt returns the camera-to-world transform (the inverse of
// Mat4LookAt), the form stored on cameras, lights and probes.
func Mat4CameraLookAt(eye, target, up Vec3) Mat4 {
	zAxis := eye.Sub(target).Normalize()
	xAxis := up.Cross(zAxis).Normalize()
	yAxis := zAxis.Cross(xAxis)
	return Mat4{
		{xAxis.X, xAxis.Y, xAxis.Z, 0},
		{yAxis.X, yAxis.Y, yAxis.Z, 0},
		{zAxis.X, zAxis.Y, zAxis.Z, 0},
		{eye.X, eye.Y, eye.Z, 1},
	}
}

func Mat4TRS(translation, rotation, scale Vec3) Mat4 {
	return Mat4Scale(scale).Mul(Mat4Rotation(rotation)).Mul(Mat4Translation(translation))
}

func Mat4Rotation(euler Vec3) Mat4 {
	return Mat4RotationZ(euler.Z).Mul(Mat4RotationX(euler.X)).Mul(Mat4RotationY(euler.Y))
}

// Inverse returns the full 4x4 inverse, or identity when m is singular.
func (m Mat4) Inverse() Mat4 {
	a := m.Flat()
	var inv [16]float32

	inv[0] = a[5]*a[10]*a[15] - a[5]*a[11]*a[14] - a[9]*a[6]*a[15] + a[9]*a[7]*a[14] + a[13]*a[6]*a[11] - a[13]*a[7]*a[10]
	inv[4] = -a[4]*a[10]*a[15] + a[4]*a[11]*a[14] + a[8]*a[6]*a[15] - a[8]*a[7]*a[14] - a[12]*a[6]*a[11] + a[12]*a[7]*a[10]
	inv[8] = a[4]*a[9]*a[15] - a[4]*a[11]*a[13] - a[8]*a[5]*a[15] + a[8]*a[7]*a[13] + a[12]*a[5]*a[11] - a[12]*a[7]*a[9]
	inv[12] = -a[4]*a[9]*a[14] + a[4]*a[10]*a[13] + a[8]*a[5]*a[14] - a[8]*a[6]*a[13] - a[12]*a[5]*a[10] + a[12]*a[6]*a[9]
	inv[1] = -a[1]*a[10]*a[15] + a[1]*a[11]*a[14] + a[9]*a[2]*a[15] - a[9]*a[3]*a[14] - a[13]*a[2]*a[11] + a[13]*a[3]*a[10]
	inv[5] = a[0]*a[10]*a[15] - a[0]*a[11]*a[14] - a[8]*a[2]*a[15] + a[8]*a[3]*a[14] + a[12]*a[2]*a[11] - a[12]*a[3]*a[10]
	inv[9] = -a[0]*a[9]*a[15] + a[0]*a[11]*a[13] + a[8]*a[1]*a[15] - a[8]*a[3]*a[13] - a[12]*a[1]*a[11] + a[12]*a[3]*a[9]
	inv[13] = a[0]*a[9]*a[14] - a[0]*a[10]*a[13] - a[8]*a[1]*a[14] + a[8]*a[2]*a[13] + a[12]*a[1]*a[10] - a[12]*a[2]*a[9]
	inv[2] = a[1]*a[6]*a[15] - a[1]*a[7]*a[14] - a[5]*a[2]*a[15] + a[5]*a[3]*a[14] + a[13]*a[2]*a[7] - a[13]*a[3]*a[6]
	inv[6] = -a[0]*a[6]*a[15] + a[0]*a[7]*a[14] + a[4]*a[2]*a[15] - a[4]*a[3]*a[14] - a[12]*a[2]*a[7] + a[12]*a[3]*a[6]
	inv[10] = a[0]*a[5]*a[15] - a[0]*a[7]*a[13] - a[4]*a[1]*a[15] + a[4]*a[3]*a[13] + a[12]*a[1]*a[7] - a[12]*a[3]*a[5]
	inv[14] = -a[0]*a[5]*a[14] + a[0]*a[6]*a[13] + a[4]*a[1]*a[14] - a[4]*a[2]*a[13] - a[12]*a[1]*a[6] + a[12]*a[2]*a[5]
	inv[3] = -a[1]*a[6]*a[11] + a[1]*a[7]*a[10] + a[5]*a[2]*a[11] - a[5]*a[3]*a[10] - a[9]*a[2]*a[7] + a[9]*a[3]*a[6]
	inv[7] = a[0]*a[6]*a[11] - a[0]*a[7]*a[10] - a[4]*a[2]*a[11] + a[4]*a[3]*a[10] + a[8]*a[2]*a[7] - a[8]*a[3]*a[6]
	inv[11] = -a[0]*a[5]*a[11] + a[0]*a[7]*a[9] + a[4]*a[1]*a[11] - a[4]*a[3]*a[9] - a[8]*a[1]*a[7] + a[8]*a[3]*a[5]
	inv[15] = a[0]*a[5]*a[10] - a[0]*a[6]*a[9] - a[4]*a[1]*a[10] + a[4]*a[2]*a[9] + a[8]*a[1]*a[6] - a[8]*a[2]*a[5]

	det := a[0]*inv[0] + a[1]*inv[4] + a[2]*inv[8] + a[3]*inv[12]
	if det == 0 {
		return Mat4Identity()
	}
	det = 1 / det

	var out Mat4
	for i := 0; i < 16; i++ {
		out[i/4][i%4] = inv[i] * det
	}
	return out
}
