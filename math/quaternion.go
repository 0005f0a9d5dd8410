package math

import "github.com/chewxy/math32"

// Quaternion is a unit rotation. Instance and bone transforms are built from
// it before being packed into GPU buffers.
type Quaternion struct {
	X, Y, Z, W float32
}

func QuaternionIdentity() Quaternion {
	return Quaternion{X: 0, Y: 0, Z: 0, W: 1}
}

func NewQuaternion(x, y, z, w float32) Quaternion {
	return Quaternion{X: x, Y: y, Z: z, W: w}
}

func QuaternionFromAxisAngle(axis Vec3, angle float32) Quaternion {
	s, c := math32.Sincos(angle / 2)
	axis = axis.Normalize()
	return Quaternion{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: c}
}

func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

func (q Quaternion) Normalize() Quaternion {
	length := math32.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if length == 0 {
		return q
	}
	inv := 1 / length
	return Quaternion{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

func (q Quaternion) RotateVector(v Vec3) Vec3 {
	qVec := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := qVec.Cross(v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(qVec.Cross(t))
}

// ToMat4 returns the rotation in row-vector form.
func (q Quaternion) ToMat4() Mat4 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	return Mat4{
		{1 - 2*(yy+zz), 2 * (xy + wz), 2 * (xz - wy), 0},
		{2 * (xy - wz), 1 - 2*(xx+zz), 2 * (yz + wx), 0},
		{2 * (xz + wy), 2 * (yz - wx), 1 - 2*(xx+yy), 0},
		{0, 0, 0, 1},
	}
}

func (q Quaternion) Slerp(other Quaternion, t float32) Quaternion {
	dot := q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
	if dot < 0 {
		dot = -dot
		other = Quaternion{-other.X, -other.Y, -other.Z, -other.W}
	}
	if dot > 0.9995 {
		return Quaternion{
			X: q.X + (other.X-q.X)*t,
			Y: q.Y + (other.Y-q.Y)*t,
			Z: q.Z + (other.Z-q.Z)*t,
			W: q.W + (other.W-q.W)*t,
		}.Normalize()
	}

	theta0 := math32.Acos(dot)
	theta := theta0 * t
	sinTheta, cosTheta := math32.Sincos(theta)
	sinTheta0 := math32.Sin(theta0)

	s0 := cosTheta - dot*sinTheta/sinTheta0
	s1 := sinTheta / sinTheta0
	return Quaternion{
		X: q.X*s0 + other.X*s1,
		Y: q.Y*s0 + other.Y*s1,
		Z: q.Z*s0 + other.Z*s1,
		W: q.W*s0 + other.W*s1,
	}
}
