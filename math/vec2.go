package math

import "github.com/chewxy/math32"

// Vec2 is a 2-component float vector used for UVs, atlas coordinates and
// pixel sizes.
type Vec2 struct {
	X, Y float32
}

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vec2) Mul(scalar float32) Vec2 {
	return Vec2{X: v.X * scalar, Y: v.Y * scalar}
}

func (v Vec2) MulVec(other Vec2) Vec2 {
	return Vec2{X: v.X * other.X, Y: v.Y * other.Y}
}

func (v Vec2) Dot(other Vec2) float32 {
	return v.X*other.X + v.Y*other.Y
}

func (v Vec2) Length() float32 {
	return math32.Sqrt(v.X*v.X + v.Y*v.Y)
}

func (v Vec2) Normalize() Vec2 {
	length := v.Length()
	if length > 0 {
		return v.Mul(1.0 / length)
	}
	return v
}

func (v Vec2) Lerp(other Vec2, t float32) Vec2 {
	return v.Add(other.Sub(v).Mul(t))
}

// Abs returns the component-wise absolute value.
func (v Vec2) Abs() Vec2 {
	return Vec2{X: math32.Abs(v.X), Y: math32.Abs(v.Y)}
}
