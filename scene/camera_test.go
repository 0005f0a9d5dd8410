package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"

	gmath "gles3render/math"
)

func assertVec3(t *testing.T, want, got gmath.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-4)
	assert.InDelta(t, want.Y, got.Y, 1e-4)
	assert.InDelta(t, want.Z, got.Z, 1e-4)
}

func TestCameraSetAspect(t *testing.T) {
	c := NewCamera(1, 1, 0.1, 10)
	c.SetAspect(1920, 1080)
	assert.InDelta(t, 16.0/9.0, c.Aspect, 1e-6)
	c.SetAspect(100, 0)
	assert.InDelta(t, 16.0/9.0, c.Aspect, 1e-6, "a zero height keeps the old aspect")
}

func TestCameraViewProjection(t *testing.T) {
	c := NewCamera(math32.Pi/2, 1, 1, 10)
	c.LookAt(gmath.NewVec3(0, 0, 5), gmath.Vec3{}, gmath.Vec3Up)
	assertVec3(t, gmath.NewVec3(0, 0, 5), c.Position())

	v := c.View()
	assert.Equal(t, c.Transform, v.Transform)
	assert.Equal(t, c.Projection(), v.Projection)

	// The target lands in the middle of the screen.
	clip := gmath.NewVec4(0, 0, 0, 1).MulMat(c.ViewProjection())
	assert.InDelta(t, 0, clip.X/clip.W, 1e-5)
	assert.InDelta(t, 0, clip.Y/clip.W, 1e-5)
	assert.Greater(t, clip.W, float32(0))
}

func TestOrbitCamera(t *testing.T) {
	target := gmath.NewVec3(1, 0, 0)
	c := NewOrbitCamera(target, 4, math32.Pi/3, 1)
	assert.InDelta(t, 4, c.Position().Sub(target).Length(), 1e-4)

	c.Orbit(math32.Pi/2, -c.Pitch)
	assertVec3(t, gmath.NewVec3(5, 0, 0), c.Position())

	c.Orbit(0, 10)
	assert.Equal(t, float32(1.5), c.Pitch, "pitch stops short of the pole")

	c.Zoom(-100)
	assert.Equal(t, float32(0.1), c.Distance)
	assert.InDelta(t, 0.1, c.Position().Sub(target).Length(), 1e-4)
}
