package scene

import (
	"github.com/chewxy/math32"

	gmath "gles3render/math"
	"gles3render/renderer"
)

// Camera is a perspective camera placed by a camera to world transform.
type Camera struct {
	Transform gmath.Mat4
	// FOV is the vertical field of view in radians.
	FOV    float32
	Aspect float32
	Near   float32
	Far    float32
}

// NewCamera returns a camera at the origin looking down -Z.
func NewCamera(fov, aspect, near, far float32) *Camera {
	return &Camera{Transform: gmath.Mat4Identity(), FOV: fov, Aspect: aspect, Near: near, Far: far}
}

// SetAspect follows a framebuffer resize.
func (c *Camera) SetAspect(width, height int) {
	if height > 0 {
		c.Aspect = float32(width) / float32(height)
	}
}

// Position returns the camera origin.
func (c *Camera) Position() gmath.Vec3 { return c.Transform.Origin() }

// LookAt places the camera at eye facing target.
func (c *Camera) LookAt(eye, target, up gmath.Vec3) {
	c.Transform = gmath.Mat4CameraLookAt(eye, target, up)
}

// Projection returns the projection matrix.
func (c *Camera) Projection() gmath.Mat4 {
	return gmath.Mat4Perspective(c.FOV, c.Aspect, c.Near, c.Far)
}

// View returns the camera as the renderer takes it.
func (c *Camera) View() renderer.Camera {
	return renderer.Camera{Transform: c.Transform, Projection: c.Projection()}
}

// ViewProjection returns world to clip space.
func (c *Camera) ViewProjection() gmath.Mat4 {
	return c.Transform.Inverse().Mul(c.Projection())
}

// OrbitCamera circles a target at a fixed distance.
type OrbitCamera struct {
	Camera
	Target   gmath.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
}

// NewOrbitCamera returns a camera looking at target from distance.
func NewOrbitCamera(target gmath.Vec3, distance, fov, aspect float32) *OrbitCamera {
	c := &OrbitCamera{
		Camera:   *NewCamera(fov, aspect, 0.1, 1000),
		Target:   target,
		Distance: distance,
		Pitch:    0.3,
	}
	c.update()
	return c
}

// Orbit turns the camera around the target by yaw and pitch radians.
func (c *OrbitCamera) Orbit(yaw, pitch float32) {
	c.Yaw += yaw
	c.Pitch += pitch
	c.update()
}

// Zoom moves the camera towards the target, stopping 0.1 units short.
func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance = max(c.Distance+delta, 0.1)
	c.update()
}

func (c *OrbitCamera) update() {
	c.Pitch = gmath.Clamp(c.Pitch, -1.5, 1.5)
	sp, cp := math32.Sincos(c.Pitch)
	sy, cy := math32.Sincos(c.Yaw)
	eye := c.Target.Add(gmath.NewVec3(cp*sy, sp, cp*cy).Mul(c.Distance))
	c.LookAt(eye, c.Target, gmath.Vec3Up)
}
