package opengl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// ErrNoShadowSlot is returned by RenderShadow for an omni or spot light
// that holds no slot in the atlas.
var ErrNoShadowSlot = errors.New("renderer: light has no shadow atlas slot")

// shadowZNear is the near plane of spot and cube shadow projections.
const shadowZNear = 0.05

// cubeFaces are the view directions and up vectors of the GL cubemap
// faces, in face order.
var cubeFaces = [6]struct{ dir, up gmath.Vec3 }{
	{gmath.Vec3Right, gmath.Vec3Down},
	{gmath.Vec3Left, gmath.Vec3Down},
	{gmath.Vec3Up, gmath.Vec3Front},
	{gmath.Vec3Down, gmath.Vec3Back},
	{gmath.Vec3Front, gmath.Vec3Down},
	{gmath.Vec3Back, gmath.Vec3Down},
}

// renderShadows redraws the shadow maps of the visible lights: the cascades
// of the first shadowed directional light every frame, and the atlas slots
// of omni and spot lights whose casters moved.
func (r *Renderer) renderShadows(fs *FrameState, sa *storage.ShadowAtlas) {
	reg := r.st.Registry()
	directionalDone := false
	for _, e := range fs.Lights {
		li := r.st.LightInstance(e)
		if li == nil {
			continue
		}
		l := ecs.Get[storage.Light](reg, li.Light)
		if l == nil || !l.Shadow {
			continue
		}

		if l.Type == storage.LightDirectional {
			if r.st.DirectionalShadow().Size <= 0 {
				continue
			}
			if directionalDone {
				core.LogOnce("directional-shadows", "renderer: only one directional light per frame casts shadows")
				continue
			}
			directionalDone = true
			r.setupDirectionalShadow(e, l, fs.Camera)
			drawn := true
			for i := range l.DirectionalShadowMode.Splits() {
				if err := r.RenderShadow(e, ecs.Null, i, fs.Instances); err != nil {
					core.LogDebug("renderer: directional shadow %v: %v", e, err)
					drawn = false
					break
				}
			}
			r.dirShadowed[e] = drawn
			continue
		}

		if sa == nil || sa.Size <= 0 {
			continue
		}
		stamp := r.shadowStamp(li, l, fs.Instances)
		_, redraw, err := r.st.ShadowAtlasUpdateLight(fs.ShadowAtlas, e, shadowCoverage(li, l, fs.Camera), stamp)
		if err != nil {
			if errors.Is(err, storage.ErrAtlasFull) {
				core.LogDebug("renderer: %v", err)
			} else {
				core.LogError("renderer: shadow slot for %v: %v", e, err)
			}
			delete(r.shadowStamps, e)
			continue
		}
		if prev, ok := r.shadowStamps[e]; ok && prev == stamp && !redraw {
			continue
		}
		r.setupLightShadow(e, l)
		drawn := true
		for i := range shadowPasses(l) {
			if err := r.RenderShadow(e, fs.ShadowAtlas, i, fs.Instances); err != nil {
				core.LogDebug("renderer: shadow %v pass %d: %v", e, i, err)
				drawn = false
				break
			}
		}
		if drawn {
			r.shadowStamps[e] = stamp
		} else {
			delete(r.shadowStamps, e)
		}
	}
}

// shadowPasses is the number of RenderShadow passes a light needs.
func shadowPasses(l *storage.Light) int {
	switch {
	case l.Type == storage.LightDirectional:
		return l.DirectionalShadowMode.Splits()
	case l.Type == storage.LightSpot:
		return 1
	case l.OmniShadowMode == storage.OmniShadowCube:
		return 6
	}
	return 2
}

// shadowCoverage estimates the fraction of the view a light's shadow
// spans, which sizes its atlas slot.
func shadowCoverage(li *storage.LightInstance, l *storage.Light, cam Camera) float32 {
	rng := l.Params[storage.LightParamRange]
	dist := li.Transform.Origin().Distance(cam.Transform.Origin())
	if dist <= rng {
		return 1
	}
	return gmath.Clamp(rng/dist, 0, 1)
}

// shadowStamp hashes everything a light's shadow map depends on: the light
// version, its transform and the transforms of the casters in range.
// Animated casters fold in the frame number so they redraw every frame.
func (r *Renderer) shadowStamp(li *storage.LightInstance, l *storage.Light, casters []ecs.Entity) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], l.Version)
	_, _ = h.Write(buf[:])
	hashMat4(h, li.Transform)

	bounds := r.st.LightGetAABB(li.Light).Transform(li.Transform)
	animated := false
	for _, e := range casters {
		in := r.st.Instance(e)
		if in == nil || !in.Visible || !in.CastsShadow {
			continue
		}
		if l.Type != storage.LightDirectional && !bounds.Intersects(in.TransformedAABB) {
			continue
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(e))
		_, _ = h.Write(buf[:])
		hashMat4(h, in.Transform)
		if !in.Skeleton.IsNull() || in.BaseType == storage.InstanceParticles || in.BaseType == storage.InstanceImmediate {
			animated = true
		}
	}
	if animated {
		binary.LittleEndian.PutUint64(buf[:], r.st.Frame())
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func hashMat4(h *xxhash.Digest, m gmath.Mat4) {
	var buf [64]byte
	for i, v := range m.Flat() {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, _ = h.Write(buf[:])
}

// setupLightShadow stores the projection of a spot or omni light.
func (r *Renderer) setupLightShadow(e ecs.Entity, l *storage.Light) {
	rng := max(l.Params[storage.LightParamRange], shadowZNear*2)
	var proj gmath.Mat4
	if l.Type == storage.LightSpot {
		fov := 2 * l.Params[storage.LightParamSpotAngle] * math32.Pi / 180
		proj = gmath.Mat4Perspective(min(fov, math32.Pi*0.99), 1, shadowZNear, rng)
	} else {
		proj = gmath.Mat4Perspective(math32.Pi/2, 1, shadowZNear, rng)
	}
	li := r.st.LightInstance(e)
	r.st.LightInstanceSetShadowTransform(e, 0, storage.ShadowTransform{
		Projection: proj,
		Transform:  li.Transform,
		Far:        rng,
		BiasScale:  1,
	})
}

// setupDirectionalShadow fits one orthographic view around each cascade of
// the camera frustum. Cascades end at the split offsets of the shadow
// distance.
func (r *Renderer) setupDirectionalShadow(e ecs.Entity, l *storage.Light, cam Camera) {
	li := r.st.LightInstance(e)
	splits := l.DirectionalShadowMode.Splits()
	zNear := gmath.ProjectionZNear(cam.Projection)
	zFar := gmath.ProjectionZFar(cam.Projection)
	maxDist := min(zFar, l.Params[storage.LightParamShadowMaxDistance])
	if maxDist <= zNear {
		maxDist = zFar
	}

	var dists [5]float32
	dists[0] = zNear
	dists[splits] = maxDist
	offsets := [3]float32{
		l.Params[storage.LightParamShadowSplit1Offset],
		l.Params[storage.LightParamShadowSplit2Offset],
		l.Params[storage.LightParamShadowSplit3Offset],
	}
	for i := 1; i < splits; i++ {
		dists[i] = max(zNear, maxDist*offsets[i-1])
	}

	ends := gmath.ProjectionEndpoints(cam.Projection)
	x := li.Transform.Axis(0).Normalize()
	y := li.Transform.Axis(1).Normalize()
	z := li.Transform.Axis(2).Normalize()
	ds := r.st.DirectionalShadow()

	var firstRadius float32
	for i := range splits {
		var pts [8]gmath.Vec3
		for j := range 4 {
			pts[j] = cam.Transform.MulVec3(depthPoint(ends[j], ends[j+4], dists[i]))
			pts[j+4] = cam.Transform.MulVec3(depthPoint(ends[j], ends[j+4], dists[i+1]))
		}
		var center gmath.Vec3
		for _, pt := range pts {
			center = center.Add(pt)
		}
		center = center.Div(8)
		var radius float32
		for _, pt := range pts {
			radius = max(radius, pt.Distance(center))
		}
		radius = max(radius, 0.001)
		if i == 0 {
			firstRadius = radius
		}

		// Snap to whole texels so the cascade does not shimmer as the
		// camera moves.
		rect := ds.CascadeRect(splits, i)
		texel := 2 * radius / float32(max(rect.Width, 1))
		cx, cy := center.Dot(x), center.Dot(y)
		center = center.Add(x.Mul(math32.Floor(cx/texel)*texel - cx)).Add(y.Mul(math32.Floor(cy/texel)*texel - cy))

		eye := center.Add(z.Mul(radius * 2))
		xf := gmath.Mat4{
			{x.X, x.Y, x.Z, 0},
			{y.X, y.Y, y.Z, 0},
			{z.X, z.Y, z.Z, 0},
			{eye.X, eye.Y, eye.Z, 1},
		}
		r.st.LightInstanceSetShadowTransform(e, i, storage.ShadowTransform{
			Projection: gmath.Mat4Orthographic(-radius, radius, -radius, radius, 0, radius*4),
			Transform:  xf,
			Far:        radius * 4,
			Split:      dists[i+1],
			BiasScale:  radius / firstRadius,
		})
	}
}

// depthPoint returns the point at view depth d on the frustum edge from
// near to far.
func depthPoint(near, far gmath.Vec3, d float32) gmath.Vec3 {
	span := near.Z - far.Z
	if span == 0 {
		return near
	}
	return near.Lerp(far, (d+near.Z)/span)
}

// RenderShadow draws one pass of a light's shadow map: a cascade of a
// directional light, a paraboloid half or cube face of an omni light, or
// the single view of a spot light. The light's shadow transforms must be
// set and, for omni and spot lights, it must hold a slot in atlas. Only
// the instances in cull are drawn.
func (r *Renderer) RenderShadow(light, atlas ecs.Entity, pass int, cull []ecs.Entity) error {
	reg := r.st.Registry()
	li := r.st.LightInstance(light)
	if li == nil {
		return fmt.Errorf("render shadow: light instance %v: %w", light, storage.ErrInvalidHandle)
	}
	l := ecs.Get[storage.Light](reg, li.Light)
	if l == nil {
		return fmt.Errorf("render shadow: light %v: %w", li.Light, storage.ErrInvalidHandle)
	}
	if pass < 0 || pass >= shadowPasses(l) {
		return fmt.Errorf("render shadow: pass %d of %v: %w", pass, light, storage.ErrInvalidArgument)
	}

	p := &scenePass{
		depth:       true,
		casters:     true,
		dirLight:    ecs.Null,
		cullMask:    l.CullMask,
		reverseCull: l.ReverseCullFace,
		zSlope:      l.Params[storage.LightParamShadowNormalBias],
		zOffset:     l.Params[storage.LightParamShadowBias],
	}
	var vp core.Rect2i

	if l.Type == storage.LightDirectional {
		ds := r.st.DirectionalShadow()
		if ds.Size <= 0 {
			return fmt.Errorf("render shadow: directional atlas has no size: %w", storage.ErrInvalidArgument)
		}
		st := li.ShadowTransforms[pass]
		split := l.Params[storage.LightParamShadowBiasSplitScale]
		p.cam = Camera{Transform: st.Transform, Projection: st.Projection, Orthogonal: true}
		p.zOffset *= 1 + (st.BiasScale-1)*split
		p.fbo = ds.FramebufferID()
		p.width, p.height = ds.Size, ds.Size
		vp = ds.CascadeRect(l.DirectionalShadowMode.Splits(), pass)
		li.DirectionalRect = vp
		return r.drawShadowPass(p, vp, cull)
	}

	sa := ecs.Get[storage.ShadowAtlas](reg, atlas)
	if sa == nil {
		return fmt.Errorf("render shadow: atlas %v: %w", atlas, storage.ErrInvalidHandle)
	}
	key, ok := sa.Key(light)
	if !ok {
		return fmt.Errorf("render shadow: %v: %w", light, ErrNoShadowSlot)
	}
	rect := sa.SlotRect(key)
	p.fbo = sa.FramebufferID()
	p.width, p.height = sa.Size, sa.Size
	st := li.ShadowTransforms[0]

	switch {
	case l.Type == storage.LightSpot:
		p.cam = Camera{Transform: li.Transform, Projection: st.Projection}
		vp = rect
	case l.OmniShadowMode == storage.OmniShadowCube:
		return r.renderShadowCubeFace(p, li, l, sa, rect, pass, cull)
	default:
		p.dp = true
		p.dpZFar = l.Params[storage.LightParamRange]
		p.dpSide = 1
		if pass == 1 {
			p.dpSide = -1
		}
		p.cam = Camera{Transform: li.Transform, Projection: st.Projection}
		vp = paraboloidHalf(rect, l.OmniShadowDetail, pass)
	}
	return r.drawShadowPass(p, vp, cull)
}

// paraboloidHalf returns the half of an omni slot that paraboloid side
// half renders into: side 0 holds the light's -Z hemisphere, side 1 the +Z
// one.
func paraboloidHalf(rect core.Rect2i, detail storage.OmniShadowDetail, half int) core.Rect2i {
	if detail == storage.OmniShadowDetailHorizontal {
		w := rect.Width / 2
		return core.Rect2i{X: rect.X + half*w, Y: rect.Y, Width: w, Height: rect.Height}
	}
	h := rect.Height / 2
	return core.Rect2i{X: rect.X, Y: rect.Y + half*h, Width: rect.Width, Height: h}
}

// drawShadowPass clears vp and draws the casters of p into it front to
// back.
func (r *Renderer) drawShadowPass(p *scenePass, vp core.Rect2i, cull []ecs.Entity) error {
	if vp.Width <= 0 || vp.Height <= 0 {
		return fmt.Errorf("render shadow: empty viewport %v: %w", vp, storage.ErrInvalidArgument)
	}
	p.camInv = p.cam.Transform.Inverse()
	if !p.dp {
		p.zNear, p.zFar = gmath.ProjectionZNear(p.cam.Projection), gmath.ProjectionZFar(p.cam.Projection)
	} else {
		p.zNear, p.zFar = 0, p.dpZFar
	}

	d := r.dev
	d.BindFramebuffer(glapi.FRAMEBUFFER, p.fbo)
	d.Viewport(int32(vp.X), int32(vp.Y), int32(vp.Width), int32(vp.Height))
	d.Enable(glapi.SCISSOR_TEST)
	d.Scissor(int32(vp.X), int32(vp.Y), int32(vp.Width), int32(vp.Height))
	d.DepthMask(true)
	d.ClearDepth(1)
	d.Clear(glapi.DEPTH_BUFFER_BIT)
	d.Disable(glapi.SCISSOR_TEST)

	r.writeSceneData(p)
	r.list.Clear()
	r.resetSlots()
	r.fill(p, cull)
	r.list.SortByDepth()
	r.drawElements(p, r.list.Opaque, listDepth)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}

// renderShadowCubeFace draws one face of an omni light into the pooled
// cubemap closest to the slot size. After the last face the cube is folded
// into the two paraboloid halves of the slot.
func (r *Renderer) renderShadowCubeFace(p *scenePass, li *storage.LightInstance, l *storage.Light, sa *storage.ShadowAtlas, rect core.Rect2i, face int, cull []ecs.Entity) error {
	cube := r.st.ShadowCubemapFor(rect.Width)
	if cube == nil {
		return fmt.Errorf("render shadow: no shadow cubemaps: %w", storage.ErrInvalidArgument)
	}
	f := cubeFaces[face]
	p.cam = Camera{
		Transform:  gmath.Mat4CameraLookAt(gmath.Vec3Zero, f.dir, f.up).Mul(li.Transform),
		Projection: li.ShadowTransforms[0].Projection,
	}
	p.fbo = cube.FaceFramebuffer(face)
	p.width, p.height = cube.Size, cube.Size
	if err := r.drawShadowPass(p, core.Rect2i{Width: cube.Size, Height: cube.Size}, cull); err != nil {
		return err
	}
	if face < len(cubeFaces)-1 {
		return nil
	}
	return r.copyCubeToDP(cube, sa, rect, l, li.ShadowTransforms[0].Projection)
}

// copyCubeToDP writes the depth of a shadow cubemap into both paraboloid
// halves of an atlas slot.
func (r *Renderer) copyCubeToDP(cube *storage.ShadowCubemap, sa *storage.ShadowAtlas, rect core.Rect2i, l *storage.Light, proj gmath.Mat4) error {
	sh := r.st.CopyShader()
	sh.SetConditionals(0)
	sh.SetConditional(storage.CopyCubeToDP, true)
	sh.SetConditional(storage.CopyUseSection, true)
	if _, err := sh.Bind(); err != nil {
		return fmt.Errorf("cube to paraboloid: %w", err)
	}

	d := r.dev
	d.BindFramebuffer(glapi.FRAMEBUFFER, sa.FramebufferID())
	d.Viewport(0, 0, int32(sa.Size), int32(sa.Size))
	d.ColorMask(false, false, false, false)
	d.DepthMask(true)
	d.Enable(glapi.DEPTH_TEST)
	d.DepthFunc(glapi.ALWAYS)
	d.Disable(glapi.CULL_FACE)
	d.Disable(glapi.BLEND)
	r.bindTex(storage.UnitSourceCube, glapi.TEXTURE_CUBE_MAP, cube.CubemapID())

	sh.Uniform1f(storage.CopyZNear, gmath.ProjectionZNear(proj))
	sh.Uniform1f(storage.CopyZFar, gmath.ProjectionZFar(proj))
	sh.Uniform1i(storage.CopyFlip, 0)
	for half := range 2 {
		s := paraboloidHalf(rect, l.OmniShadowDetail, half).Normalized(sa.Size)
		sh.Uniform4f(storage.CopySection, s.X, s.Y, s.Width, s.Height)
		sh.Uniform1i(storage.CopyZFlip, int32(b2f(half == 0)))
		r.st.DrawQuad()
	}

	d.ColorMask(true, true, true, true)
	d.DepthFunc(glapi.LEQUAL)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}
