package opengl

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

const (
	probeZNear       = 0.01
	probeDefaultFar  = 100
	probeSamplesLow  = 64
	probeSamplesHigh = 256
)

// renderReflectionProbes advances the probe that is being captured, or
// starts the first probe needing a redraw. Probes updating once draw one
// face per frame; probes updating always draw all six at once. Probes
// whose slots hold a reflection are marked used first so a new probe
// never takes a slot the frame samples.
func (r *Renderer) renderReflectionProbes(fs *FrameState, env *storage.Environment, sa *storage.ShadowAtlas, ra *storage.ReflectionAtlas) {
	if ra == nil || ra.Size <= 0 || len(fs.ReflectionProbes) == 0 {
		return
	}
	reg := r.st.Registry()
	for _, e := range fs.ReflectionProbes {
		if r.st.ReflectionProbeInstanceHasReflection(e) {
			r.st.ReflectionProbeInstanceMarkUsed(e)
		}
	}

	target := ecs.Null
	for _, e := range fs.ReflectionProbes {
		pi := ecs.Get[storage.ReflectionProbeInstance](reg, e)
		if pi != nil && pi.RenderStep > 0 && pi.Atlas == fs.ReflectionAtlas && pi.AtlasIndex >= 0 {
			target = e
			break
		}
	}
	if target.IsNull() {
		for _, e := range fs.ReflectionProbes {
			if !r.st.ReflectionProbeInstanceNeedsRedraw(e) {
				continue
			}
			if err := r.st.ReflectionProbeInstanceBeginRender(e, fs.ReflectionAtlas); err != nil {
				if errors.Is(err, storage.ErrAtlasFull) {
					core.LogDebug("renderer: %v", err)
				} else {
					core.LogError("renderer: reflection probe %v: %v", e, err)
				}
				continue
			}
			target = e
			break
		}
	}
	if target.IsNull() {
		return
	}

	pi := ecs.Get[storage.ReflectionProbeInstance](reg, target)
	probe := r.st.ReflectionProbe(pi.Probe)
	if probe == nil {
		return
	}
	steps := 1
	if probe.UpdateMode == storage.ReflectionUpdateAlways {
		steps = storage.ReflectionRenderSteps - pi.RenderStep
	}
	for range steps {
		if err := r.renderProbeFace(fs, env, sa, ra, pi, probe); err != nil {
			core.LogError("renderer: reflection probe %v face %d: %v", target, pi.RenderStep, err)
			return
		}
		if !r.st.ReflectionProbeInstancePostprocessStep(target) {
			continue
		}
		if err := r.filterProbe(ra, pi); err != nil {
			core.LogError("renderer: reflection probe %v filter: %v", target, err)
		}
		break
	}
}

// probeCubemap is the pooled cubemap a probe slot captures into.
func (r *Renderer) probeCubemap(ra *storage.ReflectionAtlas, pi *storage.ReflectionProbeInstance) *storage.ReflectionCubemap {
	slot := ra.SlotRect(pi.AtlasIndex)
	return r.st.ReflectionCubemapFor(min(slot.Width, storage.ReflectionCubemapMaxSize))
}

// renderProbeFace draws face pi.RenderStep of a probe with a 90 degree
// camera at the probe origin.
func (r *Renderer) renderProbeFace(fs *FrameState, env *storage.Environment, sa *storage.ShadowAtlas, ra *storage.ReflectionAtlas, pi *storage.ReflectionProbeInstance, probe *storage.ReflectionProbe) error {
	cube := r.probeCubemap(ra, pi)
	if cube == nil {
		return fmt.Errorf("no reflection cubemaps: %w", storage.ErrInvalidArgument)
	}
	far := probe.MaxDistance
	if far <= 0 {
		far = probeDefaultFar
	}
	f := cubeFaces[pi.RenderStep]
	cam := Camera{
		Transform: gmath.Mat4CameraLookAt(gmath.Vec3Zero, f.dir, f.up).
			Mul(gmath.Mat4Translation(probe.OriginOffset)).
			Mul(pi.Transform),
		Projection: gmath.Mat4Perspective(math32.Pi/2, 1, probeZNear, far),
	}
	p := &scenePass{
		cam:      cam,
		camInv:   cam.Transform.Inverse(),
		env:      env,
		fbo:      cube.FaceFramebuffer(pi.RenderStep),
		width:    cube.Size,
		height:   cube.Size,
		zNear:    probeZNear,
		zFar:     far,
		sky:      r.radianceSky(env),
		time:     fs.Time,
		shadows:  probe.EnableShadows,
		dirLight: ecs.Null,
		cullMask: probe.CullMask,
	}
	if probe.EnableShadows {
		p.shadowAtlas = sa
	}
	r.setupScene(p, fs.Lights, nil)

	r.list.Clear()
	r.resetSlots()
	r.fill(p, fs.Instances)
	r.list.SortByKey()
	r.list.SortByReverseDepthAndPriority()

	d := r.dev
	d.BindFramebuffer(glapi.FRAMEBUFFER, p.fbo)
	d.Viewport(0, 0, int32(cube.Size), int32(cube.Size))
	r.bindSceneTextures(p)
	r.clearTarget(p)
	r.drawList(p, r.list.Opaque, false)
	r.drawExtraDirectional(p, r.list.Opaque, false)
	r.drawSky(p)
	r.drawList(p, r.list.Alpha, true)
	r.drawExtraDirectional(p, r.list.Alpha, true)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}

// filterProbe convolves the captured cubemap into every roughness level of
// the probe's atlas slot as two dual paraboloid halves stacked vertically.
func (r *Renderer) filterProbe(ra *storage.ReflectionAtlas, pi *storage.ReflectionProbeInstance) error {
	cube := r.probeCubemap(ra, pi)
	if cube == nil {
		return fmt.Errorf("no reflection cubemaps: %w", storage.ErrInvalidArgument)
	}
	sh := r.st.CubemapFilterShader()
	sh.SetConditionals(0)
	sh.SetConditional(storage.FilterUseDualParaboloid, true)
	sh.SetConditional(storage.FilterLowQuality, !r.cfg.HighQualityGGX)
	if _, err := sh.Bind(); err != nil {
		return err
	}
	samples := int32(probeSamplesLow)
	if r.cfg.HighQualityGGX {
		samples = probeSamplesHigh
	}

	d := r.dev
	d.Disable(glapi.DEPTH_TEST)
	d.Disable(glapi.CULL_FACE)
	d.Disable(glapi.BLEND)
	d.DepthMask(false)
	r.bindTex(storage.UnitSourceCube, glapi.TEXTURE_CUBE_MAP, cube.CubemapID())
	d.GenerateMipmap(glapi.TEXTURE_CUBE_MAP)

	slot := ra.SlotRect(pi.AtlasIndex)
	levels := ra.Levels()
	for l := range levels {
		d.BindFramebuffer(glapi.FRAMEBUFFER, ra.LevelFramebuffer(l))
		x, y := int32(slot.X>>l), int32(slot.Y>>l)
		w, h := int32(max(slot.Width>>l, 1)), int32(max(slot.Height>>l, 2))
		roughness := float32(0)
		if levels > 1 {
			roughness = float32(l) / float32(levels-1)
		}
		sh.Uniform1f(storage.FilterRoughness, roughness)
		sh.Uniform1i(storage.FilterSampleCount, samples)
		for half := range int32(2) {
			d.Viewport(x, y+half*h/2, w, h/2)
			sh.Uniform1i(storage.FilterZFlip, 1-half)
			r.st.DrawQuad()
		}
	}

	d.DepthMask(true)
	d.Enable(glapi.DEPTH_TEST)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}
