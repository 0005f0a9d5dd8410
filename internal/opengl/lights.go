package opengl

import (
	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// forwardLists is the per-element scratch of light and probe indices
// uploaded as vec4 arrays.
type forwardLists struct {
	omni, spot, refl []float32
	nOmni, nSpot     int
	nRefl            int
}

func (f *forwardLists) reset(size int) {
	if len(f.omni) != size {
		f.omni = make([]float32, size)
		f.spot = make([]float32, size)
		f.refl = make([]float32, size)
	}
	clear(f.omni)
	clear(f.spot)
	clear(f.refl)
	f.nOmni, f.nSpot, f.nRefl = 0, 0, 0
}

// setupLights sorts the visible lights into the directional list and the
// omni and spot blocks.
func (r *Renderer) setupLights(p *scenePass, lights []ecs.Entity) {
	r.directional = r.directional[:0]
	clear(r.omniIndex)
	clear(r.spotIndex)
	p.useShadows = false
	p.contactShadows = false
	p.dirLight, p.dirShadow = ecs.Null, false

	reg := r.st.Registry()
	omni, spot := &r.omniUBO.w, &r.spotUBO.w
	omni.Reset()
	spot.Reset()
	for _, e := range lights {
		li := r.st.LightInstance(e)
		if li == nil {
			continue
		}
		l := ecs.Get[storage.Light](reg, li.Light)
		if l == nil {
			continue
		}
		if p.cullMask != 0 && l.CullMask&p.cullMask == 0 {
			continue
		}
		switch l.Type {
		case storage.LightDirectional:
			r.directional = append(r.directional, e)
		case storage.LightOmni:
			if len(r.omniIndex) >= r.lim.Lights {
				core.LogOnce("omni-overflow", "renderer: more than %d omni lights, the rest are ignored", r.lim.Lights)
				continue
			}
			r.omniIndex[e] = len(r.omniIndex)
			r.writeLight(p, omni, e, li, l)
		case storage.LightSpot:
			if len(r.spotIndex) >= r.lim.Lights {
				core.LogOnce("spot-overflow", "renderer: more than %d spot lights, the rest are ignored", r.lim.Lights)
				continue
			}
			r.spotIndex[e] = len(r.spotIndex)
			r.writeLight(p, spot, e, li, l)
		}
		if l.Params[storage.LightParamContactShadowSize] > 0 {
			p.contactShadows = true
		}
	}
	r.omniUBO.Upload()
	r.spotUBO.Upload()
}

// lightColor is the light color scaled by its energy, negated for
// subtractive lights.
func lightColor(l *storage.Light) (float32, float32, float32) {
	energy := l.Params[storage.LightParamEnergy]
	if l.Negative {
		energy = -energy
	}
	c := l.Color.Mul(energy)
	return c.R, c.G, c.B
}

// writeLight appends one LightData struct for an omni or spot light.
func (r *Renderer) writeLight(p *scenePass, w *std140, e ecs.Entity, li *storage.LightInstance, l *storage.Light) {
	rng := l.Params[storage.LightParamRange]
	pos := p.camInv.MulVec3(li.Transform.Origin())
	dir := p.camInv.MulDir(li.Transform.Axis(2).Negate()).Normalize()
	cr, cg, cb := lightColor(l)

	w.Struct()
	w.Vec3W(pos, 1/max(rng, 0.0001))
	w.Vec3W(dir, l.Params[storage.LightParamAttenuation])
	w.Vec4(cr, cg, cb, 0)

	var params [4]float32
	params[2] = l.Params[storage.LightParamSpecular]
	if l.Type == storage.LightSpot {
		params[0] = l.Params[storage.LightParamSpotAttenuation]
		params[1] = math32.Cos(l.Params[storage.LightParamSpotAngle] * math32.Pi / 180)
	} else if l.OmniShadowDetail == storage.OmniShadowDetailHorizontal {
		params[1] = 1
	}

	var clampRect core.Rect2
	matrix := gmath.Mat4Identity()
	if rect, ok := r.lightShadowRect(p, e, l); ok {
		params[3] = 1
		p.useShadows = true
		liInv := li.Transform.Inverse()
		if l.Type == storage.LightOmni {
			clampRect = rect
			if l.OmniShadowDetail == storage.OmniShadowDetailHorizontal {
				clampRect.Width /= 2
			} else {
				clampRect.Height /= 2
			}
			matrix = p.cam.Transform.Mul(liInv)
		} else {
			matrix = p.cam.Transform.Mul(liInv).Mul(li.ShadowTransforms[0].Projection).Mul(atlasBias(rect))
		}
	}
	w.Vec4(params[0], params[1], params[2], params[3])
	w.Vec4(clampRect.X, clampRect.Y, clampRect.Width, clampRect.Height)
	sc := l.ShadowColor
	w.Vec4(sc.R, sc.G, sc.B, l.Params[storage.LightParamContactShadowSize])
	w.Mat4(matrix)
}

// lightShadowRect returns the normalized atlas slot of a light whose shadow
// was drawn.
func (r *Renderer) lightShadowRect(p *scenePass, e ecs.Entity, l *storage.Light) (core.Rect2, bool) {
	if !l.Shadow || !p.shadows || p.shadowAtlas == nil || p.shadowAtlas.Size <= 0 {
		return core.Rect2{}, false
	}
	key, ok := p.shadowAtlas.Key(e)
	if !ok {
		return core.Rect2{}, false
	}
	if _, drawn := r.shadowStamps[e]; !drawn {
		return core.Rect2{}, false
	}
	return p.shadowAtlas.SlotRect(key).Normalized(p.shadowAtlas.Size), true
}

// writeDirectional fills the directional block for li, including its
// cascade matrices when its shadow was drawn this frame.
func (r *Renderer) writeDirectional(p *scenePass, e ecs.Entity) {
	li := r.st.LightInstance(e)
	if li == nil {
		return
	}
	l := ecs.Get[storage.Light](r.st.Registry(), li.Light)
	if l == nil {
		return
	}
	w := &r.directionalUBO.w
	w.Reset()
	dir := p.camInv.MulDir(li.Transform.Axis(2).Negate()).Normalize()
	cr, cg, cb := lightColor(l)
	shadow := p.shadows && l.Shadow && r.dirShadowed[e]
	splits := l.DirectionalShadowMode.Splits()

	w.Vec4(0, 0, 0, 0)
	w.Vec3W(dir, 1)
	w.Vec4(cr, cg, cb, 0)
	w.Vec4(0, 0, l.Params[storage.LightParamSpecular], b2f(shadow))
	w.Vec4(0, 0, 0, 0)
	sc := l.ShadowColor
	w.Vec4(sc.R, sc.G, sc.B, l.Params[storage.LightParamContactShadowSize])

	var offsets [4]float32
	ds := r.st.DirectionalShadow()
	for i := range 4 {
		m := gmath.Mat4Identity()
		if shadow && i < splits {
			st := li.ShadowTransforms[i]
			rect := ds.CascadeRect(splits, i).Normalized(ds.Size)
			m = p.cam.Transform.Mul(st.Transform.Inverse()).Mul(st.Projection).Mul(atlasBias(rect))
		}
		w.Mat4(m)
	}
	if shadow {
		for i := range 3 {
			offsets[i] = li.ShadowTransforms[min(i, splits-1)].Split
		}
		offsets[3] = li.ShadowTransforms[splits-1].Split
	}
	w.Vec4(offsets[0], offsets[1], offsets[2], offsets[3])
	r.directionalUBO.Upload()

	p.dirLight = e
	p.dirShadow = shadow
	p.dirSplits = splits
	p.blendSplits = l.BlendSplits
	if l.Params[storage.LightParamContactShadowSize] > 0 {
		p.contactShadows = true
	}
}

// atlasBias maps clip space [-1,1] into rect of a [0,1] texture, with
// depth mapped to [0,1].
func atlasBias(rect core.Rect2) gmath.Mat4 {
	var m gmath.Mat4
	m[0][0] = 0.5 * rect.Width
	m[1][1] = 0.5 * rect.Height
	m[2][2] = 0.5
	m[3][0] = 0.5*rect.Width + rect.X
	m[3][1] = 0.5*rect.Height + rect.Y
	m[3][2] = 0.5
	m[3][3] = 1
	return m
}

// setupReflections packs the probes that hold an atlas slot.
func (r *Renderer) setupReflections(p *scenePass, probes []ecs.Entity) {
	clear(r.reflectionIndex)
	w := &r.reflectionUBO.w
	w.Reset()
	if p.reflAtlas == nil || p.reflAtlas.Size <= 0 {
		r.reflectionUBO.Upload()
		return
	}
	reg := r.st.Registry()
	for _, e := range probes {
		if len(r.reflectionIndex) >= r.lim.Reflections {
			core.LogOnce("reflection-overflow", "renderer: more than %d reflection probes, the rest are ignored", r.lim.Reflections)
			break
		}
		if !r.st.ReflectionProbeInstanceHasReflection(e) {
			continue
		}
		pi := ecs.Get[storage.ReflectionProbeInstance](reg, e)
		if pi == nil || pi.AtlasIndex < 0 {
			continue
		}
		probe := r.st.ReflectionProbe(pi.Probe)
		if probe == nil {
			continue
		}
		r.reflectionIndex[e] = len(r.reflectionIndex)

		rect := p.reflAtlas.SlotRect(pi.AtlasIndex).Normalized(p.reflAtlas.Size)
		rect.Height /= 2
		amb := probe.InteriorAmbient

		w.Struct()
		w.Vec3W(probe.Extents, 0)
		w.Vec3W(probe.OriginOffset, 0)
		w.Vec4(probe.Intensity, 0, b2f(probe.Interior), b2f(probe.BoxProjection))
		w.Vec4(amb.R, amb.G, amb.B, probe.InteriorAmbientEnergy)
		w.Vec4(rect.X, rect.Y, rect.Width, rect.Height)
		w.Mat4(p.cam.Transform.Mul(pi.Transform.Inverse()))
	}
	r.reflectionUBO.Upload()
}
