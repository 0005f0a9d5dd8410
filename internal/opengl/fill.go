package opengl

import (
	"gles3render/internal/ecs"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
)

// maxMaterialPasses bounds next-pass chains.
const maxMaterialPasses = 8

// fill adds the elements of every drawable instance to the render list.
func (r *Renderer) fill(p *scenePass, instances []ecs.Entity) {
	reg := r.st.Registry()
	camOrigin := p.cam.Transform.Origin()
	camZ := p.cam.Transform.Axis(2)

	for _, e := range instances {
		in := r.st.Instance(e)
		if !r.instanceDrawn(p, in) {
			continue
		}
		depth := -in.TransformedAABB.Center().Sub(camOrigin).Dot(camZ)

		switch in.BaseType {
		case storage.InstanceMesh:
			mesh := ecs.Get[storage.Mesh](reg, in.Base)
			if mesh == nil {
				continue
			}
			r.addSurfaces(p, e, in, in.Base, mesh.Surfaces, depth)
		case storage.InstanceMultimesh:
			mm := ecs.Get[storage.Multimesh](reg, in.Base)
			if mm == nil || mm.DrawCount() == 0 {
				continue
			}
			if mesh := ecs.Get[storage.Mesh](reg, mm.Mesh); mesh != nil {
				r.addSurfaces(p, e, in, in.Base, mesh.Surfaces, depth)
			}
		case storage.InstanceImmediate:
			im := r.st.Immediate(in.Base)
			if im == nil || len(im.Chunks) == 0 {
				continue
			}
			r.addMaterialChain(p, e, in, in.Base, in.Base, in.SurfaceMaterial(0, im.Material), depth)
		case storage.InstanceParticles:
			pt := ecs.Get[storage.Particles](reg, in.Base)
			if pt == nil || pt.Amount == 0 {
				continue
			}
			for _, pass := range pt.DrawPasses {
				if mesh := ecs.Get[storage.Mesh](reg, pass); mesh != nil {
					r.addSurfaces(p, e, in, in.Base, mesh.Surfaces, depth)
				}
			}
		}
	}
}

// instanceDrawn applies the visibility, layer and shadow casting rules of
// the pass to one instance.
func (r *Renderer) instanceDrawn(p *scenePass, in *storage.Instance) bool {
	if in == nil || !in.Visible || !in.BaseType.Geometry() {
		return false
	}
	if p.cullMask != 0 && in.LayerMask&p.cullMask == 0 {
		return false
	}
	if p.casters {
		return in.CastsShadow
	}
	return in.CastShadows != storage.ShadowCastingShadowsOnly
}

func (r *Renderer) addSurfaces(p *scenePass, e ecs.Entity, in *storage.Instance, owner ecs.Entity, surfaces []ecs.Entity, depth float32) {
	reg := r.st.Registry()
	for i, sfe := range surfaces {
		sf := ecs.Get[storage.Surface](reg, sfe)
		if sf == nil || !sf.Active {
			continue
		}
		r.addMaterialChain(p, e, in, owner, sfe, in.SurfaceMaterial(i, sf.Material), depth)
	}
}

// addMaterialChain adds one element per pass of the material chain, then
// one for the instance overlay.
func (r *Renderer) addMaterialChain(p *scenePass, e ecs.Entity, in *storage.Instance, owner, geometry, material ecs.Entity, depth float32) {
	for range maxMaterialPasses {
		me, mat, sh := r.st.ResolveMaterial(material)
		if mat == nil || sh == nil {
			return
		}
		r.addElement(p, e, in, owner, geometry, me, mat, sh, depth)
		if p.depth || mat.NextPass.IsNull() {
			break
		}
		material = mat.NextPass
	}
	if p.depth || in.MaterialOverlay.IsNull() {
		return
	}
	if me, mat, sh := r.st.ResolveMaterial(in.MaterialOverlay); mat != nil && sh != nil {
		r.addElement(p, e, in, owner, geometry, me, mat, sh, depth)
	}
}

func (r *Renderer) addElement(p *scenePass, e ecs.Entity, in *storage.Instance, owner, geometry, me ecs.Entity, mat *storage.Material, sh *storage.Shader, depth float32) {
	props := sh.Spatial
	transparent := props.Transparent()
	if p.depth && !depthDrawn(props, transparent) {
		return
	}
	alpha := !p.depth && transparent

	el := r.list.Add(alpha)
	if el == nil {
		return
	}
	*el = Element{
		Instance: e,
		In:       in,
		Owner:    owner,
		Geometry: geometry,
		Material: me,
		Mat:      mat,
		Shader:   sh,
		Depth:    depth,
		DepthCode: props.WritesVertex || props.UsesDiscard || props.UsesAlphaScissor ||
			props.DepthDrawMode == shader.DepthDrawAlphaPrepass,
	}

	var shading, misc uint64
	if props.Unshaded {
		shading |= ShadingUnshaded
		misc |= FlagNoDirectional
	}
	if props.UsesVertexLight || r.cfg.ForceVertexShading {
		shading |= ShadingVertexLit
	}
	if len(in.GIProbes) > 0 {
		shading |= ShadingGI
	}
	if !in.Lightmap.IsNull() {
		shading |= ShadingLightmap
		if t := r.st.ResolveTexture(in.Lightmap); t != nil && t.Type == storage.TextureType2DArray {
			shading |= ShadingLightmapLayered
		}
	} else if in.UseLightmapCapture {
		shading |= ShadingLightmapCapture
	}
	if in.Mirror {
		misc |= FlagMirror
	}
	if props.CullMode == shader.CullDisabled {
		misc |= FlagCullDisabled
	}
	if props.DepthDrawMode == shader.DepthDrawAlphaPrepass {
		misc |= FlagOpaquePrepass
	}
	el.Key = SortKey(mat.RenderPriority, depthLayer(depth, p.zFar),
		slotOf(r.materialSlots, me), slotOf(r.geometrySlots, geometry), shading, misc)
}

// depthLayer buckets a view-space depth into one of the 256 key layers
// spanning [0, zFar]. Passes without a far plane use layer 0.
func depthLayer(depth, zFar float32) uint8 {
	if zFar <= 0 || depth <= 0 {
		return 0
	}
	return uint8(min(depth/zFar*256, 255))
}

// depthDrawn reports whether a material writes into depth-only passes.
func depthDrawn(props shader.SpatialProperties, transparent bool) bool {
	if props.NoDepthTest || props.DepthDrawMode == shader.DepthDrawNever {
		return false
	}
	if props.BlendMode != shader.BlendMix || props.UsesDepthTexture || props.UsesScreenTexture {
		return false
	}
	return !transparent || props.DepthDrawMode == shader.DepthDrawAlphaPrepass
}

// slotOf returns the per-list index of e, assigning the next one on first
// sight.
func slotOf(slots map[ecs.Entity]uint16, e ecs.Entity) uint16 {
	if i, ok := slots[e]; ok {
		return i
	}
	i := uint16(len(slots))
	slots[e] = i
	return i
}
