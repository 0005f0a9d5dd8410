package opengl

import (
	"sort"

	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	"gles3render/internal/storage"
)

// listMode selects how drawElements treats a list.
type listMode int

const (
	listOpaque listMode = iota
	listAlpha
	// listDepth writes depth only, for prepasses and shadow maps.
	listDepth
)

// drawState is what the previous element left bound.
type drawState struct {
	material ecs.Entity
	geometry ecs.Entity
	conds    shader.Conditionals
	prog     *shader.Shader
	mat      *storage.Material
	ready    bool
	skip     bool
	first    bool
}

// drawList draws the opaque or alpha list of the current pass.
func (r *Renderer) drawList(p *scenePass, elems []*Element, alpha bool) {
	mode := listOpaque
	if alpha {
		mode = listAlpha
	}
	r.drawElements(p, elems, mode)
}

// drawDepthPrepass lays down depth for the opaque list and the alpha
// prepass materials so the color pass shades each pixel once.
func (r *Renderer) drawDepthPrepass(p *scenePass) {
	elems := append([]*Element(nil), r.list.Opaque...)
	for _, el := range r.list.Alpha {
		if KeyMisc(el.Key)&FlagOpaquePrepass != 0 {
			elems = append(elems, el)
		}
	}
	sort.SliceStable(elems, func(i, j int) bool { return elems[i].Depth < elems[j].Depth })
	r.drawElements(p, elems, listDepth)
}

func (r *Renderer) drawElements(p *scenePass, elems []*Element, mode listMode) {
	if len(elems) == 0 {
		return
	}
	d := r.dev
	d.Enable(glapi.DEPTH_TEST)
	d.DepthFunc(glapi.LEQUAL)
	if mode == listDepth {
		d.Disable(glapi.BLEND)
		d.ColorMask(false, false, false, false)
		d.DepthMask(true)
	} else if mode == listAlpha {
		d.Enable(glapi.BLEND)
	} else {
		d.Disable(glapi.BLEND)
	}
	if p.depth {
		d.DepthFunc(glapi.LESS)
	}

	st := drawState{first: true}
	for _, el := range elems {
		if p.additive && KeyMisc(el.Key)&FlagNoDirectional != 0 {
			continue
		}
		r.drawElement(p, &st, el, mode)
	}

	d.ColorMask(true, true, true, true)
	d.DepthMask(true)
	d.DepthFunc(glapi.LEQUAL)
	d.Enable(glapi.DEPTH_TEST)
	d.Disable(glapi.BLEND)
	d.Disable(glapi.CULL_FACE)
	d.FrontFace(glapi.CCW)
	d.BindVertexArray(0)
}

func (r *Renderer) drawElement(p *scenePass, st *drawState, el *Element, mode listMode) {
	material := el.Material
	if mode == listDepth && !el.DepthCode {
		material = r.st.DefaultMaterial
	}

	if st.first || material != st.material {
		st.prog, st.mat = r.st.BindMaterial(material)
		st.material = material
		st.first = false
		st.skip = st.prog == nil
		st.conds = ^shader.Conditionals(0)
		r.info.MaterialChanges++
		if !st.skip {
			r.applyMaterialState(p, el, st.mat, mode)
		}
	}
	if st.skip {
		return
	}
	r.setCull(p, el)

	conds := r.elementConditionals(p, el, mode)
	if conds != st.conds {
		st.prog.SetConditionals(conds)
		ready, err := st.prog.Bind()
		st.conds = conds
		if err != nil {
			st.ready = false
			st.conds = ^shader.Conditionals(0)
			return
		}
		st.ready = ready
		if mode != listDepth {
			r.dev.ColorMask(ready, ready, ready, ready)
		}
		r.info.ShaderChanges++
	} else if st.prog.Active() == nil {
		return
	}

	r.setElementUniforms(p, st.prog, el, conds, mode)
	if el.Geometry != st.geometry {
		st.geometry = el.Geometry
		r.info.SurfaceChanges++
	}
	r.info.Objects++
	r.drawGeometry(p, el)
}

// applyMaterialState sets the blend, depth and line state of a material.
func (r *Renderer) applyMaterialState(p *scenePass, el *Element, mat *storage.Material, mode listMode) {
	d := r.dev
	props := el.Shader.Spatial
	if mode == listDepth {
		d.DepthMask(true)
		return
	}
	if props.NoDepthTest {
		d.Disable(glapi.DEPTH_TEST)
	} else {
		d.Enable(glapi.DEPTH_TEST)
	}
	switch mode {
	case listOpaque:
		d.DepthMask(props.DepthDrawMode != shader.DepthDrawNever)
		if p.additive {
			d.Enable(glapi.BLEND)
			d.BlendEquation(glapi.FUNC_ADD)
			d.BlendFunc(glapi.ONE, glapi.ONE)
			d.DepthMask(false)
		}
	case listAlpha:
		d.DepthMask(props.DepthDrawMode == shader.DepthDrawAlways)
		if p.additive {
			d.BlendEquation(glapi.FUNC_ADD)
			d.BlendFunc(glapi.SRC_ALPHA, glapi.ONE)
			d.DepthMask(false)
			break
		}
		setBlend(d, props.BlendMode, p.rt != nil && p.rt.Flags[storage.RenderTargetTransparent])
	}
	if mat != nil && mat.LineWidth > 0 {
		d.LineWidth(mat.LineWidth)
	}
}

// setBlend maps a material blend mode to GL blend state. Transparent
// targets keep their alpha channel accumulating.
func setBlend(d glapi.Device, m shader.BlendMode, transparent bool) {
	switch m {
	case shader.BlendAdd:
		d.BlendEquation(glapi.FUNC_ADD)
		d.BlendFunc(glapi.SRC_ALPHA, glapi.ONE)
	case shader.BlendSub:
		d.BlendEquation(glapi.FUNC_REVERSE_SUBTRACT)
		d.BlendFunc(glapi.SRC_ALPHA, glapi.ONE)
	case shader.BlendMul:
		d.BlendEquation(glapi.FUNC_ADD)
		d.BlendFunc(glapi.DST_COLOR, glapi.ZERO)
	default:
		d.BlendEquation(glapi.FUNC_ADD)
		if transparent {
			d.BlendFuncSeparate(glapi.SRC_ALPHA, glapi.ONE_MINUS_SRC_ALPHA, glapi.ONE, glapi.ONE_MINUS_SRC_ALPHA)
		} else {
			d.BlendFunc(glapi.SRC_ALPHA, glapi.ONE_MINUS_SRC_ALPHA)
		}
	}
}

// setCull applies the face culling of the element's material, mirrored
// instances and reversed shadow passes.
func (r *Renderer) setCull(p *scenePass, el *Element) {
	d := r.dev
	mode := el.Shader.Spatial.CullMode
	if p.depth && el.In.CastShadows == storage.ShadowCastingDoubleSided {
		mode = shader.CullDisabled
	}
	if mode == shader.CullDisabled {
		d.Disable(glapi.CULL_FACE)
		return
	}
	d.Enable(glapi.CULL_FACE)
	front := mode == shader.CullFront
	if p.reverseCull {
		front = !front
	}
	if front {
		d.CullFace(glapi.FRONT)
	} else {
		d.CullFace(glapi.BACK)
	}
	if el.In.Mirror {
		d.FrontFace(glapi.CW)
	} else {
		d.FrontFace(glapi.CCW)
	}
}

// elementConditionals selects the scene program variant of one element.
func (r *Renderer) elementConditionals(p *scenePass, el *Element, mode listMode) shader.Conditionals {
	var c shader.Conditionals
	in := el.In
	instanced := in.BaseType == storage.InstanceMultimesh || in.BaseType == storage.InstanceParticles
	c = c.With(shader.SceneUseInstancing, instanced)
	c = c.With(shader.SceneUseSkeleton, r.skeletonTexture(in) != 0)
	if sf := ecs.Get[storage.Surface](r.st.Registry(), el.Geometry); sf != nil {
		c = c.With(shader.SceneEnableOctahedralCompression, sf.Format.Has(storage.FlagUseOctahedralCompression))
	}

	if mode == listDepth {
		c = c.With(shader.SceneRenderDepth, true)
		c = c.With(shader.SceneRenderDepthDualParaboloid, p.dp)
		c = c.With(shader.SceneUseDepthPrepass, KeyMisc(el.Key)&FlagOpaquePrepass != 0)
		return c
	}

	props := el.Shader.Spatial
	shading := KeyShading(el.Key)
	c = c.With(shader.SceneUseMultipleRenderTargets, p.mrt)
	c = c.With(shader.SceneUsePhysicalLightAttenuation, r.cfg.PhysicalLightAttenuation)
	if shading&ShadingUnshaded != 0 {
		return c.With(shader.SceneShadeless, true)
	}

	c = c.With(shader.SceneVCTQualityHigh, r.cfg.VCTHighQuality)
	c = c.With(shader.SceneUseVertexLighting, shading&ShadingVertexLit != 0)
	c = c.With(shader.SceneUseForwardLighting, !p.additive)

	dir := !p.dirLight.IsNull() && KeyMisc(el.Key)&FlagNoDirectional == 0
	c = c.With(shader.SceneUseLightDirectional, dir)
	shadows := !props.ShadowsDisabled && (p.useShadows && !p.additive || dir && p.dirShadow)
	c = c.With(shader.SceneUseShadow, shadows)
	if shadows {
		c = c.With(shader.SceneShadowModePCF5, r.cfg.ShadowFilterMode == storage.ShadowFilterPCF5)
		c = c.With(shader.SceneShadowModePCF13, r.cfg.ShadowFilterMode == storage.ShadowFilterPCF13)
	}
	if dir && p.dirShadow {
		c = c.With(shader.SceneLightUsePSSM2, p.dirSplits == 2)
		c = c.With(shader.SceneLightUsePSSM4, p.dirSplits == 4)
		c = c.With(shader.SceneLightUsePSSMBlend, p.blendSplits && p.dirSplits > 1)
	}
	c = c.With(shader.SceneUseContactShadows, p.contactShadows && mode == listAlpha)
	c = c.With(shader.SceneUseRadianceMap, p.sky != nil && !p.additive)

	c = c.With(shader.SceneUseGIProbes, shading&ShadingGI != 0)
	lightmap := shading&ShadingLightmap != 0
	c = c.With(shader.SceneUseLightmap, lightmap)
	c = c.With(shader.SceneUseLightmapLayered, lightmap && shading&ShadingLightmapLayered != 0)
	c = c.With(shader.SceneUseLightmapFilterBicubic, lightmap && r.cfg.LightmapBicubic)
	c = c.With(shader.SceneUseLightmapCapture, shading&ShadingLightmapCapture != 0)
	return c
}

func (r *Renderer) skeletonTexture(in *storage.Instance) uint32 {
	if in.Skeleton.IsNull() {
		return 0
	}
	sk := ecs.Get[storage.Skeleton](r.st.Registry(), in.Skeleton)
	if sk == nil || sk.Size == 0 {
		return 0
	}
	return sk.TextureID()
}

// setElementUniforms uploads the per-instance uniforms and textures.
func (r *Renderer) setElementUniforms(p *scenePass, prog *shader.Shader, el *Element, conds shader.Conditionals, mode listMode) {
	in := el.In
	prog.UniformMat4(sceneWorldTransform, in.Transform.Flat())
	if tex := r.skeletonTexture(in); tex != 0 {
		r.bindTex(storage.UnitSkeleton, glapi.TEXTURE_2D, tex)
	}
	if mode == listDepth {
		return
	}

	if conds.Has(shader.SceneUseForwardLighting) {
		r.forwardIndices(in)
		prog.Uniform4fv(sceneOmniIndices, r.fwd.omni)
		prog.Uniform1i(sceneOmniCount, int32(r.fwd.nOmni))
		prog.Uniform4fv(sceneSpotIndices, r.fwd.spot)
		prog.Uniform1i(sceneSpotCount, int32(r.fwd.nSpot))
		prog.Uniform4fv(sceneReflectionIndices, r.fwd.refl)
		prog.Uniform1i(sceneReflectionCount, int32(r.fwd.nRefl))
	}

	if conds.Has(shader.SceneUseLightmap) {
		kind := shader.Texture2D
		if conds.Has(shader.SceneUseLightmapLayered) {
			kind = shader.Texture2DArray
			prog.Uniform1i(sceneLightmapLayer, int32(in.LightmapSlice))
		}
		r.st.BindTexture(storage.UnitLightmap, in.Lightmap, shader.HintBlack, kind)
		prog.Uniform1f(sceneLightmapEnergy, 1)
		uv := in.LightmapUVScale
		prog.Uniform4f(sceneLightmapUVRect, uv.X, uv.Y, uv.Z, uv.W)
	} else if conds.Has(shader.SceneUseLightmapCapture) {
		caps := make([]float32, 0, 24)
		for _, c := range in.LightmapCapture {
			caps = append(caps, c.R, c.G, c.B, c.A)
		}
		prog.Uniform4fv(sceneLightmapCaptures, caps)
		prog.Uniform1i(sceneLightmapCaptureSky, 0)
	}

	if conds.Has(shader.SceneUseGIProbes) {
		r.setGIProbes(p, prog, in)
	}
}

// forwardIndices packs the omni, spot and probe indices paired with in.
func (r *Renderer) forwardIndices(in *storage.Instance) {
	f := &r.fwd
	f.reset(r.lim.Forward)
	for _, l := range in.Lights {
		if i, ok := r.omniIndex[l]; ok && f.nOmni < len(f.omni) {
			f.omni[f.nOmni] = float32(i)
			f.nOmni++
		} else if i, ok := r.spotIndex[l]; ok && f.nSpot < len(f.spot) {
			f.spot[f.nSpot] = float32(i)
			f.nSpot++
		}
	}
	for _, rp := range in.ReflectionProbes {
		if i, ok := r.reflectionIndex[rp]; ok && f.nRefl < len(f.refl) {
			f.refl[f.nRefl] = float32(i)
			f.nRefl++
		}
	}
}

// setGIProbes binds the first two GI probes of in.
func (r *Renderer) setGIProbes(p *scenePass, prog *shader.Shader, in *storage.Instance) {
	type giUniforms struct{ xform, bounds, cell, mult, bias, nbias, ambient, unit int }
	slots := [2]giUniforms{
		{sceneGIProbeXform1, sceneGIProbeBounds1, sceneGIProbeCellSize1, sceneGIProbeMultiplier1, sceneGIProbeBias1, sceneGIProbeNormalBias1, sceneGIProbeBlendAmbient1, storage.UnitGIProbe1},
		{sceneGIProbeXform2, sceneGIProbeBounds2, sceneGIProbeCellSize2, sceneGIProbeMultiplier2, sceneGIProbeBias2, sceneGIProbeNormalBias2, sceneGIProbeBlendAmbient2, storage.UnitGIProbe2},
	}
	reg := r.st.Registry()
	used := 0
	for _, e := range in.GIProbes {
		if used == len(slots) {
			break
		}
		gp := r.st.GIProbe(e)
		if gp == nil {
			continue
		}
		data := ecs.Get[storage.GIProbeData](reg, gp.Data)
		if data == nil {
			continue
		}
		u := slots[used]
		size := gp.Bounds.Size
		prog.UniformMat4(u.xform, p.cam.Transform.Mul(gp.ToCell).Flat())
		prog.Uniform3f(u.bounds, size.X, size.Y, size.Z)
		prog.Uniform3f(u.cell, inv(size.X), inv(size.Y), inv(size.Z))
		prog.Uniform1f(u.mult, gp.Energy)
		prog.Uniform1f(u.bias, gp.Bias)
		prog.Uniform1f(u.nbias, gp.NormalBias)
		prog.Uniform1i(u.ambient, int32(b2f(!gp.Interior)))
		r.bindTex(u.unit, glapi.TEXTURE_3D, data.TextureID())
		used++
	}
	prog.Uniform1i(sceneGIProbe2Enabled, int32(b2f(used > 1)))
}

func inv(v float32) float32 {
	if v == 0 {
		return 0
	}
	return 1 / v
}

// drawGeometry issues the draw calls of one element.
func (r *Renderer) drawGeometry(p *scenePass, el *Element) {
	d := r.dev
	reg := r.st.Registry()
	switch el.In.BaseType {
	case storage.InstanceMesh:
		if sf := ecs.Get[storage.Surface](reg, el.Geometry); sf != nil {
			r.drawSurface(p, sf, nil, 1)
		}
	case storage.InstanceMultimesh:
		mm := ecs.Get[storage.Multimesh](reg, el.Owner)
		sf := ecs.Get[storage.Surface](reg, el.Geometry)
		if mm == nil || sf == nil || mm.DrawCount() == 0 {
			return
		}
		r.drawSurface(p, sf, func() { r.st.BindMultimeshInstances(mm) }, mm.DrawCount())
	case storage.InstanceParticles:
		pt := ecs.Get[storage.Particles](reg, el.Owner)
		sf := ecs.Get[storage.Surface](reg, el.Geometry)
		if pt == nil || sf == nil || pt.Amount == 0 {
			return
		}
		r.drawSurface(p, sf, func() { r.st.BindParticlesInstances(pt) }, pt.Amount)
	case storage.InstanceImmediate:
		im := r.st.Immediate(el.Owner)
		if im == nil {
			return
		}
		for i := range im.Chunks {
			c := &im.Chunks[i]
			if !c.Texture.IsNull() {
				r.st.BindTexture(0, c.Texture, shader.HintAlbedo, shader.Texture2D)
			}
			n, ok := r.st.StreamImmediateChunk(c)
			if !ok {
				continue
			}
			d.DrawArrays(c.Primitive.GL(), 0, n)
			r.info.Vertices += int(n)
			r.info.DrawCalls++
		}
	}
}

// drawSurface draws a surface, or its line list in wireframe passes.
// bindInstances is nil for plain meshes; otherwise it feeds the instance
// attributes of the bound instanced vertex array.
func (r *Renderer) drawSurface(p *scenePass, sf *storage.Surface, bindInstances func(), instances int) {
	d := r.dev
	instanced := bindInstances != nil
	if p.wireframe {
		vao, count := sf.WireframeVAO(instanced)
		if vao == 0 {
			return
		}
		d.BindVertexArray(vao)
		if instanced {
			bindInstances()
			d.DrawElementsInstanced(glapi.LINES, int32(count), sf.Layout.IndexType, 0, int32(instances))
		} else {
			d.DrawElements(glapi.LINES, int32(count), sf.Layout.IndexType, 0)
		}
		r.info.Vertices += count * instances
		r.info.DrawCalls++
		return
	}

	d.BindVertexArray(sf.VAO(instanced))
	if instanced {
		bindInstances()
	}
	if !sf.Format.Has(storage.FormatColor) {
		d.VertexAttrib4f(storage.ArrayColor, 1, 1, 1, 1)
	}
	prim := sf.Primitive.GL()
	switch {
	case sf.Indexed() && instanced:
		d.DrawElementsInstanced(prim, int32(sf.IndexCount), sf.Layout.IndexType, 0, int32(instances))
	case sf.Indexed():
		d.DrawElements(prim, int32(sf.IndexCount), sf.Layout.IndexType, 0)
	case instanced:
		d.DrawArraysInstanced(prim, 0, int32(sf.VertexCount), int32(instances))
	default:
		d.DrawArrays(prim, 0, int32(sf.VertexCount))
	}
	n := sf.VertexCount
	if sf.Indexed() {
		n = sf.IndexCount
	}
	r.info.Vertices += n * instances
	r.info.DrawCalls++
}

// drawExtraDirectional draws elems once more for every directional light
// past the first, blended additively without ambient. Alpha elements add
// their light weighted by alpha.
func (r *Renderer) drawExtraDirectional(p *scenePass, elems []*Element, alpha bool) {
	if len(r.directional) < 2 || len(elems) == 0 || p.wireframe {
		return
	}
	mode := listOpaque
	if alpha {
		mode = listAlpha
	}
	saved := *p
	p.additive = true
	r.writeSceneData(p)
	for _, li := range r.directional[1:] {
		r.writeDirectional(p, li)
		r.drawElements(p, elems, mode)
	}
	*p = saved
	r.writeSceneData(p)
	r.writeDirectional(p, r.directional[0])
}
