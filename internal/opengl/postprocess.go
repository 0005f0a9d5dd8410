package opengl

import (
	"fmt"
	"math/bits"

	"gles3render/core"
	"gles3render/internal/glapi"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

const (
	// ssrMipLevels is the depth of the blurred diffuse pyramid rough
	// reflections sample.
	ssrMipLevels = 5
	// screenMipLevels is the depth of the pyramid behind SCREEN_TEXTURE.
	screenMipLevels = 4
	// sssKernelRadius is the kernel span in screen units at unit depth.
	sssKernelRadius = 0.01
	// dofRadiusScale converts DOF amount into the tap spacing in pixels.
	dofRadiusScale = 4
)

// beginEffects sets the state every full-screen effect pass draws with.
func (r *Renderer) beginEffects() {
	d := r.dev
	d.Disable(glapi.DEPTH_TEST)
	d.Disable(glapi.BLEND)
	d.Disable(glapi.CULL_FACE)
	d.Disable(glapi.SCISSOR_TEST)
	d.DepthMask(false)
	d.ColorMask(true, true, true, true)
}

func (r *Renderer) effectTarget(fbo uint32, w, h int) {
	r.dev.BindFramebuffer(glapi.FRAMEBUFFER, fbo)
	r.dev.Viewport(0, 0, int32(w), int32(h))
}

// blit copies color attachment 0 of one framebuffer into another of the
// same size.
func (r *Renderer) blit(from, to uint32, w, h int, mask uint32) {
	d := r.dev
	d.BindFramebuffer(glapi.READ_FRAMEBUFFER, from)
	d.BindFramebuffer(glapi.DRAW_FRAMEBUFFER, to)
	if mask&glapi.COLOR_BUFFER_BIT != 0 {
		d.ReadBuffer(glapi.COLOR_ATTACHMENT0)
	}
	d.BlitFramebuffer(0, 0, int32(w), int32(h), 0, 0, int32(w), int32(h), mask, glapi.NEAREST)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
}

// effectFailed logs a failing effect once per program and error.
func effectFailed(name string, err error) {
	core.LogOnce("effect:"+name+":"+err.Error(), "renderer: %s: %v", name, err)
}

// ── MRT effects ─────────────────────────────────────────────────────────────

// renderMRTEffects turns the auxiliary buffers of the main pass into the
// lit image in the target's main framebuffer: occlusion is multiplied into
// diffuse, diffuse is scattered, specular and screen reflections are
// added, and the depth of field blurs run last.
func (r *Renderer) renderMRTEffects(p *scenePass) {
	rt, env := p.rt, p.env
	r.beginEffects()

	if env.SSAO.Enabled {
		if err := r.renderSSAO(p); err != nil {
			effectFailed("ssao", err)
		}
	}
	if env.SSS {
		if err := r.renderSSS(p); err != nil {
			effectFailed("sss", err)
			r.copyDiffuse(rt)
		}
	} else {
		r.copyDiffuse(rt)
	}
	ssr := false
	if env.SSR.Enabled {
		if err := r.renderSSR(p); err != nil {
			effectFailed("ssr", err)
		} else {
			ssr = true
		}
	}
	if err := r.resolveMRT(p, ssr); err != nil {
		effectFailed("resolve", err)
	}
	if env.DOFFar.Enabled && env.DOFFar.Amount > 0 {
		if err := r.renderDOF(p, env.DOFFar, true); err != nil {
			effectFailed("dof far", err)
		}
	}
	if env.DOFNear.Enabled && env.DOFNear.Amount > 0 {
		if err := r.renderDOF(p, env.DOFNear, false); err != nil {
			effectFailed("dof near", err)
		}
	}

	d := r.dev
	d.Disable(glapi.BLEND)
	d.Enable(glapi.DEPTH_TEST)
	d.DepthMask(true)
}

// copyDiffuse moves the diffuse buffer into the main color buffer.
func (r *Renderer) copyDiffuse(rt *storage.RenderTarget) {
	r.blit(rt.Buffers.FBO(), rt.FBO(), rt.Width, rt.Height, glapi.COLOR_BUFFER_BIT)
}

// renderSSS blurs the diffuse buffer along x into effect level 0 and
// along y into the main color buffer, weighted by the SSS strength.
func (r *Renderer) renderSSS(p *scenePass) error {
	rt := p.rt
	levels := rt.Effects[0].Levels()
	if len(levels) == 0 {
		return fmt.Errorf("no effect buffers: %w", storage.ErrInvalidArgument)
	}
	sh := r.fx.sss
	sh.SetConditionals(0)
	sh.SetConditional(sssUse11Samples+min(max(r.cfg.SSSQuality, 0), 2), true)
	sh.SetConditional(sssOrthogonal, p.cam.Orthogonal)
	sh.SetConditional(sssFollowSurface, r.cfg.SSSFollowSurface)
	if _, err := sh.Bind(); err != nil {
		return err
	}
	sh.Uniform1f(sssMaxRadius, sssKernelRadius)
	sh.Uniform1f(sssZNear, p.zNear)
	sh.Uniform1f(sssZFar, p.zFar)
	sh.Uniform1f(sssUnitSize, r.cfg.SSSScale)
	r.bindTex(storage.UnitDepth, glapi.TEXTURE_2D, rt.DepthID())
	r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, rt.Buffers.SSS())

	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.Buffers.Diffuse())
	sh.Uniform2f(sssDir, 1, 0)
	r.effectTarget(levels[0].FBO, levels[0].Width, levels[0].Height)
	r.st.DrawQuad()

	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.Effects[0].TextureID())
	sh.Uniform2f(sssDir, 0, 1)
	r.effectTarget(rt.FBO(), rt.Width, rt.Height)
	r.st.DrawQuad()
	return nil
}

// blurPyramid fills levels 1..n of effect pyramid 0 from level 0. Each
// step blurs along x into the matching half size level of pyramid 1 and
// along y back into the next level of pyramid 0.
func (r *Renderer) blurPyramid(rt *storage.RenderTarget, n int) (int, error) {
	e0, e1 := rt.Effects[0].Levels(), rt.Effects[1].Levels()
	n = min(n, len(e0)-1, len(e1))
	sh := r.fx.blur
	for i := range n {
		for pass := range 2 {
			src, dst := rt.Effects[0].TextureID(), e1[i]
			ps := e0[i]
			cond := blurGaussianHorizontal
			if pass == 1 {
				src, dst, ps = rt.Effects[1].TextureID(), e0[i+1], e1[i]
				cond = blurGaussianVertical
			}
			sh.SetConditionals(0)
			sh.SetConditional(cond, true)
			if _, err := sh.Bind(); err != nil {
				return i, err
			}
			sh.Uniform2f(blurPixelSize, 1/float32(ps.Width), 1/float32(ps.Height))
			sh.Uniform1f(blurLod, float32(i))
			r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, src)
			r.effectTarget(dst.FBO, dst.Width, dst.Height)
			r.st.DrawQuad()
		}
	}
	return n, nil
}

// renderSSR builds the blurred diffuse pyramid from the main color buffer
// and traces reflections into half resolution effect level 0.
func (r *Renderer) renderSSR(p *scenePass) error {
	rt, cfg := p.rt, p.env.SSR
	e0, e1 := rt.Effects[0].Levels(), rt.Effects[1].Levels()
	if len(e0) == 0 || len(e1) == 0 {
		return fmt.Errorf("no effect buffers: %w", storage.ErrInvalidArgument)
	}
	r.blit(rt.FBO(), e0[0].FBO, rt.Width, rt.Height, glapi.COLOR_BUFFER_BIT)
	mips, err := r.blurPyramid(rt, ssrMipLevels)
	if err != nil {
		return err
	}

	sh := r.fx.ssr
	sh.SetConditionals(0)
	sh.SetConditional(ssrReflectRoughness, cfg.Roughness)
	sh.SetConditional(ssrOrthogonal, p.cam.Orthogonal)
	if _, err := sh.Bind(); err != nil {
		return err
	}
	dst := e1[0]
	sh.UniformMat4(ssrProjection, p.cam.Projection.Flat())
	sh.UniformMat4(ssrInvProjection, p.cam.Projection.Inverse().Flat())
	sh.Uniform2f(ssrPixelSize, 1/float32(dst.Width), 1/float32(dst.Height))
	sh.Uniform1i(ssrNumSteps, int32(max(cfg.MaxSteps, 1)))
	sh.Uniform1f(ssrDepthTolerance, cfg.DepthTolerance)
	sh.Uniform1f(ssrDistanceFade, gmath.Clamp(cfg.FadeOut, 0, 1))
	sh.Uniform1f(ssrCurveFadeIn, cfg.FadeIn)
	sh.Uniform1f(ssrFilterMipmapLevels, float32(mips))
	sh.Uniform1f(ssrZNear, p.zNear)
	sh.Uniform1f(ssrZFar, p.zFar)
	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.Effects[0].TextureID())
	r.bindTex(storage.UnitDepth, glapi.TEXTURE_2D, rt.DepthID())
	r.bindTex(storage.UnitAux2, glapi.TEXTURE_2D, rt.Buffers.NormalRoughness())
	r.effectTarget(dst.FBO, dst.Width, dst.Height)
	r.st.DrawQuad()
	return nil
}

// resolveMRT adds specular light, with traced reflections blended in, on
// top of the diffuse light in the main color buffer.
func (r *Renderer) resolveMRT(p *scenePass, ssr bool) error {
	rt := p.rt
	sh := r.fx.resolve
	sh.SetConditionals(0)
	sh.SetConditional(resolveUseSSR, ssr)
	if _, err := sh.Bind(); err != nil {
		return err
	}
	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.Buffers.Specular())
	if ssr {
		r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, rt.Effects[1].TextureID())
		r.bindTex(storage.UnitAux2, glapi.TEXTURE_2D, rt.Buffers.NormalRoughness())
	}
	d := r.dev
	r.effectTarget(rt.FBO(), rt.Width, rt.Height)
	d.Enable(glapi.BLEND)
	d.BlendEquation(glapi.FUNC_ADD)
	d.BlendFunc(glapi.ONE, glapi.ONE)
	r.st.DrawQuad()
	d.Disable(glapi.BLEND)
	return nil
}

// renderDOF blurs the main color buffer along x into the resolve buffer
// and along y back over the main buffer, blended by the per pixel blur
// amount. The far side blurs beyond Distance, the near side before it.
func (r *Renderer) renderDOF(p *scenePass, dof storage.DOF, far bool) error {
	rt := p.rt
	tmp := rt.Buffers.Resolve()
	sh := r.fx.blur
	side := blurDOFNear
	begin, end := dof.Distance, dof.Distance-dof.Transition
	if far {
		side = blurDOFFar
		end = dof.Distance + dof.Transition
	}
	quality := blurDOFQualityLow + min(max(int(dof.Quality), 0), 2)
	radius := dof.Amount * dofRadiusScale

	d := r.dev
	r.bindTex(storage.UnitDepth, glapi.TEXTURE_2D, rt.DepthID())
	for pass := range 2 {
		sh.SetConditionals(0)
		sh.SetConditional(side, true)
		sh.SetConditional(quality, true)
		sh.SetConditional(blurOrthogonal, p.cam.Orthogonal)
		if _, err := sh.Bind(); err != nil {
			return err
		}
		sh.Uniform1f(blurDOFBegin, begin)
		sh.Uniform1f(blurDOFEnd, end)
		sh.Uniform1f(blurDOFRadius, radius)
		sh.Uniform1f(blurZNear, p.zNear)
		sh.Uniform1f(blurZFar, p.zFar)
		if pass == 0 {
			sh.Uniform2f(blurDOFDir, 1/float32(rt.Width), 0)
			r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.ColorID())
			r.effectTarget(tmp.FBO(), rt.Width, rt.Height)
			r.st.DrawQuad()
			continue
		}
		sh.Uniform2f(blurDOFDir, 0, 1/float32(rt.Height))
		r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, tmp.TextureID())
		r.effectTarget(rt.FBO(), rt.Width, rt.Height)
		d.Enable(glapi.BLEND)
		d.BlendEquation(glapi.FUNC_ADD)
		d.BlendFunc(glapi.SRC_ALPHA, glapi.ONE_MINUS_SRC_ALPHA)
		r.st.DrawQuad()
		d.Disable(glapi.BLEND)
	}
	return nil
}

// ── Screen textures and MSAA ────────────────────────────────────────────────

// prepareScreenTextures copies the opaque image and depth for transparent
// materials that read SCREEN_TEXTURE or DEPTH_TEXTURE, then rebinds the
// pass framebuffer.
func (r *Renderer) prepareScreenTextures(p *scenePass) {
	screen, depth := false, false
	for _, el := range r.list.Alpha {
		props := el.Shader.Spatial
		screen = screen || props.UsesScreenTexture
		depth = depth || props.UsesDepthTexture
	}
	if !screen && !depth || p.rt == nil {
		return
	}
	rt := p.rt
	if depth {
		if p.fbo != rt.FBO() {
			r.blit(p.fbo, rt.FBO(), rt.Width, rt.Height, glapi.DEPTH_BUFFER_BIT)
		}
		r.bindTex(storage.UnitDepth, glapi.TEXTURE_2D, rt.DepthID())
	}
	if screen {
		if levels := rt.Effects[0].Levels(); len(levels) > 0 {
			r.blit(p.fbo, levels[0].FBO, rt.Width, rt.Height, glapi.COLOR_BUFFER_BIT)
			r.beginEffects()
			if _, err := r.blurPyramid(rt, screenMipLevels); err != nil {
				effectFailed("screen texture", err)
			}
			r.bindTex(storage.UnitScreen, glapi.TEXTURE_2D, rt.Effects[0].TextureID())
		} else {
			core.LogOnce("screen-texture-no-effects", "renderer: SCREEN_TEXTURE needs a target with 3D effects")
		}
	}

	d := r.dev
	d.BindFramebuffer(glapi.FRAMEBUFFER, p.fbo)
	d.Viewport(0, 0, int32(p.width), int32(p.height))
	d.Enable(glapi.DEPTH_TEST)
	d.DepthMask(true)
}

// resolveMSAA blits the multisampled buffers into the main framebuffer.
func (r *Renderer) resolveMSAA(rt *storage.RenderTarget) {
	r.blit(rt.MSAAFBO(), rt.FBO(), rt.Width, rt.Height, glapi.COLOR_BUFFER_BIT)
	r.blit(rt.MSAAFBO(), rt.FBO(), rt.Width, rt.Height, glapi.DEPTH_BUFFER_BIT)
}

// ── Final composite ─────────────────────────────────────────────────────────

// postProcess measures exposure, builds the glow pyramid and composes the
// tonemapped image back into the main color buffer.
func (r *Renderer) postProcess(p *scenePass, delta float32) {
	rt, env := p.rt, p.env
	e0 := rt.Effects[0].Levels()
	if len(e0) == 0 {
		return
	}
	r.beginEffects()
	r.blit(rt.FBO(), e0[0].FBO, rt.Width, rt.Height, glapi.COLOR_BUFFER_BIT)

	autoExposure := false
	if env.Tonemap.AutoExposure {
		if err := r.renderExposure(p, delta); err != nil {
			effectFailed("exposure", err)
		} else {
			autoExposure = true
		}
	}
	var glow uint32
	if env.Glow.Enabled && env.Glow.Levels != 0 {
		n, err := r.renderGlow(p, autoExposure)
		if err != nil {
			effectFailed("glow", err)
		} else {
			glow = env.Glow.Levels & (1<<n - 1)
		}
	}
	if err := r.renderTonemap(p, autoExposure, glow); err != nil {
		effectFailed("tonemap", err)
	}
	r.dev.Enable(glapi.DEPTH_TEST)
	r.dev.DepthMask(true)
}

// renderGlow blurs the image down the effect pyramid up to the highest
// enabled glow level. The first step applies the HDR bleed threshold and
// exposure. It returns the number of levels built.
func (r *Renderer) renderGlow(p *scenePass, autoExposure bool) (int, error) {
	rt, g, tm := p.rt, p.env.Glow, p.env.Tonemap
	e0, e1 := rt.Effects[0].Levels(), rt.Effects[1].Levels()
	n := min(bits.Len32(g.Levels&(1<<glowLevels-1)), len(e0)-1, len(e1))
	sh := r.fx.blur
	if autoExposure {
		r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, rt.Exposure.History.TextureID())
	}
	for i := range n {
		for pass := range 2 {
			src, dst, ps := rt.Effects[0].TextureID(), e1[i], e0[i]
			cond := blurGlowHorizontal
			if pass == 1 {
				src, dst, ps = rt.Effects[1].TextureID(), e0[i+1], e1[i]
				cond = blurGlowVertical
			}
			first := i == 0 && pass == 0
			sh.SetConditionals(0)
			sh.SetConditional(cond, true)
			sh.SetConditional(blurGlowFirstPass, first)
			sh.SetConditional(blurGlowAutoExposure, first && autoExposure)
			if _, err := sh.Bind(); err != nil {
				return i, err
			}
			sh.Uniform2f(blurPixelSize, 1/float32(ps.Width), 1/float32(ps.Height))
			sh.Uniform1f(blurLod, float32(i))
			sh.Uniform1f(blurGlowStrength, g.Strength)
			if first {
				sh.Uniform1f(blurGlowBloom, g.Bloom)
				sh.Uniform1f(blurGlowHDRThreshold, g.HDRBleedThresh)
				sh.Uniform1f(blurGlowHDRScale, g.HDRBleedScale)
				sh.Uniform1f(blurGlowLuminanceCap, g.HDRLuminanceCap)
				sh.Uniform1f(blurExposure, tm.Exposure)
				sh.Uniform1f(blurAutoExposureGrey, tm.Grey)
			}
			r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, src)
			r.effectTarget(dst.FBO, dst.Width, dst.Height)
			r.st.DrawQuad()
		}
	}
	return n, nil
}

var tonemappers = map[storage.Tonemapper]int{
	storage.TonemapReinhard:   tonemapReinhard,
	storage.TonemapFilmic:     tonemapFilmic,
	storage.TonemapACES:       tonemapACES,
	storage.TonemapACESFitted: tonemapACESFitted,
}

var glowBlendModes = map[storage.GlowBlendMode]int{
	storage.GlowBlendReplace:   tonemapGlowReplace,
	storage.GlowBlendScreen:    tonemapGlowScreen,
	storage.GlowBlendSoftLight: tonemapGlowSoftLight,
}

// tonemapConditionals selects the final composite variant for a target,
// its environment and the glow levels that were built.
func tonemapConditionals(rt *storage.RenderTarget, env *storage.Environment, autoExposure bool, glow uint32, cc bool) []int {
	var on []int
	for i := range glowLevels {
		if glow&(1<<i) != 0 {
			on = append(on, tonemapGlowLevel1+i)
		}
	}
	if glow != 0 {
		if c, ok := glowBlendModes[env.Glow.BlendMode]; ok {
			on = append(on, c)
		}
		if env.Glow.BicubicUpscale {
			on = append(on, tonemapGlowBicubic)
		}
	}
	if c, ok := tonemappers[env.Tonemap.Mode]; ok {
		on = append(on, c)
	}
	if autoExposure {
		on = append(on, tonemapAutoExposure)
	}
	if env.Adjustments.Enabled {
		on = append(on, tonemapBCS)
		if cc {
			on = append(on, tonemapColorCorrection)
		}
	}
	if rt.FXAA {
		on = append(on, tonemapFXAA)
	}
	if rt.Debanding {
		on = append(on, tonemapDebanding)
	}
	if rt.Sharpen > 0 {
		on = append(on, tonemapSharpening)
	}
	if rt.Flags[storage.RenderTargetKeepLinear] {
		on = append(on, tonemapKeepLinear)
	}
	if rt.Flags[storage.RenderTargetVFlip] {
		on = append(on, tonemapVFlip)
	}
	if !rt.Flags[storage.RenderTargetTransparent] {
		on = append(on, tonemapDisableAlpha)
	}
	return on
}

// renderTonemap composes effect level 0 with exposure, glow, the tone
// curve and the color adjustments into the main color buffer.
func (r *Renderer) renderTonemap(p *scenePass, autoExposure bool, glow uint32) error {
	rt, env := p.rt, p.env
	var cc *storage.Texture
	if env.Adjustments.Enabled && !env.Adjustments.ColorCorrection.IsNull() {
		if t := r.st.ResolveTexture(env.Adjustments.ColorCorrection); t != nil && t.Active {
			cc = t
		}
	}
	sh := r.fx.tonemap
	sh.SetConditionals(0)
	for _, c := range tonemapConditionals(rt, env, autoExposure, glow, cc != nil) {
		sh.SetConditional(c, true)
	}
	if _, err := sh.Bind(); err != nil {
		return err
	}
	tm, adj := env.Tonemap, env.Adjustments
	sh.Uniform1f(tonemapExposure, tm.Exposure)
	sh.Uniform1f(tonemapWhite, tm.White)
	sh.Uniform1f(tonemapAutoExposureGrey, tm.Grey)
	sh.Uniform1f(tonemapGlowIntensity, env.Glow.Intensity)
	sh.Uniform3f(tonemapBCSValues, adj.Brightness, adj.Contrast, adj.Saturation)
	sh.Uniform2f(tonemapPixelSize, 1/float32(rt.Width), 1/float32(rt.Height))
	sh.Uniform1f(tonemapSharpenIntensity, rt.Sharpen)

	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.Effects[0].TextureID())
	r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, rt.Effects[0].TextureID())
	if autoExposure {
		r.bindTex(storage.UnitAux2, glapi.TEXTURE_2D, rt.Exposure.History.TextureID())
	}
	if cc != nil {
		r.bindTex(storage.UnitAux3, cc.Target, cc.ID())
	}
	r.effectTarget(rt.FBO(), rt.Width, rt.Height)
	r.st.DrawQuad()
	return nil
}
