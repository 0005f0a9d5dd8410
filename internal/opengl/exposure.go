package opengl

import (
	"fmt"

	"github.com/chewxy/math32"

	"gles3render/internal/glapi"
	"gles3render/internal/storage"
)

// autoExposureRate scales the adaptation speed into a per second rate in
// log2 luminance.
const autoExposureRate = 16

// autoExposureAdjust is the blend weight of the new luminance for a frame
// of dt seconds. It is independent of the frame rate.
func autoExposureAdjust(speed, dt float32) float32 {
	if speed <= 0 || dt <= 0 {
		return 0
	}
	return 1 - math32.Exp(-speed*dt*autoExposureRate)
}

// AutoExposureStep adapts the luminance history prev towards the measured
// scene luminance lum over dt seconds and returns the new history and the
// exposure it yields. Both luminances are clamped to the environment range
// first. The GPU ladder applies the same rule.
func AutoExposureStep(prev, lum float32, env *storage.Environment, dt float32) (adapted, exposure float32) {
	tm := env.Tonemap
	lo, hi := tm.MinLuminance, tm.MaxLuminance
	if lo <= 0 {
		lo = 1e-4
	}
	hi = max(hi, lo)
	prev = min(max(prev, lo), hi)
	lum = min(max(lum, lo), hi)
	a := autoExposureAdjust(tm.Speed, dt)
	adapted = math32.Exp2(math32.Log2(prev) + (math32.Log2(lum)-math32.Log2(prev))*a)
	return adapted, tm.Grey / adapted
}

// renderExposure reduces the scene image in effect level 0 to one
// luminance texel through the ladder, adapts it against the history and
// stores the result back into the history.
func (r *Renderer) renderExposure(p *scenePass, delta float32) error {
	rt, tm := p.rt, p.env.Tonemap
	src := rt.Effects[0].Levels()
	if len(src) == 0 {
		return fmt.Errorf("exposure: no effect buffers: %w", storage.ErrInvalidArgument)
	}
	sh := r.fx.exposure
	ladder := &rt.Exposure.Ladder
	last := len(ladder) - 1
	lo := max(tm.MinLuminance, 1e-4)

	for i := range ladder {
		sh.SetConditionals(0)
		sh.SetConditional(exposureBegin, i == 0)
		sh.SetConditional(exposureEnd, i == last)
		if _, err := sh.Bind(); err != nil {
			return fmt.Errorf("exposure level %d: %w", i, err)
		}
		w, h := ladder[i].Size()
		if i == 0 {
			r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.Effects[0].TextureID())
			sh.Uniform2f(exposureSourceRenderSize, float32(src[0].Width), float32(src[0].Height))
			sh.Uniform2f(exposureTargetSize, float32(w), float32(h))
		} else {
			r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, ladder[i-1].TextureID())
		}
		if i == last {
			r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, rt.Exposure.History.TextureID())
			sh.Uniform1f(exposureAdjust, autoExposureAdjust(tm.Speed, delta))
			sh.Uniform1f(exposureMinLuminance, lo)
			sh.Uniform1f(exposureMaxLuminance, max(tm.MaxLuminance, lo))
		}
		r.effectTarget(ladder[i].FBO(), w, h)
		r.st.DrawQuad()
	}

	d := r.dev
	d.BindFramebuffer(glapi.READ_FRAMEBUFFER, ladder[last].FBO())
	d.BindFramebuffer(glapi.DRAW_FRAMEBUFFER, rt.Exposure.History.FBO())
	d.ReadBuffer(glapi.COLOR_ATTACHMENT0)
	d.BlitFramebuffer(0, 0, 1, 1, 0, 0, 1, 1, glapi.COLOR_BUFFER_BIT, glapi.NEAREST)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}
