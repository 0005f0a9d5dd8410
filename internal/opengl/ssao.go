package opengl

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/x448/float16"

	"gles3render/internal/glapi"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// ssaoNoiseSize is the edge of the tiled rotation noise texture.
const ssaoNoiseSize = 4

// ssaoSamples is the kernel prefix each quality level evaluates.
var ssaoSamples = [...]int32{
	storage.SSAOQualityLow:    16,
	storage.SSAOQualityMedium: 32,
	storage.SSAOQualityHigh:   ssaoKernelSize,
}

// initSSAO builds the hemisphere kernel and the rotation noise texture.
// Both are seeded so every run samples the same pattern.
func (r *Renderer) initSSAO() error {
	rng := rand.New(rand.NewSource(42))
	r.ssaoKernel = make([]float32, ssaoKernelSize*4)
	for i := range ssaoKernelSize {
		v := gmath.Vec3{
			X: rng.Float32()*2 - 1,
			Y: rng.Float32()*2 - 1,
			Z: rng.Float32(),
		}.Normalize()
		// Cluster samples near the origin.
		t := float32(i) / ssaoKernelSize
		v = v.Mul(0.1 + 0.9*t*t)
		r.ssaoKernel[i*4+0] = v.X
		r.ssaoKernel[i*4+1] = v.Y
		r.ssaoKernel[i*4+2] = v.Z
	}

	rng = rand.New(rand.NewSource(123))
	noise := make([]byte, ssaoNoiseSize*ssaoNoiseSize*2*2)
	for i := 0; i < len(noise); i += 2 {
		binary.LittleEndian.PutUint16(noise[i:], float16.Fromfloat32(rng.Float32()*2-1).Bits())
	}
	tex, err := glapi.NewTextures(r.dev, 1)
	if err != nil {
		return fmt.Errorf("ssao noise: %w", err)
	}
	r.ssaoNoise = tex
	d := r.dev
	d.BindTexture(glapi.TEXTURE_2D, tex.ID())
	d.TexImage2D(glapi.TEXTURE_2D, 0, glapi.RG16F, ssaoNoiseSize, ssaoNoiseSize, glapi.RG, glapi.HALF_FLOAT, noise)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MIN_FILTER, glapi.NEAREST)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAG_FILTER, glapi.NEAREST)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_S, glapi.REPEAT)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_T, glapi.REPEAT)
	d.BindTexture(glapi.TEXTURE_2D, 0)
	return nil
}

// projInfo returns the terms that rebuild a view position from a [0,1]
// screen coordinate and a linear depth.
func projInfo(proj gmath.Mat4, ortho bool) [4]float32 {
	if ortho {
		return [4]float32{
			2 / proj[0][0], 2 / proj[1][1],
			(-1 - proj[3][0]) / proj[0][0], (-1 - proj[3][1]) / proj[1][1],
		}
	}
	return [4]float32{
		2 / proj[0][0], 2 / proj[1][1],
		(proj[2][0] - 1) / proj[0][0], (proj[2][1] - 1) / proj[1][1],
	}
}

// renderSSAO minifies the depth buffer into the half resolution pyramid,
// computes occlusion, blurs it and multiplies it into the diffuse buffer.
func (r *Renderer) renderSSAO(p *scenePass) error {
	rt, cfg := p.rt, p.env.SSAO
	d := r.dev
	ortho := p.cam.Orthogonal

	sh := r.fx.ssaoMinify
	r.bindTex(storage.UnitDepth, glapi.TEXTURE_2D, rt.DepthID())
	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.SSAO.Depth.TextureID())
	for i, lv := range rt.SSAO.Depth.Levels() {
		sh.SetConditionals(0)
		sh.SetConditional(ssaoMinifyStart, i == 0)
		sh.SetConditional(ssaoMinifyOrthogonal, ortho)
		if _, err := sh.Bind(); err != nil {
			return fmt.Errorf("ssao minify: %w", err)
		}
		if i == 0 {
			sh.Uniform1f(ssaoMinifyZNear, p.zNear)
			sh.Uniform1f(ssaoMinifyZFar, p.zFar)
		} else {
			sh.Uniform1i(ssaoMinifySourceMipmap, int32(i-1))
		}
		r.effectTarget(lv.FBO, lv.Width, lv.Height)
		r.st.DrawQuad()
	}

	sh = r.fx.ssao
	sh.SetConditionals(0)
	sh.SetConditional(ssaoEnableRadius2, cfg.Radius2 > 0 && cfg.Intensity2 > 0)
	sh.SetConditional(ssaoOrthogonal, ortho)
	if _, err := sh.Bind(); err != nil {
		return fmt.Errorf("ssao: %w", err)
	}
	w, h := rt.SSAO.Blur[0].Size()
	info := projInfo(p.cam.Projection, ortho)
	samples := ssaoSamples[storage.SSAOQualityMedium]
	if q := cfg.Quality; q >= 0 && int(q) < len(ssaoSamples) {
		samples = ssaoSamples[q]
	}
	r.bindTex(storage.UnitAux, glapi.TEXTURE_2D, r.ssaoNoise.ID())
	r.bindTex(storage.UnitAux2, glapi.TEXTURE_2D, rt.Buffers.NormalRoughness())
	sh.UniformMat4(ssaoProjection, p.cam.Projection.Flat())
	sh.Uniform4f(ssaoProjInfo, info[0], info[1], info[2], info[3])
	sh.Uniform4fv(ssaoKernelUniform, r.ssaoKernel)
	sh.Uniform1i(ssaoSampleCount, samples)
	sh.Uniform2f(ssaoNoiseScale, float32(w)/ssaoNoiseSize, float32(h)/ssaoNoiseSize)
	sh.Uniform1f(ssaoRadius, cfg.Radius)
	sh.Uniform1f(ssaoIntensity, cfg.Intensity)
	sh.Uniform1f(ssaoRadius2, cfg.Radius2)
	sh.Uniform1f(ssaoIntensity2, cfg.Intensity2)
	sh.Uniform1f(ssaoBias, cfg.Bias)
	sh.Uniform1f(ssaoProjScale, float32(h)*p.cam.Projection[1][1]*0.5)
	r.effectTarget(rt.SSAO.Blur[0].FBO(), w, h)
	r.st.DrawQuad()

	sh = r.fx.ssaoBlur
	if cfg.Blur != storage.SSAOBlurDisabled {
		sh.SetConditionals(0)
		sh.SetConditional(ssaoBlurOrthogonal, ortho)
		if _, err := sh.Bind(); err != nil {
			return fmt.Errorf("ssao blur: %w", err)
		}
		sh.Uniform1f(ssaoBlurEdgeSharpness, cfg.EdgeSharpness)
		sh.Uniform1i(ssaoBlurFilterScale, int32(cfg.Blur))
		sh.Uniform1f(ssaoBlurZNear, p.zNear)
		sh.Uniform1f(ssaoBlurZFar, p.zFar)
		for pass := range 2 {
			src, dst := &rt.SSAO.Blur[pass], &rt.SSAO.Blur[1-pass]
			if pass == 0 {
				sh.Uniform2f(ssaoBlurAxis, 1, 0)
			} else {
				sh.Uniform2f(ssaoBlurAxis, 0, 1)
			}
			r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, src.TextureID())
			r.effectTarget(dst.FBO(), w, h)
			r.st.DrawQuad()
		}
	}

	sh.SetConditionals(0)
	sh.SetConditional(ssaoBlurMerge, true)
	if _, err := sh.Bind(); err != nil {
		return fmt.Errorf("ssao merge: %w", err)
	}
	c := cfg.Color
	sh.Uniform4f(ssaoBlurColor, c.R, c.G, c.B, 1)
	sh.Uniform1f(ssaoBlurLightAffect, cfg.LightAffect)
	r.bindTex(storage.UnitSource, glapi.TEXTURE_2D, rt.SSAO.Blur[0].TextureID())
	r.effectTarget(rt.Buffers.FBO(), rt.Width, rt.Height)
	d.DrawBuffers([]uint32{glapi.COLOR_ATTACHMENT0})
	d.Enable(glapi.BLEND)
	d.BlendEquation(glapi.FUNC_ADD)
	d.BlendFunc(glapi.DST_COLOR, glapi.ZERO)
	r.st.DrawQuad()
	d.Disable(glapi.BLEND)
	d.DrawBuffers(mrtDrawBuffers)
	return nil
}

var mrtDrawBuffers = []uint32{glapi.COLOR_ATTACHMENT0, glapi.COLOR_ATTACHMENT0 + 1, glapi.COLOR_ATTACHMENT0 + 2, glapi.COLOR_ATTACHMENT0 + 3}
