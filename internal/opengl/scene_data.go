package opengl

import (
	"gles3render/core"
	"gles3render/internal/storage"
)

const opaquePrepassThreshold = 0.99

// writeSceneData fills and uploads the SceneData block for p.
func (r *Renderer) writeSceneData(p *scenePass) {
	w := &r.sceneUBO.w
	w.Reset()
	proj := p.cam.Projection
	w.Mat4(proj)
	w.Mat4(proj.Inverse())
	w.Mat4(p.camInv)
	w.Mat4(p.cam.Transform)

	ambient, bg := core.ColorBlack, core.ColorBlack
	ambientEnergy, bgEnergy := float32(1), float32(1)
	var (
		fog                 storage.Fog
		aoAffect, aoChannel float32
	)
	if p.env != nil {
		ambient, ambientEnergy = p.env.AmbientColor, p.env.AmbientEnergy
		bg, bgEnergy = p.env.BGColor, p.env.BGEnergy
		fog = p.env.Fog
		if p.env.SSAO.Enabled {
			aoAffect, aoChannel = p.env.SSAO.LightAffect, p.env.SSAO.ChannelAffect
		}
	}
	if p.additive {
		ambientEnergy, bgEnergy = 0, 0
		fog.Enabled = false
	}
	if p.depth {
		fog.Enabled = false
	}
	w.Color(ambient)
	w.Color(bg)
	w.Vec4(fog.Color.R, fog.Color.G, fog.Color.B, b2f(fog.Enabled))
	w.Vec4(fog.SunColor.R, fog.SunColor.G, fog.SunColor.B, fog.SunAmount)

	w.Float(ambientEnergy)
	w.Float(bgEnergy)
	w.Float(p.zOffset)
	w.Float(p.zSlope)
	w.Float(p.dpZFar)
	w.Float(p.dpSide)

	vw, vh := float32(max(p.width, 1)), float32(max(p.height, 1))
	w.Vec2(vw, vh)
	w.Vec2(1/vw, 1/vh)
	var atlasPx, dirPx float32
	if p.shadowAtlas != nil && p.shadowAtlas.Size > 0 {
		atlasPx = 1 / float32(p.shadowAtlas.Size)
	}
	if ds := r.st.DirectionalShadow(); ds.Size > 0 {
		dirPx = 1 / float32(ds.Size)
	}
	w.Vec2(atlasPx, atlasPx)
	w.Vec2(dirPx, dirPx)

	maxLOD := float32(storage.ReflectionAtlasMipmaps - 1)
	if p.reflAtlas != nil && p.reflAtlas.Levels() > 0 {
		maxLOD = float32(p.reflAtlas.Levels() - 1)
	}
	w.Float(p.time)
	w.Float(p.zFar)
	w.Float(1)
	w.Float(r.cfg.SSSScale)
	w.Float(aoAffect)
	w.Float(aoChannel)
	w.Float(opaquePrepassThreshold)
	w.Float(maxLOD)

	w.Bool(fog.DepthEnabled)
	w.Float(fog.DepthBegin)
	w.Float(fog.DepthEnd)
	w.Float(fog.DepthCurve)
	w.Bool(fog.TransmitEnabled)
	w.Float(fog.TransmitCurve)
	w.Bool(fog.HeightEnabled)
	w.Float(fog.HeightMin)
	w.Float(fog.HeightMax)
	w.Float(fog.HeightCurve)
	w.Int(0)
	r.sceneUBO.Upload()
}

// writeRadiance fills the Radiance block when the pass samples a sky.
func (r *Renderer) writeRadiance(p *scenePass) {
	if p.sky == nil || p.env == nil {
		return
	}
	w := &r.radianceUBO.w
	w.Reset()
	w.Mat4(p.cam.Transform.Mul(p.env.SkyOrientation.Inverse()))
	w.Float(p.env.AmbientSkyContribution)
	w.Float(float32(max(p.sky.RadianceLevels()-1, 0)))
	r.radianceUBO.Upload()
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
