package storage

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	gmath "gles3render/math"
)

// Radiance filter sample counts.
const (
	radianceSamplesHigh = 512
	radianceSamplesLow  = 64
)

// Sky is a panorama texture with the radiance cubemap filtered from it.
// Each mip of the cubemap holds the panorama convolved for one roughness.
type Sky struct {
	Panorama     ecs.Entity
	RadianceSize int
	// Filtered is false until the radiance cubemap holds the panorama.
	Filtered bool

	radiance glapi.Texture
	fbo      glapi.Framebuffer
	levels   int
	bytes    int
}

// RadianceID returns the GL name of the radiance cubemap.
func (sk *Sky) RadianceID() uint32 { return sk.radiance.ID() }

// RadianceLevels returns the number of mip levels in the radiance cubemap.
func (sk *Sky) RadianceLevels() int { return sk.levels }

func (sk *Sky) release() {
	sk.fbo.Release()
	sk.radiance.Release()
	sk.levels, sk.bytes, sk.Filtered = 0, 0, false
}

// SkyCreate makes an empty sky.
func (s *Storage) SkyCreate() ecs.Entity {
	e, _ := create(s, Sky{Panorama: ecs.Null})
	return e
}

func (s *Storage) destroySky(e ecs.Entity, sk *Sky) {
	s.info.TextureMem -= sk.bytes
	sk.release()
}

// Sky returns the sky component, or nil.
func (s *Storage) Sky(e ecs.Entity) *Sky { return ecs.Get[Sky](s.reg, e) }

// SkySetTexture sets the panorama and allocates a radiance cubemap of
// radianceSize per face, rounded up to a power of two. Filtering runs on
// the next UpdateDirty.
func (s *Storage) SkySetTexture(e, panorama ecs.Entity, radianceSize int) error {
	sk := get[Sky](s, e, "sky set texture")
	if sk == nil {
		return ErrInvalidHandle
	}
	s.info.TextureMem -= sk.bytes
	sk.release()
	sk.Panorama = panorama
	if panorama.IsNull() {
		s.dirtySkies.Unmark(e)
		return nil
	}
	if get[Texture](s, panorama, "sky set texture") == nil {
		sk.Panorama = ecs.Null
		return ErrInvalidHandle
	}
	if radianceSize < 32 {
		return fmt.Errorf("sky radiance size %d: %w", radianceSize, ErrInvalidArgument)
	}
	size := gmath.NextPowerOf2(radianceSize)
	sk.RadianceSize = size

	// Levels below 4×4 add nothing for roughness.
	levels := max(mipCount(size, size, 1)-2, 1)
	tex, fbos, bytes, err := newColorLevels(s.dev, glapi.TEXTURE_CUBE_MAP, size, s.hdrFormat(), 1)
	if err != nil {
		core.LogError("sky radiance %d: %v", size, err)
		return fmt.Errorf("sky set texture: %w", err)
	}
	// Remaining levels are defined without framebuffers; filtering
	// re-targets the one framebuffer per level and face.
	d := s.dev
	cf := s.hdrFormat()
	d.BindTexture(glapi.TEXTURE_CUBE_MAP, tex.ID())
	for l := 1; l < levels; l++ {
		w := int32(max(size>>l, 1))
		for f := uint32(0); f < 6; f++ {
			d.TexImage2D(glapi.TEXTURE_CUBE_MAP_POSITIVE_X+f, int32(l), cf.internal, w, w, cf.format, cf.xtype, nil)
		}
		bytes += 6 * int(w) * int(w) * cf.bytes
	}
	d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_MAX_LEVEL, int32(levels-1))
	d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR_MIPMAP_LINEAR)
	d.BindTexture(glapi.TEXTURE_CUBE_MAP, 0)

	sk.radiance, sk.fbo, sk.levels, sk.bytes = tex, fbos, levels, bytes
	s.info.TextureMem += bytes
	s.dirtySkies.Mark(e)
	return nil
}

// UpdateDirtySkies filters the panorama of every pending sky into its
// radiance cubemap. Skies whose filter program is still compiling stay
// pending.
func (s *Storage) UpdateDirtySkies() {
	var retry []ecs.Entity
	s.dirtySkies.Drain(func(e ecs.Entity) {
		sk := ecs.Get[Sky](s.reg, e)
		if sk == nil || !sk.radiance.Valid() {
			return
		}
		done, err := s.filterSky(sk)
		if err != nil {
			core.LogError("sky %v radiance: %v", e, err)
			return
		}
		if !done {
			retry = append(retry, e)
		}
	})
	for _, e := range retry {
		s.dirtySkies.Mark(e)
	}
}

// filterSky renders every face of every radiance level from the panorama,
// with roughness rising linearly across levels.
func (s *Storage) filterSky(sk *Sky) (bool, error) {
	pano := s.ResolveTexture(sk.Panorama)
	if pano == nil || !pano.Active {
		return false, nil
	}
	sh := s.filter
	sh.SetConditional(FilterUsePanorama, true)
	sh.SetConditional(FilterLowQuality, !s.cfg.HighQualityGGX)
	switch sh.Warm(0, sh.Conditionals()) {
	case shader.StatePending:
		return false, nil
	case shader.StateFailed:
		return false, fmt.Errorf("filter program: %w", shader.ErrCompile)
	}
	if _, err := sh.Bind(); err != nil {
		return false, err
	}
	samples := int32(radianceSamplesLow)
	if s.cfg.HighQualityGGX {
		samples = radianceSamplesHigh
	}

	d := s.dev
	d.ActiveTexture(glapi.TEXTURE0 + UnitSource)
	d.BindTexture(pano.Target, pano.ID())
	d.TexParameteri(pano.Target, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR)
	d.Disable(glapi.DEPTH_TEST)
	d.Disable(glapi.CULL_FACE)
	d.Disable(glapi.BLEND)
	d.BindFramebuffer(glapi.FRAMEBUFFER, sk.fbo.ID())
	var fbErr error
	for l := 0; l < sk.levels && fbErr == nil; l++ {
		size := int32(max(sk.RadianceSize>>l, 1))
		d.Viewport(0, 0, size, size)
		roughness := float32(0)
		if sk.levels > 1 {
			roughness = float32(l) / float32(sk.levels-1)
		}
		sh.Uniform1f(FilterRoughness, roughness)
		sh.Uniform1i(FilterSampleCount, samples)
		for f := 0; f < 6; f++ {
			d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, glapi.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(f), sk.radiance.ID(), int32(l))
			if err := glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER); err != nil {
				fbErr = fmt.Errorf("level %d face %d: %w", l, f, err)
				break
			}
			sh.Uniform1i(FilterFaceID, int32(f))
			s.DrawQuad()
		}
	}
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	s.applyTextureParams(pano)
	if fbErr != nil {
		return false, fbErr
	}
	sk.Filtered = true
	return true, nil
}
