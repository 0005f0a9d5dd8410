package storage

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// ReflectionAtlasMipmaps is the number of roughness levels kept per slot.
const ReflectionAtlasMipmaps = 6

// ReflectionCubemapMaxSize is the largest cubemap probes render into.
const ReflectionCubemapMaxSize = 512

// ReflectionRenderSteps is the number of faces a probe renders, one per
// frame.
const ReflectionRenderSteps = 6

// ── Atlas ──

type reflectionSlot struct {
	owner     ecs.Entity
	lastFrame uint64
}

// ReflectionAtlas is a square color texture divided into Subdiv² slots,
// each holding the dual paraboloid radiance of one probe instance.
type ReflectionAtlas struct {
	Size   int
	Subdiv int

	slots []reflectionSlot
	color glapi.Texture
	fbos  glapi.Framebuffer
	bytes int
}

// ColorID returns the GL name of the atlas texture.
func (a *ReflectionAtlas) ColorID() uint32 { return a.color.ID() }

// LevelFramebuffer returns the framebuffer rendering into mip level l.
func (a *ReflectionAtlas) LevelFramebuffer(l int) uint32 {
	if l >= a.fbos.Len() {
		return 0
	}
	return a.fbos.At(l)
}

// Levels returns the number of mip levels with a framebuffer.
func (a *ReflectionAtlas) Levels() int { return a.fbos.Len() }

// SlotRect returns the pixel rect of slot i at mip level 0.
func (a *ReflectionAtlas) SlotRect(i int) core.Rect2i {
	sd := max(a.Subdiv, 1)
	slot := a.Size / sd
	return core.Rect2i{X: (i % sd) * slot, Y: (i / sd) * slot, Width: slot, Height: slot}
}

// Owner returns the probe instance leasing slot i.
func (a *ReflectionAtlas) Owner(i int) ecs.Entity {
	if i < 0 || i >= len(a.slots) {
		return ecs.Null
	}
	return a.slots[i].owner
}

// ReflectionAtlasCreate makes an empty atlas.
func (s *Storage) ReflectionAtlasCreate() ecs.Entity {
	e, _ := create(s, ReflectionAtlas{Subdiv: 1, slots: newReflectionSlots(1)})
	return e
}

func newReflectionSlots(n int) []reflectionSlot {
	slots := make([]reflectionSlot, n)
	for i := range slots {
		slots[i].owner = ecs.Null
	}
	return slots
}

func (s *Storage) destroyReflectionAtlas(e ecs.Entity, a *ReflectionAtlas) {
	s.unlinkReflectionSlots(a)
	s.info.TextureMem -= a.bytes
	a.fbos.Release()
	a.color.Release()
}

func (s *Storage) unlinkReflectionSlots(a *ReflectionAtlas) {
	for i := range a.slots {
		if pi := ecs.Get[ReflectionProbeInstance](s.reg, a.slots[i].owner); pi != nil {
			pi.AtlasIndex = -1
			pi.Atlas = ecs.Null
			pi.Dirty = true
		}
		a.slots[i] = reflectionSlot{owner: ecs.Null}
	}
}

// ReflectionAtlasSetSize (re)creates the atlas texture, rounding up to a
// power of two. Every probe loses its slot. Size 0 frees the texture.
func (s *Storage) ReflectionAtlasSetSize(e ecs.Entity, size int) error {
	a := get[ReflectionAtlas](s, e, "reflection atlas set size")
	if a == nil {
		return ErrInvalidHandle
	}
	if size < 0 {
		return fmt.Errorf("reflection atlas set size %d: %w", size, ErrInvalidArgument)
	}
	if size > 0 {
		size = gmath.NextPowerOf2(size)
	}
	if size == a.Size {
		return nil
	}
	s.unlinkReflectionSlots(a)
	s.info.TextureMem -= a.bytes
	a.fbos.Release()
	a.color.Release()
	a.Size, a.bytes = 0, 0
	if size == 0 {
		return nil
	}

	cf := s.hdrFormat()
	levels := min(ReflectionAtlasMipmaps, mipCount(size, size, 1))
	color, fbos, bytes, err := newColorLevels(s.dev, glapi.TEXTURE_2D, size, cf, levels)
	if err != nil {
		core.LogError("reflection atlas set size %d format=0x%X: %v", size, cf.internal, err)
		return fmt.Errorf("reflection atlas set size: %w", err)
	}
	a.color, a.fbos, a.Size, a.bytes = color, fbos, size, bytes
	s.info.TextureMem += bytes
	return nil
}

// ReflectionAtlasSetSubdivision sets the slots per side, rounding up to a
// power of two in 1..16. Every probe loses its slot.
func (s *Storage) ReflectionAtlasSetSubdivision(e ecs.Entity, subdiv int) error {
	a := get[ReflectionAtlas](s, e, "reflection atlas set subdivision")
	if a == nil {
		return ErrInvalidHandle
	}
	if subdiv < 1 || subdiv > 16 {
		return fmt.Errorf("reflection atlas subdivision %d: %w", subdiv, ErrInvalidArgument)
	}
	subdiv = gmath.NextPowerOf2(subdiv)
	if subdiv == a.Subdiv {
		return nil
	}
	s.unlinkReflectionSlots(a)
	a.Subdiv = subdiv
	a.slots = newReflectionSlots(subdiv * subdiv)
	return nil
}

// newColorLevels allocates a color texture with levels mip levels and one
// framebuffer per level. Nothing leaks on failure.
func newColorLevels(d glapi.Device, target uint32, size int, cf colorFormat, levels int) (glapi.Texture, glapi.Framebuffer, int, error) {
	tex, err := glapi.NewTextures(d, 1)
	if err != nil {
		return glapi.Texture{}, glapi.Framebuffer{}, 0, err
	}
	fbos, err := glapi.NewFramebuffers(d, levels)
	if err != nil {
		tex.Release()
		return glapi.Texture{}, glapi.Framebuffer{}, 0, err
	}
	bytes := 0
	d.ActiveTexture(glapi.TEXTURE0)
	d.BindTexture(target, tex.ID())
	for l := 0; l < levels; l++ {
		w := max(size>>l, 1)
		if target == glapi.TEXTURE_CUBE_MAP {
			for f := uint32(0); f < 6; f++ {
				d.TexImage2D(glapi.TEXTURE_CUBE_MAP_POSITIVE_X+f, int32(l), cf.internal, int32(w), int32(w), cf.format, cf.xtype, nil)
			}
			bytes += 6 * w * w * cf.bytes
		} else {
			d.TexImage2D(target, int32(l), cf.internal, int32(w), int32(w), cf.format, cf.xtype, nil)
			bytes += w * w * cf.bytes
		}
	}
	d.TexParameteri(target, glapi.TEXTURE_BASE_LEVEL, 0)
	d.TexParameteri(target, glapi.TEXTURE_MAX_LEVEL, int32(levels-1))
	d.TexParameteri(target, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR_MIPMAP_LINEAR)
	d.TexParameteri(target, glapi.TEXTURE_MAG_FILTER, glapi.LINEAR)
	d.TexParameteri(target, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(target, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)

	attach := uint32(glapi.TEXTURE_2D)
	if target == glapi.TEXTURE_CUBE_MAP {
		attach = glapi.TEXTURE_CUBE_MAP_POSITIVE_X
	}
	for l := 0; l < levels; l++ {
		d.BindFramebuffer(glapi.FRAMEBUFFER, fbos.At(l))
		d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, attach, tex.ID(), int32(l))
		if err = glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER); err != nil {
			err = fmt.Errorf("level %d size %d: %w", l, max(size>>l, 1), err)
			break
		}
	}
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	if err != nil {
		fbos.Release()
		tex.Release()
		return glapi.Texture{}, glapi.Framebuffer{}, 0, err
	}
	return tex, fbos, bytes, nil
}

// ── Probes ──

// ReflectionUpdateMode selects when a probe re-renders.
type ReflectionUpdateMode int

const (
	ReflectionUpdateOnce ReflectionUpdateMode = iota
	ReflectionUpdateAlways
)

// ReflectionProbe is the shared description of a box-projected probe.
type ReflectionProbe struct {
	UpdateMode                  ReflectionUpdateMode
	Intensity                   float32
	InteriorAmbient             core.Color
	InteriorAmbientEnergy       float32
	InteriorAmbientProbeContrib float32
	MaxDistance                 float32
	Extents                     gmath.Vec3
	OriginOffset                gmath.Vec3
	Interior                    bool
	BoxProjection               bool
	EnableShadows               bool
	CullMask                    uint32

	probeInstances map[ecs.Entity]struct{}
	instances      instanceSet
}

// ReflectionProbeCreate makes a 1×1×1 probe rendering once.
func (s *Storage) ReflectionProbeCreate() ecs.Entity {
	e, _ := create(s, ReflectionProbe{
		Intensity:       1,
		InteriorAmbient: core.ColorBlack,
		Extents:         gmath.NewVec3(1, 1, 1),
		CullMask:        0xFFFFF,
		probeInstances:  map[ecs.Entity]struct{}{},
		instances:       instanceSet{},
	})
	return e
}

func (s *Storage) destroyReflectionProbe(e ecs.Entity, p *ReflectionProbe) {
	for pi := range p.probeInstances {
		if in := ecs.Get[ReflectionProbeInstance](s.reg, pi); in != nil {
			in.Probe = ecs.Null
		}
	}
	s.unlinkBase(e, p.instances)
}

// updateProbe resolves e and flags its instances for a redraw after f
// runs.
func (s *Storage) updateProbe(e ecs.Entity, op string, f func(p *ReflectionProbe)) {
	p := get[ReflectionProbe](s, e, op)
	if p == nil {
		return
	}
	f(p)
	for pi := range p.probeInstances {
		if in := ecs.Get[ReflectionProbeInstance](s.reg, pi); in != nil {
			in.Dirty = true
		}
	}
	s.markInstances(p.instances)
}

func (s *Storage) ReflectionProbeSetUpdateMode(e ecs.Entity, m ReflectionUpdateMode) {
	s.updateProbe(e, "reflection probe set update mode", func(p *ReflectionProbe) { p.UpdateMode = m })
}

func (s *Storage) ReflectionProbeSetIntensity(e ecs.Entity, v float32) {
	s.updateProbe(e, "reflection probe set intensity", func(p *ReflectionProbe) { p.Intensity = v })
}

func (s *Storage) ReflectionProbeSetInteriorAmbient(e ecs.Entity, c core.Color) {
	s.updateProbe(e, "reflection probe set interior ambient", func(p *ReflectionProbe) { p.InteriorAmbient = c })
}

func (s *Storage) ReflectionProbeSetInteriorAmbientEnergy(e ecs.Entity, v float32) {
	s.updateProbe(e, "reflection probe set interior ambient energy", func(p *ReflectionProbe) { p.InteriorAmbientEnergy = v })
}

func (s *Storage) ReflectionProbeSetInteriorAmbientProbeContribution(e ecs.Entity, v float32) {
	s.updateProbe(e, "reflection probe set interior ambient probe contribution", func(p *ReflectionProbe) { p.InteriorAmbientProbeContrib = v })
}

func (s *Storage) ReflectionProbeSetMaxDistance(e ecs.Entity, v float32) {
	s.updateProbe(e, "reflection probe set max distance", func(p *ReflectionProbe) { p.MaxDistance = v })
}

func (s *Storage) ReflectionProbeSetExtents(e ecs.Entity, v gmath.Vec3) {
	s.updateProbe(e, "reflection probe set extents", func(p *ReflectionProbe) { p.Extents = v })
}

func (s *Storage) ReflectionProbeSetOriginOffset(e ecs.Entity, v gmath.Vec3) {
	s.updateProbe(e, "reflection probe set origin offset", func(p *ReflectionProbe) { p.OriginOffset = v })
}

func (s *Storage) ReflectionProbeSetAsInterior(e ecs.Entity, on bool) {
	s.updateProbe(e, "reflection probe set as interior", func(p *ReflectionProbe) { p.Interior = on })
}

func (s *Storage) ReflectionProbeSetEnableBoxProjection(e ecs.Entity, on bool) {
	s.updateProbe(e, "reflection probe set enable box projection", func(p *ReflectionProbe) { p.BoxProjection = on })
}

func (s *Storage) ReflectionProbeSetEnableShadows(e ecs.Entity, on bool) {
	s.updateProbe(e, "reflection probe set enable shadows", func(p *ReflectionProbe) { p.EnableShadows = on })
}

func (s *Storage) ReflectionProbeSetCullMask(e ecs.Entity, mask uint32) {
	s.updateProbe(e, "reflection probe set cull mask", func(p *ReflectionProbe) { p.CullMask = mask })
}

// ReflectionProbeGetAABB returns the local box spanned by the extents.
func (s *Storage) ReflectionProbeGetAABB(e ecs.Entity) gmath.AABB {
	p := get[ReflectionProbe](s, e, "reflection probe get aabb")
	if p == nil {
		return gmath.AABB{}
	}
	return gmath.AABB{Position: p.Extents.Negate(), Size: p.Extents.Mul(2)}
}

// ReflectionProbe returns the probe component, or nil.
func (s *Storage) ReflectionProbe(e ecs.Entity) *ReflectionProbe {
	return ecs.Get[ReflectionProbe](s.reg, e)
}

// ── Probe instances ──

// ReflectionProbeInstance is a probe placed in a scenario. AtlasIndex is
// -1 while it holds no atlas slot.
type ReflectionProbeInstance struct {
	Probe      ecs.Entity
	Atlas      ecs.Entity
	AtlasIndex int
	Dirty      bool
	RenderStep int
	Transform  gmath.Mat4
	LastPass   uint64
}

// ReflectionProbeInstanceCreate places probe in a scenario.
func (s *Storage) ReflectionProbeInstanceCreate(probe ecs.Entity) ecs.Entity {
	p := get[ReflectionProbe](s, probe, "reflection probe instance create")
	if p == nil {
		return ecs.Null
	}
	e, _ := create(s, ReflectionProbeInstance{
		Probe:      probe,
		Atlas:      ecs.Null,
		AtlasIndex: -1,
		Dirty:      true,
		Transform:  gmath.Mat4Identity(),
	})
	p.probeInstances[e] = struct{}{}
	return e
}

func (s *Storage) destroyReflectionProbeInstance(e ecs.Entity, pi *ReflectionProbeInstance) {
	s.releaseReflectionSlot(e, pi)
	if p := ecs.Get[ReflectionProbe](s.reg, pi.Probe); p != nil {
		delete(p.probeInstances, e)
	}
}

func (s *Storage) releaseReflectionSlot(e ecs.Entity, pi *ReflectionProbeInstance) {
	if a := ecs.Get[ReflectionAtlas](s.reg, pi.Atlas); a != nil && pi.AtlasIndex >= 0 && pi.AtlasIndex < len(a.slots) && a.slots[pi.AtlasIndex].owner == e {
		a.slots[pi.AtlasIndex] = reflectionSlot{owner: ecs.Null}
	}
	pi.Atlas, pi.AtlasIndex = ecs.Null, -1
}

// ReflectionProbeInstanceSetTransform moves the instance and requests a
// redraw.
func (s *Storage) ReflectionProbeInstanceSetTransform(e ecs.Entity, xf gmath.Mat4) {
	if pi := get[ReflectionProbeInstance](s, e, "reflection probe instance set transform"); pi != nil {
		pi.Transform = xf
		pi.Dirty = true
	}
}

// ReflectionProbeReleaseAtlasIndex gives the slot back.
func (s *Storage) ReflectionProbeReleaseAtlasIndex(e ecs.Entity) {
	if pi := get[ReflectionProbeInstance](s, e, "reflection probe release atlas index"); pi != nil {
		s.releaseReflectionSlot(e, pi)
	}
}

// ReflectionProbeInstanceNeedsRedraw reports whether the probe must render
// again: always-mode probes and dirty once-mode probes do.
func (s *Storage) ReflectionProbeInstanceNeedsRedraw(e ecs.Entity) bool {
	pi := get[ReflectionProbeInstance](s, e, "reflection probe instance needs redraw")
	if pi == nil {
		return false
	}
	p := ecs.Get[ReflectionProbe](s.reg, pi.Probe)
	return p != nil && (pi.Dirty || p.UpdateMode == ReflectionUpdateAlways)
}

// ReflectionProbeInstanceHasReflection reports whether the instance holds
// a slot with rendered content.
func (s *Storage) ReflectionProbeInstanceHasReflection(e ecs.Entity) bool {
	pi := get[ReflectionProbeInstance](s, e, "reflection probe instance has reflection")
	return pi != nil && pi.AtlasIndex >= 0 && s.reg.Valid(pi.Atlas)
}

// ReflectionProbeInstanceBeginRender leases a slot in atlas, taking the
// slot used least recently when none is free. Slots used in the current
// frame are never taken, so ErrAtlasFull means the probe is skipped this
// frame.
func (s *Storage) ReflectionProbeInstanceBeginRender(e, atlas ecs.Entity) error {
	pi := get[ReflectionProbeInstance](s, e, "reflection probe instance begin render")
	if pi == nil {
		return ErrInvalidHandle
	}
	a := get[ReflectionAtlas](s, atlas, "reflection probe instance begin render")
	if a == nil {
		return ErrInvalidHandle
	}
	if a.Size == 0 {
		return fmt.Errorf("reflection atlas %v has no size: %w", atlas, ErrAtlasFull)
	}
	if pi.Atlas != atlas || pi.AtlasIndex < 0 {
		s.releaseReflectionSlot(e, pi)
		best := -1
		for i, sl := range a.slots {
			if !s.reg.Valid(sl.owner) {
				best = i
				break
			}
			if sl.lastFrame == s.frame {
				continue
			}
			if best < 0 || sl.lastFrame < a.slots[best].lastFrame {
				best = i
			}
		}
		if best < 0 {
			return fmt.Errorf("reflection atlas %v: probe %v: %w", atlas, e, ErrAtlasFull)
		}
		if prev := ecs.Get[ReflectionProbeInstance](s.reg, a.slots[best].owner); prev != nil {
			prev.Atlas, prev.AtlasIndex, prev.Dirty = ecs.Null, -1, true
		}
		a.slots[best] = reflectionSlot{owner: e}
		pi.Atlas, pi.AtlasIndex = atlas, best
	}
	a.slots[pi.AtlasIndex].lastFrame = s.frame
	pi.RenderStep = 0
	return nil
}

// ReflectionProbeInstancePostprocessStep advances the face counter after
// a face was drawn and reports whether all six are done, at which point
// the instance is clean.
func (s *Storage) ReflectionProbeInstancePostprocessStep(e ecs.Entity) bool {
	pi := get[ReflectionProbeInstance](s, e, "reflection probe instance postprocess step")
	if pi == nil || pi.AtlasIndex < 0 {
		return false
	}
	pi.RenderStep++
	if pi.RenderStep < ReflectionRenderSteps {
		return false
	}
	pi.RenderStep = 0
	pi.Dirty = false
	return true
}

// ReflectionProbeInstanceMarkUsed keeps the slot from being taken this
// frame.
func (s *Storage) ReflectionProbeInstanceMarkUsed(e ecs.Entity) {
	pi := get[ReflectionProbeInstance](s, e, "reflection probe instance mark used")
	if pi == nil {
		return
	}
	pi.LastPass = s.scenePass
	if a := ecs.Get[ReflectionAtlas](s.reg, pi.Atlas); a != nil && pi.AtlasIndex >= 0 && pi.AtlasIndex < len(a.slots) {
		a.slots[pi.AtlasIndex].lastFrame = s.frame
	}
}

// ── Cubemap pool ──

// ReflectionCubemap is a color cubemap with a depth renderbuffer probes
// render their faces into before filtering into the atlas.
type ReflectionCubemap struct {
	Size    int
	cubemap glapi.Texture
	depth   glapi.Renderbuffer
	fbos    glapi.Framebuffer
}

// CubemapID returns the GL name of the color cubemap.
func (c *ReflectionCubemap) CubemapID() uint32 { return c.cubemap.ID() }

// FaceFramebuffer returns the framebuffer rendering into face i, level 0.
func (c *ReflectionCubemap) FaceFramebuffer(i int) uint32 { return c.fbos.At(i) }

func (c *ReflectionCubemap) release() {
	c.fbos.Release()
	c.depth.Release()
	c.cubemap.Release()
}

func (s *Storage) createReflectionCubemaps() error {
	d := s.dev
	cf := s.hdrFormat()
	for size := ReflectionCubemapMaxSize; size >= 32; size >>= 1 {
		tex, err := glapi.NewTextures(d, 1)
		if err != nil {
			return err
		}
		rb, err := glapi.NewRenderbuffers(d, 1)
		if err != nil {
			tex.Release()
			return err
		}
		fbos, err := glapi.NewFramebuffers(d, 6)
		if err != nil {
			rb.Release()
			tex.Release()
			return err
		}
		c := ReflectionCubemap{Size: size, cubemap: tex, depth: rb, fbos: fbos}

		levels := mipCount(size, size, 1)
		d.ActiveTexture(glapi.TEXTURE0)
		d.BindTexture(glapi.TEXTURE_CUBE_MAP, tex.ID())
		for l := 0; l < levels; l++ {
			w := int32(max(size>>l, 1))
			for f := uint32(0); f < 6; f++ {
				d.TexImage2D(glapi.TEXTURE_CUBE_MAP_POSITIVE_X+f, int32(l), cf.internal, w, w, cf.format, cf.xtype, nil)
			}
		}
		d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR_MIPMAP_LINEAR)
		d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_MAG_FILTER, glapi.LINEAR)
		d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
		d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)

		d.BindRenderbuffer(glapi.RENDERBUFFER, rb.ID())
		d.RenderbufferStorage(glapi.RENDERBUFFER, glapi.DEPTH_COMPONENT24, int32(size), int32(size))
		d.BindRenderbuffer(glapi.RENDERBUFFER, 0)

		var fbErr error
		for f := 0; f < 6; f++ {
			d.BindFramebuffer(glapi.FRAMEBUFFER, fbos.At(f))
			d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, glapi.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(f), tex.ID(), 0)
			d.FramebufferRenderbuffer(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.RENDERBUFFER, rb.ID())
			if err := glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER); err != nil && fbErr == nil {
				fbErr = fmt.Errorf("reflection cubemap %d face %d: %w", size, f, err)
			}
		}
		d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
		if fbErr != nil {
			c.release()
			return fbErr
		}
		s.reflectionCubemap = append(s.reflectionCubemap, c)
	}
	return nil
}

// ReflectionCubemapFor returns the smallest pooled cubemap at or above
// size, or the largest one.
func (s *Storage) ReflectionCubemapFor(size int) *ReflectionCubemap {
	var best *ReflectionCubemap
	for i := range s.reflectionCubemap {
		c := &s.reflectionCubemap[i]
		if c.Size >= size && (best == nil || c.Size < best.Size) {
			best = c
		}
	}
	if best == nil && len(s.reflectionCubemap) > 0 {
		best = &s.reflectionCubemap[0]
	}
	return best
}
