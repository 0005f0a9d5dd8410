package storage

import (
	"fmt"
	"sort"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// Shadow slot keys pack the quadrant above the slot index.
const (
	ShadowQuadrantShift = 27
	ShadowIndexMask     = 1<<ShadowQuadrantShift - 1
)

// ShadowKey packs a quadrant and slot index.
func ShadowKey(quadrant, index int) uint32 {
	return uint32(quadrant)<<ShadowQuadrantShift | uint32(index)
}

// SplitShadowKey unpacks a slot key.
func SplitShadowKey(key uint32) (quadrant, index int) {
	return int(key>>ShadowQuadrantShift) & 3, int(key & ShadowIndexMask)
}

type shadowSlot struct {
	owner     ecs.Entity
	version   uint64
	allocTick uint64
}

type shadowQuadrant struct {
	subdiv int
	slots  []shadowSlot
}

// ShadowAtlas is a square depth texture split in four quadrants, each
// subdivided into equal slots leased to light instances.
type ShadowAtlas struct {
	Size int
	// SizeOrder lists quadrants by slot size, largest first; unused
	// quadrants come last.
	SizeOrder [4]int

	quadrants [4]shadowQuadrant
	owners    map[ecs.Entity]uint32
	depth     glapi.Texture
	fbo       glapi.Framebuffer
}

// Subdivision returns the slots per side of quadrant q.
func (a *ShadowAtlas) Subdivision(q int) int { return a.quadrants[q].subdiv }

// Owner returns the light instance leasing a slot, or null.
func (a *ShadowAtlas) Owner(key uint32) ecs.Entity {
	q, i := SplitShadowKey(key)
	if i >= len(a.quadrants[q].slots) {
		return ecs.Null
	}
	return a.quadrants[q].slots[i].owner
}

// Key returns the slot key of a light instance.
func (a *ShadowAtlas) Key(light ecs.Entity) (uint32, bool) {
	k, ok := a.owners[light]
	return k, ok
}

// SlotRect returns the pixel rect of a slot.
func (a *ShadowAtlas) SlotRect(key uint32) core.Rect2i {
	q, i := SplitShadowKey(key)
	quad := a.Size / 2
	sd := max(a.quadrants[q].subdiv, 1)
	slot := quad / sd
	return core.Rect2i{
		X:      (q&1)*quad + (i%sd)*slot,
		Y:      (q>>1)*quad + (i/sd)*slot,
		Width:  slot,
		Height: slot,
	}
}

// DepthID returns the GL name of the depth texture.
func (a *ShadowAtlas) DepthID() uint32 { return a.depth.ID() }

// FramebufferID returns the GL name of the framebuffer.
func (a *ShadowAtlas) FramebufferID() uint32 { return a.fbo.ID() }

func (a *ShadowAtlas) release(light ecs.Entity) {
	key, ok := a.owners[light]
	if !ok {
		return
	}
	q, i := SplitShadowKey(key)
	a.quadrants[q].slots[i] = shadowSlot{owner: ecs.Null}
	delete(a.owners, light)
}

func (a *ShadowAtlas) sortQuadrants() {
	a.SizeOrder = [4]int{0, 1, 2, 3}
	sort.SliceStable(a.SizeOrder[:], func(i, j int) bool {
		si, sj := a.quadrants[a.SizeOrder[i]].subdiv, a.quadrants[a.SizeOrder[j]].subdiv
		if si == 0 || sj == 0 {
			return sj == 0 && si != 0
		}
		return si < sj
	})
}

// ShadowAtlasCreate makes an empty atlas with the default 1/2/4/8
// quadrant subdivision.
func (s *Storage) ShadowAtlasCreate() ecs.Entity {
	a := ShadowAtlas{owners: map[ecs.Entity]uint32{}}
	for q, sd := range []int{1, 2, 4, 8} {
		a.quadrants[q].subdiv = sd
		a.quadrants[q].slots = make([]shadowSlot, sd*sd)
	}
	a.sortQuadrants()
	e, _ := create(s, a)
	return e
}

func (s *Storage) destroyShadowAtlas(e ecs.Entity, a *ShadowAtlas) {
	s.unlinkShadowOwners(e, a)
	s.info.TextureMem -= a.textureBytes()
	a.fbo.Release()
	a.depth.Release()
}

func (a *ShadowAtlas) textureBytes() int {
	if !a.depth.Valid() {
		return 0
	}
	return a.Size * a.Size * 4
}

func (s *Storage) unlinkShadowOwners(e ecs.Entity, a *ShadowAtlas) {
	for light := range a.owners {
		if li := ecs.Get[LightInstance](s.reg, light); li != nil {
			delete(li.shadowAtlases, e)
		}
	}
	clear(a.owners)
	for q := range a.quadrants {
		for i := range a.quadrants[q].slots {
			a.quadrants[q].slots[i] = shadowSlot{owner: ecs.Null}
		}
	}
}

// ShadowAtlasSetSize (re)creates the depth texture, rounding size up to a
// power of two. Every lease is dropped. Size 0 frees the texture.
func (s *Storage) ShadowAtlasSetSize(e ecs.Entity, size int) error {
	a := get[ShadowAtlas](s, e, "shadow atlas set size")
	if a == nil {
		return ErrInvalidHandle
	}
	if size < 0 {
		return fmt.Errorf("shadow atlas set size %d: %w", size, ErrInvalidArgument)
	}
	if size > 0 {
		size = gmath.NextPowerOf2(size)
	}
	if size == a.Size {
		return nil
	}
	s.unlinkShadowOwners(e, a)
	s.info.TextureMem -= a.textureBytes()
	a.fbo.Release()
	a.depth.Release()
	a.Size = 0
	if size == 0 {
		return nil
	}
	depth, fbo, err := newDepthTarget(s.dev, size, size)
	if err != nil {
		core.LogError("shadow atlas set size %d: %v", size, err)
		return fmt.Errorf("shadow atlas set size: %w", err)
	}
	a.depth, a.fbo, a.Size = depth, fbo, size
	s.info.TextureMem += a.textureBytes()
	return nil
}

// newDepthTarget makes a comparison-sampled DEPTH_COMPONENT24 texture
// behind a depth-only framebuffer. Nothing leaks on failure.
func newDepthTarget(d glapi.Device, w, h int) (glapi.Texture, glapi.Framebuffer, error) {
	tex, err := glapi.NewTextures(d, 1)
	if err != nil {
		return glapi.Texture{}, glapi.Framebuffer{}, err
	}
	fbo, err := glapi.NewFramebuffers(d, 1)
	if err != nil {
		tex.Release()
		return glapi.Texture{}, glapi.Framebuffer{}, err
	}
	d.ActiveTexture(glapi.TEXTURE0)
	d.BindTexture(glapi.TEXTURE_2D, tex.ID())
	d.TexImage2D(glapi.TEXTURE_2D, 0, glapi.DEPTH_COMPONENT24, int32(w), int32(h), glapi.DEPTH_COMPONENT, glapi.UNSIGNED_INT, nil)
	setDepthSampling(d, glapi.TEXTURE_2D)
	d.BindFramebuffer(glapi.FRAMEBUFFER, fbo.ID())
	d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.TEXTURE_2D, tex.ID(), 0)
	d.DrawBuffers([]uint32{glapi.NONE})
	d.ReadBuffer(glapi.NONE)
	err = glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	if err != nil {
		fbo.Release()
		tex.Release()
		return glapi.Texture{}, glapi.Framebuffer{}, fmt.Errorf("%dx%d depth: %w", w, h, err)
	}
	return tex, fbo, nil
}

func setDepthSampling(d glapi.Device, target uint32) {
	d.TexParameteri(target, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR)
	d.TexParameteri(target, glapi.TEXTURE_MAG_FILTER, glapi.LINEAR)
	d.TexParameteri(target, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(target, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(target, glapi.TEXTURE_COMPARE_MODE, glapi.COMPARE_REF_TO_TEXTURE)
	d.TexParameteri(target, glapi.TEXTURE_COMPARE_FUNC, glapi.LEQUAL)
}

// ShadowAtlasSetQuadrantSubdivision sets the slots per side of quadrant q.
// Values round up to a power of two up to 16; 0 disables the quadrant.
// Leases in the quadrant are dropped.
func (s *Storage) ShadowAtlasSetQuadrantSubdivision(e ecs.Entity, q, subdiv int) error {
	a := get[ShadowAtlas](s, e, "shadow atlas set quadrant subdivision")
	if a == nil {
		return ErrInvalidHandle
	}
	if q < 0 || q > 3 || subdiv < 0 || subdiv > 16 {
		return fmt.Errorf("shadow atlas quadrant %d subdivision %d: %w", q, subdiv, ErrInvalidArgument)
	}
	if subdiv > 0 {
		subdiv = gmath.NextPowerOf2(subdiv)
	}
	quad := &a.quadrants[q]
	if quad.subdiv == subdiv {
		return nil
	}
	for _, sl := range quad.slots {
		if !sl.owner.IsNull() {
			if li := ecs.Get[LightInstance](s.reg, sl.owner); li != nil {
				delete(li.shadowAtlases, e)
			}
			delete(a.owners, sl.owner)
		}
	}
	quad.subdiv = subdiv
	quad.slots = make([]shadowSlot, subdiv*subdiv)
	a.sortQuadrants()
	return nil
}

// ShadowAtlasUpdateLight leases a slot for light sized for coverage, the
// fraction of the viewport the light's shadow covers. It returns the slot
// key and whether the slot must be redrawn. A light keeps its slot while
// the slot's quadrant is the best fit; otherwise it moves once the slot has
// been held for longer than the realloc tolerance and a better one is
// free. Slots of lights not visible in the current scene pass for longer
// than the tolerance may be taken. ErrAtlasFull means no slot was found and
// the light's shadow is skipped this frame.
func (s *Storage) ShadowAtlasUpdateLight(e, light ecs.Entity, coverage float32, version uint64) (uint32, bool, error) {
	a := get[ShadowAtlas](s, e, "shadow atlas update light")
	if a == nil {
		return 0, false, ErrInvalidHandle
	}
	li := get[LightInstance](s, light, "shadow atlas update light")
	if li == nil {
		return 0, false, ErrInvalidHandle
	}
	if a.Size == 0 {
		return 0, false, fmt.Errorf("shadow atlas %v has no size: %w", e, ErrAtlasFull)
	}

	quad := a.Size / 2
	desired := gmath.NextPowerOf2(max(int(float32(quad)*gmath.Clamp(coverage, 0, 1)), 1))
	// SizeOrder runs from large to small slots, so the last fitting
	// quadrant holds the smallest slot still covering desired.
	bestSubdiv := 0
	for _, q := range a.SizeOrder {
		sd := a.quadrants[q].subdiv
		if sd == 0 {
			continue
		}
		if bestSubdiv == 0 || quad/sd >= desired {
			bestSubdiv = sd
		}
	}
	if bestSubdiv == 0 {
		return 0, false, fmt.Errorf("shadow atlas %v has no quadrants: %w", e, ErrAtlasFull)
	}
	var candidates, bestFit []int
	for _, q := range a.SizeOrder {
		sd := a.quadrants[q].subdiv
		if sd >= bestSubdiv {
			candidates = append(candidates, q)
		}
		if sd == bestSubdiv {
			bestFit = append(bestFit, q)
		}
	}

	tick := s.clock.Usec() / 1000
	if key, ok := a.owners[light]; ok {
		q, i := SplitShadowKey(key)
		slot := &a.quadrants[q].slots[i]
		redraw := slot.version != version
		if a.quadrants[q].subdiv == bestSubdiv || tick-slot.allocTick <= s.cfg.ShadowReallocMsec {
			slot.version = version
			return key, redraw, nil
		}
		if nq, ni, found := s.findShadowSlot(a, bestFit, tick); found {
			a.quadrants[q].slots[i] = shadowSlot{owner: ecs.Null}
			return s.leaseShadowSlot(e, a, light, li, nq, ni, version, tick), true, nil
		}
		slot.version = version
		return key, redraw, nil
	}
	if nq, ni, found := s.findShadowSlot(a, candidates, tick); found {
		return s.leaseShadowSlot(e, a, light, li, nq, ni, version, tick), true, nil
	}
	return 0, false, fmt.Errorf("shadow atlas %v: light %v: %w", e, light, ErrAtlasFull)
}

// findShadowSlot looks through the candidate quadrants for a free slot, or
// failing that the stale slot seen least recently.
func (s *Storage) findShadowSlot(a *ShadowAtlas, candidates []int, tick uint64) (int, int, bool) {
	for _, q := range candidates {
		quad := &a.quadrants[q]
		stale, stalePass := -1, uint64(0)
		for i, sl := range quad.slots {
			if sl.owner.IsNull() {
				return q, i, true
			}
			owner := ecs.Get[LightInstance](s.reg, sl.owner)
			if owner == nil {
				return q, i, true
			}
			if owner.LastScenePass == s.scenePass {
				continue
			}
			if tick-owner.LastVisibleUsec/1000 <= s.cfg.ShadowReallocMsec {
				continue
			}
			if stale < 0 || owner.LastScenePass < stalePass {
				stale, stalePass = i, owner.LastScenePass
			}
		}
		if stale >= 0 {
			return q, stale, true
		}
	}
	return 0, 0, false
}

func (s *Storage) leaseShadowSlot(e ecs.Entity, a *ShadowAtlas, light ecs.Entity, li *LightInstance, q, i int, version, tick uint64) uint32 {
	slot := &a.quadrants[q].slots[i]
	if !slot.owner.IsNull() {
		delete(a.owners, slot.owner)
		if prev := ecs.Get[LightInstance](s.reg, slot.owner); prev != nil {
			delete(prev.shadowAtlases, e)
		}
	}
	*slot = shadowSlot{owner: light, version: version, allocTick: tick}
	key := ShadowKey(q, i)
	a.owners[light] = key
	li.shadowAtlases[e] = struct{}{}
	return key
}

// ── Directional shadow ──

// DirectionalShadow is the square atlas directional cascades render into.
type DirectionalShadow struct {
	Size  int
	depth glapi.Texture
	fbo   glapi.Framebuffer
}

// DepthID returns the GL name of the depth texture.
func (d *DirectionalShadow) DepthID() uint32 { return d.depth.ID() }

// FramebufferID returns the GL name of the framebuffer.
func (d *DirectionalShadow) FramebufferID() uint32 { return d.fbo.ID() }

func (d *DirectionalShadow) init(dev glapi.Device, size int) error {
	d.Size = size
	if size == 0 {
		return nil
	}
	depth, fbo, err := newDepthTarget(dev, size, size)
	if err != nil {
		return err
	}
	d.depth, d.fbo = depth, fbo
	return nil
}

func (d *DirectionalShadow) release() {
	d.fbo.Release()
	d.depth.Release()
}

// CascadeRect returns the atlas rect of cascade i out of splits (1, 2 or
// 4): the whole atlas, two horizontal halves or four quadrants.
func (d *DirectionalShadow) CascadeRect(splits, i int) core.Rect2i {
	size := d.Size
	switch splits {
	case 2:
		return core.Rect2i{X: i * size / 2, Y: 0, Width: size / 2, Height: size}
	case 4:
		return core.Rect2i{X: (i & 1) * size / 2, Y: (i >> 1) * size / 2, Width: size / 2, Height: size / 2}
	}
	return core.Rect2i{Width: size, Height: size}
}

// DirectionalShadow returns the directional atlas.
func (s *Storage) DirectionalShadow() *DirectionalShadow { return &s.directional }

// DirectionalShadowGetCascadeRect returns the atlas rect cascade i of a
// light renders into.
func (s *Storage) DirectionalShadowGetCascadeRect(light ecs.Entity, i int) core.Rect2i {
	l := s.light(light, "directional shadow get cascade rect")
	if l == nil {
		return core.Rect2i{}
	}
	return s.directional.CascadeRect(l.DirectionalShadowMode.Splits(), i)
}

// ── Cubemap pool ──

// ShadowCubemap is a depth cubemap omni lights in cube mode render into
// before the paraboloid conversion.
type ShadowCubemap struct {
	Size    int
	cubemap glapi.Texture
	fbos    glapi.Framebuffer
}

// CubemapID returns the GL name of the depth cubemap.
func (c *ShadowCubemap) CubemapID() uint32 { return c.cubemap.ID() }

// FaceFramebuffer returns the framebuffer rendering into face i.
func (c *ShadowCubemap) FaceFramebuffer(i int) uint32 { return c.fbos.At(i) }

func (c *ShadowCubemap) release() {
	c.fbos.Release()
	c.cubemap.Release()
}

// createShadowCubemaps builds the pool from cubemap_size down to 32.
func (s *Storage) createShadowCubemaps() error {
	d := s.dev
	for size := s.cfg.ShadowCubemapSize; size >= 32; size >>= 1 {
		tex, err := glapi.NewTextures(d, 1)
		if err != nil {
			return err
		}
		fbos, err := glapi.NewFramebuffers(d, 6)
		if err != nil {
			tex.Release()
			return err
		}
		d.ActiveTexture(glapi.TEXTURE0)
		d.BindTexture(glapi.TEXTURE_CUBE_MAP, tex.ID())
		for f := uint32(0); f < 6; f++ {
			d.TexImage2D(glapi.TEXTURE_CUBE_MAP_POSITIVE_X+f, 0, glapi.DEPTH_COMPONENT24, int32(size), int32(size), glapi.DEPTH_COMPONENT, glapi.UNSIGNED_INT, nil)
		}
		setDepthSampling(d, glapi.TEXTURE_CUBE_MAP)
		d.TexParameteri(glapi.TEXTURE_CUBE_MAP, glapi.TEXTURE_COMPARE_MODE, glapi.NONE)
		var fbErr error
		for f := 0; f < 6; f++ {
			d.BindFramebuffer(glapi.FRAMEBUFFER, fbos.At(f))
			d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(f), tex.ID(), 0)
			if err := glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER); err != nil && fbErr == nil {
				fbErr = fmt.Errorf("cubemap %d face %d: %w", size, f, err)
			}
		}
		d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
		if fbErr != nil {
			fbos.Release()
			tex.Release()
			return fbErr
		}
		s.shadowCubemaps = append(s.shadowCubemaps, ShadowCubemap{Size: size, cubemap: tex, fbos: fbos})
	}
	return nil
}

// ShadowCubemapFor returns the smallest pooled cubemap at or above size,
// or the largest one when size exceeds the pool.
func (s *Storage) ShadowCubemapFor(size int) *ShadowCubemap {
	var best *ShadowCubemap
	for i := range s.shadowCubemaps {
		c := &s.shadowCubemaps[i]
		if c.Size >= size && (best == nil || c.Size < best.Size) {
			best = c
		}
	}
	if best == nil && len(s.shadowCubemaps) > 0 {
		best = &s.shadowCubemaps[0]
	}
	return best
}
