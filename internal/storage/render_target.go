package storage

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
)

// colorFormat is the internal format, upload format and type of a render
// buffer, with its size per pixel.
type colorFormat struct {
	internal int32
	format   uint32
	xtype    uint32
	bytes    int
}

var (
	formatRGBA8   = colorFormat{glapi.RGBA8, glapi.RGBA, glapi.UNSIGNED_BYTE, 4}
	formatRGBA16F = colorFormat{glapi.RGBA16F, glapi.RGBA, glapi.HALF_FLOAT, 8}
	formatR8      = colorFormat{glapi.R8, glapi.RED, glapi.UNSIGNED_BYTE, 1}
	formatR32F    = colorFormat{glapi.R32F, glapi.RED, glapi.FLOAT, 4}
	formatRGB10A2 = colorFormat{glapi.RGB10_A2, glapi.RGBA, glapi.UNSIGNED_INT_2_10_10_10_REV, 4}
)

// hdrFormat is the format of light accumulation buffers.
func (s *Storage) hdrFormat() colorFormat {
	if s.feat.HalfRenderTarget {
		return formatRGBA16F
	}
	return formatRGB10A2
}

// RenderTargetFlag toggles a render target feature.
type RenderTargetFlag int

const (
	RenderTargetTransparent RenderTargetFlag = iota
	RenderTargetVFlip
	RenderTargetKeepLinear
	RenderTargetNo3DEffects
	RenderTargetNo3D
	RenderTargetHDR
	RenderTargetFlagMax
)

var renderTargetFlagNames = [...]string{"transparent", "vflip", "keep-linear", "no-3d-effects", "no-3d", "hdr"}

func (f RenderTargetFlag) String() string {
	if f < 0 || int(f) >= len(renderTargetFlagNames) {
		return fmt.Sprintf("RenderTargetFlag(%d)", int(f))
	}
	return renderTargetFlagNames[f]
}

// MSAA is the multisample count of the main color pass.
type MSAA int

const (
	MSAADisabled MSAA = 0
	MSAA2        MSAA = 2
	MSAA4        MSAA = 4
	MSAA8        MSAA = 8
	MSAA16       MSAA = 16
)

// EffectLevel is one level of an effect pyramid.
type EffectLevel struct {
	FBO    uint32
	Width  int
	Height int
}

// EffectPyramid is a mip chain of one texture with a framebuffer per level.
type EffectPyramid struct {
	tex    glapi.Texture
	fbos   glapi.Framebuffer
	levels []EffectLevel
}

// TextureID returns the GL name of the pyramid texture.
func (p *EffectPyramid) TextureID() uint32 { return p.tex.ID() }

// Levels returns the pyramid levels, largest first.
func (p *EffectPyramid) Levels() []EffectLevel { return p.levels }

func (p *EffectPyramid) release() {
	p.fbos.Release()
	p.tex.Release()
	p.levels = nil
}

// alloc builds levels from w×h down, halving each step, while both sides
// stay at least minSize.
func (p *EffectPyramid) alloc(d glapi.Device, w, h int, cf colorFormat, maxLevels, minSize int) (int, error) {
	n := 0
	for lw, lh := w, h; n < maxLevels && lw >= minSize && lh >= minSize; lw, lh = lw>>1, lh>>1 {
		n++
	}
	n = max(n, 1)
	tex, err := glapi.NewTextures(d, 1)
	if err != nil {
		return 0, err
	}
	fbos, err := glapi.NewFramebuffers(d, n)
	if err != nil {
		tex.Release()
		return 0, err
	}
	p.tex, p.fbos = tex, fbos
	bytes := 0
	d.ActiveTexture(glapi.TEXTURE0)
	d.BindTexture(glapi.TEXTURE_2D, tex.ID())
	for l := 0; l < n; l++ {
		lw, lh := max(w>>l, 1), max(h>>l, 1)
		d.TexImage2D(glapi.TEXTURE_2D, int32(l), cf.internal, int32(lw), int32(lh), cf.format, cf.xtype, nil)
		bytes += lw * lh * cf.bytes
		p.levels = append(p.levels, EffectLevel{FBO: fbos.At(l), Width: lw, Height: lh})
	}
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_BASE_LEVEL, 0)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAX_LEVEL, int32(n-1))
	setLinearClamp(d, glapi.TEXTURE_2D, n > 1)
	for l := 0; l < n; l++ {
		d.BindFramebuffer(glapi.FRAMEBUFFER, fbos.At(l))
		d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, glapi.TEXTURE_2D, tex.ID(), int32(l))
		if err := glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER); err != nil {
			d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
			p.release()
			return 0, fmt.Errorf("effect level %d %dx%d: %w", l, max(w>>l, 1), max(h>>l, 1), err)
		}
	}
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return bytes, nil
}

// ColorBuffer is a single-level texture behind its own framebuffer.
type ColorBuffer struct {
	tex glapi.Texture
	fbo glapi.Framebuffer
	w   int
	h   int
}

// TextureID returns the GL name of the texture.
func (c *ColorBuffer) TextureID() uint32 { return c.tex.ID() }

// FBO returns the GL name of the framebuffer.
func (c *ColorBuffer) FBO() uint32 { return c.fbo.ID() }

// Size returns the buffer size in pixels.
func (c *ColorBuffer) Size() (int, int) { return c.w, c.h }

func (c *ColorBuffer) release() {
	c.fbo.Release()
	c.tex.Release()
}

func (c *ColorBuffer) alloc(d glapi.Device, w, h int, cf colorFormat, filter bool) (int, error) {
	tex, err := newTexture2D(d, w, h, cf, filter)
	if err != nil {
		return 0, err
	}
	fbo, err := glapi.NewFramebuffers(d, 1)
	if err != nil {
		tex.Release()
		return 0, err
	}
	d.BindFramebuffer(glapi.FRAMEBUFFER, fbo.ID())
	d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, glapi.TEXTURE_2D, tex.ID(), 0)
	err = glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	if err != nil {
		fbo.Release()
		tex.Release()
		return 0, fmt.Errorf("%dx%d format=0x%X: %w", w, h, cf.internal, err)
	}
	c.tex, c.fbo, c.w, c.h = tex, fbo, w, h
	return w * h * cf.bytes, nil
}

func newTexture2D(d glapi.Device, w, h int, cf colorFormat, filter bool) (glapi.Texture, error) {
	tex, err := glapi.NewTextures(d, 1)
	if err != nil {
		return glapi.Texture{}, err
	}
	d.ActiveTexture(glapi.TEXTURE0)
	d.BindTexture(glapi.TEXTURE_2D, tex.ID())
	d.TexImage2D(glapi.TEXTURE_2D, 0, cf.internal, int32(w), int32(h), cf.format, cf.xtype, nil)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAX_LEVEL, 0)
	if filter {
		setLinearClamp(d, glapi.TEXTURE_2D, false)
	} else {
		d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MIN_FILTER, glapi.NEAREST)
		d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAG_FILTER, glapi.NEAREST)
		d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
		d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)
	}
	return tex, nil
}

func setLinearClamp(d glapi.Device, target uint32, mipmapped bool) {
	minFilter := int32(glapi.LINEAR)
	if mipmapped {
		minFilter = glapi.LINEAR_MIPMAP_LINEAR
	}
	d.TexParameteri(target, glapi.TEXTURE_MIN_FILTER, minFilter)
	d.TexParameteri(target, glapi.TEXTURE_MAG_FILTER, glapi.LINEAR)
	d.TexParameteri(target, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(target, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)
}

// MRTBuffers are the auxiliary outputs of the main pass when screen
// effects need them: diffuse, specular, normal-roughness and SSS strength
// sharing the target's depth.
type MRTBuffers struct {
	fbo         glapi.Framebuffer
	diffuse     glapi.Texture
	specular    glapi.Texture
	normalRough glapi.Texture
	sss         glapi.Texture
	// resolve is a plain color target effects read the composed image from.
	resolve ColorBuffer
}

// FBO returns the MRT framebuffer.
func (m *MRTBuffers) FBO() uint32 { return m.fbo.ID() }

// Diffuse returns the diffuse light texture.
func (m *MRTBuffers) Diffuse() uint32 { return m.diffuse.ID() }

// Specular returns the specular light texture.
func (m *MRTBuffers) Specular() uint32 { return m.specular.ID() }

// NormalRoughness returns the normal-roughness texture.
func (m *MRTBuffers) NormalRoughness() uint32 { return m.normalRough.ID() }

// SSS returns the SSS strength texture, 0 when SSS is not allocated.
func (m *MRTBuffers) SSS() uint32 { return m.sss.ID() }

// Resolve returns the color buffer the MRT outputs are composed into.
func (m *MRTBuffers) Resolve() *ColorBuffer { return &m.resolve }

// Valid reports whether the buffers were allocated.
func (m *MRTBuffers) Valid() bool { return m.fbo.Valid() }

func (m *MRTBuffers) release() {
	m.resolve.release()
	m.fbo.Release()
	m.sss.Release()
	m.normalRough.Release()
	m.specular.Release()
	m.diffuse.Release()
}

// SSAOBuffers hold the half resolution linear depth pyramid and the two
// blur targets.
type SSAOBuffers struct {
	Depth EffectPyramid
	Blur  [2]ColorBuffer
}

func (b *SSAOBuffers) release() {
	b.Depth.release()
	b.Blur[0].release()
	b.Blur[1].release()
}

// ExposureLevels is the number of 3× luminance reduction steps.
const ExposureLevels = 5

// ExposureBuffers hold the luminance reduction ladder and the 1×1 exposure
// history the last level blends into.
type ExposureBuffers struct {
	Ladder  [ExposureLevels]ColorBuffer
	History ColorBuffer
}

func (b *ExposureBuffers) release() {
	for i := range b.Ladder {
		b.Ladder[i].release()
	}
	b.History.release()
}

// msaaBuffers are multisampled renderbuffers resolved into the main
// framebuffer with a blit.
type msaaBuffers struct {
	fbo   glapi.Framebuffer
	color glapi.Renderbuffer
	depth glapi.Renderbuffer
}

func (m *msaaBuffers) release() {
	m.fbo.Release()
	m.depth.Release()
	m.color.Release()
}

// RenderTarget is an offscreen surface the scene renders into. Its color
// texture is exposed as a Texture entity owned by the target.
type RenderTarget struct {
	X, Y          int
	Width, Height int
	Flags         [RenderTargetFlagMax]bool
	MSAA          MSAA
	FXAA          bool
	Debanding     bool
	Sharpen       float32

	// Texture is the color texture entity; it is freed with the target.
	Texture ecs.Entity

	ClearRequested bool
	ClearColor     core.Color

	// Valid is false when the last allocation failed.
	Valid bool

	fbo   glapi.Framebuffer
	color glapi.Texture
	depth glapi.Texture
	cf    colorFormat

	Buffers  MRTBuffers
	Effects  [2]EffectPyramid
	SSAO     SSAOBuffers
	Exposure ExposureBuffers
	msaa     msaaBuffers
	bytes    int
}

// FBO returns the main framebuffer.
func (rt *RenderTarget) FBO() uint32 { return rt.fbo.ID() }

// ColorID returns the color texture.
func (rt *RenderTarget) ColorID() uint32 { return rt.color.ID() }

// DepthID returns the depth texture.
func (rt *RenderTarget) DepthID() uint32 { return rt.depth.ID() }

// MSAAFBO returns the multisampled framebuffer, 0 when MSAA is off.
func (rt *RenderTarget) MSAAFBO() uint32 { return rt.msaa.fbo.ID() }

// EffectPyramid returns pyramid i (0 full size, 1 half size).
func (rt *RenderTarget) EffectPyramid(i int) *EffectPyramid { return &rt.Effects[i] }

// Has3DEffects reports whether the effect buffers exist.
func (rt *RenderTarget) Has3DEffects() bool { return rt.Buffers.Valid() }

func (rt *RenderTarget) release() {
	rt.msaa.release()
	rt.Exposure.release()
	rt.SSAO.release()
	rt.Effects[0].release()
	rt.Effects[1].release()
	rt.Buffers.release()
	rt.fbo.Release()
	rt.depth.Release()
	rt.color.Release()
	rt.bytes = 0
}

// RenderTargetCreate makes a target with no storage and its color
// texture entity.
func (s *Storage) RenderTargetCreate() ecs.Entity {
	e, rt := create(s, RenderTarget{ClearColor: core.ColorBlack})
	tex, _ := create(s, Texture{
		Name:         "render target",
		Type:         TextureType2D,
		Format:       ImageRGBA8,
		Depth:        1,
		Mipmaps:      1,
		Target:       glapi.TEXTURE_2D,
		Proxy:        ecs.Null,
		RenderTarget: e,
		proxies:      map[ecs.Entity]struct{}{},
	})
	s.info.Textures++
	rt.Texture = tex
	return e
}

func (s *Storage) destroyRenderTarget(e ecs.Entity, rt *RenderTarget) {
	s.info.TextureMem -= rt.bytes
	rt.release()
	s.reg.Destroy(rt.Texture)
}

// RenderTargetSetPosition sets the screen offset used when blitting to the
// window.
func (s *Storage) RenderTargetSetPosition(e ecs.Entity, x, y int) {
	if rt := get[RenderTarget](s, e, "render target set position"); rt != nil {
		rt.X, rt.Y = x, y
	}
}

// RenderTargetSetSize reallocates every buffer at the new size.
func (s *Storage) RenderTargetSetSize(e ecs.Entity, w, h int) error {
	rt := get[RenderTarget](s, e, "render target set size")
	if rt == nil {
		return ErrInvalidHandle
	}
	if w < 0 || h < 0 {
		return fmt.Errorf("render target set size %dx%d: %w", w, h, ErrInvalidArgument)
	}
	if w == rt.Width && h == rt.Height && rt.Valid {
		return nil
	}
	rt.Width, rt.Height = w, h
	return s.allocateRenderTarget(e, rt)
}

// RenderTargetGetTexture returns the color texture entity.
func (s *Storage) RenderTargetGetTexture(e ecs.Entity) ecs.Entity {
	if rt := get[RenderTarget](s, e, "render target get texture"); rt != nil {
		return rt.Texture
	}
	return ecs.Null
}

// RenderTargetSetFlag toggles a feature. Flags changing buffer layout
// reallocate the target.
func (s *Storage) RenderTargetSetFlag(e ecs.Entity, f RenderTargetFlag, on bool) error {
	rt := get[RenderTarget](s, e, "render target set flag")
	if rt == nil {
		return ErrInvalidHandle
	}
	if f < 0 || f >= RenderTargetFlagMax {
		return fmt.Errorf("render target flag %d: %w", f, ErrInvalidArgument)
	}
	if rt.Flags[f] == on {
		return nil
	}
	rt.Flags[f] = on
	switch f {
	case RenderTargetTransparent, RenderTargetNo3DEffects, RenderTargetNo3D, RenderTargetHDR:
		return s.allocateRenderTarget(e, rt)
	}
	return nil
}

// RenderTargetGetFlag reports a feature flag.
func (s *Storage) RenderTargetGetFlag(e ecs.Entity, f RenderTargetFlag) bool {
	rt := get[RenderTarget](s, e, "render target get flag")
	return rt != nil && f >= 0 && f < RenderTargetFlagMax && rt.Flags[f]
}

// RenderTargetSetMSAA sets the sample count, clamped to the driver limit.
func (s *Storage) RenderTargetSetMSAA(e ecs.Entity, m MSAA) error {
	rt := get[RenderTarget](s, e, "render target set msaa")
	if rt == nil {
		return ErrInvalidHandle
	}
	if m != MSAADisabled && s.feat.MaxSamples > 0 {
		m = min(m, MSAA(s.feat.MaxSamples))
	}
	if m == rt.MSAA {
		return nil
	}
	rt.MSAA = m
	return s.allocateRenderTarget(e, rt)
}

func (s *Storage) RenderTargetSetUseFXAA(e ecs.Entity, on bool) {
	if rt := get[RenderTarget](s, e, "render target set use fxaa"); rt != nil {
		rt.FXAA = on
	}
}

func (s *Storage) RenderTargetSetUseDebanding(e ecs.Entity, on bool) {
	if rt := get[RenderTarget](s, e, "render target set use debanding"); rt != nil {
		rt.Debanding = on
	}
}

func (s *Storage) RenderTargetSetSharpenIntensity(e ecs.Entity, v float32) {
	if rt := get[RenderTarget](s, e, "render target set sharpen intensity"); rt != nil {
		rt.Sharpen = max(v, 0)
	}
}

// RenderTargetRequestClear asks the next frame to clear the target with c
// before drawing.
func (s *Storage) RenderTargetRequestClear(e ecs.Entity, c core.Color) {
	if rt := get[RenderTarget](s, e, "render target request clear"); rt != nil {
		rt.ClearRequested, rt.ClearColor = true, c
	}
}

// RenderTargetIsClearRequested reports a pending clear.
func (s *Storage) RenderTargetIsClearRequested(e ecs.Entity) bool {
	rt := get[RenderTarget](s, e, "render target is clear requested")
	return rt != nil && rt.ClearRequested
}

// RenderTargetGetClearRequestColor returns the pending clear color.
func (s *Storage) RenderTargetGetClearRequestColor(e ecs.Entity) core.Color {
	if rt := get[RenderTarget](s, e, "render target get clear request color"); rt != nil {
		return rt.ClearColor
	}
	return core.ColorBlack
}

// RenderTargetDisableClearRequest drops a pending clear.
func (s *Storage) RenderTargetDisableClearRequest(e ecs.Entity) {
	if rt := get[RenderTarget](s, e, "render target disable clear request"); rt != nil {
		rt.ClearRequested = false
	}
}

// RenderTarget returns the target component, or nil.
func (s *Storage) RenderTarget(e ecs.Entity) *RenderTarget {
	return ecs.Get[RenderTarget](s.reg, e)
}

// allocateRenderTarget releases and rebuilds every buffer. On failure all
// buffers are released, the target is marked invalid and its texture
// inactive.
func (s *Storage) allocateRenderTarget(e ecs.Entity, rt *RenderTarget) error {
	s.info.TextureMem -= rt.bytes
	rt.release()
	rt.Valid = false
	tex := ecs.Get[Texture](s.reg, rt.Texture)
	if tex != nil {
		tex.Active = false
		tex.borrowed = 0
		tex.Width, tex.Height, tex.AllocWidth, tex.AllocHeight = 0, 0, 0, 0
		s.info.TextureMem -= tex.DataSize
		tex.DataSize = 0
	}
	if rt.Width == 0 || rt.Height == 0 {
		return nil
	}

	rt.cf = formatRGBA8
	if rt.Flags[RenderTargetHDR] {
		rt.cf = s.hdrFormat()
	}
	if err := s.buildRenderTarget(rt); err != nil {
		rt.release()
		core.LogError("render target %v %dx%d format=0x%X flags=%v msaa=%d: %v",
			e, rt.Width, rt.Height, rt.cf.internal, rt.Flags, rt.MSAA, err)
		return fmt.Errorf("render target allocate: %w", err)
	}
	s.info.TextureMem += rt.bytes
	rt.Valid = true
	if tex != nil {
		tex.Active = true
		tex.borrowed = rt.color.Borrow()
		tex.Width, tex.Height = rt.Width, rt.Height
		tex.AllocWidth, tex.AllocHeight = rt.Width, rt.Height
		tex.Format = ImageRGBA8
		if rt.cf == formatRGBA16F {
			tex.Format = ImageRGBAH
		}
	}
	return nil
}

func (s *Storage) buildRenderTarget(rt *RenderTarget) error {
	d := s.dev
	w, h := rt.Width, rt.Height

	color, err := newTexture2D(d, w, h, rt.cf, true)
	if err != nil {
		return fmt.Errorf("color: %w", err)
	}
	rt.color = color
	depth, err := glapi.NewTextures(d, 1)
	if err != nil {
		return fmt.Errorf("depth: %w", err)
	}
	rt.depth = depth
	d.BindTexture(glapi.TEXTURE_2D, depth.ID())
	d.TexImage2D(glapi.TEXTURE_2D, 0, glapi.DEPTH_COMPONENT24, int32(w), int32(h), glapi.DEPTH_COMPONENT, glapi.UNSIGNED_INT, nil)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MIN_FILTER, glapi.NEAREST)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAG_FILTER, glapi.NEAREST)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)
	rt.bytes += w*h*rt.cf.bytes + w*h*4

	fbo, err := glapi.NewFramebuffers(d, 1)
	if err != nil {
		return fmt.Errorf("framebuffer: %w", err)
	}
	rt.fbo = fbo
	d.BindFramebuffer(glapi.FRAMEBUFFER, fbo.ID())
	d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, glapi.TEXTURE_2D, color.ID(), 0)
	d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.TEXTURE_2D, depth.ID(), 0)
	err = glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}

	if rt.MSAA != MSAADisabled {
		if err := s.buildMSAA(rt); err != nil {
			return fmt.Errorf("msaa: %w", err)
		}
	}
	if rt.Flags[RenderTargetNo3D] || rt.Flags[RenderTargetNo3DEffects] {
		return nil
	}
	if err := s.buildMRT(rt); err != nil {
		return fmt.Errorf("mrt: %w", err)
	}

	hdr := s.hdrFormat()
	n, err := rt.Effects[0].alloc(d, w, h, hdr, 8, 4)
	if err != nil {
		return err
	}
	rt.bytes += n
	if n, err = rt.Effects[1].alloc(d, max(w/2, 1), max(h/2, 1), hdr, 7, 4); err != nil {
		return err
	}
	rt.bytes += n

	if n, err = rt.SSAO.Depth.alloc(d, max(w/2, 1), max(h/2, 1), formatR32F, 5, 1); err != nil {
		return fmt.Errorf("ssao depth: %w", err)
	}
	rt.bytes += n
	for i := range rt.SSAO.Blur {
		if n, err = rt.SSAO.Blur[i].alloc(d, w, h, formatR8, true); err != nil {
			return fmt.Errorf("ssao blur %d: %w", i, err)
		}
		rt.bytes += n
	}

	size := 1
	for i := ExposureLevels - 1; i >= 0; i-- {
		if n, err = rt.Exposure.Ladder[i].alloc(d, size, size, formatR32F, false); err != nil {
			return fmt.Errorf("exposure level %d: %w", i, err)
		}
		rt.bytes += n
		size *= 3
	}
	if n, err = rt.Exposure.History.alloc(d, 1, 1, formatR32F, false); err != nil {
		return fmt.Errorf("exposure: %w", err)
	}
	rt.bytes += n
	// Exposure starts at 1 so the first frame is not black.
	d.BindFramebuffer(glapi.FRAMEBUFFER, rt.Exposure.History.FBO())
	d.ClearBufferfv(glapi.COLOR, 0, []float32{1, 1, 1, 1})
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	return nil
}

func (s *Storage) buildMRT(rt *RenderTarget) error {
	d := s.dev
	w, h := rt.Width, rt.Height
	hdr := s.hdrFormat()
	b := &rt.Buffers
	var err error
	if b.diffuse, err = newTexture2D(d, w, h, hdr, false); err != nil {
		return err
	}
	if b.specular, err = newTexture2D(d, w, h, hdr, false); err != nil {
		return err
	}
	if b.normalRough, err = newTexture2D(d, w, h, formatRGBA8, false); err != nil {
		return err
	}
	if b.sss, err = newTexture2D(d, w, h, formatR8, false); err != nil {
		return err
	}
	rt.bytes += w * h * (2*hdr.bytes + formatRGBA8.bytes + formatR8.bytes)
	if b.fbo, err = glapi.NewFramebuffers(d, 1); err != nil {
		return err
	}
	d.BindFramebuffer(glapi.FRAMEBUFFER, b.fbo.ID())
	for i, t := range []uint32{b.diffuse.ID(), b.specular.ID(), b.normalRough.ID(), b.sss.ID()} {
		d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0+uint32(i), glapi.TEXTURE_2D, t, 0)
	}
	d.FramebufferTexture2D(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.TEXTURE_2D, rt.depth.ID(), 0)
	d.DrawBuffers([]uint32{glapi.COLOR_ATTACHMENT0, glapi.COLOR_ATTACHMENT0 + 1, glapi.COLOR_ATTACHMENT0 + 2, glapi.COLOR_ATTACHMENT0 + 3})
	err = glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	if err != nil {
		return err
	}
	n, err := b.resolve.alloc(d, w, h, hdr, true)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	rt.bytes += n
	return nil
}

func (s *Storage) buildMSAA(rt *RenderTarget) error {
	d := s.dev
	m := &rt.msaa
	var err error
	if m.color, err = glapi.NewRenderbuffers(d, 1); err != nil {
		return err
	}
	if m.depth, err = glapi.NewRenderbuffers(d, 1); err != nil {
		return err
	}
	if m.fbo, err = glapi.NewFramebuffers(d, 1); err != nil {
		return err
	}
	w, h, samples := int32(rt.Width), int32(rt.Height), int32(rt.MSAA)
	d.BindRenderbuffer(glapi.RENDERBUFFER, m.color.ID())
	d.RenderbufferStorageMultisample(glapi.RENDERBUFFER, samples, uint32(rt.cf.internal), w, h)
	d.BindRenderbuffer(glapi.RENDERBUFFER, m.depth.ID())
	d.RenderbufferStorageMultisample(glapi.RENDERBUFFER, samples, glapi.DEPTH_COMPONENT24, w, h)
	d.BindRenderbuffer(glapi.RENDERBUFFER, 0)
	d.BindFramebuffer(glapi.FRAMEBUFFER, m.fbo.ID())
	d.FramebufferRenderbuffer(glapi.FRAMEBUFFER, glapi.COLOR_ATTACHMENT0, glapi.RENDERBUFFER, m.color.ID())
	d.FramebufferRenderbuffer(glapi.FRAMEBUFFER, glapi.DEPTH_ATTACHMENT, glapi.RENDERBUFFER, m.depth.ID())
	err = glapi.CheckFramebuffer(d, glapi.FRAMEBUFFER)
	d.BindFramebuffer(glapi.FRAMEBUFFER, 0)
	rt.bytes += rt.Width * rt.Height * int(samples) * (rt.cf.bytes + 4)
	return err
}
