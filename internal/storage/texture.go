package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/x448/float16"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
)

// ImageFormat is an engine pixel format.
type ImageFormat int

const (
	ImageL8 ImageFormat = iota
	ImageLA8
	ImageR8
	ImageRG8
	ImageRGB8
	ImageRGBA8
	ImageRGBA4444
	ImageRGB565
	ImageRF
	ImageRGF
	ImageRGBF
	ImageRGBAF
	ImageRH
	ImageRGH
	ImageRGBH
	ImageRGBAH
	ImageRGBE9995
	ImageDXT1
	ImageDXT3
	ImageDXT5
	ImageRGTCR
	ImageRGTCRG
	ImageBPTCRGBA
	ImageBPTCRGBF
	ImageBPTCRGBFU
	ImageETC2R11
	ImageETC2R11S
	ImageETC2RG11
	ImageETC2RG11S
	ImageETC2RGB8
	ImageETC2RGBA8
	ImageETC2RGB8A1
	ImageLATCL
	ImageLATCLA
	imageFormatCount
)

var imageFormatNames = [...]string{
	"L8", "LA8", "R8", "RG8", "RGB8", "RGBA8", "RGBA4444", "RGB565",
	"RF", "RGF", "RGBF", "RGBAF", "RH", "RGH", "RGBH", "RGBAH", "RGBE9995",
	"DXT1", "DXT3", "DXT5", "RGTC_R", "RGTC_RG", "BPTC_RGBA", "BPTC_RGBF", "BPTC_RGBFU",
	"ETC2_R11", "ETC2_R11S", "ETC2_RG11", "ETC2_RG11S", "ETC2_RGB8", "ETC2_RGBA8", "ETC2_RGB8A1",
	"LATC_L", "LATC_LA",
}

func (f ImageFormat) String() string {
	if f < 0 || f >= imageFormatCount {
		return fmt.Sprintf("ImageFormat(%d)", int(f))
	}
	return imageFormatNames[f]
}

// pixelBytes of uncompressed formats; block bytes (4x4 texels) of
// compressed ones.
var (
	pixelBytes = map[ImageFormat]int{
		ImageL8: 1, ImageLA8: 2, ImageR8: 1, ImageRG8: 2, ImageRGB8: 3, ImageRGBA8: 4,
		ImageRGBA4444: 2, ImageRGB565: 2, ImageRF: 4, ImageRGF: 8, ImageRGBF: 12, ImageRGBAF: 16,
		ImageRH: 2, ImageRGH: 4, ImageRGBH: 6, ImageRGBAH: 8, ImageRGBE9995: 4,
	}
	blockBytes = map[ImageFormat]int{
		ImageDXT1: 8, ImageDXT3: 16, ImageDXT5: 16, ImageRGTCR: 8, ImageRGTCRG: 16,
		ImageBPTCRGBA: 16, ImageBPTCRGBF: 16, ImageBPTCRGBFU: 16,
		ImageETC2R11: 8, ImageETC2R11S: 8, ImageETC2RG11: 16, ImageETC2RG11S: 16,
		ImageETC2RGB8: 8, ImageETC2RGBA8: 16, ImageETC2RGB8A1: 8,
		ImageLATCL: 8, ImageLATCLA: 16,
	}
)

// IsCompressed reports a block-compressed format.
func (f ImageFormat) IsCompressed() bool {
	_, ok := blockBytes[f]
	return ok
}

// ImageDataSize returns the byte size of one w×h×d level.
func ImageDataSize(f ImageFormat, w, h, d int) int {
	if bb, ok := blockBytes[f]; ok {
		return ((w + 3) / 4) * ((h + 3) / 4) * bb * d
	}
	return w * h * d * pixelBytes[f]
}

// Image is one level (or one layer of a level) of pixel data.
type Image struct {
	Width  int
	Height int
	Format ImageFormat
	Data   []byte
}

// TextureType selects the GL target.
type TextureType int

const (
	TextureType2D TextureType = iota
	TextureTypeCube
	TextureType2DArray
	TextureType3D
)

func (t TextureType) target() uint32 {
	switch t {
	case TextureTypeCube:
		return glapi.TEXTURE_CUBE_MAP
	case TextureType2DArray:
		return glapi.TEXTURE_2D_ARRAY
	case TextureType3D:
		return glapi.TEXTURE_3D
	}
	return glapi.TEXTURE_2D
}

// TextureFlags control sampling and storage.
type TextureFlags uint32

const (
	FlagMipmaps TextureFlags = 1 << iota
	FlagRepeat
	FlagFilter
	FlagAnisotropicFilter
	FlagConvertToLinear
	FlagMirroredRepeat
	FlagUsedForStreaming

	FlagsDefault = FlagMipmaps | FlagRepeat | FlagFilter
)

// ── Format table ─────────────────────────────────────────────────────────────

// glFormat is how an ImageFormat is stored on the GPU.
type glFormat struct {
	internal   uint32
	format     uint32
	xtype      uint32
	compressed bool
	srgb       bool
	swizzle    *[4]int32
	// pixel is the byte size of one uploaded texel after conversion.
	pixel int
	// pack converts engine data to the uploaded layout, unpack reverses it
	// on read-back. Both are nil when the layouts match.
	pack   func(src []byte) []byte
	unpack func(src []byte) []byte
}

var (
	swizzleL  = &[4]int32{glapi.RED, glapi.RED, glapi.RED, glapi.ONE}
	swizzleLA = &[4]int32{glapi.RED, glapi.RED, glapi.RED, glapi.GREEN}
)

// glFormatFor resolves f for the driver. sRGB internal formats are chosen
// when the texture converts to linear or the decode switch is available.
func glFormatFor(feat *glapi.Features, f ImageFormat, flags TextureFlags) (glFormat, error) {
	srgb := feat.SRGBDecode || flags&FlagConvertToLinear != 0
	pick := func(linear, s uint32) (uint32, bool) {
		if srgb && s != 0 {
			return s, true
		}
		return linear, false
	}
	need := func(ok bool, ext string) error {
		if !ok {
			return fmt.Errorf("%v needs %s: %w", f, ext, ErrUnsupportedFormat)
		}
		return nil
	}
	compressed := func(internal uint32) glFormat {
		return glFormat{internal: internal, compressed: true}
	}

	var g glFormat
	switch f {
	case ImageL8:
		g = glFormat{internal: glapi.R8, format: glapi.RED, xtype: glapi.UNSIGNED_BYTE, swizzle: swizzleL}
	case ImageLA8:
		g = glFormat{internal: glapi.RG8, format: glapi.RG, xtype: glapi.UNSIGNED_BYTE, swizzle: swizzleLA}
	case ImageR8:
		g = glFormat{internal: glapi.R8, format: glapi.RED, xtype: glapi.UNSIGNED_BYTE}
	case ImageRG8:
		g = glFormat{internal: glapi.RG8, format: glapi.RG, xtype: glapi.UNSIGNED_BYTE}
	case ImageRGB8:
		g = glFormat{format: glapi.RGB, xtype: glapi.UNSIGNED_BYTE}
		g.internal, g.srgb = pick(glapi.RGB8, glapi.SRGB8)
	case ImageRGBA8:
		g = glFormat{format: glapi.RGBA, xtype: glapi.UNSIGNED_BYTE}
		g.internal, g.srgb = pick(glapi.RGBA8, glapi.SRGB8_ALPHA8)
	case ImageRGBA4444:
		g = glFormat{internal: glapi.RGBA4, format: glapi.RGBA, xtype: glapi.UNSIGNED_SHORT_4_4_4_4}
	case ImageRGB565:
		g = glFormat{internal: glapi.RGB565, format: glapi.RGB, xtype: glapi.UNSIGNED_SHORT_5_6_5}
	case ImageRF:
		g = glFormat{internal: glapi.R32F, format: glapi.RED, xtype: glapi.FLOAT}
		if !feat.FloatTexture {
			g = glFormat{internal: glapi.R16F, format: glapi.RED, xtype: glapi.HALF_FLOAT, pack: floatsToHalves, unpack: halvesToFloats}
		}
	case ImageRGF:
		g = glFormat{internal: glapi.RG32F, format: glapi.RG, xtype: glapi.FLOAT}
		if !feat.FloatTexture {
			g = glFormat{internal: glapi.RG16F, format: glapi.RG, xtype: glapi.HALF_FLOAT, pack: floatsToHalves, unpack: halvesToFloats}
		}
	case ImageRGBF:
		g = glFormat{internal: glapi.RGB32F, format: glapi.RGB, xtype: glapi.FLOAT}
		if !feat.FloatTexture {
			g = glFormat{internal: glapi.RGB10_A2, format: glapi.RGBA, xtype: glapi.UNSIGNED_INT_2_10_10_10_REV,
				pack: func(b []byte) []byte { return packRGB10A2(b, 3) }, unpack: func(b []byte) []byte { return unpackRGB10A2(b, 3) }}
		}
	case ImageRGBAF:
		g = glFormat{internal: glapi.RGBA32F, format: glapi.RGBA, xtype: glapi.FLOAT}
		if !feat.FloatTexture {
			g = glFormat{internal: glapi.RGB10_A2, format: glapi.RGBA, xtype: glapi.UNSIGNED_INT_2_10_10_10_REV,
				pack: func(b []byte) []byte { return packRGB10A2(b, 4) }, unpack: func(b []byte) []byte { return unpackRGB10A2(b, 4) }}
		}
	case ImageRH:
		g = glFormat{internal: glapi.R16F, format: glapi.RED, xtype: glapi.HALF_FLOAT}
	case ImageRGH:
		g = glFormat{internal: glapi.RG16F, format: glapi.RG, xtype: glapi.HALF_FLOAT}
	case ImageRGBH:
		g = glFormat{internal: glapi.RGB16F, format: glapi.RGB, xtype: glapi.HALF_FLOAT}
	case ImageRGBAH:
		g = glFormat{internal: glapi.RGBA16F, format: glapi.RGBA, xtype: glapi.HALF_FLOAT}
	case ImageRGBE9995:
		g = glFormat{internal: glapi.RGB9_E5, format: glapi.RGB, xtype: glapi.UNSIGNED_INT_5_9_9_9_REV}
	case ImageDXT1, ImageDXT3, ImageDXT5:
		if err := need(feat.S3TC, "S3TC"); err != nil {
			return g, err
		}
		linear := map[ImageFormat][2]uint32{
			ImageDXT1: {glapi.COMPRESSED_RGBA_S3TC_DXT1_EXT, glapi.COMPRESSED_SRGB_ALPHA_S3TC_DXT1_EXT},
			ImageDXT3: {glapi.COMPRESSED_RGBA_S3TC_DXT3_EXT, glapi.COMPRESSED_SRGB_ALPHA_S3TC_DXT3_EXT},
			ImageDXT5: {glapi.COMPRESSED_RGBA_S3TC_DXT5_EXT, glapi.COMPRESSED_SRGB_ALPHA_S3TC_DXT5_EXT},
		}[f]
		g = compressed(0)
		g.internal, g.srgb = pick(linear[0], linear[1])
	case ImageRGTCR, ImageRGTCRG:
		if err := need(feat.RGTC, "RGTC"); err != nil {
			return g, err
		}
		g = compressed(glapi.COMPRESSED_RED_RGTC1)
		if f == ImageRGTCRG {
			g = compressed(glapi.COMPRESSED_RG_RGTC2)
		}
	case ImageBPTCRGBA:
		if err := need(feat.BPTC, "BPTC"); err != nil {
			return g, err
		}
		g = compressed(0)
		g.internal, g.srgb = pick(glapi.COMPRESSED_RGBA_BPTC_UNORM, glapi.COMPRESSED_SRGB_ALPHA_BPTC_UNORM)
	case ImageBPTCRGBF:
		if err := need(feat.BPTC, "BPTC"); err != nil {
			return g, err
		}
		g = compressed(glapi.COMPRESSED_RGB_BPTC_SIGNED_FLOAT)
	case ImageBPTCRGBFU:
		if err := need(feat.BPTC, "BPTC"); err != nil {
			return g, err
		}
		g = compressed(glapi.COMPRESSED_RGB_BPTC_UNSIGNED_FLOAT)
	case ImageETC2R11, ImageETC2R11S, ImageETC2RG11, ImageETC2RG11S, ImageETC2RGB8A1:
		if err := need(feat.ETC2, "ETC2"); err != nil {
			return g, err
		}
		g = compressed(map[ImageFormat]uint32{
			ImageETC2R11:    glapi.COMPRESSED_R11_EAC,
			ImageETC2R11S:   glapi.COMPRESSED_SIGNED_R11_EAC,
			ImageETC2RG11:   glapi.COMPRESSED_RG11_EAC,
			ImageETC2RG11S:  glapi.COMPRESSED_SIGNED_RG11_EAC,
			ImageETC2RGB8A1: glapi.COMPRESSED_RGB8_PUNCHTHROUGH_ALPHA1_ETC2,
		}[f])
	case ImageETC2RGB8:
		if err := need(feat.ETC2, "ETC2"); err != nil {
			return g, err
		}
		g = compressed(0)
		g.internal, g.srgb = pick(glapi.COMPRESSED_RGB8_ETC2, glapi.COMPRESSED_SRGB8_ETC2)
	case ImageETC2RGBA8:
		if err := need(feat.ETC2, "ETC2"); err != nil {
			return g, err
		}
		g = compressed(0)
		g.internal, g.srgb = pick(glapi.COMPRESSED_RGBA8_ETC2_EAC, glapi.COMPRESSED_SRGB8_ALPHA8_ETC2_EAC)
	case ImageLATCL, ImageLATCLA:
		if err := need(feat.LATC, "LATC"); err != nil {
			return g, err
		}
		g = compressed(glapi.COMPRESSED_LUMINANCE_LATC1_EXT)
		if f == ImageLATCLA {
			g = compressed(glapi.COMPRESSED_LUMINANCE_ALPHA_LATC2_EXT)
		}
	default:
		return g, fmt.Errorf("%v: %w", f, ErrUnsupportedFormat)
	}
	if !g.compressed {
		g.pixel = uploadPixelSize(g.format, g.xtype)
	}
	return g, nil
}

func uploadPixelSize(format, xtype uint32) int {
	comps := map[uint32]int{glapi.RED: 1, glapi.RG: 2, glapi.RGB: 3, glapi.RGBA: 4}[format]
	switch xtype {
	case glapi.UNSIGNED_BYTE:
		return comps
	case glapi.HALF_FLOAT:
		return comps * 2
	case glapi.FLOAT:
		return comps * 4
	case glapi.UNSIGNED_SHORT_4_4_4_4, glapi.UNSIGNED_SHORT_5_6_5:
		return 2
	}
	return 4
}

func floatsToHalves(src []byte) []byte {
	out := make([]byte, len(src)/2)
	for i := 0; i+4 <= len(src); i += 4 {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[i:]))
		binary.LittleEndian.PutUint16(out[i/2:], float16.Fromfloat32(f).Bits())
	}
	return out
}

func halvesToFloats(src []byte) []byte {
	out := make([]byte, len(src)*2)
	for i := 0; i+2 <= len(src); i += 2 {
		f := float16.Frombits(binary.LittleEndian.Uint16(src[i:])).Float32()
		binary.LittleEndian.PutUint32(out[i*2:], math.Float32bits(f))
	}
	return out
}

func unorm(f float32, max float32) uint32 {
	if f != f || f < 0 {
		return 0
	}
	if f > 1 {
		f = 1
	}
	return uint32(f*max + 0.5)
}

// packRGB10A2 clamps comps-channel float texels into 2_10_10_10_REV words.
// Missing alpha is opaque.
func packRGB10A2(src []byte, comps int) []byte {
	n := len(src) / (4 * comps)
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		var c [4]float32
		c[3] = 1
		for k := 0; k < comps; k++ {
			c[k] = math.Float32frombits(binary.LittleEndian.Uint32(src[(i*comps+k)*4:]))
		}
		w := unorm(c[0], 1023) | unorm(c[1], 1023)<<10 | unorm(c[2], 1023)<<20 | unorm(c[3], 3)<<30
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func unpackRGB10A2(src []byte, comps int) []byte {
	n := len(src) / 4
	out := make([]byte, n*comps*4)
	for i := 0; i < n; i++ {
		w := binary.LittleEndian.Uint32(src[i*4:])
		c := [4]float32{
			float32(w&1023) / 1023,
			float32(w>>10&1023) / 1023,
			float32(w>>20&1023) / 1023,
			float32(w>>30) / 3,
		}
		for k := 0; k < comps; k++ {
			binary.LittleEndian.PutUint32(out[(i*comps+k)*4:], math.Float32bits(c[k]))
		}
	}
	return out
}

// ── Texture component ────────────────────────────────────────────────────────

// Texture is a GL texture with its engine-side description.
type Texture struct {
	Name    string
	Type    TextureType
	Format  ImageFormat
	Flags   TextureFlags
	Width   int
	Height  int
	Depth   int
	Mipmaps int
	Target  uint32
	SRGB    bool
	Active  bool

	AllocWidth  int
	AllocHeight int
	DataSize    int

	// Proxy, when set, is the texture sampled in place of this one.
	Proxy ecs.Entity
	// RenderTarget owns this texture when set; it cannot be freed alone.
	RenderTarget ecs.Entity

	gl       glFormat
	tex      glapi.Texture
	borrowed glapi.Borrowed
	proxies  map[ecs.Entity]struct{}
	decoding bool
}

// ID returns the GL name.
func (t *Texture) ID() uint32 {
	if t.borrowed.Valid() {
		return t.borrowed.ID()
	}
	return t.tex.ID()
}

// TextureInfo is one row of the texture debug list.
type TextureInfo struct {
	Texture ecs.Entity
	Name    string
	Width   int
	Height  int
	Depth   int
	Format  ImageFormat
	Bytes   int
}

// DefaultTextures are the fallbacks bound for missing material textures.
type DefaultTextures struct {
	White       ecs.Entity
	Black       ecs.Entity
	Transparent ecs.Entity
	Normal      ecs.Entity
	Aniso       ecs.Entity
	White3D     ecs.Entity
	WhiteArray  ecs.Entity
}

// ForHint returns the fallback texture of a uniform hint and sampler kind.
func (d DefaultTextures) ForHint(h shader.Hint, kind shader.TextureKind) ecs.Entity {
	switch kind {
	case shader.Texture3D:
		return d.White3D
	case shader.Texture2DArray:
		return d.WhiteArray
	}
	switch h {
	case shader.HintBlack, shader.HintBlackAlbedo:
		return d.Black
	case shader.HintNormal:
		return d.Normal
	case shader.HintAniso:
		return d.Aniso
	case shader.HintTransparent:
		return d.Transparent
	}
	return d.White
}

func (s *Storage) destroyTexture(e ecs.Entity, t *Texture) {
	if b := ecs.Get[Texture](s.reg, t.Proxy); b != nil {
		delete(b.proxies, e)
	}
	for p := range t.proxies {
		if pt := ecs.Get[Texture](s.reg, p); pt != nil {
			pt.Proxy = ecs.Null
		}
	}
	s.info.TextureMem -= t.DataSize
	s.info.Textures--
	t.tex.Release()
}

// TextureCreate makes an empty texture with a GL name.
func (s *Storage) TextureCreate() ecs.Entity {
	tex, err := glapi.NewTextures(s.dev, 1)
	if err != nil {
		core.LogError("texture create: %v", err)
		return ecs.Null
	}
	e, _ := create(s, Texture{
		tex:          tex,
		Depth:        1,
		Proxy:        ecs.Null,
		RenderTarget: ecs.Null,
		proxies:      map[ecs.Entity]struct{}{},
	})
	s.info.Textures++
	return e
}

func mipCount(w, h, d int) int {
	return bits.Len(uint(max(w, h, d, 1)))
}

// TextureAllocate describes the texture and allocates GL storage for the
// levels that are not uploaded through TextureSetData (3D and array
// textures get every level; 2D and cube levels are defined on upload).
func (s *Storage) TextureAllocate(e ecs.Entity, w, h, depth int, format ImageFormat, typ TextureType, flags TextureFlags) error {
	t := get[Texture](s, e, "texture allocate")
	if t == nil {
		return ErrInvalidHandle
	}
	if w <= 0 || h <= 0 || w > s.feat.MaxTextureSize || h > s.feat.MaxTextureSize {
		return fmt.Errorf("texture allocate %dx%d (max %d): %w", w, h, s.feat.MaxTextureSize, ErrInvalidArgument)
	}
	if typ == TextureTypeCube && w != h {
		return fmt.Errorf("texture allocate cube %dx%d: %w", w, h, ErrInvalidArgument)
	}
	if depth < 1 || typ == TextureType2D || typ == TextureTypeCube {
		depth = 1
	}
	g, err := glFormatFor(s.feat, format, flags)
	if err != nil {
		core.LogError("texture allocate %dx%d format=%v flags=%#x: %v", w, h, format, flags, err)
		return fmt.Errorf("texture allocate: %w", err)
	}
	if g.compressed && depth > 1 {
		return fmt.Errorf("texture allocate: compressed %v layers: %w", format, ErrUnsupportedFormat)
	}
	if typ == TextureTypeCube {
		flags &^= FlagRepeat | FlagMirroredRepeat
	}

	s.info.TextureMem -= t.DataSize
	t.Type, t.Format, t.Flags = typ, format, flags
	t.Width, t.Height, t.Depth = w, h, depth
	t.AllocWidth, t.AllocHeight = w, h
	t.Target = typ.target()
	t.gl = g
	t.SRGB = g.srgb
	t.decoding = g.srgb
	t.Mipmaps = 1
	if flags&FlagMipmaps != 0 {
		t.Mipmaps = mipCount(w, h, 1)
	}
	t.DataSize = 0
	faces := 1
	if typ == TextureTypeCube {
		faces = 6
	}
	for l := 0; l < t.Mipmaps; l++ {
		t.DataSize += ImageDataSize(format, max(w>>l, 1), max(h>>l, 1), depth) * faces
	}
	s.info.TextureMem += t.DataSize

	s.dev.ActiveTexture(glapi.TEXTURE0)
	s.dev.BindTexture(t.Target, t.ID())
	if typ == TextureType3D || typ == TextureType2DArray {
		for l := 0; l < t.Mipmaps; l++ {
			d := depth
			if typ == TextureType3D {
				d = max(depth>>l, 1)
			}
			s.dev.TexImage3D(t.Target, int32(l), int32(g.internal), int32(max(w>>l, 1)), int32(max(h>>l, 1)), int32(d), g.format, g.xtype, nil)
		}
	}
	if g.swizzle != nil {
		s.dev.TexParameteri(t.Target, glapi.TEXTURE_SWIZZLE_R, g.swizzle[0])
		s.dev.TexParameteri(t.Target, glapi.TEXTURE_SWIZZLE_G, g.swizzle[1])
		s.dev.TexParameteri(t.Target, glapi.TEXTURE_SWIZZLE_B, g.swizzle[2])
		s.dev.TexParameteri(t.Target, glapi.TEXTURE_SWIZZLE_A, g.swizzle[3])
	}
	s.applyTextureParams(t)
	t.Active = true
	return nil
}

// applyTextureParams sets wrap, filter and anisotropy on the bound texture.
func (s *Storage) applyTextureParams(t *Texture) {
	wrap := int32(glapi.CLAMP_TO_EDGE)
	if t.Type != TextureTypeCube && t.RenderTarget.IsNull() {
		switch {
		case t.Flags&FlagMirroredRepeat != 0:
			wrap = glapi.MIRRORED_REPEAT
		case t.Flags&FlagRepeat != 0:
			wrap = glapi.REPEAT
		}
	}
	s.dev.TexParameteri(t.Target, glapi.TEXTURE_WRAP_S, wrap)
	s.dev.TexParameteri(t.Target, glapi.TEXTURE_WRAP_T, wrap)
	if t.Type == TextureType3D || t.Type == TextureTypeCube {
		s.dev.TexParameteri(t.Target, glapi.TEXTURE_WRAP_R, wrap)
	}

	mipmapped := t.Flags&FlagMipmaps != 0 && t.Mipmaps > 1
	minF, magF := int32(glapi.NEAREST), int32(glapi.NEAREST)
	if t.Flags&FlagFilter != 0 {
		minF, magF = glapi.LINEAR, glapi.LINEAR
		if mipmapped {
			minF = glapi.LINEAR_MIPMAP_LINEAR
		}
	} else if mipmapped {
		minF = glapi.NEAREST_MIPMAP_NEAREST
	}
	s.dev.TexParameteri(t.Target, glapi.TEXTURE_MIN_FILTER, minF)
	s.dev.TexParameteri(t.Target, glapi.TEXTURE_MAG_FILTER, magF)
	s.dev.TexParameteri(t.Target, glapi.TEXTURE_MAX_LEVEL, int32(t.Mipmaps-1))

	if s.feat.Anisotropic {
		level := float32(1)
		if t.Flags&FlagAnisotropicFilter != 0 {
			level = s.feat.MaxAnisotropy
		}
		s.dev.TexParameterf(t.Target, glapi.TEXTURE_MAX_ANISOTROPY, level)
	}
}

// uploadTarget returns the GL image target of a layer. Cube layers are
// faces.
func (t *Texture) uploadTarget(layer int) uint32 {
	if t.Type == TextureTypeCube {
		return glapi.TEXTURE_CUBE_MAP_POSITIVE_X + uint32(layer)
	}
	return t.Target
}

func (s *Storage) checkUpload(t *Texture, img Image, level, layer int) error {
	if !t.Active {
		return fmt.Errorf("texture not allocated: %w", ErrInvalidArgument)
	}
	if img.Format != t.Format {
		return fmt.Errorf("image format %v, texture %v: %w", img.Format, t.Format, ErrInvalidArgument)
	}
	if level < 0 || level >= max(t.Mipmaps, mipCount(t.AllocWidth, t.AllocHeight, 1)) {
		return fmt.Errorf("level %d: %w", level, ErrInvalidArgument)
	}
	layers := t.Depth
	if t.Type == TextureTypeCube {
		layers = 6
	}
	if t.Type == TextureType3D {
		layers = max(t.Depth>>level, 1)
	}
	if layer < 0 || layer >= layers {
		return fmt.Errorf("layer %d of %d: %w", layer, layers, ErrInvalidArgument)
	}
	if want := ImageDataSize(img.Format, img.Width, img.Height, 1); len(img.Data) < want {
		return fmt.Errorf("image data %d bytes, need %d: %w", len(img.Data), want, ErrInvalidArgument)
	}
	return nil
}

// TextureSetData uploads a full level of one layer (or cube face).
func (s *Storage) TextureSetData(e ecs.Entity, img Image, level, layer int) error {
	t := get[Texture](s, e, "texture set data")
	if t == nil {
		return ErrInvalidHandle
	}
	if err := s.checkUpload(t, img, level, layer); err != nil {
		return fmt.Errorf("texture set data %q: %w", t.Name, err)
	}
	g := t.gl
	data := img.Data
	if g.pack != nil {
		data = g.pack(data)
	}
	w, h := int32(img.Width), int32(img.Height)
	s.dev.ActiveTexture(glapi.TEXTURE0)
	s.dev.BindTexture(t.Target, t.ID())
	switch {
	case t.Type == TextureType3D || t.Type == TextureType2DArray:
		s.dev.TexSubImage3D(t.Target, int32(level), 0, 0, int32(layer), w, h, 1, g.format, g.xtype, data)
	case g.compressed:
		s.dev.CompressedTexImage2D(t.uploadTarget(layer), int32(level), g.internal, w, h, data)
	default:
		s.dev.TexImage2D(t.uploadTarget(layer), int32(level), int32(g.internal), w, h, g.format, g.xtype, data)
	}
	if level == 0 {
		t.Width, t.Height = img.Width, img.Height
		t.AllocWidth, t.AllocHeight = img.Width, img.Height
	}
	lastFace := t.Type != TextureTypeCube || layer == 5
	if t.Flags&FlagMipmaps != 0 && level == 0 && !g.compressed && lastFace {
		s.dev.GenerateMipmap(t.Target)
		t.Mipmaps = mipCount(img.Width, img.Height, 1)
		s.applyTextureParams(t)
	}
	return nil
}

// TextureSetDataPartial copies the src rectangle of img into the level at
// (dstX, dstY).
func (s *Storage) TextureSetDataPartial(e ecs.Entity, img Image, src core.Rect2i, dstX, dstY, level, layer int) error {
	t := get[Texture](s, e, "texture set data partial")
	if t == nil {
		return ErrInvalidHandle
	}
	if err := s.checkUpload(t, img, level, layer); err != nil {
		return fmt.Errorf("texture set data partial %q: %w", t.Name, err)
	}
	if t.gl.compressed {
		return fmt.Errorf("texture set data partial %q: %v: %w", t.Name, t.Format, ErrUnsupportedFormat)
	}
	lw, lh := max(t.AllocWidth>>level, 1), max(t.AllocHeight>>level, 1)
	if src.X < 0 || src.Y < 0 || src.X+src.Width > img.Width || src.Y+src.Height > img.Height ||
		dstX < 0 || dstY < 0 || dstX+src.Width > lw || dstY+src.Height > lh {
		return fmt.Errorf("texture set data partial %q: rect %v at %d,%d: %w", t.Name, src, dstX, dstY, ErrInvalidArgument)
	}
	pb := pixelBytes[img.Format]
	sub := make([]byte, 0, src.Width*src.Height*pb)
	for y := src.Y; y < src.Y+src.Height; y++ {
		row := (y*img.Width + src.X) * pb
		sub = append(sub, img.Data[row:row+src.Width*pb]...)
	}
	if t.gl.pack != nil {
		sub = t.gl.pack(sub)
	}
	s.dev.ActiveTexture(glapi.TEXTURE0)
	s.dev.BindTexture(t.Target, t.ID())
	if t.Type == TextureType3D || t.Type == TextureType2DArray {
		s.dev.TexSubImage3D(t.Target, int32(level), int32(dstX), int32(dstY), int32(layer),
			int32(src.Width), int32(src.Height), 1, t.gl.format, t.gl.xtype, sub)
	} else {
		s.dev.TexSubImage2D(t.uploadTarget(layer), int32(level), int32(dstX), int32(dstY),
			int32(src.Width), int32(src.Height), t.gl.format, t.gl.xtype, sub)
	}
	if t.Flags&FlagMipmaps != 0 && level == 0 {
		s.dev.GenerateMipmap(t.Target)
	}
	return nil
}

// TextureGetData reads one level of one layer back in the texture's
// engine format.
func (s *Storage) TextureGetData(e ecs.Entity, level, layer int) (Image, error) {
	t := get[Texture](s, e, "texture get data")
	if t == nil {
		return Image{}, ErrInvalidHandle
	}
	if !t.Active {
		return Image{}, fmt.Errorf("texture get data %q: not allocated: %w", t.Name, ErrInvalidArgument)
	}
	if t.gl.compressed {
		return Image{}, fmt.Errorf("texture get data %q: %v: %w", t.Name, t.Format, ErrUnsupportedFormat)
	}
	w, h := max(t.AllocWidth>>level, 1), max(t.AllocHeight>>level, 1)
	layers := 1
	if t.Type == TextureType3D || t.Type == TextureType2DArray {
		layers = t.Depth
		if t.Type == TextureType3D {
			layers = max(t.Depth>>level, 1)
		}
	}
	if layer < 0 || (t.Type == TextureTypeCube && layer > 5) || (t.Type != TextureTypeCube && layer >= layers) {
		return Image{}, fmt.Errorf("texture get data %q: layer %d: %w", t.Name, layer, ErrInvalidArgument)
	}
	slice := w * h * t.gl.pixel
	out := make([]byte, slice*layers)
	s.dev.ActiveTexture(glapi.TEXTURE0)
	s.dev.BindTexture(t.Target, t.ID())
	s.dev.GetTexImage(t.uploadTarget(layer), int32(level), t.gl.format, t.gl.xtype, out)
	if layers > 1 {
		out = out[layer*slice : (layer+1)*slice]
	}
	if t.gl.unpack != nil {
		out = t.gl.unpack(out)
	}
	return Image{Width: w, Height: h, Format: t.Format, Data: out}, nil
}

// TextureSetFlags changes sampling flags. Enabling mipmaps on a texture
// with data generates them.
func (s *Storage) TextureSetFlags(e ecs.Entity, flags TextureFlags) {
	t := get[Texture](s, e, "texture set flags")
	if t == nil || !t.Active {
		return
	}
	if t.Type == TextureTypeCube {
		flags &^= FlagRepeat | FlagMirroredRepeat
	}
	if !t.RenderTarget.IsNull() {
		flags &= FlagFilter
	}
	hadMips := t.Flags&FlagMipmaps != 0
	t.Flags = flags
	s.dev.ActiveTexture(glapi.TEXTURE0)
	s.dev.BindTexture(t.Target, t.ID())
	if !hadMips && flags&FlagMipmaps != 0 && !t.gl.compressed {
		s.dev.GenerateMipmap(t.Target)
		t.Mipmaps = mipCount(t.AllocWidth, t.AllocHeight, 1)
	} else if flags&FlagMipmaps == 0 {
		t.Mipmaps = 1
	}
	s.applyTextureParams(t)
}

// TextureGetFlags returns the current flags.
func (s *Storage) TextureGetFlags(e ecs.Entity) TextureFlags {
	if t := get[Texture](s, e, "texture get flags"); t != nil {
		return t.Flags
	}
	return 0
}

// TextureGetFormat returns the engine format.
func (s *Storage) TextureGetFormat(e ecs.Entity) ImageFormat {
	if t := get[Texture](s, e, "texture get format"); t != nil {
		return t.Format
	}
	return 0
}

// TextureGetSize returns the reported width, height and depth.
func (s *Storage) TextureGetSize(e ecs.Entity) (w, h, d int) {
	if t := get[Texture](s, e, "texture get size"); t != nil {
		return t.Width, t.Height, t.Depth
	}
	return 0, 0, 0
}

// TextureSetSizeOverride changes the size reported for a 2D texture
// without touching its storage.
func (s *Storage) TextureSetSizeOverride(e ecs.Entity, w, h int) {
	t := get[Texture](s, e, "texture set size override")
	if t == nil {
		return
	}
	if t.Type != TextureType2D || w <= 0 || h <= 0 || w > s.feat.MaxTextureSize || h > s.feat.MaxTextureSize {
		core.LogError("texture set size override %q: %dx%d: %v", t.Name, w, h, ErrInvalidArgument)
		return
	}
	t.Width, t.Height = w, h
}

// TextureSetName labels a texture for the debug list.
func (s *Storage) TextureSetName(e ecs.Entity, name string) {
	if t := get[Texture](s, e, "texture set name"); t != nil {
		t.Name = name
	}
}

// TextureGetName returns the label.
func (s *Storage) TextureGetName(e ecs.Entity) string {
	if t := get[Texture](s, e, "texture get name"); t != nil {
		return t.Name
	}
	return ""
}

// TextureSetProxy makes proxy sample base. A null base unlinks it.
func (s *Storage) TextureSetProxy(proxy, base ecs.Entity) {
	p := get[Texture](s, proxy, "texture set proxy")
	if p == nil {
		return
	}
	if old := ecs.Get[Texture](s.reg, p.Proxy); old != nil {
		delete(old.proxies, proxy)
	}
	p.Proxy = ecs.Null
	if base.IsNull() {
		return
	}
	b := get[Texture](s, base, "texture set proxy base")
	if b == nil {
		return
	}
	if base == proxy || !b.Proxy.IsNull() {
		core.LogError("texture set proxy: %v cannot proxy %v: %v", proxy, base, ErrInvalidArgument)
		return
	}
	p.Proxy = base
	b.proxies[proxy] = struct{}{}
}

// ResolveTexture follows a proxy and returns the texture actually sampled.
func (s *Storage) ResolveTexture(e ecs.Entity) *Texture {
	t := ecs.Get[Texture](s.reg, e)
	if t == nil {
		return nil
	}
	if p := ecs.Get[Texture](s.reg, t.Proxy); p != nil {
		return p
	}
	return t
}

// BindTexture binds e (or the hint fallback when e is missing) to a unit
// and switches sRGB decoding for the hint. It returns the bound GL name.
func (s *Storage) BindTexture(unit int, e ecs.Entity, hint shader.Hint, kind shader.TextureKind) uint32 {
	t := s.ResolveTexture(e)
	if t == nil || !t.Active {
		t = ecs.Get[Texture](s.reg, s.Defaults.ForHint(hint, kind))
	}
	s.dev.ActiveTexture(glapi.TEXTURE0 + uint32(unit))
	if t == nil {
		return 0
	}
	s.dev.BindTexture(t.Target, t.ID())
	if t.SRGB && s.feat.SRGBDecode {
		want := hint == shader.HintAlbedo || hint == shader.HintBlackAlbedo || t.Flags&FlagConvertToLinear != 0
		if want != t.decoding {
			v := int32(glapi.SKIP_DECODE_EXT)
			if want {
				v = glapi.DECODE_EXT
			}
			s.dev.TexParameteri(t.Target, glapi.TEXTURE_SRGB_DECODE_EXT, v)
			t.decoding = want
		}
	}
	return t.ID()
}

// TextureGetInfo lists every texture, largest first.
func (s *Storage) TextureGetInfo() []TextureInfo {
	var out []TextureInfo
	ecs.Each(s.reg, func(e ecs.Entity, t *Texture) {
		out = append(out, TextureInfo{Texture: e, Name: t.Name, Width: t.Width, Height: t.Height,
			Depth: t.Depth, Format: t.Format, Bytes: t.DataSize})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	return out
}

// ── Defaults ─────────────────────────────────────────────────────────────────

func (s *Storage) defaultTexture(name string, typ TextureType, rgba [4]byte) (ecs.Entity, error) {
	e := s.TextureCreate()
	if e.IsNull() {
		return e, fmt.Errorf("default texture %s: %w", name, glapi.ErrObjectCreation)
	}
	s.TextureSetName(e, name)
	if err := s.TextureAllocate(e, 1, 1, 1, ImageRGBA8, typ, FlagFilter); err != nil {
		return e, fmt.Errorf("default texture %s: %w", name, err)
	}
	img := Image{Width: 1, Height: 1, Format: ImageRGBA8, Data: rgba[:]}
	layers := 1
	if typ == TextureTypeCube {
		layers = 6
	}
	for l := 0; l < layers; l++ {
		if err := s.TextureSetData(e, img, 0, l); err != nil {
			return e, fmt.Errorf("default texture %s: %w", name, err)
		}
	}
	return e, nil
}

func (s *Storage) createDefaultTextures() error {
	defs := []struct {
		dst  *ecs.Entity
		name string
		typ  TextureType
		rgba [4]byte
	}{
		{&s.Defaults.White, "white", TextureType2D, [4]byte{255, 255, 255, 255}},
		{&s.Defaults.Black, "black", TextureType2D, [4]byte{0, 0, 0, 255}},
		{&s.Defaults.Transparent, "transparent", TextureType2D, [4]byte{0, 0, 0, 0}},
		{&s.Defaults.Normal, "normal", TextureType2D, [4]byte{128, 128, 255, 255}},
		{&s.Defaults.Aniso, "aniso", TextureType2D, [4]byte{255, 128, 0, 255}},
		{&s.Defaults.White3D, "white 3d", TextureType3D, [4]byte{255, 255, 255, 255}},
		{&s.Defaults.WhiteArray, "white array", TextureType2DArray, [4]byte{255, 255, 255, 255}},
	}
	for _, d := range defs {
		e, err := s.defaultTexture(d.name, d.typ, d.rgba)
		if err != nil {
			return err
		}
		*d.dst = e
	}
	return nil
}
