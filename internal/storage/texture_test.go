package storage

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
)

func rgbaImage(w, h int, fill byte) Image {
	return Image{Width: w, Height: h, Format: ImageRGBA8, Data: bytes.Repeat([]byte{fill}, w*h*4)}
}

func floatBytes(v ...float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func TestTextureUploadAndReadBack(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	mem := s.Info().TextureMem

	e := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(e, 4, 2, 1, ImageRGBA8, TextureType2D, FlagFilter))
	assert.Equal(t, mem+4*2*4, s.Info().TextureMem)

	img := rgbaImage(4, 2, 0)
	for i := range img.Data {
		img.Data[i] = byte(i)
	}
	require.NoError(t, s.TextureSetData(e, img, 0, 0))

	got, err := s.TextureGetData(e, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	w, h, d := s.TextureGetSize(e)
	assert.Equal(t, [3]int{4, 2, 1}, [3]int{w, h, d})
	assert.Equal(t, ImageRGBA8, s.TextureGetFormat(e))

	require.True(t, s.Free(e))
	assert.Equal(t, mem, s.Info().TextureMem)
}

func TestTextureMipmaps(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(e, 4, 4, 1, ImageRGBA8, TextureType2D, FlagsDefault))
	tex := s.ResolveTexture(e)
	assert.Equal(t, 3, tex.Mipmaps)
	assert.Equal(t, (16+4+1)*4, tex.DataSize)

	require.NoError(t, s.TextureSetData(e, rgbaImage(4, 4, 9), 0, 0))
	state := env.dev.TextureState(tex.ID())
	assert.True(t, state.Mipmapped)
	assert.Equal(t, float32(glapi.LINEAR_MIPMAP_LINEAR), state.Params[glapi.TEXTURE_MIN_FILTER])
	assert.Equal(t, float32(glapi.REPEAT), state.Params[glapi.TEXTURE_WRAP_S])

	s.TextureSetFlags(e, FlagFilter)
	assert.Equal(t, 1, tex.Mipmaps)
	assert.Equal(t, float32(glapi.LINEAR), state.Params[glapi.TEXTURE_MIN_FILTER])
	assert.Equal(t, float32(glapi.CLAMP_TO_EDGE), state.Params[glapi.TEXTURE_WRAP_S])
	assert.Equal(t, FlagFilter, s.TextureGetFlags(e))
}

func TestTextureUploadValidation(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.TextureCreate()

	assert.ErrorIs(t, s.TextureSetData(e, rgbaImage(1, 1, 0), 0, 0), ErrInvalidArgument, "not allocated")
	_, err := s.TextureGetData(e, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.ErrorIs(t, s.TextureAllocate(e, 0, 4, 1, ImageRGBA8, TextureType2D, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.TextureAllocate(e, 1<<15, 4, 1, ImageRGBA8, TextureType2D, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.TextureAllocate(e, 4, 2, 1, ImageRGBA8, TextureTypeCube, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.TextureAllocate(e, 4, 4, 1, ImageDXT1, TextureType2D, 0), ErrUnsupportedFormat, "no S3TC on this device")

	require.NoError(t, s.TextureAllocate(e, 4, 4, 1, ImageRGBA8, TextureType2D, 0))
	assert.ErrorIs(t, s.TextureSetData(e, Image{Width: 4, Height: 4, Format: ImageRGB8, Data: make([]byte, 48)}, 0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.TextureSetData(e, rgbaImage(4, 4, 0), 3, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.TextureSetData(e, rgbaImage(4, 4, 0), 0, 1), ErrInvalidArgument)
	short := rgbaImage(4, 4, 0)
	short.Data = short.Data[:10]
	assert.ErrorIs(t, s.TextureSetData(e, short, 0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, s.TextureSetData(ecs.Null, short, 0, 0), ErrInvalidHandle)
}

func TestTextureSetDataPartial(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(e, 4, 4, 1, ImageRGBA8, TextureType2D, 0))
	require.NoError(t, s.TextureSetData(e, rgbaImage(4, 4, 0), 0, 0))

	patch := rgbaImage(3, 3, 0xFF)
	require.NoError(t, s.TextureSetDataPartial(e, patch, core.Rect2i{X: 1, Y: 1, Width: 2, Height: 2}, 1, 2, 0, 0))

	got, err := s.TextureGetData(e, 0, 0)
	require.NoError(t, err)
	px := func(x, y int) byte { return got.Data[(y*4+x)*4] }
	assert.Equal(t, byte(0), px(0, 0))
	assert.Equal(t, byte(0xFF), px(1, 2))
	assert.Equal(t, byte(0xFF), px(2, 3))
	assert.Equal(t, byte(0), px(3, 3))

	err = s.TextureSetDataPartial(e, patch, core.Rect2i{Width: 3, Height: 3}, 2, 2, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument, "destination overflows the level")
}

func TestTextureCubeAndLayered(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s

	cube := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(cube, 2, 2, 1, ImageRGBA8, TextureTypeCube, FlagRepeat|FlagFilter))
	assert.Equal(t, FlagFilter, s.TextureGetFlags(cube), "cubes never repeat")
	for f := 0; f < 6; f++ {
		require.NoError(t, s.TextureSetData(cube, rgbaImage(2, 2, byte(f)), 0, f))
	}
	assert.ErrorIs(t, s.TextureSetData(cube, rgbaImage(2, 2, 0), 0, 6), ErrInvalidArgument)
	face, err := s.TextureGetData(cube, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, rgbaImage(2, 2, 4).Data, face.Data)

	vol := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(vol, 2, 2, 4, ImageRGBA8, TextureType3D, 0))
	require.NoError(t, s.TextureSetData(vol, rgbaImage(2, 2, 7), 0, 3))
	slice, err := s.TextureGetData(vol, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, rgbaImage(2, 2, 7).Data, slice.Data)
	slice, err = s.TextureGetData(vol, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, rgbaImage(2, 2, 0).Data, slice.Data)
	_, _, d := s.TextureGetSize(vol)
	assert.Equal(t, 4, d)
}

func TestTextureFormatTable(t *testing.T) {
	none := &glapi.Features{}
	full := &glapi.Features{FloatTexture: true, SRGBDecode: true, S3TC: true, ETC2: true}

	g, err := glFormatFor(full, ImageRGBA8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(glapi.SRGB8_ALPHA8), g.internal)
	assert.True(t, g.srgb)

	g, err = glFormatFor(none, ImageRGBA8, 0)
	require.NoError(t, err)
	assert.False(t, g.srgb)
	g, err = glFormatFor(none, ImageRGBA8, FlagConvertToLinear)
	require.NoError(t, err)
	assert.True(t, g.srgb, "conversion forces an sRGB format")

	g, err = glFormatFor(full, ImageDXT5, 0)
	require.NoError(t, err)
	assert.True(t, g.compressed)
	_, err = glFormatFor(none, ImageETC2RGB8, 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = glFormatFor(none, ImageFormat(99), 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	g, err = glFormatFor(none, ImageL8, 0)
	require.NoError(t, err)
	require.NotNil(t, g.swizzle)
	assert.Equal(t, int32(glapi.ONE), g.swizzle[3])
}

func TestTextureFloatFallbacks(t *testing.T) {
	none := &glapi.Features{}

	g, err := glFormatFor(none, ImageRF, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(glapi.R16F), g.internal)
	src := floatBytes(0.5, -2, 1024)
	assert.Len(t, g.pack(src), 6)
	assert.Equal(t, src, g.unpack(g.pack(src)), "exactly representable in half precision")

	g, err = glFormatFor(none, ImageRGBAF, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(glapi.RGB10_A2), g.internal)
	packed := g.pack(floatBytes(0, 1, 2, -1))
	require.Len(t, packed, 4)
	back := g.unpack(packed)
	want := []float32{0, 1, 1, 0}
	for i := range want {
		assert.InDelta(t, want[i], math.Float32frombits(binary.LittleEndian.Uint32(back[4*i:])), 1e-3, "channel %d clamps", i)
	}

	g, err = glFormatFor(none, ImageRGBF, 0)
	require.NoError(t, err)
	assert.Len(t, g.pack(floatBytes(1, 1, 1)), 4, "missing alpha packs as opaque")
}

func TestImageDataSize(t *testing.T) {
	assert.Equal(t, 32, ImageDataSize(ImageDXT1, 5, 5, 1))
	assert.Equal(t, 16, ImageDataSize(ImageETC2RGBA8, 1, 1, 1))
	assert.Equal(t, 2*3*4*16, ImageDataSize(ImageRGBAF, 2, 3, 4))
	assert.True(t, ImageBPTCRGBA.IsCompressed())
	assert.False(t, ImageRGBE9995.IsCompressed())
	assert.Equal(t, "RGTC_RG", ImageRGTCRG.String())
}

func TestTextureProxy(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	base := s.TextureCreate()
	proxy := s.TextureCreate()
	other := s.TextureCreate()

	s.TextureSetProxy(proxy, base)
	assert.Same(t, s.ResolveTexture(base), s.ResolveTexture(proxy))

	s.TextureSetProxy(other, proxy)
	assert.True(t, s.ResolveTexture(other) == ecs.Get[Texture](s.Registry(), other), "proxies do not chain")

	require.True(t, s.Free(base))
	assert.True(t, ecs.Get[Texture](s.Registry(), proxy).Proxy.IsNull())
	assert.Same(t, ecs.Get[Texture](s.Registry(), proxy), s.ResolveTexture(proxy))
}

func TestBindTextureFallsBackByHint(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	empty := s.TextureCreate()

	got := s.BindTexture(3, empty, shader.HintNormal, shader.Texture2D)
	assert.Equal(t, s.ResolveTexture(s.Defaults.Normal).ID(), got)
	got = s.BindTexture(3, ecs.Null, shader.HintBlack, shader.Texture2D)
	assert.Equal(t, s.ResolveTexture(s.Defaults.Black).ID(), got)
	got = s.BindTexture(3, ecs.Null, shader.HintNone, shader.Texture3D)
	assert.Equal(t, s.ResolveTexture(s.Defaults.White3D).ID(), got)

	require.NoError(t, s.TextureAllocate(empty, 1, 1, 1, ImageRGBA8, TextureType2D, 0))
	assert.Equal(t, s.ResolveTexture(empty).ID(), s.BindTexture(3, empty, shader.HintNormal, shader.Texture2D))
}

func TestTextureInfoAndOverrides(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	big := s.TextureCreate()
	require.NoError(t, s.TextureAllocate(big, 64, 64, 1, ImageRGBA8, TextureType2D, 0))
	s.TextureSetName(big, "big")
	assert.Equal(t, "big", s.TextureGetName(big))

	info := s.TextureGetInfo()
	require.NotEmpty(t, info)
	assert.Equal(t, big, info[0].Texture, "largest first")
	assert.Equal(t, 64*64*4, info[0].Bytes)

	s.TextureSetSizeOverride(big, 32, 16)
	w, h, _ := s.TextureGetSize(big)
	assert.Equal(t, [2]int{32, 16}, [2]int{w, h})
	s.TextureSetSizeOverride(big, 0, 16)
	w, _, _ = s.TextureGetSize(big)
	assert.Equal(t, 32, w, "invalid override ignored")
}
