package glapi

import (
	"fmt"
	"strings"
)

// Features lists the optional capabilities the renderer adapts to.
type Features struct {
	Vendor   string
	Renderer string
	Version  string

	S3TC              bool
	LATC              bool
	BPTC              bool
	RGTC              bool
	ETC2              bool
	SRGBDecode        bool
	Anisotropic       bool
	MaxAnisotropy     float32
	ProgramBinary     bool
	ParallelCompile   bool
	FloatTexture      bool
	FloatRenderTarget bool
	HalfRenderTarget  bool

	MaxTextureSize  int
	MaxTextureUnits int
	MaxUniformBlock int
	MaxSamples      int
	extensions      map[string]struct{}
}

// QueryFeatures queries the current context. GL 3.3 core guarantees float
// textures, RGTC and half/float color attachments; the rest are extensions.
func QueryFeatures(d Device) *Features {
	f := &Features{
		Vendor:     d.GetString(VENDOR),
		Renderer:   d.GetString(RENDERER),
		Version:    d.GetString(VERSION),
		extensions: map[string]struct{}{},
	}
	n := int(d.GetIntegerv(NUM_EXTENSIONS))
	for i := 0; i < n; i++ {
		f.extensions[d.GetStringi(EXTENSIONS, uint32(i))] = struct{}{}
	}

	f.S3TC = f.Has("GL_EXT_texture_compression_s3tc")
	f.LATC = f.Has("GL_EXT_texture_compression_latc")
	f.BPTC = f.Has("GL_ARB_texture_compression_bptc")
	f.RGTC = true
	f.ETC2 = f.Has("GL_ARB_ES3_compatibility")
	f.SRGBDecode = f.Has("GL_EXT_texture_sRGB_decode")
	f.Anisotropic = f.Has("GL_EXT_texture_filter_anisotropic") || f.Has("GL_ARB_texture_filter_anisotropic")
	if f.Anisotropic {
		f.MaxAnisotropy = d.GetFloatv(MAX_TEXTURE_MAX_ANISOTROPY)
	}
	f.ProgramBinary = f.Has("GL_ARB_get_program_binary") && d.GetIntegerv(NUM_PROGRAM_BINARY_FORMATS) > 0
	f.ParallelCompile = f.Has("GL_KHR_parallel_shader_compile") || f.Has("GL_ARB_parallel_shader_compile")
	f.FloatTexture = true
	f.FloatRenderTarget = true
	f.HalfRenderTarget = true

	f.MaxTextureSize = int(d.GetIntegerv(MAX_TEXTURE_SIZE))
	f.MaxTextureUnits = int(d.GetIntegerv(MAX_COMBINED_TEXTURE_IMAGE_UNITS))
	f.MaxUniformBlock = int(d.GetIntegerv(MAX_UNIFORM_BLOCK_SIZE))
	f.MaxSamples = int(d.GetIntegerv(MAX_SAMPLES))
	return f
}

// Has reports whether the named extension is exposed.
func (f *Features) Has(ext string) bool {
	_, ok := f.extensions[ext]
	return ok
}

// Extensions returns the number of exposed extensions.
func (f *Features) Extensions() int {
	return len(f.extensions)
}

// DriverKey identifies the driver for cache invalidation.
func (f *Features) DriverKey() string {
	return strings.Join([]string{f.Vendor, f.Renderer, f.Version}, "\n")
}

func (f *Features) String() string {
	return fmt.Sprintf("%s %s (%s), %d extensions", f.Vendor, f.Renderer, f.Version, len(f.extensions))
}
