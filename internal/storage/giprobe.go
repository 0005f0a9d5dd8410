package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// GIProbe describes a voxel cone tracing volume. The voxel data itself is
// baked outside the renderer and uploaded into a GIProbeData texture.
type GIProbe struct {
	Bounds       gmath.AABB
	CellSize     float32
	ToCell       gmath.Mat4
	DynamicData  []int32
	DynamicRange int
	Energy       float32
	Bias         float32
	NormalBias   float32
	Propagation  float32
	Interior     bool
	Compress     bool
	// Data is the GIProbeData texture instances of the probe sample.
	Data ecs.Entity
	// Version changes whenever the probe must be re-lit.
	Version uint64

	instances instanceSet
}

// GIProbeCreate makes a probe with the default lighting parameters.
func (s *Storage) GIProbeCreate() ecs.Entity {
	e, _ := create(s, GIProbe{
		CellSize:     1,
		ToCell:       gmath.Mat4Identity(),
		DynamicRange: 4,
		Energy:       1,
		Bias:         1.5,
		NormalBias:   0,
		Propagation:  0.7,
		Data:         ecs.Null,
		instances:    instanceSet{},
	})
	return e
}

func (s *Storage) destroyGIProbe(e ecs.Entity, p *GIProbe) {
	s.unlinkBase(e, p.instances)
}

func (s *Storage) updateGIProbe(e ecs.Entity, op string, f func(p *GIProbe)) {
	p := get[GIProbe](s, e, op)
	if p == nil {
		return
	}
	f(p)
	p.Version++
	s.markInstances(p.instances)
}

func (s *Storage) GIProbeSetBounds(e ecs.Entity, b gmath.AABB) {
	s.updateGIProbe(e, "gi probe set bounds", func(p *GIProbe) { p.Bounds = b })
}

func (s *Storage) GIProbeSetCellSize(e ecs.Entity, v float32) {
	s.updateGIProbe(e, "gi probe set cell size", func(p *GIProbe) { p.CellSize = v })
}

func (s *Storage) GIProbeSetToCellXform(e ecs.Entity, xf gmath.Mat4) {
	s.updateGIProbe(e, "gi probe set to cell xform", func(p *GIProbe) { p.ToCell = xf })
}

func (s *Storage) GIProbeSetDynamicData(e ecs.Entity, data []int32) {
	s.updateGIProbe(e, "gi probe set dynamic data", func(p *GIProbe) { p.DynamicData = data })
}

func (s *Storage) GIProbeSetDynamicRange(e ecs.Entity, v int) {
	s.updateGIProbe(e, "gi probe set dynamic range", func(p *GIProbe) { p.DynamicRange = v })
}

func (s *Storage) GIProbeSetEnergy(e ecs.Entity, v float32) {
	s.updateGIProbe(e, "gi probe set energy", func(p *GIProbe) { p.Energy = v })
}

func (s *Storage) GIProbeSetBias(e ecs.Entity, v float32) {
	s.updateGIProbe(e, "gi probe set bias", func(p *GIProbe) { p.Bias = v })
}

func (s *Storage) GIProbeSetNormalBias(e ecs.Entity, v float32) {
	s.updateGIProbe(e, "gi probe set normal bias", func(p *GIProbe) { p.NormalBias = v })
}

func (s *Storage) GIProbeSetPropagation(e ecs.Entity, v float32) {
	s.updateGIProbe(e, "gi probe set propagation", func(p *GIProbe) { p.Propagation = v })
}

func (s *Storage) GIProbeSetInterior(e ecs.Entity, on bool) {
	s.updateGIProbe(e, "gi probe set interior", func(p *GIProbe) { p.Interior = on })
}

func (s *Storage) GIProbeSetCompress(e ecs.Entity, on bool) {
	s.updateGIProbe(e, "gi probe set compress", func(p *GIProbe) { p.Compress = on })
}

// GIProbeSetData links the baked 3D texture. data must be a GIProbeData
// entity or null.
func (s *Storage) GIProbeSetData(e, data ecs.Entity) {
	if !data.IsNull() && get[GIProbeData](s, data, "gi probe set data") == nil {
		return
	}
	s.updateGIProbe(e, "gi probe set data", func(p *GIProbe) { p.Data = data })
}

// GIProbe returns the probe component, or nil.
func (s *Storage) GIProbe(e ecs.Entity) *GIProbe { return ecs.Get[GIProbe](s.reg, e) }

// GIProbeGetVersion returns the change counter.
func (s *Storage) GIProbeGetVersion(e ecs.Entity) uint64 {
	if p := get[GIProbe](s, e, "gi probe get version"); p != nil {
		return p.Version
	}
	return 0
}

// ── Probe data ────────────────────────────────────────────────────────────────

// GIProbeCompression selects the storage format of probe data.
type GIProbeCompression int

const (
	GIProbeUncompressed GIProbeCompression = iota
	GIProbeS3TC
	GIProbeETC2
)

// GIProbeData is the 3D radiance texture a GI probe instance samples.
type GIProbeData struct {
	Width, Height, Depth int
	Levels               int
	Compression          GIProbeCompression

	tex   glapi.Texture
	bytes int
}

// TextureID returns the GL name of the 3D texture.
func (d *GIProbeData) TextureID() uint32 { return d.tex.ID() }

// GIProbeDataCreate allocates a w×h×d texture with levels mip levels.
// Compression falls back to uncompressed when the driver lacks it.
func (s *Storage) GIProbeDataCreate(w, h, depth, levels int, c GIProbeCompression) (ecs.Entity, error) {
	if w <= 0 || h <= 0 || depth <= 0 || levels <= 0 {
		return ecs.Null, fmt.Errorf("gi probe data %dx%dx%d levels=%d: %w", w, h, depth, levels, ErrInvalidArgument)
	}
	switch {
	case c == GIProbeS3TC && !s.feat.S3TC, c == GIProbeETC2 && !s.feat.ETC2:
		core.LogOnce("gi probe data compression", "gi probe data: compression %d unsupported, storing uncompressed", c)
		c = GIProbeUncompressed
	}
	tex, err := glapi.NewTextures(s.dev, 1)
	if err != nil {
		core.LogError("gi probe data %dx%dx%d: %v", w, h, depth, err)
		return ecs.Null, fmt.Errorf("gi probe data: %w", err)
	}
	d := s.dev
	d.ActiveTexture(glapi.TEXTURE0)
	d.BindTexture(glapi.TEXTURE_3D, tex.ID())
	bytes := 0
	for l := 0; l < levels; l++ {
		lw, lh, ld := max(w>>l, 1), max(h>>l, 1), max(depth>>l, 1)
		if c == GIProbeUncompressed {
			d.TexImage3D(glapi.TEXTURE_3D, int32(l), glapi.RGBA8, int32(lw), int32(lh), int32(ld), glapi.RGBA, glapi.UNSIGNED_BYTE, nil)
			bytes += lw * lh * ld * 4
			continue
		}
		size := giCompressedSize(lw, lh, ld)
		d.CompressedTexImage3D(glapi.TEXTURE_3D, int32(l), giInternalFormat(c), int32(lw), int32(lh), int32(ld), make([]byte, size))
		bytes += size
	}
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_BASE_LEVEL, 0)
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_MAX_LEVEL, int32(levels-1))
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_MIN_FILTER, glapi.LINEAR_MIPMAP_LINEAR)
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_MAG_FILTER, glapi.LINEAR)
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)
	d.TexParameteri(glapi.TEXTURE_3D, glapi.TEXTURE_WRAP_R, glapi.CLAMP_TO_EDGE)

	e, _ := create(s, GIProbeData{Width: w, Height: h, Depth: depth, Levels: levels, Compression: c, tex: tex, bytes: bytes})
	s.info.TextureMem += bytes
	return e, nil
}

func giInternalFormat(c GIProbeCompression) uint32 {
	if c == GIProbeETC2 {
		return glapi.COMPRESSED_RGBA8_ETC2_EAC
	}
	return glapi.COMPRESSED_RGBA_S3TC_DXT5_EXT
}

// giCompressedSize is the byte size of one level of 4×4 blocks of 16 bytes.
func giCompressedSize(w, h, d int) int {
	return ((w + 3) / 4) * ((h + 3) / 4) * d * 16
}

func (s *Storage) destroyGIProbeData(e ecs.Entity, d *GIProbeData) {
	s.info.TextureMem -= d.bytes
	d.tex.Release()
}

// GIProbeDataUpdate uploads count depth slices starting at slice into a
// mip level. Uncompressed data is RGBA8.
func (s *Storage) GIProbeDataUpdate(e ecs.Entity, slice, count, level int, data []byte) error {
	gd := get[GIProbeData](s, e, "gi probe data update")
	if gd == nil {
		return ErrInvalidHandle
	}
	if level < 0 || level >= gd.Levels {
		return fmt.Errorf("gi probe data level %d of %d: %w", level, gd.Levels, ErrInvalidArgument)
	}
	lw, lh, ld := max(gd.Width>>level, 1), max(gd.Height>>level, 1), max(gd.Depth>>level, 1)
	if slice < 0 || count <= 0 || slice+count > ld {
		return fmt.Errorf("gi probe data slices %d+%d of %d: %w", slice, count, ld, ErrInvalidArgument)
	}
	want := lw * lh * count * 4
	if gd.Compression != GIProbeUncompressed {
		want = giCompressedSize(lw, lh, count)
	}
	if len(data) != want {
		return fmt.Errorf("gi probe data: %d bytes, want %d: %w", len(data), want, ErrInvalidArgument)
	}
	d := s.dev
	d.ActiveTexture(glapi.TEXTURE0)
	d.BindTexture(glapi.TEXTURE_3D, gd.tex.ID())
	if gd.Compression == GIProbeUncompressed {
		d.TexSubImage3D(glapi.TEXTURE_3D, int32(level), 0, 0, int32(slice), int32(lw), int32(lh), int32(count), glapi.RGBA, glapi.UNSIGNED_BYTE, data)
		return nil
	}
	if slice != 0 || count != ld {
		return fmt.Errorf("gi probe data: compressed levels upload whole: %w", ErrInvalidArgument)
	}
	d.CompressedTexImage3D(glapi.TEXTURE_3D, int32(level), giInternalFormat(gd.Compression), int32(lw), int32(lh), int32(ld), data)
	return nil
}

// ── Lightmap capture ──────────────────────────────────────────────────────────

// LightmapOctantEmpty marks a missing child.
const LightmapOctantEmpty = math.MaxUint32

// LightmapOctantSize is the packed size of one octant: 6×3 half floats,
// an alpha float and eight child indices, little endian.
const LightmapOctantSize = 6*3*2 + 4 + 8*4

// LightmapOctant is one node of a lightmap capture octree. Light holds the
// incoming light along ±X, ±Y and ±Z.
type LightmapOctant struct {
	Light    [6][3]float32
	Alpha    float32
	Children [8]uint32
}

// LightmapCapture stores baked indirect light for dynamic objects.
type LightmapCapture struct {
	Bounds     gmath.AABB
	Octree     []LightmapOctant
	CellXform  gmath.Mat4
	CellSubdiv int
	Energy     float32
	Interior   bool

	instances instanceSet
}

// LightmapCaptureCreate makes an empty capture.
func (s *Storage) LightmapCaptureCreate() ecs.Entity {
	e, _ := create(s, LightmapCapture{CellXform: gmath.Mat4Identity(), Energy: 1, instances: instanceSet{}})
	return e
}

func (s *Storage) destroyLightmapCapture(e ecs.Entity, c *LightmapCapture) {
	s.unlinkBase(e, c.instances)
}

func (s *Storage) updateLightmapCapture(e ecs.Entity, op string, f func(c *LightmapCapture)) {
	if c := get[LightmapCapture](s, e, op); c != nil {
		f(c)
		s.markInstances(c.instances)
	}
}

func (s *Storage) LightmapCaptureSetBounds(e ecs.Entity, b gmath.AABB) {
	s.updateLightmapCapture(e, "lightmap capture set bounds", func(c *LightmapCapture) { c.Bounds = b })
}

func (s *Storage) LightmapCaptureSetCellTransform(e ecs.Entity, xf gmath.Mat4) {
	s.updateLightmapCapture(e, "lightmap capture set cell transform", func(c *LightmapCapture) { c.CellXform = xf })
}

func (s *Storage) LightmapCaptureSetCellSubdiv(e ecs.Entity, n int) {
	s.updateLightmapCapture(e, "lightmap capture set cell subdiv", func(c *LightmapCapture) { c.CellSubdiv = n })
}

func (s *Storage) LightmapCaptureSetEnergy(e ecs.Entity, v float32) {
	s.updateLightmapCapture(e, "lightmap capture set energy", func(c *LightmapCapture) { c.Energy = v })
}

func (s *Storage) LightmapCaptureSetInterior(e ecs.Entity, on bool) {
	s.updateLightmapCapture(e, "lightmap capture set interior", func(c *LightmapCapture) { c.Interior = on })
}

// LightmapCaptureSetOctree decodes a packed octree. The length must be a
// multiple of LightmapOctantSize.
func (s *Storage) LightmapCaptureSetOctree(e ecs.Entity, data []byte) error {
	c := get[LightmapCapture](s, e, "lightmap capture set octree")
	if c == nil {
		return ErrInvalidHandle
	}
	if len(data)%LightmapOctantSize != 0 {
		return fmt.Errorf("lightmap octree of %d bytes: %w", len(data), ErrInvalidArgument)
	}
	oct := make([]LightmapOctant, len(data)/LightmapOctantSize)
	for i := range oct {
		b := data[i*LightmapOctantSize:]
		for dir := 0; dir < 6; dir++ {
			for ch := 0; ch < 3; ch++ {
				bits := binary.LittleEndian.Uint16(b[(dir*3+ch)*2:])
				oct[i].Light[dir][ch] = float16.Frombits(bits).Float32()
			}
		}
		oct[i].Alpha = math.Float32frombits(binary.LittleEndian.Uint32(b[36:]))
		for k := 0; k < 8; k++ {
			oct[i].Children[k] = binary.LittleEndian.Uint32(b[40+k*4:])
		}
	}
	c.Octree = oct
	s.markInstances(c.instances)
	return nil
}

// LightmapCaptureGetOctree packs the octree back into its byte form.
func (s *Storage) LightmapCaptureGetOctree(e ecs.Entity) []byte {
	c := get[LightmapCapture](s, e, "lightmap capture get octree")
	if c == nil {
		return nil
	}
	out := make([]byte, len(c.Octree)*LightmapOctantSize)
	for i, o := range c.Octree {
		b := out[i*LightmapOctantSize:]
		for dir := 0; dir < 6; dir++ {
			for ch := 0; ch < 3; ch++ {
				binary.LittleEndian.PutUint16(b[(dir*3+ch)*2:], float16.Fromfloat32(o.Light[dir][ch]).Bits())
			}
		}
		binary.LittleEndian.PutUint32(b[36:], math.Float32bits(o.Alpha))
		for k, child := range o.Children {
			binary.LittleEndian.PutUint32(b[40+k*4:], child)
		}
	}
	return out
}

// LightmapCapture returns the capture component, or nil.
func (s *Storage) LightmapCapture(e ecs.Entity) *LightmapCapture {
	return ecs.Get[LightmapCapture](s.reg, e)
}
