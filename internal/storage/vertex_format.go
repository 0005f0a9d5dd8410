package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/x448/float16"

	"gles3render/core"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// ArrayFormat is the surface format bitmask: one bit per attribute, one
// compression bit per compressible attribute and a few layout flags.
type ArrayFormat uint32

// Attribute slots. The slot is also the shader attribute location.
const (
	ArrayVertex = iota
	ArrayNormal
	ArrayTangent
	ArrayColor
	ArrayTexUV
	ArrayTexUV2
	ArrayBones
	ArrayWeights
	ArrayMax
)

// Instance attribute locations of the instanced VAO.
const (
	InstanceXformLocation  = 8
	InstanceColorLocation  = 11
	InstanceCustomLocation = 12
)

const (
	FormatVertex ArrayFormat = 1 << iota
	FormatNormal
	FormatTangent
	FormatColor
	FormatTexUV
	FormatTexUV2
	FormatBones
	FormatWeights
	FormatIndex

	CompressVertex
	CompressNormal
	CompressTangent
	CompressColor
	CompressTexUV
	CompressTexUV2
	CompressBones
	CompressWeights
	CompressIndex

	FlagUse2DVertices
	FlagUse16BitBones
	FlagUseDynamicUpdate
	FlagUseOctahedralCompression

	CompressDefault = CompressNormal | CompressTangent | CompressColor | CompressTexUV | CompressTexUV2 | CompressWeights
)

// Has reports whether every bit of b is set.
func (f ArrayFormat) Has(b ArrayFormat) bool { return f&b == b }

// VertexAttrib describes one enabled attribute of a surface.
type VertexAttrib struct {
	Enabled    bool
	Index      uint32
	Size       int32
	Type       uint32
	Normalized bool
	Integer    bool
	Offset     int
	Stride     int32
}

// VertexLayout is the attribute layout derived from a format.
type VertexLayout struct {
	Attribs [ArrayMax]VertexAttrib
	// Stride is the interleaved stride of every attribute except the
	// position when split.
	Stride int
	// PositionStride is non-zero when positions are stored first.
	PositionStride int
	VertexCount    int
	Size           int
	IndexType      uint32
	IndexSize      int
}

// attribute sizes in bytes for each slot of a format
func attribSizes(f ArrayFormat) (sizes [ArrayMax]int) {
	if f.Has(FormatVertex) {
		switch {
		case f.Has(CompressVertex):
			sizes[ArrayVertex] = 8
			if f.Has(FlagUse2DVertices) {
				sizes[ArrayVertex] = 4
			}
		case f.Has(FlagUse2DVertices):
			sizes[ArrayVertex] = 8
		default:
			sizes[ArrayVertex] = 12
		}
	}
	oct := f.Has(FlagUseOctahedralCompression)
	if f.Has(FormatNormal) {
		switch {
		case oct && f.Has(FormatTangent) && f.Has(CompressTangent):
			sizes[ArrayNormal] = 4
		case oct && f.Has(FormatTangent):
			sizes[ArrayNormal] = 8
		case oct, f.Has(CompressNormal):
			sizes[ArrayNormal] = 4
		default:
			sizes[ArrayNormal] = 12
		}
	}
	if f.Has(FormatTangent) && !(oct && f.Has(FormatNormal)) {
		sizes[ArrayTangent] = 16
		if f.Has(CompressTangent) {
			sizes[ArrayTangent] = 4
		}
	}
	if f.Has(FormatColor) {
		sizes[ArrayColor] = 16
		if f.Has(CompressColor) {
			sizes[ArrayColor] = 4
		}
	}
	for _, uv := range [2]struct {
		slot     int
		fmt, cmp ArrayFormat
	}{{ArrayTexUV, FormatTexUV, CompressTexUV}, {ArrayTexUV2, FormatTexUV2, CompressTexUV2}} {
		if f.Has(uv.fmt) {
			sizes[uv.slot] = 8
			if f.Has(uv.cmp) {
				sizes[uv.slot] = 4
			}
		}
	}
	if f.Has(FormatBones) {
		sizes[ArrayBones] = 4
		if f.Has(FlagUse16BitBones) {
			sizes[ArrayBones] = 8
		}
	}
	if f.Has(FormatWeights) {
		sizes[ArrayWeights] = 16
		if f.Has(CompressWeights) {
			sizes[ArrayWeights] = 8
		}
	}
	return sizes
}

// Layout derives the bit-exact attribute layout of a format. With split,
// positions of every vertex come first, followed by the remaining
// attributes interleaved per vertex.
func Layout(f ArrayFormat, vcount int, split bool) VertexLayout {
	var l VertexLayout
	l.VertexCount = vcount
	sizes := attribSizes(f)
	oct := f.Has(FlagUseOctahedralCompression)

	set := func(slot int, size int32, xtype uint32, normalized, integer bool) {
		l.Attribs[slot] = VertexAttrib{Enabled: true, Index: uint32(slot), Size: size, Type: xtype,
			Normalized: normalized, Integer: integer}
	}
	if sizes[ArrayVertex] > 0 {
		comps := int32(3)
		if f.Has(FlagUse2DVertices) {
			comps = 2
		}
		if f.Has(CompressVertex) {
			if comps == 3 {
				comps = 4
			}
			set(ArrayVertex, comps, glapi.HALF_FLOAT, false, false)
		} else {
			set(ArrayVertex, comps, glapi.FLOAT, false, false)
		}
	}
	if sizes[ArrayNormal] > 0 {
		switch {
		case oct && sizes[ArrayNormal] == 8:
			set(ArrayNormal, 4, glapi.SHORT, true, false)
		case oct && f.Has(FormatTangent):
			set(ArrayNormal, 4, glapi.BYTE, true, false)
		case oct:
			set(ArrayNormal, 2, glapi.SHORT, true, false)
		case f.Has(CompressNormal):
			set(ArrayNormal, 3, glapi.BYTE, true, false)
		default:
			set(ArrayNormal, 3, glapi.FLOAT, false, false)
		}
		if oct {
			// Packed normal (and tangent) are read through the tangent slot.
			l.Attribs[ArrayNormal].Index = ArrayTangent
		}
	}
	if sizes[ArrayTangent] > 0 {
		if f.Has(CompressTangent) {
			set(ArrayTangent, 4, glapi.BYTE, true, false)
		} else {
			set(ArrayTangent, 4, glapi.FLOAT, false, false)
		}
	}
	if sizes[ArrayColor] > 0 {
		if f.Has(CompressColor) {
			set(ArrayColor, 4, glapi.UNSIGNED_BYTE, true, false)
		} else {
			set(ArrayColor, 4, glapi.FLOAT, false, false)
		}
	}
	for _, slot := range [2]int{ArrayTexUV, ArrayTexUV2} {
		if sizes[slot] == 4 {
			set(slot, 2, glapi.HALF_FLOAT, false, false)
		} else if sizes[slot] == 8 {
			set(slot, 2, glapi.FLOAT, false, false)
		}
	}
	if sizes[ArrayBones] > 0 {
		if f.Has(FlagUse16BitBones) {
			set(ArrayBones, 4, glapi.UNSIGNED_SHORT, false, true)
		} else {
			set(ArrayBones, 4, glapi.UNSIGNED_BYTE, false, true)
		}
	}
	if sizes[ArrayWeights] > 0 {
		if f.Has(CompressWeights) {
			set(ArrayWeights, 4, glapi.UNSIGNED_SHORT, true, false)
		} else {
			set(ArrayWeights, 4, glapi.FLOAT, false, false)
		}
	}

	offset := 0
	first := ArrayVertex
	if split && sizes[ArrayVertex] > 0 {
		l.PositionStride = sizes[ArrayVertex]
		l.Attribs[ArrayVertex].Stride = int32(sizes[ArrayVertex])
		offset = sizes[ArrayVertex] * vcount
		first = ArrayNormal
	}
	base := offset
	for slot := first; slot < ArrayMax; slot++ {
		if sizes[slot] == 0 {
			continue
		}
		l.Attribs[slot].Offset = offset
		offset += sizes[slot]
	}
	l.Stride = offset - base
	for slot := first; slot < ArrayMax; slot++ {
		if l.Attribs[slot].Enabled {
			l.Attribs[slot].Stride = int32(l.Stride)
		}
	}
	l.Size = base + l.Stride*vcount

	if f.Has(FormatIndex) {
		l.IndexType, l.IndexSize = glapi.UNSIGNED_INT, 4
		if vcount < 65536 {
			l.IndexType, l.IndexSize = glapi.UNSIGNED_SHORT, 2
		}
	}
	return l
}

// at returns the byte offset of attribute slot for vertex i.
func (l *VertexLayout) at(slot, i int) int {
	a := &l.Attribs[slot]
	return a.Offset + i*int(a.Stride)
}

// ── Octahedral encoding ──────────────────────────────────────────────────────

func signNotZero(v float32) float32 {
	if v >= 0 {
		return 1
	}
	return -1
}

// OctEncode maps a unit vector to the [-1,1]² octahedron.
func OctEncode(n gmath.Vec3) gmath.Vec2 {
	l1 := math32.Abs(n.X) + math32.Abs(n.Y) + math32.Abs(n.Z)
	if l1 == 0 {
		return gmath.Vec2{X: 0, Y: 0}
	}
	n = n.Div(l1)
	if n.Z >= 0 {
		return gmath.Vec2{X: n.X, Y: n.Y}
	}
	return gmath.Vec2{
		X: (1 - math32.Abs(n.Y)) * signNotZero(n.X),
		Y: (1 - math32.Abs(n.X)) * signNotZero(n.Y),
	}
}

// OctDecode reverses OctEncode.
func OctDecode(v gmath.Vec2) gmath.Vec3 {
	n := gmath.Vec3{X: v.X, Y: v.Y, Z: 1 - math32.Abs(v.X) - math32.Abs(v.Y)}
	t := max(-n.Z, 0)
	if n.X >= 0 {
		n.X -= t
	} else {
		n.X += t
	}
	if n.Y >= 0 {
		n.Y -= t
	} else {
		n.Y += t
	}
	return n.Normalize()
}

// octTangent folds the bitangent sign into y, keeping y away from zero.
func octTangent(t gmath.Vec4, bias float32) gmath.Vec2 {
	v := OctEncode(gmath.Vec3{X: t.X, Y: t.Y, Z: t.Z})
	v.Y = max(v.Y*0.5+0.5, bias) * signNotZero(t.W)
	return v
}

func octTangentDecode(v gmath.Vec2) gmath.Vec4 {
	sign := signNotZero(v.Y)
	v.Y = math32.Abs(v.Y)*2 - 1
	t := OctDecode(v)
	return gmath.Vec4{X: t.X, Y: t.Y, Z: t.Z, W: sign}
}

// ── Scalar packing ───────────────────────────────────────────────────────────

func snorm(v, scale float32) float32 {
	v = gmath.Clamp(v, -1, 1) * scale
	return math32.Round(v)
}

func putSnorm8(b []byte, v float32)  { b[0] = byte(int8(snorm(v, 127))) }
func putSnorm16(b []byte, v float32) { binary.LittleEndian.PutUint16(b, uint16(int16(snorm(v, 32767)))) }
func getSnorm8(b []byte) float32     { return max(float32(int8(b[0]))/127, -1) }
func getSnorm16(b []byte) float32 {
	return max(float32(int16(binary.LittleEndian.Uint16(b)))/32767, -1)
}

func putF32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
func getF32(b []byte) float32    { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
func putF16(b []byte, v float32) { binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits()) }
func getF16(b []byte) float32    { return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32() }

// ── CPU arrays ───────────────────────────────────────────────────────────────

// SurfaceArrays are per-vertex attribute arrays. Every non-empty array has
// one entry per vertex; 2D positions ignore Z.
type SurfaceArrays struct {
	Vertices []gmath.Vec3
	Normals  []gmath.Vec3
	Tangents []gmath.Vec4
	Colors   []core.Color
	UV       []gmath.Vec2
	UV2      []gmath.Vec2
	Bones    [][4]uint16
	Weights  [][4]float32
	Indices  []uint32
}

// Format returns the attribute bits of the non-empty arrays.
func (a *SurfaceArrays) Format() ArrayFormat {
	var f ArrayFormat
	add := func(n int, bit ArrayFormat) {
		if n > 0 {
			f |= bit
		}
	}
	add(len(a.Vertices), FormatVertex)
	add(len(a.Normals), FormatNormal)
	add(len(a.Tangents), FormatTangent)
	add(len(a.Colors), FormatColor)
	add(len(a.UV), FormatTexUV)
	add(len(a.UV2), FormatTexUV2)
	add(len(a.Bones), FormatBones)
	add(len(a.Weights), FormatWeights)
	add(len(a.Indices), FormatIndex)
	return f
}

// PackedSurface is the GPU-ready form of SurfaceArrays.
type PackedSurface struct {
	Format      ArrayFormat
	Layout      VertexLayout
	Vertices    []byte
	Indices     []byte
	VertexCount int
	IndexCount  int
	AABB        gmath.AABB
	// BoneAABBs bound the vertices each bone influences; unused bones
	// have a negative size.
	BoneAABBs []gmath.AABB
}

// PackArrays encodes arrays with the attribute bits of a and the
// compression and flag bits of f.
func PackArrays(f ArrayFormat, a *SurfaceArrays, split bool) (PackedSurface, error) {
	const attribBits = FormatVertex | FormatNormal | FormatTangent | FormatColor | FormatTexUV |
		FormatTexUV2 | FormatBones | FormatWeights | FormatIndex
	f = f&^attribBits | a.Format()
	n := len(a.Vertices)
	if n == 0 {
		return PackedSurface{}, fmt.Errorf("pack arrays: no vertices: %w", ErrInvalidArgument)
	}
	for name, l := range map[string]int{"normals": len(a.Normals), "tangents": len(a.Tangents),
		"colors": len(a.Colors), "uv": len(a.UV), "uv2": len(a.UV2), "bones": len(a.Bones), "weights": len(a.Weights)} {
		if l != 0 && l != n {
			return PackedSurface{}, fmt.Errorf("pack arrays: %d %s for %d vertices: %w", l, name, n, ErrInvalidArgument)
		}
	}
	l := Layout(f, n, split)
	buf := make([]byte, l.Size)
	oct := f.Has(FlagUseOctahedralCompression)
	is2D := f.Has(FlagUse2DVertices)

	for i := 0; i < n; i++ {
		p := a.Vertices[i]
		b := buf[l.at(ArrayVertex, i):]
		switch {
		case f.Has(CompressVertex):
			putF16(b, p.X)
			putF16(b[2:], p.Y)
			if !is2D {
				putF16(b[4:], p.Z)
				putF16(b[6:], 1)
			}
		default:
			putF32(b, p.X)
			putF32(b[4:], p.Y)
			if !is2D {
				putF32(b[8:], p.Z)
			}
		}

		if len(a.Normals) > 0 {
			b := buf[l.at(ArrayNormal, i):]
			nrm := a.Normals[i]
			at := l.Attribs[ArrayNormal]
			switch {
			case oct:
				o := OctEncode(nrm)
				var tg gmath.Vec2
				if len(a.Tangents) > 0 {
					bias := float32(1.0 / 32767)
					if at.Type == glapi.BYTE {
						bias = 1.0 / 127
					}
					tg = octTangent(a.Tangents[i], bias)
				}
				if at.Type == glapi.BYTE {
					putSnorm8(b, o.X)
					putSnorm8(b[1:], o.Y)
					putSnorm8(b[2:], tg.X)
					putSnorm8(b[3:], tg.Y)
				} else {
					putSnorm16(b, o.X)
					putSnorm16(b[2:], o.Y)
					if at.Size == 4 {
						putSnorm16(b[4:], tg.X)
						putSnorm16(b[6:], tg.Y)
					}
				}
			case f.Has(CompressNormal):
				putSnorm8(b, nrm.X)
				putSnorm8(b[1:], nrm.Y)
				putSnorm8(b[2:], nrm.Z)
			default:
				putF32(b, nrm.X)
				putF32(b[4:], nrm.Y)
				putF32(b[8:], nrm.Z)
			}
		}
		if l.Attribs[ArrayTangent].Enabled {
			b := buf[l.at(ArrayTangent, i):]
			t := a.Tangents[i]
			if f.Has(CompressTangent) {
				putSnorm8(b, t.X)
				putSnorm8(b[1:], t.Y)
				putSnorm8(b[2:], t.Z)
				putSnorm8(b[3:], signNotZero(t.W))
			} else {
				putF32(b, t.X)
				putF32(b[4:], t.Y)
				putF32(b[8:], t.Z)
				putF32(b[12:], t.W)
			}
		}
		if len(a.Colors) > 0 {
			b := buf[l.at(ArrayColor, i):]
			c := a.Colors[i]
			if f.Has(CompressColor) {
				for k, v := range c.Array() {
					b[k] = byte(unorm(v, 255))
				}
			} else {
				for k, v := range c.Array() {
					putF32(b[k*4:], v)
				}
			}
		}
		for _, uv := range [2]struct {
			slot int
			src  []gmath.Vec2
			cmp  ArrayFormat
		}{{ArrayTexUV, a.UV, CompressTexUV}, {ArrayTexUV2, a.UV2, CompressTexUV2}} {
			if len(uv.src) == 0 {
				continue
			}
			b := buf[l.at(uv.slot, i):]
			if f.Has(uv.cmp) {
				putF16(b, uv.src[i].X)
				putF16(b[2:], uv.src[i].Y)
			} else {
				putF32(b, uv.src[i].X)
				putF32(b[4:], uv.src[i].Y)
			}
		}
		if len(a.Bones) > 0 {
			b := buf[l.at(ArrayBones, i):]
			for k, v := range a.Bones[i] {
				if f.Has(FlagUse16BitBones) {
					binary.LittleEndian.PutUint16(b[k*2:], v)
				} else {
					if v > 255 {
						return PackedSurface{}, fmt.Errorf("pack arrays: bone %d needs 16-bit bones: %w", v, ErrInvalidArgument)
					}
					b[k] = byte(v)
				}
			}
		}
		if len(a.Weights) > 0 {
			b := buf[l.at(ArrayWeights, i):]
			for k, v := range a.Weights[i] {
				if f.Has(CompressWeights) {
					binary.LittleEndian.PutUint16(b[k*2:], uint16(unorm(v, 65535)))
				} else {
					putF32(b[k*4:], v)
				}
			}
		}
	}

	out := PackedSurface{Format: f, Layout: l, Vertices: buf, VertexCount: n, AABB: gmath.NewAABBFromPoints(a.Vertices...)}
	if len(a.Bones) > 0 && len(a.Weights) > 0 {
		out.BoneAABBs = boneAABBs(a)
	}
	if len(a.Indices) > 0 {
		out.IndexCount = len(a.Indices)
		out.Indices = make([]byte, len(a.Indices)*l.IndexSize)
		for i, idx := range a.Indices {
			if int(idx) >= n {
				return PackedSurface{}, fmt.Errorf("pack arrays: index %d of %d vertices: %w", idx, n, ErrInvalidArgument)
			}
			if l.IndexSize == 2 {
				binary.LittleEndian.PutUint16(out.Indices[i*2:], uint16(idx))
			} else {
				binary.LittleEndian.PutUint32(out.Indices[i*4:], idx)
			}
		}
	}
	return out, nil
}

// boneAABBs bounds, per bone, the vertices it has a non-zero weight on.
func boneAABBs(a *SurfaceArrays) []gmath.AABB {
	var boxes []gmath.AABB
	for i, bones := range a.Bones {
		for k, b := range bones {
			if a.Weights[i][k] <= 0 {
				continue
			}
			for int(b) >= len(boxes) {
				boxes = append(boxes, gmath.AABB{Size: gmath.NewVec3(-1, -1, -1)})
			}
			if boxes[b].Size.X < 0 {
				boxes[b] = gmath.AABB{Position: a.Vertices[i]}
			} else {
				boxes[b] = boxes[b].Expand(a.Vertices[i])
			}
		}
	}
	return boxes
}

// UnpackArrays decodes a vertex (and optional index) buffer laid out for f.
func UnpackArrays(f ArrayFormat, vertices []byte, vcount int, indices []byte, icount int, split bool) (SurfaceArrays, error) {
	l := Layout(f, vcount, split)
	if len(vertices) < l.Size {
		return SurfaceArrays{}, fmt.Errorf("unpack arrays: %d bytes, layout needs %d: %w", len(vertices), l.Size, ErrInvalidArgument)
	}
	var a SurfaceArrays
	oct := f.Has(FlagUseOctahedralCompression)
	is2D := f.Has(FlagUse2DVertices)
	hasTangent := f.Has(FormatTangent)

	for i := 0; i < vcount; i++ {
		if l.Attribs[ArrayVertex].Enabled {
			b := vertices[l.at(ArrayVertex, i):]
			var p gmath.Vec3
			if f.Has(CompressVertex) {
				p.X, p.Y = getF16(b), getF16(b[2:])
				if !is2D {
					p.Z = getF16(b[4:])
				}
			} else {
				p.X, p.Y = getF32(b), getF32(b[4:])
				if !is2D {
					p.Z = getF32(b[8:])
				}
			}
			a.Vertices = append(a.Vertices, p)
		}
		if at := l.Attribs[ArrayNormal]; at.Enabled {
			b := vertices[l.at(ArrayNormal, i):]
			switch {
			case oct:
				var o, tg gmath.Vec2
				if at.Type == glapi.BYTE {
					o = gmath.Vec2{X: getSnorm8(b), Y: getSnorm8(b[1:])}
					tg = gmath.Vec2{X: getSnorm8(b[2:]), Y: getSnorm8(b[3:])}
				} else {
					o = gmath.Vec2{X: getSnorm16(b), Y: getSnorm16(b[2:])}
					if at.Size == 4 {
						tg = gmath.Vec2{X: getSnorm16(b[4:]), Y: getSnorm16(b[6:])}
					}
				}
				a.Normals = append(a.Normals, OctDecode(o))
				if hasTangent {
					a.Tangents = append(a.Tangents, octTangentDecode(tg))
				}
			case f.Has(CompressNormal):
				a.Normals = append(a.Normals, gmath.Vec3{X: getSnorm8(b), Y: getSnorm8(b[1:]), Z: getSnorm8(b[2:])})
			default:
				a.Normals = append(a.Normals, gmath.Vec3{X: getF32(b), Y: getF32(b[4:]), Z: getF32(b[8:])})
			}
		}
		if l.Attribs[ArrayTangent].Enabled {
			b := vertices[l.at(ArrayTangent, i):]
			if f.Has(CompressTangent) {
				a.Tangents = append(a.Tangents, gmath.Vec4{X: getSnorm8(b), Y: getSnorm8(b[1:]), Z: getSnorm8(b[2:]), W: signNotZero(getSnorm8(b[3:]))})
			} else {
				a.Tangents = append(a.Tangents, gmath.Vec4{X: getF32(b), Y: getF32(b[4:]), Z: getF32(b[8:]), W: getF32(b[12:])})
			}
		}
		if l.Attribs[ArrayColor].Enabled {
			b := vertices[l.at(ArrayColor, i):]
			if f.Has(CompressColor) {
				a.Colors = append(a.Colors, core.Color{R: float32(b[0]) / 255, G: float32(b[1]) / 255, B: float32(b[2]) / 255, A: float32(b[3]) / 255})
			} else {
				a.Colors = append(a.Colors, core.Color{R: getF32(b), G: getF32(b[4:]), B: getF32(b[8:]), A: getF32(b[12:])})
			}
		}
		for _, uv := range [2]struct {
			slot int
			dst  *[]gmath.Vec2
			cmp  ArrayFormat
		}{{ArrayTexUV, &a.UV, CompressTexUV}, {ArrayTexUV2, &a.UV2, CompressTexUV2}} {
			if !l.Attribs[uv.slot].Enabled {
				continue
			}
			b := vertices[l.at(uv.slot, i):]
			if f.Has(uv.cmp) {
				*uv.dst = append(*uv.dst, gmath.Vec2{X: getF16(b), Y: getF16(b[2:])})
			} else {
				*uv.dst = append(*uv.dst, gmath.Vec2{X: getF32(b), Y: getF32(b[4:])})
			}
		}
		if l.Attribs[ArrayBones].Enabled {
			b := vertices[l.at(ArrayBones, i):]
			var bones [4]uint16
			for k := range bones {
				if f.Has(FlagUse16BitBones) {
					bones[k] = binary.LittleEndian.Uint16(b[k*2:])
				} else {
					bones[k] = uint16(b[k])
				}
			}
			a.Bones = append(a.Bones, bones)
		}
		if l.Attribs[ArrayWeights].Enabled {
			b := vertices[l.at(ArrayWeights, i):]
			var w [4]float32
			for k := range w {
				if f.Has(CompressWeights) {
					w[k] = float32(binary.LittleEndian.Uint16(b[k*2:])) / 65535
				} else {
					w[k] = getF32(b[k*4:])
				}
			}
			a.Weights = append(a.Weights, w)
		}
	}

	if icount > 0 && f.Has(FormatIndex) {
		if len(indices) < icount*l.IndexSize {
			return SurfaceArrays{}, fmt.Errorf("unpack arrays: %d index bytes for %d indices: %w", len(indices), icount, ErrInvalidArgument)
		}
		a.Indices = make([]uint32, icount)
		for i := range a.Indices {
			if l.IndexSize == 2 {
				a.Indices[i] = uint32(binary.LittleEndian.Uint16(indices[i*2:]))
			} else {
				a.Indices[i] = binary.LittleEndian.Uint32(indices[i*4:])
			}
		}
	}
	return a, nil
}

// bindLayout enables the attributes of l on the bound VAO reading from vbo
// at a byte offset.
func bindLayout(d glapi.Device, l *VertexLayout, vbo uint32, base int) {
	d.BindBuffer(glapi.ARRAY_BUFFER, vbo)
	for slot := 0; slot < ArrayMax; slot++ {
		a := l.Attribs[slot]
		if !a.Enabled {
			continue
		}
		d.EnableVertexAttribArray(a.Index)
		if a.Integer {
			d.VertexAttribIPointer(a.Index, a.Size, a.Type, a.Stride, base+a.Offset)
		} else {
			d.VertexAttribPointer(a.Index, a.Size, a.Type, a.Normalized, a.Stride, base+a.Offset)
		}
	}
}

// BindSurfaceAttribs points the attributes of the base buffer (shape -1)
// or of blend shape shape at their slot location plus locOffset on the
// bound vertex array. Only slots whose format bit is in mask are bound.
func (s *Storage) BindSurfaceAttribs(sf *Surface, shape int, locOffset uint32, mask ArrayFormat) {
	vbo := sf.vbo.ID()
	if shape >= 0 {
		if shape >= len(sf.blendShape) {
			return
		}
		vbo = sf.blendShape[shape].vbo.ID()
	}
	l := sf.Layout
	for slot := 0; slot < ArrayMax; slot++ {
		if mask&(1<<slot) == 0 {
			l.Attribs[slot].Enabled = false
			continue
		}
		l.Attribs[slot].Index += locOffset
	}
	bindLayout(s.dev, &l, vbo, 0)
}
