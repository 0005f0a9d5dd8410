package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// ErrImmediateState is returned for begin/end calls out of order.
var ErrImmediateState = errors.New("storage: immediate begin/end mismatch")

// ImmediateChunk is one primitive batch between Begin and End. Attribute
// slices are either empty or as long as Vertices.
type ImmediateChunk struct {
	Primitive Primitive
	Texture   ecs.Entity
	Format    ArrayFormat

	Vertices []gmath.Vec3
	Normals  []gmath.Vec3
	Tangents []gmath.Vec4
	Colors   []core.Color
	UV       []gmath.Vec2
	UV2      []gmath.Vec2
}

// Immediate is CPU-side geometry rebuilt every frame and streamed into the
// shared transient buffer at draw time.
type Immediate struct {
	Chunks   []ImmediateChunk
	Building bool
	Material ecs.Entity
	AABB     gmath.AABB

	normal  gmath.Vec3
	tangent gmath.Vec4
	color   core.Color
	uv      gmath.Vec2
	uv2     gmath.Vec2

	instances instanceSet
}

// ImmediateCreate makes an empty immediate.
func (s *Storage) ImmediateCreate() ecs.Entity {
	e, _ := create(s, Immediate{Material: ecs.Null, instances: instanceSet{}})
	return e
}

// Immediate returns the immediate component, or nil.
func (s *Storage) Immediate(e ecs.Entity) *Immediate { return ecs.Get[Immediate](s.reg, e) }

func (s *Storage) destroyImmediate(e ecs.Entity, im *Immediate) {
	if mat := ecs.Get[Material](s.reg, im.Material); mat != nil {
		s.MaterialRemoveGeometry(im.Material, e)
	}
	s.unlinkBase(e, im.instances)
}

// ImmediateBegin starts a chunk.
func (s *Storage) ImmediateBegin(e ecs.Entity, p Primitive, texture ecs.Entity) error {
	im := get[Immediate](s, e, "immediate begin")
	if im == nil {
		return ErrInvalidHandle
	}
	if im.Building {
		return fmt.Errorf("immediate begin: %w", ErrImmediateState)
	}
	im.Building = true
	im.Chunks = append(im.Chunks, ImmediateChunk{Primitive: p, Texture: texture})
	return nil
}

func (s *Storage) building(e ecs.Entity, op string) (*Immediate, *ImmediateChunk) {
	im := get[Immediate](s, e, op)
	if im == nil {
		return nil, nil
	}
	if !im.Building {
		core.LogOnce(op+"/state", "%s: %v: %v", op, e, ErrImmediateState)
		return nil, nil
	}
	return im, &im.Chunks[len(im.Chunks)-1]
}

// ImmediateVertex appends a vertex carrying the current attribute values.
func (s *Storage) ImmediateVertex(e ecs.Entity, v gmath.Vec3) {
	im, c := s.building(e, "immediate vertex")
	if im == nil {
		return
	}
	if c.Format.Has(FormatNormal) {
		c.Normals = append(c.Normals, im.normal)
	}
	if c.Format.Has(FormatTangent) {
		c.Tangents = append(c.Tangents, im.tangent)
	}
	if c.Format.Has(FormatColor) {
		c.Colors = append(c.Colors, im.color)
	}
	if c.Format.Has(FormatTexUV) {
		c.UV = append(c.UV, im.uv)
	}
	if c.Format.Has(FormatTexUV2) {
		c.UV2 = append(c.UV2, im.uv2)
	}
	c.Vertices = append(c.Vertices, v)
	c.Format |= FormatVertex
	if len(im.Chunks) == 1 && len(c.Vertices) == 1 {
		im.AABB = gmath.AABB{Position: v}
	} else {
		im.AABB = im.AABB.Expand(v)
	}
}

// backfill enables an attribute on the chunk, giving every vertex added
// so far the first value seen.
func backfill[T any](c *ImmediateChunk, bit ArrayFormat, dst *[]T, v T) {
	if c.Format.Has(bit) {
		return
	}
	c.Format |= bit
	for range c.Vertices {
		*dst = append(*dst, v)
	}
}

// ImmediateNormal sets the normal of the following vertices.
func (s *Storage) ImmediateNormal(e ecs.Entity, n gmath.Vec3) {
	if im, c := s.building(e, "immediate normal"); im != nil {
		im.normal = n
		backfill(c, FormatNormal, &c.Normals, n)
	}
}

// ImmediateTangent sets the tangent of the following vertices; w holds the
// binormal sign.
func (s *Storage) ImmediateTangent(e ecs.Entity, t gmath.Vec4) {
	if im, c := s.building(e, "immediate tangent"); im != nil {
		im.tangent = t
		backfill(c, FormatTangent, &c.Tangents, t)
	}
}

// ImmediateColor sets the color of the following vertices.
func (s *Storage) ImmediateColor(e ecs.Entity, col core.Color) {
	if im, c := s.building(e, "immediate color"); im != nil {
		im.color = col
		backfill(c, FormatColor, &c.Colors, col)
	}
}

// ImmediateUV sets the first UV of the following vertices.
func (s *Storage) ImmediateUV(e ecs.Entity, uv gmath.Vec2) {
	if im, c := s.building(e, "immediate uv"); im != nil {
		im.uv = uv
		backfill(c, FormatTexUV, &c.UV, uv)
	}
}

// ImmediateUV2 sets the second UV of the following vertices.
func (s *Storage) ImmediateUV2(e ecs.Entity, uv gmath.Vec2) {
	if im, c := s.building(e, "immediate uv2"); im != nil {
		im.uv2 = uv
		backfill(c, FormatTexUV2, &c.UV2, uv)
	}
}

// ImmediateEnd closes the chunk and flags the instances drawing it.
func (s *Storage) ImmediateEnd(e ecs.Entity) error {
	im := get[Immediate](s, e, "immediate end")
	if im == nil {
		return ErrInvalidHandle
	}
	if !im.Building {
		return fmt.Errorf("immediate end: %w", ErrImmediateState)
	}
	im.Building = false
	s.markInstances(im.instances)
	return nil
}

// ImmediateClear drops every chunk.
func (s *Storage) ImmediateClear(e ecs.Entity) {
	im := get[Immediate](s, e, "immediate clear")
	if im == nil {
		return
	}
	if im.Building {
		core.LogError("immediate clear: %v: %v", e, ErrImmediateState)
		return
	}
	im.Chunks = im.Chunks[:0]
	im.AABB = gmath.AABB{}
	s.markInstances(im.instances)
}

// ImmediateSetMaterial sets the material of every chunk.
func (s *Storage) ImmediateSetMaterial(e, material ecs.Entity) {
	im := get[Immediate](s, e, "immediate set material")
	if im == nil {
		return
	}
	if im.Material == material {
		return
	}
	if s.reg.Valid(im.Material) {
		s.MaterialRemoveGeometry(im.Material, e)
	}
	im.Material = ecs.Null
	if s.MaterialAddGeometry(material, e) {
		im.Material = material
	}
	s.markInstances(im.instances)
}

// ImmediateGetMaterial returns the material.
func (s *Storage) ImmediateGetMaterial(e ecs.Entity) ecs.Entity {
	if im := get[Immediate](s, e, "immediate get material"); im != nil {
		return im.Material
	}
	return ecs.Null
}

// ImmediateGetAABB returns the bounds of every vertex added.
func (s *Storage) ImmediateGetAABB(e ecs.Entity) gmath.AABB {
	if im := get[Immediate](s, e, "immediate get aabb"); im != nil {
		return im.AABB
	}
	return gmath.AABB{}
}

// ── Transient stream ──

// immediateStream is the shared buffer immediate chunks are orphaned into
// before each draw.
type immediateStream struct {
	dev  glapi.Device
	buf  glapi.Buffer
	vao  glapi.VertexArray
	size int
}

func (st *immediateStream) init(d glapi.Device, size int) error {
	st.dev, st.size = d, size
	buf, err := glapi.NewBuffers(d, 1)
	if err != nil {
		return err
	}
	vao, err := glapi.NewVertexArrays(d, 1)
	if err != nil {
		buf.Release()
		return err
	}
	st.buf, st.vao = buf, vao
	d.BindBuffer(glapi.ARRAY_BUFFER, buf.ID())
	d.BufferData(glapi.ARRAY_BUFFER, size, nil, glapi.STREAM_DRAW)
	d.BindBuffer(glapi.ARRAY_BUFFER, 0)
	return nil
}

func (st *immediateStream) release() {
	st.vao.Release()
	st.buf.Release()
}

// chunkLayout returns per-attribute float offsets (-1 when absent) and the
// stride in floats. Every attribute is streamed as float.
func chunkLayout(c *ImmediateChunk) (offsets [ArrayMax]int, stride int) {
	sizes := [ArrayMax]int{ArrayVertex: 3, ArrayNormal: 3, ArrayTangent: 4, ArrayColor: 4, ArrayTexUV: 2, ArrayTexUV2: 2}
	bits := [ArrayMax]ArrayFormat{FormatVertex, FormatNormal, FormatTangent, FormatColor, FormatTexUV, FormatTexUV2, FormatBones, FormatWeights}
	for i := range offsets {
		offsets[i] = -1
		if sizes[i] > 0 && c.Format.Has(bits[i]) {
			offsets[i] = stride
			stride += sizes[i]
		}
	}
	return offsets, stride
}

// StreamImmediateChunk uploads c into the transient buffer and leaves its
// VAO bound. It returns the vertex count, or false when the chunk does not
// fit and must be skipped.
func (s *Storage) StreamImmediateChunk(c *ImmediateChunk) (int32, bool) {
	st := &s.immediate
	d := st.dev
	offsets, stride := chunkLayout(c)
	n := len(c.Vertices)
	bytes := n * stride * 4
	if n == 0 {
		return 0, false
	}
	if bytes > st.size {
		core.LogOnce("immediate/oversize", "immediate chunk of %d bytes exceeds the %d byte stream buffer; skipped", bytes, st.size)
		return 0, false
	}
	data := make([]byte, bytes)
	put := func(at int, vals ...float32) {
		for i, v := range vals {
			binary.LittleEndian.PutUint32(data[(at+i)*4:], math.Float32bits(v))
		}
	}
	for i := 0; i < n; i++ {
		base := i * stride
		v := c.Vertices[i]
		put(base+offsets[ArrayVertex], v.X, v.Y, v.Z)
		if o := offsets[ArrayNormal]; o >= 0 {
			put(base+o, c.Normals[i].X, c.Normals[i].Y, c.Normals[i].Z)
		}
		if o := offsets[ArrayTangent]; o >= 0 {
			put(base+o, c.Tangents[i].X, c.Tangents[i].Y, c.Tangents[i].Z, c.Tangents[i].W)
		}
		if o := offsets[ArrayColor]; o >= 0 {
			put(base+o, c.Colors[i].R, c.Colors[i].G, c.Colors[i].B, c.Colors[i].A)
		}
		if o := offsets[ArrayTexUV]; o >= 0 {
			put(base+o, c.UV[i].X, c.UV[i].Y)
		}
		if o := offsets[ArrayTexUV2]; o >= 0 {
			put(base+o, c.UV2[i].X, c.UV2[i].Y)
		}
	}

	d.BindVertexArray(st.vao.ID())
	d.BindBuffer(glapi.ARRAY_BUFFER, st.buf.ID())
	d.BufferData(glapi.ARRAY_BUFFER, st.size, nil, glapi.STREAM_DRAW)
	d.BufferSubData(glapi.ARRAY_BUFFER, 0, data)
	sizes := [ArrayMax]int32{3, 3, 4, 4, 2, 2, 4, 4}
	for i := 0; i < ArrayMax; i++ {
		loc := uint32(i)
		if offsets[i] < 0 {
			d.DisableVertexAttribArray(loc)
			if i == ArrayColor {
				d.VertexAttrib4f(loc, 1, 1, 1, 1)
			}
			continue
		}
		d.EnableVertexAttribArray(loc)
		d.VertexAttribPointer(loc, sizes[i], glapi.FLOAT, false, int32(stride*4), offsets[i]*4)
	}
	return int32(n), true
}
