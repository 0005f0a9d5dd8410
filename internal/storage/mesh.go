package storage

import (
	"encoding/binary"
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// Primitive is the topology of a surface.
type Primitive int

const (
	PrimitivePoints Primitive = iota
	PrimitiveLines
	PrimitiveLineStrip
	PrimitiveLineLoop
	PrimitiveTriangles
	PrimitiveTriangleStrip
	PrimitiveTriangleFan
)

var primitiveGL = [...]uint32{
	glapi.POINTS, glapi.LINES, glapi.LINE_STRIP, glapi.LINE_LOOP,
	glapi.TRIANGLES, glapi.TRIANGLE_STRIP, glapi.TRIANGLE_FAN,
}

// GL returns the draw mode.
func (p Primitive) GL() uint32 {
	if p < 0 || int(p) >= len(primitiveGL) {
		return glapi.TRIANGLES
	}
	return primitiveGL[p]
}

// BlendShapeMode selects how blend shape weights combine.
type BlendShapeMode int

const (
	BlendShapeNormalized BlendShapeMode = iota
	BlendShapeRelative
)

// instanceSet is the set of instances using a base resource.
type instanceSet map[ecs.Entity]struct{}

func (s *Storage) markInstances(set instanceSet) {
	for e := range set {
		s.dirtyInstances.Mark(e)
	}
}

// blendShape is one morph target buffer with its VAO.
type blendShape struct {
	vbo glapi.Buffer
	vao glapi.VertexArray
}

// Surface is one drawable part of a mesh.
type Surface struct {
	Mesh        ecs.Entity
	Material    ecs.Entity
	Primitive   Primitive
	Format      ArrayFormat
	Layout      VertexLayout
	Split       bool
	VertexCount int
	IndexCount  int
	ArrayBytes  int
	IndexBytes  int
	AABB        gmath.AABB
	// BoneAABBs are in bone space; a negative size marks an unused bone.
	BoneAABBs []gmath.AABB
	Active    bool

	vbo        glapi.Buffer
	ibo        glapi.Buffer
	vaos       glapi.VertexArray
	wireIBO    glapi.Buffer
	wireVAOs   glapi.VertexArray
	wireCount  int
	blendShape []blendShape
}

// VAO returns the plain (0) or instanced (1) vertex array.
func (sf *Surface) VAO(instanced bool) uint32 {
	if instanced {
		return sf.vaos.At(1)
	}
	return sf.vaos.At(0)
}

// WireframeVAO returns the line-list vertex array, or 0 when none was built.
func (sf *Surface) WireframeVAO(instanced bool) (vao uint32, count int) {
	if !sf.wireVAOs.Valid() {
		return 0, 0
	}
	if instanced {
		return sf.wireVAOs.At(1), sf.wireCount
	}
	return sf.wireVAOs.At(0), sf.wireCount
}

// VertexBuffer returns the GL name of the interleaved vertex buffer.
func (sf *Surface) VertexBuffer() uint32 { return sf.vbo.ID() }

// IndexBuffer returns the GL name of the index buffer, 0 when unindexed.
func (sf *Surface) IndexBuffer() uint32 { return sf.ibo.ID() }

// BlendShapeVAO returns the VAO reading blend shape i.
func (sf *Surface) BlendShapeVAO(i int) uint32 { return sf.blendShape[i].vao.ID() }

// BlendShapeCount returns the number of morph target buffers.
func (sf *Surface) BlendShapeCount() int { return len(sf.blendShape) }

// Indexed reports whether the surface draws with an index buffer.
func (sf *Surface) Indexed() bool { return sf.IndexCount > 0 }

// Mesh is an ordered list of surfaces.
type Mesh struct {
	Surfaces         []ecs.Entity
	CustomAABB       gmath.AABB
	BlendShapeCount  int
	BlendShapeMode   BlendShapeMode
	BlendShapeValues []float32

	multimeshes map[ecs.Entity]struct{}
	instances   instanceSet
}

// SurfaceData is a surface in GPU layout, as produced by PackArrays or an
// importer.
type SurfaceData struct {
	Format      ArrayFormat
	Primitive   Primitive
	Vertices    []byte
	VertexCount int
	Indices     []byte
	IndexCount  int
	AABB        gmath.AABB
	BlendShapes [][]byte
	BoneAABBs   []gmath.AABB
}

// SurfaceLayout returns the layout MeshAddSurface expects for a format.
func (s *Storage) SurfaceLayout(f ArrayFormat, vcount int) VertexLayout {
	return Layout(f, vcount, s.splitStream(f))
}

func (s *Storage) splitStream(f ArrayFormat) bool {
	return s.cfg.SplitStream && !f.Has(FlagUseDynamicUpdate)
}

// MeshCreate makes an empty mesh.
func (s *Storage) MeshCreate() ecs.Entity {
	e, _ := create(s, Mesh{multimeshes: map[ecs.Entity]struct{}{}, instances: instanceSet{}})
	return e
}

func (s *Storage) destroyMesh(e ecs.Entity, m *Mesh) {
	for _, sf := range m.Surfaces {
		s.reg.Destroy(sf)
	}
	for mm := range m.multimeshes {
		if c := ecs.Get[Multimesh](s.reg, mm); c != nil {
			c.Mesh = ecs.Null
			s.dirtyMultimesh.Mark(mm)
		}
	}
	s.unlinkBase(e, m.instances)
}

func (s *Storage) destroySurface(e ecs.Entity, sf *Surface) {
	if m := ecs.Get[Mesh](s.reg, sf.Mesh); m != nil {
		for i, x := range m.Surfaces {
			if x == e {
				m.Surfaces = append(m.Surfaces[:i], m.Surfaces[i+1:]...)
				break
			}
		}
		s.markInstances(m.instances)
	}
	if mat := ecs.Get[Material](s.reg, sf.Material); mat != nil {
		delete(mat.geometryOwners, e)
	}
	s.info.VertexMem -= sf.ArrayBytes + sf.IndexBytes
	s.info.Surfaces--
	for i := range sf.blendShape {
		s.info.VertexMem -= sf.ArrayBytes
		sf.blendShape[i].vao.Release()
		sf.blendShape[i].vbo.Release()
	}
	sf.wireVAOs.Release()
	sf.wireIBO.Release()
	sf.vaos.Release()
	sf.ibo.Release()
	sf.vbo.Release()
}

// MeshAddSurface uploads a surface and appends it to the mesh.
func (s *Storage) MeshAddSurface(mesh ecs.Entity, d SurfaceData) (ecs.Entity, error) {
	m := get[Mesh](s, mesh, "mesh add surface")
	if m == nil {
		return ecs.Null, ErrInvalidHandle
	}
	if !d.Format.Has(FormatVertex) || d.VertexCount <= 0 {
		return ecs.Null, fmt.Errorf("mesh add surface: no vertices: %w", ErrInvalidArgument)
	}
	split := s.splitStream(d.Format)
	l := Layout(d.Format, d.VertexCount, split)
	if len(d.Vertices) != l.Size {
		return ecs.Null, fmt.Errorf("mesh add surface: %d vertex bytes, format %#x needs %d: %w",
			len(d.Vertices), uint32(d.Format), l.Size, ErrInvalidArgument)
	}
	if d.IndexCount > 0 {
		if !d.Format.Has(FormatIndex) || len(d.Indices) != d.IndexCount*l.IndexSize {
			return ecs.Null, fmt.Errorf("mesh add surface: %d index bytes for %d indices: %w",
				len(d.Indices), d.IndexCount, ErrInvalidArgument)
		}
	}
	if len(d.BlendShapes) != m.BlendShapeCount {
		return ecs.Null, fmt.Errorf("mesh add surface: %d blend shapes, mesh has %d: %w",
			len(d.BlendShapes), m.BlendShapeCount, ErrInvalidArgument)
	}
	for i, bs := range d.BlendShapes {
		if len(bs) != len(d.Vertices) {
			return ecs.Null, fmt.Errorf("mesh add surface: blend shape %d is %d bytes, base is %d: %w",
				i, len(bs), len(d.Vertices), ErrInvalidArgument)
		}
	}

	sf := Surface{
		Mesh:        mesh,
		Primitive:   d.Primitive,
		Format:      d.Format,
		Layout:      l,
		Split:       split,
		VertexCount: d.VertexCount,
		IndexCount:  d.IndexCount,
		ArrayBytes:  len(d.Vertices),
		IndexBytes:  len(d.Indices),
		AABB:        d.AABB,
		BoneAABBs:   append([]gmath.AABB(nil), d.BoneAABBs...),
		Material:    ecs.Null,
	}
	if err := s.uploadSurface(&sf, d); err != nil {
		core.LogError("mesh add surface: vertices=%d indices=%d format=%#x: %v", d.VertexCount, d.IndexCount, uint32(d.Format), err)
		sf.release()
		return ecs.Null, fmt.Errorf("mesh add surface: %w", err)
	}
	sf.Active = true

	e, _ := create(s, sf)
	m.Surfaces = append(m.Surfaces, e)
	s.info.Surfaces++
	s.info.VertexMem += sf.ArrayBytes*(1+len(d.BlendShapes)) + sf.IndexBytes
	s.markInstances(m.instances)
	for mm := range m.multimeshes {
		s.dirtyMultimesh.Mark(mm)
	}
	return e, nil
}

func (sf *Surface) release() {
	for i := range sf.blendShape {
		sf.blendShape[i].vao.Release()
		sf.blendShape[i].vbo.Release()
	}
	sf.blendShape = nil
	sf.wireVAOs.Release()
	sf.wireIBO.Release()
	sf.vaos.Release()
	sf.ibo.Release()
	sf.vbo.Release()
}

func (s *Storage) uploadSurface(sf *Surface, d SurfaceData) error {
	var err error
	usage := uint32(glapi.STATIC_DRAW)
	if d.Format.Has(FlagUseDynamicUpdate) {
		usage = glapi.DYNAMIC_DRAW
	}
	if sf.vbo, err = glapi.NewBuffers(s.dev, 1); err != nil {
		return err
	}
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, sf.vbo.ID())
	s.dev.BufferData(glapi.ARRAY_BUFFER, len(d.Vertices), d.Vertices, usage)
	if d.IndexCount > 0 {
		if sf.ibo, err = glapi.NewBuffers(s.dev, 1); err != nil {
			return err
		}
	}
	if sf.vaos, err = glapi.NewVertexArrays(s.dev, 2); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		s.dev.BindVertexArray(sf.vaos.At(i))
		bindLayout(s.dev, &sf.Layout, sf.vbo.ID(), 0)
		if d.IndexCount > 0 {
			s.dev.BindBuffer(glapi.ELEMENT_ARRAY_BUFFER, sf.ibo.ID())
			if i == 0 {
				s.dev.BufferData(glapi.ELEMENT_ARRAY_BUFFER, len(d.Indices), d.Indices, glapi.STATIC_DRAW)
			}
		}
	}

	if s.cfg.GenerateWireframes && d.Primitive == PrimitiveTriangles {
		if err := s.buildWireframe(sf, d); err != nil {
			return err
		}
	}

	for _, data := range d.BlendShapes {
		var bs blendShape
		if bs.vbo, err = glapi.NewBuffers(s.dev, 1); err != nil {
			return err
		}
		if bs.vao, err = glapi.NewVertexArrays(s.dev, 1); err != nil {
			bs.vbo.Release()
			return err
		}
		s.dev.BindVertexArray(bs.vao.ID())
		s.dev.BindBuffer(glapi.ARRAY_BUFFER, bs.vbo.ID())
		s.dev.BufferData(glapi.ARRAY_BUFFER, len(data), data, glapi.STATIC_DRAW)
		bindLayout(s.dev, &sf.Layout, bs.vbo.ID(), 0)
		sf.blendShape = append(sf.blendShape, bs)
	}
	s.dev.BindVertexArray(0)
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, 0)
	return nil
}

// buildWireframe turns the triangle list into a line list.
func (s *Storage) buildWireframe(sf *Surface, d SurfaceData) error {
	tri := func(i int) uint32 { return uint32(i) }
	count := d.VertexCount
	if d.IndexCount > 0 {
		count = d.IndexCount
		tri = func(i int) uint32 {
			if sf.Layout.IndexSize == 2 {
				return uint32(binary.LittleEndian.Uint16(d.Indices[i*2:]))
			}
			return binary.LittleEndian.Uint32(d.Indices[i*4:])
		}
	}
	count -= count % 3
	if count == 0 {
		return nil
	}
	isz := sf.Layout.IndexSize
	itype := sf.Layout.IndexType
	if isz == 0 {
		isz, itype = 4, glapi.UNSIGNED_INT
		if d.VertexCount < 65536 {
			isz, itype = 2, glapi.UNSIGNED_SHORT
		}
	}
	lines := make([]byte, 0, count*2*isz)
	put := func(v uint32) {
		if isz == 2 {
			lines = binary.LittleEndian.AppendUint16(lines, uint16(v))
		} else {
			lines = binary.LittleEndian.AppendUint32(lines, v)
		}
	}
	for i := 0; i < count; i += 3 {
		a, b, c := tri(i), tri(i+1), tri(i+2)
		put(a)
		put(b)
		put(b)
		put(c)
		put(c)
		put(a)
	}

	var err error
	if sf.wireIBO, err = glapi.NewBuffers(s.dev, 1); err != nil {
		return err
	}
	if sf.wireVAOs, err = glapi.NewVertexArrays(s.dev, 2); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		s.dev.BindVertexArray(sf.wireVAOs.At(i))
		bindLayout(s.dev, &sf.Layout, sf.vbo.ID(), 0)
		s.dev.BindBuffer(glapi.ELEMENT_ARRAY_BUFFER, sf.wireIBO.ID())
		if i == 0 {
			s.dev.BufferData(glapi.ELEMENT_ARRAY_BUFFER, len(lines), lines, glapi.STATIC_DRAW)
		}
	}
	sf.wireCount = count * 2
	if sf.Layout.IndexType == 0 {
		sf.Layout.IndexType, sf.Layout.IndexSize = itype, isz
	}
	return nil
}

// MeshAddSurfaceFromArrays packs CPU arrays and adds them as a surface.
// Only the compression and flag bits of format are used.
func (s *Storage) MeshAddSurfaceFromArrays(mesh ecs.Entity, p Primitive, format ArrayFormat, arrays *SurfaceArrays, blendShapes []*SurfaceArrays) (ecs.Entity, error) {
	packed, err := PackArrays(format, arrays, s.splitStream(format))
	if err != nil {
		return ecs.Null, fmt.Errorf("mesh add surface: %w", err)
	}
	d := SurfaceData{
		Format:      packed.Format,
		Primitive:   p,
		Vertices:    packed.Vertices,
		VertexCount: packed.VertexCount,
		Indices:     packed.Indices,
		IndexCount:  packed.IndexCount,
		AABB:        packed.AABB,
		BoneAABBs:   packed.BoneAABBs,
	}
	for i, bs := range blendShapes {
		pb, err := PackArrays(packed.Format&^FormatIndex, bs, s.splitStream(format))
		if err != nil {
			return ecs.Null, fmt.Errorf("mesh add surface: blend shape %d: %w", i, err)
		}
		if pb.Format|FormatIndex != packed.Format|FormatIndex {
			return ecs.Null, fmt.Errorf("mesh add surface: blend shape %d attributes differ: %w", i, ErrInvalidArgument)
		}
		d.BlendShapes = append(d.BlendShapes, pb.Vertices)
	}
	return s.MeshAddSurface(mesh, d)
}

func (s *Storage) surfaceAt(mesh ecs.Entity, i int, op string) (*Mesh, *Surface) {
	m := get[Mesh](s, mesh, op)
	if m == nil {
		return nil, nil
	}
	if i < 0 || i >= len(m.Surfaces) {
		core.LogError("%s: surface %d of %d: %v", op, i, len(m.Surfaces), ErrInvalidArgument)
		return m, nil
	}
	return m, ecs.Get[Surface](s.reg, m.Surfaces[i])
}

// MeshGetSurfaceCount returns the number of surfaces.
func (s *Storage) MeshGetSurfaceCount(mesh ecs.Entity) int {
	if m := get[Mesh](s, mesh, "mesh get surface count"); m != nil {
		return len(m.Surfaces)
	}
	return 0
}

// MeshSurface returns the surface entity at index i.
func (s *Storage) MeshSurface(mesh ecs.Entity, i int) ecs.Entity {
	m := get[Mesh](s, mesh, "mesh surface")
	if m == nil || i < 0 || i >= len(m.Surfaces) {
		return ecs.Null
	}
	return m.Surfaces[i]
}

// MeshSurfaceUpdateRegion overwrites bytes of the vertex buffer starting at
// offset. Layout and indices are unchanged.
func (s *Storage) MeshSurfaceUpdateRegion(mesh ecs.Entity, i, offset int, data []byte) error {
	_, sf := s.surfaceAt(mesh, i, "mesh surface update region")
	if sf == nil {
		return ErrInvalidHandle
	}
	if offset < 0 || offset+len(data) > sf.ArrayBytes {
		return fmt.Errorf("mesh surface update region: %d bytes at %d of %d: %w", len(data), offset, sf.ArrayBytes, ErrInvalidArgument)
	}
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, sf.vbo.ID())
	s.dev.BufferSubData(glapi.ARRAY_BUFFER, offset, data)
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, 0)
	return nil
}

// MeshSurfaceGetArrayData reads the raw vertex and index bytes back.
func (s *Storage) MeshSurfaceGetArrayData(mesh ecs.Entity, i int) (vertices, indices []byte, err error) {
	_, sf := s.surfaceAt(mesh, i, "mesh surface get array data")
	if sf == nil {
		return nil, nil, ErrInvalidHandle
	}
	vertices = make([]byte, sf.ArrayBytes)
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, sf.vbo.ID())
	s.dev.GetBufferSubData(glapi.ARRAY_BUFFER, 0, vertices)
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, 0)
	if sf.IndexBytes > 0 {
		indices = make([]byte, sf.IndexBytes)
		s.dev.BindVertexArray(0)
		s.dev.BindBuffer(glapi.ELEMENT_ARRAY_BUFFER, sf.ibo.ID())
		s.dev.GetBufferSubData(glapi.ELEMENT_ARRAY_BUFFER, 0, indices)
		s.dev.BindBuffer(glapi.ELEMENT_ARRAY_BUFFER, 0)
	}
	return vertices, indices, nil
}

// MeshSurfaceGetArrays reads a surface back and decodes it.
func (s *Storage) MeshSurfaceGetArrays(mesh ecs.Entity, i int) (SurfaceArrays, error) {
	vertices, indices, err := s.MeshSurfaceGetArrayData(mesh, i)
	if err != nil {
		return SurfaceArrays{}, err
	}
	_, sf := s.surfaceAt(mesh, i, "mesh surface get arrays")
	return UnpackArrays(sf.Format, vertices, sf.VertexCount, indices, sf.IndexCount, sf.Split)
}

// MeshSurfaceSetMaterial assigns the geometry-level material of a surface.
func (s *Storage) MeshSurfaceSetMaterial(mesh ecs.Entity, i int, material ecs.Entity) {
	m, sf := s.surfaceAt(mesh, i, "mesh surface set material")
	if sf == nil || sf.Material == material {
		return
	}
	e := m.Surfaces[i]
	if old := ecs.Get[Material](s.reg, sf.Material); old != nil {
		s.MaterialRemoveGeometry(sf.Material, e)
	}
	sf.Material = ecs.Null
	if !material.IsNull() && s.MaterialAddGeometry(material, e) {
		sf.Material = material
	}
	s.markInstances(m.instances)
}

// MeshSurfaceGetMaterial returns the geometry-level material.
func (s *Storage) MeshSurfaceGetMaterial(mesh ecs.Entity, i int) ecs.Entity {
	if _, sf := s.surfaceAt(mesh, i, "mesh surface get material"); sf != nil {
		return sf.Material
	}
	return ecs.Null
}

// MeshSurfaceGetFormat returns the format mask of a surface.
func (s *Storage) MeshSurfaceGetFormat(mesh ecs.Entity, i int) ArrayFormat {
	if _, sf := s.surfaceAt(mesh, i, "mesh surface get format"); sf != nil {
		return sf.Format
	}
	return 0
}

// MeshSurfaceGetPrimitive returns the topology of a surface.
func (s *Storage) MeshSurfaceGetPrimitive(mesh ecs.Entity, i int) Primitive {
	if _, sf := s.surfaceAt(mesh, i, "mesh surface get primitive"); sf != nil {
		return sf.Primitive
	}
	return PrimitivePoints
}

// MeshSurfaceGetAABB returns the static bounds of a surface.
func (s *Storage) MeshSurfaceGetAABB(mesh ecs.Entity, i int) gmath.AABB {
	if _, sf := s.surfaceAt(mesh, i, "mesh surface get aabb"); sf != nil {
		return sf.AABB
	}
	return gmath.AABB{}
}

// MeshSurfaceGetBoneAABBs returns the per-bone bounds of a surface.
func (s *Storage) MeshSurfaceGetBoneAABBs(mesh ecs.Entity, i int) []gmath.AABB {
	if _, sf := s.surfaceAt(mesh, i, "mesh surface get bone aabbs"); sf != nil {
		return append([]gmath.AABB(nil), sf.BoneAABBs...)
	}
	return nil
}

// MeshRemoveSurface destroys surface i.
func (s *Storage) MeshRemoveSurface(mesh ecs.Entity, i int) {
	m, sf := s.surfaceAt(mesh, i, "mesh remove surface")
	if sf == nil {
		return
	}
	s.reg.Destroy(m.Surfaces[i])
	for mm := range m.multimeshes {
		s.dirtyMultimesh.Mark(mm)
	}
}

// MeshClear destroys every surface.
func (s *Storage) MeshClear(mesh ecs.Entity) {
	m := get[Mesh](s, mesh, "mesh clear")
	if m == nil {
		return
	}
	for len(m.Surfaces) > 0 {
		s.reg.Destroy(m.Surfaces[len(m.Surfaces)-1])
	}
	s.markInstances(m.instances)
	for mm := range m.multimeshes {
		s.dirtyMultimesh.Mark(mm)
	}
}

// MeshSetCustomAABB overrides the computed bounds. An empty box clears the
// override.
func (s *Storage) MeshSetCustomAABB(mesh ecs.Entity, aabb gmath.AABB) {
	m := get[Mesh](s, mesh, "mesh set custom aabb")
	if m == nil {
		return
	}
	m.CustomAABB = aabb
	s.markInstances(m.instances)
	for mm := range m.multimeshes {
		s.dirtyMultimesh.Mark(mm)
	}
}

// MeshGetCustomAABB returns the override, or an empty box.
func (s *Storage) MeshGetCustomAABB(mesh ecs.Entity) gmath.AABB {
	if m := get[Mesh](s, mesh, "mesh get custom aabb"); m != nil {
		return m.CustomAABB
	}
	return gmath.AABB{}
}

// MeshGetAABB returns the custom bounds when set, else the union of the
// surface bounds. With a skeleton, skinned surfaces contribute their bone
// boxes moved by the current bone transforms.
func (s *Storage) MeshGetAABB(mesh, skeleton ecs.Entity) gmath.AABB {
	m := get[Mesh](s, mesh, "mesh get aabb")
	if m == nil {
		return gmath.AABB{}
	}
	if !m.CustomAABB.IsEmpty() {
		return m.CustomAABB
	}
	sk := ecs.Get[Skeleton](s.reg, skeleton)
	var out gmath.AABB
	first := true
	merge := func(b gmath.AABB) {
		if first {
			out, first = b, false
			return
		}
		out = out.Merge(b)
	}
	for _, e := range m.Surfaces {
		sf := ecs.Get[Surface](s.reg, e)
		if sf == nil {
			continue
		}
		if sk != nil && sk.Size > 0 && sf.Format.Has(FormatBones) && len(sf.BoneAABBs) > 0 {
			for b, box := range sf.BoneAABBs {
				if b >= sk.Size || box.Size.X < 0 {
					continue
				}
				merge(box.Transform(sk.Bone(b)))
			}
			continue
		}
		merge(sf.AABB)
	}
	return out
}

// MeshSetBlendShapeCount sets the number of blend shapes new surfaces
// must carry. It only applies to meshes without surfaces.
func (s *Storage) MeshSetBlendShapeCount(mesh ecs.Entity, n int) {
	m := get[Mesh](s, mesh, "mesh set blend shape count")
	if m == nil {
		return
	}
	if len(m.Surfaces) > 0 || n < 0 {
		core.LogError("mesh set blend shape count %d: mesh has %d surfaces: %v", n, len(m.Surfaces), ErrInvalidArgument)
		return
	}
	m.BlendShapeCount = n
	m.BlendShapeValues = make([]float32, n)
}

// MeshSetBlendShapeMode selects normalized or relative blending.
func (s *Storage) MeshSetBlendShapeMode(mesh ecs.Entity, mode BlendShapeMode) {
	if m := get[Mesh](s, mesh, "mesh set blend shape mode"); m != nil {
		m.BlendShapeMode = mode
	}
}

// MeshSetBlendShapeValues sets the per-shape weights; extra values are
// ignored.
func (s *Storage) MeshSetBlendShapeValues(mesh ecs.Entity, values []float32) {
	m := get[Mesh](s, mesh, "mesh set blend shape values")
	if m == nil {
		return
	}
	for i := range m.BlendShapeValues {
		m.BlendShapeValues[i] = 0
		if i < len(values) {
			m.BlendShapeValues[i] = values[i]
		}
	}
}

// HasActiveBlendShapes reports whether any blend weight is non-zero.
func (m *Mesh) HasActiveBlendShapes() bool {
	for _, v := range m.BlendShapeValues {
		if v != 0 {
			return true
		}
	}
	return false
}
