package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// MultimeshTransformFormat selects 2D (8 floats) or 3D (12 floats) instance
// transforms.
type MultimeshTransformFormat int

const (
	MultimeshTransform2D MultimeshTransformFormat = iota
	MultimeshTransform3D
)

// MultimeshDataFormat selects how per-instance color and custom data are
// stored: absent, packed RGBA8 in one float slot, or four floats.
type MultimeshDataFormat int

const (
	MultimeshDataNone MultimeshDataFormat = iota
	MultimeshData8Bit
	MultimeshDataFloat
)

func (f MultimeshDataFormat) floats() int {
	switch f {
	case MultimeshData8Bit:
		return 1
	case MultimeshDataFloat:
		return 4
	}
	return 0
}

// Multimesh draws one mesh many times with per-instance data.
type Multimesh struct {
	Mesh             ecs.Entity
	Size             int
	TransformFormat  MultimeshTransformFormat
	ColorFormat      MultimeshDataFormat
	CustomFormat     MultimeshDataFormat
	VisibleInstances int
	AABB             gmath.AABB

	// Data is interleaved: transform, then color, then custom data.
	Data         []float32
	Stride       int
	ColorOffset  int
	CustomOffset int

	buffer    glapi.Buffer
	instances instanceSet
}

// DrawCount returns the number of instances to draw.
func (mm *Multimesh) DrawCount() int {
	if mm.VisibleInstances >= 0 && mm.VisibleInstances < mm.Size {
		return mm.VisibleInstances
	}
	return mm.Size
}

// BufferID returns the GL name of the instance buffer.
func (mm *Multimesh) BufferID() uint32 { return mm.buffer.ID() }

// MultimeshCreate makes an empty multimesh.
func (s *Storage) MultimeshCreate() ecs.Entity {
	e, _ := create(s, Multimesh{Mesh: ecs.Null, VisibleInstances: -1, TransformFormat: MultimeshTransform3D, instances: instanceSet{}})
	return e
}

func (s *Storage) destroyMultimesh(e ecs.Entity, mm *Multimesh) {
	if m := ecs.Get[Mesh](s.reg, mm.Mesh); m != nil {
		delete(m.multimeshes, e)
	}
	s.info.VertexMem -= len(mm.Data) * 4
	mm.buffer.Release()
	s.unlinkBase(e, mm.instances)
}

// MultimeshAllocate sizes the instance data. Transforms start at identity,
// colors at white and custom data at zero.
func (s *Storage) MultimeshAllocate(e ecs.Entity, instances int, xf MultimeshTransformFormat, color, custom MultimeshDataFormat) error {
	mm := get[Multimesh](s, e, "multimesh allocate")
	if mm == nil {
		return ErrInvalidHandle
	}
	if instances < 0 {
		return fmt.Errorf("multimesh allocate %d instances: %w", instances, ErrInvalidArgument)
	}
	xfFloats := 12
	if xf == MultimeshTransform2D {
		xfFloats = 8
	}
	s.info.VertexMem -= len(mm.Data) * 4
	mm.Size = instances
	mm.TransformFormat, mm.ColorFormat, mm.CustomFormat = xf, color, custom
	mm.ColorOffset = xfFloats
	mm.CustomOffset = xfFloats + color.floats()
	mm.Stride = mm.CustomOffset + custom.floats()
	mm.Data = make([]float32, instances*mm.Stride)
	for i := 0; i < instances; i++ {
		d := mm.Data[i*mm.Stride:]
		d[0], d[5] = 1, 1
		if xf == MultimeshTransform3D {
			d[10] = 1
		}
		switch color {
		case MultimeshData8Bit:
			d[mm.ColorOffset] = packColor8(core.ColorWhite)
		case MultimeshDataFloat:
			copy(d[mm.ColorOffset:], []float32{1, 1, 1, 1})
		}
	}
	s.info.VertexMem += len(mm.Data) * 4
	if instances > 0 && !mm.buffer.Valid() {
		buf, err := glapi.NewBuffers(s.dev, 1)
		if err != nil {
			core.LogError("multimesh allocate %d instances: %v", instances, err)
			return fmt.Errorf("multimesh allocate: %w", err)
		}
		mm.buffer = buf
	}
	s.dirtyMultimesh.Mark(e)
	return nil
}

// MultimeshSetMesh changes the drawn mesh.
func (s *Storage) MultimeshSetMesh(e, mesh ecs.Entity) {
	mm := get[Multimesh](s, e, "multimesh set mesh")
	if mm == nil {
		return
	}
	if old := ecs.Get[Mesh](s.reg, mm.Mesh); old != nil {
		delete(old.multimeshes, e)
	}
	mm.Mesh = ecs.Null
	if m := get[Mesh](s, mesh, "multimesh set mesh"); m != nil {
		mm.Mesh = mesh
		m.multimeshes[e] = struct{}{}
	}
	s.dirtyMultimesh.Mark(e)
}

// MultimeshGetMesh returns the drawn mesh.
func (s *Storage) MultimeshGetMesh(e ecs.Entity) ecs.Entity {
	if mm := get[Multimesh](s, e, "multimesh get mesh"); mm != nil {
		return mm.Mesh
	}
	return ecs.Null
}

// MultimeshGetInstanceCount returns the allocated instance count.
func (s *Storage) MultimeshGetInstanceCount(e ecs.Entity) int {
	if mm := get[Multimesh](s, e, "multimesh get instance count"); mm != nil {
		return mm.Size
	}
	return 0
}

func packColor8(c core.Color) float32 {
	var b [4]byte
	for i, v := range c.Array() {
		b[i] = byte(unorm(v, 255))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:]))
}

func unpackColor8(f float32) core.Color {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	return core.Color{R: float32(b[0]) / 255, G: float32(b[1]) / 255, B: float32(b[2]) / 255, A: float32(b[3]) / 255}
}

func (s *Storage) multimeshInstance(e ecs.Entity, i int, op string) (*Multimesh, []float32) {
	mm := get[Multimesh](s, e, op)
	if mm == nil {
		return nil, nil
	}
	if i < 0 || i >= mm.Size {
		core.LogError("%s: instance %d of %d: %v", op, i, mm.Size, ErrInvalidArgument)
		return nil, nil
	}
	return mm, mm.Data[i*mm.Stride : (i+1)*mm.Stride]
}

// MultimeshInstanceSetTransform stores a 3D instance transform as the three
// rows of the column-vector matrix, which the shader reads at locations
// 8 to 10.
func (s *Storage) MultimeshInstanceSetTransform(e ecs.Entity, i int, xf gmath.Mat4) {
	mm, d := s.multimeshInstance(e, i, "multimesh instance set transform")
	if mm == nil {
		return
	}
	if mm.TransformFormat == MultimeshTransform2D {
		core.LogError("multimesh instance set transform: 2D multimesh: %v", ErrInvalidArgument)
		return
	}
	for r := 0; r < 3; r++ {
		d[r*4+0], d[r*4+1], d[r*4+2], d[r*4+3] = xf[0][r], xf[1][r], xf[2][r], xf[3][r]
	}
	s.dirtyMultimesh.Mark(e)
}

// MultimeshInstanceGetTransform returns a 3D instance transform.
func (s *Storage) MultimeshInstanceGetTransform(e ecs.Entity, i int) gmath.Mat4 {
	mm, d := s.multimeshInstance(e, i, "multimesh instance get transform")
	if mm == nil {
		return gmath.Mat4Identity()
	}
	m := gmath.Mat4Identity()
	if mm.TransformFormat == MultimeshTransform2D {
		m[0][0], m[1][0], m[3][0] = d[0], d[1], d[3]
		m[0][1], m[1][1], m[3][1] = d[4], d[5], d[7]
		return m
	}
	for r := 0; r < 3; r++ {
		m[0][r], m[1][r], m[2][r], m[3][r] = d[r*4+0], d[r*4+1], d[r*4+2], d[r*4+3]
	}
	return m
}

// MultimeshInstanceSetTransform2D stores a 2D transform given as the x
// axis, the y axis and the origin.
func (s *Storage) MultimeshInstanceSetTransform2D(e ecs.Entity, i int, x, y, origin gmath.Vec2) {
	mm, d := s.multimeshInstance(e, i, "multimesh instance set transform 2d")
	if mm == nil {
		return
	}
	if mm.TransformFormat != MultimeshTransform2D {
		core.LogError("multimesh instance set transform 2d: 3D multimesh: %v", ErrInvalidArgument)
		return
	}
	copy(d, []float32{x.X, y.X, 0, origin.X, x.Y, y.Y, 0, origin.Y})
	s.dirtyMultimesh.Mark(e)
}

// MultimeshInstanceSetColor stores the instance color.
func (s *Storage) MultimeshInstanceSetColor(e ecs.Entity, i int, c core.Color) {
	mm, d := s.multimeshInstance(e, i, "multimesh instance set color")
	if mm == nil {
		return
	}
	s.setInstanceData(mm, d[mm.ColorOffset:], mm.ColorFormat, c)
	s.dirtyMultimesh.Mark(e)
}

// MultimeshInstanceSetCustomData stores the instance custom data.
func (s *Storage) MultimeshInstanceSetCustomData(e ecs.Entity, i int, c core.Color) {
	mm, d := s.multimeshInstance(e, i, "multimesh instance set custom data")
	if mm == nil {
		return
	}
	s.setInstanceData(mm, d[mm.CustomOffset:], mm.CustomFormat, c)
	s.dirtyMultimesh.Mark(e)
}

func (s *Storage) setInstanceData(mm *Multimesh, d []float32, f MultimeshDataFormat, c core.Color) {
	switch f {
	case MultimeshData8Bit:
		d[0] = packColor8(c)
	case MultimeshDataFloat:
		a := c.Array()
		copy(d, a[:])
	}
}

func instanceData(d []float32, f MultimeshDataFormat, zero core.Color) core.Color {
	switch f {
	case MultimeshData8Bit:
		return unpackColor8(d[0])
	case MultimeshDataFloat:
		return core.Color{R: d[0], G: d[1], B: d[2], A: d[3]}
	}
	return zero
}

// MultimeshInstanceGetColor returns the instance color (white when the
// multimesh stores none).
func (s *Storage) MultimeshInstanceGetColor(e ecs.Entity, i int) core.Color {
	mm, d := s.multimeshInstance(e, i, "multimesh instance get color")
	if mm == nil {
		return core.ColorWhite
	}
	return instanceData(d[mm.ColorOffset:], mm.ColorFormat, core.ColorWhite)
}

// MultimeshInstanceGetCustomData returns the instance custom data.
func (s *Storage) MultimeshInstanceGetCustomData(e ecs.Entity, i int) core.Color {
	mm, d := s.multimeshInstance(e, i, "multimesh instance get custom data")
	if mm == nil {
		return core.Color{}
	}
	return instanceData(d[mm.CustomOffset:], mm.CustomFormat, core.Color{})
}

// MultimeshSetAsBulkArray replaces every instance at once. data must hold
// exactly instances × stride floats.
func (s *Storage) MultimeshSetAsBulkArray(e ecs.Entity, data []float32) error {
	mm := get[Multimesh](s, e, "multimesh set as bulk array")
	if mm == nil {
		return ErrInvalidHandle
	}
	if len(data) != len(mm.Data) {
		return fmt.Errorf("multimesh set as bulk array: %d floats, need %d: %w", len(data), len(mm.Data), ErrInvalidArgument)
	}
	copy(mm.Data, data)
	s.dirtyMultimesh.Mark(e)
	return nil
}

// MultimeshSetVisibleInstances limits drawing to a prefix; -1 draws all.
func (s *Storage) MultimeshSetVisibleInstances(e ecs.Entity, n int) {
	mm := get[Multimesh](s, e, "multimesh set visible instances")
	if mm == nil {
		return
	}
	if n < -1 || n > mm.Size {
		core.LogError("multimesh set visible instances %d of %d: %v", n, mm.Size, ErrInvalidArgument)
		return
	}
	mm.VisibleInstances = n
	s.dirtyMultimesh.Mark(e)
}

// MultimeshGetAABB returns the bounds computed at the last update.
func (s *Storage) MultimeshGetAABB(e ecs.Entity) gmath.AABB {
	if mm := get[Multimesh](s, e, "multimesh get aabb"); mm != nil {
		return mm.AABB
	}
	return gmath.AABB{}
}

// UpdateDirtyMultimeshes uploads changed instance data and recomputes the
// bounds from the visible instances.
func (s *Storage) UpdateDirtyMultimeshes() {
	s.dirtyMultimesh.Drain(func(e ecs.Entity) {
		mm := ecs.Get[Multimesh](s.reg, e)
		if mm == nil {
			return
		}
		if mm.buffer.Valid() && len(mm.Data) > 0 {
			s.dev.BindBuffer(glapi.ARRAY_BUFFER, mm.buffer.ID())
			s.dev.BufferData(glapi.ARRAY_BUFFER, len(mm.Data)*4, float32Bytes(mm.Data), glapi.DYNAMIC_DRAW)
			s.dev.BindBuffer(glapi.ARRAY_BUFFER, 0)
		}
		mm.AABB = gmath.AABB{}
		if ecs.Get[Mesh](s.reg, mm.Mesh) != nil {
			base := s.MeshGetAABB(mm.Mesh, ecs.Null)
			for i := 0; i < mm.DrawCount(); i++ {
				box := base.Transform(s.MultimeshInstanceGetTransform(e, i))
				if i == 0 {
					mm.AABB = box
				} else {
					mm.AABB = mm.AABB.Merge(box)
				}
			}
		}
		s.markInstances(mm.instances)
	})
}

// BindMultimeshInstances sets the per-instance attributes 8 to 12 on the
// bound instanced VAO. Absent color and custom data read as constants.
func (s *Storage) BindMultimeshInstances(mm *Multimesh) {
	d := s.dev
	stride := int32(mm.Stride * 4)
	d.BindBuffer(glapi.ARRAY_BUFFER, mm.buffer.ID())
	rows := 3
	if mm.TransformFormat == MultimeshTransform2D {
		rows = 2
		d.DisableVertexAttribArray(InstanceXformLocation + 2)
		d.VertexAttrib4f(InstanceXformLocation+2, 0, 0, 1, 0)
	}
	for r := 0; r < rows; r++ {
		loc := uint32(InstanceXformLocation + r)
		d.EnableVertexAttribArray(loc)
		d.VertexAttribPointer(loc, 4, glapi.FLOAT, false, stride, r*16)
		d.VertexAttribDivisor(loc, 1)
	}
	bindData := func(loc uint32, f MultimeshDataFormat, offset int, def core.Color) {
		switch f {
		case MultimeshData8Bit:
			d.EnableVertexAttribArray(loc)
			d.VertexAttribPointer(loc, 4, glapi.UNSIGNED_BYTE, true, stride, offset*4)
			d.VertexAttribDivisor(loc, 1)
		case MultimeshDataFloat:
			d.EnableVertexAttribArray(loc)
			d.VertexAttribPointer(loc, 4, glapi.FLOAT, false, stride, offset*4)
			d.VertexAttribDivisor(loc, 1)
		default:
			d.DisableVertexAttribArray(loc)
			d.VertexAttrib4f(loc, def.R, def.G, def.B, def.A)
		}
	}
	bindData(InstanceColorLocation, mm.ColorFormat, mm.ColorOffset, core.ColorWhite)
	bindData(InstanceCustomLocation, mm.CustomFormat, mm.CustomOffset, core.Color{})
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
