package math

// AABB is an axis-aligned bounding box stored as position + size, the form
// surfaces, meshes and instances report their bounds in.
type AABB struct {
	Position Vec3
	Size     Vec3
}

// NewAABBFromPoints returns the tight box around pts.
func NewAABBFromPoints(pts ...Vec3) AABB {
	if len(pts) == 0 {
		return AABB{}
	}
	mn, mx := pts[0], pts[0]
	for _, p := range pts[1:] {
		mn = mn.Min(p)
		mx = mx.Max(p)
	}
	return AABB{Position: mn, Size: mx.Sub(mn)}
}

func (b AABB) End() Vec3 {
	return b.Position.Add(b.Size)
}

func (b AABB) Center() Vec3 {
	return b.Position.Add(b.Size.Mul(0.5))
}

// IsEmpty reports a zero-volume box.
func (b AABB) IsEmpty() bool {
	return b.Size.X <= 0 || b.Size.Y <= 0 || b.Size.Z <= 0
}

// Merge returns the union of b and o.
func (b AABB) Merge(o AABB) AABB {
	mn := b.Position.Min(o.Position)
	mx := b.End().Max(o.End())
	return AABB{Position: mn, Size: mx.Sub(mn)}
}

// Expand grows b to contain p.
func (b AABB) Expand(p Vec3) AABB {
	mn := b.Position.Min(p)
	mx := b.End().Max(p)
	return AABB{Position: mn, Size: mx.Sub(mn)}
}

// Corner returns corner i in 0..7; bit 0 selects X max, bit 1 Y, bit 2 Z.
func (b AABB) Corner(i int) Vec3 {
	p := b.Position
	if i&1 != 0 {
		p.X += b.Size.X
	}
	if i&2 != 0 {
		p.Y += b.Size.Y
	}
	if i&4 != 0 {
		p.Z += b.Size.Z
	}
	return p
}

// Transform returns the box enclosing the 8 transformed corners.
func (b AABB) Transform(m Mat4) AABB {
	first := m.MulVec3(b.Corner(0))
	mn, mx := first, first
	for i := 1; i < 8; i++ {
		p := m.MulVec3(b.Corner(i))
		mn = mn.Min(p)
		mx = mx.Max(p)
	}
	return AABB{Position: mn, Size: mx.Sub(mn)}
}

// Intersects reports overlap with o (touching counts).
func (b AABB) Intersects(o AABB) bool {
	be, oe := b.End(), o.End()
	return b.Position.X <= oe.X && be.X >= o.Position.X &&
		b.Position.Y <= oe.Y && be.Y >= o.Position.Y &&
		b.Position.Z <= oe.Z && be.Z >= o.Position.Z
}

// IntersectsFrustum returns false if the box is completely outside one of the
// planes, using the positive-vertex test.
func (b AABB) IntersectsFrustum(f *Frustum) bool {
	mn, mx := b.Position, b.End()
	for i := range f.Planes {
		p := f.Planes[i]
		pv := mx
		if p.Normal.X < 0 {
			pv.X = mn.X
		}
		if p.Normal.Y < 0 {
			pv.Y = mn.Y
		}
		if p.Normal.Z < 0 {
			pv.Z = mn.Z
		}
		if p.DistanceTo(pv) < 0 {
			return false
		}
	}
	return true
}
