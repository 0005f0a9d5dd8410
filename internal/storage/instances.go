package storage

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	gmath "gles3render/math"
)

// InstanceType tags what an instance's base resource is.
type InstanceType int

const (
	InstanceNone InstanceType = iota
	InstanceMesh
	InstanceMultimesh
	InstanceImmediate
	InstanceParticles
	InstanceLight
	InstanceReflectionProbe
	InstanceGIProbe
	InstanceLightmapCapture
)

var instanceTypeNames = [...]string{
	"none", "mesh", "multimesh", "immediate", "particles",
	"light", "reflection_probe", "gi_probe", "lightmap_capture",
}

func (t InstanceType) String() string {
	if t < 0 || int(t) >= len(instanceTypeNames) {
		return fmt.Sprintf("InstanceType(%d)", int(t))
	}
	return instanceTypeNames[t]
}

// Geometry reports whether instances of this type emit render elements.
func (t InstanceType) Geometry() bool {
	return t >= InstanceMesh && t <= InstanceParticles
}

// ShadowCasting is how an instance takes part in shadow passes.
type ShadowCasting int

const (
	ShadowCastingOff ShadowCasting = iota
	ShadowCastingOn
	ShadowCastingDoubleSided
	ShadowCastingShadowsOnly
)

// MaxInstanceGIProbes is the number of GI probes blended per instance.
const MaxInstanceGIProbes = 2

// Instance places a base resource in the world. The renderer reads the
// derived fields (AABB, Mirror, CastsShadow, Animated) refreshed by
// UpdateDirtyInstances.
type Instance struct {
	BaseType InstanceType
	Base     ecs.Entity

	Transform        gmath.Mat4
	Skeleton         ecs.Entity
	MaterialOverride ecs.Entity
	MaterialOverlay  ecs.Entity
	// Materials holds one per-surface override; Null entries fall back to
	// the surface material.
	Materials []ecs.Entity

	CastShadows ShadowCasting
	LayerMask   uint32
	Visible     bool
	// RedrawIfVisible keeps the frame loop running while the instance is
	// on screen.
	RedrawIfVisible bool

	Lightmap        ecs.Entity
	LightmapSlice   int
	LightmapUVScale gmath.Vec4
	// LightmapCapture holds the ambient sampled from a capture octree, one
	// color per axis direction.
	LightmapCapture    [6]core.Color
	UseLightmapCapture bool

	// Per-frame light and probe lists, filled by the host's culling.
	Lights           []ecs.Entity
	ReflectionProbes []ecs.Entity
	GIProbes         []ecs.Entity

	AABB            gmath.AABB
	TransformedAABB gmath.AABB
	Mirror          bool
	CastsShadow     bool
	Animated        bool
}

// SurfaceMaterial resolves the material surface i draws with: the
// instance override, then the per-surface slot, then the geometry's own.
func (in *Instance) SurfaceMaterial(i int, geometry ecs.Entity) ecs.Entity {
	if !in.MaterialOverride.IsNull() {
		return in.MaterialOverride
	}
	if i < len(in.Materials) && !in.Materials[i].IsNull() {
		return in.Materials[i]
	}
	return geometry
}

// dropMaterial clears every slot referencing mat.
func (in *Instance) dropMaterial(mat ecs.Entity) {
	if in.MaterialOverride == mat {
		in.MaterialOverride = ecs.Null
	}
	if in.MaterialOverlay == mat {
		in.MaterialOverlay = ecs.Null
	}
	for i, m := range in.Materials {
		if m == mat {
			in.Materials[i] = ecs.Null
		}
	}
}

// InstanceCreate makes an instance with no base.
func (s *Storage) InstanceCreate() ecs.Entity {
	e, _ := create(s, Instance{
		Base:             ecs.Null,
		Transform:        gmath.Mat4Identity(),
		Skeleton:         ecs.Null,
		MaterialOverride: ecs.Null,
		MaterialOverlay:  ecs.Null,
		CastShadows:      ShadowCastingOn,
		LayerMask:        1,
		Visible:          true,
		Lightmap:         ecs.Null,
		LightmapUVScale:  gmath.Vec4{X: 0, Y: 0, Z: 1, W: 1},
	})
	return e
}

// Instance returns the instance component, or nil.
func (s *Storage) Instance(e ecs.Entity) *Instance { return ecs.Get[Instance](s.reg, e) }

func (s *Storage) destroyInstance(e ecs.Entity, in *Instance) {
	s.releaseInstanceMaterials(e, in)
	if set := s.baseInstances(in.Base); set != nil {
		delete(set, e)
	}
	if sk := ecs.Get[Skeleton](s.reg, in.Skeleton); sk != nil {
		delete(sk.instances, e)
	}
	s.dirtyInstances.Unmark(e)
}

func (s *Storage) releaseInstanceMaterials(e ecs.Entity, in *Instance) {
	if !in.MaterialOverride.IsNull() {
		s.MaterialRemoveInstance(in.MaterialOverride, e)
	}
	if !in.MaterialOverlay.IsNull() {
		s.MaterialRemoveInstance(in.MaterialOverlay, e)
	}
	for _, m := range in.Materials {
		if !m.IsNull() {
			s.MaterialRemoveInstance(m, e)
		}
	}
}

// unlinkBase detaches every instance in set from a base being destroyed.
func (s *Storage) unlinkBase(base ecs.Entity, set instanceSet) {
	for i := range set {
		in := ecs.Get[Instance](s.reg, i)
		if in == nil || in.Base != base {
			continue
		}
		in.Base, in.BaseType = ecs.Null, InstanceNone
		s.dirtyInstances.Mark(i)
	}
	clear(set)
}

// baseType classifies base by the component it carries.
func (s *Storage) baseType(base ecs.Entity) InstanceType {
	switch {
	case ecs.Has[Mesh](s.reg, base):
		return InstanceMesh
	case ecs.Has[Multimesh](s.reg, base):
		return InstanceMultimesh
	case ecs.Has[Immediate](s.reg, base):
		return InstanceImmediate
	case ecs.Has[Particles](s.reg, base):
		return InstanceParticles
	case ecs.Has[Light](s.reg, base):
		return InstanceLight
	case ecs.Has[ReflectionProbe](s.reg, base):
		return InstanceReflectionProbe
	case ecs.Has[GIProbe](s.reg, base):
		return InstanceGIProbe
	case ecs.Has[LightmapCapture](s.reg, base):
		return InstanceLightmapCapture
	}
	return InstanceNone
}

// baseInstances returns the back-set of the base, or nil.
func (s *Storage) baseInstances(base ecs.Entity) instanceSet {
	switch s.baseType(base) {
	case InstanceMesh:
		return ecs.Get[Mesh](s.reg, base).instances
	case InstanceMultimesh:
		return ecs.Get[Multimesh](s.reg, base).instances
	case InstanceImmediate:
		return ecs.Get[Immediate](s.reg, base).instances
	case InstanceParticles:
		return ecs.Get[Particles](s.reg, base).instances
	case InstanceLight:
		return ecs.Get[Light](s.reg, base).instances
	case InstanceReflectionProbe:
		return ecs.Get[ReflectionProbe](s.reg, base).instances
	case InstanceGIProbe:
		return ecs.Get[GIProbe](s.reg, base).instances
	case InstanceLightmapCapture:
		return ecs.Get[LightmapCapture](s.reg, base).instances
	}
	return nil
}

// InstanceSetBase attaches the instance to base. A Null base detaches it.
func (s *Storage) InstanceSetBase(e, base ecs.Entity) error {
	in := get[Instance](s, e, "instance set base")
	if in == nil {
		return ErrInvalidHandle
	}
	if set := s.baseInstances(in.Base); set != nil {
		delete(set, e)
	}
	in.Base, in.BaseType = ecs.Null, InstanceNone
	defer s.dirtyInstances.Mark(e)
	if base.IsNull() {
		return nil
	}
	t := s.baseType(base)
	if t == InstanceNone {
		return fmt.Errorf("instance set base %v: %w", base, ErrInvalidHandle)
	}
	in.Base, in.BaseType = base, t
	s.baseInstances(base)[e] = struct{}{}
	return nil
}

// InstanceSetSkeleton binds a skeleton for skinned meshes.
func (s *Storage) InstanceSetSkeleton(e, skeleton ecs.Entity) error {
	in := get[Instance](s, e, "instance set skeleton")
	if in == nil {
		return ErrInvalidHandle
	}
	if sk := ecs.Get[Skeleton](s.reg, in.Skeleton); sk != nil {
		delete(sk.instances, e)
	}
	in.Skeleton = ecs.Null
	s.dirtyInstances.Mark(e)
	if skeleton.IsNull() {
		return nil
	}
	sk := get[Skeleton](s, skeleton, "instance set skeleton")
	if sk == nil {
		return ErrInvalidHandle
	}
	in.Skeleton = skeleton
	sk.instances[e] = struct{}{}
	return nil
}

// swapMaterial moves one instance reference from *slot to mat.
func (s *Storage) swapMaterial(e ecs.Entity, slot *ecs.Entity, mat ecs.Entity, op string) error {
	if !mat.IsNull() && get[Material](s, mat, op) == nil {
		return ErrInvalidHandle
	}
	if !slot.IsNull() {
		s.MaterialRemoveInstance(*slot, e)
	}
	*slot = mat
	if !mat.IsNull() {
		s.MaterialAddInstance(mat, e)
	}
	s.dirtyInstances.Mark(e)
	return nil
}

// InstanceSetMaterialOverride replaces the material of every surface.
func (s *Storage) InstanceSetMaterialOverride(e, mat ecs.Entity) error {
	in := get[Instance](s, e, "instance set material override")
	if in == nil {
		return ErrInvalidHandle
	}
	return s.swapMaterial(e, &in.MaterialOverride, mat, "instance set material override")
}

// InstanceSetMaterialOverlay draws mat as an extra pass over every surface.
func (s *Storage) InstanceSetMaterialOverlay(e, mat ecs.Entity) error {
	in := get[Instance](s, e, "instance set material overlay")
	if in == nil {
		return ErrInvalidHandle
	}
	return s.swapMaterial(e, &in.MaterialOverlay, mat, "instance set material overlay")
}

// InstanceSetSurfaceMaterial overrides the material of surface i.
func (s *Storage) InstanceSetSurfaceMaterial(e ecs.Entity, i int, mat ecs.Entity) error {
	in := get[Instance](s, e, "instance set surface material")
	if in == nil {
		return ErrInvalidHandle
	}
	if i < 0 {
		return fmt.Errorf("instance set surface material %d: %w", i, ErrInvalidArgument)
	}
	for len(in.Materials) <= i {
		in.Materials = append(in.Materials, ecs.Null)
	}
	return s.swapMaterial(e, &in.Materials[i], mat, "instance set surface material")
}

// InstanceSetTransform moves the instance.
func (s *Storage) InstanceSetTransform(e ecs.Entity, m gmath.Mat4) {
	if in := get[Instance](s, e, "instance set transform"); in != nil {
		in.Transform = m
		s.dirtyInstances.Mark(e)
	}
}

func (s *Storage) InstanceSetCastShadows(e ecs.Entity, mode ShadowCasting) {
	if in := get[Instance](s, e, "instance set cast shadows"); in != nil {
		in.CastShadows = mode
		s.dirtyInstances.Mark(e)
	}
}

func (s *Storage) InstanceSetLayerMask(e ecs.Entity, mask uint32) {
	if in := get[Instance](s, e, "instance set layer mask"); in != nil {
		in.LayerMask = mask
	}
}

func (s *Storage) InstanceSetVisible(e ecs.Entity, visible bool) {
	if in := get[Instance](s, e, "instance set visible"); in != nil {
		in.Visible = visible
	}
}

func (s *Storage) InstanceSetRedrawIfVisible(e ecs.Entity, on bool) {
	if in := get[Instance](s, e, "instance set redraw if visible"); in != nil {
		in.RedrawIfVisible = on
	}
}

// InstanceSetLightmap assigns a baked lightmap texture. uvScale maps the
// second UV set into the slice: offset in XY, scale in ZW.
func (s *Storage) InstanceSetLightmap(e, lightmap ecs.Entity, slice int, uvScale gmath.Vec4) error {
	in := get[Instance](s, e, "instance set lightmap")
	if in == nil {
		return ErrInvalidHandle
	}
	if !lightmap.IsNull() && get[Texture](s, lightmap, "instance set lightmap") == nil {
		return ErrInvalidHandle
	}
	in.Lightmap, in.LightmapSlice, in.LightmapUVScale = lightmap, slice, uvScale
	return nil
}

// InstanceSetLightmapCapture sets the ambient sampled from a capture. A
// nil slice turns capture lighting off.
func (s *Storage) InstanceSetLightmapCapture(e ecs.Entity, data []core.Color) error {
	in := get[Instance](s, e, "instance set lightmap capture")
	if in == nil {
		return ErrInvalidHandle
	}
	if data == nil {
		in.UseLightmapCapture = false
		in.LightmapCapture = [6]core.Color{}
		return nil
	}
	if len(data) != len(in.LightmapCapture) {
		return fmt.Errorf("instance set lightmap capture: %d colors: %w", len(data), ErrInvalidArgument)
	}
	copy(in.LightmapCapture[:], data)
	in.UseLightmapCapture = true
	return nil
}

// InstancePairLights sets the light instances affecting e this frame,
// capped at the per-object light limit.
func (s *Storage) InstancePairLights(e ecs.Entity, lights []ecs.Entity) {
	in := get[Instance](s, e, "instance pair lights")
	if in == nil {
		return
	}
	if n := s.cfg.MaxLightsPerObject; n > 0 && len(lights) > n {
		lights = lights[:n]
	}
	in.Lights = append(in.Lights[:0], lights...)
}

// InstancePairReflectionProbes sets the probe instances affecting e.
func (s *Storage) InstancePairReflectionProbes(e ecs.Entity, probes []ecs.Entity) {
	if in := get[Instance](s, e, "instance pair reflection probes"); in != nil {
		in.ReflectionProbes = append(in.ReflectionProbes[:0], probes...)
	}
}

// InstancePairGIProbes sets the GI probe instances affecting e. Only the
// first two are blended.
func (s *Storage) InstancePairGIProbes(e ecs.Entity, probes []ecs.Entity) {
	in := get[Instance](s, e, "instance pair gi probes")
	if in == nil {
		return
	}
	if len(probes) > MaxInstanceGIProbes {
		probes = probes[:MaxInstanceGIProbes]
	}
	in.GIProbes = append(in.GIProbes[:0], probes...)
}

// InstanceGetAABB returns the world-space bounds at the last update.
func (s *Storage) InstanceGetAABB(e ecs.Entity) gmath.AABB {
	if in := get[Instance](s, e, "instance get aabb"); in != nil {
		if s.dirtyInstances.Contains(e) {
			s.dirtyInstances.Unmark(e)
			s.updateInstance(e, in)
		}
		return in.TransformedAABB
	}
	return gmath.AABB{}
}

// UpdateDirtyInstances refreshes bounds and material-derived flags of every
// changed instance.
func (s *Storage) UpdateDirtyInstances() {
	s.dirtyInstances.Drain(func(e ecs.Entity) {
		if in := ecs.Get[Instance](s.reg, e); in != nil {
			s.updateInstance(e, in)
		}
	})
}

func (s *Storage) updateInstance(e ecs.Entity, in *Instance) {
	in.AABB = s.baseAABB(in)
	in.TransformedAABB = in.AABB.Transform(in.Transform)
	in.Mirror = in.Transform.Determinant3() < 0

	surfaces := s.instanceSurfaces(in)
	if len(in.Materials) > len(surfaces) && in.BaseType == InstanceMesh {
		for _, m := range in.Materials[len(surfaces):] {
			if !m.IsNull() {
				s.MaterialRemoveInstance(m, e)
			}
		}
		in.Materials = in.Materials[:len(surfaces)]
	}

	castShadow, animated := false, false
	check := func(mat ecs.Entity) {
		if s.MaterialCastsShadow(mat) {
			castShadow = true
		}
		if s.MaterialIsAnimated(mat) {
			animated = true
		}
	}
	for i, g := range surfaces {
		check(in.SurfaceMaterial(i, s.geometryMaterial(g)))
	}
	if in.BaseType == InstanceImmediate {
		check(in.SurfaceMaterial(0, ecs.Get[Immediate](s.reg, in.Base).Material))
	}
	if !in.MaterialOverlay.IsNull() && s.MaterialIsAnimated(in.MaterialOverlay) {
		animated = true
	}
	if in.BaseType == InstanceParticles {
		animated = true
	}
	in.CastsShadow = castShadow && in.CastShadows != ShadowCastingOff
	in.Animated = animated
}

// instanceSurfaces lists the surfaces the instance draws.
func (s *Storage) instanceSurfaces(in *Instance) []ecs.Entity {
	switch in.BaseType {
	case InstanceMesh:
		return ecs.Get[Mesh](s.reg, in.Base).Surfaces
	case InstanceMultimesh:
		if m := ecs.Get[Mesh](s.reg, ecs.Get[Multimesh](s.reg, in.Base).Mesh); m != nil {
			return m.Surfaces
		}
	case InstanceParticles:
		var out []ecs.Entity
		for _, pass := range ecs.Get[Particles](s.reg, in.Base).DrawPasses {
			if m := ecs.Get[Mesh](s.reg, pass); m != nil {
				out = append(out, m.Surfaces...)
			}
		}
		return out
	}
	return nil
}

func (s *Storage) geometryMaterial(g ecs.Entity) ecs.Entity {
	if sf := ecs.Get[Surface](s.reg, g); sf != nil {
		return sf.Material
	}
	return ecs.Null
}

// baseAABB returns the local bounds of the base resource.
func (s *Storage) baseAABB(in *Instance) gmath.AABB {
	switch in.BaseType {
	case InstanceMesh:
		return s.MeshGetAABB(in.Base, in.Skeleton)
	case InstanceMultimesh:
		return s.MultimeshGetAABB(in.Base)
	case InstanceImmediate:
		return s.ImmediateGetAABB(in.Base)
	case InstanceParticles:
		return s.ParticlesGetAABB(in.Base)
	case InstanceLight:
		return s.LightGetAABB(in.Base)
	case InstanceReflectionProbe:
		return s.ReflectionProbeGetAABB(in.Base)
	case InstanceGIProbe:
		return ecs.Get[GIProbe](s.reg, in.Base).Bounds
	case InstanceLightmapCapture:
		return ecs.Get[LightmapCapture](s.reg, in.Base).Bounds
	}
	return gmath.AABB{}
}
