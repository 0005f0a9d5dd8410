package storage

import (
	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/ecs"
	gmath "gles3render/math"
)

// LightType is the kind of a light.
type LightType int

const (
	LightDirectional LightType = iota
	LightOmni
	LightSpot
)

// LightParam indexes Light.Params.
type LightParam int

const (
	LightParamEnergy LightParam = iota
	LightParamIndirectEnergy
	LightParamSize
	LightParamSpecular
	LightParamRange
	LightParamAttenuation
	LightParamSpotAngle
	LightParamSpotAttenuation
	LightParamContactShadowSize
	LightParamShadowMaxDistance
	LightParamShadowSplit1Offset
	LightParamShadowSplit2Offset
	LightParamShadowSplit3Offset
	LightParamShadowNormalBias
	LightParamShadowBias
	LightParamShadowBiasSplitScale
	LightParamMax
)

// OmniShadowMode selects how omni shadows are rendered.
type OmniShadowMode int

const (
	OmniShadowDualParaboloid OmniShadowMode = iota
	OmniShadowCube
)

// OmniShadowDetail orients the dual paraboloid split.
type OmniShadowDetail int

const (
	OmniShadowDetailVertical OmniShadowDetail = iota
	OmniShadowDetailHorizontal
)

// DirectionalShadowMode is the cascade count of a directional light.
type DirectionalShadowMode int

const (
	DirectionalShadowOrthogonal DirectionalShadowMode = iota
	DirectionalShadowPSSM2
	DirectionalShadowPSSM4
)

// Splits returns the number of cascades.
func (m DirectionalShadowMode) Splits() int {
	switch m {
	case DirectionalShadowPSSM2:
		return 2
	case DirectionalShadowPSSM4:
		return 4
	}
	return 1
}

// DepthRange selects how cascade depth ranges are fit.
type DepthRange int

const (
	DepthRangeStable DepthRange = iota
	DepthRangeOptimized
)

// BakeMode selects what a light contributes to baked lighting.
type BakeMode int

const (
	BakeDisabled BakeMode = iota
	BakeIndirect
	BakeAll
)

// Light is a light resource shared by its instances.
type Light struct {
	Type            LightType
	Params          [LightParamMax]float32
	Color           core.Color
	ShadowColor     core.Color
	Projector       ecs.Entity
	CullMask        uint32
	Shadow          bool
	Negative        bool
	ReverseCullFace bool
	BakeMode        BakeMode

	OmniShadowMode        OmniShadowMode
	OmniShadowDetail      OmniShadowDetail
	DirectionalShadowMode DirectionalShadowMode
	BlendSplits           bool
	DepthRange            DepthRange

	// Version changes whenever a change requires shadows to be redrawn.
	Version uint64

	instances instanceSet
}

// LightCreate makes a light of type t with default parameters.
func (s *Storage) LightCreate(t LightType) ecs.Entity {
	l := Light{
		Type:        t,
		Color:       core.ColorWhite,
		ShadowColor: core.ColorBlack,
		Projector:   ecs.Null,
		CullMask:    0xFFFFFFFF,
		BakeMode:    BakeIndirect,
		instances:   instanceSet{},
	}
	l.Params[LightParamEnergy] = 1
	l.Params[LightParamIndirectEnergy] = 1
	l.Params[LightParamSpecular] = 0.5
	l.Params[LightParamRange] = 1
	l.Params[LightParamAttenuation] = 1
	l.Params[LightParamSpotAngle] = 45
	l.Params[LightParamSpotAttenuation] = 1
	l.Params[LightParamShadowMaxDistance] = 100
	l.Params[LightParamShadowSplit1Offset] = 0.1
	l.Params[LightParamShadowSplit2Offset] = 0.2
	l.Params[LightParamShadowSplit3Offset] = 0.5
	l.Params[LightParamShadowBias] = 0.15
	l.Params[LightParamShadowBiasSplitScale] = 0.25
	e, _ := create(s, l)
	return e
}

func (s *Storage) destroyLight(e ecs.Entity, l *Light) {
	s.unlinkBase(e, l.instances)
}

func (s *Storage) light(e ecs.Entity, op string) *Light {
	return get[Light](s, e, op)
}

func (s *Storage) touchLight(l *Light) {
	l.Version++
	s.markInstances(l.instances)
}

// LightSetParam sets one parameter. Range, angle and bias changes force a
// shadow redraw.
func (s *Storage) LightSetParam(e ecs.Entity, p LightParam, v float32) {
	l := s.light(e, "light set param")
	if l == nil {
		return
	}
	if p < 0 || p >= LightParamMax {
		core.LogError("light set param %d: %v", p, ErrInvalidArgument)
		return
	}
	l.Params[p] = v
	switch p {
	case LightParamRange, LightParamSpotAngle, LightParamShadowMaxDistance,
		LightParamShadowSplit1Offset, LightParamShadowSplit2Offset, LightParamShadowSplit3Offset,
		LightParamShadowNormalBias, LightParamShadowBias:
		s.touchLight(l)
	}
}

// LightGetParam returns one parameter.
func (s *Storage) LightGetParam(e ecs.Entity, p LightParam) float32 {
	l := s.light(e, "light get param")
	if l == nil || p < 0 || p >= LightParamMax {
		return 0
	}
	return l.Params[p]
}

// LightSetColor sets the light color.
func (s *Storage) LightSetColor(e ecs.Entity, c core.Color) {
	if l := s.light(e, "light set color"); l != nil {
		l.Color = c
	}
}

// LightSetShadow toggles shadow casting.
func (s *Storage) LightSetShadow(e ecs.Entity, on bool) {
	if l := s.light(e, "light set shadow"); l != nil {
		l.Shadow = on
		s.touchLight(l)
	}
}

// LightSetShadowColor sets the color of shadowed areas.
func (s *Storage) LightSetShadowColor(e ecs.Entity, c core.Color) {
	if l := s.light(e, "light set shadow color"); l != nil {
		l.ShadowColor = c
	}
}

// LightSetProjector sets the projector texture.
func (s *Storage) LightSetProjector(e, tex ecs.Entity) {
	if l := s.light(e, "light set projector"); l != nil {
		l.Projector = tex
	}
}

// LightSetNegative makes the light subtract.
func (s *Storage) LightSetNegative(e ecs.Entity, on bool) {
	if l := s.light(e, "light set negative"); l != nil {
		l.Negative = on
	}
}

// LightSetCullMask sets the layers the light affects.
func (s *Storage) LightSetCullMask(e ecs.Entity, mask uint32) {
	if l := s.light(e, "light set cull mask"); l != nil {
		l.CullMask = mask
		s.touchLight(l)
	}
}

// LightSetReverseCullFaceMode renders shadows with front faces culled.
func (s *Storage) LightSetReverseCullFaceMode(e ecs.Entity, on bool) {
	if l := s.light(e, "light set reverse cull face mode"); l != nil {
		l.ReverseCullFace = on
		s.touchLight(l)
	}
}

// LightSetBakeMode sets the bake mode.
func (s *Storage) LightSetBakeMode(e ecs.Entity, m BakeMode) {
	if l := s.light(e, "light set bake mode"); l != nil {
		l.BakeMode = m
	}
}

// LightOmniSetShadowMode selects dual paraboloid or cube omni shadows.
func (s *Storage) LightOmniSetShadowMode(e ecs.Entity, m OmniShadowMode) {
	if l := s.light(e, "light omni set shadow mode"); l != nil {
		l.OmniShadowMode = m
		s.touchLight(l)
	}
}

// LightOmniSetShadowDetail sets the paraboloid split orientation.
func (s *Storage) LightOmniSetShadowDetail(e ecs.Entity, d OmniShadowDetail) {
	if l := s.light(e, "light omni set shadow detail"); l != nil {
		l.OmniShadowDetail = d
		s.touchLight(l)
	}
}

// LightDirectionalSetShadowMode sets the cascade count.
func (s *Storage) LightDirectionalSetShadowMode(e ecs.Entity, m DirectionalShadowMode) {
	if l := s.light(e, "light directional set shadow mode"); l != nil {
		l.DirectionalShadowMode = m
		s.touchLight(l)
	}
}

// LightDirectionalSetBlendSplits blends between cascades.
func (s *Storage) LightDirectionalSetBlendSplits(e ecs.Entity, on bool) {
	if l := s.light(e, "light directional set blend splits"); l != nil {
		l.BlendSplits = on
		s.touchLight(l)
	}
}

// LightDirectionalSetShadowDepthRangeMode sets how cascades are fit.
func (s *Storage) LightDirectionalSetShadowDepthRangeMode(e ecs.Entity, r DepthRange) {
	if l := s.light(e, "light directional set shadow depth range mode"); l != nil {
		l.DepthRange = r
		s.touchLight(l)
	}
}

// LightGetType returns the light type.
func (s *Storage) LightGetType(e ecs.Entity) LightType {
	if l := s.light(e, "light get type"); l != nil {
		return l.Type
	}
	return LightDirectional
}

// LightGetAABB returns the local bounds: a cube of the range for omni
// lights, a box around the cone for spots and empty for directional ones.
func (s *Storage) LightGetAABB(e ecs.Entity) gmath.AABB {
	l := s.light(e, "light get aabb")
	if l == nil {
		return gmath.AABB{}
	}
	r := l.Params[LightParamRange]
	switch l.Type {
	case LightOmni:
		return gmath.AABB{Position: gmath.Vec3{X: -r, Y: -r, Z: -r}, Size: gmath.Vec3{X: 2 * r, Y: 2 * r, Z: 2 * r}}
	case LightSpot:
		angle := l.Params[LightParamSpotAngle] * math32.Pi / 180
		w := r
		if angle < math32.Pi/2 {
			w = math32.Tan(angle) * r
		}
		return gmath.AABB{Position: gmath.Vec3{X: -w, Y: -w, Z: -r}, Size: gmath.Vec3{X: 2 * w, Y: 2 * w, Z: r}}
	}
	return gmath.AABB{}
}

// LightGetVersion returns the shadow version.
func (s *Storage) LightGetVersion(e ecs.Entity) uint64 {
	if l := s.light(e, "light get version"); l != nil {
		return l.Version
	}
	return 0
}

// ── Light instances ──

// ShadowTransform is the view of one cascade, cube face or paraboloid.
type ShadowTransform struct {
	Projection gmath.Mat4
	Transform  gmath.Mat4
	Far        float32
	Split      float32
	BiasScale  float32
}

// LightInstance is a light placed in a scenario. It leases shadow atlas
// slots and remembers when it was last visible.
type LightInstance struct {
	Light            ecs.Entity
	Transform        gmath.Mat4
	ShadowTransforms [4]ShadowTransform

	// LastScenePass is the scene pass the instance was last visible in.
	LastScenePass uint64
	// LastVisibleUsec is the clock reading of that pass.
	LastVisibleUsec uint64
	// DirectionalRect is the atlas rect of the current directional pass.
	DirectionalRect core.Rect2i

	shadowAtlases map[ecs.Entity]struct{}
}

// LightInstanceCreate places light in a scenario.
func (s *Storage) LightInstanceCreate(light ecs.Entity) ecs.Entity {
	if s.light(light, "light instance create") == nil {
		return ecs.Null
	}
	e, _ := create(s, LightInstance{Light: light, Transform: gmath.Mat4Identity(), shadowAtlases: map[ecs.Entity]struct{}{}})
	return e
}

// LightInstance returns the light instance component, or nil.
func (s *Storage) LightInstance(e ecs.Entity) *LightInstance { return ecs.Get[LightInstance](s.reg, e) }

func (s *Storage) destroyLightInstance(e ecs.Entity, li *LightInstance) {
	for a := range li.shadowAtlases {
		if atlas := ecs.Get[ShadowAtlas](s.reg, a); atlas != nil {
			atlas.release(e)
		}
	}
}

// LightInstanceSetTransform sets the world transform.
func (s *Storage) LightInstanceSetTransform(e ecs.Entity, xf gmath.Mat4) {
	if li := get[LightInstance](s, e, "light instance set transform"); li != nil {
		li.Transform = xf
	}
}

// LightInstanceSetShadowTransform sets the view of pass i.
func (s *Storage) LightInstanceSetShadowTransform(e ecs.Entity, i int, st ShadowTransform) {
	li := get[LightInstance](s, e, "light instance set shadow transform")
	if li == nil {
		return
	}
	if i < 0 || i >= len(li.ShadowTransforms) {
		core.LogError("light instance set shadow transform: pass %d: %v", i, ErrInvalidArgument)
		return
	}
	li.ShadowTransforms[i] = st
}

// LightInstanceMarkVisible records that the instance is visible in the
// current scene pass, protecting its shadow slots from eviction.
func (s *Storage) LightInstanceMarkVisible(e ecs.Entity) {
	if li := get[LightInstance](s, e, "light instance mark visible"); li != nil {
		li.LastScenePass = s.scenePass
		li.LastVisibleUsec = s.clock.Usec()
	}
}
