package opengl

import (
	"sort"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/storage"
)

// Sort key layout, most significant field first:
//
//	60..56  priority (material render priority + 16)
//	55..48  depth layer
//	47..32  material index
//	31..16  geometry index
//	15..8   shading flags
//	 7..0   misc flags
const (
	keyPriorityShift = 56
	keyLayerShift    = 48
	keyMaterialShift = 32
	keyGeometryShift = 16

	keyPriorityMask = 0x1F
	keyLayerMask    = 0xFF
	keyIndexMask    = 0xFFFF

	// RenderPriorityMin and RenderPriorityMax bound material priorities.
	RenderPriorityMin = storage.RenderPriorityMin
	RenderPriorityMax = storage.RenderPriorityMax
)

// Shading flags, bits 15..8 of the sort key.
const (
	ShadingUnshaded uint64 = 1 << (8 + iota)
	ShadingVertexLit
	ShadingGI
	ShadingLightmap
	ShadingLightmapLayered
	ShadingLightmapCapture

	shadingMask uint64 = 0xFF00
)

// Misc flags, bits 7..0 of the sort key.
const (
	FlagMirror uint64 = 1 << iota
	FlagCullDisabled
	FlagOpaquePrepass
	FlagNoDirectional

	miscMask uint64 = 0xFF
)

// SortKey packs the key fields. priority is clamped to the material range.
func SortKey(priority int, layer uint8, material, geometry uint16, shading, misc uint64) uint64 {
	priority = min(max(priority, RenderPriorityMin), RenderPriorityMax)
	return uint64(priority-RenderPriorityMin)<<keyPriorityShift |
		uint64(layer)<<keyLayerShift |
		uint64(material)<<keyMaterialShift |
		uint64(geometry)<<keyGeometryShift |
		shading&shadingMask |
		misc&miscMask
}

// KeyPriority returns the unbiased material priority of a key.
func KeyPriority(key uint64) int {
	return int(key>>keyPriorityShift&keyPriorityMask) + RenderPriorityMin
}

// KeyLayer returns the depth layer of a key.
func KeyLayer(key uint64) uint8 { return uint8(key >> keyLayerShift & keyLayerMask) }

// KeyMaterial returns the per-frame material index of a key.
func KeyMaterial(key uint64) uint16 { return uint16(key >> keyMaterialShift & keyIndexMask) }

// KeyGeometry returns the per-frame geometry index of a key.
func KeyGeometry(key uint64) uint16 { return uint16(key >> keyGeometryShift & keyIndexMask) }

// KeyShading returns the shading flags of a key.
func KeyShading(key uint64) uint64 { return key & shadingMask }

// KeyMisc returns the misc flags of a key.
func KeyMisc(key uint64) uint64 { return key & miscMask }

// Element is one drawable: a surface (or immediate) of an instance paired
// with the material it draws with.
type Element struct {
	Instance ecs.Entity
	In       *storage.Instance
	// Owner is the instance base: mesh, multimesh, immediate or particles.
	Owner    ecs.Entity
	Geometry ecs.Entity
	Material ecs.Entity

	Mat    *storage.Material
	Shader *storage.Shader

	Key uint64
	// Depth is the view-space distance of the instance bounds center.
	Depth float32
	// DepthCode keeps the material's custom code in depth passes.
	DepthCode bool
}

// RenderList holds the elements of one pass split into opaque and alpha
// lists. Its storage is fixed at max elements.
type RenderList struct {
	pool []Element
	used int

	Opaque []*Element
	Alpha  []*Element

	overflowLogged bool
}

// NewRenderList makes a list holding at most capacity elements.
func NewRenderList(capacity int) *RenderList {
	capacity = max(capacity, 1)
	return &RenderList{
		pool:   make([]Element, capacity),
		Opaque: make([]*Element, 0, capacity),
		Alpha:  make([]*Element, 0, capacity),
	}
}

// Max returns the element capacity.
func (l *RenderList) Max() int { return len(l.pool) }

// Len returns the number of elements added since Clear.
func (l *RenderList) Len() int { return l.used }

// Clear empties the list and rearms the overflow log.
func (l *RenderList) Clear() {
	clear(l.pool[:l.used])
	l.used = 0
	l.Opaque = l.Opaque[:0]
	l.Alpha = l.Alpha[:0]
	l.overflowLogged = false
}

// Add reserves an element in the opaque or alpha list. It returns nil once
// the list is full; the overflow is logged once per Clear.
func (l *RenderList) Add(alpha bool) *Element {
	if l.used >= len(l.pool) {
		if !l.overflowLogged {
			core.LogWarn("render list: more than %d elements, the rest are dropped (raise %s)", len(l.pool), storage.KeyMaxRenderableElements)
			l.overflowLogged = true
		}
		return nil
	}
	e := &l.pool[l.used]
	l.used++
	if alpha {
		l.Alpha = append(l.Alpha, e)
	} else {
		l.Opaque = append(l.Opaque, e)
	}
	return e
}

// SortByKey orders the opaque list by key ascending.
func (l *RenderList) SortByKey() {
	sort.SliceStable(l.Opaque, func(i, j int) bool { return l.Opaque[i].Key < l.Opaque[j].Key })
}

// SortByDepth orders the opaque list front to back, for depth-only passes.
func (l *RenderList) SortByDepth() {
	sort.SliceStable(l.Opaque, func(i, j int) bool { return l.Opaque[i].Depth < l.Opaque[j].Depth })
}

// SortByReverseDepthAndPriority orders the alpha list by priority, back to
// front within each priority.
func (l *RenderList) SortByReverseDepthAndPriority() {
	sort.SliceStable(l.Alpha, func(i, j int) bool {
		a, b := l.Alpha[i], l.Alpha[j]
		pa, pb := KeyPriority(a.Key), KeyPriority(b.Key)
		if pa != pb {
			return pa < pb
		}
		return a.Depth > b.Depth
	})
}
