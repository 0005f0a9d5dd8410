// Package ecs is the generational entity registry every renderer resource
// lives in. Entities are opaque 32-bit handles; components are attached per
// Go type and owned by the registry.
package ecs

import "fmt"

const (
	indexBits   = 20
	versionBits = 12
	indexMask   = 1<<indexBits - 1
	versionMask = 1<<versionBits - 1

	// MaxEntities is the number of distinct live indices.
	MaxEntities = indexMask
)

// Entity is a handle: the low 20 bits are the slot index, the high 12 bits
// the slot version. Handles compare and hash by their integral value.
type Entity uint32

// Null is never returned by Create and never valid.
const Null Entity = ^Entity(0)

func makeEntity(index, version uint32) Entity {
	return Entity((version&versionMask)<<indexBits | index&indexMask)
}

// Index returns the slot index.
func (e Entity) Index() uint32 {
	return uint32(e) & indexMask
}

// Version returns the slot version.
func (e Entity) Version() uint32 {
	return uint32(e) >> indexBits & versionMask
}

// IsNull reports whether e is the reserved null handle.
func (e Entity) IsNull() bool {
	return e == Null
}

func (e Entity) String() string {
	if e.IsNull() {
		return "entity(null)"
	}
	return fmt.Sprintf("entity(%d:v%d)", e.Index(), e.Version())
}
