package glapi

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectCreation is returned when a glGen* call yields a zero name.
	ErrObjectCreation = errors.New("glapi: object creation failed")
	// ErrIncompleteFramebuffer is returned when a framebuffer is not complete.
	ErrIncompleteFramebuffer = errors.New("glapi: framebuffer incomplete")
)

// Kind selects the create/release pair of an owned name array.
type Kind interface {
	gen(d Device, n int) []uint32
	del(d Device, ids []uint32)
	String() string
}

type BufferKind struct{}

func (BufferKind) gen(d Device, n int) []uint32 { return d.GenBuffers(n) }
func (BufferKind) del(d Device, ids []uint32)    { d.DeleteBuffers(ids) }
func (BufferKind) String() string                { return "buffer" }

type TextureKind struct{}

func (TextureKind) gen(d Device, n int) []uint32 { return d.GenTextures(n) }
func (TextureKind) del(d Device, ids []uint32)    { d.DeleteTextures(ids) }
func (TextureKind) String() string                { return "texture" }

type VertexArrayKind struct{}

func (VertexArrayKind) gen(d Device, n int) []uint32 { return d.GenVertexArrays(n) }
func (VertexArrayKind) del(d Device, ids []uint32)    { d.DeleteVertexArrays(ids) }
func (VertexArrayKind) String() string                { return "vertex array" }

type FramebufferKind struct{}

func (FramebufferKind) gen(d Device, n int) []uint32 { return d.GenFramebuffers(n) }
func (FramebufferKind) del(d Device, ids []uint32)    { d.DeleteFramebuffers(ids) }
func (FramebufferKind) String() string                { return "framebuffer" }

type RenderbufferKind struct{}

func (RenderbufferKind) gen(d Device, n int) []uint32 { return d.GenRenderbuffers(n) }
func (RenderbufferKind) del(d Device, ids []uint32)    { d.DeleteRenderbuffers(ids) }
func (RenderbufferKind) String() string                { return "renderbuffer" }

type ProgramKind struct{}

func (ProgramKind) gen(d Device, n int) []uint32 {
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = d.CreateProgram()
	}
	return ids
}

func (ProgramKind) del(d Device, ids []uint32) {
	for _, id := range ids {
		d.DeleteProgram(id)
	}
}

func (ProgramKind) String() string { return "program" }

// Owned exclusively owns an array of GL names of one kind. The zero value
// owns nothing. Owned values must not be copied; use Take to move ownership.
type Owned[K Kind] struct {
	dev Device
	ids []uint32
}

type (
	Buffer       = Owned[BufferKind]
	Texture      = Owned[TextureKind]
	VertexArray  = Owned[VertexArrayKind]
	Framebuffer  = Owned[FramebufferKind]
	Renderbuffer = Owned[RenderbufferKind]
	Program      = Owned[ProgramKind]
)

// NewOwned generates n names. If any name comes back zero, every generated
// name is released and ErrObjectCreation is returned.
func NewOwned[K Kind](d Device, n int) (Owned[K], error) {
	var k K
	ids := k.gen(d, n)
	for _, id := range ids {
		if id == 0 {
			k.del(d, nonZero(ids))
			return Owned[K]{}, fmt.Errorf("gen %d %s: %w", n, k, ErrObjectCreation)
		}
	}
	return Owned[K]{dev: d, ids: ids}, nil
}

func nonZero(ids []uint32) []uint32 {
	out := ids[:0:0]
	for _, id := range ids {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}

func NewBuffers(d Device, n int) (Buffer, error)           { return NewOwned[BufferKind](d, n) }
func NewTextures(d Device, n int) (Texture, error)         { return NewOwned[TextureKind](d, n) }
func NewVertexArrays(d Device, n int) (VertexArray, error) { return NewOwned[VertexArrayKind](d, n) }
func NewFramebuffers(d Device, n int) (Framebuffer, error) { return NewOwned[FramebufferKind](d, n) }
func NewRenderbuffers(d Device, n int) (Renderbuffer, error) {
	return NewOwned[RenderbufferKind](d, n)
}

// AdoptProgram takes ownership of a program created elsewhere.
func AdoptProgram(d Device, id uint32) Program {
	if id == 0 {
		return Program{}
	}
	return Program{dev: d, ids: []uint32{id}}
}

// ID returns the first owned name, or 0.
func (o *Owned[K]) ID() uint32 {
	if len(o.ids) == 0 {
		return 0
	}
	return o.ids[0]
}

// At returns the i-th owned name.
func (o *Owned[K]) At(i int) uint32 {
	return o.ids[i]
}

// Len returns the number of owned names.
func (o *Owned[K]) Len() int {
	return len(o.ids)
}

// Valid reports whether o owns any names.
func (o *Owned[K]) Valid() bool {
	return len(o.ids) > 0
}

// Borrow returns a non-owning copy of the first name.
func (o *Owned[K]) Borrow() Borrowed {
	return Borrowed(o.ID())
}

// Take moves ownership out of o, leaving it empty.
func (o *Owned[K]) Take() Owned[K] {
	moved := *o
	*o = Owned[K]{}
	return moved
}

// Release deletes the owned names and empties o. Releasing an empty value
// is a no-op.
func (o *Owned[K]) Release() {
	if len(o.ids) == 0 {
		return
	}
	var k K
	k.del(o.dev, o.ids)
	*o = Owned[K]{}
}

// Borrowed is a GL name owned by someone else, for example a render
// target's depth texture sampled by a reflection probe pass. It is freely
// copyable and never released.
type Borrowed uint32

// ID returns the borrowed name.
func (b Borrowed) ID() uint32 { return uint32(b) }

// Valid reports whether b is non-zero.
func (b Borrowed) Valid() bool { return b != 0 }

// CheckFramebuffer returns ErrIncompleteFramebuffer wrapped with the status
// when the bound framebuffer on target is not complete.
func CheckFramebuffer(d Device, target uint32) error {
	status := d.CheckFramebufferStatus(target)
	if status != FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("status=0x%X: %w", status, ErrIncompleteFramebuffer)
	}
	return nil
}
