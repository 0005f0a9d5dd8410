package storage

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

// SkeletonTextureWidth is the width in texels of every bone texture.
const SkeletonTextureWidth = 256

// Skeleton stores bone transforms in an RGBA32F texture, three texels per
// bone for 3D and two for 2D, packed row-major from texel 0.
type Skeleton struct {
	Size   int
	Use2D  bool
	Bones  []gmath.Mat4
	Height int

	tex       glapi.Texture
	instances instanceSet
}

// TexelsPerBone returns 2 for 2D skeletons and 3 otherwise.
func (sk *Skeleton) TexelsPerBone() int {
	if sk.Use2D {
		return 2
	}
	return 3
}

// Bone returns bone i, or identity when out of range.
func (sk *Skeleton) Bone(i int) gmath.Mat4 {
	if i < 0 || i >= len(sk.Bones) {
		return gmath.Mat4Identity()
	}
	return sk.Bones[i]
}

// TextureID returns the GL name of the bone texture.
func (sk *Skeleton) TextureID() uint32 { return sk.tex.ID() }

// SkeletonCreate makes an empty skeleton.
func (s *Storage) SkeletonCreate() ecs.Entity {
	e, _ := create(s, Skeleton{instances: instanceSet{}})
	return e
}

func (s *Storage) destroySkeleton(e ecs.Entity, sk *Skeleton) {
	s.info.TextureMem -= sk.textureBytes()
	sk.tex.Release()
	for i := range sk.instances {
		if in := ecs.Get[Instance](s.reg, i); in != nil && in.Skeleton == e {
			in.Skeleton = ecs.Null
			s.dirtyInstances.Mark(i)
		}
	}
}

func (sk *Skeleton) textureBytes() int {
	if !sk.tex.Valid() {
		return 0
	}
	return SkeletonTextureWidth * sk.Height * 16
}

// SkeletonAllocate sizes the skeleton for bones bones, all identity.
func (s *Storage) SkeletonAllocate(e ecs.Entity, bones int, use2D bool) error {
	sk := get[Skeleton](s, e, "skeleton allocate")
	if sk == nil {
		return ErrInvalidHandle
	}
	if bones < 0 {
		return fmt.Errorf("skeleton allocate %d bones: %w", bones, ErrInvalidArgument)
	}
	if sk.Size == bones && sk.Use2D == use2D {
		return nil
	}
	s.info.TextureMem -= sk.textureBytes()
	sk.tex.Release()
	sk.Size, sk.Use2D = bones, use2D
	sk.Bones = make([]gmath.Mat4, bones)
	for i := range sk.Bones {
		sk.Bones[i] = gmath.Mat4Identity()
	}
	sk.Height = 0
	if bones > 0 {
		texels := bones * sk.TexelsPerBone()
		sk.Height = (texels + SkeletonTextureWidth - 1) / SkeletonTextureWidth
		tex, err := glapi.NewTextures(s.dev, 1)
		if err != nil {
			core.LogError("skeleton allocate %d bones: %v", bones, err)
			sk.Size, sk.Bones, sk.Height = 0, nil, 0
			return fmt.Errorf("skeleton allocate: %w", err)
		}
		sk.tex = tex
		s.dev.ActiveTexture(glapi.TEXTURE0)
		s.dev.BindTexture(glapi.TEXTURE_2D, tex.ID())
		s.dev.TexImage2D(glapi.TEXTURE_2D, 0, glapi.RGBA32F, SkeletonTextureWidth, int32(sk.Height), glapi.RGBA, glapi.FLOAT, nil)
		s.dev.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MIN_FILTER, glapi.NEAREST)
		s.dev.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_MAG_FILTER, glapi.NEAREST)
		s.dev.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_S, glapi.CLAMP_TO_EDGE)
		s.dev.TexParameteri(glapi.TEXTURE_2D, glapi.TEXTURE_WRAP_T, glapi.CLAMP_TO_EDGE)
		s.info.TextureMem += sk.textureBytes()
	}
	s.dirtySkeletons.Mark(e)
	return nil
}

// SkeletonGetBoneCount returns the allocated bone count.
func (s *Storage) SkeletonGetBoneCount(e ecs.Entity) int {
	if sk := get[Skeleton](s, e, "skeleton get bone count"); sk != nil {
		return sk.Size
	}
	return 0
}

// SkeletonBoneSetTransform sets bone i.
func (s *Storage) SkeletonBoneSetTransform(e ecs.Entity, i int, xf gmath.Mat4) {
	sk := get[Skeleton](s, e, "skeleton bone set transform")
	if sk == nil {
		return
	}
	if i < 0 || i >= sk.Size {
		core.LogError("skeleton bone set transform: bone %d of %d: %v", i, sk.Size, ErrInvalidArgument)
		return
	}
	sk.Bones[i] = xf
	s.dirtySkeletons.Mark(e)
}

// SkeletonBoneGetTransform returns bone i.
func (s *Storage) SkeletonBoneGetTransform(e ecs.Entity, i int) gmath.Mat4 {
	if sk := get[Skeleton](s, e, "skeleton bone get transform"); sk != nil {
		return sk.Bone(i)
	}
	return gmath.Mat4Identity()
}

// Texels returns the bone texture contents. Texel k of a bone is
// column k of its matrix.
func (sk *Skeleton) Texels() []float32 {
	per := sk.TexelsPerBone()
	out := make([]float32, SkeletonTextureWidth*sk.Height*4)
	for b, m := range sk.Bones {
		for k := 0; k < per; k++ {
			t := (b*per + k) * 4
			out[t], out[t+1], out[t+2], out[t+3] = m[0][k], m[1][k], m[2][k], m[3][k]
		}
	}
	return out
}

// UpdateDirtySkeletons uploads changed bone textures and flags the
// instances using them.
func (s *Storage) UpdateDirtySkeletons() {
	s.dirtySkeletons.Drain(func(e ecs.Entity) {
		sk := ecs.Get[Skeleton](s.reg, e)
		if sk == nil {
			return
		}
		if sk.tex.Valid() {
			s.dev.ActiveTexture(glapi.TEXTURE0)
			s.dev.BindTexture(glapi.TEXTURE_2D, sk.tex.ID())
			s.dev.TexSubImage2D(glapi.TEXTURE_2D, 0, 0, 0, SkeletonTextureWidth, int32(sk.Height), glapi.RGBA, glapi.FLOAT, float32Bytes(sk.Texels()))
		}
		s.markInstances(sk.instances)
	})
}
