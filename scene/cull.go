package scene

import (
	"gles3render/internal/ecs"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// Cull appends to out the instances whose world bounds touch the frustum
// of vp and returns it.
func Cull(st *storage.Storage, vp gmath.Mat4, instances, out []ecs.Entity) []ecs.Entity {
	f := gmath.FrustumFromVP(vp)
	for _, in := range instances {
		if st.InstanceGetAABB(in).IntersectsFrustum(&f) {
			out = append(out, in)
		}
	}
	return out
}
