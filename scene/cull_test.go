package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/ecs"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

func TestCull(t *testing.T) {
	ctx, _ := newTestRenderer(t)
	st := ctx.Storage()

	mesh := st.MeshCreate()
	_, err := st.MeshAddSurfaceFromArrays(mesh, storage.PrimitiveTriangles, 0, Box(gmath.NewVec3(1, 1, 1)), nil)
	require.NoError(t, err)
	place := func(p gmath.Vec3) ecs.Entity {
		in := st.InstanceCreate()
		require.NoError(t, st.InstanceSetBase(in, mesh))
		st.InstanceSetTransform(in, gmath.Mat4Translation(p))
		return in
	}
	center := place(gmath.Vec3{})
	behind := place(gmath.NewVec3(0, 0, 20))
	far := place(gmath.NewVec3(0, 0, -200))
	side := place(gmath.NewVec3(50, 0, 0))
	edge := place(gmath.NewVec3(0, 0, -40))

	cam := NewCamera(math32.Pi/3, 1, 0.1, 50)
	cam.LookAt(gmath.NewVec3(0, 0, 5), gmath.Vec3{}, gmath.Vec3Up)

	all := []ecs.Entity{center, behind, far, side, edge}
	got := Cull(st, cam.ViewProjection(), all, nil)
	assert.Equal(t, []ecs.Entity{center, edge}, got)

	// Results are appended.
	got = Cull(st, cam.ViewProjection(), []ecs.Entity{center}, got[:1])
	assert.Equal(t, []ecs.Entity{center, center}, got)

	st.InstanceSetTransform(far, gmath.Mat4Translation(gmath.NewVec3(0, 0, -10)))
	assert.Contains(t, Cull(st, cam.ViewProjection(), all, nil), far, "moved instances are re-culled")
}
