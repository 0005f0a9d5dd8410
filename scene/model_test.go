package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/glapi/glfake"
	"gles3render/internal/storage"
	gmath "gles3render/math"
	"gles3render/renderer"
)

func newTestRenderer(t *testing.T) (*renderer.Context, *glfake.Device) {
	t.Helper()
	dev := glfake.New()
	set := core.NewSettings()
	set.Set(storage.KeyDirectionalShadowSize, 256)
	set.Set(storage.KeyShadowCubemapSize, 64)
	set.Set(storage.KeyImmediateBufferSize, 64)
	set.Set(storage.KeyDepthPrepass, false)
	ctx, err := renderer.New(dev, set, renderer.Options{Clock: &core.ManualClock{Now: 1_000_000}})
	require.NoError(t, err)
	t.Cleanup(ctx.Finalize)
	return ctx, dev
}

func boxModel() *Model {
	return &Model{
		Materials: []MaterialDesc{{
			Name:      "checker",
			Albedo:    core.Color{R: 1, G: 1, B: 1, A: 1},
			Roughness: 0.5,
			Texture: &storage.Image{
				Width: 2, Height: 2, Format: storage.ImageRGBA8,
				Data: []byte{
					255, 255, 255, 255, 0, 0, 0, 255,
					0, 0, 0, 255, 255, 255, 255, 255,
				},
			},
		}},
		Meshes: []MeshDesc{{Name: "box", Surfaces: []Surface{{Arrays: Box(gmath.NewVec3(1, 1, 1)), Material: 0}}}},
		Nodes: []NodeDesc{
			{Name: "a", Mesh: 0, Transform: gmath.Mat4Identity()},
			{Name: "b", Mesh: 0, Transform: gmath.Mat4Translation(gmath.NewVec3(3, 0, 0))},
			{Name: "dangling", Mesh: 4, Transform: gmath.Mat4Identity()},
		},
	}
}

func TestModelUpload(t *testing.T) {
	ctx, _ := newTestRenderer(t)
	st := ctx.Storage()

	instances, err := boxModel().Upload(st, storage.CompressDefault)
	require.NoError(t, err)
	require.Len(t, instances, 2, "nodes with a bad mesh index are skipped")

	in := st.Instance(instances[0])
	require.NotNil(t, in)
	assert.Equal(t, in.Base, st.Instance(instances[1]).Base, "nodes share the mesh")
	require.Equal(t, 1, st.MeshGetSurfaceCount(in.Base))

	mat := st.MeshSurfaceGetMaterial(in.Base, 0)
	require.False(t, mat.IsNull())
	assert.Equal(t, PBRShader, st.ShaderGetCode(st.MaterialGetShader(mat)))
	assert.Equal(t, float32(0.5), st.MaterialGetParam(mat, "roughness"))
	tex, ok := st.MaterialGetParam(mat, "albedo_texture").(ecs.Entity)
	require.True(t, ok)
	require.NotNil(t, st.ResolveTexture(tex))
	assert.Equal(t, 2, st.ResolveTexture(tex).Width)

	b := st.InstanceGetAABB(instances[1])
	assert.InDelta(t, 2.5, b.Position.X, 1e-5)
	assert.InDelta(t, 1, b.Size.X, 1e-5)
}

func TestModelUploadBadTexture(t *testing.T) {
	ctx, _ := newTestRenderer(t)
	m := boxModel()
	m.Materials[0].Texture.Width = 0
	_, err := m.Upload(ctx.Storage(), storage.CompressDefault)
	assert.Error(t, err)
}

func TestModelDraws(t *testing.T) {
	ctx, dev := newTestRenderer(t)
	st := ctx.Storage()
	instances, err := boxModel().Upload(st, storage.CompressDefault)
	require.NoError(t, err)

	rt := st.RenderTargetCreate()
	require.NoError(t, st.RenderTargetSetSize(rt, 64, 64))
	cam := NewCamera(math32.Pi/3, 1, 0.1, 100)
	cam.LookAt(gmath.NewVec3(1.5, 2, 8), gmath.NewVec3(1.5, 0, 0), gmath.Vec3Up)
	args := renderer.NewFrameArgs(rt, cam.View())
	args.Instances = instances

	dev.ResetRecording()
	require.NoError(t, ctx.Draw(args))
	fbo := st.RenderTarget(rt).FBO()
	n := 0
	for _, d := range dev.Draws() {
		if d.Framebuffer == fbo && d.Mode == glapi.TRIANGLES && d.ColorMask == [4]bool{true, true, true, true} {
			n++
		}
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, ctx.Info().Objects)
}

func TestGenerateNormalsNonIndexed(t *testing.T) {
	a := &storage.SurfaceArrays{Vertices: []gmath.Vec3{{}, {X: 1}, {Z: -1}}}
	generateNormals(a)
	for _, n := range a.Normals {
		assert.Equal(t, gmath.Vec3Up, n)
	}

	degenerate := &storage.SurfaceArrays{Vertices: []gmath.Vec3{{}, {}, {}}, Indices: []uint32{0, 1, 2}}
	generateNormals(degenerate)
	assert.Equal(t, []gmath.Vec3{gmath.Vec3Up, gmath.Vec3Up, gmath.Vec3Up}, degenerate.Normals)
}
