package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/storage"
	gmath "gles3render/math"
)

const testOBJ = `# two groups sharing a material
mtllib test.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
o quad
usemtl red
f 1/1 2/2 3/3 4/4
o tri
f -4 -3 -2
`

const testMTL = `newmtl red
Kd 1 0 0
Ns 500
d 0.5
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadOBJ(t *testing.T) {
	dir := writeFiles(t, map[string]string{"model.obj": testOBJ, "test.mtl": testMTL})
	m, err := LoadOBJ(filepath.Join(dir, "model.obj"))
	require.NoError(t, err)

	require.Len(t, m.Materials, 1)
	mat := m.Materials[0]
	assert.Equal(t, "red", mat.Name)
	assert.Equal(t, float32(1), mat.Albedo.R)
	assert.Equal(t, float32(0), mat.Albedo.G)
	assert.Equal(t, float32(0.5), mat.Albedo.A)
	assert.InDelta(t, 0.5, mat.Roughness, 1e-6)
	assert.Nil(t, mat.Texture)

	require.Len(t, m.Meshes, 2)
	require.Len(t, m.Nodes, 2)
	assert.Equal(t, "quad", m.Meshes[0].Name)
	assert.Equal(t, "tri", m.Meshes[1].Name)
	for i, n := range m.Nodes {
		assert.Equal(t, i, n.Mesh)
		assert.Equal(t, gmath.Mat4Identity(), n.Transform)
	}

	quad := m.Meshes[0].Surfaces[0]
	assert.Equal(t, 0, quad.Material)
	assert.Len(t, quad.Arrays.Vertices, 4, "shared corners are merged")
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, quad.Arrays.Indices)
	require.Len(t, quad.Arrays.UV, 4)
	assert.Equal(t, gmath.NewVec2(0, 1), quad.Arrays.UV[0], "V is flipped")
	for _, n := range quad.Arrays.Normals {
		assert.InDelta(t, 1, n.Z, 1e-6)
	}
	assert.Len(t, quad.Arrays.Tangents, 4)

	tri := m.Meshes[1].Surfaces[0]
	assert.Equal(t, 0, tri.Material, "usemtl carries over to the next object")
	assert.Equal(t, []gmath.Vec3{{}, {X: 1}, {X: 1, Y: 1}}, tri.Arrays.Vertices)
	assert.Nil(t, tri.Arrays.UV)
	assert.Nil(t, tri.Arrays.Tangents)
}

func TestLoadOBJMissingMaterialLibrary(t *testing.T) {
	dir := writeFiles(t, map[string]string{"model.obj": testOBJ})
	m, err := LoadOBJ(filepath.Join(dir, "model.obj"))
	require.NoError(t, err)
	assert.Empty(t, m.Materials)
	assert.Equal(t, -1, m.Meshes[0].Surfaces[0].Material)
}

func TestLoadOBJErrors(t *testing.T) {
	_, err := LoadOBJ(filepath.Join(t.TempDir(), "missing.obj"))
	assert.Error(t, err)

	_, err = parseOBJ(strings.NewReader("# nothing\nv 0 0 0\n"), ".")
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestOBJNormalsKept(t *testing.T) {
	src := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 -1\nf 1//1 2//1 3//1\n"
	m, err := parseOBJ(strings.NewReader(src), ".")
	require.NoError(t, err)
	a := m.Meshes[0].Surfaces[0].Arrays
	assert.Equal(t, []gmath.Vec3{gmath.Vec3Back, gmath.Vec3Back, gmath.Vec3Back}, a.Normals)
	assert.Equal(t, "default", m.Meshes[0].Name)
}

func TestOBJParseCorner(t *testing.T) {
	cases := []struct {
		tok  string
		want objCorner
	}{
		{"3", objCorner{2, -1, -1}},
		{"3/2", objCorner{2, 1, -1}},
		{"3//4", objCorner{2, -1, 3}},
		{"1/2/3", objCorner{0, 1, 2}},
		{"-1/-2/-5", objCorner{9, 8, 5}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, objParseCorner(tc.tok, 10, 10, 10), tc.tok)
	}
}
