package scene

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gmath "gles3render/math"
)

// testGLTF is one red triangle under a translated parent node. The buffer
// holds three float positions followed by three uint16 indices.
const testGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [
    {"name": "root", "translation": [1, 0, 0], "children": [1]},
    {"name": "leaf", "mesh": 0, "translation": [0, 2, 0]}
  ],
  "meshes": [{"name": "tri", "primitives": [{"attributes": {"POSITION": 0}, "indices": 1, "material": 0}]}],
  "materials": [{"name": "red", "pbrMetallicRoughness": {"baseColorFactor": [1, 0, 0, 1], "metallicFactor": 0.25, "roughnessFactor": 0.5}}],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]},
    {"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36, "target": 34962},
    {"buffer": 0, "byteOffset": 36, "byteLength": 6, "target": 34963}
  ],
  "buffers": [{"byteLength": 44, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAAAAABAAIAAAA="}]
}`

func TestLoadGLTF(t *testing.T) {
	dir := writeFiles(t, map[string]string{"tri.gltf": testGLTF})
	m, err := LoadGLTF(filepath.Join(dir, "tri.gltf"))
	require.NoError(t, err)

	require.Len(t, m.Materials, 1)
	mat := m.Materials[0]
	assert.Equal(t, "red", mat.Name)
	assert.Equal(t, float32(1), mat.Albedo.R)
	assert.Equal(t, float32(0), mat.Albedo.G)
	assert.Equal(t, float32(0.25), mat.Metallic)
	assert.Equal(t, float32(0.5), mat.Roughness)

	require.Len(t, m.Meshes, 1)
	require.Len(t, m.Meshes[0].Surfaces, 1)
	s := m.Meshes[0].Surfaces[0]
	assert.Equal(t, 0, s.Material)
	assert.Equal(t, []gmath.Vec3{{}, {X: 1}, {Y: 1}}, s.Arrays.Vertices)
	assert.Equal(t, []uint32{0, 1, 2}, s.Arrays.Indices)
	require.Len(t, s.Arrays.Normals, 3)
	assert.Equal(t, gmath.Vec3Front, s.Arrays.Normals[0], "missing normals are generated")

	require.Len(t, m.Nodes, 1, "only nodes with a mesh are kept")
	assert.Equal(t, "leaf", m.Nodes[0].Name)
	assert.Equal(t, gmath.NewVec3(1, 2, 0), m.Nodes[0].Transform.Origin())
}

func TestLoadGLTFMissing(t *testing.T) {
	_, err := LoadGLTF(filepath.Join(t.TempDir(), "none.gltf"))
	assert.Error(t, err)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := decodeImage([]byte("not an image"))
	assert.Error(t, err)
}
