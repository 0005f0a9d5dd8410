package scene

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// PBRShader is the material shader imported models draw with.
const PBRShader = `shader_type spatial;

uniform vec4 albedo : source_color = vec4(1.0, 1.0, 1.0, 1.0);
uniform sampler2D albedo_texture : hint_albedo;
uniform float metallic : hint_range(0, 1) = 0.0;
uniform float roughness : hint_range(0, 1) = 1.0;

void fragment() {
	ALBEDO = albedo.rgb * texture(albedo_texture, UV).rgb;
	METALLIC = metallic;
	ROUGHNESS = roughness;
}
`

// MaterialDesc is an imported metallic-roughness material.
type MaterialDesc struct {
	Name      string
	Albedo    core.Color
	Metallic  float32
	Roughness float32
	// Texture is the base color image, RGBA8, or nil.
	Texture *storage.Image
}

// Surface is one primitive of a mesh. Material indexes Model.Materials; -1
// draws with the default material.
type Surface struct {
	Arrays   *storage.SurfaceArrays
	Material int
}

// MeshDesc is an imported mesh.
type MeshDesc struct {
	Name     string
	Surfaces []Surface
}

// NodeDesc places a mesh in the world. Hierarchies are flattened on import.
type NodeDesc struct {
	Name      string
	Mesh      int
	Transform gmath.Mat4
}

// Model is geometry read from a file, not yet in the mesh store.
type Model struct {
	Meshes    []MeshDesc
	Materials []MaterialDesc
	Nodes     []NodeDesc
}

// Upload creates the textures, materials, meshes and instances of the model
// in st and returns the instances. format picks the vertex compression.
func (m *Model) Upload(st *storage.Storage, format storage.ArrayFormat) ([]ecs.Entity, error) {
	sh := st.ShaderCreate()
	st.ShaderSetCode(sh, PBRShader)

	mats := make([]ecs.Entity, len(m.Materials))
	for i, md := range m.Materials {
		mat := st.MaterialCreate()
		st.MaterialSetShader(mat, sh)
		st.MaterialSetParam(mat, "albedo", md.Albedo)
		st.MaterialSetParam(mat, "metallic", md.Metallic)
		st.MaterialSetParam(mat, "roughness", md.Roughness)
		if img := md.Texture; img != nil {
			tex := st.TextureCreate()
			if err := st.TextureAllocate(tex, img.Width, img.Height, 1, img.Format, storage.TextureType2D, storage.FlagsDefault); err != nil {
				return nil, fmt.Errorf("material %q: %w", md.Name, err)
			}
			if err := st.TextureSetData(tex, *img, 0, 0); err != nil {
				return nil, fmt.Errorf("material %q: %w", md.Name, err)
			}
			st.MaterialSetParam(mat, "albedo_texture", tex)
		}
		mats[i] = mat
	}

	meshes := make([]ecs.Entity, len(m.Meshes))
	for i, md := range m.Meshes {
		mesh := st.MeshCreate()
		for si, s := range md.Surfaces {
			if _, err := st.MeshAddSurfaceFromArrays(mesh, storage.PrimitiveTriangles, format, s.Arrays, nil); err != nil {
				return nil, fmt.Errorf("mesh %q surface %d: %w", md.Name, si, err)
			}
			if s.Material >= 0 && s.Material < len(mats) {
				st.MeshSurfaceSetMaterial(mesh, si, mats[s.Material])
			}
		}
		meshes[i] = mesh
	}

	var instances []ecs.Entity
	for _, n := range m.Nodes {
		if n.Mesh < 0 || n.Mesh >= len(meshes) {
			continue
		}
		in := st.InstanceCreate()
		if err := st.InstanceSetBase(in, meshes[n.Mesh]); err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}
		st.InstanceSetTransform(in, n.Transform)
		instances = append(instances, in)
	}
	return instances, nil
}

// generateNormals fills missing normals with area weighted face normals.
func generateNormals(a *storage.SurfaceArrays) {
	a.Normals = make([]gmath.Vec3, len(a.Vertices))
	tri := func(i0, i1, i2 uint32) {
		v0, v1, v2 := a.Vertices[i0], a.Vertices[i1], a.Vertices[i2]
		n := v1.Sub(v0).Cross(v2.Sub(v0))
		a.Normals[i0] = a.Normals[i0].Add(n)
		a.Normals[i1] = a.Normals[i1].Add(n)
		a.Normals[i2] = a.Normals[i2].Add(n)
	}
	if len(a.Indices) > 0 {
		for i := 0; i+2 < len(a.Indices); i += 3 {
			tri(a.Indices[i], a.Indices[i+1], a.Indices[i+2])
		}
	} else {
		for i := 0; i+2 < len(a.Vertices); i += 3 {
			tri(uint32(i), uint32(i+1), uint32(i+2))
		}
	}
	for i, n := range a.Normals {
		if n.LengthSqr() == 0 {
			a.Normals[i] = gmath.Vec3Up
		} else {
			a.Normals[i] = n.Normalize()
		}
	}
}
