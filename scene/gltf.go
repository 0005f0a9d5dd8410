package scene

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"gles3render/core"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// LoadGLTF reads a .gltf or .glb file. Node hierarchies are flattened into
// world transforms; base color textures are decoded to RGBA8.
func LoadGLTF(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}
	dir := filepath.Dir(path)
	m := &Model{}

	images := make([]*storage.Image, len(doc.Textures))
	for i, gt := range doc.Textures {
		if gt.Source == nil || *gt.Source >= len(doc.Images) {
			continue
		}
		img, err := gltfImage(doc, doc.Images[*gt.Source], dir)
		if err != nil {
			core.LogWarn("gltf %s: texture %d: %v", filepath.Base(path), i, err)
			continue
		}
		images[i] = img
	}

	for _, gm := range doc.Materials {
		md := MaterialDesc{Name: gm.Name, Albedo: core.Color{R: 1, G: 1, B: 1, A: 1}, Roughness: 1}
		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			md.Albedo = core.Color{R: float32(cf[0]), G: float32(cf[1]), B: float32(cf[2]), A: float32(cf[3])}
			md.Metallic = float32(pbr.MetallicFactorOrDefault())
			md.Roughness = float32(pbr.RoughnessFactorOrDefault())
			if t := pbr.BaseColorTexture; t != nil && t.Index < len(images) {
				md.Texture = images[t.Index]
			}
		}
		m.Materials = append(m.Materials, md)
	}

	for mi, gm := range doc.Meshes {
		md := MeshDesc{Name: gm.Name}
		for pi, prim := range gm.Primitives {
			a, err := gltfPrimitive(doc, prim)
			if err != nil {
				core.LogWarn("gltf %s: mesh %d primitive %d: %v", filepath.Base(path), mi, pi, err)
				continue
			}
			s := Surface{Arrays: a, Material: -1}
			if prim.Material != nil {
				s.Material = *prim.Material
			}
			md.Surfaces = append(md.Surfaces, s)
		}
		m.Meshes = append(m.Meshes, md)
	}

	roots := gltfRoots(doc)
	var walk func(idx int, parent gmath.Mat4)
	walk = func(idx int, parent gmath.Mat4) {
		gn := doc.Nodes[idx]
		world := gltfLocal(gn).Mul(parent)
		if gn.Mesh != nil && *gn.Mesh < len(m.Meshes) {
			m.Nodes = append(m.Nodes, NodeDesc{Name: gn.Name, Mesh: *gn.Mesh, Transform: world})
		}
		for _, c := range gn.Children {
			if c < len(doc.Nodes) {
				walk(c, world)
			}
		}
	}
	for _, r := range roots {
		walk(r, gmath.Mat4Identity())
	}
	return m, nil
}

// gltfRoots returns the nodes of the default scene, or every parentless
// node when there is none.
func gltfRoots(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	child := make([]bool, len(doc.Nodes))
	for _, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

// gltfLocal returns the node transform in row-vector form. The column-major
// glTF matrix is already laid out that way.
func gltfLocal(gn *gltf.Node) gmath.Mat4 {
	if mtx := gn.MatrixOrDefault(); mtx != gltf.DefaultMatrix {
		var out gmath.Mat4
		for r := range 4 {
			for c := range 4 {
				out[r][c] = float32(mtx[r*4+c])
			}
		}
		return out
	}
	t, r, s := gn.TranslationOrDefault(), gn.RotationOrDefault(), gn.ScaleOrDefault()
	q := gmath.NewQuaternion(float32(r[0]), float32(r[1]), float32(r[2]), float32(r[3]))
	return gmath.Mat4Scale(gmath.NewVec3(float32(s[0]), float32(s[1]), float32(s[2]))).
		Mul(q.ToMat4()).
		Mul(gmath.Mat4Translation(gmath.NewVec3(float32(t[0]), float32(t[1]), float32(t[2]))))
}

func gltfPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*storage.SurfaceArrays, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, fmt.Errorf("primitive mode %v unsupported", prim.Mode)
	}
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("no POSITION attribute")
	}
	pos, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	a := &storage.SurfaceArrays{Vertices: make([]gmath.Vec3, len(pos))}
	for i, p := range pos {
		a.Vertices[i] = gmath.NewVec3(p[0], p[1], p[2])
	}

	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		if ns, err := modeler.ReadNormal(doc, doc.Accessors[idx], nil); err == nil && len(ns) == len(pos) {
			a.Normals = make([]gmath.Vec3, len(ns))
			for i, n := range ns {
				a.Normals[i] = gmath.NewVec3(n[0], n[1], n[2])
			}
		}
	}
	for attr, dst := range map[string]*[]gmath.Vec2{gltf.TEXCOORD_0: &a.UV, gltf.TEXCOORD_1: &a.UV2} {
		if idx, ok := prim.Attributes[attr]; ok {
			if uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err == nil && len(uvs) == len(pos) {
				*dst = make([]gmath.Vec2, len(uvs))
				for i, uv := range uvs {
					(*dst)[i] = gmath.NewVec2(uv[0], uv[1])
				}
			}
		}
	}
	if prim.Indices != nil {
		a.Indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	}
	if len(a.Normals) == 0 {
		generateNormals(a)
	}
	ComputeTangents(a)
	return a, nil
}

func gltfImage(doc *gltf.Document, img *gltf.Image, dir string) (*storage.Image, error) {
	var raw []byte
	var err error
	switch {
	case img.BufferView != nil:
		raw, err = modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
	case img.IsEmbeddedResource():
		raw, err = img.MarshalData()
	case img.URI != "":
		raw, err = os.ReadFile(filepath.Join(dir, img.URI))
	default:
		return nil, fmt.Errorf("image has no data")
	}
	if err != nil {
		return nil, err
	}
	return decodeImage(raw)
}

// decodeImage decodes PNG or JPEG data into an RGBA8 image.
func decodeImage(data []byte) (*storage.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return &storage.Image{Width: b.Dx(), Height: b.Dy(), Format: storage.ImageRGBA8, Data: rgba.Pix}, nil
}
