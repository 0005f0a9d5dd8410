package scene

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gles3render/core"
	"gles3render/internal/storage"
	gmath "gles3render/math"
)

// objCorner is one face corner: 0-based position, UV and normal indices,
// -1 when absent.
type objCorner struct{ v, vt, vn int }

type objGroup struct {
	name     string
	material string
	corners  []objCorner
}

// LoadOBJ reads a Wavefront .obj file, one mesh per object or group, with
// materials from the referenced .mtl files.
func LoadOBJ(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj %q: %w", path, err)
	}
	defer f.Close()
	m, err := parseOBJ(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("obj %q: %w", path, err)
	}
	return m, nil
}

func parseOBJ(r io.Reader, dir string) (*Model, error) {
	var (
		positions, normals []gmath.Vec3
		uvs                []gmath.Vec2
		groups             []objGroup
		mats               = map[string]MaterialDesc{}
	)
	cur := objGroup{name: "default"}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) >= 4 {
				positions = append(positions, objVec3(fields[1:4]))
			}
		case "vn":
			if len(fields) >= 4 {
				normals = append(normals, objVec3(fields[1:4]))
			}
		case "vt":
			if len(fields) >= 3 {
				// OBJ puts V at the bottom.
				uvs = append(uvs, gmath.NewVec2(objFloat(fields[1]), 1-objFloat(fields[2])))
			}
		case "o", "g":
			if len(cur.corners) > 0 {
				groups = append(groups, cur)
			}
			cur = objGroup{name: "default", material: cur.material}
			if len(fields) > 1 {
				cur.name = fields[1]
			}
		case "usemtl":
			if len(fields) > 1 {
				cur.material = fields[1]
			}
		case "mtllib":
			for _, lib := range fields[1:] {
				if err := loadMTL(filepath.Join(dir, lib), mats); err != nil {
					core.LogWarn("obj: %v", err)
				}
			}
		case "f":
			if len(fields) < 4 {
				continue
			}
			face := make([]objCorner, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				face = append(face, objParseCorner(tok, len(positions), len(uvs), len(normals)))
			}
			for i := 1; i+1 < len(face); i++ {
				cur.corners = append(cur.corners, face[0], face[i], face[i+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(cur.corners) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no geometry: %w", storage.ErrInvalidArgument)
	}

	m := &Model{}
	matIndex := map[string]int{}
	for i, g := range groups {
		s := Surface{Arrays: objArrays(g.corners, positions, uvs, normals), Material: -1}
		if md, ok := mats[g.material]; ok {
			idx, seen := matIndex[g.material]
			if !seen {
				idx = len(m.Materials)
				matIndex[g.material] = idx
				m.Materials = append(m.Materials, md)
			}
			s.Material = idx
		}
		m.Meshes = append(m.Meshes, MeshDesc{Name: g.name, Surfaces: []Surface{s}})
		m.Nodes = append(m.Nodes, NodeDesc{Name: g.name, Mesh: i, Transform: gmath.Mat4Identity()})
	}
	return m, nil
}

// objParseCorner parses "v", "v/vt", "v//vn" or "v/vt/vn". Negative
// indices count back from the end of the lists read so far.
func objParseCorner(tok string, nv, nvt, nvn int) objCorner {
	idx := func(s string, n int) int {
		i, err := strconv.Atoi(s)
		switch {
		case err != nil || i == 0:
			return -1
		case i < 0:
			return n + i
		default:
			return i - 1
		}
	}
	c := objCorner{-1, -1, -1}
	parts := strings.Split(tok, "/")
	c.v = idx(parts[0], nv)
	if len(parts) > 1 {
		c.vt = idx(parts[1], nvt)
	}
	if len(parts) > 2 {
		c.vn = idx(parts[2], nvn)
	}
	return c
}

// objArrays deduplicates corners into indexed arrays.
func objArrays(corners []objCorner, positions []gmath.Vec3, uvs []gmath.Vec2, normals []gmath.Vec3) *storage.SurfaceArrays {
	a := &storage.SurfaceArrays{}
	hasUV, hasNormal := true, true
	for _, c := range corners {
		hasUV = hasUV && c.vt >= 0 && c.vt < len(uvs)
		hasNormal = hasNormal && c.vn >= 0 && c.vn < len(normals)
	}
	seen := map[objCorner]uint32{}
	for _, c := range corners {
		if i, ok := seen[c]; ok {
			a.Indices = append(a.Indices, i)
			continue
		}
		i := uint32(len(a.Vertices))
		seen[c] = i
		var p gmath.Vec3
		if c.v >= 0 && c.v < len(positions) {
			p = positions[c.v]
		}
		a.Vertices = append(a.Vertices, p)
		if hasUV {
			a.UV = append(a.UV, uvs[c.vt])
		}
		if hasNormal {
			a.Normals = append(a.Normals, normals[c.vn])
		}
		a.Indices = append(a.Indices, i)
	}
	if !hasNormal {
		generateNormals(a)
	}
	ComputeTangents(a)
	return a
}

// loadMTL adds the materials of an .mtl file to mats. Kd is the albedo,
// Ns maps to roughness and map_Kd to the albedo texture.
func loadMTL(path string, mats map[string]MaterialDesc) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var name string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "newmtl" {
			name = fields[1]
			mats[name] = MaterialDesc{Name: name, Albedo: core.Color{R: 1, G: 1, B: 1, A: 1}, Roughness: 1}
			continue
		}
		md, ok := mats[name]
		if !ok {
			continue
		}
		switch fields[0] {
		case "Kd":
			if len(fields) >= 4 {
				c := objVec3(fields[1:4])
				md.Albedo = core.Color{R: c.X, G: c.Y, B: c.Z, A: md.Albedo.A}
			}
		case "d":
			md.Albedo.A = objFloat(fields[1])
		case "Ns":
			// Blinn-Phong exponent 0..1000 to roughness.
			md.Roughness = gmath.Clamp(1-objFloat(fields[1])/1000, 0, 1)
		case "Pm":
			md.Metallic = objFloat(fields[1])
		case "map_Kd":
			data, err := os.ReadFile(filepath.Join(filepath.Dir(path), fields[len(fields)-1]))
			if err == nil {
				md.Texture, err = decodeImage(data)
			}
			if err != nil {
				core.LogWarn("mtl %s: %s: %v", filepath.Base(path), name, err)
			}
		}
		mats[name] = md
	}
	return sc.Err()
}

func objFloat(s string) float32 {
	f, _ := strconv.ParseFloat(s, 32)
	return float32(f)
}

func objVec3(f []string) gmath.Vec3 {
	return gmath.NewVec3(objFloat(f[0]), objFloat(f[1]), objFloat(f[2]))
}
