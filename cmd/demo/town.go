package main

import (
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/storage"
	gmath "gles3render/math"
	"gles3render/scene"
)

// town is the showcase square: four buildings, a fountain, trees and lamp
// posts around a plaza.
type town struct {
	st  *storage.Storage
	pbr ecs.Entity

	box, sphere, cylinder ecs.Entity

	instances []ecs.Entity
	lights    []ecs.Entity
	// fountain is the marble material; a watched shader file replaces its
	// shader.
	fountain ecs.Entity
}

func buildTown(st *storage.Storage, format storage.ArrayFormat) (*town, error) {
	t := &town{st: st, pbr: st.ShaderCreate()}
	st.ShaderSetCode(t.pbr, scene.PBRShader)

	var err error
	if t.box, err = t.mesh(scene.Box(gmath.NewVec3(1, 1, 1)), format); err != nil {
		return nil, err
	}
	if t.sphere, err = t.mesh(scene.Sphere(0.5, 24, 12), format); err != nil {
		return nil, err
	}
	if t.cylinder, err = t.mesh(scene.Cylinder(1, 1, 24), format); err != nil {
		return nil, err
	}
	ground, err := t.mesh(scene.Plane(80, 80, 8), format)
	if err != nil {
		return nil, err
	}

	matGround := t.material(core.Color{R: 0.62, G: 0.58, B: 0.52, A: 1}, 0, 0.95)
	matStone := t.material(core.Color{R: 0.58, G: 0.55, B: 0.50, A: 1}, 0, 0.85)
	matBrick := t.material(core.Color{R: 0.70, G: 0.43, B: 0.30, A: 1}, 0, 0.9)
	matPlaster := t.material(core.Color{R: 0.90, G: 0.87, B: 0.78, A: 1}, 0, 0.7)
	matRoof := t.material(core.Color{R: 0.32, G: 0.30, B: 0.28, A: 1}, 0, 0.8)
	matTrunk := t.material(core.Color{R: 0.42, G: 0.28, B: 0.13, A: 1}, 0, 0.9)
	matLeaves := t.material(core.Color{R: 0.12, G: 0.42, B: 0.15, A: 1}, 0, 0.8)
	matWater := t.material(core.Color{R: 0.28, G: 0.52, B: 0.72, A: 1}, 0, 0.08)
	matMetal := t.material(core.Color{R: 0.14, G: 0.14, B: 0.12, A: 1}, 0.95, 0.15)
	matLamp := t.material(core.Color{R: 1.0, G: 0.85, B: 0.45, A: 1}, 0, 0.5)
	t.fountain = t.material(core.Color{R: 0.92, G: 0.90, B: 0.86, A: 1}, 0, 0.25)

	if err := t.place(ground, matGround, gmath.Mat4Identity()); err != nil {
		return nil, err
	}

	buildings := []struct {
		pos, size gmath.Vec3
		mat       ecs.Entity
	}{
		{gmath.NewVec3(-15, 4.5, -15), gmath.NewVec3(9, 9, 9), matStone},
		{gmath.NewVec3(16, 3.5, -15), gmath.NewVec3(12, 7, 10), matBrick},
		{gmath.NewVec3(-15, 3, 16), gmath.NewVec3(8, 6, 8), matPlaster},
		{gmath.NewVec3(16, 2.5, 16), gmath.NewVec3(14, 5, 8), matStone},
	}
	for _, b := range buildings {
		if err := t.add(t.box, b.mat, b.pos, b.size); err != nil {
			return nil, err
		}
		roofPos := gmath.NewVec3(b.pos.X, b.pos.Y*2+0.5, b.pos.Z)
		if err := t.add(t.box, matRoof, roofPos, b.size.Add(gmath.NewVec3(1, 0, 1)).MulVec(gmath.NewVec3(1, 0, 1)).Add(gmath.Vec3Up)); err != nil {
			return nil, err
		}
	}
	for _, x := range []float32{-10, 10} {
		if err := t.add(t.box, matStone, gmath.NewVec3(x, 0.5, 0), gmath.NewVec3(0.5, 1, 18)); err != nil {
			return nil, err
		}
	}

	// Fountain: cylinders are unit radius and height, scaled in place.
	fountain := []struct {
		mesh      ecs.Entity
		mat       ecs.Entity
		pos, size gmath.Vec3
	}{
		{t.cylinder, t.fountain, gmath.NewVec3(0, 0.2, 0), gmath.NewVec3(3.4, 0.4, 3.4)},
		{t.cylinder, t.fountain, gmath.NewVec3(0, 0.7, 0), gmath.NewVec3(3.0, 0.6, 3.0)},
		{t.cylinder, matWater, gmath.NewVec3(0, 1.02, 0), gmath.NewVec3(2.7, 0.04, 2.7)},
		{t.cylinder, t.fountain, gmath.NewVec3(0, 1.4, 0), gmath.NewVec3(0.38, 2.8, 0.38)},
		{t.sphere, t.fountain, gmath.NewVec3(0, 3.1, 0), gmath.NewVec3(1, 1, 1)},
	}
	for _, f := range fountain {
		if err := t.add(f.mesh, f.mat, f.pos, f.size); err != nil {
			return nil, err
		}
	}

	for _, p := range []gmath.Vec3{{X: -8, Z: -5}, {X: 8, Z: -6}, {X: -9, Z: 6}, {X: 9, Z: 5}, {X: -6, Z: -11}, {X: 7, Z: -10}} {
		if err := t.add(t.cylinder, matTrunk, gmath.NewVec3(p.X, 1.1, p.Z), gmath.NewVec3(0.22, 2.2, 0.22)); err != nil {
			return nil, err
		}
		if err := t.add(t.sphere, matLeaves, gmath.NewVec3(p.X, 3.2, p.Z), gmath.NewVec3(3.2, 3.6, 3.2)); err != nil {
			return nil, err
		}
	}

	for _, p := range []gmath.Vec3{{X: -5.5, Z: -5.5}, {X: 5.5, Z: -5.5}, {X: -5.5, Z: 5.5}, {X: 5.5, Z: 5.5}} {
		if err := t.add(t.cylinder, matMetal, gmath.NewVec3(p.X, 2.4, p.Z), gmath.NewVec3(0.09, 4.8, 0.09)); err != nil {
			return nil, err
		}
		if err := t.add(t.sphere, matLamp, gmath.NewVec3(p.X, 4.9, p.Z), gmath.NewVec3(0.56, 0.56, 0.56)); err != nil {
			return nil, err
		}
		t.addLamp(gmath.NewVec3(p.X, 4.7, p.Z))
	}
	core.LogInfo("town: %d instances, %d lamps", len(t.instances), len(t.lights))
	return t, nil
}

func (t *town) mesh(a *storage.SurfaceArrays, format storage.ArrayFormat) (ecs.Entity, error) {
	m := t.st.MeshCreate()
	if _, err := t.st.MeshAddSurfaceFromArrays(m, storage.PrimitiveTriangles, format, a, nil); err != nil {
		return ecs.Null, fmt.Errorf("town mesh: %w", err)
	}
	return m, nil
}

func (t *town) material(albedo core.Color, metallic, roughness float32) ecs.Entity {
	m := t.st.MaterialCreate()
	t.st.MaterialSetShader(m, t.pbr)
	t.st.MaterialSetParam(m, "albedo", albedo)
	t.st.MaterialSetParam(m, "metallic", metallic)
	t.st.MaterialSetParam(m, "roughness", roughness)
	return m
}

func (t *town) place(mesh, mat ecs.Entity, xf gmath.Mat4) error {
	in := t.st.InstanceCreate()
	if err := t.st.InstanceSetBase(in, mesh); err != nil {
		return err
	}
	if err := t.st.InstanceSetSurfaceMaterial(in, 0, mat); err != nil {
		return err
	}
	t.st.InstanceSetTransform(in, xf)
	t.instances = append(t.instances, in)
	return nil
}

func (t *town) add(mesh, mat ecs.Entity, pos, size gmath.Vec3) error {
	return t.place(mesh, mat, gmath.Mat4Scale(size).Mul(gmath.Mat4Translation(pos)))
}

func (t *town) addLamp(pos gmath.Vec3) {
	l := t.st.LightCreate(storage.LightOmni)
	t.st.LightSetColor(l, core.Color{R: 1.0, G: 0.78, B: 0.35, A: 1})
	t.st.LightSetParam(l, storage.LightParamEnergy, 3)
	t.st.LightSetParam(l, storage.LightParamRange, 14)
	li := t.st.LightInstanceCreate(l)
	t.st.LightInstanceSetTransform(li, gmath.Mat4Translation(pos))
	t.lights = append(t.lights, li)
}
