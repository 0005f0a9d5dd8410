// Package storage holds every renderer resource as an ECS component keyed
// by an ecs.Entity: textures, shaders, materials, meshes and their surfaces,
// multimeshes, immediates, skeletons, particles, lights, probes, shadow and
// reflection atlases, render targets, environments, skies and instances.
//
// All methods run on the render thread. Operations on invalid handles log
// once and return a zero result.
package storage

import (
	"errors"
	"fmt"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
)

var (
	// ErrInvalidHandle is reported when an entity does not resolve to the
	// expected component.
	ErrInvalidHandle = errors.New("storage: invalid handle")
	// ErrAtlasFull is returned when no shadow or reflection slot is free.
	ErrAtlasFull = errors.New("storage: atlas full")
	// ErrUnsupportedFormat is returned for pixel formats the driver lacks.
	ErrUnsupportedFormat = errors.New("storage: unsupported format")
	// ErrInvalidArgument is returned for out-of-range sizes and indices.
	ErrInvalidArgument = errors.New("storage: invalid argument")
)

// Sources are the program templates material shaders of each mode are
// spliced into. Canvas may be nil when no 2D output is needed.
type Sources struct {
	Scene  *shader.Source
	Canvas *shader.Source
}

// Info are memory counters kept up to date by the stores.
type Info struct {
	TextureMem int
	VertexMem  int
	Textures   int
	Surfaces   int
}

// Storage owns the entity registry and the GL objects behind it.
type Storage struct {
	dev   glapi.Device
	feat  *glapi.Features
	cfg   Config
	reg   *ecs.Registry
	clock core.TimeSource
	mgr   *shader.Manager

	modes     map[shader.Mode]*shader.Shader
	particles *shader.Shader
	copy      *shader.Shader
	filter    *shader.Shader

	dirtyShaders    *ecs.DirtyQueue
	dirtyMaterials  *ecs.DirtyQueue
	dirtySkeletons  *ecs.DirtyQueue
	dirtyMultimesh  *ecs.DirtyQueue
	dirtyInstances  *ecs.DirtyQueue
	activeParticles *ecs.DirtyQueue
	dirtySkies      *ecs.DirtyQueue

	Defaults        DefaultTextures
	DefaultShader   ecs.Entity
	DefaultMaterial ecs.Entity

	immediate         immediateStream
	quad              quad
	directional       DirectionalShadow
	shadowCubemaps    []ShadowCubemap
	reflectionCubemap []ReflectionCubemap

	scenePass uint64
	frame     uint64
	info      Info
}

// New registers the component pools, compiles the built-in programs and
// creates the default resources. mgr stays owned by the caller.
func New(dev glapi.Device, feat *glapi.Features, cfg Config, mgr *shader.Manager, src Sources, clock core.TimeSource) (*Storage, error) {
	if clock == nil {
		clock = core.NewClock()
	}
	s := &Storage{
		dev:   dev,
		feat:  feat,
		cfg:   cfg,
		reg:   ecs.NewRegistry(),
		clock: clock,
		mgr:   mgr,
		modes: map[shader.Mode]*shader.Shader{},
	}
	s.dirtyShaders = s.reg.NewDirtyQueue()
	s.dirtyMaterials = s.reg.NewDirtyQueue()
	s.dirtySkeletons = s.reg.NewDirtyQueue()
	s.dirtyMultimesh = s.reg.NewDirtyQueue()
	s.dirtyInstances = s.reg.NewDirtyQueue()
	s.activeParticles = s.reg.NewDirtyQueue()
	s.dirtySkies = s.reg.NewDirtyQueue()
	s.register()

	if src.Scene != nil {
		s.modes[shader.ModeSpatial] = mgr.NewShader(src.Scene)
	}
	if src.Canvas != nil {
		s.modes[shader.ModeCanvas] = mgr.NewShader(src.Canvas)
	}
	s.particles = mgr.NewShader(particlesSource())
	s.modes[shader.ModeParticles] = s.particles
	s.copy = mgr.NewShader(copySource())
	s.filter = mgr.NewShader(cubemapFilterSource())

	if err := s.createDefaultTextures(); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := s.immediate.init(dev, cfg.ImmediateBufferSize); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: immediate buffer: %w", err)
	}
	if err := s.quad.init(dev); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: quad: %w", err)
	}
	if err := s.directional.init(dev, cfg.DirectionalShadowSize); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: directional shadow: %w", err)
	}
	if err := s.createShadowCubemaps(); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: shadow cubemaps: %w", err)
	}
	if err := s.createReflectionCubemaps(); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: reflection cubemaps: %w", err)
	}
	if err := s.createDefaultMaterial(); err != nil {
		s.Finalize()
		return nil, fmt.Errorf("storage: %w", err)
	}
	return s, nil
}

// register creates the pools. Later pools are destroyed first when an
// entity carries several components.
func (s *Storage) register() {
	ecs.Register[Texture](s.reg, s.destroyTexture)
	ecs.Register[Shader](s.reg, s.destroyShader)
	ecs.Register[Material](s.reg, s.destroyMaterial)
	ecs.Register[Surface](s.reg, s.destroySurface)
	ecs.Register[Mesh](s.reg, s.destroyMesh)
	ecs.Register[Multimesh](s.reg, s.destroyMultimesh)
	ecs.Register[Immediate](s.reg, s.destroyImmediate)
	ecs.Register[Skeleton](s.reg, s.destroySkeleton)
	ecs.Register[Particles](s.reg, s.destroyParticles)
	ecs.Register[Light](s.reg, s.destroyLight)
	ecs.Register[LightInstance](s.reg, s.destroyLightInstance)
	ecs.Register[ShadowAtlas](s.reg, s.destroyShadowAtlas)
	ecs.Register[ReflectionAtlas](s.reg, s.destroyReflectionAtlas)
	ecs.Register[ReflectionProbe](s.reg, s.destroyReflectionProbe)
	ecs.Register[ReflectionProbeInstance](s.reg, s.destroyReflectionProbeInstance)
	ecs.Register[GIProbe](s.reg, s.destroyGIProbe)
	ecs.Register[GIProbeData](s.reg, s.destroyGIProbeData)
	ecs.Register[LightmapCapture](s.reg, s.destroyLightmapCapture)
	ecs.Register[RenderTarget](s.reg, s.destroyRenderTarget)
	ecs.Register[Environment](s.reg, nil)
	ecs.Register[Sky](s.reg, s.destroySky)
	ecs.Register[Instance](s.reg, s.destroyInstance)
}

// create makes an entity carrying c.
func create[T any](s *Storage, c T) (ecs.Entity, *T) {
	e := s.reg.Create()
	ptr, err := ecs.Emplace(s.reg, e, c)
	if err != nil {
		// Only reachable with an unregistered type.
		panic(err)
	}
	return e, ptr
}

// get resolves e to its T component, logging once when it does not.
func get[T any](s *Storage, e ecs.Entity, op string) *T {
	c := ecs.Get[T](s.reg, e)
	if c == nil {
		core.LogOnce(fmt.Sprintf("%s/%v", op, e), "%s: %v: %v", op, e, ErrInvalidHandle)
	}
	return c
}

// Device returns the GL device the storage issues calls on.
func (s *Storage) Device() glapi.Device { return s.dev }

// Features returns the probed driver capabilities.
func (s *Storage) Features() *glapi.Features { return s.feat }

// Config returns the configuration read at startup.
func (s *Storage) Config() Config { return s.cfg }

// Registry exposes the entity registry to the scene renderer.
func (s *Storage) Registry() *ecs.Registry { return s.reg }

// Clock returns the time source used for atlas aging.
func (s *Storage) Clock() core.TimeSource { return s.clock }

// ShaderManager returns the compile manager.
func (s *Storage) ShaderManager() *shader.Manager { return s.mgr }

// ModeShader returns the program template instance of a shader mode.
func (s *Storage) ModeShader(m shader.Mode) *shader.Shader { return s.modes[m] }

// CopyShader returns the built-in blit program.
func (s *Storage) CopyShader() *shader.Shader { return s.copy }

// CubemapFilterShader returns the built-in radiance filter program.
func (s *Storage) CubemapFilterShader() *shader.Shader { return s.filter }

// Info returns the memory counters.
func (s *Storage) Info() Info { return s.info }

// Owns reports whether e is a live entity of this storage.
func (s *Storage) Owns(e ecs.Entity) bool { return s.reg.Valid(e) }

// Free destroys any resource. Components unlink themselves from the
// entities referencing them.
func (s *Storage) Free(e ecs.Entity) bool {
	if !s.reg.Valid(e) {
		core.LogOnce(fmt.Sprintf("free/%v", e), "free: %v: %v", e, ErrInvalidHandle)
		return false
	}
	if t := ecs.Get[Texture](s.reg, e); t != nil && s.reg.Valid(t.RenderTarget) {
		core.LogError("free: texture %v belongs to render target %v", e, t.RenderTarget)
		return false
	}
	if e == s.DefaultMaterial || e == s.DefaultShader {
		core.LogError("free: %v is a default resource", e)
		return false
	}
	s.reg.Destroy(e)
	return true
}

// BeginFrame advances the frame counter used for reflection slot aging.
func (s *Storage) BeginFrame() uint64 {
	s.frame++
	return s.frame
}

// Frame returns the current frame number.
func (s *Storage) Frame() uint64 { return s.frame }

// BeginScenePass advances the scene pass counter. Light instances marked
// visible during the pass are protected from shadow slot eviction.
func (s *Storage) BeginScenePass() uint64 {
	s.scenePass++
	return s.scenePass
}

// ScenePass returns the current scene pass.
func (s *Storage) ScenePass() uint64 { return s.scenePass }

// UpdateDirty pumps every change queue in dependency order: shaders,
// materials, skeletons, multimeshes, instances and finally skies.
func (s *Storage) UpdateDirty() {
	s.UpdateDirtyShaders()
	s.UpdateDirtyMaterials()
	s.UpdateDirtySkeletons()
	s.UpdateDirtyMultimeshes()
	s.UpdateDirtyInstances()
	s.UpdateDirtySkies()
}

// Finalize destroys every entity and the GL objects the storage owns
// directly. The storage must not be used afterwards.
func (s *Storage) Finalize() {
	s.reg.Clear()
	s.immediate.release()
	s.quad.release()
	s.directional.release()
	for i := range s.shadowCubemaps {
		s.shadowCubemaps[i].release()
	}
	s.shadowCubemaps = nil
	for i := range s.reflectionCubemap {
		s.reflectionCubemap[i].release()
	}
	s.reflectionCubemap = nil
}
