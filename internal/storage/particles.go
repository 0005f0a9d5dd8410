package storage

import (
	"fmt"

	"github.com/chewxy/math32"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	"gles3render/internal/shader"
	gmath "gles3render/math"
)

// ParticlesDrawOrder orders particles within a draw pass.
type ParticlesDrawOrder int

const (
	DrawOrderIndex ParticlesDrawOrder = iota
	DrawOrderLifetime
	DrawOrderViewDepth
)

// Particles is a GPU particle system simulated by transform feedback over
// two ping-pong buffers.
type Particles struct {
	Amount            int
	Emitting          bool
	OneShot           bool
	Lifetime          float32
	PreProcessTime    float32
	Explosiveness     float32
	Randomness        float32
	SpeedScale        float32
	FixedFPS          int
	FractionalDelta   bool
	UseLocalCoords    bool
	DrawOrder         ParticlesDrawOrder
	CustomAABB        gmath.AABB
	EmissionTransform gmath.Mat4
	ProcessMaterial   ecs.Entity
	DrawPasses        []ecs.Entity

	Phase       float32
	PrevPhase   float32
	Cycle       uint64
	Inactive    bool
	InactiveSec float32

	restart       bool
	preprocessed  bool
	frameSec      float32
	buffers       glapi.Buffer
	vaos          glapi.VertexArray
	current       int
	simulatedTime float32
	instances     instanceSet
}

// Buffer returns the GL name of the buffer holding the latest state.
func (p *Particles) Buffer() uint32 {
	if !p.buffers.Valid() {
		return 0
	}
	return p.buffers.At(p.current)
}

// ParticlesCreate makes a stopped particle system.
func (s *Storage) ParticlesCreate() ecs.Entity {
	e, _ := create(s, Particles{
		Lifetime:          1,
		SpeedScale:        1,
		FractionalDelta:   true,
		UseLocalCoords:    true,
		Inactive:          true,
		ProcessMaterial:   ecs.Null,
		EmissionTransform: gmath.Mat4Identity(),
		CustomAABB:        gmath.AABB{Position: gmath.Vec3{X: -4, Y: -4, Z: -4}, Size: gmath.Vec3{X: 8, Y: 8, Z: 8}},
		instances:         instanceSet{},
	})
	return e
}

func (s *Storage) destroyParticles(e ecs.Entity, p *Particles) {
	s.activeParticles.Unmark(e)
	s.info.VertexMem -= p.Amount * ParticleStride * p.buffers.Len()
	p.vaos.Release()
	p.buffers.Release()
	s.unlinkBase(e, p.instances)
}

// ParticlesSetAmount resizes both buffers and restarts the system.
func (s *Storage) ParticlesSetAmount(e ecs.Entity, amount int) error {
	p := get[Particles](s, e, "particles set amount")
	if p == nil {
		return ErrInvalidHandle
	}
	if amount < 0 {
		return fmt.Errorf("particles set amount %d: %w", amount, ErrInvalidArgument)
	}
	s.info.VertexMem -= p.Amount * ParticleStride * p.buffers.Len()
	p.vaos.Release()
	p.buffers.Release()
	p.Amount = amount
	p.current = 0
	if amount == 0 {
		return nil
	}
	bufs, err := glapi.NewBuffers(s.dev, 2)
	if err != nil {
		core.LogError("particles set amount %d: %v", amount, err)
		p.Amount = 0
		return fmt.Errorf("particles set amount: %w", err)
	}
	vaos, err := glapi.NewVertexArrays(s.dev, 2)
	if err != nil {
		bufs.Release()
		core.LogError("particles set amount %d: %v", amount, err)
		p.Amount = 0
		return fmt.Errorf("particles set amount: %w", err)
	}
	p.buffers, p.vaos = bufs, vaos
	zero := make([]byte, amount*ParticleStride)
	for i := 0; i < 2; i++ {
		s.dev.BindVertexArray(vaos.At(i))
		s.dev.BindBuffer(glapi.ARRAY_BUFFER, bufs.At(i))
		s.dev.BufferData(glapi.ARRAY_BUFFER, len(zero), zero, glapi.STREAM_DRAW)
		for a := uint32(0); a < 6; a++ {
			s.dev.EnableVertexAttribArray(a)
			s.dev.VertexAttribPointer(a, 4, glapi.FLOAT, false, ParticleStride, int(a)*16)
		}
	}
	s.dev.BindVertexArray(0)
	s.dev.BindBuffer(glapi.ARRAY_BUFFER, 0)
	s.info.VertexMem += amount * ParticleStride * 2
	p.restart = true
	s.markInstances(p.instances)
	return nil
}

func (s *Storage) particlesOf(e ecs.Entity, op string) *Particles {
	return get[Particles](s, e, op)
}

// ParticlesSetEmitting starts or stops emission. Starting wakes an
// inactive system.
func (s *Storage) ParticlesSetEmitting(e ecs.Entity, on bool) {
	p := s.particlesOf(e, "particles set emitting")
	if p == nil {
		return
	}
	p.Emitting = on
	if on {
		p.Inactive = false
		p.InactiveSec = 0
		s.activeParticles.Mark(e)
	}
}

// ParticlesIsInactive reports whether the system stopped and every
// particle has died.
func (s *Storage) ParticlesIsInactive(e ecs.Entity) bool {
	if p := s.particlesOf(e, "particles is inactive"); p != nil {
		return p.Inactive
	}
	return true
}

// ParticlesRestart clears every particle on the next process step.
func (s *Storage) ParticlesRestart(e ecs.Entity) {
	if p := s.particlesOf(e, "particles restart"); p != nil {
		p.restart = true
		p.preprocessed = false
	}
}

// ParticlesSetLifetime sets the particle lifetime in seconds.
func (s *Storage) ParticlesSetLifetime(e ecs.Entity, sec float32) {
	if p := s.particlesOf(e, "particles set lifetime"); p != nil {
		p.Lifetime = max(sec, 0.001)
	}
}

// ParticlesSetOneShot makes the system stop after one cycle.
func (s *Storage) ParticlesSetOneShot(e ecs.Entity, on bool) {
	if p := s.particlesOf(e, "particles set one shot"); p != nil {
		p.OneShot = on
	}
}

// ParticlesSetPreProcessTime sets how much time is simulated at startup.
func (s *Storage) ParticlesSetPreProcessTime(e ecs.Entity, sec float32) {
	if p := s.particlesOf(e, "particles set pre process time"); p != nil {
		p.PreProcessTime = sec
	}
}

// ParticlesSetExplosivenessRatio sets how many particles spawn at once.
func (s *Storage) ParticlesSetExplosivenessRatio(e ecs.Entity, r float32) {
	if p := s.particlesOf(e, "particles set explosiveness ratio"); p != nil {
		p.Explosiveness = gmath.Clamp(r, 0, 1)
	}
}

// ParticlesSetRandomnessRatio sets the spawn time jitter.
func (s *Storage) ParticlesSetRandomnessRatio(e ecs.Entity, r float32) {
	if p := s.particlesOf(e, "particles set randomness ratio"); p != nil {
		p.Randomness = gmath.Clamp(r, 0, 1)
	}
}

// ParticlesSetCustomAABB sets the culling bounds.
func (s *Storage) ParticlesSetCustomAABB(e ecs.Entity, box gmath.AABB) {
	if p := s.particlesOf(e, "particles set custom aabb"); p != nil {
		p.CustomAABB = box
		s.markInstances(p.instances)
	}
}

// ParticlesGetAABB returns the culling bounds.
func (s *Storage) ParticlesGetAABB(e ecs.Entity) gmath.AABB {
	if p := s.particlesOf(e, "particles get aabb"); p != nil {
		return p.CustomAABB
	}
	return gmath.AABB{}
}

// ParticlesSetSpeedScale scales simulated time.
func (s *Storage) ParticlesSetSpeedScale(e ecs.Entity, scale float32) {
	if p := s.particlesOf(e, "particles set speed scale"); p != nil {
		p.SpeedScale = scale
	}
}

// ParticlesSetUseLocalCoordinates keeps particles in emitter space.
func (s *Storage) ParticlesSetUseLocalCoordinates(e ecs.Entity, on bool) {
	if p := s.particlesOf(e, "particles set use local coordinates"); p != nil {
		p.UseLocalCoords = on
	}
}

// ParticlesSetFixedFPS steps the simulation at a fixed rate; 0 steps once
// per frame.
func (s *Storage) ParticlesSetFixedFPS(e ecs.Entity, fps int) {
	if p := s.particlesOf(e, "particles set fixed fps"); p != nil {
		p.FixedFPS = max(fps, 0)
	}
}

// ParticlesSetFractionalDelta spawns particles with the sub-step remainder.
func (s *Storage) ParticlesSetFractionalDelta(e ecs.Entity, on bool) {
	if p := s.particlesOf(e, "particles set fractional delta"); p != nil {
		p.FractionalDelta = on
	}
}

// ParticlesSetDrawOrder sets the particle order within a pass.
func (s *Storage) ParticlesSetDrawOrder(e ecs.Entity, o ParticlesDrawOrder) {
	if p := s.particlesOf(e, "particles set draw order"); p != nil {
		p.DrawOrder = o
	}
}

// ParticlesSetEmissionTransform sets the emitter transform fed to new
// particles.
func (s *Storage) ParticlesSetEmissionTransform(e ecs.Entity, xf gmath.Mat4) {
	if p := s.particlesOf(e, "particles set emission transform"); p != nil {
		p.EmissionTransform = xf
	}
}

// ParticlesSetProcessMaterial sets the particles-mode material simulating
// the system.
func (s *Storage) ParticlesSetProcessMaterial(e, material ecs.Entity) {
	if p := s.particlesOf(e, "particles set process material"); p != nil {
		p.ProcessMaterial = material
	}
}

// ParticlesSetDrawPasses sets the number of mesh passes.
func (s *Storage) ParticlesSetDrawPasses(e ecs.Entity, n int) {
	p := s.particlesOf(e, "particles set draw passes")
	if p == nil || n < 0 {
		return
	}
	for len(p.DrawPasses) < n {
		p.DrawPasses = append(p.DrawPasses, ecs.Null)
	}
	p.DrawPasses = p.DrawPasses[:n]
	s.markInstances(p.instances)
}

// ParticlesSetDrawPassMesh sets the mesh drawn by pass i.
func (s *Storage) ParticlesSetDrawPassMesh(e ecs.Entity, i int, mesh ecs.Entity) {
	p := s.particlesOf(e, "particles set draw pass mesh")
	if p == nil {
		return
	}
	if i < 0 || i >= len(p.DrawPasses) {
		core.LogError("particles set draw pass mesh: pass %d of %d: %v", i, len(p.DrawPasses), ErrInvalidArgument)
		return
	}
	p.DrawPasses[i] = mesh
	s.markInstances(p.instances)
}

// ParticlesGetDrawPassMesh returns the mesh of pass i.
func (s *Storage) ParticlesGetDrawPassMesh(e ecs.Entity, i int) ecs.Entity {
	p := s.particlesOf(e, "particles get draw pass mesh")
	if p == nil || i < 0 || i >= len(p.DrawPasses) {
		return ecs.Null
	}
	return p.DrawPasses[i]
}

// UpdateParticles advances every active system by dt seconds.
func (s *Storage) UpdateParticles(dt float32) {
	var active []ecs.Entity
	s.activeParticles.Drain(func(e ecs.Entity) { active = append(active, e) })
	for _, e := range active {
		p := ecs.Get[Particles](s.reg, e)
		if p == nil {
			continue
		}
		if !p.Emitting {
			p.InactiveSec += dt
			if p.InactiveSec > p.Lifetime*1.2 {
				p.Inactive = true
				continue
			}
		}
		s.stepParticles(e, p, dt)
		s.activeParticles.Mark(e)
	}
}

func (s *Storage) stepParticles(e ecs.Entity, p *Particles, dt float32) {
	if p.Amount == 0 || !p.buffers.Valid() {
		return
	}
	if p.restart {
		zero := make([]byte, p.Amount*ParticleStride)
		for i := 0; i < 2; i++ {
			s.dev.BindBuffer(glapi.ARRAY_BUFFER, p.buffers.At(i))
			s.dev.BufferSubData(glapi.ARRAY_BUFFER, 0, zero)
		}
		s.dev.BindBuffer(glapi.ARRAY_BUFFER, 0)
		p.Phase, p.PrevPhase, p.Cycle = 0, 0, 0
		p.restart = false
	}

	if !p.preprocessed && p.PreProcessTime > 0 {
		p.preprocessed = true
		fps := float32(p.FixedFPS)
		if fps == 0 {
			fps = 30
		}
		step := 1 / fps
		for t := p.PreProcessTime; t > 0; t -= step {
			s.processParticles(p, step)
		}
	}
	p.preprocessed = true

	dt *= p.SpeedScale
	if p.FixedFPS > 0 {
		step := 1 / float32(p.FixedFPS)
		p.frameSec += dt
		for p.frameSec >= step {
			p.frameSec -= step
			s.processParticles(p, step)
		}
		return
	}
	s.processParticles(p, dt)
}

// advancePhase moves the emission phase by dt, counting a cycle each time
// it wraps.
func (p *Particles) advancePhase(dt float32) {
	p.PrevPhase = p.Phase
	next := p.Phase + dt/p.Lifetime
	whole := math32.Floor(next)
	p.Phase = next - whole
	if whole > 0 {
		p.Cycle++
		if p.OneShot {
			p.Emitting = false
		}
	}
}

func (s *Storage) processParticles(p *Particles, dt float32) {
	p.advancePhase(dt)
	p.simulatedTime += dt

	sh := s.particles
	code := uint32(0)
	var mat *Material
	if pm := ecs.Get[Material](s.reg, p.ProcessMaterial); pm != nil {
		if psh := ecs.Get[Shader](s.reg, pm.Shader); psh != nil && psh.Valid && psh.Mode == shader.ModeParticles {
			_, code = psh.Program()
			mat = pm
		}
	}
	sh.SetCustomShader(code)
	sh.SetConditional(shader.ParticlesUseFractionalDelta, p.FractionalDelta)
	if _, err := sh.Bind(); err != nil {
		core.LogOnce("particles/bind", "particles process: %v", err)
		return
	}
	if mat != nil {
		if mat.ubo.Valid() {
			s.dev.BindBufferBase(glapi.UNIFORM_BUFFER, sh.Source().MaterialBinding, mat.ubo.ID())
		}
		for i, t := range mat.Textures {
			s.BindTexture(i, t, mat.TextureHints[i], mat.TextureKinds[i])
		}
	}
	sh.Uniform1f(ParticlesTotal, float32(p.Amount))
	sh.Uniform1f(ParticlesDelta, dt)
	sh.Uniform1f(ParticlesTime, p.simulatedTime)
	sh.Uniform1f(ParticlesSystemPhase, p.Phase)
	sh.Uniform1f(ParticlesPrevSystemPhase, p.PrevPhase)
	sh.Uniform1f(ParticlesLifetime, p.Lifetime)
	sh.Uniform1f(ParticlesExplosiveness, p.Explosiveness)
	sh.Uniform1f(ParticlesRandomness, p.Randomness)
	emitting := int32(0)
	if p.Emitting {
		emitting = 1
	}
	sh.Uniform1i(ParticlesEmitting, emitting)
	sh.UniformMat4(ParticlesEmissionTransform, p.EmissionTransform.Flat())
	sh.Uniform1i(ParticlesCycle, int32(p.Cycle))

	d := s.dev
	next := 1 - p.current
	d.Enable(glapi.RASTERIZER_DISCARD)
	d.BindVertexArray(p.vaos.At(p.current))
	d.BindBufferBase(glapi.TRANSFORM_FEEDBACK_BUFFER, 0, p.buffers.At(next))
	d.BeginTransformFeedback(glapi.POINTS)
	d.DrawArrays(glapi.POINTS, 0, int32(p.Amount))
	d.EndTransformFeedback()
	d.BindBufferBase(glapi.TRANSFORM_FEEDBACK_BUFFER, 0, 0)
	d.BindVertexArray(0)
	d.Disable(glapi.RASTERIZER_DISCARD)
	p.current = next
}

// BindParticlesInstances feeds the particle buffer to the bound instanced
// VAO: transform rows at 8 to 10, color at 11 and custom data at 12.
func (s *Storage) BindParticlesInstances(p *Particles) {
	d := s.dev
	d.BindBuffer(glapi.ARRAY_BUFFER, p.Buffer())
	attr := func(loc uint32, offset int) {
		d.EnableVertexAttribArray(loc)
		d.VertexAttribPointer(loc, 4, glapi.FLOAT, false, ParticleStride, offset)
		d.VertexAttribDivisor(loc, 1)
	}
	attr(InstanceXformLocation, 48)
	attr(InstanceXformLocation+1, 64)
	attr(InstanceXformLocation+2, 80)
	attr(InstanceColorLocation, 0)
	attr(InstanceCustomLocation, 32)
}
