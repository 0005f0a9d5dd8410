package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/ecs"
	"gles3render/internal/glapi"
	gmath "gles3render/math"
)

func newParticles(t *testing.T, s *Storage, amount int) (ecs.Entity, *Particles) {
	t.Helper()
	e := s.ParticlesCreate()
	require.NoError(t, s.ParticlesSetAmount(e, amount))
	return e, ecs.Get[Particles](s.Registry(), e)
}

func feedbackDraws(env testEnv) int {
	n := 0
	for _, d := range env.dev.Draws() {
		if d.Feedback && d.Mode == glapi.POINTS {
			n++
		}
	}
	return n
}

func TestParticlesAmount(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	buffers := env.dev.Live("buffer")
	mem := s.Info().VertexMem

	e, p := newParticles(t, s, 10)
	assert.Equal(t, mem+10*ParticleStride*2, s.Info().VertexMem)
	assert.Equal(t, buffers+2, env.dev.Live("buffer"))
	assert.Len(t, env.dev.BufferContents(p.Buffer()), 10*ParticleStride)

	vao := env.dev.VertexArrayState(p.vaos.At(1))
	for a := uint32(0); a < 6; a++ {
		attr := vao.Attribs[a]
		require.NotNil(t, attr, "attribute %d", a)
		assert.Equal(t, int32(ParticleStride), attr.Stride)
		assert.Equal(t, int(a)*16, attr.Offset)
		assert.Equal(t, p.buffers.At(1), attr.Buffer)
	}

	assert.ErrorIs(t, s.ParticlesSetAmount(e, -1), ErrInvalidArgument)
	require.NoError(t, s.ParticlesSetAmount(e, 0))
	assert.Zero(t, p.Buffer())
	assert.Equal(t, buffers, env.dev.Live("buffer"))
	assert.Equal(t, mem, s.Info().VertexMem)

	require.NoError(t, s.ParticlesSetAmount(e, 4))
	require.True(t, s.Free(e))
	assert.Equal(t, mem, s.Info().VertexMem)
}

func TestParticlesPhase(t *testing.T) {
	p := &Particles{Lifetime: 1, Emitting: true, OneShot: true, Phase: 0.75}

	p.advancePhase(0.5)
	assert.Equal(t, float32(0.75), p.PrevPhase)
	assert.Equal(t, float32(0.25), p.Phase)
	assert.Equal(t, uint64(1), p.Cycle)
	assert.False(t, p.Emitting, "one shot stops after a cycle")

	p.advancePhase(0.5)
	assert.Equal(t, float32(0.75), p.Phase)
	assert.Equal(t, uint64(1), p.Cycle)
}

func TestParticlesSimulationLifecycle(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e, p := newParticles(t, s, 4)
	assert.True(t, s.ParticlesIsInactive(e))

	s.UpdateParticles(0.1)
	assert.Zero(t, feedbackDraws(env), "stopped systems are not simulated")

	s.ParticlesSetEmitting(e, true)
	assert.False(t, s.ParticlesIsInactive(e))
	first := p.Buffer()
	s.UpdateParticles(0.25)
	assert.Equal(t, 1, feedbackDraws(env))
	assert.NotEqual(t, first, p.Buffer(), "buffers swap after a step")
	assert.Equal(t, float32(0.25), p.Phase)

	s.ParticlesRestart(e)
	s.UpdateParticles(0.5)
	assert.Equal(t, float32(0.5), p.Phase, "restart resets the phase before stepping")

	s.ParticlesSetEmitting(e, false)
	s.UpdateParticles(0.5)
	assert.False(t, s.ParticlesIsInactive(e), "particles still alive")
	s.UpdateParticles(0.8)
	assert.True(t, s.ParticlesIsInactive(e))

	env.dev.ResetRecording()
	s.UpdateParticles(0.5)
	assert.Zero(t, feedbackDraws(env))
}

func TestParticlesFixedRateAndPreprocess(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e, _ := newParticles(t, s, 2)
	s.ParticlesSetFixedFPS(e, 4)
	s.ParticlesSetPreProcessTime(e, 1)
	s.ParticlesSetEmitting(e, true)

	s.UpdateParticles(0)
	assert.Equal(t, 4, feedbackDraws(env), "one second preprocessed at 4 fps")

	env.dev.ResetRecording()
	s.UpdateParticles(0)
	assert.Zero(t, feedbackDraws(env), "preprocess runs once")

	s.UpdateParticles(0.5)
	assert.Equal(t, 2, feedbackDraws(env))
}

func TestParticlesSettersClamp(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e, p := newParticles(t, s, 1)

	s.ParticlesSetExplosivenessRatio(e, 2)
	s.ParticlesSetRandomnessRatio(e, -1)
	s.ParticlesSetLifetime(e, 0)
	s.ParticlesSetFixedFPS(e, -3)
	assert.Equal(t, float32(1), p.Explosiveness)
	assert.Zero(t, p.Randomness)
	assert.Equal(t, float32(0.001), p.Lifetime)
	assert.Zero(t, p.FixedFPS)
}

func TestParticlesDrawPasses(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	e, _ := newParticles(t, s, 1)
	mesh := s.MeshCreate()
	inst := s.InstanceCreate()
	require.NoError(t, s.InstanceSetBase(inst, e))
	assert.Equal(t, InstanceParticles, s.Instance(inst).BaseType)

	s.ParticlesSetDrawPasses(e, 2)
	s.ParticlesSetDrawPassMesh(e, 1, mesh)
	assert.Equal(t, mesh, s.ParticlesGetDrawPassMesh(e, 1))
	assert.True(t, s.ParticlesGetDrawPassMesh(e, 0).IsNull())
	assert.True(t, s.ParticlesGetDrawPassMesh(e, 2).IsNull())
	s.ParticlesSetDrawPassMesh(e, 5, mesh)

	s.ParticlesSetDrawPasses(e, 1)
	assert.True(t, s.ParticlesGetDrawPassMesh(e, 1).IsNull())

	box := gmath.AABB{Position: gmath.NewVec3(-1, -1, -1), Size: gmath.NewVec3(2, 2, 2)}
	s.ParticlesSetCustomAABB(e, box)
	assert.Equal(t, box, s.ParticlesGetAABB(e))
	assert.Equal(t, box, s.InstanceGetAABB(inst))
}

func TestBindParticlesInstances(t *testing.T) {
	env := newTestStorage(t, nil)
	s := env.s
	_, p := newParticles(t, s, 3)
	vao := env.dev.GenVertexArrays(1)[0]
	env.dev.BindVertexArray(vao)

	s.BindParticlesInstances(p)
	state := env.dev.VertexArrayState(vao)
	for i, off := range []int{48, 64, 80} {
		a := state.Attribs[uint32(InstanceXformLocation+i)]
		require.NotNil(t, a)
		assert.Equal(t, off, a.Offset)
		assert.Equal(t, uint32(1), a.Divisor)
		assert.Equal(t, p.Buffer(), a.Buffer)
	}
	assert.Zero(t, state.Attribs[InstanceColorLocation].Offset)
	assert.Equal(t, 32, state.Attribs[InstanceCustomLocation].Offset)
}
