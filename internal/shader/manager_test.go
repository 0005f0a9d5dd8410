package shader

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/glapi"
	"gles3render/internal/glapi/glfake"
)

const testVertex = `
layout(location = 0) in vec3 vertex_attrib;
uniform mat4 world_transform;
/* MATERIAL UNIFORMS */
/* VERTEX GLOBALS */
void main() {
	vec3 VERTEX = vertex_attrib;
/* VERTEX CODE */
	gl_Position = world_transform * vec4(VERTEX, 1.0);
}
`

const testFragment = `
uniform sampler2D depth_buffer;
/* MATERIAL UNIFORMS */
/* FRAGMENT GLOBALS */
out vec4 frag_color;
void main() {
	vec3 ALBEDO = vec3(1.0);
	float ALPHA = 1.0;
/* FRAGMENT CODE */
	frag_color = vec4(ALBEDO, ALPHA);
}
`

func testSource() *Source {
	src := NewSceneSource("test", testVertex, testFragment)
	src.Uniforms = []string{"world_transform", "not_declared"}
	src.TextureUnits = map[string]int{"depth_buffer": 5}
	src.UBOBindings = map[string]uint32{"SceneData": 0}
	src.MaterialBinding = 3
	return src
}

func testManager(t *testing.T, dev *glfake.Device, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(dev, glapi.QueryFeatures(dev), opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func materialCode(t *testing.T) CustomCode {
	t.Helper()
	p, err := Parse(testMaterial)
	require.NoError(t, err)
	return Generate(p)
}

func TestBindBuiltinVariant(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{})
	s := m.NewShader(testSource())
	s.SetConditional(SceneUseShadow, true)

	ready, err := s.Bind()
	require.NoError(t, err)
	assert.True(t, ready)

	v := s.Active()
	require.NotNil(t, v)
	prog := dev.ProgramState(v.Program())
	require.NotNil(t, prog)
	assert.True(t, prog.HasDefine("USE_SHADOW"))
	assert.True(t, prog.HasDefine("VERTEX_SHADER"))
	assert.False(t, prog.HasDefine("USE_INSTANCING"))
	assert.GreaterOrEqual(t, s.Loc(0), int32(0))
	assert.Equal(t, int32(-1), s.Loc(1))
	assert.Equal(t, []float32{5}, dev.Uniform(v.Program(), "depth_buffer"))
	assert.Equal(t, 0, dev.Live("shader"), "stage objects are released after link")

	// Same selection reuses the variant.
	_, err = s.Bind()
	require.NoError(t, err)
	assert.Equal(t, 1, s.VariantCount())

	s.SetConditional(SceneUseShadow, false)
	_, err = s.Bind()
	require.NoError(t, err)
	assert.Equal(t, 2, s.VariantCount())
}

func TestUniformCache(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{})
	s := m.NewShader(testSource())
	_, err := s.Bind()
	require.NoError(t, err)

	s.Uniform4f(0, 1, 2, 3, 4)
	assert.Equal(t, []float32{1, 2, 3, 4}, dev.Uniform(s.Active().Program(), "world_transform"))
	s.Uniform1f(1, 9)
	s.UniformMat4(1, [16]float32{})
}

func TestCustomCodeMaterialBlock(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{})
	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.SetCustomCode(id, materialCode(t))
	s.SetCustomShader(id)

	ready, err := s.Bind()
	require.NoError(t, err)
	assert.True(t, ready)

	prog := dev.ProgramState(s.Active().Program())
	assert.True(t, prog.HasDefine("USE_ALPHA"))
	assert.Contains(t, prog.Fragment, "ALPHA = twice(roughness);")
	assert.Contains(t, prog.Vertex, "out vec3 world_pos;")
	assert.Equal(t, uint32(3), prog.Bindings[0], "material block bound to its binding point")
	assert.Equal(t, []float32{0}, dev.Uniform(s.Active().Program(), "albedo_tex"))
}

func TestFailedVariantFallsBackToDepth(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{})
	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.SetCustomCode(id, CustomCode{Fragment: "#error broken\n"})
	s.SetCustomShader(id)
	s.SetConditional(SceneUseShadow, true)
	s.SetConditional(SceneUseInstancing, true)

	ready, err := s.Bind()
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, StateFailed, s.Variant().State)

	fallback := s.Active()
	require.NotNil(t, fallback)
	assert.Equal(t, uint32(0), fallback.Key.Code)
	prog := dev.ProgramState(fallback.Program())
	assert.True(t, prog.HasDefine("RENDER_DEPTH"))
	assert.True(t, prog.HasDefine("USE_INSTANCING"))
	assert.False(t, prog.HasDefine("USE_SHADOW"))
	assert.Equal(t, 1, dev.Live("program"), "the failed program is released")
}

func TestFailedVariantWithoutFallback(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{})
	src := testSource()
	src.FallbackBit = -1
	s := m.NewShader(src)
	id := s.AddCustomCode()
	s.SetCustomCode(id, CustomCode{Vertex: "#error broken\n"})
	s.SetCustomShader(id)

	_, err := s.Bind()
	assert.ErrorIs(t, err, ErrCompile)
	assert.Nil(t, s.Active())
}

func TestLinkFailure(t *testing.T) {
	dev := glfake.New()
	dev.FailLink = func(vertex, fragment string) bool { return true }
	m := testManager(t, dev, Options{})
	s := m.NewShader(testSource())
	_, err := s.Bind()
	assert.ErrorIs(t, err, ErrCompile)
	assert.Equal(t, 0, dev.Live("program"))
	assert.Equal(t, 0, dev.Live("shader"))
}

func TestSetCustomCodeReplacesVariants(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{})
	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.SetCustomCode(id, CustomCode{Defines: "#define FIRST\n"})
	s.SetCustomShader(id)
	_, err := s.Bind()
	require.NoError(t, err)
	old := s.Active().Program()
	assert.Equal(t, uint32(1), s.CodeVersion(id))

	s.SetCustomCode(id, CustomCode{Defines: "#define SECOND\n"})
	assert.Equal(t, uint32(2), s.CodeVersion(id))
	assert.False(t, dev.IsLive("program", old))
	assert.Nil(t, s.Active())

	ready, err := s.Bind()
	require.NoError(t, err)
	assert.True(t, ready)
	prog := dev.ProgramState(s.Active().Program())
	assert.True(t, prog.HasDefine("SECOND"))
	assert.False(t, prog.HasDefine("FIRST"))

	s.RemoveCustomCode(id)
	assert.Equal(t, uint32(0), s.CustomShader())
	assert.Equal(t, 0, dev.Live("program"))
}

func TestSetCustomShaderUnknownSelectsTemplate(t *testing.T) {
	m := testManager(t, glfake.New(), Options{})
	s := m.NewShader(testSource())
	s.SetCustomShader(42)
	assert.Equal(t, uint32(0), s.CustomShader())
}

func TestAsyncParallelCompile(t *testing.T) {
	dev := glfake.New()
	dev.ParallelCompile = true
	dev.CompletionPolls = 2
	m := testManager(t, dev, Options{Mode: CompileAsync, MaxSimultaneous: 1})
	s := m.NewShader(testSource())
	a := s.AddCustomCode()
	s.SetCustomCode(a, CustomCode{Defines: "#define A\n"})
	b := s.AddCustomCode()
	s.SetCustomCode(b, CustomCode{Defines: "#define B\n"})

	assert.Equal(t, StatePending, s.Warm(a, 0))
	assert.Equal(t, StatePending, s.Warm(b, 0))
	assert.Equal(t, 2, m.Pending())
	assert.Len(t, m.inflight, 1, "compiles are capped")

	s.SetCustomShader(a)
	ready, err := s.Bind()
	require.NoError(t, err)
	assert.False(t, ready, "the depth fallback is bound while compiling")
	assert.True(t, dev.ProgramState(s.Active().Program()).HasDefine("RENDER_DEPTH"))

	assert.Equal(t, 0, m.Poll())
	require.NoError(t, m.WaitIdle(time.Second))
	assert.Equal(t, 0, m.Pending())

	ready, err = s.Bind()
	require.NoError(t, err)
	assert.True(t, ready)
	assert.True(t, dev.ProgramState(s.Active().Program()).HasDefine("A"))
	assert.Equal(t, 0, dev.Live("shader"))
}

func TestAsyncDropInflight(t *testing.T) {
	dev := glfake.New()
	dev.ParallelCompile = true
	dev.CompletionPolls = 1000
	m := testManager(t, dev, Options{Mode: CompileAsync})
	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.SetCustomCode(id, CustomCode{Defines: "#define A\n"})
	assert.Equal(t, StatePending, s.Warm(id, 0))
	assert.Equal(t, 2, dev.Live("shader"))

	s.SetCustomCode(id, CustomCode{Defines: "#define B\n"})
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 0, dev.Live("shader"))
	assert.Equal(t, 0, dev.Live("program"))
}

type countingContext struct {
	made, released atomic.Int32
}

func (c *countingContext) MakeCurrent() { c.made.Add(1) }
func (c *countingContext) Release()     { c.released.Add(1) }

func TestAsyncWorkerCompile(t *testing.T) {
	dev := glfake.New()
	ctx := &countingContext{}
	m, err := NewManager(dev, glapi.QueryFeatures(dev), Options{Mode: CompileAsync, MaxSimultaneous: 2, Shared: ctx})
	require.NoError(t, err)
	require.NotNil(t, m.queue)

	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.SetCustomCode(id, CustomCode{Defines: "#define WORKER\n"})
	s.SetCustomShader(id)

	ready, err := s.Bind()
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, m.WaitIdle(2*time.Second))
	ready, err = s.Bind()
	require.NoError(t, err)
	assert.True(t, ready)
	assert.True(t, dev.ProgramState(s.Active().Program()).HasDefine("WORKER"))

	m.Close()
	assert.Equal(t, int32(1), ctx.made.Load())
	assert.Equal(t, int32(1), ctx.released.Load())
	assert.Equal(t, 0, dev.Live("program"))
}

func TestAsyncWorkerFailure(t *testing.T) {
	dev := glfake.New()
	m := testManager(t, dev, Options{Mode: CompileAsync})
	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.SetCustomCode(id, CustomCode{Fragment: "#error nope\n"})
	assert.Equal(t, StatePending, s.Warm(id, 0))
	require.NoError(t, m.WaitIdle(2*time.Second))
	assert.Equal(t, StateFailed, s.Warm(id, 0))
}

func TestWaitIdleTimeout(t *testing.T) {
	dev := glfake.New()
	dev.ParallelCompile = true
	dev.CompletionPolls = 1 << 30
	m := testManager(t, dev, Options{Mode: CompileAsync})
	s := m.NewShader(testSource())
	id := s.AddCustomCode()
	s.Warm(id, 0)
	assert.ErrorIs(t, m.WaitIdle(20*time.Millisecond), ErrTimeout)
}
