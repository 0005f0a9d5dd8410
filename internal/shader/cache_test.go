package shader

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/glapi/glfake"
)

func TestCacheRoundTrip(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Load(7)
	assert.ErrorIs(t, err, os.ErrNotExist)

	c.Store(7, 0x1234, []byte("program"))
	c.Flush()
	format, data, err := c.Load(7)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), format)
	assert.Equal(t, []byte("program"), data)
	assert.FileExists(t, c.Path(7))
	assert.Equal(t, "0000000000000007.bin", c.Path(7)[len(c.Dir())+1:])

	c.Remove(7)
	assert.NoFileExists(t, c.Path(7))
}

func TestCacheCorruptEntryRemoved(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	entry := encodeEntry(1, []byte("abcdef"))
	require.NoError(t, os.WriteFile(c.Path(9), entry[:len(entry)-2], 0o644))
	_, _, err = c.Load(9)
	assert.ErrorIs(t, err, ErrCacheCorrupt)
	assert.NoFileExists(t, c.Path(9))

	require.NoError(t, os.WriteFile(c.Path(10), []byte{1, 2, 3}, 0o644))
	_, _, err = c.Load(10)
	assert.ErrorIs(t, err, ErrCacheCorrupt)
}

func cachedDevice() *glfake.Device {
	dev := glfake.New()
	dev.Extensions = []string{"GL_ARB_get_program_binary"}
	return dev
}

func TestManagerLoadsCachedBinary(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Mode: CompileAsyncCache, CacheDir: dir}

	first := cachedDevice()
	m := testManager(t, first, opts)
	require.NotNil(t, m.Cache())
	s := m.NewShader(testSource())
	s.SetConditional(SceneUseShadow, true)
	_, err := s.Bind()
	require.NoError(t, err)
	v := s.Active()
	assert.False(t, v.FromCache())
	assert.True(t, first.ProgramState(v.Program()).Retrievable)
	m.Cache().Flush()
	assert.FileExists(t, m.Cache().Path(v.hash))

	second := cachedDevice()
	m2 := testManager(t, second, opts)
	s2 := m2.NewShader(testSource())
	s2.SetConditional(SceneUseShadow, true)
	ready, err := s2.Bind()
	require.NoError(t, err)
	assert.True(t, ready)
	v2 := s2.Active()
	assert.True(t, v2.FromCache())
	assert.Equal(t, v.hash, v2.hash)
	prog := second.ProgramState(v2.Program())
	assert.True(t, prog.FromBinary)
	assert.True(t, prog.HasDefine("USE_SHADOW"))
	assert.Equal(t, []float32{5}, second.Uniform(v2.Program(), "depth_buffer"))
	assert.Equal(t, 0, second.Live("shader"), "nothing was compiled")
}

func TestManagerRejectedBinaryRecompiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Mode: CompileAsyncCache, CacheDir: dir}

	m := testManager(t, cachedDevice(), opts)
	_, err := m.NewShader(testSource()).Bind()
	require.NoError(t, err)
	m.Cache().Flush()

	dev := cachedDevice()
	dev.RejectBinary = true
	m2 := testManager(t, dev, opts)
	s := m2.NewShader(testSource())
	ready, err := s.Bind()
	require.NoError(t, err)
	assert.True(t, ready)
	assert.False(t, s.Active().FromCache())
	assert.Equal(t, 1, dev.Live("program"), "the rejected program is deleted")
}

func TestManagerCacheKeyedByDriver(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Mode: CompileAsyncCache, CacheDir: dir}

	m := testManager(t, cachedDevice(), opts)
	_, err := m.NewShader(testSource()).Bind()
	require.NoError(t, err)
	m.Cache().Flush()

	other := cachedDevice()
	other.Renderer = "another gpu"
	m2 := testManager(t, other, opts)
	s := m2.NewShader(testSource())
	_, err = s.Bind()
	require.NoError(t, err)
	assert.False(t, s.Active().FromCache())
}

func TestManagerCacheNeedsBinaryExtension(t *testing.T) {
	m := testManager(t, glfake.New(), Options{Mode: CompileAsyncCache, CacheDir: t.TempDir()})
	assert.Nil(t, m.Cache())
}
