package shader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "water.shader")
	other := filepath.Join(dir, "unwatched.shader")
	require.NoError(t, os.WriteFile(path, []byte("shader_type spatial;"), 0o644))

	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(path))
	require.NoError(t, w.Watch(path))

	edited := "shader_type spatial;\nvoid fragment() { ALBEDO = vec3(0.0, 0.2, 1.0); }"
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	var changes []Change
	require.Eventually(t, func() bool {
		changes = append(changes, w.Drain()...)
		return len(changes) > 0 && changes[len(changes)-1].Code == edited
	}, 2*time.Second, 10*time.Millisecond)
	for _, c := range changes {
		assert.Equal(t, path, c.Path)
	}

	w.Unwatch(path)
	time.Sleep(20 * time.Millisecond)
	w.Drain()
	require.NoError(t, os.WriteFile(path, []byte("shader_type canvas_item;"), 0o644))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, w.Drain())
}

func TestWatcherMissingDirectory(t *testing.T) {
	w, err := NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing", "a.shader")))
}
