package renderer

import (
	"fmt"
	"os"
	"path/filepath"

	"gles3render/core"
	"gles3render/internal/ecs"
	"gles3render/internal/shader"
)

// WatchShaderFile loads the material shader source at path into sh and
// reloads it whenever the file changes. Reloads are applied at the start of
// the next Draw; materials keep drawing with the old program or the depth
// fallback until the new one is compiled.
func (c *Context) WatchShaderFile(sh ecs.Entity, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch shader: %w", err)
	}
	code, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("watch shader: %w", err)
	}
	if c.watcher == nil {
		w, err := shader.NewWatcher()
		if err != nil {
			return err
		}
		c.watcher = w
	}
	if err := c.watcher.Watch(abs); err != nil {
		return fmt.Errorf("watch shader: %w", err)
	}
	c.watched[abs] = sh
	c.st.ShaderSetCode(sh, string(code))
	return nil
}

// UnwatchShaderFile stops reloading path. The shader keeps its code.
func (c *Context) UnwatchShaderFile(path string) {
	abs, err := filepath.Abs(path)
	if err != nil || c.watcher == nil {
		return
	}
	c.watcher.Unwatch(abs)
	delete(c.watched, abs)
}

// applyShaderChanges hands edited sources to their shaders and returns how
// many changed.
func (c *Context) applyShaderChanges() int {
	if c.watcher == nil {
		return 0
	}
	n := 0
	for _, ch := range c.watcher.Drain() {
		sh, ok := c.watched[ch.Path]
		if !ok || c.st.ShaderGetCode(sh) == ch.Code {
			continue
		}
		c.st.ShaderSetCode(sh, ch.Code)
		core.LogInfo("shader reloaded: %s", filepath.Base(ch.Path))
		n++
	}
	return n
}
