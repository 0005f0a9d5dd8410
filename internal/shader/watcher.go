package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"gles3render/core"
)

// Change is a shader source file whose contents changed on disk.
type Change struct {
	Path string
	Code string
}

// Watcher reports edits to shader source files. Events are collected on a
// background goroutine and handed to the render thread by Drain.
type Watcher struct {
	fs      *fsnotify.Watcher
	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]int
	pending map[string]Change
	order   []string
	done    chan struct{}
}

// NewWatcher starts watching nothing.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shader watcher: %w", err)
	}
	w := &Watcher{
		fs:      fw,
		files:   map[string]bool{},
		dirs:    map[string]int{},
		pending: map[string]Change{},
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch adds a file. Its directory is watched so editors that replace the
// file by rename are seen.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %q: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Unwatch removes a file.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[abs] {
		return
	}
	delete(w.files, abs)
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		_ = w.fs.Remove(dir)
	}
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.changed(filepath.Clean(ev.Name))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			core.LogWarn("shader watcher: %v", err)
		}
	}
}

func (w *Watcher) changed(path string) {
	w.mu.Lock()
	watched := w.files[path]
	w.mu.Unlock()
	if !watched {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, queued := w.pending[path]; !queued {
		w.order = append(w.order, path)
	}
	w.pending[path] = Change{Path: path, Code: string(data)}
}

// Drain returns the changes seen since the last call, latest contents per
// file, in first-seen order.
func (w *Watcher) Drain() []Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Change, 0, len(w.order))
	for _, p := range w.order {
		out = append(out, w.pending[p])
	}
	w.order = nil
	clear(w.pending)
	return out
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
