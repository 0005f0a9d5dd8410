package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gles3render/core"
)

// ErrCacheCorrupt is returned for cache entries whose header does not match
// their contents.
var ErrCacheCorrupt = errors.New("shader: corrupt cache entry")

const cacheHeaderSize = 8

// Cache is a directory of linked program binaries named <hash>.bin. Each
// file is a little-endian {format u32, length u32} header followed by
// length bytes. Writes happen on a dedicated queue.
type Cache struct {
	dir    string
	writer *TaskQueue
}

// DefaultCacheDir returns <user cache dir>/gles3render/shaders.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "gles3render", "shaders")
}

// OpenCache creates dir if needed.
func OpenCache(dir string) (*Cache, error) {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shader cache %q: %w", dir, err)
	}
	return &Cache{dir: dir, writer: NewTaskQueue(nil, nil)}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file of a cache key.
func (c *Cache) Path(key uint64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x.bin", key))
}

// Load reads an entry. A missing file yields an os.ErrNotExist error; a
// malformed one is removed and yields ErrCacheCorrupt.
func (c *Cache) Load(key uint64) (uint32, []byte, error) {
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	format, body, err := decodeEntry(data)
	if err != nil {
		c.Remove(key)
		return 0, nil, fmt.Errorf("%s: %w", path, err)
	}
	return format, body, nil
}

func decodeEntry(data []byte) (uint32, []byte, error) {
	if len(data) < cacheHeaderSize {
		return 0, nil, ErrCacheCorrupt
	}
	format := binary.LittleEndian.Uint32(data[0:4])
	length := binary.LittleEndian.Uint32(data[4:8])
	body := data[cacheHeaderSize:]
	if uint64(length) != uint64(len(body)) || length == 0 {
		return 0, nil, ErrCacheCorrupt
	}
	return format, body, nil
}

func encodeEntry(format uint32, data []byte) []byte {
	out := make([]byte, cacheHeaderSize+len(data))
	binary.LittleEndian.PutUint32(out[0:4], format)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(data)))
	copy(out[cacheHeaderSize:], data)
	return out
}

// Store queues a write of an entry. The file appears atomically.
func (c *Cache) Store(key uint64, format uint32, data []byte) {
	path := c.Path(key)
	entry := encodeEntry(format, data)
	c.writer.Post(func() {
		tmp, err := os.CreateTemp(c.dir, "*.tmp")
		if err != nil {
			core.LogWarn("shader cache: %v", err)
			return
		}
		_, werr := tmp.Write(entry)
		cerr := tmp.Close()
		if werr != nil || cerr != nil {
			os.Remove(tmp.Name())
			core.LogWarn("shader cache: write %s: %v", path, errors.Join(werr, cerr))
			return
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			os.Remove(tmp.Name())
			core.LogWarn("shader cache: %v", err)
		}
	})
}

// Remove deletes an entry.
func (c *Cache) Remove(key uint64) {
	if err := os.Remove(c.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		core.LogWarn("shader cache: %v", err)
	}
}

// Flush waits for queued writes.
func (c *Cache) Flush() {
	done := make(chan struct{})
	if !c.writer.Post(func() { close(done) }) {
		return
	}
	<-done
}

// Close flushes and stops the writer.
func (c *Cache) Close() {
	c.writer.Close()
}
