package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"

	"gles3render/core"
	"gles3render/internal/glapi"
)

// ErrTimeout is returned by WaitIdle when compiles are still running.
var ErrTimeout = errors.New("shader: timed out waiting for compiles")

// CompileMode mirrors rendering/gles3/shaders/shader_compilation_mode.
type CompileMode int

const (
	CompileSync CompileMode = iota
	CompileAsync
	CompileAsyncCache
)

// SharedContext is a secondary GL context sharing objects with the render
// context. core.SharedContext implements it.
type SharedContext interface {
	MakeCurrent()
	Release()
}

// Options configure a Manager.
type Options struct {
	Mode            CompileMode
	MaxSimultaneous int
	CacheDir        string
	// Shared drives the compile worker when the parallel-compile extension
	// is missing. Without it async requests compile synchronously.
	Shared SharedContext
	// WorkerDevice issues GL calls on the worker; defaults to the render
	// device, which is correct for the stateless native device.
	WorkerDevice glapi.Device
}

type compileJob struct {
	shader  *Shader
	variant *Variant
}

type compileResult struct {
	compileJob
	program uint32
	ok      bool
}

// Manager owns the compile machinery shared by every Shader: the device,
// the async queues, the binary cache and the in-flight bookkeeping.
type Manager struct {
	dev       glapi.Device
	worker    glapi.Device
	feat      *glapi.Features
	opts      Options
	driverKey string

	sem      *semaphore.Weighted
	queue    *TaskQueue
	cache    *Cache
	results  *resultQueue
	waiting  []compileJob
	inflight []compileJob
	posted   map[*Variant]bool
	shaders  []*Shader
	current  uint32
}

// NewManager sets up compilation for the current context.
func NewManager(dev glapi.Device, feat *glapi.Features, opts Options) (*Manager, error) {
	if opts.MaxSimultaneous < 1 {
		opts.MaxSimultaneous = 1
	}
	if opts.WorkerDevice == nil {
		opts.WorkerDevice = dev
	}
	m := &Manager{
		dev:       dev,
		worker:    opts.WorkerDevice,
		feat:      feat,
		opts:      opts,
		driverKey: feat.DriverKey(),
		sem:       semaphore.NewWeighted(int64(opts.MaxSimultaneous)),
		results:   newResultQueue(),
		posted:    map[*Variant]bool{},
	}
	if opts.Mode == CompileAsyncCache {
		if !feat.ProgramBinary {
			core.LogWarn("shader cache disabled: GL_ARB_get_program_binary unavailable")
		} else {
			c, err := OpenCache(opts.CacheDir)
			if err != nil {
				return nil, fmt.Errorf("shader manager: %w", err)
			}
			m.cache = c
		}
	}
	if opts.Mode != CompileSync && !feat.ParallelCompile {
		if opts.Shared == nil && opts.WorkerDevice == dev {
			if _, native := dev.(*glapi.Native); native {
				core.LogWarn("async shader compile needs a shared context; compiling synchronously")
				m.opts.Mode = CompileSync
			}
		}
		if m.opts.Mode != CompileSync {
			shared := opts.Shared
			start := func() {
				if shared != nil {
					shared.MakeCurrent()
				}
			}
			stop := func() {
				if shared != nil {
					shared.Release()
				}
			}
			m.queue = NewTaskQueue(start, stop)
		}
	}
	return m, nil
}

// NewShader instantiates src.
func (m *Manager) NewShader(src *Source) *Shader {
	s := &Shader{
		mgr:          m,
		src:          src,
		codes:        map[uint32]*customEntry{},
		variants:     map[VariantKey]*Variant{},
		uniformCache: map[int32][4]float32{},
	}
	m.shaders = append(m.shaders, s)
	return s
}

// Mode returns the effective compile mode.
func (m *Manager) Mode() CompileMode {
	return m.opts.Mode
}

// Cache returns the binary cache, or nil when disabled.
func (m *Manager) Cache() *Cache {
	return m.cache
}

func (m *Manager) hash(src *Source, v *Variant) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(src.Name)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(v.vertex)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(v.fragment)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(m.driverKey)
	var conds [8]byte
	binary.LittleEndian.PutUint64(conds[:], uint64(v.Key.Conds))
	_, _ = d.Write(conds[:])
	for _, f := range src.Feedback {
		_, _ = d.WriteString(f)
	}
	return d.Sum64()
}

func (m *Manager) compile(s *Shader, v *Variant) {
	v.State = StatePending
	if m.cache != nil {
		v.hash = m.hash(s.src, v)
		if m.loadCached(s, v) {
			return
		}
	}
	// Built-in variants (no custom code) and the fallback always compile
	// synchronously.
	if m.opts.Mode == CompileSync || v.Key.Code == 0 {
		prog, ok := compileProgram(m.dev, s.src, v.vertex, v.fragment, m.cache != nil)
		v.program = glapi.AdoptProgram(m.dev, prog)
		m.afterLink(s, v, ok)
		return
	}
	m.waiting = append(m.waiting, compileJob{shader: s, variant: v})
	m.startWaiting()
}

func (m *Manager) loadCached(s *Shader, v *Variant) bool {
	format, data, err := m.cache.Load(v.hash)
	if err != nil {
		if errors.Is(err, ErrCacheCorrupt) {
			core.LogWarn("shader %s: %v", s.src.Name, err)
		}
		return false
	}
	prog := m.dev.CreateProgram()
	m.dev.ProgramBinary(prog, format, data)
	if m.dev.GetProgramiv(prog, glapi.LINK_STATUS) != glapi.TRUE {
		m.dev.DeleteProgram(prog)
		m.cache.Remove(v.hash)
		core.LogWarn("shader %s: cached binary %016x rejected, compiling from source", s.src.Name, v.hash)
		return false
	}
	v.program = glapi.AdoptProgram(m.dev, prog)
	v.fromCache = true
	m.afterLink(s, v, true)
	return true
}

func (m *Manager) startWaiting() {
	for len(m.waiting) > 0 {
		if !m.feat.ParallelCompile && m.queue == nil {
			return
		}
		if !m.sem.TryAcquire(1) {
			return
		}
		job := m.waiting[0]
		m.waiting = m.waiting[1:]
		if m.feat.ParallelCompile {
			m.startParallel(job)
			continue
		}
		m.posted[job.variant] = true
		src, vs, fs, retrievable, dev := job.shader.src, job.variant.vertex, job.variant.fragment, m.cache != nil, m.worker
		results := m.results
		if !m.queue.Post(func() {
			prog, ok := compileProgram(dev, src, vs, fs, retrievable)
			dev.Finish()
			results.push(compileResult{compileJob: job, program: prog, ok: ok})
		}) {
			delete(m.posted, job.variant)
			m.sem.Release(1)
		}
	}
}

func (m *Manager) startParallel(job compileJob) {
	v, dev := job.variant, m.dev
	v.vs = dev.CreateShader(glapi.VERTEX_SHADER)
	dev.ShaderSource(v.vs, v.vertex)
	dev.CompileShader(v.vs)
	v.fs = dev.CreateShader(glapi.FRAGMENT_SHADER)
	dev.ShaderSource(v.fs, v.fragment)
	dev.CompileShader(v.fs)
	v.pendingProgram = dev.CreateProgram()
	dev.AttachShader(v.pendingProgram, v.vs)
	dev.AttachShader(v.pendingProgram, v.fs)
	if len(job.shader.src.Feedback) > 0 {
		dev.TransformFeedbackVaryings(v.pendingProgram, job.shader.src.Feedback, glapi.INTERLEAVED_ATTRIBS)
	}
	if m.cache != nil {
		dev.ProgramParameteri(v.pendingProgram, glapi.PROGRAM_BINARY_RETRIEVABLE_HINT, glapi.TRUE)
	}
	dev.LinkProgram(v.pendingProgram)
	m.inflight = append(m.inflight, job)
}

// Poll installs finished async compiles and starts queued ones. It never
// blocks and must run on the render thread, once per frame.
func (m *Manager) Poll() int {
	installed := 0
	keep := m.inflight[:0]
	for _, job := range m.inflight {
		v := job.variant
		if m.dev.GetProgramiv(v.pendingProgram, glapi.COMPLETION_STATUS_KHR) != glapi.TRUE {
			keep = append(keep, job)
			continue
		}
		ok := checkShader(m.dev, job.shader.src.Name, v.vs, v.vertex) &&
			checkShader(m.dev, job.shader.src.Name, v.fs, v.fragment) &&
			checkProgram(m.dev, job.shader.src.Name, v.pendingProgram)
		m.dev.DetachShader(v.pendingProgram, v.vs)
		m.dev.DetachShader(v.pendingProgram, v.fs)
		m.dev.DeleteShader(v.vs)
		m.dev.DeleteShader(v.fs)
		v.program = glapi.AdoptProgram(m.dev, v.pendingProgram)
		v.vs, v.fs, v.pendingProgram = 0, 0, 0
		m.afterLink(job.shader, v, ok)
		m.sem.Release(1)
		installed++
	}
	m.inflight = keep

	for _, r := range m.results.drain() {
		delete(m.posted, r.variant)
		m.sem.Release(1)
		if r.shader.variants[r.variant.Key] != r.variant {
			// The code changed while compiling; the program is orphaned.
			if r.program != 0 {
				m.dev.DeleteProgram(r.program)
			}
			continue
		}
		r.variant.program = glapi.AdoptProgram(m.dev, r.program)
		m.afterLink(r.shader, r.variant, r.ok)
		installed++
	}
	m.startWaiting()
	return installed
}

// Pending returns the number of variants not yet installed.
func (m *Manager) Pending() int {
	return len(m.waiting) + len(m.inflight) + len(m.posted)
}

// WaitIdle polls until every async compile is installed or timeout passes.
func (m *Manager) WaitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		m.Poll()
		if m.Pending() == 0 {
			return nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			return fmt.Errorf("%d pending: %w", m.Pending(), ErrTimeout)
		}
		m.results.wait(min(left, 10*time.Millisecond))
	}
}

// forget drops v from queued and in-flight work.
func (m *Manager) forget(v *Variant) {
	for i, job := range m.waiting {
		if job.variant == v {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			break
		}
	}
	for i, job := range m.inflight {
		if job.variant == v {
			m.dev.DeleteShader(v.vs)
			m.dev.DeleteShader(v.fs)
			m.dev.DeleteProgram(v.pendingProgram)
			v.vs, v.fs, v.pendingProgram = 0, 0, 0
			m.inflight = append(m.inflight[:i], m.inflight[i+1:]...)
			m.sem.Release(1)
			break
		}
	}
	if m.current != 0 && m.current == v.program.ID() {
		m.current = 0
	}
}

func (m *Manager) afterLink(s *Shader, v *Variant, ok bool) {
	if !ok {
		v.State = StateFailed
		v.program.Release()
		return
	}
	prog := v.program.ID()
	dev := m.dev
	dev.UseProgram(prog)
	m.current = prog
	v.locs = make([]int32, len(s.src.Uniforms))
	for i, name := range s.src.Uniforms {
		v.locs[i] = dev.GetUniformLocation(prog, name)
	}
	v.customLocs = map[string]int32{}
	for name, unit := range s.src.TextureUnits {
		if loc := dev.GetUniformLocation(prog, name); loc >= 0 {
			dev.Uniform1i(loc, int32(unit))
		}
	}
	if e := s.codes[v.Key.Code]; e != nil && v.Key.Code != 0 {
		for unit, name := range e.code.TextureNames {
			if loc := dev.GetUniformLocation(prog, name); loc >= 0 {
				dev.Uniform1i(loc, int32(unit))
			}
		}
		if idx := dev.GetUniformBlockIndex(prog, MaterialBlock); idx != glapi.INVALID_INDEX {
			dev.UniformBlockBinding(prog, idx, s.src.MaterialBinding)
		}
	}
	for name, binding := range s.src.UBOBindings {
		if idx := dev.GetUniformBlockIndex(prog, name); idx != glapi.INVALID_INDEX {
			dev.UniformBlockBinding(prog, idx, binding)
		}
	}
	v.State = StateReady
	if m.cache != nil && !v.fromCache {
		format, data := dev.GetProgramBinary(prog)
		if len(data) > 0 {
			m.cache.Store(v.hash, format, data)
		}
	}
}

func checkShader(dev glapi.Device, name string, id uint32, src string) bool {
	if dev.GetShaderiv(id, glapi.COMPILE_STATUS) == glapi.TRUE {
		return true
	}
	core.LogError("shader %s: %v: %s\n%s", name, ErrCompile, dev.ShaderInfoLog(id), core.NumberedSource(src))
	return false
}

func checkProgram(dev glapi.Device, name string, prog uint32) bool {
	if dev.GetProgramiv(prog, glapi.LINK_STATUS) == glapi.TRUE {
		return true
	}
	core.LogError("shader %s: %v: %s", name, ErrLink, dev.ProgramInfoLog(prog))
	return false
}

// compileProgram builds and links one program on dev. It returns 0 and
// false on failure, having released every object it created.
func compileProgram(dev glapi.Device, src *Source, vertex, fragment string, retrievable bool) (uint32, bool) {
	vs := dev.CreateShader(glapi.VERTEX_SHADER)
	dev.ShaderSource(vs, vertex)
	dev.CompileShader(vs)
	if !checkShader(dev, src.Name, vs, vertex) {
		dev.DeleteShader(vs)
		return 0, false
	}
	fs := dev.CreateShader(glapi.FRAGMENT_SHADER)
	dev.ShaderSource(fs, fragment)
	dev.CompileShader(fs)
	if !checkShader(dev, src.Name, fs, fragment) {
		dev.DeleteShader(vs)
		dev.DeleteShader(fs)
		return 0, false
	}
	prog := dev.CreateProgram()
	dev.AttachShader(prog, vs)
	dev.AttachShader(prog, fs)
	if len(src.Feedback) > 0 {
		dev.TransformFeedbackVaryings(prog, src.Feedback, glapi.INTERLEAVED_ATTRIBS)
	}
	if retrievable {
		dev.ProgramParameteri(prog, glapi.PROGRAM_BINARY_RETRIEVABLE_HINT, glapi.TRUE)
	}
	dev.LinkProgram(prog)
	ok := checkProgram(dev, src.Name, prog)
	dev.DetachShader(prog, vs)
	dev.DetachShader(prog, fs)
	dev.DeleteShader(vs)
	dev.DeleteShader(fs)
	if !ok {
		dev.DeleteProgram(prog)
		return 0, false
	}
	return prog, true
}

// Close stops the worker queues and frees every shader's variants.
func (m *Manager) Close() {
	if m.queue != nil {
		m.queue.Close()
		m.queue = nil
	}
	m.Poll()
	for _, s := range m.shaders {
		s.Free()
	}
	m.shaders = nil
	if m.cache != nil {
		m.cache.Close()
	}
}
