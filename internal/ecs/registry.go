package ecs

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrComponentExists is returned when attaching a component type twice.
	ErrComponentExists = errors.New("ecs: component already attached")
	// ErrInvalidEntity is returned for handles that are not alive.
	ErrInvalidEntity = errors.New("ecs: invalid entity")
	// ErrUnregistered is returned when a component type has no pool.
	ErrUnregistered = errors.New("ecs: component type not registered")
)

type erasedPool interface {
	remove(r *Registry, e Entity) bool
	has(e Entity) bool
}

// Registry owns entities and their component pools.
// It is not safe for concurrent use; the render thread is its only writer.
type Registry struct {
	// slots[i] holds the current handle of index i; for free slots the
	// version is already the one the next Create will hand out.
	slots []Entity
	alive []bool
	free  []uint32

	pools     map[reflect.Type]erasedPool
	order     []erasedPool
	count     int
	destroy   []Entity
	inDestroy bool
}

// NewRegistry returns an empty registry. Slot 0 is reserved so the zero
// Entity is never valid.
func NewRegistry() *Registry {
	return &Registry{
		slots: []Entity{makeEntity(0, 0)},
		alive: []bool{false},
		pools: map[reflect.Type]erasedPool{},
	}
}

// Create returns a new empty entity.
func (r *Registry) Create() Entity {
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.alive[idx] = true
		r.count++
		return r.slots[idx]
	}
	idx := uint32(len(r.slots))
	if idx >= MaxEntities {
		panic("ecs: entity index space exhausted")
	}
	e := makeEntity(idx, 0)
	r.slots = append(r.slots, e)
	r.alive = append(r.alive, true)
	r.count++
	return e
}

// Valid reports whether e refers to a live entity with a matching version.
func (r *Registry) Valid(e Entity) bool {
	if e.IsNull() {
		return false
	}
	idx := e.Index()
	return int(idx) < len(r.slots) && r.alive[idx] && r.slots[idx] == e
}

// Alive returns the number of live entities.
func (r *Registry) Alive() int {
	return r.count
}

// Destroy releases every component of e in reverse registration order, then
// frees the slot with a bumped version. A slot whose version would wrap is
// retired instead, so no handle is ever handed out twice. Destroying an
// invalid entity is a no-op. Destructors may destroy other entities; those
// are processed after the current one completes.
func (r *Registry) Destroy(e Entity) {
	if !r.Valid(e) {
		return
	}
	r.destroy = append(r.destroy, e)
	if r.inDestroy {
		return
	}
	r.inDestroy = true
	for len(r.destroy) > 0 {
		cur := r.destroy[0]
		r.destroy = r.destroy[1:]
		if !r.Valid(cur) {
			continue
		}
		for i := len(r.order) - 1; i >= 0; i-- {
			r.order[i].remove(r, cur)
		}
		idx := cur.Index()
		next := (cur.Version() + 1) & versionMask
		r.slots[idx] = makeEntity(idx, next)
		r.alive[idx] = false
		if next != 0 {
			r.free = append(r.free, idx)
		}
		r.count--
	}
	r.inDestroy = false
}

// Clear destroys every live entity.
func (r *Registry) Clear() {
	for i, ok := range r.alive {
		if ok {
			r.Destroy(r.slots[i])
		}
	}
}

// Destructor runs when a component is removed, either explicitly or as part
// of entity destruction.
type Destructor[T any] func(e Entity, c *T)

type pool[T any] struct {
	sparse    map[Entity]int
	dense     []Entity
	data      []*T
	onDestroy Destructor[T]
}

func (p *pool[T]) has(e Entity) bool {
	_, ok := p.sparse[e]
	return ok
}

func (p *pool[T]) remove(r *Registry, e Entity) bool {
	i, ok := p.sparse[e]
	if !ok {
		return false
	}
	c := p.data[i]
	last := len(p.dense) - 1
	// Swap-remove keeps the pool dense; iteration order is therefore
	// insertion order only until the first removal.
	p.dense[i] = p.dense[last]
	p.data[i] = p.data[last]
	p.sparse[p.dense[i]] = i
	p.dense = p.dense[:last]
	p.data = p.data[:last]
	delete(p.sparse, e)
	if p.onDestroy != nil {
		p.onDestroy(e, c)
	}
	return true
}

func poolOf[T any](r *Registry) *pool[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	p, ok := r.pools[t]
	if !ok {
		return nil
	}
	return p.(*pool[T])
}

// Register creates the pool for T. Registration order fixes destruction
// order: later registrations are destroyed first. Registering twice replaces
// the destructor only.
func Register[T any](r *Registry, onDestroy Destructor[T]) {
	if p := poolOf[T](r); p != nil {
		p.onDestroy = onDestroy
		return
	}
	p := &pool[T]{sparse: map[Entity]int{}, onDestroy: onDestroy}
	r.pools[reflect.TypeOf((*T)(nil)).Elem()] = p
	r.order = append(r.order, p)
}

// Emplace attaches c to e and returns the stored pointer, which stays valid
// until the component is removed.
func Emplace[T any](r *Registry, e Entity, c T) (*T, error) {
	if !r.Valid(e) {
		return nil, fmt.Errorf("emplace %v: %w", e, ErrInvalidEntity)
	}
	p := poolOf[T](r)
	if p == nil {
		return nil, fmt.Errorf("emplace %T: %w", c, ErrUnregistered)
	}
	if p.has(e) {
		return nil, fmt.Errorf("emplace %T on %v: %w", c, e, ErrComponentExists)
	}
	ptr := new(T)
	*ptr = c
	p.sparse[e] = len(p.dense)
	p.dense = append(p.dense, e)
	p.data = append(p.data, ptr)
	return ptr, nil
}

// Get returns e's T component, or nil if e is invalid or has none.
func Get[T any](r *Registry, e Entity) *T {
	if !r.Valid(e) {
		return nil
	}
	p := poolOf[T](r)
	if p == nil {
		return nil
	}
	i, ok := p.sparse[e]
	if !ok {
		return nil
	}
	return p.data[i]
}

// Has reports whether e is valid and carries a T.
func Has[T any](r *Registry, e Entity) bool {
	return Get[T](r, e) != nil
}

// Remove detaches T from e, running its destructor. It reports whether a
// component was removed.
func Remove[T any](r *Registry, e Entity) bool {
	if !r.Valid(e) {
		return false
	}
	p := poolOf[T](r)
	if p == nil {
		return false
	}
	return p.remove(r, e)
}

// Len returns how many entities carry T.
func Len[T any](r *Registry) int {
	p := poolOf[T](r)
	if p == nil {
		return 0
	}
	return len(p.dense)
}

// Each calls fn for every entity carrying T. fn must not add or remove T
// components.
func Each[T any](r *Registry, fn func(e Entity, c *T)) {
	p := poolOf[T](r)
	if p == nil {
		return
	}
	for i := 0; i < len(p.dense); i++ {
		fn(p.dense[i], p.data[i])
	}
}

// Each2 iterates entities carrying both A and B, driven by A's pool.
func Each2[A, B any](r *Registry, fn func(e Entity, a *A, b *B)) {
	pa := poolOf[A](r)
	pb := poolOf[B](r)
	if pa == nil || pb == nil {
		return
	}
	for i := 0; i < len(pa.dense); i++ {
		e := pa.dense[i]
		j, ok := pb.sparse[e]
		if !ok {
			continue
		}
		fn(e, pa.data[i], pb.data[j])
	}
}

// Entities returns a snapshot of the entities carrying T.
func Entities[T any](r *Registry) []Entity {
	p := poolOf[T](r)
	if p == nil {
		return nil
	}
	return append([]Entity(nil), p.dense...)
}
