package ecs

// DirtyQueue is a change queue of entities: marking is O(1) and idempotent,
// draining hands every still-valid entity to the callback once and empties
// the queue. Only the render thread writes it.
type DirtyQueue struct {
	reg   *Registry
	set   map[Entity]struct{}
	order []Entity
}

// NewDirtyQueue creates a queue bound to r.
func (r *Registry) NewDirtyQueue() *DirtyQueue {
	return &DirtyQueue{reg: r, set: map[Entity]struct{}{}}
}

// Mark enqueues e. Marking an already queued entity does nothing.
func (q *DirtyQueue) Mark(e Entity) {
	if _, ok := q.set[e]; ok {
		return
	}
	q.set[e] = struct{}{}
	q.order = append(q.order, e)
}

// Contains reports whether e is queued.
func (q *DirtyQueue) Contains(e Entity) bool {
	_, ok := q.set[e]
	return ok
}

// Unmark drops e from the queue.
func (q *DirtyQueue) Unmark(e Entity) {
	if _, ok := q.set[e]; !ok {
		return
	}
	delete(q.set, e)
	for i, x := range q.order {
		if x == e {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of queued entities.
func (q *DirtyQueue) Len() int {
	return len(q.order)
}

// Drain consumes the queue in mark order. Entities marked while draining are
// processed in the same call; destroyed entities are skipped.
func (q *DirtyQueue) Drain(fn func(e Entity)) {
	for len(q.order) > 0 {
		e := q.order[0]
		q.order = q.order[1:]
		delete(q.set, e)
		if !q.reg.Valid(e) {
			continue
		}
		fn(e)
	}
	q.order = q.order[:0]
}
