package ecs

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float32 }
type label struct{ Name string }

func newTestRegistry(destroyed *[]string) *Registry {
	r := NewRegistry()
	Register[position](r, func(e Entity, c *position) {
		if destroyed != nil {
			*destroyed = append(*destroyed, "position")
		}
	})
	Register[label](r, func(e Entity, c *label) {
		if destroyed != nil {
			*destroyed = append(*destroyed, "label:"+c.Name)
		}
	})
	return r
}

func TestEntityBits(t *testing.T) {
	e := makeEntity(12345, 7)
	assert.Equal(t, uint32(12345), e.Index())
	assert.Equal(t, uint32(7), e.Version())
	assert.True(t, Null.IsNull())
	assert.False(t, NewRegistry().Valid(Null))
}

func TestDestroyedHandlesFailLookupAfterReuse(t *testing.T) {
	r := newTestRegistry(nil)
	rng := rand.New(rand.NewSource(1))

	var live []Entity
	var dead []Entity
	for step := 0; step < 2000; step++ {
		if len(live) == 0 || rng.Intn(3) != 0 {
			e := r.Create()
			_, err := Emplace(r, e, position{X: float32(step)})
			require.NoError(t, err)
			live = append(live, e)
			continue
		}
		i := rng.Intn(len(live))
		e := live[i]
		live = append(live[:i], live[i+1:]...)
		r.Destroy(e)
		dead = append(dead, e)
	}

	for _, e := range dead {
		assert.False(t, r.Valid(e), "%v must be invalid", e)
		assert.Nil(t, Get[position](r, e))
	}
	for _, e := range live {
		assert.True(t, r.Valid(e))
		assert.NotNil(t, Get[position](r, e))
	}
	assert.Equal(t, len(live), r.Alive())
}

func TestSlotReuseBumpsVersion(t *testing.T) {
	r := newTestRegistry(nil)
	a := r.Create()
	r.Destroy(a)
	b := r.Create()
	assert.Equal(t, a.Index(), b.Index())
	assert.NotEqual(t, a, b)
	assert.False(t, r.Valid(a))
	assert.True(t, r.Valid(b))
}

func TestZeroEntityIsNeverValid(t *testing.T) {
	r := newTestRegistry(nil)
	for range 4 {
		assert.NotZero(t, r.Create().Index())
	}
	var zero Entity
	assert.False(t, r.Valid(zero))
	assert.Nil(t, Get[position](r, zero))
	r.Destroy(zero)
	assert.Equal(t, 4, r.Alive())
}

func TestVersionWrapRetiresSlot(t *testing.T) {
	r := newTestRegistry(nil)
	first := r.Create()
	seen := map[Entity]bool{first: true}
	e := first
	for range versionMask {
		r.Destroy(e)
		e = r.Create()
		require.Equal(t, first.Index(), e.Index())
		require.False(t, seen[e], "handle %v handed out twice", e)
		seen[e] = true
	}
	require.Equal(t, uint32(versionMask), e.Version())

	r.Destroy(e)
	next := r.Create()
	assert.NotEqual(t, first.Index(), next.Index(), "a wrapped slot is retired")
	assert.False(t, seen[next])
	for old := range seen {
		assert.False(t, r.Valid(old))
	}
	assert.True(t, r.Valid(next))
	assert.Equal(t, 1, r.Alive())
}

func TestEmplaceTwiceFails(t *testing.T) {
	r := newTestRegistry(nil)
	e := r.Create()
	_, err := Emplace(r, e, label{Name: "a"})
	require.NoError(t, err)
	_, err = Emplace(r, e, label{Name: "b"})
	assert.ErrorIs(t, err, ErrComponentExists)
	assert.Equal(t, "a", Get[label](r, e).Name)

	_, err = Emplace(r, Null, label{})
	assert.ErrorIs(t, err, ErrInvalidEntity)

	type unknown struct{}
	_, err = Emplace(r, e, unknown{})
	assert.ErrorIs(t, err, ErrUnregistered)
}

func TestDestroyOrderAndIdempotence(t *testing.T) {
	var destroyed []string
	r := newTestRegistry(&destroyed)
	e := r.Create()
	_, _ = Emplace(r, e, position{})
	_, _ = Emplace(r, e, label{Name: "x"})

	r.Destroy(e)
	assert.Equal(t, []string{"label:x", "position"}, destroyed)

	r.Destroy(e)
	assert.Len(t, destroyed, 2, "destroying twice is a no-op")
}

func TestDestructorMayDestroyOthers(t *testing.T) {
	r := NewRegistry()
	type child struct{ Of Entity }
	type owner struct{ Child Entity }
	Register[child](r, nil)
	Register[owner](r, func(e Entity, c *owner) { r.Destroy(c.Child) })

	parent := r.Create()
	kid := r.Create()
	_, _ = Emplace(r, kid, child{Of: parent})
	_, _ = Emplace(r, parent, owner{Child: kid})

	r.Destroy(parent)
	assert.False(t, r.Valid(parent))
	assert.False(t, r.Valid(kid))
	assert.Equal(t, 0, Len[child](r))
}

func TestRemoveAndEach(t *testing.T) {
	r := newTestRegistry(nil)
	var es []Entity
	for i := 0; i < 5; i++ {
		e := r.Create()
		_, _ = Emplace(r, e, position{X: float32(i)})
		if i%2 == 0 {
			_, _ = Emplace(r, e, label{Name: "even"})
		}
		es = append(es, e)
	}
	assert.True(t, Remove[position](r, es[1]))
	assert.False(t, Remove[position](r, es[1]))
	assert.Equal(t, 4, Len[position](r))

	sum := float32(0)
	Each(r, func(e Entity, p *position) { sum += p.X })
	assert.Equal(t, float32(0+2+3+4), sum)

	n := 0
	Each2(r, func(e Entity, p *position, l *label) { n++ })
	assert.Equal(t, 3, n)
}

func TestDirtyQueue(t *testing.T) {
	r := newTestRegistry(nil)
	q := r.NewDirtyQueue()
	a, b, c := r.Create(), r.Create(), r.Create()
	q.Mark(a)
	q.Mark(b)
	q.Mark(a)
	q.Mark(c)
	r.Destroy(b)

	var got []Entity
	q.Drain(func(e Entity) {
		got = append(got, e)
		if e == a {
			q.Mark(b) // stale, skipped
		}
	})
	assert.Equal(t, []Entity{a, c}, got)
	assert.Equal(t, 0, q.Len())

	q.Mark(a)
	q.Unmark(a)
	assert.False(t, q.Contains(a))
}
