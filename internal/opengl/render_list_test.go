package opengl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gles3render/internal/storage"
)

func TestSortKeyFields(t *testing.T) {
	key := SortKey(3, 7, 0x1234, 0xBEEF, ShadingVertexLit|ShadingGI, FlagMirror|FlagNoDirectional)

	assert.Equal(t, 3, KeyPriority(key))
	assert.Equal(t, uint8(7), KeyLayer(key))
	assert.Equal(t, uint16(0x1234), KeyMaterial(key))
	assert.Equal(t, uint16(0xBEEF), KeyGeometry(key))
	assert.Equal(t, ShadingVertexLit|ShadingGI, KeyShading(key))
	assert.Equal(t, FlagMirror|FlagNoDirectional, KeyMisc(key))
}

func TestSortKeyClampsPriority(t *testing.T) {
	assert.Equal(t, RenderPriorityMax, KeyPriority(SortKey(100, 0, 0, 0, 0, 0)))
	assert.Equal(t, RenderPriorityMin, KeyPriority(SortKey(-100, 0, 0, 0, 0, 0)))
	assert.Less(t, SortKey(-1, 255, 0xFFFF, 0xFFFF, 0, 0), SortKey(0, 0, 0, 0, 0, 0),
		"priority dominates every other field")
}

func TestSortKeyPriorityBoundaries(t *testing.T) {
	for _, tc := range []struct {
		in, want int
	}{
		{RenderPriorityMax, RenderPriorityMax},
		{RenderPriorityMax + 1, RenderPriorityMax},
		{RenderPriorityMin, RenderPriorityMin},
		{RenderPriorityMin - 1, RenderPriorityMin},
		{0, 0},
	} {
		assert.Equal(t, tc.want, KeyPriority(SortKey(tc.in, 0, 0, 0, 0, 0)), "priority %d", tc.in)
	}
	assert.Equal(t, storage.RenderPriorityMax, RenderPriorityMax, "materials clamp to the key range")
	assert.Equal(t, storage.RenderPriorityMin, RenderPriorityMin)
	assert.Less(t, SortKey(RenderPriorityMax-1, 255, 0xFFFF, 0xFFFF, 0, 0), SortKey(RenderPriorityMax, 0, 0, 0, 0, 0))
	assert.Less(t, SortKey(RenderPriorityMin, 255, 0xFFFF, 0xFFFF, 0, 0), SortKey(RenderPriorityMin+1, 0, 0, 0, 0, 0))
}

func TestSortKeyFlagBits(t *testing.T) {
	for _, f := range []uint64{ShadingUnshaded, ShadingVertexLit, ShadingGI, ShadingLightmap, ShadingLightmapLayered, ShadingLightmapCapture} {
		key := SortKey(0, 0, 0, 0, f, 0)
		assert.Equal(t, f, KeyShading(key))
		assert.Zero(t, KeyMisc(key))
	}
	for _, f := range []uint64{FlagMirror, FlagCullDisabled, FlagOpaquePrepass, FlagNoDirectional} {
		key := SortKey(0, 0, 0, 0, 0, f)
		assert.Equal(t, f, KeyMisc(key))
		assert.Zero(t, KeyShading(key))
	}
}

func TestDepthLayer(t *testing.T) {
	for _, tc := range []struct {
		depth, zFar float32
		want        uint8
	}{
		{-1, 100, 0},
		{0, 100, 0},
		{1, 100, 2},
		{50, 100, 128},
		{99.9, 100, 255},
		{100, 100, 255},
		{500, 100, 255},
		{10, 0, 0},
	} {
		assert.Equal(t, tc.want, depthLayer(tc.depth, tc.zFar), "depth %v far %v", tc.depth, tc.zFar)
	}
	assert.Less(t,
		SortKey(0, depthLayer(2, 100), 0xFFFF, 0xFFFF, 0, 0),
		SortKey(0, depthLayer(60, 100), 0, 0, 0, 0),
		"a nearer layer wins over material and geometry")
}

func TestRenderListSplitsAndOverflows(t *testing.T) {
	l := NewRenderList(3)
	require.Equal(t, 3, l.Max())

	require.NotNil(t, l.Add(false))
	require.NotNil(t, l.Add(true))
	require.NotNil(t, l.Add(false))
	assert.Nil(t, l.Add(false))
	assert.Nil(t, l.Add(true))

	assert.Equal(t, 3, l.Len())
	assert.Len(t, l.Opaque, 2)
	assert.Len(t, l.Alpha, 1)

	l.Clear()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Opaque)
	assert.Empty(t, l.Alpha)
	e := l.Add(false)
	require.NotNil(t, e)
	assert.Zero(t, e.Key, "cleared elements start empty")
}

func TestRenderListSorts(t *testing.T) {
	l := NewRenderList(8)
	for _, k := range []uint64{30, 10, 20} {
		l.Add(false).Key = k
	}
	l.SortByKey()
	assert.Equal(t, []uint64{10, 20, 30}, []uint64{l.Opaque[0].Key, l.Opaque[1].Key, l.Opaque[2].Key})

	l.Opaque[0].Depth, l.Opaque[1].Depth, l.Opaque[2].Depth = 5, 1, 3
	l.SortByDepth()
	assert.Equal(t, []float32{1, 3, 5}, []float32{l.Opaque[0].Depth, l.Opaque[1].Depth, l.Opaque[2].Depth})

	add := func(priority int, depth float32) {
		e := l.Add(true)
		e.Key = SortKey(priority, 0, 0, 0, 0, 0)
		e.Depth = depth
	}
	add(1, 2)
	add(0, 1)
	add(0, 9)
	add(1, 7)
	l.SortByReverseDepthAndPriority()

	var got [][2]float32
	for _, e := range l.Alpha {
		got = append(got, [2]float32{float32(KeyPriority(e.Key)), e.Depth})
	}
	assert.Equal(t, [][2]float32{{0, 9}, {0, 1}, {1, 7}, {1, 2}}, got)
}

func TestRenderListSortsAreStableOnTies(t *testing.T) {
	l := NewRenderList(8)
	for i, k := range []uint64{2, 1, 2, 1, 2} {
		e := l.Add(false)
		e.Key = k
		e.Depth = float32(i)
	}
	l.SortByKey()
	var got []float32
	for _, e := range l.Opaque {
		got = append(got, e.Depth)
	}
	assert.Equal(t, []float32{1, 3, 0, 2, 4}, got, "tied keys keep insertion order")

	for _, e := range l.Opaque {
		e.Key = uint64(e.Depth)
		e.Depth = 1
	}
	l.SortByDepth()
	var keys []uint64
	for _, e := range l.Opaque {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []uint64{1, 3, 0, 2, 4}, keys, "tied depths keep the previous order")

	for i := range 3 {
		e := l.Add(true)
		e.Key = SortKey(0, 0, uint16(i), 0, 0, 0)
		e.Depth = 4
	}
	l.SortByReverseDepthAndPriority()
	for i, e := range l.Alpha {
		assert.Equal(t, uint16(i), KeyMaterial(e.Key))
	}
}
