package oif

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounds(t *testing.T) {
	b := emptyBounds(2)
	assert.True(t, b.Empty())
	assert.True(t, math.IsInf(b.Min[0], 1))
	assert.True(t, math.IsInf(b.Max[1], -1))

	b.extend([]float64{1, 5})
	b.extend([]float64{-2, 3})
	assert.False(t, b.Empty())
	assert.Equal(t, []float64{-2, 3}, b.Min)
	assert.Equal(t, []float64{1, 5}, b.Max)

	c := b.clone()
	c.extend([]float64{10, 10})
	assert.Equal(t, []float64{1, 5}, b.Max, "clone must not share storage")

	b.merge(Bounds{Min: []float64{0, -1}, Max: []float64{0, 4}})
	assert.Equal(t, []float64{-2, -1}, b.Min)
	assert.Equal(t, []float64{1, 5}, b.Max)

	assert.Equal(t, b, boundsOf([][]float64{{-2, 5}, {1, -1}}, 2))
}

func TestSplitBranch(t *testing.T) {
	s := &Split{
		Projection: []float64{0, 1},
		Thresholds: []float64{1, 2, 3},
	}

	tests := []struct {
		row  []float64
		want int
	}{
		{row: []float64{100, 0}, want: 0},
		{row: []float64{0, 1}, want: 0},
		{row: []float64{0, 1.5}, want: 1},
		{row: []float64{0, 2}, want: 1},
		{row: []float64{0, 2.0001}, want: 2},
		{row: []float64{0, 50}, want: 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.branch(tt.row), "row %v", tt.row)
	}

	parts := s.partition([][]float64{{0, 0}, {0, 10}, {0, 1.5}, {0, 11}})
	require.Len(t, parts, 4)
	assert.Len(t, parts[0], 1)
	assert.Len(t, parts[1], 1)
	assert.Len(t, parts[2], 0)
	assert.Len(t, parts[3], 2)
}

func TestNodeCollapse(t *testing.T) {
	leaf := func(depth int, min, max float64) *Node {
		return &Node{
			DataSize: 1,
			Depth:    depth,
			Bounds:   Bounds{Min: []float64{min}, Max: []float64{max}},
		}
	}

	inner := &Node{
		DataSize: 2,
		Depth:    1,
		Bounds:   Bounds{Min: []float64{0}, Max: []float64{4}},
		Split:    &Split{Projection: []float64{1}, Thresholds: []float64{2}},
		Children: []*Node{leaf(2, 0, 1), leaf(2, 3, 4)},
	}
	root := &Node{
		DataSize: 3,
		Bounds:   Bounds{Min: []float64{0}, Max: []float64{9}},
		Split:    &Split{Projection: []float64{1}, Thresholds: []float64{5}},
		Children: []*Node{inner, leaf(1, 8, 9)},
	}

	leaves, internal := root.countNodes()
	assert.Equal(t, 3, leaves)
	assert.Equal(t, 2, internal)

	root.collapse()
	assert.True(t, root.IsLeaf())
	assert.Nil(t, root.Split)
	assert.Equal(t, 3, root.DataSize)
	assert.Equal(t, []float64{0}, root.Bounds.Min)
	assert.Equal(t, []float64{9}, root.Bounds.Max)

	leaves, internal = root.countNodes()
	assert.Equal(t, 1, leaves)
	assert.Equal(t, 0, internal)
}

func TestWindow(t *testing.T) {
	var w window
	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.popN(3))

	for i := 0; i < 10; i++ {
		w.push([]float64{float64(i)})
	}
	assert.Equal(t, 10, w.Len())

	old := w.popN(5)
	require.Len(t, old, 5)
	for i, row := range old {
		assert.Equal(t, float64(i), row[0])
	}

	// wraps around the ring, then forces a resize
	for i := 10; i < 40; i++ {
		w.push([]float64{float64(i)})
	}
	assert.Equal(t, 35, w.Len())

	rest := w.popN(100)
	require.Len(t, rest, 35)
	for i, row := range rest {
		assert.Equal(t, float64(i+5), row[0])
	}
	assert.Equal(t, 0, w.Len())
}
