package oif

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomPathLength(t *testing.T) {
	tests := []struct {
		name      string
		branching int
		maxLeaf   int
		n         float64
		want      float64
	}{
		{name: "empty", branching: 2, maxLeaf: 2, n: 0, want: 0},
		{name: "below leaf capacity", branching: 2, maxLeaf: 8, n: 7, want: 0},
		{name: "exactly leaf capacity", branching: 2, maxLeaf: 8, n: 8, want: 0},
		{name: "binary one level", branching: 2, maxLeaf: 2, n: 8, want: 1},
		{name: "ternary two levels", branching: 3, maxLeaf: 1, n: 36, want: 2},
		{name: "fractional", branching: 2, maxLeaf: 2, n: 4, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RandomPathLength(tt.branching, tt.maxLeaf, tt.n), 1e-12)
		})
	}
}

func TestRandomPathLengthMonotone(t *testing.T) {
	prev := 0.0
	for n := 0; n < 5000; n += 7 {
		got := RandomPathLength(3, 16, float64(n))
		assert.GreaterOrEqual(t, got, prev, "n=%d", n)
		prev = got
	}
}

func TestGrowthMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, GrowthFixed.multiplier(0))
	assert.Equal(t, 1.0, GrowthFixed.multiplier(10))
	assert.Equal(t, 1.0, GrowthAdaptive.multiplier(0))
	assert.Equal(t, 8.0, GrowthAdaptive.multiplier(3))
	assert.Equal(t, 1024.0, GrowthAdaptive.multiplier(10))

	assert.True(t, GrowthFixed.valid())
	assert.True(t, GrowthAdaptive.valid())
	assert.False(t, GrowthCriterion("exponential").valid())
	assert.True(t, SplitAxisParallel.valid())
	assert.False(t, SplitKind("oblique").valid())
}
