package oif

import "math"

// RandomPathLength approximates the expected isolation depth of a point among
// n uniformly random points under branching-way random splitting, where
// leaves hold up to maxLeaf points.
func RandomPathLength(branching, maxLeaf int, n float64) float64 {
	if n < float64(maxLeaf) {
		return 0
	}
	return math.Log(n/float64(maxLeaf)) / math.Log(2*float64(branching))
}

// GrowthCriterion controls how the split threshold of a node scales with
// its depth.
type GrowthCriterion string

const (
	GrowthFixed    GrowthCriterion = "fixed"    // same threshold at every depth
	GrowthAdaptive GrowthCriterion = "adaptive" // threshold doubles with every level
)

func (g GrowthCriterion) valid() bool {
	return g == GrowthFixed || g == GrowthAdaptive
}

// multiplier scales maxLeafSamples at the given depth.
func (g GrowthCriterion) multiplier(depth int) float64 {
	if g == GrowthAdaptive {
		return math.Pow(2, float64(depth))
	}
	return 1
}

// SplitKind selects how projection vectors are drawn.
type SplitKind string

const (
	SplitAxisParallel SplitKind = "axisparallel" // one randomly chosen feature
)

func (s SplitKind) valid() bool {
	return s == SplitAxisParallel
}
