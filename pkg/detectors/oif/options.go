package oif

import (
	"github.com/sirupsen/logrus"
)

// Defaults applied by New.
const (
	DefaultNumTrees        = 32
	DefaultMaxLeafSamples  = 32
	DefaultGrowthCriterion = GrowthAdaptive
	DefaultSubsampleRatio  = 1.0
	DefaultWindowSize      = 2048
	DefaultBranchingFactor = 2
	DefaultSplitKind       = SplitAxisParallel
	DefaultSeed            = 42
)

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of online isolation trees.
func WithTrees(n int) Option {
	return func(f *Forest) {
		f.numTrees = n
	}
}

// WithMaxLeafSamples sets the number of samples a leaf holds before it splits.
func WithMaxLeafSamples(n int) Option {
	return func(f *Forest) {
		f.maxLeafSamples = n
	}
}

// WithGrowthCriterion sets how the split threshold scales with depth.
func WithGrowthCriterion(g GrowthCriterion) Option {
	return func(f *Forest) {
		f.growth = g
	}
}

// WithSubsampleRatio sets the probability each tree keeps a sample.
func WithSubsampleRatio(r float64) Option {
	return func(f *Forest) {
		f.subsample = r
	}
}

// WithWindowSize sets the number of recent samples the forest keeps.
// Zero disables eviction.
func WithWindowSize(n int) Option {
	return func(f *Forest) {
		f.windowSize = n
	}
}

// WithBranchingFactor sets the number of children of internal nodes.
func WithBranchingFactor(n int) Option {
	return func(f *Forest) {
		f.branching = n
	}
}

// WithSplitKind sets how projections are drawn.
func WithSplitKind(s SplitKind) Option {
	return func(f *Forest) {
		f.split = s
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *Forest) {
		f.seed = seed
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Forest) {
		f.log = l
	}
}
