// Package oif implements the Online Isolation Forest, a streaming anomaly
// detector whose trees grow as samples arrive and shrink as samples leave a
// sliding window.
package oif

import (
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hed1ad/streamguard/pkg/detectors"
)

const (
	// neutralScore is returned before the forest has seen any sample.
	neutralScore = 0.5

	// epsilon guards the division when the normalization factor is zero.
	epsilon = 2.220446049250313e-16
)

var log = logrus.WithField("component", "oif")

// Forest is an ensemble of online isolation trees over a sliding window.
type Forest struct {
	mu sync.RWMutex

	// Configuration
	numTrees       int
	maxLeafSamples int
	growth         GrowthCriterion
	subsample      float64
	windowSize     int
	branching      int
	split          SplitKind
	seed           int64
	log            logrus.FieldLogger

	rng         *rand.Rand
	initialized bool
	numFeatures int

	trees               []*Tree
	window              window
	totalSize           int
	normalizationFactor float64
}

var (
	_ detectors.Model       = (*Forest)(nil)
	_ detectors.WindowSizer = (*Forest)(nil)
)

// New creates a Forest with the given options.
func New(opts ...Option) (*Forest, error) {
	f := &Forest{
		numTrees:       DefaultNumTrees,
		maxLeafSamples: DefaultMaxLeafSamples,
		growth:         DefaultGrowthCriterion,
		subsample:      DefaultSubsampleRatio,
		windowSize:     DefaultWindowSize,
		branching:      DefaultBranchingFactor,
		split:          DefaultSplitKind,
		seed:           DefaultSeed,
		log:            log,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.log == nil {
		f.log = log
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	f.rng = rand.New(rand.NewSource(f.seed))
	return f, nil
}

func (f *Forest) validate() error {
	switch {
	case f.numTrees < 1:
		return detectors.InvalidConfiguration("number of trees must be positive, got %d", f.numTrees)
	case f.maxLeafSamples < 1:
		return detectors.InvalidConfiguration("max leaf samples must be positive, got %d", f.maxLeafSamples)
	case !f.growth.valid():
		return detectors.InvalidConfiguration("unknown growth criterion %q", f.growth)
	case !(f.subsample > 0 && f.subsample <= 1):
		return detectors.InvalidConfiguration("subsample ratio must be in (0, 1], got %v", f.subsample)
	case f.windowSize < 0:
		return detectors.InvalidConfiguration("window size must not be negative, got %d", f.windowSize)
	case f.branching < 2:
		return detectors.InvalidConfiguration("branching factor must be at least 2, got %d", f.branching)
	case !f.split.valid():
		return detectors.InvalidConfiguration("unknown split kind %q", f.split)
	}
	return nil
}

func (f *Forest) initialize(numFeatures int) {
	f.numFeatures = numFeatures
	cfg := treeConfig{
		branching:      f.branching,
		maxLeafSamples: f.maxLeafSamples,
		subsample:      f.subsample,
		growth:         f.growth,
		split:          f.split,
	}
	f.trees = make([]*Tree, f.numTrees)
	for i := range f.trees {
		f.trees[i] = newTree(cfg, f.rng.Int63())
	}
	f.initialized = true

	f.log.WithFields(logrus.Fields{
		"trees":    f.numTrees,
		"features": numFeatures,
		"window":   f.windowSize,
	}).Debug("online isolation forest initialized")
}

func (f *Forest) checkSample(sample []float64) error {
	if !f.initialized {
		if len(sample) == 0 {
			return detectors.DimensionMismatch(1, 0)
		}
		return nil
	}
	if len(sample) != f.numFeatures {
		return detectors.DimensionMismatch(f.numFeatures, len(sample))
	}
	return nil
}

// FitPartial incorporates a sample into every tree and evicts the oldest
// samples once the window is full.
func (f *Forest) FitPartial(sample []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkSample(sample); err != nil {
		return err
	}
	if !f.initialized {
		f.initialize(len(sample))
	}

	row := append([]float64(nil), sample...)
	batch := [][]float64{row}
	grown, collapsed := f.structureChanges()

	f.resize(len(batch))
	for _, tree := range f.trees {
		tree.Learn(batch)
	}

	if f.windowSize > 0 {
		f.window.push(row)
		if excess := f.window.Len() - f.windowSize; excess > 0 {
			f.evict(excess)
		}
	}

	g, c := f.structureChanges()
	if g != grown || c != collapsed {
		f.log.WithFields(logrus.Fields{
			"grown":     g - grown,
			"collapsed": c - collapsed,
		}).Trace("tree structure changed")
	}

	return nil
}

// structureChanges returns how many leaves were split and how many subtrees
// were collapsed over the lifetime of all trees.
func (f *Forest) structureChanges() (grown, collapsed int) {
	for _, tree := range f.trees {
		grown += tree.grown
		collapsed += tree.collapsed
	}
	return grown, collapsed
}

// evict removes the n oldest samples from the window and from every tree.
func (f *Forest) evict(n int) {
	old := f.window.popN(n)
	f.resize(-len(old))
	for _, tree := range f.trees {
		tree.Unlearn(old)
	}

	f.log.WithField("evicted", len(old)).Debug("window evicted")
}

func (f *Forest) resize(delta int) {
	f.totalSize += delta
	f.normalizationFactor = RandomPathLength(f.branching, f.maxLeafSamples, float64(f.totalSize)*f.subsample)
}

// ScorePartial returns the anomaly score of a sample in (0, 1]. Samples that
// isolate quickly score close to 1.
func (f *Forest) ScorePartial(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.initialized {
		if len(sample) == 0 {
			return 0, detectors.DimensionMismatch(1, 0)
		}
		return neutralScore, nil
	}
	if err := f.checkSample(sample); err != nil {
		return 0, err
	}

	batch := [][]float64{sample}
	var totalDepth float64
	for _, tree := range f.trees {
		totalDepth += tree.Predict(batch)[0]
	}
	meanDepth := totalDepth / float64(len(f.trees))

	// Anomaly score: 2^(-E[h(x)] / c(n))
	return math.Pow(2, -meanDepth/(f.normalizationFactor+epsilon)), nil
}

// Size returns the number of samples currently accounted for by the forest.
func (f *Forest) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.totalSize
}

// NormalizationFactor returns the expected random isolation depth for the
// current window.
func (f *Forest) NormalizationFactor() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.normalizationFactor
}

// Stats summarizes the structure of the forest.
type Stats struct {
	Trees               int
	Features            int
	Size                int
	Window              int
	NormalizationFactor float64
	Leaves              int
	InternalNodes       int
	Grown               int
	Collapsed           int
}

// Stats returns a snapshot of the forest structure.
func (f *Forest) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Stats{
		Trees:               len(f.trees),
		Features:            f.numFeatures,
		Size:                f.totalSize,
		Window:              f.window.Len(),
		NormalizationFactor: f.normalizationFactor,
	}
	s.Grown, s.Collapsed = f.structureChanges()
	for _, tree := range f.trees {
		if tree.root == nil {
			continue
		}
		leaves, internal := tree.root.countNodes()
		s.Leaves += leaves
		s.InternalNodes += internal
	}
	return s
}
