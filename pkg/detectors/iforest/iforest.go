// Package iforest implements IForestASD, an isolation forest that is rebuilt
// from tumbling reference windows when the latest window drifts away from the
// one the trees were built on.
package iforest

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/streamguard/pkg/detectors"
)

// neutralScore is returned until the first window has been collected.
const neutralScore = 0.5

var log = logrus.WithField("component", "iforest")

// IsolationForest scores samples against trees built from the last reference
// window. Samples are collected into a tumbling window; a full window replaces
// the reference when its anomaly rate reaches the drift threshold.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees         int
	sampleSize     int
	windowSize     int
	contamination  float64
	driftThreshold float64
	maxDepth       int
	rng            *rand.Rand
	log            logrus.FieldLogger

	numFeatures int

	// Model built from the reference window
	trees         []*iTree
	avgPathLength float64
	cutoff        float64
	refits        int

	// Current tumbling window
	window       [][]float64
	windowScores []float64
}

var (
	_ detectors.Model       = (*IsolationForest)(nil)
	_ detectors.WindowSizer = (*IsolationForest)(nil)
)

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithWindowSize sets the number of samples per tumbling window.
func WithWindowSize(n int) Option {
	return func(f *IsolationForest) {
		f.windowSize = n
	}
}

// WithContamination sets the expected proportion of anomalies in a reference
// window. Scores above the matching quantile count towards the anomaly rate.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithDriftThreshold sets the anomaly rate at which a window replaces the
// reference.
func WithDriftThreshold(r float64) Option {
	return func(f *IsolationForest) {
		f.driftThreshold = r
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the logger used for refit events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *IsolationForest) {
		f.log = l
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) (*IsolationForest, error) {
	f := &IsolationForest{
		nTrees:         100,
		sampleSize:     256,
		windowSize:     2048,
		contamination:  0.1,
		driftThreshold: 0.2,
		rng:            rand.New(rand.NewSource(42)),
		log:            log,
	}

	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = log
	}

	switch {
	case f.nTrees < 1:
		return nil, detectors.InvalidConfiguration("number of trees must be positive, got %d", f.nTrees)
	case f.sampleSize < 2:
		return nil, detectors.InvalidConfiguration("sample size must be at least 2, got %d", f.sampleSize)
	case f.windowSize < 2:
		return nil, detectors.InvalidConfiguration("window size must be at least 2, got %d", f.windowSize)
	case !(f.contamination > 0 && f.contamination < 1):
		return nil, detectors.InvalidConfiguration("contamination must be in (0, 1), got %v", f.contamination)
	case !(f.driftThreshold > 0 && f.driftThreshold <= 1):
		return nil, detectors.InvalidConfiguration("drift threshold must be in (0, 1], got %v", f.driftThreshold)
	}

	// Max depth based on sample size
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))

	return f, nil
}

func (f *IsolationForest) checkSample(sample []float64) error {
	if f.numFeatures == 0 {
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

// FitPartial adds a sample to the current window. A full window becomes the
// first reference, or replaces the reference when it drifted, and is then
// discarded.
func (f *IsolationForest) FitPartial(sample []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkSample(sample); err != nil {
		return err
	}
	if f.numFeatures == 0 {
		f.numFeatures = len(sample)
	}

	row := append([]float64(nil), sample...)
	f.window = append(f.window, row)
	if f.trained() {
		f.windowScores = append(f.windowScores, f.predictOne(row))
	}

	if len(f.window) < f.windowSize {
		return nil
	}

	if !f.trained() {
		f.fit(f.window)
	} else if rate := f.anomalyRate(); rate >= f.driftThreshold {
		f.log.WithField("anomaly_rate", rate).Debug("window drifted, refitting")
		f.fit(f.window)
	}
	f.window = nil
	f.windowScores = f.windowScores[:0]

	return nil
}

// ScorePartial returns the anomaly score of sample against the reference
// trees, or 0.5 before the first window is complete.
func (f *IsolationForest) ScorePartial(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkSample(sample); err != nil {
		return 0, err
	}
	if !f.trained() {
		return neutralScore, nil
	}
	return f.predictOne(sample), nil
}

// Size returns the number of samples in the current window.
func (f *IsolationForest) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.window)
}

// Stats describes the model state.
type Stats struct {
	Trained bool
	Refits  int
	Window  int
	Cutoff  float64
}

// Stats returns a snapshot of the model state.
func (f *IsolationForest) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{
		Trained: f.trained(),
		Refits:  f.refits,
		Window:  len(f.window),
		Cutoff:  f.cutoff,
	}
}

func (f *IsolationForest) trained() bool {
	return len(f.trees) > 0
}

// fit rebuilds every tree from reference and recomputes the score cutoff.
func (f *IsolationForest) fit(reference [][]float64) {
	nSamples := len(reference)

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	// Build trees
	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = reference[idx]
		}

		f.trees[i] = f.buildTree(sample, 0)
	}

	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.refits++

	scores := make([]float64, nSamples)
	for i, row := range reference {
		scores[i] = f.predictOne(row)
	}
	f.cutoff = quantile(scores, 1-f.contamination)

	f.log.WithFields(logrus.Fields{
		"samples": nSamples,
		"cutoff":  f.cutoff,
		"refits":  f.refits,
	}).Debug("isolation forest refitted")
}

// anomalyRate returns the share of the current window scoring at or above
// the reference cutoff.
func (f *IsolationForest) anomalyRate() float64 {
	if len(f.windowScores) == 0 {
		return 0
	}
	var n int
	for _, s := range f.windowScores {
		if s >= f.cutoff {
			n++
		}
	}
	return float64(n) / float64(len(f.windowScores))
}

// buildTree recursively builds an isolation tree.
func (f *IsolationForest) buildTree(data [][]float64, depth int) *iTree {
	return &iTree{
		root: f.buildNode(data, depth),
	}
}

func (f *IsolationForest) buildNode(data [][]float64, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := f.rng.Intn(f.numFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = math.Min(minVal, row[feature])
		maxVal = math.Max(maxVal, row[feature])
	}

	// If all values are the same, return leaf
	if maxVal-minVal < 1e-10 {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}
	if len(leftData) == 0 || len(rightData) == 0 {
		return &node{size: n}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, depth+1),
		right:        f.buildNode(rightData, depth+1),
	}
}

func (f *IsolationForest) predictOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	if f.avgPathLength <= 0 {
		return 1
	}

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ~ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// quantile returns the empirical p-quantile of data.
func quantile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
