package oif

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// degenerateSpread is the width under which a projection range or a box
// dimension is treated as a single value.
const degenerateSpread = 1e-10

type treeConfig struct {
	branching      int
	maxLeafSamples int
	subsample      float64
	growth         GrowthCriterion
	split          SplitKind
}

// Tree is an online isolation tree. It grows leaves into subtrees as samples
// arrive and collapses subtrees back into leaves as samples are removed.
type Tree struct {
	treeConfig

	rng        *rand.Rand
	dataSize   int
	depthLimit float64
	root       *Node

	// structural changes since the tree was created
	grown     int
	collapsed int
}

func newTree(cfg treeConfig, seed int64) *Tree {
	return &Tree{
		treeConfig: cfg,
		rng:        rand.New(rand.NewSource(seed)),
		depthLimit: RandomPathLength(cfg.branching, cfg.maxLeafSamples, 0),
	}
}

// Root returns the root node, or nil if the tree has not learned anything.
func (t *Tree) Root() *Node {
	return t.root
}

// DataSize returns the number of samples the tree currently accounts for.
func (t *Tree) DataSize() int {
	return t.dataSize
}

// DepthLimit returns the depth below which nodes may still split.
func (t *Tree) DepthLimit() float64 {
	return t.depthLimit
}

// threshold is the sample count at which a node at depth splits.
func (t *Tree) threshold(depth int) float64 {
	return float64(t.maxLeafSamples) * t.growth.multiplier(depth)
}

func (t *Tree) resize(delta int) {
	t.dataSize += delta
	if t.dataSize < 0 {
		t.dataSize = 0
	}
	t.depthLimit = RandomPathLength(t.branching, t.maxLeafSamples, float64(t.dataSize))
}

// subsampleRows keeps every row independently with probability subsample.
func (t *Tree) subsampleRows(data [][]float64) [][]float64 {
	var kept [][]float64
	for _, row := range data {
		if t.rng.Float64() < t.subsample {
			kept = append(kept, row)
		}
	}
	return kept
}

// Learn incorporates a batch of samples.
func (t *Tree) Learn(data [][]float64) {
	kept := t.subsampleRows(data)
	if len(kept) == 0 {
		return
	}

	t.resize(len(kept))

	if t.root == nil {
		t.root = t.build(kept, 0)
		return
	}
	t.grow(t.root, kept)
}

// Unlearn removes a batch of samples. Provenance is not tracked, so the
// batch is subsampled with a fresh draw at the same ratio as Learn.
func (t *Tree) Unlearn(data [][]float64) {
	kept := t.subsampleRows(data)
	if len(kept) == 0 {
		return
	}

	t.resize(-len(kept))

	if t.root != nil {
		t.shrink(t.root, kept)
	}
}

// Predict returns the isolation depth of every sample.
func (t *Tree) Predict(data [][]float64) []float64 {
	depths := make([]float64, len(data))
	if t.root == nil {
		return depths
	}
	for i, row := range data {
		depths[i] = t.isolationDepth(t.root, row)
	}
	return depths
}

// isolationDepth descends to the leaf holding row and adds the expected
// depth still needed to isolate it among the leaf's samples.
func (t *Tree) isolationDepth(n *Node, row []float64) float64 {
	for !n.IsLeaf() {
		n = n.Children[n.Split.branch(row)]
	}
	return float64(n.Depth) + RandomPathLength(t.branching, t.maxLeafSamples, float64(n.DataSize))
}

// build creates a subtree from scratch. data must not be empty.
func (t *Tree) build(data [][]float64, depth int) *Node {
	dim := len(data[0])
	n := &Node{
		DataSize: len(data),
		Depth:    depth,
		Bounds:   boundsOf(data, dim),
	}

	if float64(len(data)) < t.threshold(depth) || float64(depth) >= t.depthLimit {
		return n
	}

	n.Split = t.drawSplit(data, dim)
	n.Children = make([]*Node, t.branching)
	for j, part := range n.Split.partition(data) {
		if len(part) == 0 {
			n.Children[j] = &Node{Depth: depth + 1, Bounds: n.Bounds.clone()}
			continue
		}
		n.Children[j] = t.build(part, depth+1)
	}
	return n
}

// drawSplit picks a projection and branching-1 sorted thresholds inside the
// projected range of data.
func (t *Tree) drawSplit(data [][]float64, dim int) *Split {
	projection := t.projection(dim)

	projected := make([]float64, len(data))
	for i, row := range data {
		projected[i] = floats.Dot(projection, row)
	}
	lo, hi := floats.Min(projected), floats.Max(projected)

	thresholds := make([]float64, t.branching-1)
	if hi-lo < degenerateSpread {
		step := 2 * degenerateSpread / float64(len(thresholds))
		for i := range thresholds {
			thresholds[i] = lo - degenerateSpread + float64(i)*step
		}
	} else {
		for i := range thresholds {
			thresholds[i] = lo + t.rng.Float64()*(hi-lo)
		}
	}
	sort.Float64s(thresholds)

	return &Split{Projection: projection, Thresholds: thresholds}
}

func (t *Tree) projection(dim int) []float64 {
	p := make([]float64, dim)
	switch t.split {
	case SplitAxisParallel:
		p[t.rng.Intn(dim)] = 1
	}
	return p
}

// grow adds data to the subtree rooted at n, splitting leaves that reach
// their threshold.
func (t *Tree) grow(n *Node, data [][]float64) {
	n.DataSize += len(data)
	for _, row := range data {
		n.Bounds.extend(row)
	}

	if n.IsLeaf() {
		if float64(n.DataSize) < t.threshold(n.Depth) || float64(n.Depth) >= t.depthLimit {
			return
		}
		box := n.Bounds
		*n = *t.build(t.resample(n), n.Depth)
		n.Bounds = box
		t.grown++
		return
	}

	for j, part := range n.Split.partition(data) {
		if len(part) > 0 {
			t.grow(n.Children[j], part)
		}
	}
	n.boundsFromChildren()
}

// resample draws DataSize synthetic samples inside the box of leaf n. The
// first two are pinned to the box corners so that a subtree built from them
// covers the same box.
func (t *Tree) resample(n *Node) [][]float64 {
	dim := len(n.Bounds.Min)
	samples := make([][]float64, n.DataSize)
	for i := range samples {
		row := make([]float64, dim)
		switch i {
		case 0:
			copy(row, n.Bounds.Min)
		case 1:
			copy(row, n.Bounds.Max)
		default:
			for j := range row {
				lo, hi := n.Bounds.Min[j], n.Bounds.Max[j]
				if hi-lo < degenerateSpread {
					row[j] = lo
				} else {
					row[j] = math.Min(lo+t.rng.Float64()*(hi-lo), hi)
				}
			}
		}
		samples[i] = row
	}
	return samples
}

// shrink removes data from the subtree rooted at n, collapsing internal
// nodes that fall below their threshold.
func (t *Tree) shrink(n *Node, data [][]float64) {
	n.DataSize -= len(data)
	if n.DataSize < 0 {
		n.DataSize = 0
	}

	if n.IsLeaf() {
		return
	}

	if float64(n.DataSize) < t.threshold(n.Depth) {
		n.collapse()
		t.collapsed++
		return
	}

	for j, part := range n.Split.partition(data) {
		if len(part) > 0 {
			t.shrink(n.Children[j], part)
		}
	}
	n.boundsFromChildren()
}
