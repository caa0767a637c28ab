package oif

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min []float64
	Max []float64
}

// emptyBounds returns a box that contains nothing: every Min is +Inf and
// every Max is -Inf.
func emptyBounds(dim int) Bounds {
	b := Bounds{Min: make([]float64, dim), Max: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		b.Min[i] = math.Inf(1)
		b.Max[i] = math.Inf(-1)
	}
	return b
}

// boundsOf returns the per-feature min/max of the samples.
func boundsOf(data [][]float64, dim int) Bounds {
	b := emptyBounds(dim)
	for _, row := range data {
		b.extend(row)
	}
	return b
}

func (b Bounds) clone() Bounds {
	return Bounds{
		Min: append([]float64(nil), b.Min...),
		Max: append([]float64(nil), b.Max...),
	}
}

// extend grows the box to cover row.
func (b *Bounds) extend(row []float64) {
	for i, v := range row {
		if v < b.Min[i] {
			b.Min[i] = v
		}
		if v > b.Max[i] {
			b.Max[i] = v
		}
	}
}

// merge grows the box to cover o.
func (b *Bounds) merge(o Bounds) {
	for i := range b.Min {
		if o.Min[i] < b.Min[i] {
			b.Min[i] = o.Min[i]
		}
		if o.Max[i] > b.Max[i] {
			b.Max[i] = o.Max[i]
		}
	}
}

// Empty reports whether the box has not covered any sample yet.
func (b Bounds) Empty() bool {
	for i := range b.Min {
		if b.Min[i] > b.Max[i] {
			return true
		}
	}
	return len(b.Min) == 0
}

// Split describes how an internal node routes samples to its children.
type Split struct {
	// Projection maps a sample to a scalar.
	Projection []float64
	// Thresholds are sorted ascending; len(Thresholds) == branching - 1.
	Thresholds []float64
}

func (s *Split) project(row []float64) float64 {
	return floats.Dot(s.Projection, row)
}

// branch returns the number of thresholds strictly below the projection of row.
func (s *Split) branch(row []float64) int {
	return sort.SearchFloat64s(s.Thresholds, s.project(row))
}

// partition groups rows by branch. Every row lands in exactly one group.
func (s *Split) partition(data [][]float64) [][][]float64 {
	parts := make([][][]float64, len(s.Thresholds)+1)
	for _, row := range data {
		j := s.branch(row)
		parts[j] = append(parts[j], row)
	}
	return parts
}

// Node is a node of an online isolation tree. A node with nil Children is a
// leaf and carries no Split.
type Node struct {
	// DataSize counts the samples absorbed by the subtree.
	DataSize int
	// Depth is the distance from the root.
	Depth int
	// Bounds covers every sample that reached the subtree.
	Bounds Bounds

	Split    *Split
	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.Children == nil
}

// Walk calls fn for n and every descendant, parents first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// boundsFromChildren re-derives the box of an internal node as the union of
// its children's boxes.
func (n *Node) boundsFromChildren() {
	b := emptyBounds(len(n.Bounds.Min))
	for _, c := range n.Children {
		b.merge(c.Bounds)
	}
	n.Bounds = b
}

// collapse folds the subtree into a single leaf whose box is the union of
// the boxes of its descendant leaves. DataSize is kept.
func (n *Node) collapse() {
	if n.IsLeaf() {
		return
	}
	for _, c := range n.Children {
		c.collapse()
	}
	n.boundsFromChildren()
	n.Split = nil
	n.Children = nil
}

// countNodes returns the number of leaves and internal nodes in the subtree.
func (n *Node) countNodes() (leaves, internal int) {
	n.Walk(func(x *Node) {
		if x.IsLeaf() {
			leaves++
		} else {
			internal++
		}
	})
	return leaves, internal
}
