package geomadvect

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// surfaceNode is a stored point moved onto the zero level set.
type surfaceNode struct {
	pos r3.Vec
	id  int
	dim int
}

func (n surfaceNode) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return component(n.pos, int(d)) - component(c.(surfaceNode).pos, int(d))
}

func (n surfaceNode) Dims() int { return n.dim }

func (n surfaceNode) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(n.pos, c.(surfaceNode).pos))
}

type surfaceNodes []surfaceNode

func (s surfaceNodes) Index(i int) kdtree.Comparable { return s[i] }
func (s surfaceNodes) Len() int                      { return len(s) }
func (s surfaceNodes) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

func (s surfaceNodes) Pivot(d kdtree.Dim) int {
	return nodePlane{Dim: d, surfaceNodes: s}.Pivot()
}

// nodePlane sorts nodes along one axis for kdtree construction.
type nodePlane struct {
	kdtree.Dim
	surfaceNodes
}

func (p nodePlane) Less(i, j int) bool {
	return component(p.surfaceNodes[i].pos, int(p.Dim)) < component(p.surfaceNodes[j].pos, int(p.Dim))
}

func (p nodePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p nodePlane) Slice(start, end int) kdtree.SortSlicer {
	p.surfaceNodes = p.surfaceNodes[start:end]
	return p
}

func (p nodePlane) Swap(i, j int) {
	p.surfaceNodes[i], p.surfaceNodes[j] = p.surfaceNodes[j], p.surfaceNodes[i]
}

// within calls fn for every node inside the box [lo, hi] on the first dim
// axes. The box is widened by pad so that nodes lying exactly on a split
// plane are not lost to the strict comparisons of the tree walk.
func within(t *kdtree.Tree, dim int, lo, hi r3.Vec, pad float64, fn func(surfaceNode) bool) {
	if t == nil || t.Root == nil {
		return
	}
	p := r3.Vec{X: pad, Y: pad, Z: pad}
	b := &kdtree.Bounding{
		Min: surfaceNode{pos: r3.Sub(lo, p), dim: dim},
		Max: surfaceNode{pos: r3.Add(hi, p), dim: dim},
	}
	t.DoBounded(b, func(c kdtree.Comparable, _ *kdtree.Bounding, _ int) bool {
		return fn(c.(surfaceNode))
	})
}
