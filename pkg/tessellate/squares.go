package tessellate

import (
	"cmp"
	"math"
	"slices"

	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
)

// edgeKey identifies a cell edge by its lower corner and axis.
type edgeKey struct {
	idx  ls.Index
	axis int
}

// lineBuilder collects the segments of a 2D surface. Vertices on shared
// cell edges are created once.
type lineBuilder struct {
	d       *ls.Domain
	mesh    *kernel.Mesh
	nodes   map[edgeKey]uint32
	normals [][3]float64
}

// corner offsets of a square cell, bit 0 along x and bit 1 along y.
var squareCorners = [4]ls.Index{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}

// cell edges as corner pairs; the first corner is the lower one.
var squareEdges = [4][2]int{{0, 1}, {2, 3}, {0, 2}, {1, 3}}

// edges touching each corner.
var cornerEdges = [4][2]int{{0, 2}, {0, 3}, {1, 2}, {1, 3}}

// marchSquares extracts the zero level set of a 2D domain as a line mesh.
func marchSquares(d *ls.Domain) *kernel.Mesh {
	b := &lineBuilder{d: d, mesh: &kernel.Mesh{}, nodes: make(map[edgeKey]uint32)}
	for _, lower := range cells(d) {
		b.cell(lower)
	}
	for i, n := range b.normals {
		n = unit(n)
		copy(b.mesh.Normals[3*i:3*i+3], []float32{float32(n[0]), float32(n[1]), float32(n[2])})
	}
	return b.mesh
}

// cells returns the lower corners of every cell with at least one stored
// corner, sorted and unique. Periodic cells are named by their wrapped
// lower corner.
func cells(d *ls.Domain) []ls.Index {
	g := d.Grid()
	seen := make(map[ls.Index]struct{}, 4*d.NumPoints())
	var out []ls.Index
	for _, k := range d.Keys() {
		for _, off := range squareCorners {
			lower := ls.Index{k[0] - off[0], k[1] - off[1], k[2]}
			wrapped := g.Map(lower)
			for a := 0; a < 2; a++ {
				if g.BoundaryCondition(a) == ls.Periodic {
					lower[a] = wrapped[a]
				}
			}
			if !cellInside(g, lower) {
				continue
			}
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			out = append(out, lower)
		}
	}
	slices.SortFunc(out, func(a, b ls.Index) int {
		if c := cmp.Compare(a[1], b[1]); c != 0 {
			return c
		}
		return cmp.Compare(a[0], b[0])
	})
	return out
}

// cellInside reports whether the cell with lower corner idx lies within the
// reflective bounds. Periodic cells at the upper bound wrap.
func cellInside(g ls.Grid, idx ls.Index) bool {
	for a := 0; a < g.Dimension(); a++ {
		if g.BoundaryCondition(a) != ls.Reflective {
			continue
		}
		if idx[a] < g.MinIndex(a) || idx[a]+1 > g.MaxIndex(a) {
			return false
		}
	}
	return true
}

func (b *lineBuilder) cell(lower ls.Index) {
	var v [4]float64
	var neg [4]bool
	for c, off := range squareCorners {
		v[c] = clampValue(b.d, b.d.Value(lower.Add(off)))
		neg[c] = v[c] <= 0
	}
	var crossed []int
	for e, ends := range squareEdges {
		if neg[ends[0]] != neg[ends[1]] {
			crossed = append(crossed, e)
		}
	}
	switch len(crossed) {
	case 2:
		b.segment(lower, v, neg, crossed[0], crossed[1], -1)
	case 4:
		// Saddle: the cell center decides which diagonal is connected.
		center := (v[0] + v[1] + v[2] + v[3]) / 4
		if (center <= 0) == neg[0] {
			b.segment(lower, v, neg, cornerEdges[1][0], cornerEdges[1][1], 1)
			b.segment(lower, v, neg, cornerEdges[2][0], cornerEdges[2][1], 2)
		} else {
			b.segment(lower, v, neg, cornerEdges[0][0], cornerEdges[0][1], 0)
			b.segment(lower, v, neg, cornerEdges[3][0], cornerEdges[3][1], 3)
		}
	}
}

// segment adds the line between the crossings on edges e0 and e1. cut is
// the corner the segment separates from the others, or -1 when the
// segment splits the cell into negative and positive corners.
func (b *lineBuilder) segment(lower ls.Index, v [4]float64, neg [4]bool, e0, e1, cut int) {
	p := b.node(lower, v, e0)
	q := b.node(lower, v, e1)
	if p == q {
		return
	}

	// Outward direction from negative to positive corners.
	var out [3]float64
	if cut >= 0 {
		m := midpoint(b.mesh.Vertex(int(p)), b.mesh.Vertex(int(q)))
		c := b.d.Grid().Coordinate(lower.Add(squareCorners[cut]))
		out = sub(m, c)
		if !neg[cut] {
			out = sub(c, m)
		}
	} else {
		var posSum, negSum [3]float64
		var nPos, nNeg float64
		for c, off := range squareCorners {
			x := b.d.Grid().Coordinate(lower.Add(off))
			if neg[c] {
				negSum, nNeg = add(negSum, x), nNeg+1
			} else {
				posSum, nPos = add(posSum, x), nPos+1
			}
		}
		out = sub(scale(posSum, 1/nPos), scale(negSum, 1/nNeg))
	}

	// Orient segments counterclockwise around material.
	t := sub(b.mesh.Vertex(int(q)), b.mesh.Vertex(int(p)))
	if t[1]*out[0]-t[0]*out[1] < 0 {
		p, q = q, p
		t = scale(t, -1)
	}
	n := unit([3]float64{t[1], -t[0], 0})
	b.normals[p] = add(b.normals[p], n)
	b.normals[q] = add(b.normals[q], n)
	b.mesh.Lines = append(b.mesh.Lines, p, q)
}

// node returns the vertex on edge e of the cell, creating it if needed.
func (b *lineBuilder) node(lower ls.Index, v [4]float64, e int) uint32 {
	c0, c1 := squareEdges[e][0], squareEdges[e][1]
	from := lower.Add(squareCorners[c0])
	axis := 0
	if squareCorners[c1][1] != squareCorners[c0][1] {
		axis = 1
	}
	key := edgeKey{idx: from, axis: axis}
	if id, ok := b.nodes[key]; ok {
		return id
	}
	t := crossing(v[c0], v[c1])
	x := b.d.Grid().Coordinate(from)
	x[axis] += t * b.d.Spacing()
	id := b.mesh.AddVertex(x, [3]float64{})
	b.normals = append(b.normals, [3]float64{})
	b.nodes[key] = id
	return id
}

// crossing returns the position of the zero between values a and b as a
// fraction of the edge.
func crossing(a, b float64) float64 {
	if a == b {
		return 0.5
	}
	t := a / (a - b)
	return math.Max(0, math.Min(1, t))
}

// clampValue replaces the infinite values of undefined points by a value
// just outside the band.
func clampValue(d *ls.Domain, v float64) float64 {
	limit := float64(d.Width() + 1)
	return math.Max(-limit, math.Min(limit, v))
}

func add(a, b [3]float64) [3]float64 { return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func scale(a [3]float64, s float64) [3]float64 { return [3]float64{a[0] * s, a[1] * s, a[2] * s} }

func midpoint(a, b [3]float64) [3]float64 { return scale(add(a, b), 0.5) }

func unit(a [3]float64) [3]float64 {
	l := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
	if l == 0 {
		return a
	}
	return scale(a, 1/l)
}
