// Package voids finds connected regions of a level set and marks the points
// that do not belong to the exposed surface.
//
// The lattice around the stored points is split into row segments: every
// stored point is one segment and every run of undefined points between
// them is another. Segments with the same sign that touch along a grid axis
// are connected. One component is chosen as the top surface; positive points
// outside it and negative points without a positive neighbour in it are
// voids.
package voids

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/chazu/narrowband/pkg/ls"
)

// TopSurface selects the component that counts as the exposed surface.
type TopSurface int

const (
	// LexHighest picks the component of the lexicographically last point.
	LexHighest TopSurface = iota
	// LexLowest picks the component of the lexicographically first point.
	LexLowest
	// Largest picks the component with the most positive points.
	Largest
	// Smallest picks the component with the fewest positive points.
	Smallest
)

func (t TopSurface) String() string {
	switch t {
	case LexHighest:
		return "lex-highest"
	case LexLowest:
		return "lex-lowest"
	case Largest:
		return "largest"
	case Smallest:
		return "smallest"
	default:
		return fmt.Sprintf("TopSurface(%d)", int(t))
	}
}

// Options configures MarkVoidPoints and RemoveStrayPoints.
type Options struct {
	TopSurface       TopSurface
	Reverse          bool
	SaveComponentIDs bool
}

type Option func(*Options)

func WithTopSurface(t TopSurface) Option {
	return func(o *Options) { o.TopSurface = t }
}

// WithReverseVoidDetection flips the choice of the top surface, e.g. from
// the lexicographically last to the first component.
func WithReverseVoidDetection(b bool) Option {
	return func(o *Options) { o.Reverse = b }
}

// WithSaveComponentIDs stores the component of every point as
// "ConnectedComponentId".
func WithSaveComponentIDs() Option {
	return func(o *Options) { o.SaveComponentIDs = true }
}

// Result of MarkVoidPoints. ComponentIDs and Void are aligned with the
// stored points.
type Result struct {
	Components   int
	Top          int
	ComponentIDs []int
	Void         []bool
}

// NumVoidPoints counts the points marked as void.
func (r Result) NumVoidPoints() int {
	var n int
	for _, v := range r.Void {
		if v {
			n++
		}
	}
	return n
}

type segment struct {
	x0, x1 int
	neg    bool
	point  int
}

type row struct {
	segs  []segment
	first int
}

type lattice struct {
	d      *ls.Domain
	lo, hi ls.Index
	ny     int
	rows   []row
	nodes  int
	ofPt   []int
}

func cmpIndex(a, b ls.Index) int {
	for axis := 2; axis >= 0; axis-- {
		if a[axis] != b[axis] {
			if a[axis] < b[axis] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// newLattice splits the box around the stored points into row segments. The
// box extends one cell past the points on every open side so that the
// outside region is connected.
func newLattice(d *ls.Domain) *lattice {
	g := d.Grid()
	dim := d.Dimension()
	lo, hi, _ := d.Extent()
	for a := 0; a < dim; a++ {
		lo[a], hi[a] = lo[a]-1, hi[a]+1
		if g.IsBounded(a) {
			top := g.MaxIndex(a)
			if g.BoundaryCondition(a) == ls.Periodic {
				top--
			}
			lo[a], hi[a] = max(lo[a], g.MinIndex(a)), min(hi[a], top)
		}
	}
	l := &lattice{d: d, lo: lo, hi: hi, ny: hi[1] - lo[1] + 1, ofPt: make([]int, d.NumPoints())}
	keys := d.Keys()
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			r := row{first: l.nodes}
			x := lo[0]
			gap := func(end int) {
				if end < x {
					return
				}
				neg := d.Value(ls.Index{x, y, z}) < 0
				r.segs = append(r.segs, segment{x0: x, x1: end, neg: neg, point: -1})
			}
			p := sort.Search(len(keys), func(i int) bool { return cmpIndex(keys[i], ls.Index{lo[0], y, z}) >= 0 })
			for ; p < len(keys) && keys[p][1] == y && keys[p][2] == z && keys[p][0] <= hi[0]; p++ {
				k := keys[p]
				gap(k[0] - 1)
				l.ofPt[p] = r.first + len(r.segs)
				r.segs = append(r.segs, segment{x0: k[0], x1: k[0], neg: d.ValueAt(p) < 0, point: p})
				x = k[0] + 1
			}
			gap(hi[0])
			l.nodes += len(r.segs)
			l.rows = append(l.rows, r)
		}
	}
	return l
}

func (l *lattice) row(y, z int) (*row, bool) {
	if y < l.lo[1] || y > l.hi[1] || z < l.lo[2] || z > l.hi[2] {
		return nil, false
	}
	return &l.rows[(z-l.lo[2])*l.ny+(y-l.lo[1])], true
}

// node returns the segment node containing idx, or -1 outside the box.
func (l *lattice) node(idx ls.Index) int {
	idx = l.d.Grid().Map(idx)
	if p, ok := l.d.Find(idx); ok {
		return l.ofPt[p]
	}
	if idx[0] < l.lo[0] || idx[0] > l.hi[0] {
		return -1
	}
	r, ok := l.row(idx[1], idx[2])
	if !ok {
		return -1
	}
	s := sort.Search(len(r.segs), func(i int) bool { return r.segs[i].x1 >= idx[0] })
	if s == len(r.segs) {
		return -1
	}
	return r.first + s
}

// graph connects touching segments of equal sign.
func (l *lattice) graph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for id := 0; id < l.nodes; id++ {
		g.AddNode(simple.Node(id))
	}
	connect := func(u, v int) {
		if u != v && !g.HasEdgeBetween(int64(u), int64(v)) {
			g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		}
	}
	link := func(a, b *row) {
		i, j := 0, 0
		for i < len(a.segs) && j < len(b.segs) {
			sa, sb := a.segs[i], b.segs[j]
			if sa.x0 <= sb.x1 && sb.x0 <= sa.x1 && sa.neg == sb.neg {
				connect(a.first+i, b.first+j)
			}
			if sa.x1 < sb.x1 {
				i++
			} else {
				j++
			}
		}
	}
	for z := l.lo[2]; z <= l.hi[2]; z++ {
		for y := l.lo[1]; y <= l.hi[1]; y++ {
			r, _ := l.row(y, z)
			for i := 0; i+1 < len(r.segs); i++ {
				if r.segs[i].neg == r.segs[i+1].neg {
					connect(r.first+i, r.first+i+1)
				}
			}
			if next, ok := l.row(y+1, z); ok {
				link(r, next)
			}
			if next, ok := l.row(y, z+1); ok {
				link(r, next)
			}
		}
	}
	return g
}

// positives returns the number of positive lattice points of every node.
func (l *lattice) positives() []int {
	out := make([]int, l.nodes)
	for _, r := range l.rows {
		for i, s := range r.segs {
			switch {
			case s.point >= 0 && l.d.ValueAt(s.point) >= 0:
				out[r.first+i] = 1
			case s.point < 0 && !s.neg:
				out[r.first+i] = s.x1 - s.x0 + 1
			}
		}
	}
	return out
}

// MarkVoidPoints labels the connected regions of d and stores
// "VoidPointMarkers" (1 for void points) as point data.
func MarkVoidPoints(d *ls.Domain, opts ...Option) (Result, error) {
	if d == nil {
		return Result{}, ls.ErrNilDomain
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	n := d.NumPoints()
	res := Result{ComponentIDs: make([]int, n), Void: make([]bool, n)}
	if n == 0 {
		d.PointData().SetScalar(ls.LabelVoidMarkers, []float64{})
		return res, nil
	}

	l := newLattice(d)
	comps := topo.ConnectedComponents(l.graph())

	// Components are numbered in order of their first node.
	raw := make([]int, l.nodes)
	for c, nodes := range comps {
		for _, nd := range nodes {
			raw[nd.ID()] = c
		}
	}
	label := make([]int, len(comps))
	for i := range label {
		label[i] = -1
	}
	compOf := make([]int, l.nodes)
	next := 0
	for id, c := range raw {
		if label[c] < 0 {
			label[c] = next
			next++
		}
		compOf[id] = label[c]
	}
	res.Components = len(comps)

	counts := make([]int, len(comps))
	for id, p := range l.positives() {
		counts[compOf[id]] += p
	}
	res.Top = topComponent(o, compOf, counts)

	markers := make([]float64, n)
	var ids []float64
	if o.SaveComponentIDs {
		ids = make([]float64, n)
	}
	dim := d.Dimension()
	for p := 0; p < n; p++ {
		c := compOf[l.ofPt[p]]
		res.ComponentIDs[p] = c
		v := d.ValueAt(p)
		if v >= 0 {
			res.Void[p] = c != res.Top
		} else {
			res.Void[p] = true
			idx := d.Index(p)
		search:
			for axis := 0; axis < dim; axis++ {
				for _, off := range [2]int{-1, 1} {
					nb := idx.Offset(axis, off)
					if math.Signbit(d.Value(nb)) == math.Signbit(v) {
						continue
					}
					if id := l.node(nb); id >= 0 && compOf[id] == res.Top {
						res.Void[p] = false
						break search
					}
				}
			}
		}
		if res.Void[p] {
			markers[p] = 1
		}
		if ids != nil {
			ids[p] = float64(c)
		}
	}
	d.PointData().SetScalar(ls.LabelVoidMarkers, markers)
	if ids != nil {
		d.PointData().SetScalar(ls.LabelComponentIDs, ids)
	}
	ls.Logger().Debug("void points marked", "components", res.Components,
		"top", res.Top, "voids", res.NumVoidPoints())
	return res, nil
}

func topComponent(o Options, compOf, counts []int) int {
	reverse, largest := false, false
	switch o.TopSurface {
	case LexLowest:
		reverse = true
	case Largest:
		largest = true
	case Smallest:
		reverse, largest = true, true
	}
	if o.Reverse {
		reverse = !reverse
	}

	if largest {
		top := -1
		for c, n := range counts {
			if n == 0 {
				continue
			}
			if top < 0 || (counts[top] < n) != reverse && counts[top] != n {
				top = c
			}
		}
		return max(top, 0)
	}

	top := compOf[len(compOf)-1]
	step := -1
	if reverse {
		top, step = compOf[0], 1
	}
	for top >= 0 && top < len(counts) && counts[top] == 0 {
		top += step
	}
	if top < 0 || top >= len(counts) {
		return compOf[len(compOf)-1]
	}
	return top
}

// RemoveStrayPoints drops every void point of d, keeping the surface of the
// top component. The default top surface is Largest.
func RemoveStrayPoints(d *ls.Domain, opts ...Option) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	if d.NumPoints() == 0 {
		return nil
	}
	res, err := MarkVoidPoints(d, append([]Option{WithTopSurface(Largest)}, opts...)...)
	if err != nil {
		return err
	}
	b := ls.NewBuilder(d.NumPoints())
	d.Each(func(i int, idx ls.Index, v float64) {
		if !res.Void[i] {
			b.AddFrom(idx, v, i)
		}
	})
	d.Assign(b)
	d.PointData().RemoveScalar(ls.LabelVoidMarkers)
	d.Finalize(2)
	ls.Logger().Debug("stray points removed", "removed", res.NumVoidPoints(), "kept", d.NumPoints())
	return nil
}
