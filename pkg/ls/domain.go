// Package ls implements a sparse narrow-band level set on a regular lattice.
//
// A Domain stores signed distances (in grid units, negative inside material)
// only for lattice points close to the zero level set. Every other point is
// implicitly +Inf or -Inf; its sign is inferred from the nearest stored point
// in the same row, then plane, then volume, and finally from the background
// sign of the domain. Points are kept in a sorted array with the last axis
// varying slowest, so lookups are binary searches and merges are linear walks.
package ls

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
)

// DefaultWidth is the band width of freshly rasterized geometry.
const DefaultWidth = 2

// Domain is a sparse narrow-band level set. The zero value is not usable;
// create domains with New, Wrap or Clone.
type Domain struct {
	grid      Grid
	keys      []Index
	values    []float64
	width     int
	negative  bool
	pointData PointData
}

// Point is a stored lattice point exposed to mesh writers.
type Point struct {
	Index Index
	Coord [3]float64
	Value float64
}

// New returns an empty domain on grid. An empty domain has a positive
// background, i.e. contains no material.
func New(grid Grid) *Domain {
	return &Domain{grid: grid, width: DefaultWidth}
}

// Wrap returns a new domain starting from the geometry of src. The two
// domains share nothing afterwards.
func Wrap(src *Domain) *Domain {
	return src.Clone()
}

// Clone returns a deep copy of d.
func (d *Domain) Clone() *Domain {
	c := &Domain{}
	c.DeepCopy(d)
	return c
}

// DeepCopy replaces the contents of d with an independent copy of src.
func (d *Domain) DeepCopy(src *Domain) {
	if d == src {
		return
	}
	d.grid = src.grid
	d.keys = slices.Clone(src.keys)
	d.values = slices.Clone(src.values)
	d.width = src.width
	d.negative = src.negative
	d.pointData = src.pointData.Clone()
}

// Grid returns the lattice of the domain.
func (d *Domain) Grid() Grid { return d.grid }

// Dimension returns the spatial dimension.
func (d *Domain) Dimension() int { return d.grid.dim }

// Spacing returns the grid spacing.
func (d *Domain) Spacing() float64 { return d.grid.delta }

// NumPoints returns the number of stored points.
func (d *Domain) NumPoints() int { return len(d.keys) }

// Width returns the band width. Stored values satisfy |v| <= Width/2.
func (d *Domain) Width() int { return d.width }

// SetWidth records the band width without touching the stored points.
func (d *Domain) SetWidth(w int) error {
	if w < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWidth, w)
	}
	d.width = w
	return nil
}

// Finalize marks the store as a complete band of width w.
func (d *Domain) Finalize(w int) {
	d.width = w
}

// NegativeBackground reports whether undefined points far from any stored
// point are inside material.
func (d *Domain) NegativeBackground() bool { return d.negative }

// SetNegativeBackground sets the background sign.
func (d *Domain) SetNegativeBackground(neg bool) { d.negative = neg }

// PointData returns the auxiliary arrays aligned with the stored points.
func (d *Domain) PointData() *PointData { return &d.pointData }

// Index returns the lattice index of stored point i.
func (d *Domain) Index(i int) Index { return d.keys[i] }

// ValueAt returns the value of stored point i.
func (d *Domain) ValueAt(i int) float64 { return d.values[i] }

// SetValueAt overwrites the value of stored point i.
func (d *Domain) SetValueAt(i int, v float64) { d.values[i] = v }

// Keys returns the stored indices. The slice must not be modified.
func (d *Domain) Keys() []Index { return d.keys }

// Values returns the stored values. Elements may be modified in place.
func (d *Domain) Values() []float64 { return d.values }

// Clear removes every stored point and all point data.
func (d *Domain) Clear() {
	d.keys = nil
	d.values = nil
	d.pointData.Clear()
}

// Find returns the position of idx in the store.
func (d *Domain) Find(idx Index) (int, bool) {
	return slices.BinarySearchFunc(d.keys, idx, compareIndex)
}

// Lookup returns the stored value at idx after boundary mapping.
func (d *Domain) Lookup(idx Index) (float64, bool) {
	idx = d.grid.Map(idx)
	if i, ok := d.Find(idx); ok {
		return d.values[i], true
	}
	return 0, false
}

// Value returns the stored value at idx, or +Inf/-Inf with the inferred sign
// when idx is not stored.
func (d *Domain) Value(idx Index) float64 {
	idx = d.grid.Map(idx)
	if i, ok := d.Find(idx); ok {
		return d.values[i]
	}
	if d.inferNegative(idx) {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

// IsDefined reports whether idx is stored.
func (d *Domain) IsDefined(idx Index) bool {
	_, ok := d.Find(d.grid.Map(idx))
	return ok
}

// IsNegative reports whether idx is inside material.
func (d *Domain) IsNegative(idx Index) bool {
	return d.Value(idx) < 0
}

// span returns the sub-range of keys[lo:hi] whose coordinate on axis equals c.
// keys[lo:hi] must be sorted on axis, which holds when all axes above it are
// fixed.
func (d *Domain) span(lo, hi, axis, c int) (int, int) {
	a := lo + sort.Search(hi-lo, func(i int) bool { return d.keys[lo+i][axis] >= c })
	b := a + sort.Search(hi-a, func(i int) bool { return d.keys[a+i][axis] > c })
	return a, b
}

// inferNegative returns the sign of the stored point closest to idx along the
// row, then within the plane, then within the volume. A stored zero counts as
// inside, matching Prune.
func (d *Domain) inferNegative(idx Index) bool {
	if len(d.keys) == 0 {
		return d.negative
	}
	lo, hi := 0, len(d.keys)
	for axis := 2; axis >= 0; axis-- {
		a, b := d.span(lo, hi, axis, idx[axis])
		if a == b {
			var c int
			switch {
			case a == lo:
				c = d.keys[a][axis]
			case a == hi:
				c = d.keys[a-1][axis]
			default:
				below, above := d.keys[a-1][axis], d.keys[a][axis]
				if idx[axis]-below <= above-idx[axis] {
					c = below
				} else {
					c = above
				}
			}
			a, b = d.span(lo, hi, axis, c)
		}
		lo, hi = a, b
	}
	return d.values[lo] <= 0
}

// Each calls fn for every stored point in order.
func (d *Domain) Each(fn func(i int, idx Index, v float64)) {
	for i, k := range d.keys {
		fn(i, k, d.values[i])
	}
}

// Points returns all stored points with their coordinates.
func (d *Domain) Points() []Point {
	pts := make([]Point, len(d.keys))
	for i, k := range d.keys {
		pts[i] = Point{Index: k, Coord: d.grid.Coordinate(k), Value: d.values[i]}
	}
	return pts
}

// Extent returns the component-wise minimum and maximum stored index.
func (d *Domain) Extent() (lo, hi Index, ok bool) {
	if len(d.keys) == 0 {
		return lo, hi, false
	}
	lo, hi = d.keys[0], d.keys[0]
	for _, k := range d.keys[1:] {
		for a := 0; a < d.grid.dim; a++ {
			lo[a] = min(lo[a], k[a])
			hi[a] = max(hi[a], k[a])
		}
	}
	return lo, hi, true
}

// Print writes a human-readable dump of the store.
func (d *Domain) Print(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%v width=%d points=%d negativeBackground=%t\n",
		d.grid, d.width, len(d.keys), d.negative); err != nil {
		return err
	}
	for i, k := range d.keys {
		if _, err := fmt.Fprintf(w, "%v %.6f\n", k[:d.grid.dim], d.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

type entry struct {
	idx Index
	v   float64
	src int
}

// Builder collects points in any order for Domain.Assign.
type Builder struct {
	entries []entry
}

// NewBuilder returns a builder with room for n points.
func NewBuilder(n int) *Builder {
	return &Builder{entries: make([]entry, 0, n)}
}

// Add queues a point without point data.
func (b *Builder) Add(idx Index, v float64) {
	b.entries = append(b.entries, entry{idx: idx, v: v, src: -1})
}

// AddFrom queues a point whose point data is copied from stored point src of
// the domain being rebuilt.
func (b *Builder) AddFrom(idx Index, v float64, src int) {
	b.entries = append(b.entries, entry{idx: idx, v: v, src: src})
}

// Len returns the number of queued points.
func (b *Builder) Len() int { return len(b.entries) }

// Assign replaces the store of d with the builder contents. Duplicate indices
// keep the last queued value. Point data is carried through the source ids.
func (d *Domain) Assign(b *Builder) {
	slices.SortStableFunc(b.entries, func(x, y entry) int { return compareIndex(x.idx, y.idx) })
	keys := make([]Index, 0, len(b.entries))
	values := make([]float64, 0, len(b.entries))
	src := make([]int, 0, len(b.entries))
	for i, e := range b.entries {
		if i+1 < len(b.entries) && b.entries[i+1].idx == e.idx {
			continue
		}
		keys = append(keys, e.idx)
		values = append(values, e.v)
		src = append(src, e.src)
	}
	d.pointData = d.pointData.Translate(src)
	d.keys = keys
	d.values = values
}

// assignSorted installs already sorted, duplicate-free arrays.
func (d *Domain) assignSorted(keys []Index, values []float64, src []int) {
	if src != nil {
		d.pointData = d.pointData.Translate(src)
	} else {
		d.pointData.Clear()
	}
	d.keys = keys
	d.values = values
}
