package ls

import (
	"fmt"
	"math"
)

// BoundaryCondition controls how lattice indices beyond the grid bounds are
// interpreted along one axis.
type BoundaryCondition int

const (
	// Reflective mirrors the level set at the boundary: index min-k maps to
	// min+k and max+k to max-k. Valid indices are [min, max].
	Reflective BoundaryCondition = iota
	// Infinite leaves the axis open. Bounds are only used as a hint for
	// rasterization.
	Infinite
	// Periodic wraps with period max-min. Valid indices are [min, max-1].
	Periodic
)

func (b BoundaryCondition) String() string {
	switch b {
	case Reflective:
		return "reflective"
	case Infinite:
		return "infinite"
	case Periodic:
		return "periodic"
	default:
		return fmt.Sprintf("BoundaryCondition(%d)", int(b))
	}
}

// Index is a lattice coordinate. Axes beyond the grid dimension are zero.
type Index [3]int

// Add returns the component-wise sum.
func (i Index) Add(o Index) Index {
	return Index{i[0] + o[0], i[1] + o[1], i[2] + o[2]}
}

// Offset returns i moved by delta along axis.
func (i Index) Offset(axis, delta int) Index {
	i[axis] += delta
	return i
}

// compareIndex orders indices with the last axis slowest.
func compareIndex(a, b Index) int {
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

// Grid describes the lattice a Domain lives on. It is immutable.
type Grid struct {
	dim   int
	delta float64
	min   Index
	max   Index
	bcs   [3]BoundaryCondition
}

// NewGrid builds a grid of the given dimension and spacing. bounds holds
// min,max pairs per axis in coordinate units and may be nil, in which case
// every axis is Infinite. bcs may be nil (all Reflective when bounds are set).
func NewGrid(dim int, delta float64, bounds []float64, bcs []BoundaryCondition) (Grid, error) {
	if dim != 2 && dim != 3 {
		return Grid{}, fmt.Errorf("%w: got %d", ErrInvalidDimension, dim)
	}
	if !(delta > 0) || math.IsInf(delta, 0) {
		return Grid{}, fmt.Errorf("%w: got %v", ErrInvalidSpacing, delta)
	}
	g := Grid{dim: dim, delta: delta}
	if bounds == nil {
		for a := 0; a < dim; a++ {
			g.bcs[a] = Infinite
		}
		return g, nil
	}
	if len(bounds) != 2*dim {
		return Grid{}, fmt.Errorf("%w: need %d values, got %d", ErrInvalidBounds, 2*dim, len(bounds))
	}
	if bcs != nil && len(bcs) != dim {
		return Grid{}, fmt.Errorf("%w: need %d boundary conditions, got %d", ErrInvalidBounds, dim, len(bcs))
	}
	for a := 0; a < dim; a++ {
		lo, hi := bounds[2*a], bounds[2*a+1]
		if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
			return Grid{}, fmt.Errorf("%w: axis %d has [%v, %v]", ErrInvalidBounds, a, lo, hi)
		}
		g.min[a] = int(math.Floor(lo / delta))
		g.max[a] = int(math.Ceil(hi / delta))
		if bcs != nil {
			g.bcs[a] = bcs[a]
		}
		if g.bcs[a] == Periodic && g.max[a] == g.min[a] {
			return Grid{}, fmt.Errorf("%w: periodic axis %d has zero period", ErrInvalidBounds, a)
		}
	}
	return g, nil
}

// Dimension returns 2 or 3.
func (g Grid) Dimension() int { return g.dim }

// Spacing returns the lattice spacing.
func (g Grid) Spacing() float64 { return g.delta }

// MinIndex returns the lowest lattice index of axis.
func (g Grid) MinIndex(axis int) int { return g.min[axis] }

// MaxIndex returns the highest lattice index of axis.
func (g Grid) MaxIndex(axis int) int { return g.max[axis] }

// BoundaryCondition returns the boundary treatment of axis.
func (g Grid) BoundaryCondition(axis int) BoundaryCondition { return g.bcs[axis] }

// IsBounded reports whether axis has a finite valid index range.
func (g Grid) IsBounded(axis int) bool { return g.bcs[axis] != Infinite }

// Coordinate converts a lattice index into coordinate units.
func (g Grid) Coordinate(idx Index) [3]float64 {
	var c [3]float64
	for a := 0; a < g.dim; a++ {
		c[a] = float64(idx[a]) * g.delta
	}
	return c
}

// Inside reports whether idx is a valid stored index. Unbounded axes accept
// every value.
func (g Grid) Inside(idx Index) bool {
	for a := 0; a < g.dim; a++ {
		switch g.bcs[a] {
		case Reflective:
			if idx[a] < g.min[a] || idx[a] > g.max[a] {
				return false
			}
		case Periodic:
			if idx[a] < g.min[a] || idx[a] >= g.max[a] {
				return false
			}
		}
	}
	return true
}

// Map folds idx into the valid index range according to the boundary
// conditions.
func (g Grid) Map(idx Index) Index {
	for a := 0; a < g.dim; a++ {
		idx[a] = g.mapAxis(a, idx[a])
	}
	return idx
}

func (g Grid) mapAxis(a, i int) int {
	lo, hi := g.min[a], g.max[a]
	switch g.bcs[a] {
	case Reflective:
		if lo == hi {
			return lo
		}
		for i < lo || i > hi {
			if i < lo {
				i = 2*lo - i
			}
			if i > hi {
				i = 2*hi - i
			}
		}
	case Periodic:
		p := hi - lo
		i = lo + ((i-lo)%p+p)%p
	}
	return i
}

// Compatible reports whether two grids share dimension and spacing.
func (g Grid) Compatible(o Grid) bool {
	return g.dim == o.dim && g.delta == o.delta
}

func (g Grid) String() string {
	return fmt.Sprintf("Grid{dim=%d delta=%g min=%v max=%v bcs=%v}", g.dim, g.delta, g.min, g.max, g.bcs[:g.dim])
}
