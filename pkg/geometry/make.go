package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/kernel/sdfx"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
)

// valueLimit is the largest magnitude, in grid units, kept after
// rasterization.
const valueLimit = 1 + 1e-5

// maxSamples bounds the number of lattice points scanned for one solid.
const maxSamples = 1 << 32

// ErrPlaneBoundaries is returned when a plane cannot be rasterized on the
// boundary conditions of the domain.
var ErrPlaneBoundaries = errors.New("geometry: plane needs exactly one infinite axis or a fully bounded grid")

// Options configures MakeGeometry.
type Options struct {
	Kernel                   kernel.Kernel
	Threads                  int
	IgnoreBoundaryConditions bool
}

// Option mutates Options.
type Option func(*Options)

// WithKernel selects the geometry kernel used for box, cylinder and custom
// solids.
func WithKernel(k kernel.Kernel) Option {
	return func(o *Options) { o.Kernel = k }
}

// WithThreads sets the worker count. 0 uses GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithIgnoreBoundaryConditions rasterizes the primitive as given, without
// mirrored or wrapped images at bounded axes.
func WithIgnoreBoundaryConditions() Option {
	return func(o *Options) { o.IgnoreBoundaryConditions = true }
}

// MakeGeometry replaces the contents of d with the narrow band of p. Stored
// values are signed distances in grid units with magnitude at most one. The
// band width is set to 2; the result is not pruned.
func MakeGeometry(d *ls.Domain, p Primitive, opts ...Option) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Kernel == nil {
		o.Kernel = sdfx.New()
	}

	var (
		b   *ls.Builder
		err error
	)
	switch p := p.(type) {
	case Plane:
		b, err = rasterizePlane(d.Grid(), p)
	case Sphere:
		if !(p.Radius > 0) {
			return fmt.Errorf("geometry: sphere radius must be positive, got %v", p.Radius)
		}
		r := p.Radius
		b, err = rasterize(d.Grid(), analytic{
			lo:   [3]float64{p.Origin[0] - r, p.Origin[1] - r, p.Origin[2] - r},
			hi:   [3]float64{p.Origin[0] + r, p.Origin[1] + r, p.Origin[2] + r},
			dist: func(x [3]float64) float64 { return sphereDistance(p.Origin, r, x, d.Dimension()) },
		}, o)
	case nil:
		return fmt.Errorf("geometry: nil primitive")
	default:
		var s kernel.Solid
		s, err = p.Solid(o.Kernel, d.Dimension())
		if err != nil {
			return err
		}
		lo, hi := s.BoundingBox()
		b, err = rasterize(d.Grid(), analytic{lo: lo, hi: hi, dist: s.Evaluate}, o)
	}
	if err != nil {
		return err
	}

	d.Clear()
	d.SetNegativeBackground(false)
	d.Assign(b)
	d.Finalize(ls.DefaultWidth)
	ls.Logger().Debug("geometry rasterized", "primitive", fmt.Sprintf("%T", p), "points", d.NumPoints())
	return nil
}

// analytic is a bounded signed distance function in coordinate units.
type analytic struct {
	lo, hi [3]float64
	dist   func(x [3]float64) float64
}

func sphereDistance(c [3]float64, r float64, x [3]float64, dim int) float64 {
	var s float64
	for a := 0; a < dim; a++ {
		t := x[a] - c[a]
		s += t * t
	}
	return math.Sqrt(s) - r
}

// axisRange is the inclusive index range scanned along one axis together
// with the coordinate offsets of the images folded onto it.
type axisRange struct {
	lo, hi int
	shifts []imageShift
}

// imageShift maps a lattice index i to the image index mirror*i + offset.
type imageShift struct {
	mirror int
	offset int
}

// scanRanges computes per-axis candidate ranges covering the solid's box and
// all its boundary images, clipped to the valid index range.
func scanRanges(g ls.Grid, s analytic, ignoreBCs bool) ([3]axisRange, bool) {
	var r [3]axisRange
	delta := g.Spacing()
	for a := 0; a < 3; a++ {
		if a >= g.Dimension() {
			r[a] = axisRange{shifts: []imageShift{{1, 0}}}
			continue
		}
		lo := int(math.Floor(s.lo[a]/delta)) - 2
		hi := int(math.Ceil(s.hi[a]/delta)) + 2
		shifts := []imageShift{{1, 0}}
		if !ignoreBCs {
			m, M := g.MinIndex(a), g.MaxIndex(a)
			switch g.BoundaryCondition(a) {
			case ls.Reflective:
				shifts = append(shifts, imageShift{-1, 2 * m}, imageShift{-1, 2 * M})
				lo, hi = min(lo, 2*m-hi, 2*M-hi), max(hi, 2*m-lo, 2*M-lo)
			case ls.Periodic:
				p := M - m
				shifts = append(shifts, imageShift{1, -p}, imageShift{1, p})
				lo, hi = lo-p, hi+p
			}
		}
		switch g.BoundaryCondition(a) {
		case ls.Reflective:
			lo, hi = max(lo, g.MinIndex(a)), min(hi, g.MaxIndex(a))
		case ls.Periodic:
			lo, hi = max(lo, g.MinIndex(a)), min(hi, g.MaxIndex(a)-1)
		}
		if lo > hi {
			return r, false
		}
		r[a] = axisRange{lo: lo, hi: hi, shifts: shifts}
	}
	return r, true
}

// rasterize samples s at every candidate index and keeps the points whose
// distance to the nearest image lies within valueLimit.
func rasterize(g ls.Grid, s analytic, o Options) (*ls.Builder, error) {
	ranges, ok := scanRanges(g, s, o.IgnoreBoundaryConditions)
	if !ok {
		return ls.NewBuilder(0), nil
	}
	nx := ranges[0].hi - ranges[0].lo + 1
	ny := ranges[1].hi - ranges[1].lo + 1
	nz := ranges[2].hi - ranges[2].lo + 1
	if float64(nx)*float64(ny)*float64(nz) > maxSamples {
		return nil, fmt.Errorf("geometry: solid spans %dx%dx%d lattice points on an open grid", nx, ny, nz)
	}
	total := nx * ny * nz
	delta := g.Spacing()

	type sample struct {
		idx ls.Index
		v   float64
	}
	found := make([][]sample, parallel.Chunks(total, o.Threads))
	err := parallel.For(total, o.Threads, func(w, start, end int) {
		var local []sample
		for n := start; n < end; n++ {
			idx := ls.Index{
				ranges[0].lo + n%nx,
				ranges[1].lo + (n/nx)%ny,
				ranges[2].lo + n/(nx*ny),
			}
			v := math.Inf(1)
			for _, sx := range ranges[0].shifts {
				for _, sy := range ranges[1].shifts {
					for _, sz := range ranges[2].shifts {
						img := ls.Index{
							sx.mirror*idx[0] + sx.offset,
							sy.mirror*idx[1] + sy.offset,
							sz.mirror*idx[2] + sz.offset,
						}
						if dv := s.dist(g.Coordinate(img)) / delta; dv < v {
							v = dv
						}
					}
				}
			}
			if math.Abs(v) <= valueLimit {
				local = append(local, sample{idx, v})
			}
		}
		found[w] = local
	})
	if err != nil {
		return nil, fmt.Errorf("geometry: rasterize: %w", err)
	}

	n := 0
	for _, f := range found {
		n += len(f)
	}
	b := ls.NewBuilder(n)
	for _, f := range found {
		for _, s := range f {
			b.Add(s.idx, s.v)
		}
	}
	return b, nil
}

// rasterizePlane evaluates the plane analytically along one column axis. The
// column axis is the infinite axis if there is one, otherwise the axis the
// normal is most aligned with.
func rasterizePlane(g ls.Grid, p Plane) (*ls.Builder, error) {
	dim := g.Dimension()
	n := p.unit(dim)
	if math.IsNaN(n[0]) || (n[0] == 0 && n[1] == 0 && n[2] == 0) {
		return nil, fmt.Errorf("geometry: plane normal is zero")
	}
	col := -1
	for a := 0; a < dim; a++ {
		if g.IsBounded(a) {
			continue
		}
		if col >= 0 {
			return nil, fmt.Errorf("%w: axes %d and %d are infinite", ErrPlaneBoundaries, col, a)
		}
		col = a
	}
	if col < 0 {
		col = 0
		for a := 1; a < dim; a++ {
			if math.Abs(n[a]) > math.Abs(n[col]) {
				col = a
			}
		}
	}
	if n[col] == 0 {
		return nil, fmt.Errorf("geometry: plane cannot be parallel to the infinite axis %d", col)
	}

	delta := g.Spacing()
	// other axes, padded to 3 so 2D uses a single plane
	var others [2]axisRange
	k := 0
	for a := 0; a < 3; a++ {
		if a == col {
			continue
		}
		switch {
		case a >= dim:
			others[k] = axisRange{lo: 0, hi: 0}
		case g.BoundaryCondition(a) == ls.Periodic:
			others[k] = axisRange{lo: g.MinIndex(a), hi: g.MaxIndex(a) - 1}
		default:
			others[k] = axisRange{lo: g.MinIndex(a), hi: g.MaxIndex(a)}
		}
		k++
	}
	axes := [2]int{(col + 1) % 3, (col + 2) % 3}
	if axes[0] > axes[1] {
		axes[0], axes[1] = axes[1], axes[0]
	}

	b := ls.NewBuilder(0)
	reach := valueLimit / math.Abs(n[col])
	for u := others[0].lo; u <= others[0].hi; u++ {
		for v := others[1].lo; v <= others[1].hi; v++ {
			var idx ls.Index
			idx[axes[0]], idx[axes[1]] = u, v
			// signed distance in grid units: n·(idx - o/Δ), linear along col
			var base float64
			for a := 0; a < dim; a++ {
				if a != col {
					base += n[a] * (float64(idx[a]) - p.Origin[a]/delta)
				}
			}
			t := p.Origin[col]/delta - base/n[col]
			lo := int(math.Ceil(t - reach))
			hi := int(math.Floor(t + reach))
			if g.IsBounded(col) {
				lo = max(lo, g.MinIndex(col))
				top := g.MaxIndex(col)
				if g.BoundaryCondition(col) == ls.Periodic {
					top--
				}
				hi = min(hi, top)
			}
			for i := lo; i <= hi; i++ {
				idx[col] = i
				dv := n[col] * (float64(i) - t)
				if math.Abs(dv) <= valueLimit {
					b.Add(idx, dv)
				}
			}
		}
	}
	return b, nil
}
