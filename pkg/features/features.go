// Package features computes differential geometry on a narrow band: unit
// normals, mean and Gaussian curvature, and feature markers for sharp edges.
// Results are stored as point data on the domain.
package features

import (
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
)

// CurvatureType selects which curvatures CalculateCurvatures stores.
type CurvatureType int

const (
	MeanCurvature CurvatureType = iota
	GaussianCurvature
	MeanAndGaussianCurvature
)

func (c CurvatureType) String() string {
	switch c {
	case MeanCurvature:
		return "mean"
	case GaussianCurvature:
		return "gaussian"
	case MeanAndGaussianCurvature:
		return "mean+gaussian"
	default:
		return fmt.Sprintf("CurvatureType(%d)", int(c))
	}
}

// Method selects how DetectFeatures flags points.
type Method int

const (
	// ByCurvature flags points whose mean curvature exceeds the limit, or in
	// 3D whose Gaussian curvature exceeds the squared limit.
	ByCurvature Method = iota
	// ByNormals flags points whose normal deviates from a neighbouring normal
	// by more than the limit angle in radians.
	ByNormals
)

func (m Method) String() string {
	switch m {
	case ByCurvature:
		return "curvature"
	case ByNormals:
		return "normals"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Options configures the calculations.
type Options struct {
	Threads  int
	MaxValue float64
}

// Option mutates Options.
type Option func(*Options)

// WithThreads sets the worker count. 0 uses GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithMaxValue sets the largest |value| for which results are computed.
// Points further from the interface get zero. The default is 0.5.
func WithMaxValue(v float64) Option {
	return func(o *Options) { o.MaxValue = v }
}

func buildOptions(opts []Option) Options {
	o := Options{MaxValue: 0.5}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stencilDomain returns d, or an expanded copy of d when its band is
// narrower than width. The copy contains every point of d.
func stencilDomain(d *ls.Domain, width, threads int) (*ls.Domain, error) {
	if d.Width() >= width {
		return d, nil
	}
	ls.Logger().Debug("expanding copy for stencil", "width", d.Width(), "required", width)
	c := d.Clone()
	c.PointData().Clear()
	if err := ls.Expand(c, width, ls.WithThreads(threads)); err != nil {
		return nil, fmt.Errorf("features: expand: %w", err)
	}
	return c, nil
}

// diff returns the central difference of v along axis at idx in grid units,
// falling back to one-sided differences next to undefined points.
func diff(d *ls.Domain, idx ls.Index, axis int, center float64) float64 {
	p := d.Value(idx.Offset(axis, 1))
	n := d.Value(idx.Offset(axis, -1))
	pf, nf := !math.IsInf(p, 0), !math.IsInf(n, 0)
	switch {
	case pf && nf:
		return (p - n) * 0.5
	case pf:
		return p - center
	case nf:
		return center - n
	}
	return 0
}

// Normal returns the unit normal at idx from central differences, pointing
// out of the material. It returns the zero vector where the gradient
// vanishes.
func Normal(d *ls.Domain, idx ls.Index) [3]float64 {
	var n [3]float64
	center := d.Value(idx)
	if math.IsInf(center, 0) {
		return n
	}
	var norm float64
	for a := 0; a < d.Dimension(); a++ {
		n[a] = diff(d, idx, a, center)
		norm += n[a] * n[a]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-12 {
		return [3]float64{}
	}
	for a := range n {
		n[a] /= norm
	}
	return n
}

// CalculateNormals stores the unit normal of every point with |v| <= MaxValue
// as the "Normals" vector data. Other points get the zero vector.
func CalculateNormals(d *ls.Domain, opts ...Option) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	o := buildOptions(opts)
	s, err := stencilDomain(d, int(math.Ceil(4*o.MaxValue+1)), o.Threads)
	if err != nil {
		return err
	}
	normals, err := normalsOn(d, s, o)
	if err != nil {
		return err
	}
	d.PointData().SetVector(ls.LabelNormals, normals)
	return nil
}

// normalsOn computes normals for the points of d using values from s.
func normalsOn(d, s *ls.Domain, o Options) ([][3]float64, error) {
	normals := make([][3]float64, d.NumPoints())
	zeros := make([]int, parallel.Chunks(d.NumPoints(), o.Threads))
	err := parallel.For(d.NumPoints(), o.Threads, func(w, start, end int) {
		for i := start; i < end; i++ {
			if math.Abs(d.ValueAt(i)) > o.MaxValue {
				continue
			}
			normals[i] = Normal(s, d.Index(i))
			if normals[i] == ([3]float64{}) {
				zeros[w]++
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("features: normals: %w", err)
	}
	var nz int
	for _, z := range zeros {
		nz += z
	}
	if nz > 0 {
		ls.Logger().Warn("normal vectors of length zero", "count", nz)
	}
	return normals, nil
}
