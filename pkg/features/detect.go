package features

import (
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
	"gonum.org/v1/gonum/spatial/r3"
)

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// DetectFeatures stores "FeatureMarkers" scalar data, 1 for points on a
// sharp feature and 0 elsewhere. For ByCurvature, limit bounds the mean
// curvature in inverse coordinate units. For ByNormals, limit is the largest
// angle in radians between neighbouring normals on a flat surface.
func DetectFeatures(d *ls.Domain, method Method, limit float64, opts ...Option) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	if !(limit >= 0) {
		return fmt.Errorf("features: detection limit must be non-negative, got %v", limit)
	}
	o := buildOptions(opts)
	var (
		flags []float64
		err   error
	)
	switch method {
	case ByCurvature:
		flags, err = detectCurvature(d, limit, o)
	case ByNormals:
		flags, err = detectNormals(d, limit, o)
	default:
		return fmt.Errorf("features: unknown detection method %v", method)
	}
	if err != nil {
		return err
	}
	d.PointData().SetScalar(ls.LabelFeatureMarkers, flags)
	return nil
}

func detectCurvature(d *ls.Domain, limit float64, o Options) ([]float64, error) {
	s, err := stencilDomain(d, curvatureWidth(0.5), o.Threads)
	if err != nil {
		return nil, err
	}
	dim := d.Dimension()
	flags := make([]float64, d.NumPoints())
	err = parallel.For(d.NumPoints(), o.Threads, func(_, start, end int) {
		for i := start; i < end; i++ {
			if math.Abs(d.ValueAt(i)) > 0.5 {
				continue
			}
			r := stencil(s, d.Index(i))
			if !r.finite() {
				continue
			}
			if math.Abs(r.mean(dim)) > limit || (dim == 3 && math.Abs(r.gaussian()) > limit*limit) {
				flags[i] = 1
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("features: detect: %w", err)
	}
	return flags, nil
}

// boxOffsets returns the 3^dim-1 offsets of the box neighbourhood.
func boxOffsets(dim int) []ls.Index {
	var offs []ls.Index
	zr := 0
	if dim == 3 {
		zr = 1
	}
	for z := -zr; z <= zr; z++ {
		for y := -1; y <= 1; y++ {
			for x := -1; x <= 1; x++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				offs = append(offs, ls.Index{x, y, z})
			}
		}
	}
	return offs
}

func detectNormals(d *ls.Domain, limit float64, o Options) ([]float64, error) {
	s, err := stencilDomain(d, 3, o.Threads)
	if err != nil {
		return nil, err
	}
	normals, err := normalsOn(s, s, o)
	if err != nil {
		return nil, err
	}
	cosLimit := math.Cos(limit)
	offs := boxOffsets(d.Dimension())
	flags := make([]float64, d.NumPoints())
	err = parallel.For(d.NumPoints(), o.Threads, func(_, start, end int) {
		for i := start; i < end; i++ {
			if math.Abs(d.ValueAt(i)) >= 0.5 {
				continue
			}
			idx := d.Index(i)
			ci, ok := s.Find(idx)
			if !ok {
				continue
			}
			cn := vec(normals[ci])
			for _, off := range offs {
				ni, ok := s.Find(s.Grid().Map(idx.Add(off)))
				if !ok || normals[ni] == ([3]float64{}) {
					continue
				}
				if cosLimit-r3.Dot(vec(normals[ni]), cn) >= 0 {
					flags[i] = 1
					break
				}
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("features: detect: %w", err)
	}
	return flags, nil
}
