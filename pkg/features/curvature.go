package features

import (
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
)

// derivatives holds first derivatives (grid units) in [0:3], second
// derivatives in [3:6] and the mixed derivatives xy, yz, zx in [6:9].
type derivatives [9]float64

// stencil collects the derivatives at idx from the 3x3 plane stencils.
func stencil(d *ls.Domain, idx ls.Index) derivatives {
	var r derivatives
	dim := d.Dimension()
	delta := d.Spacing()
	c := d.Value(idx)
	for i := 0; i < dim; i++ {
		j := (i + 1) % dim
		px := d.Value(idx.Offset(i, 1))
		nx := d.Value(idx.Offset(i, -1))
		pp := d.Value(idx.Offset(i, 1).Offset(j, 1))
		np := d.Value(idx.Offset(i, -1).Offset(j, 1))
		pn := d.Value(idx.Offset(i, 1).Offset(j, -1))
		nn := d.Value(idx.Offset(i, -1).Offset(j, -1))
		r[i] = (px - nx) / 2
		r[i+3] = (px - 2*c + nx) / delta
		r[i+6] = (pp - pn - np + nn) / (4 * delta)
	}
	return r
}

func (r derivatives) finite() bool {
	for _, v := range r {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func (r derivatives) mean(dim int) float64 {
	if r[0] == 0 && r[1] == 0 && r[2] == 0 {
		return 0
	}
	if dim == 2 {
		norm := math.Pow(r[0]*r[0]+r[1]*r[1], 1.5)
		return (r[3]*r[1]*r[1] - 2*r[1]*r[0]*r[6] + r[4]*r[0]*r[0]) / norm
	}
	norm := math.Pow(r[0]*r[0]+r[1]*r[1]+r[2]*r[2], 1.5)
	return (r[0]*r[0]*(r[4]+r[5]) + r[1]*r[1]*(r[3]+r[5]) + r[2]*r[2]*(r[3]+r[4]) -
		2*(r[0]*r[1]*r[6]+r[0]*r[2]*r[8]+r[1]*r[2]*r[7])) / (2 * norm)
}

func (r derivatives) gaussian() float64 {
	s := r[0]*r[0] + r[1]*r[1] + r[2]*r[2]
	if s == 0 {
		return 0
	}
	norm := s * s
	return -(r[0]*r[0]*(r[7]*r[7]-r[4]*r[5]) +
		r[1]*r[1]*(r[8]*r[8]-r[3]*r[5]) +
		r[2]*r[2]*(r[6]*r[6]-r[3]*r[4]) +
		2*(r[0]*r[1]*(r[5]*r[6]-r[8]*r[7])+
			r[0]*r[2]*(r[4]*r[8]-r[6]*r[7])+
			r[1]*r[2]*(r[3]*r[7]-r[6]*r[8]))) / norm
}

// curvatureWidth is the band width needed for curvature stencils.
func curvatureWidth(maxValue float64) int {
	return int(math.Ceil(8*maxValue + 1))
}

// CalculateCurvatures stores "MeanCurvatures" and/or "GaussianCurvatures"
// scalar data in coordinate units for points with |v| <= MaxValue. A
// narrower band is expanded on a copy first; d keeps its points. Gaussian
// curvature does not exist in 2D and is skipped there.
func CalculateCurvatures(d *ls.Domain, typ CurvatureType, opts ...Option) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	o := buildOptions(opts)
	dim := d.Dimension()
	wantMean := typ == MeanCurvature || typ == MeanAndGaussianCurvature
	wantGauss := typ == GaussianCurvature || typ == MeanAndGaussianCurvature
	if wantGauss && dim == 2 {
		ls.Logger().Warn("2D level sets only support mean curvature", "requested", typ.String())
		wantGauss, wantMean = false, true
	}

	s, err := stencilDomain(d, curvatureWidth(o.MaxValue), o.Threads)
	if err != nil {
		return err
	}
	n := d.NumPoints()
	var mean, gauss []float64
	if wantMean {
		mean = make([]float64, n)
	}
	if wantGauss {
		gauss = make([]float64, n)
	}
	err = parallel.For(n, o.Threads, func(_, start, end int) {
		for i := start; i < end; i++ {
			if math.Abs(d.ValueAt(i)) > o.MaxValue {
				continue
			}
			r := stencil(s, d.Index(i))
			if !r.finite() {
				continue
			}
			if wantMean {
				mean[i] = r.mean(dim)
			}
			if wantGauss {
				gauss[i] = r.gaussian()
			}
		}
	})
	if err != nil {
		return fmt.Errorf("features: curvatures: %w", err)
	}
	if wantMean {
		d.PointData().SetScalar(ls.LabelMeanCurvature, mean)
	}
	if wantGauss {
		d.PointData().SetScalar(ls.LabelGaussCurvature, gauss)
	}
	return nil
}
