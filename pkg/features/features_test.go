package features

import (
	"math"
	"testing"

	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sphereBand stores exact distances of a sphere centred at the origin for
// every lattice point within width/2 of the surface.
func sphereBand(t *testing.T, dim int, delta, radius float64, width int) *ls.Domain {
	t.Helper()
	g, err := ls.NewGrid(dim, delta, nil, nil)
	require.NoError(t, err)
	lim := float64(width) / 2
	n := int(math.Ceil(radius/delta+lim)) + 1
	zr := 0
	if dim == 3 {
		zr = n
	}
	b := ls.NewBuilder(0)
	for z := -zr; z <= zr; z++ {
		for y := -n; y <= n; y++ {
			for x := -n; x <= n; x++ {
				r := math.Sqrt(float64(x*x+y*y+z*z)) * delta
				if v := (r - radius) / delta; math.Abs(v) <= lim {
					b.Add(ls.Index{x, y, z}, v)
				}
			}
		}
	}
	d := ls.New(g)
	d.Assign(b)
	require.NoError(t, d.SetWidth(width))
	return d
}

func radial(d *ls.Domain, i int) [3]float64 {
	c := d.Grid().Coordinate(d.Index(i))
	r := math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2])
	return [3]float64{c[0] / r, c[1] / r, c[2] / r}
}

func dot(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func TestNormalsExactBand(t *testing.T) {
	d := sphereBand(t, 3, 0.25, 3, 3)
	require.NoError(t, CalculateNormals(d, WithThreads(3)))
	normals := d.PointData().Vector(ls.LabelNormals)
	require.Len(t, normals, d.NumPoints())

	checked := 0
	for i, n := range normals {
		if math.Abs(d.ValueAt(i)) > 0.5 {
			assert.Equal(t, [3]float64{}, n)
			continue
		}
		checked++
		assert.InDelta(t, 1, math.Sqrt(dot(n, n)), 1e-9)
		assert.Greater(t, dot(n, radial(d, i)), 0.99)
	}
	assert.Positive(t, checked)
}

func TestNormalsExpandOnCopy(t *testing.T) {
	d := sphereBand(t, 2, 0.1, 2, 2)
	points := d.NumPoints()
	require.NoError(t, CalculateNormals(d))
	assert.Equal(t, points, d.NumPoints())
	assert.Equal(t, 2, d.Width())

	normals := d.PointData().Vector(ls.LabelNormals)
	require.Len(t, normals, points)
	for i, n := range normals {
		if math.Abs(d.ValueAt(i)) <= 0.5 {
			assert.Greater(t, dot(n, radial(d, i)), 0.9)
		}
	}
}

func TestNormalsMaxValue(t *testing.T) {
	d := sphereBand(t, 2, 0.1, 2, 3)
	require.NoError(t, CalculateNormals(d, WithMaxValue(0.25)))
	for i, n := range d.PointData().Vector(ls.LabelNormals) {
		if math.Abs(d.ValueAt(i)) > 0.25 {
			assert.Equal(t, [3]float64{}, n)
		}
	}
}

func TestCurvaturesSphere(t *testing.T) {
	d := sphereBand(t, 3, 0.2, 3, 5)
	require.NoError(t, CalculateCurvatures(d, MeanAndGaussianCurvature))
	mean := d.PointData().Scalar(ls.LabelMeanCurvature)
	gauss := d.PointData().Scalar(ls.LabelGaussCurvature)
	require.Len(t, mean, d.NumPoints())
	require.Len(t, gauss, d.NumPoints())

	for i := range mean {
		if math.Abs(d.ValueAt(i)) > 0.5 {
			assert.Zero(t, mean[i])
			continue
		}
		assert.InDelta(t, 1.0/3, mean[i], 0.02)
		assert.InDelta(t, 1.0/9, gauss[i], 0.02)
	}
}

func TestCurvatureCircle(t *testing.T) {
	d := sphereBand(t, 2, 0.1, 3, 5)
	require.NoError(t, CalculateCurvatures(d, GaussianCurvature))
	assert.Nil(t, d.PointData().Scalar(ls.LabelGaussCurvature))
	mean := d.PointData().Scalar(ls.LabelMeanCurvature)
	require.Len(t, mean, d.NumPoints())
	for i := range mean {
		if math.Abs(d.ValueAt(i)) <= 0.5 {
			assert.InDelta(t, 1.0/3, mean[i], 0.02)
		}
	}
}

func TestCurvaturesNarrowBand(t *testing.T) {
	d := sphereBand(t, 3, 0.25, 2, 2)
	points := d.NumPoints()
	require.NoError(t, CalculateCurvatures(d, MeanCurvature))
	assert.Equal(t, points, d.NumPoints())
	assert.Equal(t, 2, d.Width())
	for _, v := range d.PointData().Scalar(ls.LabelMeanCurvature) {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func cube(t *testing.T) *ls.Domain {
	t.Helper()
	g, err := ls.NewGrid(3, 0.1, nil, nil)
	require.NoError(t, err)
	d := ls.New(g)
	require.NoError(t, geometry.MakeGeometry(d, geometry.Box{Min: [3]float64{-1, -1, -1}, Max: [3]float64{1, 1, 1}}))
	return d
}

func marker(t *testing.T, d *ls.Domain, idx ls.Index) float64 {
	t.Helper()
	i, ok := d.Find(idx)
	require.True(t, ok, "index %v not stored", idx)
	return d.PointData().Scalar(ls.LabelFeatureMarkers)[i]
}

func TestDetectFeaturesByCurvature(t *testing.T) {
	d := cube(t)
	require.NoError(t, DetectFeatures(d, ByCurvature, 1))
	require.Len(t, d.PointData().Scalar(ls.LabelFeatureMarkers), d.NumPoints())
	assert.Equal(t, 0.0, marker(t, d, ls.Index{10, 0, 0}))
	assert.Equal(t, 1.0, marker(t, d, ls.Index{10, 10, 0}))
}

func TestDetectFeaturesByNormals(t *testing.T) {
	d := cube(t)
	require.NoError(t, DetectFeatures(d, ByNormals, 0.5))
	assert.Equal(t, 0.0, marker(t, d, ls.Index{10, 0, 0}))
	assert.Equal(t, 1.0, marker(t, d, ls.Index{10, 10, 0}))
}

func TestDetectFeaturesErrors(t *testing.T) {
	d := cube(t)
	assert.Error(t, DetectFeatures(d, Method(7), 1))
	assert.Error(t, DetectFeatures(d, ByCurvature, -1))
	assert.ErrorIs(t, CalculateNormals(nil), ls.ErrNilDomain)
}
