package geomadvect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
)

// substrate returns a 2D half space below y = 0 on a grid with spacing 0.5.
func substrate(t *testing.T) *ls.Domain {
	t.Helper()
	g, err := ls.NewGrid(2, 0.5, []float64{-5, 5, -5, 5}, []ls.BoundaryCondition{ls.Reflective, ls.Infinite})
	require.NoError(t, err)
	d := ls.New(g)
	require.NoError(t, geometry.MakeGeometry(d, geometry.Plane{Normal: [3]float64{0, 1, 0}}))
	return d
}

func TestSphereDeposition(t *testing.T) {
	d := substrate(t)
	require.NoError(t, Advect(d, NewSphere(2, 2, 0.5)))

	for _, x := range []int{-4, 0, 4} {
		assert.InDelta(t, 0, d.Value(ls.Index{x, 4, 0}), 1e-9, "x=%d", x)
		assert.True(t, d.IsNegative(ls.Index{x, 3, 0}))
		assert.False(t, d.IsNegative(ls.Index{x, 5, 0}))
	}
	assert.True(t, d.IsNegative(ls.Index{0, 0, 0}))
	assert.False(t, d.IsNegative(ls.Index{0, 12, 0}))
	for _, v := range d.Values() {
		assert.LessOrEqual(t, math.Abs(v), 1.0)
	}
}

func TestDepositionIsFlatUpToBounds(t *testing.T) {
	g, err := ls.NewGrid(2, 0.5, []float64{-10, 10, -10, 10}, []ls.BoundaryCondition{ls.Reflective, ls.Infinite})
	require.NoError(t, err)
	d := ls.New(g)
	require.NoError(t, geometry.MakeGeometry(d, geometry.Plane{Normal: [3]float64{0, 1, 0}}))
	require.NoError(t, Advect(d, NewSphere(2, 2, 0.5)))

	for x := g.MinIndex(0); x <= g.MaxIndex(0); x++ {
		assert.InDelta(t, 0, d.Value(ls.Index{x, 4, 0}), 1e-9, "x=%d", x)
		assert.True(t, d.IsNegative(ls.Index{x, 3, 0}), "x=%d", x)
		assert.False(t, d.IsNegative(ls.Index{x, 5, 0}), "x=%d", x)
	}
}

func TestPeriodicEtchWrapsAround(t *testing.T) {
	g, err := ls.NewGrid(2, 0.5, []float64{-5, 5, -5, 5}, []ls.BoundaryCondition{ls.Periodic, ls.Infinite})
	require.NoError(t, err)
	d := ls.New(g)
	require.NoError(t, geometry.MakeGeometry(d, geometry.Plane{Normal: [3]float64{0, 1, 0}}))
	require.NoError(t, Advect(d, NewBox(2, [3]float64{-1, -1, 0}, 0.5)))

	for x := g.MinIndex(0); x < g.MaxIndex(0); x++ {
		assert.InDelta(t, 0, d.Value(ls.Index{x, -2, 0}), 1e-9, "x=%d", x)
	}
}

func TestBoxEtch(t *testing.T) {
	d := substrate(t)
	require.NoError(t, Advect(d, NewBox(2, [3]float64{-1, -1, 0}, 0.5)))

	assert.InDelta(t, 0, d.Value(ls.Index{0, -2, 0}), 1e-9)
	assert.True(t, d.IsNegative(ls.Index{0, -3, 0}))
	assert.False(t, d.IsNegative(ls.Index{0, -1, 0}))
	assert.False(t, d.IsNegative(ls.Index{0, 0, 0}))
	assert.True(t, d.IsNegative(ls.Index{0, -12, 0}))
}

func TestMaskProtectsSurface(t *testing.T) {
	d := substrate(t)
	mask := d.Clone()
	require.NoError(t, Advect(d, NewBox(2, [3]float64{-1, -1, 0}, 0.5), WithMask(mask)))

	assert.InDelta(t, 0, d.Value(ls.Index{0, 0, 0}), 1e-9)
	assert.True(t, d.IsNegative(ls.Index{0, -1, 0}))
	assert.False(t, d.IsNegative(ls.Index{0, 1, 0}))
	assert.Equal(t, 2, mask.Width())
}

func TestCustomMatchesSphere(t *testing.T) {
	ball := kernel.Func{
		Min:  [3]float64{-2, -2, -2},
		Max:  [3]float64{2, 2, 2},
		Dist: func(p [3]float64) float64 { return math.Sqrt(p[0]*p[0]+p[1]*p[1]) - 2 },
	}
	d := substrate(t)
	require.NoError(t, Advect(d, NewCustom(2, ball, 0.5, false)))
	assert.InDelta(t, 0, d.Value(ls.Index{0, 4, 0}), 1e-9)
	assert.True(t, d.IsNegative(ls.Index{0, 3, 0}))
	assert.False(t, d.IsNegative(ls.Index{0, 5, 0}))
}

func TestDistributionDistances(t *testing.T) {
	s := NewSphere(3, 2, 0.5)
	c := r3.Vec{X: 1, Y: 1, Z: 1}
	assert.InDelta(t, -2, s.SignedDistance(c, c, 0), 1e-12)
	assert.InDelta(t, 1, s.SignedDistance(c, r3.Vec{X: 1, Y: 1, Z: 4}, 0), 1e-12)
	assert.True(t, s.Inside(c, r3.Vec{X: 1, Y: 1, Z: 3.5}, 0.5))
	assert.False(t, s.Inside(c, r3.Vec{X: 1, Y: 1, Z: 3.6}, 0.5))

	etch := NewSphere(3, -2, 0.5)
	assert.InDelta(t, 2, etch.SignedDistance(c, c, 0), 1e-12)
	lo, _ := etch.Bounds()
	assert.Equal(t, 2.0, lo.X)

	b := NewBox(3, [3]float64{1, 2, 3}, 0.5)
	assert.InDelta(t, -1, b.SignedDistance(r3.Vec{}, r3.Vec{}, 0), 1e-12)
	assert.InDelta(t, 0.5, b.SignedDistance(r3.Vec{}, r3.Vec{X: 0.5, Y: 2.5}, 0), 1e-12)
	assert.False(t, b.Inside(r3.Vec{}, r3.Vec{Z: 3.2}, 0.1))

	tiny := NewSphere(2, 0.25, 0.5)
	assert.InDelta(t, 0.75, tiny.SignedDistance(r3.Vec{}, r3.Vec{X: 1, Y: -0.5}, 0), 1e-12)
}

func TestErrors(t *testing.T) {
	assert.ErrorIs(t, Advect(nil, NewSphere(2, 1, 1)), ls.ErrNilDomain)
	assert.ErrorIs(t, Advect(substrate(t), nil), ErrNoDistribution)

	g, err := ls.NewGrid(3, 0.5, nil, nil)
	require.NoError(t, err)
	other := ls.New(g)
	assert.Error(t, Advect(substrate(t), NewSphere(2, 1, 0.5), WithMask(other)))

	empty := ls.New(substrate(t).Grid())
	require.NoError(t, Advect(empty, NewSphere(2, 1, 0.5)))
	assert.Zero(t, empty.NumPoints())
}
