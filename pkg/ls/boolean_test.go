package ls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prunedSphere(t *testing.T, g Grid, c [3]float64, r float64) *Domain {
	t.Helper()
	d := sphere(t, g, c, r)
	require.NoError(t, Prune(d))
	return d
}

func TestUnionCountAtLeastOperands(t *testing.T) {
	g := mustGrid(t, 3, 0.2, nil, nil)
	a := prunedSphere(t, g, [3]float64{-2, 0, 0}, 1.03)
	b := prunedSphere(t, g, [3]float64{2, 0, 0}, 1.31)
	na, nb := a.NumPoints(), b.NumPoints()

	require.NoError(t, Boolean(a, b, Union))
	assert.GreaterOrEqual(t, a.NumPoints(), max(na, nb))
	assert.Equal(t, na+nb, a.NumPoints())
	assert.True(t, a.IsNegative(Index{-10, 0, 0}))
	assert.True(t, a.IsNegative(Index{10, 0, 0}))
	assert.False(t, a.IsNegative(Index{0, 0, 0}))
}

func TestIntersectWithSelfIsIdentity(t *testing.T) {
	g := mustGrid(t, 2, 0.25, nil, nil)
	a := prunedSphere(t, g, [3]float64{0.1, 0.05, 0}, 2.07)
	b := a.Clone()
	want := a.Clone()

	require.NoError(t, Boolean(a, b, Intersect))
	assert.Equal(t, want.Keys(), a.Keys())
	assert.Equal(t, want.Values(), a.Values())
}

func TestRelativeComplementWithSelfIsEmpty(t *testing.T) {
	g := mustGrid(t, 3, 0.2, nil, nil)
	a := prunedSphere(t, g, [3]float64{0.03, 0, 0}, 1.07)
	require.NoError(t, Boolean(a, a.Clone(), RelativeComplement))
	assert.Equal(t, 0, a.NumPoints())
	assert.False(t, a.NegativeBackground())
	assert.False(t, a.IsNegative(Index{0, 0, 0}))
}

func TestDoubleInvertRestoresSigns(t *testing.T) {
	g := mustGrid(t, 2, 0.25, nil, nil)
	a := prunedSphere(t, g, [3]float64{}, 1.53)
	lo, hi := Index{-10, -10, 0}, Index{10, 10, 0}
	want := signs(a, lo, hi)

	require.NoError(t, Boolean(a, nil, Invert))
	assert.True(t, a.NegativeBackground())
	assert.False(t, a.IsNegative(Index{0, 0, 0}))
	assert.True(t, a.IsNegative(Index{40, 0, 0}))
	assert.Positive(t, a.NumPoints(), "inverted band stays finite")

	require.NoError(t, Boolean(a, nil, Invert))
	assert.Equal(t, want, signs(a, lo, hi))
}

func TestRelativeComplementCutsHole(t *testing.T) {
	g := mustGrid(t, 2, 0.25, nil, nil)
	a := prunedSphere(t, g, [3]float64{}, 3.03)
	b := prunedSphere(t, g, [3]float64{}, 1.51)
	require.NoError(t, Boolean(a, b, RelativeComplement))

	assert.False(t, a.IsNegative(Index{0, 0, 0}))
	assert.True(t, a.IsNegative(Index{9, 0, 0}))
	assert.False(t, a.IsNegative(Index{20, 0, 0}))
}

func TestBooleanRejectsMismatchedGrids(t *testing.T) {
	a := New(mustGrid(t, 2, 0.5, nil, nil))
	b := New(mustGrid(t, 3, 0.5, nil, nil))
	c := New(mustGrid(t, 2, 0.25, nil, nil))
	require.ErrorIs(t, Boolean(a, b, Union), ErrDimensionMismatch)
	require.ErrorIs(t, Boolean(a, c, Union), ErrSpacingMismatch)
	require.ErrorIs(t, Boolean(nil, c, Union), ErrNilDomain)
}

func TestBooleanMergesPointData(t *testing.T) {
	g := mustGrid(t, 2, 0.25, nil, nil)
	a := prunedSphere(t, g, [3]float64{-3, 0, 0}, 1.03)
	b := prunedSphere(t, g, [3]float64{3, 0, 0}, 1.03)
	fill := func(n int, v float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = v
		}
		return s
	}
	a.PointData().SetScalar("origin", fill(a.NumPoints(), 1))
	b.PointData().SetScalar("origin", fill(b.NumPoints(), 2))
	b.PointData().SetScalar("onlyB", fill(b.NumPoints(), 5))

	require.NoError(t, Boolean(a, b, Union))
	origin := a.PointData().Scalar("origin")
	onlyB := a.PointData().Scalar("onlyB")
	require.Len(t, origin, a.NumPoints())
	require.Len(t, onlyB, a.NumPoints())
	a.Each(func(i int, idx Index, _ float64) {
		if idx[0] < 0 {
			assert.Equal(t, 1.0, origin[i])
			assert.Equal(t, 0.0, onlyB[i])
		} else {
			assert.Equal(t, 2.0, origin[i])
			assert.Equal(t, 5.0, onlyB[i])
		}
	})
}

func TestCombine(t *testing.T) {
	g := mustGrid(t, 2, 0.25, nil, nil)
	a := prunedSphere(t, g, [3]float64{-3, 0, 0}, 1.03)
	b := prunedSphere(t, g, [3]float64{3, 0, 0}, 1.03)
	c := prunedSphere(t, g, [3]float64{0, 3, 0}, 1.03)

	u, err := Combine(Union, a, b, c)
	require.NoError(t, err)
	assert.Equal(t, a.NumPoints()+b.NumPoints()+c.NumPoints(), u.NumPoints())

	_, err = Combine(Union)
	require.ErrorIs(t, err, ErrEmptyLevelSets)
}
