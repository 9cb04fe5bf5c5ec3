package ls

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyDomainUsesBackground(t *testing.T) {
	d := New(mustGrid(t, 2, 1, nil, nil))
	assert.Equal(t, 0, d.NumPoints())
	assert.True(t, math.IsInf(d.Value(Index{3, 4, 0}), 1))

	d.SetNegativeBackground(true)
	assert.True(t, math.IsInf(d.Value(Index{3, 4, 0}), -1))
}

func TestSignInference(t *testing.T) {
	d := New(mustGrid(t, 2, 1, nil, nil))
	b := NewBuilder(4)
	// a vertical interface at x = 0.5 in rows 0 and 1: negative on the left
	b.Add(Index{0, 0, 0}, -0.5)
	b.Add(Index{1, 0, 0}, 0.5)
	b.Add(Index{0, 1, 0}, -0.5)
	b.Add(Index{1, 1, 0}, 0.5)
	d.Assign(b)

	tests := []struct {
		idx Index
		neg bool
	}{
		{Index{-5, 0, 0}, true},
		{Index{7, 0, 0}, false},
		{Index{-3, 9, 0}, true},  // empty row, nearest row is y=1
		{Index{4, -9, 0}, false}, // empty row, nearest row is y=0
		{Index{0, 0, 0}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.neg, d.IsNegative(tt.idx), "index %v", tt.idx)
	}
	assert.False(t, d.IsDefined(Index{7, 0, 0}))
	assert.True(t, d.IsDefined(Index{1, 1, 0}))
}

func TestSignInference3DEmptyPlane(t *testing.T) {
	d := New(mustGrid(t, 3, 1, nil, nil))
	b := NewBuilder(2)
	b.Add(Index{0, 0, 0}, -0.5)
	b.Add(Index{0, 0, 1}, 0.5)
	d.Assign(b)
	assert.True(t, d.IsNegative(Index{3, 3, -4}))
	assert.False(t, d.IsNegative(Index{-3, 2, 6}))
}

func TestBuilderSortsAndDeduplicates(t *testing.T) {
	d := New(mustGrid(t, 2, 1, nil, nil))
	b := NewBuilder(0)
	b.Add(Index{1, 1, 0}, 0.1)
	b.Add(Index{0, 0, 0}, 0.2)
	b.Add(Index{5, 0, 0}, 0.3)
	b.Add(Index{0, 0, 0}, 0.4)
	d.Assign(b)

	require.Equal(t, 3, d.NumPoints())
	assert.Equal(t, []Index{{0, 0, 0}, {5, 0, 0}, {1, 1, 0}}, d.Keys())
	assert.Equal(t, 0.4, d.ValueAt(0))
}

func TestCloneIsIndependent(t *testing.T) {
	g := mustGrid(t, 2, 0.5, nil, nil)
	a := sphere(t, g, [3]float64{}, 3)
	a.PointData().SetScalar("tag", make([]float64, a.NumPoints()))

	c := a.Clone()
	c.SetValueAt(0, 42)
	c.PointData().Scalar("tag")[0] = 7
	c.SetNegativeBackground(true)

	assert.NotEqual(t, 42.0, a.ValueAt(0))
	assert.Equal(t, 0.0, a.PointData().Scalar("tag")[0])
	assert.False(t, a.NegativeBackground())

	w := Wrap(a)
	assert.Equal(t, a.Keys(), w.Keys())
	assert.Equal(t, a.Values(), w.Values())
}

func TestDeepCopyMatchesSource(t *testing.T) {
	g := mustGrid(t, 3, 0.5, nil, nil)
	a := sphere(t, g, [3]float64{1, 0, 0}, 2)
	d := New(mustGrid(t, 3, 1, nil, nil))
	d.DeepCopy(a)
	assert.Equal(t, a.NumPoints(), d.NumPoints())
	assert.Equal(t, a.Grid(), d.Grid())
	assert.Equal(t, a.Width(), d.Width())
}

func TestSphereSigns(t *testing.T) {
	g := mustGrid(t, 3, 0.25, nil, nil)
	d := sphere(t, g, [3]float64{}, 1.1)
	assert.True(t, d.IsNegative(Index{0, 0, 0}))
	assert.False(t, d.IsNegative(Index{20, 0, 0}))
	assert.False(t, d.IsNegative(Index{0, -20, 3}))
	assert.True(t, d.IsNegative(Index{1, 1, 1}))
}

func TestExtentAndPoints(t *testing.T) {
	g := mustGrid(t, 2, 0.5, nil, nil)
	d := sphere(t, g, [3]float64{}, 2)
	lo, hi, ok := d.Extent()
	require.True(t, ok)
	assert.Equal(t, Index{-5, -5, 0}, lo)
	assert.Equal(t, Index{5, 5, 0}, hi)

	pts := d.Points()
	require.Len(t, pts, d.NumPoints())
	for _, p := range pts {
		assert.InDelta(t, float64(p.Index[0])*0.5, p.Coord[0], 1e-12)
	}

	var buf bytes.Buffer
	require.NoError(t, d.Print(&buf))
	assert.Contains(t, buf.String(), "points=")
}

func TestSetWidth(t *testing.T) {
	d := New(mustGrid(t, 2, 1, nil, nil))
	require.ErrorIs(t, d.SetWidth(0), ErrInvalidWidth)
	require.NoError(t, d.SetWidth(5))
	assert.Equal(t, 5, d.Width())
}
