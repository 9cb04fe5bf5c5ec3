package ls

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// sphere rasterizes an analytic sphere (circle in 2D) into a new domain,
// keeping every point within one grid unit of the surface.
func sphere(t *testing.T, grid Grid, center [3]float64, radius float64) *Domain {
	t.Helper()
	d := New(grid)
	delta := grid.Spacing()
	dim := grid.Dimension()
	var lo, hi Index
	for a := 0; a < dim; a++ {
		lo[a] = int(math.Floor((center[a]-radius)/delta)) - 2
		hi[a] = int(math.Ceil((center[a]+radius)/delta)) + 2
	}
	b := NewBuilder(0)
	var idx Index
	for idx[2] = lo[2]; idx[2] <= hi[2]; idx[2]++ {
		for idx[1] = lo[1]; idx[1] <= hi[1]; idx[1]++ {
			for idx[0] = lo[0]; idx[0] <= hi[0]; idx[0]++ {
				if !grid.Inside(idx) {
					continue
				}
				c := grid.Coordinate(idx)
				var r2 float64
				for a := 0; a < dim; a++ {
					r2 += (c[a] - center[a]) * (c[a] - center[a])
				}
				v := (math.Sqrt(r2) - radius) / delta
				if math.Abs(v) <= 1 {
					b.Add(idx, v)
				}
			}
		}
	}
	d.Assign(b)
	return d
}

func mustGrid(t *testing.T, dim int, delta float64, bounds []float64, bcs []BoundaryCondition) Grid {
	t.Helper()
	g, err := NewGrid(dim, delta, bounds, bcs)
	require.NoError(t, err)
	return g
}

func signs(d *Domain, lo, hi Index) []bool {
	var out []bool
	var idx Index
	for idx[2] = lo[2]; idx[2] <= hi[2]; idx[2]++ {
		for idx[1] = lo[1]; idx[1] <= hi[1]; idx[1]++ {
			for idx[0] = lo[0]; idx[0] <= hi[0]; idx[0]++ {
				out = append(out, d.IsNegative(idx))
			}
		}
	}
	return out
}
