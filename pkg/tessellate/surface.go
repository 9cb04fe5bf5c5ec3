package tessellate

import (
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
)

// minSurfaceWidth is the band width needed so that every cell crossed by
// the interface has all corners stored: a corner lies at most sqrt(3)
// cells from the interface, so values up to 2 must be kept.
const minSurfaceWidth = 4

// ToSurfaceMesh extracts the zero level set of d: a line mesh in 2D and a
// triangle mesh in 3D. d is not modified. An empty domain yields an empty
// mesh.
func ToSurfaceMesh(d *ls.Domain, opts ...Option) (*kernel.Mesh, error) {
	if d == nil {
		return nil, ls.ErrNilDomain
	}
	o := buildOptions(opts)
	if d.NumPoints() == 0 {
		ls.Logger().Warn("surface mesh of empty level set")
		return &kernel.Mesh{}, nil
	}
	if d.Width() < minSurfaceWidth {
		d = d.Clone()
		if err := ls.Expand(d, minSurfaceWidth, ls.WithThreads(o.Threads)); err != nil {
			return nil, fmt.Errorf("tessellate: expand: %w", err)
		}
	}

	var mesh *kernel.Mesh
	if d.Dimension() == 2 {
		mesh = marchSquares(d)
	} else {
		var err error
		if mesh, err = marchCubes(d, o.Kernel); err != nil {
			return nil, err
		}
	}

	tol := d.Spacing()
	if len(o.Corners) > 0 {
		snapCorners(mesh, o.Corners, tol)
	}
	if o.MinNodeDistanceFactor > 0 {
		weld(mesh, o.MinNodeDistanceFactor*tol)
	}
	return mesh, nil
}

// levelSetSolid exposes d as a kernel solid by trilinear interpolation of
// the stored values. The distance is in coordinate units.
func levelSetSolid(d *ls.Domain) (kernel.Func, bool) {
	lo, hi, ok := d.Extent()
	if !ok {
		return kernel.Func{}, false
	}
	g := d.Grid()
	delta := d.Spacing()
	f := kernel.Func{Min: g.Coordinate(lo), Max: g.Coordinate(hi)}
	for a := 0; a < 3; a++ {
		if a >= d.Dimension() {
			f.Min[a], f.Max[a] = -delta, delta
			continue
		}
		f.Min[a] -= delta
		f.Max[a] += delta
		if g.BoundaryCondition(a) == ls.Reflective {
			f.Min[a] = math.Max(f.Min[a], float64(g.MinIndex(a))*delta)
			f.Max[a] = math.Min(f.Max[a], float64(g.MaxIndex(a))*delta)
		}
	}
	f.Dist = func(p [3]float64) float64 {
		var base ls.Index
		var t [3]float64
		for a := 0; a < 3; a++ {
			x := p[a] / delta
			fl := math.Floor(x)
			base[a], t[a] = int(fl), x-fl
		}
		var sum float64
		for c := 0; c < 8; c++ {
			w := 1.0
			var off ls.Index
			for a := 0; a < 3; a++ {
				if c&(1<<a) != 0 {
					off[a] = 1
					w *= t[a]
				} else {
					w *= 1 - t[a]
				}
			}
			if w == 0 {
				continue
			}
			sum += w * clampValue(d, d.Value(base.Add(off)))
		}
		return sum * delta
	}
	return f, true
}

// marchCubes meshes a 3D domain with the kernel's marching cubes at one
// cube per grid cell.
func marchCubes(d *ls.Domain, k kernel.Kernel) (*kernel.Mesh, error) {
	s, ok := levelSetSolid(d)
	if !ok {
		return &kernel.Mesh{}, nil
	}
	var longest float64
	for a := 0; a < 3; a++ {
		longest = math.Max(longest, s.Max[a]-s.Min[a])
	}
	cells := int(math.Ceil(longest / d.Spacing()))
	mesh, err := k.ToMesh(s, cells)
	if err != nil {
		return nil, fmt.Errorf("tessellate: marching cubes: %w", err)
	}
	return mesh, nil
}
