package geomadvect

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
)

// Distribution is the region a single surface node grows into (deposition)
// or removes (etching). All positions are in coordinate units.
type Distribution interface {
	// Inside is a quick rejection test for candidate relative to a node at
	// center. It may return true for points outside the distribution.
	Inside(center, candidate r3.Vec, eps float64) bool
	// SignedDistance is the signed distance of candidate to the
	// distribution placed at center. node is the stored point the surface
	// node was taken from.
	SignedDistance(center, candidate r3.Vec, node int) float64
	// Bounds is the bounding box of the distribution relative to its
	// center. Etching distributions have a positive lower bound.
	Bounds() (lo, hi r3.Vec)
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// SphereDistribution deposits (positive radius) or etches (negative radius)
// a sphere around every surface node.
type SphereDistribution struct {
	Radius float64
	Delta  float64
	dim    int
}

// NewSphere returns a sphere distribution for a dim-dimensional grid with
// spacing delta.
func NewSphere(dim int, radius, delta float64) *SphereDistribution {
	return &SphereDistribution{Radius: radius, Delta: delta, dim: dim}
}

func (s *SphereDistribution) Inside(center, candidate r3.Vec, eps float64) bool {
	return r3.Norm(r3.Sub(candidate, center)) <= math.Abs(s.Radius)+eps
}

// SignedDistance returns the distance along the grid axis closest to the
// sphere surface. Spheres no larger than a cell use the maximum norm.
func (s *SphereDistribution) SignedDistance(center, candidate r3.Vec, _ int) float64 {
	v := r3.Sub(candidate, center)
	r := math.Abs(s.Radius)
	distance := math.MaxFloat64
	if r <= s.Delta {
		distance = max(math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)) - r
	} else {
		for i := 0; i < s.dim; i++ {
			y := component(v, (i+1)%s.dim)
			var z float64
			if s.dim == 3 {
				z = component(v, (i+2)%s.dim)
			}
			x := r*r - y*y - z*z
			if x < 0 {
				continue
			}
			along := math.Abs(component(v, i)) - math.Sqrt(x)
			if math.Abs(along) < math.Abs(distance) {
				distance = along
			}
		}
	}
	if s.Radius < 0 {
		return -distance
	}
	return distance
}

func (s *SphereDistribution) Bounds() (lo, hi r3.Vec) {
	r := s.Radius
	lo, hi = r3.Vec{X: -r, Y: -r}, r3.Vec{X: r, Y: r}
	if s.dim == 3 {
		lo.Z, hi.Z = -r, r
	}
	return lo, hi
}

// BoxDistribution deposits (positive half axes) or etches (negative half
// axes) an axis aligned box around every surface node.
type BoxDistribution struct {
	HalfAxes [3]float64
	Delta    float64
	dim      int
}

// NewBox returns a box distribution. A half axis shorter than delta is
// accepted with a warning since it can break the distribution.
func NewBox(dim int, halfAxes [3]float64, delta float64) *BoxDistribution {
	for i := 0; i < dim; i++ {
		if math.Abs(halfAxes[i]) < delta {
			ls.Logger().Warn("box distribution half axis is smaller than the grid spacing",
				"axis", i, "halfAxis", halfAxes[i], "delta", delta)
		}
	}
	return &BoxDistribution{HalfAxes: halfAxes, Delta: delta, dim: dim}
}

func (b *BoxDistribution) Inside(center, candidate r3.Vec, eps float64) bool {
	v := r3.Sub(candidate, center)
	for i := 0; i < b.dim; i++ {
		if math.Abs(component(v, i)) > math.Abs(b.HalfAxes[i])+eps {
			return false
		}
	}
	return true
}

// SignedDistance is the maximum norm distance to the box surface.
func (b *BoxDistribution) SignedDistance(center, candidate r3.Vec, _ int) float64 {
	v := r3.Sub(candidate, center)
	distance := -math.MaxFloat64
	for i := 0; i < b.dim; i++ {
		distance = max(distance, math.Abs(component(v, i))-math.Abs(b.HalfAxes[i]))
	}
	if b.HalfAxes[0] < 0 {
		return -distance
	}
	return distance
}

func (b *BoxDistribution) Bounds() (lo, hi r3.Vec) {
	h := b.HalfAxes
	lo, hi = r3.Vec{X: -h[0], Y: -h[1]}, r3.Vec{X: h[0], Y: h[1]}
	if b.dim == 3 {
		lo.Z, hi.Z = -h[2], h[2]
	}
	return lo, hi
}

// CustomDistribution places an arbitrary kernel solid, given relative to the
// origin, at every surface node. Etch removes the solid instead of adding
// it. On 2D grids the z = 0 slice of the solid is used.
type CustomDistribution struct {
	Solid kernel.Solid
	Delta float64
	Etch  bool
	dim   int
}

func NewCustom(dim int, solid kernel.Solid, delta float64, etch bool) *CustomDistribution {
	return &CustomDistribution{Solid: solid, Delta: delta, Etch: etch, dim: dim}
}

func (c *CustomDistribution) Inside(center, candidate r3.Vec, eps float64) bool {
	lo, hi := c.Solid.BoundingBox()
	v := r3.Sub(candidate, center)
	for i := 0; i < c.dim; i++ {
		x := component(v, i)
		if x < lo[i]-eps || x > hi[i]+eps {
			return false
		}
	}
	return true
}

func (c *CustomDistribution) SignedDistance(center, candidate r3.Vec, _ int) float64 {
	v := r3.Sub(candidate, center)
	d := c.Solid.Evaluate([3]float64{v.X, v.Y, v.Z})
	if c.Etch {
		return -d
	}
	return d
}

func (c *CustomDistribution) Bounds() (lo, hi r3.Vec) {
	bmin, bmax := c.Solid.BoundingBox()
	if c.Etch {
		for i := range bmin {
			bmin[i], bmax[i] = -bmin[i], -bmax[i]
		}
	}
	lo, hi = r3.Vec{X: bmin[0], Y: bmin[1]}, r3.Vec{X: bmax[0], Y: bmax[1]}
	if c.dim == 3 {
		lo.Z, hi.Z = bmin[2], bmax[2]
	}
	return lo, hi
}
