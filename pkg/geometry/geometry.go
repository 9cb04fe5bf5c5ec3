// Package geometry rasterizes analytic primitives into level-set domains.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// slabHalfHeight extends 2D primitives along z so that their z=0 slice is
// the planar shape.
const slabHalfHeight = 1e6

// ErrUnsupported is returned for primitives that do not exist in the
// dimension of the target domain.
var ErrUnsupported = errors.New("geometry: primitive not supported in this dimension")

// Primitive is an analytic shape in coordinate units.
type Primitive interface {
	// Solid builds the kernel solid used for distance queries in a
	// domain of dimension dim.
	Solid(k kernel.Kernel, dim int) (kernel.Solid, error)
}

// Sphere is a ball (a disc in 2D).
type Sphere struct {
	Origin [3]float64
	Radius float64
}

// Solid implements Primitive.
func (s Sphere) Solid(k kernel.Kernel, _ int) (kernel.Solid, error) {
	if !(s.Radius > 0) {
		return nil, fmt.Errorf("geometry: sphere radius must be positive, got %v", s.Radius)
	}
	return k.Sphere(s.Origin, s.Radius)
}

// Plane is the half-space behind Normal passing through Origin. Material
// lies on the side opposite to the normal.
type Plane struct {
	Origin [3]float64
	Normal [3]float64
}

// Solid implements Primitive.
func (p Plane) Solid(k kernel.Kernel, dim int) (kernel.Solid, error) {
	n := p.Normal
	if dim == 2 {
		n[2] = 0
	}
	if r3.Norm(r3.Vec{X: n[0], Y: n[1], Z: n[2]}) == 0 {
		return nil, fmt.Errorf("geometry: plane normal is zero")
	}
	return k.Plane(p.Origin, n)
}

// unit returns the normalized plane normal restricted to dim axes.
func (p Plane) unit(dim int) [3]float64 {
	n := r3.Vec{X: p.Normal[0], Y: p.Normal[1], Z: p.Normal[2]}
	if dim == 2 {
		n.Z = 0
	}
	n = r3.Unit(n)
	return [3]float64{n.X, n.Y, n.Z}
}

// Box is an axis-aligned box between two corners.
type Box struct {
	Min [3]float64
	Max [3]float64
}

// Solid implements Primitive.
func (b Box) Solid(k kernel.Kernel, dim int) (kernel.Solid, error) {
	lo, hi := b.Min, b.Max
	if dim == 2 {
		lo[2], hi[2] = -slabHalfHeight, slabHalfHeight
	}
	for a := 0; a < dim; a++ {
		if lo[a] > hi[a] {
			return nil, fmt.Errorf("geometry: box min %v exceeds max %v", b.Min, b.Max)
		}
	}
	return k.Box(lo, hi)
}

// Cylinder is a finite cylinder with its base disc centered at Origin,
// extending Height along Axis. TopRadius differing from Radius makes a
// truncated cone; zero TopRadius means equal radii.
type Cylinder struct {
	Origin    [3]float64
	Axis      [3]float64
	Height    float64
	Radius    float64
	TopRadius float64
}

// Solid implements Primitive.
func (c Cylinder) Solid(k kernel.Kernel, dim int) (kernel.Solid, error) {
	if dim != 3 {
		return nil, fmt.Errorf("%w: cylinder needs 3 dimensions", ErrUnsupported)
	}
	if !(c.Height > 0) || !(c.Radius > 0) {
		return nil, fmt.Errorf("geometry: cylinder height and radius must be positive")
	}
	top := c.TopRadius
	if top == 0 {
		top = c.Radius
	}
	return k.Cylinder(c.Origin, c.Axis, c.Height, c.Radius, top)
}

// Custom rasterizes an arbitrary kernel solid, for example a union of
// primitives built with the kernel's boolean operations.
type Custom struct {
	Shape kernel.Solid
}

// Solid implements Primitive.
func (c Custom) Solid(kernel.Kernel, int) (kernel.Solid, error) {
	if c.Shape == nil {
		return nil, fmt.Errorf("geometry: custom primitive has no solid")
	}
	lo, hi := c.Shape.BoundingBox()
	for a := 0; a < 3; a++ {
		if math.IsInf(lo[a], 0) || math.IsInf(hi[a], 0) {
			return nil, fmt.Errorf("geometry: custom solid must be bounded")
		}
	}
	return c.Shape, nil
}
