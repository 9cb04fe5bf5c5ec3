// Package kernel defines the abstract geometry kernel interface.
// Implementations provide analytic solids, constructive operations and
// surface extraction behind this interface. The level-set engine uses it
// to evaluate signed distances of primitives during rasterization and to
// turn level sets into meshes.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Evaluate returns the signed distance of p to the surface,
	// negative inside.
	Evaluate(p [3]float64) float64
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives
	Box(min, max [3]float64) (Solid, error)
	Sphere(center [3]float64, radius float64) (Solid, error)
	Cylinder(origin, axis [3]float64, height, radius, topRadius float64) (Solid, error)
	Plane(origin, normal [3]float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh output. cells is the marching cubes resolution along the
	// longest bounding box axis; 0 selects the kernel default.
	ToMesh(s Solid, cells int) (*Mesh, error)
}

// Func adapts a distance function and a bounding box to a Solid.
type Func struct {
	Min, Max [3]float64
	Dist     func(p [3]float64) float64
}

// BoundingBox returns the box given at construction.
func (f Func) BoundingBox() (min, max [3]float64) { return f.Min, f.Max }

// Evaluate calls the distance function.
func (f Func) Evaluate(p [3]float64) float64 { return f.Dist(p) }
