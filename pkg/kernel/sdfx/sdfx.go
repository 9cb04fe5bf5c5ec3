// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// planeExtent bounds the nominal bounding box of a half-space.
const planeExtent = 1e12

// ErrUnboundedSolid is returned when a solid without a finite bounding box
// is meshed.
var ErrUnboundedSolid = errors.New("sdfx: solid has no finite bounding box")

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// Evaluate returns the signed distance at p.
func (s *sdfxSolid) Evaluate(p [3]float64) float64 {
	return s.s.Evaluate(v3.Vec{X: p[0], Y: p[1], Z: p[2]})
}

// solidSDF exposes any kernel.Solid as an sdf.SDF3 so that foreign solids,
// such as level sets, can be combined and meshed by sdfx.
type solidSDF struct {
	s kernel.Solid
}

func (a solidSDF) Evaluate(p v3.Vec) float64 {
	return a.s.Evaluate([3]float64{p.X, p.Y, p.Z})
}

func (a solidSDF) BoundingBox() sdf.Box3 {
	lo, hi := a.s.BoundingBox()
	return sdf.Box3{Min: toVec(lo), Max: toVec(hi)}
}

// planeSDF is the half-space below a plane. sdfx has no infinite plane.
type planeSDF struct {
	origin, normal v3.Vec
}

func (p planeSDF) Evaluate(q v3.Vec) float64 {
	return q.Sub(p.origin).Dot(p.normal)
}

func (p planeSDF) BoundingBox() sdf.Box3 {
	e := v3.Vec{X: planeExtent, Y: planeExtent, Z: planeExtent}
	return sdf.Box3{Min: e.Neg(), Max: e}
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

// unwrap extracts an sdf.SDF3 from a kernel.Solid.
func unwrap(s kernel.Solid) sdf.SDF3 {
	if w, ok := s.(*sdfxSolid); ok {
		return w.s
	}
	return solidSDF{s: s}
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

func toVec(p [3]float64) v3.Vec {
	return v3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

// Box creates an axis-aligned box spanning min to max.
// sdf.Box3D centers the box at the origin, so it is moved to the midpoint.
func (k *SdfxKernel) Box(min, max [3]float64) (kernel.Solid, error) {
	size := toVec(max).Sub(toVec(min))
	if size.X < 0 || size.Y < 0 || size.Z < 0 {
		return nil, fmt.Errorf("sdfx: box min %v exceeds max %v", min, max)
	}
	s, err := sdf.Box3D(size, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx.Box3D: %w", err)
	}
	center := toVec(min).Add(toVec(max)).MulScalar(0.5)
	return wrap(sdf.Transform3D(s, sdf.Translate3d(center))), nil
}

// Sphere creates a sphere around center.
func (k *SdfxKernel) Sphere(center [3]float64, radius float64) (kernel.Solid, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx.Sphere3D: %w", err)
	}
	return wrap(sdf.Transform3D(s, sdf.Translate3d(toVec(center)))), nil
}

// Cylinder creates a cylinder whose base disc is centered at origin and
// which extends height along axis. A topRadius different from radius
// produces a truncated cone.
func (k *SdfxKernel) Cylinder(origin, axis [3]float64, height, radius, topRadius float64) (kernel.Solid, error) {
	dir := toVec(axis)
	l := dir.Length()
	if l == 0 {
		return nil, fmt.Errorf("sdfx: cylinder axis is zero")
	}
	dir = dir.DivScalar(l)

	var s sdf.SDF3
	var err error
	if topRadius == radius {
		s, err = sdf.Cylinder3D(height, radius, 0)
	} else {
		s, err = sdf.Cone3D(height, radius, topRadius, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("sdfx: cylinder: %w", err)
	}

	// Both shapes are centered on the z axis; lift the base to z=0 and
	// turn z onto the axis direction.
	theta := math.Acos(math.Max(-1, math.Min(1, dir.Z)))
	phi := math.Atan2(dir.Y, dir.X)
	m := sdf.Translate3d(toVec(origin)).
		Mul(sdf.RotateZ(phi)).
		Mul(sdf.RotateY(theta)).
		Mul(sdf.Translate3d(v3.Vec{Z: height / 2}))
	return wrap(sdf.Transform3D(s, m)), nil
}

// Plane creates the half-space on the opposite side of normal.
func (k *SdfxKernel) Plane(origin, normal [3]float64) (kernel.Solid, error) {
	n := toVec(normal)
	l := n.Length()
	if l == 0 {
		return nil, fmt.Errorf("sdfx: plane normal is zero")
	}
	return wrap(planeSDF{origin: toVec(origin), normal: n.DivScalar(l)}), nil
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (k *SdfxKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	xRad := x * math.Pi / 180.0
	yRad := y * math.Pi / 180.0
	zRad := z * math.Pi / 180.0

	m := sdf.RotateZ(zRad).Mul(sdf.RotateY(yRad)).Mul(sdf.RotateX(xRad))
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// ToMesh converts a solid to a triangle mesh using marching cubes with
// cells cubes along the longest bounding box axis.
func (k *SdfxKernel) ToMesh(s kernel.Solid, cells int) (*kernel.Mesh, error) {
	if cells <= 0 {
		cells = defaultMeshCells
	}
	lo, hi := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if math.IsInf(lo[i], 0) || math.IsInf(hi[i], 0) || hi[i]-lo[i] >= planeExtent {
			return nil, ErrUnboundedSolid
		}
	}
	sdf3 := unwrap(s)

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(sdf3, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		// Compute face normal.
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}
