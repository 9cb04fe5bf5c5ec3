package kernel

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Mesh is a triangle or line mesh suitable for rendering and export.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle
// and lines has 2 uint32s per segment. Scalars holds optional per-vertex
// attributes.
type Mesh struct {
	Vertices []float32            `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32            `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32             `json:"indices"`  // [i0,i1,i2, ...] triangles
	Lines    []uint32             `json:"lines,omitempty"`
	Scalars  map[string][]float32 `json:"scalars,omitempty"`
	PartName string               `json:"partName"` // which domain this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// LineCount returns the number of line segments.
func (m *Mesh) LineCount() int {
	return len(m.Lines) / 2
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i.
func (m *Mesh) Vertex(i int) [3]float64 {
	return [3]float64{float64(m.Vertices[3*i]), float64(m.Vertices[3*i+1]), float64(m.Vertices[3*i+2])}
}

// AddVertex appends a vertex with its normal and returns its index.
func (m *Mesh) AddVertex(p, n [3]float64) uint32 {
	m.Vertices = append(m.Vertices, float32(p[0]), float32(p[1]), float32(p[2]))
	m.Normals = append(m.Normals, float32(n[0]), float32(n[1]), float32(n[2]))
	return uint32(len(m.Vertices)/3 - 1)
}

// WriteSTL writes the triangles of m as binary STL.
func (m *Mesh) WriteSTL(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var header [80]byte
	copy(header[:], "narrowband "+m.PartName)
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(m.TriangleCount())); err != nil {
		return err
	}
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Vertex(int(m.Indices[3*t])), m.Vertex(int(m.Indices[3*t+1])), m.Vertex(int(m.Indices[3*t+2]))
		n := faceNormal(a, b, c)
		rec := [12]float32{
			float32(n[0]), float32(n[1]), float32(n[2]),
			float32(a[0]), float32(a[1]), float32(a[2]),
			float32(b[0]), float32(b[1]), float32(b[2]),
			float32(c[0]), float32(c[1]), float32(c[2]),
		}
		if err := binary.Write(bw, binary.LittleEndian, rec); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(0)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteOBJ writes m as Wavefront OBJ. Line meshes are written as "l"
// records, triangles as "f" records.
func (m *Mesh) WriteOBJ(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if m.PartName != "" {
		fmt.Fprintf(bw, "o %s\n", m.PartName)
	}
	for i := 0; i < m.VertexCount(); i++ {
		fmt.Fprintf(bw, "v %g %g %g\n", m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2])
	}
	for t := 0; t < m.TriangleCount(); t++ {
		fmt.Fprintf(bw, "f %d %d %d\n", m.Indices[3*t]+1, m.Indices[3*t+1]+1, m.Indices[3*t+2]+1)
	}
	for l := 0; l < m.LineCount(); l++ {
		fmt.Fprintf(bw, "l %d %d\n", m.Lines[2*l]+1, m.Lines[2*l+1]+1)
	}
	return bw.Flush()
}

func faceNormal(a, b, c [3]float64) [3]float64 {
	u := [3]float64{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v := [3]float64{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := [3]float64{u[1]*v[2] - u[2]*v[1], u[2]*v[0] - u[0]*v[2], u[0]*v[1] - u[1]*v[0]}
	l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if l == 0 {
		return n
	}
	return [3]float64{n[0] / l, n[1] / l, n[2] / l}
}
