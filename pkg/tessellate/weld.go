package tessellate

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/chazu/narrowband/pkg/kernel"
)

// vertex is a mesh vertex stored in a kd-tree.
type vertex struct {
	pos [3]float64
	id  int
}

func (v vertex) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return v.pos[d] - c.(vertex).pos[d]
}

func (v vertex) Dims() int { return 3 }

func (v vertex) Distance(c kdtree.Comparable) float64 {
	q := c.(vertex).pos
	dx, dy, dz := v.pos[0]-q[0], v.pos[1]-q[1], v.pos[2]-q[2]
	return dx*dx + dy*dy + dz*dz
}

type vertices []vertex

func (s vertices) Index(i int) kdtree.Comparable         { return s[i] }
func (s vertices) Len() int                              { return len(s) }
func (s vertices) Slice(start, end int) kdtree.Interface { return s[start:end] }
func (s vertices) Pivot(d kdtree.Dim) int                { return vertexPlane{Dim: d, vertices: s}.Pivot() }

type vertexPlane struct {
	kdtree.Dim
	vertices
}

func (p vertexPlane) Less(i, j int) bool {
	return p.vertices[i].pos[p.Dim] < p.vertices[j].pos[p.Dim]
}

func (p vertexPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p vertexPlane) Slice(start, end int) kdtree.SortSlicer {
	p.vertices = p.vertices[start:end]
	return p
}

func (p vertexPlane) Swap(i, j int) {
	p.vertices[i], p.vertices[j] = p.vertices[j], p.vertices[i]
}

func meshVertices(m *kernel.Mesh) vertices {
	vs := make(vertices, m.VertexCount())
	for i := range vs {
		vs[i] = vertex{pos: m.Vertex(i), id: i}
	}
	return vs
}

// weld merges vertices closer than tol. Each vertex joins the first
// earlier vertex within reach. Elements that collapse are removed.
func weld(m *kernel.Mesh, tol float64) {
	n := m.VertexCount()
	if n == 0 {
		return
	}
	tree := kdtree.New(meshVertices(m), false)
	rep := make([]int, n)
	for i := range rep {
		rep[i] = -1
	}
	for i := 0; i < n; i++ {
		if rep[i] >= 0 {
			continue
		}
		rep[i] = i
		keep := kdtree.NewDistKeeper(tol * tol)
		tree.NearestSet(keep, vertex{pos: m.Vertex(i)})
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			if j := c.Comparable.(vertex).id; rep[j] < 0 {
				rep[j] = i
			}
		}
	}

	// Merged vertices sum their normals into the representative.
	sums := make([][3]float64, n)
	if len(m.Normals) == 3*n {
		for i := 0; i < n; i++ {
			nrm := [3]float64{float64(m.Normals[3*i]), float64(m.Normals[3*i+1]), float64(m.Normals[3*i+2])}
			sums[rep[i]] = add(sums[rep[i]], nrm)
		}
	}
	remap := make([]uint32, n)
	out := &kernel.Mesh{PartName: m.PartName}
	for i := 0; i < n; i++ {
		if rep[i] == i {
			remap[i] = out.AddVertex(m.Vertex(i), unit(sums[i]))
		}
	}
	if len(m.Scalars) > 0 {
		out.Scalars = make(map[string][]float32, len(m.Scalars))
		for name, vals := range m.Scalars {
			kept := make([]float32, 0, out.VertexCount())
			for i := 0; i < n; i++ {
				if rep[i] == i && i < len(vals) {
					kept = append(kept, vals[i])
				}
			}
			out.Scalars[name] = kept
		}
	}
	at := func(i uint32) uint32 { return remap[rep[i]] }

	for t := 0; t+2 < len(m.Indices); t += 3 {
		a, b, c := at(m.Indices[t]), at(m.Indices[t+1]), at(m.Indices[t+2])
		if a == b || b == c || a == c {
			continue
		}
		out.Indices = append(out.Indices, a, b, c)
	}
	for l := 0; l+1 < len(m.Lines); l += 2 {
		a, b := at(m.Lines[l]), at(m.Lines[l+1])
		if a == b {
			continue
		}
		out.Lines = append(out.Lines, a, b)
	}
	*m = *out
}

// snapCorners moves every vertex within tol of a corner onto the nearest
// corner.
func snapCorners(m *kernel.Mesh, corners [][3]float64, tol float64) {
	cs := make(vertices, len(corners))
	for i, c := range corners {
		cs[i] = vertex{pos: c, id: i}
	}
	tree := kdtree.New(cs, false)
	for i := 0; i < m.VertexCount(); i++ {
		got, dist := tree.Nearest(vertex{pos: m.Vertex(i)})
		if got == nil || dist > tol*tol {
			continue
		}
		p := got.(vertex).pos
		copy(m.Vertices[3*i:3*i+3], []float32{float32(p[0]), float32(p[1]), float32(p[2])})
	}
}
