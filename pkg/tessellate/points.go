package tessellate

import (
	"math"

	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
)

// ScalarLSValues names the level set values in meshes built by ToMesh.
const ScalarLSValues = "LSValues"

// ToMesh emits one vertex per stored point of d, carrying the level set
// value and every point data array as scalars. Vector data named
// ls.LabelNormals becomes the vertex normals; other vectors are split into
// "<name>_x", "<name>_y" and "<name>_z".
func ToMesh(d *ls.Domain, opts ...Option) (*kernel.Mesh, error) {
	if d == nil {
		return nil, ls.ErrNilDomain
	}
	o := buildOptions(opts)
	pd := d.PointData()
	normals := pd.Vector(ls.LabelNormals)

	var keep []int
	for i, v := range d.Values() {
		if o.OnlyActive && math.Abs(v) > 0.5 {
			continue
		}
		keep = append(keep, i)
	}

	m := &kernel.Mesh{Scalars: make(map[string][]float32)}
	g := d.Grid()
	values := make([]float32, 0, len(keep))
	for _, i := range keep {
		var n [3]float64
		if i < len(normals) {
			n = normals[i]
		}
		m.AddVertex(g.Coordinate(d.Index(i)), n)
		values = append(values, float32(d.ValueAt(i)))
	}
	m.Scalars[ScalarLSValues] = values

	for _, name := range pd.ScalarNames() {
		data := pd.Scalar(name)
		out := make([]float32, len(keep))
		for k, i := range keep {
			if i < len(data) {
				out[k] = float32(data[i])
			}
		}
		m.Scalars[name] = out
	}
	for _, name := range pd.VectorNames() {
		if name == ls.LabelNormals {
			continue
		}
		data := pd.Vector(name)
		for a, suffix := range []string{"_x", "_y", "_z"} {
			out := make([]float32, len(keep))
			for k, i := range keep {
				if i < len(data) {
					out[k] = float32(data[i][a])
				}
			}
			m.Scalars[name+suffix] = out
		}
	}
	return m, nil
}
