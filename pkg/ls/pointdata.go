package ls

import "slices"

// Well-known point data labels written by the engine.
const (
	LabelVelocities     = "AdvectionVelocities"
	LabelNormals        = "Normals"
	LabelMeanCurvature  = "MeanCurvatures"
	LabelGaussCurvature = "GaussianCurvatures"
	LabelFeatureMarkers = "FeatureMarkers"
	LabelVoidMarkers    = "VoidPointMarkers"
	LabelComponentIDs   = "ConnectedComponentId"
	LabelMaterialIDs    = "MaterialIds"
)

// PointData stores named scalar and vector arrays aligned with the stored
// points of a Domain. Insertion order of labels is preserved.
type PointData struct {
	scalarNames []string
	scalars     [][]float64
	vectorNames []string
	vectors     [][][3]float64
}

// SetScalar stores data under name, replacing an existing array.
func (p *PointData) SetScalar(name string, data []float64) {
	if i := slices.Index(p.scalarNames, name); i >= 0 {
		p.scalars[i] = data
		return
	}
	p.scalarNames = append(p.scalarNames, name)
	p.scalars = append(p.scalars, data)
}

// SetVector stores data under name, replacing an existing array.
func (p *PointData) SetVector(name string, data [][3]float64) {
	if i := slices.Index(p.vectorNames, name); i >= 0 {
		p.vectors[i] = data
		return
	}
	p.vectorNames = append(p.vectorNames, name)
	p.vectors = append(p.vectors, data)
}

// Scalar returns the array stored under name, or nil.
func (p *PointData) Scalar(name string) []float64 {
	if i := slices.Index(p.scalarNames, name); i >= 0 {
		return p.scalars[i]
	}
	return nil
}

// Vector returns the array stored under name, or nil.
func (p *PointData) Vector(name string) [][3]float64 {
	if i := slices.Index(p.vectorNames, name); i >= 0 {
		return p.vectors[i]
	}
	return nil
}

// ScalarNames returns the scalar labels in insertion order.
func (p *PointData) ScalarNames() []string { return slices.Clone(p.scalarNames) }

// VectorNames returns the vector labels in insertion order.
func (p *PointData) VectorNames() []string { return slices.Clone(p.vectorNames) }

// Len returns the number of labels of both kinds.
func (p *PointData) Len() int { return len(p.scalarNames) + len(p.vectorNames) }

// RemoveScalar drops a scalar label.
func (p *PointData) RemoveScalar(name string) {
	if i := slices.Index(p.scalarNames, name); i >= 0 {
		p.scalarNames = slices.Delete(p.scalarNames, i, i+1)
		p.scalars = slices.Delete(p.scalars, i, i+1)
	}
}

// RemoveVector drops a vector label.
func (p *PointData) RemoveVector(name string) {
	if i := slices.Index(p.vectorNames, name); i >= 0 {
		p.vectorNames = slices.Delete(p.vectorNames, i, i+1)
		p.vectors = slices.Delete(p.vectors, i, i+1)
	}
}

// Clear removes all labels.
func (p *PointData) Clear() {
	*p = PointData{}
}

// Clone returns a deep copy.
func (p *PointData) Clone() PointData {
	c := PointData{
		scalarNames: slices.Clone(p.scalarNames),
		vectorNames: slices.Clone(p.vectorNames),
		scalars:     make([][]float64, len(p.scalars)),
		vectors:     make([][][3]float64, len(p.vectors)),
	}
	for i, s := range p.scalars {
		c.scalars[i] = slices.Clone(s)
	}
	for i, v := range p.vectors {
		c.vectors[i] = slices.Clone(v)
	}
	return c
}

// Translate builds point data for a restructured point set. src[i] is the
// position of new point i in the old arrays, or -1 for a point without a
// source, which receives zero values.
func (p *PointData) Translate(src []int) PointData {
	out := PointData{
		scalarNames: slices.Clone(p.scalarNames),
		vectorNames: slices.Clone(p.vectorNames),
		scalars:     make([][]float64, len(p.scalars)),
		vectors:     make([][][3]float64, len(p.vectors)),
	}
	for l, old := range p.scalars {
		data := make([]float64, len(src))
		for i, s := range src {
			if s >= 0 && s < len(old) {
				data[i] = old[s]
			}
		}
		out.scalars[l] = data
	}
	for l, old := range p.vectors {
		data := make([][3]float64, len(src))
		for i, s := range src {
			if s >= 0 && s < len(old) {
				data[i] = old[s]
			}
		}
		out.vectors[l] = data
	}
	return out
}

// merge combines two point data stores for a boolean result. pick[i] selects
// the operand (0 = a, 1 = b) and pos[i] the position inside that operand for
// result point i. Labels missing from the selected operand are zero.
func mergePointData(a, b *PointData, pick []int8, pos []int) PointData {
	var out PointData
	n := len(pick)
	names := slices.Clone(a.scalarNames)
	for _, name := range b.scalarNames {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	for _, name := range names {
		sa, sb := a.Scalar(name), b.Scalar(name)
		data := make([]float64, n)
		for i := range data {
			src := sa
			if pick[i] == 1 {
				src = sb
			}
			if pos[i] >= 0 && pos[i] < len(src) {
				data[i] = src[pos[i]]
			}
		}
		out.SetScalar(name, data)
	}

	vnames := slices.Clone(a.vectorNames)
	for _, name := range b.vectorNames {
		if !slices.Contains(vnames, name) {
			vnames = append(vnames, name)
		}
	}
	for _, name := range vnames {
		va, vb := a.Vector(name), b.Vector(name)
		data := make([][3]float64, n)
		for i := range data {
			src := va
			if pick[i] == 1 {
				src = vb
			}
			if pos[i] >= 0 && pos[i] < len(src) {
				data[i] = src[pos[i]]
			}
		}
		out.SetVector(name, data)
	}
	return out
}
