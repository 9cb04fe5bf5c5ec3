package advect

import (
	"fmt"
	"math"

	"github.com/chazu/narrowband/pkg/ls"
)

// Velocity is queried once per active point and stage. Coordinates are in
// coordinate units, normals are unit vectors pointing out of the material
// (or zero when normals are disabled or undefined), and pointID is the
// position of the point in the top level set during the current stage.
// Implementations must be safe for concurrent use.
type Velocity interface {
	ScalarVelocity(coord [3]float64, material int, normal [3]float64, pointID int) float64
	VectorVelocity(coord [3]float64, material int, normal [3]float64, pointID int) [3]float64
}

// DissipationAlpha is implemented by velocities that provide an analytic
// bound on the partial derivative of the Hamiltonian along direction. It is
// required by LocalLaxFriedrichsAnalytical1st.
type DissipationAlpha interface {
	DissipationAlpha(direction, material int, centralDifferences [3]float64) float64
}

// ConstantVelocity moves every surface with the same scalar speed.
type ConstantVelocity float64

func (c ConstantVelocity) ScalarVelocity([3]float64, int, [3]float64, int) float64 {
	return float64(c)
}

func (ConstantVelocity) VectorVelocity([3]float64, int, [3]float64, int) [3]float64 {
	return [3]float64{}
}

// DissipationAlpha of a normal speed V is |V·d_k|/|d|.
func (c ConstantVelocity) DissipationAlpha(direction, _ int, cd [3]float64) float64 {
	norm := math.Sqrt(cd[0]*cd[0] + cd[1]*cd[1] + cd[2]*cd[2])
	if norm == 0 {
		return 0
	}
	return math.Abs(float64(c) * cd[direction] / norm)
}

// MaterialRates assigns a scalar speed per material id. Materials without an
// entry move with Default.
type MaterialRates struct {
	Rates   []float64
	Default float64
}

func (m MaterialRates) rate(material int) float64 {
	if material >= 0 && material < len(m.Rates) {
		return m.Rates[material]
	}
	return m.Default
}

func (m MaterialRates) ScalarVelocity(_ [3]float64, material int, _ [3]float64, _ int) float64 {
	return m.rate(material)
}

func (MaterialRates) VectorVelocity([3]float64, int, [3]float64, int) [3]float64 {
	return [3]float64{}
}

func (m MaterialRates) DissipationAlpha(direction, material int, cd [3]float64) float64 {
	return ConstantVelocity(m.rate(material)).DissipationAlpha(direction, material, cd)
}

// DirectionalVelocity moves surfaces with a fixed vector, as in directional
// etching or rigid translation. Scalar adds an isotropic component.
type DirectionalVelocity struct {
	Direction [3]float64
	Scalar    float64
}

func (v DirectionalVelocity) ScalarVelocity([3]float64, int, [3]float64, int) float64 {
	return v.Scalar
}

func (v DirectionalVelocity) VectorVelocity([3]float64, int, [3]float64, int) [3]float64 {
	return v.Direction
}

// VelocityFunc adapts plain functions. A nil field contributes zero.
type VelocityFunc struct {
	Scalar func(coord [3]float64, material int, normal [3]float64) float64
	Vector func(coord [3]float64, material int, normal [3]float64) [3]float64
}

func (f VelocityFunc) ScalarVelocity(coord [3]float64, material int, normal [3]float64, _ int) float64 {
	if f.Scalar == nil {
		return 0
	}
	return f.Scalar(coord, material, normal)
}

func (f VelocityFunc) VectorVelocity(coord [3]float64, material int, normal [3]float64, _ int) [3]float64 {
	if f.Vector == nil {
		return [3]float64{}
	}
	return f.Vector(coord, material, normal)
}

// VelocityError reports a non-finite value returned by a velocity field.
type VelocityError struct {
	Coord [3]float64
	Index ls.Index
	Value float64
	Kind  string
}

func (e *VelocityError) Error() string {
	return fmt.Sprintf("advect: %s velocity %v at %v (index %v)", e.Kind, e.Value, e.Coord, e.Index)
}

func checkScalar(v float64, kind string, coord [3]float64, idx ls.Index) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &VelocityError{Coord: coord, Index: idx, Value: v, Kind: kind}
	}
	return nil
}

func checkVector(v [3]float64, coord [3]float64, idx ls.Index) error {
	for _, c := range v {
		if err := checkScalar(c, "vector", coord, idx); err != nil {
			return err
		}
	}
	return nil
}
