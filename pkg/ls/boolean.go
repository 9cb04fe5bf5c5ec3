package ls

import (
	"fmt"
	"math"
)

// BooleanOp selects how two level sets are combined.
type BooleanOp int

const (
	// Union keeps material present in either operand: min(a, b).
	Union BooleanOp = iota
	// Intersect keeps material present in both operands: max(a, b).
	Intersect
	// RelativeComplement removes b from a: max(a, -b).
	RelativeComplement
	// Invert swaps inside and outside of a: -a. The second operand is ignored.
	Invert
)

func (op BooleanOp) String() string {
	switch op {
	case Union:
		return "union"
	case Intersect:
		return "intersect"
	case RelativeComplement:
		return "relative-complement"
	case Invert:
		return "invert"
	default:
		return fmt.Sprintf("BooleanOp(%d)", int(op))
	}
}

// Boolean combines a with b in place. Both domains must share dimension and
// spacing. Unless WithoutPrune is given the result is pruned so that only
// points next to the new interface remain.
func Boolean(a, b *Domain, op BooleanOp, opts ...Option) error {
	if a == nil {
		return ErrNilDomain
	}
	o := buildOptions(opts)
	if op == Invert {
		for i := range a.values {
			a.values[i] = -a.values[i]
		}
		a.negative = !a.negative
		return nil
	}
	if err := CheckCompatible(a, b); err != nil {
		return fmt.Errorf("boolean %s: %w", op, err)
	}

	var combine func(x, y float64) float64
	switch op {
	case Union:
		combine = math.Min
	case Intersect:
		combine = math.Max
	case RelativeComplement:
		combine = func(x, y float64) float64 { return math.Max(x, -y) }
	default:
		return fmt.Errorf("boolean: unknown operation %v", op)
	}

	n := len(a.keys) + len(b.keys)
	keys := make([]Index, 0, n)
	values := make([]float64, 0, n)
	pick := make([]int8, 0, n)
	pos := make([]int, 0, n)

	i, j := 0, 0
	for i < len(a.keys) || j < len(b.keys) {
		var idx Index
		var va, vb float64
		pa, pb := -1, -1
		switch {
		case j >= len(b.keys) || (i < len(a.keys) && compareIndex(a.keys[i], b.keys[j]) < 0):
			idx, va, pa = a.keys[i], a.values[i], i
			vb = b.Value(idx)
			i++
		case i >= len(a.keys) || compareIndex(a.keys[i], b.keys[j]) > 0:
			idx, vb, pb = b.keys[j], b.values[j], j
			va = a.Value(idx)
			j++
		default:
			idx, va, vb, pa, pb = a.keys[i], a.values[i], b.values[j], i, j
			i++
			j++
		}

		v := combine(va, vb)
		if math.IsInf(v, 0) {
			continue
		}
		keys = append(keys, idx)
		values = append(values, v)
		if v == va {
			pick, pos = append(pick, 0), append(pos, pa)
		} else {
			pick, pos = append(pick, 1), append(pos, pb)
		}
	}

	a.pointData = mergePointData(&a.pointData, &b.pointData, pick, pos)
	a.keys = keys
	a.values = values

	switch op {
	case Union:
		a.negative = a.negative || b.negative
	case Intersect:
		a.negative = a.negative && b.negative
	case RelativeComplement:
		a.negative = a.negative && !b.negative
	}

	if o.SkipPrune {
		a.Finalize(max(a.width, b.width))
		return nil
	}
	if err := Prune(a, WithThreads(o.Threads), WithStrayZeroRemoval()); err != nil {
		return err
	}
	return Prune(a, WithThreads(o.Threads))
}

// Combine returns a new domain holding domains[0] combined with every later
// domain using op.
func Combine(op BooleanOp, domains ...*Domain) (*Domain, error) {
	if len(domains) == 0 {
		return nil, ErrEmptyLevelSets
	}
	out := domains[0].Clone()
	for _, d := range domains[1:] {
		if err := Boolean(out, d, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}
