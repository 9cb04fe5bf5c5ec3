package ls

import (
	"fmt"
	"io"
	"math"

	"github.com/tinylib/msgp/msgp"
)

const (
	serialMagic   = "lsDomain"
	serialVersion = 1
)

// MarshalMsg appends the persisted layout of d to b: magic and version,
// dimension, spacing, per-axis boundary condition and index bounds, band
// width, background sign, the sorted point store and all point data.
// Point data arrays must have one entry per point.
func (d *Domain) MarshalMsg(b []byte) ([]byte, error) {
	pd := &d.pointData
	for l, name := range pd.scalarNames {
		if len(pd.scalars[l]) != len(d.keys) {
			return b, fmt.Errorf("ls: scalar data %q has %d values for %d points", name, len(pd.scalars[l]), len(d.keys))
		}
	}
	for l, name := range pd.vectorNames {
		if len(pd.vectors[l]) != len(d.keys) {
			return b, fmt.Errorf("ls: vector data %q has %d values for %d points", name, len(pd.vectors[l]), len(d.keys))
		}
	}

	b = msgp.AppendString(b, serialMagic)
	b = msgp.AppendUint32(b, serialVersion)
	b = msgp.AppendInt(b, d.grid.dim)
	b = msgp.AppendFloat64(b, d.grid.delta)
	for a := 0; a < 3; a++ {
		b = msgp.AppendInt(b, int(d.grid.bcs[a]))
		b = msgp.AppendInt(b, d.grid.min[a])
		b = msgp.AppendInt(b, d.grid.max[a])
	}
	b = msgp.AppendInt(b, d.width)
	b = msgp.AppendBool(b, d.negative)

	b = msgp.AppendArrayHeader(b, uint32(len(d.keys)))
	for i, k := range d.keys {
		for a := 0; a < d.grid.dim; a++ {
			b = msgp.AppendInt(b, k[a])
		}
		b = msgp.AppendFloat64(b, d.values[i])
	}

	b = msgp.AppendMapHeader(b, uint32(len(pd.scalarNames)))
	for l, name := range pd.scalarNames {
		b = msgp.AppendString(b, name)
		b = msgp.AppendArrayHeader(b, uint32(len(pd.scalars[l])))
		for _, v := range pd.scalars[l] {
			b = msgp.AppendFloat64(b, v)
		}
	}
	b = msgp.AppendMapHeader(b, uint32(len(pd.vectorNames)))
	for l, name := range pd.vectorNames {
		b = msgp.AppendString(b, name)
		b = msgp.AppendArrayHeader(b, uint32(len(pd.vectors[l])))
		for _, v := range pd.vectors[l] {
			b = msgp.AppendFloat64(b, v[0])
			b = msgp.AppendFloat64(b, v[1])
			b = msgp.AppendFloat64(b, v[2])
		}
	}
	return b, nil
}

// UnmarshalMsg replaces d with the domain encoded at the start of b and
// returns the remaining bytes.
func (d *Domain) UnmarshalMsg(b []byte) (rest []byte, err error) {
	fail := func(what string, err error) ([]byte, error) {
		return b, fmt.Errorf("%w: %s: %v", ErrCorruptData, what, err)
	}

	var magic string
	if magic, b, err = msgp.ReadStringBytes(b); err != nil {
		return fail("magic", err)
	}
	if magic != serialMagic {
		return fail("magic", fmt.Errorf("unexpected header %q", magic))
	}
	var version uint32
	if version, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return fail("version", err)
	}
	if version != serialVersion {
		return fail("version", fmt.Errorf("unsupported version %d", version))
	}

	var g Grid
	if g.dim, b, err = msgp.ReadIntBytes(b); err != nil {
		return fail("dimension", err)
	}
	if g.dim != 2 && g.dim != 3 {
		return fail("dimension", ErrInvalidDimension)
	}
	if g.delta, b, err = msgp.ReadFloat64Bytes(b); err != nil {
		return fail("spacing", err)
	}
	if !(g.delta > 0) || math.IsInf(g.delta, 0) {
		return fail("spacing", ErrInvalidSpacing)
	}
	for a := 0; a < 3; a++ {
		var bc int
		if bc, b, err = msgp.ReadIntBytes(b); err != nil {
			return fail("boundary condition", err)
		}
		if bc < int(Reflective) || bc > int(Periodic) {
			return fail("boundary condition", fmt.Errorf("axis %d has unknown value %d", a, bc))
		}
		g.bcs[a] = BoundaryCondition(bc)
		if g.min[a], b, err = msgp.ReadIntBytes(b); err != nil {
			return fail("bounds", err)
		}
		if g.max[a], b, err = msgp.ReadIntBytes(b); err != nil {
			return fail("bounds", err)
		}
		if g.min[a] > g.max[a] || (g.bcs[a] == Periodic && g.min[a] == g.max[a]) {
			return fail("bounds", fmt.Errorf("axis %d has [%d, %d]", a, g.min[a], g.max[a]))
		}
	}

	out := Domain{grid: g}
	if out.width, b, err = msgp.ReadIntBytes(b); err != nil {
		return fail("width", err)
	}
	if out.negative, b, err = msgp.ReadBoolBytes(b); err != nil {
		return fail("background", err)
	}

	var n uint32
	if n, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return fail("points", err)
	}
	// every point takes at least one byte per index and nine for its value
	if uint64(n) > uint64(len(b)/(g.dim+9)) {
		return fail("points", fmt.Errorf("%d points in %d bytes", n, len(b)))
	}
	out.keys = make([]Index, n)
	out.values = make([]float64, n)
	for i := range out.keys {
		for a := 0; a < g.dim; a++ {
			if out.keys[i][a], b, err = msgp.ReadIntBytes(b); err != nil {
				return fail("point index", err)
			}
		}
		if out.values[i], b, err = msgp.ReadFloat64Bytes(b); err != nil {
			return fail("point value", err)
		}
		if i > 0 && compareIndex(out.keys[i-1], out.keys[i]) >= 0 {
			return fail("points", fmt.Errorf("indices not strictly increasing at %d", i))
		}
	}

	var labels uint32
	if labels, b, err = msgp.ReadMapHeaderBytes(b); err != nil {
		return fail("scalar data", err)
	}
	for l := uint32(0); l < labels; l++ {
		var name string
		if name, b, err = msgp.ReadStringBytes(b); err != nil {
			return fail("scalar label", err)
		}
		var m uint32
		if m, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return fail("scalar data", err)
		}
		if m != n {
			return fail("scalar data", fmt.Errorf("%q has %d values for %d points", name, m, n))
		}
		data := make([]float64, m)
		for i := range data {
			if data[i], b, err = msgp.ReadFloat64Bytes(b); err != nil {
				return fail("scalar data", err)
			}
		}
		out.pointData.SetScalar(name, data)
	}
	if labels, b, err = msgp.ReadMapHeaderBytes(b); err != nil {
		return fail("vector data", err)
	}
	for l := uint32(0); l < labels; l++ {
		var name string
		if name, b, err = msgp.ReadStringBytes(b); err != nil {
			return fail("vector label", err)
		}
		var m uint32
		if m, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return fail("vector data", err)
		}
		if m != n {
			return fail("vector data", fmt.Errorf("%q has %d values for %d points", name, m, n))
		}
		data := make([][3]float64, m)
		for i := range data {
			for c := 0; c < 3; c++ {
				if data[i][c], b, err = msgp.ReadFloat64Bytes(b); err != nil {
					return fail("vector data", err)
				}
			}
		}
		out.pointData.SetVector(name, data)
	}

	*d = out
	return b, nil
}

// Write serializes d to w.
func Write(w io.Writer, d *Domain) error {
	b, err := d.MarshalMsg(nil)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Read decodes a domain written by Write.
func Read(r io.Reader) (*Domain, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ls: read domain: %w", err)
	}
	d := &Domain{}
	if _, err := d.UnmarshalMsg(b); err != nil {
		return nil, err
	}
	return d, nil
}
