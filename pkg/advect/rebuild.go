package advect

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
)

// rebuild restores a band of width 2 around the moved interface of the top
// level set and clips the lower level sets to it.
func (a *Advector) rebuild() error {
	if err := a.rebuildTop(); err != nil {
		return err
	}
	top := a.top()
	if a.opts.SpatialScheme != StencilLocalLaxFriedrichs1st {
		for _, l := range a.levelSets[:len(a.levelSets)-1] {
			if err := ls.Boolean(l, top, ls.Intersect, ls.WithThreads(a.opts.Threads)); err != nil {
				return fmt.Errorf("advect: adjust lower layer: %w", err)
			}
		}
	}
	if !a.opts.UpdatePointData {
		pd := top.PointData()
		vel := pd.Scalar(ls.LabelVelocities)
		pd.Clear()
		if a.opts.SaveVelocities && vel != nil {
			pd.SetScalar(ls.LabelVelocities, vel)
		}
	}
	return nil
}

// rebuildTop replaces the top level set by the points within one grid cell
// of its interface. Values next to a sign change are kept, clamped to the
// half cell when the neighbour across the interface is closer; the next
// layer is derived from its neighbours inside the band. Only the points
// marked active by the last computeRates contribute values; the others only
// contribute their sign.
func (a *Advector) rebuildTop() error {
	d := a.top()
	dim := d.Dimension()
	g := d.Grid()
	active := a.active
	if len(active) != d.NumPoints() {
		active = lo.Map(d.Values(), func(v float64, _ int) bool { return math.Abs(v) <= 0.5 })
	}
	value := func(idx ls.Index) float64 {
		p, ok := d.Find(idx)
		if !ok {
			return d.Value(idx)
		}
		v := d.ValueAt(p)
		switch {
		case active[p]:
			return v
		case v <= 0:
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	var cands []ls.Index
	for i, k := range d.Keys() {
		if !active[i] {
			continue
		}
		cands = append(cands, k)
		for axis := 0; axis < dim; axis++ {
			cands = append(cands, g.Map(k.Offset(axis, -1)), g.Map(k.Offset(axis, 1)))
		}
	}
	cands = lo.Uniq(cands)

	values := make([]float64, len(cands))
	src := make([]int, len(cands))
	keep := make([]bool, len(cands))
	err := parallel.For(len(cands), a.opts.Threads, func(_, start, end int) {
		for c := start; c < end; c++ {
			values[c], src[c], keep[c] = rebuildPoint(d, value, cands[c], dim)
		}
	})
	if err != nil {
		return fmt.Errorf("advect: rebuild: %w", err)
	}

	b := ls.NewBuilder(len(cands))
	for c, k := range keep {
		if k {
			b.AddFrom(cands[c], values[c], src[c])
		}
	}
	d.Assign(b)
	d.Finalize(2)
	a.chains, a.active = nil, nil
	return nil
}

// rebuildPoint computes the rebuilt value of idx and the stored point its
// point data comes from. value reports the current value of any point,
// infinite away from the band.
func rebuildPoint(d *ls.Domain, value func(ls.Index) float64, idx ls.Index, dim int) (float64, int, bool) {
	pos, _ := d.Find(idx)
	center := value(idx)
	defined := !math.IsInf(center, 0)
	neighbour := func(axis, off int) (ls.Index, float64) {
		n := d.Grid().Map(idx.Offset(axis, off))
		return n, value(n)
	}
	source := func(n ls.Index) int {
		if p, ok := d.Find(n); ok {
			return p
		}
		return -1
	}

	if defined && math.Abs(center) <= 1 {
		changes := false
		for axis := 0; axis < dim && !changes; axis++ {
			for _, off := range [2]int{-1, 1} {
				_, nv := neighbour(axis, off)
				if math.Signbit(nv-1e-7) != math.Signbit(center+1e-7) {
					changes = true
					break
				}
			}
		}
		if !changes {
			return 0, -1, false
		}
		if center > 0.5 || center < -0.5 {
			for axis := 0; axis < dim; axis++ {
				for _, off := range [2]int{-1, 1} {
					n, nv := neighbour(axis, off)
					if math.Abs(nv) > 1 {
						continue
					}
					if center > 0.5 && nv < -0.5 {
						return 0.5, source(n), true
					}
					if center < -0.5 && nv > 0.5 {
						return -0.5, source(n), true
					}
				}
			}
		}
		return center, pos, true
	}

	best, from := math.Inf(1), -1
	if center < 0 {
		best = math.Inf(-1)
	}
	for axis := 0; axis < dim; axis++ {
		for _, off := range [2]int{-1, 1} {
			n, nv := neighbour(axis, off)
			switch {
			case center >= 0 && nv >= -1 && nv <= 0 && nv+1 < best:
				best, from = nv+1, source(n)
			case center < 0 && nv <= 1 && nv > 0 && nv-1 > best:
				best, from = nv-1, source(n)
			}
		}
	}
	if math.Abs(best) <= 1 {
		return best, from, true
	}
	return 0, -1, false
}
