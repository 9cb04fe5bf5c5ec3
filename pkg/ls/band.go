package ls

import (
	"math"
	"slices"

	"github.com/chazu/narrowband/pkg/parallel"
)

// isNegative treats exact zeros as inside, so points bordering a zero are
// kept by Prune.
func isNegative(v float64) bool {
	return v <= 0
}

// Prune removes every stored point that has no star neighbour of opposite
// sign. Such points carry no interface information and become implicit.
// The result is a band of width 2.
func Prune(d *Domain, opts ...Option) error {
	o := buildOptions(opts)
	n := len(d.keys)
	dim := d.grid.dim

	values := d.values
	if o.RemoveStrayZeros {
		values = slices.Clone(d.values)
		err := parallel.For(n, o.Threads, func(_, start, end int) {
			for i := start; i < end; i++ {
				if d.values[i] != 0 {
					continue
				}
				for axis := 0; axis < dim; axis++ {
					lo := d.Value(d.keys[i].Offset(axis, -1))
					hi := d.Value(d.keys[i].Offset(axis, 1))
					if (lo > 0 && hi > 0) || (lo < 0 && hi < 0) {
						if math.Abs(lo) < math.Abs(hi) {
							values[i] = lo
						} else {
							values[i] = hi
						}
						break
					}
				}
			}
		})
		if err != nil {
			return err
		}
		// neighbour lookups below must see the corrected zeros
		copy(d.values, values)
	}

	keep := make([]bool, n)
	err := parallel.For(n, o.Threads, func(_, start, end int) {
		for i := start; i < end; i++ {
			v := d.values[i]
			if v == 0 {
				keep[i] = true
				continue
			}
			neg := isNegative(v)
			for axis := 0; axis < dim && !keep[i]; axis++ {
				for _, off := range [2]int{-1, 1} {
					if isNegative(d.Value(d.keys[i].Offset(axis, off))) != neg {
						keep[i] = true
						break
					}
				}
			}
		}
	})
	if err != nil {
		return err
	}

	d.compact(keep)
	d.Finalize(2)
	return nil
}

// compact drops every point whose keep flag is false.
func (d *Domain) compact(keep []bool) {
	keys := make([]Index, 0, len(d.keys))
	values := make([]float64, 0, len(d.keys))
	src := make([]int, 0, len(d.keys))
	for i, k := range keep {
		if k {
			keys = append(keys, d.keys[i])
			values = append(values, d.values[i])
			src = append(src, i)
		}
	}
	d.assignSorted(keys, values, src)
}

// Expand grows the band to width by propagating values outward one layer
// at a time. Each new point receives the upwind estimate |n|+1 from its
// closest stored star neighbour. Nothing happens if width does not exceed
// the current width.
func Expand(d *Domain, width int, opts ...Option) error {
	if width <= d.width {
		return nil
	}
	o := buildOptions(opts)
	start := d.width
	for cycle := 0; cycle < width-start; cycle++ {
		limit := float64(start+cycle+1) * 0.5
		if err := d.expandLayer(limit, o.Threads); err != nil {
			return err
		}
	}
	d.Finalize(width)
	return nil
}

// candidates returns the stored indices together with their star
// neighbours, sorted and unique.
func (d *Domain) candidates(threads int) ([]Index, error) {
	dim := d.grid.dim
	n := len(d.keys)
	chunks := parallel.Chunks(n, threads)
	parts := make([][]Index, chunks)
	err := parallel.For(n, threads, func(w, start, end int) {
		local := make([]Index, 0, (end-start)*(2*dim+1))
		for i := start; i < end; i++ {
			k := d.keys[i]
			local = append(local, k)
			for axis := 0; axis < dim; axis++ {
				local = append(local, d.grid.Map(k.Offset(axis, -1)), d.grid.Map(k.Offset(axis, 1)))
			}
		}
		parts[w] = local
	})
	if err != nil {
		return nil, err
	}
	all := slices.Concat(parts...)
	slices.SortFunc(all, compareIndex)
	return slices.Compact(all), nil
}

func (d *Domain) expandLayer(limit float64, threads int) error {
	cands, err := d.candidates(threads)
	if err != nil {
		return err
	}
	dim := d.grid.dim
	box := boxOffsets(dim)
	values := make([]float64, len(cands))
	src := make([]int, len(cands))
	keep := make([]bool, len(cands))

	err = parallel.For(len(cands), threads, func(_, start, end int) {
		for c := start; c < end; c++ {
			idx := cands[c]
			if pos, ok := d.Find(idx); ok {
				values[c], src[c], keep[c] = d.values[pos], pos, true
				continue
			}
			src[c] = -1
			neg := d.upwindNegative(idx, box)
			best := math.Inf(1)
			if neg {
				best = math.Inf(-1)
			}
			for axis := 0; axis < dim; axis++ {
				for _, off := range [2]int{-1, 1} {
					nv, ok := d.Lookup(idx.Offset(axis, off))
					if !ok {
						continue
					}
					if neg {
						best = max(best, nv-1)
					} else {
						best = min(best, nv+1)
					}
				}
			}
			if math.Abs(best) <= limit {
				values[c], keep[c] = best, true
			}
		}
	})
	if err != nil {
		return err
	}

	keys := make([]Index, 0, len(cands))
	vals := make([]float64, 0, len(cands))
	ids := make([]int, 0, len(cands))
	for c, k := range keep {
		if k {
			keys = append(keys, cands[c])
			vals = append(vals, values[c])
			ids = append(ids, src[c])
		}
	}
	d.assignSorted(keys, vals, ids)
	return nil
}

// upwindNegative returns the sign a new point next to the band takes from
// its stored neighbours. Exact zeros carry no side, so the signs of the
// nonzero star neighbours decide, then those of the whole box. Only when
// all of them are zero or missing is the sign inferred along the rows.
func (d *Domain) upwindNegative(idx Index, box []Index) bool {
	var neg, pos int
	count := func(off Index) {
		v, ok := d.Lookup(idx.Add(off))
		switch {
		case !ok || v == 0:
		case v < 0:
			neg++
		default:
			pos++
		}
	}
	for axis := 0; axis < d.grid.dim; axis++ {
		count(Index{}.Offset(axis, -1))
		count(Index{}.Offset(axis, 1))
	}
	if neg == pos {
		for _, off := range box {
			count(off)
		}
	}
	if neg != pos {
		return neg > pos
	}
	return d.inferNegative(idx)
}

// boxOffsets lists the offsets to every point of the 3^dim box around a
// point, the point itself excluded.
func boxOffsets(dim int) []Index {
	var out []Index
	var off Index
	hi := [3]int{}
	for a := 0; a < dim; a++ {
		hi[a] = 1
	}
	for off[2] = -hi[2]; off[2] <= hi[2]; off[2]++ {
		for off[1] = -hi[1]; off[1] <= hi[1]; off[1]++ {
			for off[0] = -hi[0]; off[0] <= hi[0]; off[0]++ {
				if off != (Index{}) {
					out = append(out, off)
				}
			}
		}
	}
	return out
}

// Reduce shrinks the band to width, dropping points with |v| > width/2.
// Nothing happens if width is not smaller than the current width.
func Reduce(d *Domain, width int) {
	if width >= d.width {
		return
	}
	limit := float64(width) * 0.5
	keep := make([]bool, len(d.values))
	for i, v := range d.values {
		keep[i] = math.Abs(v) <= limit
	}
	d.compact(keep)
	d.Finalize(width)
}
