// Package geomadvect moves a level set by a purely geometric distribution
// instead of solving the level set equation. The distribution is placed at
// every surface node of the old interface and the union (deposition) or
// the intersection of the complements (etching) becomes the new interface.
// Large displacements are done in a single call.
package geomadvect

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
)

// cutoff is the largest magnitude kept in the result.
const cutoff = 1 + 100*2.220446049250313e-16

var ErrNoDistribution = errors.New("geomadvect: no distribution set")

type Options struct {
	Mask    *ls.Domain
	Threads int
}

type Option func(*Options)

// WithMask restricts the advection to the region outside mask. The mask
// must be wrapped by the advected level set.
func WithMask(mask *ls.Domain) Option {
	return func(o *Options) { o.Mask = mask }
}

func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

type point struct {
	idx ls.Index
	v   float64
}

// finite maps undefined values to the largest finite value of their sign so
// that differences between undefined points stay defined.
func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// Advect applies dist to every surface node of d and replaces d by the
// resulting level set of width 2.
func Advect(d *ls.Domain, dist Distribution, opts ...Option) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	if dist == nil {
		return ErrNoDistribution
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	log := ls.Logger()
	if d.NumPoints() == 0 {
		log.Warn("geometric advection of an empty level set")
		return nil
	}

	var mask *ls.Domain
	if o.Mask != nil {
		if err := ls.CheckCompatible(d, o.Mask); err != nil {
			return fmt.Errorf("geomadvect: mask: %w", err)
		}
		mask = o.Mask.Clone()
		if err := ls.Expand(mask, 3, ls.WithThreads(o.Threads)); err != nil {
			return fmt.Errorf("geomadvect: expand mask: %w", err)
		}
	}
	if err := ls.Expand(d, 3, ls.WithThreads(o.Threads)); err != nil {
		return fmt.Errorf("geomadvect: expand: %w", err)
	}

	g := d.Grid()
	dim := d.Dimension()
	delta := d.Spacing()
	distLo, distHi := dist.Bounds()

	nodes, nodeLo, nodeHi := surface(d, mask)
	if nodeLo.X > nodeHi.X {
		log.Warn("geometric advection without surface points")
		return nil
	}
	var reach r3.Vec
	for a := 0; a < dim; a++ {
		setComponent(&reach, a, max(math.Abs(component(distLo, a)), math.Abs(component(distHi, a)))+2*delta)
	}
	nodes = images(g, nodes, reach)
	var tree *kdtree.Tree
	if len(nodes) > 0 {
		tree = kdtree.New(nodes, false)
	}

	positive := true
	var distMin, distMax ls.Index
	for a := 0; a < dim; a++ {
		l, h := component(distLo, a), component(distHi, a)
		distMin[a] = int(l/delta + math.Copysign(2, l))
		distMax[a] = int(h/delta + math.Copysign(2, h))
		if l >= 0 {
			positive = false
		}
	}

	// Bounding box of the new level set.
	firstNeg := d.ValueAt(0) < 0
	lastNeg := d.ValueAt(d.NumPoints()-1) < 0
	var lo, hi ls.Index
	for a := 0; a < dim; a++ {
		lo[a] = int(component(nodeLo, a) / delta)
		hi[a] = int(component(nodeHi, a) / delta)
		switch {
		case !g.IsBounded(a) && firstNeg && distMin[a] < 0:
			lo[a] -= 2
		case positive:
			lo[a] += distMin[a]
		default:
			lo[a] -= distMin[a]
		}
		switch {
		case !g.IsBounded(a) && lastNeg && distMax[a] > 0:
			hi[a] += 2
		case positive:
			hi[a] += distMax[a]
		default:
			hi[a] -= distMax[a]
		}
		if g.IsBounded(a) {
			top := g.MaxIndex(a)
			if g.BoundaryCondition(a) == ls.Periodic {
				top--
			}
			lo[a] = max(lo[a], g.MinIndex(a))
			hi[a] = min(hi[a], top)
		}
	}
	var size [3]int
	total := 1
	for a := 0; a < 3; a++ {
		size[a] = max(hi[a]-lo[a]+1, 0)
		total *= size[a]
	}
	log.Debug("geometric advection", "nodes", len(nodes), "min", lo, "max", hi, "deposit", positive)

	initial := -math.MaxFloat64
	if positive {
		initial = math.MaxFloat64
	}
	parts := make([][]point, parallel.Chunks(total, o.Threads))
	err := parallel.For(total, o.Threads, func(w, start, end int) {
		for flat := start; flat < end; flat++ {
			idx := ls.Index{lo[0] + flat%size[0], lo[1] + (flat/size[0])%size[1], lo[2] + flat/(size[0]*size[1])}
			old := finite(d.Value(idx))
			if (positive && old < -cutoff) || (!positive && old > cutoff) {
				continue
			}
			coord := vec(g.Coordinate(idx))
			var wlo, whi r3.Vec
			for a := 0; a < 3; a++ {
				l := float64(idx[a]-abs(distMin[a])) * delta
				h := float64(idx[a]+abs(distMax[a])) * delta
				if a >= dim {
					l, h = 0, 0
				}
				setComponent(&wlo, a, l)
				setComponent(&whi, a, h)
			}

			distance := initial
			within(tree, dim, wlo, whi, 1e-6*delta, func(n surfaceNode) bool {
				if !dist.Inside(n.pos, coord, 2*delta) {
					return false
				}
				t := dist.SignedDistance(n.pos, coord, n.id) / delta
				if positive {
					if t <= -cutoff {
						distance = -math.MaxFloat64
						return true
					}
					distance = min(distance, t)
				} else {
					if t >= cutoff {
						distance = math.MaxFloat64
						return true
					}
					distance = max(distance, t)
				}
				return false
			})

			var mv float64
			if mask != nil {
				mv = finite(mask.Value(idx))
				if positive != (math.Abs(old-mv) < 1e-6) {
					if !positive && math.Abs(old) <= cutoff {
						parts[w] = append(parts[w], point{idx, old})
						continue
					}
				} else {
					if distance != initial {
						distance = min(mv, distance)
					} else if positive || old >= 0 {
						parts[w] = append(parts[w], point{idx, old})
						continue
					}
				}
			}

			if math.Abs(distance) > cutoff {
				continue
			}
			switch {
			case positive && old >= 0:
				parts[w] = append(parts[w], point{idx, distance})
			case !positive && old <= 0:
				if mask == nil || mv > -cutoff {
					parts[w] = append(parts[w], point{idx, distance})
				}
			default:
				// distribution smaller than two cells
				parts[w] = append(parts[w], point{idx, old})
			}
		}
	})
	if err != nil {
		return fmt.Errorf("geomadvect: %w", err)
	}

	var n int
	for _, p := range parts {
		n += len(p)
	}
	b := ls.NewBuilder(n)
	for _, p := range parts {
		for _, pt := range p {
			b.Add(pt.idx, pt.v)
		}
	}
	d.Assign(b)
	d.PointData().Clear()
	d.Finalize(1)
	if err := ls.Prune(d, ls.WithThreads(o.Threads)); err != nil {
		return fmt.Errorf("geomadvect: prune: %w", err)
	}
	d.Finalize(1)
	if err := ls.Expand(d, 2, ls.WithThreads(o.Threads)); err != nil {
		return fmt.Errorf("geomadvect: expand: %w", err)
	}
	return nil
}

// surface returns the points with |v| <= 0.5 moved onto the interface along
// their normal, scaled to the maximum norm. Points lying on the mask surface
// are left out. lo and hi bound all nodes, including masked ones.
func surface(d, mask *ls.Domain) (surfaceNodes, r3.Vec, r3.Vec) {
	var nodes surfaceNodes
	inf := math.Inf(1)
	lo, hi := r3.Vec{X: inf, Y: inf, Z: inf}, r3.Vec{X: -inf, Y: -inf, Z: -inf}
	dim := d.Dimension()
	delta := d.Spacing()
	d.Each(func(i int, idx ls.Index, v float64) {
		if math.Abs(v) > 0.5 {
			return
		}
		n := features.Normal(d, idx)
		var scale float64
		for a := 0; a < dim; a++ {
			scale = max(scale, math.Abs(n[a]))
		}
		pos := r3.Sub(vec(d.Grid().Coordinate(idx)), r3.Scale(v*delta*scale, vec(n)))
		for a := 0; a < dim; a++ {
			setComponent(&lo, a, min(component(lo, a), component(pos, a)))
			setComponent(&hi, a, max(component(hi, a), component(pos, a)))
		}
		if mask != nil {
			if mv, ok := mask.Lookup(idx); ok && mv < v+1e-5 {
				return
			}
		}
		nodes = append(nodes, surfaceNode{pos: pos, id: i, dim: dim})
	})
	for a := dim; a < 3; a++ {
		setComponent(&lo, a, 0)
		setComponent(&hi, a, 0)
	}
	return nodes, lo, hi
}

// images adds the mirror images of nodes within reach of a reflective
// bound and the shifted copies of nodes within reach of a periodic bound,
// so that points next to the bounds see the surface across them.
func images(g ls.Grid, nodes surfaceNodes, reach r3.Vec) surfaceNodes {
	delta := g.Spacing()
	for a := 0; a < g.Dimension(); a++ {
		bc := g.BoundaryCondition(a)
		if bc == ls.Infinite {
			continue
		}
		lo := float64(g.MinIndex(a)) * delta
		hi := float64(g.MaxIndex(a)) * delta
		r := component(reach, a)
		add := func(n surfaceNode, x float64) surfaceNode {
			setComponent(&n.pos, a, x)
			return n
		}
		for _, n := range nodes[:len(nodes):len(nodes)] {
			p := component(n.pos, a)
			switch bc {
			case ls.Reflective:
				if p-lo <= r && p > lo {
					nodes = append(nodes, add(n, 2*lo-p))
				}
				if hi-p <= r && p < hi {
					nodes = append(nodes, add(n, 2*hi-p))
				}
			case ls.Periodic:
				if p-lo <= r {
					nodes = append(nodes, add(n, p+hi-lo))
				}
				if hi-p <= r {
					nodes = append(nodes, add(n, p-(hi-lo)))
				}
			}
		}
	}
	return nodes
}

func setComponent(v *r3.Vec, axis int, x float64) {
	switch axis {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
