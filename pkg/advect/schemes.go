package advect

import (
	"math"

	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/ls"
)

// evaluator computes the discretized Hamiltonian on the top level set. Each
// worker owns one evaluator; final collects the largest dissipation
// coefficients for the time step limit of the Lax-Friedrichs schemes.
type evaluator struct {
	scheme      SpatialScheme
	d           *ls.Domain
	vel         Velocity
	analytic    DissipationAlpha
	alphaFactor float64
	normals     bool
	global      [3]float64
	box         []ls.Index
	final       [3]float64
}

func sq(x float64) float64 { return x * x }

// sample returns the value at idx moved by off along axis. Undefined points
// are extrapolated with unit slope from center.
func (e *evaluator) sample(idx ls.Index, axis, off int, center float64) float64 {
	return e.at(idx.Offset(axis, off), center, math.Abs(float64(off)))
}

func (e *evaluator) at(idx ls.Index, center, dist float64) float64 {
	v := e.d.Value(idx)
	if math.IsInf(v, 1) {
		return center + dist
	}
	if math.IsInf(v, -1) {
		return center - dist
	}
	return v
}

// upwind returns the one-sided derivatives along axis, with the second
// order correction of the smaller second derivative when order is 2.
func (e *evaluator) upwind(idx ls.Index, axis int, center float64) (pos, neg float64) {
	delta := e.d.Spacing()
	p := e.sample(idx, axis, 1, center)
	n := e.sample(idx, axis, -1, center)
	pos = (p - center) / delta
	neg = (center - n) / delta
	if e.scheme.order() < 2 {
		return pos, neg
	}
	pp := e.sample(idx, axis, 2, center)
	nn := e.sample(idx, axis, -2, center)
	d2 := 2 * delta * delta
	d00 := (p - 2*center + n) / d2
	dpp := (pp - 2*p + center) / d2
	dnn := (nn - 2*n + center) / d2
	if math.Signbit(d00) == math.Signbit(dpp) {
		pos -= delta * minAbs(dpp, d00)
	}
	if math.Signbit(d00) == math.Signbit(dnn) {
		neg += delta * minAbs(dnn, d00)
	}
	return pos, neg
}

// minAbs returns a if it is strictly smaller in magnitude, otherwise b.
func minAbs(a, b float64) float64 {
	if math.Abs(a) < math.Abs(b) {
		return a
	}
	return b
}

// central returns the central difference gradient at idx.
func (e *evaluator) central(idx ls.Index) [3]float64 {
	var g [3]float64
	center := e.d.Value(idx)
	if math.IsInf(center, 0) {
		return g
	}
	delta := e.d.Spacing()
	for i := 0; i < e.d.Dimension(); i++ {
		g[i] = (e.sample(idx, i, 1, center) - e.sample(idx, i, -1, center)) / (2 * delta)
	}
	return g
}

func (e *evaluator) normal(idx ls.Index) [3]float64 {
	if !e.normals {
		return [3]float64{}
	}
	return features.Normal(e.d, idx)
}

func (e *evaluator) query(idx ls.Index, material, pointID int, normal [3]float64) (float64, [3]float64, error) {
	coord := e.d.Grid().Coordinate(idx)
	s := e.vel.ScalarVelocity(coord, material, normal, pointID)
	if err := checkScalar(s, "scalar", coord, idx); err != nil {
		return 0, [3]float64{}, err
	}
	v := e.vel.VectorVelocity(coord, material, normal, pointID)
	if err := checkVector(v, coord, idx); err != nil {
		return 0, [3]float64{}, err
	}
	return s, v, nil
}

// rate returns the Hamiltonian and the dissipation at the stored point
// pointID. The point moves with hamiltonian - dissipation.
func (e *evaluator) rate(pointID, material int) (float64, float64, error) {
	idx := e.d.Index(pointID)
	if e.scheme == StencilLocalLaxFriedrichs1st {
		return e.stencilLaxFriedrichs(idx, pointID, material)
	}
	scalar, vector, err := e.query(idx, material, pointID, e.normal(idx))
	if err != nil {
		return 0, 0, err
	}
	switch e.scheme {
	case EngquistOsher1st, EngquistOsher2nd:
		return e.engquistOsher(idx, scalar, vector), 0, nil
	case WENO5:
		return e.weno(idx, scalar, vector), 0, nil
	}
	return e.laxFriedrichs(idx, pointID, material, scalar, vector)
}

// godunov combines upwind derivatives for a scalar and a vector velocity.
func godunov(dim int, pos, neg [3]float64, scalar float64, vector [3]float64) float64 {
	var gradPos, gradNeg float64
	for i := 0; i < dim; i++ {
		gradPos += sq(max(neg[i], 0)) + sq(min(pos[i], 0))
		gradNeg += sq(min(neg[i], 0)) + sq(max(pos[i], 0))
	}
	var h float64
	if scalar > 0 {
		h = math.Sqrt(gradPos) * scalar
	} else {
		h = math.Sqrt(gradNeg) * scalar
	}
	for i := 0; i < dim; i++ {
		if vector[i] > 0 {
			h += vector[i] * neg[i]
		} else {
			h += vector[i] * pos[i]
		}
	}
	return h
}

func (e *evaluator) engquistOsher(idx ls.Index, scalar float64, vector [3]float64) float64 {
	dim := e.d.Dimension()
	center := e.d.Value(idx)
	var pos, neg [3]float64
	for i := 0; i < dim; i++ {
		pos[i], neg[i] = e.upwind(idx, i, center)
	}
	return godunov(dim, pos, neg, scalar, vector)
}

func (e *evaluator) weno(idx ls.Index, scalar float64, vector [3]float64) float64 {
	dim := e.d.Dimension()
	delta := e.d.Spacing()
	center := e.d.Value(idx)
	var pos, neg [3]float64
	var s [7]float64
	for i := 0; i < dim; i++ {
		for k := range s {
			s[k] = e.sample(idx, i, k-3, center)
		}
		neg[i] = weno5(s, delta, false)
		pos[i] = weno5(s, delta, true)
	}
	return godunov(dim, pos, neg, scalar, vector)
}

// weno5 returns the fifth order WENO approximation of the one-sided
// derivative at the center of x. plus selects the right-sided derivative.
func weno5(x [7]float64, dx float64, plus bool) float64 {
	var d [5]float64
	for i := range d {
		if plus {
			d[i] = x[6-i] - x[5-i]
		} else {
			d[i] = x[i+1] - x[i]
		}
	}
	s1 := 13.0/12.0*sq(d[0]-2*d[1]+d[2]) + 0.25*sq(d[0]-4*d[1]+3*d[2])
	s2 := 13.0/12.0*sq(d[1]-2*d[2]+d[3]) + 0.25*sq(d[1]-d[3])
	s3 := 13.0/12.0*sq(d[2]-2*d[3]+d[4]) + 0.25*sq(3*d[2]-4*d[3]+d[4])

	eps := 1e-6 * dx * dx
	a1 := 0.1 / (eps + s1)
	a2 := 0.6 / (eps + s2)
	a3 := 0.3 / (eps + s3)

	p1 := (2*d[0] - 7*d[1] + 11*d[2]) / 6
	p2 := (-d[1] + 5*d[2] + 2*d[3]) / 6
	p3 := (2*d[2] + 5*d[3] - d[4]) / 6
	return (a1*p1 + a2*p2 + a3*p3) / ((a1 + a2 + a3) * dx)
}

func (e *evaluator) laxFriedrichs(idx ls.Index, pointID, material int, scalar float64, vector [3]float64) (float64, float64, error) {
	dim := e.d.Dimension()
	center := e.d.Value(idx)
	var pos, neg [3]float64
	var grad float64
	for i := 0; i < dim; i++ {
		pos[i], neg[i] = e.upwind(idx, i, center)
		grad += sq((pos[i] + neg[i]) * 0.5)
	}
	h := scalar * math.Sqrt(grad)
	for i := 0; i < dim; i++ {
		if vector[i] > 0 {
			h += vector[i] * neg[i]
		} else {
			h += vector[i] * pos[i]
		}
	}
	if h == 0 {
		return 0, 0, nil
	}

	alpha, err := e.alphas(idx, pointID, material, scalar, vector)
	if err != nil {
		return 0, 0, err
	}
	var diss float64
	for i := 0; i < dim; i++ {
		e.final[i] = max(e.final[i], alpha[i])
		diss += alpha[i] * (pos[i] - neg[i]) * 0.5
	}
	return h, diss, nil
}

// pointAlpha is the magnitude of the characteristic speed along each axis
// for a speed V along normal n plus a vector velocity.
func pointAlpha(dim int, scalar float64, vector, n [3]float64) [3]float64 {
	var a [3]float64
	for i := 0; i < dim; i++ {
		a[i] = math.Abs(scalar*n[i] + vector[i])
	}
	return a
}

func (e *evaluator) alphas(idx ls.Index, pointID, material int, scalar float64, vector [3]float64) ([3]float64, error) {
	dim := e.d.Dimension()
	var a [3]float64
	switch e.scheme {
	case LaxFriedrichs1st, LaxFriedrichs2nd:
		a = e.global
	case LocalLocalLaxFriedrichs1st, LocalLocalLaxFriedrichs2nd:
		a = pointAlpha(dim, scalar, vector, features.Normal(e.d, idx))
	case LocalLaxFriedrichs1st, LocalLaxFriedrichs2nd:
		for _, off := range e.box {
			nb := idx.Add(off)
			n := features.Normal(e.d, nb)
			id := pointID
			if off != (ls.Index{}) {
				id = -1
				if p, ok := e.d.Find(e.d.Grid().Map(nb)); ok {
					id = p
				}
			}
			s, v, err := e.query(nb, material, id, n)
			if err != nil {
				return a, err
			}
			pa := pointAlpha(dim, s, v, n)
			for i := 0; i < dim; i++ {
				a[i] = max(a[i], pa[i])
			}
		}
	case LocalLaxFriedrichsAnalytical1st:
		for _, off := range e.box {
			cd := e.central(idx.Add(off))
			for i := 0; i < dim; i++ {
				a[i] = max(a[i], e.analytic.DissipationAlpha(i, material, cd))
			}
		}
		return a, nil
	}
	for i := 0; i < dim; i++ {
		a[i] *= e.alphaFactor
	}
	return a, nil
}

// stencilLaxFriedrichs evaluates the scalar stencil local Lax-Friedrichs
// scheme. The dissipation coefficient along k is the largest derivative of
// the Hamiltonian with respect to the k-th gradient component over the box
// around idx, with the velocity differentiated numerically in the normal.
func (e *evaluator) stencilLaxFriedrichs(idx ls.Index, pointID, material int) (float64, float64, error) {
	dim := e.d.Dimension()
	delta := e.d.Spacing()
	center := e.d.Value(idx)

	n := features.Normal(e.d, idx)
	scalar, vector, err := e.query(idx, material, pointID, n)
	if err != nil {
		return 0, 0, err
	}
	speed := scalar
	for i := 0; i < dim; i++ {
		speed += vector[i] * n[i]
	}
	if speed == 0 {
		return 0, 0, nil
	}
	g := e.central(idx)
	var gn float64
	for i := 0; i < dim; i++ {
		gn += g[i] * g[i]
	}
	h := math.Sqrt(gn) * speed

	var alpha [3]float64
	dn := math.Abs(math.Cbrt(2.220446049250313e-16) * speed)
	for _, off := range e.box {
		nb := idx.Add(off)
		ln := features.Normal(e.d, nb)
		if ln == ([3]float64{}) {
			continue
		}
		coord := e.d.Grid().Coordinate(nb)
		local := func(normal [3]float64) (float64, error) {
			s := e.vel.ScalarVelocity(coord, material, normal, -1)
			if err := checkScalar(s, "scalar", coord, nb); err != nil {
				return 0, err
			}
			v := e.vel.VectorVelocity(coord, material, normal, -1)
			if err := checkVector(v, coord, nb); err != nil {
				return 0, err
			}
			for i := 0; i < dim; i++ {
				s += v[i] * normal[i]
			}
			return s, nil
		}
		lv, err := local(ln)
		if err != nil {
			return 0, 0, err
		}
		var dv [3]float64
		if dn > 0 {
			for k := 0; k < dim; k++ {
				up, down := ln, ln
				up[k] += dn
				down[k] -= dn
				vu, err := local(up)
				if err != nil {
					return 0, 0, err
				}
				vd, err := local(down)
				if err != nil {
					return 0, 0, err
				}
				dv[k] = (vu - vd) / (2 * dn)
			}
		}
		lg := e.central(nb)
		var lg2 float64
		for i := 0; i < dim; i++ {
			lg2 += lg[i] * lg[i]
		}
		if lg2 == 0 {
			continue
		}
		for k := 0; k < dim; k++ {
			var monti, toifl float64
			for j := 0; j < dim; j++ {
				if j == k {
					continue
				}
				monti += lg[j] * lg[j] * dv[k]
				toifl += lg[j] * dv[j]
			}
			monti /= lg2
			toifl *= -lg[k] / lg2
			alpha[k] = max(alpha[k], math.Abs(monti+toifl+lv*ln[k]))
		}
	}

	var diss float64
	for k := 0; k < dim; k++ {
		pos := (e.sample(idx, k, 1, center) - center) / delta
		neg := (center - e.sample(idx, k, -1, center)) / delta
		diss += e.alphaFactor * alpha[k] * (pos - neg) * 0.5
		e.final[k] = max(e.final[k], alpha[k])
	}
	return h, diss, nil
}

// limit applies the dissipation time step restriction of the
// Lax-Friedrichs family for the per-axis maxima final.
func (s SpatialScheme) limit(dt float64, final [3]float64, dim int, delta float64) float64 {
	switch s {
	case EngquistOsher1st, EngquistOsher2nd, WENO5:
		return dt
	}
	var sum float64
	for i := 0; i < dim; i++ {
		sum += final[i] / delta
	}
	if sum <= 0 {
		return dt
	}
	return min(dt, 1/sum)
}

// boxOffsets returns every offset of the (2r+1)^dim box, center included.
func boxOffsets(dim, r int) []ls.Index {
	var out []ls.Index
	var rec func(axis int, cur ls.Index)
	rec = func(axis int, cur ls.Index) {
		if axis == dim {
			out = append(out, cur)
			return
		}
		for o := -r; o <= r; o++ {
			cur[axis] = o
			rec(axis+1, cur)
		}
	}
	rec(0, ls.Index{})
	return out
}
