// Package advect moves level sets with a velocity field by solving the level
// set equation on the narrow band. The topmost level set is advected; the
// level sets below it select the material whose velocity applies and stop
// etch fronts at material transitions.
package advect

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/parallel"
	"github.com/chazu/narrowband/pkg/voids"
)

const (
	// wrappingLayerEpsilon decides when a lower layer coincides with the top.
	wrappingLayerEpsilon = 1e-4
	maxRetries           = 5
)

var errUnstableStage = errors.New("advect: unstable stage")

// segment is one piece of a rate chain: the point moves with rate until its
// value reaches until.
type segment struct {
	rate, until float64
}

// Advector advects the last inserted level set. It is not safe for
// concurrent use.
type Advector struct {
	levelSets []*ls.Domain
	velocity  Velocity
	opts      Options

	advectedTime float64
	steps        int
	timeStep     float64

	// chains and active are aligned with the stored points of the top level
	// set between computeRates and the following rebuild.
	chains [][]segment
	active []bool
}

// New returns an Advector using v.
func New(v Velocity, opts ...Option) *Advector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Advector{velocity: v, opts: o, timeStep: -1}
}

// InsertNextLevelSet adds d on top of the already inserted level sets. The
// last inserted level set is the one that moves.
func (a *Advector) InsertNextLevelSet(d *ls.Domain) error {
	if d == nil {
		return ls.ErrNilDomain
	}
	if len(a.levelSets) > 0 {
		if err := ls.CheckCompatible(a.levelSets[0], d); err != nil {
			return fmt.Errorf("advect: insert level set: %w", err)
		}
	}
	a.levelSets = append(a.levelSets, d)
	return nil
}

func (a *Advector) LevelSets() []*ls.Domain { return a.levelSets }

func (a *Advector) SetVelocity(v Velocity) { a.velocity = v }

func (a *Advector) SetAdvectionTime(t float64) { a.opts.AdvectionTime = t }

func (a *Advector) SetSingleStep(b bool) { a.opts.SingleStep = b }

func (a *Advector) SetSpatialScheme(s SpatialScheme) { a.opts.SpatialScheme = s }

func (a *Advector) SetTemporalScheme(t TemporalScheme) { a.opts.TemporalScheme = t }

// AdvectedTime returns the time advanced by the last Apply.
func (a *Advector) AdvectedTime() float64 { return a.advectedTime }

// NumberOfTimeSteps returns the steps taken by the last Apply.
func (a *Advector) NumberOfTimeSteps() int { return a.steps }

// CurrentTimeStep returns the last time step, or -1 before the first.
func (a *Advector) CurrentTimeStep() float64 { return a.timeStep }

func (a *Advector) top() *ls.Domain { return a.levelSets[len(a.levelSets)-1] }

func (a *Advector) material(layer int) int {
	if layer < len(a.opts.MaterialMap) {
		return a.opts.MaterialMap[layer]
	}
	return layer
}

func (a *Advector) validate() error {
	if len(a.levelSets) == 0 {
		return ls.ErrEmptyLevelSets
	}
	if lo.Contains(a.levelSets, nil) {
		return ls.ErrNilDomain
	}
	if a.velocity == nil {
		return ErrNoVelocityField
	}
	if _, ok := spatialNames[a.opts.SpatialScheme]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownScheme, a.opts.SpatialScheme)
	}
	if a.opts.TemporalScheme < ForwardEuler || a.opts.TemporalScheme > RungeKutta3 {
		return fmt.Errorf("%w: %v", ErrUnknownScheme, a.opts.TemporalScheme)
	}
	if a.opts.SpatialScheme == LocalLaxFriedrichsAnalytical1st {
		if _, ok := a.velocity.(DissipationAlpha); !ok {
			return ErrNoDissipationAlpha
		}
	}
	if a.opts.TimeStepRatio <= 0 {
		return fmt.Errorf("advect: time step ratio must be positive, got %v", a.opts.TimeStepRatio)
	}
	return nil
}

// Apply advances the top level set by the configured advection time. With
// an advection time of 0 a single step of the largest stable size is taken.
func (a *Advector) Apply() error {
	if err := a.validate(); err != nil {
		return err
	}
	log := ls.Logger()
	if a.opts.TimeStepRatio >= 0.5 {
		log.Warn("time step ratio of 0.5 or more leads to unstable advection", "ratio", a.opts.TimeStepRatio)
	}
	a.advectedTime, a.steps = 0, 0

	if a.opts.AdvectionTime == 0 {
		dt, err := a.step(math.MaxFloat64)
		if err != nil {
			return err
		}
		a.advectedTime, a.steps = dt, 1
		return nil
	}

	for a.advectedTime < a.opts.AdvectionTime {
		dt, err := a.step(a.opts.AdvectionTime - a.advectedTime)
		if err != nil {
			return err
		}
		a.advectedTime += dt
		a.steps++
		if a.opts.SingleStep {
			break
		}
		if a.opts.MaxIterations > 0 && a.steps >= a.opts.MaxIterations {
			log.Warn("advection stopped at iteration limit",
				"steps", a.steps, "time", a.advectedTime, "target", a.opts.AdvectionTime)
			break
		}
	}
	log.Debug("advection finished", "steps", a.steps, "time", a.advectedTime,
		"scheme", a.opts.SpatialScheme.String(), "points", a.top().NumPoints())
	return nil
}

// step performs one time step, retrying with halved step sizes when a stage
// turns out unstable. On failure all level sets are restored.
func (a *Advector) step(maxTimeStep float64) (float64, error) {
	saved := lo.Map(a.levelSets, func(d *ls.Domain, _ int) *ls.Domain { return d.Clone() })
	restore := func() {
		for i, d := range a.levelSets {
			d.DeepCopy(saved[i])
		}
	}
	for retry := 0; ; retry++ {
		dt, err := a.integrate(maxTimeStep, saved[len(saved)-1])
		if err == nil {
			a.timeStep = dt
			return dt, nil
		}
		restore()
		if !errors.Is(err, errUnstableStage) {
			return 0, err
		}
		if retry >= maxRetries {
			return 0, fmt.Errorf("%w: no stable step after %d retries", ErrUnstable, maxRetries)
		}
		ls.Logger().Warn("unstable time step, retrying with half the step", "dt", dt, "retry", retry+1)
		maxTimeStep = dt / 2
	}
}

// integrate runs the temporal scheme. orig holds the top level set at the
// start of the step.
func (a *Advector) integrate(maxTimeStep float64, orig *ls.Domain) (float64, error) {
	dt, err := a.computeRates(maxTimeStep)
	if err != nil {
		return dt, err
	}
	if dt <= 0 || math.IsNaN(dt) {
		return dt, fmt.Errorf("%w: time step %v", ErrUnstable, dt)
	}
	if err := a.update(dt); err != nil {
		return dt, err
	}

	stage := func(wOrig, wCur float64) error {
		if err := a.rebuildTop(); err != nil {
			return err
		}
		if _, err := a.computeRates(dt); err != nil {
			return err
		}
		if err := a.update(dt); err != nil {
			return err
		}
		combine(a.top(), orig, a.active, wOrig, wCur)
		return nil
	}
	switch a.opts.TemporalScheme {
	case RungeKutta2:
		if err := stage(0.5, 0.5); err != nil {
			return dt, err
		}
	case RungeKutta3:
		if err := stage(0.75, 0.25); err != nil {
			return dt, err
		}
		if err := stage(1.0/3, 2.0/3); err != nil {
			return dt, err
		}
	}
	return dt, a.rebuild()
}

// combine sets every active point of cur that is defined in orig to
// wOrig*orig + wCur*cur.
func combine(cur, orig *ls.Domain, active []bool, wOrig, wCur float64) {
	for i, k := range cur.Keys() {
		if i >= len(active) || !active[i] {
			continue
		}
		if ov, ok := orig.Lookup(k); ok {
			cur.SetValueAt(i, wOrig*ov+wCur*cur.ValueAt(i))
		}
	}
}

func (a *Advector) newEvaluator(top *ls.Domain, global [3]float64) *evaluator {
	e := &evaluator{
		scheme:      a.opts.SpatialScheme,
		d:           top,
		vel:         a.velocity,
		alphaFactor: a.opts.DissipationAlpha,
		normals:     a.opts.CalculateNormals,
		global:      global,
		box:         boxOffsets(top.Dimension(), 1),
	}
	e.analytic, _ = a.velocity.(DissipationAlpha)
	return e
}

// computeRates evaluates the rate chains of every active point of the top
// level set and returns the largest stable time step not above maxTimeStep.
// Points with |value| > 0.5 are inactive: they keep their value and only
// carry the sign for the rebuild.
func (a *Advector) computeRates(maxTimeStep float64) (float64, error) {
	top := a.top()
	threads := a.opts.Threads
	if err := ls.Expand(top, a.opts.SpatialScheme.bandWidth(), ls.WithThreads(threads)); err != nil {
		return 0, fmt.Errorf("advect: prepare: %w", err)
	}

	var void []bool
	if a.opts.IgnoreVoids {
		res, err := voids.MarkVoidPoints(top)
		if err != nil {
			return 0, fmt.Errorf("advect: mark voids: %w", err)
		}
		void = res.Void
	}

	var global [3]float64
	if s := a.opts.SpatialScheme; s == LaxFriedrichs1st || s == LaxFriedrichs2nd {
		var err error
		if global, err = a.globalAlphas(top); err != nil {
			return 0, err
		}
	}

	n := top.NumPoints()
	chunks := parallel.Chunks(n, threads)
	evals := make([]*evaluator, chunks)
	errs := make([]error, chunks)
	chains := make([][]segment, n)
	times := make([]float64, n)
	keep := make([]bool, n)
	err := parallel.For(n, threads, func(w, start, end int) {
		e := a.newEvaluator(top, global)
		evals[w] = e
		for i := start; i < end; i++ {
			v := top.ValueAt(i)
			if math.Abs(v) > 0.5 {
				continue
			}
			keep[i] = true
			chain, t, err := a.chain(e, i, v, void != nil && void[i])
			if err != nil {
				errs[w] = err
				return
			}
			chains[i], times[i] = chain, t
		}
	})
	if err != nil {
		return 0, fmt.Errorf("advect: rates: %w", err)
	}
	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}

	if cb := a.opts.Callback; cb != nil {
		rates := lo.Map(chains, func(c []segment, i int) float64 {
			if !keep[i] {
				return 0
			}
			return c[0].rate
		})
		if !cb(top, rates) {
			return 0, ErrStepAborted
		}
		for i, r := range rates {
			if !keep[i] || r == chains[i][0].rate {
				continue
			}
			chains[i], times[i] = single(r, a.opts.TimeStepRatio)
		}
	}

	dt := math.Inf(1)
	for i, t := range times {
		if keep[i] && t < dt {
			dt = t
		}
	}
	if a.opts.SpatialScheme == WENO5 {
		dt *= 0.5
	}
	// dissipation limits use the per-axis maxima over all workers
	var final [3]float64
	for _, e := range evals {
		if e == nil {
			continue
		}
		for k := range final {
			final[k] = max(final[k], e.final[k])
		}
	}
	dt = min(a.opts.SpatialScheme.limit(dt, final, top.Dimension(), top.Spacing()), maxTimeStep)
	a.chains, a.active = chains, keep
	ls.Logger().Debug("rates computed", "points", n,
		"active", len(lo.Filter(keep, func(k bool, _ int) bool { return k })), "dt", dt)
	return dt, nil
}

// single returns the chain of a point moving with rate r regardless of the
// layers below.
func single(r, cfl float64) ([]segment, float64) {
	switch {
	case r > 0:
		return []segment{{r, -math.MaxFloat64}}, cfl / r
	case r < 0:
		return []segment{{r, math.MaxFloat64}}, -cfl / r
	}
	return []segment{{r, math.MaxFloat64}}, math.MaxFloat64
}

// chain builds the rate chain of stored point i with value v. Etching
// points pass through lower layers, switching to the rate of the material
// they reach, until the CFL budget is spent.
func (a *Advector) chain(e *evaluator, i int, value float64, isVoid bool) ([]segment, float64, error) {
	idx := e.d.Index(i)
	cfl := a.opts.TimeStepRatio
	var t float64
	var segs []segment
	for cur := len(a.levelSets) - 1; cur >= 0; cur-- {
		var rate float64
		if !isVoid {
			for layer, l := range a.levelSets {
				if l.Value(idx) > value+wrappingLayerEpsilon {
					continue
				}
				h, diss, err := e.rate(i, a.material(layer))
				if err != nil {
					return nil, 0, err
				}
				rate = h - diss
				break
			}
		}
		below := math.MaxFloat64
		if cur > 0 {
			below = a.levelSets[cur-1].Value(idx)
		}
		switch {
		case rate > 0:
			return append(segs, segment{rate, -math.MaxFloat64}), t + cfl/rate, nil
		case rate == 0:
			return append(segs, segment{0, math.MaxFloat64}), math.MaxFloat64, nil
		}
		diff := math.Abs(below - value)
		if diff >= cfl {
			return append(segs, segment{rate, math.MaxFloat64}), t - cfl/rate, nil
		}
		t -= diff / rate
		segs = append(segs, segment{rate, below})
		cfl -= diff
		value = below
		if a.opts.AdaptiveTimeSteps {
			cfl = min(cfl, a.opts.TimeStepRatio/float64(a.opts.AdaptiveSubSteps))
		}
	}
	return segs, t, nil
}

// globalAlphas returns the largest characteristic speed per axis over all
// active points, used by the global Lax-Friedrichs scheme.
func (a *Advector) globalAlphas(top *ls.Domain) ([3]float64, error) {
	n := top.NumPoints()
	dim := top.Dimension()
	chunks := parallel.Chunks(n, a.opts.Threads)
	parts := make([][3]float64, chunks)
	errs := make([]error, chunks)
	err := parallel.For(n, a.opts.Threads, func(w, start, end int) {
		e := a.newEvaluator(top, [3]float64{})
		for i := start; i < end; i++ {
			v := top.ValueAt(i)
			if math.Abs(v) > 0.5 {
				continue
			}
			idx := top.Index(i)
			material := a.material(len(a.levelSets) - 1)
			for layer, l := range a.levelSets {
				if l.Value(idx) <= v+wrappingLayerEpsilon {
					material = a.material(layer)
					break
				}
			}
			nrm := features.Normal(top, idx)
			s, vec, err := e.query(idx, material, i, nrm)
			if err != nil {
				errs[w] = err
				return
			}
			pa := pointAlpha(dim, s, vec, nrm)
			for k := 0; k < dim; k++ {
				parts[w][k] = max(parts[w][k], pa[k])
			}
		}
	})
	var out [3]float64
	if err != nil {
		return out, fmt.Errorf("advect: alphas: %w", err)
	}
	for w := range parts {
		if errs[w] != nil {
			return out, errs[w]
		}
		for k := range out {
			out[k] = max(out[k], parts[w][k])
		}
	}
	return out, nil
}

// update moves every active point of the top level set along its rate chain
// for dt. With CheckDissipation a non-finite value or a move of more than one
// grid cell fails the stage.
func (a *Advector) update(dt float64) error {
	top := a.top()
	n := top.NumPoints()
	if len(a.chains) != n || len(a.active) != n {
		return fmt.Errorf("advect: %d rate chains for %d points", len(a.chains), n)
	}
	next := make([]float64, n)
	applied := make([]float64, n)
	bad := make([]bool, parallel.Chunks(n, a.opts.Threads))
	err := parallel.For(n, a.opts.Threads, func(w, start, end int) {
		for i := start; i < end; i++ {
			old := top.ValueAt(i)
			next[i] = old
			if !a.active[i] {
				continue
			}
			v, t := old, dt
			chain := a.chains[i]
			k := 0
			for k < len(chain)-1 && math.Abs(chain[k].until-v) < math.Abs(t*chain[k].rate) {
				t -= math.Abs((chain[k].until - v) / chain[k].rate)
				v = chain[k].until
				k++
			}
			if len(chain) > 0 {
				v -= t * chain[k].rate
			}
			if a.opts.CheckDissipation && (math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v-old) > 1) {
				bad[w] = true
			}
			next[i] = v
			if dt > 0 {
				applied[i] = (old - v) / dt
			}
		}
	})
	if err != nil {
		return fmt.Errorf("advect: update: %w", err)
	}
	if lo.Contains(bad, true) {
		return errUnstableStage
	}
	for i, v := range next {
		top.SetValueAt(i, v)
	}
	if a.opts.SaveVelocities {
		top.PointData().SetScalar(ls.LabelVelocities, applied)
	}
	return nil
}

// AdvectToTime advances a by total time in single steps, calling progress
// after each step. ctx is checked between steps.
func AdvectToTime(ctx context.Context, a *Advector, total float64, progress func(elapsed float64, steps int)) error {
	prevTime, prevSingle := a.opts.AdvectionTime, a.opts.SingleStep
	defer func() {
		a.opts.AdvectionTime, a.opts.SingleStep = prevTime, prevSingle
	}()
	var elapsed float64
	var steps int
	a.opts.SingleStep = true
	for elapsed < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.opts.AdvectionTime = total - elapsed
		if err := a.Apply(); err != nil {
			return err
		}
		elapsed += a.advectedTime
		steps += a.steps
		if progress != nil {
			progress(elapsed, steps)
		}
	}
	a.advectedTime, a.steps = elapsed, steps
	return nil
}
