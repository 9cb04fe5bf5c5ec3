package advect

import (
	"errors"
	"fmt"

	"github.com/chazu/narrowband/pkg/ls"
)

var (
	ErrNoVelocityField    = errors.New("advect: no velocity field set")
	ErrStepAborted        = errors.New("advect: time step aborted by velocity callback")
	ErrUnstable           = errors.New("advect: time integration is unstable")
	ErrNoDissipationAlpha = errors.New("advect: velocity field does not provide DissipationAlpha")
	ErrUnknownScheme      = errors.New("advect: unknown scheme")
)

// SpatialScheme selects the discretization of the Hamiltonian.
type SpatialScheme int

const (
	EngquistOsher1st SpatialScheme = iota
	EngquistOsher2nd
	LaxFriedrichs1st
	LaxFriedrichs2nd
	LocalLaxFriedrichsAnalytical1st
	LocalLocalLaxFriedrichs1st
	LocalLocalLaxFriedrichs2nd
	LocalLaxFriedrichs1st
	LocalLaxFriedrichs2nd
	StencilLocalLaxFriedrichs1st
	WENO5
)

var spatialNames = map[SpatialScheme]string{
	EngquistOsher1st:                "engquist-osher-1st",
	EngquistOsher2nd:                "engquist-osher-2nd",
	LaxFriedrichs1st:                "lax-friedrichs-1st",
	LaxFriedrichs2nd:                "lax-friedrichs-2nd",
	LocalLaxFriedrichsAnalytical1st: "local-lax-friedrichs-analytical-1st",
	LocalLocalLaxFriedrichs1st:      "local-local-lax-friedrichs-1st",
	LocalLocalLaxFriedrichs2nd:      "local-local-lax-friedrichs-2nd",
	LocalLaxFriedrichs1st:           "local-lax-friedrichs-1st",
	LocalLaxFriedrichs2nd:           "local-lax-friedrichs-2nd",
	StencilLocalLaxFriedrichs1st:    "stencil-local-lax-friedrichs-1st",
	WENO5:                           "weno5",
}

func (s SpatialScheme) String() string {
	if n, ok := spatialNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SpatialScheme(%d)", int(s))
}

// ParseSpatialScheme returns the scheme with the given String name.
func ParseSpatialScheme(name string) (SpatialScheme, error) {
	for s, n := range spatialNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// order returns the finite difference order of the upwind stencils.
func (s SpatialScheme) order() int {
	switch s {
	case EngquistOsher2nd, LaxFriedrichs2nd, LocalLocalLaxFriedrichs2nd, LocalLaxFriedrichs2nd:
		return 2
	}
	return 1
}

// bandWidth is the band width the scheme needs for its stencils.
func (s SpatialScheme) bandWidth() int {
	k := s.order()
	switch s {
	case LocalLaxFriedrichsAnalytical1st, LocalLaxFriedrichs1st, LocalLaxFriedrichs2nd:
		return 2*(k+2) + 1
	case StencilLocalLaxFriedrichs1st:
		return 2*(k+1) + 4
	case WENO5:
		return 7
	}
	return 2*k + 1
}

// TemporalScheme selects the time integration.
type TemporalScheme int

const (
	ForwardEuler TemporalScheme = iota
	RungeKutta2
	RungeKutta3
)

func (t TemporalScheme) String() string {
	switch t {
	case ForwardEuler:
		return "forward-euler"
	case RungeKutta2:
		return "rk2"
	case RungeKutta3:
		return "rk3"
	default:
		return fmt.Sprintf("TemporalScheme(%d)", int(t))
	}
}

// ParseTemporalScheme returns the scheme with the given String name.
func ParseTemporalScheme(name string) (TemporalScheme, error) {
	for _, t := range []TemporalScheme{ForwardEuler, RungeKutta2, RungeKutta3} {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
}

// VelocityUpdateCallback sees the rates gathered for one stage before the
// time step is fixed. rates[i] belongs to the i-th stored point of top and is
// the rate of the topmost material in grid units per time. The callback may
// overwrite entries. Returning false aborts the step.
type VelocityUpdateCallback func(top *ls.Domain, rates []float64) bool

// Options configures an Advector.
type Options struct {
	SpatialScheme     SpatialScheme
	TemporalScheme    TemporalScheme
	TimeStepRatio     float64
	DissipationAlpha  float64
	AdvectionTime     float64
	SingleStep        bool
	IgnoreVoids       bool
	CalculateNormals  bool
	SaveVelocities    bool
	UpdatePointData   bool
	CheckDissipation  bool
	AdaptiveTimeSteps bool
	AdaptiveSubSteps  int
	MaxIterations     int
	Callback          VelocityUpdateCallback
	Threads           int
	MaterialMap       []int
}

// Option mutates Options.
type Option func(*Options)

func WithSpatialScheme(s SpatialScheme) Option {
	return func(o *Options) { o.SpatialScheme = s }
}

func WithTemporalScheme(t TemporalScheme) Option {
	return func(o *Options) { o.TemporalScheme = t }
}

// WithTimeStepRatio sets the CFL number: the largest fraction of a grid cell
// any point may move in one step. Values of 0.5 and above are unstable.
func WithTimeStepRatio(r float64) Option {
	return func(o *Options) { o.TimeStepRatio = r }
}

// WithDissipationAlpha scales the dissipation of the Lax-Friedrichs schemes.
func WithDissipationAlpha(a float64) Option {
	return func(o *Options) { o.DissipationAlpha = a }
}

// WithAdvectionTime sets the time Apply advances. 0 performs one step of the
// largest stable size.
func WithAdvectionTime(t float64) Option {
	return func(o *Options) { o.AdvectionTime = t }
}

func WithSingleStep(b bool) Option {
	return func(o *Options) { o.SingleStep = b }
}

// WithIgnoreVoids gives zero velocity to points of enclosed voids.
func WithIgnoreVoids(b bool) Option {
	return func(o *Options) { o.IgnoreVoids = b }
}

func WithCalculateNormals(b bool) Option {
	return func(o *Options) { o.CalculateNormals = b }
}

// WithSaveVelocities stores the applied rates as "AdvectionVelocities".
func WithSaveVelocities(b bool) Option {
	return func(o *Options) { o.SaveVelocities = b }
}

// WithUpdatePointData controls whether point data follows the rebuilt band.
// When false all point data is dropped after each step.
func WithUpdatePointData(b bool) Option {
	return func(o *Options) { o.UpdatePointData = b }
}

func WithCheckDissipation(b bool) Option {
	return func(o *Options) { o.CheckDissipation = b }
}

// WithAdaptiveTimeStepping limits the part of a step spent past a material
// transition to 1/subSteps of the CFL number. subSteps <= 0 selects 20.
func WithAdaptiveTimeStepping(enable bool, subSteps int) Option {
	return func(o *Options) {
		o.AdaptiveTimeSteps = enable
		if subSteps > 0 {
			o.AdaptiveSubSteps = subSteps
		}
	}
}

// WithMaxIterations caps the steps of one Apply. 0 means no cap.
func WithMaxIterations(n int) Option {
	return func(o *Options) { o.MaxIterations = n }
}

func WithVelocityUpdateCallback(cb VelocityUpdateCallback) Option {
	return func(o *Options) { o.Callback = cb }
}

// WithThreads sets the worker count. 0 selects GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithMaterialMap maps layer positions to material ids. Layers beyond the
// map use their position.
func WithMaterialMap(m []int) Option {
	return func(o *Options) { o.MaterialMap = m }
}

func defaultOptions() Options {
	return Options{
		TimeStepRatio:    0.4999,
		DissipationAlpha: 1,
		CalculateNormals: true,
		UpdatePointData:  true,
		CheckDissipation: true,
		AdaptiveSubSteps: 20,
	}
}
