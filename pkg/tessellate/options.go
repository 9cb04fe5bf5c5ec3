package tessellate

import (
	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/kernel/sdfx"
)

// DefaultMinNodeDistanceFactor is the default welding tolerance as a
// fraction of the grid spacing.
const DefaultMinNodeDistanceFactor = 0.05

// Options configures mesh extraction and graph execution.
type Options struct {
	Kernel                kernel.Kernel
	Threads               int
	MinNodeDistanceFactor float64
	Corners               [][3]float64
	OnlyActive            bool
	Progress              func(n Step)
}

// Option mutates Options.
type Option func(*Options)

// WithKernel selects the kernel used for 3D marching cubes and for the
// solids of geometry nodes. The default is the sdfx kernel.
func WithKernel(k kernel.Kernel) Option {
	return func(o *Options) { o.Kernel = k }
}

// WithThreads sets the worker count handed to every solver. 0 selects
// GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithMinNodeDistanceFactor merges surface vertices closer than factor
// times the grid spacing. 0 disables welding.
func WithMinNodeDistanceFactor(factor float64) Option {
	return func(o *Options) { o.MinNodeDistanceFactor = factor }
}

// WithSharpCorners snaps surface vertices within one grid spacing of any of
// corners onto it. Marching cells round off convex corners of boxes; the
// corners of the rasterized solids restore them.
func WithSharpCorners(corners ...[3]float64) Option {
	return func(o *Options) { o.Corners = append(o.Corners, corners...) }
}

// WithOnlyActive restricts ToMesh to points with |value| <= 0.5.
func WithOnlyActive(b bool) Option {
	return func(o *Options) { o.OnlyActive = b }
}

// WithProgress is called after every executed graph node.
func WithProgress(fn func(Step)) Option {
	return func(o *Options) { o.Progress = fn }
}

func buildOptions(opts []Option) Options {
	o := Options{MinNodeDistanceFactor: DefaultMinNodeDistanceFactor}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Kernel == nil {
		o.Kernel = sdfx.New()
	}
	return o
}
