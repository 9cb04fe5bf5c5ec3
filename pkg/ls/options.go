package ls

import "github.com/chazu/narrowband/pkg/parallel"

// Options configures the band and boolean operations of this package.
type Options struct {
	Threads          int
	RemoveStrayZeros bool
	SkipPrune        bool
}

// Option mutates Options.
type Option func(*Options)

// WithThreads sets the worker count. 0 selects GOMAXPROCS.
func WithThreads(n int) Option {
	return func(o *Options) { o.Threads = n }
}

// WithStrayZeroRemoval makes Prune replace exact zeros that do not separate
// opposite signs along any axis.
func WithStrayZeroRemoval() Option {
	return func(o *Options) { o.RemoveStrayZeros = true }
}

// WithoutPrune leaves the result of a boolean operation unpruned.
func WithoutPrune() Option {
	return func(o *Options) { o.SkipPrune = true }
}

func buildOptions(opts []Option) Options {
	o := Options{Threads: parallel.DefaultWorkers()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
