// Package tessellate executes process graphs and turns level sets into
// meshes: line meshes of 2D interfaces by marching squares, triangle meshes
// of 3D interfaces by the kernel's marching cubes, and point meshes carrying
// the stored values and point data.
package tessellate

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/chazu/narrowband/pkg/advect"
	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/geomadvect"
	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/graph"
	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/voids"
)

// Step describes a node that finished executing.
type Step struct {
	Index int
	Total int
	Node  *graph.Node
}

// Result holds the meshes of the mesh nodes in execution order and the
// final state of every domain.
type Result struct {
	Meshes  []*kernel.Mesh
	Domains map[string]*ls.Domain
}

// runner executes one process graph.
type runner struct {
	ctx     context.Context
	opts    Options
	threads int
	domains map[string]*ls.Domain
	meshes  []*kernel.Mesh
}

// Run validates g and executes its nodes in order. The graph is not
// modified. ctx is checked between nodes and between advection steps.
func Run(ctx context.Context, g *graph.ProcessGraph, opts ...Option) (*Result, error) {
	if g == nil {
		return &Result{Domains: map[string]*ls.Domain{}}, nil
	}
	if res := graph.ValidateAll(g); !res.OK() {
		errs := lo.Map(res.Errors, func(e graph.ValidationError, _ int) error { return e })
		return nil, fmt.Errorf("tessellate: invalid graph: %w", errors.Join(errs...))
	}

	r := &runner{
		ctx:     ctx,
		opts:    buildOptions(opts),
		domains: make(map[string]*ls.Domain),
	}
	r.threads = r.opts.Threads
	if r.threads == 0 {
		r.threads = g.Threads
	}

	steps := g.Steps()
	for i, n := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.exec(n); err != nil {
			return nil, fmt.Errorf("tessellate: %s node %s: %w", n.Kind, n.ID.Short(), err)
		}
		if d := r.domains[n.Data.Target()]; d != nil {
			ls.Logger().Debug("node executed", "kind", n.Kind.String(), "domain", n.Data.Target(), "points", d.NumPoints())
		}
		if r.opts.Progress != nil {
			r.opts.Progress(Step{Index: i, Total: len(steps), Node: n})
		}
	}
	return &Result{Meshes: r.meshes, Domains: r.domains}, nil
}

func (r *runner) exec(n *graph.Node) error {
	switch d := n.Data.(type) {
	case graph.DomainData:
		grid, err := ls.NewGrid(d.Dim, d.Spacing, d.Bounds, d.BCs)
		if err != nil {
			return err
		}
		r.domains[d.Name] = ls.New(grid)
		return nil

	case graph.CopyData:
		r.domains[d.Name] = r.domains[d.Source].Clone()
		return nil

	case graph.GeometryData:
		return geometry.MakeGeometry(r.domains[d.Domain], d.Shape,
			geometry.WithKernel(r.opts.Kernel), geometry.WithThreads(r.threads))

	case graph.BooleanData:
		var operand *ls.Domain
		if d.Op != ls.Invert {
			operand = r.domains[d.Operand]
		}
		return ls.Boolean(r.domains[d.Domain], operand, d.Op, ls.WithThreads(r.threads))

	case graph.BandData:
		dom := r.domains[d.Domain]
		switch d.Op {
		case graph.BandExpand:
			return ls.Expand(dom, d.Width, ls.WithThreads(r.threads))
		case graph.BandReduce:
			ls.Reduce(dom, d.Width)
			return nil
		default:
			return ls.Prune(dom, ls.WithThreads(r.threads))
		}

	case graph.AdvectData:
		return r.advect(d)

	case graph.GeometricAdvectData:
		opts := []geomadvect.Option{geomadvect.WithThreads(r.threads)}
		if d.Mask != "" {
			opts = append(opts, geomadvect.WithMask(r.domains[d.Mask]))
		}
		return geomadvect.Advect(r.domains[d.Domain], d.Dist, opts...)

	case graph.VoidsData:
		dom := r.domains[d.Domain]
		if d.Remove {
			return voids.RemoveStrayPoints(dom, voids.WithTopSurface(d.TopSurface))
		}
		res, err := voids.MarkVoidPoints(dom, voids.WithTopSurface(d.TopSurface))
		if err != nil {
			return err
		}
		ls.Logger().Info("voids marked", "domain", d.Domain,
			"components", res.Components, "void_points", res.NumVoidPoints())
		return nil

	case graph.FeaturesData:
		dom := r.domains[d.Domain]
		switch d.Op {
		case graph.FeatureNormals:
			return features.CalculateNormals(dom, features.WithThreads(r.threads))
		case graph.FeatureCurvatures:
			return features.CalculateCurvatures(dom, d.Curvature, features.WithThreads(r.threads))
		default:
			return features.DetectFeatures(dom, d.Method, d.Limit, features.WithThreads(r.threads))
		}

	case graph.MeshData:
		return r.mesh(d)
	}
	return fmt.Errorf("unsupported node data %T", n.Data)
}

func (r *runner) advect(d graph.AdvectData) error {
	opts := []advect.Option{
		advect.WithSpatialScheme(d.Scheme),
		advect.WithTemporalScheme(d.Temporal),
		advect.WithIgnoreVoids(d.IgnoreVoids),
		advect.WithThreads(r.threads),
	}
	if d.TimeStepRatio > 0 {
		opts = append(opts, advect.WithTimeStepRatio(d.TimeStepRatio))
	}
	a := advect.New(d.Velocity, opts...)
	for _, name := range d.Domains {
		if err := a.InsertNextLevelSet(r.domains[name]); err != nil {
			return err
		}
	}

	if d.Time == 0 {
		if err := a.Apply(); err != nil {
			return err
		}
	} else {
		progress := func(elapsed float64, steps int) {
			ls.Logger().Debug("advection step", "domain", d.Target(), "time", elapsed, "steps", steps)
		}
		if err := advect.AdvectToTime(r.ctx, a, d.Time, progress); err != nil {
			return err
		}
	}
	ls.Logger().Info("advected", "domain", d.Target(), "time", a.AdvectedTime(), "steps", a.NumberOfTimeSteps())
	return nil
}

func (r *runner) mesh(d graph.MeshData) error {
	dom := r.domains[d.Domain]
	var (
		m   *kernel.Mesh
		err error
	)
	opts := []Option{
		WithKernel(r.opts.Kernel),
		WithThreads(r.threads),
		WithMinNodeDistanceFactor(r.opts.MinNodeDistanceFactor),
		WithOnlyActive(r.opts.OnlyActive),
		WithSharpCorners(r.opts.Corners...),
	}
	if d.Surface {
		m, err = ToSurfaceMesh(dom, opts...)
	} else {
		m, err = ToMesh(dom, opts...)
	}
	if err != nil {
		return err
	}
	m.PartName = d.Domain
	r.meshes = append(r.meshes, m)
	return nil
}
