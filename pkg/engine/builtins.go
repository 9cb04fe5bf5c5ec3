package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/narrowband/pkg/advect"
	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/geomadvect"
	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/graph"
	"github.com/chazu/narrowband/pkg/kernel"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/voids"
)

// builder collects the nodes created while one script runs.
type builder struct {
	g      *graph.ProcessGraph
	k      kernel.Kernel
	counts map[graph.NodeKind]int
}

func newBuilder(k kernel.Kernel) *builder {
	return &builder{g: graph.New(), k: k, counts: make(map[graph.NodeKind]int)}
}

// add appends a node. IDs are derived from the kind and the number of
// earlier nodes of that kind, so re-running a script reproduces them.
func (b *builder) add(kind graph.NodeKind, data graph.NodeData) {
	path := fmt.Sprintf("%s/%d", kind, b.counts[kind])
	if kind == graph.NodeDomain || kind == graph.NodeCopy {
		path = "domain/" + data.Target()
	}
	b.counts[kind]++
	b.g.AddNode(&graph.Node{ID: graph.NewNodeID(path), Kind: kind, Data: data})
}

// domainSpec returns the declaration of name, following copies back to
// the original domain.
func (b *builder) domainSpec(name string) (graph.DomainData, error) {
	for hops := 0; hops <= b.g.NodeCount(); hops++ {
		n := b.g.Lookup(name)
		if n == nil {
			return graph.DomainData{}, fmt.Errorf("undefined domain %q", name)
		}
		switch d := n.Data.(type) {
		case graph.DomainData:
			return d, nil
		case graph.CopyData:
			name = d.Source
		default:
			return graph.DomainData{}, fmt.Errorf("domain %q has no declaration", name)
		}
	}
	return graph.DomainData{}, fmt.Errorf("domain %q is a copy of itself", name)
}

// builtin is the body of a DSL function after keyword parsing.
type builtin func(pa kwArgs) (zygo.Sexp, error)

// define registers fn under the kebab-case name used in scripts. zygomys
// does not allow hyphens in identifiers, so the function is installed
// under the underscore form produced by preprocessSource. Errors are
// prefixed with the script name of the builtin.
func define(env *zygo.Zlisp, name string, fn builtin) {
	env.AddFunction(strings.ReplaceAll(name, "-", "_"), func(env *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
		res, err := fn(parseArgs(args))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
		}
		return res, nil
	})
}

// required extracts positional argument i with conv.
func required[T any](pa kwArgs, i int, what string, conv func(zygo.Sexp) (T, error)) (T, error) {
	var zero T
	s := pa.arg(i)
	if s == nil {
		return zero, fmt.Errorf("missing %s", what)
	}
	v, err := conv(s)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

// optional sets *dst from keyword kw when present.
func optional[T any](pa kwArgs, kw string, dst *T, conv func(zygo.Sexp) (T, error)) error {
	s, ok := pa.kw[kw]
	if !ok {
		return nil
	}
	v, err := conv(s)
	if err != nil {
		return fmt.Errorf("%s: %w", kw, err)
	}
	*dst = v
	return nil
}

// registerBuiltins installs all narrowband DSL builtins into a zygomys
// environment. The builtins append operations to b.g during evaluation;
// nothing is computed until the graph is executed.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {
	registerDomainBuiltins(env, b)
	registerShapeBuiltins(env, b)
	registerBandBuiltins(env, b)
	registerAdvectBuiltins(env, b)
	registerAnalysisBuiltins(env, b)
}

func registerDomainBuiltins(env *zygo.Zlisp, b *builder) {
	// -----------------------------------------------------------------------
	// (domain "name" :bounds (list -5 5 -5 5) :bc (list :reflective :infinite)
	//         :spacing 0.2 :dim 2)
	// -----------------------------------------------------------------------
	define(env, "domain", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "name", toString)
		if err != nil {
			return nil, err
		}
		d := graph.DomainData{Name: name, Spacing: 1}
		if err := optional(pa, "spacing", &d.Spacing, toFloat64); err != nil {
			return nil, err
		}
		if err := optional(pa, "bounds", &d.Bounds, toFloats); err != nil {
			return nil, err
		}
		if v, ok := pa.kw["bc"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return nil, fmt.Errorf("bc: %w", err)
			}
			for i, item := range items {
				bc, err := toBoundaryCondition(item)
				if err != nil {
					return nil, fmt.Errorf("bc %d: %w", i, err)
				}
				d.BCs = append(d.BCs, bc)
			}
		}
		switch {
		case pa.kw["dim"] != nil:
			if err := optional(pa, "dim", &d.Dim, toInt); err != nil {
				return nil, err
			}
		case len(d.Bounds) > 0:
			d.Dim = len(d.Bounds) / 2
		case len(d.BCs) > 0:
			d.Dim = len(d.BCs)
		default:
			d.Dim = 3
		}
		b.add(graph.NodeDomain, d)
		return domainRef(name), nil
	})

	// -----------------------------------------------------------------------
	// (make-geometry "name" (sphere :radius 3))
	// -----------------------------------------------------------------------
	define(env, "make-geometry", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		shape, err := required(pa, 1, "shape", toShape)
		if err != nil {
			return nil, err
		}
		b.add(graph.NodeGeometry, graph.GeometryData{Domain: name, Shape: shape})
		return domainRef(name), nil
	})

	// -----------------------------------------------------------------------
	// (copy-domain "new" "source")
	// -----------------------------------------------------------------------
	define(env, "copy-domain", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "name", toString)
		if err != nil {
			return nil, err
		}
		src, err := required(pa, 1, "source", toString)
		if err != nil {
			return nil, err
		}
		b.add(graph.NodeCopy, graph.CopyData{Name: name, Source: src})
		return domainRef(name), nil
	})

	// -----------------------------------------------------------------------
	// (boolean "a" "b" :relative-complement)
	// -----------------------------------------------------------------------
	define(env, "boolean", func(pa kwArgs) (zygo.Sexp, error) {
		a, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		other, err := required(pa, 1, "operand", toString)
		if err != nil {
			return nil, err
		}
		op := ls.Union
		if s := pa.arg(2); s != nil {
			if op, err = toBooleanOp(s); err != nil {
				return nil, err
			}
		}
		// :union and friends given as trailing keywords end up as flags.
		for kw := range pa.kw {
			if op, err = toBooleanOp(&zygo.SexpStr{S: kw}); err != nil {
				return nil, err
			}
		}
		b.add(graph.NodeBoolean, graph.BooleanData{Domain: a, Operand: other, Op: op})
		return domainRef(a), nil
	})

	// -----------------------------------------------------------------------
	// (invert "a")
	// -----------------------------------------------------------------------
	define(env, "invert", func(pa kwArgs) (zygo.Sexp, error) {
		a, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		b.add(graph.NodeBoolean, graph.BooleanData{Domain: a, Op: ls.Invert})
		return domainRef(a), nil
	})

	// -----------------------------------------------------------------------
	// (threads 4)
	// -----------------------------------------------------------------------
	define(env, "threads", func(pa kwArgs) (zygo.Sexp, error) {
		n, err := required(pa, 0, "count", toInt)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("count must not be negative, got %d", n)
		}
		b.g.Threads = n
		return &zygo.SexpInt{Val: int64(n)}, nil
	})
}

func registerShapeBuiltins(env *zygo.Zlisp, b *builder) {
	// (sphere :origin (list 0 0 0) :radius 3)
	define(env, "sphere", func(pa kwArgs) (zygo.Sexp, error) {
		var s geometry.Sphere
		if err := optional(pa, "origin", &s.Origin, toVec3); err != nil {
			return nil, err
		}
		if err := optional(pa, "radius", &s.Radius, toFloat64); err != nil {
			return nil, err
		}
		return &sexpShape{prim: s, desc: fmt.Sprintf("sphere %v %g", s.Origin, s.Radius)}, nil
	})

	// (plane :origin (list 0 0 0) :normal (list 0 0 1))
	define(env, "plane", func(pa kwArgs) (zygo.Sexp, error) {
		var p geometry.Plane
		if err := optional(pa, "origin", &p.Origin, toVec3); err != nil {
			return nil, err
		}
		if err := optional(pa, "normal", &p.Normal, toVec3); err != nil {
			return nil, err
		}
		return &sexpShape{prim: p, desc: fmt.Sprintf("plane %v %v", p.Origin, p.Normal)}, nil
	})

	// (box :min (list -1 -1 -1) :max (list 1 1 1))
	define(env, "box", func(pa kwArgs) (zygo.Sexp, error) {
		var bx geometry.Box
		if err := optional(pa, "min", &bx.Min, toVec3); err != nil {
			return nil, err
		}
		if err := optional(pa, "max", &bx.Max, toVec3); err != nil {
			return nil, err
		}
		return &sexpShape{prim: bx, desc: fmt.Sprintf("box %v %v", bx.Min, bx.Max)}, nil
	})

	// (cylinder :origin (list 0 0 0) :axis (list 0 0 1) :height 5 :radius 1
	//           :top-radius 0.5)
	define(env, "cylinder", func(pa kwArgs) (zygo.Sexp, error) {
		c := geometry.Cylinder{Axis: [3]float64{0, 0, 1}}
		if err := optional(pa, "origin", &c.Origin, toVec3); err != nil {
			return nil, err
		}
		if err := optional(pa, "axis", &c.Axis, toVec3); err != nil {
			return nil, err
		}
		if err := optional(pa, "height", &c.Height, toFloat64); err != nil {
			return nil, err
		}
		if err := optional(pa, "radius", &c.Radius, toFloat64); err != nil {
			return nil, err
		}
		if err := optional(pa, "top-radius", &c.TopRadius, toFloat64); err != nil {
			return nil, err
		}
		return &sexpShape{prim: c, desc: fmt.Sprintf("cylinder %v %v", c.Origin, c.Axis)}, nil
	})
}

func registerBandBuiltins(env *zygo.Zlisp, b *builder) {
	band := func(op graph.BandOp) builtin {
		return func(pa kwArgs) (zygo.Sexp, error) {
			name, err := required(pa, 0, "domain", toString)
			if err != nil {
				return nil, err
			}
			d := graph.BandData{Domain: name, Op: op}
			if op != graph.BandPrune {
				if d.Width, err = required(pa, 1, "width", toInt); err != nil {
					return nil, err
				}
			}
			b.add(graph.NodeBand, d)
			return domainRef(name), nil
		}
	}
	// (expand "a" 5), (reduce "a" 3), (prune "a")
	define(env, "expand", band(graph.BandExpand))
	define(env, "reduce", band(graph.BandReduce))
	define(env, "prune", band(graph.BandPrune))
}

func registerAdvectBuiltins(env *zygo.Zlisp, b *builder) {
	// (constant-velocity 1.0)
	define(env, "constant-velocity", func(pa kwArgs) (zygo.Sexp, error) {
		v, err := required(pa, 0, "speed", toFloat64)
		if err != nil {
			return nil, err
		}
		return &sexpVelocity{v: advect.ConstantVelocity(v), desc: fmt.Sprintf("constant-velocity %g", v)}, nil
	})

	// (material-rates (list -1 0.1) :default 0)
	define(env, "material-rates", func(pa kwArgs) (zygo.Sexp, error) {
		rates, err := required(pa, 0, "rates", toFloats)
		if err != nil {
			return nil, err
		}
		m := advect.MaterialRates{Rates: rates}
		if err := optional(pa, "default", &m.Default, toFloat64); err != nil {
			return nil, err
		}
		return &sexpVelocity{v: m, desc: fmt.Sprintf("material-rates %v", rates)}, nil
	})

	// (directional-velocity (list 0 -1 0) :scalar 0.1)
	define(env, "directional-velocity", func(pa kwArgs) (zygo.Sexp, error) {
		dir, err := required(pa, 0, "direction", toVec3)
		if err != nil {
			return nil, err
		}
		v := advect.DirectionalVelocity{Direction: dir}
		if err := optional(pa, "scalar", &v.Scalar, toFloat64); err != nil {
			return nil, err
		}
		return &sexpVelocity{v: v, desc: fmt.Sprintf("directional-velocity %v", dir)}, nil
	})

	// -----------------------------------------------------------------------
	// (advect (list "substrate" "top") :velocity v :time 5
	//         :scheme :engquist-osher-1st :temporal :rk3 :ignore-voids true)
	// -----------------------------------------------------------------------
	define(env, "advect", func(pa kwArgs) (zygo.Sexp, error) {
		names, err := required(pa, 0, "domains", toNames)
		if err != nil {
			return nil, err
		}
		d := graph.AdvectData{Domains: names}
		if err := optional(pa, "velocity", &d.Velocity, toVelocity); err != nil {
			return nil, err
		}
		if err := optional(pa, "time", &d.Time, toFloat64); err != nil {
			return nil, err
		}
		if err := optional(pa, "time-step-ratio", &d.TimeStepRatio, toFloat64); err != nil {
			return nil, err
		}
		if err := optional(pa, "ignore-voids", &d.IgnoreVoids, toBool); err != nil {
			return nil, err
		}
		if v, ok := pa.kw["scheme"]; ok {
			name, err := toKeywordString(v)
			if err != nil {
				return nil, fmt.Errorf("scheme: %w", err)
			}
			if d.Scheme, err = advect.ParseSpatialScheme(name); err != nil {
				return nil, err
			}
		}
		if v, ok := pa.kw["temporal"]; ok {
			name, err := toKeywordString(v)
			if err != nil {
				return nil, fmt.Errorf("temporal: %w", err)
			}
			if d.Temporal, err = advect.ParseTemporalScheme(name); err != nil {
				return nil, err
			}
		}
		b.add(graph.NodeAdvect, d)
		return domainRef(d.Target()), nil
	})

	// (sphere-dist 1.0), negative radii etch
	define(env, "sphere-dist", func(pa kwArgs) (zygo.Sexp, error) {
		r, err := required(pa, 0, "radius", toFloat64)
		if err != nil {
			return nil, err
		}
		return &sexpDist{
			desc: fmt.Sprintf("sphere-dist %g", r),
			build: func(dim int, delta float64) (geomadvect.Distribution, error) {
				return geomadvect.NewSphere(dim, r, delta), nil
			},
		}, nil
	})

	// (box-dist (list 1 1 2)), negative half axes etch
	define(env, "box-dist", func(pa kwArgs) (zygo.Sexp, error) {
		h, err := required(pa, 0, "half axes", toVec3)
		if err != nil {
			return nil, err
		}
		return &sexpDist{
			desc: fmt.Sprintf("box-dist %v", h),
			build: func(dim int, delta float64) (geomadvect.Distribution, error) {
				return geomadvect.NewBox(dim, h, delta), nil
			},
		}, nil
	})

	// (shape-dist (box :min ... :max ...) :etch true)
	define(env, "shape-dist", func(pa kwArgs) (zygo.Sexp, error) {
		shape, err := required(pa, 0, "shape", toShape)
		if err != nil {
			return nil, err
		}
		var etch bool
		if err := optional(pa, "etch", &etch, toBool); err != nil {
			return nil, err
		}
		return &sexpDist{
			desc: fmt.Sprintf("shape-dist etch=%t", etch),
			build: func(dim int, delta float64) (geomadvect.Distribution, error) {
				solid, err := shape.Solid(b.k, dim)
				if err != nil {
					return nil, err
				}
				return geomadvect.NewCustom(dim, solid, delta, etch), nil
			},
		}, nil
	})

	// (geometric-advect "a" (sphere-dist 1.0) :mask "m")
	define(env, "geometric-advect", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		sd, err := required(pa, 1, "distribution", toDist)
		if err != nil {
			return nil, err
		}
		spec, err := b.domainSpec(name)
		if err != nil {
			return nil, err
		}
		dist, err := sd.build(spec.Dim, spec.Spacing)
		if err != nil {
			return nil, err
		}
		d := graph.GeometricAdvectData{Domain: name, Dist: dist}
		if err := optional(pa, "mask", &d.Mask, toString); err != nil {
			return nil, err
		}
		b.add(graph.NodeGeometricAdvect, d)
		return domainRef(name), nil
	})
}

func toTopSurface(s zygo.Sexp) (voids.TopSurface, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, err
	}
	for _, t := range []voids.TopSurface{voids.LexHighest, voids.LexLowest, voids.Largest, voids.Smallest} {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid top surface %q", name)
}

func toCurvatureType(s zygo.Sexp) (features.CurvatureType, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, err
	}
	switch name {
	case "mean":
		return features.MeanCurvature, nil
	case "gaussian":
		return features.GaussianCurvature, nil
	case "both":
		return features.MeanAndGaussianCurvature, nil
	}
	return 0, fmt.Errorf("invalid curvature type %q, expected mean, gaussian or both", name)
}

func registerAnalysisBuiltins(env *zygo.Zlisp, b *builder) {
	voidsOp := func(remove bool) builtin {
		return func(pa kwArgs) (zygo.Sexp, error) {
			name, err := required(pa, 0, "domain", toString)
			if err != nil {
				return nil, err
			}
			d := graph.VoidsData{Domain: name, Remove: remove}
			if err := optional(pa, "top", &d.TopSurface, toTopSurface); err != nil {
				return nil, err
			}
			b.add(graph.NodeVoids, d)
			return domainRef(name), nil
		}
	}
	// (mark-voids "a" :top :largest), (remove-stray-points "a")
	define(env, "mark-voids", voidsOp(false))
	define(env, "remove-stray-points", voidsOp(true))

	// (normals "a")
	define(env, "normals", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		b.add(graph.NodeFeatures, graph.FeaturesData{Domain: name, Op: graph.FeatureNormals})
		return domainRef(name), nil
	})

	// (curvatures "a" :type :gaussian)
	define(env, "curvatures", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		d := graph.FeaturesData{Domain: name, Op: graph.FeatureCurvatures}
		if err := optional(pa, "type", &d.Curvature, toCurvatureType); err != nil {
			return nil, err
		}
		b.add(graph.NodeFeatures, d)
		return domainRef(name), nil
	})

	// (features "a" :curvature 0.1) or (features "a" :normals 0.5)
	define(env, "features", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		d := graph.FeaturesData{Domain: name, Op: graph.FeatureDetect}
		_, byCurvature := pa.kw["curvature"]
		_, byNormals := pa.kw["normals"]
		switch {
		case byCurvature && byNormals:
			return nil, fmt.Errorf("give either :curvature or :normals")
		case byNormals:
			d.Method = features.ByNormals
			err = optional(pa, "normals", &d.Limit, toFloat64)
		case byCurvature:
			d.Method = features.ByCurvature
			err = optional(pa, "curvature", &d.Limit, toFloat64)
		default:
			return nil, fmt.Errorf("missing :curvature or :normals limit")
		}
		if err != nil {
			return nil, err
		}
		b.add(graph.NodeFeatures, d)
		return domainRef(name), nil
	})

	// (mesh "a") or (mesh "a" :points true)
	define(env, "mesh", func(pa kwArgs) (zygo.Sexp, error) {
		name, err := required(pa, 0, "domain", toString)
		if err != nil {
			return nil, err
		}
		var points bool
		if err := optional(pa, "points", &points, toBool); err != nil {
			return nil, err
		}
		b.add(graph.NodeMesh, graph.MeshData{Domain: name, Surface: !points})
		return domainRef(name), nil
	})
}
