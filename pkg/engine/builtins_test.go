package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/narrowband/pkg/advect"
	"github.com/chazu/narrowband/pkg/features"
	"github.com/chazu/narrowband/pkg/geomadvect"
	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/graph"
	"github.com/chazu/narrowband/pkg/ls"
	"github.com/chazu/narrowband/pkg/voids"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(domain "a" :spacing 0.5)`,
			expect: `(domain "a" "__kw_spacing" 0.5)`,
		},
		{
			name:   "multiple keywords",
			input:  `(sphere :radius 3 :origin o)`,
			expect: `(sphere "__kw_radius" 3 "__kw_origin" o)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(make-geometry "a" s)`,
			expect: `(make_geometry "a" s)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative number preserved",
			input:  `(list -5 5)`,
			expect: `(list -5 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "scheme keyword with digits",
			input:  `:engquist-osher-1st`,
			expect: `"__kw_engquist-osher-1st"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// evaluate runs source and fails the test on any error.
func evaluate(t *testing.T, source string) *graph.ProcessGraph {
	t.Helper()
	g, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	return g
}

// evalError runs source and returns the joined eval error messages.
func evalError(t *testing.T, source string) string {
	t.Helper()
	g, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if g != nil {
		t.Fatal("expected nil graph on error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval errors")
	}
	var msgs []string
	for _, e := range evalErrs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "\n")
}

// ---------------------------------------------------------------------------
// Domain tests
// ---------------------------------------------------------------------------

func TestDomainDeclaration(t *testing.T) {
	g := evaluate(t, `
(domain "wafer" :bounds (list -5 5 -5 5) :bc (list :reflective :infinite) :spacing 0.25)
(mesh "wafer")
`)
	n := g.Lookup("wafer")
	if n == nil {
		t.Fatal("expected domain named 'wafer'")
	}
	if n.Kind != graph.NodeDomain {
		t.Errorf("expected NodeDomain, got %s", n.Kind)
	}
	d, ok := n.Data.(graph.DomainData)
	if !ok {
		t.Fatalf("expected DomainData, got %T", n.Data)
	}
	if d.Dim != 2 {
		t.Errorf("dim = %d, want 2 from bounds", d.Dim)
	}
	if d.Spacing != 0.25 {
		t.Errorf("spacing = %v, want 0.25", d.Spacing)
	}
	if len(d.Bounds) != 4 || d.Bounds[0] != -5 || d.Bounds[3] != 5 {
		t.Errorf("bounds = %v", d.Bounds)
	}
	if len(d.BCs) != 2 || d.BCs[0] != ls.Reflective || d.BCs[1] != ls.Infinite {
		t.Errorf("bcs = %v", d.BCs)
	}
}

func TestDomainDefaults(t *testing.T) {
	g := evaluate(t, `(domain "a") (mesh "a")`)
	d := g.MustLookup("a").Data.(graph.DomainData)
	if d.Dim != 3 || d.Spacing != 1 || d.Bounds != nil || d.BCs != nil {
		t.Errorf("unexpected defaults: %+v", d)
	}
}

func TestVariableReference(t *testing.T) {
	g := evaluate(t, `
(def r 3)
(domain "a" :dim 3 :spacing 0.5)
(make-geometry "a" (sphere :radius r :origin (list 1 2 3)))
(mesh "a")
`)
	steps := g.Steps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(steps))
	}
	gd, ok := steps[1].Data.(graph.GeometryData)
	if !ok {
		t.Fatalf("expected GeometryData, got %T", steps[1].Data)
	}
	s, ok := gd.Shape.(geometry.Sphere)
	if !ok {
		t.Fatalf("expected Sphere, got %T", gd.Shape)
	}
	if s.Radius != 3 {
		t.Errorf("radius = %v, want 3 (from variable)", s.Radius)
	}
	if s.Origin != [3]float64{1, 2, 3} {
		t.Errorf("origin = %v", s.Origin)
	}
}

func TestNestedCalls(t *testing.T) {
	g := evaluate(t, `
(mesh (expand (make-geometry (domain "a" :dim 2) (box :min (list -1 -1) :max (list 1 1))) 4))
`)
	kinds := []graph.NodeKind{graph.NodeDomain, graph.NodeGeometry, graph.NodeBand, graph.NodeMesh}
	steps := g.Steps()
	if len(steps) != len(kinds) {
		t.Fatalf("expected %d nodes, got %d", len(kinds), len(steps))
	}
	for i, k := range kinds {
		if steps[i].Kind != k {
			t.Errorf("step %d kind = %s, want %s", i, steps[i].Kind, k)
		}
		if steps[i].Data.Target() != "a" {
			t.Errorf("step %d target = %q", i, steps[i].Data.Target())
		}
	}
	if bd := steps[2].Data.(graph.BandData); bd.Op != graph.BandExpand || bd.Width != 4 {
		t.Errorf("band = %+v", bd)
	}
	bx := steps[1].Data.(graph.GeometryData).Shape.(geometry.Box)
	if bx.Min != [3]float64{-1, -1, 0} || bx.Max != [3]float64{1, 1, 0} {
		t.Errorf("box = %+v", bx)
	}
}

func TestBooleanOperations(t *testing.T) {
	g := evaluate(t, `
(domain "a" :dim 2)
(domain "b" :dim 2)
(boolean "a" "b")
(boolean "a" "b" :relative-complement)
(invert "b")
(mesh "a")
`)
	var ops []ls.BooleanOp
	for _, n := range g.Steps() {
		if bd, ok := n.Data.(graph.BooleanData); ok {
			ops = append(ops, bd.Op)
		}
	}
	want := []ls.BooleanOp{ls.Union, ls.RelativeComplement, ls.Invert}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, ops[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Advection tests
// ---------------------------------------------------------------------------

func TestFullProcessScript(t *testing.T) {
	g := evaluate(t, `
;; deposit a layer on a substrate
(domain "substrate" :bounds (list -5 5 -5 5) :bc (list :periodic :infinite) :spacing 0.5)
(make-geometry "substrate" (plane :normal (list 0 1)))
(copy-domain "layer" "substrate")
(def v (material-rates (list -1 0.5) :default 0))
(advect (list "substrate" "layer") :velocity v :time 2.5
        :scheme :local-lax-friedrichs-1st :temporal :rk3 :ignore-voids true)
(remove-stray-points "layer" :top :largest)
(mesh "layer")
`)
	var ad graph.AdvectData
	var found bool
	for _, n := range g.Steps() {
		if d, ok := n.Data.(graph.AdvectData); ok {
			ad, found = d, true
		}
	}
	if !found {
		t.Fatal("expected an advect node")
	}
	if len(ad.Domains) != 2 || ad.Target() != "layer" {
		t.Errorf("domains = %v", ad.Domains)
	}
	if ad.Time != 2.5 {
		t.Errorf("time = %v, want 2.5", ad.Time)
	}
	if ad.Scheme != advect.LocalLaxFriedrichs1st {
		t.Errorf("scheme = %s", ad.Scheme)
	}
	if ad.Temporal != advect.RungeKutta3 {
		t.Errorf("temporal = %s", ad.Temporal)
	}
	if !ad.IgnoreVoids {
		t.Error("expected ignore-voids")
	}
	m, ok := ad.Velocity.(advect.MaterialRates)
	if !ok {
		t.Fatalf("velocity = %T", ad.Velocity)
	}
	if len(m.Rates) != 2 || m.Rates[0] != -1 || m.Default != 0 {
		t.Errorf("rates = %+v", m)
	}

	copyNode := g.Lookup("layer")
	if copyNode == nil || copyNode.Kind != graph.NodeCopy {
		t.Fatalf("expected copy node for 'layer', got %v", copyNode)
	}

	var vd graph.VoidsData
	for _, n := range g.Steps() {
		if d, ok := n.Data.(graph.VoidsData); ok {
			vd = d
		}
	}
	if !vd.Remove || vd.TopSurface != voids.Largest {
		t.Errorf("voids = %+v", vd)
	}
}

func TestAdvectSingleDomain(t *testing.T) {
	g := evaluate(t, `
(domain "a" :dim 2 :spacing 0.5)
(advect "a" :velocity (directional-velocity (list 0 -1) :scalar 0.5))
(mesh "a")
`)
	ad := g.Steps()[1].Data.(graph.AdvectData)
	if len(ad.Domains) != 1 || ad.Domains[0] != "a" {
		t.Errorf("domains = %v", ad.Domains)
	}
	if ad.Time != 0 || ad.Scheme != advect.EngquistOsher1st || ad.Temporal != advect.ForwardEuler {
		t.Errorf("unexpected defaults: %+v", ad)
	}
	dv, ok := ad.Velocity.(advect.DirectionalVelocity)
	if !ok || dv.Direction != [3]float64{0, -1, 0} || dv.Scalar != 0.5 {
		t.Errorf("velocity = %#v", ad.Velocity)
	}
}

func TestGeometricAdvectResolvesGrid(t *testing.T) {
	g := evaluate(t, `
(domain "a" :dim 2 :spacing 0.25)
(copy-domain "mask" "a")
(copy-domain "b" "mask")
(geometric-advect "b" (sphere-dist 1.5) :mask "mask")
(geometric-advect "a" (box-dist (list -1 -1)))
(mesh "b")
`)
	var dists []graph.GeometricAdvectData
	for _, n := range g.Steps() {
		if d, ok := n.Data.(graph.GeometricAdvectData); ok {
			dists = append(dists, d)
		}
	}
	if len(dists) != 2 {
		t.Fatalf("expected 2 geometric advect nodes, got %d", len(dists))
	}
	s, ok := dists[0].Dist.(*geomadvect.SphereDistribution)
	if !ok {
		t.Fatalf("dist = %T", dists[0].Dist)
	}
	if s.Radius != 1.5 || s.Delta != 0.25 {
		t.Errorf("sphere = %+v", s)
	}
	if dists[0].Mask != "mask" {
		t.Errorf("mask = %q", dists[0].Mask)
	}
	bx, ok := dists[1].Dist.(*geomadvect.BoxDistribution)
	if !ok {
		t.Fatalf("dist = %T", dists[1].Dist)
	}
	if bx.HalfAxes != [3]float64{-1, -1, 0} || bx.Delta != 0.25 {
		t.Errorf("box = %+v", bx)
	}
}

func TestShapeDistribution(t *testing.T) {
	g := evaluate(t, `
(domain "a" :dim 3 :spacing 0.5)
(geometric-advect "a" (shape-dist (box :min (list -1 -1 -2) :max (list 1 1 0)) :etch true))
(mesh "a")
`)
	d := g.Steps()[1].Data.(graph.GeometricAdvectData)
	c, ok := d.Dist.(*geomadvect.CustomDistribution)
	if !ok {
		t.Fatalf("dist = %T", d.Dist)
	}
	if !c.Etch {
		t.Error("expected etching distribution")
	}
	lo, hi := c.Bounds()
	if math.Abs(lo.Z-2) > 1e-9 || math.Abs(hi.Z) > 1e-9 {
		t.Errorf("etch bounds z = [%v, %v], want [2, 0]", lo.Z, hi.Z)
	}
}

// ---------------------------------------------------------------------------
// Analysis tests
// ---------------------------------------------------------------------------

func TestAnalysisBuiltins(t *testing.T) {
	g := evaluate(t, `
(domain "a" :dim 3)
(mark-voids "a")
(normals "a")
(curvatures "a" :type :both)
(features "a" :normals 0.5)
(features "a" :curvature 0.1)
(mesh "a" :points true)
`)
	steps := g.Steps()
	if vd := steps[1].Data.(graph.VoidsData); vd.Remove || vd.TopSurface != voids.LexHighest {
		t.Errorf("voids = %+v", vd)
	}
	if fd := steps[2].Data.(graph.FeaturesData); fd.Op != graph.FeatureNormals {
		t.Errorf("normals = %+v", fd)
	}
	if fd := steps[3].Data.(graph.FeaturesData); fd.Op != graph.FeatureCurvatures || fd.Curvature != features.MeanAndGaussianCurvature {
		t.Errorf("curvatures = %+v", fd)
	}
	if fd := steps[4].Data.(graph.FeaturesData); fd.Method != features.ByNormals || fd.Limit != 0.5 {
		t.Errorf("features by normals = %+v", fd)
	}
	if fd := steps[5].Data.(graph.FeaturesData); fd.Method != features.ByCurvature || fd.Limit != 0.1 {
		t.Errorf("features by curvature = %+v", fd)
	}
	if md := steps[6].Data.(graph.MeshData); md.Surface {
		t.Error("expected point mesh")
	}
}

func TestThreads(t *testing.T) {
	g := evaluate(t, `(threads 3)`)
	if g.Threads != 3 {
		t.Errorf("threads = %d, want 3", g.Threads)
	}
}

// ---------------------------------------------------------------------------
// Error tests
// ---------------------------------------------------------------------------

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"undefined domain", `(domain "a" :dim 2) (expand "missing" 3)`, `undefined domain "missing"`},
		{"geometric advect without domain", `(geometric-advect "x" (sphere-dist 1))`, `undefined domain "x"`},
		{"unknown scheme", `(domain "a") (advect "a" :velocity (constant-velocity 1) :scheme :upwind)`, "unknown scheme"},
		{"unknown boundary", `(domain "a" :bc (list :open :open))`, "invalid boundary condition"},
		{"missing width", `(domain "a") (expand "a")`, "missing width"},
		{"shape expected", `(domain "a") (make-geometry "a" 3)`, "expected shape"},
		{"no velocity", `(domain "a") (advect "a" :time 1)`, "no velocity"},
		{"bad dimension", `(domain "a" :dim 4)`, "dimension must be 2 or 3"},
		{"feature limit", `(domain "a") (features "a")`, "missing :curvature or :normals"},
		{"duplicate domain", `(domain "a") (domain "a")`, `domain "a" declared 2 times`},
		{"bad operation", `(domain "a") (domain "b") (boolean "a" "b" :xor)`, "invalid operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := evalError(t, tt.source); !strings.Contains(msg, tt.want) {
				t.Errorf("errors %q do not mention %q", msg, tt.want)
			}
		})
	}
}

func TestWarningsDoNotBlock(t *testing.T) {
	res := NewEngine().EvaluateAll(`(domain "a" :dim 2)`)
	if res.Err != nil || len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v %v", res.Err, res.Errors)
	}
	if res.Graph == nil {
		t.Fatal("expected graph")
	}
	if len(res.Warnings) == 0 {
		t.Error("expected warnings for an unused domain without output")
	}
}

func TestDeterministicIDs(t *testing.T) {
	source := `(domain "a" :dim 2) (expand "a" 3) (expand "a" 5) (mesh "a")`
	a := evaluate(t, source)
	b := evaluate(t, source)
	if len(a.Order) != len(b.Order) {
		t.Fatalf("orders differ in length")
	}
	for i := range a.Order {
		if a.Order[i] != b.Order[i] {
			t.Errorf("node %d: %s != %s", i, a.Order[i].Short(), b.Order[i].Short())
		}
	}
	if a.Order[1] == a.Order[2] {
		t.Error("nodes of the same kind should get distinct IDs")
	}
}

// ---------------------------------------------------------------------------
// Regression: plain Lisp
// ---------------------------------------------------------------------------

func TestEmptySourceStillWorks(t *testing.T) {
	g := evaluate(t, "")
	if g.NodeCount() != 0 {
		t.Errorf("expected empty graph, got %d nodes", g.NodeCount())
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	g := evaluate(t, "(+ 1 2)")
	if g.NodeCount() != 0 {
		t.Errorf("expected empty graph, got %d nodes", g.NodeCount())
	}
}
