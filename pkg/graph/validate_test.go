package graph

import (
	"strings"
	"testing"

	"github.com/chazu/narrowband/pkg/advect"
	"github.com/chazu/narrowband/pkg/geometry"
	"github.com/chazu/narrowband/pkg/ls"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// buildValidGraph creates a substrate with a sphere on top, advects both
// layers and meshes the result.
func buildValidGraph() *ProcessGraph {
	g := New()
	add := func(path string, kind NodeKind, data NodeData) {
		g.AddNode(&Node{ID: NewNodeID(path), Kind: kind, Data: data})
	}
	add("domain/substrate", NodeDomain, DomainData{
		Name: "substrate", Dim: 2, Spacing: 0.5,
		Bounds: []float64{-5, 5, -5, 5},
		BCs:    []ls.BoundaryCondition{ls.Reflective, ls.Infinite},
	})
	add("make-geometry/0", NodeGeometry, GeometryData{
		Domain: "substrate", Shape: geometry.Plane{Normal: [3]float64{0, 1, 0}},
	})
	add("copy-domain/top", NodeCopy, CopyData{Name: "top", Source: "substrate"})
	add("boolean/0", NodeBoolean, BooleanData{Domain: "top", Operand: "substrate", Op: ls.Union})
	add("advect/0", NodeAdvect, AdvectData{
		Domains:  []string{"substrate", "top"},
		Velocity: advect.ConstantVelocity(1),
		Time:     1,
	})
	add("mesh/0", NodeMesh, MeshData{Domain: "top", Surface: true})
	return g
}

// hasError returns true if errs contains at least one error-severity finding
// whose message contains substr.
func hasError(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// hasWarning returns true if errs contains a warning containing substr.
func hasWarning(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityWarning && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func countErrors(errs []ValidationError) int {
	n := 0
	for _, e := range errs {
		if e.Severity == SeverityError {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestValidGraph(t *testing.T) {
	errs := Validate(buildValidGraph())
	if len(errs) != 0 {
		t.Fatalf("expected no findings, got %v", errs)
	}
}

func TestEmptyGraphIsValid(t *testing.T) {
	if errs := Validate(New()); len(errs) != 0 {
		t.Fatalf("expected no findings for empty graph, got %v", errs)
	}
}

func TestUndefinedDomain(t *testing.T) {
	g := buildValidGraph()
	g.AddNode(&Node{ID: NewNodeID("expand/x"), Kind: NodeBand, Data: BandData{Domain: "missing", Op: BandExpand, Width: 3}})

	errs := Validate(g)
	if !hasError(errs, `undefined domain "missing"`) {
		t.Errorf("expected undefined domain error, got %v", errs)
	}
}

func TestUseBeforeDeclaration(t *testing.T) {
	g := New()
	g.AddNode(&Node{ID: NewNodeID("prune/0"), Kind: NodeBand, Data: BandData{Domain: "a", Op: BandPrune}})
	g.AddNode(&Node{ID: NewNodeID("domain/a"), Kind: NodeDomain, Data: DomainData{Name: "a", Dim: 3, Spacing: 1}})

	if !hasError(Validate(g), `undefined domain "a"`) {
		t.Error("expected reading a domain before its declaration to fail")
	}
}

func TestDuplicateDomain(t *testing.T) {
	g := buildValidGraph()
	g.AddNode(&Node{ID: NewNodeID("domain/again"), Kind: NodeDomain, Data: DomainData{Name: "top", Dim: 2, Spacing: 1}})

	if !hasError(Validate(g), `domain "top" declared 2 times`) {
		t.Error("expected duplicate declaration error")
	}
	if g.Lookup("top").Kind != NodeCopy {
		t.Error("first declaration should stay registered")
	}
}

func TestDomainParams(t *testing.T) {
	tests := []struct {
		name string
		data DomainData
		want string
	}{
		{"dimension", DomainData{Name: "a", Dim: 4, Spacing: 1}, "dimension must be 2 or 3"},
		{"spacing", DomainData{Name: "a", Dim: 2, Spacing: 0}, "spacing must be positive"},
		{"bounds", DomainData{Name: "a", Dim: 2, Spacing: 1, Bounds: []float64{0, 1}}, "bounds need 4 values"},
		{"bcs", DomainData{Name: "a", Dim: 3, Spacing: 1, BCs: []ls.BoundaryCondition{ls.Infinite}}, "boundary conditions need 3 values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			g.AddNode(&Node{ID: NewNodeID("domain/a"), Kind: NodeDomain, Data: tt.data})
			if errs := Validate(g); !hasError(errs, tt.want) {
				t.Errorf("expected %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestMalformedParams(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"no shape", &Node{Kind: NodeGeometry, Data: GeometryData{Domain: "top"}}, "no shape"},
		{"no operand", &Node{Kind: NodeBoolean, Data: BooleanData{Domain: "top", Op: ls.Intersect}}, "needs a second domain"},
		{"zero width", &Node{Kind: NodeBand, Data: BandData{Domain: "top", Op: BandReduce}}, "width must be positive"},
		{"no velocity", &Node{Kind: NodeAdvect, Data: AdvectData{Domains: []string{"top"}, Time: 1}}, "no velocity"},
		{"negative time", &Node{Kind: NodeAdvect, Data: AdvectData{Domains: []string{"top"}, Velocity: advect.ConstantVelocity(1), Time: -1}}, "time must be finite"},
		{"no domains", &Node{Kind: NodeAdvect, Data: AdvectData{Velocity: advect.ConstantVelocity(1)}}, "at least one domain"},
		{"repeated layer", &Node{Kind: NodeAdvect, Data: AdvectData{Domains: []string{"top", "top"}, Velocity: advect.ConstantVelocity(1)}}, "more than once"},
		{"no distribution", &Node{Kind: NodeGeometricAdvect, Data: GeometricAdvectData{Domain: "top"}}, "no distribution"},
		{"self mask", &Node{Kind: NodeGeometricAdvect, Data: GeometricAdvectData{Domain: "top", Mask: "top"}}, "cannot mask itself"},
		{"feature limit", &Node{Kind: NodeFeatures, Data: FeaturesData{Domain: "top", Op: FeatureDetect}}, "limit must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildValidGraph()
			tt.node.ID = NewNodeID("bad/" + tt.name)
			g.AddNode(tt.node)
			if errs := Validate(g); !hasError(errs, tt.want) {
				t.Errorf("expected %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestMissingData(t *testing.T) {
	g := buildValidGraph()
	g.AddNode(&Node{ID: NewNodeID("mesh/nil"), Kind: NodeMesh})
	if !hasError(Validate(g), "mesh node has no data") {
		t.Error("expected error for node without data")
	}
}

func TestSelfBooleanWarns(t *testing.T) {
	g := buildValidGraph()
	g.AddNode(&Node{ID: NewNodeID("boolean/self"), Kind: NodeBoolean, Data: BooleanData{Domain: "top", Operand: "top", Op: ls.Union}})
	errs := Validate(g)
	if countErrors(errs) != 0 {
		t.Errorf("self union should not be an error, got %v", errs)
	}
	if !hasWarning(errs, "with itself") {
		t.Error("expected warning for self union")
	}
}

func TestUsageWarnings(t *testing.T) {
	g := New()
	g.AddNode(&Node{ID: NewNodeID("domain/a"), Kind: NodeDomain, Data: DomainData{Name: "a", Dim: 2, Spacing: 1}})
	errs := Validate(g)
	if !hasWarning(errs, `domain "a" is never used`) {
		t.Errorf("expected unused domain warning, got %v", errs)
	}
	if !hasWarning(errs, "no mesh") {
		t.Errorf("expected missing output warning, got %v", errs)
	}
}

func TestOrderMismatch(t *testing.T) {
	g := buildValidGraph()
	stray := NewNodeID("stray")
	g.Nodes[stray] = &Node{ID: stray, Kind: NodeMesh, Data: MeshData{Domain: "top"}}
	g.Order = append(g.Order, NewNodeID("ghost"))

	errs := Validate(g)
	if !hasError(errs, "non-existent node") {
		t.Error("expected error for unknown node in order")
	}
	if !hasWarning(errs, "never executed") {
		t.Error("expected warning for node outside the order")
	}
}

func TestValidateAllSeparatesSeverities(t *testing.T) {
	g := buildValidGraph()
	g.AddNode(&Node{ID: NewNodeID("boolean/self"), Kind: NodeBoolean, Data: BooleanData{Domain: "top", Operand: "top", Op: ls.Union}})
	g.AddNode(&Node{ID: NewNodeID("prune/missing"), Kind: NodeBand, Data: BandData{Domain: "missing", Op: BandPrune}})

	r := ValidateAll(g)
	if r.OK() {
		t.Fatal("result should not be OK")
	}
	if len(r.Errors) != 1 {
		t.Errorf("errors = %d, want 1: %v", len(r.Errors), r.Errors)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("warnings = %d, want 1: %v", len(r.Warnings), r.Warnings)
	}
	for _, w := range r.Warnings {
		if w.Severity != SeverityWarning {
			t.Errorf("warning with severity %s", w.Severity)
		}
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Message: "graph-level", Severity: SeverityWarning}
	if got := e.Error(); got != "[warning] graph-level" {
		t.Errorf("Error() = %q", got)
	}
	id := NewNodeID("advect/0")
	e = ValidationError{NodeID: id, Message: "bad", Severity: SeverityError}
	if got, want := e.Error(), "[error] node "+id.Short()+": bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
