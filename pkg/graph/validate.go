package graph

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/chazu/narrowband/pkg/ls"
)

// ValidationSeverity indicates whether a validation finding blocks execution
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks execution
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// OK reports whether the graph can be executed.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Validate runs all checks on the process graph and returns the findings.
// An empty slice means the graph is valid. The graph is not modified.
func Validate(g *ProcessGraph) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateOrder(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateNames(g)...)
	errs = append(errs, validateParams(g)...)
	errs = append(errs, validateUsage(g)...)
	return errs
}

// ValidateAll runs Validate and separates errors from warnings.
func ValidateAll(g *ProcessGraph) ValidationResult {
	errs, warnings := lo.FilterReject(Validate(g), func(e ValidationError, _ int) bool {
		return e.Severity == SeverityError
	})
	return ValidationResult{Errors: errs, Warnings: warnings}
}

func nodeError(n *Node, format string, args ...any) ValidationError {
	return ValidationError{NodeID: n.ID, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

// validateOrder checks that the execution order and the node map agree.
func validateOrder(g *ProcessGraph) []ValidationError {
	var errs []ValidationError
	seen := make(map[NodeID]bool, len(g.Order))
	for _, id := range g.Order {
		if _, ok := g.Nodes[id]; !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("order references non-existent node %s", id.Short()),
				Severity: SeverityError,
			})
		}
		if seen[id] {
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  "node appears twice in the execution order",
				Severity: SeverityError,
			})
		}
		seen[id] = true
	}
	for id := range g.Nodes {
		if !seen[id] {
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  "node is never executed",
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateReferences checks that every domain a node reads was declared by
// an earlier node.
func validateReferences(g *ProcessGraph) []ValidationError {
	var errs []ValidationError
	declared := make(map[string]bool)
	for _, n := range g.Steps() {
		if n.Data == nil {
			errs = append(errs, nodeError(n, "%s node has no data", n.Kind))
			continue
		}
		for _, in := range n.Data.Inputs() {
			if !declared[in] {
				errs = append(errs, nodeError(n, "%s references undefined domain %q", n.Kind, in))
			}
		}
		if declares(n) {
			declared[n.Data.Target()] = true
		}
	}
	return errs
}

// validateNames checks that every domain name is declared once and is not
// empty.
func validateNames(g *ProcessGraph) []ValidationError {
	var errs []ValidationError
	decls := lo.Filter(g.Steps(), func(n *Node, _ int) bool { return declares(n) && n.Data != nil })
	for name, nodes := range lo.GroupBy(decls, func(n *Node) string { return n.Data.Target() }) {
		if name == "" {
			for _, n := range nodes {
				errs = append(errs, nodeError(n, "domain name is empty"))
			}
			continue
		}
		if len(nodes) > 1 {
			errs = append(errs, ValidationError{
				NodeID:   nodes[1].ID,
				Message:  fmt.Sprintf("domain %q declared %d times", name, len(nodes)),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateParams checks the kind specific parameters of every node.
func validateParams(g *ProcessGraph) []ValidationError {
	var errs []ValidationError
	for _, n := range g.Steps() {
		switch d := n.Data.(type) {
		case DomainData:
			errs = append(errs, validateDomain(n, d)...)
		case GeometryData:
			if d.Shape == nil {
				errs = append(errs, nodeError(n, "geometry has no shape"))
			}
		case BooleanData:
			if d.Op != ls.Invert && d.Operand == "" {
				errs = append(errs, nodeError(n, "%s needs a second domain", d.Op))
			}
			if d.Op != ls.Invert && d.Operand == d.Domain {
				errs = append(errs, ValidationError{
					NodeID:   n.ID,
					Message:  fmt.Sprintf("%s of domain %q with itself", d.Op, d.Domain),
					Severity: SeverityWarning,
				})
			}
		case BandData:
			if d.Op != BandPrune && d.Width < 1 {
				errs = append(errs, nodeError(n, "%s width must be positive, got %d", d.Op, d.Width))
			}
		case AdvectData:
			if len(d.Domains) == 0 {
				errs = append(errs, nodeError(n, "advect needs at least one domain"))
			}
			if d.Velocity == nil {
				errs = append(errs, nodeError(n, "advect has no velocity"))
			}
			if d.Time < 0 || math.IsNaN(d.Time) || math.IsInf(d.Time, 0) {
				errs = append(errs, nodeError(n, "advection time must be finite and non-negative, got %v", d.Time))
			}
			if d.TimeStepRatio < 0 || d.TimeStepRatio >= 1 {
				errs = append(errs, nodeError(n, "time step ratio must be in [0, 1), got %v", d.TimeStepRatio))
			}
			if dup := lo.FindDuplicates(d.Domains); len(dup) > 0 {
				errs = append(errs, nodeError(n, "advect lists domains %v more than once", dup))
			}
		case GeometricAdvectData:
			if d.Dist == nil {
				errs = append(errs, nodeError(n, "geometric advect has no distribution"))
			}
			if d.Mask != "" && d.Mask == d.Domain {
				errs = append(errs, nodeError(n, "domain %q cannot mask itself", d.Domain))
			}
		case FeaturesData:
			if d.Op == FeatureDetect && !(d.Limit > 0) {
				errs = append(errs, nodeError(n, "feature limit must be positive, got %v", d.Limit))
			}
		}
	}
	return errs
}

func validateDomain(n *Node, d DomainData) []ValidationError {
	var errs []ValidationError
	if d.Dim != 2 && d.Dim != 3 {
		errs = append(errs, nodeError(n, "dimension must be 2 or 3, got %d", d.Dim))
		return errs
	}
	if !(d.Spacing > 0) {
		errs = append(errs, nodeError(n, "spacing must be positive, got %v", d.Spacing))
	}
	if d.Bounds != nil && len(d.Bounds) != 2*d.Dim {
		errs = append(errs, nodeError(n, "bounds need %d values, got %d", 2*d.Dim, len(d.Bounds)))
	}
	if d.BCs != nil && len(d.BCs) != d.Dim {
		errs = append(errs, nodeError(n, "boundary conditions need %d values, got %d", d.Dim, len(d.BCs)))
	}
	return errs
}

// validateUsage warns about domains nothing reads after their declaration
// and about graphs without output.
func validateUsage(g *ProcessGraph) []ValidationError {
	var errs []ValidationError
	steps := lo.Filter(g.Steps(), func(n *Node, _ int) bool { return n.Data != nil })
	used := make(map[string]bool)
	for _, n := range steps {
		for _, in := range n.Data.Inputs() {
			used[in] = true
		}
	}
	for _, name := range g.DomainNames() {
		if !used[name] {
			errs = append(errs, ValidationError{
				NodeID:   g.Domains[name],
				Message:  fmt.Sprintf("domain %q is never used", name),
				Severity: SeverityWarning,
			})
		}
	}
	if len(steps) > 0 && len(g.Meshes()) == 0 {
		errs = append(errs, ValidationError{
			Message:  "graph produces no mesh",
			Severity: SeverityWarning,
		})
	}
	return errs
}
